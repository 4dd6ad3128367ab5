// Package packager is the command line entry point of the offline packager.
//
// It merges the settings file with command line overrides, loads the build
// directory into the reference host, runs the offline package plugin and
// publishes the archive next to the build outputs.
package packager
