// Package config defines the packaging settings read from a YAML file and
// provides helpers to load, validate, save and merge them.
//
// The Config type mirrors the package policy (names, public path, type
// filters, manifest format) plus the options of the command line host.
package config
