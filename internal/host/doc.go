// Package host is a small build host around the packaging step.
//
// It exposes the emit extension point (Hooks) that plugins tap into,
// loads a build directory into an ordered output set, guards the output
// directory against concurrent runs and publishes outputs atomically.
package host
