// Package asset models the build output set handed to the packaging step.
//
// An Asset is one generated file (relative path plus raw contents). An
// OutputSet keeps assets keyed by path in insertion order, which is the
// order the manifest lists them in.
package asset
