// Package archive assembles the offline package zip from in-memory build outputs.
package archive
