// Package manifest decides which build outputs belong to an offline package
// and describes them in a manifest document.
//
// Build filters outputs by derived file type (exclusions win over
// inclusions) and maps every accepted output to its remote URL. The
// resulting Manifest is rendered by a Serializer, JSON by default.
package manifest
