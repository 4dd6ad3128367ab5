package asset

import "strings"

// Asset is a single build output.
type Asset struct {
	// Path is the relative, slash-separated output path, unique within an OutputSet.
	Path string
	// Contents holds the raw bytes of the output.
	Contents []byte
}

// New returns an asset for the provided path and contents.
func New(path string, contents []byte) *Asset {
	return &Asset{
		Path:     path,
		Contents: contents,
	}
}

// Type returns the derived file type of the asset.
func (a *Asset) Type() string {
	return TypeOf(a.Path)
}

// Size returns the length of the asset contents in bytes.
func (a *Asset) Size() int {
	return len(a.Contents)
}

// TypeOf derives the file type from a path: the substring after the last
// dot, or an empty string when the path has no dot.
// "c.js.map" yields "map", "LICENSE" and "a." yield "".
func TypeOf(path string) string {
	idx := strings.LastIndexByte(path, '.')
	if idx < 0 {
		return ""
	}

	return path[idx+1:]
}
