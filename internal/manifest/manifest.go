package manifest

import "github.com/oshokin/offline-packager/internal/asset"

// Entry maps one packaged output to its remote location.
type Entry struct {
	// RemoteURL is the public path joined with the output path.
	RemoteURL string `json:"remoteUrl" yaml:"remoteUrl"`
	// Path is the output path relative to the package folder.
	Path string `json:"path" yaml:"path"`
}

// Manifest describes the contents of an offline package.
type Manifest struct {
	// Package is the package name.
	Package string `json:"package" yaml:"package"`
	// Items lists packaged outputs in build output order.
	Items []Entry `json:"items" yaml:"items"`
}

// Build filters files with the policy and returns the manifest together
// with the accepted files, both in the order of files.
// An output stored at the manifest's own path is never accepted, since the
// manifest takes that place in the package folder.
// It has no side effects and never fails: an empty input yields an empty manifest.
func Build(files []*asset.Asset, policy *Policy) (*Manifest, []*asset.Asset) {
	manifest := &Manifest{
		Package: policy.PackageName,
		Items:   make([]Entry, 0, len(files)),
	}

	var (
		accepted     = make([]*asset.Asset, 0, len(files))
		manifestName = policy.ManifestName()
	)

	for _, file := range files {
		if file.Path == manifestName || !policy.Accepts(file.Type()) {
			continue
		}

		manifest.Items = append(manifest.Items, Entry{
			RemoteURL: policy.PublicPath + file.Path,
			Path:      file.Path,
		})

		accepted = append(accepted, file)
	}

	return manifest, accepted
}
