package manifest

import (
	"errors"
	"slices"
)

const (
	// DefaultManifestFileName is the manifest name inside the package folder.
	DefaultManifestFileName = "map.json"
	// DefaultArchiveBaseName is the archive name before the .zip suffix.
	DefaultArchiveBaseName = "package"
	// ArchiveExtension is appended to the archive base name.
	ArchiveExtension = ".zip"
)

var (
	// ErrPackageNameRequired is returned when the policy has no package name.
	ErrPackageNameRequired = errors.New("package name must be provided")
	// ErrPublicPathRequired is returned when the policy has no public path.
	ErrPublicPathRequired = errors.New("public path must be provided")
	// errPolicyIsNotSet is returned when a nil policy is validated.
	errPolicyIsNotSet = errors.New("package policy is not set")
)

// Policy configures one packaging run. Treat it as read-only once validated.
type Policy struct {
	// PackageName labels the package and names its folder inside the archive.
	PackageName string
	// PublicPath is prepended to every output path to form its remote URL.
	PublicPath string
	// ManifestFileName is the manifest name inside the package folder.
	ManifestFileName string
	// ArchiveBaseName is the archive output name without the .zip suffix.
	ArchiveBaseName string
	// IncludeTypes restricts eligible outputs to these types when non-empty.
	IncludeTypes []string
	// ExcludeTypes always rejects outputs of these types.
	ExcludeTypes []string
	// Serialize renders the manifest. JSON is used when nil.
	Serialize Serializer
	// Overwrite replaces an existing output that has the archive name
	// instead of failing the run.
	Overwrite bool
}

// Validate checks required fields and fills defaults for the optional ones.
func Validate(policy *Policy) error {
	if policy == nil {
		return errPolicyIsNotSet
	}

	if policy.PackageName == "" {
		return ErrPackageNameRequired
	}

	if policy.PublicPath == "" {
		return ErrPublicPathRequired
	}

	if policy.ManifestFileName == "" {
		policy.ManifestFileName = DefaultManifestFileName
	}

	if policy.ArchiveBaseName == "" {
		policy.ArchiveBaseName = DefaultArchiveBaseName
	}

	if policy.Serialize == nil {
		policy.Serialize = JSON
	}

	return nil
}

// ArchiveName returns the output name of the archive.
func (p *Policy) ArchiveName() string {
	base := p.ArchiveBaseName
	if base == "" {
		base = DefaultArchiveBaseName
	}

	return base + ArchiveExtension
}

// ManifestName returns the manifest file name, falling back to the default.
func (p *Policy) ManifestName() string {
	if p.ManifestFileName == "" {
		return DefaultManifestFileName
	}

	return p.ManifestFileName
}

// Accepts reports whether an output of the given type is packaged.
// Exclusions are checked first, so a type listed in both sets is rejected.
// An empty IncludeTypes means no include restriction.
func (p *Policy) Accepts(fileType string) bool {
	if slices.Contains(p.ExcludeTypes, fileType) {
		return false
	}

	if len(p.IncludeTypes) > 0 && !slices.Contains(p.IncludeTypes, fileType) {
		return false
	}

	return true
}
