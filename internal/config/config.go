package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/offline-packager/internal/manifest"
)

// Config holds the packaging settings of one project.
type Config struct {
	// PackageName labels the package and names the folder inside the archive.
	PackageName string `yaml:"package_name"`
	// PublicPath is prepended to every packaged path to form its remote URL.
	PublicPath string `yaml:"public_path"`
	// MapFileName is the manifest file name inside the package folder.
	MapFileName string `yaml:"map_file_name,omitempty"`
	// ZipName is the archive base name without the .zip suffix.
	ZipName string `yaml:"zip_name,omitempty"`
	// IncludeFileTypes restricts packaged outputs to these types when non-empty.
	IncludeFileTypes []string `yaml:"include_file_types,omitempty"`
	// ExcludeFileTypes always rejects outputs of these types.
	ExcludeFileTypes []string `yaml:"exclude_file_types,omitempty"`
	// Format selects the manifest serializer (json or yaml).
	Format string `yaml:"format,omitempty"`
	// Overwrite replaces an existing build output named like the archive.
	Overwrite bool `yaml:"overwrite,omitempty"`
	// OutputDir is where the host writes the archive (defaults to the build directory).
	OutputDir string `yaml:"output_dir,omitempty"`
	// Ignore lists glob patterns of build outputs the host never loads.
	Ignore []string `yaml:"ignore,omitempty"`
	// LogLevel is the minimum level of log messages.
	LogLevel string `yaml:"log_level,omitempty"`
}

const (
	// DefaultConfigFilename is the default filename for packaging settings.
	DefaultConfigFilename = "offline-package.yaml"

	// DefaultLogLevel is used when no log level is configured.
	DefaultLogLevel = "info"

	// DefaultFilePermissions is the permission of saved settings files.
	DefaultFilePermissions = 0o644
)

// errConfigIsNotSet is returned when a nil configuration is provided.
var errConfigIsNotSet = errors.New("configuration is not set")

// Load reads configuration from the provided path and validates it.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}

	if err = Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Read parses the configuration file without validating it, so that
// command line flags can fill in missing fields first.
func Read(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err = yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	return &cfg, nil
}

// Save writes the configuration to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	if err = os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks required fields, the manifest format and fills defaults.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if cfg.PackageName == "" {
		return manifest.ErrPackageNameRequired
	}

	if cfg.PublicPath == "" {
		return manifest.ErrPublicPathRequired
	}

	if _, err := manifest.SerializerFor(cfg.Format); err != nil {
		return err
	}

	if cfg.MapFileName == "" {
		cfg.MapFileName = manifest.DefaultManifestFileName
	}

	if cfg.ZipName == "" {
		cfg.ZipName = manifest.DefaultArchiveBaseName
	}

	if cfg.Format == "" {
		cfg.Format = manifest.FormatJSON
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}

	return nil
}

// Merge overlays non-empty fields of override onto cfg.
// Boolean flags are only ever switched on.
func Merge(cfg, override *Config) {
	if override == nil {
		return
	}

	mergeString(&cfg.PackageName, override.PackageName)
	mergeString(&cfg.PublicPath, override.PublicPath)
	mergeString(&cfg.MapFileName, override.MapFileName)
	mergeString(&cfg.ZipName, override.ZipName)
	mergeString(&cfg.Format, override.Format)
	mergeString(&cfg.OutputDir, override.OutputDir)
	mergeString(&cfg.LogLevel, override.LogLevel)

	if len(override.IncludeFileTypes) > 0 {
		cfg.IncludeFileTypes = append([]string(nil), override.IncludeFileTypes...)
	}

	if len(override.ExcludeFileTypes) > 0 {
		cfg.ExcludeFileTypes = append([]string(nil), override.ExcludeFileTypes...)
	}

	if len(override.Ignore) > 0 {
		cfg.Ignore = append([]string(nil), override.Ignore...)
	}

	if override.Overwrite {
		cfg.Overwrite = true
	}
}

// Policy converts validated settings into a package policy.
func (c *Config) Policy() (*manifest.Policy, error) {
	serialize, err := manifest.SerializerFor(c.Format)
	if err != nil {
		return nil, err
	}

	policy := &manifest.Policy{
		PackageName:      c.PackageName,
		PublicPath:       c.PublicPath,
		ManifestFileName: c.MapFileName,
		ArchiveBaseName:  c.ZipName,
		IncludeTypes:     append([]string(nil), c.IncludeFileTypes...),
		ExcludeTypes:     append([]string(nil), c.ExcludeFileTypes...),
		Serialize:        serialize,
		Overwrite:        c.Overwrite,
	}

	if err = manifest.Validate(policy); err != nil {
		return nil, err
	}

	return policy, nil
}

func mergeString(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}
