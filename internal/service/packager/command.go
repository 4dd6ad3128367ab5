package packager

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/offline-packager/internal/archive"
	"github.com/oshokin/offline-packager/internal/asset"
	"github.com/oshokin/offline-packager/internal/config"
	"github.com/oshokin/offline-packager/internal/host"
	"github.com/oshokin/offline-packager/internal/logger"
	"github.com/oshokin/offline-packager/internal/manifest"
	"github.com/oshokin/offline-packager/internal/metrics"
	"github.com/oshokin/offline-packager/internal/plugin"
)

// Options contains inputs for the packager entry point.
type Options struct {
	// ConfigPath is the settings file. When empty, DefaultConfigFilename is
	// used if it exists.
	ConfigPath string
	// BuildDir is the directory holding the finalized build outputs.
	BuildDir string
	// Overrides holds settings given on the command line; non-empty fields win.
	Overrides *config.Config
	// MetricsFile is an optional Prometheus textfile to write after the run.
	MetricsFile string
	// Verify re-reads the archive and checks it against its manifest.
	Verify bool
	// Out receives the human-readable summary. Defaults to stdout.
	Out io.Writer
	// ModTime overrides the timestamp stamped on archive entries.
	ModTime time.Time
}

var (
	// errBuildDirRequired is returned when no build directory is given.
	errBuildDirRequired = errors.New("build directory must be provided")
	// errArchiveMissing is returned when the plugin finished without registering the archive.
	errArchiveMissing = errors.New("archive was not registered")
	// errArchiveIncomplete is returned when verification finds a missing entry.
	errArchiveIncomplete = errors.New("archive does not match its manifest")
)

// Run executes the packaging workflow.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "offline-packager")

	if opts.BuildDir == "" {
		return errBuildDirRequired
	}

	cfg, err := loadSettings(opts)
	if err != nil {
		return err
	}

	if level, ok := logger.ParseLogLevel(cfg.LogLevel); ok {
		logger.SetLevel(level)
	} else {
		logger.WarnKV(ctx, "Unknown log level, keeping the current one", "level", cfg.LogLevel)
	}

	policy, err := cfg.Policy()
	if err != nil {
		return err
	}

	outputDir := cfg.OutputDir
	if outputDir == "" {
		outputDir = opts.BuildDir
	}

	recorder := metrics.NewRecorder()

	runErr := run(ctx, opts, cfg, policy, outputDir, recorder)

	if opts.MetricsFile != "" {
		if err = recorder.WriteTextfile(opts.MetricsFile); err != nil {
			logger.ErrorKV(ctx, "Unable to write metrics", "path", opts.MetricsFile, "error", err)
		}
	}

	if runErr != nil {
		return fmt.Errorf("packager failed: %w", runErr)
	}

	logger.Info(ctx, "Packager completed successfully")

	return nil
}

// run performs one build pass against the reference host.
func run(
	ctx context.Context,
	opts *Options,
	cfg *config.Config,
	policy *manifest.Policy,
	outputDir string,
	recorder *metrics.Recorder,
) error {
	marker, err := host.AcquireMarker(ctx, outputDir)
	if err != nil {
		return err
	}

	defer func() {
		if releaseErr := marker.Release(); releaseErr != nil {
			logger.WarnKV(ctx, "Unable to remove run marker", "error", releaseErr)
		}
	}()

	outputs, err := host.LoadDir(ctx, opts.BuildDir, cfg.Ignore)
	if err != nil {
		return err
	}

	dropEarlierPackages(ctx, outputs, policy.ArchiveName())

	pluginOptions := []plugin.Option{plugin.WithRecorder(recorder)}
	if !opts.ModTime.IsZero() {
		pluginOptions = append(pluginOptions, plugin.WithModTime(opts.ModTime))
	}

	offline, err := plugin.New(policy, pluginOptions...)
	if err != nil {
		return err
	}

	compiler := host.NewCompiler()
	offline.Apply(compiler)

	if err = compiler.Emit(ctx, outputs); err != nil {
		return err
	}

	archiveName := policy.ArchiveName()

	packed, ok := outputs.Get(archiveName)
	if !ok {
		return fmt.Errorf("%s: %w", archiveName, errArchiveMissing)
	}

	if opts.Verify {
		if err = verifyArchive(packed.Contents, policy); err != nil {
			return err
		}

		logger.InfoKV(ctx, "Archive verified", "output", archiveName)
	}

	written, err := host.NewWriter(outputDir).WriteOutputs(ctx, outputs, archiveName)
	if err != nil {
		return err
	}

	printSummary(opts.Out, policy, written, packed.Size())

	return nil
}

// dropEarlierPackages removes offline packages left in the build directory by
// previous runs. An output named like the current archive stays, so the
// collision policy still applies to it.
func dropEarlierPackages(ctx context.Context, outputs *asset.OutputSet, archiveName string) {
	for _, output := range outputs.Entries() {
		if output.Path == archiveName || output.Type() != "zip" || !archive.IsPackage(output.Contents) {
			continue
		}

		outputs.Remove(output.Path)
		logger.InfoKV(ctx, "Skipping offline package from an earlier run", "output", output.Path)
	}
}

// loadSettings reads the settings file, applies overrides and validates the result.
func loadSettings(opts *Options) (*config.Config, error) {
	cfg := new(config.Config)

	configPath := opts.ConfigPath
	optional := configPath == ""

	if optional {
		configPath = config.DefaultConfigFilename
	}

	fromFile, err := config.Read(configPath)

	switch {
	case err == nil:
		cfg = fromFile
	case optional && errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	config.Merge(cfg, opts.Overrides)

	if err = config.Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// verifyArchive checks the archive holds its manifest and every listed item.
// The manifest is decoded as YAML, which also accepts the JSON format.
func verifyArchive(data []byte, policy *manifest.Policy) error {
	folder := policy.PackageName

	rawManifest, err := archive.ReadFile(data, path.Join(folder, policy.ManifestName()))
	if err != nil {
		return fmt.Errorf("%w: %w", errArchiveIncomplete, err)
	}

	var m manifest.Manifest
	if err = yaml.Unmarshal(rawManifest, &m); err != nil {
		return fmt.Errorf("decode packaged manifest: %w", err)
	}

	names, err := archive.List(data)
	if err != nil {
		return err
	}

	present := make(map[string]struct{}, len(names))
	for _, name := range names {
		present[name] = struct{}{}
	}

	for _, item := range m.Items {
		if _, ok := present[folder+"/"+item.Path]; !ok {
			return fmt.Errorf("%s: %w", item.Path, errArchiveIncomplete)
		}
	}

	// Folder entry, manifest and one entry per item.
	if len(names) != len(m.Items)+2 {
		return fmt.Errorf("%d entries for %d items: %w", len(names), len(m.Items), errArchiveIncomplete)
	}

	return nil
}

// printSummary writes human-readable guidance about the produced archive.
func printSummary(out io.Writer, policy *manifest.Policy, written []string, size int) {
	if out == nil {
		out = os.Stdout
	}

	var builder strings.Builder

	builder.WriteString("Offline package \"")
	builder.WriteString(policy.PackageName)
	builder.WriteString("\" is ready (")
	builder.WriteString(strconv.Itoa(size))
	builder.WriteString(" bytes):\n")

	for _, name := range written {
		builder.WriteString(name)
		builder.WriteString("\n")
	}

	builder.WriteString("Upload the packaged files so they are served under ")
	builder.WriteString(policy.PublicPath)
	builder.WriteString("\n")

	_, _ = io.WriteString(out, builder.String())
}
