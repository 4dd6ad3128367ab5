// Package plugin turns a build's outputs into an offline package.
//
// The plugin taps the host's emit stage: it builds the manifest from the
// finalized outputs, assembles the zip in the background and registers it
// back into the output set under the configured archive name.
package plugin

import (
	"context"
	"fmt"
	"time"

	"github.com/oshokin/offline-packager/internal/archive"
	"github.com/oshokin/offline-packager/internal/asset"
	"github.com/oshokin/offline-packager/internal/host"
	"github.com/oshokin/offline-packager/internal/logger"
	"github.com/oshokin/offline-packager/internal/manifest"
)

// Name identifies the plugin on the host's emit hook.
const Name = "OfflinePackagePlugin"

// Recorder receives run statistics.
type Recorder interface {
	ObserveFiles(pkg string, accepted, rejected int)
	ObserveRun(pkg string, archiveBytes int, elapsed time.Duration, err error)
}

// Plugin packages build outputs according to a policy.
type Plugin struct {
	// policy is validated at construction and never modified afterwards.
	policy *manifest.Policy
	// assembler builds the archive for the policy.
	assembler *archive.Assembler
	// recorder is optional.
	recorder Recorder
}

// Option configures a Plugin.
type Option func(*pluginOptions)

// pluginOptions collects options before the plugin is built.
type pluginOptions struct {
	recorder        Recorder
	assemblerOption []archive.Option
}

// WithRecorder reports run statistics to r.
func WithRecorder(r Recorder) Option {
	return func(o *pluginOptions) {
		o.recorder = r
	}
}

// WithModTime stamps archive entries with t instead of the fixed default.
func WithModTime(t time.Time) Option {
	return func(o *pluginOptions) {
		o.assemblerOption = append(o.assemblerOption, archive.WithModTime(t))
	}
}

// New validates a copy of policy, filling defaults, and creates the plugin.
// Missing required fields are reported here rather than at packaging time.
func New(policy *manifest.Policy, opts ...Option) (*Plugin, error) {
	if policy == nil {
		return nil, manifest.Validate(nil)
	}

	validated := *policy
	if err := manifest.Validate(&validated); err != nil {
		return nil, fmt.Errorf("invalid package policy: %w", err)
	}

	var options pluginOptions
	for _, opt := range opts {
		opt(&options)
	}

	return &Plugin{
		policy:    &validated,
		assembler: archive.NewAssembler(&validated, options.assemblerOption...),
		recorder:  options.recorder,
	}, nil
}

// Policy returns the validated policy.
func (p *Plugin) Policy() *manifest.Policy {
	return p.policy
}

// Apply registers the plugin on the host's emit stage.
func (p *Plugin) Apply(hooks host.Hooks) {
	hooks.TapEmit(Name, p.emit)
}

// emit builds the manifest synchronously, assembles the archive in the
// background and calls done once the archive is registered or has failed.
func (p *Plugin) emit(ctx context.Context, outputs *asset.OutputSet, done func(error)) {
	ctx = logger.WithKV(logger.WithName(ctx, "offline-package"), "package", p.policy.PackageName)

	var (
		started     = time.Now()
		archiveName = p.policy.ArchiveName()
	)

	if outputs.Has(archiveName) && !p.policy.Overwrite {
		p.finish(ctx, started, 0, done, fmt.Errorf("archive %s: %w", archiveName, asset.ErrOutputExists))
		return
	}

	files := p.packageCandidates(outputs, archiveName)
	m, accepted := manifest.Build(files, p.policy)
	rejected := len(files) - len(accepted)

	if outputs.Has(p.policy.ManifestName()) {
		logger.WarnKV(ctx, "Build output shares the manifest path and is left out of the package",
			"output", p.policy.ManifestName())
	}

	logger.InfoKV(ctx, "Built manifest", "accepted", len(accepted), "rejected", rejected)

	if p.recorder != nil {
		p.recorder.ObserveFiles(p.policy.PackageName, len(accepted), rejected)
	}

	results := p.assembler.AssembleAsync(ctx, accepted, m)

	go func() {
		result := <-results
		if result.Err != nil {
			p.finish(ctx, started, 0, done, fmt.Errorf("assemble archive: %w", result.Err))
			return
		}

		packed := asset.New(archiveName, result.Data)

		if p.policy.Overwrite {
			outputs.Set(packed)
		} else if err := outputs.Add(packed); err != nil {
			p.finish(ctx, started, 0, done, err)
			return
		}

		logger.InfoKV(ctx, "Archive registered", "output", archiveName, "bytes", packed.Size())

		p.finish(ctx, started, packed.Size(), done, nil)
	}()
}

// packageCandidates returns the outputs to filter. A previous archive with
// the same name is left out, since it is about to be replaced.
func (p *Plugin) packageCandidates(outputs *asset.OutputSet, archiveName string) []*asset.Asset {
	entries := outputs.Entries()
	if !p.policy.Overwrite || !outputs.Has(archiveName) {
		return entries
	}

	files := make([]*asset.Asset, 0, len(entries))

	for _, entry := range entries {
		if entry.Path != archiveName {
			files = append(files, entry)
		}
	}

	return files
}

// finish records the run and signals completion to the host.
func (p *Plugin) finish(ctx context.Context, started time.Time, size int, done func(error), err error) {
	if p.recorder != nil {
		p.recorder.ObserveRun(p.policy.PackageName, size, time.Since(started), err)
	}

	if err != nil {
		logger.ErrorKV(ctx, "Packaging failed", "error", err)
	}

	done(err)
}
