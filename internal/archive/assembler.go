package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"time"

	"github.com/klauspost/compress/flate"

	"github.com/oshokin/offline-packager/internal/asset"
	"github.com/oshokin/offline-packager/internal/manifest"
)

const (
	// CompressionLevel is the deflate level used for every packaged file.
	CompressionLevel = flate.BestCompression

	// Comment is stored as the archive comment of every offline package.
	Comment = "offline-packager"

	// fileMode is recorded for packaged files.
	fileMode fs.FileMode = 0o644
	// folderMode is recorded for the package folder.
	folderMode = fs.ModeDir | 0o755
)

var (
	// defaultModTime is the earliest timestamp representable in a zip header.
	// Using a fixed time keeps archives byte-identical across runs.
	//nolint:gochecknoglobals // Constant value that cannot be declared as const.
	defaultModTime = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

	// errAssemblyPanicked is returned when assembly panics inside the worker goroutine.
	errAssemblyPanicked = errors.New("archive assembly panicked")
)

// Result is the outcome of an asynchronous assembly.
type Result struct {
	// Data holds the finished archive when Err is nil.
	Data []byte
	// Err is the cause of a failed assembly.
	Err error
}

// Assembler builds offline package archives for a single policy.
type Assembler struct {
	// policy supplies the package folder, manifest name and serializer.
	policy *manifest.Policy
	// modTime is stamped on every archive entry.
	modTime time.Time
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithModTime overrides the modification time recorded for archive entries.
func WithModTime(t time.Time) Option {
	return func(a *Assembler) {
		if !t.IsZero() {
			a.modTime = t
		}
	}
}

// NewAssembler creates an assembler for the provided policy.
func NewAssembler(policy *manifest.Policy, opts ...Option) *Assembler {
	a := &Assembler{
		policy:  policy,
		modTime: defaultModTime,
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Assemble builds the archive: a folder named after the package holding
// every accepted file at its relative path plus the serialized manifest.
// A file at the manifest's path is skipped so the archive holds a single
// manifest entry. Nothing is returned on failure.
func (a *Assembler) Assemble(ctx context.Context, files []*asset.Asset, m *manifest.Manifest) ([]byte, error) {
	serialize := a.policy.Serialize
	if serialize == nil {
		serialize = manifest.JSON
	}

	manifestContents, err := serialize(m)
	if err != nil {
		return nil, fmt.Errorf("serialize manifest: %w", err)
	}

	var (
		buf          bytes.Buffer
		writer       = zip.NewWriter(&buf)
		folder       = a.policy.PackageName + "/"
		manifestName = a.policy.ManifestName()
	)

	writer.RegisterCompressor(zip.Deflate, newCompressor)

	if err = writer.SetComment(Comment); err != nil {
		return nil, fmt.Errorf("set archive comment: %w", err)
	}

	if err = a.addFolder(writer, folder); err != nil {
		return nil, err
	}

	for _, file := range files {
		if err = ctx.Err(); err != nil {
			return nil, err
		}

		if file.Path == manifestName {
			continue
		}

		if err = a.addFile(writer, folder+file.Path, file.Contents); err != nil {
			return nil, err
		}
	}

	if err = a.addFile(writer, folder+manifestName, manifestContents); err != nil {
		return nil, err
	}

	if err = writer.Close(); err != nil {
		return nil, fmt.Errorf("finalize archive: %w", err)
	}

	return buf.Bytes(), nil
}

// AssembleAsync runs Assemble in its own goroutine.
// The returned channel receives exactly one Result and is then closed.
func (a *Assembler) AssembleAsync(ctx context.Context, files []*asset.Asset, m *manifest.Manifest) <-chan Result {
	results := make(chan Result, 1)

	go func() {
		defer close(results)

		defer func() {
			if r := recover(); r != nil {
				results <- Result{Err: fmt.Errorf("%w: %v", errAssemblyPanicked, r)}
			}
		}()

		data, err := a.Assemble(ctx, files, m)
		results <- Result{Data: data, Err: err}
	}()

	return results
}

// addFolder writes the directory entry for the package folder.
func (a *Assembler) addFolder(writer *zip.Writer, name string) error {
	header := &zip.FileHeader{
		Name:     name,
		Method:   zip.Store,
		Modified: a.modTime,
	}
	header.SetMode(folderMode)

	if _, err := writer.CreateHeader(header); err != nil {
		return fmt.Errorf("create folder %s: %w", name, err)
	}

	return nil
}

// addFile writes one deflated entry. The zip writer streams entry data
// followed by a data descriptor, so sizes are not needed up front.
func (a *Assembler) addFile(writer *zip.Writer, name string, contents []byte) error {
	header := &zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: a.modTime,
	}
	header.SetMode(fileMode)

	entry, err := writer.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("create entry %s: %w", name, err)
	}

	if _, err = entry.Write(contents); err != nil {
		return fmt.Errorf("compress entry %s: %w", name, err)
	}

	return nil
}

// newCompressor returns a deflate writer at the maximum compression level.
func newCompressor(w io.Writer) (io.WriteCloser, error) {
	return flate.NewWriter(w, CompressionLevel)
}
