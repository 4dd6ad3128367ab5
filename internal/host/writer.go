package host

import (
	"bytes"
	"context"
	"crypto"
	"crypto/sha512"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	goupdate "github.com/doitdistributed/go-update"

	"github.com/oshokin/offline-packager/internal/asset"
	"github.com/oshokin/offline-packager/internal/logger"
)

const (
	// DefaultFileMode is the permission of written outputs.
	DefaultFileMode os.FileMode = 0o644
	// DefaultDirMode is the permission of created output directories.
	DefaultDirMode os.FileMode = 0o755

	// checksumFunction verifies the bytes written for every output.
	checksumFunction = crypto.SHA512
)

// errOutputNotFound is returned when asked to write an output that is not in the set.
var errOutputNotFound = errors.New("output not found")

// Writer publishes outputs into a directory. Each file is replaced
// atomically and its checksum verified, so readers never observe a
// partially written archive.
type Writer struct {
	// dir is the output directory.
	dir string
}

// NewWriter creates a writer rooted at dir.
func NewWriter(dir string) *Writer {
	return &Writer{
		dir: filepath.Clean(dir),
	}
}

// WriteOutputs writes the named outputs, or every output when no name is
// given, and returns the written file paths in the same order.
func (w *Writer) WriteOutputs(ctx context.Context, outputs *asset.OutputSet, names ...string) ([]string, error) {
	if len(names) == 0 {
		names = outputs.Paths()
	}

	written := make([]string, 0, len(names))

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		output, ok := outputs.Get(name)
		if !ok {
			return written, fmt.Errorf("%s: %w", name, errOutputNotFound)
		}

		target, err := w.Write(ctx, output)
		if err != nil {
			return written, err
		}

		written = append(written, target)
	}

	return written, nil
}

// Write publishes a single output and returns its file path.
func (w *Writer) Write(ctx context.Context, output *asset.Asset) (string, error) {
	target := filepath.Join(w.dir, filepath.FromSlash(output.Path))

	if err := os.MkdirAll(filepath.Dir(target), DefaultDirMode); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}

	// The target is renamed aside during the swap, so it has to exist.
	if _, err := os.Stat(target); errors.Is(err, os.ErrNotExist) {
		placeholder, err := os.Create(filepath.Clean(target))
		if err != nil {
			return "", fmt.Errorf("create %s: %w", target, err)
		}

		if err = placeholder.Close(); err != nil {
			return "", fmt.Errorf("create %s: %w", target, err)
		}
	} else if err != nil {
		return "", fmt.Errorf("stat %s: %w", target, err)
	}

	checksum := sha512.Sum512(output.Contents)

	options := goupdate.Options{
		TargetPath: target,
		TargetMode: DefaultFileMode,
		Checksum:   checksum[:],
		Hash:       checksumFunction,
	}

	if err := goupdate.Apply(bytes.NewReader(output.Contents), options); err != nil {
		return "", fmt.Errorf("write %s: %w", target, err)
	}

	logger.InfoKV(ctx, "Wrote output", "path", target, "bytes", output.Size())

	return target, nil
}
