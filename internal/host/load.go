package host

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gobwas/glob"

	"github.com/oshokin/offline-packager/internal/asset"
	"github.com/oshokin/offline-packager/internal/logger"
)

// LoadDir reads every regular file below dir into an output set keyed by
// its slash-separated relative path. Files are visited in lexical order,
// so the resulting order is reproducible. Paths matching any ignore glob
// are skipped; "*" stays within one path segment and "**" spans segments.
// Run markers are never loaded.
func LoadDir(ctx context.Context, dir string, ignore []string) (*asset.OutputSet, error) {
	matchers, err := compileGlobs(ignore)
	if err != nil {
		return nil, err
	}

	outputs, err := asset.NewOutputSet()
	if err != nil {
		return nil, err
	}

	walkErr := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if err = ctx.Err(); err != nil {
			return err
		}

		if entry.IsDir() || entry.Name() == MarkerFilename {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return fmt.Errorf("relative path of %s: %w", path, err)
		}

		rel = filepath.ToSlash(rel)

		if matchesAny(matchers, rel) {
			logger.DebugKV(ctx, "Skipping ignored output", "path", rel)
			return nil
		}

		contents, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return fmt.Errorf("read output: %w", err)
		}

		return outputs.Add(asset.New(rel, contents))
	})
	if walkErr != nil {
		return nil, fmt.Errorf("load build directory %s: %w", dir, walkErr)
	}

	logger.InfoKV(ctx, "Loaded build outputs", "dir", dir, "count", outputs.Len())

	return outputs, nil
}

// compileGlobs compiles ignore patterns with "/" as the segment separator.
func compileGlobs(patterns []string) ([]glob.Glob, error) {
	matchers := make([]glob.Glob, 0, len(patterns))

	for _, pattern := range patterns {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid ignore pattern %q: %w", pattern, err)
		}

		matchers = append(matchers, g)
	}

	return matchers, nil
}

func matchesAny(matchers []glob.Glob, path string) bool {
	for _, m := range matchers {
		if m.Match(path) {
			return true
		}
	}

	return false
}
