package packager

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/offline-packager/internal/archive"
	"github.com/oshokin/offline-packager/internal/config"
	"github.com/oshokin/offline-packager/internal/host"
	"github.com/oshokin/offline-packager/internal/manifest"
)

// writeBuild creates a small build directory.
func writeBuild(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	files := map[string]string{
		"a.html":          "<html></html>",
		"b.js":            "console.log('b')",
		"c.js.map":        "{}",
		"static/logo.svg": "<svg/>",
	}

	for name, contents := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), host.DefaultDirMode))
		require.NoError(t, os.WriteFile(path, []byte(contents), host.DefaultFileMode))
	}

	return dir
}

// TestRun_WritesArchive runs the whole workflow with command line overrides only.
func TestRun_WritesArchive(t *testing.T) {
	t.Parallel()

	buildDir := writeBuild(t)
	outDir := filepath.Join(t.TempDir(), "dist")
	metricsFile := filepath.Join(t.TempDir(), "offline.prom")

	var out bytes.Buffer

	err := Run(context.Background(), &Options{
		BuildDir: buildDir,
		Overrides: &config.Config{
			PackageName:      "app",
			PublicPath:       "/cdn/",
			ExcludeFileTypes: []string{"map"},
			OutputDir:        outDir,
		},
		MetricsFile: metricsFile,
		Verify:      true,
		Out:         &out,
	})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(outDir, "package.zip"))
	require.NoError(t, err)

	names, err := archive.List(data)
	require.NoError(t, err)
	require.Equal(t, []string{"app/", "app/a.html", "app/b.js", "app/static/logo.svg", "app/map.json"}, names)

	rawManifest, err := archive.ReadFile(data, "app/map.json")
	require.NoError(t, err)

	m, err := manifest.Decode(rawManifest)
	require.NoError(t, err)
	require.Equal(t, "/cdn/static/logo.svg", m.Items[2].RemoteURL)

	require.Contains(t, out.String(), filepath.Join(outDir, "package.zip"))

	_, err = os.Stat(metricsFile)
	require.NoError(t, err)

	// The run marker is gone.
	_, err = os.Stat(filepath.Join(outDir, host.MarkerFilename))
	require.True(t, os.IsNotExist(err))
}

// TestRun_ConfigFileAndCollision loads settings from a file and checks rerun behaviour in the build directory.
func TestRun_ConfigFileAndCollision(t *testing.T) {
	t.Parallel()

	buildDir := writeBuild(t)
	configPath := filepath.Join(t.TempDir(), "offline-package.yaml")

	require.NoError(t, config.Save(configPath, &config.Config{
		PackageName:      "shop",
		PublicPath:       "https://cdn.example.com/shop/",
		IncludeFileTypes: []string{"html", "js"},
		Format:           "yaml",
		ZipName:          "shop-offline",
	}))

	opts := &Options{
		ConfigPath: configPath,
		BuildDir:   buildDir,
		Verify:     true,
		Out:        new(bytes.Buffer),
	}

	require.NoError(t, Run(context.Background(), opts))

	data, err := os.ReadFile(filepath.Join(buildDir, "shop-offline.zip"))
	require.NoError(t, err)

	names, err := archive.List(data)
	require.NoError(t, err)
	require.Equal(t, []string{"shop/", "shop/a.html", "shop/b.js", "shop/map.json"}, names)

	// The archive from the first run is now a build output with the same name.
	err = Run(context.Background(), opts)
	require.Error(t, err)

	// Overwrite replaces it.
	opts.Overrides = &config.Config{Overwrite: true}
	require.NoError(t, Run(context.Background(), opts))
}

// TestRun_Errors covers missing inputs and invalid settings.
func TestRun_Errors(t *testing.T) {
	t.Parallel()

	err := Run(context.Background(), &Options{})
	require.ErrorIs(t, err, errBuildDirRequired)

	err = Run(context.Background(), &Options{
		BuildDir:  writeBuild(t),
		Overrides: &config.Config{PublicPath: "/cdn/"},
	})
	require.ErrorIs(t, err, manifest.ErrPackageNameRequired)

	err = Run(context.Background(), &Options{
		ConfigPath: filepath.Join(t.TempDir(), "missing.yaml"),
		BuildDir:   writeBuild(t),
	})
	require.Error(t, err)
}

// TestRun_RefusesConcurrentRun asserts a live run marker blocks packaging.
func TestRun_RefusesConcurrentRun(t *testing.T) {
	t.Parallel()

	buildDir := writeBuild(t)
	marker := filepath.Join(buildDir, host.MarkerFilename)
	require.NoError(t, os.WriteFile(marker, []byte(strconv.Itoa(os.Getppid())), host.DefaultFileMode))

	err := Run(context.Background(), &Options{
		BuildDir:  buildDir,
		Overrides: &config.Config{PackageName: "app", PublicPath: "/cdn/"},
		Out:       new(bytes.Buffer),
	})
	require.ErrorIs(t, err, host.ErrAlreadyRunning)
}

// TestVerifyArchive detects an archive that lacks a listed item.
func TestVerifyArchive(t *testing.T) {
	t.Parallel()

	policy := &manifest.Policy{PackageName: "app", PublicPath: "/cdn/"}
	require.NoError(t, manifest.Validate(policy))

	m := &manifest.Manifest{
		Package: "app",
		Items:   []manifest.Entry{{RemoteURL: "/cdn/a.html", Path: "a.html"}},
	}

	// Assemble without the file the manifest lists.
	data, err := archive.NewAssembler(policy).Assemble(context.Background(), nil, m)
	require.NoError(t, err)

	err = verifyArchive(data, policy)
	require.ErrorIs(t, err, errArchiveIncomplete)
}

// TestRun_SkipsEarlierPackages checks an archive from a previous run under another name is not packaged again.
func TestRun_SkipsEarlierPackages(t *testing.T) {
	t.Parallel()

	buildDir := writeBuild(t)
	opts := &Options{
		BuildDir: buildDir,
		Overrides: &config.Config{
			PackageName: "app",
			PublicPath:  "/cdn/",
			ZipName:     "first",
		},
		Verify: true,
		Out:    new(bytes.Buffer),
	}

	require.NoError(t, Run(context.Background(), opts))

	// A plain zip in the build is still a regular output.
	require.NoError(t, os.WriteFile(filepath.Join(buildDir, "bundle.zip"), []byte("zip"), host.DefaultFileMode))

	opts.Overrides.ZipName = "second"
	require.NoError(t, Run(context.Background(), opts))

	data, err := os.ReadFile(filepath.Join(buildDir, "second.zip"))
	require.NoError(t, err)

	names, err := archive.List(data)
	require.NoError(t, err)
	require.NotContains(t, names, "app/first.zip")
	require.Contains(t, names, "app/bundle.zip")
	require.Contains(t, names, "app/a.html")
}
