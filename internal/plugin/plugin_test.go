package plugin

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/offline-packager/internal/archive"
	"github.com/oshokin/offline-packager/internal/asset"
	"github.com/oshokin/offline-packager/internal/host"
	"github.com/oshokin/offline-packager/internal/manifest"
)

var errTestSerialize = errors.New("test serialize error")

// recordingHooks captures the registered callback so tests can drive it directly.
type recordingHooks struct {
	// name is the registered plugin name.
	name string
	// fn is the registered callback.
	fn host.EmitFunc
}

// TapEmit stores the callback.
func (h *recordingHooks) TapEmit(name string, fn host.EmitFunc) {
	h.name = name
	h.fn = fn
}

// fakeRecorder counts observations.
type fakeRecorder struct {
	mu       sync.Mutex
	accepted int
	rejected int
	runs     int
	failures int
	size     int
}

func (r *fakeRecorder) ObserveFiles(_ string, accepted, rejected int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.accepted += accepted
	r.rejected += rejected
}

func (r *fakeRecorder) ObserveRun(_ string, size int, _ time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.runs++
	r.size = size

	if err != nil {
		r.failures++
	}
}

// buildOutputs returns the standard three-file build output set.
func buildOutputs(t *testing.T) *asset.OutputSet {
	t.Helper()

	outputs, err := asset.NewOutputSet(
		asset.New("a.html", []byte("<html></html>")),
		asset.New("b.js", []byte("console.log('b')")),
		asset.New("c.js.map", []byte("{}")),
	)
	require.NoError(t, err)

	return outputs
}

// runPlugin applies the plugin to a fresh compiler and emits outputs.
func runPlugin(t *testing.T, p *Plugin, outputs *asset.OutputSet) error {
	t.Helper()

	compiler := host.NewCompiler()
	p.Apply(compiler)

	return compiler.Emit(context.Background(), outputs)
}

// TestNew_RejectsMissingFields checks configuration errors are reported at construction.
func TestNew_RejectsMissingFields(t *testing.T) {
	t.Parallel()

	_, err := New(nil)
	require.Error(t, err)

	_, err = New(&manifest.Policy{PublicPath: "/cdn/"})
	require.ErrorIs(t, err, manifest.ErrPackageNameRequired)

	_, err = New(&manifest.Policy{PackageName: "app"})
	require.ErrorIs(t, err, manifest.ErrPublicPathRequired)

	// Defaults are applied to a copy.
	policy := &manifest.Policy{PackageName: "app", PublicPath: "/cdn/"}

	p, err := New(policy)
	require.NoError(t, err)
	require.Empty(t, policy.ManifestFileName)
	require.Equal(t, manifest.DefaultManifestFileName, p.Policy().ManifestFileName)
}

// TestPlugin_PackagesOutputs runs the exclude scenario end to end.
func TestPlugin_PackagesOutputs(t *testing.T) {
	t.Parallel()

	recorder := new(fakeRecorder)

	p, err := New(&manifest.Policy{
		PackageName:  "app",
		PublicPath:   "/cdn/",
		ExcludeTypes: []string{"map"},
	}, WithRecorder(recorder))
	require.NoError(t, err)

	outputs := buildOutputs(t)
	require.NoError(t, runPlugin(t, p, outputs))

	// The archive is appended after the original outputs.
	require.Equal(t, []string{"a.html", "b.js", "c.js.map", "package.zip"}, outputs.Paths())

	packed, ok := outputs.Get("package.zip")
	require.True(t, ok)

	names, err := archive.List(packed.Contents)
	require.NoError(t, err)
	require.Equal(t, []string{"app/", "app/a.html", "app/b.js", "app/map.json"}, names)

	rawManifest, err := archive.ReadFile(packed.Contents, "app/map.json")
	require.NoError(t, err)

	decoded, err := manifest.Decode(rawManifest)
	require.NoError(t, err)
	require.Equal(t, &manifest.Manifest{
		Package: "app",
		Items: []manifest.Entry{
			{RemoteURL: "/cdn/a.html", Path: "a.html"},
			{RemoteURL: "/cdn/b.js", Path: "b.js"},
		},
	}, decoded)

	require.Equal(t, 2, recorder.accepted)
	require.Equal(t, 1, recorder.rejected)
	require.Equal(t, 1, recorder.runs)
	require.Zero(t, recorder.failures)
	require.Equal(t, packed.Size(), recorder.size)
}

// TestPlugin_IncludeScenario checks the include-only scenario and custom names.
func TestPlugin_IncludeScenario(t *testing.T) {
	t.Parallel()

	p, err := New(&manifest.Policy{
		PackageName:      "app",
		PublicPath:       "/cdn/",
		IncludeTypes:     []string{"html"},
		ArchiveBaseName:  "offline",
		ManifestFileName: "assets.json",
	})
	require.NoError(t, err)

	outputs := buildOutputs(t)
	require.NoError(t, runPlugin(t, p, outputs))

	packed, ok := outputs.Get("offline.zip")
	require.True(t, ok)

	names, err := archive.List(packed.Contents)
	require.NoError(t, err)
	require.Equal(t, []string{"app/", "app/a.html", "app/assets.json"}, names)
}

// TestPlugin_EmptyOutputs checks an empty build still yields an archive with the manifest.
func TestPlugin_EmptyOutputs(t *testing.T) {
	t.Parallel()

	p, err := New(&manifest.Policy{PackageName: "app", PublicPath: "/cdn/"})
	require.NoError(t, err)

	outputs, err := asset.NewOutputSet()
	require.NoError(t, err)
	require.NoError(t, runPlugin(t, p, outputs))

	packed, ok := outputs.Get("package.zip")
	require.True(t, ok)

	rawManifest, err := archive.ReadFile(packed.Contents, "app/map.json")
	require.NoError(t, err)
	require.JSONEq(t, `{"package":"app","items":[]}`, string(rawManifest))
}

// TestPlugin_CollisionFails asserts an existing output with the archive name fails the run by default.
func TestPlugin_CollisionFails(t *testing.T) {
	t.Parallel()

	recorder := new(fakeRecorder)

	p, err := New(&manifest.Policy{PackageName: "app", PublicPath: "/cdn/"}, WithRecorder(recorder))
	require.NoError(t, err)

	outputs := buildOutputs(t)
	require.NoError(t, outputs.Add(asset.New("package.zip", []byte("stale"))))

	err = runPlugin(t, p, outputs)
	require.ErrorIs(t, err, asset.ErrOutputExists)

	stale, ok := outputs.Get("package.zip")
	require.True(t, ok)
	require.Equal(t, "stale", string(stale.Contents))
	require.Equal(t, 1, recorder.failures)
}

// TestPlugin_CollisionOverwrite checks the opt-in overwrite replaces the old archive without packaging it.
func TestPlugin_CollisionOverwrite(t *testing.T) {
	t.Parallel()

	p, err := New(&manifest.Policy{PackageName: "app", PublicPath: "/cdn/", Overwrite: true})
	require.NoError(t, err)

	outputs := buildOutputs(t)
	require.NoError(t, outputs.Add(asset.New("package.zip", []byte("stale"))))
	require.NoError(t, runPlugin(t, p, outputs))

	packed, ok := outputs.Get("package.zip")
	require.True(t, ok)
	require.NotEqual(t, "stale", string(packed.Contents))

	names, err := archive.List(packed.Contents)
	require.NoError(t, err)
	require.NotContains(t, names, "app/package.zip")
	require.Contains(t, names, "app/c.js.map")
	require.Equal(t, []string{"a.html", "b.js", "c.js.map", "package.zip"}, outputs.Paths())
}

// TestPlugin_SerializeFailure asserts encoding failures reach the host and no archive is registered.
func TestPlugin_SerializeFailure(t *testing.T) {
	t.Parallel()

	p, err := New(&manifest.Policy{
		PackageName: "app",
		PublicPath:  "/cdn/",
		Serialize: func(*manifest.Manifest) ([]byte, error) {
			return nil, errTestSerialize
		},
	})
	require.NoError(t, err)

	outputs := buildOutputs(t)

	err = runPlugin(t, p, outputs)
	require.ErrorIs(t, err, errTestSerialize)
	require.False(t, outputs.Has("package.zip"))
}

// TestPlugin_SignalsCompletionOnce drives the callback directly and counts completion signals.
func TestPlugin_SignalsCompletionOnce(t *testing.T) {
	t.Parallel()

	for _, policy := range []*manifest.Policy{
		{PackageName: "app", PublicPath: "/cdn/"},
		{
			PackageName: "app",
			PublicPath:  "/cdn/",
			Serialize: func(*manifest.Manifest) ([]byte, error) {
				return nil, errTestSerialize
			},
		},
	} {
		p, err := New(policy)
		require.NoError(t, err)

		hooks := new(recordingHooks)
		p.Apply(hooks)
		require.Equal(t, Name, hooks.name)

		var (
			mu    sync.Mutex
			calls int
			first = make(chan struct{})
		)

		hooks.fn(context.Background(), buildOutputs(t), func(error) {
			mu.Lock()
			defer mu.Unlock()

			calls++
			if calls == 1 {
				close(first)
			}
		})

		<-first

		// Give a hypothetical second signal time to arrive.
		time.Sleep(20 * time.Millisecond)

		mu.Lock()
		require.Equal(t, 1, calls)
		mu.Unlock()
	}
}

// TestPlugin_DeterministicArchive verifies two runs over identical outputs produce identical archives.
func TestPlugin_DeterministicArchive(t *testing.T) {
	t.Parallel()

	p, err := New(&manifest.Policy{PackageName: "app", PublicPath: "/cdn/"})
	require.NoError(t, err)

	first := buildOutputs(t)
	second := buildOutputs(t)

	require.NoError(t, runPlugin(t, p, first))
	require.NoError(t, runPlugin(t, p, second))

	a, _ := first.Get("package.zip")
	b, _ := second.Get("package.zip")
	require.Equal(t, a.Contents, b.Contents)
}

// TestPlugin_ManifestPathCollision checks a build output named like the manifest yields a single manifest entry.
func TestPlugin_ManifestPathCollision(t *testing.T) {
	t.Parallel()

	recorder := new(fakeRecorder)

	p, err := New(&manifest.Policy{PackageName: "app", PublicPath: "/cdn/"}, WithRecorder(recorder))
	require.NoError(t, err)

	outputs, err := asset.NewOutputSet(
		asset.New("a.html", []byte("<html></html>")),
		asset.New("map.json", []byte(`{"not":"the manifest"}`)),
	)
	require.NoError(t, err)
	require.NoError(t, runPlugin(t, p, outputs))

	packed, ok := outputs.Get("package.zip")
	require.True(t, ok)

	names, err := archive.List(packed.Contents)
	require.NoError(t, err)
	require.Equal(t, []string{"app/", "app/a.html", "app/map.json"}, names)

	rawManifest, err := archive.ReadFile(packed.Contents, "app/map.json")
	require.NoError(t, err)

	decoded, err := manifest.Decode(rawManifest)
	require.NoError(t, err)
	require.Equal(t, []manifest.Entry{{RemoteURL: "/cdn/a.html", Path: "a.html"}}, decoded.Items)

	require.Equal(t, 1, recorder.accepted)
	require.Equal(t, 1, recorder.rejected)
}
