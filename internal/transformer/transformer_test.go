package transformer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lodemill/lodemill/internal/asset"
	"github.com/lodemill/lodemill/internal/env"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register("noop", func() Transformer { return nil })

	_, err := r.New("noop")
	require.NoError(t, err)

	_, err = r.New("missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")

	assert.Panics(t, func() {
		r.Register("noop", func() Transformer { return nil })
	})
}

func TestCacheFingerprintSortsDevDeps(t *testing.T) {
	a := &PluginConfig{
		PackageName: "babel",
		ResultHash:  "abc",
		DevDeps: []DevDep{
			{Package: "preset-env", Version: "7.0.0"},
			{Package: "core", Version: "7.1.0"},
		},
	}
	b := &PluginConfig{
		PackageName: "babel",
		ResultHash:  "abc",
		DevDeps: []DevDep{
			{Package: "core", Version: "7.1.0"},
			{Package: "preset-env", Version: "7.0.0"},
		},
	}

	assert.Equal(t, a.CacheFingerprint(), b.CacheFingerprint())

	c := &PluginConfig{PackageName: "babel", ResultHash: "other"}
	assert.NotEqual(t, a.CacheFingerprint(), c.CacheFingerprint())
}

func TestResultFromAssetSnapshotsState(t *testing.T) {
	a := asset.New(asset.Options{
		IDBase:      "a.js",
		FilePath:    "a.js",
		Type:        "js",
		Environment: env.New("browser"),
		Content:     asset.BufferContent([]byte("code")),
	})
	require.NoError(t, a.AddDependency(asset.Dependency{Specifier: "./dep"}))
	require.NoError(t, a.SetMeta("k", "v"))
	require.NoError(t, a.SetSideEffects(false))

	r := ResultFromAsset(a)

	assert.Equal(t, "js", r.Type)
	assert.Same(t, a.Content(), r.Content)
	require.Len(t, r.Dependencies, 1)
	assert.Equal(t, "v", r.Meta["k"])
	require.NotNil(t, r.SideEffects)
	assert.False(t, *r.SideEffects)
}

func TestResultChildSpecContentPrecedence(t *testing.T) {
	explicit := asset.BufferContent([]byte("explicit"))

	spec := Result{Type: "js", Content: explicit, Code: "ignored"}.ChildSpec()
	assert.Same(t, explicit, spec.Content)

	spec = Result{Type: "js", Bytes: []byte("bytes")}.ChildSpec()
	b, err := spec.Content.Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte("bytes"), b)

	spec = Result{Type: "js", Code: "code"}.ChildSpec()
	b, err = spec.Content.Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte("code"), b)
}
