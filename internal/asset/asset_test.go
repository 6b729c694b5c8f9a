package asset

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lodemill/lodemill/internal/env"
)

// memBlobs is an in-memory BlobStore for tests.
type memBlobs struct {
	blobs map[string][]byte
	puts  int
}

func newMemBlobs() *memBlobs {
	return &memBlobs{blobs: make(map[string][]byte)}
}

func (m *memBlobs) PutBlob(hash string, r io.Reader) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.blobs[hash] = b
	m.puts++
	return nil
}

func newTestAsset(t *testing.T, code string) *Asset {
	t.Helper()
	sum := sha256.Sum256([]byte(code))
	return New(Options{
		IDBase:      "src/index.js",
		FilePath:    "src/index.js",
		Type:        "js",
		Environment: env.New("browser"),
		Content:     BufferContent([]byte(code)),
		ContentHash: hex.EncodeToString(sum[:]),
		SideEffects: true,
		InputFS:     afero.NewMemMapFs(),
	})
}

func TestIDStableAndDistinct(t *testing.T) {
	e := env.New("browser")
	a := New(Options{IDBase: "a.js", Type: "js", Environment: e})
	b := New(Options{IDBase: "a.js", Type: "js", Environment: e})
	assert.Equal(t, a.ID(), b.ID())

	byType := New(Options{IDBase: "a.js", Type: "css", Environment: e})
	assert.NotEqual(t, a.ID(), byType.ID())

	byEnv := New(Options{IDBase: "a.js", Type: "js", Environment: env.New("node")})
	assert.NotEqual(t, a.ID(), byEnv.ID())
}

func TestCodeMaterializesStream(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "f.js", []byte("let x = 1"), 0o644))

	a := newTestAsset(t, "")
	require.NoError(t, a.SetStream(fs, "f.js", 9))

	code, err := a.Code()
	require.NoError(t, err)
	assert.Equal(t, "let x = 1", code)
}

func TestCommitFreezesAsset(t *testing.T) {
	a := newTestAsset(t, "console.log(1)")
	blobs := newMemBlobs()

	require.NoError(t, a.Commit(blobs, "opts"))
	assert.True(t, a.Frozen())
	assert.NotEmpty(t, a.OutputHash())
	assert.Equal(t, []byte("console.log(1)"), blobs.blobs[a.OutputHash()])

	assert.ErrorIs(t, a.SetCode("nope"), ErrAssetFrozen)
	assert.ErrorIs(t, a.SetType("css"), ErrAssetFrozen)
	assert.ErrorIs(t, a.SetAST(&AST{}), ErrAssetFrozen)
	assert.ErrorIs(t, a.AddDependency(Dependency{Specifier: "./x"}), ErrAssetFrozen)
	assert.ErrorIs(t, a.SetMeta("k", 1), ErrAssetFrozen)
	assert.ErrorIs(t, a.SetSideEffects(false), ErrAssetFrozen)
	assert.ErrorIs(t, a.Commit(blobs, "opts"), ErrAssetFrozen)
}

func TestCommitIdempotentBlobKey(t *testing.T) {
	first := newTestAsset(t, "same bytes")
	second := newTestAsset(t, "same bytes")
	blobs := newMemBlobs()

	require.NoError(t, first.Commit(blobs, "opts"))
	require.NoError(t, second.Commit(blobs, "opts"))
	assert.Equal(t, first.OutputHash(), second.OutputHash())

	changed := newTestAsset(t, "different bytes")
	require.NoError(t, changed.Commit(blobs, "opts"))
	assert.NotEqual(t, first.OutputHash(), changed.OutputHash())
}

func TestCommitHashIncludesOptions(t *testing.T) {
	a := newTestAsset(t, "body")
	b := newTestAsset(t, "body")
	blobs := newMemBlobs()

	require.NoError(t, a.Commit(blobs, "minify=true"))
	require.NoError(t, b.Commit(blobs, "minify=false"))
	assert.NotEqual(t, a.OutputHash(), b.OutputHash())
}

func TestCommitRejectsUnconsumedAST(t *testing.T) {
	a := newTestAsset(t, "code")
	require.NoError(t, a.SetAST(&AST{Dialect: "j7", Program: struct{}{}}))

	err := a.Commit(newMemBlobs(), "opts")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AST")
}

func TestNewChildInheritance(t *testing.T) {
	parent := newTestAsset(t, "parent code")
	require.NoError(t, parent.AddDependency(Dependency{Specifier: "./dep"}))
	require.NoError(t, parent.AddConnectedFile(ConnectedFile{FilePath: ".babelrc", Hash: "h1"}))

	child := parent.NewChild(ChildSpec{
		Type:    "css",
		Content: BufferContent([]byte("a{}")),
	})

	assert.NotEqual(t, parent.ID(), child.ID())
	assert.Equal(t, "css", child.Type())
	assert.Same(t, parent.Environment(), child.Environment())
	assert.True(t, child.SideEffects(), "side effects inherited by default")
	require.Len(t, child.Dependencies(), 1)
	require.Len(t, child.ConnectedFiles(), 1)
}

func TestNewChildSideEffectsOverride(t *testing.T) {
	parent := newTestAsset(t, "code")
	off := false

	child := parent.NewChild(ChildSpec{Type: "js", SideEffects: &off})
	assert.False(t, child.SideEffects())
}

func TestAddConnectedFileReplacesByPath(t *testing.T) {
	a := newTestAsset(t, "code")
	require.NoError(t, a.AddConnectedFile(ConnectedFile{FilePath: ".babelrc", Hash: "old"}))
	require.NoError(t, a.AddConnectedFile(ConnectedFile{FilePath: ".babelrc", Hash: "new"}))

	require.Len(t, a.ConnectedFiles(), 1)
	assert.Equal(t, "new", a.ConnectedFiles()[0].Hash)
}

func TestSnapshotRoundTrip(t *testing.T) {
	a := newTestAsset(t, "final code")
	require.NoError(t, a.AddDependency(Dependency{Specifier: "./x", Resolved: "src/x.js"}))
	require.NoError(t, a.SetSymbol("default", "_default"))
	require.NoError(t, a.SetMeta("kind", "entry"))

	blobs := newMemBlobs()
	require.NoError(t, a.Commit(blobs, "opts"))

	snap := a.Snapshot()
	restored := FromSnapshot(snap, BufferContent(blobs.blobs[a.OutputHash()]))

	assert.Equal(t, a.ID(), restored.ID())
	assert.Equal(t, a.Type(), restored.Type())
	assert.Equal(t, a.OutputHash(), restored.OutputHash())
	assert.Equal(t, a.Dependencies(), restored.Dependencies())
	assert.Equal(t, a.Symbols(), restored.Symbols())
	assert.True(t, restored.Frozen())

	code, err := restored.Code()
	require.NoError(t, err)
	assert.Equal(t, "final code", code)
}

func TestGetConfigRegistersConnectedFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "src/.transformrc", []byte(`{"preset":"modern"}`), 0o644))

	a := New(Options{
		IDBase:   "src/index.js",
		FilePath: "src/index.js",
		Type:     "js",
		Environment: env.New("browser"),
		Content:  BufferContent([]byte("code")),
		InputFS:  fs,
	})

	cfg, err := a.GetConfig([]string{".transformrc"}, ConfigOptions{ParseAs: "json"})
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, "src/.transformrc", cfg.FilePath)
	assert.Equal(t, map[string]any{"preset": "modern"}, cfg.Value)

	require.Len(t, a.ConnectedFiles(), 1)
	assert.Equal(t, "src/.transformrc", a.ConnectedFiles()[0].FilePath)
	assert.NotEmpty(t, a.ConnectedFiles()[0].Hash)
}

func TestGetConfigFormats(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "src/tool.yaml", []byte("preset: modern\n"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "src/tool.toml", []byte("preset = \"modern\"\n"), 0o644))

	a := New(Options{
		IDBase: "src/index.js", FilePath: "src/index.js", Type: "js",
		Environment: env.New("browser"), Content: BufferContent(nil), InputFS: fs,
	})

	yamlCfg, err := a.GetConfig([]string{"tool.yaml"}, ConfigOptions{})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"preset": "modern"}, yamlCfg.Value)

	tomlCfg, err := a.GetConfig([]string{"tool.toml"}, ConfigOptions{})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"preset": "modern"}, tomlCfg.Value)
}

func TestGetConfigSearchUp(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "proj/.transformrc", []byte(`{}`), 0o644))

	a := New(Options{
		IDBase: "proj/src/deep/index.js", FilePath: "proj/src/deep/index.js", Type: "js",
		Environment: env.New("browser"), Content: BufferContent(nil), InputFS: fs,
	})

	cfg, err := a.GetConfig([]string{".transformrc"}, ConfigOptions{
		SearchUp:    true,
		ProjectRoot: "proj",
		ParseAs:     "json",
	})
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, "proj/.transformrc", cfg.FilePath)
}

func TestGetConfigMissingReturnsNil(t *testing.T) {
	a := newTestAsset(t, "code")
	cfg, err := a.GetConfig([]string{".nothing"}, ConfigOptions{})
	require.NoError(t, err)
	assert.Nil(t, cfg)
}
