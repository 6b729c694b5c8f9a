// Package asset owns the mutable state of a single asset flowing through a
// transformation pipeline: identity, type tag, content, optional AST,
// environment, discovered dependencies, connected files, symbols, and
// metadata.
//
// An Asset is not safe for concurrent use. Each transformation request runs
// on a single task and no intra-request locking is performed.
package asset

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/afero"

	"github.com/lodemill/lodemill/internal/env"
)

// ErrAssetFrozen is returned by every mutator after Commit. Mutating a
// committed asset is a programmer error.
var ErrAssetFrozen = errors.New("asset is frozen after commit")

// AST is a parsed representation of an asset's content, tagged with the
// dialect and dialect version so stages can decide compatibility. The tree
// is exclusively owned by the asset; a transformer receiving the asset may
// mutate it in place.
type AST struct {
	Dialect        string `json:"dialect"`
	DialectVersion string `json:"dialectVersion"`
	Program        any    `json:"-"`
}

// Dependency is one import discovered by a transformer, in discovery order.
type Dependency struct {
	Specifier     string         `json:"specifier"`
	SpecifierType string         `json:"specifierType,omitempty"`
	Resolved      string         `json:"resolved,omitempty"`
	IsOptional    bool           `json:"isOptional,omitempty"`
	Meta          map[string]any `json:"meta,omitempty"`
}

// ConnectedFile is an ancillary file whose contents influence the asset,
// e.g. a .babelrc read by a transformer. Each carries its own hash.
type ConnectedFile struct {
	FilePath string `json:"filePath"`
	Hash     string `json:"hash"`
}

// Stats records timing and size for a finalized asset.
type Stats struct {
	Time time.Duration `json:"time"`
	Size int64         `json:"size"`
}

// BlobStore is the byte store committed asset contents land in, keyed by
// output hash. Implemented by the artifact cache.
type BlobStore interface {
	PutBlob(hash string, r io.Reader) error
}

// Asset is the mutable per-asset record. The engine hands the same record to
// transformers for in-place mutation; Commit freezes it.
type Asset struct {
	id       string
	idBase   string
	filePath string
	typ      string

	content     *Content
	contentHash string
	mapBytes    []byte
	ast         *AST

	environment *Environment
	deps        []Dependency
	connected   []ConnectedFile
	symbols     map[string]string

	sideEffects bool
	isIsolated  bool
	meta        map[string]any
	stats       Stats

	outputHash string
	frozen     bool

	// inputFS serves GetConfig lookups and stream re-opens.
	inputFS afero.Fs
}

// Environment is aliased here so asset consumers rarely need to import the
// env package directly.
type Environment = env.Environment

// Options configures a new Asset.
type Options struct {
	IDBase      string
	FilePath    string
	Type        string
	Environment *Environment
	Content     *Content
	ContentHash string
	SideEffects bool
	InputFS     afero.Fs
}

// New constructs an asset. The id derives from (idBase, type, environment)
// and never changes afterwards.
func New(opts Options) *Asset {
	return &Asset{
		id:          computeID(opts.IDBase, opts.Type, opts.Environment),
		idBase:      opts.IDBase,
		filePath:    opts.FilePath,
		typ:         opts.Type,
		content:     opts.Content,
		contentHash: opts.ContentHash,
		environment: opts.Environment,
		symbols:     make(map[string]string),
		meta:        make(map[string]any),
		sideEffects: opts.SideEffects,
		inputFS:     opts.InputFS,
	}
}

func computeID(idBase, typ string, e *Environment) string {
	h := sha256.New()
	io.WriteString(h, idBase)
	h.Write([]byte{0})
	io.WriteString(h, typ)
	h.Write([]byte{0})
	if e != nil {
		io.WriteString(h, e.ID())
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// ID returns the stable asset identifier.
func (a *Asset) ID() string { return a.id }

// FilePath returns the source path the asset originated from.
func (a *Asset) FilePath() string { return a.filePath }

// Type returns the short tag naming the current content format.
func (a *Asset) Type() string { return a.typ }

// SetType retags the asset's content format. A type change ends the asset's
// participation in its current pipeline.
func (a *Asset) SetType(t string) error {
	if a.frozen {
		return ErrAssetFrozen
	}
	a.typ = t
	return nil
}

// Environment returns the shared environment reference.
func (a *Asset) Environment() *Environment { return a.environment }

// ContentHash returns the hash of the asset's input content, computed at
// load time.
func (a *Asset) ContentHash() string { return a.contentHash }

// OutputHash returns the commit-time hash, empty before Commit.
func (a *Asset) OutputHash() string { return a.outputHash }

// Frozen reports whether Commit has run.
func (a *Asset) Frozen() bool { return a.frozen }

// Content returns the backing content union.
func (a *Asset) Content() *Content { return a.content }

// Bytes materializes the asset content as bytes, buffering a stream if
// needed.
func (a *Asset) Bytes() ([]byte, error) {
	if a.content == nil {
		return nil, nil
	}
	return a.content.Bytes()
}

// Code materializes the asset content as a UTF-8 string.
func (a *Asset) Code() (string, error) {
	b, err := a.Bytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Reader returns a reader over the asset content.
func (a *Asset) Reader() (io.ReadCloser, error) {
	if a.content == nil {
		return nil, fmt.Errorf("asset %s has no content", a.id)
	}
	return a.content.Reader()
}

// Map returns the asset's source map bytes, if any.
func (a *Asset) Map() []byte { return a.mapBytes }

// SetCode replaces the content with an in-memory string.
func (a *Asset) SetCode(code string) error {
	return a.SetBytes([]byte(code))
}

// SetBytes replaces the content with an in-memory buffer.
func (a *Asset) SetBytes(b []byte) error {
	if a.frozen {
		return ErrAssetFrozen
	}
	a.content = BufferContent(b)
	return nil
}

// SetStream replaces the content with a re-openable stream handle.
func (a *Asset) SetStream(fs afero.Fs, path string, size int64) error {
	if a.frozen {
		return ErrAssetFrozen
	}
	a.content = StreamContent(fs, path, size)
	return nil
}

// SetMap replaces the asset's source map.
func (a *Asset) SetMap(m []byte) error {
	if a.frozen {
		return ErrAssetFrozen
	}
	a.mapBytes = m
	return nil
}

// AST returns the asset's parsed tree, nil if none. While an AST is present
// the content is considered stale until a generator emits fresh code.
func (a *Asset) AST() *AST { return a.ast }

// SetAST stores a parsed tree on the asset.
func (a *Asset) SetAST(ast *AST) error {
	if a.frozen {
		return ErrAssetFrozen
	}
	a.ast = ast
	return nil
}

// ClearAST drops the parsed tree.
func (a *Asset) ClearAST() error {
	if a.frozen {
		return ErrAssetFrozen
	}
	a.ast = nil
	return nil
}

// Dependencies returns the dependencies discovered so far, in order.
func (a *Asset) Dependencies() []Dependency { return a.deps }

// AddDependency records a dependency discovered by a transformer.
func (a *Asset) AddDependency(dep Dependency) error {
	if a.frozen {
		return ErrAssetFrozen
	}
	a.deps = append(a.deps, dep)
	return nil
}

// ConnectedFiles returns the ancillary files influencing this asset.
func (a *Asset) ConnectedFiles() []ConnectedFile { return a.connected }

// AddConnectedFile registers an ancillary file. Re-registering a path
// replaces its hash.
func (a *Asset) AddConnectedFile(cf ConnectedFile) error {
	if a.frozen {
		return ErrAssetFrozen
	}
	for i, existing := range a.connected {
		if existing.FilePath == cf.FilePath {
			a.connected[i] = cf
			return nil
		}
	}
	a.connected = append(a.connected, cf)
	return nil
}

// Symbols maps exported symbol names to local names.
func (a *Asset) Symbols() map[string]string { return a.symbols }

// SetSymbol records an exported symbol mapping.
func (a *Asset) SetSymbol(exported, local string) error {
	if a.frozen {
		return ErrAssetFrozen
	}
	a.symbols[exported] = local
	return nil
}

// SideEffects reports whether the asset has side effects.
func (a *Asset) SideEffects() bool { return a.sideEffects }

// SetSideEffects overrides the inherited side-effects flag.
func (a *Asset) SetSideEffects(v bool) error {
	if a.frozen {
		return ErrAssetFrozen
	}
	a.sideEffects = v
	return nil
}

// IsIsolated reports whether the asset must not share a scope with siblings.
func (a *Asset) IsIsolated() bool { return a.isIsolated }

// SetIsolated marks the asset isolated.
func (a *Asset) SetIsolated(v bool) error {
	if a.frozen {
		return ErrAssetFrozen
	}
	a.isIsolated = v
	return nil
}

// Meta returns the free-form metadata consumed by downstream stages.
func (a *Asset) Meta() map[string]any { return a.meta }

// SetMeta stores a metadata value.
func (a *Asset) SetMeta(key string, value any) error {
	if a.frozen {
		return ErrAssetFrozen
	}
	a.meta[key] = value
	return nil
}

// Stats returns timing and size statistics.
func (a *Asset) Stats() Stats { return a.stats }

// RecordStats sets the asset's statistics.
func (a *Asset) RecordStats(s Stats) {
	a.stats = s
}

// Commit finalizes the asset: the output hash is computed over the final
// bytes plus the impactful-options hash, the bytes land in the blob store
// under that hash, and the record freezes. Commit is the only cache write
// point for asset bytes and is atomic per asset.
func (a *Asset) Commit(blobs BlobStore, optionsHash string) error {
	if a.frozen {
		return ErrAssetFrozen
	}
	if a.ast != nil {
		return fmt.Errorf("asset %s: cannot commit with an unconsumed AST", a.id)
	}

	hash, err := a.hashOutput(optionsHash)
	if err != nil {
		return err
	}

	r, err := a.Reader()
	if err != nil {
		return err
	}
	defer r.Close()
	if err := blobs.PutBlob(hash, r); err != nil {
		return err
	}

	a.outputHash = hash
	if a.content != nil {
		a.stats.Size = a.content.Size()
	}
	a.frozen = true
	return nil
}

// hashOutput computes hash(final bytes ++ optionsHash) without materializing
// stream-backed content.
func (a *Asset) hashOutput(optionsHash string) (string, error) {
	h := sha256.New()
	if a.content != nil {
		r, err := a.content.Reader()
		if err != nil {
			return "", err
		}
		_, copyErr := io.Copy(h, r)
		r.Close()
		if copyErr != nil {
			return "", &ContentReadError{Path: a.filePath, Err: copyErr}
		}
	}
	io.WriteString(h, optionsHash)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Snapshot captures the serializable state of a committed asset for the
// artifact cache.
type Snapshot struct {
	ID          string            `json:"id"`
	IDBase      string            `json:"idBase"`
	FilePath    string            `json:"filePath"`
	Type        string            `json:"type"`
	ContentHash string            `json:"contentHash"`
	OutputHash  string            `json:"outputHash"`
	Map         []byte            `json:"map,omitempty"`
	Deps        []Dependency      `json:"dependencies,omitempty"`
	Connected   []ConnectedFile   `json:"connectedFiles,omitempty"`
	Symbols     map[string]string `json:"symbols,omitempty"`
	SideEffects bool              `json:"sideEffects"`
	IsIsolated  bool              `json:"isIsolated,omitempty"`
	Meta        map[string]any    `json:"meta,omitempty"`
	Stats       Stats             `json:"stats"`
	Environment *Environment      `json:"environment"`
	Size        int64             `json:"size"`
}

// Snapshot serializes the asset's committed state.
func (a *Asset) Snapshot() *Snapshot {
	var size int64
	if a.content != nil {
		size = a.content.Size()
	}
	return &Snapshot{
		ID:          a.id,
		IDBase:      a.idBase,
		FilePath:    a.filePath,
		Type:        a.typ,
		ContentHash: a.contentHash,
		OutputHash:  a.outputHash,
		Map:         a.mapBytes,
		Deps:        a.deps,
		Connected:   a.connected,
		Symbols:     a.symbols,
		SideEffects: a.sideEffects,
		IsIsolated:  a.isIsolated,
		Meta:        a.meta,
		Stats:       a.stats,
		Environment: a.environment,
		Size:        size,
	}
}

// FromSnapshot rebuilds a frozen asset from its cached snapshot. Content is
// attached separately by the caller once the blob is materialized.
func FromSnapshot(s *Snapshot, content *Content) *Asset {
	a := &Asset{
		id:          s.ID,
		idBase:      s.IDBase,
		filePath:    s.FilePath,
		typ:         s.Type,
		content:     content,
		contentHash: s.ContentHash,
		mapBytes:    s.Map,
		environment: s.Environment,
		deps:        s.Deps,
		connected:   s.Connected,
		symbols:     s.Symbols,
		sideEffects: s.SideEffects,
		isIsolated:  s.IsIsolated,
		meta:        s.Meta,
		stats:       s.Stats,
		outputHash:  s.OutputHash,
		frozen:      true,
	}
	if a.symbols == nil {
		a.symbols = make(map[string]string)
	}
	if a.meta == nil {
		a.meta = make(map[string]any)
	}
	return a
}
