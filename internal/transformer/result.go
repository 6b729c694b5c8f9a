package transformer

import (
	"github.com/lodemill/lodemill/internal/asset"
)

// Result describes one asset produced by a Transform or PostProcess call.
// The engine turns each result into a child asset.
type Result struct {
	Type           string
	Code           string
	Bytes          []byte
	Content        *asset.Content
	AST            *asset.AST
	Map            []byte
	Dependencies   []asset.Dependency
	ConnectedFiles []asset.ConnectedFile
	Symbols        map[string]string
	IsIsolated     bool
	SideEffects    *bool
	Meta           map[string]any
}

// ResultFromAsset snapshots a mutated asset back into a result descriptor,
// reading its current content, AST, dependencies, connected files,
// isolation flag, metadata, and type. Transformers that mutate the asset in
// place return this instead of hand-building a Result.
func ResultFromAsset(a *asset.Asset) Result {
	sideEffects := a.SideEffects()
	return Result{
		Type:           a.Type(),
		Content:        a.Content(),
		AST:            a.AST(),
		Map:            a.Map(),
		Dependencies:   a.Dependencies(),
		ConnectedFiles: a.ConnectedFiles(),
		Symbols:        a.Symbols(),
		IsIsolated:     a.IsIsolated(),
		SideEffects:    &sideEffects,
		Meta:           a.Meta(),
	}
}

// ChildSpec converts the result into the asset package's child descriptor.
func (r Result) ChildSpec() asset.ChildSpec {
	content := r.Content
	if content == nil {
		if r.Bytes != nil {
			content = asset.BufferContent(r.Bytes)
		} else {
			content = asset.BufferContent([]byte(r.Code))
		}
	}
	return asset.ChildSpec{
		Type:           r.Type,
		Content:        content,
		AST:            r.AST,
		Map:            r.Map,
		Dependencies:   r.Dependencies,
		ConnectedFiles: r.ConnectedFiles,
		Symbols:        r.Symbols,
		IsIsolated:     r.IsIsolated,
		SideEffects:    r.SideEffects,
		Meta:           r.Meta,
	}
}
