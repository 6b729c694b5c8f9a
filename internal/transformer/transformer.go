// Package transformer defines the contract pipeline stages implement and
// the plugin config model the engine consumes.
//
// A stage is any value implementing Transformer. The remaining capabilities
// (AST reuse, parsing, code generation, post-processing, config loading)
// are optional interfaces discovered by type assertion; a stage implements
// whichever subset it needs.
package transformer

import (
	"context"
	"log/slog"

	"github.com/lodemill/lodemill/internal/asset"
)

// ResolveFunc resolves an import specifier from a source file to a file
// path. Injected by the engine; it defers to the external resolver.
type ResolveFunc func(from, specifier string) (string, error)

// Options is the subset of engine options visible to transformers.
type Options struct {
	ProjectRoot string
	SourceMaps  bool
	Minify      bool
	Hot         bool
	ScopeHoist  bool
}

// Context carries the per-stage call environment: the stage's bound config,
// engine options, a scoped logger, and the injected resolver. Transformers
// must be pure with respect to global state; all I/O goes through the asset
// and the resolver.
type Context struct {
	Config  *PluginConfig
	Options *Options
	Logger  *slog.Logger
	Resolve ResolveFunc
}

// Transformer is the one required capability: rewrite an asset, either by
// mutating it in place (return ResultFromAsset) or by describing one or
// more child assets.
type Transformer interface {
	// Name returns the unique transformer name, e.g. "babel".
	Name() string

	// Transform performs the stage's work.
	Transform(ctx context.Context, a *asset.Asset, tctx *Context) ([]Result, error)
}

// ASTReuser lets a stage accept a predecessor's AST directly instead of
// forcing regeneration to source.
type ASTReuser interface {
	CanReuseAST(ast *asset.AST, opts *Options) bool
}

// Parser produces an AST from the asset's current content.
type Parser interface {
	Parse(ctx context.Context, a *asset.Asset, tctx *Context) (*asset.AST, error)
}

// Generator converts an AST back to source. Any stage that produces an AST
// must also provide Generate; the pipeline fails otherwise.
type Generator interface {
	Generate(ctx context.Context, a *asset.Asset, tctx *Context) (Output, error)
}

// PostProcessor runs a whole-pipeline finalization pass over the
// finalized asset set.
type PostProcessor interface {
	PostProcess(ctx context.Context, assets []*asset.Asset, tctx *Context) ([]Result, error)
}

// ConfigLoader declares the per-file config a stage wants loaded by the
// host before the pipeline runs.
type ConfigLoader interface {
	ConfigRequest() *ConfigRequest
}

// Output is generated code plus its optional source map.
type Output struct {
	Code []byte
	Map  []byte
}
