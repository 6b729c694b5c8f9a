// Package builtin registers the transformers that ship with the engine.
// Real processing stages (compilers, CSS processors) are plugins; the
// built-in set covers pass-through handling so any file can flow through a
// pipeline unmodified.
package builtin

import (
	"context"

	"github.com/lodemill/lodemill/internal/asset"
	"github.com/lodemill/lodemill/internal/transformer"
)

// Raw passes an asset through unchanged.
type Raw struct{}

// Name implements transformer.Transformer.
func (Raw) Name() string { return "raw" }

// Transform implements transformer.Transformer.
func (Raw) Transform(_ context.Context, a *asset.Asset, _ *transformer.Context) ([]transformer.Result, error) {
	return []transformer.Result{transformer.ResultFromAsset(a)}, nil
}

func init() {
	transformer.Register("raw", func() transformer.Transformer { return Raw{} })
}
