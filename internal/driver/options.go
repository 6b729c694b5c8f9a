package driver

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/spf13/afero"

	"github.com/lodemill/lodemill/internal/transformer"
)

// Options carries the engine-level settings for a Driver.
type Options struct {
	// InputFS is the filesystem sources are read from.
	InputFS afero.Fs
	// OutputFS is the filesystem the cache persists to.
	OutputFS afero.Fs
	// ProjectRoot is used by generators to compute relative source-map
	// paths and bounds upward config searches.
	ProjectRoot string
	// CacheDir is the artifact cache location on OutputFS.
	CacheDir string
	// Cache false disables all cache reads; writes still occur so
	// downstream consumers reading by key stay consistent.
	Cache bool
	// SourceMaps controls whether generators emit source maps.
	SourceMaps bool

	// The impactful subset: these participate in cache keys and per-asset
	// commit hashes.
	Minify     bool
	Hot        bool
	ScopeHoist bool

	// BufferThreshold is the content-source streaming threshold in bytes.
	BufferThreshold int64
}

// ImpactfulHash returns the stable hash of the option subset that can
// change transformer output. Fields are serialized in fixed order.
func (o *Options) ImpactfulHash() string {
	payload := fmt.Sprintf("minify=%t;hot=%t;scopeHoist=%t", o.Minify, o.Hot, o.ScopeHoist)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:16])
}

// TransformerOptions projects the options subset visible to transformers.
func (o *Options) TransformerOptions() *transformer.Options {
	return &transformer.Options{
		ProjectRoot: o.ProjectRoot,
		SourceMaps:  o.SourceMaps,
		Minify:      o.Minify,
		Hot:         o.Hot,
		ScopeHoist:  o.ScopeHoist,
	}
}
