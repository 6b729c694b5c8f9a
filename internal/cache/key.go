// Package cache implements the two-level content-addressed artifact cache:
// a blob store of committed asset bytes keyed by output hash, and an entry
// store of serialized asset sets keyed by a fingerprint over everything
// that could change the output.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"sort"

	"github.com/lodemill/lodemill/internal/asset"
	"github.com/lodemill/lodemill/internal/env"
	"github.com/lodemill/lodemill/internal/transformer"
)

// Key derives the cache key for a set of assets under a set of plugin
// configs, an environment, and the impactful-options hash. The inputs are
// canonicalized before hashing — assets in working-set order, configs
// sorted by package name with sorted dev-deps, environment fields in fixed
// order — so the key is stable across restarts and processes.
func Key(assets []*asset.Asset, configs []*transformer.PluginConfig, e *env.Environment, optionsHash string) string {
	h := sha256.New()

	for _, a := range assets {
		io.WriteString(h, a.FilePath())
		h.Write([]byte{0})
		io.WriteString(h, a.Type())
		h.Write([]byte{0})
		io.WriteString(h, a.ContentHash())
		h.Write([]byte{0})
		for _, cf := range a.ConnectedFiles() {
			io.WriteString(h, cf.FilePath)
			h.Write([]byte{0})
			io.WriteString(h, cf.Hash)
			h.Write([]byte{0})
		}
		h.Write([]byte{1})
	}

	fingerprints := make([]string, 0, len(configs))
	for _, c := range configs {
		fingerprints = append(fingerprints, c.CacheFingerprint())
	}
	sort.Strings(fingerprints)
	for _, fp := range fingerprints {
		io.WriteString(h, fp)
		h.Write([]byte{0})
	}
	h.Write([]byte{1})

	if e != nil {
		h.Write(e.Marshal())
	}
	h.Write([]byte{1})
	io.WriteString(h, optionsHash)

	return hex.EncodeToString(h.Sum(nil))
}
