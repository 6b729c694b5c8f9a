package pipeline

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/lodemill/lodemill/internal/config"
	"github.com/lodemill/lodemill/internal/transformer"
)

// Selector resolves file paths to pipelines using the configured glob map.
// Globs are matched in declaration order; the first match wins. Matching is
// attempted against the full path first, then the base name, so "*.js"
// behaves as users expect for nested paths.
//
// Type-change re-dispatch uses a synthetic path: when an asset's type
// diverges, the next pipeline is selected for the original path's stem plus
// the new type as extension (a.ts producing js selects for a.js). This rule
// decides which pipeline picks up intermediate types.
type Selector struct {
	specs    []config.PipelineSpec
	registry *transformer.Registry
	logger   *slog.Logger

	mu    sync.Mutex
	cache map[string]*Pipeline
}

// NewSelector creates a selector over the given pipeline specs.
func NewSelector(specs []config.PipelineSpec, registry *transformer.Registry, logger *slog.Logger) *Selector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Selector{
		specs:    specs,
		registry: registry,
		logger:   logger.With(slog.String("component", "selector")),
		cache:    make(map[string]*Pipeline),
	}
}

// PipelineFor resolves the pipeline for a file path.
func (s *Selector) PipelineFor(path string) (*Pipeline, error) {
	spec, ok := s.match(path)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoPipeline, path)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.cache[spec.Glob]; ok {
		return p, nil
	}

	stages := make([]Stage, 0, len(spec.Transformers))
	for _, name := range spec.Transformers {
		impl, err := s.registry.New(name)
		if err != nil {
			return nil, fmt.Errorf("building pipeline for %s: %w", spec.Glob, err)
		}
		stages = append(stages, Stage{name: name, impl: impl})
	}

	p := New(spec.Glob, stages, s.logger)
	s.cache[spec.Glob] = p
	return p, nil
}

// NextPath computes the synthetic re-dispatch path for an asset whose type
// changed: the original stem with the new type as extension.
func NextPath(path, newType string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "." + newType
}

// match finds the first spec whose glob matches the path.
func (s *Selector) match(path string) (config.PipelineSpec, bool) {
	for _, spec := range s.specs {
		if ok, err := filepath.Match(spec.Glob, path); err == nil && ok {
			return spec, true
		}
		if ok, err := filepath.Match(spec.Glob, filepath.Base(path)); err == nil && ok {
			return spec, true
		}
	}
	return config.PipelineSpec{}, false
}
