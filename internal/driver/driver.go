// Package driver implements the top-level transformation orchestrator: it
// loads the asset, selects the pipeline for its path, runs it, re-selects
// pipelines when output types change, runs postprocessing, and mediates all
// cache reads and writes.
package driver

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/lodemill/lodemill/internal/asset"
	"github.com/lodemill/lodemill/internal/cache"
	"github.com/lodemill/lodemill/internal/env"
	"github.com/lodemill/lodemill/internal/pipeline"
	"github.com/lodemill/lodemill/internal/transformer"
)

// Request describes one transformation: a source file, or an inline code
// blob whose identity derives from its hash.
type Request struct {
	FilePath    string
	InlineCode  []byte
	Environment *env.Environment
	SideEffects bool
}

// LoadConfigFunc is the host callback loading a plugin's per-file config,
// rehydrating from cache or reloading from disk per the config's marker.
// It must be safe for concurrent use across requests.
type LoadConfigFunc func(ctx context.Context, req *transformer.ConfigRequest) (*transformer.PluginConfig, error)

// Result is the outcome of a transformation request. Every asset is
// committed: its final bytes are in the blob cache under its output hash.
type Result struct {
	Assets []*asset.Asset
	// ConfigRequests lists every config load the request triggered, for
	// dependency tracking by the outer graph.
	ConfigRequests []*transformer.ConfigRequest
}

// Driver orchestrates transformation requests. Instances share only the
// cache, the filesystems, and the config-load callback, all of which must
// be internally thread-safe; everything per-request lives on the stack of a
// single cooperative task.
type Driver struct {
	opts       *Options
	selector   *pipeline.Selector
	cache      *cache.ArtifactCache
	source     *asset.Source
	loadConfig LoadConfigFunc
	resolve    transformer.ResolveFunc
	logger     *slog.Logger
}

// New creates a Driver.
func New(opts *Options, selector *pipeline.Selector, artifacts *cache.ArtifactCache, loadConfig LoadConfigFunc, resolve transformer.ResolveFunc, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{
		opts:       opts,
		selector:   selector,
		cache:      artifacts,
		source:     asset.NewSource(opts.InputFS, opts.BufferThreshold),
		loadConfig: loadConfig,
		resolve:    resolve,
		logger:     logger.With(slog.String("component", "driver")),
	}
}

// requestState accumulates cross-pipeline bookkeeping for one request.
type requestState struct {
	cacheable      bool
	configRequests []*transformer.ConfigRequest
}

// Transform runs one request to completion. The request either yields a
// full committed asset set or fails whole; errors are wrapped with request
// context and no partial set is returned.
func (d *Driver) Transform(ctx context.Context, req *Request) (*Result, error) {
	start := time.Now()
	logger := d.logger.With(
		slog.String("request_id", ulid.Make().String()),
		slog.String("file_path", req.FilePath),
	)

	initial, err := d.loadInitial(req)
	if err != nil {
		return nil, fmt.Errorf("transforming %s: %w", req.FilePath, err)
	}

	state := &requestState{
		// Inline code bypasses cache reads; writes still occur.
		cacheable: d.opts.Cache && req.InlineCode == nil,
	}

	logger.InfoContext(ctx, "starting transformation",
		slog.String("type", initial.Type()),
		slog.Int64("size", initial.Content().Size()),
		slog.Bool("cacheable", state.cacheable),
	)

	assets, err := d.runPipeline(ctx, req.FilePath, initial, state, logger)
	if err != nil {
		return nil, fmt.Errorf("transforming %s: %w", req.FilePath, err)
	}

	for _, a := range assets {
		a.RecordStats(asset.Stats{Time: time.Since(start), Size: a.Content().Size()})
	}

	logger.InfoContext(ctx, "transformation complete",
		slog.Int("asset_count", len(assets)),
		slog.Int("config_requests", len(state.configRequests)),
		slog.Duration("duration", time.Since(start)),
	)

	return &Result{Assets: assets, ConfigRequests: state.configRequests}, nil
}

// loadInitial resolves the request to its initial asset via the content
// source.
func (d *Driver) loadInitial(req *Request) (*asset.Asset, error) {
	environment := req.Environment
	if environment == nil {
		environment = env.New("")
	}

	var (
		content *asset.Content
		hash    string
		idBase  string
		err     error
	)
	if req.InlineCode != nil {
		content, hash = d.source.LoadInline(req.InlineCode)
		idBase = hash
	} else {
		content, hash, err = d.source.LoadFile(req.FilePath)
		if err != nil {
			return nil, err
		}
		idBase = req.FilePath
	}

	return asset.New(asset.Options{
		IDBase:      idBase,
		FilePath:    req.FilePath,
		Type:        typeFromPath(req.FilePath),
		Environment: environment,
		Content:     content,
		ContentHash: hash,
		SideEffects: req.SideEffects,
		InputFS:     d.opts.InputFS,
	}), nil
}

// typeFromPath derives the initial type tag from the file extension.
func typeFromPath(path string) string {
	return strings.TrimPrefix(filepath.Ext(path), ".")
}

// runPipeline transforms one asset through the pipeline selected for path,
// recursing for results whose type moved to a different pipeline. Returned
// assets are committed.
func (d *Driver) runPipeline(ctx context.Context, path string, initial *asset.Asset, state *requestState, logger *slog.Logger) ([]*asset.Asset, error) {
	pipe, err := d.selector.PipelineFor(path)
	if err != nil {
		return nil, err
	}

	configs, configList, err := d.loadStageConfigs(ctx, pipe, path, state)
	if err != nil {
		return nil, err
	}

	// The impactful-options hash is derived per pipeline invocation, not
	// captured at driver construction, so distinct pipelines may carry
	// distinct option sensitivity.
	optionsHash := d.opts.ImpactfulHash()
	key := cache.Key([]*asset.Asset{initial}, configList, initial.Environment(), optionsHash)
	run := pipe.NewRun(d.opts.TransformerOptions(), d.resolve, configs)

	var finalAssets []*asset.Asset
	if state.cacheable {
		if cached, ok := d.lookupEntry(key, logger); ok {
			logger.DebugContext(ctx, "pipeline cache hit",
				slog.String("pipeline", pipe.ID()),
				slog.String("key", key),
			)
			finalAssets = cached
		}
	}

	if finalAssets == nil {
		results, err := pipe.Transform(ctx, run, initial)
		if err != nil {
			return nil, err
		}

		finalAssets = make([]*asset.Asset, 0, len(results))
		for _, a := range results {
			if a.Type() == initial.Type() {
				finalAssets = append(finalAssets, a)
				continue
			}

			nextPath := pipeline.NextPath(path, a.Type())
			nextPipe, err := d.selector.PipelineFor(nextPath)
			if err != nil {
				// No pipeline claims the new type: the asset is final as-is.
				finalAssets = append(finalAssets, a)
				continue
			}
			if nextPipe.ID() == pipe.ID() {
				// Identical pipeline would re-run the same stages; the
				// asset is already final.
				finalAssets = append(finalAssets, a)
				continue
			}

			logger.DebugContext(ctx, "type changed, re-dispatching",
				slog.String("from", initial.Type()),
				slog.String("to", a.Type()),
				slog.String("next_path", nextPath),
			)
			dispatched, err := d.runPipeline(ctx, nextPath, a, state, logger)
			if err != nil {
				return nil, err
			}
			finalAssets = append(finalAssets, dispatched...)
		}

		if err := d.commitAll(finalAssets, optionsHash); err != nil {
			return nil, err
		}
		// The assets are committed by now; a failed entry write only
		// costs a future cache hit.
		if err := d.writeEntry(key, finalAssets); err != nil {
			logger.WarnContext(ctx, "cache entry write failed", slog.String("key", key), slog.String("error", err.Error()))
		}
	}

	// Postprocessing is keyed over the finalized asset set and receives
	// that same set. It applies on the cache-hit path too: the first level
	// stores the pre-postprocess set.
	if pipe.HasPostProcessor() {
		// The level salt keeps this key distinct from the pre-pipeline key
		// even when children inherit their parent's content hash.
		ppKey := cache.Key(finalAssets, configList, initial.Environment(), optionsHash+":postprocess")
		if state.cacheable {
			if cached, ok := d.lookupEntry(ppKey, logger); ok {
				logger.DebugContext(ctx, "postprocess cache hit", slog.String("key", ppKey))
				return cached, nil
			}
		}
		processed, err := pipe.PostProcess(ctx, run, finalAssets)
		if err != nil {
			return nil, err
		}
		if err := d.commitAll(processed, optionsHash); err != nil {
			return nil, err
		}
		if err := d.writeEntry(ppKey, processed); err != nil {
			logger.WarnContext(ctx, "cache entry write failed", slog.String("key", ppKey), slog.String("error", err.Error()))
		}
		return processed, nil
	}

	return finalAssets, nil
}

// loadStageConfigs loads the per-file config of every stage declaring one,
// binding them by transformer name and recording each request.
func (d *Driver) loadStageConfigs(ctx context.Context, pipe *pipeline.Pipeline, path string, state *requestState) (map[string]*transformer.PluginConfig, []*transformer.PluginConfig, error) {
	configs := make(map[string]*transformer.PluginConfig)
	var configList []*transformer.PluginConfig

	for _, stage := range pipe.Stages() {
		loader, ok := stage.Transformer().(transformer.ConfigLoader)
		if !ok {
			continue
		}
		req := loader.ConfigRequest()
		if req == nil {
			continue
		}
		req.FilePath = path
		state.configRequests = append(state.configRequests, req)

		if d.loadConfig == nil {
			return nil, nil, &transformer.ConfigLoadError{
				PackageName: req.PackageName,
				Err:         fmt.Errorf("no config loader configured"),
			}
		}
		cfg, err := d.loadConfig(ctx, req)
		if err != nil {
			return nil, nil, &transformer.ConfigLoadError{PackageName: req.PackageName, Err: err}
		}
		configs[stage.Name()] = cfg
		configList = append(configList, cfg)
	}
	return configs, configList, nil
}

// lookupEntry rehydrates a cache entry into frozen assets, materializing
// each one's bytes from the blob store.
func (d *Driver) lookupEntry(key string, logger *slog.Logger) ([]*asset.Asset, bool) {
	entry, ok := d.cache.Get(key)
	if !ok {
		return nil, false
	}

	assets := make([]*asset.Asset, 0, len(entry.Assets))
	for _, snap := range entry.Assets {
		blob, err := d.cache.BlobBytes(snap.OutputHash)
		if err != nil {
			logger.Warn("cached blob missing, treating as miss",
				slog.String("output_hash", snap.OutputHash),
				slog.String("error", err.Error()),
			)
			return nil, false
		}
		assets = append(assets, asset.FromSnapshot(snap, asset.BufferContent(blob)))
	}
	return assets, true
}

// commitAll commits every not-yet-committed asset.
func (d *Driver) commitAll(assets []*asset.Asset, optionsHash string) error {
	for _, a := range assets {
		if a.Frozen() {
			continue
		}
		if err := a.Commit(d.cache, optionsHash); err != nil {
			return err
		}
	}
	return nil
}

// writeEntry persists an entry for the asset set. Writes happen regardless
// of the cache-read setting.
func (d *Driver) writeEntry(key string, assets []*asset.Asset) error {
	snaps := make([]*asset.Snapshot, 0, len(assets))
	for _, a := range assets {
		snaps = append(snaps, a.Snapshot())
	}
	return d.cache.Put(key, &cache.Entry{Assets: snaps})
}
