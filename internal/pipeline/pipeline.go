// Package pipeline drives one asset through an ordered chain of transformer
// stages, handling AST handoff between compatible stages, regeneration to
// source between incompatible ones, and multi-output fan-out.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/lodemill/lodemill/internal/asset"
	"github.com/lodemill/lodemill/internal/transformer"
)

// Stage is one configured transformer in a pipeline.
type Stage struct {
	name string
	impl transformer.Transformer
}

// Name returns the stage's transformer name.
func (s Stage) Name() string { return s.name }

// Transformer returns the stage implementation.
func (s Stage) Transformer() transformer.Transformer { return s.impl }

// Pipeline is an ordered sequence of transformer stages selected for a file
// path. Its id is the join of its stage names: two paths whose specs name
// the same stages share a pipeline identity.
type Pipeline struct {
	id     string
	glob   string
	stages []Stage
	logger *slog.Logger
}

// New constructs a pipeline from instantiated stages.
func New(glob string, stages []Stage, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	names := make([]string, len(stages))
	for i, s := range stages {
		names[i] = s.name
	}
	return &Pipeline{
		id:     strings.Join(names, ":"),
		glob:   glob,
		stages: stages,
		logger: logger.With(slog.String("component", "pipeline")),
	}
}

// ID returns the pipeline identity.
func (p *Pipeline) ID() string { return p.id }

// Glob returns the path pattern that selected this pipeline.
func (p *Pipeline) Glob() string { return p.glob }

// Stages returns the configured stages in order.
func (p *Pipeline) Stages() []Stage { return p.stages }

// rememberedGenerator is the latest stage's code emitter, carried forward
// across stages so a later stage that cannot reuse an earlier AST can
// convert it back to source on demand.
type rememberedGenerator struct {
	stage string
	gen   transformer.Generator
	tctx  *transformer.Context
}

// Run is the per-invocation state of a pipeline: bound plugin configs, the
// remembered generator slot, and the injected resolver. A Run never escapes
// its invocation and is not safe for concurrent use.
type Run struct {
	ID      uuid.UUID
	Options *transformer.Options
	Resolve transformer.ResolveFunc

	configs   map[string]*transformer.PluginConfig
	generator *rememberedGenerator
	logger    *slog.Logger
}

// NewRun prepares an invocation of the pipeline with the given stage
// configs (keyed by transformer name).
func (p *Pipeline) NewRun(opts *transformer.Options, resolve transformer.ResolveFunc, configs map[string]*transformer.PluginConfig) *Run {
	if configs == nil {
		configs = make(map[string]*transformer.PluginConfig)
	}
	id := uuid.New()
	return &Run{
		ID:      id,
		Options: opts,
		Resolve: resolve,
		configs: configs,
		logger:  p.logger.With(slog.String("run_id", id.String())),
	}
}

// postProcessorStage returns the last stage providing PostProcess — the
// stage the remembered slot would hold after a full walk — or false.
func (p *Pipeline) postProcessorStage() (Stage, transformer.PostProcessor, bool) {
	for i := len(p.stages) - 1; i >= 0; i-- {
		if post, ok := p.stages[i].impl.(transformer.PostProcessor); ok {
			return p.stages[i], post, true
		}
	}
	return Stage{}, nil, false
}

// HasPostProcessor reports whether any stage provides a whole-pipeline
// finalization pass. Knowable without running the pipeline, so cache hits
// can still route through postprocessing.
func (p *Pipeline) HasPostProcessor() bool {
	_, _, ok := p.postProcessorStage()
	return ok
}

// contextFor builds the per-stage call context.
func (r *Run) contextFor(stage Stage) *transformer.Context {
	return &transformer.Context{
		Config:  r.configs[stage.name],
		Options: r.Options,
		Logger:  r.logger.With(slog.String("stage", stage.name)),
		Resolve: r.Resolve,
	}
}

// Transform drives the initial asset through every stage. Only assets whose
// type still equals the pipeline's initial type are processed by a stage;
// an asset whose type diverged is moved to the finished list exactly once
// and exits the pipeline unchanged from that point.
func (p *Pipeline) Transform(ctx context.Context, run *Run, initial *asset.Asset) ([]*asset.Asset, error) {
	initialType := initial.Type()
	working := []*asset.Asset{initial}
	var finished []*asset.Asset

	for _, stage := range p.stages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var next []*asset.Asset
		for _, a := range working {
			if a.Type() != initialType {
				finished = append(finished, a)
				continue
			}

			children, err := p.applyStage(ctx, run, stage, a)
			if err != nil {
				return nil, err
			}
			next = append(next, children...)
		}

		// The latest stage's emitter wins.
		if gen, ok := stage.impl.(transformer.Generator); ok {
			run.generator = &rememberedGenerator{stage: stage.name, gen: gen, tctx: run.contextFor(stage)}
		}

		working = next
	}

	result := append(finished, working...)

	// Any asset still carrying an AST is finalized by the remembered
	// generator before the pipeline returns.
	for _, a := range result {
		if a.AST() == nil {
			continue
		}
		if err := p.generate(ctx, run, a); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// applyStage reconciles the asset's AST with the stage's capabilities, runs
// Transform, and normalizes its results into child assets.
func (p *Pipeline) applyStage(ctx context.Context, run *Run, stage Stage, a *asset.Asset) ([]*asset.Asset, error) {
	tctx := run.contextFor(stage)

	if a.AST() != nil && !canReuse(stage, a.AST(), run.Options) {
		if err := p.generate(ctx, run, a); err != nil {
			return nil, err
		}
	}

	if a.AST() == nil {
		if parser, ok := stage.impl.(transformer.Parser); ok {
			tree, err := parser.Parse(ctx, a, tctx)
			if err != nil {
				return nil, NewTransformerError(stage.name, a.FilePath(), a.Type(), err)
			}
			if err := a.SetAST(tree); err != nil {
				return nil, err
			}
		}
	}

	results, err := stage.impl.Transform(ctx, a, tctx)
	if err != nil {
		return nil, NewTransformerError(stage.name, a.FilePath(), a.Type(), err)
	}

	children := make([]*asset.Asset, 0, len(results))
	for _, result := range results {
		children = append(children, a.NewChild(result.ChildSpec()))
	}
	return children, nil
}

// canReuse asks the stage whether it accepts the AST directly. A stage
// without the capability never reuses.
func canReuse(stage Stage, tree *asset.AST, opts *transformer.Options) bool {
	reuser, ok := stage.impl.(transformer.ASTReuser)
	return ok && reuser.CanReuseAST(tree, opts)
}

// generate applies the remembered generator to the asset, writing the
// emitted code and map back and clearing the AST.
func (p *Pipeline) generate(ctx context.Context, run *Run, a *asset.Asset) error {
	if run.generator == nil {
		return fmt.Errorf("%w (asset %s, type %s)", ErrASTReuseMismatch, a.FilePath(), a.Type())
	}
	out, err := run.generator.gen.Generate(ctx, a, run.generator.tctx)
	if err != nil {
		return NewTransformerError(run.generator.stage, a.FilePath(), a.Type(), err)
	}
	if err := a.SetBytes(out.Code); err != nil {
		return err
	}
	if run.Options == nil || run.Options.SourceMaps {
		if err := a.SetMap(out.Map); err != nil {
			return err
		}
	}
	return a.ClearAST()
}

// PostProcess applies the pipeline's post-processor to the finalized asset
// set, normalizing its results the same way Transform does. Returns the
// input unchanged when no stage provides one.
func (p *Pipeline) PostProcess(ctx context.Context, run *Run, assets []*asset.Asset) ([]*asset.Asset, error) {
	stage, post, ok := p.postProcessorStage()
	if !ok || len(assets) == 0 {
		return assets, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results, err := post.PostProcess(ctx, assets, run.contextFor(stage))
	if err != nil {
		path := ""
		if len(assets) > 0 {
			path = assets[0].FilePath()
		}
		return nil, NewTransformerError(stage.name, path, "", err)
	}

	processed := make([]*asset.Asset, 0, len(results))
	for i, result := range results {
		parent := assets[0]
		if i < len(assets) {
			parent = assets[i]
		}
		processed = append(processed, parent.NewChild(result.ChildSpec()))
	}
	return processed, nil
}
