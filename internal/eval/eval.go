// Package eval runs a complete evaluation: load the module graph, build the
// option registry, annotate contributions and overrides, merge, check and
// emit.
package eval

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dshills/stratum/internal/annotate"
	"github.com/dshills/stratum/internal/assert"
	"github.com/dshills/stratum/internal/diag"
	"github.com/dshills/stratum/internal/emit"
	"github.com/dshills/stratum/internal/merge"
	"github.com/dshills/stratum/internal/module"
	"github.com/dshills/stratum/internal/registry"
)

// OverrideSource is the provenance ID of override assignments.
const OverrideSource = "<override>"

const tracerName = "github.com/dshills/stratum/internal/eval"

// Input names what to evaluate.
type Input struct {
	// Resolver materializes modules.
	Resolver module.Resolver

	// Entry is the root module reference.
	Entry string

	// Overrides are applied at annotate.PriorityCommandLine after every
	// module contribution.
	Overrides []Override
}

// Report is a successful evaluation with its intermediate products.
type Report struct {
	Config     *emit.ResolvedConfig
	Registry   *registry.Registry
	Modules    []*module.Module
	Iterations int
	Duration   time.Duration
}

// Evaluator runs evaluations. It holds no per-run state and is safe for
// concurrent use.
type Evaluator struct {
	logger        *slog.Logger
	tracer        trace.Tracer
	maxIterations int
	newRunID      func() string
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithLogger sets the logger. The default discards output.
func WithLogger(l *slog.Logger) Option {
	return func(e *Evaluator) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMaxIterations bounds the conditional merge loop.
func WithMaxIterations(n int) Option {
	return func(e *Evaluator) {
		if n > 0 {
			e.maxIterations = n
		}
	}
}

// WithTracerProvider sets the provider phase spans are recorded with.
// The default is the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Evaluator) {
		if tp != nil {
			e.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithRunIDs replaces run ID generation.
func WithRunIDs(fn func() string) Option {
	return func(e *Evaluator) {
		if fn != nil {
			e.newRunID = fn
		}
	}
}

// New creates an evaluator.
func New(opts ...Option) *Evaluator {
	e := &Evaluator{
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		tracer:        otel.Tracer(tracerName),
		maxIterations: merge.DefaultMaxIterations,
		newRunID:      func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate runs every phase and returns the resolved configuration.
func (e *Evaluator) Evaluate(ctx context.Context, in Input) (*emit.ResolvedConfig, error) {
	rep, err := e.Run(ctx, in)
	if err != nil {
		return nil, err
	}
	return rep.Config, nil
}

// Run is Evaluate returning the intermediate products as well. The context
// is checked between phases; a phase, once started, runs to completion.
func (e *Evaluator) Run(ctx context.Context, in Input) (*Report, error) {
	start := time.Now()
	runID := e.newRunID()
	logger := e.logger.With("run_id", runID, "entry", in.Entry)

	ctx, span := e.tracer.Start(ctx, "stratum.evaluate", trace.WithAttributes(
		attribute.String("stratum.run_id", runID),
		attribute.String("stratum.entry", in.Entry),
	))
	defer span.End()

	r := &run{e: e, ctx: ctx, logger: logger}

	var mods []*module.Module
	err := r.phase("load", func() (err error) {
		mods, err = module.Load(ctx, in.Resolver, in.Entry)
		r.attrs = []attribute.KeyValue{attribute.Int("stratum.modules", len(mods))}
		return err
	})
	if err != nil {
		return nil, r.fail(span, err)
	}

	var reg *registry.Registry
	err = r.phase("declare", func() (err error) {
		reg, err = declare(mods)
		if reg != nil {
			r.attrs = []attribute.KeyValue{attribute.Int("stratum.options", reg.Len())}
		}
		return err
	})
	if err != nil {
		return nil, r.fail(span, err)
	}

	var contribs []annotate.AnnotatedValue
	err = r.phase("annotate", func() (err error) {
		contribs, err = annotateAll(reg, mods, in.Overrides)
		r.attrs = []attribute.KeyValue{attribute.Int("stratum.contributions", len(contribs))}
		if logger.Enabled(ctx, slog.LevelDebug) {
			for _, av := range contribs {
				logger.Debug("contribution",
					"path", av.Path,
					"priority", av.Priority,
					"level", annotate.PriorityName(av.Priority),
					"hint", av.Hint.String(),
					"source", av.Source)
			}
		}
		return err
	})
	if err != nil {
		return nil, r.fail(span, err)
	}

	var merged *merge.Result
	err = r.phase("merge", func() (err error) {
		engine := merge.New(reg, merge.WithMaxIterations(e.maxIterations), merge.WithLogger(logger))
		merged, err = engine.Merge(contribs, requirements(mods)...)
		if merged != nil {
			r.attrs = []attribute.KeyValue{
				attribute.Int("stratum.iterations", merged.Iterations),
				attribute.Int("stratum.paths", merged.Tree.Len()),
			}
		}
		return err
	})
	if err != nil {
		return nil, r.fail(span, err)
	}

	var failures []assert.Failure
	var warnings []string
	err = r.phase("check", func() error {
		collector := assert.NewCollector(collectChecks(mods)...)
		failures, warnings = collector.Collect(merged.Tree)
		r.attrs = []attribute.KeyValue{
			attribute.Int("stratum.checks", collector.Len()),
			attribute.Int("stratum.failures", len(failures)),
			attribute.Int("stratum.warnings", len(warnings)),
		}
		return nil
	})
	if err != nil {
		return nil, r.fail(span, err)
	}

	var cfg *emit.ResolvedConfig
	err = r.phase("emit", func() (err error) {
		cfg, err = emit.Emit(merged.Tree, merged.Provenance, failures, warnings, emit.WithRunID(runID))
		if cfg != nil {
			r.attrs = []attribute.KeyValue{attribute.String("stratum.digest", cfg.Digest())}
		}
		return err
	})
	if err != nil {
		return nil, r.fail(span, err)
	}

	for _, w := range warnings {
		logger.Warn("configuration warning", "message", w)
	}
	rep := &Report{
		Config:     cfg,
		Registry:   reg,
		Modules:    mods,
		Iterations: merged.Iterations,
		Duration:   time.Since(start),
	}
	logger.Info("evaluation complete",
		"modules", len(mods),
		"paths", cfg.Len(),
		"iterations", merged.Iterations,
		"warnings", len(warnings),
		"digest", cfg.Digest(),
		"duration", rep.Duration)
	return rep, nil
}

// run carries per-evaluation state through the phases.
type run struct {
	e      *Evaluator
	ctx    context.Context
	logger *slog.Logger
	attrs  []attribute.KeyValue
}

// phase runs fn in its own span after checking for cancellation.
func (r *run) phase(name string, fn func() error) error {
	if err := r.ctx.Err(); err != nil {
		return err
	}

	_, span := r.e.tracer.Start(r.ctx, "stratum."+name)
	defer span.End()

	r.attrs = nil
	start := time.Now()
	err := fn()
	span.SetAttributes(r.attrs...)
	r.logger.Debug("phase finished", "phase", name, "duration", time.Since(start), "error", err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, diag.KindOf(err).String())
	}
	return err
}

func (r *run) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	r.logger.Error("evaluation failed", "kind", diag.KindOf(err).String(), "error", err)
	return err
}
