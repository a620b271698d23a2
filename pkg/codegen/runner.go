package codegen

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/inferline/inferline/pkg/pipeline"
	"github.com/inferline/inferline/pkg/plan"
	"github.com/inferline/inferline/pkg/telemetry"
)

// Generator produces one generated-code fragment from the compiled
// plan. Generators in one fan-out share no mutable state: each owns a
// distinct output artifact, and all observe the same already-finalized
// document.
type Generator interface {
	// Name returns the generator identifier; it also names the output
	// artifact under gen/.
	Name() string

	// Generate renders the fragment for the compiled document.
	Generate(ctx context.Context, doc *plan.Document) ([]byte, error)
}

// fragmentPrefix is the artifact namespace owned by the fan-out.
const fragmentPrefix = "gen/"

// FragmentName returns the artifact name a generator's output is
// persisted under.
func FragmentName(generator string) string {
	return fragmentPrefix + generator
}

// Runner drives one code-generation fan-out: every registered
// generator starts concurrently, and the runner waits for all of them
// before judging the outcome. A failed sibling never prevents another
// generator's artifact from being persisted; diagnostics from every
// generator are wanted.
type Runner struct {
	generators []Generator
	logger     *telemetry.Logger
	metrics    *telemetry.Metrics
	tracer     *telemetry.Tracer
}

// NewRunner creates a fan-out runner over the given generators.
// Metrics and tracer may be nil.
func NewRunner(generators []Generator, logger *telemetry.Logger, metrics *telemetry.Metrics, tracer *telemetry.Tracer) (*Runner, error) {
	seen := make(map[string]bool, len(generators))
	for _, g := range generators {
		if g.Name() == "" {
			return nil, fmt.Errorf("generator has empty name")
		}
		if seen[g.Name()] {
			return nil, fmt.Errorf("duplicate generator: %s", g.Name())
		}
		seen[g.Name()] = true
	}

	return &Runner{
		generators: generators,
		logger:     logger.NewComponentLogger("codegen"),
		metrics:    metrics,
		tracer:     tracer,
	}, nil
}

// Fragments lists the artifact names this runner will produce, sorted.
func (r *Runner) Fragments() []string {
	out := make([]string, 0, len(r.generators))
	for _, g := range r.generators {
		out = append(out, FragmentName(g.Name()))
	}
	sort.Strings(out)
	return out
}

// outcome is one generator's result, collected after the join.
type outcome struct {
	generator string
	artifact  string
	err       error
}

// Run executes the fan-out against the compiled document. It always
// waits for every launched generator, then fails if any of them did.
// The first failure, in generator-launch order, is the one propagated.
func (r *Runner) Run(ctx context.Context, doc *plan.Document, sink pipeline.ArtifactSink) error {
	if len(r.generators) == 0 {
		return nil
	}

	results := make([]outcome, len(r.generators))

	var wg sync.WaitGroup
	for i, g := range r.generators {
		wg.Add(1)
		go func(i int, g Generator) {
			defer wg.Done()
			results[i] = r.runOne(ctx, g, doc, sink)
		}(i, g)
	}
	wg.Wait()

	var firstErr error
	failed := 0
	for _, res := range results {
		if res.err == nil {
			continue
		}
		failed++
		if firstErr == nil {
			firstErr = fmt.Errorf("generator %s: %w", res.generator, res.err)
		}
	}

	if firstErr != nil {
		r.logger.WithField("failed", failed).
			WithField("total", len(r.generators)).
			Error("code generation fan-out failed")
		return firstErr
	}

	r.logger.WithField("fragments", len(results)).Info("code generation fan-out completed")
	return nil
}

// runOne executes a single generator and persists its fragment.
func (r *Runner) runOne(ctx context.Context, g Generator, doc *plan.Document, sink pipeline.ArtifactSink) outcome {
	name := g.Name()
	log := r.logger.WithGenerator(name)
	log.Info("running generator")

	start := time.Now()
	data, err := r.generate(ctx, g, doc)
	duration := time.Since(start)

	if err != nil {
		if r.metrics != nil {
			r.metrics.RecordGenerator(name, "failed", duration)
		}
		log.WithError(err).Error("generator failed")
		return outcome{generator: name, err: err}
	}

	artifact, err := sink.SaveArtifact(FragmentName(name), data)
	if err != nil {
		if r.metrics != nil {
			r.metrics.RecordGenerator(name, "failed", duration)
		}
		log.WithError(err).Error("failed to persist fragment")
		return outcome{generator: name, err: fmt.Errorf("persist fragment: %w", err)}
	}

	if r.metrics != nil {
		r.metrics.RecordGenerator(name, "succeeded", duration)
	}
	log.WithField("duration", duration.String()).Info("generator completed")
	return outcome{generator: name, artifact: artifact}
}

func (r *Runner) generate(ctx context.Context, g Generator, doc *plan.Document) ([]byte, error) {
	if r.tracer == nil {
		return g.Generate(ctx, doc)
	}

	spanCtx, span := r.tracer.StartGeneratorSpan(ctx, g.Name())
	defer span.End()

	data, err := g.Generate(spanCtx, doc)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.RecordSuccess(span)
	return data, nil
}
