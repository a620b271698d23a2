package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/inferline/inferline/pkg/plan"
	"github.com/inferline/inferline/pkg/telemetry"
)

// Stage is one named, pure document transform. Stage names carry a
// numeric order prefix (e.g. "020-qualify"); the driver runs stages in
// lexicographic name order, so qualification is guaranteed to run
// before any stage that assumes qualified names.
type Stage interface {
	// Name returns the stage identifier used for ordering and for the
	// persisted artifact name.
	Name() string

	// Transform consumes one document and produces the next. It must
	// not mutate its input.
	Transform(ctx context.Context, doc *plan.Document) (*plan.Document, error)
}

// ArtifactSink persists intermediate artifacts. The build workspace
// implements it; validate-only runs pass a NullSink.
type ArtifactSink interface {
	// SaveArtifact persists one named artifact and returns its
	// location.
	SaveArtifact(name string, data []byte) (string, error)
}

// NullSink discards artifacts. Used when compiling in memory.
type NullSink struct{}

// SaveArtifact implements ArtifactSink.
func (NullSink) SaveArtifact(name string, _ []byte) (string, error) {
	return name, nil
}

// Registry holds the named transform stages discovered for a project.
type Registry struct {
	stages map[string]Stage
}

// NewRegistry creates an empty stage registry.
func NewRegistry() *Registry {
	return &Registry{stages: make(map[string]Stage)}
}

// Register adds a stage. Registering two stages under the same name is
// a configuration mistake and fails.
func (r *Registry) Register(s Stage) error {
	name := s.Name()
	if name == "" {
		return fmt.Errorf("stage has empty name")
	}
	if _, exists := r.stages[name]; exists {
		return fmt.Errorf("stage already registered: %s", name)
	}
	r.stages[name] = s
	return nil
}

// Stages returns the registered stages in lexicographic name order.
func (r *Registry) Stages() []Stage {
	names := make([]string, 0, len(r.stages))
	for name := range r.stages {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Stage, 0, len(names))
	for _, name := range names {
		out = append(out, r.stages[name])
	}
	return out
}

// Result reports a completed pipeline run.
type Result struct {
	// Document is the compiled plan: the last stage's output.
	Document *plan.Document

	// Artifacts lists the persisted intermediate artifact names in
	// stage order.
	Artifacts []string

	// CompiledArtifact names the artifact holding the compiled
	// document: a reference to the last stage's artifact, not a copy.
	CompiledArtifact string
}

// Driver feeds a document through the registered stages in order,
// persisting every intermediate artifact before proceeding.
type Driver struct {
	registry *Registry
	logger   *telemetry.Logger
	metrics  *telemetry.Metrics
	tracer   *telemetry.Tracer
}

// NewDriver creates a pipeline driver. Metrics and tracer may be nil.
func NewDriver(registry *Registry, logger *telemetry.Logger, metrics *telemetry.Metrics, tracer *telemetry.Tracer) *Driver {
	return &Driver{
		registry: registry,
		logger:   logger.NewComponentLogger("pipeline"),
		metrics:  metrics,
		tracer:   tracer,
	}
}

// Run executes all stages sequentially. Stage N+1 never starts before
// stage N has exited successfully. On failure the artifacts already
// persisted stay in place for postmortem inspection.
func (d *Driver) Run(ctx context.Context, doc *plan.Document, sink ArtifactSink) (*Result, error) {
	stages := d.registry.Stages()
	if len(stages) == 0 {
		return nil, fmt.Errorf("no pipeline stages registered")
	}

	result := &Result{Document: doc}

	for _, stage := range stages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		name := stage.Name()
		log := d.logger.WithStage(name)
		log.Info("running pipeline stage")

		start := time.Now()
		out, err := d.runStage(ctx, stage, result.Document)
		duration := time.Since(start)

		if err != nil {
			if d.metrics != nil {
				d.metrics.RecordStage(name, "failed", duration)
			}
			log.WithError(err).Error("pipeline stage failed")
			return nil, fmt.Errorf("stage %s: %w", name, err)
		}

		artifact, err := d.persist(sink, name, out)
		if err != nil {
			if d.metrics != nil {
				d.metrics.RecordStage(name, "failed", duration)
			}
			log.WithError(err).Error("failed to persist stage artifact")
			return nil, fmt.Errorf("stage %s: persist artifact: %w", name, err)
		}

		if d.metrics != nil {
			d.metrics.RecordStage(name, "succeeded", duration)
		}
		log.WithField("duration", duration.String()).Info("pipeline stage completed")

		result.Document = out
		result.Artifacts = append(result.Artifacts, artifact)
		result.CompiledArtifact = artifact
	}

	return result, nil
}

// runStage executes one stage inside a tracing span when available.
func (d *Driver) runStage(ctx context.Context, stage Stage, doc *plan.Document) (*plan.Document, error) {
	if d.tracer == nil {
		return stage.Transform(ctx, doc)
	}

	spanCtx, span := d.tracer.StartStageSpan(ctx, stage.Name())
	defer span.End()

	out, err := stage.Transform(spanCtx, doc)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.RecordSuccess(span)
	return out, nil
}

// persist writes one stage's output document to the sink.
func (d *Driver) persist(sink ArtifactSink, stageName string, doc *plan.Document) (string, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal document: %w", err)
	}
	name := stageName + ".json"
	if _, err := sink.SaveArtifact(name, data); err != nil {
		return "", err
	}
	return name, nil
}
