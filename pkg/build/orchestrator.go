package build

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/inferline/inferline/pkg/codegen"
	"github.com/inferline/inferline/pkg/gate"
	"github.com/inferline/inferline/pkg/pipeline"
	"github.com/inferline/inferline/pkg/plan"
	"github.com/inferline/inferline/pkg/telemetry"
	"github.com/inferline/inferline/pkg/workspace"
)

// Phase names used in error context and log fields.
const (
	PhasePipeline  = "pipeline"
	PhaseGates     = "gates"
	PhaseCodegen   = "codegen"
	PhaseFragments = "fragments"
	PhasePromotion = "promotion"
)

// Outcome describes a successful build.
type Outcome struct {
	WorkspaceKey     string           `json:"workspace_key"`
	CompiledArtifact string           `json:"compiled_artifact"`
	Fragments        []string         `json:"fragments"`
	Violations       []gate.Violation `json:"violations,omitempty"`
	Duration         time.Duration    `json:"duration"`
}

// Builder runs a complete build: allocate a workspace, drive the
// transform pipeline, validate with gates, fan out the generators,
// verify the fragments, and promote. On any failure the workspace is
// aborted and, in quiet mode, the error excerpt is re-emitted to the
// console.
type Builder struct {
	workspaces *workspace.Manager
	driver     *pipeline.Driver
	runner     *codegen.Runner
	gates      []gate.Gate
	fragments  gate.FragmentChecker
	logger     *telemetry.Logger
	metrics    *telemetry.Metrics
	tracer     *telemetry.Tracer
	console    io.Writer
}

// NewBuilder wires a builder from its collaborators. The console
// writer receives the failure excerpt in quiet mode; pass nil for
// stderr.
func NewBuilder(
	workspaces *workspace.Manager,
	driver *pipeline.Driver,
	runner *codegen.Runner,
	gates []gate.Gate,
	logger *telemetry.Logger,
	metrics *telemetry.Metrics,
	tracer *telemetry.Tracer,
	console io.Writer,
) *Builder {
	if console == nil {
		console = os.Stderr
	}
	return &Builder{
		workspaces: workspaces,
		driver:     driver,
		runner:     runner,
		gates:      gates,
		logger:     logger.NewComponentLogger("build"),
		metrics:    metrics,
		tracer:     tracer,
		console:    console,
	}
}

// Run executes one build of the given plan document. Only one build
// may run against a store at a time; a second concurrent invocation
// fails with workspace.ErrLockHeld wrapped in a BuildError.
func (b *Builder) Run(ctx context.Context, doc *plan.Document) (*Outcome, error) {
	store := b.workspaces.Store()
	owner := uuid.NewString()
	if err := store.AcquireLock(ctx, owner); err != nil {
		if errors.Is(err, workspace.ErrLockHeld) {
			return nil, NewInternalError("another build is in progress", err).WithCode(ErrCodeLockHeld)
		}
		return nil, NewInternalError("acquire build lock", err).WithCode(ErrCodeStoreFailed)
	}
	defer func() {
		if err := store.ReleaseLock(context.Background(), owner); err != nil {
			b.logger.WithError(err).Warn("failed to release build lock")
		}
	}()

	ws, err := b.workspaces.Allocate(ctx)
	if err != nil {
		return nil, NewInternalError("allocate workspace", err).WithCode(ErrCodeStoreFailed)
	}

	start := time.Now()
	if err := b.logger.AttachLogFile(ws.LogPath()); err != nil {
		buildErr := NewInternalError("open build log", err).WithWorkspace(ws.Key())
		return nil, b.fail(ctx, ws, buildErr, time.Since(start))
	}

	b.metrics.RecordBuildStarted()
	ctx, span := b.tracer.StartBuildSpan(ctx, ws.Key())
	defer span.End()

	outcome, err := b.execute(ctx, doc, ws)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, b.fail(ctx, ws, err, time.Since(start))
	}

	telemetry.RecordSuccess(span)
	outcome.Duration = time.Since(start)
	b.metrics.RecordBuildCompleted("success", outcome.Duration)
	b.logger.WithWorkspace(ws.Key()).
		WithField("duration", outcome.Duration.String()).
		Info("build completed")
	return outcome, nil
}

// execute runs the build phases inside an allocated workspace.
func (b *Builder) execute(ctx context.Context, doc *plan.Document, ws *workspace.Workspace) (*Outcome, error) {
	log := b.logger.WithWorkspace(ws.Key())

	result, err := b.driver.Run(ctx, doc, ws)
	if err != nil {
		return nil, classify(ctx, err,
			NewStructuralError("transform pipeline failed", err).WithCode(ErrCodeStageFailed)).
			WithPhase(PhasePipeline).WithWorkspace(ws.Key())
	}

	violations, err := b.runGates(ctx, result.Document, ws.Key())
	if err != nil {
		return nil, err
	}

	if err := b.runner.Run(ctx, result.Document, ws); err != nil {
		return nil, classify(ctx, err,
			NewPartialError("generator fan-out failed", err).WithCode(ErrCodeGeneratorFailed)).
			WithPhase(PhaseCodegen).WithWorkspace(ws.Key())
	}

	fragments := b.runner.Fragments()
	paths := make(map[string]string, len(fragments))
	for _, name := range fragments {
		paths[name] = ws.ArtifactPath(name)
	}
	if fres := b.fragments.CheckFragments(paths); !fres.Allowed {
		err := fmt.Errorf("%d fragment(s) missing or empty", len(fres.Violations))
		return nil, NewValidationError("fragment check failed", err).
			WithCode(ErrCodeGateRejected).WithPhase(PhaseFragments).WithWorkspace(ws.Key())
	}

	if err := b.workspaces.Promote(ctx, ws, result.CompiledArtifact); err != nil {
		return nil, NewInternalError("promote workspace", err).
			WithCode(ErrCodeStoreFailed).WithPhase(PhasePromotion).WithWorkspace(ws.Key())
	}

	log.WithField("fragments", len(fragments)).Debug("build phases finished")
	return &Outcome{
		WorkspaceKey:     ws.Key(),
		CompiledArtifact: result.CompiledArtifact,
		Fragments:        fragments,
		Violations:       violations,
	}, nil
}

// runGates checks the compiled document against every gate. Blocking
// violations reject the build; non-blocking ones are returned for
// reporting.
func (b *Builder) runGates(ctx context.Context, doc *plan.Document, wsKey string) ([]Violation, error) {
	var reported []gate.Violation
	for _, g := range b.gates {
		gctx, span := b.tracer.StartGateSpan(ctx, g.Name())
		result, err := g.Check(gctx, doc)
		if err != nil {
			telemetry.RecordError(span, err)
			span.End()
			return nil, classify(ctx, err,
				NewStructuralError(fmt.Sprintf("gate %s failed", g.Name()), err)).
				WithPhase(PhaseGates).WithWorkspace(wsKey)
		}

		status := "passed"
		if !result.Allowed {
			status = "rejected"
		}
		b.metrics.RecordGateCheck(g.Name(), status, result.SeverityCounts())

		if !result.Allowed {
			err := fmt.Errorf("gate %s: %d blocking violation(s)", g.Name(), len(result.Violations))
			for _, v := range result.Violations {
				b.logger.WithWorkspace(wsKey).
					WithField("gate", v.Gate).
					WithField("policy", v.Policy).
					WithField("entity", v.Entity).
					WithField("severity", string(v.Severity)).
					Error(v.Message)
			}
			telemetry.RecordError(span, err)
			span.End()
			return nil, NewValidationError("plan rejected by gate", err).
				WithCode(ErrCodeGateRejected).WithPhase(PhaseGates).WithWorkspace(wsKey)
		}

		reported = append(reported, result.Violations...)
		telemetry.RecordSuccess(span)
		span.End()
	}
	return reported, nil
}

// Violation is re-exported for callers that only import build.
type Violation = gate.Violation

// fail aborts the workspace and, in quiet mode, re-emits the error
// excerpt from the build log to the console.
func (b *Builder) fail(ctx context.Context, ws *workspace.Workspace, buildErr error, elapsed time.Duration) error {
	b.metrics.RecordBuildCompleted(string(ClassOf(buildErr)), elapsed)
	b.logger.WithWorkspace(ws.Key()).WithError(buildErr).Error("build failed")

	// Bookkeeping must survive cancellation.
	abortCtx := ctx
	if abortCtx.Err() != nil {
		abortCtx = context.Background()
	}
	if err := b.workspaces.Abort(abortCtx, ws); err != nil {
		b.logger.WithWorkspace(ws.Key()).WithError(err).Warn("failed to mark workspace aborted")
	}

	if b.logger.Mode() == telemetry.LogModeQuiet {
		fmt.Fprintf(b.console, "build %s failed: %v\n", ws.Key(), buildErr)
		if err := telemetry.WriteExcerpt(b.console, ws.LogPath()); err != nil {
			fmt.Fprintf(b.console, "could not extract log excerpt: %v\n", err)
		}
		fmt.Fprintf(b.console, "full log: %s\n", ws.LogPath())
	}
	return buildErr
}

// classify maps context cancellation to an interruption error and
// everything else to the provided fallback.
func classify(ctx context.Context, err error, fallback *BuildError) *BuildError {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return NewInterruptedError("build interrupted", err).WithCode(ErrCodeCancelled)
	}
	return fallback
}
