package gate

import (
	"context"
	"errors"
	"time"

	"github.com/inferline/inferline/pkg/plan"
	"github.com/inferline/inferline/pkg/telemetry"
)

// GraphGate rebuilds the dependency graph from the compiled document
// and rejects plans whose processes form a cycle. Unresolved
// references are already covered by the policy gate, so they surface
// here only as warnings.
type GraphGate struct {
	logger *telemetry.Logger
}

// NewGraphGate creates the structural graph gate.
func NewGraphGate(logger *telemetry.Logger) *GraphGate {
	return &GraphGate{logger: logger.NewComponentLogger("graph-gate")}
}

// Name implements Gate.
func (g *GraphGate) Name() string { return "graph" }

// Check implements Gate.
func (g *GraphGate) Check(ctx context.Context, doc *plan.Document) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	graph, err := plan.NewGraphBuilder().Build(doc)
	if err != nil {
		if errors.Is(err, plan.ErrCyclicDependency) {
			return finalize([]Violation{{
				Gate:       g.Name(),
				Policy:     "acyclic",
				Message:    err.Error(),
				Severity:   SeverityCritical,
				DetectedAt: time.Now(),
			}}), nil
		}
		return nil, err
	}

	var violations []Violation
	for _, ref := range graph.Unresolved {
		violations = append(violations, Violation{
			Gate:       g.Name(),
			Policy:     "resolvable",
			Entity:     ref.From,
			Message:    "dependency " + ref.To + " is not defined in the plan",
			Severity:   SeverityWarning,
			DetectedAt: time.Now(),
		})
	}

	g.logger.WithField("depth", graph.Depth).
		WithField("unresolved", len(graph.Unresolved)).
		Debug("graph gate evaluated")
	return finalize(violations), nil
}
