package gate

import (
	"context"
	"testing"
)

func TestGraphGateAllowsAcyclicPlan(t *testing.T) {
	g := NewGraphGate(testLogger())
	result, err := g.Check(context.Background(), cleanDoc(t))
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !result.Allowed {
		t.Errorf("acyclic plan rejected: %+v", result.Violations)
	}
}

func TestGraphGateRejectsCycle(t *testing.T) {
	doc := docFromJSON(t, `{
		"execution": {
			"processes": {
				"process/a": {"dependencies_": ["process/b"]},
				"process/b": {"dependencies_": ["process/a"]}
			}
		}
	}`)

	result, err := NewGraphGate(testLogger()).Check(context.Background(), doc)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if result.Allowed {
		t.Fatal("cyclic plan was allowed")
	}
	if len(result.Violations) != 1 || result.Violations[0].Severity != SeverityCritical {
		t.Errorf("violations = %+v, want one critical", result.Violations)
	}
}

func TestGraphGateWarnsOnUnresolvedReferences(t *testing.T) {
	doc := docFromJSON(t, `{
		"execution": {
			"processes": {
				"process/clean": {"dependencies_": ["process/missing"]}
			}
		}
	}`)

	result, err := NewGraphGate(testLogger()).Check(context.Background(), doc)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	// Unresolved references block via the policy gate; here they only
	// warn.
	if !result.Allowed {
		t.Errorf("unresolved reference blocked the graph gate: %+v", result.Violations)
	}
	if len(result.Violations) != 1 || result.Violations[0].Severity != SeverityWarning {
		t.Errorf("violations = %+v, want one warning", result.Violations)
	}
}
