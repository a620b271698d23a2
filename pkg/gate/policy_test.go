package gate

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/inferline/inferline/pkg/plan"
	"github.com/inferline/inferline/pkg/telemetry"
)

func testLogger() *telemetry.Logger {
	return telemetry.NewLogger(telemetry.LoggingConfig{Level: "error", Format: "json"})
}

func docFromJSON(t *testing.T, src string) *plan.Document {
	t.Helper()
	doc := &plan.Document{}
	if err := json.Unmarshal([]byte(src), doc); err != nil {
		t.Fatalf("unmarshal document: %v", err)
	}
	return doc
}

// cleanDoc is a compiled plan with every reference resolved.
func cleanDoc(t *testing.T) *plan.Document {
	return docFromJSON(t, `{
		"execution": {
			"processes": {
				"process/load": {"dependencies_": [], "input_": [], "output_": ["data/raw"]},
				"process/clean": {"dependencies_": ["process/load"], "input_": ["data/raw"], "output_": ["data/tidy"]}
			}
		},
		"inference": {
			"factors": {
				"factor/score": {"dependencies_": ["process/clean"], "input_": ["data/tidy"]}
			}
		}
	}`)
}

func TestPolicyGateAllowsCleanPlan(t *testing.T) {
	g, err := NewPolicyGate(testLogger())
	if err != nil {
		t.Fatalf("NewPolicyGate: %v", err)
	}

	result, err := g.Check(context.Background(), cleanDoc(t))
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !result.Allowed {
		t.Errorf("clean plan rejected: %+v", result.Violations)
	}
	if len(result.Violations) != 0 {
		t.Errorf("unexpected violations: %+v", result.Violations)
	}
}

func TestPolicyGateRejectsMergeCollisions(t *testing.T) {
	doc := docFromJSON(t, `{
		"execution": {
			"processes": {
				"process/load": {"dependencies_": [], "input_": []}
			},
			"collisions": ["process/load"]
		}
	}`)

	g, err := NewPolicyGate(testLogger())
	if err != nil {
		t.Fatalf("NewPolicyGate: %v", err)
	}

	result, err := g.Check(context.Background(), doc)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if result.Allowed {
		t.Fatal("plan with merge collisions was allowed")
	}

	found := false
	for _, v := range result.Violations {
		if v.Policy == "merge-collisions" && v.Entity == "process/load" && v.Severity == SeverityError {
			found = true
		}
	}
	if !found {
		t.Errorf("collision violation missing: %+v", result.Violations)
	}
}

func TestPolicyGateRejectsUnresolvedDependencies(t *testing.T) {
	doc := docFromJSON(t, `{
		"execution": {
			"processes": {
				"process/clean": {"dependencies_": ["process/missing"], "input_": []}
			}
		}
	}`)

	g, err := NewPolicyGate(testLogger())
	if err != nil {
		t.Fatalf("NewPolicyGate: %v", err)
	}

	result, err := g.Check(context.Background(), doc)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if result.Allowed {
		t.Fatal("plan with unresolved dependency was allowed")
	}
}

func TestPolicyGateWarnsOnUnproducedInputs(t *testing.T) {
	// An input relation nothing produces is a warning, not a rejection:
	// data can legitimately come from outside the plan.
	doc := docFromJSON(t, `{
		"execution": {
			"processes": {
				"process/clean": {"dependencies_": [], "input_": ["data/external"]}
			}
		}
	}`)

	g, err := NewPolicyGate(testLogger())
	if err != nil {
		t.Fatalf("NewPolicyGate: %v", err)
	}

	result, err := g.Check(context.Background(), doc)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !result.Allowed {
		t.Errorf("warning-only plan rejected: %+v", result.Violations)
	}
	if got := result.SeverityCounts()[string(SeverityWarning)]; got != 1 {
		t.Errorf("warning count = %d, want 1: %+v", got, result.Violations)
	}
}

func TestPolicyGateLoadsUserPolicies(t *testing.T) {
	dir := t.TempDir()
	policy := `package project.naming

import rego.v1

deny contains violation if {
	some name, _ in input.execution.processes
	not startswith(name, "process/")
	violation := {
		"message": sprintf("%s is not in the process namespace", [name]),
		"severity": "error",
		"entity": name,
	}
}`
	if err := os.WriteFile(filepath.Join(dir, "naming.rego"), []byte(policy), 0o644); err != nil {
		t.Fatalf("write policy: %v", err)
	}

	g, err := NewPolicyGate(testLogger())
	if err != nil {
		t.Fatalf("NewPolicyGate: %v", err)
	}
	if err := g.LoadPolicies([]string{dir}); err != nil {
		t.Fatalf("LoadPolicies: %v", err)
	}

	doc := docFromJSON(t, `{
		"execution": {
			"processes": {
				"unqualified": {"dependencies_": [], "input_": []}
			}
		}
	}`)
	result, err := g.Check(context.Background(), doc)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if result.Allowed {
		t.Error("user policy violation did not reject the plan")
	}
}

func TestPolicyGateRejectsBrokenPolicy(t *testing.T) {
	g, err := NewPolicyGate(testLogger())
	if err != nil {
		t.Fatalf("NewPolicyGate: %v", err)
	}

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "broken.rego"), []byte("this is not rego"), 0o644); err != nil {
		t.Fatalf("write policy: %v", err)
	}
	if err := g.LoadPolicies([]string{dir}); err == nil {
		t.Error("expected broken policy to fail loading")
	}
}

func TestSeverityBlocking(t *testing.T) {
	tests := []struct {
		severity Severity
		blocking bool
	}{
		{SeverityInfo, false},
		{SeverityWarning, false},
		{SeverityError, true},
		{SeverityCritical, true},
	}
	for _, tt := range tests {
		if got := tt.severity.Blocking(); got != tt.blocking {
			t.Errorf("%s.Blocking() = %v, want %v", tt.severity, got, tt.blocking)
		}
	}
}
