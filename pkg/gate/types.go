package gate

import (
	"context"
	"time"

	"github.com/inferline/inferline/pkg/plan"
)

// Severity represents the severity level of a gate violation.
type Severity string

const (
	// SeverityInfo is for informational findings.
	SeverityInfo Severity = "info"

	// SeverityWarning is for findings that should be reviewed but do
	// not block the build.
	SeverityWarning Severity = "warning"

	// SeverityError is for findings that fail the gate.
	SeverityError Severity = "error"

	// SeverityCritical is for findings that must never pass.
	SeverityCritical Severity = "critical"
)

// Blocking reports whether a violation of this severity fails the
// gate.
func (s Severity) Blocking() bool {
	return s == SeverityError || s == SeverityCritical
}

// Violation is one finding against the compiled plan or the generated
// fragments.
type Violation struct {
	// Gate names the gate that produced the finding.
	Gate string `json:"gate"`

	// Policy names the specific check, where the gate has several.
	Policy string `json:"policy,omitempty"`

	// Entity is the qualified entity or artifact the finding concerns.
	Entity string `json:"entity,omitempty"`

	// Message is the human-readable finding.
	Message string `json:"message"`

	// Severity is the finding's severity level.
	Severity Severity `json:"severity"`

	// DetectedAt is when the finding was produced.
	DetectedAt time.Time `json:"detected_at"`
}

// Result is one gate's verdict. Only the pass/fail contract matters to
// the orchestrator; everything else is diagnostics.
type Result struct {
	// Allowed is false when any blocking violation was found.
	Allowed bool `json:"allowed"`

	// Violations lists every finding, blocking or not.
	Violations []Violation `json:"violations,omitempty"`

	// EvaluatedAt is when the gate ran.
	EvaluatedAt time.Time `json:"evaluated_at"`
}

// SeverityCounts tallies violations per severity.
func (r *Result) SeverityCounts() map[string]int {
	out := make(map[string]int)
	for _, v := range r.Violations {
		out[string(v.Severity)]++
	}
	return out
}

// Gate is a pass/fail check run against the compiled plan between
// build phases.
type Gate interface {
	// Name returns the gate identifier.
	Name() string

	// Check evaluates the gate against a compiled document.
	Check(ctx context.Context, doc *plan.Document) (*Result, error)
}

// finalize computes the verdict from the collected violations.
func finalize(violations []Violation) *Result {
	allowed := true
	for _, v := range violations {
		if v.Severity.Blocking() {
			allowed = false
			break
		}
	}
	return &Result{
		Allowed:     allowed,
		Violations:  violations,
		EvaluatedAt: time.Now(),
	}
}
