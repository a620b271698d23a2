package gate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"

	"github.com/inferline/inferline/pkg/plan"
	"github.com/inferline/inferline/pkg/telemetry"
)

// PolicyGate evaluates Rego policies against the compiled plan
// document. Built-in policies cover merge collisions and unresolved
// references; projects can add their own .rego files.
type PolicyGate struct {
	mu       sync.RWMutex
	policies map[string]*Policy
	logger   *telemetry.Logger
}

// NewPolicyGate creates a policy gate preloaded with the built-in
// policies. Every policy is compile-checked up front so a broken one
// fails gate construction, not a build half-way through.
func NewPolicyGate(logger *telemetry.Logger) (*PolicyGate, error) {
	g := &PolicyGate{
		policies: make(map[string]*Policy),
		logger:   logger.NewComponentLogger("policy-gate"),
	}
	for _, p := range BuiltinPolicies() {
		policy := p
		if err := g.add(&policy); err != nil {
			return nil, fmt.Errorf("builtin policy %s: %w", p.Name, err)
		}
	}
	return g, nil
}

// Name implements Gate.
func (g *PolicyGate) Name() string { return "policy" }

// add compile-checks and stores one policy.
func (g *PolicyGate) add(p *Policy) error {
	if _, err := ast.ParseModule(p.Name, p.Rego); err != nil {
		return fmt.Errorf("parse rego: %w", err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.policies[p.Name]; exists {
		return fmt.Errorf("policy already registered: %s", p.Name)
	}
	g.policies[p.Name] = p
	return nil
}

// LoadPolicies loads additional .rego policy files. A path may be a
// file or a directory scanned non-recursively.
func (g *PolicyGate) LoadPolicies(paths []string) error {
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("stat policy path: %w", err)
		}

		files := []string{path}
		if info.IsDir() {
			files = nil
			entries, err := os.ReadDir(path)
			if err != nil {
				return fmt.Errorf("read policy directory: %w", err)
			}
			for _, e := range entries {
				if !e.IsDir() && strings.HasSuffix(e.Name(), ".rego") {
					files = append(files, filepath.Join(path, e.Name()))
				}
			}
		}

		for _, file := range files {
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read policy file: %w", err)
			}
			name := strings.TrimSuffix(filepath.Base(file), ".rego")
			policy := &Policy{
				Name:        name,
				Description: fmt.Sprintf("loaded from %s", file),
				Rego:        string(data),
				Enabled:     true,
			}
			if err := g.add(policy); err != nil {
				return fmt.Errorf("policy %s: %w", name, err)
			}
			g.logger.WithField("policy", name).Debug("policy loaded")
		}
	}
	return nil
}

// Check implements Gate: every enabled policy's deny set is evaluated
// against the document, and blocking violations fail the gate.
func (g *PolicyGate) Check(ctx context.Context, doc *plan.Document) (*Result, error) {
	input, err := documentInput(doc)
	if err != nil {
		return nil, err
	}

	g.mu.RLock()
	policies := make([]*Policy, 0, len(g.policies))
	for _, p := range g.policies {
		if p.Enabled {
			policies = append(policies, p)
		}
	}
	g.mu.RUnlock()
	sort.Slice(policies, func(i, j int) bool { return policies[i].Name < policies[j].Name })

	var violations []Violation
	for _, p := range policies {
		found, err := g.evaluatePolicy(ctx, p, input)
		if err != nil {
			return nil, fmt.Errorf("policy %s: %w", p.Name, err)
		}
		violations = append(violations, found...)
	}

	result := finalize(violations)
	g.logger.WithField("violations", len(violations)).
		WithField("allowed", result.Allowed).
		Debug("policy gate evaluated")
	return result, nil
}

// documentInput converts the document into plain JSON values for Rego.
func documentInput(doc *plan.Document) (interface{}, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal document for policy input: %w", err)
	}
	var input interface{}
	if err := json.Unmarshal(data, &input); err != nil {
		return nil, fmt.Errorf("unmarshal policy input: %w", err)
	}
	return input, nil
}

var packagePattern = regexp.MustCompile(`(?m)^package\s+([a-zA-Z0-9_.]+)`)

// evaluatePolicy evaluates one policy's deny set.
func (g *PolicyGate) evaluatePolicy(ctx context.Context, p *Policy, input interface{}) ([]Violation, error) {
	match := packagePattern.FindStringSubmatch(p.Rego)
	if match == nil {
		return nil, fmt.Errorf("no package declaration")
	}
	query := fmt.Sprintf("data.%s.deny", match[1])

	r := rego.New(
		rego.Module(p.Name, p.Rego),
		rego.Query(query),
		rego.Input(input),
	)

	results, err := r.Eval(ctx)
	if err != nil {
		return nil, fmt.Errorf("rego evaluation: %w", err)
	}

	var violations []Violation
	for _, result := range results {
		for _, expr := range result.Expressions {
			denySet, ok := expr.Value.([]interface{})
			if !ok {
				continue
			}
			for _, item := range denySet {
				entry, ok := item.(map[string]interface{})
				if !ok {
					continue
				}
				violations = append(violations, violationFrom(g.Name(), p.Name, entry))
			}
		}
	}
	return violations, nil
}

// violationFrom maps one Rego deny object to a Violation.
func violationFrom(gateName, policyName string, entry map[string]interface{}) Violation {
	v := Violation{
		Gate:       gateName,
		Policy:     policyName,
		Severity:   SeverityError,
		DetectedAt: time.Now(),
	}
	if msg, ok := entry["message"].(string); ok {
		v.Message = msg
	}
	if entity, ok := entry["entity"].(string); ok {
		v.Entity = entity
	}
	if sev, ok := entry["severity"].(string); ok {
		v.Severity = Severity(sev)
	}
	return v
}
