package pipeline

import (
	"context"
	"fmt"

	"github.com/inferline/inferline/pkg/plan"
)

// Built-in stage identifiers. The numeric prefixes fix the execution
// order: normalization first, then qualification, then the merge that
// assumes qualified names.
const (
	StageNormalize = "010-normalize"
	StageQualify   = "020-qualify"
	StageMerge     = "030-merge"
)

// NormalizeStage makes the document shape explicit: missing definition
// mappings become empty mappings so later stages never see nil.
type NormalizeStage struct{}

// Name implements Stage.
func (NormalizeStage) Name() string { return StageNormalize }

// Transform implements Stage.
func (NormalizeStage) Transform(_ context.Context, doc *plan.Document) (*plan.Document, error) {
	out, err := doc.Clone()
	if err != nil {
		return nil, err
	}
	if out.Extraction.Extractors == nil {
		out.Extraction.Extractors = make(map[string]*plan.Unit)
	}
	if out.Inference.Factors == nil {
		out.Inference.Factors = make(map[string]*plan.Unit)
	}
	if out.Execution.Processes == nil {
		out.Execution.Processes = make(map[string]*plan.Unit)
	}
	return out, nil
}

// QualifyStage namespaces both definition mappings and rewrites every
// dependency and relation reference.
type QualifyStage struct{}

// Name implements Stage.
func (QualifyStage) Name() string { return StageQualify }

// Transform implements Stage.
func (QualifyStage) Transform(_ context.Context, doc *plan.Document) (*plan.Document, error) {
	return plan.Qualify(doc)
}

// MergeStage merges the qualified extraction steps into the global
// execution plan. Collisions are recorded on the document for the
// validation gate, never resolved silently.
type MergeStage struct{}

// Name implements Stage.
func (MergeStage) Name() string { return StageMerge }

// Transform implements Stage.
func (MergeStage) Transform(_ context.Context, doc *plan.Document) (*plan.Document, error) {
	return plan.MergeProcesses(doc)
}

// DefaultRegistry returns a registry holding the built-in compile
// stages. The built-in names are distinct, so registration cannot
// fail.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, s := range []Stage{NormalizeStage{}, QualifyStage{}, MergeStage{}} {
		if err := r.Register(s); err != nil {
			panic(fmt.Sprintf("builtin stage registration: %v", err))
		}
	}
	return r
}
