package pipeline

import (
	"context"
	"encoding/json"
	"reflect"
	"testing"

	"github.com/inferline/inferline/pkg/plan"
)

func TestDefaultRegistryStageOrder(t *testing.T) {
	stages := DefaultRegistry().Stages()
	want := []string{StageNormalize, StageQualify, StageMerge}
	if len(stages) != len(want) {
		t.Fatalf("got %d stages, want %d", len(stages), len(want))
	}
	for i, s := range stages {
		if s.Name() != want[i] {
			t.Errorf("stage %d = %s, want %s", i, s.Name(), want[i])
		}
	}
}

func TestDefaultRegistryCompilesPlan(t *testing.T) {
	src := `{
		"extraction": {
			"extractors": {
				"e1": {"dependencies": [], "output_relation": "r1"}
			}
		},
		"inference": {
			"factors": {
				"f1": {"dependencies": ["e1"], "input_relations": ["r1"]}
			}
		}
	}`
	doc := &plan.Document{}
	if err := json.Unmarshal([]byte(src), doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	result, err := NewDriver(DefaultRegistry(), testLogger(), nil, nil).
		Run(context.Background(), doc, NullSink{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	out := result.Document

	if got := out.ProcessNames(); !reflect.DeepEqual(got, []string{"process/e1"}) {
		t.Errorf("ProcessNames = %v, want [process/e1]", got)
	}
	e1 := out.Execution.Processes["process/e1"]
	if len(e1.QualifiedDeps) != 0 || e1.QualifiedDeps == nil {
		t.Errorf("e1 dependencies_ = %#v, want empty sequence", e1.QualifiedDeps)
	}
	if !reflect.DeepEqual(e1.QualifiedOutput, []string{"data/r1"}) {
		t.Errorf("e1 output_ = %v, want [data/r1]", e1.QualifiedOutput)
	}

	f1 := out.Inference.Factors["factor/f1"]
	if f1 == nil {
		t.Fatal("factor/f1 missing")
	}
	if !reflect.DeepEqual(f1.QualifiedDeps, []string{"process/e1"}) {
		t.Errorf("f1 dependencies_ = %v, want [process/e1]", f1.QualifiedDeps)
	}
	if !reflect.DeepEqual(f1.QualifiedInputs, []string{"data/r1"}) {
		t.Errorf("f1 input_ = %v, want [data/r1]", f1.QualifiedInputs)
	}
	if f1.QualifiedOutput != nil {
		t.Errorf("f1 output_ = %v, want absent", f1.QualifiedOutput)
	}

	// The input document never sees the transforms.
	if _, ok := doc.Extraction.Extractors["e1"]; !ok {
		t.Error("input document was mutated")
	}
	if len(doc.Execution.Processes) != 0 {
		t.Error("input document grew an execution plan")
	}
}

func TestDefaultRegistryIsRerunnable(t *testing.T) {
	src := `{
		"extraction": {
			"extractors": {
				"e1": {"dependencies": [], "output_relation": "r1"}
			}
		}
	}`
	doc := &plan.Document{}
	if err := json.Unmarshal([]byte(src), doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	driver := NewDriver(DefaultRegistry(), testLogger(), nil, nil)
	first, err := driver.Run(context.Background(), doc, NullSink{})
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	second, err := driver.Run(context.Background(), first.Document, NullSink{})
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}

	// Re-running the full pipeline on compiled output records the merge
	// keys as collisions instead of silently rewriting them.
	if len(second.Document.Execution.Collisions) == 0 {
		t.Error("recompiling a compiled document should record merge collisions")
	}

	a, _ := json.Marshal(first.Document.Execution.Processes)
	b, _ := json.Marshal(second.Document.Execution.Processes)
	if string(a) != string(b) {
		t.Errorf("process set changed on recompile:\nfirst:  %s\nsecond: %s", a, b)
	}
}
