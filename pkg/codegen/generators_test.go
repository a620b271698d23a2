package codegen

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/inferline/inferline/pkg/plan"
)

func compiledDoc(t *testing.T) *plan.Document {
	t.Helper()
	src := `{
		"extraction": {
			"extractors": {
				"load": {"output_relation": "raw"},
				"clean": {"dependencies": ["load"], "input_relations": ["raw"], "output_relation": "tidy"}
			}
		},
		"inference": {
			"factors": {
				"score": {"dependencies": ["clean"], "input_relations": ["tidy"]}
			}
		}
	}`
	doc := &plan.Document{}
	if err := json.Unmarshal([]byte(src), doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	qualified, err := plan.Qualify(doc)
	if err != nil {
		t.Fatalf("Qualify: %v", err)
	}
	merged, err := plan.MergeProcesses(qualified)
	if err != nil {
		t.Fatalf("MergeProcesses: %v", err)
	}
	return merged
}

func TestProcessIndexGenerator(t *testing.T) {
	data, err := ProcessIndexGenerator{}.Generate(context.Background(), compiledDoc(t))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	var entries []indexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		t.Fatalf("unmarshal index: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}

	// Sorted by name: process/clean first.
	if entries[0].Name != "process/clean" {
		t.Errorf("entries[0].Name = %q", entries[0].Name)
	}
	if len(entries[0].Dependencies) != 1 || entries[0].Dependencies[0] != "process/load" {
		t.Errorf("clean dependencies = %v", entries[0].Dependencies)
	}
	if len(entries[1].Output) != 1 || entries[1].Output[0] != "data/raw" {
		t.Errorf("load output = %v", entries[1].Output)
	}
}

func TestScheduleGenerator(t *testing.T) {
	data, err := ScheduleGenerator{}.Generate(context.Background(), compiledDoc(t))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	var schedule struct {
		Depth  int        `json:"depth"`
		Levels [][]string `json:"levels"`
	}
	if err := json.Unmarshal(data, &schedule); err != nil {
		t.Fatalf("unmarshal schedule: %v", err)
	}
	if schedule.Depth != 3 {
		t.Errorf("Depth = %d, want 3", schedule.Depth)
	}
	if len(schedule.Levels) != 3 || schedule.Levels[0][0] != "process/load" {
		t.Errorf("Levels = %v", schedule.Levels)
	}
}

func TestScheduleGeneratorFailsOnCycle(t *testing.T) {
	src := `{
		"execution": {
			"processes": {
				"process/a": {"dependencies_": ["process/b"]},
				"process/b": {"dependencies_": ["process/a"]}
			}
		}
	}`
	doc := &plan.Document{}
	if err := json.Unmarshal([]byte(src), doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if _, err := (ScheduleGenerator{}).Generate(context.Background(), doc); err == nil {
		t.Error("expected cycle to fail schedule generation")
	}
}

func TestGraphGenerator(t *testing.T) {
	data, err := GraphGenerator{}.Generate(context.Background(), compiledDoc(t))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.Contains(string(data), "digraph ExecutionPlan") {
		t.Errorf("DOT output missing header:\n%s", data)
	}
}

func TestManifestGenerator(t *testing.T) {
	data, err := ManifestGenerator{}.Generate(context.Background(), compiledDoc(t))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	var m struct {
		Processes int `yaml:"processes"`
		Factors   int `yaml:"factors"`
		Relations map[string]struct {
			Producers []string `yaml:"producers"`
			Consumers []string `yaml:"consumers"`
		} `yaml:"relations"`
	}
	if err := yaml.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal manifest: %v", err)
	}
	if m.Processes != 2 || m.Factors != 1 {
		t.Errorf("counts = %d processes, %d factors", m.Processes, m.Factors)
	}

	raw := m.Relations["data/raw"]
	if len(raw.Producers) != 1 || raw.Producers[0] != "process/load" {
		t.Errorf("data/raw producers = %v", raw.Producers)
	}
	tidy := m.Relations["data/tidy"]
	if len(tidy.Consumers) != 1 || tidy.Consumers[0] != "factor/score" {
		t.Errorf("data/tidy consumers = %v", tidy.Consumers)
	}
}
