package codegen

import (
	"context"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/inferline/inferline/pkg/plan"
)

// ProcessIndexGenerator emits a JSON index of the merged execution
// plan: one entry per qualified process with its resolved references.
type ProcessIndexGenerator struct{}

// Name implements Generator.
func (ProcessIndexGenerator) Name() string { return "process-index" }

// indexEntry is one process row of the index fragment.
type indexEntry struct {
	Name         string   `json:"name"`
	Dependencies []string `json:"dependencies"`
	Inputs       []string `json:"inputs"`
	Output       []string `json:"output,omitempty"`
}

// Generate implements Generator.
func (ProcessIndexGenerator) Generate(_ context.Context, doc *plan.Document) ([]byte, error) {
	entries := make([]indexEntry, 0, len(doc.Execution.Processes))
	for _, name := range doc.ProcessNames() {
		unit := doc.Execution.Processes[name]
		entries = append(entries, indexEntry{
			Name:         name,
			Dependencies: unit.QualifiedDeps,
			Inputs:       unit.QualifiedInputs,
			Output:       unit.QualifiedOutput,
		})
	}
	return json.MarshalIndent(entries, "", "  ")
}

// ScheduleGenerator emits the execution levels of the plan as JSON:
// batches of processes and factors that carry no ordering constraints
// between them.
type ScheduleGenerator struct{}

// Name implements Generator.
func (ScheduleGenerator) Name() string { return "schedule" }

// Generate implements Generator.
func (ScheduleGenerator) Generate(_ context.Context, doc *plan.Document) ([]byte, error) {
	graph, err := plan.NewGraphBuilder().Build(doc)
	if err != nil {
		return nil, fmt.Errorf("build graph: %w", err)
	}

	schedule := struct {
		Depth  int        `json:"depth"`
		Levels [][]string `json:"levels"`
	}{
		Depth:  graph.Depth,
		Levels: graph.Levels,
	}
	return json.MarshalIndent(schedule, "", "  ")
}

// GraphGenerator emits the dependency graph in Graphviz DOT text form.
// Rendering the text to an image format stays outside the core.
type GraphGenerator struct{}

// Name implements Generator.
func (GraphGenerator) Name() string { return "graph" }

// Generate implements Generator.
func (GraphGenerator) Generate(_ context.Context, doc *plan.Document) ([]byte, error) {
	graph, err := plan.NewGraphBuilder().Build(doc)
	if err != nil {
		return nil, fmt.Errorf("build graph: %w", err)
	}
	return []byte(graph.ToDOT()), nil
}

// ManifestGenerator emits a YAML build manifest summarizing the
// compiled plan: entity counts plus the relation wiring between
// producers and consumers.
type ManifestGenerator struct{}

// Name implements Generator.
func (ManifestGenerator) Name() string { return "manifest" }

// manifest is the YAML shape of the build manifest fragment.
type manifest struct {
	Processes int                 `yaml:"processes"`
	Factors   int                 `yaml:"factors"`
	Relations map[string]relation `yaml:"relations"`
}

type relation struct {
	Producers []string `yaml:"producers,omitempty"`
	Consumers []string `yaml:"consumers,omitempty"`
}

// Generate implements Generator.
func (ManifestGenerator) Generate(_ context.Context, doc *plan.Document) ([]byte, error) {
	m := manifest{
		Processes: len(doc.Execution.Processes),
		Factors:   len(doc.Inference.Factors),
		Relations: make(map[string]relation),
	}

	record := func(name string, unit *plan.Unit) {
		for _, rel := range unit.QualifiedInputs {
			r := m.Relations[rel]
			r.Consumers = append(r.Consumers, name)
			m.Relations[rel] = r
		}
		for _, rel := range unit.QualifiedOutput {
			r := m.Relations[rel]
			r.Producers = append(r.Producers, name)
			m.Relations[rel] = r
		}
	}

	for _, name := range doc.ProcessNames() {
		record(name, doc.Execution.Processes[name])
	}
	for _, name := range doc.FactorNames() {
		record(name, doc.Inference.Factors[name])
	}

	return yaml.Marshal(m)
}

// DefaultGenerators returns the built-in code generators.
func DefaultGenerators() []Generator {
	return []Generator{
		ProcessIndexGenerator{},
		ScheduleGenerator{},
		GraphGenerator{},
		ManifestGenerator{},
	}
}
