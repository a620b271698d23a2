package plan

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrCyclicDependency reports a dependency cycle in the compiled plan.
// The graph builder wraps it with the cycle path.
var ErrCyclicDependency = errors.New("cyclic dependency")

// Reference is one dependency edge whose target does not exist in the
// plan.
type Reference struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Node is one vertex of the dependency graph.
type Node struct {
	// Name is the qualified entity name.
	Name string `json:"name"`

	// Kind is the entity namespace (process or factor).
	Kind Kind `json:"kind"`

	// Level is the execution level: nodes at the same level have no
	// ordering constraints between them.
	Level int `json:"level"`

	// Dependencies are the qualified names this node waits on.
	Dependencies []string `json:"dependencies,omitempty"`

	// Dependents are the qualified names waiting on this node.
	Dependents []string `json:"dependents,omitempty"`
}

// Graph is the dependency graph of one compiled plan: merged processes
// plus inference factors, edged by their dependencies_ fields.
type Graph struct {
	// Nodes maps qualified names to graph nodes.
	Nodes map[string]*Node `json:"nodes"`

	// Levels lists, per execution level, the qualified names at that
	// level in sorted order.
	Levels [][]string `json:"levels"`

	// Roots are the nodes with no resolvable dependencies.
	Roots []string `json:"roots"`

	// Depth is the number of execution levels.
	Depth int `json:"depth"`

	// Unresolved lists dependency edges whose target is missing from
	// the plan. The builder tolerates them; the validation gate decides
	// what to do about them.
	Unresolved []Reference `json:"unresolved,omitempty"`
}

// GraphBuilder constructs the dependency graph for a compiled document
// using Kahn's algorithm for level assignment and DFS for cycle
// reporting.
type GraphBuilder struct {
	kinds     map[string]Kind
	adjacency map[string][]string
	reverse   map[string][]string
	inDegree  map[string]int
	levels    [][]string

	unresolved []Reference
}

// NewGraphBuilder creates an empty graph builder.
func NewGraphBuilder() *GraphBuilder {
	return &GraphBuilder{
		kinds:     make(map[string]Kind),
		adjacency: make(map[string][]string),
		reverse:   make(map[string][]string),
		inDegree:  make(map[string]int),
	}
}

// Build constructs the dependency graph for a document. It fails only
// on a dependency cycle; unresolved references are recorded on the
// graph instead.
func (b *GraphBuilder) Build(doc *Document) (*Graph, error) {
	b.initialize(doc)

	if err := b.detectCycles(); err != nil {
		return nil, err
	}
	b.computeLevels()

	return b.graph(), nil
}

// initialize indexes nodes and edges from the merged processes and the
// factors.
func (b *GraphBuilder) initialize(doc *Document) {
	for name := range doc.Execution.Processes {
		b.addNode(name, KindProcess)
	}
	for name := range doc.Inference.Factors {
		b.addNode(name, KindFactor)
	}

	addEdges := func(units map[string]*Unit) {
		names := make([]string, 0, len(units))
		for name := range units {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			for _, dep := range units[name].QualifiedDeps {
				if _, ok := b.kinds[dep]; !ok {
					b.unresolved = append(b.unresolved, Reference{From: name, To: dep})
					continue
				}
				b.adjacency[dep] = append(b.adjacency[dep], name)
				b.reverse[name] = append(b.reverse[name], dep)
				b.inDegree[name]++
			}
		}
	}
	addEdges(doc.Execution.Processes)
	addEdges(doc.Inference.Factors)
}

func (b *GraphBuilder) addNode(name string, kind Kind) {
	if _, ok := b.kinds[name]; ok {
		return
	}
	b.kinds[name] = kind
	b.adjacency[name] = nil
	b.reverse[name] = nil
	b.inDegree[name] = 0
}

// detectCycles runs DFS over the edge set and reports the first cycle
// found, with its path.
func (b *GraphBuilder) detectCycles() error {
	visited := make(map[string]bool, len(b.kinds))
	onStack := make(map[string]bool, len(b.kinds))

	names := make([]string, 0, len(b.kinds))
	for name := range b.kinds {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if visited[name] {
			continue
		}
		if cycle := b.walk(name, visited, onStack, nil); cycle != nil {
			return fmt.Errorf("%w: %s", ErrCyclicDependency, strings.Join(cycle, " -> "))
		}
	}
	return nil
}

func (b *GraphBuilder) walk(name string, visited, onStack map[string]bool, path []string) []string {
	visited[name] = true
	onStack[name] = true
	path = append(path, name)

	for _, next := range b.adjacency[name] {
		if !visited[next] {
			if cycle := b.walk(next, visited, onStack, path); cycle != nil {
				return cycle
			}
		} else if onStack[next] {
			for i, n := range path {
				if n == next {
					return append(path[i:], next)
				}
			}
		}
	}

	onStack[name] = false
	return nil
}

// computeLevels assigns execution levels with Kahn's algorithm. Called
// after cycle detection, so every node is reachable from some root.
func (b *GraphBuilder) computeLevels() {
	degree := make(map[string]int, len(b.inDegree))
	for name, d := range b.inDegree {
		degree[name] = d
	}

	var current []string
	for name, d := range degree {
		if d == 0 {
			current = append(current, name)
		}
	}
	sort.Strings(current)

	for len(current) > 0 {
		b.levels = append(b.levels, current)

		var next []string
		for _, name := range current {
			for _, dependent := range b.adjacency[name] {
				degree[dependent]--
				if degree[dependent] == 0 {
					next = append(next, dependent)
				}
			}
		}
		sort.Strings(next)
		current = next
	}
}

func (b *GraphBuilder) graph() *Graph {
	g := &Graph{
		Nodes:      make(map[string]*Node, len(b.kinds)),
		Levels:     b.levels,
		Depth:      len(b.levels),
		Unresolved: b.unresolved,
	}

	for level, names := range b.levels {
		for _, name := range names {
			g.Nodes[name] = &Node{
				Name:         name,
				Kind:         b.kinds[name],
				Level:        level,
				Dependencies: b.reverse[name],
				Dependents:   b.adjacency[name],
			}
			if level == 0 {
				g.Roots = append(g.Roots, name)
			}
		}
	}
	sort.Strings(g.Roots)

	return g
}

// ToDOT renders the graph in Graphviz DOT format, grouping nodes by
// execution level. Rendering the text to an image is out of scope.
func (g *Graph) ToDOT() string {
	var sb strings.Builder

	sb.WriteString("digraph ExecutionPlan {\n")
	sb.WriteString("  rankdir=TB;\n")
	sb.WriteString("  node [shape=box, style=rounded];\n\n")

	for level, names := range g.Levels {
		fmt.Fprintf(&sb, "  subgraph cluster_level_%d {\n", level)
		fmt.Fprintf(&sb, "    label=\"Level %d\";\n", level)
		sb.WriteString("    style=dashed;\n")
		for _, name := range names {
			fmt.Fprintf(&sb, "    %q [fillcolor=%q, style=\"filled,rounded\"];\n",
				name, kindColor(g.Nodes[name].Kind))
		}
		sb.WriteString("  }\n\n")
	}

	names := make([]string, 0, len(g.Nodes))
	for name := range g.Nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, dep := range g.Nodes[name].Dependencies {
			fmt.Fprintf(&sb, "  %q -> %q;\n", dep, name)
		}
	}
	for _, ref := range g.Unresolved {
		fmt.Fprintf(&sb, "  %q -> %q [style=dotted, color=red];\n", ref.To, ref.From)
	}

	sb.WriteString("}\n")
	return sb.String()
}

func kindColor(kind Kind) string {
	switch kind {
	case KindProcess:
		return "lightblue"
	case KindFactor:
		return "lightgreen"
	default:
		return "white"
	}
}
