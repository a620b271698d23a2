package plan

import (
	"fmt"
	"sort"
)

// qualifyUnit derives the qualified fields of a single definition.
// Dependency defaults are explicit: a definition without dependencies
// gets an empty dependencies_ sequence, while a definition without an
// output relation gets no output_ field at all.
func qualifyUnit(u *Unit) (*Unit, error) {
	out, err := u.Clone()
	if err != nil {
		return nil, err
	}

	out.QualifiedDeps = make([]string, 0, len(u.Dependencies))
	for _, dep := range u.Dependencies {
		out.QualifiedDeps = append(out.QualifiedDeps, KindProcess.Qualify(dep))
	}

	out.QualifiedInputs = make([]string, 0, len(u.InputRelations))
	for _, rel := range u.InputRelations {
		out.QualifiedInputs = append(out.QualifiedInputs, KindRelation.Qualify(rel))
	}

	if u.OutputRelation != "" {
		out.QualifiedOutput = []string{KindRelation.Qualify(u.OutputRelation)}
	} else {
		out.QualifiedOutput = nil
	}

	return out, nil
}

// qualifyMapping rewrites a name→definition mapping into the given
// namespace, qualifying every entry's references along the way.
func qualifyMapping(units map[string]*Unit, kind Kind) (map[string]*Unit, error) {
	out := make(map[string]*Unit, len(units))
	for name, unit := range units {
		qualified, err := qualifyUnit(unit)
		if err != nil {
			return nil, fmt.Errorf("qualify %s: %w", name, err)
		}
		out[kind.Qualify(name)] = qualified
	}
	return out, nil
}

// Qualify returns a new document with both definition mappings
// rewritten: extraction steps into the process namespace, inference
// factors into the factor namespace, and every dependency and relation
// reference qualified. The input document is left untouched.
func Qualify(doc *Document) (*Document, error) {
	out, err := doc.Clone()
	if err != nil {
		return nil, err
	}

	if out.Extraction.Extractors, err = qualifyMapping(doc.Extraction.Extractors, KindProcess); err != nil {
		return nil, fmt.Errorf("qualify extractors: %w", err)
	}
	if out.Inference.Factors, err = qualifyMapping(doc.Inference.Factors, KindFactor); err != nil {
		return nil, fmt.Errorf("qualify factors: %w", err)
	}

	return out, nil
}

// MergeProcesses returns a new document with every qualified extraction
// step merged additively into the global execution plan. A key written
// more than once is recorded as a collision (last writer wins, nothing
// is deduplicated silently) and left for the validation gate to
// reject. Assumes the document has already been qualified.
func MergeProcesses(doc *Document) (*Document, error) {
	out, err := doc.Clone()
	if err != nil {
		return nil, err
	}

	if out.Execution.Processes == nil {
		out.Execution.Processes = make(map[string]*Unit, len(doc.Extraction.Extractors))
	}

	names := make([]string, 0, len(out.Extraction.Extractors))
	for name := range out.Extraction.Extractors {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if _, exists := out.Execution.Processes[name]; exists {
			out.Execution.Collisions = append(out.Execution.Collisions, name)
		}
		unit, err := out.Extraction.Extractors[name].Clone()
		if err != nil {
			return nil, fmt.Errorf("merge %s: %w", name, err)
		}
		out.Execution.Processes[name] = unit
	}

	return out, nil
}
