package plan

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Kind identifies the namespace of an entity name.
type Kind string

const (
	// KindProcess namespaces extraction steps and merged plan entries.
	KindProcess Kind = "process"

	// KindFactor namespaces inference factors.
	KindFactor Kind = "factor"

	// KindRelation namespaces data relations.
	KindRelation Kind = "data"
)

// Qualify returns the namespaced form of name. Already qualified names
// are returned unchanged, which makes qualification idempotent.
func (k Kind) Qualify(name string) string {
	prefix := string(k) + "/"
	if len(name) >= len(prefix) && name[:len(prefix)] == prefix {
		return name
	}
	return prefix + name
}

// Document field names interpreted by the compiler. Everything else in
// a unit definition is opaque payload.
const (
	fieldDependencies    = "dependencies"
	fieldInputRelations  = "input_relations"
	fieldOutputRelation  = "output_relation"
	fieldQualifiedDeps   = "dependencies_"
	fieldQualifiedInputs = "input_"
	fieldQualifiedOutput = "output_"
)

// Unit is one extraction step, inference factor, or merged process
// entry. The unqualified user fields survive qualification alongside
// the derived qualified fields so later stages and generators can see
// both.
type Unit struct {
	// Dependencies are the unqualified dependency names from the user
	// definition.
	Dependencies []string

	// InputRelations are the unqualified input relation names.
	InputRelations []string

	// OutputRelation is the single unqualified output relation name.
	// Empty means the definition has no output relation.
	OutputRelation string

	// QualifiedDeps is the dependencies_ field: dependency names
	// rewritten into the process namespace. Nil until qualification;
	// never nil afterwards.
	QualifiedDeps []string

	// QualifiedInputs is the input_ field: input relation names
	// rewritten into the data namespace. Nil until qualification.
	QualifiedInputs []string

	// QualifiedOutput is the output_ field: a one-element sequence with
	// the qualified output relation. Nil when the definition has no
	// output relation: the field is then absent from the document,
	// never an empty sequence.
	QualifiedOutput []string

	// Payload holds every other field of the definition, untouched.
	Payload map[string]json.RawMessage
}

// MarshalJSON emits the unit with its payload fields plus whichever
// interpreted fields are set. Qualified fields are emitted only once
// qualification has populated them, so pre-qualification documents
// round-trip without growing new keys.
func (u *Unit) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(u.Payload)+6)
	for k, v := range u.Payload {
		out[k] = v
	}

	put := func(key string, value interface{}) error {
		raw, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", key, err)
		}
		out[key] = raw
		return nil
	}

	if u.Dependencies != nil {
		if err := put(fieldDependencies, u.Dependencies); err != nil {
			return nil, err
		}
	}
	if u.InputRelations != nil {
		if err := put(fieldInputRelations, u.InputRelations); err != nil {
			return nil, err
		}
	}
	if u.OutputRelation != "" {
		if err := put(fieldOutputRelation, u.OutputRelation); err != nil {
			return nil, err
		}
	}
	if u.QualifiedDeps != nil {
		if err := put(fieldQualifiedDeps, u.QualifiedDeps); err != nil {
			return nil, err
		}
	}
	if u.QualifiedInputs != nil {
		if err := put(fieldQualifiedInputs, u.QualifiedInputs); err != nil {
			return nil, err
		}
	}
	if u.QualifiedOutput != nil {
		if err := put(fieldQualifiedOutput, u.QualifiedOutput); err != nil {
			return nil, err
		}
	}

	return json.Marshal(out)
}

// UnmarshalJSON splits a unit definition into interpreted fields and
// opaque payload.
func (u *Unit) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*u = Unit{}

	take := func(key string, dst interface{}) error {
		v, ok := raw[key]
		if !ok {
			return nil
		}
		delete(raw, key)
		if err := json.Unmarshal(v, dst); err != nil {
			return fmt.Errorf("unmarshal %s: %w", key, err)
		}
		return nil
	}

	if err := take(fieldDependencies, &u.Dependencies); err != nil {
		return err
	}
	if err := take(fieldInputRelations, &u.InputRelations); err != nil {
		return err
	}
	if err := take(fieldOutputRelation, &u.OutputRelation); err != nil {
		return err
	}
	if err := take(fieldQualifiedDeps, &u.QualifiedDeps); err != nil {
		return err
	}
	if err := take(fieldQualifiedInputs, &u.QualifiedInputs); err != nil {
		return err
	}
	if err := take(fieldQualifiedOutput, &u.QualifiedOutput); err != nil {
		return err
	}

	if len(raw) > 0 {
		u.Payload = raw
	}
	return nil
}

// Clone returns a deep copy of the unit.
func (u *Unit) Clone() (*Unit, error) {
	data, err := json.Marshal(u)
	if err != nil {
		return nil, err
	}
	out := &Unit{}
	if err := json.Unmarshal(data, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Extraction is the extraction section of a document.
type Extraction struct {
	// Extractors maps names to extraction step definitions. Keys are
	// unqualified before the qualification stage and process-qualified
	// afterwards.
	Extractors map[string]*Unit

	// Rest preserves any other keys of the section.
	Rest map[string]json.RawMessage
}

// Inference is the inference section of a document.
type Inference struct {
	// Factors maps names to inference factor definitions.
	Factors map[string]*Unit

	// Rest preserves any other keys of the section.
	Rest map[string]json.RawMessage
}

// Execution is the execution section of a document: the merged plan.
type Execution struct {
	// Processes is the global execution plan mapping qualified process
	// names to process nodes.
	Processes map[string]*Unit

	// Collisions records process keys that were written more than once
	// during the merge. The merge itself stays additive and last-writer
	// -wins; the validation gate surfaces these.
	Collisions []string

	// Rest preserves any other keys of the section.
	Rest map[string]json.RawMessage
}

// Document is one dataflow configuration flowing through the transform
// pipeline. Stages produce new documents and never mutate their input.
type Document struct {
	Extraction Extraction
	Inference  Inference
	Execution  Execution

	// Sections preserves top-level sections the compiler does not
	// interpret.
	Sections map[string]json.RawMessage
}

const (
	sectionExtraction = "extraction"
	sectionInference  = "inference"
	sectionExecution  = "execution"

	keyExtractors = "extractors"
	keyFactors    = "factors"
	keyProcesses  = "processes"
	keyCollisions = "collisions"
)

func marshalSection(units map[string]*Unit, unitsKey string, rest map[string]json.RawMessage, extra map[string]interface{}) (json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(rest)+2)
	for k, v := range rest {
		out[k] = v
	}
	if units != nil {
		raw, err := json.Marshal(units)
		if err != nil {
			return nil, err
		}
		out[unitsKey] = raw
	}
	for k, v := range extra {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		out[k] = raw
	}
	return json.Marshal(out)
}

// MarshalJSON emits the document with its interpreted sections merged
// back alongside the preserved ones.
func (d *Document) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(d.Sections)+3)
	for k, v := range d.Sections {
		out[k] = v
	}

	extraction, err := marshalSection(d.Extraction.Extractors, keyExtractors, d.Extraction.Rest, nil)
	if err != nil {
		return nil, fmt.Errorf("marshal extraction: %w", err)
	}
	out[sectionExtraction] = extraction

	inference, err := marshalSection(d.Inference.Factors, keyFactors, d.Inference.Rest, nil)
	if err != nil {
		return nil, fmt.Errorf("marshal inference: %w", err)
	}
	out[sectionInference] = inference

	var extra map[string]interface{}
	if len(d.Execution.Collisions) > 0 {
		extra = map[string]interface{}{keyCollisions: d.Execution.Collisions}
	}
	execution, err := marshalSection(d.Execution.Processes, keyProcesses, d.Execution.Rest, extra)
	if err != nil {
		return nil, fmt.Errorf("marshal execution: %w", err)
	}
	out[sectionExecution] = execution

	return json.Marshal(out)
}

func unmarshalSection(data json.RawMessage, unitsKey string) (map[string]*Unit, map[string]json.RawMessage, error) {
	if data == nil {
		return nil, nil, nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, err
	}
	var units map[string]*Unit
	if v, ok := raw[unitsKey]; ok {
		delete(raw, unitsKey)
		if err := json.Unmarshal(v, &units); err != nil {
			return nil, nil, fmt.Errorf("unmarshal %s: %w", unitsKey, err)
		}
	}
	if len(raw) == 0 {
		raw = nil
	}
	return units, raw, nil
}

// UnmarshalJSON splits a document into interpreted and preserved
// sections.
func (d *Document) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*d = Document{}

	extractors, rest, err := unmarshalSection(raw[sectionExtraction], keyExtractors)
	if err != nil {
		return fmt.Errorf("unmarshal extraction: %w", err)
	}
	d.Extraction = Extraction{Extractors: extractors, Rest: rest}
	delete(raw, sectionExtraction)

	factors, rest, err := unmarshalSection(raw[sectionInference], keyFactors)
	if err != nil {
		return fmt.Errorf("unmarshal inference: %w", err)
	}
	d.Inference = Inference{Factors: factors, Rest: rest}
	delete(raw, sectionInference)

	processes, rest, err := unmarshalSection(raw[sectionExecution], keyProcesses)
	if err != nil {
		return fmt.Errorf("unmarshal execution: %w", err)
	}
	d.Execution = Execution{Processes: processes, Rest: rest}
	if rest != nil {
		if v, ok := rest[keyCollisions]; ok {
			delete(rest, keyCollisions)
			if err := json.Unmarshal(v, &d.Execution.Collisions); err != nil {
				return fmt.Errorf("unmarshal collisions: %w", err)
			}
			if len(rest) == 0 {
				d.Execution.Rest = nil
			}
		}
	}
	delete(raw, sectionExecution)

	if len(raw) > 0 {
		d.Sections = raw
	}
	return nil
}

// Clone returns a deep copy of the document. Pipeline stages clone
// their input before deriving the next document.
func (d *Document) Clone() (*Document, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("clone document: %w", err)
	}
	out := &Document{}
	if err := json.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("clone document: %w", err)
	}
	return out, nil
}

// ProcessNames returns the qualified process names of the merged plan
// in sorted order.
func (d *Document) ProcessNames() []string {
	names := make([]string, 0, len(d.Execution.Processes))
	for name := range d.Execution.Processes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FactorNames returns the factor names in sorted order.
func (d *Document) FactorNames() []string {
	names := make([]string, 0, len(d.Inference.Factors))
	for name := range d.Inference.Factors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
