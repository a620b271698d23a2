package gate

// Policy is one named Rego check evaluated by the policy gate.
type Policy struct {
	// Name is the unique policy name.
	Name string

	// Description provides a human-readable description.
	Description string

	// Rego contains the Rego policy code. Each policy contributes a
	// deny set of violation objects.
	Rego string

	// Enabled indicates if the policy is active.
	Enabled bool
}

// BuiltinPolicies returns the checks every compiled plan is held to.
func BuiltinPolicies() []Policy {
	return []Policy{
		mergeCollisionPolicy(),
		unresolvedDependencyPolicy(),
		unresolvedInputPolicy(),
	}
}

// mergeCollisionPolicy rejects plans whose merge wrote the same
// process key more than once.
func mergeCollisionPolicy() Policy {
	return Policy{
		Name:        "merge-collisions",
		Description: "Rejects execution plans containing process key collisions recorded by the merge stage",
		Enabled:     true,
		Rego: `package inferline.gate.collisions

import rego.v1

deny contains violation if {
	some name in input.execution.collisions
	violation := {
		"message": sprintf("process %s was merged more than once", [name]),
		"severity": "error",
		"entity": name,
	}
}`,
	}
}

// unresolvedDependencyPolicy rejects plans with dependency references
// that do not resolve to a merged process.
func unresolvedDependencyPolicy() Policy {
	return Policy{
		Name:        "unresolved-dependencies",
		Description: "Rejects plans whose dependencies_ references do not resolve within execution.processes",
		Enabled:     true,
		Rego: `package inferline.gate.dependencies

import rego.v1

deny contains violation if {
	some name, unit in input.execution.processes
	some dep in unit.dependencies_
	not input.execution.processes[dep]
	violation := {
		"message": sprintf("%s depends on %s, which is not in the execution plan", [name, dep]),
		"severity": "error",
		"entity": name,
	}
}

deny contains violation if {
	some name, unit in input.inference.factors
	some dep in unit.dependencies_
	not input.execution.processes[dep]
	violation := {
		"message": sprintf("%s depends on %s, which is not in the execution plan", [name, dep]),
		"severity": "error",
		"entity": name,
	}
}`,
	}
}

// unresolvedInputPolicy warns about input relations no process
// produces. Relations loaded from outside the plan are legitimate, so
// this never blocks on its own.
func unresolvedInputPolicy() Policy {
	return Policy{
		Name:        "unresolved-inputs",
		Description: "Warns about input relations that no process in the plan produces",
		Enabled:     true,
		Rego: `package inferline.gate.relations

import rego.v1

produced contains rel if {
	some _, unit in input.execution.processes
	some rel in unit.output_
}

deny contains violation if {
	some name, unit in input.execution.processes
	some rel in unit.input_
	not produced[rel]
	violation := {
		"message": sprintf("%s reads %s, which no process produces", [name, rel]),
		"severity": "warning",
		"entity": name,
	}
}

deny contains violation if {
	some name, unit in input.inference.factors
	some rel in unit.input_
	not produced[rel]
	violation := {
		"message": sprintf("%s reads %s, which no process produces", [name, rel]),
		"severity": "warning",
		"entity": name,
	}
}`,
	}
}
