// Package plan defines the dataflow document model and the pure
// transforms that turn a user-authored configuration into a fully
// qualified execution plan.
//
// A Document carries three sections the compiler understands
// (extraction.extractors, inference.factors, and execution.processes)
// plus arbitrary additional sections that are preserved verbatim
// through every transform. Each unit definition keeps its kind-specific
// payload opaque: only the dependency and relation fields are
// interpreted here.
//
// Qualification namespaces every entity name by kind:
//
//	process/<name>  extraction steps and merged plan entries
//	factor/<name>   inference factors
//	data/<name>     relations
//
// Qualification is deterministic and idempotent: an already qualified
// name is returned unchanged, so re-running a transform over its own
// output is safe.
//
// The graph builder in this package computes execution levels for the
// qualified plan (Kahn's algorithm) and reports cycles and unresolved
// references. It never rejects a plan on its own; surfacing those
// findings is the validation gate's job.
package plan
