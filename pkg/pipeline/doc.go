// Package pipeline runs the ordered chain of pure document transforms
// that compiles a dataflow configuration into an execution plan.
//
// Stages are discovered from a registry and executed strictly
// sequentially in lexicographic name order; every stage's output is
// persisted to the build workspace before the next stage starts, so a
// failed run leaves its intermediate artifacts behind for postmortem
// inspection. The compiled-config artifact is a reference to the last
// stage's output, never a duplicate.
package pipeline
