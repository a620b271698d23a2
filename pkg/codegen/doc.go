// Package codegen runs the code-generation fan-out: independent
// generators consuming the compiled execution plan concurrently, each
// writing one distinct fragment artifact into the build workspace.
//
// The failure policy is fail-fast-on-join: the runner waits for every
// launched generator regardless of earlier failures so that all
// diagnostics are captured and every successful sibling's artifact is
// persisted, then fails the run if any generator failed.
package codegen
