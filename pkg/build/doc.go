// Package build orchestrates a complete compilation run.
//
// A build allocates a timestamped workspace, attaches the build log,
// drives the sequential transform pipeline, validates the compiled
// document with the gates, fans out the code generators, verifies the
// generated fragments, and promotes the workspace in a single store
// transaction. Whole runs are mutually exclusive via an advisory lock
// row in the workspace store.
//
// Failures are classified by BuildError: structural failures come from
// loading or transforming the plan, validation failures from gate
// rejections, partial failures from the generator fan-out, and
// interruptions from cancellation. ExitCode maps a classified error to
// the process exit status.
package build
