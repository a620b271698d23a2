// Package workspace is the build directory manager: it allocates one
// timestamp-keyed directory per compile attempt, persists stage and
// generator artifacts into it, and maintains the pointer aliases
// (latest, running, aborted, compiled, compiled-backup) in a small
// SQLite state store.
//
// Aliases are rebound inside transactions, so a reader never observes
// a partially updated pointer, and promotion keeps the immediately
// preceding success recoverable under the backup alias. A single
// advisory lock row, held for one whole run, serializes concurrent
// invocations against the same project. Workspaces are never deleted
// by the core; a failed run's artifacts stay behind for inspection.
package workspace
