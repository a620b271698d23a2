package workspace

import (
	"errors"
	"time"
)

// Status represents the lifecycle state of one build workspace.
type Status string

const (
	// StatusRunning marks a workspace whose build is in progress.
	StatusRunning Status = "running"

	// StatusCompleted marks a successfully promoted workspace.
	StatusCompleted Status = "completed"

	// StatusAborted marks a workspace whose build failed or was
	// interrupted.
	StatusAborted Status = "aborted"
)

// Pointer aliases maintained by the build directory manager. Each is
// rebound atomically and readable by any later invocation.
const (
	// AliasLatest points at the most recently started workspace.
	AliasLatest = "latest"

	// AliasRunning points at the workspace currently in progress. It is
	// removed on normal exit, but only while still self-referential.
	AliasRunning = "running"

	// AliasAborted points at the most recent failed workspace.
	AliasAborted = "aborted"

	// AliasCompiled points at the most recent fully successful
	// workspace.
	AliasCompiled = "compiled"

	// AliasCompiledBackup retains the previous compiled workspace
	// across a promotion. The immediately preceding success is always
	// recoverable here.
	AliasCompiledBackup = "compiled-backup"
)

// Record is one workspace row in the state store.
type Record struct {
	Key              string    `json:"key"`
	Status           Status    `json:"status"`
	LogPath          string    `json:"log_path"`
	CompiledArtifact string    `json:"compiled_artifact,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Store errors.
var (
	// ErrLockHeld reports that another invocation holds the build lock
	// for this project.
	ErrLockHeld = errors.New("build lock held by another invocation")

	// ErrAliasNotFound reports a missing pointer alias.
	ErrAliasNotFound = errors.New("alias not found")

	// ErrWorkspaceNotFound reports a missing workspace record.
	ErrWorkspaceNotFound = errors.New("workspace not found")
)
