package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/inferline/inferline/pkg/telemetry"
)

// logFileName is the per-workspace build log.
const logFileName = "build.log"

// Manager is the build directory manager: it allocates one workspace
// per compile attempt under the build root and keeps the pointer
// aliases in the state store.
type Manager struct {
	root   string
	store  *Store
	logger *telemetry.Logger
}

// NewManager creates a build directory manager rooted at root.
func NewManager(root string, store *Store, logger *telemetry.Logger) *Manager {
	return &Manager{
		root:   root,
		store:  store,
		logger: logger.NewComponentLogger("workspace"),
	}
}

// Store exposes the underlying state store.
func (m *Manager) Store() *Store {
	return m.store
}

// newKey derives a workspace key from the current time plus a short
// random suffix. The suffix guarantees uniqueness even for two
// allocations within the same timestamp tick.
func newKey(now time.Time) string {
	return now.UTC().Format("20060102-150405.000") + "-" + uuid.NewString()[:8]
}

// Allocate creates a fresh workspace for one compile attempt: the
// on-disk directory, the build log, the state store record, and the
// latest/running aliases.
func (m *Manager) Allocate(ctx context.Context) (*Workspace, error) {
	key := newKey(time.Now())
	dir := filepath.Join(m.root, key)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace directory: %w", err)
	}

	ws := &Workspace{key: key, dir: dir}

	now := time.Now().UTC()
	rec := &Record{
		Key:       key,
		Status:    StatusRunning,
		LogPath:   ws.LogPath(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.store.CreateWorkspace(ctx, rec); err != nil {
		return nil, err
	}

	if err := m.store.SetAlias(ctx, AliasLatest, key); err != nil {
		return nil, err
	}
	if err := m.store.SetAlias(ctx, AliasRunning, key); err != nil {
		return nil, err
	}

	m.logger.WithWorkspace(key).Info("workspace allocated")
	return ws, nil
}

// Abort marks the workspace aborted, rebinds the aborted alias to it,
// and clears the running alias if it still refers to this workspace.
// Artifacts already persisted are retained for postmortem inspection;
// nothing is deleted.
func (m *Manager) Abort(ctx context.Context, ws *Workspace) error {
	if err := m.store.UpdateStatus(ctx, ws.Key(), StatusAborted); err != nil {
		return err
	}
	if err := m.store.SetAlias(ctx, AliasAborted, ws.Key()); err != nil {
		return err
	}
	if _, err := m.store.RemoveAliasIf(ctx, AliasRunning, ws.Key()); err != nil {
		return err
	}
	m.logger.WithWorkspace(ws.Key()).Warn("workspace aborted")
	return nil
}

// Promote publishes the workspace as the canonical compiled build:
// records the compiled artifact reference, performs the two-step
// compiled/backup alias rebinding, and clears the running alias if it
// still refers to this workspace.
func (m *Manager) Promote(ctx context.Context, ws *Workspace, compiledArtifact string) error {
	if err := m.store.SetCompiledArtifact(ctx, ws.Key(), compiledArtifact); err != nil {
		return err
	}
	if err := m.store.Promote(ctx, ws.Key()); err != nil {
		return err
	}
	if _, err := m.store.RemoveAliasIf(ctx, AliasRunning, ws.Key()); err != nil {
		return err
	}
	m.logger.WithWorkspace(ws.Key()).Info("workspace promoted")
	return nil
}

// Workspace is the on-disk identity of one compile attempt. All
// inter-unit communication happens through its artifact files, each
// read-only once the producing unit completes.
type Workspace struct {
	key string
	dir string
}

// Key returns the workspace identifier.
func (w *Workspace) Key() string { return w.key }

// Dir returns the workspace directory.
func (w *Workspace) Dir() string { return w.dir }

// LogPath returns the path of the per-workspace build log.
func (w *Workspace) LogPath() string {
	return filepath.Join(w.dir, logFileName)
}

// SaveArtifact persists one named artifact into the workspace,
// creating intermediate directories as needed, and returns its path.
// Implements the pipeline and codegen sinks.
func (w *Workspace) SaveArtifact(name string, data []byte) (string, error) {
	path := filepath.Join(w.dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create artifact directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write artifact %s: %w", name, err)
	}
	return path, nil
}

// ArtifactPath returns the path an artifact name resolves to, without
// checking existence.
func (w *Workspace) ArtifactPath(name string) string {
	return filepath.Join(w.dir, filepath.FromSlash(name))
}
