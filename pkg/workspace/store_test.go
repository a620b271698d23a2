package workspace

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(StoreConfig{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func createWorkspace(t *testing.T, store *Store, key string) {
	t.Helper()
	now := time.Now().UTC()
	err := store.CreateWorkspace(context.Background(), &Record{
		Key:       key,
		Status:    StatusRunning,
		LogPath:   "/tmp/" + key + "/build.log",
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("CreateWorkspace %s: %v", key, err)
	}
}

func TestStoreRequiresPath(t *testing.T) {
	if _, err := NewStore(StoreConfig{}); err == nil {
		t.Error("expected empty path to fail")
	}
}

func TestWorkspaceLifecycle(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	createWorkspace(t, store, "ws-a")

	rec, err := store.GetWorkspace(ctx, "ws-a")
	if err != nil {
		t.Fatalf("GetWorkspace: %v", err)
	}
	if rec.Status != StatusRunning {
		t.Errorf("status = %s, want %s", rec.Status, StatusRunning)
	}

	if err := store.UpdateStatus(ctx, "ws-a", StatusAborted); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	rec, err = store.GetWorkspace(ctx, "ws-a")
	if err != nil {
		t.Fatalf("GetWorkspace: %v", err)
	}
	if rec.Status != StatusAborted {
		t.Errorf("status = %s, want %s", rec.Status, StatusAborted)
	}

	if err := store.SetCompiledArtifact(ctx, "ws-a", "030-merge.json"); err != nil {
		t.Fatalf("SetCompiledArtifact: %v", err)
	}
	rec, _ = store.GetWorkspace(ctx, "ws-a")
	if rec.CompiledArtifact != "030-merge.json" {
		t.Errorf("CompiledArtifact = %q", rec.CompiledArtifact)
	}

	if _, err := store.GetWorkspace(ctx, "nope"); !errors.Is(err, ErrWorkspaceNotFound) {
		t.Errorf("missing workspace error = %v, want ErrWorkspaceNotFound", err)
	}
	if err := store.UpdateStatus(ctx, "nope", StatusAborted); !errors.Is(err, ErrWorkspaceNotFound) {
		t.Errorf("missing workspace update error = %v, want ErrWorkspaceNotFound", err)
	}
}

func TestAliases(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	createWorkspace(t, store, "ws-a")
	createWorkspace(t, store, "ws-b")

	if err := store.SetAlias(ctx, AliasLatest, "ws-a"); err != nil {
		t.Fatalf("SetAlias: %v", err)
	}
	// Rebinding overwrites.
	if err := store.SetAlias(ctx, AliasLatest, "ws-b"); err != nil {
		t.Fatalf("SetAlias rebind: %v", err)
	}

	key, err := store.GetAlias(ctx, AliasLatest)
	if err != nil {
		t.Fatalf("GetAlias: %v", err)
	}
	if key != "ws-b" {
		t.Errorf("latest = %q, want ws-b", key)
	}

	if _, err := store.GetAlias(ctx, "unknown"); !errors.Is(err, ErrAliasNotFound) {
		t.Errorf("missing alias error = %v, want ErrAliasNotFound", err)
	}

	all, err := store.Aliases(ctx)
	if err != nil {
		t.Fatalf("Aliases: %v", err)
	}
	if all[AliasLatest] != "ws-b" {
		t.Errorf("Aliases() = %v", all)
	}
}

func TestRemoveAliasIf(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	createWorkspace(t, store, "ws-a")
	if err := store.SetAlias(ctx, AliasRunning, "ws-a"); err != nil {
		t.Fatalf("SetAlias: %v", err)
	}

	// Wrong key leaves the alias alone.
	removed, err := store.RemoveAliasIf(ctx, AliasRunning, "ws-other")
	if err != nil {
		t.Fatalf("RemoveAliasIf: %v", err)
	}
	if removed {
		t.Error("alias removed despite pointing elsewhere")
	}
	if _, err := store.GetAlias(ctx, AliasRunning); err != nil {
		t.Errorf("alias disappeared: %v", err)
	}

	removed, err = store.RemoveAliasIf(ctx, AliasRunning, "ws-a")
	if err != nil {
		t.Fatalf("RemoveAliasIf: %v", err)
	}
	if !removed {
		t.Error("alias not removed for matching key")
	}
	if _, err := store.GetAlias(ctx, AliasRunning); !errors.Is(err, ErrAliasNotFound) {
		t.Errorf("alias still resolvable after removal: %v", err)
	}
}

func TestPromoteChain(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	createWorkspace(t, store, "ws-a")
	createWorkspace(t, store, "ws-b")

	// First promotion: no previous compiled build, so no backup either.
	if err := store.Promote(ctx, "ws-a"); err != nil {
		t.Fatalf("Promote ws-a: %v", err)
	}

	compiled, err := store.GetAlias(ctx, AliasCompiled)
	if err != nil {
		t.Fatalf("GetAlias compiled: %v", err)
	}
	if compiled != "ws-a" {
		t.Errorf("compiled = %q, want ws-a", compiled)
	}
	if _, err := store.GetAlias(ctx, AliasCompiledBackup); !errors.Is(err, ErrAliasNotFound) {
		t.Errorf("backup exists after first promotion: %v", err)
	}

	rec, _ := store.GetWorkspace(ctx, "ws-a")
	if rec.Status != StatusCompleted {
		t.Errorf("promoted status = %s, want %s", rec.Status, StatusCompleted)
	}

	// Second promotion: the old compiled build becomes the backup.
	if err := store.Promote(ctx, "ws-b"); err != nil {
		t.Fatalf("Promote ws-b: %v", err)
	}

	compiled, _ = store.GetAlias(ctx, AliasCompiled)
	backup, err := store.GetAlias(ctx, AliasCompiledBackup)
	if err != nil {
		t.Fatalf("GetAlias backup: %v", err)
	}
	if compiled != "ws-b" || backup != "ws-a" {
		t.Errorf("compiled = %q backup = %q, want ws-b / ws-a", compiled, backup)
	}
}

func TestBuildLockMutualExclusion(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	if err := store.AcquireLock(ctx, "owner-1"); err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}

	err := store.AcquireLock(ctx, "owner-2")
	if !errors.Is(err, ErrLockHeld) {
		t.Errorf("second acquire error = %v, want ErrLockHeld", err)
	}

	// Release by a non-holder is a no-op.
	if err := store.ReleaseLock(ctx, "owner-2"); err != nil {
		t.Fatalf("ReleaseLock non-holder: %v", err)
	}
	if err := store.AcquireLock(ctx, "owner-2"); !errors.Is(err, ErrLockHeld) {
		t.Error("lock released by non-holder")
	}

	if err := store.ReleaseLock(ctx, "owner-1"); err != nil {
		t.Fatalf("ReleaseLock: %v", err)
	}
	if err := store.AcquireLock(ctx, "owner-2"); err != nil {
		t.Errorf("acquire after release: %v", err)
	}
}

func TestListWorkspacesNewestFirst(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i, key := range []string{"ws-old", "ws-mid", "ws-new"} {
		ts := base.Add(time.Duration(i) * time.Minute)
		err := store.CreateWorkspace(ctx, &Record{
			Key: key, Status: StatusRunning, LogPath: "/tmp/log",
			CreatedAt: ts, UpdatedAt: ts,
		})
		if err != nil {
			t.Fatalf("CreateWorkspace: %v", err)
		}
	}

	records, err := store.ListWorkspaces(ctx, 2)
	if err != nil {
		t.Fatalf("ListWorkspaces: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].Key != "ws-new" || records[1].Key != "ws-mid" {
		t.Errorf("order = [%s %s], want [ws-new ws-mid]", records[0].Key, records[1].Key)
	}
}
