package workspace

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is the small explicit state store behind the pointer aliases
// and the advisory build lock. Alias rebinding happens inside SQLite
// transactions, so no reader ever observes a half-updated pointer, and
// the lock closes the race between concurrent whole-run invocations
// against the same project.
type Store struct {
	db   *sql.DB
	path string
}

// StoreConfig holds state store configuration.
type StoreConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewStore creates a new state store instance.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("state store path is required")
	}
	return &Store{path: cfg.Path}, nil
}

// Init opens the database connection and enables WAL mode.
func (s *Store) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open state store: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping state store: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations from the embedded sources.
func (s *Store) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("state store not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// AcquireLock takes the advisory build lock for owner. It fails with
// ErrLockHeld when another invocation already holds it.
func (s *Store) AcquireLock(ctx context.Context, owner string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO build_lock (id, owner, acquired_at) VALUES (1, ?, ?)`,
		owner, time.Now().UTC(),
	)
	if err != nil {
		var holder string
		row := s.db.QueryRowContext(ctx, `SELECT owner FROM build_lock WHERE id = 1`)
		if scanErr := row.Scan(&holder); scanErr == nil {
			return fmt.Errorf("%w (owner %s)", ErrLockHeld, holder)
		}
		return fmt.Errorf("failed to acquire build lock: %w", err)
	}
	return nil
}

// ReleaseLock releases the advisory build lock if owner still holds it.
func (s *Store) ReleaseLock(ctx context.Context, owner string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM build_lock WHERE id = 1 AND owner = ?`, owner)
	if err != nil {
		return fmt.Errorf("failed to release build lock: %w", err)
	}
	return nil
}

// CreateWorkspace inserts a new workspace record.
func (s *Store) CreateWorkspace(ctx context.Context, rec *Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workspaces (key, status, log_path, compiled_artifact, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.Key, rec.Status, rec.LogPath, nullable(rec.CompiledArtifact), rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create workspace: %w", err)
	}
	return nil
}

// GetWorkspace retrieves one workspace record by key.
func (s *Store) GetWorkspace(ctx context.Context, key string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT key, status, log_path, compiled_artifact, created_at, updated_at
		FROM workspaces WHERE key = ?`, key)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrWorkspaceNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workspace: %w", err)
	}
	return rec, nil
}

// ListWorkspaces returns the most recent workspace records, newest
// first.
func (s *Store) ListWorkspaces(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, status, log_path, compiled_artifact, created_at, updated_at
		FROM workspaces ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list workspaces: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workspace: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// UpdateStatus transitions a workspace to the given status.
func (s *Store) UpdateStatus(ctx context.Context, key string, status Status) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE workspaces SET status = ?, updated_at = ? WHERE key = ?`,
		status, time.Now().UTC(), key)
	if err != nil {
		return fmt.Errorf("failed to update workspace status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrWorkspaceNotFound, key)
	}
	return nil
}

// SetCompiledArtifact records which artifact holds the compiled plan:
// a reference to the last pipeline stage's output, not a copy of it.
func (s *Store) SetCompiledArtifact(ctx context.Context, key, artifact string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE workspaces SET compiled_artifact = ?, updated_at = ? WHERE key = ?`,
		artifact, time.Now().UTC(), key)
	if err != nil {
		return fmt.Errorf("failed to set compiled artifact: %w", err)
	}
	return nil
}

// SetAlias rebinds one pointer alias to a workspace.
func (s *Store) SetAlias(ctx context.Context, name, key string) error {
	return s.setAlias(ctx, s.db, name, key)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (s *Store) setAlias(ctx context.Context, db execer, name, key string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO aliases (name, workspace_key, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET workspace_key = excluded.workspace_key, updated_at = excluded.updated_at`,
		name, key, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to set alias %s: %w", name, err)
	}
	return nil
}

// GetAlias resolves one pointer alias.
func (s *Store) GetAlias(ctx context.Context, name string) (string, error) {
	var key string
	err := s.db.QueryRowContext(ctx,
		`SELECT workspace_key FROM aliases WHERE name = ?`, name).Scan(&key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrAliasNotFound, name)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get alias %s: %w", name, err)
	}
	return key, nil
}

// Aliases returns all bound pointer aliases.
func (s *Store) Aliases(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, workspace_key FROM aliases`)
	if err != nil {
		return nil, fmt.Errorf("failed to list aliases: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var name, key string
		if err := rows.Scan(&name, &key); err != nil {
			return nil, fmt.Errorf("failed to scan alias: %w", err)
		}
		out[name] = key
	}
	return out, rows.Err()
}

// RemoveAliasIf removes an alias only while it still points at the
// given workspace. Guards normal-exit cleanup of the running alias
// against a stale pointer left by a differently timed invocation.
func (s *Store) RemoveAliasIf(ctx context.Context, name, key string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM aliases WHERE name = ? AND workspace_key = ?`, name, key)
	if err != nil {
		return false, fmt.Errorf("failed to remove alias %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Promote publishes a workspace as the canonical compiled build. The
// two-step rebinding (previous compiled alias renamed to the backup
// alias, then the compiled alias bound to the new workspace) runs in
// one transaction together with the status transition, so readers see
// either the old promotion or the new one, never an in-between state.
func (s *Store) Promote(ctx context.Context, key string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin promotion: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var previous string
	err = tx.QueryRowContext(ctx,
		`SELECT workspace_key FROM aliases WHERE name = ?`, AliasCompiled).Scan(&previous)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to read compiled alias: %w", err)
	}

	if previous != "" {
		if err := s.setAlias(ctx, tx, AliasCompiledBackup, previous); err != nil {
			return err
		}
	}
	if err := s.setAlias(ctx, tx, AliasCompiled, key); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE workspaces SET status = ?, updated_at = ? WHERE key = ?`,
		StatusCompleted, time.Now().UTC(), key); err != nil {
		return fmt.Errorf("failed to complete workspace: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit promotion: %w", err)
	}
	return nil
}

// scanner abstracts sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row scanner) (*Record, error) {
	rec := &Record{}
	var artifact sql.NullString
	if err := row.Scan(&rec.Key, &rec.Status, &rec.LogPath, &artifact, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	if artifact.Valid {
		rec.CompiledArtifact = artifact.String
	}
	return rec, nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
