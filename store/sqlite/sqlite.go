/*
Package sqlite provides a SQLite-backed snapshot store.

PURPOSE:
  Persists the serialized ledger between runs. The ledger is a single JSON
  document, so the store is a small keyed table rather than a relational
  schema; all structure lives in the payload and is re-validated by the
  sanitizer on every load.

KEY TABLES:
  snapshots:       Current payload per key (one row, key "ledger")
  corrupt_backups: Raw payloads that lost every order on import (append-only)
  meta:            Small string values (last export time, last cloud backup)

APPEND-ONLY:
  corrupt_backups is never updated or deleted from outside Reset. Every
  wipe-out keeps its own row so a second bad import cannot overwrite the
  evidence of the first.

CONCURRENCY:
  Uses sync.RWMutex plus a single open connection. The ledger has exactly
  one writer.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Readers don't block the writer
  - Better crash recovery

USAGE:
  st, err := sqlite.New("./data/ledger.db")
  if err != nil {
      log.Fatal(err)
  }
  defer st.Close()

  svc := gateway.New(ledger.NewStore(), st, logger)

SEE ALSO:
  - gateway/gateway.go: SnapshotStore interface and its only consumer
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const currentKey = "ledger"

// Store implements gateway.SnapshotStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// BackupRecord is one row of corrupt_backups.
type BackupRecord struct {
	ID        int64
	Payload   []byte
	CreatedAt time.Time
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: ":memory:" databases are per connection.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS snapshots (
		key TEXT PRIMARY KEY,
		payload BLOB NOT NULL,
		saved_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS corrupt_backups (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		payload BLOB NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// SNAPSHOT OPERATIONS
// =============================================================================

// Save overwrites the current payload.
func (s *Store) Save(ctx context.Context, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO snapshots (key, payload, saved_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			payload = excluded.payload,
			saved_at = excluded.saved_at
	`
	_, err := s.db.ExecContext(ctx, query, currentKey, payload, now())
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Load returns the current payload, or nil if nothing was saved yet.
func (s *Store) Load(ctx context.Context) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM snapshots WHERE key = ?`, currentKey,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return payload, nil
}

// =============================================================================
// CORRUPT BACKUPS
// =============================================================================

// SaveCorruptBackup appends a raw payload to corrupt_backups.
func (s *Store) SaveCorruptBackup(ctx context.Context, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO corrupt_backups (payload, created_at) VALUES (?, ?)`,
		payload, now(),
	)
	if err != nil {
		return fmt.Errorf("save corrupt backup: %w", err)
	}
	return nil
}

// LoadCorruptBackup returns the most recent backup payload, or nil.
func (s *Store) LoadCorruptBackup(ctx context.Context) ([]byte, error) {
	backups, err := s.ListCorruptBackups(ctx, 1)
	if err != nil || len(backups) == 0 {
		return nil, err
	}
	return backups[0].Payload, nil
}

// ListCorruptBackups returns up to limit backups, newest first.
func (s *Store) ListCorruptBackups(ctx context.Context, limit int) ([]BackupRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, payload, created_at FROM corrupt_backups ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list corrupt backups: %w", err)
	}
	defer rows.Close()

	var out []BackupRecord
	for rows.Next() {
		var rec BackupRecord
		var createdAt string
		if err := rows.Scan(&rec.ID, &rec.Payload, &createdAt); err != nil {
			return nil, err
		}
		rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// =============================================================================
// META
// =============================================================================

func (s *Store) SetMeta(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}

// Meta returns the value for key and "" when unset.
func (s *Store) Meta(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all tables, including the corrupt backup history and meta.
// Test helper only: the gateway's Reset empties the ledger and keeps both.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"snapshots", "corrupt_backups", "meta"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
