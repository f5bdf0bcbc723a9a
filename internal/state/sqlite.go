package state

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// BuildRecord is one row of build history.
type BuildRecord struct {
	ID        string
	StartedAt time.Time
	Finished  time.Time
	Outcome   string // "success" or "failure"
	Converted int
	Skipped   int
	Error     string
}

// Build outcomes stored in the builds table.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Store persists build history and source fingerprints in SQLite.
// Use ":memory:" for an in-memory database, or a file path for persistent state.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open opens (creating if necessary) the state database.
func Open(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
			return nil, fmt.Errorf("create state directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	store := &Store{db: db}
	if err := store.initialize(); err != nil {
		_ = db.Close() // Best effort cleanup on initialization error
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS builds (
		id TEXT PRIMARY KEY,
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL,
		outcome TEXT NOT NULL,
		converted INTEGER NOT NULL,
		skipped INTEGER NOT NULL,
		error TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_builds_started ON builds(started_at);
	CREATE TABLE IF NOT EXISTS fingerprints (
		path TEXT PRIMARY KEY,
		digest TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// RecordBuild appends a build to the history.
func (s *Store) RecordBuild(ctx context.Context, rec BuildRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO builds (id, started_at, finished_at, outcome, converted, skipped, error) VALUES (?, ?, ?, ?, ?, ?, ?)",
		rec.ID, rec.StartedAt.Unix(), rec.Finished.Unix(), rec.Outcome, rec.Converted, rec.Skipped, rec.Error,
	)
	if err != nil {
		return fmt.Errorf("insert build record: %w", err)
	}
	return nil
}

// LastBuild returns the most recent build record, or sql.ErrNoRows when the
// history is empty.
func (s *Store) LastBuild(ctx context.Context) (BuildRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT id, started_at, finished_at, outcome, converted, skipped, error FROM builds ORDER BY started_at DESC, id DESC LIMIT 1")

	var rec BuildRecord
	var started, finished int64
	if err := row.Scan(&rec.ID, &started, &finished, &rec.Outcome, &rec.Converted, &rec.Skipped, &rec.Error); err != nil {
		return BuildRecord{}, err
	}
	rec.StartedAt = time.Unix(started, 0)
	rec.Finished = time.Unix(finished, 0)
	return rec, nil
}

// Fingerprint returns the stored digest for path, or "" when none is recorded.
func (s *Store) Fingerprint(ctx context.Context, path string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, "SELECT digest FROM fingerprints WHERE path = ?", path)
	var digest string
	if err := row.Scan(&digest); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("query fingerprint: %w", err)
	}
	return digest, nil
}

// SetFingerprint upserts the digest for path.
func (s *Store) SetFingerprint(ctx context.Context, path, digest string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO fingerprints (path, digest, updated_at) VALUES (?, ?, ?) ON CONFLICT(path) DO UPDATE SET digest = excluded.digest, updated_at = excluded.updated_at",
		path, digest, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert fingerprint: %w", err)
	}
	return nil
}

// FingerprintFile hashes the file content at path.
func FingerprintFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file for fingerprint: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
