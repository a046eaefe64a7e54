package changed

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	ferrors "git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
)

// SQLiteStore persists fingerprints across runs.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore opens (and creates) the database at dbPath.
// Use ":memory:" for an in-memory database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "create cache directory").
				WithContext("path", dbPath).Build()
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "open cache database").
			WithContext("path", dbPath).Build()
	}
	// database/sql would open a fresh empty in-memory database per connection.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initialize(); err != nil {
		_ = db.Close()
		return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "initialize cache schema").
			WithContext("path", dbPath).Build()
	}
	return store, nil
}

func (s *SQLiteStore) initialize() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS outputs (
		path TEXT PRIMARY KEY,
		fingerprint TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);`)
	return err
}

func (s *SQLiteStore) Fingerprint(ctx context.Context, output string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var fp string
	err := s.db.QueryRowContext(ctx, "SELECT fingerprint FROM outputs WHERE path = ?", output).Scan(&fp)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, ferrors.WrapError(err, ferrors.CategoryFileSystem, "query cache").
			WithContext("path", output).Build()
	}
	return fp, true, nil
}

func (s *SQLiteStore) Record(ctx context.Context, output, fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO outputs (path, fingerprint, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET fingerprint = excluded.fingerprint, updated_at = excluded.updated_at`,
		output, fingerprint, time.Now().Unix(),
	)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "update cache").
			WithContext("path", output).Build()
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
