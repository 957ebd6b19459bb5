package cache

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteStore is the default embedded cache backend. One database file holds
// one row per content digest; no server process is required.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS ocr_cache (
	content_hash       TEXT PRIMARY KEY,
	text               TEXT NOT NULL,
	created_at         INTEGER NOT NULL,
	expires_at         INTEGER NOT NULL,
	source_byte_size   INTEGER NOT NULL,
	processing_time_ms REAL NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_ocr_cache_expires_at ON ocr_cache (expires_at);
`

// OpenSQLiteStore opens or creates the cache database under dir.
func OpenSQLiteStore(dir string) (*SQLiteStore, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	dbPath := filepath.Join(dir, "ocr_cache.db")
	db, err := sql.Open("sqlite", dbPath+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	// WAL keeps concurrent readers cheap while one writer appends.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create cache schema: %w", err)
	}

	return &SQLiteStore{db: db, dbPath: dbPath}, nil
}

// Get returns the entry for hash, or ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, hash string) (*Entry, error) {
	const query = `
		SELECT content_hash, text, created_at, expires_at, source_byte_size, processing_time_ms
		FROM ocr_cache WHERE content_hash = ?`

	var entry Entry
	var createdAt, expiresAt int64
	err := s.db.QueryRowContext(ctx, query, hash).Scan(
		&entry.ContentHash,
		&entry.Text,
		&createdAt,
		&expiresAt,
		&entry.SourceByteSize,
		&entry.ProcessingTimeMs,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache entry: %w", err)
	}

	entry.CreatedAt = time.Unix(0, createdAt)
	entry.ExpiresAt = time.Unix(0, expiresAt)
	return &entry, nil
}

// Put writes the entry, overwriting any existing row for the same hash.
func (s *SQLiteStore) Put(ctx context.Context, entry *Entry) error {
	const query = `
		INSERT INTO ocr_cache (content_hash, text, created_at, expires_at, source_byte_size, processing_time_ms)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (content_hash) DO UPDATE SET
			text = excluded.text,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at,
			source_byte_size = excluded.source_byte_size,
			processing_time_ms = excluded.processing_time_ms`

	_, err := s.db.ExecContext(ctx, query,
		entry.ContentHash,
		entry.Text,
		entry.CreatedAt.UnixNano(),
		entry.ExpiresAt.UnixNano(),
		entry.SourceByteSize,
		entry.ProcessingTimeMs,
	)
	if err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return nil
}

// Delete removes the row for hash.
func (s *SQLiteStore) Delete(ctx context.Context, hash string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM ocr_cache WHERE content_hash = ?", hash); err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

// Entries returns all stored entries.
func (s *SQLiteStore) Entries(ctx context.Context) ([]Entry, error) {
	const query = `
		SELECT content_hash, text, created_at, expires_at, source_byte_size, processing_time_ms
		FROM ocr_cache`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list cache entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		var createdAt, expiresAt int64
		if err := rows.Scan(
			&entry.ContentHash,
			&entry.Text,
			&createdAt,
			&expiresAt,
			&entry.SourceByteSize,
			&entry.ProcessingTimeMs,
		); err != nil {
			return nil, fmt.Errorf("failed to scan cache entry: %w", err)
		}
		entry.CreatedAt = time.Unix(0, createdAt)
		entry.ExpiresAt = time.Unix(0, expiresAt)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate cache entries: %w", err)
	}
	return entries, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
