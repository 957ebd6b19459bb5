package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Store.Get when no entry exists for a hash.
var ErrNotFound = errors.New("cache entry not found")

// Entry is one cached OCR result, keyed by the content hash of the image
// bytes it was computed from.
type Entry struct {
	ContentHash      string    `json:"content_hash"`
	Text             string    `json:"text"`
	CreatedAt        time.Time `json:"created_at"`
	ExpiresAt        time.Time `json:"expires_at"`
	SourceByteSize   int64     `json:"source_byte_size"`
	ProcessingTimeMs float64   `json:"processing_time_ms,omitempty"`
}

// Expired reports whether the entry is past its expiry at the given time.
func (e *Entry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// Store is the persistence backend behind ContentCache. Implementations must
// treat Put as an idempotent overwrite: two concurrent writers for the same
// hash are acceptable and last-writer-wins.
type Store interface {
	// Get returns the entry for hash, or ErrNotFound.
	Get(ctx context.Context, hash string) (*Entry, error)

	// Put writes the entry, overwriting any existing entry for the same hash.
	Put(ctx context.Context, entry *Entry) error

	// Delete removes the entry for hash. Deleting a missing entry is not an
	// error.
	Delete(ctx context.Context, hash string) error

	// Entries returns all stored entries. Used by sweep and stats only.
	Entries(ctx context.Context) ([]Entry, error)

	// Close releases backend resources.
	Close() error
}
