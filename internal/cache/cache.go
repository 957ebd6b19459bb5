/**
 * Content-addressable OCR cache.
 *
 * OCR is the most expensive and highest-latency step of a scan, so results
 * are keyed strictly on a SHA-256 digest of the image bytes: retries,
 * re-uploads, and different sessions photographing identical bytes all share
 * one entry. The cache is strictly an optimization: every storage failure
 * degrades to a miss, never to a scan failure.
 */

package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/menulens/menuscan-worker/internal/logging"
)

// DefaultTTL is how long an OCR result stays valid unless overridden per Put.
const DefaultTTL = 24 * time.Hour

// Stats describes the cache contents. Diagnostic only.
type Stats struct {
	Count      int
	TotalBytes int64
	Oldest     time.Time
	Newest     time.Time
}

// PutOptions carries optional metadata for a Put.
type PutOptions struct {
	// ProcessingTime is how long the OCR run that produced the text took.
	ProcessingTime time.Duration
	// TTL overrides DefaultTTL when positive.
	TTL time.Duration
}

// ContentCache maps image bytes to previously computed OCR text.
//
// Two concurrent callers that both miss on the same digest will both run OCR
// and both write; the overwrite is idempotent, so no cross-request locking is
// taken.
type ContentCache struct {
	store  Store
	ttl    time.Duration
	logger *logging.Logger

	// now is replaceable for expiry tests.
	now func() time.Time
}

// New creates a ContentCache over the given store.
func New(store Store, ttl time.Duration, logger *logging.Logger) *ContentCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = logging.NewLogger("ContentCache")
	}
	return &ContentCache{
		store:  store,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// Digest returns the hex SHA-256 content hash used as the cache key.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Get returns the cached OCR text for the given image bytes. The second
// return value is false on a miss, on an expired entry (which is deleted
// lazily), and on any storage failure.
func (c *ContentCache) Get(ctx context.Context, data []byte) (string, bool) {
	hash := Digest(data)

	entry, err := c.store.Get(ctx, hash)
	if err == ErrNotFound {
		return "", false
	}
	if err != nil {
		// Storage trouble is a miss, never a failure.
		c.logger.Warn("cache read failed, treating as miss", "hash", hash, "error", err)
		return "", false
	}

	if entry.Expired(c.now()) {
		if err := c.store.Delete(ctx, hash); err != nil {
			c.logger.Warn("failed to delete expired entry", "hash", hash, "error", err)
		}
		return "", false
	}

	return entry.Text, true
}

// Put stores OCR text for the given image bytes, overwriting any existing
// entry for the same digest. Write failures are logged and swallowed so they
// cannot fail the calling OCR flow.
func (c *ContentCache) Put(ctx context.Context, data []byte, text string, opts PutOptions) {
	ttl := c.ttl
	if opts.TTL > 0 {
		ttl = opts.TTL
	}

	now := c.now()
	entry := &Entry{
		ContentHash:      Digest(data),
		Text:             text,
		CreatedAt:        now,
		ExpiresAt:        now.Add(ttl),
		SourceByteSize:   int64(len(data)),
		ProcessingTimeMs: float64(opts.ProcessingTime.Milliseconds()),
	}

	if err := c.store.Put(ctx, entry); err != nil {
		c.logger.Warn("cache write failed", "hash", entry.ContentHash, "error", err)
		return
	}

	c.logger.Debug("cached OCR result",
		"hash", entry.ContentHash,
		"bytes", entry.SourceByteSize,
		"expiresAt", entry.ExpiresAt)
}

// SweepExpired deletes every expired entry and returns how many were removed.
// Housekeeping only; correctness does not depend on it because Get deletes
// expired entries lazily.
func (c *ContentCache) SweepExpired(ctx context.Context) (int, error) {
	entries, err := c.store.Entries(ctx)
	if err != nil {
		return 0, err
	}

	now := c.now()
	removed := 0
	for i := range entries {
		if !entries[i].Expired(now) {
			continue
		}
		if err := c.store.Delete(ctx, entries[i].ContentHash); err != nil {
			c.logger.Warn("sweep delete failed", "hash", entries[i].ContentHash, "error", err)
			continue
		}
		removed++
	}

	if removed > 0 {
		c.logger.Info("swept expired cache entries", "removed", removed)
	}
	return removed, nil
}

// Stats returns counts and age bounds for the stored entries.
func (c *ContentCache) Stats(ctx context.Context) (*Stats, error) {
	entries, err := c.store.Entries(ctx)
	if err != nil {
		return nil, err
	}

	stats := &Stats{Count: len(entries)}
	for i := range entries {
		stats.TotalBytes += entries[i].SourceByteSize
		created := entries[i].CreatedAt
		if stats.Oldest.IsZero() || created.Before(stats.Oldest) {
			stats.Oldest = created
		}
		if created.After(stats.Newest) {
			stats.Newest = created
		}
	}
	return stats, nil
}

// Close closes the underlying store.
func (c *ContentCache) Close() error {
	return c.store.Close()
}
