/**
 * Cache-backed OCR engine.
 *
 * Consults the content-addressable cache before running the wrapped engine
 * and writes the result back after. The cached payload is the JSON-encoded
 * token list, so a hit restores tokens with their confidence and boxes
 * intact.
 *
 * Two concurrent callers that both miss on the same image will both run OCR
 * and both write; the cache's idempotent overwrite makes this benign, so no
 * per-digest lock is taken.
 */

package ocr

import (
	"context"
	"encoding/json"
	"time"

	"github.com/menulens/menuscan-worker/internal/cache"
	"github.com/menulens/menuscan-worker/internal/logging"
	"github.com/menulens/menuscan-worker/internal/pipeline"
)

// CachedEngine wraps an Engine with the content cache.
type CachedEngine struct {
	inner  Engine
	cache  *cache.ContentCache
	logger *logging.Logger
}

// WithCache wraps engine with the given content cache.
func WithCache(engine Engine, c *cache.ContentCache, logger *logging.Logger) *CachedEngine {
	if logger == nil {
		logger = logging.NewLogger("OCRCache")
	}
	return &CachedEngine{inner: engine, cache: c, logger: logger}
}

// Recognize returns cached tokens when the image bytes have been seen
// before, otherwise runs the wrapped engine and caches its output.
func (e *CachedEngine) Recognize(ctx context.Context, image []byte) ([]pipeline.Token, error) {
	if payload, ok := e.cache.Get(ctx, image); ok {
		var tokens []pipeline.Token
		if err := json.Unmarshal([]byte(payload), &tokens); err == nil {
			e.logger.Debug("OCR cache hit", "tokens", len(tokens))
			return tokens, nil
		}
		// A payload we cannot decode is treated as a miss.
		e.logger.Warn("discarding undecodable cache payload")
	}

	start := time.Now()
	tokens, err := e.inner.Recognize(ctx, image)
	if err != nil {
		return nil, err
	}

	if payload, err := json.Marshal(tokens); err == nil {
		e.cache.Put(ctx, image, string(payload), cache.PutOptions{
			ProcessingTime: time.Since(start),
		})
	}

	return tokens, nil
}
