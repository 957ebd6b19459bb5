/**
 * OCR collaborator boundary.
 *
 * An Engine turns image bytes into OCR tokens. The worker ships a local
 * Tesseract engine and a remote vision engine; policy around them (bounded
 * retry with backoff, content-addressed caching) is layered on as wrappers
 * so the engines themselves stay opaque.
 */

package ocr

import (
	"context"
	"fmt"
	"time"

	"github.com/menulens/menuscan-worker/internal/logging"
	"github.com/menulens/menuscan-worker/internal/pipeline"
)

// Engine extracts OCR tokens from image bytes.
type Engine interface {
	Recognize(ctx context.Context, image []byte) ([]pipeline.Token, error)
}

// RetryPolicy bounds the retry loop around a flaky engine. Parameters are
// passed in explicitly rather than baked into the engine.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryPolicy retries three times with 1s/2s backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: time.Second,
		MaxBackoff:     16 * time.Second,
	}
}

// RetryingEngine wraps an Engine with a bounded exponential-backoff retry
// loop. Backoff sleeps are context-aware.
type RetryingEngine struct {
	inner  Engine
	policy RetryPolicy
	logger *logging.Logger
}

// WithRetry wraps engine with the given policy.
func WithRetry(engine Engine, policy RetryPolicy, logger *logging.Logger) *RetryingEngine {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.InitialBackoff <= 0 {
		policy.InitialBackoff = time.Second
	}
	if logger == nil {
		logger = logging.NewLogger("OCRRetry")
	}
	return &RetryingEngine{inner: engine, policy: policy, logger: logger}
}

// Recognize runs the inner engine, retrying on failure up to the policy's
// attempt bound.
func (r *RetryingEngine) Recognize(ctx context.Context, image []byte) ([]pipeline.Token, error) {
	var lastErr error

	backoff := r.policy.InitialBackoff
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		tokens, err := r.inner.Recognize(ctx, image)
		if err == nil {
			return tokens, nil
		}
		lastErr = err
		r.logger.Warn("OCR attempt failed",
			"attempt", attempt,
			"maxAttempts", r.policy.MaxAttempts,
			"error", err)

		if attempt == r.policy.MaxAttempts {
			break
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, fmt.Errorf("context cancelled during retry backoff: %w", ctx.Err())
		}

		backoff *= 2
		if r.policy.MaxBackoff > 0 && backoff > r.policy.MaxBackoff {
			backoff = r.policy.MaxBackoff
		}
	}

	return nil, fmt.Errorf("OCR failed after %d attempts: %w", r.policy.MaxAttempts, lastErr)
}
