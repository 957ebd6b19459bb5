package ocr

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/menulens/menuscan-worker/internal/cache"
	"github.com/menulens/menuscan-worker/internal/pipeline"
)

// fakeEngine fails a configurable number of times before succeeding.
type fakeEngine struct {
	calls     int
	failUntil int
	tokens    []pipeline.Token
}

func (f *fakeEngine) Recognize(ctx context.Context, image []byte) ([]pipeline.Token, error) {
	f.calls++
	if f.calls <= f.failUntil {
		return nil, errors.New("transient OCR failure")
	}
	return f.tokens, nil
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	inner := &fakeEngine{
		failUntil: 2,
		tokens:    []pipeline.Token{{Text: "김치찌개", Confidence: 0.9}},
	}

	engine := WithRetry(inner, RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     4 * time.Millisecond,
	}, nil)

	tokens, err := engine.Recognize(context.Background(), []byte("image"))
	if err != nil {
		t.Fatalf("expected recovery on third attempt, got %v", err)
	}
	if inner.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", inner.calls)
	}
	if len(tokens) != 1 || tokens[0].Text != "김치찌개" {
		t.Errorf("unexpected tokens: %v", tokens)
	}
}

func TestRetryGivesUpAtAttemptBound(t *testing.T) {
	inner := &fakeEngine{failUntil: 100}

	engine := WithRetry(inner, RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
	}, nil)

	if _, err := engine.Recognize(context.Background(), []byte("image")); err == nil {
		t.Fatal("expected failure after exhausting attempts")
	}
	if inner.calls != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", inner.calls)
	}
}

func TestRetryStopsOnCancelledContext(t *testing.T) {
	inner := &fakeEngine{failUntil: 100}

	engine := WithRetry(inner, RetryPolicy{
		MaxAttempts:    5,
		InitialBackoff: time.Hour, // backoff must be interrupted, not served
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := engine.Recognize(ctx, []byte("image"))
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if time.Since(start) > 5*time.Second {
		t.Fatal("backoff sleep ignored cancellation")
	}
	if inner.calls != 1 {
		t.Errorf("expected 1 attempt before cancellation, got %d", inner.calls)
	}
}

func newTestCache(t *testing.T) *cache.ContentCache {
	t.Helper()
	store, err := cache.OpenSQLiteStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to open sqlite store: %v", err)
	}
	c := cache.New(store, time.Hour, nil)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestCachedEngineServesRepeatImagesFromCache(t *testing.T) {
	inner := &fakeEngine{
		tokens: []pipeline.Token{
			{Text: "비빔밥", Confidence: 0.8, Box: pipeline.BoundingBox{X: 1, Y: 2, Width: 3, Height: 4}},
		},
	}
	engine := WithCache(inner, newTestCache(t), nil)
	ctx := context.Background()
	image := []byte("same-photo")

	first, err := engine.Recognize(ctx, image)
	if err != nil {
		t.Fatalf("first recognize failed: %v", err)
	}

	second, err := engine.Recognize(ctx, image)
	if err != nil {
		t.Fatalf("second recognize failed: %v", err)
	}

	if inner.calls != 1 {
		t.Errorf("second call must be served from cache, inner ran %d times", inner.calls)
	}
	if len(second) != 1 || second[0] != first[0] {
		t.Errorf("cached tokens must round-trip intact: %v != %v", second, first)
	}
}

func TestCachedEngineMissesOnDifferentImages(t *testing.T) {
	inner := &fakeEngine{tokens: []pipeline.Token{{Text: "x"}}}
	engine := WithCache(inner, newTestCache(t), nil)
	ctx := context.Background()

	engine.Recognize(ctx, []byte("photo-a"))
	engine.Recognize(ctx, []byte("photo-b"))

	if inner.calls != 2 {
		t.Errorf("different images must both miss, inner ran %d times", inner.calls)
	}
}

func TestCachedEngineTreatsUndecodablePayloadAsMiss(t *testing.T) {
	c := newTestCache(t)
	image := []byte("poisoned-photo")
	c.Put(context.Background(), image, "not-json", cache.PutOptions{})

	inner := &fakeEngine{tokens: []pipeline.Token{{Text: "fresh"}}}
	engine := WithCache(inner, c, nil)

	tokens, err := engine.Recognize(context.Background(), image)
	if err != nil {
		t.Fatalf("recognize failed: %v", err)
	}
	if inner.calls != 1 {
		t.Error("undecodable payload must fall through to the inner engine")
	}
	if len(tokens) != 1 || tokens[0].Text != "fresh" {
		t.Errorf("unexpected tokens: %v", tokens)
	}
}
