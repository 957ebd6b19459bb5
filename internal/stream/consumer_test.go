package stream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/menulens/menuscan-worker/internal/scanerr"
)

func flush(w http.ResponseWriter) {
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func waitFor(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestStreamCompletesWithVerdict(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		fmt.Fprint(w, "{\"text\":\"Saf\"}\n")
		flush(w)
		fmt.Fprint(w, "{\"text\":\"e\"}\n")
		flush(w)
		fmt.Fprint(w, "{\"done\":true,\"status\":\"SAFE\",\"ttft\":120,\"totalMs\":900}\n")
	}))
	defer server.Close()

	done := make(chan struct{})
	var partials atomic.Int32
	var final Snapshot

	c := NewConsumer(server.URL, Handler{
		OnPartial: func(text, accumulated string) { partials.Add(1) },
		OnComplete: func(snap Snapshot) {
			final = snap
			close(done)
		},
		OnError: func(err error) { t.Errorf("unexpected error: %v", err) },
	}, nil)

	gen := c.Start(context.Background(), Request{Image: "base64"})
	waitFor(t, done, "completion")

	if final.Generation != gen {
		t.Errorf("generation = %d, want %d", final.Generation, gen)
	}
	if final.Phase != PhaseCompleted || final.Status != StatusSafe {
		t.Errorf("final state = %v/%s, want completed/SAFE", final.Phase, final.Status)
	}
	if final.Accumulated != "Safe" {
		t.Errorf("accumulated = %q", final.Accumulated)
	}
	if final.ServerTTFT != 120 || final.TotalMs != 900 {
		t.Errorf("timing = %d/%d, want 120/900", final.ServerTTFT, final.TotalMs)
	}
	if !final.HasFirstToken {
		t.Error("client TTFT must be stamped on the first non-empty text frame")
	}
	if partials.Load() != 2 {
		t.Errorf("expected 2 partial callbacks, got %d", partials.Load())
	}
}

func TestTruncatedStreamFailsSafe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "{\"text\":\"partial verdict\"}\n")
		// Connection closes without a terminal frame.
	}))
	defer server.Close()

	done := make(chan struct{})
	var gotErr error

	c := NewConsumer(server.URL, Handler{
		OnComplete: func(snap Snapshot) { t.Error("truncated stream must not complete") },
		OnError: func(err error) {
			gotErr = err
			close(done)
		},
	}, nil)

	c.Start(context.Background(), Request{})
	waitFor(t, done, "failure")

	if scanerr.CodeOf(gotErr) != scanerr.CodeNetworkFailed {
		t.Errorf("error code = %s, want %s", scanerr.CodeOf(gotErr), scanerr.CodeNetworkFailed)
	}

	snap := c.State()
	if snap.Phase != PhaseFailed || snap.Status != StatusDanger {
		t.Errorf("state = %v/%s, want failed/DANGER", snap.Phase, snap.Status)
	}
}

func TestServerErrorFailsSafe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	done := make(chan struct{})
	var gotErr error

	c := NewConsumer(server.URL, Handler{
		OnError: func(err error) {
			gotErr = err
			close(done)
		},
	}, nil)

	c.Start(context.Background(), Request{})
	waitFor(t, done, "failure")

	if scanerr.CodeOf(gotErr) != scanerr.CodeServerFailed {
		t.Errorf("error code = %s, want %s", scanerr.CodeOf(gotErr), scanerr.CodeServerFailed)
	}
	if c.State().Status != StatusDanger {
		t.Error("server failure must apply the fail-safe verdict")
	}
}

func TestInvalidTerminalStatusFailsSafe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "{\"done\":true,\"status\":\"MAYBE\"}\n")
	}))
	defer server.Close()

	done := make(chan struct{})

	c := NewConsumer(server.URL, Handler{
		OnComplete: func(snap Snapshot) { t.Error("invalid verdict must not complete") },
		OnError:    func(err error) { close(done) },
	}, nil)

	c.Start(context.Background(), Request{})
	waitFor(t, done, "failure")

	snap := c.State()
	if snap.Phase != PhaseFailed || snap.Status != StatusDanger {
		t.Errorf("state = %v/%s, want failed/DANGER", snap.Phase, snap.Status)
	}
}

func TestDeadlineTripsTimeoutNotSilence(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		fmt.Fprint(w, "{\"text\":\"thinking\"}\n")
		flush(w)
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	done := make(chan struct{})
	var gotErr error

	c := NewConsumer(server.URL, Handler{
		OnError: func(err error) {
			gotErr = err
			close(done)
		},
	}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	c.Start(ctx, Request{})
	waitFor(t, done, "timeout failure")

	if scanerr.CodeOf(gotErr) != scanerr.CodeTimeout {
		t.Errorf("error code = %s, want %s", scanerr.CodeOf(gotErr), scanerr.CodeTimeout)
	}
	if c.State().Status != StatusDanger {
		t.Error("a timeout is not a cancellation, it must fail safe")
	}
}

func TestAbortIsSilent(t *testing.T) {
	started := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Consume the body so the server notices the aborted client.
		io.Copy(io.Discard, r.Body)
		fmt.Fprint(w, "{\"text\":\"hold\"}\n")
		flush(w)
		close(started)
		<-r.Context().Done()
	}))
	defer server.Close()

	c := NewConsumer(server.URL, Handler{
		OnComplete: func(snap Snapshot) { t.Error("aborted stream must not complete") },
		OnError:    func(err error) { t.Errorf("aborted stream must not surface an error: %v", err) },
	}, nil)

	c.Start(context.Background(), Request{})
	waitFor(t, started, "stream start")
	c.Abort()

	// Give the goroutine time to observe cancellation and (incorrectly) fire
	// a callback if it were going to.
	time.Sleep(200 * time.Millisecond)

	snap := c.State()
	if snap.Err != nil {
		t.Errorf("abort must not record an error, got %v", snap.Err)
	}
	if snap.Status == StatusDanger {
		t.Error("abort must not apply the fail-safe verdict")
	}
	if snap.Phase != PhaseIdle {
		t.Errorf("phase after abort = %v, want idle", snap.Phase)
	}
}

func TestGenerationFencing(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			// First request streams one partial and then hangs until cancelled.
			io.Copy(io.Discard, r.Body)
			fmt.Fprint(w, "{\"text\":\"old scan\"}\n")
			flush(w)
			<-r.Context().Done()
			return
		}
		fmt.Fprint(w, "{\"text\":\"new scan\"}\n")
		flush(w)
		fmt.Fprint(w, "{\"done\":true,\"status\":\"DANGER\"}\n")
	}))
	defer server.Close()

	done := make(chan struct{})
	var final Snapshot

	c := NewConsumer(server.URL, Handler{
		OnComplete: func(snap Snapshot) {
			final = snap
			close(done)
		},
	}, nil)

	gen1 := c.Start(context.Background(), Request{})

	// Wait until the first stream's partial has landed.
	deadline := time.Now().Add(5 * time.Second)
	for c.State().Accumulated == "" {
		if time.Now().After(deadline) {
			t.Fatal("first stream never produced a partial")
		}
		time.Sleep(10 * time.Millisecond)
	}

	gen2 := c.Start(context.Background(), Request{})
	if gen2 != gen1+1 {
		t.Fatalf("generation must be monotonic: %d then %d", gen1, gen2)
	}

	waitFor(t, done, "second stream completion")

	if final.Generation != gen2 {
		t.Errorf("completion generation = %d, want %d", final.Generation, gen2)
	}
	if final.Status != StatusDanger {
		t.Errorf("status = %s, want DANGER", final.Status)
	}
	if final.Accumulated != "new scan" {
		t.Errorf("stale generation leaked into state: accumulated = %q", final.Accumulated)
	}
}
