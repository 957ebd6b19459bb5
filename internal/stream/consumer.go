/**
 * Streaming verdict consumer.
 *
 * Consumes the NDJSON streaming analysis endpoint and maintains an explicit
 * state machine (Idle → Streaming → Completed/Failed) with three hard
 * guarantees:
 *
 *  - generation fencing: only the most recently started request may mutate
 *    observable state; a late response from a superseded request is dropped
 *  - fail-safe default: any non-cancellation failure forces status DANGER,
 *    because an unknown outcome must never read as safe
 *  - cancellation is silent: an aborted request terminates without touching
 *    state or surfacing an error
 */

package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/menulens/menuscan-worker/internal/logging"
	"github.com/menulens/menuscan-worker/internal/scanerr"
)

// Phase is the consumer's state machine position.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseStreaming
	PhaseCompleted
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseStreaming:
		return "streaming"
	case PhaseCompleted:
		return "completed"
	case PhaseFailed:
		return "failed"
	}
	return "unknown"
}

// Request is the streaming analysis payload.
type Request struct {
	Image         string   `json:"image"`
	UserAllergies []string `json:"userAllergies"`
	MenuTokens    []string `json:"menuTokens"`
}

// Snapshot is the consumer's observable state at one point in time.
type Snapshot struct {
	Phase       Phase
	Generation  uint64
	Status      Status // empty until a terminal frame or fail-safe applies
	Accumulated string
	Err         error

	FirstToken    time.Duration // client-measured TTFT
	HasFirstToken bool
	ServerTTFT    int64 // server-measured TTFT in ms, from the terminal frame
	TotalMs       int64
	UserContext   json.RawMessage
}

// Handler receives frame events. Callbacks fire only for the current
// generation, in stream order; OnComplete or OnError fires at most once per
// generation, and cancellation fires neither.
type Handler struct {
	OnPartial  func(text, accumulated string)
	OnComplete func(Snapshot)
	OnError    func(err error)
}

// Consumer drives streaming verdict requests against one endpoint.
type Consumer struct {
	endpoint   string
	httpClient *http.Client
	handler    Handler
	logger     *logging.Logger

	mu         sync.Mutex
	generation uint64
	cancel     context.CancelFunc
	snap       Snapshot
}

// NewConsumer creates a consumer for the given streaming endpoint. The
// http.Client must not carry its own timeout; lifetime is controlled per
// request via context so a long stream is not cut off mid-verdict.
func NewConsumer(endpoint string, handler Handler, logger *logging.Logger) *Consumer {
	if logger == nil {
		logger = logging.NewLogger("StreamConsumer")
	}
	return &Consumer{
		endpoint:   endpoint,
		httpClient: &http.Client{},
		handler:    handler,
		logger:     logger,
	}
}

// State returns a copy of the observable state.
func (c *Consumer) State() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// Start cancels any in-flight request, resets observable state, and begins
// streaming. It returns the generation stamped on this request.
func (c *Consumer) Start(ctx context.Context, req Request) uint64 {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.generation++
	gen := c.generation

	reqCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.snap = Snapshot{Phase: PhaseStreaming, Generation: gen}
	c.mu.Unlock()

	go c.run(reqCtx, gen, req)
	return gen
}

// Abort cancels the in-flight request, if any. Required on teardown so the
// open connection is not leaked. The aborted request terminates silently.
func (c *Consumer) Abort() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
		// An aborted stream is over; leave the snapshot idle rather than
		// stuck mid-stream. The generation stays, so a late frame from the
		// dead request still cannot apply.
		if c.snap.Phase == PhaseStreaming {
			c.snap.Phase = PhaseIdle
		}
	}
}

func (c *Consumer) run(ctx context.Context, gen uint64, req Request) {
	start := time.Now()

	body, err := json.Marshal(req)
	if err != nil {
		c.fail(gen, scanerr.NewNetworkFailed(fmt.Errorf("failed to marshal request: %w", err)))
		return
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		c.fail(gen, scanerr.NewNetworkFailed(err))
		return
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/x-ndjson")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if isCancellation(ctx, err) {
			c.logger.Debug("request cancelled before response", "generation", gen)
			return
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			c.fail(gen, scanerr.NewTimeout(0, err))
			return
		}
		c.fail(gen, scanerr.NewNetworkFailed(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.fail(gen, scanerr.NewServerFailed(resp.StatusCode, nil))
		return
	}

	var f framer
	buf := make([]byte, 4096)
	for {
		// The abort condition is checked on every iteration rather than
		// relying solely on the transport's own cancellation propagation.
		if errors.Is(ctx.Err(), context.Canceled) || c.superseded(gen) {
			c.logger.Debug("stream superseded or cancelled", "generation", gen)
			return
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			c.fail(gen, scanerr.NewTimeout(0, ctx.Err()))
			return
		}

		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			for _, frame := range f.Append(buf[:n]) {
				if terminal := c.applyFrame(gen, frame, start); terminal {
					return
				}
			}
		}

		if readErr != nil {
			if errors.Is(readErr, context.Canceled) || isCancellation(ctx, readErr) {
				return
			}
			if errors.Is(readErr, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
				c.fail(gen, scanerr.NewTimeout(0, readErr))
				return
			}
			// EOF without a terminal frame, or any mid-stream read failure,
			// is an unknown outcome: fail safe.
			c.fail(gen, scanerr.NewNetworkFailed(fmt.Errorf("stream ended without verdict: %w", readErr)))
			return
		}
	}
}

// applyFrame applies one parsed frame for the given generation and reports
// whether it was terminal.
func (c *Consumer) applyFrame(gen uint64, frame Frame, start time.Time) bool {
	c.mu.Lock()
	if gen != c.generation || c.cancel == nil {
		c.mu.Unlock()
		return true // superseded or aborted; stop reading
	}

	if frame.Done {
		c.snap.Phase = PhaseCompleted
		c.snap.Status = frame.Status
		c.snap.ServerTTFT = frame.TTFT
		c.snap.TotalMs = frame.TotalMs
		c.snap.UserContext = frame.UserContext
		if frame.Error != "" {
			// Surfaced as-is; does not change the verdict.
			c.snap.Err = errors.New(frame.Error)
		}
		if frame.Status != StatusSafe && frame.Status != StatusDanger {
			// A terminal frame without a recognizable verdict is an unknown
			// outcome: fail safe.
			c.snap.Phase = PhaseFailed
			c.snap.Status = StatusDanger
			c.snap.Err = fmt.Errorf("terminal frame carried invalid status %q", frame.Status)
		}
		snap := c.snap
		c.mu.Unlock()

		c.logger.Info("stream complete",
			"generation", gen,
			"status", snap.Status,
			"serverTtftMs", snap.ServerTTFT,
			"clientTtft", snap.FirstToken)
		if snap.Phase == PhaseCompleted && c.handler.OnComplete != nil {
			c.handler.OnComplete(snap)
		} else if snap.Phase == PhaseFailed && c.handler.OnError != nil {
			c.handler.OnError(snap.Err)
		}
		return true
	}

	if frame.Text != "" && !c.snap.HasFirstToken {
		c.snap.FirstToken = time.Since(start)
		c.snap.HasFirstToken = true
	}
	if frame.Accumulated != "" {
		c.snap.Accumulated = frame.Accumulated
	} else {
		c.snap.Accumulated += frame.Text
	}
	text, accumulated := frame.Text, c.snap.Accumulated
	c.mu.Unlock()

	if c.handler.OnPartial != nil {
		c.handler.OnPartial(text, accumulated)
	}
	return false
}

// fail applies the fail-safe default for a non-cancellation error.
func (c *Consumer) fail(gen uint64, err error) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	c.snap.Phase = PhaseFailed
	c.snap.Status = StatusDanger
	c.snap.Err = err
	c.mu.Unlock()

	c.logger.Warn("stream failed, applying fail-safe verdict", "generation", gen, "error", err)
	if c.handler.OnError != nil {
		c.handler.OnError(err)
	}
}

func (c *Consumer) superseded(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen != c.generation
}

// isCancellation distinguishes an explicit abort from every other failure.
// A deadline expiry is NOT a cancellation: timeouts trip the fail-safe.
func isCancellation(ctx context.Context, err error) bool {
	return errors.Is(ctx.Err(), context.Canceled) || errors.Is(err, context.Canceled)
}
