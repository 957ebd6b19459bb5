/**
 * Analysis submission coordinator.
 *
 * Orchestrates one non-streaming analysis round trip: image normalization
 * and compression, concurrent fetch of the caller's dietary profile, a hard
 * deadline on the request, and transformation of the server's response into
 * a domain Result.
 *
 * Only one submission is meaningful at a time for this path, so supersession
 * uses a single shared cancellation token (last writer wins) rather than the
 * streaming consumer's full generation fencing.
 */

package analysis

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/menulens/menuscan-worker/internal/clients"
	"github.com/menulens/menuscan-worker/internal/logging"
	"github.com/menulens/menuscan-worker/internal/scanerr"
)

// Options configures the coordinator.
type Options struct {
	// Timeout bounds the full submission. OCR-plus-LLM round trips are long
	// by nature, so the default is generous.
	Timeout time.Duration

	// CompressThreshold is the byte size above which the image gets
	// re-compressed before upload.
	CompressThreshold int64

	// JPEGQuality is the re-compression quality (1-100).
	JPEGQuality int

	// Platform identifies this client in device_info.
	Platform string
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		Timeout:           90 * time.Second,
		CompressThreshold: 1024 * 1024,
		JPEGQuality:       80,
		Platform:          "menuscan-worker",
	}
}

// Coordinator runs single-shot analysis submissions.
type Coordinator struct {
	analysis *clients.AnalysisClient
	profile  *clients.ProfileClient // nil when no profile service is configured
	opts     Options
	logger   *logging.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewCoordinator creates a coordinator. profile may be nil.
func NewCoordinator(analysis *clients.AnalysisClient, profile *clients.ProfileClient, opts Options, logger *logging.Logger) *Coordinator {
	if opts.Timeout <= 0 {
		opts.Timeout = 90 * time.Second
	}
	if opts.JPEGQuality <= 0 || opts.JPEGQuality > 100 {
		opts.JPEGQuality = 80
	}
	if logger == nil {
		logger = logging.NewLogger("Coordinator")
	}
	return &Coordinator{
		analysis: analysis,
		profile:  profile,
		opts:     opts,
		logger:   logger,
	}
}

// Submit runs one analysis for the given image and locale. Any previous
// in-flight submission is cancelled first. sessionID identifies the caller
// for profile lookup; empty means anonymous.
func (c *Coordinator) Submit(ctx context.Context, image []byte, locale, sessionID string) (*Result, error) {
	start := time.Now()

	// Last writer wins: supersede any in-flight submission.
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	reqCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	c.cancel = cancel
	c.mu.Unlock()
	defer cancel()

	// Step 1: normalize the payload. Compression failure is non-fatal and
	// falls back to the original bytes.
	payload := c.compressIfLarge(image)

	// Step 2: resolve auth and dietary context concurrently. Neither may
	// block or fail the submission: errors degrade to anonymous/empty.
	authToken, profile := c.fetchUserContext(reqCtx, sessionID)

	req := &clients.AnalyzeRequest{
		Image:    base64.StdEncoding.EncodeToString(payload),
		Language: locale,
		DeviceInfo: clients.DeviceInfo{
			Platform: c.opts.Platform,
		},
		UserContext: clients.UserContext{
			Allergies: profile.Allergies,
			Diets:     profile.Diets,
		},
	}

	resp, err := c.analysis.Analyze(reqCtx, req, authToken)
	if err != nil {
		return nil, c.classifyError(reqCtx, err, start)
	}

	// Step 3: a well-formed response with nothing usable in it is a domain
	// failure, not a transport failure. The user should retake the photo.
	if !resp.Success || len(resp.Results) == 0 {
		c.logger.Info("menu not recognized",
			"success", resp.Success,
			"results", len(resp.Results),
			"serverMessage", resp.Message)
		return nil, scanerr.NewMenuNotRecognized(resp.Message)
	}

	result := buildResult(resp, locale, time.Since(start))
	c.logger.Info("analysis complete",
		"overallStatus", result.OverallStatus,
		"items", len(result.Items),
		"warnings", len(result.Warnings),
		"duration", time.Since(start))
	return result, nil
}

// Abort cancels the in-flight submission, if any.
func (c *Coordinator) Abort() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// fetchUserContext resolves the auth token and dietary profile in parallel.
// Every failure is swallowed: an unauthenticated or unreachable profile
// service yields empty context, never a failed scan.
func (c *Coordinator) fetchUserContext(ctx context.Context, sessionID string) (string, clients.Profile) {
	if c.profile == nil || sessionID == "" {
		return "", clients.Profile{Allergies: []string{}, Diets: []string{}}
	}

	var (
		mu        sync.Mutex
		authToken string
		profile   = clients.Profile{Allergies: []string{}, Diets: []string{}}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		token, err := c.profile.AuthToken(gctx, sessionID)
		if err != nil {
			c.logger.Warn("auth token fetch failed, submitting anonymously", "error", err)
			return nil
		}
		mu.Lock()
		authToken = token
		mu.Unlock()
		return nil
	})
	g.Go(func() error {
		p, err := c.profile.FetchProfile(gctx, "", sessionID)
		if err != nil {
			c.logger.Warn("profile fetch failed, submitting without dietary context", "error", err)
			return nil
		}
		mu.Lock()
		if p.Allergies != nil {
			profile.Allergies = p.Allergies
		}
		if p.Diets != nil {
			profile.Diets = p.Diets
		}
		mu.Unlock()
		return nil
	})
	_ = g.Wait() // goroutines never return errors

	return authToken, profile
}

// classifyError maps a transport failure onto the scan error taxonomy.
func (c *Coordinator) classifyError(ctx context.Context, err error, start time.Time) error {
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return scanerr.NewCancelled(err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return scanerr.NewTimeout(time.Since(start), err)
	}
	if code := scanerr.CodeOf(err); code != "" {
		return err // already classified by the client
	}
	return scanerr.NewNetworkFailed(err)
}

// buildResult transforms the server response into a domain Result.
func buildResult(resp *clients.AnalyzeResponse, locale string, elapsed time.Duration) *Result {
	result := &Result{
		// The overall status comes from the server; SAFE applies only when
		// the server omits it, never inferred client-side from the items.
		OverallStatus:    StatusSafe,
		Warnings:         []Warning{},
		Messages:         map[string]string{},
		Items:            make([]Item, 0, len(resp.Results)),
		ProcessingTimeMs: elapsed.Milliseconds(),
	}
	if resp.OverallStatus != "" {
		result.OverallStatus = Status(resp.OverallStatus)
	}
	if resp.Message != "" {
		result.Messages[locale] = resp.Message
	}

	seen := map[string]bool{}
	for _, r := range resp.Results {
		item := Item{
			ID:             r.ID,
			OriginalName:   r.OriginalName,
			TranslatedName: r.TranslatedName,
			SafetyStatus:   Status(r.SafetyStatus),
			Reason:         r.Reason,
			Ingredients:    r.Ingredients,
		}
		result.Items = append(result.Items, item)

		for _, ing := range r.Ingredients {
			if !seen[ing] {
				seen[ing] = true
				result.DetectedIngredients = append(result.DetectedIngredients, ing)
			}
		}

		// Only CAUTION and DANGER items produce warnings.
		switch item.SafetyStatus {
		case StatusDanger:
			result.Warnings = append(result.Warnings, buildWarning(item, SeverityHigh))
		case StatusCaution:
			result.Warnings = append(result.Warnings, buildWarning(item, SeverityMedium))
		}
	}

	return result
}

func buildWarning(item Item, severity Severity) Warning {
	ingredient := item.TranslatedName
	if len(item.Ingredients) > 0 {
		ingredient = item.Ingredients[0]
	}
	return Warning{
		Ingredient: ingredient,
		Allergen:   item.Reason,
		Severity:   severity,
	}
}
