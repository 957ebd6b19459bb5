/**
 * Queue Consumer for MenuScan Worker
 *
 * Consumes menu scan jobs from the Redis queue and runs the full scan
 * flow: OCR, text resolution, analysis submission, history recording,
 * and dish index updates. Uses Asynq for queue management.
 */

package queue

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/menulens/menuscan-worker/internal/analysis"
	"github.com/menulens/menuscan-worker/internal/cache"
	"github.com/menulens/menuscan-worker/internal/clients"
	"github.com/menulens/menuscan-worker/internal/logging"
	"github.com/menulens/menuscan-worker/internal/ocr"
	"github.com/menulens/menuscan-worker/internal/pipeline"
	"github.com/menulens/menuscan-worker/internal/scanerr"
	"github.com/menulens/menuscan-worker/internal/storage"
	"github.com/menulens/menuscan-worker/internal/stream"
)

// Task type names routed by the consumer
const (
	TaskScanAnalyze = "scan:analyze"
	TaskCacheSweep  = "cache:sweep"
)

// ScanJob represents the payload of a scan:analyze task
type ScanJob struct {
	ScanID    string `json:"scanId"`
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId,omitempty"`
	Locale    string `json:"locale,omitempty"`
	ImageData []byte `json:"imageData"`
}

// Consumer handles job consumption from the Redis queue
type Consumer struct {
	client    *asynq.Client
	server    *asynq.Server
	scheduler *asynq.Scheduler
	mux       *asynq.ServeMux
	config    *ConsumerConfig
	logger    *logging.Logger
}

// ConsumerConfig holds consumer configuration and the scan flow dependencies.
// History, DishIndex, and Embedding are optional; the scan flow skips the
// corresponding steps when they are nil.
type ConsumerConfig struct {
	RedisURL      string
	QueueName     string
	Concurrency   int
	SweepInterval time.Duration
	// StreamURL selects the streaming verdict path for scan jobs when
	// non-empty; otherwise jobs go through the synchronous coordinator.
	StreamURL     string
	Engine        ocr.Engine
	Pipeline      *pipeline.Pipeline
	Coordinator   *analysis.Coordinator
	Cache         *cache.ContentCache
	History       *storage.HistoryStore
	DishIndex     *storage.DishIndex
	Embedding     *clients.EmbeddingClient
	Profile       *clients.ProfileClient
	Logger        *logging.Logger
}

// NewConsumer creates a new queue consumer
func NewConsumer(cfg *ConsumerConfig) (*Consumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}

	if cfg.QueueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}

	if cfg.Engine == nil || cfg.Pipeline == nil || cfg.Coordinator == nil {
		return nil, fmt.Errorf("Engine, Pipeline, and Coordinator are required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewLogger("Queue")
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := asynq.NewClient(redisOpt)

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				cfg.QueueName: 10,
				"default":     1,
			},
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				// Exponential backoff: 5s, 10s, 20s, capped at 60s
				delay := time.Duration(5*(1<<uint(n))) * time.Second
				if delay > 60*time.Second {
					delay = 60 * time.Second
				}
				return delay
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("Task processing error",
					"type", task.Type(),
					"error", err)
			}),
		},
	)

	mux := asynq.NewServeMux()

	consumer := &Consumer{
		client: client,
		server: server,
		mux:    mux,
		config: cfg,
		logger: logger,
	}

	mux.HandleFunc(TaskScanAnalyze, consumer.handleScanAnalyze)
	if cfg.Cache != nil {
		mux.HandleFunc(TaskCacheSweep, consumer.handleCacheSweep)

		sweepInterval := cfg.SweepInterval
		if sweepInterval <= 0 {
			sweepInterval = time.Hour
		}
		scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{})
		if _, err := scheduler.Register(
			fmt.Sprintf("@every %s", sweepInterval),
			asynq.NewTask(TaskCacheSweep, nil),
			asynq.Queue(cfg.QueueName),
		); err != nil {
			return nil, fmt.Errorf("failed to register sweep schedule: %w", err)
		}
		consumer.scheduler = scheduler
	}

	return consumer, nil
}

// Start starts the queue consumer and the periodic sweep scheduler
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("Starting queue consumer",
		"concurrency", c.config.Concurrency,
		"queue", c.config.QueueName)

	go func() {
		if err := c.server.Run(c.mux); err != nil {
			c.logger.Error("Queue consumer error", "error", err)
		}
	}()

	if c.scheduler != nil {
		go func() {
			if err := c.scheduler.Run(); err != nil {
				c.logger.Error("Sweep scheduler error", "error", err)
			}
		}()
	}

	return nil
}

// Stop stops the queue consumer gracefully
func (c *Consumer) Stop(ctx context.Context) error {
	c.logger.Info("Stopping queue consumer")

	if c.scheduler != nil {
		c.scheduler.Shutdown()
	}
	c.server.Shutdown()

	if err := c.client.Close(); err != nil {
		return fmt.Errorf("failed to close client: %w", err)
	}

	c.logger.Info("Queue consumer stopped")
	return nil
}

// EnqueueScan submits a scan job to the queue
func (c *Consumer) EnqueueScan(ctx context.Context, job *ScanJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal scan job: %w", err)
	}

	_, err = c.client.EnqueueContext(ctx,
		asynq.NewTask(TaskScanAnalyze, payload),
		asynq.Queue(c.config.QueueName),
		asynq.MaxRetry(3),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue scan: %w", err)
	}

	return nil
}

// handleScanAnalyze runs the full scan flow for one queued image
func (c *Consumer) handleScanAnalyze(ctx context.Context, task *asynq.Task) error {
	startTime := time.Now()

	var job ScanJob
	if err := json.Unmarshal(task.Payload(), &job); err != nil {
		return fmt.Errorf("failed to unmarshal scan job: %w", err)
	}

	if len(job.ImageData) == 0 {
		return fmt.Errorf("scan %s has no image data", job.ScanID)
	}

	c.logger.Info("Processing scan",
		"scan", job.ScanID,
		"user", job.UserID,
		"size", len(job.ImageData))

	tokens, err := c.config.Engine.Recognize(ctx, job.ImageData)
	if err != nil {
		c.recordFailure(ctx, &job, err, startTime)
		return fmt.Errorf("text recognition failed: %w", err)
	}

	entries := c.config.Pipeline.Resolve(tokens)

	var result *analysis.Result
	if c.config.StreamURL != "" {
		result, err = c.streamVerdict(ctx, &job, entries)
	} else {
		result, err = c.config.Coordinator.Submit(ctx, job.ImageData, job.Locale, job.SessionID)
	}
	if err != nil {
		if scanerr.IsCancelled(err) {
			c.logger.Info("Scan superseded", "scan", job.ScanID)
			return nil
		}
		c.recordFailure(ctx, &job, err, startTime)
		return fmt.Errorf("analysis failed: %w", err)
	}

	duration := time.Since(startTime)
	c.logger.Info("Scan completed",
		"scan", job.ScanID,
		"status", string(result.OverallStatus),
		"items", len(result.Items),
		"duration", duration)

	c.recordHistory(ctx, &job, result, duration)
	c.indexDishes(ctx, &job, entries)

	return nil
}

// streamVerdict runs one scan through the streaming verdict endpoint and
// blocks until the terminal frame. Each job gets its own consumer so
// concurrent jobs cannot supersede one another.
func (c *Consumer) streamVerdict(ctx context.Context, job *ScanJob, entries []pipeline.Entry) (*analysis.Result, error) {
	menuTokens := make([]string, len(entries))
	for i := range entries {
		menuTokens[i] = entries[i].Normalized
	}

	// The streaming service decides the verdict from the caller's allergy
	// codes, so the profile lookup happens here, not server-side. An empty
	// list still goes on the wire as a list.
	allergies := []string{}
	if c.config.Profile != nil && job.SessionID != "" {
		profile, err := c.config.Profile.FetchProfile(ctx, "", job.SessionID)
		if err != nil {
			c.logger.Warn("Profile unavailable, streaming without allergy context",
				"scan", job.ScanID,
				"error", err)
		} else if profile.Allergies != nil {
			allergies = profile.Allergies
		}
	}

	done := make(chan stream.Snapshot, 1)
	failed := make(chan error, 1)

	consumer := stream.NewConsumer(c.config.StreamURL, stream.Handler{
		OnComplete: func(snap stream.Snapshot) { done <- snap },
		OnError:    func(err error) { failed <- err },
	}, c.logger.Sub("Stream"))

	consumer.Start(ctx, stream.Request{
		Image:         base64.StdEncoding.EncodeToString(job.ImageData),
		UserAllergies: allergies,
		MenuTokens:    menuTokens,
	})

	select {
	case snap := <-done:
		return &analysis.Result{
			OverallStatus:    analysis.Status(snap.Status),
			Warnings:         []analysis.Warning{},
			Messages:         map[string]string{},
			Items:            []analysis.Item{},
			ProcessingTimeMs: snap.TotalMs,
		}, nil
	case err := <-failed:
		return nil, err
	case <-ctx.Done():
		consumer.Abort()
		return nil, scanerr.NewCancelled(ctx.Err())
	}
}

// handleCacheSweep removes expired entries from the content cache
func (c *Consumer) handleCacheSweep(ctx context.Context, task *asynq.Task) error {
	removed, err := c.config.Cache.SweepExpired(ctx)
	if err != nil {
		return fmt.Errorf("cache sweep failed: %w", err)
	}

	if removed > 0 {
		c.logger.Info("Cache sweep removed expired entries", "count", removed)
	}
	return nil
}

// recordHistory persists a completed scan. Failures are logged, not returned,
// so a history outage never fails an otherwise successful scan.
func (c *Consumer) recordHistory(ctx context.Context, job *ScanJob, result *analysis.Result, duration time.Duration) {
	if c.config.History == nil {
		return
	}

	err := c.config.History.RecordScan(ctx, &storage.ScanRecord{
		ID:               job.ScanID,
		UserID:           job.UserID,
		ImageHash:        cache.Digest(job.ImageData),
		Locale:           job.Locale,
		OverallStatus:    string(result.OverallStatus),
		ItemCount:        len(result.Items),
		WarningCount:     len(result.Warnings),
		ProcessingTimeMs: duration.Milliseconds(),
		Result:           result,
	})
	if err != nil {
		c.logger.Warn("Failed to record scan history",
			"scan", job.ScanID,
			"error", err)
	}
}

// recordFailure persists a failed scan with its error code
func (c *Consumer) recordFailure(ctx context.Context, job *ScanJob, cause error, startTime time.Time) {
	if c.config.History == nil {
		return
	}

	err := c.config.History.RecordScan(ctx, &storage.ScanRecord{
		ID:               job.ScanID,
		UserID:           job.UserID,
		ImageHash:        cache.Digest(job.ImageData),
		Locale:           job.Locale,
		ErrorCode:        string(scanerr.CodeOf(cause)),
		ProcessingTimeMs: time.Since(startTime).Milliseconds(),
	})
	if err != nil {
		c.logger.Warn("Failed to record scan failure",
			"scan", job.ScanID,
			"error", err)
	}
}

// indexDishes embeds translated dish names and upserts them into the dish
// index. Best effort; index outages are logged and ignored.
func (c *Consumer) indexDishes(ctx context.Context, job *ScanJob, entries []pipeline.Entry) {
	if c.config.DishIndex == nil || c.config.Embedding == nil || len(entries) == 0 {
		return
	}

	names := make([]string, 0, len(entries))
	indexed := make([]pipeline.Entry, 0, len(entries))
	for _, entry := range entries {
		// Identity fallbacks carry no translation worth indexing
		if entry.Translated == "" || entry.Translated == entry.Normalized {
			continue
		}
		names = append(names, entry.Translated)
		indexed = append(indexed, entry)
	}

	if len(names) == 0 {
		return
	}

	vectors, err := c.config.Embedding.EmbedDishNames(ctx, names)
	if err != nil {
		c.logger.Warn("Failed to embed dish names",
			"scan", job.ScanID,
			"error", err)
		return
	}

	for i, entry := range indexed {
		err := c.config.DishIndex.UpsertDish(ctx, &storage.DishPoint{
			ID:         entry.ID,
			Vector:     vectors[i],
			Original:   entry.Original,
			Translated: entry.Translated,
			Locale:     job.Locale,
		})
		if err != nil {
			c.logger.Warn("Failed to index dish",
				"scan", job.ScanID,
				"dish", entry.Translated,
				"error", err)
		}
	}
}

// GetStatistics returns consumer statistics
func (c *Consumer) GetStatistics() map[string]interface{} {
	return map[string]interface{}{
		"concurrency": c.config.Concurrency,
		"queue":       c.config.QueueName,
	}
}
