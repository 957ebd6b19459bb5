/**
 * MenuScan Worker - Main Entry Point
 *
 * Go worker for restaurant menu scan processing.
 *
 * Architecture:
 * - Asynq consumer for Redis-backed scan job queue
 * - Content-addressable OCR result cache (SQLite or Redis backend)
 * - Three-stage text resolution pipeline (cleanse, normalize, translate)
 * - Analysis submission coordinator with fail-safe error taxonomy
 * - PostgreSQL scan history and Qdrant dish embedding index (optional)
 */

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/menulens/menuscan-worker/internal/analysis"
	"github.com/menulens/menuscan-worker/internal/cache"
	"github.com/menulens/menuscan-worker/internal/clients"
	"github.com/menulens/menuscan-worker/internal/config"
	"github.com/menulens/menuscan-worker/internal/logging"
	"github.com/menulens/menuscan-worker/internal/ocr"
	"github.com/menulens/menuscan-worker/internal/pipeline"
	"github.com/menulens/menuscan-worker/internal/queue"
	"github.com/menulens/menuscan-worker/internal/storage"
)

func main() {
	if err := godotenv.Load(".env.menuscan"); err != nil {
		log.Printf("Warning: .env.menuscan not found, using system environment variables")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.NewLogger("Worker").WithLevel(logging.ParseLevel(cfg.LogLevel))
	logger.Info("MenuScan Worker starting",
		"cacheBackend", cfg.CacheBackend,
		"queue", cfg.QueueName,
		"concurrency", cfg.WorkerConcurrency)

	// Content cache backend
	var store cache.Store
	switch cfg.CacheBackend {
	case "redis":
		store, err = cache.OpenRedisStore(cfg.RedisURL)
	default:
		store, err = cache.OpenSQLiteStore(cfg.CacheDir)
	}
	if err != nil {
		log.Fatalf("Failed to open cache store: %v", err)
	}
	contentCache := cache.New(store, cfg.CacheTTL, logger.Sub("Cache"))
	defer contentCache.Close()

	// OCR engine chain: remote vision service when configured, local
	// Tesseract otherwise, wrapped with retry and the content cache.
	var engine ocr.Engine
	if cfg.VisionURL != "" {
		engine = ocr.NewRemoteEngine(clients.NewVisionClient(cfg.VisionURL), "ko")
		logger.Info("Using remote vision OCR", "url", cfg.VisionURL)
	} else {
		engine = ocr.NewTesseractEngine(cfg.TesseractLanguages)
		logger.Info("Using local Tesseract OCR", "languages", cfg.TesseractLanguages)
	}
	engine = ocr.WithRetry(engine, ocr.RetryPolicy{
		MaxAttempts:    cfg.OCRMaxRetries,
		InitialBackoff: cfg.OCRInitialBackoff,
		MaxBackoff:     cfg.OCRMaxBackoff,
	}, logger.Sub("OCR"))
	engine = ocr.WithCache(engine, contentCache, logger.Sub("OCR"))

	// Text resolution pipeline
	textPipeline := pipeline.New(pipeline.DefaultDictionary(), pipeline.NewRunCache(), logger.Sub("Pipeline"))

	// Analysis coordinator
	var profileClient *clients.ProfileClient
	if cfg.ProfileURL != "" {
		profileClient = clients.NewProfileClient(cfg.ProfileURL)
	}
	coordinator := analysis.NewCoordinator(
		clients.NewAnalysisClient(cfg.AnalysisURL),
		profileClient,
		analysis.Options{
			Timeout:           cfg.SubmitTimeout,
			CompressThreshold: cfg.CompressThreshold,
			JPEGQuality:       cfg.JPEGQuality,
			Platform:          "worker",
		},
		logger.Sub("Analysis"),
	)

	// Optional scan history persistence
	var history *storage.HistoryStore
	if cfg.DatabaseURL != "" {
		history, err = storage.NewHistoryStore(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to scan history database: %v", err)
		}
		defer history.Close()
		logger.Info("Scan history persistence enabled")
	}

	// Optional dish embedding index
	var dishIndex *storage.DishIndex
	var embeddingClient *clients.EmbeddingClient
	if cfg.QdrantURL != "" && cfg.EmbeddingURL != "" {
		dishIndex, err = storage.NewDishIndex(cfg.QdrantURL, cfg.QdrantCollection)
		if err != nil {
			log.Fatalf("Failed to connect to dish index: %v", err)
		}
		defer dishIndex.Close()

		embeddingClient, err = clients.NewEmbeddingClient(cfg.EmbeddingURL, cfg.EmbeddingAPIKey)
		if err != nil {
			log.Fatalf("Failed to initialize embedding client: %v", err)
		}
		logger.Info("Dish embedding index enabled", "collection", cfg.QdrantCollection)
	}

	// Queue consumer
	consumer, err := queue.NewConsumer(&queue.ConsumerConfig{
		RedisURL:      cfg.RedisURL,
		QueueName:     cfg.QueueName,
		Concurrency:   cfg.WorkerConcurrency,
		SweepInterval: cfg.SweepInterval,
		StreamURL:     cfg.StreamURL,
		Engine:        engine,
		Pipeline:      textPipeline,
		Coordinator:   coordinator,
		Cache:         contentCache,
		History:       history,
		DishIndex:     dishIndex,
		Embedding:     embeddingClient,
		Profile:       profileClient,
		Logger:        logger.Sub("Queue"),
	})
	if err != nil {
		log.Fatalf("Failed to initialize queue consumer: %v", err)
	}

	ctx := context.Background()
	if err := consumer.Start(ctx); err != nil {
		log.Fatalf("Failed to start queue consumer: %v", err)
	}

	logger.Info("MenuScan Worker is ready", "queue", cfg.QueueName)

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigChan
	logger.Info("Received signal, shutting down", "signal", sig.String())

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := consumer.Stop(stopCtx); err != nil {
		logger.Error("Error stopping queue consumer", "error", err)
	}

	logger.Info("Shutdown complete")
}
