/**
 * Configuration for the menu scan worker.
 *
 * Loads configuration from environment variables matching .env.menuscan
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds worker configuration
type Config struct {
	// Cache configuration
	CacheBackend string // "sqlite" or "redis"
	CacheDir     string // directory for the embedded SQLite cache
	RedisURL     string // required when CacheBackend is "redis" or the job queue is enabled
	CacheTTL     time.Duration

	// PostgreSQL scan history (optional; empty disables history persistence)
	DatabaseURL string

	// Qdrant dish embedding index (optional; empty disables the index)
	QdrantURL        string
	QdrantCollection string

	// Service URLs
	VisionURL       string // remote OCR service
	AnalysisURL     string // synchronous analysis endpoint
	StreamURL       string // streaming verdict endpoint; empty selects the synchronous path
	ProfileURL      string // user allergy/diet profile service
	EmbeddingURL    string // embedding service for the dish index
	EmbeddingAPIKey string

	// Analysis behavior
	SubmitTimeout     time.Duration
	CompressThreshold int64 // bytes; images above this get re-compressed
	JPEGQuality       int

	// OCR retry behavior
	OCRMaxRetries     int
	OCRInitialBackoff time.Duration
	OCRMaxBackoff     time.Duration

	// Worker configuration
	WorkerConcurrency int
	QueueName         string
	SweepInterval     time.Duration

	// Tesseract configuration
	TesseractLanguages string

	// Logging
	LogLevel string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		CacheBackend:       getEnvOrDefault("CACHE_BACKEND", "sqlite"),
		CacheDir:           getEnvOrDefault("CACHE_DIR", "/var/lib/menuscan"),
		RedisURL:           getEnvOrDefault("REDIS_URL", "redis://localhost:6379"),
		CacheTTL:           getEnvAsDurationOrDefault("CACHE_TTL", 24*time.Hour),
		DatabaseURL:        getEnvOrDefault("DATABASE_URL", ""),
		QdrantURL:          getEnvOrDefault("QDRANT_URL", ""),
		QdrantCollection:   getEnvOrDefault("QDRANT_COLLECTION", "menuscan_dishes"),
		VisionURL:          getEnvOrDefault("VISION_URL", ""),
		AnalysisURL:        getEnvOrThrow("ANALYSIS_URL"),
		StreamURL:          getEnvOrDefault("STREAM_URL", ""),
		ProfileURL:         getEnvOrDefault("PROFILE_URL", ""),
		EmbeddingURL:       getEnvOrDefault("EMBEDDING_URL", ""),
		EmbeddingAPIKey:    getEnvOrDefault("EMBEDDING_API_KEY", ""),
		SubmitTimeout:      getEnvAsDurationOrDefault("SUBMIT_TIMEOUT", 90*time.Second),
		CompressThreshold:  getEnvAsInt64OrDefault("COMPRESS_THRESHOLD", 1024*1024),
		JPEGQuality:        getEnvAsIntOrDefault("JPEG_QUALITY", 80),
		OCRMaxRetries:      getEnvAsIntOrDefault("OCR_MAX_RETRIES", 3),
		OCRInitialBackoff:  getEnvAsDurationOrDefault("OCR_INITIAL_BACKOFF", time.Second),
		OCRMaxBackoff:      getEnvAsDurationOrDefault("OCR_MAX_BACKOFF", 16*time.Second),
		WorkerConcurrency:  getEnvAsIntOrDefault("WORKER_CONCURRENCY", 10),
		QueueName:          getEnvOrDefault("QUEUE_NAME", "menuscan"),
		SweepInterval:      getEnvAsDurationOrDefault("SWEEP_INTERVAL", time.Hour),
		TesseractLanguages: getEnvOrDefault("TESSERACT_LANGUAGES", "kor+eng"),
		LogLevel:           getEnvOrDefault("LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.AnalysisURL == "" {
		return fmt.Errorf("ANALYSIS_URL is required")
	}

	if c.CacheBackend != "sqlite" && c.CacheBackend != "redis" {
		return fmt.Errorf("CACHE_BACKEND must be sqlite or redis, got %q", c.CacheBackend)
	}

	if c.CacheBackend == "redis" && c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required when CACHE_BACKEND is redis")
	}

	if c.CacheTTL <= 0 {
		return fmt.Errorf("CACHE_TTL must be positive, got %v", c.CacheTTL)
	}

	if c.WorkerConcurrency < 1 || c.WorkerConcurrency > 100 {
		return fmt.Errorf("WORKER_CONCURRENCY must be between 1 and 100, got %d", c.WorkerConcurrency)
	}

	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return fmt.Errorf("JPEG_QUALITY must be between 1 and 100, got %d", c.JPEGQuality)
	}

	if c.OCRMaxRetries < 1 {
		return fmt.Errorf("OCR_MAX_RETRIES must be at least 1, got %d", c.OCRMaxRetries)
	}

	return nil
}

// getEnvOrDefault gets environment variable or returns default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrThrow gets environment variable or panics
func getEnvOrThrow(key string) string {
	value := os.Getenv(key)
	if value == "" {
		panic(fmt.Sprintf("Required environment variable %s is not set", key))
	}
	return value
}

// getEnvAsIntOrDefault gets environment variable as int or returns default
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsInt64OrDefault gets environment variable as int64 or returns default
func getEnvAsInt64OrDefault(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsDurationOrDefault gets environment variable as duration or returns default
func getEnvAsDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}
