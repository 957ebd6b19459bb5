package config

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("ANALYSIS_URL", "http://analysis.local")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.CacheBackend != "sqlite" {
		t.Errorf("default cache backend = %q, want sqlite", cfg.CacheBackend)
	}
	if cfg.CacheTTL != 24*time.Hour {
		t.Errorf("default cache TTL = %v, want 24h", cfg.CacheTTL)
	}
	if cfg.SubmitTimeout != 90*time.Second {
		t.Errorf("default submit timeout = %v, want 90s", cfg.SubmitTimeout)
	}
	if cfg.CompressThreshold != 1024*1024 {
		t.Errorf("default compress threshold = %d, want 1 MiB", cfg.CompressThreshold)
	}
	if cfg.WorkerConcurrency != 10 {
		t.Errorf("default concurrency = %d, want 10", cfg.WorkerConcurrency)
	}
	if cfg.TesseractLanguages != "kor+eng" {
		t.Errorf("default tesseract languages = %q", cfg.TesseractLanguages)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("ANALYSIS_URL", "http://analysis.local")
	t.Setenv("CACHE_BACKEND", "redis")
	t.Setenv("CACHE_TTL", "1h")
	t.Setenv("WORKER_CONCURRENCY", "4")
	t.Setenv("JPEG_QUALITY", "60")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.CacheBackend != "redis" {
		t.Errorf("cache backend = %q", cfg.CacheBackend)
	}
	if cfg.CacheTTL != time.Hour {
		t.Errorf("cache TTL = %v", cfg.CacheTTL)
	}
	if cfg.WorkerConcurrency != 4 {
		t.Errorf("concurrency = %d", cfg.WorkerConcurrency)
	}
	if cfg.JPEGQuality != 60 {
		t.Errorf("jpeg quality = %d", cfg.JPEGQuality)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	valid := func() *Config {
		return &Config{
			AnalysisURL:       "http://analysis.local",
			CacheBackend:      "sqlite",
			CacheTTL:          time.Hour,
			RedisURL:          "redis://localhost:6379",
			WorkerConcurrency: 10,
			JPEGQuality:       80,
			OCRMaxRetries:     3,
		}
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing analysis URL", func(c *Config) { c.AnalysisURL = "" }},
		{"unknown cache backend", func(c *Config) { c.CacheBackend = "memcached" }},
		{"redis backend without URL", func(c *Config) { c.CacheBackend = "redis"; c.RedisURL = "" }},
		{"non-positive TTL", func(c *Config) { c.CacheTTL = 0 }},
		{"zero concurrency", func(c *Config) { c.WorkerConcurrency = 0 }},
		{"quality out of range", func(c *Config) { c.JPEGQuality = 101 }},
		{"zero retries", func(c *Config) { c.OCRMaxRetries = 0 }},
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("baseline config must validate: %v", err)
	}

	for _, tc := range cases {
		cfg := valid()
		tc.mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}
