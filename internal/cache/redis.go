package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is the shared cache backend for multi-worker deployments. Keys
// carry a server-side TTL in addition to the ExpiresAt field, so Redis evicts
// entries on its own even if nobody sweeps.
type RedisStore struct {
	client *redis.Client
	prefix string
}

const redisKeyPrefix = "menuscan:ocr:"

// OpenRedisStore connects to Redis using a redis:// URL.
func OpenRedisStore(redisURL string) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{client: client, prefix: redisKeyPrefix}, nil
}

func (s *RedisStore) key(hash string) string {
	return s.prefix + hash
}

// Get returns the entry for hash, or ErrNotFound.
func (s *RedisStore) Get(ctx context.Context, hash string) (*Entry, error) {
	data, err := s.client.Get(ctx, s.key(hash)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache entry: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache entry: %w", err)
	}
	return &entry, nil
}

// Put writes the entry with a server-side TTL matching ExpiresAt.
func (s *RedisStore) Put(ctx context.Context, entry *Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	ttl := time.Until(entry.ExpiresAt)
	if ttl <= 0 {
		// Already expired; nothing worth storing.
		return nil
	}

	if err := s.client.Set(ctx, s.key(entry.ContentHash), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return nil
}

// Delete removes the entry for hash.
func (s *RedisStore) Delete(ctx context.Context, hash string) error {
	if err := s.client.Del(ctx, s.key(hash)).Err(); err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

// Entries scans all cache keys. Used only by sweep and stats, so the O(n)
// SCAN is acceptable.
func (s *RedisStore) Entries(ctx context.Context) ([]Entry, error) {
	var entries []Entry
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Bytes()
		if err == redis.Nil {
			continue // evicted between SCAN and GET
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read cache entry: %w", err)
		}

		var entry Entry
		if err := json.Unmarshal(data, &entry); err != nil {
			return nil, fmt.Errorf("failed to unmarshal cache entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan cache keys: %w", err)
	}
	return entries, nil
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
