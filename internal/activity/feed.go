// Package activity serves the workspace recent-activity feed. The feed is a
// derived read for the dashboard, cached for a short TTL in Redis with an
// in-memory fallback when Redis is unreachable.
package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"pressroom/internal/models"
)

// Source is the authoritative read underneath the cache.
type Source interface {
	RecentByWorkspace(workspaceID string, limit int) ([]models.ActivityEntry, error)
}

// Cache is a get/set byte cache with TTL semantics owned by the
// implementation.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, val []byte)
}

type redisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func (c *redisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	return val, true
}

func (c *redisCache) Set(ctx context.Context, key string, val []byte) {
	_ = c.client.Set(ctx, key, val, c.ttl).Err()
}

type memoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
}

type memoryEntry struct {
	val     []byte
	expires time.Time
}

func newMemoryCache(ttl time.Duration) *memoryCache {
	return &memoryCache{entries: make(map[string]memoryEntry), ttl: ttl}
}

func (c *memoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || time.Now().After(e.expires) {
		delete(c.entries, key)
		return nil, false
	}
	return e.val, true
}

func (c *memoryCache) Set(_ context.Context, key string, val []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	for k, e := range c.entries {
		if now.After(e.expires) {
			delete(c.entries, k)
		}
	}
	c.entries[key] = memoryEntry{val: val, expires: now.Add(c.ttl)}
}

// NewCache builds a Redis-backed cache and falls back to in-memory when the
// server is unreachable or no address is configured.
func NewCache(addr, pass string, db int, ttl time.Duration) (Cache, error) {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if addr == "" {
		return newMemoryCache(ttl), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: pass,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return newMemoryCache(ttl), err
	}
	return &redisCache{client: client, ttl: ttl}, nil
}

// Feed answers activity queries through the cache.
type Feed struct {
	source Source
	cache  Cache
	logger *zap.Logger
}

func NewFeed(source Source, cache Cache, logger *zap.Logger) *Feed {
	return &Feed{source: source, cache: cache, logger: logger}
}

func (f *Feed) Recent(ctx context.Context, workspaceID string, limit int) ([]models.ActivityEntry, error) {
	key := fmt.Sprintf("pressroom:activity:%s:%d", workspaceID, limit)

	if raw, ok := f.cache.Get(ctx, key); ok {
		var entries []models.ActivityEntry
		if err := json.Unmarshal(raw, &entries); err == nil {
			return entries, nil
		}
		f.logger.Warn("Discarding malformed cached activity feed", zap.String("key", key))
	}

	entries, err := f.source.RecentByWorkspace(workspaceID, limit)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []models.ActivityEntry{}
	}

	if raw, err := json.Marshal(entries); err == nil {
		f.cache.Set(ctx, key, raw)
	}
	return entries, nil
}
