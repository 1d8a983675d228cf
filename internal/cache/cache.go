/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package cache provides a Redis-based cache for resolved time sequences.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/friendsincode/timedimension/internal/config"
	"github.com/friendsincode/timedimension/internal/telemetry"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultTTL bounds how long a resolved sequence is kept.
const DefaultTTL = 5 * time.Minute

// Key prefixes for Redis cache
const (
	KeyLayer    = "timedim:cache:layer:"    // + layer_id + ":" + revision
	KeyTimeline = "timedim:cache:timeline:" // + timeline_id
)

// Config contains cache configuration.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	TTL           time.Duration

	// DisableOnError trips the circuit breaker on the first Redis error.
	DisableOnError bool
}

// DefaultConfig returns default cache configuration.
func DefaultConfig() Config {
	return Config{
		RedisAddr:      "localhost:6379",
		TTL:            DefaultTTL,
		DisableOnError: true,
	}
}

// ConfigFrom builds cache settings from process configuration.
func ConfigFrom(cfg *config.Config) Config {
	c := DefaultConfig()
	c.RedisAddr = cfg.RedisAddr
	c.RedisPassword = cfg.RedisPassword
	c.RedisDB = cfg.RedisDB
	if cfg.CacheTTL > 0 {
		c.TTL = cfg.CacheTTL
	}
	return c
}

// Sequence is a cached resolution.
type Sequence struct {
	Points     []int64   `json:"points"`
	Rejected   int       `json:"rejected"`
	ResolvedAt time.Time `json:"resolved_at"`
}

// Cache provides Redis-backed caching with graceful fallback. A nil *Cache
// is valid and never hits.
type Cache struct {
	client *redis.Client
	logger zerolog.Logger
	config Config

	mu       sync.RWMutex
	disabled bool // Circuit breaker state
}

// New creates a new cache instance. An unreachable Redis yields a disabled
// cache, not an error.
func New(cfg Config, logger zerolog.Logger) (*Cache, error) {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	logger = logger.With().Str("component", "cache").Logger()

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		logger.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis cache unavailable, running without caching")
		return &Cache{logger: logger, config: cfg, disabled: true}, nil
	}

	logger.Info().Str("addr", cfg.RedisAddr).Dur("ttl", cfg.TTL).Msg("redis cache initialized")
	return &Cache{client: client, logger: logger, config: cfg}, nil
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	if c != nil && c.client != nil {
		return c.client.Close()
	}
	return nil
}

// IsAvailable returns true if the cache is operational.
func (c *Cache) IsAvailable() bool {
	if c == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.disabled && c.client != nil
}

// handleError handles Redis errors with circuit breaker logic.
func (c *Cache) handleError(err error, operation string) {
	if err == nil || errors.Is(err, redis.Nil) {
		return
	}

	c.logger.Debug().Err(err).Str("operation", operation).Msg("cache operation failed")

	if c.config.DisableOnError {
		c.mu.Lock()
		c.disabled = true
		c.mu.Unlock()
		c.logger.Warn().Msg("disabling cache due to Redis error")
	}
}

func (c *Cache) get(ctx context.Context, key string, dest any) (bool, error) {
	if !c.IsAvailable() {
		return false, nil
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		c.handleError(err, "get")
		return false, err
	}

	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("failed to unmarshal cached value")
		return false, nil
	}
	return true, nil
}

func (c *Cache) set(ctx context.Context, key string, value any) error {
	if !c.IsAvailable() {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}
	if err := c.client.Set(ctx, key, data, c.config.TTL).Err(); err != nil {
		c.handleError(err, "set")
		return err
	}
	return nil
}

// deletePattern deletes all keys matching a pattern using SCAN.
func (c *Cache) deletePattern(ctx context.Context, pattern string) error {
	if !c.IsAvailable() {
		return nil
	}

	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			c.handleError(err, "scan")
			return err
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				c.handleError(err, "delete_batch")
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// LayerKey is the cache key for one revision of a layer.
func LayerKey(layerID string, revision int64) string {
	return KeyLayer + layerID + ":" + strconv.FormatInt(revision, 10)
}

// TimelineKey is the cache key for a timeline.
func TimelineKey(timelineID string) string {
	return KeyTimeline + timelineID
}

func (c *Cache) lookup(ctx context.Context, kind, key string) (*Sequence, bool) {
	var seq Sequence
	found, err := c.get(ctx, key, &seq)
	if err != nil || !found {
		telemetry.CacheRequestsTotal.WithLabelValues(kind, "miss").Inc()
		return nil, false
	}
	telemetry.CacheRequestsTotal.WithLabelValues(kind, "hit").Inc()
	c.logger.Debug().Str("key", key).Int("points", len(seq.Points)).Msg("cache hit")
	return &seq, true
}

// GetLayer returns the cached resolution of a layer revision.
func (c *Cache) GetLayer(ctx context.Context, layerID string, revision int64) (*Sequence, bool) {
	return c.lookup(ctx, "layer", LayerKey(layerID, revision))
}

// SetLayer caches the resolution of a layer revision.
func (c *Cache) SetLayer(ctx context.Context, layerID string, revision int64, seq *Sequence) error {
	return c.set(ctx, LayerKey(layerID, revision), seq)
}

// InvalidateLayer drops every cached revision of a layer.
func (c *Cache) InvalidateLayer(ctx context.Context, layerID string) error {
	if !c.IsAvailable() {
		return nil
	}
	c.logger.Debug().Str("layer_id", layerID).Msg("invalidating layer cache")
	return c.deletePattern(ctx, KeyLayer+layerID+":*")
}

// GetTimeline returns the cached resolution of a timeline.
func (c *Cache) GetTimeline(ctx context.Context, timelineID string) (*Sequence, bool) {
	return c.lookup(ctx, "timeline", TimelineKey(timelineID))
}

// SetTimeline caches the resolution of a timeline.
func (c *Cache) SetTimeline(ctx context.Context, timelineID string, seq *Sequence) error {
	return c.set(ctx, TimelineKey(timelineID), seq)
}

// InvalidateTimeline drops a cached timeline.
func (c *Cache) InvalidateTimeline(ctx context.Context, timelineID string) error {
	if !c.IsAvailable() {
		return nil
	}
	c.logger.Debug().Str("timeline_id", timelineID).Msg("invalidating timeline cache")
	if err := c.client.Del(ctx, TimelineKey(timelineID)).Err(); err != nil {
		c.handleError(err, "delete")
		return err
	}
	return nil
}

// InvalidateTimelines drops every cached timeline. Used when a layer shared
// by unknown timelines changes.
func (c *Cache) InvalidateTimelines(ctx context.Context) error {
	return c.deletePattern(ctx, KeyTimeline+"*")
}

// Stats reports the cache state for the system endpoint.
func (c *Cache) Stats() map[string]any {
	stats := map[string]any{"available": c.IsAvailable()}
	if c != nil {
		stats["ttl_seconds"] = int(c.config.TTL.Seconds())
		if c.client != nil {
			ps := c.client.PoolStats()
			stats["hits"] = ps.Hits
			stats["misses"] = ps.Misses
			stats["total_conns"] = ps.TotalConns
		}
	}
	return stats
}
