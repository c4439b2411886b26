/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package cache provides a Redis-based caching layer for frequently accessed
// timetable data. Redis being down degrades to uncached reads, never errors.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Default TTL values for different cache types
const (
	DefaultClassListTTL = 5 * time.Minute
	DefaultWeekGridTTL  = 2 * time.Minute
	DefaultUpcomingTTL  = 5 * time.Minute
)

// Key prefixes for Redis cache
const (
	KeyClassList = "gradehall:cache:classes"
	KeyWeekGrid  = "gradehall:cache:week:"     // + class_code:year:offset
	KeyUpcoming  = "gradehall:cache:upcoming:" // + kind
)

// Config contains cache configuration.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// TTL overrides
	ClassListTTL time.Duration
	WeekGridTTL  time.Duration
	UpcomingTTL  time.Duration

	// Fallback behavior
	DisableOnError bool // If true, disable caching on Redis errors
}

// DefaultConfig returns default cache configuration.
func DefaultConfig() Config {
	return Config{
		RedisAddr:      "localhost:6379",
		ClassListTTL:   DefaultClassListTTL,
		WeekGridTTL:    DefaultWeekGridTTL,
		UpcomingTTL:    DefaultUpcomingTTL,
		DisableOnError: true,
	}
}

// Cache provides Redis-backed caching with graceful fallback.
type Cache struct {
	client *redis.Client
	logger zerolog.Logger
	config Config

	mu       sync.RWMutex
	disabled bool // Circuit breaker state
}

// New creates a new cache instance.
func New(cfg Config, logger zerolog.Logger) (*Cache, error) {
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

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("Redis cache unavailable, running without caching")
		return &Cache{
			logger:   logger.With().Str("component", "cache").Logger(),
			config:   cfg,
			disabled: true,
		}, nil
	}

	logger.Info().Str("addr", cfg.RedisAddr).Msg("Redis cache initialized")

	return &Cache{
		client: client,
		logger: logger.With().Str("component", "cache").Logger(),
		config: cfg,
	}, nil
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// IsAvailable returns true if the cache is operational.
func (c *Cache) IsAvailable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.disabled && c.client != nil
}

// handleError handles Redis errors with circuit breaker logic.
func (c *Cache) handleError(err error, operation string) {
	if err == nil || err == redis.Nil {
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

// get retrieves a value from cache and unmarshals it.
func (c *Cache) get(ctx context.Context, key string, dest any) (bool, error) {
	if !c.IsAvailable() {
		return false, nil
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
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

// set stores a value in cache with TTL.
func (c *Cache) set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if !c.IsAvailable() {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		c.handleError(err, "set")
		return err
	}

	return nil
}

// delete removes a key from cache.
func (c *Cache) delete(ctx context.Context, key string) error {
	if !c.IsAvailable() {
		return nil
	}

	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.handleError(err, "delete")
		return err
	}

	return nil
}

// deletePattern deletes all keys matching a pattern.
func (c *Cache) deletePattern(ctx context.Context, pattern string) error {
	if !c.IsAvailable() {
		return nil
	}

	// Use SCAN to find keys (safer than KEYS for production)
	var cursor uint64
	for {
		keys, nextCursor, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
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

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	return nil
}

// Class list caching methods

// CachedClass represents a cached class record.
type CachedClass struct {
	ID           string `json:"id"`
	Code         string `json:"code"`
	Name         string `json:"name"`
	AcademicYear string `json:"academic_year"`
}

// GetClassList retrieves the cached list of classes.
func (c *Cache) GetClassList(ctx context.Context) ([]CachedClass, bool) {
	var classes []CachedClass
	found, err := c.get(ctx, KeyClassList, &classes)
	if err != nil || !found {
		return nil, false
	}
	c.logger.Debug().Int("count", len(classes)).Msg("class list cache hit")
	return classes, true
}

// SetClassList caches the list of classes.
func (c *Cache) SetClassList(ctx context.Context, classes []CachedClass) error {
	c.logger.Debug().Int("count", len(classes)).Msg("caching class list")
	return c.set(ctx, KeyClassList, classes, c.config.ClassListTTL)
}

// InvalidateClassList removes the class list from cache.
func (c *Cache) InvalidateClassList(ctx context.Context) error {
	c.logger.Debug().Msg("invalidating class list cache")
	return c.delete(ctx, KeyClassList)
}

// Week grid caching methods

func weekGridKey(classCode, academicYear string, offset int) string {
	return fmt.Sprintf("%s%s:%s:%d", KeyWeekGrid, classCode, academicYear, offset)
}

// GetWeekGrid retrieves a cached composed week payload.
func (c *Cache) GetWeekGrid(ctx context.Context, classCode, academicYear string, offset int, dest any) bool {
	found, err := c.get(ctx, weekGridKey(classCode, academicYear, offset), dest)
	if err != nil || !found {
		return false
	}
	c.logger.Debug().Str("class", classCode).Int("offset", offset).Msg("week grid cache hit")
	return true
}

// SetWeekGrid caches a composed week payload.
func (c *Cache) SetWeekGrid(ctx context.Context, classCode, academicYear string, offset int, grid any) error {
	return c.set(ctx, weekGridKey(classCode, academicYear, offset), grid, c.config.WeekGridTTL)
}

// InvalidateClassWeeks drops every cached week for one class, e.g. after a
// plan lands on its calendar.
func (c *Cache) InvalidateClassWeeks(ctx context.Context, classCode string) error {
	c.logger.Debug().Str("class", classCode).Msg("invalidating week grid cache")
	return c.deletePattern(ctx, KeyWeekGrid+classCode+":*")
}

// Upcoming listing caching methods

// GetUpcoming retrieves a cached upcoming exams or holidays listing.
func (c *Cache) GetUpcoming(ctx context.Context, kind string, dest any) bool {
	found, err := c.get(ctx, KeyUpcoming+kind, dest)
	return err == nil && found
}

// SetUpcoming caches an upcoming listing by kind.
func (c *Cache) SetUpcoming(ctx context.Context, kind string, value any) error {
	return c.set(ctx, KeyUpcoming+kind, value, c.config.UpcomingTTL)
}

// InvalidateUpcoming drops one upcoming listing.
func (c *Cache) InvalidateUpcoming(ctx context.Context, kind string) error {
	return c.delete(ctx, KeyUpcoming+kind)
}
