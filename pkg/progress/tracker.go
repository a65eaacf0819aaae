// Package progress keeps the latest pipeline progress of each batch in Redis
package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/redis/go-redis/v9"

	"github.com/Ramsey-B/clover/pkg/models"
)

const (
	DefaultKeyPrefix = "clover:progress"
	DefaultTTL       = 24 * time.Hour
)

// Config holds Redis connection configuration
type Config struct {
	Host      string
	Port      int
	Password  string
	DB        int
	KeyPrefix string
	TTL       time.Duration
}

// Connect opens and pings a Redis client
func Connect(ctx context.Context, cfg Config, logger ectologger.Logger) (*redis.Client, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}

	logger.Infof("Connected to Redis at %s", addr)
	return rdb, nil
}

// RedisTracker stores the latest Progress per batch under a TTL and publishes
// every update on the batch's channel
type RedisTracker struct {
	rdb    *redis.Client
	logger ectologger.Logger
	prefix string
	ttl    time.Duration
}

// NewRedisTracker creates a tracker over an open client
func NewRedisTracker(rdb *redis.Client, cfg Config, logger ectologger.Logger) *RedisTracker {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisTracker{
		rdb:    rdb,
		logger: logger,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (t *RedisTracker) key(batchID string) string {
	return t.prefix + ":" + batchID
}

// Channel returns the pub/sub channel progress updates for batchID are published on
func (t *RedisTracker) Channel(batchID string) string {
	return t.key(batchID) + ":updates"
}

// Update stores p as the latest progress of its batch
func (t *RedisTracker) Update(ctx context.Context, p models.Progress) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode progress: %w", err)
	}

	pipe := t.rdb.TxPipeline()
	pipe.Set(ctx, t.key(p.BatchID), data, t.ttl)
	pipe.Publish(ctx, t.Channel(p.BatchID), data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store progress for batch %s: %w", p.BatchID, err)
	}
	return nil
}

// Get returns the latest progress of a batch, or nil when none is stored
func (t *RedisTracker) Get(ctx context.Context, batchID string) (*models.Progress, error) {
	data, err := t.rdb.Get(ctx, t.key(batchID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load progress for batch %s: %w", batchID, err)
	}

	var p models.Progress
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to decode progress for batch %s: %w", batchID, err)
	}
	return &p, nil
}

// Clear removes the stored progress of a batch
func (t *RedisTracker) Clear(ctx context.Context, batchID string) error {
	return t.rdb.Del(ctx, t.key(batchID)).Err()
}

// Reporter returns a ProgressFunc that records updates and then calls next.
// Storage failures are logged; progress never blocks the pipeline.
func (t *RedisTracker) Reporter(ctx context.Context, next models.ProgressFunc) models.ProgressFunc {
	return func(p models.Progress) {
		if err := t.Update(ctx, p); err != nil {
			t.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"batch_id": p.BatchID,
				"stage":    string(p.Stage),
			}).Warn("Failed to record progress")
		}
		if next != nil {
			next(p)
		}
	}
}
