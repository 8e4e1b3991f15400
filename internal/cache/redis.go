// Package cache provides an optional Redis-backed cache for served
// predictions. A nil *Cache is safe to use and degrades to a no-op, so
// callers never branch on whether Redis is configured.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"footypredict/pipeline/internal/metrics"
)

// Cache is a thin JSON-over-Redis cache with a fixed TTL.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// New connects to Redis and verifies the connection. Returns an error
// when Redis is unreachable; callers may treat the cache as optional
// and continue with a nil Cache.
func New(ctx context.Context, addr, password string, db int, ttl time.Duration) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	log.Info().Str("addr", addr).Dur("ttl", ttl).Msg("Connected to Redis")
	return &Cache{client: client, ttl: ttl}, nil
}

// Close releases the Redis connection.
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}

func predictionKey(matchID int) string {
	return fmt.Sprintf("prediction:%d", matchID)
}

// GetPrediction loads a cached prediction into dst. Returns false on
// miss, decode failure or when the cache is disabled.
func (c *Cache) GetPrediction(ctx context.Context, matchID int, dst any) bool {
	if c == nil {
		return false
	}

	data, err := c.client.Get(ctx, predictionKey(matchID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Warn().Err(err).Int("match_id", matchID).Msg("Prediction cache read failed")
		}
		metrics.RecordCacheEvent("prediction", "miss")
		return false
	}

	if err := json.Unmarshal(data, dst); err != nil {
		log.Warn().Err(err).Int("match_id", matchID).Msg("Prediction cache decode failed")
		metrics.RecordCacheEvent("prediction", "miss")
		return false
	}

	metrics.RecordCacheEvent("prediction", "hit")
	return true
}

// SetPrediction stores a prediction under the match key. Failures are
// logged, never fatal.
func (c *Cache) SetPrediction(ctx context.Context, matchID int, value any) {
	if c == nil {
		return
	}

	data, err := json.Marshal(value)
	if err != nil {
		log.Warn().Err(err).Int("match_id", matchID).Msg("Prediction cache encode failed")
		return
	}
	if err := c.client.Set(ctx, predictionKey(matchID), data, c.ttl).Err(); err != nil {
		log.Warn().Err(err).Int("match_id", matchID).Msg("Prediction cache write failed")
	}
}

// InvalidatePrediction drops the cached prediction for a match, used
// after validation rewrites the stored row.
func (c *Cache) InvalidatePrediction(ctx context.Context, matchID int) {
	if c == nil {
		return
	}
	if err := c.client.Del(ctx, predictionKey(matchID)).Err(); err != nil {
		log.Warn().Err(err).Int("match_id", matchID).Msg("Prediction cache invalidation failed")
	}
}
