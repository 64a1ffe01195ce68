package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/giftvault-io/giftvault/internal/config"
	"github.com/giftvault-io/giftvault/internal/inventory"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const statsKey = "giftvault:stats"

// StatsCache caches inventory stat snapshots in Redis for a short TTL to
// keep reporting traffic off the store. A nil cache is a no-op, so callers
// need no enabled/disabled branching.
type StatsCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStatsCache builds the cache from configuration. Returns nil when no
// Redis address is configured.
func NewStatsCache(cfg config.RedisConfig) *StatsCache {
	if cfg.Addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &StatsCache{client: client, ttl: cfg.StatsTTL()}
}

// Get returns a cached snapshot when present and fresh.
func (c *StatsCache) Get(ctx context.Context) (*inventory.InventoryStats, bool) {
	if c == nil {
		return nil, false
	}
	payload, errGet := c.client.Get(ctx, statsKey).Bytes()
	if errGet != nil {
		if !errors.Is(errGet, redis.Nil) {
			log.WithError(errGet).Debug("stats cache read failed")
		}
		return nil, false
	}
	var stats inventory.InventoryStats
	if errUnmarshal := json.Unmarshal(payload, &stats); errUnmarshal != nil {
		log.WithError(errUnmarshal).Debug("stats cache payload invalid")
		return nil, false
	}
	return &stats, true
}

// Set stores a snapshot with the configured TTL. Cache failures are never
// surfaced to callers.
func (c *StatsCache) Set(ctx context.Context, stats *inventory.InventoryStats) {
	if c == nil || stats == nil {
		return
	}
	payload, errMarshal := json.Marshal(stats)
	if errMarshal != nil {
		return
	}
	if errSet := c.client.Set(ctx, statsKey, payload, c.ttl).Err(); errSet != nil {
		log.WithError(errSet).Debug("stats cache write failed")
	}
}
