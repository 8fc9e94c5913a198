package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"pdfrag/internal/model"
)

const statsKey = "knowledge:stats"

type StatsCache struct {
	client *redisv9.Client
	ttl    time.Duration
}

func NewStatsCache(client *redisv9.Client, ttl time.Duration) *StatsCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &StatsCache{
		client: client,
		ttl:    ttl,
	}
}

func (c *StatsCache) Get(ctx context.Context) (*model.KnowledgeStats, bool, error) {
	raw, err := c.client.Get(ctx, statsKey).Result()
	if err == redisv9.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get stats failed: %w", err)
	}

	var stats model.KnowledgeStats
	if err := json.Unmarshal([]byte(raw), &stats); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached stats failed: %w", err)
	}
	return &stats, true, nil
}

func (c *StatsCache) Set(ctx context.Context, stats *model.KnowledgeStats) error {
	payload, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshal stats cache failed: %w", err)
	}
	if err := c.client.Set(ctx, statsKey, payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set stats failed: %w", err)
	}
	return nil
}

func (c *StatsCache) Invalidate(ctx context.Context) error {
	if err := c.client.Del(ctx, statsKey).Err(); err != nil {
		return fmt.Errorf("redis delete stats failed: %w", err)
	}
	return nil
}
