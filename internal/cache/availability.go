// Package cache keeps per-lot availability counts in redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/effectivemobile/parking/internal/model"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "parking:availability:"

type AvailabilityCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewAvailabilityCache(client *redis.Client, ttl time.Duration) *AvailabilityCache {
	if ttl == 0 {
		ttl = time.Minute
	}
	return &AvailabilityCache{client: client, ttl: ttl}
}

func (c *AvailabilityCache) Get(ctx context.Context, lotID uuid.UUID) (map[model.SpotStatus]int, bool, error) {
	raw, err := c.client.Get(ctx, keyPrefix+lotID.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var counts map[model.SpotStatus]int
	if err := json.Unmarshal(raw, &counts); err != nil {
		return nil, false, err
	}
	return counts, true, nil
}

func (c *AvailabilityCache) Set(ctx context.Context, lotID uuid.UUID, counts map[model.SpotStatus]int) error {
	raw, err := json.Marshal(counts)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, keyPrefix+lotID.String(), raw, c.ttl).Err()
}

func (c *AvailabilityCache) Invalidate(ctx context.Context, lotID uuid.UUID) error {
	return c.client.Del(ctx, keyPrefix+lotID.String()).Err()
}
