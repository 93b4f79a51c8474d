package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"betslip/domain/entities"
)

// RedisMarketCache keeps the latest snapshot per market in Redis so a
// restart can warm the registry without replaying the feed. Implements
// domain.MarketSnapshotCache.
type RedisMarketCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisMarketCache builds a cache keyed by market ref. Snapshot TTL
// matches the feed stream's retention; anything older replays from the
// feed instead.
func NewRedisMarketCache(addr, password string, db int) *RedisMarketCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisMarketCache{
		client: client,
		ttl:    24 * time.Hour,
		prefix: "market",
	}
}

func (c *RedisMarketCache) key(ref entities.MarketRef) string {
	return fmt.Sprintf("%s:%d:%d", c.prefix, ref.GameID, ref.PeriodNumber)
}

// Put stores the latest snapshot for the market's ref.
func (c *RedisMarketCache) Put(ctx context.Context, m *entities.Market) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode market snapshot: %w", err)
	}
	if err := c.client.Set(ctx, c.key(m.Ref), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store market snapshot: %w", err)
	}
	return nil
}

// All returns every cached snapshot. Entries that fail to decode are
// skipped; the feed will refresh them.
func (c *RedisMarketCache) All(ctx context.Context) ([]*entities.Market, error) {
	var keys []string
	iter := c.client.Scan(ctx, 0, c.prefix+":*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan market snapshots: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	vals, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch market snapshots: %w", err)
	}

	markets := make([]*entities.Market, 0, len(vals))
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			// Key expired between SCAN and MGET
			continue
		}
		var m entities.Market
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			log.WithFields(log.Fields{
				"key":   keys[i],
				"error": err,
			}).Warn("Skipping undecodable market snapshot")
			continue
		}
		markets = append(markets, &m)
	}
	return markets, nil
}

// Close releases the underlying connection.
func (c *RedisMarketCache) Close() error {
	return c.client.Close()
}
