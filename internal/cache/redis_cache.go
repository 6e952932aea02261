package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"automatpos/backend/internal/domain"
)

const lookupKeyPrefix = "automatpos:lookup:"

// RedisLookupCache keeps external lookup results shared between server
// instances so a barcode is only fetched once per TTL.
type RedisLookupCache struct {
	client *redis.Client
}

// cachedLookup is the stored value. FetchedAt lets operators see how stale
// an entry is with a plain GET.
type cachedLookup struct {
	Product   domain.LookupProduct `json:"product"`
	FetchedAt time.Time            `json:"fetched_at"`
}

func NewRedisLookupCache(addr, password string, db int) *RedisLookupCache {
	return &RedisLookupCache{client: redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})}
}

func (c *RedisLookupCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisLookupCache) Close() error {
	return c.client.Close()
}

func lookupKey(barcode string) string {
	return lookupKeyPrefix + strings.TrimSpace(barcode)
}

func (c *RedisLookupCache) Get(ctx context.Context, barcode string) (*domain.LookupProduct, bool, error) {
	raw, err := c.client.Get(ctx, lookupKey(barcode)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, false, nil
	case err != nil:
		return nil, false, fmt.Errorf("redis get %s: %w", barcode, err)
	}

	var entry cachedLookup
	if err := json.Unmarshal(raw, &entry); err != nil {
		// A corrupt entry is treated as a miss and overwritten on the next Set.
		return nil, false, nil
	}
	return &entry.Product, true, nil
}

func (c *RedisLookupCache) Set(ctx context.Context, barcode string, value *domain.LookupProduct, ttl time.Duration) error {
	if value == nil || ttl <= 0 {
		return nil
	}
	payload, err := json.Marshal(cachedLookup{Product: *value, FetchedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, lookupKey(barcode), payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", barcode, err)
	}
	return nil
}
