package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/jmcalloway/dexarb/internal/domain"
)

// PriceCache implements domain.PriceCache using Redis hashes. Each asset's
// observation is stored at key "price:{address}" with fields "price",
// "change24h", "volume24h" and "ts" (Unix nanosecond timestamp), expiring
// after the configured TTL so stale feeds fall back to the HTTP oracle.
type PriceCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewPriceCache creates a PriceCache backed by the given Client. A zero ttl
// disables expiry.
func NewPriceCache(c *Client, ttl time.Duration) *PriceCache {
	return &PriceCache{rdb: c.Underlying(), ttl: ttl}
}

func priceKey(asset common.Address) string {
	return "price:" + asset.Hex()
}

// SetPrice stores the latest observation for an asset.
func (pc *PriceCache) SetPrice(ctx context.Context, asset common.Address, point domain.PricePoint) error {
	key := priceKey(asset)
	fields := map[string]interface{}{
		"price":     strconv.FormatFloat(point.PriceUSD, 'f', -1, 64),
		"change24h": strconv.FormatFloat(point.Change24h, 'f', -1, 64),
		"volume24h": strconv.FormatFloat(point.Volume24h, 'f', -1, 64),
		"ts":        strconv.FormatInt(point.Timestamp.UnixNano(), 10),
	}
	pipe := pc.rdb.TxPipeline()
	pipe.HSet(ctx, key, fields)
	if pc.ttl > 0 {
		pipe.Expire(ctx, key, pc.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set price %s: %w", asset.Hex(), err)
	}
	return nil
}

// GetPrice retrieves the latest observation for an asset. It returns
// domain.ErrNotFound when no observation exists or the entry expired.
func (pc *PriceCache) GetPrice(ctx context.Context, asset common.Address) (domain.PricePoint, error) {
	vals, err := pc.rdb.HGetAll(ctx, priceKey(asset)).Result()
	if err != nil {
		return domain.PricePoint{}, fmt.Errorf("redis: get price %s: %w", asset.Hex(), err)
	}
	if len(vals) == 0 {
		return domain.PricePoint{}, domain.ErrNotFound
	}

	point := domain.PricePoint{}
	point.PriceUSD, err = strconv.ParseFloat(vals["price"], 64)
	if err != nil {
		return domain.PricePoint{}, fmt.Errorf("redis: parse price %s: %w", asset.Hex(), err)
	}
	// Secondary fields are best-effort; a partial hash still yields a price.
	point.Change24h, _ = strconv.ParseFloat(vals["change24h"], 64)
	point.Volume24h, _ = strconv.ParseFloat(vals["volume24h"], 64)

	tsNano, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return domain.PricePoint{}, fmt.Errorf("redis: parse ts %s: %w", asset.Hex(), err)
	}
	point.Timestamp = time.Unix(0, tsNano)
	return point, nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
