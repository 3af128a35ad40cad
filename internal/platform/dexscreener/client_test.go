package dexscreener

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcalloway/dexarb/internal/domain"
)

var weth = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")

type memPriceCache struct {
	points map[common.Address]domain.PricePoint
}

func newMemPriceCache() *memPriceCache {
	return &memPriceCache{points: map[common.Address]domain.PricePoint{}}
}

func (m *memPriceCache) SetPrice(_ context.Context, asset common.Address, point domain.PricePoint) error {
	m.points[asset] = point
	return nil
}

func (m *memPriceCache) GetPrice(_ context.Context, asset common.Address) (domain.PricePoint, error) {
	point, ok := m.points[asset]
	if !ok {
		return domain.PricePoint{}, domain.ErrNotFound
	}
	return point, nil
}

const tokenBody = `{
	"pairs": [
		{
			"priceUsd": "2501.25",
			"priceChange": {"h24": -1.2},
			"volume": {"h24": 1000000},
			"liquidity": {"usd": 50000000}
		},
		{
			"priceUsd": "2498.00",
			"priceChange": {"h24": -1.5},
			"volume": {"h24": 250000},
			"liquidity": {"usd": 4000000}
		}
	]
}`

func newTestServer(t *testing.T, body string, status int, hits *atomic.Int64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		assert.Equal(t, "/latest/dex/tokens/"+weth.Hex(), r.URL.Path)
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGetPricePicksDeepestPair(t *testing.T) {
	srv := newTestServer(t, tokenBody, http.StatusOK, nil)
	c := NewClient(srv.URL, nil, time.Minute, slog.Default())

	point, err := c.GetPrice(context.Background(), weth)
	require.NoError(t, err)

	assert.Equal(t, 2501.25, point.PriceUSD)
	assert.Equal(t, -1.2, point.Change24h)
	assert.Equal(t, 1_250_000.0, point.Volume24h)
	assert.WithinDuration(t, time.Now().UTC(), point.Timestamp, 5*time.Second)
}

func TestGetPriceReadsThroughCache(t *testing.T) {
	var hits atomic.Int64
	srv := newTestServer(t, tokenBody, http.StatusOK, &hits)
	cache := newMemPriceCache()
	c := NewClient(srv.URL, cache, time.Minute, slog.Default())

	first, err := c.GetPrice(context.Background(), weth)
	require.NoError(t, err)
	require.EqualValues(t, 1, hits.Load())

	// The cached observation is fresh, so the second lookup skips HTTP.
	second, err := c.GetPrice(context.Background(), weth)
	require.NoError(t, err)
	assert.EqualValues(t, 1, hits.Load())
	assert.Equal(t, first, second)
}

func TestGetPriceRefreshesStaleCache(t *testing.T) {
	var hits atomic.Int64
	srv := newTestServer(t, tokenBody, http.StatusOK, &hits)
	cache := newMemPriceCache()
	cache.points[weth] = domain.PricePoint{
		PriceUSD:  1.0,
		Timestamp: time.Now().UTC().Add(-time.Hour),
	}
	c := NewClient(srv.URL, cache, time.Minute, slog.Default())

	point, err := c.GetPrice(context.Background(), weth)
	require.NoError(t, err)
	assert.EqualValues(t, 1, hits.Load())
	assert.Equal(t, 2501.25, point.PriceUSD)
	assert.Equal(t, 2501.25, cache.points[weth].PriceUSD)
}

func TestGetPriceUnknownToken(t *testing.T) {
	srv := newTestServer(t, `{"pairs": []}`, http.StatusOK, nil)
	c := NewClient(srv.URL, nil, time.Minute, slog.Default())

	_, err := c.GetPrice(context.Background(), weth)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGetPriceHTTPError(t *testing.T) {
	srv := newTestServer(t, `rate limited`, http.StatusTooManyRequests, nil)
	c := NewClient(srv.URL, nil, time.Minute, slog.Default())

	_, err := c.GetPrice(context.Background(), weth)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 429")
}
