// Package dexscreener implements the spot price oracle against the public
// DEX Screener HTTP API. Observations are informational only and never feed
// the engine's integer amount math.
package dexscreener

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/jmcalloway/dexarb/internal/domain"
)

// Client queries DEX Screener token endpoints and reads through an optional
// PriceCache so repeated lookups inside one scan cycle hit Redis, not HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	cache      domain.PriceCache
	ttl        time.Duration
	logger     *slog.Logger
}

// NewClient creates a Client. cache may be nil, in which case every lookup
// goes to the API. baseURL defaults to the public endpoint when empty.
func NewClient(baseURL string, cache domain.PriceCache, ttl time.Duration, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = "https://api.dexscreener.com"
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		cache:  cache,
		ttl:    ttl,
		logger: logger.With(slog.String("component", "dexscreener")),
	}
}

// tokenResponse is the envelope of /latest/dex/tokens/{address}. Numeric
// fields arrive as strings or numbers depending on the pair, so everything
// is decoded defensively.
type tokenResponse struct {
	Pairs []pairJSON `json:"pairs"`
}

type pairJSON struct {
	PriceUSD    string `json:"priceUsd"`
	PriceChange struct {
		H24 float64 `json:"h24"`
	} `json:"priceChange"`
	Volume struct {
		H24 float64 `json:"h24"`
	} `json:"volume"`
	Liquidity struct {
		USD float64 `json:"usd"`
	} `json:"liquidity"`
}

// GetPrice returns the current spot observation for the asset. A cached
// observation younger than the TTL is served without an HTTP round trip.
// Implements domain.PriceOracle.
func (c *Client) GetPrice(ctx context.Context, asset common.Address) (domain.PricePoint, error) {
	if c.cache != nil {
		point, err := c.cache.GetPrice(ctx, asset)
		if err == nil && time.Since(point.Timestamp) < c.ttl {
			return point, nil
		}
	}

	point, err := c.fetch(ctx, asset)
	if err != nil {
		return domain.PricePoint{}, err
	}

	if c.cache != nil {
		if err := c.cache.SetPrice(ctx, asset, point); err != nil {
			c.logger.Warn("price cache write failed",
				slog.String("asset", asset.Hex()),
				slog.Any("error", err),
			)
		}
	}
	return point, nil
}

// fetch queries the token endpoint and condenses the pair list into one
// observation: the price of the deepest pair, volume summed across pairs.
func (c *Client) fetch(ctx context.Context, asset common.Address) (domain.PricePoint, error) {
	url := fmt.Sprintf("%s/latest/dex/tokens/%s", c.baseURL, asset.Hex())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.PricePoint{}, fmt.Errorf("dexscreener: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.PricePoint{}, fmt.Errorf("dexscreener: fetch %s: %w", asset.Hex(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.PricePoint{}, fmt.Errorf("dexscreener: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.PricePoint{}, fmt.Errorf("dexscreener: HTTP %d: %s", resp.StatusCode, string(body))
	}

	var decoded tokenResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return domain.PricePoint{}, fmt.Errorf("dexscreener: decode response: %w", err)
	}
	if len(decoded.Pairs) == 0 {
		return domain.PricePoint{}, fmt.Errorf("dexscreener: %s: %w", asset.Hex(), domain.ErrNotFound)
	}

	var (
		best        pairJSON
		bestLiq     = -1.0
		totalVolume float64
	)
	for _, pair := range decoded.Pairs {
		totalVolume += pair.Volume.H24
		if pair.Liquidity.USD > bestLiq {
			best = pair
			bestLiq = pair.Liquidity.USD
		}
	}

	price, err := strconv.ParseFloat(best.PriceUSD, 64)
	if err != nil {
		return domain.PricePoint{}, fmt.Errorf("dexscreener: parse price %q: %w", best.PriceUSD, err)
	}

	return domain.PricePoint{
		PriceUSD:  price,
		Change24h: best.PriceChange.H24,
		Volume24h: totalVolume,
		Timestamp: time.Now().UTC(),
	}, nil
}

// Compile-time interface check.
var _ domain.PriceOracle = (*Client)(nil)
