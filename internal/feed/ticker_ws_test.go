package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcalloway/dexarb/internal/domain"
)

var weth = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")

type syncPriceCache struct {
	mu     sync.Mutex
	points map[common.Address]domain.PricePoint
	wrote  chan struct{}
}

func newSyncPriceCache() *syncPriceCache {
	return &syncPriceCache{
		points: map[common.Address]domain.PricePoint{},
		wrote:  make(chan struct{}, 16),
	}
}

func (c *syncPriceCache) SetPrice(_ context.Context, asset common.Address, point domain.PricePoint) error {
	c.mu.Lock()
	c.points[asset] = point
	c.mu.Unlock()
	c.wrote <- struct{}{}
	return nil
}

func (c *syncPriceCache) GetPrice(_ context.Context, asset common.Address) (domain.PricePoint, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	point, ok := c.points[asset]
	if !ok {
		return domain.PricePoint{}, domain.ErrNotFound
	}
	return point, nil
}

// tickerServer upgrades one connection, records the subscribe command, and
// pushes the given frames.
func tickerServer(t *testing.T, frames []string, subscribed chan<- subscribeCommand) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var cmd subscribeCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			return
		}
		subscribed <- cmd

		for _, frame := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
				return
			}
		}
		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestTickerFeedWritesCache(t *testing.T) {
	frames := []string{
		`{"result": null, "id": 1}`,
		`{"e": "24hrTicker", "s": "ETHUSDT", "c": "2501.25", "P": "-1.20", "v": "350000"}`,
	}
	subscribed := make(chan subscribeCommand, 1)
	srv := tickerServer(t, frames, subscribed)

	cache := newSyncPriceCache()
	feed := NewTickerFeed(wsURL(srv), map[string]string{weth.Hex(): "ethusdt"}, cache, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- feed.Run(ctx) }()

	select {
	case cmd := <-subscribed:
		assert.Equal(t, "SUBSCRIBE", cmd.Method)
		assert.Equal(t, []string{"ethusdt@ticker"}, cmd.Params)
	case <-time.After(5 * time.Second):
		t.Fatal("no subscribe command received")
	}

	select {
	case <-cache.wrote:
	case <-time.After(5 * time.Second):
		t.Fatal("no cache write observed")
	}

	point, err := cache.GetPrice(context.Background(), weth)
	require.NoError(t, err)
	assert.Equal(t, 2501.25, point.PriceUSD)
	assert.Equal(t, -1.2, point.Change24h)
	assert.Equal(t, 350000.0, point.Volume24h)

	feed.Close()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("feed did not stop after Close")
	}
}

func TestTickerFeedIgnoresUnknownSymbols(t *testing.T) {
	frames := []string{
		`{"e": "24hrTicker", "s": "BTCUSDT", "c": "60000", "P": "0.5", "v": "100"}`,
		`{"e": "24hrTicker", "s": "ETHUSDT", "c": "2500", "P": "0.1", "v": "200"}`,
	}
	subscribed := make(chan subscribeCommand, 1)
	srv := tickerServer(t, frames, subscribed)

	cache := newSyncPriceCache()
	feed := NewTickerFeed(wsURL(srv), map[string]string{weth.Hex(): "ethusdt"}, cache, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go feed.Run(ctx)
	defer feed.Close()

	select {
	case <-cache.wrote:
	case <-time.After(5 * time.Second):
		t.Fatal("no cache write observed")
	}

	cache.mu.Lock()
	defer cache.mu.Unlock()
	require.Len(t, cache.points, 1)
	assert.Equal(t, 2500.0, cache.points[weth].PriceUSD)
}

func TestTickerFeedNoStreamsExitsCleanly(t *testing.T) {
	cache := newSyncPriceCache()
	feed := NewTickerFeed("ws://unused", nil, cache, slog.Default())

	err := feed.Run(context.Background())
	assert.NoError(t, err)
}

func TestHandleMessageMalformedPrice(t *testing.T) {
	cache := newSyncPriceCache()
	feed := NewTickerFeed("ws://unused", map[string]string{weth.Hex(): "ethusdt"}, cache, slog.Default())

	raw, _ := json.Marshal(tickerEvent{Event: "24hrTicker", Symbol: "ETHUSDT", LastPrice: "bogus"})
	feed.handleMessage(context.Background(), raw)

	assert.Empty(t, cache.points)
}
