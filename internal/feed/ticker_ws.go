// Package feed streams centralized-exchange ticker data over WebSocket and
// writes each observation into the price cache. The engine never trades on
// these prices; they anchor gas conversion and risk context when the HTTP
// oracle is slow or down.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"

	"github.com/jmcalloway/dexarb/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second
)

// TickerFeed subscribes to 24h ticker streams for the configured symbols and
// writes each update into the PriceCache keyed by the mapped asset address.
// It reconnects with exponential backoff on disconnect.
type TickerFeed struct {
	wsURL  string
	assets map[string]common.Address // stream symbol -> asset address
	cache  domain.PriceCache
	logger *slog.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// NewTickerFeed creates a feed. streams maps asset addresses (hex) to ticker
// stream symbols, e.g. "0xC02a..." -> "ethusdt", matching the oracle config.
func NewTickerFeed(wsURL string, streams map[string]string, cache domain.PriceCache, logger *slog.Logger) *TickerFeed {
	assets := make(map[string]common.Address, len(streams))
	for addr, symbol := range streams {
		assets[strings.ToLower(symbol)] = common.HexToAddress(addr)
	}
	return &TickerFeed{
		wsURL:  wsURL,
		assets: assets,
		cache:  cache,
		logger: logger.With(slog.String("component", "ticker_feed")),
		done:   make(chan struct{}),
	}
}

// Run connects, subscribes, and runs until the context is cancelled or Close
// is called. Each disconnect triggers a reconnect with growing delay.
func (f *TickerFeed) Run(ctx context.Context) error {
	if len(f.assets) == 0 {
		f.logger.Info("no ticker streams configured, feed idle")
		return nil
	}

	delay := reconnectDelay
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		default:
		}

		err := f.runConnection(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		select {
		case <-f.done:
			return nil
		default:
		}

		f.logger.Warn("ticker stream disconnected, reconnecting",
			slog.Duration("delay", delay),
			slog.Any("error", err),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

// Close stops the feed. Safe to call more than once.
func (f *TickerFeed) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}

// subscribeCommand is the stream control envelope.
type subscribeCommand struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

// tickerEvent is the 24h rolling ticker payload. Numeric fields arrive as
// strings.
type tickerEvent struct {
	Event      string `json:"e"`
	Symbol     string `json:"s"`
	LastPrice  string `json:"c"`
	ChangePct  string `json:"P"`
	BaseVolume string `json:"v"`
}

func (f *TickerFeed) runConnection(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		return fmt.Errorf("feed: connect %s: %w", f.wsURL, err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	params := make([]string, 0, len(f.assets))
	for symbol := range f.assets {
		params = append(params, symbol+"@ticker")
	}
	cmd := subscribeCommand{Method: "SUBSCRIBE", Params: params, ID: time.Now().Unix()}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(cmd); err != nil {
		return fmt.Errorf("feed: subscribe: %w", err)
	}
	f.logger.Info("ticker stream subscribed", slog.Int("streams", len(params)))

	// Ping loop keeps the read deadline satisfied; it exits with the
	// connection when readLoop returns and conn closes.
	pingDone := make(chan struct{})
	defer close(pingDone)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-pingDone:
				return
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	// Watch for cancellation so the blocking read unblocks promptly.
	go func() {
		select {
		case <-ctx.Done():
		case <-f.done:
		case <-pingDone:
			return
		}
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("feed: read: %w", err)
		}
		f.handleMessage(ctx, raw)
	}
}

// handleMessage decodes one frame and writes the observation to the cache.
// Non-ticker frames (subscribe acks) are ignored.
func (f *TickerFeed) handleMessage(ctx context.Context, raw []byte) {
	var evt tickerEvent
	if err := json.Unmarshal(raw, &evt); err != nil || evt.Event != "24hrTicker" {
		return
	}

	asset, ok := f.assets[strings.ToLower(evt.Symbol)]
	if !ok {
		return
	}

	price, err := strconv.ParseFloat(evt.LastPrice, 64)
	if err != nil {
		f.logger.Warn("malformed ticker price",
			slog.String("symbol", evt.Symbol),
			slog.String("price", evt.LastPrice),
		)
		return
	}
	change, _ := strconv.ParseFloat(evt.ChangePct, 64)
	volume, _ := strconv.ParseFloat(evt.BaseVolume, 64)

	point := domain.PricePoint{
		PriceUSD:  price,
		Change24h: change,
		Volume24h: volume,
		Timestamp: time.Now().UTC(),
	}
	if err := f.cache.SetPrice(ctx, asset, point); err != nil {
		f.logger.Warn("price cache write failed",
			slog.String("asset", asset.Hex()),
			slog.Any("error", err),
		)
	}
}
