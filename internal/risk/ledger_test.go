package risk

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

func TestLedgerCountsAndPairsStartEnd(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	l := NewLedger(func() time.Time { return now })

	l.RecordTradeStart(big.NewInt(1_000))
	l.RecordTradeStart(big.NewInt(2_000))

	stats := l.Stats()
	assert.Equal(t, 2, stats.DailyTrades)
	assert.Equal(t, int64(3_000), stats.DailyVolume.Int64())
	assert.Equal(t, 2, stats.ActiveTrades)
	assert.Equal(t, now, stats.LastTradeAt)

	l.RecordTradeEnd()
	l.RecordTradeEnd()
	stats = l.Stats()
	assert.Equal(t, 0, stats.ActiveTrades)
	assert.Equal(t, 2, stats.DailyTrades, "ending a trade must not touch daily counters")
}

func TestLedgerActiveNeverNegative(t *testing.T) {
	l := NewLedger(nil)
	l.RecordTradeEnd()
	l.RecordTradeEnd()
	assert.Equal(t, 0, l.Stats().ActiveTrades)
}

func TestLedgerDailyResetOncePerUTCDay(t *testing.T) {
	now := time.Date(2026, 3, 10, 23, 50, 0, 0, time.UTC)
	l := NewLedger(func() time.Time { return now })

	l.RecordTradeStart(big.NewInt(500))
	l.RecordTradeEnd()
	assert.Equal(t, 1, l.Stats().DailyTrades)

	// Crossing midnight UTC resets trades and volume but not the active
	// counter or the last-trade timestamp.
	now = now.Add(20 * time.Minute)
	stats := l.Stats()
	assert.Equal(t, 0, stats.DailyTrades)
	assert.Equal(t, int64(0), stats.DailyVolume.Int64())
	assert.False(t, stats.LastTradeAt.IsZero())
	assert.Equal(t, time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC), stats.Day)

	// Repeated reads within the same day do not reset again.
	l.RecordTradeStart(big.NewInt(100))
	l.RecordTradeEnd()
	now = now.Add(time.Hour)
	assert.Equal(t, 1, l.Stats().DailyTrades)
}

func TestLedgerBlacklists(t *testing.T) {
	l := NewLedger(nil)
	addr := common.HexToAddress("0x000000000000000000000000000000000000dEaD")

	l.BlacklistAsset(addr, "rug")
	assert.True(t, l.IsAssetBlacklisted(addr))
	assert.Len(t, l.BlacklistedAssets(), 1)
	assert.True(t, l.UnblacklistAsset(addr))
	assert.False(t, l.UnblacklistAsset(addr), "second removal reports not listed")
	assert.False(t, l.IsAssetBlacklisted(addr))

	l.BlacklistVenue("SushiSwap", "incident")
	assert.True(t, l.IsVenueBlacklisted("sushiswap"), "venue names compare case-insensitively")
	assert.True(t, l.UnblacklistVenue("SUSHISWAP"))
	assert.False(t, l.IsVenueBlacklisted("sushiswap"))
}
