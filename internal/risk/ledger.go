package risk

import (
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// LedgerStats is a point-in-time copy of the ledger's counters.
type LedgerStats struct {
	Day          time.Time // UTC midnight of the counting day
	DailyTrades  int
	DailyVolume  *big.Int // 18-decimal normalized units
	ActiveTrades int
	LastTradeAt  time.Time
}

// Ledger tracks the position counters the risk gate scores against: daily
// trade count, daily volume, active trades, last trade time, and the asset
// and venue blacklists. Daily counters reset lazily, exactly once per UTC
// calendar day, on the first access after the boundary.
//
// All access goes through the mutex; the gate assesses and the orchestrator
// books start/end from different goroutines.
type Ledger struct {
	clock func() time.Time

	mu           sync.Mutex
	day          time.Time
	dailyTrades  int
	dailyVolume  *big.Int
	activeTrades int
	lastTradeAt  time.Time

	assetBlacklist map[common.Address]string // address -> reason
	venueBlacklist map[string]string         // lowercase name -> reason
}

// NewLedger creates a Ledger with an injected clock so tests can cross day
// boundaries deterministically.
func NewLedger(clock func() time.Time) *Ledger {
	if clock == nil {
		clock = time.Now
	}
	l := &Ledger{
		clock:          clock,
		dailyVolume:    new(big.Int),
		assetBlacklist: make(map[common.Address]string),
		venueBlacklist: make(map[string]string),
	}
	l.day = utcDay(clock())
	return l
}

func utcDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// rollover resets daily counters when the UTC day has changed. Caller holds mu.
func (l *Ledger) rollover() {
	today := utcDay(l.clock())
	if today.Equal(l.day) {
		return
	}
	l.day = today
	l.dailyTrades = 0
	l.dailyVolume = new(big.Int)
}

// Stats returns a copy of the current counters, applying any pending daily
// reset first.
func (l *Ledger) Stats() LedgerStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollover()
	return LedgerStats{
		Day:          l.day,
		DailyTrades:  l.dailyTrades,
		DailyVolume:  new(big.Int).Set(l.dailyVolume),
		ActiveTrades: l.activeTrades,
		LastTradeAt:  l.lastTradeAt,
	}
}

// RecordTradeStart books a trade entering execution. volume is the input
// amount in 18-decimal normalized units. Always paired with RecordTradeEnd.
func (l *Ledger) RecordTradeStart(volume *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollover()
	l.dailyTrades++
	if volume != nil && volume.Sign() > 0 {
		l.dailyVolume.Add(l.dailyVolume, volume)
	}
	l.activeTrades++
	l.lastTradeAt = l.clock()
}

// RecordTradeEnd books a trade leaving execution, successful or not. The
// active counter never goes negative even if calls are mispaired.
func (l *Ledger) RecordTradeEnd() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.activeTrades > 0 {
		l.activeTrades--
	}
}

// BlacklistAsset excludes an asset from execution immediately.
func (l *Ledger) BlacklistAsset(addr common.Address, reason string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.assetBlacklist[addr] = reason
}

// UnblacklistAsset re-admits an asset. Returns false if it was not listed.
func (l *Ledger) UnblacklistAsset(addr common.Address) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.assetBlacklist[addr]
	delete(l.assetBlacklist, addr)
	return ok
}

// IsAssetBlacklisted reports whether the asset is excluded.
func (l *Ledger) IsAssetBlacklisted(addr common.Address) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.assetBlacklist[addr]
	return ok
}

// BlacklistVenue excludes a venue from execution immediately. Names are
// case-insensitive.
func (l *Ledger) BlacklistVenue(name, reason string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.venueBlacklist[strings.ToLower(name)] = reason
}

// UnblacklistVenue re-admits a venue. Returns false if it was not listed.
func (l *Ledger) UnblacklistVenue(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := strings.ToLower(name)
	_, ok := l.venueBlacklist[k]
	delete(l.venueBlacklist, k)
	return ok
}

// IsVenueBlacklisted reports whether the venue is excluded.
func (l *Ledger) IsVenueBlacklisted(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.venueBlacklist[strings.ToLower(name)]
	return ok
}

// BlacklistedAssets returns the current asset blacklist as address -> reason.
func (l *Ledger) BlacklistedAssets() map[common.Address]string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[common.Address]string, len(l.assetBlacklist))
	for k, v := range l.assetBlacklist {
		out[k] = v
	}
	return out
}

// BlacklistedVenues returns the current venue blacklist as name -> reason.
func (l *Ledger) BlacklistedVenues() map[string]string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]string, len(l.venueBlacklist))
	for k, v := range l.venueBlacklist {
		out[k] = v
	}
	return out
}
