package executor

import (
	"strings"
	"sync"
	"time"

	"github.com/jmcalloway/dexarb/internal/domain"
)

// routeDedupTTL is how long a handled route stays suppressed. The scanner
// re-detects a persistent spread on every tick; without suppression each
// tick would produce another execution attempt or rejection record for the
// same route.
const routeDedupTTL = 30 * time.Second

// routeDedup suppresses repeat handling of the same arbitrage route within
// a TTL window. Safe for concurrent use.
type routeDedup struct {
	mu   sync.Mutex
	seen map[string]time.Time // route key -> last handled
	ttl  time.Duration
}

func newRouteDedup(ttl time.Duration) *routeDedup {
	return &routeDedup{
		seen: make(map[string]time.Time),
		ttl:  ttl,
	}
}

// routeKey identifies an opportunity by its pair and venue direction, so the
// same spread re-detected on a later tick maps to the same key while a
// reversed or re-routed spread does not.
func routeKey(opp domain.Opportunity) string {
	return strings.Join([]string{
		opp.AssetA.Key(),
		opp.AssetB.Key(),
		opp.BuyPool.Venue,
		opp.SellPool.Venue,
	}, "|")
}

// isDuplicate reports whether the key was handled within the TTL window. A
// miss records the key.
func (d *routeDedup) isDuplicate(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	if last, ok := d.seen[key]; ok && now.Sub(last) < d.ttl {
		return true
	}
	d.seen[key] = now
	return false
}

// cleanup drops expired entries so the map stays bounded across long runs.
func (d *routeDedup) cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	for key, ts := range d.seen {
		if now.Sub(ts) >= d.ttl {
			delete(d.seen, key)
		}
	}
}
