package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcalloway/dexarb/internal/domain"
)

func TestRouteKeyDistinguishesDirection(t *testing.T) {
	forward := domain.Opportunity{
		AssetA:   weth,
		AssetB:   link,
		BuyPool:  domain.LiquidityPool{Venue: "alpha"},
		SellPool: domain.LiquidityPool{Venue: "beta"},
	}
	reversed := forward
	reversed.BuyPool, reversed.SellPool = forward.SellPool, forward.BuyPool

	assert.NotEqual(t, routeKey(forward), routeKey(reversed))
	assert.Equal(t, routeKey(forward), routeKey(forward))
}

func TestRouteDedupExpires(t *testing.T) {
	d := newRouteDedup(30 * time.Millisecond)

	assert.False(t, d.isDuplicate("route"))
	assert.True(t, d.isDuplicate("route"))

	time.Sleep(50 * time.Millisecond)
	assert.False(t, d.isDuplicate("route"))

	d.cleanup()
	assert.True(t, d.isDuplicate("route"))
}

func TestRunSuppressesRepeatedRoute(t *testing.T) {
	h := newHarness(t)

	opps := make(chan domain.Opportunity, 2)
	opps <- h.opportunity()
	opps <- h.opportunity()
	close(opps)

	require.NoError(t, h.orch.Run(context.Background(), opps))

	// The first pass executes both legs; the repeat within the dedup window
	// never reaches the venues again.
	assert.Len(t, h.buy.submitted, 1)
	assert.Len(t, h.sell.submitted, 1)
}
