package scanner

import (
	"math/big"

	"github.com/jmcalloway/dexarb/internal/domain"
)

// confidenceHeuristic scores an opportunity in [0,1] from cheap local
// signals. It is advisory only: the risk gate and the prediction oracle make
// the actual go/no-go call.
//
// Base 0.5, plus up to 0.2 for liquidity depth relative to the probe, up to
// 0.2 for profit magnitude, and 0.1 when both legs share a venue (no
// cross-venue settlement skew).
func confidenceHeuristic(opp domain.Opportunity) float64 {
	score := 0.5

	score += 0.2 * depthFactor(opp)

	// Profit factor saturates at 200 bps.
	bps := opp.ProfitBps
	if bps > 200 {
		bps = 200
	}
	if bps > 0 {
		score += 0.2 * float64(bps) / 200
	}

	if opp.SameVenue() {
		score += 0.1
	}

	if score > 1 {
		score = 1
	}
	return score
}

// depthFactor returns 1.0 when the probe is under 1% of the shallowest
// relevant reserve, scaling down to 0 as the probe approaches 10% of it.
// Pools without local reserve snapshots contribute a neutral 0.5.
func depthFactor(opp domain.Opportunity) float64 {
	shallowest := shallowestReserve(opp)
	if shallowest == nil || shallowest.Sign() <= 0 {
		return 0.5
	}
	if opp.ProbeAmount == nil || opp.ProbeAmount.Sign() <= 0 {
		return 0
	}

	// ratioBps = probe / reserve in basis points.
	ratioBps := new(big.Int).Mul(opp.ProbeAmount, big.NewInt(domain.BpsDenominator))
	ratioBps.Quo(ratioBps, shallowest)

	r := ratioBps.Int64()
	switch {
	case r <= 100: // under 1% of the pool
		return 1
	case r >= 1000: // 10% or more
		return 0
	default:
		return 1 - float64(r-100)/900
	}
}

// shallowestReserve finds the smallest origin-asset reserve across both
// pools, ignoring pools that carry no snapshot.
func shallowestReserve(opp domain.Opportunity) *big.Int {
	var min *big.Int
	for _, pool := range []domain.LiquidityPool{opp.BuyPool, opp.SellPool} {
		r := pool.ReserveOf(opp.AssetA)
		if r == nil || r.Sign() <= 0 {
			continue
		}
		if min == nil || r.Cmp(min) < 0 {
			min = r
		}
	}
	return min
}
