package domain

import (
	"fmt"
	"math/big"
	"time"
)

// BpsDenominator is the basis-point scale used for all percentage math.
const BpsDenominator = 10_000

// TradeLeg is one swap in an opportunity's fixed leg sequence. Legs are
// ordered: leg i's output asset equals leg i+1's input asset, and the final
// leg's output asset equals the first leg's input asset.
type TradeLeg struct {
	Venue        string
	AssetIn      Asset
	AssetOut     Asset
	AmountIn     *big.Int
	MinAmountOut *big.Int
	Pool         LiquidityPool
}

// Prediction is the confidence oracle's annotation for an opportunity.
// All three values are in [0,1].
type Prediction struct {
	Confidence           float64
	RiskScore            float64
	ExecutionProbability float64
}

// Opportunity is a detected round trip across two venues. The leg sequence
// and direction are immutable once built; only the execution orchestrator may
// produce a revalidated copy with refreshed amounts.
type Opportunity struct {
	ID          string
	AssetA      Asset // origin asset: first leg input, last leg output
	AssetB      Asset
	BuyPool     LiquidityPool
	SellPool    LiquidityPool
	ProbeAmount *big.Int
	// ProfitBps is the round-trip profit in basis points of ProbeAmount.
	ProfitBps    int64
	ProfitAmount *big.Int
	Legs         []TradeLeg
	GasEstimate  uint64
	// Confidence is the scanner's local heuristic in [0,1], distinct from the
	// oracle annotation attached later.
	Confidence float64
	DetectedAt time.Time
	Prediction *Prediction
}

// Age returns how long ago the opportunity was detected.
func (o Opportunity) Age(now time.Time) time.Duration {
	return now.Sub(o.DetectedAt)
}

// SameVenue reports whether both legs execute on the same venue.
func (o Opportunity) SameVenue() bool {
	return len(o.Legs) >= 2 && o.Legs[0].Venue == o.Legs[len(o.Legs)-1].Venue
}

// Validate checks the structural invariants: at least two legs, amounts
// present, legs chained input-to-output, and the round trip returning to the
// origin asset. Profit cannot be computed without these.
func (o Opportunity) Validate() error {
	if len(o.Legs) < 2 {
		return fmt.Errorf("opportunity %s: %d legs, need at least 2", o.ID, len(o.Legs))
	}
	if o.ProbeAmount == nil || o.ProbeAmount.Sign() <= 0 {
		return fmt.Errorf("opportunity %s: probe amount must be positive", o.ID)
	}
	for i, leg := range o.Legs {
		if leg.AmountIn == nil || leg.AmountIn.Sign() <= 0 {
			return fmt.Errorf("opportunity %s: leg %d amount must be positive", o.ID, i)
		}
		if leg.MinAmountOut == nil || leg.MinAmountOut.Sign() < 0 {
			return fmt.Errorf("opportunity %s: leg %d min output missing", o.ID, i)
		}
		if i > 0 && !o.Legs[i-1].AssetOut.Equal(leg.AssetIn) {
			return fmt.Errorf("opportunity %s: leg %d input %s does not chain from leg %d output %s",
				o.ID, i, leg.AssetIn.Symbol, i-1, o.Legs[i-1].AssetOut.Symbol)
		}
	}
	first, last := o.Legs[0], o.Legs[len(o.Legs)-1]
	if !last.AssetOut.Equal(first.AssetIn) {
		return fmt.Errorf("opportunity %s: round trip ends in %s, started in %s",
			o.ID, last.AssetOut.Symbol, first.AssetIn.Symbol)
	}
	if !first.AssetIn.Equal(o.AssetA) {
		return fmt.Errorf("opportunity %s: first leg input %s is not the origin asset %s",
			o.ID, first.AssetIn.Symbol, o.AssetA.Symbol)
	}
	return nil
}

// ProfitBpsOf computes round-trip profit in basis points using integer math:
// (out - in) * 10000 / in, truncated toward zero.
func ProfitBpsOf(amountIn, amountOut *big.Int) int64 {
	if amountIn == nil || amountIn.Sign() <= 0 || amountOut == nil {
		return 0
	}
	net := new(big.Int).Sub(amountOut, amountIn)
	net.Mul(net, big.NewInt(BpsDenominator))
	net.Quo(net, amountIn)
	return net.Int64()
}

// ApplySlippageBps returns amount reduced by the given basis-point tolerance:
// amount * (10000 - bps) / 10000.
func ApplySlippageBps(amount *big.Int, bps int64) *big.Int {
	if amount == nil {
		return nil
	}
	if bps < 0 {
		bps = 0
	}
	if bps > BpsDenominator {
		bps = BpsDenominator
	}
	out := new(big.Int).Mul(amount, big.NewInt(BpsDenominator-bps))
	return out.Quo(out, big.NewInt(BpsDenominator))
}
