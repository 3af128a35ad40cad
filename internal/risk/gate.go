// Package risk implements the admission controller that stands between the
// scanner and the executor. The gate scores an opportunity across independent
// dimensions, applies the blacklists and position limits held by the ledger,
// and either rejects it or approves it with a shrunk size and tightened
// slippage.
package risk

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/jmcalloway/dexarb/internal/config"
	"github.com/jmcalloway/dexarb/internal/domain"
)

// Scoring deltas. The level boundaries in domain.RiskLevelFor are fixed, so
// these stay constants rather than per-instance tunables; moving one changes
// admission behaviour for every deployment at once.
const (
	penaltyBlacklistedAsset = 90
	bonusBothStablecoins    = -5
	bonusBothKnown          = -3
	penaltyUnknownAsset     = 10

	penaltyBlacklistedVenue = 40
	penaltyUnestablished    = 15
	penaltyCrossVenue       = 5

	penaltyLiquiditySevere   = 25 // input >= 10% of the shallower pool
	penaltyLiquidityModerate = 15 // input >= 5%
	penaltyLiquidityMild     = 5  // input >= 1%
	penaltyLowLiquidityFloor = 15

	penaltyThinProfit       = 15
	penaltySuspiciousProfit = 20

	penaltyLowConfidence = 15
	penaltyHighPredRisk  = 15
	penaltyLowExecProb   = 10
	bonusHighConfidence  = -10
	highConfidenceFloor  = 0.85
	highPredRiskCeiling  = 0.7
	lowExecProbFloor     = 0.5

	penaltyLargePosition  = 10 // input > 50% of max position
	penaltyOversizedShare = 15 // input > 80%
	penaltyVolumeCeiling  = 25

	penaltyConcurrentTrades = 15
	penaltyCooldown         = 10
	penaltyAgeModerate      = 10
	penaltyAgeSevere        = 25

	// executionScoreCeiling is the hard admission bound: shouldExecute is
	// false above it no matter what else the assessment says.
	executionScoreCeiling = 70
)

// AssetClass carries the trust classification for one monitored asset.
type AssetClass struct {
	Stablecoin bool
	Major      bool
}

// Gate assesses opportunities against the ledger's live counters. Assess
// never mutates the ledger; bookkeeping goes through the ledger's explicit
// start/end calls and the gate's blacklist mutators.
type Gate struct {
	ledger      *Ledger
	runtime     *config.Runtime
	classes     map[common.Address]AssetClass
	established map[string]bool
	audit       domain.BlacklistAuditStore
	clock       func() time.Time
	logger      *slog.Logger
}

// NewGate builds a Gate from the configured asset and venue rosters. audit
// may be nil when blacklist auditing is not wired.
func NewGate(
	ledger *Ledger,
	runtime *config.Runtime,
	assets []config.AssetConfig,
	venues []config.VenueConfig,
	audit domain.BlacklistAuditStore,
	clock func() time.Time,
	logger *slog.Logger,
) *Gate {
	if clock == nil {
		clock = time.Now
	}
	classes := make(map[common.Address]AssetClass, len(assets))
	for _, a := range assets {
		classes[common.HexToAddress(a.Address)] = AssetClass{Stablecoin: a.Stablecoin, Major: a.Major}
	}
	established := make(map[string]bool, len(venues))
	for _, v := range venues {
		established[strings.ToLower(v.Name)] = v.Established
	}
	return &Gate{
		ledger:      ledger,
		runtime:     runtime,
		classes:     classes,
		established: established,
		audit:       audit,
		clock:       clock,
		logger:      logger.With(slog.String("component", "risk")),
	}
}

// Ledger exposes the gate's ledger for the orchestrator's bookkeeping.
func (g *Gate) Ledger() *Ledger {
	return g.ledger
}

// Assess scores the opportunity and produces the admission verdict. Limits
// are read from the runtime view on every call, so operational tuning takes
// effect on the next assessment.
func (g *Gate) Assess(opp domain.Opportunity) domain.RiskAssessment {
	limits := g.runtime.Risk()
	stats := g.ledger.Stats()
	now := g.clock()

	score := 0
	var reasons []string
	add := func(delta int, format string, args ...any) {
		score += delta
		reasons = append(reasons, fmt.Sprintf(format, args...))
	}

	normIn := domain.NormalizeTo18(opp.Legs[0].AmountIn, opp.AssetA.Decimals)

	// Asset trust.
	switch {
	case g.ledger.IsAssetBlacklisted(opp.AssetA.Address):
		add(penaltyBlacklistedAsset, "asset %s is blacklisted", opp.AssetA.Symbol)
	case g.ledger.IsAssetBlacklisted(opp.AssetB.Address):
		add(penaltyBlacklistedAsset, "asset %s is blacklisted", opp.AssetB.Symbol)
	default:
		ca, cb := g.classes[opp.AssetA.Address], g.classes[opp.AssetB.Address]
		switch {
		case ca.Stablecoin && cb.Stablecoin:
			add(bonusBothStablecoins, "both assets are stablecoins")
		case (ca.Stablecoin || ca.Major) && (cb.Stablecoin || cb.Major):
			add(bonusBothKnown, "both assets are majors")
		default:
			add(penaltyUnknownAsset, "pair includes an unclassified asset")
		}
	}

	// Venue trust.
	for _, name := range distinctVenues(opp) {
		if g.ledger.IsVenueBlacklisted(name) {
			add(penaltyBlacklistedVenue, "venue %s is blacklisted", name)
		} else if !g.established[strings.ToLower(name)] {
			add(penaltyUnestablished, "venue %s is not established", name)
		}
	}
	if !opp.SameVenue() {
		add(penaltyCrossVenue, "legs execute on different venues")
	}

	// Liquidity relative to the shallower pool.
	shallow := shallowestOriginReserve(opp)
	if shallow != nil && shallow.Sign() > 0 && normIn != nil && normIn.Sign() > 0 {
		ratioBps := bpsRatio(normIn, shallow)
		switch {
		case ratioBps >= 1000:
			add(penaltyLiquiditySevere, "input is %d bps of the shallower pool", ratioBps)
		case ratioBps >= 500:
			add(penaltyLiquidityModerate, "input is %d bps of the shallower pool", ratioBps)
		case ratioBps >= 100:
			add(penaltyLiquidityMild, "input is %d bps of the shallower pool", ratioBps)
		}
		if floor := tokensTo18(limits.LowLiquidityTokens); floor.Sign() > 0 && shallow.Cmp(floor) < 0 {
			add(penaltyLowLiquidityFloor, "pool liquidity below the low-liquidity floor")
		}
	}

	// Profit sanity.
	if opp.ProfitBps < limits.ProfitSafetyFloorBps {
		add(penaltyThinProfit, "profit %d bps is below the safety floor", opp.ProfitBps)
	}
	if opp.ProfitBps > limits.ProfitSuspicionBps {
		add(penaltySuspiciousProfit, "profit %d bps exceeds the suspicion ceiling", opp.ProfitBps)
	}

	// Confidence oracle annotation, when attached.
	if p := opp.Prediction; p != nil {
		if p.Confidence < limits.AIConfidenceThreshold {
			add(penaltyLowConfidence, "oracle confidence %.2f below threshold", p.Confidence)
		}
		if p.RiskScore > highPredRiskCeiling {
			add(penaltyHighPredRisk, "oracle risk score %.2f is high", p.RiskScore)
		}
		if p.ExecutionProbability < lowExecProbFloor {
			add(penaltyLowExecProb, "oracle execution probability %.2f is low", p.ExecutionProbability)
		}
		if p.Confidence >= highConfidenceFloor {
			add(bonusHighConfidence, "oracle confidence %.2f is high", p.Confidence)
		}
	}

	// Position sizing against the max position and the daily volume ceiling.
	if maxPos := tokensTo18(limits.MaxPositionTokens); maxPos.Sign() > 0 && normIn != nil {
		shareBps := bpsRatio(normIn, maxPos)
		switch {
		case shareBps > 8000:
			add(penaltyOversizedShare, "input is %d bps of the max position", shareBps)
		case shareBps > 5000:
			add(penaltyLargePosition, "input is %d bps of the max position", shareBps)
		}
	}
	if ceil := tokensTo18(limits.DailyVolumeTokens); ceil.Sign() > 0 && normIn != nil {
		projected := new(big.Int).Add(stats.DailyVolume, normIn)
		if projected.Cmp(ceil) > 0 {
			add(penaltyVolumeCeiling, "trade would exceed the daily volume ceiling")
		}
	}

	// Market and cooldown conditions.
	if stats.ActiveTrades >= 2 {
		add(penaltyConcurrentTrades, "%d trades already active", stats.ActiveTrades)
	}
	if !stats.LastTradeAt.IsZero() && now.Sub(stats.LastTradeAt) < limits.Cooldown.Duration {
		add(penaltyCooldown, "inside the post-trade cooldown window")
	}
	age := opp.Age(now)
	switch {
	case age > limits.StaleAfter.Duration:
		add(penaltyAgeSevere, "opportunity is %s old", age.Round(time.Second))
	case age > limits.FreshFor.Duration:
		add(penaltyAgeModerate, "opportunity is %s old", age.Round(time.Second))
	}

	if score < 0 {
		score = 0
	}

	assessment := domain.RiskAssessment{
		Score:   score,
		Level:   domain.RiskLevelFor(score),
		Reasons: reasons,
	}

	// Admission decision: the effective profit bar rises with measured risk.
	requiredBps := limits.MinProfitBps * (100 + int64(score)) / 100
	switch {
	case score > executionScoreCeiling:
		assessment.Reasons = append(assessment.Reasons,
			fmt.Sprintf("score %d exceeds the execution ceiling %d", score, executionScoreCeiling))
	case limits.DailyTradeCap > 0 && stats.DailyTrades >= limits.DailyTradeCap:
		assessment.Reasons = append(assessment.Reasons,
			fmt.Sprintf("daily trade cap %d reached", limits.DailyTradeCap))
	case limits.ConcurrentTradeCap > 0 && stats.ActiveTrades >= limits.ConcurrentTradeCap:
		assessment.Reasons = append(assessment.Reasons,
			fmt.Sprintf("concurrent trade cap %d reached", limits.ConcurrentTradeCap))
	case opp.ProfitBps < requiredBps:
		assessment.Reasons = append(assessment.Reasons,
			fmt.Sprintf("profit %d bps is below the risk-adjusted profit threshold %d bps", opp.ProfitBps, requiredBps))
	default:
		assessment.ShouldExecute = true
	}

	assessment.AdjustedSize = adjustedSize(opp, score, limits)
	assessment.AdjustedSlippageBps = adjustedSlippage(score, limits)

	g.logger.Debug("opportunity assessed",
		slog.String("opp_id", opp.ID),
		slog.Int("score", score),
		slog.String("level", string(assessment.Level)),
		slog.Bool("execute", assessment.ShouldExecute),
		slog.Int("reasons", len(reasons)),
	)
	return assessment
}

// AddAssetToBlacklist excludes an asset and records the action in the audit
// trail. Takes effect for the next assessment.
func (g *Gate) AddAssetToBlacklist(ctx context.Context, addr common.Address, reason string) {
	g.ledger.BlacklistAsset(addr, reason)
	g.recordAudit(ctx, "asset", addr.Hex(), true, reason)
	g.logger.Warn("asset blacklisted", slog.String("asset", addr.Hex()), slog.String("reason", reason))
}

// RemoveAssetFromBlacklist re-admits an asset.
func (g *Gate) RemoveAssetFromBlacklist(ctx context.Context, addr common.Address, reason string) {
	if g.ledger.UnblacklistAsset(addr) {
		g.recordAudit(ctx, "asset", addr.Hex(), false, reason)
		g.logger.Info("asset unblacklisted", slog.String("asset", addr.Hex()))
	}
}

// AddVenueToBlacklist excludes a venue and records the action.
func (g *Gate) AddVenueToBlacklist(ctx context.Context, name, reason string) {
	g.ledger.BlacklistVenue(name, reason)
	g.recordAudit(ctx, "venue", name, true, reason)
	g.logger.Warn("venue blacklisted", slog.String("venue", name), slog.String("reason", reason))
}

// RemoveVenueFromBlacklist re-admits a venue.
func (g *Gate) RemoveVenueFromBlacklist(ctx context.Context, name, reason string) {
	if g.ledger.UnblacklistVenue(name) {
		g.recordAudit(ctx, "venue", name, false, reason)
		g.logger.Info("venue unblacklisted", slog.String("venue", name))
	}
}

func (g *Gate) recordAudit(ctx context.Context, kind, value string, added bool, reason string) {
	if g.audit == nil {
		return
	}
	err := g.audit.Record(ctx, domain.BlacklistAction{
		Kind:      kind,
		Value:     value,
		Added:     added,
		Reason:    reason,
		Timestamp: g.clock().UTC(),
	})
	if err != nil {
		g.logger.Warn("blacklist audit write failed",
			slog.String("kind", kind),
			slog.String("value", value),
			slog.String("error", err.Error()),
		)
	}
}

// adjustedSize shrinks the approved input monotonically with the score and
// never exceeds the original amount or the configured max position.
func adjustedSize(opp domain.Opportunity, score int, limits config.RiskConfig) *big.Int {
	size := new(big.Int).Set(opp.Legs[0].AmountIn)
	if maxPos := tokensToUnits(limits.MaxPositionTokens, opp.AssetA.Decimals); maxPos.Sign() > 0 && size.Cmp(maxPos) > 0 {
		size = maxPos
	}
	pct := sizeBandPct(score)
	size.Mul(size, big.NewInt(pct))
	return size.Quo(size, big.NewInt(100))
}

// adjustedSlippage tightens the tolerance with the score, floored at the
// configured minimum so approved trades always retain some protection margin.
func adjustedSlippage(score int, limits config.RiskConfig) int64 {
	bps := limits.MaxSlippageBps * sizeBandPct(score) / 100
	if bps < limits.MinSlippageBps {
		bps = limits.MinSlippageBps
	}
	if bps < 1 {
		bps = 1
	}
	return bps
}

// sizeBandPct maps a score to the approved fraction in percent.
func sizeBandPct(score int) int64 {
	switch {
	case score <= 15:
		return 100
	case score <= 30:
		return 85
	case score <= 50:
		return 70
	default:
		return 50
	}
}

func distinctVenues(opp domain.Opportunity) []string {
	seen := make(map[string]bool, len(opp.Legs))
	var out []string
	for _, leg := range opp.Legs {
		if !seen[leg.Venue] {
			seen[leg.Venue] = true
			out = append(out, leg.Venue)
		}
	}
	return out
}

// shallowestOriginReserve returns the smaller normalized origin-asset reserve
// across the two pools, or nil when neither pool carries a snapshot.
func shallowestOriginReserve(opp domain.Opportunity) *big.Int {
	var min *big.Int
	for _, pool := range []domain.LiquidityPool{opp.BuyPool, opp.SellPool} {
		r := pool.ReserveOf(opp.AssetA)
		if r == nil || r.Sign() <= 0 {
			continue
		}
		n := domain.NormalizeTo18(r, opp.AssetA.Decimals)
		if min == nil || n.Cmp(min) < 0 {
			min = n
		}
	}
	return min
}

// bpsRatio computes num/den in basis points with integer math, saturating at
// a value safely above every tier boundary.
func bpsRatio(num, den *big.Int) int64 {
	r := new(big.Int).Mul(num, big.NewInt(domain.BpsDenominator))
	r.Quo(r, den)
	if !r.IsInt64() {
		return 1 << 40
	}
	return r.Int64()
}

// tokensTo18 converts a whole-token config value to 18-decimal units.
func tokensTo18(tokens float64) *big.Int {
	return tokensToUnits(tokens, domain.NormalizedDecimals)
}

// tokensToUnits converts a whole-token config value to the asset's smallest
// units. decimal arithmetic is confined to this config boundary.
func tokensToUnits(tokens float64, decimals uint8) *big.Int {
	if tokens <= 0 {
		return new(big.Int)
	}
	return decimal.NewFromFloat(tokens).Shift(int32(decimals)).BigInt()
}
