package risk

import (
	"context"
	"log/slog"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcalloway/dexarb/internal/config"
	"github.com/jmcalloway/dexarb/internal/domain"
)

var (
	usdc = domain.Asset{
		Address: common.HexToAddress("0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"),
		Symbol:  "USDC", Decimals: 6, ChainID: 137,
	}
	dai = domain.Asset{
		Address: common.HexToAddress("0x8f3Cf7ad23Cd3CaDbD9735AFf958023239c6A063"),
		Symbol:  "DAI", Decimals: 18, ChainID: 137,
	}
	obscure = domain.Asset{
		Address: common.HexToAddress("0x000000000000000000000000000000000000dEaD"),
		Symbol:  "OBSCURE", Decimals: 18, ChainID: 137,
	}
)

func testAssets() []config.AssetConfig {
	return []config.AssetConfig{
		{Address: usdc.Address.Hex(), Symbol: "USDC", Decimals: 6, Stablecoin: true},
		{Address: dai.Address.Hex(), Symbol: "DAI", Decimals: 18, Stablecoin: true},
	}
}

func testVenues() []config.VenueConfig {
	return []config.VenueConfig{
		{Name: "quickswap", Established: true},
		{Name: "sushiswap", Established: true},
		{Name: "newdex", Established: false},
	}
}

// tokens converts whole tokens to smallest units for the given decimals.
func tokens(n int64, decimals uint8) *big.Int {
	exp := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	return exp.Mul(exp, big.NewInt(n))
}

type oppOpts struct {
	profitBps int64
	inTokens  int64
	poolDepth int64 // origin-asset tokens per pool
	buyVenue  string
	sellVenue string
	age       time.Duration
	assetB    domain.Asset
	pred      *domain.Prediction
}

func makeOpp(now time.Time, o oppOpts) domain.Opportunity {
	if o.buyVenue == "" {
		o.buyVenue = "quickswap"
	}
	if o.sellVenue == "" {
		o.sellVenue = "sushiswap"
	}
	if o.inTokens == 0 {
		o.inTokens = 100
	}
	if o.poolDepth == 0 {
		o.poolDepth = 100_000
	}
	if o.assetB.Symbol == "" {
		o.assetB = dai
	}

	in := tokens(o.inTokens, usdc.Decimals)
	mid := tokens(o.inTokens, o.assetB.Decimals)
	out := new(big.Int).Mul(in, big.NewInt(domain.BpsDenominator+o.profitBps))
	out.Quo(out, big.NewInt(domain.BpsDenominator))

	buyPool := domain.LiquidityPool{
		Venue: o.buyVenue, ChainID: 137, Model: domain.QuoteModelConstantProduct,
		Token0: usdc, Token1: o.assetB,
		Reserve0: tokens(o.poolDepth, usdc.Decimals),
		Reserve1: tokens(o.poolDepth, o.assetB.Decimals),
		FeeBps:   30, FetchedAt: now,
	}
	sellPool := buyPool
	sellPool.Venue = o.sellVenue

	return domain.Opportunity{
		ID:           "test-opp",
		AssetA:       usdc,
		AssetB:       o.assetB,
		BuyPool:      buyPool,
		SellPool:     sellPool,
		ProbeAmount:  in,
		ProfitBps:    o.profitBps,
		ProfitAmount: new(big.Int).Sub(out, in),
		Legs: []domain.TradeLeg{
			{Venue: o.buyVenue, AssetIn: usdc, AssetOut: o.assetB, AmountIn: in, MinAmountOut: mid, Pool: buyPool},
			{Venue: o.sellVenue, AssetIn: o.assetB, AssetOut: usdc, AmountIn: mid, MinAmountOut: out, Pool: sellPool},
		},
		GasEstimate: 300_000,
		Confidence:  0.8,
		DetectedAt:  now.Add(-o.age),
		Prediction:  o.pred,
	}
}

func newTestGate(now time.Time) (*Gate, *Ledger, *config.Runtime) {
	ledger := NewLedger(func() time.Time { return now })
	runtime := config.NewRuntime(config.Defaults().Risk, config.ExecutorConfig{})
	gate := NewGate(ledger, runtime, testAssets(), testVenues(), nil,
		func() time.Time { return now }, slog.Default())
	return gate, ledger, runtime
}

func TestAssessApprovesCleanStablePair(t *testing.T) {
	now := time.Now()
	gate, _, _ := newTestGate(now)

	a := gate.Assess(makeOpp(now, oppOpts{profitBps: 80}))

	assert.True(t, a.ShouldExecute, "reasons: %v", a.Reasons)
	assert.Equal(t, domain.RiskLevelLow, a.Level)
	assert.LessOrEqual(t, a.Score, 20)
}

func TestAssessRejectsBelowProfitThreshold(t *testing.T) {
	// 5 bps of profit against a 50 bps floor.
	now := time.Now()
	gate, _, _ := newTestGate(now)

	a := gate.Assess(makeOpp(now, oppOpts{profitBps: 5}))

	assert.False(t, a.ShouldExecute)
	found := false
	for _, r := range a.Reasons {
		if strings.Contains(r, "profit threshold") {
			found = true
		}
	}
	assert.True(t, found, "expected a profit threshold reason, got %v", a.Reasons)
}

func TestAssessBlacklistedAssetIsCritical(t *testing.T) {
	now := time.Now()
	gate, _, _ := newTestGate(now)
	gate.AddAssetToBlacklist(context.Background(), usdc.Address, "exploit reported")

	a := gate.Assess(makeOpp(now, oppOpts{profitBps: 120}))

	assert.GreaterOrEqual(t, a.Score, 90)
	assert.False(t, a.ShouldExecute)
	assert.Equal(t, domain.RiskLevelCritical, a.Level)
}

func TestAssessBlacklistedVenue(t *testing.T) {
	now := time.Now()
	gate, _, _ := newTestGate(now)
	gate.AddVenueToBlacklist(context.Background(), "sushiswap", "router drained")

	a := gate.Assess(makeOpp(now, oppOpts{profitBps: 120}))
	assert.GreaterOrEqual(t, a.Score, penaltyBlacklistedVenue)

	gate.RemoveVenueFromBlacklist(context.Background(), "sushiswap", "resolved")
	b := gate.Assess(makeOpp(now, oppOpts{profitBps: 120}))
	assert.Less(t, b.Score, a.Score)
}

func TestAssessScoreCeilingBlocksExecution(t *testing.T) {
	now := time.Now()
	gate, _, _ := newTestGate(now)

	// Stack penalties well past the ceiling: unknown asset, unestablished
	// venues, thin pool, suspicious profit, stale detection.
	opp := makeOpp(now, oppOpts{
		profitBps: 900,
		inTokens:  1_000,
		poolDepth: 2_000,
		buyVenue:  "newdex",
		sellVenue: "newdex2",
		age:       5 * time.Minute,
		assetB:    obscure,
	})
	a := gate.Assess(opp)

	assert.Greater(t, a.Score, executionScoreCeiling)
	assert.False(t, a.ShouldExecute)
}

func TestAssessScoreMonotonicity(t *testing.T) {
	now := time.Now()
	gate, ledger, _ := newTestGate(now)

	base := gate.Assess(makeOpp(now, oppOpts{profitBps: 80})).Score

	t.Run("shallower liquidity", func(t *testing.T) {
		s := gate.Assess(makeOpp(now, oppOpts{profitBps: 80, poolDepth: 500})).Score
		assert.GreaterOrEqual(t, s, base)
	})
	t.Run("profit below safety floor", func(t *testing.T) {
		s := gate.Assess(makeOpp(now, oppOpts{profitBps: 10})).Score
		assert.GreaterOrEqual(t, s, base)
	})
	t.Run("older opportunity", func(t *testing.T) {
		fresh := gate.Assess(makeOpp(now, oppOpts{profitBps: 80, age: time.Second})).Score
		aged := gate.Assess(makeOpp(now, oppOpts{profitBps: 80, age: time.Minute})).Score
		stale := gate.Assess(makeOpp(now, oppOpts{profitBps: 80, age: 10 * time.Minute})).Score
		assert.GreaterOrEqual(t, aged, fresh)
		assert.GreaterOrEqual(t, stale, aged)
	})
	t.Run("active trades", func(t *testing.T) {
		ledger.RecordTradeStart(tokens(10, 18))
		ledger.RecordTradeStart(tokens(10, 18))
		s := gate.Assess(makeOpp(now, oppOpts{profitBps: 80})).Score
		assert.GreaterOrEqual(t, s, base)
		ledger.RecordTradeEnd()
		ledger.RecordTradeEnd()
	})
}

func TestAssessAdjustedSizeNeverExceedsInput(t *testing.T) {
	now := time.Now()
	gate, _, _ := newTestGate(now)

	for _, opts := range []oppOpts{
		{profitBps: 80},
		{profitBps: 10, poolDepth: 1_000},
		{profitBps: 900, inTokens: 5_000, poolDepth: 2_000, assetB: obscure, age: 5 * time.Minute},
	} {
		opp := makeOpp(now, opts)
		a := gate.Assess(opp)
		require.NotNil(t, a.AdjustedSize)
		assert.LessOrEqual(t, a.AdjustedSize.Cmp(opp.Legs[0].AmountIn), 0,
			"adjusted size must never exceed the original input")
	}
}

func TestAssessAdjustedSlippageFloored(t *testing.T) {
	now := time.Now()
	gate, _, runtime := newTestGate(now)
	limits := runtime.Risk()

	a := gate.Assess(makeOpp(now, oppOpts{
		profitBps: 900, inTokens: 5_000, poolDepth: 2_000, assetB: obscure, age: 5 * time.Minute,
	}))
	assert.GreaterOrEqual(t, a.AdjustedSlippageBps, limits.MinSlippageBps)
	assert.LessOrEqual(t, a.AdjustedSlippageBps, limits.MaxSlippageBps)
}

func TestAssessConcurrentCapBlocks(t *testing.T) {
	now := time.Now()
	gate, ledger, runtime := newTestGate(now)

	limits := runtime.Risk()
	limits.ConcurrentTradeCap = 1
	limits.Cooldown.Duration = 0
	runtime.UpdateRisk(limits)

	ledger.RecordTradeStart(tokens(10, 18))
	a := gate.Assess(makeOpp(now, oppOpts{profitBps: 120}))
	assert.False(t, a.ShouldExecute)
	ledger.RecordTradeEnd()
}

func TestAssessDailyCapBlocks(t *testing.T) {
	now := time.Now()
	gate, ledger, runtime := newTestGate(now)

	limits := runtime.Risk()
	limits.DailyTradeCap = 2
	limits.Cooldown.Duration = 0
	runtime.UpdateRisk(limits)

	for i := 0; i < 2; i++ {
		ledger.RecordTradeStart(tokens(10, 18))
		ledger.RecordTradeEnd()
	}
	a := gate.Assess(makeOpp(now, oppOpts{profitBps: 120}))
	assert.False(t, a.ShouldExecute)
}

func TestAssessHighConfidencePredictionLowersScore(t *testing.T) {
	now := time.Now()
	gate, _, _ := newTestGate(now)

	// Unclassified counterasset keeps the baseline above zero so the bonus
	// is visible after clamping.
	without := gate.Assess(makeOpp(now, oppOpts{profitBps: 80, assetB: obscure})).Score
	with := gate.Assess(makeOpp(now, oppOpts{
		profitBps: 80, assetB: obscure,
		pred: &domain.Prediction{Confidence: 0.95, RiskScore: 0.1, ExecutionProbability: 0.9},
	})).Score
	assert.Less(t, with, without)

	bad := gate.Assess(makeOpp(now, oppOpts{
		profitBps: 80, assetB: obscure,
		pred: &domain.Prediction{Confidence: 0.2, RiskScore: 0.9, ExecutionProbability: 0.1},
	})).Score
	assert.Greater(t, bad, without)
}
