package executor

import (
	"context"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcalloway/dexarb/internal/config"
	"github.com/jmcalloway/dexarb/internal/domain"
	"github.com/jmcalloway/dexarb/internal/risk"
	"github.com/jmcalloway/dexarb/internal/venue"
)

var (
	weth = domain.Asset{
		Address: common.HexToAddress("0x7ceB23fD6bC0adD59E62ac25578270cFf1b9f619"),
		Symbol:  "WETH", Decimals: 18, ChainID: 137,
	}
	link = domain.Asset{
		Address: common.HexToAddress("0x53E0bca35eC356BD5ddDFebbD1Fc0fD03FaBad39"),
		Symbol:  "LINK", Decimals: 18, ChainID: 137,
	}

	oneEth = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
)

func eth(milli int64) *big.Int {
	out := new(big.Int).Mul(oneEth, big.NewInt(milli))
	return out.Quo(out, big.NewInt(1000))
}

// scriptedVenue quotes through per-direction numerator/denominator rates and
// returns pre-scripted transaction hashes.
type scriptedVenue struct {
	name      string
	router    common.Address
	rates     map[string][2]int64 // "IN->OUT" -> {num, den}
	gas       uint64
	hashes    []string
	submitted []domain.TradeLeg
}

func (v *scriptedVenue) Name() string           { return v.name }
func (v *scriptedVenue) ChainID() int64         { return 137 }
func (v *scriptedVenue) Router() common.Address { return v.router }

func (v *scriptedVenue) GetPools(context.Context, domain.Asset, domain.Asset) ([]domain.LiquidityPool, error) {
	return nil, domain.ErrDataUnavailable
}

func (v *scriptedVenue) GetQuote(_ context.Context, in, out domain.Asset, amountIn *big.Int, _ domain.LiquidityPool) (*big.Int, error) {
	r, ok := v.rates[in.Symbol+"->"+out.Symbol]
	if !ok {
		return nil, domain.ErrDataUnavailable
	}
	q := new(big.Int).Mul(amountIn, big.NewInt(r[0]))
	return q.Quo(q, big.NewInt(r[1])), nil
}

func (v *scriptedVenue) EstimateGas(context.Context, domain.TradeLeg) (uint64, error) {
	return v.gas, nil
}

func (v *scriptedVenue) ExecuteTrade(_ context.Context, leg domain.TradeLeg, _ domain.Signer) (string, error) {
	v.submitted = append(v.submitted, leg)
	if len(v.hashes) == 0 {
		return "", domain.ErrSigningFailed
	}
	h := v.hashes[0]
	v.hashes = v.hashes[1:]
	return h, nil
}

// scriptedChain serves balances in call order and receipts by hash.
type scriptedChain struct {
	balances       []*big.Int
	balanceCalls   int
	allowance      *big.Int
	allowanceCalls int
	approveCalls   int
	receipts       map[string]domain.TxStatus
	gasUsed        uint64
	gasPrice       *big.Int
}

func (c *scriptedChain) BalanceOf(context.Context, domain.Asset, common.Address) (*big.Int, error) {
	if c.balanceCalls >= len(c.balances) {
		return new(big.Int), nil
	}
	b := c.balances[c.balanceCalls]
	c.balanceCalls++
	return b, nil
}

func (c *scriptedChain) Allowance(context.Context, domain.Asset, common.Address, common.Address) (*big.Int, error) {
	c.allowanceCalls++
	return c.allowance, nil
}

func (c *scriptedChain) Approve(context.Context, domain.Asset, common.Address, *big.Int, domain.Signer) (string, error) {
	c.approveCalls++
	return "0xapprove", nil
}

func (c *scriptedChain) WaitForReceipt(_ context.Context, txHash string) (domain.TxStatus, uint64, error) {
	status, ok := c.receipts[txHash]
	if !ok {
		return domain.TxStatusSuccess, c.gasUsed, nil
	}
	return status, c.gasUsed, nil
}

func (c *scriptedChain) GasPrice(context.Context) (*big.Int, error) {
	return c.gasPrice, nil
}

type fixedSigner struct{ addr common.Address }

func (s fixedSigner) Address() common.Address { return s.addr }
func (s fixedSigner) SignAndSubmit(context.Context, domain.TxRequest) (common.Hash, error) {
	return common.Hash{}, nil
}

type fixedOracle struct{ prices map[common.Address]float64 }

func (o fixedOracle) GetPrice(_ context.Context, asset common.Address) (domain.PricePoint, error) {
	p, ok := o.prices[asset]
	if !ok {
		return domain.PricePoint{}, domain.ErrDataUnavailable
	}
	return domain.PricePoint{PriceUSD: p, Timestamp: time.Now()}, nil
}

type harness struct {
	orch  *Orchestrator
	buy   *scriptedVenue
	sell  *scriptedVenue
	chain *scriptedChain
	gate  *risk.Gate
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	buy := &scriptedVenue{
		name:   "alpha",
		router: common.HexToAddress("0x000000000000000000000000000000000000aaaa"),
		rates:  map[string][2]int64{"WETH->LINK": {100, 1}},
		gas:    150_000,
		hashes: []string{"0xleg1"},
	}
	sell := &scriptedVenue{
		name:   "beta",
		router: common.HexToAddress("0x000000000000000000000000000000000000bbbb"),
		rates:  map[string][2]int64{"LINK->WETH": {103, 10_000}},
		gas:    150_000,
		hashes: []string{"0xleg2"},
	}
	reg := venue.NewRegistry()
	require.NoError(t, reg.Register(buy))
	require.NoError(t, reg.Register(sell))

	chain := &scriptedChain{
		balances:  []*big.Int{eth(5_000), eth(5_020)},
		allowance: new(big.Int).Mul(oneEth, big.NewInt(1_000_000)),
		receipts: map[string]domain.TxStatus{
			"0xleg1": domain.TxStatusSuccess,
			"0xleg2": domain.TxStatusSuccess,
		},
		gasUsed:  140_000,
		gasPrice: big.NewInt(30_000_000_000), // 30 gwei
	}

	ledger := risk.NewLedger(nil)
	runtime := config.NewRuntime(config.Defaults().Risk, config.ExecutorConfig{
		TradingEnabled:    true,
		MaxGasPriceGwei:   300,
		MaxDegradationBps: 5_000,
	})
	gate := risk.NewGate(ledger, runtime,
		[]config.AssetConfig{
			{Address: weth.Address.Hex(), Symbol: "WETH", Decimals: 18, Major: true},
			{Address: link.Address.Hex(), Symbol: "LINK", Decimals: 18, Major: true},
		},
		[]config.VenueConfig{{Name: "alpha", Established: true}, {Name: "beta", Established: true}},
		nil, nil, slog.Default())

	chainCfg := config.ChainConfig{WrappedNative: weth.Address.Hex()}
	chainCfg.ConfirmTimeout.Duration = time.Second
	chainCfg.CallTimeout.Duration = time.Second

	orch := New(reg, chain, fixedSigner{addr: common.HexToAddress("0x00000000000000000000000000000000deadbeef")},
		fixedOracle{prices: map[common.Address]float64{weth.Address: 3_000}},
		nil, gate, runtime, chainCfg, nil, nil, slog.Default())

	return &harness{orch: orch, buy: buy, sell: sell, chain: chain, gate: gate}
}

func (h *harness) opportunity() domain.Opportunity {
	mid := new(big.Int).Mul(oneEth, big.NewInt(100))
	buyPool := domain.LiquidityPool{
		Venue: "alpha", ChainID: 137, Model: domain.QuoteModelConstantProduct,
		Token0: weth, Token1: link,
		Reserve0: new(big.Int).Mul(oneEth, big.NewInt(10_000)),
		Reserve1: new(big.Int).Mul(oneEth, big.NewInt(1_000_000)),
		FeeBps:   30, FetchedAt: time.Now(),
	}
	sellPool := buyPool
	sellPool.Venue = "beta"

	return domain.Opportunity{
		ID:           "opp-1",
		AssetA:       weth,
		AssetB:       link,
		BuyPool:      buyPool,
		SellPool:     sellPool,
		ProbeAmount:  oneEth,
		ProfitBps:    300,
		ProfitAmount: eth(30),
		Legs: []domain.TradeLeg{
			{Venue: "alpha", AssetIn: weth, AssetOut: link, AmountIn: oneEth, MinAmountOut: mid, Pool: buyPool},
			{Venue: "beta", AssetIn: link, AssetOut: weth, AmountIn: mid, MinAmountOut: eth(1_020), Pool: sellPool},
		},
		GasEstimate: 300_000,
		Confidence:  0.8,
		DetectedAt:  time.Now(),
	}
}

func approval(size *big.Int) domain.RiskAssessment {
	return domain.RiskAssessment{
		Score:               5,
		Level:               domain.RiskLevelLow,
		ShouldExecute:       true,
		AdjustedSize:        size,
		AdjustedSlippageBps: 100,
	}
}

func TestExecuteSettlesRoundTrip(t *testing.T) {
	h := newHarness(t)

	res := h.orch.Execute(context.Background(), h.opportunity(), approval(oneEth))

	require.True(t, res.Success, "error: %s", res.Error)
	assert.Equal(t, domain.ExecStateSettled, res.State)
	assert.Equal(t, []string{"0xleg1", "0xleg2"}, res.TxHashes)
	assert.Equal(t, uint64(280_000), res.GasUsed)

	// Profit is the origin balance delta: 5020 - 5000 milli-WETH.
	assert.Zero(t, res.Profit.Cmp(eth(20)))

	// The submitted amounts come from the fresh quotes, not detection.
	require.Len(t, h.buy.submitted, 1)
	assert.Zero(t, h.buy.submitted[0].AmountIn.Cmp(oneEth))
	require.Len(t, h.sell.submitted, 1)
	assert.Zero(t, h.sell.submitted[0].AmountIn.Cmp(new(big.Int).Mul(oneEth, big.NewInt(100))))

	// Start/end bookkeeping is paired.
	stats := h.gate.Ledger().Stats()
	assert.Equal(t, 0, stats.ActiveTrades)
	assert.Equal(t, 1, stats.DailyTrades)
}

func TestExecuteAbortsOnFailedLeg(t *testing.T) {
	// Leg 1 confirms, leg 2 reverts: the result fails with exactly leg 1's
	// hash and no further submissions.
	h := newHarness(t)
	h.chain.receipts["0xleg2"] = domain.TxStatusReverted

	res := h.orch.Execute(context.Background(), h.opportunity(), approval(oneEth))

	assert.False(t, res.Success)
	assert.Equal(t, domain.ExecStateFailed, res.State)
	assert.Equal(t, []string{"0xleg1"}, res.TxHashes)
	assert.ErrorContains(t, errFrom(res), domain.ErrLegExecutionFailed.Error())
	assert.Equal(t, 0, h.gate.Ledger().Stats().ActiveTrades)
}

func TestExecuteNeverSubmitsAfterFailedSubmission(t *testing.T) {
	h := newHarness(t)
	h.buy.hashes = nil // leg 1 submission fails outright

	res := h.orch.Execute(context.Background(), h.opportunity(), approval(oneEth))

	assert.False(t, res.Success)
	assert.Empty(t, res.TxHashes)
	assert.Empty(t, h.sell.submitted, "leg 2 must never be submitted after leg 1 fails")
}

func TestExecuteRejectsStaleOpportunity(t *testing.T) {
	// Revalidation quotes collapse the round trip to ~45 bps against a
	// detected 300 bps: stale, and no balance or allowance calls happen.
	h := newHarness(t)
	h.sell.rates["LINK->WETH"] = [2]int64{10_045, 1_000_000}

	res := h.orch.Execute(context.Background(), h.opportunity(), approval(oneEth))

	assert.False(t, res.Success)
	assert.Equal(t, domain.ExecStateRejected, res.State)
	assert.ErrorContains(t, errFrom(res), domain.ErrStaleOpportunity.Error())
	assert.Empty(t, res.TxHashes)
	assert.Zero(t, h.chain.balanceCalls, "no funds may be touched on a stale reject")
	assert.Zero(t, h.chain.allowanceCalls)
}

func TestExecuteRejectsDegradedProfit(t *testing.T) {
	// 300 bps detected, ~120 bps on revalidation: above the minimum but a
	// 60% degradation against the 50% bound.
	h := newHarness(t)
	h.sell.rates["LINK->WETH"] = [2]int64{10_120, 1_000_000}

	res := h.orch.Execute(context.Background(), h.opportunity(), approval(oneEth))

	assert.False(t, res.Success)
	assert.ErrorContains(t, errFrom(res), domain.ErrStaleOpportunity.Error())
	assert.Zero(t, h.chain.balanceCalls)
}

func TestExecuteAbortsWhenGasEatsProfit(t *testing.T) {
	h := newHarness(t)
	h.chain.gasPrice = big.NewInt(200_000_000_000) // 200 gwei

	res := h.orch.Execute(context.Background(), h.opportunity(), approval(oneEth))

	assert.False(t, res.Success)
	assert.ErrorContains(t, errFrom(res), domain.ErrGasProfitNegative.Error())
	assert.Empty(t, res.TxHashes)
}

func TestExecuteRejectsOnInsufficientFunds(t *testing.T) {
	h := newHarness(t)
	h.chain.balances = []*big.Int{eth(100)} // 0.1 WETH against a 1 WETH input

	res := h.orch.Execute(context.Background(), h.opportunity(), approval(oneEth))

	assert.False(t, res.Success)
	assert.ErrorContains(t, errFrom(res), domain.ErrInsufficientFunds.Error())
	assert.Empty(t, res.TxHashes)
}

func TestExecuteGrantsMissingAllowance(t *testing.T) {
	h := newHarness(t)
	h.chain.allowance = new(big.Int)
	h.chain.receipts["0xapprove"] = domain.TxStatusSuccess

	res := h.orch.Execute(context.Background(), h.opportunity(), approval(oneEth))

	require.True(t, res.Success, "error: %s", res.Error)
	assert.Equal(t, 2, h.chain.approveCalls, "both ERC-20 legs need a fresh approval")
}

func TestExecuteSingleFlight(t *testing.T) {
	h := newHarness(t)
	h.orch.execMu.Lock()
	defer h.orch.execMu.Unlock()

	res := h.orch.Execute(context.Background(), h.opportunity(), approval(oneEth))

	assert.False(t, res.Success)
	assert.ErrorContains(t, errFrom(res), domain.ErrExecutionInFlight.Error())
}

func TestExecuteRespectsEmergencyStop(t *testing.T) {
	h := newHarness(t)
	h.orch.Stop()
	assert.True(t, h.orch.Stopped())

	res := h.orch.Execute(context.Background(), h.opportunity(), approval(oneEth))
	assert.False(t, res.Success)
	assert.ErrorContains(t, errFrom(res), domain.ErrTradingDisabled.Error())

	h.orch.Resume()
	res = h.orch.Execute(context.Background(), h.opportunity(), approval(oneEth))
	assert.True(t, res.Success, "error: %s", res.Error)
}

func TestRunSkipsWhenTradingDisabled(t *testing.T) {
	h := newHarness(t)
	h.orch.runtime.SetTradingEnabled(false)

	opps := make(chan domain.Opportunity, 1)
	opps <- h.opportunity()
	close(opps)

	require.NoError(t, h.orch.Run(context.Background(), opps))
	assert.Empty(t, h.buy.submitted)
	assert.Empty(t, h.sell.submitted)
}

// errFrom rebuilds an error from a result's string for ErrorContains checks.
func errFrom(res domain.ExecutionResult) error {
	if res.Error == "" {
		return nil
	}
	return &resultError{msg: res.Error}
}

type resultError struct{ msg string }

func (e *resultError) Error() string { return e.msg }
