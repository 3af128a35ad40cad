// Package executor implements the execution orchestrator: the stateful
// pipeline that takes an approved opportunity through revalidation, balance
// and allowance preconditions, the gas-versus-profit guard, and strictly
// sequential leg submission. At most one execution runs at a time
// process-wide; concurrent requests are refused, never queued.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jmcalloway/dexarb/internal/config"
	"github.com/jmcalloway/dexarb/internal/domain"
	"github.com/jmcalloway/dexarb/internal/risk"
	"github.com/jmcalloway/dexarb/internal/venue"
)

// gasBufferNum/gasBufferDen apply the x1.2 safety buffer to summed gas
// estimates with integer math.
const (
	gasBufferNum = 12
	gasBufferDen = 10
)

// Orchestrator consumes opportunities from the scanner channel and drives
// each through the risk gate and the execution state machine.
type Orchestrator struct {
	registry   *venue.Registry
	chain      domain.ChainClient
	signer     domain.Signer
	oracle     domain.PriceOracle
	confidence domain.ConfidenceOracle // nil disables oracle annotation
	gate       *risk.Gate
	runtime    *config.Runtime
	chainCfg   config.ChainConfig
	store      domain.ExecutionStore // nil disables persistence
	onResult   func(context.Context, domain.ExecutionResult)
	dedup      *routeDedup
	logger     *slog.Logger

	// execMu is the single-flight guard; TryLock so a busy pipeline refuses
	// rather than queues.
	execMu  sync.Mutex
	stopped atomic.Bool
}

// New wires the orchestrator. confidence, store, and onResult may be nil.
func New(
	registry *venue.Registry,
	chain domain.ChainClient,
	signer domain.Signer,
	oracle domain.PriceOracle,
	confidence domain.ConfidenceOracle,
	gate *risk.Gate,
	runtime *config.Runtime,
	chainCfg config.ChainConfig,
	store domain.ExecutionStore,
	onResult func(context.Context, domain.ExecutionResult),
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		registry:   registry,
		chain:      chain,
		signer:     signer,
		oracle:     oracle,
		confidence: confidence,
		gate:       gate,
		runtime:    runtime,
		chainCfg:   chainCfg,
		store:      store,
		onResult:   onResult,
		dedup:      newRouteDedup(routeDedupTTL),
		logger:     logger.With(slog.String("component", "executor")),
	}
}

// Run consumes the opportunity channel until it closes or ctx is cancelled.
// Every opportunity is handled to completion; failures become structured
// results and never escape the loop.
func (o *Orchestrator) Run(ctx context.Context, opps <-chan domain.Opportunity) error {
	o.logger.Info("orchestrator started")
	defer o.logger.Info("orchestrator stopped")

	handled := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case opp, ok := <-opps:
			if !ok {
				return nil
			}
			o.handle(ctx, opp)
			if handled++; handled%256 == 0 {
				o.dedup.cleanup()
			}
		}
	}
}

// Stop pulls the emergency brake: no new execution starts, while an in-flight
// execution finishes its current leg (a broadcast transaction cannot be
// recalled). The scanner pauses too; its tick loop consults Stopped before
// polling venues.
func (o *Orchestrator) Stop() {
	if o.stopped.CompareAndSwap(false, true) {
		o.logger.Warn("emergency stop engaged")
	}
}

// Stopped reports whether the emergency stop is engaged.
func (o *Orchestrator) Stopped() bool {
	return o.stopped.Load()
}

// Resume releases the emergency stop.
func (o *Orchestrator) Resume() {
	if o.stopped.CompareAndSwap(true, false) {
		o.logger.Info("emergency stop released")
	}
}

// handle runs one opportunity through annotation, assessment, and execution.
func (o *Orchestrator) handle(ctx context.Context, opp domain.Opportunity) {
	if o.stopped.Load() || !o.runtime.TradingEnabled() {
		o.logger.Debug("trading disabled, skipping",
			slog.String("opp_id", opp.ID),
			slog.Int64("profit_bps", opp.ProfitBps),
		)
		return
	}

	if o.dedup.isDuplicate(routeKey(opp)) {
		o.logger.Debug("route handled recently, skipping",
			slog.String("opp_id", opp.ID),
			slog.Int64("profit_bps", opp.ProfitBps),
		)
		return
	}

	o.annotate(ctx, &opp)

	assessment := o.gate.Assess(opp)
	if !assessment.ShouldExecute {
		o.finish(ctx, opp, domain.ExecutionResult{
			ID:            uuid.New().String(),
			OpportunityID: opp.ID,
			State:         domain.ExecStateRejected,
			Profit:        new(big.Int),
			Error:         fmt.Sprintf("%v: %s", domain.ErrRiskRejected, joinReasons(assessment.Reasons)),
			StartedAt:     time.Now().UTC(),
		})
		return
	}

	res := o.Execute(ctx, opp, assessment)
	o.finish(ctx, opp, res)
}

// annotate attaches the confidence oracle's prediction. Failures are
// non-fatal; assessment proceeds without the annotation.
func (o *Orchestrator) annotate(ctx context.Context, opp *domain.Opportunity) {
	if o.confidence == nil {
		return
	}
	pred, err := o.confidence.Predict(ctx, *opp)
	if err != nil {
		o.logger.Debug("confidence prediction unavailable",
			slog.String("opp_id", opp.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	opp.Prediction = &pred
}

// Execute drives one approved opportunity through the state machine. It
// always returns a result, even on early abort.
func (o *Orchestrator) Execute(ctx context.Context, opp domain.Opportunity, assessment domain.RiskAssessment) domain.ExecutionResult {
	res := domain.ExecutionResult{
		ID:            uuid.New().String(),
		OpportunityID: opp.ID,
		State:         domain.ExecStateDetected,
		Profit:        new(big.Int),
		StartedAt:     time.Now().UTC(),
	}
	fail := func(state domain.ExecState, err error) domain.ExecutionResult {
		res.State = state
		res.Error = err.Error()
		res.Duration = time.Since(res.StartedAt)
		return res
	}

	if !o.execMu.TryLock() {
		return fail(domain.ExecStateRejected, domain.ErrExecutionInFlight)
	}
	defer o.execMu.Unlock()

	if o.stopped.Load() || !o.runtime.TradingEnabled() {
		return fail(domain.ExecStateRejected, domain.ErrTradingDisabled)
	}
	if err := opp.Validate(); err != nil {
		return fail(domain.ExecStateRejected, err)
	}

	// Revalidate against live venue state before touching funds. The stale
	// detected amounts are never used for submission.
	legs, err := o.revalidate(ctx, opp, assessment)
	if err != nil {
		return fail(domain.ExecStateRejected, err)
	}
	res.State = domain.ExecStateValidated

	inputAmount := legs[0].AmountIn
	o.gate.Ledger().RecordTradeStart(domain.NormalizeTo18(inputAmount, opp.AssetA.Decimals))
	defer o.gate.Ledger().RecordTradeEnd()

	preBalance, err := o.preconditions(ctx, opp, legs)
	if err != nil {
		return fail(domain.ExecStateFailed, err)
	}
	if err := o.gasGuard(ctx, opp, legs); err != nil {
		return fail(domain.ExecStateFailed, err)
	}
	res.State = domain.ExecStateApproved

	o.logger.Info("executing opportunity",
		slog.String("opp_id", opp.ID),
		slog.String("pair", opp.AssetA.Symbol+"/"+opp.AssetB.Symbol),
		slog.String("buy_venue", legs[0].Venue),
		slog.String("sell_venue", legs[len(legs)-1].Venue),
		slog.Int64("profit_bps", opp.ProfitBps),
	)

	res.State = domain.ExecStateExecuting
	if err := o.executeLegs(ctx, legs, &res); err != nil {
		return fail(domain.ExecStateFailed, err)
	}

	// Realized profit is the origin-asset balance delta, meaningful because
	// the leg sequence always round-trips back to the origin asset.
	postBalance, err := o.chain.BalanceOf(ctx, opp.AssetA, o.signer.Address())
	if err != nil {
		o.logger.Warn("post-trade balance read failed",
			slog.String("opp_id", opp.ID),
			slog.String("error", err.Error()),
		)
	} else {
		res.Profit = new(big.Int).Sub(postBalance, preBalance)
	}

	res.Success = true
	res.State = domain.ExecStateSettled
	res.Duration = time.Since(res.StartedAt)
	return res
}

// revalidate re-quotes every leg at the approved size and rebuilds the leg
// amounts from the fresh quotes. It rejects with ErrStaleOpportunity when the
// current profit sits below the configured minimum or has degraded past the
// configured share of the detected profit.
func (o *Orchestrator) revalidate(ctx context.Context, opp domain.Opportunity, assessment domain.RiskAssessment) ([]domain.TradeLeg, error) {
	limits := o.runtime.Risk()
	maxDegradationBps := o.runtime.Executor().MaxDegradationBps

	amountIn := assessment.AdjustedSize
	if amountIn == nil || amountIn.Sign() <= 0 {
		amountIn = opp.Legs[0].AmountIn
	}

	fresh := make([]domain.TradeLeg, len(opp.Legs))
	in := amountIn
	for i, leg := range opp.Legs {
		client, err := o.registry.Get(leg.Venue, leg.Pool.ChainID)
		if err != nil {
			return nil, fmt.Errorf("executor: revalidate leg %d: %w", i, err)
		}
		out, err := client.GetQuote(ctx, leg.AssetIn, leg.AssetOut, in, leg.Pool)
		if err != nil {
			return nil, fmt.Errorf("executor: revalidate leg %d: %w", i, err)
		}
		if out == nil || out.Sign() <= 0 {
			return nil, fmt.Errorf("executor: revalidate leg %d: %w", i, domain.ErrDataUnavailable)
		}
		fresh[i] = domain.TradeLeg{
			Venue:        leg.Venue,
			AssetIn:      leg.AssetIn,
			AssetOut:     leg.AssetOut,
			AmountIn:     in,
			MinAmountOut: domain.ApplySlippageBps(out, assessment.AdjustedSlippageBps),
			Pool:         leg.Pool,
		}
		in = out
	}

	currentBps := domain.ProfitBpsOf(amountIn, in)
	if currentBps < limits.MinProfitBps {
		return nil, fmt.Errorf("executor: current profit %d bps below minimum %d: %w",
			currentBps, limits.MinProfitBps, domain.ErrStaleOpportunity)
	}
	if opp.ProfitBps > 0 {
		degradationBps := (opp.ProfitBps - currentBps) * domain.BpsDenominator / opp.ProfitBps
		if degradationBps > maxDegradationBps {
			return nil, fmt.Errorf("executor: profit degraded %d bps of detected: %w",
				degradationBps, domain.ErrStaleOpportunity)
		}
	}
	return fresh, nil
}

// preconditions verifies the wallet balance covers the first leg and grants
// any missing router allowances, blocking on each approval receipt. Returns
// the pre-trade origin-asset balance for profit accounting.
func (o *Orchestrator) preconditions(ctx context.Context, opp domain.Opportunity, legs []domain.TradeLeg) (*big.Int, error) {
	owner := o.signer.Address()

	balance, err := o.chain.BalanceOf(ctx, opp.AssetA, owner)
	if err != nil {
		return nil, fmt.Errorf("executor: balance read: %w", err)
	}
	if balance.Cmp(legs[0].AmountIn) < 0 {
		return nil, fmt.Errorf("executor: balance %s covers %s of %s needed: %w",
			opp.AssetA.Symbol, balance, legs[0].AmountIn, domain.ErrInsufficientFunds)
	}

	for i, leg := range legs {
		if leg.AssetIn.IsNative() {
			continue
		}
		client, err := o.registry.Get(leg.Venue, leg.Pool.ChainID)
		if err != nil {
			return nil, fmt.Errorf("executor: leg %d: %w", i, err)
		}
		spender := client.Router()

		allowance, err := o.chain.Allowance(ctx, leg.AssetIn, owner, spender)
		if err != nil {
			return nil, fmt.Errorf("executor: allowance read: %w", err)
		}
		if allowance.Cmp(leg.AmountIn) >= 0 {
			continue
		}

		// Blocking approval: the leg cannot be submitted until the router may
		// spend the input.
		txHash, err := o.chain.Approve(ctx, leg.AssetIn, spender, leg.AmountIn, o.signer)
		if err != nil {
			return nil, fmt.Errorf("executor: approve %s: %w", leg.AssetIn.Symbol, err)
		}
		waitCtx, cancel := context.WithTimeout(ctx, o.chainCfg.ConfirmTimeout.Duration)
		status, _, err := o.chain.WaitForReceipt(waitCtx, txHash)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("executor: approval %s: %w", txHash, err)
		}
		if status != domain.TxStatusSuccess {
			return nil, fmt.Errorf("executor: approval %s reverted", txHash)
		}
		o.logger.Info("approval confirmed",
			slog.String("asset", leg.AssetIn.Symbol),
			slog.String("spender", spender.Hex()),
			slog.String("tx", txHash),
		)
	}
	return balance, nil
}

// gasGuard aborts before any submission when buffered gas cost, priced in
// the origin asset, consumes the nominal profit, or when the network gas
// price exceeds the configured ceiling.
func (o *Orchestrator) gasGuard(ctx context.Context, opp domain.Opportunity, legs []domain.TradeLeg) error {
	gasPrice, err := o.chain.GasPrice(ctx)
	if err != nil {
		return fmt.Errorf("executor: gas price: %w", err)
	}
	maxGwei := o.runtime.Executor().MaxGasPriceGwei
	if maxGwei > 0 {
		maxWei := new(big.Int).Mul(big.NewInt(maxGwei), big.NewInt(1e9))
		if gasPrice.Cmp(maxWei) > 0 {
			return fmt.Errorf("executor: gas price %s wei exceeds ceiling %d gwei: %w",
				gasPrice, maxGwei, domain.ErrGasProfitNegative)
		}
	}

	var totalGas uint64
	for i, leg := range legs {
		client, err := o.registry.Get(leg.Venue, leg.Pool.ChainID)
		if err != nil {
			return fmt.Errorf("executor: leg %d: %w", i, err)
		}
		units, err := client.EstimateGas(ctx, leg)
		if err != nil {
			return fmt.Errorf("executor: estimate leg %d: %w", i, err)
		}
		totalGas += units
	}

	buffered := new(big.Int).SetUint64(totalGas)
	buffered.Mul(buffered, big.NewInt(gasBufferNum))
	buffered.Quo(buffered, big.NewInt(gasBufferDen))
	costWei := buffered.Mul(buffered, gasPrice)

	costOrigin, err := o.gasCostInOrigin(ctx, opp.AssetA, costWei)
	if err != nil {
		return fmt.Errorf("executor: gas conversion: %w", err)
	}

	nominal := new(big.Int).Sub(legs[len(legs)-1].MinAmountOut, legs[0].AmountIn)
	if nominal.Cmp(costOrigin) <= 0 {
		return fmt.Errorf("executor: profit %s under gas cost %s %s: %w",
			nominal, costOrigin, opp.AssetA.Symbol, domain.ErrGasProfitNegative)
	}
	return nil
}

// gasCostInOrigin converts a wei cost into origin-asset units through the
// price oracle. When the origin asset is the chain's native or wrapped
// native token the conversion is the identity rescale.
func (o *Orchestrator) gasCostInOrigin(ctx context.Context, origin domain.Asset, costWei *big.Int) (*big.Int, error) {
	wrapped := o.chainCfg.WrappedNativeAddress()
	if origin.IsNative() || origin.Address == wrapped {
		return domain.RescaleAmount(costWei, 18, origin.Decimals), nil
	}

	nativePrice, err := o.oracle.GetPrice(ctx, wrapped)
	if err != nil {
		return nil, fmt.Errorf("native price: %w", err)
	}
	originPrice, err := o.oracle.GetPrice(ctx, origin.Address)
	if err != nil {
		return nil, fmt.Errorf("%s price: %w", origin.Symbol, err)
	}
	if nativePrice.PriceUSD <= 0 || originPrice.PriceUSD <= 0 {
		return nil, domain.ErrDataUnavailable
	}

	return domain.ConvertByPrice(costWei, 18, origin.Decimals, nativePrice.PriceUSD, originPrice.PriceUSD), nil
}

// executeLegs submits legs strictly in order. Leg i+1 is only submitted
// after leg i's transaction reaches a successful terminal status; a
// non-success status aborts the remainder immediately, leaving TxHashes a
// strict prefix of the leg sequence.
func (o *Orchestrator) executeLegs(ctx context.Context, legs []domain.TradeLeg, res *domain.ExecutionResult) error {
	legDelay := o.runtime.Executor().LegDelay.Duration

	for i, leg := range legs {
		client, err := o.registry.Get(leg.Venue, leg.Pool.ChainID)
		if err != nil {
			return fmt.Errorf("executor: leg %d: %w", i, err)
		}

		txHash, err := client.ExecuteTrade(ctx, leg, o.signer)
		if err != nil {
			return fmt.Errorf("executor: submit leg %d: %w: %v", i, domain.ErrLegExecutionFailed, err)
		}

		waitCtx, cancel := context.WithTimeout(ctx, o.chainCfg.ConfirmTimeout.Duration)
		status, gasUsed, err := o.chain.WaitForReceipt(waitCtx, txHash)
		cancel()
		if err != nil {
			return fmt.Errorf("executor: confirm leg %d (%s): %w: %v", i, txHash, domain.ErrLegExecutionFailed, err)
		}
		res.GasUsed += gasUsed
		if status != domain.TxStatusSuccess {
			// An aborted round trip leaves an open position in the
			// intermediate asset. There is no automatic unwind; the operator
			// resolves it manually.
			return fmt.Errorf("executor: leg %d (%s) confirmed %s: %w", i, txHash, status, domain.ErrLegExecutionFailed)
		}
		res.TxHashes = append(res.TxHashes, txHash)

		o.logger.Info("leg confirmed",
			slog.Int("leg", i),
			slog.String("venue", leg.Venue),
			slog.String("tx", txHash),
			slog.Uint64("gas_used", gasUsed),
		)

		// Short pause between submissions so the signer's nonce sequence
		// never races the node's view of the previous leg.
		if i < len(legs)-1 && legDelay > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("executor: %w: %v", domain.ErrLegExecutionFailed, ctx.Err())
			case <-time.After(legDelay):
			}
		}
	}
	return nil
}

// finish persists, notifies and logs one terminal result.
func (o *Orchestrator) finish(ctx context.Context, opp domain.Opportunity, res domain.ExecutionResult) {
	if o.store != nil {
		if err := o.store.Create(ctx, res); err != nil {
			o.logger.Warn("execution store failed",
				slog.String("exec_id", res.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	if o.onResult != nil {
		o.onResult(ctx, res)
	}

	attrs := []any{
		slog.String("exec_id", res.ID),
		slog.String("opp_id", opp.ID),
		slog.String("state", string(res.State)),
		slog.Int("legs_submitted", len(res.TxHashes)),
		slog.Duration("took", res.Duration),
	}
	if res.Success {
		o.logger.Info("execution settled",
			append(attrs, slog.String("profit", res.Profit.String()), slog.Uint64("gas_used", res.GasUsed))...)
		return
	}
	if strings.HasPrefix(res.Error, domain.ErrRiskRejected.Error()) {
		o.logger.Info("opportunity rejected", attrs...)
		return
	}
	o.logger.Warn("execution aborted", append(attrs, slog.String("error", res.Error))...)
}

func joinReasons(reasons []string) string {
	if len(reasons) == 0 {
		return "no reasons recorded"
	}
	return strings.Join(reasons, "; ")
}
