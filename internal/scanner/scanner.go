// Package scanner implements the periodic cross-venue opportunity scan. It
// polls every registered venue for every monitored asset pair, compares
// round-trip quotes across venue pairs, and emits profitable opportunities
// into a bounded channel consumed by the execution pipeline.
package scanner

import (
	"context"
	"log/slog"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/jmcalloway/dexarb/internal/config"
	"github.com/jmcalloway/dexarb/internal/domain"
	"github.com/jmcalloway/dexarb/internal/venue"
)

// Scanner runs the bounded periodic scan. Scanning is a fixed-interval poll
// rather than a reactive stream so the outbound RPC budget per tick stays
// bounded no matter how many venues and assets are configured.
type Scanner struct {
	registry *venue.Registry
	assets   []domain.Asset
	chainID  int64
	cfg      config.ScannerConfig
	runtime  *config.Runtime

	// store and publisher are optional observers; a nil value disables them.
	store     domain.OpportunityStore
	publisher domain.OpportunityPublisher

	// paused, when set, is consulted before each tick; a true return skips
	// the tick entirely so no venue is polled.
	paused func() bool

	out    chan domain.Opportunity
	logger *slog.Logger
}

// New creates a Scanner that emits into a channel of the configured capacity.
func New(
	registry *venue.Registry,
	assets []domain.Asset,
	chainID int64,
	cfg config.ScannerConfig,
	runtime *config.Runtime,
	store domain.OpportunityStore,
	publisher domain.OpportunityPublisher,
	logger *slog.Logger,
) *Scanner {
	buffer := cfg.ChannelBuffer
	if buffer <= 0 {
		buffer = 64
	}
	return &Scanner{
		registry:  registry,
		assets:    assets,
		chainID:   chainID,
		cfg:       cfg,
		runtime:   runtime,
		store:     store,
		publisher: publisher,
		out:       make(chan domain.Opportunity, buffer),
		logger:    logger.With(slog.String("component", "scanner")),
	}
}

// Opportunities returns the channel scan results are emitted on.
func (s *Scanner) Opportunities() <-chan domain.Opportunity {
	return s.out
}

// PauseWhen registers a predicate checked before every tick. While it returns
// true the scanner idles without polling any venue. An emergency stop wires
// the engine's stopped flag in here so a halted engine stops quoting too.
// Must be called before Run.
func (s *Scanner) PauseWhen(fn func() bool) {
	s.paused = fn
}

// Run executes scan ticks until ctx is cancelled, then closes the output
// channel. A tick that is still quoting when the next interval elapses simply
// delays the next tick; ticks never overlap.
func (s *Scanner) Run(ctx context.Context) error {
	s.logger.Info("scanner started",
		slog.Int("assets", len(s.assets)),
		slog.Int("venues", s.registry.Len()),
		slog.Duration("interval", s.cfg.Interval.Duration),
	)
	defer s.logger.Info("scanner stopped")
	defer close(s.out)

	ticker := time.NewTicker(s.cfg.Interval.Duration)
	defer ticker.Stop()

	for {
		if s.paused != nil && s.paused() {
			s.logger.Debug("scan tick skipped, engine stopped")
		} else {
			opps := s.Scan(ctx)
			for _, opp := range opps {
				select {
				case s.out <- opp:
				default:
					// Bounded channel full: the pipeline is behind, drop the
					// tail rather than block the scan loop.
					s.logger.Warn("opportunity channel full, dropping",
						slog.String("opp_id", opp.ID),
						slog.Int64("profit_bps", opp.ProfitBps),
					)
				}
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Scan performs one full tick: every unordered asset pair, every venue pair,
// both round-trip directions. It never returns an error; any single
// venue/pair failure is logged and that combination skipped.
func (s *Scanner) Scan(ctx context.Context) []domain.Opportunity {
	started := time.Now()
	minProfitBps := s.runtime.Risk().MinProfitBps

	var (
		mu   sync.Mutex
		opps []domain.Opportunity
	)

	g, gctx := errgroup.WithContext(ctx)
	limit := s.cfg.MaxConcurrentPairs
	if limit <= 0 {
		limit = 4
	}
	g.SetLimit(limit)

	for i := 0; i < len(s.assets); i++ {
		for j := i + 1; j < len(s.assets); j++ {
			a, b := s.assets[i], s.assets[j]
			g.Go(func() error {
				found := s.scanPair(gctx, a, b, minProfitBps)
				if len(found) > 0 {
					mu.Lock()
					opps = append(opps, found...)
					mu.Unlock()
				}
				return nil
			})
		}
	}
	_ = g.Wait()

	sort.Slice(opps, func(i, j int) bool { return opps[i].ProfitBps > opps[j].ProfitBps })

	for _, opp := range opps {
		s.record(ctx, opp)
	}

	s.logger.Debug("scan tick complete",
		slog.Int("opportunities", len(opps)),
		slog.Duration("took", time.Since(started)),
	)
	return opps
}

// poolEntry pairs a pool snapshot with the client that produced it.
type poolEntry struct {
	client domain.VenueClient
	pool   domain.LiquidityPool
}

// scanPair collects pools for one asset pair across all venues and compares
// every unordered pool pair in both directions.
func (s *Scanner) scanPair(ctx context.Context, a, b domain.Asset, minProfitBps int64) []domain.Opportunity {
	entries := s.collectPools(ctx, a, b)

	distinct := make(map[string]bool, len(entries))
	for _, e := range entries {
		distinct[e.pool.Venue] = true
	}
	if len(distinct) < 2 {
		return nil
	}

	probe := probeAmount(s.cfg.ProbeTokens, a.Decimals)
	maxSlippageBps := s.runtime.Risk().MaxSlippageBps

	var opps []domain.Opportunity
	for i := 0; i < len(entries); i++ {
		for j := i + 1; j < len(entries); j++ {
			opp, ok := s.compare(ctx, a, b, probe, entries[i], entries[j], maxSlippageBps)
			if ok && opp.ProfitBps >= minProfitBps {
				opps = append(opps, opp)
			}
		}
	}
	return opps
}

// collectPools queries every venue for the pair, skipping failures.
func (s *Scanner) collectPools(ctx context.Context, a, b domain.Asset) []poolEntry {
	var entries []poolEntry
	for _, client := range s.registry.ForChain(s.chainID) {
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.QuoteTimeout.Duration)
		pools, err := client.GetPools(callCtx, a, b)
		cancel()
		if err != nil {
			s.logger.Debug("pool discovery skipped",
				slog.String("venue", client.Name()),
				slog.String("pair", a.Symbol+"/"+b.Symbol),
				slog.String("error", err.Error()),
			)
			continue
		}
		for _, p := range pools {
			entries = append(entries, poolEntry{client: client, pool: p})
		}
	}
	return entries
}

// compare quotes the probe round trip in both directions across two pools
// and builds an opportunity from the better strictly-positive one.
func (s *Scanner) compare(ctx context.Context, a, b domain.Asset, probe *big.Int, x, y poolEntry, maxSlippageBps int64) (domain.Opportunity, bool) {
	outXY, retXY := s.roundTrip(ctx, a, b, probe, x, y)
	outYX, retYX := s.roundTrip(ctx, a, b, probe, y, x)

	netXY := net(retXY, probe)
	netYX := net(retYX, probe)

	buy, sell := x, y
	mid, ret, netAmt := outXY, retXY, netXY
	if netYX != nil && (netXY == nil || netYX.Cmp(netXY) > 0) {
		buy, sell = y, x
		mid, ret, netAmt = outYX, retYX, netYX
	}
	if netAmt == nil || netAmt.Sign() <= 0 {
		return domain.Opportunity{}, false
	}

	legs := []domain.TradeLeg{
		{
			Venue:        buy.pool.Venue,
			AssetIn:      a,
			AssetOut:     b,
			AmountIn:     probe,
			MinAmountOut: domain.ApplySlippageBps(mid, maxSlippageBps),
			Pool:         buy.pool,
		},
		{
			Venue:        sell.pool.Venue,
			AssetIn:      b,
			AssetOut:     a,
			AmountIn:     mid,
			MinAmountOut: domain.ApplySlippageBps(ret, maxSlippageBps),
			Pool:         sell.pool,
		},
	}

	var gas uint64
	for _, leg := range legs {
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.QuoteTimeout.Duration)
		units, err := buyOrSellClient(buy, sell, leg).EstimateGas(callCtx, leg)
		cancel()
		if err != nil {
			s.logger.Debug("gas estimate skipped",
				slog.String("venue", leg.Venue),
				slog.String("error", err.Error()),
			)
			continue
		}
		gas += units
	}

	opp := domain.Opportunity{
		ID:           uuid.New().String(),
		AssetA:       a,
		AssetB:       b,
		BuyPool:      buy.pool,
		SellPool:     sell.pool,
		ProbeAmount:  probe,
		ProfitBps:    domain.ProfitBpsOf(probe, ret),
		ProfitAmount: netAmt,
		Legs:         legs,
		GasEstimate:  gas,
		DetectedAt:   time.Now().UTC(),
	}
	opp.Confidence = confidenceHeuristic(opp)
	return opp, true
}

// roundTrip quotes a buy on pool x followed by a sell on pool y, returning
// the intermediate and final amounts. A nil return means the combination was
// skipped.
func (s *Scanner) roundTrip(ctx context.Context, a, b domain.Asset, probe *big.Int, x, y poolEntry) (mid, ret *big.Int) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.QuoteTimeout.Duration)
	mid, err := x.client.GetQuote(callCtx, a, b, probe, x.pool)
	cancel()
	if err != nil || mid == nil || mid.Sign() <= 0 {
		s.logQuoteSkip(x.pool.Venue, a, b, err)
		return nil, nil
	}

	callCtx, cancel = context.WithTimeout(ctx, s.cfg.QuoteTimeout.Duration)
	ret, err = y.client.GetQuote(callCtx, b, a, mid, y.pool)
	cancel()
	if err != nil || ret == nil {
		s.logQuoteSkip(y.pool.Venue, b, a, err)
		return nil, nil
	}
	return mid, ret
}

func (s *Scanner) logQuoteSkip(venueName string, in, out domain.Asset, err error) {
	msg := "nil quote"
	if err != nil {
		msg = err.Error()
	}
	s.logger.Debug("quote skipped",
		slog.String("venue", venueName),
		slog.String("pair", in.Symbol+"->"+out.Symbol),
		slog.String("error", msg),
	)
}

// record persists and publishes one emitted opportunity. Failures are logged
// and do not affect the scan.
func (s *Scanner) record(ctx context.Context, opp domain.Opportunity) {
	if s.store != nil {
		if err := s.store.Create(ctx, opp); err != nil {
			s.logger.Warn("opportunity store failed",
				slog.String("opp_id", opp.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, opp); err != nil {
			s.logger.Warn("opportunity publish failed",
				slog.String("opp_id", opp.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// net returns ret - probe, or nil when the round trip was skipped.
func net(ret, probe *big.Int) *big.Int {
	if ret == nil {
		return nil
	}
	return new(big.Int).Sub(ret, probe)
}

// buyOrSellClient picks the client that owns the leg's pool.
func buyOrSellClient(buy, sell poolEntry, leg domain.TradeLeg) domain.VenueClient {
	if leg.Pool.Address == buy.pool.Address && leg.Venue == buy.pool.Venue {
		return buy.client
	}
	return sell.client
}

// probeAmount converts the configured whole-token probe size to the asset's
// smallest units. decimal is used only at this config boundary; all quote
// math stays big.Int.
func probeAmount(tokens float64, decimals uint8) *big.Int {
	return decimal.NewFromFloat(tokens).Shift(int32(decimals)).BigInt()
}
