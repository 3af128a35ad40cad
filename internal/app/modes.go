package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jmcalloway/dexarb/internal/executor"
	"github.com/jmcalloway/dexarb/internal/feed"
	"github.com/jmcalloway/dexarb/internal/risk"
	"github.com/jmcalloway/dexarb/internal/scanner"
	"github.com/jmcalloway/dexarb/internal/server"
	"github.com/jmcalloway/dexarb/internal/server/handler"
)

// ScanMode detects and records opportunities without ever touching funds.
// The API server, when enabled, serves the detected history read-only.
func (a *App) ScanMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting scan mode")

	g, ctx := errgroup.WithContext(ctx)

	gate := a.buildGate(deps)
	scan := a.buildScanner(deps)

	g.Go(func() error {
		return scan.Run(ctx)
	})

	// Drain the channel so the scanner never reports drops; assessments are
	// logged for calibration but nothing executes.
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case opp, ok := <-scan.Opportunities():
				if !ok {
					return nil
				}
				assessment := gate.Assess(opp)
				a.logger.InfoContext(ctx, "assessed opportunity",
					slog.String("opp_id", opp.ID),
					slog.Int64("profit_bps", opp.ProfitBps),
					slog.Int("risk_score", assessment.Score),
					slog.Bool("would_execute", assessment.ShouldExecute),
				)
			}
		}
	})

	a.startFeed(ctx, g, deps)
	a.startServer(ctx, g, deps, gate, nil)

	return g.Wait()
}

// TradeMode runs the full detection and execution pipeline without the API
// server: scanner feeding the orchestrator over the bounded channel.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trade mode")

	g, ctx := errgroup.WithContext(ctx)

	gate := a.buildGate(deps)
	scan := a.buildScanner(deps)
	orch := a.buildOrchestrator(deps, gate)
	scan.PauseWhen(orch.Stopped)

	g.Go(func() error {
		return scan.Run(ctx)
	})
	g.Go(func() error {
		return orch.Run(ctx, scan.Opportunities())
	})

	a.startFeed(ctx, g, deps)

	return g.Wait()
}

// FullMode runs everything: scanner, orchestrator, ticker feed, API server,
// and the daily execution archiver.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	gate := a.buildGate(deps)
	scan := a.buildScanner(deps)
	orch := a.buildOrchestrator(deps, gate)
	scan.PauseWhen(orch.Stopped)

	g.Go(func() error {
		return scan.Run(ctx)
	})
	g.Go(func() error {
		return orch.Run(ctx, scan.Opportunities())
	})

	a.startFeed(ctx, g, deps)
	a.startServer(ctx, g, deps, gate, orch)

	if deps.Archiver != nil {
		g.Go(func() error {
			return deps.Archiver.Run(ctx)
		})
	}

	return g.Wait()
}

// buildGate constructs the risk gate and its ledger from configuration.
func (a *App) buildGate(deps *Dependencies) *risk.Gate {
	ledger := risk.NewLedger(nil)
	return risk.NewGate(ledger, deps.Runtime, a.cfg.Assets, a.cfg.Venues, deps.BlacklistAudit, nil, a.logger)
}

// buildScanner constructs the opportunity scanner.
func (a *App) buildScanner(deps *Dependencies) *scanner.Scanner {
	return scanner.New(
		deps.Registry,
		deps.Assets,
		a.cfg.Chain.ChainID,
		a.cfg.Scanner,
		deps.Runtime,
		deps.OpportunityStore,
		deps.Publisher,
		a.logger,
	)
}

// buildOrchestrator constructs the execution orchestrator with the notifier
// hook attached.
func (a *App) buildOrchestrator(deps *Dependencies, gate *risk.Gate) *executor.Orchestrator {
	return executor.New(
		deps.Registry,
		deps.Chain,
		deps.Signer,
		deps.Oracle,
		deps.Confidence,
		gate,
		deps.Runtime,
		a.cfg.Chain,
		deps.ExecutionStore,
		deps.Reporter.OnResult,
		a.logger,
	)
}

// startFeed launches the ticker feed when streams are configured.
func (a *App) startFeed(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if a.cfg.Oracle.WSURL == "" || len(a.cfg.Oracle.Streams) == 0 {
		return
	}
	tickerFeed := feed.NewTickerFeed(a.cfg.Oracle.WSURL, a.cfg.Oracle.Streams, deps.PriceCache, a.logger)
	g.Go(func() error {
		return tickerFeed.Run(ctx)
	})
	a.closers = append(a.closers, tickerFeed.Close)
}

// startServer launches the HTTP API when enabled. engine may be nil in scan
// mode; the control routes then refuse stop/resume.
func (a *App) startServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, gate *risk.Gate, engine handler.EngineControl) {
	if !a.cfg.Server.Enabled {
		return
	}

	reporter := func(stopped bool, reason string) {
		deps.Reporter.NotifyEmergencyStop(context.Background(), stopped, reason)
	}

	handlers := server.Handlers{
		Health:        handler.NewHealthHandler(a.logger),
		Status:        handler.NewStatusHandler(a.cfg.Mode, a.cfg.Chain.ChainID, deps.Runtime, gate.Ledger(), engine),
		Opportunities: handler.NewOpportunityHandler(deps.OpportunityStore, a.logger),
		Executions:    handler.NewExecutionHandler(deps.ExecutionStore, a.logger),
		Risk:          handler.NewRiskHandler(deps.Runtime, gate, deps.BlacklistAudit, a.logger),
		Control:       handler.NewControlHandler(deps.Runtime, engine, reporter, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}
