package handler

import (
	"net/http"
	"time"

	"github.com/jmcalloway/dexarb/internal/config"
	"github.com/jmcalloway/dexarb/internal/risk"
)

// EngineControl is the subset of the orchestrator's control surface the API
// exposes: the emergency stop flag.
type EngineControl interface {
	Stop()
	Stopped() bool
	Resume()
}

// StatusHandler reports engine state for dashboards and operators.
type StatusHandler struct {
	mode    string
	chainID int64
	runtime *config.Runtime
	ledger  *risk.Ledger
	engine  EngineControl
	started time.Time
}

// NewStatusHandler creates a StatusHandler. engine may be nil in scan-only
// mode, in which case the stopped flag reads false.
func NewStatusHandler(mode string, chainID int64, runtime *config.Runtime, ledger *risk.Ledger, engine EngineControl) *StatusHandler {
	return &StatusHandler{
		mode:    mode,
		chainID: chainID,
		runtime: runtime,
		ledger:  ledger,
		engine:  engine,
		started: time.Now().UTC(),
	}
}

// GetStatus responds with the engine mode, trading flags, and ledger counters.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	stats := h.ledger.Stats()

	stopped := false
	if h.engine != nil {
		stopped = h.engine.Stopped()
	}

	lastTrade := ""
	if !stats.LastTradeAt.IsZero() {
		lastTrade = stats.LastTradeAt.UTC().Format(time.RFC3339)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"mode":            h.mode,
		"chain_id":        h.chainID,
		"trading_enabled": h.runtime.TradingEnabled(),
		"emergency_stop":  stopped,
		"uptime_seconds":  int64(time.Since(h.started).Seconds()),
		"ledger": map[string]any{
			"day":           stats.Day.Format("2006-01-02"),
			"daily_trades":  stats.DailyTrades,
			"daily_volume":  amountText(stats.DailyVolume),
			"active_trades": stats.ActiveTrades,
			"last_trade_at": lastTrade,
		},
	})
}
