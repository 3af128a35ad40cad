package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/jmcalloway/dexarb/internal/config"
)

// ControlHandler exposes the operator controls: the emergency stop and the
// trading enable flag.
type ControlHandler struct {
	runtime  *config.Runtime
	engine   EngineControl
	reporter func(stopped bool, reason string)
	logger   *slog.Logger
}

// NewControlHandler creates a ControlHandler. reporter may be nil.
func NewControlHandler(runtime *config.Runtime, engine EngineControl, reporter func(stopped bool, reason string), logger *slog.Logger) *ControlHandler {
	return &ControlHandler{
		runtime:  runtime,
		engine:   engine,
		reporter: reporter,
		logger:   logHandler(logger, "control"),
	}
}

type controlRequest struct {
	Reason string `json:"reason"`
}

// Stop engages the emergency stop: in-flight executions finish, nothing new
// starts until Resume.
// POST /api/control/stop
func (h *ControlHandler) Stop(w http.ResponseWriter, r *http.Request) {
	if h.engine == nil {
		writeError(w, http.StatusConflict, "no execution engine in this mode")
		return
	}

	var req controlRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	h.engine.Stop()
	h.logger.WarnContext(r.Context(), "emergency stop engaged", slog.String("reason", req.Reason))
	if h.reporter != nil {
		h.reporter(true, req.Reason)
	}
	writeJSON(w, http.StatusOK, map[string]any{"emergency_stop": true})
}

// Resume releases the emergency stop.
// POST /api/control/resume
func (h *ControlHandler) Resume(w http.ResponseWriter, r *http.Request) {
	if h.engine == nil {
		writeError(w, http.StatusConflict, "no execution engine in this mode")
		return
	}

	var req controlRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	h.engine.Resume()
	h.logger.InfoContext(r.Context(), "emergency stop released", slog.String("reason", req.Reason))
	if h.reporter != nil {
		h.reporter(false, req.Reason)
	}
	writeJSON(w, http.StatusOK, map[string]any{"emergency_stop": false})
}

// SetTrading flips the trading enable flag. Distinct from the emergency
// stop: disabled trading still assesses and records opportunities.
// POST /api/control/trading
func (h *ControlHandler) SetTrading(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
		writeError(w, http.StatusBadRequest, "body must carry {\"enabled\": true|false}")
		return
	}

	h.runtime.SetTradingEnabled(*req.Enabled)
	h.logger.InfoContext(r.Context(), "trading flag changed", slog.Bool("enabled", *req.Enabled))
	writeJSON(w, http.StatusOK, map[string]any{"trading_enabled": *req.Enabled})
}
