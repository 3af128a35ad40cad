package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/jmcalloway/dexarb/internal/config"
	"github.com/jmcalloway/dexarb/internal/domain"
	"github.com/jmcalloway/dexarb/internal/risk"
)

// RiskHandler exposes the risk gate's tunable limits and blacklists.
type RiskHandler struct {
	runtime *config.Runtime
	gate    *risk.Gate
	audit   domain.BlacklistAuditStore
	logger  *slog.Logger
}

// NewRiskHandler creates a RiskHandler. audit may be nil.
func NewRiskHandler(runtime *config.Runtime, gate *risk.Gate, audit domain.BlacklistAuditStore, logger *slog.Logger) *RiskHandler {
	return &RiskHandler{
		runtime: runtime,
		gate:    gate,
		audit:   audit,
		logger:  logHandler(logger, "risk"),
	}
}

// riskLimitsView is the API rendering of the live risk limits. Durations are
// Go duration strings ("30s", "2m").
type riskLimitsView struct {
	MinProfitBps          int64   `json:"min_profit_bps"`
	MaxSlippageBps        int64   `json:"max_slippage_bps"`
	MinSlippageBps        int64   `json:"min_slippage_bps"`
	MaxPositionTokens     float64 `json:"max_position_tokens"`
	DailyVolumeTokens     float64 `json:"daily_volume_tokens"`
	DailyTradeCap         int     `json:"daily_trade_cap"`
	ConcurrentTradeCap    int     `json:"concurrent_trade_cap"`
	Cooldown              string  `json:"cooldown"`
	LowLiquidityTokens    float64 `json:"low_liquidity_tokens"`
	ProfitSafetyFloorBps  int64   `json:"profit_safety_floor_bps"`
	ProfitSuspicionBps    int64   `json:"profit_suspicion_bps"`
	FreshFor              string  `json:"fresh_for"`
	StaleAfter            string  `json:"stale_after"`
	AIConfidenceThreshold float64 `json:"ai_confidence_threshold"`
}

func viewLimits(limits config.RiskConfig) riskLimitsView {
	return riskLimitsView{
		MinProfitBps:          limits.MinProfitBps,
		MaxSlippageBps:        limits.MaxSlippageBps,
		MinSlippageBps:        limits.MinSlippageBps,
		MaxPositionTokens:     limits.MaxPositionTokens,
		DailyVolumeTokens:     limits.DailyVolumeTokens,
		DailyTradeCap:         limits.DailyTradeCap,
		ConcurrentTradeCap:    limits.ConcurrentTradeCap,
		Cooldown:              limits.Cooldown.String(),
		LowLiquidityTokens:    limits.LowLiquidityTokens,
		ProfitSafetyFloorBps:  limits.ProfitSafetyFloorBps,
		ProfitSuspicionBps:    limits.ProfitSuspicionBps,
		FreshFor:              limits.FreshFor.String(),
		StaleAfter:            limits.StaleAfter.String(),
		AIConfidenceThreshold: limits.AIConfidenceThreshold,
	}
}

// riskLimitsPatch carries a partial update: only present fields change.
type riskLimitsPatch struct {
	MinProfitBps          *int64   `json:"min_profit_bps"`
	MaxSlippageBps        *int64   `json:"max_slippage_bps"`
	MinSlippageBps        *int64   `json:"min_slippage_bps"`
	MaxPositionTokens     *float64 `json:"max_position_tokens"`
	DailyVolumeTokens     *float64 `json:"daily_volume_tokens"`
	DailyTradeCap         *int     `json:"daily_trade_cap"`
	ConcurrentTradeCap    *int     `json:"concurrent_trade_cap"`
	Cooldown              *string  `json:"cooldown"`
	LowLiquidityTokens    *float64 `json:"low_liquidity_tokens"`
	ProfitSafetyFloorBps  *int64   `json:"profit_safety_floor_bps"`
	ProfitSuspicionBps    *int64   `json:"profit_suspicion_bps"`
	FreshFor              *string  `json:"fresh_for"`
	StaleAfter            *string  `json:"stale_after"`
	AIConfidenceThreshold *float64 `json:"ai_confidence_threshold"`
}

// GetLimits responds with the live risk limits.
// GET /api/risk/limits
func (h *RiskHandler) GetLimits(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, viewLimits(h.runtime.Risk()))
}

// UpdateLimits applies a partial update to the live risk limits. Changes
// take effect on the next assessment; no restart is needed.
// PATCH /api/risk/limits
func (h *RiskHandler) UpdateLimits(w http.ResponseWriter, r *http.Request) {
	var patch riskLimitsPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	limits := h.runtime.Risk()
	if patch.MinProfitBps != nil {
		limits.MinProfitBps = *patch.MinProfitBps
	}
	if patch.MaxSlippageBps != nil {
		limits.MaxSlippageBps = *patch.MaxSlippageBps
	}
	if patch.MinSlippageBps != nil {
		limits.MinSlippageBps = *patch.MinSlippageBps
	}
	if patch.MaxPositionTokens != nil {
		limits.MaxPositionTokens = *patch.MaxPositionTokens
	}
	if patch.DailyVolumeTokens != nil {
		limits.DailyVolumeTokens = *patch.DailyVolumeTokens
	}
	if patch.DailyTradeCap != nil {
		limits.DailyTradeCap = *patch.DailyTradeCap
	}
	if patch.ConcurrentTradeCap != nil {
		limits.ConcurrentTradeCap = *patch.ConcurrentTradeCap
	}
	if patch.LowLiquidityTokens != nil {
		limits.LowLiquidityTokens = *patch.LowLiquidityTokens
	}
	if patch.ProfitSafetyFloorBps != nil {
		limits.ProfitSafetyFloorBps = *patch.ProfitSafetyFloorBps
	}
	if patch.ProfitSuspicionBps != nil {
		limits.ProfitSuspicionBps = *patch.ProfitSuspicionBps
	}
	if patch.AIConfidenceThreshold != nil {
		limits.AIConfidenceThreshold = *patch.AIConfidenceThreshold
	}
	for _, d := range []struct {
		raw *string
		dst *time.Duration
	}{
		{patch.Cooldown, &limits.Cooldown.Duration},
		{patch.FreshFor, &limits.FreshFor.Duration},
		{patch.StaleAfter, &limits.StaleAfter.Duration},
	} {
		if d.raw == nil {
			continue
		}
		parsed, err := time.ParseDuration(*d.raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid duration: "+*d.raw)
			return
		}
		*d.dst = parsed
	}

	if err := validateLimits(limits); err != "" {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	h.runtime.UpdateRisk(limits)
	h.logger.InfoContext(r.Context(), "risk limits updated")
	writeJSON(w, http.StatusOK, viewLimits(limits))
}

// validateLimits rejects updates that would wedge the gate.
func validateLimits(limits config.RiskConfig) string {
	switch {
	case limits.MinProfitBps < 0:
		return "min_profit_bps must be >= 0"
	case limits.MinSlippageBps <= 0:
		return "min_slippage_bps must be > 0"
	case limits.MaxSlippageBps < limits.MinSlippageBps:
		return "max_slippage_bps must be >= min_slippage_bps"
	case limits.MaxPositionTokens <= 0:
		return "max_position_tokens must be > 0"
	case limits.DailyTradeCap <= 0:
		return "daily_trade_cap must be > 0"
	case limits.ConcurrentTradeCap <= 0:
		return "concurrent_trade_cap must be > 0"
	}
	return ""
}

// blacklistRequest is the body for blacklist mutations.
type blacklistRequest struct {
	Address string `json:"address,omitempty"` // asset mutations
	Venue   string `json:"venue,omitempty"`   // venue mutations
	Reason  string `json:"reason"`
}

// GetBlacklist responds with the current asset and venue blacklists.
// GET /api/risk/blacklist
func (h *RiskHandler) GetBlacklist(w http.ResponseWriter, r *http.Request) {
	ledger := h.gate.Ledger()

	assets := map[string]string{}
	for addr, reason := range ledger.BlacklistedAssets() {
		assets[addr.Hex()] = reason
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"assets": assets,
		"venues": ledger.BlacklistedVenues(),
	})
}

// AddAsset blacklists an asset address.
// POST /api/risk/blacklist/assets
func (h *RiskHandler) AddAsset(w http.ResponseWriter, r *http.Request) {
	var req blacklistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if !common.IsHexAddress(req.Address) {
		writeError(w, http.StatusBadRequest, "invalid asset address")
		return
	}

	h.gate.AddAssetToBlacklist(r.Context(), common.HexToAddress(req.Address), req.Reason)
	writeJSON(w, http.StatusOK, map[string]string{"status": "blacklisted"})
}

// RemoveAsset removes an asset address from the blacklist.
// DELETE /api/risk/blacklist/assets/{address}
func (h *RiskHandler) RemoveAsset(w http.ResponseWriter, r *http.Request) {
	raw := pathParam(r, "address")
	if !common.IsHexAddress(raw) {
		writeError(w, http.StatusBadRequest, "invalid asset address")
		return
	}

	h.gate.RemoveAssetFromBlacklist(r.Context(), common.HexToAddress(raw), r.URL.Query().Get("reason"))
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

// AddVenue blacklists a venue by name.
// POST /api/risk/blacklist/venues
func (h *RiskHandler) AddVenue(w http.ResponseWriter, r *http.Request) {
	var req blacklistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Venue == "" {
		writeError(w, http.StatusBadRequest, "venue is required")
		return
	}

	h.gate.AddVenueToBlacklist(r.Context(), req.Venue, req.Reason)
	writeJSON(w, http.StatusOK, map[string]string{"status": "blacklisted"})
}

// RemoveVenue removes a venue from the blacklist.
// DELETE /api/risk/blacklist/venues/{name}
func (h *RiskHandler) RemoveVenue(w http.ResponseWriter, r *http.Request) {
	name := pathParam(r, "name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "venue is required")
		return
	}

	h.gate.RemoveVenueFromBlacklist(r.Context(), name, r.URL.Query().Get("reason"))
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

// ListAudit responds with recent blacklist mutations, newest first.
// GET /api/risk/blacklist/audit
func (h *RiskHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		writeJSON(w, http.StatusOK, map[string]any{"actions": []any{}})
		return
	}

	actions, err := h.audit.List(r.Context(), parseLimit(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list blacklist audit failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "failed to list blacklist audit")
		return
	}

	type actionView struct {
		Kind      string    `json:"kind"`
		Value     string    `json:"value"`
		Added     bool      `json:"added"`
		Reason    string    `json:"reason"`
		Timestamp time.Time `json:"timestamp"`
	}
	views := make([]actionView, len(actions))
	for i, a := range actions {
		views[i] = actionView{Kind: a.Kind, Value: a.Value, Added: a.Added, Reason: a.Reason, Timestamp: a.Timestamp}
	}
	writeJSON(w, http.StatusOK, map[string]any{"actions": views})
}
