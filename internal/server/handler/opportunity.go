package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/jmcalloway/dexarb/internal/domain"
)

// OpportunityHandler serves detected opportunities from the store.
type OpportunityHandler struct {
	store  domain.OpportunityStore
	logger *slog.Logger
}

// NewOpportunityHandler creates an OpportunityHandler.
func NewOpportunityHandler(store domain.OpportunityStore, logger *slog.Logger) *OpportunityHandler {
	return &OpportunityHandler{store: store, logger: logHandler(logger, "opportunities")}
}

// opportunityView is the API rendering of one opportunity. Amounts are
// base-10 strings in the asset's smallest units.
type opportunityView struct {
	ID           string    `json:"id"`
	Pair         string    `json:"pair"`
	BuyVenue     string    `json:"buy_venue"`
	SellVenue    string    `json:"sell_venue"`
	ProfitBps    int64     `json:"profit_bps"`
	ProfitAmount string    `json:"profit_amount"`
	ProbeAmount  string    `json:"probe_amount"`
	Legs         []legView `json:"legs"`
	GasEstimate  uint64    `json:"gas_estimate"`
	Confidence   float64   `json:"confidence"`
	DetectedAt   time.Time `json:"detected_at"`
	Prediction   *predView `json:"prediction,omitempty"`
}

type legView struct {
	Venue        string `json:"venue"`
	AssetIn      string `json:"asset_in"`
	AssetOut     string `json:"asset_out"`
	AmountIn     string `json:"amount_in"`
	MinAmountOut string `json:"min_amount_out"`
}

type predView struct {
	Confidence           float64 `json:"confidence"`
	RiskScore            float64 `json:"risk_score"`
	ExecutionProbability float64 `json:"execution_probability"`
}

func viewOpportunity(opp domain.Opportunity) opportunityView {
	legs := make([]legView, len(opp.Legs))
	for i, leg := range opp.Legs {
		legs[i] = legView{
			Venue:        leg.Venue,
			AssetIn:      leg.AssetIn.Symbol,
			AssetOut:     leg.AssetOut.Symbol,
			AmountIn:     amountText(leg.AmountIn),
			MinAmountOut: amountText(leg.MinAmountOut),
		}
	}
	view := opportunityView{
		ID:           opp.ID,
		Pair:         opp.AssetA.Symbol + "/" + opp.AssetB.Symbol,
		BuyVenue:     opp.BuyPool.Venue,
		SellVenue:    opp.SellPool.Venue,
		ProfitBps:    opp.ProfitBps,
		ProfitAmount: amountText(opp.ProfitAmount),
		ProbeAmount:  amountText(opp.ProbeAmount),
		Legs:         legs,
		GasEstimate:  opp.GasEstimate,
		Confidence:   opp.Confidence,
		DetectedAt:   opp.DetectedAt,
	}
	if opp.Prediction != nil {
		view.Prediction = &predView{
			Confidence:           opp.Prediction.Confidence,
			RiskScore:            opp.Prediction.RiskScore,
			ExecutionProbability: opp.Prediction.ExecutionProbability,
		}
	}
	return view
}

// ListRecent responds with the most recently detected opportunities.
// GET /api/opportunities?limit=50
func (h *OpportunityHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	opps, err := h.store.ListRecent(r.Context(), parseLimit(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list opportunities failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "failed to list opportunities")
		return
	}

	views := make([]opportunityView, len(opps))
	for i, opp := range opps {
		views[i] = viewOpportunity(opp)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"opportunities": views,
		"count":         len(views),
	})
}

// Get responds with one opportunity by ID.
// GET /api/opportunities/{id}
func (h *OpportunityHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	opp, err := h.store.GetByID(r.Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "opportunity not found")
		return
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "get opportunity failed",
			slog.String("id", id), slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "failed to get opportunity")
		return
	}
	writeJSON(w, http.StatusOK, viewOpportunity(opp))
}
