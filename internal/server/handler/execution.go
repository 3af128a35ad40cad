package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/jmcalloway/dexarb/internal/domain"
)

// ExecutionHandler serves execution results from the store.
type ExecutionHandler struct {
	store  domain.ExecutionStore
	logger *slog.Logger
}

// NewExecutionHandler creates an ExecutionHandler.
func NewExecutionHandler(store domain.ExecutionStore, logger *slog.Logger) *ExecutionHandler {
	return &ExecutionHandler{store: store, logger: logHandler(logger, "executions")}
}

type executionView struct {
	ID            string    `json:"id"`
	OpportunityID string    `json:"opportunity_id"`
	Success       bool      `json:"success"`
	State         string    `json:"state"`
	TxHashes      []string  `json:"tx_hashes"`
	Profit        string    `json:"profit"`
	GasUsed       uint64    `json:"gas_used"`
	DurationMs    int64     `json:"duration_ms"`
	Error         string    `json:"error,omitempty"`
	StartedAt     time.Time `json:"started_at"`
}

func viewExecution(res domain.ExecutionResult) executionView {
	hashes := res.TxHashes
	if hashes == nil {
		hashes = []string{}
	}
	return executionView{
		ID:            res.ID,
		OpportunityID: res.OpportunityID,
		Success:       res.Success,
		State:         string(res.State),
		TxHashes:      hashes,
		Profit:        amountText(res.Profit),
		GasUsed:       res.GasUsed,
		DurationMs:    res.Duration.Milliseconds(),
		Error:         res.Error,
		StartedAt:     res.StartedAt,
	}
}

// ListRecent responds with the most recent execution results.
// GET /api/executions?limit=50
func (h *ExecutionHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	results, err := h.store.ListRecent(r.Context(), parseLimit(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list executions failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "failed to list executions")
		return
	}

	views := make([]executionView, len(results))
	for i, res := range results {
		views[i] = viewExecution(res)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"executions": views,
		"count":      len(views),
	})
}

// Get responds with one execution result by ID.
// GET /api/executions/{id}
func (h *ExecutionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	res, err := h.store.GetByID(r.Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "execution not found")
		return
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "get execution failed",
			slog.String("id", id), slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "failed to get execution")
		return
	}
	writeJSON(w, http.StatusOK, viewExecution(res))
}
