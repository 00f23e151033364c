package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"marginguard/internal/domain"
)

// TriggerService defines the monitor methods the rebalance handler requires.
// Amounts arrive in human units; the service scales them per asset.
type TriggerService interface {
	SubmitTrigger(ctx context.Context, amountIn, minOut string) (domain.RebalanceRecord, error)
}

// RebalanceHandler serves the trigger endpoint and the rebalance history.
type RebalanceHandler struct {
	triggers TriggerService
	records  domain.RebalanceStore // may be nil when no database is wired
	logger   *slog.Logger
}

// NewRebalanceHandler creates a RebalanceHandler with the given services.
func NewRebalanceHandler(triggers TriggerService, records domain.RebalanceStore, logger *slog.Logger) *RebalanceHandler {
	return &RebalanceHandler{
		triggers: triggers,
		records:  records,
		logger:   logger,
	}
}

// triggerRequest is the body for corrective-swap submissions. Amounts are
// human-readable decimal strings, e.g. "1000.50" of the input asset.
type triggerRequest struct {
	AmountIn string `json:"amount_in"`
	MinOut   string `json:"min_out"`
}

// triggerResponse echoes the stored record of an executed rebalance.
type triggerResponse struct {
	Record domain.RebalanceRecord `json:"record"`
}

// Trigger submits a corrective swap. The guardian decides whether the
// position is actually breached; a healthy margin is a 409, not a failure.
// POST /api/rebalance
func (h *RebalanceHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.AmountIn == "" || req.MinOut == "" {
		writeError(w, http.StatusBadRequest, "amount_in and min_out are required")
		return
	}

	rec, err := h.triggers.SubmitTrigger(r.Context(), req.AmountIn, req.MinOut)
	if err != nil {
		h.writeTriggerError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, triggerResponse{Record: rec})
}

// writeTriggerError maps trigger failures onto HTTP statuses.
func (h *RebalanceHandler) writeTriggerError(w http.ResponseWriter, r *http.Request, err error) {
	var notBreached *domain.PolicyNotBreachedError
	switch {
	case errors.As(err, &notBreached):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":         "margin is above the threshold",
			"margin_bps":    notBreached.MarginBps.String(),
			"threshold_bps": notBreached.ThresholdBps,
		})
	case errors.Is(err, domain.ErrNoBorrowValue):
		writeError(w, http.StatusConflict, "position has no outstanding borrow")
	case errors.Is(err, domain.ErrChainMismatch):
		writeError(w, http.StatusBadGateway, "connected endpoint serves a different network")
	case errors.Is(err, domain.ErrLockHeld):
		writeError(w, http.StatusConflict, "another trigger for this account is in flight")
	case errors.Is(err, domain.ErrZeroAmount), errors.Is(err, domain.ErrInvalidReference):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.ErrorContext(r.Context(), "handler: trigger failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "corrective swap failed")
	}
}

// listRebalancesResponse wraps the rebalance history.
type listRebalancesResponse struct {
	Rebalances []domain.RebalanceRecord `json:"rebalances"`
}

// ListRebalances returns the stored rebalance history, newest first.
// GET /api/rebalances?owner=0x...&limit=50&offset=0
func (h *RebalanceHandler) ListRebalances(w http.ResponseWriter, r *http.Request) {
	if h.records == nil {
		writeError(w, http.StatusNotImplemented, "rebalance history is not configured")
		return
	}

	opts := parseListOpts(r)

	var (
		recs []domain.RebalanceRecord
		err  error
	)
	if owner := r.URL.Query().Get("owner"); owner != "" {
		recs, err = h.records.ListByAccount(r.Context(), owner, opts)
	} else {
		recs, err = h.records.ListRecent(r.Context(), opts.Limit)
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list rebalances failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list rebalances")
		return
	}

	if recs == nil {
		recs = []domain.RebalanceRecord{}
	}

	writeJSON(w, http.StatusOK, listRebalancesResponse{Rebalances: recs})
}

// GetRebalance returns a single rebalance record by ID.
// GET /api/rebalances/{id}
func (h *RebalanceHandler) GetRebalance(w http.ResponseWriter, r *http.Request) {
	if h.records == nil {
		writeError(w, http.StatusNotImplemented, "rebalance history is not configured")
		return
	}

	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "id path parameter required")
		return
	}

	rec, err := h.records.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "rebalance not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get rebalance failed",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get rebalance")
		return
	}

	writeJSON(w, http.StatusOK, rec)
}
