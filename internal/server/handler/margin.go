package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"marginguard/internal/domain"
	"marginguard/internal/monitor"
)

// snapshotTTL bounds how long a cached margin snapshot may be served before
// the chain is read again.
const snapshotTTL = 10 * time.Second

// MarginService defines the methods the margin handler requires.
type MarginService interface {
	Refresh(ctx context.Context) (monitor.Snapshot, error)
}

// MarginHandler serves the current margin of the watched position.
type MarginHandler struct {
	margins MarginService
	cache   domain.MarginCache // may be nil
	account domain.Account
	logger  *slog.Logger
}

// NewMarginHandler creates a MarginHandler. cache may be nil, in which case
// every request reads the chain.
func NewMarginHandler(margins MarginService, cache domain.MarginCache, account domain.Account, logger *slog.Logger) *MarginHandler {
	return &MarginHandler{
		margins: margins,
		cache:   cache,
		account: account,
		logger:  logger,
	}
}

// GetMargin returns the current margin snapshot for the watched account,
// served from the cache when a recent snapshot exists.
// GET /api/margin
func (h *MarginHandler) GetMargin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.cache != nil {
		if payload, ok, err := h.cache.GetSnapshot(ctx, h.account); err == nil && ok {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(http.StatusOK)
			w.Write(payload)
			return
		}
	}

	snap, err := h.margins.Refresh(ctx)
	if err != nil {
		// A position with no borrow has no defined margin; the snapshot
		// still carries a meaningful status.
		if errors.Is(err, domain.ErrNoBorrowValue) {
			writeJSON(w, http.StatusOK, snap)
			return
		}
		h.logger.ErrorContext(ctx, "handler: refresh margin failed",
			slog.String("account", h.account.String()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "failed to read position values")
		return
	}

	if h.cache != nil {
		if payload, err := json.Marshal(snap); err == nil {
			if err := h.cache.SetSnapshot(ctx, h.account, payload, snapshotTTL); err != nil {
				h.logger.WarnContext(ctx, "handler: cache snapshot failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}

	writeJSON(w, http.StatusOK, snap)
}
