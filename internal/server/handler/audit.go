package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"marginguard/internal/domain"
)

// AuditHandler serves the guardian event history and the on-demand archive
// operation.
type AuditHandler struct {
	audit         domain.AuditStore // may be nil
	archiver      domain.Archiver   // may be nil
	retentionDays int               // default archive cutoff when the request names none
	logger        *slog.Logger
}

// NewAuditHandler creates an AuditHandler. Either dependency may be nil when
// the corresponding backend is not configured.
func NewAuditHandler(audit domain.AuditStore, archiver domain.Archiver, retentionDays int, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{
		audit:         audit,
		archiver:      archiver,
		retentionDays: retentionDays,
		logger:        logger,
	}
}

// listAuditResponse wraps the audit entry list.
type listAuditResponse struct {
	Entries []domain.AuditEntry `json:"entries"`
}

// ListAudit returns guardian audit entries, newest first.
// GET /api/audit?limit=50&offset=0
func (h *AuditHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		writeError(w, http.StatusNotImplemented, "audit log is not configured")
		return
	}

	entries, err := h.audit.List(r.Context(), parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list audit failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list audit entries")
		return
	}

	if entries == nil {
		entries = []domain.AuditEntry{}
	}

	writeJSON(w, http.StatusOK, listAuditResponse{Entries: entries})
}

// archiveRequest names the cutoff for an archive run. An empty body (or an
// empty before) falls back to the configured retention window.
type archiveRequest struct {
	Before string `json:"before"` // RFC3339
}

// Archive moves rebalances and audit entries older than the cutoff to cold
// storage. There is no scheduler; operators run this when they choose.
// POST /api/archive
func (h *AuditHandler) Archive(w http.ResponseWriter, r *http.Request) {
	if h.archiver == nil {
		writeError(w, http.StatusNotImplemented, "archival is not configured")
		return
	}

	var req archiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	var before time.Time
	switch {
	case req.Before != "":
		var err error
		before, err = time.Parse(time.RFC3339, req.Before)
		if err != nil {
			writeError(w, http.StatusBadRequest, "before must be an RFC3339 timestamp")
			return
		}
		if !before.Before(time.Now()) {
			writeError(w, http.StatusBadRequest, "before must be in the past")
			return
		}
	case h.retentionDays > 0:
		before = time.Now().UTC().AddDate(0, 0, -h.retentionDays)
	default:
		writeError(w, http.StatusBadRequest, "before is required when no retention window is configured")
		return
	}

	rebalances, err := h.archiver.ArchiveRebalances(r.Context(), before)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: archive rebalances failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to archive rebalances")
		return
	}

	auditEntries, err := h.archiver.ArchiveAuditLog(r.Context(), before)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: archive audit log failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to archive audit log")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "archived",
		"before":     before.Format(time.RFC3339),
		"rebalances": rebalances,
		"audit":      auditEntries,
	})
}
