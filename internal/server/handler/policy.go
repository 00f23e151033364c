package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"marginguard/internal/domain"
)

// PolicyService defines the guardian methods the policy handler requires.
// The guardian itself enforces ownership; the handler supplies the operator
// identity the deployment is configured with.
type PolicyService interface {
	Owner() common.Address
	ThresholdBps() int64
	SetThreshold(ctx context.Context, caller common.Address, newThresholdBps int64) error
	TransferOwnership(ctx context.Context, caller, newOwner common.Address) error
}

// PolicyHandler serves the safety policy endpoints. Mutations act on behalf
// of the configured operator address, never an address claimed in the
// request body.
type PolicyHandler struct {
	policy   PolicyService
	operator common.Address
	logger   *slog.Logger
}

// NewPolicyHandler creates a PolicyHandler. The operator address is the
// principal every mutation is attributed to; a zero address disables
// mutations entirely.
func NewPolicyHandler(policy PolicyService, operator common.Address, logger *slog.Logger) *PolicyHandler {
	return &PolicyHandler{
		policy:   policy,
		operator: operator,
		logger:   logger,
	}
}

// GetPolicy returns the current owner and threshold.
// GET /api/policy
func (h *PolicyHandler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"owner":         h.policy.Owner().Hex(),
		"threshold_bps": h.policy.ThresholdBps(),
	})
}

// updateThresholdRequest is the body for threshold updates.
type updateThresholdRequest struct {
	ThresholdBps int64 `json:"threshold_bps"`
}

// UpdateThreshold sets a new rebalance threshold on behalf of the configured
// operator. Only the owner address may do this; anyone else gets 403 and the
// policy is unchanged.
// PUT /api/policy/threshold
func (h *PolicyHandler) UpdateThreshold(w http.ResponseWriter, r *http.Request) {
	if h.operator == (common.Address{}) {
		writeError(w, http.StatusForbidden, "no operator address configured")
		return
	}

	var req updateThresholdRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	err := h.policy.SetThreshold(r.Context(), h.operator, req.ThresholdBps)
	switch {
	case errors.Is(err, domain.ErrNotOwner):
		writeError(w, http.StatusForbidden, "operator is not the policy owner")
		return
	case errors.Is(err, domain.ErrInvalidThreshold):
		writeError(w, http.StatusBadRequest, "threshold must be between 0 and 10000 basis points")
		return
	case err != nil:
		h.logger.ErrorContext(r.Context(), "handler: update threshold failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to update threshold")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "updated",
		"threshold_bps": req.ThresholdBps,
	})
}

// transferOwnershipRequest is the body for ownership transfers.
type transferOwnershipRequest struct {
	NewOwner string `json:"new_owner"`
}

// TransferOwnership hands the policy to a new owner address on behalf of the
// configured operator.
// POST /api/policy/transfer
func (h *PolicyHandler) TransferOwnership(w http.ResponseWriter, r *http.Request) {
	if h.operator == (common.Address{}) {
		writeError(w, http.StatusForbidden, "no operator address configured")
		return
	}

	var req transferOwnershipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if !common.IsHexAddress(req.NewOwner) {
		writeError(w, http.StatusBadRequest, "new_owner is not a valid address")
		return
	}

	err := h.policy.TransferOwnership(r.Context(), h.operator, common.HexToAddress(req.NewOwner))
	switch {
	case errors.Is(err, domain.ErrNotOwner):
		writeError(w, http.StatusForbidden, "operator is not the policy owner")
		return
	case errors.Is(err, domain.ErrInvalidReference):
		writeError(w, http.StatusBadRequest, "new_owner must not be the zero address")
		return
	case err != nil:
		h.logger.ErrorContext(r.Context(), "handler: transfer ownership failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to transfer ownership")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "transferred",
		"owner":  common.HexToAddress(req.NewOwner).Hex(),
	})
}
