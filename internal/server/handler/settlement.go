package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
)

// SettlementService defines the methods the settlement handler requires from
// the service layer.
type SettlementService interface {
	Claim(ctx context.Context, poolID, participant string) (int64, error)
	Refund(ctx context.Context, poolID, participant, option string) (int64, error)
}

// SettlementHandler serves claim and refund HTTP endpoints.
type SettlementHandler struct {
	settlements SettlementService
	logger      *slog.Logger
}

// NewSettlementHandler creates a SettlementHandler with the given service
// and logger.
func NewSettlementHandler(settlements SettlementService, logger *slog.Logger) *SettlementHandler {
	return &SettlementHandler{
		settlements: settlements,
		logger:      logger,
	}
}

// settlementRequest is the JSON body for claims and refunds. Option is only
// used by refunds.
type settlementRequest struct {
	Participant string `json:"participant"`
	Option      string `json:"option"`
}

// Claim settles a winner's stake on a resolved pool and reports the payout.
// POST /api/pools/{id}/claims
func (h *SettlementHandler) Claim(w http.ResponseWriter, r *http.Request) {
	poolID := pathParam(r, "id")
	var req settlementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	participant, err := callerIdentity(r, req.Participant)
	if err != nil {
		writeError(w, http.StatusForbidden, "caller does not match participant")
		return
	}
	if participant == "" {
		writeError(w, http.StatusBadRequest, "participant is required")
		return
	}

	payout, err := h.settlements.Claim(r.Context(), poolID, participant)
	if err != nil {
		if isInternal(err) {
			h.logger.ErrorContext(r.Context(), "handler: claim failed",
				slog.String("pool_id", poolID),
				slog.String("participant", participant),
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err, "failed to claim")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"pool_id":     poolID,
		"participant": participant,
		"payout":      payout,
	})
}

// Refund settles a stake at its original amount on a cancelled pool, or on a
// resolved pool whose winning option received no stakes.
// POST /api/pools/{id}/refunds
func (h *SettlementHandler) Refund(w http.ResponseWriter, r *http.Request) {
	poolID := pathParam(r, "id")
	var req settlementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	participant, err := callerIdentity(r, req.Participant)
	if err != nil {
		writeError(w, http.StatusForbidden, "caller does not match participant")
		return
	}
	if participant == "" || req.Option == "" {
		writeError(w, http.StatusBadRequest, "participant and option are required")
		return
	}

	amount, err := h.settlements.Refund(r.Context(), poolID, participant, req.Option)
	if err != nil {
		if isInternal(err) {
			h.logger.ErrorContext(r.Context(), "handler: refund failed",
				slog.String("pool_id", poolID),
				slog.String("participant", participant),
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err, "failed to refund")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"pool_id":     poolID,
		"participant": participant,
		"option":      req.Option,
		"amount":      amount,
	})
}
