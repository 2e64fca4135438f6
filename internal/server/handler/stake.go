package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/resolvd/resolvd/internal/domain"
)

// StakeService defines the methods the stake handler requires from the
// service layer.
type StakeService interface {
	Stake(ctx context.Context, poolID, participant, option string, amount int64) (int64, error)
	Withdraw(ctx context.Context, poolID, participant, option string, amount int64) (int64, error)
	ListStakes(ctx context.Context, poolID string) ([]domain.Stake, error)
	ListParticipantStakes(ctx context.Context, poolID, participant string) ([]domain.Stake, error)
}

// StakeHandler serves staking HTTP endpoints.
type StakeHandler struct {
	stakes StakeService
	logger *slog.Logger
}

// NewStakeHandler creates a StakeHandler with the given service and logger.
func NewStakeHandler(stakes StakeService, logger *slog.Logger) *StakeHandler {
	return &StakeHandler{
		stakes: stakes,
		logger: logger,
	}
}

// stakeRequest is the JSON body for placing or withdrawing a stake.
type stakeRequest struct {
	Participant string `json:"participant"`
	Option      string `json:"option"`
	Amount      int64  `json:"amount"`
}

// PlaceStake records a stake on an open pool.
// POST /api/pools/{id}/stakes
func (h *StakeHandler) PlaceStake(w http.ResponseWriter, r *http.Request) {
	poolID := pathParam(r, "id")
	var req stakeRequest
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

	cumulative, err := h.stakes.Stake(r.Context(), poolID, participant, req.Option, req.Amount)
	if err != nil {
		if isInternal(err) {
			h.logger.ErrorContext(r.Context(), "handler: place stake failed",
				slog.String("pool_id", poolID),
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err, "failed to place stake")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"pool_id":     poolID,
		"participant": participant,
		"option":      req.Option,
		"cumulative":  cumulative,
	})
}

// WithdrawStake reduces a stake while the pool is still open.
// POST /api/pools/{id}/stakes/withdraw
func (h *StakeHandler) WithdrawStake(w http.ResponseWriter, r *http.Request) {
	poolID := pathParam(r, "id")
	var req stakeRequest
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

	remaining, err := h.stakes.Withdraw(r.Context(), poolID, participant, req.Option, req.Amount)
	if err != nil {
		if isInternal(err) {
			h.logger.ErrorContext(r.Context(), "handler: withdraw stake failed",
				slog.String("pool_id", poolID),
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err, "failed to withdraw stake")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"pool_id":     poolID,
		"participant": participant,
		"option":      req.Option,
		"remaining":   remaining,
	})
}

// ListStakes returns a pool's stakes, optionally filtered to one participant.
// GET /api/pools/{id}/stakes?participant=alice
func (h *StakeHandler) ListStakes(w http.ResponseWriter, r *http.Request) {
	poolID := pathParam(r, "id")
	participant := r.URL.Query().Get("participant")

	var stakes []domain.Stake
	var err error
	if participant != "" {
		stakes, err = h.stakes.ListParticipantStakes(r.Context(), poolID, participant)
	} else {
		stakes, err = h.stakes.ListStakes(r.Context(), poolID)
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list stakes failed",
			slog.String("pool_id", poolID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list stakes")
		return
	}
	if stakes == nil {
		stakes = []domain.Stake{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"stakes": stakes})
}
