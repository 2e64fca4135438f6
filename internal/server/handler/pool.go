package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/resolvd/resolvd/internal/domain"
	"github.com/resolvd/resolvd/internal/service"
)

// PoolService defines the methods the pool handler requires from the
// service layer. It is declared locally so the handler package does not
// depend on the concrete service implementation.
type PoolService interface {
	CreatePool(ctx context.Context, in service.CreatePoolInput) (domain.Pool, error)
	Summary(ctx context.Context, id string) (service.PoolSummary, error)
	ListPools(ctx context.Context, opts domain.ListOpts) ([]domain.Pool, error)
	CountPools(ctx context.Context) (int64, error)
	Lock(ctx context.Context, poolID, actor string) error
	Resolve(ctx context.Context, poolID, actor, hint string) (string, error)
	Cancel(ctx context.Context, poolID, actor string) error
	ListAudit(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error)
}

// PoolHandler serves pool lifecycle HTTP endpoints.
type PoolHandler struct {
	pools  PoolService
	logger *slog.Logger
}

// NewPoolHandler creates a PoolHandler with the given service and logger.
func NewPoolHandler(pools PoolService, logger *slog.Logger) *PoolHandler {
	return &PoolHandler{
		pools:  pools,
		logger: logger,
	}
}

// createPoolRequest is the JSON body for pool creation.
type createPoolRequest struct {
	Question         string    `json:"question"`
	Options          []string  `json:"options"`
	Policy           string    `json:"policy"`
	Authority        string    `json:"authority"`
	AllowMultiOption bool      `json:"allow_multi_option"`
	OpensAt          time.Time `json:"opens_at"`
	ClosesAt         time.Time `json:"closes_at"`
}

// listPoolsResponse wraps the list endpoint output with metadata.
type listPoolsResponse struct {
	Pools  []domain.Pool `json:"pools"`
	Total  int64         `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// actorRequest is the JSON body for lifecycle transitions that need an
// acting identity.
type actorRequest struct {
	Actor string `json:"actor"`
	Hint  string `json:"hint"`
}

// CreatePool creates a new staking pool.
// POST /api/pools
func (h *PoolHandler) CreatePool(w http.ResponseWriter, r *http.Request) {
	var req createPoolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	pool, err := h.pools.CreatePool(r.Context(), service.CreatePoolInput{
		Question:         req.Question,
		Options:          req.Options,
		Policy:           domain.PolicyKind(req.Policy),
		Authority:        req.Authority,
		AllowMultiOption: req.AllowMultiOption,
		OpensAt:          req.OpensAt,
		ClosesAt:         req.ClosesAt,
	})
	if err != nil {
		if isInternal(err) {
			h.logger.ErrorContext(r.Context(), "handler: create pool failed",
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err, "failed to create pool")
		return
	}

	writeJSON(w, http.StatusCreated, pool)
}

// ListPools returns pools with pagination.
// GET /api/pools?limit=50&offset=0
func (h *PoolHandler) ListPools(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	pools, err := h.pools.ListPools(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list pools failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list pools")
		return
	}
	if pools == nil {
		pools = []domain.Pool{}
	}

	total, err := h.pools.CountPools(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: count pools failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to count pools")
		return
	}

	writeJSON(w, http.StatusOK, listPoolsResponse{
		Pools:  pools,
		Total:  total,
		Limit:  opts.Limit,
		Offset: opts.Offset,
	})
}

// GetPool returns a single pool with its staking totals.
// GET /api/pools/{id}
func (h *PoolHandler) GetPool(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing pool id")
		return
	}

	summary, err := h.pools.Summary(r.Context(), id)
	if err != nil {
		if isInternal(err) {
			h.logger.ErrorContext(r.Context(), "handler: get pool failed",
				slog.String("pool_id", id),
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err, "failed to get pool")
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// Lock transitions a pool from open to locked.
// POST /api/pools/{id}/lock
func (h *PoolHandler) Lock(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	var req actorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	actor, err := callerIdentity(r, req.Actor)
	if err != nil {
		writeError(w, http.StatusForbidden, "caller does not match actor")
		return
	}
	if actor == "" {
		writeError(w, http.StatusBadRequest, "actor is required")
		return
	}

	if err := h.pools.Lock(r.Context(), id, actor); err != nil {
		if isInternal(err) {
			h.logger.ErrorContext(r.Context(), "handler: lock pool failed",
				slog.String("pool_id", id),
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err, "failed to lock pool")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "locked",
		"pool_id": id,
	})
}

// Resolve fixes the winning option for a pool. The hint field carries the
// authority's declared outcome; oracle pools may omit it to have the server
// consult the configured oracle.
// POST /api/pools/{id}/resolve
func (h *PoolHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	var req actorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	actor, err := callerIdentity(r, req.Actor)
	if err != nil {
		writeError(w, http.StatusForbidden, "caller does not match actor")
		return
	}
	if actor == "" {
		writeError(w, http.StatusBadRequest, "actor is required")
		return
	}

	winner, err := h.pools.Resolve(r.Context(), id, actor, req.Hint)
	if err != nil {
		if isInternal(err) {
			h.logger.ErrorContext(r.Context(), "handler: resolve pool failed",
				slog.String("pool_id", id),
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err, "failed to resolve pool")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":         "resolved",
		"pool_id":        id,
		"winning_option": winner,
	})
}

// Cancel voids a pool; every stake becomes refundable.
// POST /api/pools/{id}/cancel
func (h *PoolHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	var req actorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	actor, err := callerIdentity(r, req.Actor)
	if err != nil {
		writeError(w, http.StatusForbidden, "caller does not match actor")
		return
	}
	if actor == "" {
		writeError(w, http.StatusBadRequest, "actor is required")
		return
	}

	if err := h.pools.Cancel(r.Context(), id, actor); err != nil {
		if isInternal(err) {
			h.logger.ErrorContext(r.Context(), "handler: cancel pool failed",
				slog.String("pool_id", id),
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err, "failed to cancel pool")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "cancelled",
		"pool_id": id,
	})
}

// ListAudit returns audit log entries, newest first.
// GET /api/audit?limit=50&offset=0
func (h *PoolHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	entries, err := h.pools.ListAudit(r.Context(), parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list audit failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list audit log")
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
