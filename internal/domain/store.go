package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// PoolStore persists pool state.
type PoolStore interface {
	Create(ctx context.Context, pool Pool) error
	Update(ctx context.Context, pool Pool) error
	GetByID(ctx context.Context, id string) (Pool, error)
	List(ctx context.Context, opts ListOpts) ([]Pool, error)
	// ListSettledBefore returns finalized pools whose every settleable stake
	// is settled and whose resolution (or cancellation) happened before the
	// cutoff. Forfeited losing stakes do not block eligibility.
	ListSettledBefore(ctx context.Context, before time.Time) ([]Pool, error)
	Count(ctx context.Context) (int64, error)
}

// StakeStore persists stakes keyed by (pool, participant, option).
type StakeStore interface {
	Upsert(ctx context.Context, stake Stake) error
	UpsertBatch(ctx context.Context, stakes []Stake) error
	Delete(ctx context.Context, poolID, participant, option string) error
	Get(ctx context.Context, poolID, participant, option string) (Stake, error)
	ListByPool(ctx context.Context, poolID string) ([]Stake, error)
	ListByParticipant(ctx context.Context, poolID, participant string) ([]Stake, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
