// Package memory implements the domain store interfaces with in-process maps.
// It backs the standalone mode and the service test suite; data does not
// survive a restart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/resolvd/resolvd/internal/domain"
)

// PoolStore implements domain.PoolStore in memory.
type PoolStore struct {
	mu    sync.RWMutex
	pools map[string]domain.Pool
	// stakes is shared with the StakeStore created by NewStores so
	// ListSettledBefore can see settlement progress.
	stakes *StakeStore
}

// StakeStore implements domain.StakeStore in memory.
type StakeStore struct {
	mu     sync.RWMutex
	stakes map[string][]domain.Stake // pool id -> rows in insertion order
}

// AuditStore implements domain.AuditStore in memory.
type AuditStore struct {
	mu      sync.RWMutex
	entries []domain.AuditEntry
	nextID  int64
}

// NewStores creates a linked set of in-memory stores.
func NewStores() (*PoolStore, *StakeStore, *AuditStore) {
	ss := &StakeStore{stakes: make(map[string][]domain.Stake)}
	ps := &PoolStore{pools: make(map[string]domain.Pool), stakes: ss}
	as := &AuditStore{nextID: 1}
	return ps, ss, as
}

func copyPool(p domain.Pool) domain.Pool {
	cp := p
	cp.Options = append([]string(nil), p.Options...)
	return cp
}

// Create stores a new pool, failing if the id is taken.
func (s *PoolStore) Create(_ context.Context, pool domain.Pool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pools[pool.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.pools[pool.ID] = copyPool(pool)
	return nil
}

// Update replaces an existing pool's state.
func (s *PoolStore) Update(_ context.Context, pool domain.Pool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pools[pool.ID]; !ok {
		return domain.ErrNotFound
	}
	s.pools[pool.ID] = copyPool(pool)
	return nil
}

// GetByID retrieves a pool by id.
func (s *PoolStore) GetByID(_ context.Context, id string) (domain.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pools[id]
	if !ok {
		return domain.Pool{}, domain.ErrNotFound
	}
	return copyPool(p), nil
}

// List returns pools ordered by creation time, newest first.
func (s *PoolStore) List(_ context.Context, opts domain.ListOpts) ([]domain.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var pools []domain.Pool
	for _, p := range s.pools {
		if opts.Since != nil && p.CreatedAt.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && p.CreatedAt.After(*opts.Until) {
			continue
		}
		pools = append(pools, copyPool(p))
	}
	sort.Slice(pools, func(i, j int) bool {
		return pools[i].CreatedAt.After(pools[j].CreatedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(pools) {
			return nil, nil
		}
		pools = pools[opts.Offset:]
	}
	if opts.Limit > 0 && len(pools) > opts.Limit {
		pools = pools[:opts.Limit]
	}
	return pools, nil
}

// ListSettledBefore returns finalized pools resolved or cancelled before the
// cutoff whose every settleable stake has been settled. Losing stakes of a
// resolved pool with winners are forfeited and do not block archival.
func (s *PoolStore) ListSettledBefore(ctx context.Context, before time.Time) ([]domain.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Pool
	for _, p := range s.pools {
		if !p.State.Finalized() || p.ResolvedAt == nil || !p.ResolvedAt.Before(before) {
			continue
		}
		stakes, err := s.stakes.ListByPool(ctx, p.ID)
		if err != nil {
			return nil, err
		}

		winning := ""
		if p.WinningOption != nil {
			winning = *p.WinningOption
		}
		winnersExist := false
		if p.State == domain.PoolStateResolved {
			for _, st := range stakes {
				if st.Option == winning {
					winnersExist = true
					break
				}
			}
		}

		settled := true
		for _, st := range stakes {
			if winnersExist && st.Option != winning {
				continue
			}
			if !st.Settled {
				settled = false
				break
			}
		}
		if settled {
			out = append(out, copyPool(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ResolvedAt.Before(*out[j].ResolvedAt)
	})
	return out, nil
}

// Count returns the number of stored pools.
func (s *PoolStore) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.pools)), nil
}

// Upsert inserts or replaces the stake row for (pool, participant, option).
func (s *StakeStore) Upsert(_ context.Context, stake domain.Stake) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.stakes[stake.PoolID]
	for i, r := range rows {
		if r.Participant == stake.Participant && r.Option == stake.Option {
			rows[i] = stake
			return nil
		}
	}
	s.stakes[stake.PoolID] = append(rows, stake)
	return nil
}

// UpsertBatch inserts or replaces multiple stake rows.
func (s *StakeStore) UpsertBatch(ctx context.Context, stakes []domain.Stake) error {
	for _, st := range stakes {
		if err := s.Upsert(ctx, st); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes the stake row for (pool, participant, option).
func (s *StakeStore) Delete(_ context.Context, poolID, participant, option string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.stakes[poolID]
	for i, r := range rows {
		if r.Participant == participant && r.Option == option {
			s.stakes[poolID] = append(rows[:i], rows[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

// Get retrieves one stake row.
func (s *StakeStore) Get(_ context.Context, poolID, participant, option string) (domain.Stake, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.stakes[poolID] {
		if r.Participant == participant && r.Option == option {
			return r, nil
		}
	}
	return domain.Stake{}, domain.ErrNotFound
}

// ListByPool returns all stake rows for a pool in insertion order.
func (s *StakeStore) ListByPool(_ context.Context, poolID string) ([]domain.Stake, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Stake(nil), s.stakes[poolID]...), nil
}

// ListByParticipant returns a participant's stake rows in insertion order.
func (s *StakeStore) ListByParticipant(_ context.Context, poolID, participant string) ([]domain.Stake, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Stake
	for _, r := range s.stakes[poolID] {
		if r.Participant == participant {
			out = append(out, r)
		}
	}
	return out, nil
}

// Log appends an audit entry.
func (s *AuditStore) Log(_ context.Context, event string, detail map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, domain.AuditEntry{
		ID:        s.nextID,
		Event:     event,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	})
	s.nextID++
	return nil
}

// List returns audit entries, newest first.
func (s *AuditStore) List(_ context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := append([]domain.AuditEntry(nil), s.entries...)
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ID > entries[j].ID
	})
	if opts.Limit > 0 && len(entries) > opts.Limit {
		entries = entries[:opts.Limit]
	}
	return entries, nil
}

// Compile-time interface checks.
var (
	_ domain.PoolStore  = (*PoolStore)(nil)
	_ domain.StakeStore = (*StakeStore)(nil)
	_ domain.AuditStore = (*AuditStore)(nil)
)
