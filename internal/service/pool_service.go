package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/resolvd/resolvd/internal/domain"
	"github.com/resolvd/resolvd/internal/engine"
)

// lockTTL bounds how long a per-pool mutation lock is held if the process
// dies mid-operation.
const lockTTL = 10 * time.Second

// SettlementStream is the durable stream settlement events are appended to,
// in addition to the live pub/sub channel.
const SettlementStream = "stream:settlement"

// OracleResolver answers a pool's question from an external source. The
// service passes the answer to the engine as a resolution hint, so a
// misbehaving oracle can never pick an option the pool does not offer.
type OracleResolver interface {
	Answer(ctx context.Context, poolID string, options []string) (string, error)
}

// CreatePoolInput carries the caller-supplied fields for a new pool.
type CreatePoolInput struct {
	Question         string
	Options          []string
	Policy           domain.PolicyKind
	Authority        string
	AllowMultiOption bool
	OpensAt          time.Time
	ClosesAt         time.Time
}

// PoolSummary is a pool together with its aggregate staking totals.
type PoolSummary struct {
	Pool       domain.Pool
	GrandTotal int64
	Totals     map[string]int64
	StakeCount int
}

// PoolService owns the pool lifecycle: creation, staking, resolution, and
// settlement. All mutations run under a per-pool lock so concurrent calls
// against one pool serialize, which is what makes the engine's
// all-or-nothing semantics hold across processes.
type PoolService struct {
	pools  domain.PoolStore
	stakes domain.StakeStore
	audit  domain.AuditStore
	cache  domain.PoolCache
	bus    domain.SignalBus
	locks  domain.LockManager
	oracle OracleResolver
	clock  domain.Clock
	ids    domain.IDGenerator
	logger *slog.Logger
}

// NewPoolService creates a PoolService with all required dependencies.
func NewPoolService(
	pools domain.PoolStore,
	stakes domain.StakeStore,
	audit domain.AuditStore,
	clock domain.Clock,
	ids domain.IDGenerator,
	logger *slog.Logger,
) *PoolService {
	return &PoolService{
		pools:  pools,
		stakes: stakes,
		audit:  audit,
		clock:  clock,
		ids:    ids,
		logger: logger,
	}
}

// WithCache attaches a pool metadata cache. Without one, reads always hit
// the persistent store.
func (s *PoolService) WithCache(cache domain.PoolCache) *PoolService {
	s.cache = cache
	return s
}

// WithBus attaches a signal bus for event fan-out. Without one, mutations
// succeed silently.
func (s *PoolService) WithBus(bus domain.SignalBus) *PoolService {
	s.bus = bus
	return s
}

// WithLockManager attaches a distributed lock manager. Without one, callers
// must guarantee single-process access.
func (s *PoolService) WithLockManager(locks domain.LockManager) *PoolService {
	s.locks = locks
	return s
}

// WithOracle attaches an oracle resolver for oracle-policy pools.
func (s *PoolService) WithOracle(oracle OracleResolver) *PoolService {
	s.oracle = oracle
	return s
}

// CreatePool validates and persists a new pool in the open state.
func (s *PoolService) CreatePool(ctx context.Context, in CreatePoolInput) (domain.Pool, error) {
	now := s.clock.Now().UTC()

	if strings.TrimSpace(in.Question) == "" {
		return domain.Pool{}, fmt.Errorf("pool_service: question is required: %w", domain.ErrInvalidOption)
	}
	if in.Policy != domain.PolicyMajority && in.Authority == "" {
		return domain.Pool{}, fmt.Errorf("pool_service: policy %s needs an authority: %w", in.Policy, domain.ErrUnauthorized)
	}
	opensAt := in.OpensAt
	if opensAt.IsZero() {
		opensAt = now
	}

	pool := domain.Pool{
		ID:               s.ids.NewID(),
		Question:         in.Question,
		Options:          in.Options,
		Policy:           in.Policy,
		Authority:        in.Authority,
		AllowMultiOption: in.AllowMultiOption,
		State:            domain.PoolStateOpen,
		OpensAt:          opensAt.UTC(),
		ClosesAt:         in.ClosesAt.UTC(),
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	// The engine constructor is the single validator for options, policy,
	// and window ordering.
	if _, err := engine.NewPool(pool); err != nil {
		return domain.Pool{}, fmt.Errorf("pool_service: create: %w", err)
	}

	if err := s.pools.Create(ctx, pool); err != nil {
		return domain.Pool{}, fmt.Errorf("pool_service: persist pool: %w", err)
	}

	s.auditLog(ctx, domain.EventPoolCreated, map[string]any{
		"pool_id":   pool.ID,
		"question":  pool.Question,
		"policy":    string(pool.Policy),
		"closes_at": pool.ClosesAt,
	})
	s.publish(ctx, domain.ChannelPool, domain.Event{
		Type:   domain.EventPoolCreated,
		PoolID: pool.ID,
		At:     now,
	})

	s.logger.InfoContext(ctx, "pool_service: pool created",
		slog.String("pool_id", pool.ID),
		slog.String("policy", string(pool.Policy)),
		slog.Time("closes_at", pool.ClosesAt),
	)

	return pool, nil
}

// GetPool retrieves a pool by ID, checking the cache first and falling back
// to the persistent store on a cache miss.
func (s *PoolService) GetPool(ctx context.Context, id string) (domain.Pool, error) {
	if s.cache != nil {
		if p, err := s.cache.Get(ctx, id); err == nil {
			return p, nil
		}
	}

	p, err := s.pools.GetByID(ctx, id)
	if err != nil {
		return domain.Pool{}, fmt.Errorf("pool_service: get pool %q: %w", id, err)
	}

	if s.cache != nil {
		if cacheErr := s.cache.Set(ctx, p); cacheErr != nil {
			s.logger.WarnContext(ctx, "pool_service: cache set failed",
				slog.String("pool_id", id),
				slog.String("error", cacheErr.Error()),
			)
		}
	}

	return p, nil
}

// Summary returns a pool with its per-option and grand staking totals.
func (s *PoolService) Summary(ctx context.Context, id string) (PoolSummary, error) {
	p, err := s.loadEngine(ctx, id)
	if err != nil {
		return PoolSummary{}, err
	}
	meta := p.Meta()
	totals := make(map[string]int64, len(meta.Options))
	for _, o := range meta.Options {
		totals[o] = p.TotalForOption(o)
	}
	return PoolSummary{
		Pool:       meta,
		GrandTotal: p.GrandTotal(),
		Totals:     totals,
		StakeCount: len(p.Stakes()),
	}, nil
}

// ListPools returns pools from the persistent store with pagination.
func (s *PoolService) ListPools(ctx context.Context, opts domain.ListOpts) ([]domain.Pool, error) {
	pools, err := s.pools.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("pool_service: list pools: %w", err)
	}
	return pools, nil
}

// CountPools returns the total number of pools.
func (s *PoolService) CountPools(ctx context.Context) (int64, error) {
	count, err := s.pools.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("pool_service: count pools: %w", err)
	}
	return count, nil
}

// GetStake retrieves one stake row.
func (s *PoolService) GetStake(ctx context.Context, poolID, participant, option string) (domain.Stake, error) {
	st, err := s.stakes.Get(ctx, poolID, participant, option)
	if err != nil {
		return domain.Stake{}, fmt.Errorf("pool_service: get stake %s/%s/%s: %w", poolID, participant, option, err)
	}
	return st, nil
}

// ListStakes returns all stake rows for a pool in insertion order.
func (s *PoolService) ListStakes(ctx context.Context, poolID string) ([]domain.Stake, error) {
	stakes, err := s.stakes.ListByPool(ctx, poolID)
	if err != nil {
		return nil, fmt.Errorf("pool_service: list stakes for %q: %w", poolID, err)
	}
	return stakes, nil
}

// ListParticipantStakes returns a participant's stake rows for a pool.
func (s *PoolService) ListParticipantStakes(ctx context.Context, poolID, participant string) ([]domain.Stake, error) {
	stakes, err := s.stakes.ListByParticipant(ctx, poolID, participant)
	if err != nil {
		return nil, fmt.Errorf("pool_service: list stakes for %s/%s: %w", poolID, participant, err)
	}
	return stakes, nil
}

// ListAudit returns audit log entries, newest first.
func (s *PoolService) ListAudit(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	entries, err := s.audit.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("pool_service: list audit: %w", err)
	}
	return entries, nil
}

// Stake records a stake on an open pool and returns the participant's new
// cumulative amount on that option.
func (s *PoolService) Stake(ctx context.Context, poolID, participant, option string, amount int64) (int64, error) {
	var cumulative int64
	err := s.withPoolLock(ctx, poolID, func() error {
		p, err := s.loadEngine(ctx, poolID)
		if err != nil {
			return err
		}
		now := s.clock.Now().UTC()
		cumulative, err = p.PlaceStake(participant, option, amount, now)
		if err != nil {
			return fmt.Errorf("pool_service: stake: %w", err)
		}

		row, err := s.stakes.Get(ctx, poolID, participant, option)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			row = domain.Stake{
				PoolID:      poolID,
				Participant: participant,
				Option:      option,
				CreatedAt:   now,
			}
		case err != nil:
			return fmt.Errorf("pool_service: reload stake row: %w", err)
		}
		row.Amount = cumulative
		row.UpdatedAt = now
		if err := s.stakes.Upsert(ctx, row); err != nil {
			return fmt.Errorf("pool_service: persist stake: %w", err)
		}
		return s.touchPool(ctx, p, now)
	})
	if err != nil {
		return 0, err
	}

	now := s.clock.Now().UTC()
	s.auditLog(ctx, domain.EventStakePlaced, map[string]any{
		"pool_id":     poolID,
		"participant": participant,
		"option":      option,
		"amount":      amount,
	})
	s.publish(ctx, domain.ChannelStake, domain.Event{
		Type:        domain.EventStakePlaced,
		PoolID:      poolID,
		Participant: participant,
		Option:      option,
		Amount:      amount,
		At:          now,
	})

	s.logger.InfoContext(ctx, "pool_service: stake placed",
		slog.String("pool_id", poolID),
		slog.String("participant", participant),
		slog.String("option", option),
		slog.Int64("amount", amount),
		slog.Int64("cumulative", cumulative),
	)

	return cumulative, nil
}

// Withdraw reduces a stake while the pool is still open and returns the
// remaining amount on that option.
func (s *PoolService) Withdraw(ctx context.Context, poolID, participant, option string, amount int64) (int64, error) {
	var remaining int64
	err := s.withPoolLock(ctx, poolID, func() error {
		p, err := s.loadEngine(ctx, poolID)
		if err != nil {
			return err
		}
		now := s.clock.Now().UTC()
		remaining, err = p.WithdrawStake(participant, option, amount, now)
		if err != nil {
			return fmt.Errorf("pool_service: withdraw: %w", err)
		}

		if remaining == 0 {
			if err := s.stakes.Delete(ctx, poolID, participant, option); err != nil {
				return fmt.Errorf("pool_service: delete stake row: %w", err)
			}
		} else {
			row, err := s.stakes.Get(ctx, poolID, participant, option)
			if err != nil {
				return fmt.Errorf("pool_service: reload stake row: %w", err)
			}
			row.Amount = remaining
			row.UpdatedAt = now
			if err := s.stakes.Upsert(ctx, row); err != nil {
				return fmt.Errorf("pool_service: persist stake: %w", err)
			}
		}
		return s.touchPool(ctx, p, now)
	})
	if err != nil {
		return 0, err
	}

	s.auditLog(ctx, domain.EventStakeWithdrawn, map[string]any{
		"pool_id":     poolID,
		"participant": participant,
		"option":      option,
		"amount":      amount,
	})
	s.publish(ctx, domain.ChannelStake, domain.Event{
		Type:        domain.EventStakeWithdrawn,
		PoolID:      poolID,
		Participant: participant,
		Option:      option,
		Amount:      amount,
		At:          s.clock.Now().UTC(),
	})

	s.logger.InfoContext(ctx, "pool_service: stake withdrawn",
		slog.String("pool_id", poolID),
		slog.String("participant", participant),
		slog.String("option", option),
		slog.Int64("amount", amount),
	)

	return remaining, nil
}

// Lock stops further staking on an open pool ahead of resolution.
func (s *PoolService) Lock(ctx context.Context, poolID, actor string) error {
	err := s.withPoolLock(ctx, poolID, func() error {
		p, err := s.loadEngine(ctx, poolID)
		if err != nil {
			return err
		}
		now := s.clock.Now().UTC()
		if err := p.Lock(actor, now); err != nil {
			return fmt.Errorf("pool_service: lock: %w", err)
		}
		return s.touchPool(ctx, p, now)
	})
	if err != nil {
		return err
	}

	s.auditLog(ctx, domain.EventPoolLocked, map[string]any{
		"pool_id": poolID,
		"actor":   actor,
	})
	s.publish(ctx, domain.ChannelPool, domain.Event{
		Type:   domain.EventPoolLocked,
		PoolID: poolID,
		At:     s.clock.Now().UTC(),
	})

	s.logger.InfoContext(ctx, "pool_service: pool locked",
		slog.String("pool_id", poolID),
		slog.String("actor", actor),
	)
	return nil
}

// Resolve fixes the winning option. For oracle-policy pools with no explicit
// hint, the configured oracle is consulted and its answer passed to the
// engine for validation.
func (s *PoolService) Resolve(ctx context.Context, poolID, actor, hint string) (string, error) {
	var winner string
	err := s.withPoolLock(ctx, poolID, func() error {
		p, err := s.loadEngine(ctx, poolID)
		if err != nil {
			return err
		}
		meta := p.Meta()

		if meta.Policy == domain.PolicyOracle && hint == "" {
			if s.oracle == nil {
				return fmt.Errorf("pool_service: no oracle configured for pool %q: %w", poolID, domain.ErrOracleTimeout)
			}
			answer, err := s.oracle.Answer(ctx, poolID, meta.Options)
			if err != nil {
				return fmt.Errorf("pool_service: oracle answer: %w", err)
			}
			hint = answer
		}

		now := s.clock.Now().UTC()
		winner, err = p.Resolve(actor, hint, now)
		if err != nil {
			return fmt.Errorf("pool_service: resolve: %w", err)
		}
		return s.touchPool(ctx, p, now)
	})
	if err != nil {
		return "", err
	}

	now := s.clock.Now().UTC()
	s.auditLog(ctx, domain.EventPoolResolved, map[string]any{
		"pool_id": poolID,
		"actor":   actor,
		"winner":  winner,
	})
	s.publish(ctx, domain.ChannelPool, domain.Event{
		Type:   domain.EventPoolResolved,
		PoolID: poolID,
		Option: winner,
		At:     now,
	})

	s.logger.InfoContext(ctx, "pool_service: pool resolved",
		slog.String("pool_id", poolID),
		slog.String("actor", actor),
		slog.String("winner", winner),
	)
	return winner, nil
}

// Cancel voids a pool before it is finalized; every stake becomes refundable
// at its original amount.
func (s *PoolService) Cancel(ctx context.Context, poolID, actor string) error {
	err := s.withPoolLock(ctx, poolID, func() error {
		p, err := s.loadEngine(ctx, poolID)
		if err != nil {
			return err
		}
		now := s.clock.Now().UTC()
		if err := p.Cancel(actor, now); err != nil {
			return fmt.Errorf("pool_service: cancel: %w", err)
		}
		return s.touchPool(ctx, p, now)
	})
	if err != nil {
		return err
	}

	s.auditLog(ctx, domain.EventPoolCancelled, map[string]any{
		"pool_id": poolID,
		"actor":   actor,
	})
	s.publish(ctx, domain.ChannelPool, domain.Event{
		Type:   domain.EventPoolCancelled,
		PoolID: poolID,
		At:     s.clock.Now().UTC(),
	})

	s.logger.InfoContext(ctx, "pool_service: pool cancelled",
		slog.String("pool_id", poolID),
		slog.String("actor", actor),
	)
	return nil
}

// Claim settles a winner's stake on a resolved pool and returns the payout.
// The stake rows are marked settled before the amount is reported, so a
// retried claim can never pay twice.
func (s *PoolService) Claim(ctx context.Context, poolID, participant string) (int64, error) {
	var payout int64
	err := s.withPoolLock(ctx, poolID, func() error {
		p, err := s.loadEngine(ctx, poolID)
		if err != nil {
			return err
		}
		now := s.clock.Now().UTC()
		payout, err = p.Claim(participant, now)
		if err != nil {
			return fmt.Errorf("pool_service: claim: %w", err)
		}
		if err := s.persistParticipantStakes(ctx, p, participant); err != nil {
			return err
		}
		return s.touchPool(ctx, p, now)
	})
	if err != nil {
		return 0, err
	}

	now := s.clock.Now().UTC()
	s.auditLog(ctx, domain.EventStakeClaimed, map[string]any{
		"pool_id":     poolID,
		"participant": participant,
		"payout":      payout,
	})
	s.publishSettlement(ctx, domain.Event{
		Type:        domain.EventStakeClaimed,
		PoolID:      poolID,
		Participant: participant,
		Amount:      payout,
		At:          now,
	})

	s.logger.InfoContext(ctx, "pool_service: stake claimed",
		slog.String("pool_id", poolID),
		slog.String("participant", participant),
		slog.Int64("payout", payout),
	)
	return payout, nil
}

// Refund settles a stake at its original amount on a cancelled pool, or on a
// resolved pool whose winning option received no stakes.
func (s *PoolService) Refund(ctx context.Context, poolID, participant, option string) (int64, error) {
	var amount int64
	err := s.withPoolLock(ctx, poolID, func() error {
		p, err := s.loadEngine(ctx, poolID)
		if err != nil {
			return err
		}
		now := s.clock.Now().UTC()
		amount, err = p.Refund(participant, option, now)
		if err != nil {
			return fmt.Errorf("pool_service: refund: %w", err)
		}
		if err := s.persistParticipantStakes(ctx, p, participant); err != nil {
			return err
		}
		return s.touchPool(ctx, p, now)
	})
	if err != nil {
		return 0, err
	}

	now := s.clock.Now().UTC()
	s.auditLog(ctx, domain.EventStakeRefunded, map[string]any{
		"pool_id":     poolID,
		"participant": participant,
		"option":      option,
		"amount":      amount,
	})
	s.publishSettlement(ctx, domain.Event{
		Type:        domain.EventStakeRefunded,
		PoolID:      poolID,
		Participant: participant,
		Option:      option,
		Amount:      amount,
		At:          now,
	})

	s.logger.InfoContext(ctx, "pool_service: stake refunded",
		slog.String("pool_id", poolID),
		slog.String("participant", participant),
		slog.String("option", option),
		slog.Int64("amount", amount),
	)
	return amount, nil
}

// loadEngine rebuilds the in-memory engine pool from persisted state.
func (s *PoolService) loadEngine(ctx context.Context, poolID string) (*engine.Pool, error) {
	meta, err := s.pools.GetByID(ctx, poolID)
	if err != nil {
		return nil, fmt.Errorf("pool_service: get pool %q: %w", poolID, err)
	}
	stakes, err := s.stakes.ListByPool(ctx, poolID)
	if err != nil {
		return nil, fmt.Errorf("pool_service: list stakes for %q: %w", poolID, err)
	}
	p, err := engine.Restore(meta, stakes)
	if err != nil {
		return nil, fmt.Errorf("pool_service: restore pool %q: %w", poolID, err)
	}
	return p, nil
}

// touchPool writes the engine's pool state back and invalidates the cache.
func (s *PoolService) touchPool(ctx context.Context, p *engine.Pool, now time.Time) error {
	meta := p.Meta()
	meta.UpdatedAt = now
	if err := s.pools.Update(ctx, meta); err != nil {
		return fmt.Errorf("pool_service: update pool %q: %w", meta.ID, err)
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, meta.ID); err != nil {
			s.logger.WarnContext(ctx, "pool_service: cache invalidate failed",
				slog.String("pool_id", meta.ID),
				slog.String("error", err.Error()),
			)
			// Non-fatal: the cache will eventually expire on its own.
		}
	}
	return nil
}

// persistParticipantStakes writes back a participant's stake rows after a
// settlement mutation flipped their settled flags.
func (s *PoolService) persistParticipantStakes(ctx context.Context, p *engine.Pool, participant string) error {
	var mine []domain.Stake
	for _, st := range p.Stakes() {
		if st.Participant == participant {
			mine = append(mine, st)
		}
	}
	if err := s.stakes.UpsertBatch(ctx, mine); err != nil {
		return fmt.Errorf("pool_service: persist settled stakes: %w", err)
	}
	return nil
}

// withPoolLock runs fn under the pool's distributed mutation lock.
func (s *PoolService) withPoolLock(ctx context.Context, poolID string, fn func() error) error {
	if s.locks == nil {
		return fn()
	}
	unlock, err := s.locks.Acquire(ctx, "pool:"+poolID, lockTTL)
	if err != nil {
		return fmt.Errorf("pool_service: acquire pool lock %q: %w", poolID, err)
	}
	defer unlock()
	return fn()
}

func (s *PoolService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "pool_service: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (s *PoolService) publish(ctx context.Context, channel string, ev domain.Event) {
	if s.bus == nil {
		return
	}
	payload, _ := json.Marshal(ev)
	if err := s.bus.Publish(ctx, channel, payload); err != nil {
		s.logger.WarnContext(ctx, "pool_service: publish event failed",
			slog.String("channel", channel),
			slog.String("type", ev.Type),
			slog.String("error", err.Error()),
		)
	}
}

// publishSettlement fans a settlement event out live and appends it to the
// durable settlement stream for replay.
func (s *PoolService) publishSettlement(ctx context.Context, ev domain.Event) {
	if s.bus == nil {
		return
	}
	s.publish(ctx, domain.ChannelSettlement, ev)
	payload, _ := json.Marshal(ev)
	if err := s.bus.StreamAppend(ctx, SettlementStream, payload); err != nil {
		s.logger.WarnContext(ctx, "pool_service: stream append failed",
			slog.String("type", ev.Type),
			slog.String("error", err.Error()),
		)
	}
}
