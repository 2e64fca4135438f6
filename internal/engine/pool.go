package engine

import (
	"fmt"
	"time"

	"github.com/resolvd/resolvd/internal/domain"
)

// Pool is one resolution round together with its ledger, accountant, and
// resolution policy. It is the unit of serialization: the hosting layer must
// guarantee at most one in-flight mutation per Pool, and under that ordering
// every operation either fully applies or leaves no observable change.
type Pool struct {
	meta   domain.Pool
	ledger *Ledger
	policy Policy
}

// NewPool validates the pool definition and returns an empty Pool. It is
// called once at creation time; persisted pools are rebuilt via Restore.
func NewPool(meta domain.Pool) (*Pool, error) {
	if len(meta.Options) < 1 {
		return nil, fmt.Errorf("engine: pool needs at least one option: %w", domain.ErrInvalidOption)
	}
	seen := make(map[string]bool, len(meta.Options))
	for _, o := range meta.Options {
		if o == "" {
			return nil, fmt.Errorf("engine: empty option label: %w", domain.ErrInvalidOption)
		}
		if seen[o] {
			return nil, fmt.Errorf("engine: duplicate option %q: %w", o, domain.ErrInvalidOption)
		}
		seen[o] = true
	}
	if !meta.OpensAt.Before(meta.ClosesAt) {
		return nil, fmt.Errorf("engine: opens_at must precede closes_at: %w", domain.ErrInvalidWindow)
	}
	policy, err := PolicyFor(meta.Policy)
	if err != nil {
		return nil, err
	}
	if meta.State == "" {
		meta.State = domain.PoolStateOpen
	}
	return &Pool{
		meta:   meta,
		ledger: NewLedger(meta.Options, meta.AllowMultiOption),
		policy: policy,
	}, nil
}

// Restore rebuilds a Pool from persisted pool state and stake rows.
func Restore(meta domain.Pool, stakes []domain.Stake) (*Pool, error) {
	p, err := NewPool(meta)
	if err != nil {
		return nil, err
	}
	p.meta = meta
	if err := p.ledger.restore(stakes); err != nil {
		return nil, err
	}
	return p, nil
}

// Meta returns a copy of the pool state.
func (p *Pool) Meta() domain.Pool {
	m := p.meta
	m.Options = append([]string(nil), p.meta.Options...)
	return m
}

// Stakes returns copies of all stake rows in insertion order.
func (p *Pool) Stakes() []domain.Stake {
	return p.ledger.Stakes()
}

// State returns the pool's lifecycle state.
func (p *Pool) State() domain.PoolState {
	return p.meta.State
}

// WinningOption returns the winning option and true once resolved.
func (p *Pool) WinningOption() (string, bool) {
	if p.meta.WinningOption == nil {
		return "", false
	}
	return *p.meta.WinningOption, true
}

// StakeOf returns the amount participant has staked on option, 0 if none.
func (p *Pool) StakeOf(participant, option string) int64 {
	return p.ledger.StakeAmount(participant, option)
}

// TotalForOption returns the aggregate staked on option.
func (p *Pool) TotalForOption(option string) int64 {
	return p.ledger.TotalForOption(option)
}

// GrandTotal returns the aggregate staked across all options.
func (p *Pool) GrandTotal() int64 {
	return p.ledger.Accountant().GrandTotal()
}

// ParticipantsForOption returns staker identities for option in insertion
// order.
func (p *Pool) ParticipantsForOption(option string) []string {
	return p.ledger.ParticipantsForOption(option)
}

// PlaceStake records a stake while the pool is open and before the deadline.
// It returns the participant's new cumulative amount on that option.
func (p *Pool) PlaceStake(participant, option string, amount int64, now time.Time) (int64, error) {
	if p.meta.State != domain.PoolStateOpen {
		return 0, fmt.Errorf("engine: state %s: %w", p.meta.State, domain.ErrPoolNotOpen)
	}
	if now.Before(p.meta.OpensAt) {
		return 0, fmt.Errorf("engine: opens at %s: %w", p.meta.OpensAt.Format(time.RFC3339), domain.ErrPoolNotOpen)
	}
	if !now.Before(p.meta.ClosesAt) {
		return 0, fmt.Errorf("engine: closed at %s: %w", p.meta.ClosesAt.Format(time.RFC3339), domain.ErrPoolNotOpen)
	}
	return p.ledger.Record(p.meta.ID, participant, option, amount, now)
}

// WithdrawStake reduces a stake while the pool is open and before the
// deadline. It returns the participant's remaining amount on that option.
func (p *Pool) WithdrawStake(participant, option string, amount int64, now time.Time) (int64, error) {
	if p.meta.State != domain.PoolStateOpen {
		return 0, fmt.Errorf("engine: state %s: %w", p.meta.State, domain.ErrPoolNotOpen)
	}
	if !now.Before(p.meta.ClosesAt) {
		return 0, fmt.Errorf("engine: closed at %s: %w", p.meta.ClosesAt.Format(time.RFC3339), domain.ErrPoolNotOpen)
	}
	return p.ledger.Withdraw(participant, option, amount, now)
}

// Lock transitions the pool from open to locked, stopping further staking
// ahead of resolution. Locking is an optional gate; resolution itself only
// requires the deadline to have passed.
func (p *Pool) Lock(actor string, now time.Time) error {
	if !IsAuthority(p.meta, actor) {
		return fmt.Errorf("engine: actor %q is not the authority: %w", actor, domain.ErrUnauthorized)
	}
	if p.meta.State.Finalized() {
		return fmt.Errorf("engine: state %s: %w", p.meta.State, domain.ErrAlreadyFinalized)
	}
	if p.meta.State != domain.PoolStateOpen {
		return fmt.Errorf("engine: state %s: %w", p.meta.State, domain.ErrPoolNotOpen)
	}
	p.meta.State = domain.PoolStateLocked
	return nil
}

// Resolve fixes the winning option via the pool's policy and transitions the
// pool to resolved. On any error the pool state is unchanged, so the call can
// be retried with corrected authorization, timing, or hint.
func (p *Pool) Resolve(actor, hint string, now time.Time) (string, error) {
	if p.meta.State.Finalized() {
		return "", fmt.Errorf("engine: state %s: %w", p.meta.State, domain.ErrPoolNotOpen)
	}
	winner, err := p.policy.Decide(p, actor, hint, now)
	if err != nil {
		return "", err
	}
	p.meta.State = domain.PoolStateResolved
	p.meta.WinningOption = &winner
	t := now
	p.meta.ResolvedAt = &t
	return winner, nil
}

// Cancel transitions the pool to cancelled, after which every stake is
// refundable 1:1. Only the authority may cancel, and only before the pool is
// finalized.
func (p *Pool) Cancel(actor string, now time.Time) error {
	if !IsAuthority(p.meta, actor) {
		return fmt.Errorf("engine: actor %q is not the authority: %w", actor, domain.ErrUnauthorized)
	}
	if p.meta.State.Finalized() {
		return fmt.Errorf("engine: state %s: %w", p.meta.State, domain.ErrAlreadyFinalized)
	}
	p.meta.State = domain.PoolStateCancelled
	t := now
	p.meta.ResolvedAt = &t
	return nil
}

// Claim settles a winner's stake and returns the amount to pay out. The
// stake is marked settled before the amount is reported, so a failed or
// retried external transfer can never double-pay; the caller owns transfer
// retries against the already-computed amount.
//
// When nobody staked the winning option, every stake is returned to its
// owner unchanged: Claim settles all of the participant's stakes at their
// original amounts instead of computing a proportional share.
func (p *Pool) Claim(participant string, now time.Time) (int64, error) {
	if p.meta.State != domain.PoolStateResolved {
		return 0, fmt.Errorf("engine: state %s: %w", p.meta.State, domain.ErrPoolNotOpen)
	}
	winning := *p.meta.WinningOption
	acct := p.ledger.Accountant()
	winningPool := acct.TotalFor(winning)

	if winningPool == 0 {
		return p.settleAllAtPar(participant, now)
	}

	s, ok := p.ledger.get(participant, winning)
	if !ok {
		return 0, domain.ErrNoStake
	}
	if s.Settled {
		return 0, domain.ErrAlreadySettled
	}
	payout, err := ProportionalShare(s.Amount, acct.GrandTotal(), winningPool)
	if err != nil {
		return 0, err
	}
	p.markSettled(s, now)
	return payout, nil
}

// settleAllAtPar refunds every unsettled stake the participant holds, 1:1.
func (p *Pool) settleAllAtPar(participant string, now time.Time) (int64, error) {
	stakes := p.ledger.stakesOf(participant)
	if len(stakes) == 0 {
		return 0, domain.ErrNoStake
	}
	var total int64
	var settled int
	for _, s := range stakes {
		if s.Settled {
			settled++
			continue
		}
		total += s.Amount
		p.markSettled(s, now)
	}
	if settled == len(stakes) {
		return 0, domain.ErrAlreadySettled
	}
	return total, nil
}

// Refund settles a stake at its original amount. It applies to every stake of
// a cancelled pool, and to losing-option stakes of a resolved pool only when
// the winning pool is empty (otherwise losing stakes fund the winners' payout
// and are forfeited).
func (p *Pool) Refund(participant, option string, now time.Time) (int64, error) {
	switch p.meta.State {
	case domain.PoolStateCancelled:
		// every stake refundable
	case domain.PoolStateResolved:
		winning := *p.meta.WinningOption
		if option == winning {
			return 0, fmt.Errorf("engine: winning stakes are claimed, not refunded: %w", domain.ErrInvalidOption)
		}
		if p.ledger.Accountant().TotalFor(winning) != 0 {
			return 0, domain.ErrStakeForfeited
		}
	default:
		return 0, fmt.Errorf("engine: state %s: %w", p.meta.State, domain.ErrPoolNotOpen)
	}

	s, ok := p.ledger.get(participant, option)
	if !ok {
		return 0, domain.ErrNoStake
	}
	if s.Settled {
		return 0, domain.ErrAlreadySettled
	}
	p.markSettled(s, now)
	return s.Amount, nil
}

func (p *Pool) markSettled(s *domain.Stake, now time.Time) {
	s.Settled = true
	t := now
	s.SettledAt = &t
	s.UpdatedAt = now
}

// FullySettled reports whether every settleable stake has been claimed or
// refunded, i.e. the pool is immutable audit data from here on. Losing-option
// stakes of a resolved pool with winners are forfeited, not settleable, so
// they do not count against completion.
func (p *Pool) FullySettled() bool {
	if !p.meta.State.Finalized() {
		return false
	}
	forfeitLosers := false
	winning := ""
	if p.meta.State == domain.PoolStateResolved {
		winning = *p.meta.WinningOption
		forfeitLosers = p.ledger.Accountant().TotalFor(winning) != 0
	}
	for _, k := range p.ledger.order {
		if forfeitLosers && k.option != winning {
			continue
		}
		if !p.ledger.stakes[k].Settled {
			return false
		}
	}
	return true
}
