package engine

import (
	"fmt"
	"time"

	"github.com/resolvd/resolvd/internal/domain"
)

type stakeKey struct {
	participant string
	option      string
}

// Ledger records per-participant, per-option stake amounts for one pool. It
// owns the Stake rows exclusively; the settlement operations on Pool read and
// mark them but never create or remove them on their own.
//
// Every mutation updates the Accountant in the same call, so ledger and
// accountant are never observable in a disagreeing state.
type Ledger struct {
	options    []string
	allowMulti bool
	stakes     map[stakeKey]*domain.Stake
	order      []stakeKey // first-stake insertion order
	acct       *Accountant
}

// NewLedger creates an empty Ledger for the given option set.
func NewLedger(options []string, allowMulti bool) *Ledger {
	return &Ledger{
		options:    options,
		allowMulti: allowMulti,
		stakes:     make(map[stakeKey]*domain.Stake),
		acct:       NewAccountant(),
	}
}

func (l *Ledger) hasOption(option string) bool {
	for _, o := range l.options {
		if o == option {
			return true
		}
	}
	return false
}

// Record adds amount to the participant's stake on option, creating the stake
// row if absent, and returns the new cumulative amount for that pair.
//
// Staking the same option again accumulates. Staking a different option after
// having staked is rejected with ErrOptionSwitch unless the pool allows
// multi-option staking; silently overwriting the prior choice is never done.
func (l *Ledger) Record(poolID, participant, option string, amount int64, now time.Time) (int64, error) {
	if !l.hasOption(option) {
		return 0, fmt.Errorf("engine: option %q: %w", option, domain.ErrInvalidOption)
	}
	if amount <= 0 {
		return 0, domain.ErrZeroAmount
	}
	if !l.allowMulti {
		for _, k := range l.order {
			if k.participant == participant && k.option != option {
				return 0, fmt.Errorf("engine: already staked %q: %w", k.option, domain.ErrOptionSwitch)
			}
		}
	}

	key := stakeKey{participant: participant, option: option}
	s, ok := l.stakes[key]
	if !ok {
		s = &domain.Stake{
			PoolID:      poolID,
			Participant: participant,
			Option:      option,
			CreatedAt:   now,
		}
		l.stakes[key] = s
		l.order = append(l.order, key)
	}
	s.Amount += amount
	s.UpdatedAt = now
	l.acct.add(option, amount)
	return s.Amount, nil
}

// Withdraw reduces the participant's stake on option by amount, removing the
// row entirely when it reaches zero. It returns the remaining amount.
func (l *Ledger) Withdraw(participant, option string, amount int64, now time.Time) (int64, error) {
	if !l.hasOption(option) {
		return 0, fmt.Errorf("engine: option %q: %w", option, domain.ErrInvalidOption)
	}
	if amount <= 0 {
		return 0, domain.ErrZeroAmount
	}
	key := stakeKey{participant: participant, option: option}
	s, ok := l.stakes[key]
	if !ok || s.Amount < amount {
		return 0, domain.ErrInsufficientStake
	}
	s.Amount -= amount
	s.UpdatedAt = now
	l.acct.sub(option, amount)
	if s.Amount == 0 {
		delete(l.stakes, key)
		l.dropFromOrder(key)
		return 0, nil
	}
	return s.Amount, nil
}

func (l *Ledger) dropFromOrder(key stakeKey) {
	for i, k := range l.order {
		if k == key {
			l.order = append(l.order[:i], l.order[i+1:]...)
			return
		}
	}
}

// StakeAmount returns the amount staked by participant on option, 0 if absent.
func (l *Ledger) StakeAmount(participant, option string) int64 {
	if s, ok := l.stakes[stakeKey{participant: participant, option: option}]; ok {
		return s.Amount
	}
	return 0
}

func (l *Ledger) get(participant, option string) (*domain.Stake, bool) {
	s, ok := l.stakes[stakeKey{participant: participant, option: option}]
	return s, ok
}

// TotalForOption returns the aggregate amount staked on option.
func (l *Ledger) TotalForOption(option string) int64 {
	return l.acct.TotalFor(option)
}

// ParticipantsForOption returns the identities staked on option in first-stake
// insertion order.
func (l *Ledger) ParticipantsForOption(option string) []string {
	var out []string
	for _, k := range l.order {
		if k.option == option {
			out = append(out, k.participant)
		}
	}
	return out
}

// Stakes returns copies of all stake rows in insertion order.
func (l *Ledger) Stakes() []domain.Stake {
	out := make([]domain.Stake, 0, len(l.order))
	for _, k := range l.order {
		out = append(out, *l.stakes[k])
	}
	return out
}

// stakesOf returns the participant's stake rows in insertion order.
func (l *Ledger) stakesOf(participant string) []*domain.Stake {
	var out []*domain.Stake
	for _, k := range l.order {
		if k.participant == participant {
			out = append(out, l.stakes[k])
		}
	}
	return out
}

// restore loads previously persisted stake rows. Settled rows keep counting
// toward the option totals: the pot is fixed at resolution time and payouts
// are computed against it, so totals never shrink during settlement.
func (l *Ledger) restore(stakes []domain.Stake) error {
	for i := range stakes {
		s := stakes[i]
		if !l.hasOption(s.Option) {
			return fmt.Errorf("engine: restore stake on %q: %w", s.Option, domain.ErrInvalidOption)
		}
		key := stakeKey{participant: s.Participant, option: s.Option}
		if _, ok := l.stakes[key]; ok {
			return fmt.Errorf("engine: restore duplicate stake %s/%s: %w", s.Participant, s.Option, domain.ErrAlreadyExists)
		}
		cp := s
		l.stakes[key] = &cp
		l.order = append(l.order, key)
		l.acct.add(s.Option, s.Amount)
	}
	return nil
}

// Accountant exposes the pool totals for policies and settlement math.
func (l *Ledger) Accountant() *Accountant {
	return l.acct
}
