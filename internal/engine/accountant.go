package engine

import (
	"fmt"
	"math"

	"github.com/resolvd/resolvd/internal/domain"
)

// Accountant maintains aggregate per-option totals and the grand total staked
// for one pool. It is updated only by the Ledger, in the same logical
// operation as the underlying stake mutation, so the two can never disagree.
type Accountant struct {
	totals map[string]int64
	grand  int64
}

// NewAccountant creates an empty Accountant.
func NewAccountant() *Accountant {
	return &Accountant{totals: make(map[string]int64)}
}

func (a *Accountant) add(option string, amount int64) {
	a.totals[option] += amount
	a.grand += amount
}

func (a *Accountant) sub(option string, amount int64) {
	a.totals[option] -= amount
	a.grand -= amount
}

// TotalFor returns the total amount staked on the given option.
func (a *Accountant) TotalFor(option string) int64 {
	return a.totals[option]
}

// GrandTotal returns the total amount staked across all options.
func (a *Accountant) GrandTotal() int64 {
	return a.grand
}

// ProportionalShare computes a winner's payout as their fraction of the
// winning pool applied to the grand total:
//
//	payout = floor(participantAmount * grandTotal / winningPool)
//
// Payouts are floored, so the sum over all winners never exceeds the grand
// total; rounding dust stays in the pool. It returns ErrNoWinningStake when
// winningPool is zero (the no-winner case, which callers must settle via the
// refund path) and ErrArithmeticOverflow when the intermediate product cannot
// be represented in an int64.
func ProportionalShare(participantAmount, grandTotal, winningPool int64) (int64, error) {
	if winningPool == 0 {
		return 0, domain.ErrNoWinningStake
	}
	if participantAmount < 0 || grandTotal < 0 || winningPool < 0 {
		return 0, fmt.Errorf("engine: negative pool amounts: %w", domain.ErrArithmeticOverflow)
	}
	if participantAmount > 0 && grandTotal > math.MaxInt64/participantAmount {
		return 0, fmt.Errorf("engine: %d * %d: %w", participantAmount, grandTotal, domain.ErrArithmeticOverflow)
	}
	return participantAmount * grandTotal / winningPool, nil
}
