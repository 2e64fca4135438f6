package domain

import "time"

// Stake is one participant's commitment of value to one option within one
// pool. At most one stake exists per (pool, participant, option); staking the
// same option again accumulates into the existing row.
//
// Settled flips to true exactly once, when the stake is claimed or refunded.
// The engine marks a stake settled before reporting the amount to move, so a
// retried external transfer can never produce a double payout.
type Stake struct {
	PoolID      string
	Participant string
	Option      string
	Amount      int64
	Settled     bool
	SettledAt   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
