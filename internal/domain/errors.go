package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrAlreadyExists      = errors.New("already exists")
	ErrInvalidOption      = errors.New("invalid option")
	ErrZeroAmount         = errors.New("zero or negative amount")
	ErrPoolNotOpen        = errors.New("pool not open")
	ErrInvalidWindow      = errors.New("invalid staking window")
	ErrDeadlineNotReached = errors.New("deadline not reached")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrAlreadyFinalized   = errors.New("pool already finalized")
	ErrAlreadySettled     = errors.New("stake already settled")
	ErrNoStake            = errors.New("no stake on winning option")
	ErrNoWinningStake     = errors.New("no stake on any winning option")
	ErrOptionSwitch       = errors.New("stake on a different option already exists")
	ErrInsufficientStake  = errors.New("insufficient stake")
	ErrStakeForfeited     = errors.New("losing stake forfeited to winners")
	ErrArithmeticOverflow = errors.New("arithmetic overflow")
	ErrOracleTimeout      = errors.New("oracle timed out")
	ErrRateLimited        = errors.New("rate limited")
	ErrLockHeld           = errors.New("lock already held")
)
