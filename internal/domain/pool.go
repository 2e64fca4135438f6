package domain

import "time"

// PoolState represents the lifecycle state of a resolution pool.
type PoolState string

const (
	PoolStateOpen      PoolState = "open"
	PoolStateLocked    PoolState = "locked"
	PoolStateResolved  PoolState = "resolved"
	PoolStateCancelled PoolState = "cancelled"
)

// Finalized reports whether the state is terminal at the pool level.
func (s PoolState) Finalized() bool {
	return s == PoolStateResolved || s == PoolStateCancelled
}

// PolicyKind selects how a pool's winning option is determined. It is fixed
// at creation and never switched afterwards.
type PolicyKind string

const (
	// PolicyAuthority lets the designated authority declare the outcome.
	PolicyAuthority PolicyKind = "authority"
	// PolicyOracle accepts the outcome reported by an external oracle.
	PolicyOracle PolicyKind = "oracle"
	// PolicyMajority picks the option with the largest staked total.
	PolicyMajority PolicyKind = "majority"
)

// Valid reports whether k is one of the known policy kinds.
func (k PolicyKind) Valid() bool {
	switch k {
	case PolicyAuthority, PolicyOracle, PolicyMajority:
		return true
	}
	return false
}

// Pool is one staking round over a fixed set of outcome options.
//
// Options are distinct labels in declaration order; declaration order matters
// because the majority policy breaks ties in favor of the earliest declared
// option. WinningOption is nil until the pool is resolved and never changes
// afterwards.
type Pool struct {
	ID               string
	Question         string
	Options          []string
	Policy           PolicyKind
	Authority        string
	AllowMultiOption bool
	State            PoolState
	OpensAt          time.Time
	ClosesAt         time.Time
	WinningOption    *string
	ResolvedAt       *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// HasOption reports whether label is one of the pool's declared options.
func (p Pool) HasOption(label string) bool {
	for _, o := range p.Options {
		if o == label {
			return true
		}
	}
	return false
}

// OptionIndex returns the declaration index of label, or -1 if absent.
func (p Pool) OptionIndex(label string) int {
	for i, o := range p.Options {
		if o == label {
			return i
		}
	}
	return -1
}
