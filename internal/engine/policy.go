package engine

import (
	"fmt"
	"time"

	"github.com/resolvd/resolvd/internal/domain"
)

// Policy decides the winning option for a pool. One implementation is
// selected at pool creation via the pool's PolicyKind and never switched
// afterwards. Every implementation shares the same postcondition: a valid
// option label is returned exactly once, and Resolve records it.
//
// All policies gate on the deadline (now >= ClosesAt). A pool may optionally
// be locked first via Lock, but the engine never requires the locked state;
// the deadline is the resolution gate.
type Policy interface {
	Kind() domain.PolicyKind
	// Decide validates the actor and hint against the pool and returns the
	// winning option label.
	Decide(p *Pool, actor, hint string, now time.Time) (string, error)
}

// PolicyFor returns the Policy implementation for the given kind.
func PolicyFor(kind domain.PolicyKind) (Policy, error) {
	switch kind {
	case domain.PolicyAuthority:
		return authorityPolicy{}, nil
	case domain.PolicyOracle:
		return oraclePolicy{}, nil
	case domain.PolicyMajority:
		return majorityPolicy{}, nil
	default:
		return nil, fmt.Errorf("engine: policy kind %q: %w", kind, domain.ErrInvalidOption)
	}
}

func checkDeadline(p *Pool, now time.Time) error {
	if now.Before(p.meta.ClosesAt) {
		return fmt.Errorf("engine: closes at %s: %w", p.meta.ClosesAt.Format(time.RFC3339), domain.ErrDeadlineNotReached)
	}
	return nil
}

// authorityPolicy resolves to the option declared by the pool's authority.
type authorityPolicy struct{}

func (authorityPolicy) Kind() domain.PolicyKind { return domain.PolicyAuthority }

func (authorityPolicy) Decide(p *Pool, actor, hint string, now time.Time) (string, error) {
	if !IsAuthority(p.meta, actor) {
		return "", fmt.Errorf("engine: actor %q is not the authority: %w", actor, domain.ErrUnauthorized)
	}
	if err := checkDeadline(p, now); err != nil {
		return "", err
	}
	if !p.meta.HasOption(hint) {
		return "", fmt.Errorf("engine: declared option %q: %w", hint, domain.ErrInvalidOption)
	}
	return hint, nil
}

// oraclePolicy resolves to the option reported by the external oracle
// collaborator. The service invokes the oracle and passes its answer as the
// hint; the engine only verifies that the answer is a declared option. An
// oracle that fails to answer within its grace period is a fatal condition
// handled by manual cancellation, never by an automatic fallback here.
type oraclePolicy struct{}

func (oraclePolicy) Kind() domain.PolicyKind { return domain.PolicyOracle }

func (oraclePolicy) Decide(p *Pool, actor, hint string, now time.Time) (string, error) {
	if !IsAuthority(p.meta, actor) {
		return "", fmt.Errorf("engine: actor %q is not the authority: %w", actor, domain.ErrUnauthorized)
	}
	if err := checkDeadline(p, now); err != nil {
		return "", err
	}
	if !p.meta.HasOption(hint) {
		return "", fmt.Errorf("engine: oracle answer %q: %w", hint, domain.ErrInvalidOption)
	}
	return hint, nil
}

// majorityPolicy resolves to the option with the largest staked total. Ties
// break in favor of the earliest declared option, so the result is fully
// determined by declaration order and totals. Any actor may trigger it after
// the deadline; the outcome depends only on the ledger.
type majorityPolicy struct{}

func (majorityPolicy) Kind() domain.PolicyKind { return domain.PolicyMajority }

func (majorityPolicy) Decide(p *Pool, actor, hint string, now time.Time) (string, error) {
	if err := checkDeadline(p, now); err != nil {
		return "", err
	}
	if p.ledger.Accountant().GrandTotal() == 0 {
		return "", domain.ErrNoWinningStake
	}
	var winner string
	var best int64 = -1
	for _, o := range p.meta.Options {
		if t := p.ledger.TotalForOption(o); t > best {
			winner, best = o, t
		}
	}
	return winner, nil
}
