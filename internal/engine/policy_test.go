package engine

import (
	"errors"
	"testing"

	"github.com/resolvd/resolvd/internal/domain"
)

func TestAuthorityPolicy(t *testing.T) {
	tests := []struct {
		name    string
		actor   string
		hint    string
		wantErr error
	}{
		{name: "authority after deadline", actor: "admin", hint: "yes"},
		{name: "wrong actor", actor: "mallory", hint: "yes", wantErr: domain.ErrUnauthorized},
		{name: "unknown option", actor: "admin", hint: "maybe", wantErr: domain.ErrInvalidOption},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testPool(t, domain.PolicyAuthority)
			got, err := p.Resolve(tt.actor, tt.hint, afterEnd)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Resolve() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve() failed: %v", err)
			}
			if got != tt.hint {
				t.Errorf("Resolve() = %q, want %q", got, tt.hint)
			}
		})
	}
}

func TestOraclePolicyValidatesAnswer(t *testing.T) {
	p := testPool(t, domain.PolicyOracle)

	// A bogus oracle answer is rejected before any state changes.
	if _, err := p.Resolve("admin", "whatever", afterEnd); !errors.Is(err, domain.ErrInvalidOption) {
		t.Fatalf("Resolve() with bad oracle answer error = %v, want %v", err, domain.ErrInvalidOption)
	}
	if got := p.State(); got != domain.PoolStateOpen {
		t.Fatalf("State() = %s, want open", got)
	}

	got, err := p.Resolve("admin", "no", afterEnd)
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	if got != "no" {
		t.Errorf("Resolve() = %q, want no", got)
	}
}

func TestMajorityPolicy(t *testing.T) {
	tests := []struct {
		name   string
		stakes map[string]struct {
			option string
			amount int64
		}
		want    string
		wantErr error
	}{
		{
			name: "clear winner",
			stakes: map[string]struct {
				option string
				amount int64
			}{
				"alice": {"yes", 100},
				"bob":   {"no", 300},
			},
			want: "no",
		},
		{
			name: "tie breaks to earliest declared option",
			stakes: map[string]struct {
				option string
				amount int64
			}{
				"alice": {"yes", 200},
				"bob":   {"no", 200},
			},
			want: "yes",
		},
		{
			name:    "no stakes at all",
			stakes:  nil,
			wantErr: domain.ErrNoWinningStake,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testPool(t, domain.PolicyMajority)
			for who, s := range tt.stakes {
				if _, err := p.PlaceStake(who, s.option, s.amount, midRound); err != nil {
					t.Fatalf("PlaceStake(%s) failed: %v", who, err)
				}
			}
			// Majority pools may be triggered by anyone once past the
			// deadline; the ledger alone decides the outcome.
			got, err := p.Resolve("anyone", "", afterEnd)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Resolve() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve() failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Resolve() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMajorityPolicyDeadline(t *testing.T) {
	p := testPool(t, domain.PolicyMajority)
	p.PlaceStake("alice", "yes", 100, midRound)

	if _, err := p.Resolve("anyone", "", midRound); !errors.Is(err, domain.ErrDeadlineNotReached) {
		t.Errorf("Resolve() before deadline error = %v, want %v", err, domain.ErrDeadlineNotReached)
	}
}

func TestPolicyFor(t *testing.T) {
	for _, kind := range []domain.PolicyKind{domain.PolicyAuthority, domain.PolicyOracle, domain.PolicyMajority} {
		p, err := PolicyFor(kind)
		if err != nil {
			t.Fatalf("PolicyFor(%s) failed: %v", kind, err)
		}
		if p.Kind() != kind {
			t.Errorf("PolicyFor(%s).Kind() = %s", kind, p.Kind())
		}
	}
	if _, err := PolicyFor("coin-flip"); !errors.Is(err, domain.ErrInvalidOption) {
		t.Errorf("PolicyFor(coin-flip) error = %v, want %v", err, domain.ErrInvalidOption)
	}
}
