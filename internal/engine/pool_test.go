package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/resolvd/resolvd/internal/domain"
)

var (
	opensAt  = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	closesAt = time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)
	midRound = opensAt.Add(24 * time.Hour)
	afterEnd = closesAt.Add(time.Hour)
)

func testPool(t *testing.T, policy domain.PolicyKind) *Pool {
	t.Helper()
	p, err := NewPool(domain.Pool{
		ID:        "pool-1",
		Question:  "Will it rain on Sunday?",
		Options:   []string{"yes", "no"},
		Policy:    policy,
		Authority: "admin",
		OpensAt:   opensAt,
		ClosesAt:  closesAt,
	})
	if err != nil {
		t.Fatalf("NewPool() failed: %v", err)
	}
	return p
}

func TestNewPoolValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(p *domain.Pool)
		wantErr error
	}{
		{
			name:   "valid",
			mutate: func(p *domain.Pool) {},
		},
		{
			name:    "no options",
			mutate:  func(p *domain.Pool) { p.Options = nil },
			wantErr: domain.ErrInvalidOption,
		},
		{
			name:    "duplicate options",
			mutate:  func(p *domain.Pool) { p.Options = []string{"yes", "yes"} },
			wantErr: domain.ErrInvalidOption,
		},
		{
			name:    "empty option label",
			mutate:  func(p *domain.Pool) { p.Options = []string{"yes", ""} },
			wantErr: domain.ErrInvalidOption,
		},
		{
			name:    "opens after closes",
			mutate:  func(p *domain.Pool) { p.OpensAt = closesAt.Add(time.Hour) },
			wantErr: domain.ErrInvalidWindow,
		},
		{
			name:    "unknown policy",
			mutate:  func(p *domain.Pool) { p.Policy = "coin-flip" },
			wantErr: domain.ErrInvalidOption,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta := domain.Pool{
				ID:        "pool-1",
				Options:   []string{"yes", "no"},
				Policy:    domain.PolicyAuthority,
				Authority: "admin",
				OpensAt:   opensAt,
				ClosesAt:  closesAt,
			}
			tt.mutate(&meta)
			_, err := NewPool(meta)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("NewPool() failed: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("NewPool() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestPlaceStakeGates(t *testing.T) {
	p := testPool(t, domain.PolicyAuthority)

	if _, err := p.PlaceStake("alice", "yes", 100, opensAt.Add(-time.Hour)); !errors.Is(err, domain.ErrPoolNotOpen) {
		t.Errorf("stake before opens_at error = %v, want %v", err, domain.ErrPoolNotOpen)
	}
	if _, err := p.PlaceStake("alice", "yes", 100, closesAt); !errors.Is(err, domain.ErrPoolNotOpen) {
		t.Errorf("stake at deadline error = %v, want %v", err, domain.ErrPoolNotOpen)
	}
	if _, err := p.PlaceStake("alice", "yes", 0, midRound); !errors.Is(err, domain.ErrZeroAmount) {
		t.Errorf("zero stake error = %v, want %v", err, domain.ErrZeroAmount)
	}
	if _, err := p.PlaceStake("alice", "yes", 100, midRound); err != nil {
		t.Fatalf("PlaceStake() failed: %v", err)
	}

	if err := p.Lock("admin", midRound); err != nil {
		t.Fatalf("Lock() failed: %v", err)
	}
	if _, err := p.PlaceStake("bob", "yes", 100, midRound); !errors.Is(err, domain.ErrPoolNotOpen) {
		t.Errorf("stake on locked pool error = %v, want %v", err, domain.ErrPoolNotOpen)
	}
}

// The canonical settlement scenario: P1 stakes 100 on yes, P2 stakes 50 on
// yes, P3 stakes 200 on no. The authority resolves yes. Payouts are the
// proportional share of the full 350 pot across the winning pool of 150.
func TestClaimProportionalPayout(t *testing.T) {
	p := testPool(t, domain.PolicyAuthority)
	p.PlaceStake("p1", "yes", 100, midRound)
	p.PlaceStake("p2", "yes", 50, midRound)
	p.PlaceStake("p3", "no", 200, midRound)

	if got := p.GrandTotal(); got != 350 {
		t.Fatalf("GrandTotal() = %d, want 350", got)
	}

	winner, err := p.Resolve("admin", "yes", afterEnd)
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	if winner != "yes" {
		t.Fatalf("Resolve() = %q, want yes", winner)
	}

	p1, err := p.Claim("p1", afterEnd)
	if err != nil {
		t.Fatalf("Claim(p1) failed: %v", err)
	}
	if p1 != 233 {
		t.Errorf("Claim(p1) = %d, want 233", p1)
	}

	p2, err := p.Claim("p2", afterEnd)
	if err != nil {
		t.Fatalf("Claim(p2) failed: %v", err)
	}
	if p2 != 116 {
		t.Errorf("Claim(p2) = %d, want 116", p2)
	}

	// Rounding dust is retained, never double-claimed.
	if p1+p2 > 350 {
		t.Errorf("payouts %d + %d exceed grand total 350", p1, p2)
	}

	// P3 staked only the losing option: no claim, and the stake is
	// forfeited to the winners rather than refunded.
	if _, err := p.Claim("p3", afterEnd); !errors.Is(err, domain.ErrNoStake) {
		t.Errorf("Claim(p3) error = %v, want %v", err, domain.ErrNoStake)
	}
	if _, err := p.Refund("p3", "no", afterEnd); !errors.Is(err, domain.ErrStakeForfeited) {
		t.Errorf("Refund(p3) error = %v, want %v", err, domain.ErrStakeForfeited)
	}
}

func TestClaimAtMostOnce(t *testing.T) {
	p := testPool(t, domain.PolicyAuthority)
	p.PlaceStake("p1", "yes", 100, midRound)
	if _, err := p.Resolve("admin", "yes", afterEnd); err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}

	if _, err := p.Claim("p1", afterEnd); err != nil {
		t.Fatalf("first Claim() failed: %v", err)
	}
	if _, err := p.Claim("p1", afterEnd); !errors.Is(err, domain.ErrAlreadySettled) {
		t.Errorf("second Claim() error = %v, want %v", err, domain.ErrAlreadySettled)
	}
}

func TestClaimNoWinnerRefundsAtPar(t *testing.T) {
	p, err := NewPool(domain.Pool{
		ID:        "pool-1",
		Options:   []string{"yes", "no", "draw"},
		Policy:    domain.PolicyAuthority,
		Authority: "admin",
		OpensAt:   opensAt,
		ClosesAt:  closesAt,
	})
	if err != nil {
		t.Fatalf("NewPool() failed: %v", err)
	}
	p.PlaceStake("p1", "yes", 100, midRound)
	p.PlaceStake("p3", "no", 200, midRound)

	// Nobody staked "draw"; the authority declares it anyway.
	if _, err := p.Resolve("admin", "draw", afterEnd); err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}

	got, err := p.Claim("p1", afterEnd)
	if err != nil {
		t.Fatalf("Claim(p1) failed: %v", err)
	}
	if got != 100 {
		t.Errorf("Claim(p1) = %d, want original stake 100", got)
	}

	// The refund path is equivalent for the no-winner case.
	got, err = p.Refund("p3", "no", afterEnd)
	if err != nil {
		t.Fatalf("Refund(p3) failed: %v", err)
	}
	if got != 200 {
		t.Errorf("Refund(p3) = %d, want original stake 200", got)
	}

	if _, err := p.Claim("p1", afterEnd); !errors.Is(err, domain.ErrAlreadySettled) {
		t.Errorf("second Claim(p1) error = %v, want %v", err, domain.ErrAlreadySettled)
	}
	if !p.FullySettled() {
		t.Error("pool should be fully settled")
	}
}

func TestCancelAndRefund(t *testing.T) {
	p := testPool(t, domain.PolicyAuthority)
	p.PlaceStake("p1", "yes", 100, midRound)
	p.PlaceStake("p3", "no", 200, midRound)

	if err := p.Cancel("intruder", midRound); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("Cancel(intruder) error = %v, want %v", err, domain.ErrUnauthorized)
	}
	// Cancellation does not wait for the deadline.
	if err := p.Cancel("admin", midRound); err != nil {
		t.Fatalf("Cancel() failed: %v", err)
	}
	if got := p.State(); got != domain.PoolStateCancelled {
		t.Fatalf("State() = %s, want cancelled", got)
	}

	got, err := p.Refund("p1", "yes", midRound)
	if err != nil {
		t.Fatalf("Refund(p1) failed: %v", err)
	}
	if got != 100 {
		t.Errorf("Refund(p1) = %d, want 100", got)
	}
	if _, err := p.Refund("p1", "yes", midRound); !errors.Is(err, domain.ErrAlreadySettled) {
		t.Errorf("second Refund(p1) error = %v, want %v", err, domain.ErrAlreadySettled)
	}
	if _, err := p.Refund("nobody", "no", midRound); !errors.Is(err, domain.ErrNoStake) {
		t.Errorf("Refund(nobody) error = %v, want %v", err, domain.ErrNoStake)
	}
}

func TestStateMachineIsMonotonic(t *testing.T) {
	p := testPool(t, domain.PolicyAuthority)
	p.PlaceStake("p1", "yes", 100, midRound)

	if _, err := p.Resolve("admin", "yes", midRound); !errors.Is(err, domain.ErrDeadlineNotReached) {
		t.Fatalf("Resolve() before deadline error = %v, want %v", err, domain.ErrDeadlineNotReached)
	}
	if _, err := p.Resolve("admin", "yes", afterEnd); err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}

	// Resolved is terminal: no second resolve, no cancel, no lock.
	if _, err := p.Resolve("admin", "no", afterEnd); !errors.Is(err, domain.ErrPoolNotOpen) {
		t.Errorf("second Resolve() error = %v, want %v", err, domain.ErrPoolNotOpen)
	}
	if err := p.Cancel("admin", afterEnd); !errors.Is(err, domain.ErrAlreadyFinalized) {
		t.Errorf("Cancel() after resolve error = %v, want %v", err, domain.ErrAlreadyFinalized)
	}
	if err := p.Lock("admin", afterEnd); !errors.Is(err, domain.ErrAlreadyFinalized) {
		t.Errorf("Lock() after resolve error = %v, want %v", err, domain.ErrAlreadyFinalized)
	}

	winner, ok := p.WinningOption()
	if !ok || winner != "yes" {
		t.Errorf("WinningOption() = %q, %v, want yes, true", winner, ok)
	}
}

func TestResolveFailureLeavesStateUnchanged(t *testing.T) {
	p := testPool(t, domain.PolicyAuthority)
	p.PlaceStake("p1", "yes", 100, midRound)

	if _, err := p.Resolve("intruder", "yes", afterEnd); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("Resolve(intruder) error = %v, want %v", err, domain.ErrUnauthorized)
	}
	if got := p.State(); got != domain.PoolStateOpen {
		t.Fatalf("State() after failed resolve = %s, want open", got)
	}
	if _, ok := p.WinningOption(); ok {
		t.Fatal("WinningOption() set after failed resolve")
	}

	// Retry with corrected authorization succeeds.
	if _, err := p.Resolve("admin", "yes", afterEnd); err != nil {
		t.Fatalf("retried Resolve() failed: %v", err)
	}
}

func TestLockedPoolResolvesAndCancels(t *testing.T) {
	p := testPool(t, domain.PolicyAuthority)
	p.PlaceStake("p1", "yes", 100, midRound)

	if err := p.Lock("admin", midRound); err != nil {
		t.Fatalf("Lock() failed: %v", err)
	}
	if got := p.State(); got != domain.PoolStateLocked {
		t.Fatalf("State() = %s, want locked", got)
	}
	if _, err := p.Resolve("admin", "yes", afterEnd); err != nil {
		t.Fatalf("Resolve() on locked pool failed: %v", err)
	}

	p2 := testPool(t, domain.PolicyAuthority)
	if err := p2.Lock("admin", midRound); err != nil {
		t.Fatalf("Lock() failed: %v", err)
	}
	if err := p2.Cancel("admin", midRound); err != nil {
		t.Fatalf("Cancel() on locked pool failed: %v", err)
	}
}

func TestRestoreRoundTrip(t *testing.T) {
	p := testPool(t, domain.PolicyAuthority)
	p.PlaceStake("p1", "yes", 100, midRound)
	p.PlaceStake("p2", "no", 50, midRound)
	if _, err := p.Resolve("admin", "yes", afterEnd); err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}

	restored, err := Restore(p.Meta(), p.Stakes())
	if err != nil {
		t.Fatalf("Restore() failed: %v", err)
	}
	if got := restored.State(); got != domain.PoolStateResolved {
		t.Errorf("restored State() = %s, want resolved", got)
	}
	if got := restored.GrandTotal(); got != 150 {
		t.Errorf("restored GrandTotal() = %d, want 150", got)
	}

	got, err := restored.Claim("p1", afterEnd)
	if err != nil {
		t.Fatalf("Claim() on restored pool failed: %v", err)
	}
	if got != 150 {
		t.Errorf("Claim() = %d, want 150", got)
	}
}

func TestIsParticipant(t *testing.T) {
	p := testPool(t, domain.PolicyAuthority)
	p.PlaceStake("p1", "yes", 100, midRound)

	if !p.IsParticipant("p1") {
		t.Error("IsParticipant(p1) = false, want true")
	}
	if p.IsParticipant("stranger") {
		t.Error("IsParticipant(stranger) = true, want false")
	}
	if !IsAuthority(p.Meta(), "admin") {
		t.Error("IsAuthority(admin) = false, want true")
	}
	if IsAuthority(p.Meta(), "") {
		t.Error("IsAuthority(empty) = true, want false")
	}
}
