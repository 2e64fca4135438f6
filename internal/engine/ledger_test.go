package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/resolvd/resolvd/internal/domain"
)

var ledgerNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestLedgerRecord(t *testing.T) {
	tests := []struct {
		name       string
		allowMulti bool
		setup      func(l *Ledger)
		option     string
		amount     int64
		want       int64
		wantErr    error
	}{
		{
			name:   "first stake",
			option: "yes", amount: 100,
			want: 100,
		},
		{
			name: "same option accumulates",
			setup: func(l *Ledger) {
				l.Record("pool-1", "alice", "yes", 100, ledgerNow)
			},
			option: "yes", amount: 50,
			want: 150,
		},
		{
			name: "different option rejected",
			setup: func(l *Ledger) {
				l.Record("pool-1", "alice", "yes", 100, ledgerNow)
			},
			option: "no", amount: 50,
			wantErr: domain.ErrOptionSwitch,
		},
		{
			name:       "different option allowed with multi staking",
			allowMulti: true,
			setup: func(l *Ledger) {
				l.Record("pool-1", "alice", "yes", 100, ledgerNow)
			},
			option: "no", amount: 50,
			want: 50,
		},
		{
			name:   "unknown option",
			option: "maybe", amount: 100,
			wantErr: domain.ErrInvalidOption,
		},
		{
			name:   "zero amount",
			option: "yes", amount: 0,
			wantErr: domain.ErrZeroAmount,
		},
		{
			name:   "negative amount",
			option: "yes", amount: -5,
			wantErr: domain.ErrZeroAmount,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLedger([]string{"yes", "no"}, tt.allowMulti)
			if tt.setup != nil {
				tt.setup(l)
			}
			got, err := l.Record("pool-1", "alice", tt.option, tt.amount, ledgerNow)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Record() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Record() failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Record() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestLedgerAccountantStayInSync(t *testing.T) {
	l := NewLedger([]string{"yes", "no"}, false)
	l.Record("p", "alice", "yes", 100, ledgerNow)
	l.Record("p", "bob", "yes", 50, ledgerNow)
	l.Record("p", "carol", "no", 200, ledgerNow)

	var sum int64
	for _, s := range l.Stakes() {
		sum += s.Amount
	}
	if sum != l.Accountant().GrandTotal() {
		t.Errorf("stake sum %d != grand total %d", sum, l.Accountant().GrandTotal())
	}

	if _, err := l.Withdraw("carol", "no", 80, ledgerNow); err != nil {
		t.Fatalf("Withdraw() failed: %v", err)
	}
	sum = 0
	for _, s := range l.Stakes() {
		sum += s.Amount
	}
	if sum != l.Accountant().GrandTotal() {
		t.Errorf("after withdraw: stake sum %d != grand total %d", sum, l.Accountant().GrandTotal())
	}
	if got := l.TotalForOption("no"); got != 120 {
		t.Errorf("TotalForOption(no) = %d, want 120", got)
	}
}

func TestLedgerWithdraw(t *testing.T) {
	tests := []struct {
		name    string
		amount  int64
		want    int64
		wantErr error
	}{
		{name: "partial", amount: 40, want: 60},
		{name: "full removes row", amount: 100, want: 0},
		{name: "more than staked", amount: 150, wantErr: domain.ErrInsufficientStake},
		{name: "zero amount", amount: 0, wantErr: domain.ErrZeroAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLedger([]string{"yes", "no"}, false)
			l.Record("p", "alice", "yes", 100, ledgerNow)

			got, err := l.Withdraw("alice", "yes", tt.amount, ledgerNow)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Withdraw() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Withdraw() failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Withdraw() = %d, want %d", got, tt.want)
			}
			if got == 0 {
				if participants := l.ParticipantsForOption("yes"); len(participants) != 0 {
					t.Errorf("fully withdrawn stake still listed: %v", participants)
				}
			}
		})
	}

	t.Run("no stake at all", func(t *testing.T) {
		l := NewLedger([]string{"yes"}, false)
		if _, err := l.Withdraw("bob", "yes", 10, ledgerNow); !errors.Is(err, domain.ErrInsufficientStake) {
			t.Errorf("Withdraw() error = %v, want %v", err, domain.ErrInsufficientStake)
		}
	})
}

func TestLedgerParticipantsInsertionOrder(t *testing.T) {
	l := NewLedger([]string{"yes", "no"}, false)
	l.Record("p", "alice", "yes", 100, ledgerNow)
	l.Record("p", "bob", "no", 10, ledgerNow)
	l.Record("p", "carol", "yes", 20, ledgerNow)
	// alice tops up; her position in the order must not change.
	l.Record("p", "alice", "yes", 5, ledgerNow)

	got := l.ParticipantsForOption("yes")
	want := []string{"alice", "carol"}
	if len(got) != len(want) {
		t.Fatalf("ParticipantsForOption(yes) = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("participant[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestLedgerRestoreRejectsBadRows(t *testing.T) {
	l := NewLedger([]string{"yes"}, false)
	err := l.restore([]domain.Stake{{PoolID: "p", Participant: "alice", Option: "maybe", Amount: 5}})
	if !errors.Is(err, domain.ErrInvalidOption) {
		t.Errorf("restore unknown option error = %v, want %v", err, domain.ErrInvalidOption)
	}

	l = NewLedger([]string{"yes"}, false)
	err = l.restore([]domain.Stake{
		{PoolID: "p", Participant: "alice", Option: "yes", Amount: 5},
		{PoolID: "p", Participant: "alice", Option: "yes", Amount: 7},
	})
	if !errors.Is(err, domain.ErrAlreadyExists) {
		t.Errorf("restore duplicate row error = %v, want %v", err, domain.ErrAlreadyExists)
	}
}
