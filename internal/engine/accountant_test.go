package engine

import (
	"errors"
	"math"
	"testing"

	"github.com/resolvd/resolvd/internal/domain"
)

func TestProportionalShare(t *testing.T) {
	tests := []struct {
		name        string
		amount      int64
		grand       int64
		winningPool int64
		want        int64
		wantErr     error
	}{
		{
			name:   "two to one pool",
			amount: 100, grand: 350, winningPool: 150,
			want: 233,
		},
		{
			name:   "second winner same pool",
			amount: 50, grand: 350, winningPool: 150,
			want: 116,
		},
		{
			name:   "sole winner takes everything",
			amount: 10, grand: 1000, winningPool: 10,
			want: 1000,
		},
		{
			name:   "exact division leaves no dust",
			amount: 50, grand: 200, winningPool: 100,
			want: 100,
		},
		{
			name:   "no winning stake",
			amount: 100, grand: 350, winningPool: 0,
			wantErr: domain.ErrNoWinningStake,
		},
		{
			name:   "overflow in product",
			amount: math.MaxInt64, grand: 2, winningPool: 1,
			wantErr: domain.ErrArithmeticOverflow,
		},
		{
			name:   "zero stake pays zero",
			amount: 0, grand: 350, winningPool: 150,
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ProportionalShare(tt.amount, tt.grand, tt.winningPool)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ProportionalShare() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ProportionalShare() failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("ProportionalShare() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestProportionalShareDustNeverExceedsPool(t *testing.T) {
	// Winners split 350 with a winning pool of 150: 233 + 116 = 349, one
	// unit of dust stays behind.
	a, err := ProportionalShare(100, 350, 150)
	if err != nil {
		t.Fatalf("share for first winner: %v", err)
	}
	b, err := ProportionalShare(50, 350, 150)
	if err != nil {
		t.Fatalf("share for second winner: %v", err)
	}
	if a+b > 350 {
		t.Errorf("payouts %d + %d exceed grand total 350", a, b)
	}
}

func TestAccountantTotals(t *testing.T) {
	acct := NewAccountant()
	acct.add("yes", 100)
	acct.add("yes", 50)
	acct.add("no", 200)

	if got := acct.TotalFor("yes"); got != 150 {
		t.Errorf("TotalFor(yes) = %d, want 150", got)
	}
	if got := acct.TotalFor("no"); got != 200 {
		t.Errorf("TotalFor(no) = %d, want 200", got)
	}
	if got := acct.GrandTotal(); got != 350 {
		t.Errorf("GrandTotal() = %d, want 350", got)
	}

	acct.sub("no", 200)
	if got := acct.GrandTotal(); got != 150 {
		t.Errorf("GrandTotal() after sub = %d, want 150", got)
	}
	if got := acct.TotalFor("unknown"); got != 0 {
		t.Errorf("TotalFor(unknown) = %d, want 0", got)
	}
}
