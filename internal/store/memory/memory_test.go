package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/resolvd/resolvd/internal/domain"
)

var baseTime = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func testPool(id string, createdAt time.Time) domain.Pool {
	return domain.Pool{
		ID:        id,
		Question:  "will it rain",
		Options:   []string{"yes", "no"},
		Policy:    domain.PolicyAuthority,
		Authority: "admin",
		State:     domain.PoolStateOpen,
		OpensAt:   createdAt,
		ClosesAt:  createdAt.Add(time.Hour),
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func TestPoolStoreCRUD(t *testing.T) {
	ctx := context.Background()
	ps, _, _ := NewStores()

	p := testPool("pool-1", baseTime)
	if err := ps.Create(ctx, p); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if err := ps.Create(ctx, p); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Errorf("Create() duplicate error = %v, want %v", err, domain.ErrAlreadyExists)
	}

	got, err := ps.GetByID(ctx, "pool-1")
	if err != nil {
		t.Fatalf("GetByID() failed: %v", err)
	}
	if got.Question != p.Question {
		t.Errorf("GetByID().Question = %q, want %q", got.Question, p.Question)
	}

	// Mutating the returned copy must not touch the stored pool.
	got.Options[0] = "mutated"
	again, _ := ps.GetByID(ctx, "pool-1")
	if again.Options[0] != "yes" {
		t.Errorf("stored pool mutated through returned copy")
	}

	p.State = domain.PoolStateLocked
	if err := ps.Update(ctx, p); err != nil {
		t.Fatalf("Update() failed: %v", err)
	}
	got, _ = ps.GetByID(ctx, "pool-1")
	if got.State != domain.PoolStateLocked {
		t.Errorf("State = %s, want locked", got.State)
	}

	if err := ps.Update(ctx, testPool("ghost", baseTime)); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Update() missing error = %v, want %v", err, domain.ErrNotFound)
	}
	if _, err := ps.GetByID(ctx, "ghost"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("GetByID() missing error = %v, want %v", err, domain.ErrNotFound)
	}

	n, err := ps.Count(ctx)
	if err != nil || n != 1 {
		t.Errorf("Count() = %d, %v, want 1", n, err)
	}
}

func TestPoolStoreList(t *testing.T) {
	ctx := context.Background()
	ps, _, _ := NewStores()

	for i := 0; i < 5; i++ {
		p := testPool(string(rune('a'+i)), baseTime.Add(time.Duration(i)*time.Minute))
		if err := ps.Create(ctx, p); err != nil {
			t.Fatalf("Create() failed: %v", err)
		}
	}

	pools, err := ps.List(ctx, domain.ListOpts{Limit: 2})
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(pools) != 2 {
		t.Fatalf("List() returned %d pools, want 2", len(pools))
	}
	// Newest first.
	if pools[0].ID != "e" || pools[1].ID != "d" {
		t.Errorf("List() order = %s, %s, want e, d", pools[0].ID, pools[1].ID)
	}

	pools, err = ps.List(ctx, domain.ListOpts{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("List() with offset failed: %v", err)
	}
	if len(pools) != 2 || pools[0].ID != "c" {
		t.Errorf("List() offset page starts at %s, want c", pools[0].ID)
	}

	since := baseTime.Add(3 * time.Minute)
	pools, err = ps.List(ctx, domain.ListOpts{Since: &since})
	if err != nil {
		t.Fatalf("List() with since failed: %v", err)
	}
	if len(pools) != 2 {
		t.Errorf("List() since cut returned %d pools, want 2", len(pools))
	}

	pools, err = ps.List(ctx, domain.ListOpts{Offset: 100})
	if err != nil || pools != nil {
		t.Errorf("List() past the end = %v, %v, want empty", pools, err)
	}
}

func TestPoolStoreListSettledBefore(t *testing.T) {
	ctx := context.Background()
	ps, ss, _ := NewStores()

	resolvedAt := baseTime.Add(2 * time.Hour)
	settledAt := resolvedAt.Add(time.Minute)

	done := testPool("done", baseTime)
	done.State = domain.PoolStateResolved
	done.ResolvedAt = &resolvedAt
	ps.Create(ctx, done)
	ss.Upsert(ctx, domain.Stake{PoolID: "done", Participant: "alice", Option: "yes", Amount: 100, Settled: true, SettledAt: &settledAt})

	pending := testPool("pending", baseTime)
	pending.State = domain.PoolStateResolved
	pending.ResolvedAt = &resolvedAt
	ps.Create(ctx, pending)
	ss.Upsert(ctx, domain.Stake{PoolID: "pending", Participant: "bob", Option: "yes", Amount: 50})

	open := testPool("open", baseTime)
	ps.Create(ctx, open)

	pools, err := ps.ListSettledBefore(ctx, resolvedAt.Add(time.Hour))
	if err != nil {
		t.Fatalf("ListSettledBefore() failed: %v", err)
	}
	if len(pools) != 1 || pools[0].ID != "done" {
		t.Fatalf("ListSettledBefore() = %v, want only done", pools)
	}

	pools, err = ps.ListSettledBefore(ctx, resolvedAt)
	if err != nil {
		t.Fatalf("ListSettledBefore() at cutoff failed: %v", err)
	}
	if len(pools) != 0 {
		t.Errorf("ListSettledBefore() at exact cutoff = %v, want none", pools)
	}
}

func TestStakeStore(t *testing.T) {
	ctx := context.Background()
	_, ss, _ := NewStores()

	st := domain.Stake{PoolID: "p", Participant: "alice", Option: "yes", Amount: 100, CreatedAt: baseTime}
	if err := ss.Upsert(ctx, st); err != nil {
		t.Fatalf("Upsert() failed: %v", err)
	}
	st.Amount = 150
	if err := ss.Upsert(ctx, st); err != nil {
		t.Fatalf("Upsert() replace failed: %v", err)
	}

	got, err := ss.Get(ctx, "p", "alice", "yes")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.Amount != 150 {
		t.Errorf("Get().Amount = %d, want 150", got.Amount)
	}

	err = ss.UpsertBatch(ctx, []domain.Stake{
		{PoolID: "p", Participant: "bob", Option: "no", Amount: 10},
		{PoolID: "p", Participant: "alice", Option: "no", Amount: 20},
	})
	if err != nil {
		t.Fatalf("UpsertBatch() failed: %v", err)
	}

	rows, err := ss.ListByPool(ctx, "p")
	if err != nil {
		t.Fatalf("ListByPool() failed: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("ListByPool() returned %d rows, want 3", len(rows))
	}
	if rows[0].Participant != "alice" || rows[0].Option != "yes" {
		t.Errorf("insertion order lost: first row = %s/%s", rows[0].Participant, rows[0].Option)
	}

	mine, err := ss.ListByParticipant(ctx, "p", "alice")
	if err != nil {
		t.Fatalf("ListByParticipant() failed: %v", err)
	}
	if len(mine) != 2 {
		t.Errorf("ListByParticipant() returned %d rows, want 2", len(mine))
	}

	if err := ss.Delete(ctx, "p", "bob", "no"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if _, err := ss.Get(ctx, "p", "bob", "no"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Get() after delete error = %v, want %v", err, domain.ErrNotFound)
	}
	if err := ss.Delete(ctx, "p", "bob", "no"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Delete() missing error = %v, want %v", err, domain.ErrNotFound)
	}
}

func TestAuditStore(t *testing.T) {
	ctx := context.Background()
	_, _, as := NewStores()

	for _, ev := range []string{"pool.created", "stake.placed", "pool.resolved"} {
		if err := as.Log(ctx, ev, map[string]any{"pool_id": "p"}); err != nil {
			t.Fatalf("Log(%s) failed: %v", ev, err)
		}
	}

	entries, err := as.List(ctx, domain.ListOpts{Limit: 2})
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("List() returned %d entries, want 2", len(entries))
	}
	if entries[0].ID <= entries[1].ID {
		t.Errorf("List() not newest first: ids %d, %d", entries[0].ID, entries[1].ID)
	}
}
