package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/resolvd/resolvd/internal/domain"
	"github.com/resolvd/resolvd/internal/store/memory"
)

// memBlob is an in-memory blob backend for archiver tests.
type memBlob struct {
	objects map[string][]byte
}

func newMemBlob() *memBlob {
	return &memBlob{objects: make(map[string][]byte)}
}

func (b *memBlob) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	b.objects[path] = raw
	return nil
}

func (b *memBlob) PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error {
	return b.Put(ctx, path, data, "")
}

func (b *memBlob) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	raw, ok := b.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (b *memBlob) List(ctx context.Context, prefix string) ([]domain.BlobInfo, error) {
	var infos []domain.BlobInfo
	for path, raw := range b.objects {
		if strings.HasPrefix(path, prefix) {
			infos = append(infos, domain.BlobInfo{Path: path, Size: int64(len(raw))})
		}
	}
	return infos, nil
}

func (b *memBlob) Exists(ctx context.Context, path string) (bool, error) {
	_, ok := b.objects[path]
	return ok, nil
}

func seedSettledPool(t *testing.T, pools domain.PoolStore, stakes domain.StakeStore, id string, resolvedAt time.Time) {
	t.Helper()
	ctx := context.Background()

	winning := "yes"
	pool := domain.Pool{
		ID:            id,
		Question:      "did it happen",
		Options:       []string{"yes", "no"},
		Policy:        domain.PolicyAuthority,
		Authority:     "admin",
		State:         domain.PoolStateResolved,
		OpensAt:       resolvedAt.Add(-2 * time.Hour),
		ClosesAt:      resolvedAt.Add(-time.Hour),
		WinningOption: &winning,
		ResolvedAt:    &resolvedAt,
		CreatedAt:     resolvedAt.Add(-2 * time.Hour),
		UpdatedAt:     resolvedAt,
	}
	if err := pools.Create(ctx, pool); err != nil {
		t.Fatalf("create pool: %v", err)
	}

	settledAt := resolvedAt
	rows := []domain.Stake{
		{PoolID: id, Participant: "alice", Option: "yes", Amount: 100, Settled: true, SettledAt: &settledAt},
		{PoolID: id, Participant: "bob", Option: "no", Amount: 50},
	}
	if err := stakes.UpsertBatch(ctx, rows); err != nil {
		t.Fatalf("seed stakes: %v", err)
	}
}

func TestArchivePools(t *testing.T) {
	ctx := context.Background()
	pools, stakes, audit := memory.NewStores()
	blob := newMemBlob()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	resolvedAt := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	seedSettledPool(t, pools, stakes, "pool-1", resolvedAt)

	arch := NewArchiver(pools, stakes, audit, blob, blob, logger)

	n, err := arch.ArchivePools(ctx, resolvedAt.Add(time.Hour))
	if err != nil {
		t.Fatalf("ArchivePools() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("archived = %d, want 1", n)
	}

	raw, ok := blob.objects["archive/pools/pool-1.jsonl"]
	if !ok {
		t.Fatal("archive object not written")
	}

	var kinds []string
	sc := bufio.NewScanner(bytes.NewReader(raw))
	for sc.Scan() {
		var rec archiveRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			t.Fatalf("bad JSONL line: %v", err)
		}
		kinds = append(kinds, rec.Kind)
	}
	if len(kinds) != 3 || kinds[0] != "pool" || kinds[1] != "stake" || kinds[2] != "stake" {
		t.Errorf("record kinds = %v, want [pool stake stake]", kinds)
	}

	entries, err := audit.List(ctx, domain.ListOpts{})
	if err != nil {
		t.Fatalf("audit list: %v", err)
	}
	if len(entries) != 1 || entries[0].Event != "pool.archived" {
		t.Errorf("audit entries = %+v, want one pool.archived", entries)
	}
}

func TestArchivePoolsIdempotent(t *testing.T) {
	ctx := context.Background()
	pools, stakes, audit := memory.NewStores()
	blob := newMemBlob()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	resolvedAt := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	seedSettledPool(t, pools, stakes, "pool-1", resolvedAt)

	arch := NewArchiver(pools, stakes, audit, blob, blob, logger)

	if _, err := arch.ArchivePools(ctx, resolvedAt.Add(time.Hour)); err != nil {
		t.Fatalf("first run: %v", err)
	}
	n, err := arch.ArchivePools(ctx, resolvedAt.Add(time.Hour))
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if n != 0 {
		t.Errorf("second run archived = %d, want 0", n)
	}
}

func TestArchivePoolsSkipsRecent(t *testing.T) {
	ctx := context.Background()
	pools, stakes, audit := memory.NewStores()
	blob := newMemBlob()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	resolvedAt := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	seedSettledPool(t, pools, stakes, "pool-1", resolvedAt)

	arch := NewArchiver(pools, stakes, audit, blob, blob, logger)

	n, err := arch.ArchivePools(ctx, resolvedAt.Add(-time.Minute))
	if err != nil {
		t.Fatalf("ArchivePools() error = %v", err)
	}
	if n != 0 {
		t.Errorf("archived = %d, want 0 for cutoff before resolution", n)
	}
	if len(blob.objects) != 0 {
		t.Errorf("objects written = %d, want 0", len(blob.objects))
	}
}
