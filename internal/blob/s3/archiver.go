package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/resolvd/resolvd/internal/domain"
)

// archivePrefix is the key prefix under which pool archives are stored.
const archivePrefix = "archive/pools/"

// archiveRecord is one JSONL line in an archived pool object. The first line
// carries the pool, the remaining lines carry its stakes.
type archiveRecord struct {
	Kind  string        `json:"kind"` // "pool" or "stake"
	Pool  *domain.Pool  `json:"pool,omitempty"`
	Stake *domain.Stake `json:"stake,omitempty"`
}

// Archiver exports fully settled pools and their stakes to object storage as
// JSONL documents. Pools already present in the bucket are skipped, so the
// archive loop can run repeatedly over the same window without duplicating
// work.
type Archiver struct {
	pools  domain.PoolStore
	stakes domain.StakeStore
	audit  domain.AuditStore
	writer domain.BlobWriter
	reader domain.BlobReader
	logger *slog.Logger
}

var _ domain.Archiver = (*Archiver)(nil)

// NewArchiver creates an Archiver over the given stores and blob backend.
func NewArchiver(pools domain.PoolStore, stakes domain.StakeStore, audit domain.AuditStore, writer domain.BlobWriter, reader domain.BlobReader, logger *slog.Logger) *Archiver {
	return &Archiver{
		pools:  pools,
		stakes: stakes,
		audit:  audit,
		writer: writer,
		reader: reader,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// ArchivePools uploads every fully settled pool finalized before the cutoff
// and returns the number of pools archived in this run. A failure on one pool
// aborts the run so the next run retries from a consistent point.
func (a *Archiver) ArchivePools(ctx context.Context, before time.Time) (int64, error) {
	pools, err := a.pools.ListSettledBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("archive: list settled pools: %w", err)
	}

	var archived int64
	for _, pool := range pools {
		key := archiveKey(pool.ID)

		exists, err := a.reader.Exists(ctx, key)
		if err != nil {
			return archived, fmt.Errorf("archive: check %s: %w", key, err)
		}
		if exists {
			continue
		}

		stakes, err := a.stakes.ListByPool(ctx, pool.ID)
		if err != nil {
			return archived, fmt.Errorf("archive: list stakes for %s: %w", pool.ID, err)
		}

		body, err := encodeArchive(pool, stakes)
		if err != nil {
			return archived, fmt.Errorf("archive: encode %s: %w", pool.ID, err)
		}

		if err := a.writer.Put(ctx, key, bytes.NewReader(body), "application/x-ndjson"); err != nil {
			return archived, fmt.Errorf("archive: upload %s: %w", key, err)
		}

		if err := a.audit.Log(ctx, "pool.archived", map[string]any{
			"pool_id": pool.ID,
			"path":    key,
			"stakes":  len(stakes),
		}); err != nil {
			a.logger.WarnContext(ctx, "audit log failed",
				slog.String("pool_id", pool.ID),
				slog.String("error", err.Error()),
			)
		}

		a.logger.InfoContext(ctx, "pool archived",
			slog.String("pool_id", pool.ID),
			slog.String("path", key),
			slog.Int("stakes", len(stakes)),
		)
		archived++
	}

	return archived, nil
}

// archiveKey returns the object key for a pool archive.
func archiveKey(poolID string) string {
	return archivePrefix + poolID + ".jsonl"
}

// encodeArchive renders a pool and its stakes as newline-delimited JSON.
func encodeArchive(pool domain.Pool, stakes []domain.Stake) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)

	if err := enc.Encode(archiveRecord{Kind: "pool", Pool: &pool}); err != nil {
		return nil, err
	}
	for i := range stakes {
		if err := enc.Encode(archiveRecord{Kind: "stake", Stake: &stakes[i]}); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}
