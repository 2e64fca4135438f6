package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/resolvd/resolvd/internal/domain"
)

// StakeStore implements domain.StakeStore using PostgreSQL.
type StakeStore struct {
	pool *pgxpool.Pool
}

// NewStakeStore creates a new StakeStore backed by the given connection pool.
func NewStakeStore(pool *pgxpool.Pool) *StakeStore {
	return &StakeStore{pool: pool}
}

const stakeCols = `pool_id, participant, option, amount, settled, settled_at,
	created_at, updated_at`

const upsertStakeQuery = `
	INSERT INTO stakes (
		pool_id, participant, option, amount, settled, settled_at,
		created_at, updated_at
	) VALUES (
		$1, $2, $3, $4, $5, $6,
		$7, $8
	)
	ON CONFLICT (pool_id, participant, option) DO UPDATE SET
		amount     = EXCLUDED.amount,
		settled    = EXCLUDED.settled,
		settled_at = EXCLUDED.settled_at,
		updated_at = EXCLUDED.updated_at`

// Upsert inserts or replaces the stake row for (pool, participant, option).
func (s *StakeStore) Upsert(ctx context.Context, st domain.Stake) error {
	_, err := s.pool.Exec(ctx, upsertStakeQuery,
		st.PoolID, st.Participant, st.Option, st.Amount, st.Settled, st.SettledAt,
		st.CreatedAt, st.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert stake %s/%s/%s: %w", st.PoolID, st.Participant, st.Option, err)
	}
	return nil
}

// UpsertBatch inserts or replaces multiple stake rows in one batch.
func (s *StakeStore) UpsertBatch(ctx context.Context, stakes []domain.Stake) error {
	if len(stakes) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, st := range stakes {
		batch.Queue(upsertStakeQuery,
			st.PoolID, st.Participant, st.Option, st.Amount, st.Settled, st.SettledAt,
			st.CreatedAt, st.UpdatedAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range stakes {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: upsert stake batch item %d: %w", i, err)
		}
	}
	return nil
}

// Delete removes the stake row for (pool, participant, option).
func (s *StakeStore) Delete(ctx context.Context, poolID, participant, option string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM stakes WHERE pool_id = $1 AND participant = $2 AND option = $3`,
		poolID, participant, option,
	)
	if err != nil {
		return fmt.Errorf("postgres: delete stake %s/%s/%s: %w", poolID, participant, option, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// scanStake scans a single stake row into a domain.Stake.
func scanStake(row pgx.Row) (domain.Stake, error) {
	var st domain.Stake
	err := row.Scan(
		&st.PoolID, &st.Participant, &st.Option, &st.Amount, &st.Settled, &st.SettledAt,
		&st.CreatedAt, &st.UpdatedAt,
	)
	return st, err
}

// Get retrieves one stake row.
func (s *StakeStore) Get(ctx context.Context, poolID, participant, option string) (domain.Stake, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+stakeCols+` FROM stakes
		 WHERE pool_id = $1 AND participant = $2 AND option = $3`,
		poolID, participant, option,
	)
	st, err := scanStake(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Stake{}, domain.ErrNotFound
		}
		return domain.Stake{}, fmt.Errorf("postgres: get stake %s/%s/%s: %w", poolID, participant, option, err)
	}
	return st, nil
}

// ListByPool returns all stake rows for a pool in insertion order.
func (s *StakeStore) ListByPool(ctx context.Context, poolID string) ([]domain.Stake, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+stakeCols+` FROM stakes
		 WHERE pool_id = $1
		 ORDER BY created_at ASC, participant ASC, option ASC`,
		poolID,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list stakes for %s: %w", poolID, err)
	}
	defer rows.Close()

	return collectStakes(rows)
}

// ListByParticipant returns a participant's stake rows for a pool.
func (s *StakeStore) ListByParticipant(ctx context.Context, poolID, participant string) ([]domain.Stake, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+stakeCols+` FROM stakes
		 WHERE pool_id = $1 AND participant = $2
		 ORDER BY created_at ASC, option ASC`,
		poolID, participant,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list stakes for %s/%s: %w", poolID, participant, err)
	}
	defer rows.Close()

	return collectStakes(rows)
}

func collectStakes(rows pgx.Rows) ([]domain.Stake, error) {
	var stakes []domain.Stake
	for rows.Next() {
		st, err := scanStake(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan stake: %w", err)
		}
		stakes = append(stakes, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: stake rows: %w", err)
	}
	return stakes, nil
}
