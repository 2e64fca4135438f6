package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/resolvd/resolvd/internal/domain"
)

// PoolStore implements domain.PoolStore using PostgreSQL.
type PoolStore struct {
	pool *pgxpool.Pool
}

// NewPoolStore creates a new PoolStore backed by the given connection pool.
func NewPoolStore(pool *pgxpool.Pool) *PoolStore {
	return &PoolStore{pool: pool}
}

const poolCols = `id, question, options, policy, authority, allow_multi_option,
	state, opens_at, closes_at, winning_option, resolved_at, created_at, updated_at`

// Create inserts a new pool, failing if the id is taken.
func (s *PoolStore) Create(ctx context.Context, p domain.Pool) error {
	const query = `
		INSERT INTO pools (
			id, question, options, policy, authority, allow_multi_option,
			state, opens_at, closes_at, winning_option, resolved_at,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11,
			$12, $13
		)`

	_, err := s.pool.Exec(ctx, query,
		p.ID, p.Question, p.Options, string(p.Policy), p.Authority, p.AllowMultiOption,
		string(p.State), p.OpensAt, p.ClosesAt, p.WinningOption, p.ResolvedAt,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		// 23505 is unique_violation.
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: create pool %s: %w", p.ID, err)
	}
	return nil
}

// Update replaces an existing pool's mutable state.
func (s *PoolStore) Update(ctx context.Context, p domain.Pool) error {
	const query = `
		UPDATE pools SET
			question           = $2,
			options            = $3,
			policy             = $4,
			authority          = $5,
			allow_multi_option = $6,
			state              = $7,
			opens_at           = $8,
			closes_at          = $9,
			winning_option     = $10,
			resolved_at        = $11,
			updated_at         = $12
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		p.ID, p.Question, p.Options, string(p.Policy), p.Authority, p.AllowMultiOption,
		string(p.State), p.OpensAt, p.ClosesAt, p.WinningOption, p.ResolvedAt,
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update pool %s: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// scanPool scans a single pool row into a domain.Pool.
func scanPool(row pgx.Row) (domain.Pool, error) {
	var p domain.Pool
	var policy, state string
	err := row.Scan(
		&p.ID, &p.Question, &p.Options, &policy, &p.Authority, &p.AllowMultiOption,
		&state, &p.OpensAt, &p.ClosesAt, &p.WinningOption, &p.ResolvedAt,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return domain.Pool{}, err
	}
	p.Policy = domain.PolicyKind(policy)
	p.State = domain.PoolState(state)
	return p, nil
}

// GetByID retrieves a pool by its primary key.
func (s *PoolStore) GetByID(ctx context.Context, id string) (domain.Pool, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+poolCols+` FROM pools WHERE id = $1`, id)
	p, err := scanPool(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Pool{}, domain.ErrNotFound
		}
		return domain.Pool{}, fmt.Errorf("postgres: get pool %s: %w", id, err)
	}
	return p, nil
}

// List returns pools newest first with pagination and optional time filtering.
func (s *PoolStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Pool, error) {
	query := `SELECT ` + poolCols + ` FROM pools WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list pools: %w", err)
	}
	defer rows.Close()

	return collectPools(rows)
}

// ListSettledBefore returns finalized pools resolved or cancelled before the
// cutoff whose every settleable stake has been settled. Losing stakes of a
// resolved pool with winners are forfeited and never block eligibility.
func (s *PoolStore) ListSettledBefore(ctx context.Context, before time.Time) ([]domain.Pool, error) {
	const query = `
		SELECT ` + poolCols + `
		FROM pools p
		WHERE p.state IN ('resolved', 'cancelled')
		  AND p.resolved_at < $1
		  AND NOT EXISTS (
			SELECT 1 FROM stakes s
			WHERE s.pool_id = p.id
			  AND NOT s.settled
			  AND (
				p.state = 'cancelled'
				OR s.option = p.winning_option
				OR NOT EXISTS (
					SELECT 1 FROM stakes w
					WHERE w.pool_id = p.id AND w.option = p.winning_option
				)
			  )
		  )
		ORDER BY p.resolved_at ASC`

	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list settled pools: %w", err)
	}
	defer rows.Close()

	return collectPools(rows)
}

// Count returns the total number of pools.
func (s *PoolStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM pools").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count pools: %w", err)
	}
	return count, nil
}

func collectPools(rows pgx.Rows) ([]domain.Pool, error) {
	var pools []domain.Pool
	for rows.Next() {
		p, err := scanPool(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan pool: %w", err)
		}
		pools = append(pools, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: pool rows: %w", err)
	}
	return pools, nil
}
