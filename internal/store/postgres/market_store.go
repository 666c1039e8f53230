package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veridict/veridict/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

var _ domain.MarketStore = (*MarketStore)(nil)

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

const marketCols = `id, question, deadline, authority,
	yes_risk_total, no_risk_total, yes_count, no_count,
	status, verdict, outcome, retained_pool,
	created_at, locked_at, resolved_at, updated_at`

func scanMarket(row pgx.Row) (domain.Market, error) {
	var m domain.Market
	var status string
	err := row.Scan(
		&m.ID, &m.Question, &m.Deadline, &m.Authority,
		&m.YesRiskTotal, &m.NoRiskTotal, &m.YesCount, &m.NoCount,
		&status, &m.Verdict, &m.Outcome, &m.RetainedPool,
		&m.CreatedAt, &m.LockedAt, &m.ResolvedAt, &m.UpdatedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}
	m.Status = domain.MarketStatus(status)
	return m, nil
}

// Create inserts a new market. A duplicate id returns ErrAlreadyExists.
func (s *MarketStore) Create(ctx context.Context, m domain.Market) error {
	const query = `
		INSERT INTO markets (
			id, question, deadline, authority,
			yes_risk_total, no_risk_total, yes_count, no_count,
			status, retained_pool, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
		ON CONFLICT (id) DO NOTHING`

	tag, err := s.pool.Exec(ctx, query,
		m.ID, m.Question, m.Deadline, m.Authority,
		m.YesRiskTotal, m.NoRiskTotal, m.YesCount, m.NoCount,
		string(m.Status), m.RetainedPool, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create market %s: %w", m.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: create market %s: %w", m.ID, domain.ErrAlreadyExists)
	}
	return nil
}

// GetByID retrieves a market by its primary key.
func (s *MarketStore) GetByID(ctx context.Context, id string) (domain.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE id = $1`, id)
	m, err := scanMarket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", id, err)
	}
	return m, nil
}

// List returns markets filtered by status ("" for all) with pagination and
// optional creation-time bounds.
func (s *MarketStore) List(ctx context.Context, status domain.MarketStatus, opts domain.ListOpts) ([]domain.Market, error) {
	query := `SELECT ` + marketCols + ` FROM markets WHERE 1=1`
	args := []any{}
	argIdx := 1

	if status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(status))
		argIdx++
	}
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

	return s.queryMarkets(ctx, query, args...)
}

// ListDue returns markets still accepting predictions whose deadline has
// passed, oldest deadline first.
func (s *MarketStore) ListDue(ctx context.Context, now time.Time) ([]domain.Market, error) {
	query := `SELECT ` + marketCols + ` FROM markets
		WHERE status IN ('created', 'awaiting_deadline') AND deadline <= $1
		ORDER BY deadline ASC`
	return s.queryMarkets(ctx, query, now)
}

// ListUnresolved returns markets past their lock but not yet resolved, in
// any intermediate state. The resolution pipeline resumes from this set
// after a restart.
func (s *MarketStore) ListUnresolved(ctx context.Context) ([]domain.Market, error) {
	query := `SELECT ` + marketCols + ` FROM markets
		WHERE status IN ('locked', 'verdict_pending', 'settling')
		ORDER BY locked_at ASC NULLS LAST`
	return s.queryMarkets(ctx, query)
}

// TransitionStatus moves a market from one lifecycle status to the next.
func (s *MarketStore) TransitionStatus(ctx context.Context, id string, from, to domain.MarketStatus) error {
	const query = `
		UPDATE markets SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2`
	tag, err := s.pool.Exec(ctx, query, id, string(from), string(to))
	if err != nil {
		return fmt.Errorf("postgres: transition market %s %s->%s: %w", id, from, to, err)
	}
	if tag.RowsAffected() == 0 {
		m, getErr := s.GetByID(ctx, id)
		if getErr != nil {
			return fmt.Errorf("postgres: transition market %s: %w", id, getErr)
		}
		if m.Resolved() {
			return fmt.Errorf("postgres: transition market %s: %w", id, domain.ErrAlreadyResolved)
		}
		return fmt.Errorf("postgres: transition market %s from %s (is %s): %w", id, from, m.Status, domain.ErrNotFound)
	}
	return nil
}

// Lock marks the market locked. Locking an already-locked market is a no-op.
func (s *MarketStore) Lock(ctx context.Context, id string, at time.Time) error {
	const query = `
		UPDATE markets SET status = 'locked', locked_at = $2, updated_at = NOW()
		WHERE id = $1 AND status IN ('created', 'awaiting_deadline')`
	tag, err := s.pool.Exec(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("postgres: lock market %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		m, getErr := s.GetByID(ctx, id)
		if getErr != nil {
			return fmt.Errorf("postgres: lock market %s: %w", id, getErr)
		}
		if m.Locked() {
			return nil
		}
		return fmt.Errorf("postgres: lock market %s in status %s: %w", id, m.Status, domain.ErrNotFound)
	}
	return nil
}

// SetVerdict persists the obtained verdict and moves the market to settling.
// Setting the same verdict again is a no-op; a conflicting verdict or a
// resolved market is an error.
func (s *MarketStore) SetVerdict(ctx context.Context, id string, verdict bool) error {
	const query = `
		UPDATE markets SET verdict = $2, status = 'settling', updated_at = NOW()
		WHERE id = $1
		  AND status IN ('locked', 'verdict_pending', 'settling')
		  AND (verdict IS NULL OR verdict = $2)`
	tag, err := s.pool.Exec(ctx, query, id, verdict)
	if err != nil {
		return fmt.Errorf("postgres: set verdict for market %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		m, getErr := s.GetByID(ctx, id)
		if getErr != nil {
			return fmt.Errorf("postgres: set verdict for market %s: %w", id, getErr)
		}
		if m.Resolved() {
			return fmt.Errorf("postgres: set verdict for market %s: %w", id, domain.ErrAlreadyResolved)
		}
		if m.Verdict != nil && *m.Verdict != verdict {
			return fmt.Errorf("postgres: market %s already has verdict %v: %w", id, *m.Verdict, domain.ErrAmbiguousVerdict)
		}
		return fmt.Errorf("postgres: set verdict for market %s in status %s: %w", id, m.Status, domain.ErrNotFound)
	}
	return nil
}

// Count returns the total number of markets.
func (s *MarketStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM markets").Scan(&count); err != nil {
		return 0, fmt.Errorf("postgres: count markets: %w", err)
	}
	return count, nil
}

func (s *MarketStore) queryMarkets(ctx context.Context, query string, args ...any) ([]domain.Market, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query markets: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: query markets rows: %w", err)
	}
	return markets, nil
}
