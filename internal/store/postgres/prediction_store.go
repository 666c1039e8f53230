package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veridict/veridict/internal/domain"
)

// PredictionStore implements domain.PredictionStore using PostgreSQL.
type PredictionStore struct {
	pool *pgxpool.Pool
}

var _ domain.PredictionStore = (*PredictionStore)(nil)

// NewPredictionStore creates a new PredictionStore backed by the given pool.
func NewPredictionStore(pool *pgxpool.Pool) *PredictionStore {
	return &PredictionStore{pool: pool}
}

const predictionCols = `market_id, address, side, confidence, stake, risk,
	outcome, correct, payout, profit_loss, reputation_delta,
	created_at, settled_at`

func scanPrediction(row pgx.Row) (domain.Prediction, error) {
	var p domain.Prediction
	err := row.Scan(
		&p.MarketID, &p.Address, &p.Side, &p.Confidence, &p.Stake, &p.Risk,
		&p.Outcome, &p.Correct, &p.Payout, &p.ProfitLoss, &p.ReputationDelta,
		&p.CreatedAt, &p.SettledAt,
	)
	if err != nil {
		return domain.Prediction{}, err
	}
	return p, nil
}

// Submit inserts the prediction and folds its risk into the market's side
// totals in one transaction. The market row update carries the lock check,
// so a submission racing a lock either fully lands or fully fails.
func (s *PredictionStore) Submit(ctx context.Context, p domain.Prediction) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: submit prediction: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var sideRisk, sideCount string
	if bool(p.Side) {
		sideRisk, sideCount = "yes_risk_total", "yes_count"
	} else {
		sideRisk, sideCount = "no_risk_total", "no_count"
	}

	updateMarket := fmt.Sprintf(`
		UPDATE markets
		SET %s = %s + $2, %s = %s + 1, updated_at = NOW()
		WHERE id = $1 AND status IN ('created', 'awaiting_deadline')`,
		sideRisk, sideRisk, sideCount, sideCount)

	tag, err := tx.Exec(ctx, updateMarket, p.MarketID, p.Risk)
	if err != nil {
		return fmt.Errorf("postgres: submit prediction: update market %s: %w", p.MarketID, err)
	}
	if tag.RowsAffected() == 0 {
		var status string
		err := tx.QueryRow(ctx, "SELECT status FROM markets WHERE id = $1", p.MarketID).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("postgres: submit prediction: market %s: %w", p.MarketID, domain.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("postgres: submit prediction: market %s: %w", p.MarketID, err)
		}
		return fmt.Errorf("postgres: submit prediction: market %s is %s: %w", p.MarketID, status, domain.ErrMarketLocked)
	}

	const insert = `
		INSERT INTO predictions (
			market_id, address, side, confidence, stake, risk, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err = tx.Exec(ctx, insert,
		p.MarketID, p.Address, bool(p.Side), p.Confidence, p.Stake, p.Risk, p.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("postgres: prediction %s/%s: %w", p.MarketID, p.Address, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("postgres: insert prediction %s/%s: %w", p.MarketID, p.Address, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: submit prediction: commit: %w", err)
	}
	return nil
}

// Get retrieves one prediction by its (market, address) key.
func (s *PredictionStore) Get(ctx context.Context, marketID, address string) (domain.Prediction, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+predictionCols+` FROM predictions WHERE market_id = $1 AND address = $2`,
		marketID, address)
	p, err := scanPrediction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Prediction{}, domain.ErrNotFound
		}
		return domain.Prediction{}, fmt.Errorf("postgres: get prediction %s/%s: %w", marketID, address, err)
	}
	return p, nil
}

// ListByMarket returns every prediction on a market, in address order.
func (s *PredictionStore) ListByMarket(ctx context.Context, marketID string) ([]domain.Prediction, error) {
	return s.queryPredictions(ctx,
		`SELECT `+predictionCols+` FROM predictions WHERE market_id = $1 ORDER BY address ASC`,
		marketID)
}

// ListByAddress returns a participant's prediction history, newest first.
func (s *PredictionStore) ListByAddress(ctx context.Context, address string, opts domain.ListOpts) ([]domain.Prediction, error) {
	query := `SELECT ` + predictionCols + ` FROM predictions WHERE address = $1 ORDER BY created_at DESC`
	args := []any{address}
	argIdx := 2

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}
	return s.queryPredictions(ctx, query, args...)
}

func (s *PredictionStore) queryPredictions(ctx context.Context, query string, args ...any) ([]domain.Prediction, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query predictions: %w", err)
	}
	defer rows.Close()

	var out []domain.Prediction
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan prediction: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: query predictions rows: %w", err)
	}
	return out, nil
}
