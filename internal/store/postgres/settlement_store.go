package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veridict/veridict/internal/domain"
)

// SettlementStore implements domain.SettlementStore using PostgreSQL.
type SettlementStore struct {
	pool *pgxpool.Pool
}

var _ domain.SettlementStore = (*SettlementStore)(nil)

// NewSettlementStore creates a new SettlementStore backed by the given pool.
func NewSettlementStore(pool *pgxpool.Pool) *SettlementStore {
	return &SettlementStore{pool: pool}
}

// Apply commits the settlement in one transaction: the market's terminal
// transition, every prediction fill-in, every reputation update, and the
// audit entry. The market update is guarded on status, so a market settled
// by a concurrent attempt surfaces as ErrAlreadyResolved with nothing
// written.
func (s *SettlementStore) Apply(ctx context.Context, settlement domain.Settlement) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: apply settlement: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	const resolveMarket = `
		UPDATE markets
		SET status = 'resolved', outcome = $2, retained_pool = $3,
		    resolved_at = $4, updated_at = NOW()
		WHERE id = $1 AND status != 'resolved'`

	tag, err := tx.Exec(ctx, resolveMarket,
		settlement.MarketID, settlement.Outcome, settlement.RetainedPool, settlement.ComputedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: resolve market %s: %w", settlement.MarketID, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM markets WHERE id = $1)", settlement.MarketID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("postgres: resolve market %s: %w", settlement.MarketID, err)
		}
		if !exists {
			return fmt.Errorf("postgres: resolve market %s: %w", settlement.MarketID, domain.ErrNotFound)
		}
		return fmt.Errorf("postgres: resolve market %s: %w", settlement.MarketID, domain.ErrAlreadyResolved)
	}

	const fillPrediction = `
		UPDATE predictions
		SET outcome = $3, correct = $4, payout = $5, profit_loss = $6,
		    reputation_delta = $7, settled_at = $8
		WHERE market_id = $1 AND address = $2 AND settled_at IS NULL`

	const updateReputation = `
		UPDATE participants SET reputation = $2, updated_at = NOW()
		WHERE address = $1`

	batch := &pgx.Batch{}
	for _, ps := range settlement.Participants {
		batch.Queue(fillPrediction,
			settlement.MarketID, ps.Address,
			settlement.Outcome, ps.Correct, ps.Payout, ps.ProfitLoss,
			ps.ReputationDelta, settlement.ComputedAt,
		)
		batch.Queue(updateReputation, ps.Address, ps.ReputationAfter)
	}

	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("postgres: apply settlement for %s: batch item %d: %w", settlement.MarketID, i, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("postgres: apply settlement for %s: close batch: %w", settlement.MarketID, err)
	}

	if err := s.logSettlement(ctx, tx, settlement); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: apply settlement for %s: commit: %w", settlement.MarketID, err)
	}
	return nil
}

// logSettlement writes the audit entry inside the settlement transaction.
func (s *SettlementStore) logSettlement(ctx context.Context, tx pgx.Tx, settlement domain.Settlement) error {
	detail := map[string]any{
		"market_id":     settlement.MarketID,
		"outcome":       settlement.Outcome,
		"participants":  len(settlement.Participants),
		"winners":       len(settlement.Winners()),
		"loser_pool":    settlement.LoserPool.String(),
		"retained_pool": settlement.RetainedPool.String(),
	}
	detailJSON, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("postgres: marshal settlement audit detail: %w", err)
	}
	if _, err := tx.Exec(ctx,
		"INSERT INTO audit_log (event, detail) VALUES ($1, $2)",
		"market_settled", detailJSON,
	); err != nil {
		return fmt.Errorf("postgres: log settlement for %s: %w", settlement.MarketID, err)
	}
	return nil
}
