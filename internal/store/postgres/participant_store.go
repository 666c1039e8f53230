package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veridict/veridict/internal/domain"
)

// ParticipantStore implements domain.ParticipantStore using PostgreSQL.
type ParticipantStore struct {
	pool *pgxpool.Pool
}

var _ domain.ParticipantStore = (*ParticipantStore)(nil)

// NewParticipantStore creates a new ParticipantStore backed by the given pool.
func NewParticipantStore(pool *pgxpool.Pool) *ParticipantStore {
	return &ParticipantStore{pool: pool}
}

// Ensure returns the participant for the address, creating it with the
// baseline reputation on first use.
func (s *ParticipantStore) Ensure(ctx context.Context, address string) (domain.Participant, error) {
	const query = `
		INSERT INTO participants (address, reputation)
		VALUES ($1, $2)
		ON CONFLICT (address) DO UPDATE SET updated_at = participants.updated_at
		RETURNING address, reputation, created_at, updated_at`

	var p domain.Participant
	err := s.pool.QueryRow(ctx, query, address, domain.ReputationBaseline).
		Scan(&p.Address, &p.Reputation, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return domain.Participant{}, fmt.Errorf("postgres: ensure participant %s: %w", address, err)
	}
	return p, nil
}

// GetByAddress retrieves a participant by address.
func (s *ParticipantStore) GetByAddress(ctx context.Context, address string) (domain.Participant, error) {
	const query = `
		SELECT address, reputation, created_at, updated_at
		FROM participants WHERE address = $1`

	var p domain.Participant
	err := s.pool.QueryRow(ctx, query, address).
		Scan(&p.Address, &p.Reputation, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Participant{}, domain.ErrNotFound
		}
		return domain.Participant{}, fmt.Errorf("postgres: get participant %s: %w", address, err)
	}
	return p, nil
}

// Leaderboard returns the top participants by reputation.
func (s *ParticipantStore) Leaderboard(ctx context.Context, limit int) ([]domain.Participant, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
		SELECT address, reputation, created_at, updated_at
		FROM participants
		ORDER BY reputation DESC, address ASC
		LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: leaderboard: %w", err)
	}
	defer rows.Close()

	var out []domain.Participant
	for rows.Next() {
		var p domain.Participant
		if err := rows.Scan(&p.Address, &p.Reputation, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan participant: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: leaderboard rows: %w", err)
	}
	return out, nil
}
