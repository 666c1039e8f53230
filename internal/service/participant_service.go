package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/veridict/veridict/internal/domain"
	"github.com/veridict/veridict/internal/scoring"
)

// Profile is a participant record enriched with the tier standing derived
// from reputation.
type Profile struct {
	domain.Participant
	Tier          domain.Tier
	ConfidenceCap int
}

// ParticipantService serves participant reads. Participant records are
// created lazily on first prediction and mutated only by settlement, so
// there is no write surface here.
type ParticipantService struct {
	participants domain.ParticipantStore
	predictions  domain.PredictionStore
}

// NewParticipantService creates a ParticipantService.
func NewParticipantService(participants domain.ParticipantStore, predictions domain.PredictionStore) *ParticipantService {
	return &ParticipantService{participants: participants, predictions: predictions}
}

// GetProfile returns a participant with derived tier standing.
func (s *ParticipantService) GetProfile(ctx context.Context, address string) (Profile, error) {
	p, err := s.participants.GetByAddress(ctx, strings.ToLower(address))
	if err != nil {
		return Profile{}, fmt.Errorf("participant_service: get %s: %w", address, err)
	}
	return Profile{
		Participant:   p,
		Tier:          scoring.TierOf(p.Reputation),
		ConfidenceCap: scoring.ConfidenceCap(p.Reputation),
	}, nil
}

// History returns a participant's predictions, newest first.
func (s *ParticipantService) History(ctx context.Context, address string, opts domain.ListOpts) ([]domain.Prediction, error) {
	preds, err := s.predictions.ListByAddress(ctx, strings.ToLower(address), opts)
	if err != nil {
		return nil, fmt.Errorf("participant_service: history %s: %w", address, err)
	}
	return preds, nil
}

// Leaderboard returns the top participants by reputation, each with derived
// tier standing.
func (s *ParticipantService) Leaderboard(ctx context.Context, limit int) ([]Profile, error) {
	participants, err := s.participants.Leaderboard(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("participant_service: leaderboard: %w", err)
	}
	profiles := make([]Profile, 0, len(participants))
	for _, p := range participants {
		profiles = append(profiles, Profile{
			Participant:   p,
			Tier:          scoring.TierOf(p.Reputation),
			ConfidenceCap: scoring.ConfidenceCap(p.Reputation),
		})
	}
	return profiles, nil
}
