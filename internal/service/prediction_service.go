package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/veridict/veridict/internal/domain"
	"github.com/veridict/veridict/internal/metrics"
	"github.com/veridict/veridict/internal/scoring"
)

// defaultSubmitLimit bounds prediction submissions per address per window
// when no limit is configured.
const (
	defaultSubmitLimit = 10
	submitRateWindow   = time.Minute
)

// PredictionService validates and records predictions. The stake is fixed
// per prediction; conviction is expressed through confidence alone.
type PredictionService struct {
	markets      domain.MarketStore
	predictions  domain.PredictionStore
	participants domain.ParticipantStore
	cache        domain.MarketCache
	limiter      domain.RateLimiter
	stake        decimal.Decimal
	submitLimit  int
	logger       *slog.Logger
}

// NewPredictionService creates a PredictionService. stake is the fixed
// amount committed by every prediction; submitLimit caps submissions per
// address per minute (<= 0 selects the default).
func NewPredictionService(
	markets domain.MarketStore,
	predictions domain.PredictionStore,
	participants domain.ParticipantStore,
	cache domain.MarketCache,
	limiter domain.RateLimiter,
	stake decimal.Decimal,
	submitLimit int,
	logger *slog.Logger,
) *PredictionService {
	if submitLimit <= 0 {
		submitLimit = defaultSubmitLimit
	}
	return &PredictionService{
		markets:      markets,
		predictions:  predictions,
		participants: participants,
		cache:        cache,
		limiter:      limiter,
		stake:        stake,
		submitLimit:  submitLimit,
		logger:       logger,
	}
}

// Submit validates and records one prediction. Validation failures reject
// synchronously with no state change: confidence must sit inside both the
// global range and the submitter's tier cap, the market must still accept
// predictions, and each participant predicts each market at most once.
func (s *PredictionService) Submit(ctx context.Context, marketID, address string, side domain.Side, confidence int) (domain.Prediction, error) {
	address = strings.ToLower(address)

	allowed, err := s.limiter.Allow(ctx, "predict:"+address, s.submitLimit, submitRateWindow)
	if err != nil {
		return domain.Prediction{}, fmt.Errorf("prediction_service: rate limit check: %w", err)
	}
	if !allowed {
		metrics.PredictionRejections.WithLabelValues("rate_limited").Inc()
		return domain.Prediction{}, fmt.Errorf("prediction_service: %s: %w", address, domain.ErrRateLimited)
	}

	m, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return domain.Prediction{}, fmt.Errorf("prediction_service: market %q: %w", marketID, err)
	}
	now := time.Now().UTC()
	if !m.Open(now) {
		metrics.PredictionRejections.WithLabelValues("market_closed").Inc()
		if m.Locked() {
			return domain.Prediction{}, fmt.Errorf("prediction_service: market %q: %w", marketID, domain.ErrMarketLocked)
		}
		return domain.Prediction{}, fmt.Errorf("prediction_service: market %q: %w", marketID, domain.ErrDeadlinePassed)
	}

	participant, err := s.participants.Ensure(ctx, address)
	if err != nil {
		return domain.Prediction{}, fmt.Errorf("prediction_service: participant %s: %w", address, err)
	}

	risk, err := scoring.Risk(s.stake, confidence)
	if err != nil {
		metrics.PredictionRejections.WithLabelValues("confidence").Inc()
		return domain.Prediction{}, fmt.Errorf("prediction_service: %w", err)
	}
	if tierCap := scoring.ConfidenceCap(participant.Reputation); confidence > tierCap {
		metrics.PredictionRejections.WithLabelValues("tier_cap").Inc()
		return domain.Prediction{}, fmt.Errorf(
			"prediction_service: confidence %d exceeds tier cap %d for %s: %w",
			confidence, tierCap, address, domain.ErrInvalidConfidence,
		)
	}

	p := domain.Prediction{
		MarketID:   marketID,
		Address:    address,
		Side:       side,
		Confidence: confidence,
		Stake:      s.stake,
		Risk:       risk,
		CreatedAt:  now,
	}

	if err := s.predictions.Submit(ctx, p); err != nil {
		metrics.PredictionRejections.WithLabelValues("store").Inc()
		return domain.Prediction{}, fmt.Errorf("prediction_service: submit %s/%s: %w", marketID, address, err)
	}

	// Market totals moved; drop the cached record.
	if err := s.cache.Invalidate(ctx, marketID); err != nil {
		s.logger.WarnContext(ctx, "market cache invalidate failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
	}

	metrics.PredictionsTotal.WithLabelValues(side.String()).Inc()
	s.logger.InfoContext(ctx, "prediction accepted",
		slog.String("market_id", marketID),
		slog.String("address", address),
		slog.String("side", side.String()),
		slog.Int("confidence", confidence),
		slog.String("risk", risk.String()),
	)
	return p, nil
}

// GetPrediction returns one prediction by its (market, address) key.
func (s *PredictionService) GetPrediction(ctx context.Context, marketID, address string) (domain.Prediction, error) {
	p, err := s.predictions.Get(ctx, marketID, strings.ToLower(address))
	if err != nil {
		return domain.Prediction{}, fmt.Errorf("prediction_service: get %s/%s: %w", marketID, address, err)
	}
	return p, nil
}

// ListByMarket returns every prediction on a market.
func (s *PredictionService) ListByMarket(ctx context.Context, marketID string) ([]domain.Prediction, error) {
	preds, err := s.predictions.ListByMarket(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("prediction_service: list by market %q: %w", marketID, err)
	}
	return preds, nil
}
