// Package settle implements the settlement engine: the pure computation that
// turns a locked market, its predictions, and a verdict into per-participant
// payout and reputation deltas, plus the single atomic application of that
// result to the ledger.
package settle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/veridict/veridict/internal/domain"
	"github.com/veridict/veridict/internal/metrics"
	"github.com/veridict/veridict/internal/scoring"
)

// payoutPlaces is the decimal precision loser-pool shares are rounded to.
// The last winner absorbs the rounding remainder so the distributed total
// equals the pool exactly.
const payoutPlaces = 6

// Compute derives the full settlement for a market from its final state. It
// is pure: no I/O, no clock reads beyond the caller-supplied now, and
// deterministic for a given input (participants are processed in address
// order).
//
// reputations maps each predicting address to its current reputation; a
// missing entry is an invariant violation.
func Compute(
	m domain.Market,
	predictions []domain.Prediction,
	reputations map[string]int,
	outcome bool,
	now time.Time,
) (domain.Settlement, error) {
	if m.Resolved() {
		return domain.Settlement{}, fmt.Errorf("settle: market %s: %w", m.ID, domain.ErrAlreadyResolved)
	}
	if !m.Locked() {
		return domain.Settlement{}, fmt.Errorf("settle: market %s: %w", m.ID, domain.ErrMarketNotLocked)
	}

	sorted := make([]domain.Prediction, len(predictions))
	copy(sorted, predictions)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Address < sorted[j].Address })

	loserPool := decimal.Zero
	winnerRisk := decimal.Zero
	var winners, losers []domain.Prediction
	for _, p := range sorted {
		if bool(p.Side) == outcome {
			winners = append(winners, p)
			winnerRisk = winnerRisk.Add(p.Risk)
		} else {
			losers = append(losers, p)
			loserPool = loserPool.Add(p.Risk)
		}
	}

	s := domain.Settlement{
		MarketID:        m.ID,
		Outcome:         outcome,
		LoserPool:       loserPool,
		WinnerRiskTotal: winnerRisk,
		RetainedPool:    decimal.Zero,
		ComputedAt:      now,
	}

	// Distribute the loser pool proportionally to risk contributed. The last
	// winner takes the rounding remainder so no value is created or lost. A
	// market with no winners (or only zero-risk winners) retains the pool;
	// that is a documented edge case, not an error.
	distributed := decimal.Zero
	shares := make(map[string]decimal.Decimal, len(winners))
	if winnerRisk.IsPositive() && loserPool.IsPositive() {
		for i, w := range winners {
			var share decimal.Decimal
			if i == len(winners)-1 {
				share = loserPool.Sub(distributed)
			} else {
				share = loserPool.Mul(w.Risk).Div(winnerRisk).Round(payoutPlaces)
			}
			shares[w.Address] = share
			distributed = distributed.Add(share)
		}
	} else if len(winners) == 0 || winnerRisk.IsZero() {
		s.RetainedPool = loserPool
	}

	for _, p := range sorted {
		rep, ok := reputations[p.Address]
		if !ok {
			return domain.Settlement{}, fmt.Errorf("settle: market %s: no reputation for %s", m.ID, p.Address)
		}

		correct := bool(p.Side) == outcome
		var payout decimal.Decimal
		if correct {
			payout = p.Stake.Add(shares[p.Address])
		} else {
			payout = p.Stake.Sub(p.Risk)
		}

		delta := scoring.ReputationDelta(p.Confidence, correct)
		after := scoring.ApplyDelta(rep, delta)

		s.Participants = append(s.Participants, domain.ParticipantSettlement{
			Address:          p.Address,
			Side:             p.Side,
			Confidence:       p.Confidence,
			Stake:            p.Stake,
			Risk:             p.Risk,
			Correct:          correct,
			Payout:           payout,
			ProfitLoss:       payout.Sub(p.Stake),
			ReputationBefore: rep,
			ReputationDelta:  delta,
			ReputationAfter:  after,
		})
	}

	return s, nil
}

// Engine applies computed settlements to the ledger and announces them.
type Engine struct {
	markets      domain.MarketStore
	predictions  domain.PredictionStore
	participants domain.ParticipantStore
	settlements  domain.SettlementStore
	bus          domain.SignalBus
	logger       *slog.Logger
}

// NewEngine creates a settlement engine over the given stores.
func NewEngine(
	markets domain.MarketStore,
	predictions domain.PredictionStore,
	participants domain.ParticipantStore,
	settlements domain.SettlementStore,
	bus domain.SignalBus,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		markets:      markets,
		predictions:  predictions,
		participants: participants,
		settlements:  settlements,
		bus:          bus,
		logger:       logger.With(slog.String("component", "settle_engine")),
	}
}

// Settle resolves one market with the given verdict: it loads the final
// market record and every prediction on it, computes the settlement, and
// applies it as one atomic transaction. Settling an already-resolved market
// is a no-op reported as success, which makes pipeline retries safe.
func (e *Engine) Settle(ctx context.Context, marketID string, outcome bool) (domain.Settlement, error) {
	start := time.Now()

	m, err := e.markets.GetByID(ctx, marketID)
	if err != nil {
		return domain.Settlement{}, fmt.Errorf("settle: load market %s: %w", marketID, err)
	}
	if m.Resolved() {
		e.logger.InfoContext(ctx, "market already resolved, skipping",
			slog.String("market_id", marketID),
		)
		return domain.Settlement{MarketID: marketID, Outcome: *m.Outcome}, nil
	}

	preds, err := e.predictions.ListByMarket(ctx, marketID)
	if err != nil {
		return domain.Settlement{}, fmt.Errorf("settle: load predictions for %s: %w", marketID, err)
	}

	reputations := make(map[string]int, len(preds))
	for _, p := range preds {
		if _, ok := reputations[p.Address]; ok {
			continue
		}
		participant, err := e.participants.GetByAddress(ctx, p.Address)
		if err != nil {
			return domain.Settlement{}, fmt.Errorf("settle: load participant %s: %w", p.Address, err)
		}
		reputations[p.Address] = participant.Reputation
	}

	s, err := Compute(m, preds, reputations, outcome, time.Now().UTC())
	if err != nil {
		return domain.Settlement{}, err
	}

	if err := e.settlements.Apply(ctx, s); err != nil {
		if errors.Is(err, domain.ErrAlreadyResolved) {
			// A concurrent or earlier attempt committed first; effects are
			// already in place, so this retry succeeds without re-applying.
			e.logger.InfoContext(ctx, "settlement already applied",
				slog.String("market_id", marketID),
			)
			return s, nil
		}
		return domain.Settlement{}, fmt.Errorf("settle: apply settlement for %s: %w", marketID, err)
	}

	metrics.SettlementsTotal.Inc()
	metrics.SettlementDuration.Observe(time.Since(start).Seconds())

	e.logger.InfoContext(ctx, "market settled",
		slog.String("market_id", marketID),
		slog.Bool("outcome", outcome),
		slog.Int("participants", len(s.Participants)),
		slog.String("loser_pool", s.LoserPool.String()),
		slog.String("retained_pool", s.RetainedPool.String()),
	)

	e.publishSettled(ctx, m, outcome)
	return s, nil
}

// publishSettled broadcasts the terminal state on the signal bus. Failures
// are logged, not returned: the settlement has committed and must not be
// reported as failed.
func (e *Engine) publishSettled(ctx context.Context, m domain.Market, outcome bool) {
	ev := domain.MarketEvent{
		Type:     domain.ChannelMarketSettled,
		MarketID: m.ID,
		Question: m.Question,
		Outcome:  &outcome,
		At:       time.Now().UTC(),
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := e.bus.Publish(ctx, domain.ChannelMarketSettled, payload); err != nil {
		e.logger.WarnContext(ctx, "publish settled event failed",
			slog.String("market_id", m.ID),
			slog.String("error", err.Error()),
		)
	}
	if err := e.bus.StreamAppend(ctx, domain.ChannelMarketSettled, payload); err != nil {
		e.logger.WarnContext(ctx, "append settled event failed",
			slog.String("market_id", m.ID),
			slog.String("error", err.Error()),
		)
	}
}
