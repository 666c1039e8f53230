package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/veridict/veridict/internal/domain"
)

type fakeMarkets struct {
	domain.MarketStore
	markets map[string]domain.Market
}

func (f *fakeMarkets) GetByID(_ context.Context, id string) (domain.Market, error) {
	m, ok := f.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

type fakePredictions struct {
	domain.PredictionStore
	submitted []domain.Prediction
}

func (f *fakePredictions) Submit(_ context.Context, p domain.Prediction) error {
	for _, existing := range f.submitted {
		if existing.MarketID == p.MarketID && existing.Address == p.Address {
			return domain.ErrAlreadyExists
		}
	}
	f.submitted = append(f.submitted, p)
	return nil
}

type fakeParticipants struct {
	domain.ParticipantStore
	reputation map[string]int
}

func (f *fakeParticipants) Ensure(_ context.Context, address string) (domain.Participant, error) {
	rep, ok := f.reputation[address]
	if !ok {
		rep = domain.ReputationBaseline
		f.reputation[address] = rep
	}
	return domain.Participant{Address: address, Reputation: rep}, nil
}

type nopCache struct{}

func (nopCache) Set(context.Context, domain.Market) error          { return nil }
func (nopCache) Get(context.Context, string) (domain.Market, error) { return domain.Market{}, domain.ErrNotFound }
func (nopCache) Invalidate(context.Context, string) error          { return nil }

type fakeLimiter struct {
	allowed bool
}

func (f *fakeLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	return f.allowed, nil
}

func openMarket(id string) domain.Market {
	return domain.Market{
		ID:       id,
		Question: "Will it ship this quarter?",
		Deadline: time.Now().Add(time.Hour),
		Status:   domain.MarketStatusAwaitingDeadline,
	}
}

func newTestService(markets *fakeMarkets, participants *fakeParticipants) (*PredictionService, *fakePredictions) {
	preds := &fakePredictions{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewPredictionService(
		markets, preds, participants, nopCache{}, &fakeLimiter{allowed: true},
		decimal.NewFromInt(100), 10, logger,
	)
	return svc, preds
}

func TestSubmit_ComputesRiskFromConfidence(t *testing.T) {
	markets := &fakeMarkets{markets: map[string]domain.Market{"m1": openMarket("m1")}}
	participants := &fakeParticipants{reputation: map[string]int{}}
	svc, preds := newTestService(markets, participants)

	p, err := svc.Submit(context.Background(), "m1", "0xAAA", domain.SideYes, 70)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !p.Risk.Equal(decimal.NewFromInt(40)) {
		t.Errorf("risk = %s, want 40", p.Risk)
	}
	if p.Address != "0xaaa" {
		t.Errorf("address not normalised: %q", p.Address)
	}
	if len(preds.submitted) != 1 {
		t.Errorf("submitted = %d, want 1", len(preds.submitted))
	}
}

func TestSubmit_TierCapEnforced(t *testing.T) {
	markets := &fakeMarkets{markets: map[string]domain.Market{"m1": openMarket("m1")}}
	participants := &fakeParticipants{reputation: map[string]int{"0xaaa": 700}}
	svc, preds := newTestService(markets, participants)

	// New tier caps at 70.
	if _, err := svc.Submit(context.Background(), "m1", "0xaaa", domain.SideYes, 80); !errors.Is(err, domain.ErrInvalidConfidence) {
		t.Errorf("err = %v, want ErrInvalidConfidence", err)
	}
	if len(preds.submitted) != 0 {
		t.Errorf("rejected submission reached the store")
	}

	// Elite reputation unlocks the full range.
	participants.reputation["0xbbb"] = 950
	if _, err := svc.Submit(context.Background(), "m1", "0xbbb", domain.SideNo, 90); err != nil {
		t.Errorf("elite 90%% submission rejected: %v", err)
	}
}

func TestSubmit_ConfidenceRange(t *testing.T) {
	markets := &fakeMarkets{markets: map[string]domain.Market{"m1": openMarket("m1")}}
	participants := &fakeParticipants{reputation: map[string]int{}}
	svc, _ := newTestService(markets, participants)

	for _, confidence := range []int{49, 91, 0, 100} {
		if _, err := svc.Submit(context.Background(), "m1", "0xaaa", domain.SideYes, confidence); err == nil {
			t.Errorf("confidence %d accepted", confidence)
		}
	}
}

func TestSubmit_LockedAndExpiredMarkets(t *testing.T) {
	locked := openMarket("locked")
	locked.Status = domain.MarketStatusLocked
	expired := openMarket("expired")
	expired.Deadline = time.Now().Add(-time.Minute)

	markets := &fakeMarkets{markets: map[string]domain.Market{"locked": locked, "expired": expired}}
	participants := &fakeParticipants{reputation: map[string]int{}}
	svc, _ := newTestService(markets, participants)

	if _, err := svc.Submit(context.Background(), "locked", "0xaaa", domain.SideYes, 60); !errors.Is(err, domain.ErrMarketLocked) {
		t.Errorf("locked market: err = %v, want ErrMarketLocked", err)
	}
	if _, err := svc.Submit(context.Background(), "expired", "0xaaa", domain.SideYes, 60); !errors.Is(err, domain.ErrDeadlinePassed) {
		t.Errorf("expired market: err = %v, want ErrDeadlinePassed", err)
	}
}

func TestSubmit_DuplicateRejected(t *testing.T) {
	markets := &fakeMarkets{markets: map[string]domain.Market{"m1": openMarket("m1")}}
	participants := &fakeParticipants{reputation: map[string]int{}}
	svc, _ := newTestService(markets, participants)

	if _, err := svc.Submit(context.Background(), "m1", "0xaaa", domain.SideYes, 60); err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	if _, err := svc.Submit(context.Background(), "m1", "0xaaa", domain.SideNo, 55); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Errorf("duplicate: err = %v, want ErrAlreadyExists", err)
	}
}

func TestSubmit_RateLimited(t *testing.T) {
	markets := &fakeMarkets{markets: map[string]domain.Market{"m1": openMarket("m1")}}
	participants := &fakeParticipants{reputation: map[string]int{}}
	preds := &fakePredictions{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewPredictionService(
		markets, preds, participants, nopCache{}, &fakeLimiter{allowed: false},
		decimal.NewFromInt(100), 10, logger,
	)

	if _, err := svc.Submit(context.Background(), "m1", "0xaaa", domain.SideYes, 60); !errors.Is(err, domain.ErrRateLimited) {
		t.Errorf("err = %v, want ErrRateLimited", err)
	}
}
