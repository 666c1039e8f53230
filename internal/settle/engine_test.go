package settle

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

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func lockedMarket(id string) domain.Market {
	now := time.Now().UTC()
	locked := now.Add(-time.Minute)
	return domain.Market{
		ID:        id,
		Question:  "Will it rain tomorrow?",
		Deadline:  locked,
		Status:    domain.MarketStatusSettling,
		CreatedAt: now.Add(-time.Hour),
		LockedAt:  &locked,
		UpdatedAt: now,
	}
}

func pred(marketID, addr string, side domain.Side, confidence int, stake, risk string) domain.Prediction {
	return domain.Prediction{
		MarketID:   marketID,
		Address:    addr,
		Side:       side,
		Confidence: confidence,
		Stake:      d(stake),
		Risk:       d(risk),
		CreatedAt:  time.Now().UTC(),
	}
}

// Two participants stake 100 each: one YES at 70% (risk 40), one NO at 60%
// (risk 20). On a YES verdict the winner collects the loser's full risk and
// the loser keeps the sheltered part of their stake.
func TestCompute_TwoSidedMarket(t *testing.T) {
	m := lockedMarket("m1")
	preds := []domain.Prediction{
		pred("m1", "0xaaa", domain.SideYes, 70, "100", "40"),
		pred("m1", "0xbbb", domain.SideNo, 60, "100", "20"),
	}
	reps := map[string]int{"0xaaa": 700, "0xbbb": 700}

	s, err := Compute(m, preds, reps, true, time.Now().UTC())
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	if len(s.Participants) != 2 {
		t.Fatalf("participants = %d, want 2", len(s.Participants))
	}
	winner, loser := s.Participants[0], s.Participants[1]
	if !winner.Correct || loser.Correct {
		t.Fatalf("correctness flags wrong: %+v %+v", winner, loser)
	}
	if !winner.Payout.Equal(d("120")) {
		t.Errorf("winner payout = %s, want 120", winner.Payout)
	}
	if !winner.ProfitLoss.Equal(d("20")) {
		t.Errorf("winner P/L = %s, want 20", winner.ProfitLoss)
	}
	if !loser.Payout.Equal(d("80")) {
		t.Errorf("loser payout = %s, want 80", loser.Payout)
	}
	if !loser.ProfitLoss.Equal(d("-20")) {
		t.Errorf("loser P/L = %s, want -20", loser.ProfitLoss)
	}

	// Reputation moves by the Brier rule: +6 for correct at 70, -4 for
	// wrong at 60.
	if winner.ReputationDelta != 6 {
		t.Errorf("winner reputation delta = %d, want 6", winner.ReputationDelta)
	}
	if loser.ReputationDelta != -4 {
		t.Errorf("loser reputation delta = %d, want -4", loser.ReputationDelta)
	}
	if winner.ReputationAfter != 706 || loser.ReputationAfter != 696 {
		t.Errorf("reputations after = %d, %d; want 706, 696",
			winner.ReputationAfter, loser.ReputationAfter)
	}

	// Value is conserved: total payouts equal total stakes.
	if !s.PayoutTotal().Equal(d("200")) {
		t.Errorf("payout total = %s, want 200", s.PayoutTotal())
	}
	if !s.RetainedPool.IsZero() {
		t.Errorf("retained pool = %s, want 0", s.RetainedPool)
	}
}

// The pool split is proportional to risk and the rounding remainder goes to
// the last winner in address order, so the distributed total is exact.
func TestCompute_ProportionalSplitConservesValue(t *testing.T) {
	m := lockedMarket("m2")
	preds := []domain.Prediction{
		pred("m2", "0xaaa", domain.SideYes, 70, "100", "40"),
		pred("m2", "0xbbb", domain.SideYes, 70, "100", "40"),
		pred("m2", "0xccc", domain.SideYes, 70, "100", "40"),
		pred("m2", "0xddd", domain.SideNo, 90, "125", "100"),
	}
	reps := map[string]int{"0xaaa": 700, "0xbbb": 700, "0xccc": 700, "0xddd": 900}

	s, err := Compute(m, preds, reps, true, time.Now().UTC())
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	if !s.LoserPool.Equal(d("100")) {
		t.Fatalf("loser pool = %s, want 100", s.LoserPool)
	}

	// 100/3 does not terminate; the first two get the rounded share and the
	// last absorbs the difference.
	winners := s.Winners()
	if len(winners) != 3 {
		t.Fatalf("winners = %d, want 3", len(winners))
	}
	if !winners[0].Payout.Equal(d("133.333333")) {
		t.Errorf("first winner payout = %s, want 133.333333", winners[0].Payout)
	}
	if !winners[2].Payout.Equal(d("133.333334")) {
		t.Errorf("last winner payout = %s, want 133.333334", winners[2].Payout)
	}

	stakes := d("425")
	if !s.PayoutTotal().Equal(stakes) {
		t.Errorf("payout total = %s, want %s", s.PayoutTotal(), stakes)
	}
}

// A market where nobody was right still resolves; the forfeited pool is
// retained rather than redistributed.
func TestCompute_NoWinnersRetainsPool(t *testing.T) {
	m := lockedMarket("m3")
	preds := []domain.Prediction{
		pred("m3", "0xaaa", domain.SideNo, 70, "100", "40"),
		pred("m3", "0xbbb", domain.SideNo, 80, "50", "30"),
	}
	reps := map[string]int{"0xaaa": 700, "0xbbb": 800}

	s, err := Compute(m, preds, reps, true, time.Now().UTC())
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if !s.RetainedPool.Equal(d("70")) {
		t.Errorf("retained pool = %s, want 70", s.RetainedPool)
	}
	for _, p := range s.Participants {
		want := p.Stake.Sub(p.Risk)
		if !p.Payout.Equal(want) {
			t.Errorf("%s payout = %s, want %s", p.Address, p.Payout, want)
		}
	}
}

// Winners who risked nothing (50% confidence) get their stake back but no
// share of the pool; with zero winner risk the pool is retained.
func TestCompute_ZeroRiskWinners(t *testing.T) {
	m := lockedMarket("m4")
	preds := []domain.Prediction{
		pred("m4", "0xaaa", domain.SideYes, 50, "100", "0"),
		pred("m4", "0xbbb", domain.SideNo, 60, "100", "20"),
	}
	reps := map[string]int{"0xaaa": 700, "0xbbb": 700}

	s, err := Compute(m, preds, reps, true, time.Now().UTC())
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if !s.RetainedPool.Equal(d("20")) {
		t.Errorf("retained pool = %s, want 20", s.RetainedPool)
	}
	winner := s.Participants[0]
	if !winner.Payout.Equal(d("100")) {
		t.Errorf("zero-risk winner payout = %s, want 100", winner.Payout)
	}
	if winner.ReputationDelta != 0 {
		t.Errorf("50%% prediction moved reputation by %d", winner.ReputationDelta)
	}
}

// An empty market resolves to an empty settlement.
func TestCompute_NoPredictions(t *testing.T) {
	s, err := Compute(lockedMarket("m5"), nil, nil, false, time.Now().UTC())
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if len(s.Participants) != 0 || !s.RetainedPool.IsZero() {
		t.Errorf("unexpected settlement for empty market: %+v", s)
	}
}

func TestCompute_InputOrderIrrelevant(t *testing.T) {
	m := lockedMarket("m6")
	a := pred("m6", "0xaaa", domain.SideYes, 70, "100", "40")
	b := pred("m6", "0xbbb", domain.SideYes, 80, "100", "60")
	c := pred("m6", "0xccc", domain.SideNo, 90, "100", "80")
	reps := map[string]int{"0xaaa": 700, "0xbbb": 800, "0xccc": 900}

	s1, err := Compute(m, []domain.Prediction{a, b, c}, reps, true, time.Unix(0, 0))
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	s2, err := Compute(m, []domain.Prediction{c, b, a}, reps, true, time.Unix(0, 0))
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	for i := range s1.Participants {
		p1, p2 := s1.Participants[i], s2.Participants[i]
		if p1.Address != p2.Address || !p1.Payout.Equal(p2.Payout) {
			t.Errorf("position %d differs: %+v vs %+v", i, p1, p2)
		}
	}
}

func TestCompute_RejectsWrongState(t *testing.T) {
	preds := []domain.Prediction{pred("m7", "0xaaa", domain.SideYes, 70, "100", "40")}
	reps := map[string]int{"0xaaa": 700}

	open := lockedMarket("m7")
	open.Status = domain.MarketStatusAwaitingDeadline
	if _, err := Compute(open, preds, reps, true, time.Now()); !errors.Is(err, domain.ErrMarketNotLocked) {
		t.Errorf("open market: err = %v, want ErrMarketNotLocked", err)
	}

	resolved := lockedMarket("m7")
	resolved.Status = domain.MarketStatusResolved
	if _, err := Compute(resolved, preds, reps, true, time.Now()); !errors.Is(err, domain.ErrAlreadyResolved) {
		t.Errorf("resolved market: err = %v, want ErrAlreadyResolved", err)
	}
}

func TestCompute_MissingReputation(t *testing.T) {
	m := lockedMarket("m8")
	preds := []domain.Prediction{pred("m8", "0xaaa", domain.SideYes, 70, "100", "40")}
	if _, err := Compute(m, preds, map[string]int{}, true, time.Now()); err == nil {
		t.Fatal("expected error for missing reputation")
	}
}

// --- Engine over in-memory fakes ---

type fakeLedger struct {
	markets      map[string]domain.Market
	predictions  map[string][]domain.Prediction
	participants map[string]domain.Participant
	applied      int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		markets:      map[string]domain.Market{},
		predictions:  map[string][]domain.Prediction{},
		participants: map[string]domain.Participant{},
	}
}

func (f *fakeLedger) Create(_ context.Context, m domain.Market) error {
	f.markets[m.ID] = m
	return nil
}

func (f *fakeLedger) GetByID(_ context.Context, id string) (domain.Market, error) {
	m, ok := f.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func (f *fakeLedger) List(context.Context, domain.MarketStatus, domain.ListOpts) ([]domain.Market, error) {
	return nil, nil
}

func (f *fakeLedger) ListDue(context.Context, time.Time) ([]domain.Market, error) {
	return nil, nil
}

func (f *fakeLedger) ListUnresolved(context.Context) ([]domain.Market, error) {
	return nil, nil
}

func (f *fakeLedger) TransitionStatus(_ context.Context, id string, from, to domain.MarketStatus) error {
	m, ok := f.markets[id]
	if !ok || m.Status != from {
		return domain.ErrNotFound
	}
	m.Status = to
	f.markets[id] = m
	return nil
}

func (f *fakeLedger) Lock(_ context.Context, id string, at time.Time) error {
	m := f.markets[id]
	m.Status = domain.MarketStatusLocked
	m.LockedAt = &at
	f.markets[id] = m
	return nil
}

func (f *fakeLedger) SetVerdict(_ context.Context, id string, verdict bool) error {
	m := f.markets[id]
	m.Verdict = &verdict
	m.Status = domain.MarketStatusSettling
	f.markets[id] = m
	return nil
}

func (f *fakeLedger) Count(context.Context) (int64, error) {
	return int64(len(f.markets)), nil
}

func (f *fakeLedger) Submit(_ context.Context, p domain.Prediction) error {
	f.predictions[p.MarketID] = append(f.predictions[p.MarketID], p)
	return nil
}

func (f *fakeLedger) Get(_ context.Context, marketID, address string) (domain.Prediction, error) {
	for _, p := range f.predictions[marketID] {
		if p.Address == address {
			return p, nil
		}
	}
	return domain.Prediction{}, domain.ErrNotFound
}

func (f *fakeLedger) ListByMarket(_ context.Context, marketID string) ([]domain.Prediction, error) {
	return f.predictions[marketID], nil
}

func (f *fakeLedger) ListByAddress(context.Context, string, domain.ListOpts) ([]domain.Prediction, error) {
	return nil, nil
}

func (f *fakeLedger) Ensure(_ context.Context, address string) (domain.Participant, error) {
	p, ok := f.participants[address]
	if !ok {
		p = domain.Participant{Address: address, Reputation: domain.ReputationBaseline}
		f.participants[address] = p
	}
	return p, nil
}

func (f *fakeLedger) GetByAddress(_ context.Context, address string) (domain.Participant, error) {
	p, ok := f.participants[address]
	if !ok {
		return domain.Participant{}, domain.ErrNotFound
	}
	return p, nil
}

func (f *fakeLedger) Leaderboard(context.Context, int) ([]domain.Participant, error) {
	return nil, nil
}

func (f *fakeLedger) Apply(_ context.Context, s domain.Settlement) error {
	m, ok := f.markets[s.MarketID]
	if !ok {
		return domain.ErrNotFound
	}
	if m.Resolved() {
		return domain.ErrAlreadyResolved
	}
	f.applied++
	outcome := s.Outcome
	now := time.Now().UTC()
	m.Status = domain.MarketStatusResolved
	m.Outcome = &outcome
	m.RetainedPool = s.RetainedPool
	m.ResolvedAt = &now
	f.markets[s.MarketID] = m
	for _, ps := range s.Participants {
		p := f.participants[ps.Address]
		p.Reputation = ps.ReputationAfter
		f.participants[ps.Address] = p
	}
	return nil
}

type fakeBus struct {
	published []string
	streamed  []string
}

func (f *fakeBus) Publish(_ context.Context, channel string, _ []byte) error {
	f.published = append(f.published, channel)
	return nil
}

func (f *fakeBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

func (f *fakeBus) StreamAppend(_ context.Context, stream string, _ []byte) error {
	f.streamed = append(f.streamed, stream)
	return nil
}

func (f *fakeBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func testEngine(ledger *fakeLedger, bus *fakeBus) *Engine {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewEngine(ledger, ledger, ledger, ledger, bus, logger)
}

func TestSettle_AppliesAndAnnounces(t *testing.T) {
	ctx := context.Background()
	ledger := newFakeLedger()
	bus := &fakeBus{}

	ledger.markets["m1"] = lockedMarket("m1")
	ledger.predictions["m1"] = []domain.Prediction{
		pred("m1", "0xaaa", domain.SideYes, 70, "100", "40"),
		pred("m1", "0xbbb", domain.SideNo, 60, "100", "20"),
	}
	ledger.participants["0xaaa"] = domain.Participant{Address: "0xaaa", Reputation: 700}
	ledger.participants["0xbbb"] = domain.Participant{Address: "0xbbb", Reputation: 700}

	engine := testEngine(ledger, bus)
	s, err := engine.Settle(ctx, "m1", true)
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if len(s.Participants) != 2 {
		t.Fatalf("participants = %d, want 2", len(s.Participants))
	}

	m := ledger.markets["m1"]
	if !m.Resolved() || m.Outcome == nil || !*m.Outcome {
		t.Errorf("market not resolved to YES: %+v", m)
	}
	if ledger.participants["0xaaa"].Reputation != 706 {
		t.Errorf("winner reputation = %d, want 706", ledger.participants["0xaaa"].Reputation)
	}
	if ledger.participants["0xbbb"].Reputation != 696 {
		t.Errorf("loser reputation = %d, want 696", ledger.participants["0xbbb"].Reputation)
	}

	if len(bus.published) != 1 || bus.published[0] != domain.ChannelMarketSettled {
		t.Errorf("published = %v, want [%s]", bus.published, domain.ChannelMarketSettled)
	}
	if len(bus.streamed) != 1 || bus.streamed[0] != domain.ChannelMarketSettled {
		t.Errorf("streamed = %v, want [%s]", bus.streamed, domain.ChannelMarketSettled)
	}
}

// Settling twice must not apply twice: the second call sees the resolved
// market and returns success without touching the ledger or the bus.
func TestSettle_Idempotent(t *testing.T) {
	ctx := context.Background()
	ledger := newFakeLedger()
	bus := &fakeBus{}

	ledger.markets["m1"] = lockedMarket("m1")
	ledger.predictions["m1"] = []domain.Prediction{
		pred("m1", "0xaaa", domain.SideYes, 70, "100", "40"),
	}
	ledger.participants["0xaaa"] = domain.Participant{Address: "0xaaa", Reputation: 700}

	engine := testEngine(ledger, bus)
	if _, err := engine.Settle(ctx, "m1", true); err != nil {
		t.Fatalf("first Settle: %v", err)
	}
	if _, err := engine.Settle(ctx, "m1", true); err != nil {
		t.Fatalf("second Settle: %v", err)
	}

	if ledger.applied != 1 {
		t.Errorf("Apply called %d times, want 1", ledger.applied)
	}
	if len(bus.published) != 1 {
		t.Errorf("published %d events, want 1", len(bus.published))
	}
	if ledger.participants["0xaaa"].Reputation != 706 {
		t.Errorf("reputation = %d, want 706 (applied once)", ledger.participants["0xaaa"].Reputation)
	}
}

func TestSettle_UnknownMarket(t *testing.T) {
	engine := testEngine(newFakeLedger(), &fakeBus{})
	if _, err := engine.Settle(context.Background(), "missing", true); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
