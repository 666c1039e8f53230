package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/veridict/veridict/internal/domain"
)

// fakeMarketService returns canned values; method funcs left nil fail the test
// if called.
type fakeMarketService struct {
	create func(ctx context.Context, question string, deadline time.Time, authority string) (domain.Market, error)
	get    func(ctx context.Context, id string) (domain.Market, error)
	list   func(ctx context.Context, status domain.MarketStatus, opts domain.ListOpts) ([]domain.Market, error)
	count  func(ctx context.Context) (int64, error)
	lock   func(ctx context.Context, id, requestedBy string) error
	force  func(ctx context.Context, id, requestedBy string, verdict bool) (domain.Settlement, error)
}

var _ MarketService = (*fakeMarketService)(nil)

func (f *fakeMarketService) CreateMarket(ctx context.Context, q string, d time.Time, a string) (domain.Market, error) {
	return f.create(ctx, q, d, a)
}

func (f *fakeMarketService) GetMarket(ctx context.Context, id string) (domain.Market, error) {
	return f.get(ctx, id)
}

func (f *fakeMarketService) ListMarkets(ctx context.Context, s domain.MarketStatus, o domain.ListOpts) ([]domain.Market, error) {
	return f.list(ctx, s, o)
}

func (f *fakeMarketService) Count(ctx context.Context) (int64, error) {
	return f.count(ctx)
}

func (f *fakeMarketService) LockMarket(ctx context.Context, id, by string) error {
	return f.lock(ctx, id, by)
}

func (f *fakeMarketService) ForceResolve(ctx context.Context, id, by string, v bool) (domain.Settlement, error) {
	return f.force(ctx, id, by, v)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleMarket() domain.Market {
	return domain.Market{
		ID:           "mkt-1",
		Question:     "Will it rain tomorrow?",
		Deadline:     time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC),
		Authority:    "0xabc",
		Status:       domain.MarketStatusAwaitingDeadline,
		YesRiskTotal: decimal.NewFromInt(120),
		NoRiskTotal:  decimal.NewFromInt(80),
		YesCount:     3,
		NoCount:      2,
		CreatedAt:    time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
	}
}

// routedRequest sends the request through a mux so PathValue is populated.
func routedRequest(pattern string, h http.HandlerFunc, r *http.Request) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	mux.HandleFunc(pattern, h)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)
	return w
}

func TestGetMarket(t *testing.T) {
	svc := &fakeMarketService{
		get: func(_ context.Context, id string) (domain.Market, error) {
			if id != "mkt-1" {
				return domain.Market{}, domain.ErrNotFound
			}
			return sampleMarket(), nil
		},
	}
	h := NewMarketHandler(svc, discardLogger())

	r := httptest.NewRequest(http.MethodGet, "/api/markets/mkt-1", nil)
	w := routedRequest("GET /api/markets/{id}", h.GetMarket, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var view struct {
		ID       string  `json:"id"`
		Question string  `json:"question"`
		Status   string  `json:"status"`
		YesRisk  string  `json:"yes_risk"`
		Outcome  *string `json:"outcome"`
	}
	if err := json.NewDecoder(w.Body).Decode(&view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.ID != "mkt-1" || view.Status != "awaiting_deadline" {
		t.Errorf("view = %+v", view)
	}
	if view.YesRisk != "120" {
		t.Errorf("yes_risk = %q, want 120", view.YesRisk)
	}
	if view.Outcome != nil {
		t.Errorf("unresolved market has outcome %q", *view.Outcome)
	}
}

func TestGetMarket_NotFound(t *testing.T) {
	svc := &fakeMarketService{
		get: func(context.Context, string) (domain.Market, error) {
			return domain.Market{}, domain.ErrNotFound
		},
	}
	h := NewMarketHandler(svc, discardLogger())

	r := httptest.NewRequest(http.MethodGet, "/api/markets/missing", nil)
	w := routedRequest("GET /api/markets/{id}", h.GetMarket, r)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestListMarkets(t *testing.T) {
	var gotStatus domain.MarketStatus
	var gotOpts domain.ListOpts
	svc := &fakeMarketService{
		list: func(_ context.Context, status domain.MarketStatus, opts domain.ListOpts) ([]domain.Market, error) {
			gotStatus, gotOpts = status, opts
			return []domain.Market{sampleMarket()}, nil
		},
		count: func(context.Context) (int64, error) { return 7, nil },
	}
	h := NewMarketHandler(svc, discardLogger())

	r := httptest.NewRequest(http.MethodGet, "/api/markets?status=locked&limit=20&offset=40", nil)
	w := routedRequest("GET /api/markets", h.ListMarkets, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if gotStatus != domain.MarketStatusLocked {
		t.Errorf("status filter = %q, want locked", gotStatus)
	}
	if gotOpts.Limit != 20 || gotOpts.Offset != 40 {
		t.Errorf("opts = %+v, want limit 20 offset 40", gotOpts)
	}
	var resp struct {
		Markets []json.RawMessage `json:"markets"`
		Total   int64             `json:"total"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Markets) != 1 || resp.Total != 7 {
		t.Errorf("markets = %d total = %d, want 1 and 7", len(resp.Markets), resp.Total)
	}
}

func TestLockMarket_ErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"unauthorized caller", domain.ErrUnauthorized, http.StatusForbidden},
		{"already resolved", domain.ErrAlreadyResolved, http.StatusConflict},
		{"unknown market", domain.ErrNotFound, http.StatusNotFound},
		{"unexpected error", io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &fakeMarketService{
				lock: func(context.Context, string, string) error { return tc.err },
			}
			h := NewMarketHandler(svc, discardLogger())

			r := httptest.NewRequest(http.MethodPost, "/api/markets/mkt-1/lock", nil)
			w := routedRequest("POST /api/markets/{id}/lock", h.LockMarket, r)

			if w.Code != tc.want {
				t.Errorf("status = %d, want %d", w.Code, tc.want)
			}
			if tc.want == http.StatusInternalServerError &&
				strings.Contains(w.Body.String(), io.ErrUnexpectedEOF.Error()) {
				t.Error("internal error detail leaked to client")
			}
		})
	}
}

func TestForceResolve(t *testing.T) {
	settlement := domain.Settlement{
		MarketID: "mkt-1",
		Outcome:  true,
		Participants: []domain.ParticipantSettlement{
			{Address: "0xwin", Correct: true, Payout: decimal.NewFromInt(150)},
			{Address: "0xlose", Correct: false, Payout: decimal.NewFromInt(60)},
		},
		RetainedPool: decimal.Zero,
	}
	var gotVerdict bool
	svc := &fakeMarketService{
		force: func(_ context.Context, id, _ string, verdict bool) (domain.Settlement, error) {
			gotVerdict = verdict
			return settlement, nil
		},
	}
	h := NewMarketHandler(svc, discardLogger())

	body := strings.NewReader(`{"outcome":"YES"}`)
	r := httptest.NewRequest(http.MethodPost, "/api/markets/mkt-1/resolve", body)
	w := routedRequest("POST /api/markets/{id}/resolve", h.ForceResolve, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	if gotVerdict != true {
		t.Error("verdict not forwarded as YES")
	}
	var resp struct {
		Outcome     string `json:"outcome"`
		Winners     int    `json:"winners"`
		PayoutTotal string `json:"payout_total"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Outcome != "YES" || resp.Winners != 1 {
		t.Errorf("resp = %+v", resp)
	}
	if resp.PayoutTotal != "210" {
		t.Errorf("payout_total = %q, want 210", resp.PayoutTotal)
	}
}

func TestForceResolve_BadOutcome(t *testing.T) {
	svc := &fakeMarketService{
		force: func(context.Context, string, string, bool) (domain.Settlement, error) {
			t.Fatal("service must not be called for a bad outcome")
			return domain.Settlement{}, nil
		},
	}
	h := NewMarketHandler(svc, discardLogger())

	for _, payload := range []string{`{"outcome":"MAYBE"}`, `{"outcome":""}`, `not json`} {
		r := httptest.NewRequest(http.MethodPost, "/api/markets/mkt-1/resolve", strings.NewReader(payload))
		w := routedRequest("POST /api/markets/{id}/resolve", h.ForceResolve, r)
		if w.Code != http.StatusBadRequest {
			t.Errorf("payload %q: status = %d, want 400", payload, w.Code)
		}
	}
}

func TestCreateMarket(t *testing.T) {
	var gotQuestion, gotAuthority string
	svc := &fakeMarketService{
		create: func(_ context.Context, q string, d time.Time, a string) (domain.Market, error) {
			gotQuestion, gotAuthority = q, a
			m := sampleMarket()
			m.Question = q
			m.Deadline = d
			return m, nil
		},
	}
	h := NewMarketHandler(svc, discardLogger())

	body := strings.NewReader(`{"question":"Will it rain?","deadline":"2026-09-01T12:00:00Z"}`)
	r := httptest.NewRequest(http.MethodPost, "/api/markets", body)
	w := routedRequest("POST /api/markets", h.CreateMarket, r)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", w.Code, w.Body.String())
	}
	if gotQuestion != "Will it rain?" {
		t.Errorf("question = %q", gotQuestion)
	}
	// Without the identity middleware the caller is anonymous; the service
	// layer decides whether that is acceptable.
	if gotAuthority != "" {
		t.Errorf("authority = %q, want empty without signed caller", gotAuthority)
	}
}

func TestCreateMarket_UnknownField(t *testing.T) {
	svc := &fakeMarketService{
		create: func(context.Context, string, time.Time, string) (domain.Market, error) {
			t.Fatal("service must not be called for a malformed body")
			return domain.Market{}, nil
		},
	}
	h := NewMarketHandler(svc, discardLogger())

	body := strings.NewReader(`{"question":"q","deadline":"2026-09-01T12:00:00Z","bogus":1}`)
	r := httptest.NewRequest(http.MethodPost, "/api/markets", body)
	w := routedRequest("POST /api/markets", h.CreateMarket, r)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}
