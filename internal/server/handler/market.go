package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/veridict/veridict/internal/domain"
	"github.com/veridict/veridict/internal/server/middleware"
)

// MarketService defines the methods that the market handler requires from the
// service layer. It is declared locally so the handler package does not depend
// on the concrete service implementation.
type MarketService interface {
	CreateMarket(ctx context.Context, question string, deadline time.Time, authority string) (domain.Market, error)
	GetMarket(ctx context.Context, id string) (domain.Market, error)
	ListMarkets(ctx context.Context, status domain.MarketStatus, opts domain.ListOpts) ([]domain.Market, error)
	Count(ctx context.Context) (int64, error)
	LockMarket(ctx context.Context, id, requestedBy string) error
	ForceResolve(ctx context.Context, id, requestedBy string, verdict bool) (domain.Settlement, error)
}

// MarketHandler serves market lifecycle HTTP endpoints.
type MarketHandler struct {
	markets MarketService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler with the given service and logger.
func NewMarketHandler(markets MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets: markets,
		logger:  logger,
	}
}

// marketView is the wire representation of a market record.
type marketView struct {
	ID        string    `json:"id"`
	Question  string    `json:"question"`
	Deadline  time.Time `json:"deadline"`
	Authority string    `json:"authority"`
	Status    string    `json:"status"`

	YesRisk  string `json:"yes_risk"`
	NoRisk   string `json:"no_risk"`
	YesCount int    `json:"yes_count"`
	NoCount  int    `json:"no_count"`

	Outcome      *string `json:"outcome,omitempty"`
	RetainedPool string  `json:"retained_pool,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	LockedAt   *time.Time `json:"locked_at,omitempty"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

func viewMarket(m domain.Market) marketView {
	v := marketView{
		ID:         m.ID,
		Question:   m.Question,
		Deadline:   m.Deadline,
		Authority:  m.Authority,
		Status:     string(m.Status),
		YesRisk:    m.YesRiskTotal.String(),
		NoRisk:     m.NoRiskTotal.String(),
		YesCount:   m.YesCount,
		NoCount:    m.NoCount,
		CreatedAt:  m.CreatedAt,
		LockedAt:   m.LockedAt,
		ResolvedAt: m.ResolvedAt,
	}
	if m.Outcome != nil {
		side := domain.Side(*m.Outcome).String()
		v.Outcome = &side
		v.RetainedPool = m.RetainedPool.String()
	}
	return v
}

type createMarketRequest struct {
	Question string    `json:"question"`
	Deadline time.Time `json:"deadline"`
}

// CreateMarket opens a new market. The signed caller becomes the market
// authority permitted to lock and force-resolve it.
// POST /api/markets
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.AddressFromContext(r.Context())

	var req createMarketRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	market, err := h.markets.CreateMarket(r.Context(), req.Question, req.Deadline, caller)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: create market failed",
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, viewMarket(market))
}

// listMarketsResponse wraps the list endpoint output with metadata.
type listMarketsResponse struct {
	Markets []marketView `json:"markets"`
	Total   int64        `json:"total"`
	Limit   int          `json:"limit"`
	Offset  int          `json:"offset"`
}

// ListMarkets returns markets, optionally filtered by status.
// GET /api/markets?status=locked&limit=50&offset=0
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)
	status := domain.MarketStatus(r.URL.Query().Get("status"))

	markets, err := h.markets.ListMarkets(r.Context(), status, opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list markets failed",
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	total, err := h.markets.Count(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: count markets failed",
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	views := make([]marketView, 0, len(markets))
	for _, m := range markets {
		views = append(views, viewMarket(m))
	}
	writeJSON(w, http.StatusOK, listMarketsResponse{
		Markets: views,
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
}

// GetMarket returns a single market by its ID.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	market, err := h.markets.GetMarket(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, viewMarket(market))
}

// LockMarket closes a market to further predictions ahead of its deadline.
// Only the market authority may do this.
// POST /api/markets/{id}/lock
func (h *MarketHandler) LockMarket(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	caller, _ := middleware.AddressFromContext(r.Context())

	if err := h.markets.LockMarket(r.Context(), id, caller); err != nil {
		h.logger.WarnContext(r.Context(), "handler: lock market failed",
			slog.String("market_id", id),
			slog.String("caller", caller),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": string(domain.MarketStatusLocked)})
}

type resolveRequest struct {
	Outcome string `json:"outcome"` // "YES" or "NO"
}

// ForceResolve settles a market with an authority-supplied verdict, bypassing
// the oracle. Only the market authority may do this.
// POST /api/markets/{id}/resolve
func (h *MarketHandler) ForceResolve(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	caller, _ := middleware.AddressFromContext(r.Context())

	var req resolveRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	side, ok := parseSide(req.Outcome)
	if !ok {
		writeError(w, http.StatusBadRequest, `outcome must be "YES" or "NO"`)
		return
	}

	settlement, err := h.markets.ForceResolve(r.Context(), id, caller, bool(side))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: force resolve failed",
			slog.String("market_id", id),
			slog.String("caller", caller),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"market_id":     settlement.MarketID,
		"outcome":       domain.Side(settlement.Outcome).String(),
		"participants":  len(settlement.Participants),
		"winners":       len(settlement.Winners()),
		"payout_total":  settlement.PayoutTotal().String(),
		"retained_pool": settlement.RetainedPool.String(),
	})
}
