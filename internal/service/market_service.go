// Package service contains the application services between the HTTP
// surface and the stores: market lifecycle, prediction submission, and
// participant reads.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/veridict/veridict/internal/domain"
)

// Settler resolves a market with an obtained verdict. Implemented by the
// settlement engine.
type Settler interface {
	Settle(ctx context.Context, marketID string, outcome bool) (domain.Settlement, error)
}

// MarketService handles market creation, reads, and authority actions.
type MarketService struct {
	markets domain.MarketStore
	cache   domain.MarketCache
	audit   domain.AuditStore
	bus     domain.SignalBus
	settler Settler
	logger  *slog.Logger
}

// NewMarketService creates a MarketService with all required dependencies.
func NewMarketService(
	markets domain.MarketStore,
	cache domain.MarketCache,
	audit domain.AuditStore,
	bus domain.SignalBus,
	settler Settler,
	logger *slog.Logger,
) *MarketService {
	return &MarketService{
		markets: markets,
		cache:   cache,
		audit:   audit,
		bus:     bus,
		settler: settler,
		logger:  logger,
	}
}

// CreateMarket registers a new market and announces it on the bus. The
// authority address may later lock or force-resolve the market ahead of
// its deadline.
func (s *MarketService) CreateMarket(ctx context.Context, question string, deadline time.Time, authority string) (domain.Market, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return domain.Market{}, fmt.Errorf("market_service: empty question: %w", domain.ErrInvalidArgument)
	}
	now := time.Now().UTC()
	if !deadline.After(now) {
		return domain.Market{}, fmt.Errorf("market_service: deadline %s not in the future: %w", deadline, domain.ErrDeadlinePassed)
	}

	m := domain.Market{
		ID:        uuid.New().String(),
		Question:  question,
		Deadline:  deadline.UTC(),
		Authority: strings.ToLower(authority),
		Status:    domain.MarketStatusAwaitingDeadline,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.markets.Create(ctx, m); err != nil {
		return domain.Market{}, fmt.Errorf("market_service: create: %w", err)
	}

	s.auditLog(ctx, "market_created", map[string]any{
		"market_id": m.ID,
		"question":  m.Question,
		"deadline":  m.Deadline,
	})
	s.publish(ctx, domain.ChannelMarketCreated, domain.MarketEvent{
		Type:     domain.ChannelMarketCreated,
		MarketID: m.ID,
		Question: m.Question,
		Deadline: m.Deadline,
		At:       now,
	})

	s.logger.InfoContext(ctx, "market created",
		slog.String("market_id", m.ID),
		slog.Time("deadline", m.Deadline),
	)
	return m, nil
}

// GetMarket retrieves a market by ID, cache first with store fallback.
func (s *MarketService) GetMarket(ctx context.Context, id string) (domain.Market, error) {
	m, err := s.cache.Get(ctx, id)
	if err == nil {
		return m, nil
	}

	m, err = s.markets.GetByID(ctx, id)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: get %q: %w", id, err)
	}

	if cacheErr := s.cache.Set(ctx, m); cacheErr != nil {
		s.logger.WarnContext(ctx, "market cache set failed",
			slog.String("market_id", id),
			slog.String("error", cacheErr.Error()),
		)
	}
	return m, nil
}

// ListMarkets returns markets filtered by status ("" for all).
func (s *MarketService) ListMarkets(ctx context.Context, status domain.MarketStatus, opts domain.ListOpts) ([]domain.Market, error) {
	markets, err := s.markets.List(ctx, status, opts)
	if err != nil {
		return nil, fmt.Errorf("market_service: list: %w", err)
	}
	return markets, nil
}

// Count returns the total number of markets.
func (s *MarketService) Count(ctx context.Context) (int64, error) {
	count, err := s.markets.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("market_service: count: %w", err)
	}
	return count, nil
}

// LockMarket locks a market ahead of its deadline. Only the market's
// authority may do this; the deadline itself locks markets without anyone's
// involvement.
func (s *MarketService) LockMarket(ctx context.Context, id, requestedBy string) error {
	m, err := s.markets.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("market_service: lock %q: %w", id, err)
	}
	if !strings.EqualFold(requestedBy, m.Authority) {
		return fmt.Errorf("market_service: lock %q by %s: %w", id, requestedBy, domain.ErrUnauthorized)
	}
	if m.Locked() {
		return nil
	}

	now := time.Now().UTC()
	if err := s.markets.Lock(ctx, id, now); err != nil {
		return fmt.Errorf("market_service: lock %q: %w", id, err)
	}
	s.invalidate(ctx, id)

	s.auditLog(ctx, "market_locked", map[string]any{
		"market_id": id,
		"by":        strings.ToLower(requestedBy),
	})
	s.publish(ctx, domain.ChannelMarketLocked, domain.MarketEvent{
		Type:     domain.ChannelMarketLocked,
		MarketID: id,
		Question: m.Question,
		Deadline: m.Deadline,
		At:       now,
	})

	s.logger.InfoContext(ctx, "market locked by authority",
		slog.String("market_id", id),
		slog.String("by", requestedBy),
	)
	return nil
}

// ForceResolve lets the authority supply the verdict directly, bypassing
// the oracle. The market is locked first if still open; settlement runs
// through the same engine as pipeline resolutions.
func (s *MarketService) ForceResolve(ctx context.Context, id, requestedBy string, verdict bool) (domain.Settlement, error) {
	m, err := s.markets.GetByID(ctx, id)
	if err != nil {
		return domain.Settlement{}, fmt.Errorf("market_service: force resolve %q: %w", id, err)
	}
	if !strings.EqualFold(requestedBy, m.Authority) {
		return domain.Settlement{}, fmt.Errorf("market_service: force resolve %q by %s: %w", id, requestedBy, domain.ErrUnauthorized)
	}
	if m.Resolved() {
		return domain.Settlement{}, fmt.Errorf("market_service: force resolve %q: %w", id, domain.ErrAlreadyResolved)
	}

	now := time.Now().UTC()
	if !m.Locked() {
		if err := s.markets.Lock(ctx, id, now); err != nil {
			return domain.Settlement{}, fmt.Errorf("market_service: force resolve %q: lock: %w", id, err)
		}
	}
	if err := s.markets.SetVerdict(ctx, id, verdict); err != nil {
		return domain.Settlement{}, fmt.Errorf("market_service: force resolve %q: %w", id, err)
	}

	settlement, err := s.settler.Settle(ctx, id, verdict)
	if err != nil {
		return domain.Settlement{}, fmt.Errorf("market_service: force resolve %q: %w", id, err)
	}
	s.invalidate(ctx, id)

	s.auditLog(ctx, "market_force_resolved", map[string]any{
		"market_id": id,
		"by":        strings.ToLower(requestedBy),
		"verdict":   verdict,
	})
	return settlement, nil
}

func (s *MarketService) invalidate(ctx context.Context, id string) {
	if err := s.cache.Invalidate(ctx, id); err != nil {
		s.logger.WarnContext(ctx, "market cache invalidate failed",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
	}
}

func (s *MarketService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (s *MarketService) publish(ctx context.Context, channel string, ev domain.MarketEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, channel, payload); err != nil {
		s.logger.WarnContext(ctx, "event publish failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
	if err := s.bus.StreamAppend(ctx, channel, payload); err != nil {
		s.logger.WarnContext(ctx, "event stream append failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}
