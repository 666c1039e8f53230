// Package resolution drives locked markets to their terminal state: it
// watches deadlines, obtains verdicts from the judgment source, and hands
// each market to the settlement engine exactly once.
package resolution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/veridict/veridict/internal/domain"
	"github.com/veridict/veridict/internal/metrics"
	"github.com/veridict/veridict/internal/oracle"
	"github.com/veridict/veridict/internal/settle"
)

// Alerter delivers operator-facing alerts. Implemented by notify.Notifier.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Reporter persists a settlement report after a market resolves.
// Implemented by the blob report writer; nil disables reporting.
type Reporter interface {
	WriteSettlementReport(ctx context.Context, m domain.Market, s domain.Settlement) error
}

// Config tunes pipeline timing and the oracle retry budget.
type Config struct {
	// ScanInterval is the deadline scanner period.
	ScanInterval time.Duration
	// RetryBase is the first oracle retry delay; it doubles per attempt.
	RetryBase time.Duration
	// RetryMax caps the per-attempt delay.
	RetryMax time.Duration
	// RetryBudget is the number of oracle attempts per resolution pass
	// before the market is left pending and the operator alerted.
	RetryBudget int
	// LockTTL bounds how long one instance may hold a market's resolution
	// lock.
	LockTTL time.Duration
}

func (c Config) withDefaults() Config {
	if c.ScanInterval <= 0 {
		c.ScanInterval = 15 * time.Second
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 2 * time.Second
	}
	if c.RetryMax <= 0 {
		c.RetryMax = time.Minute
	}
	if c.RetryBudget <= 0 {
		c.RetryBudget = 5
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 2 * time.Minute
	}
	return c
}

// Pipeline is the resolution orchestrator. Run starts its loops; every
// market passes through resolve, which is safe to enter concurrently from
// any loop on any instance because a distributed per-market lock, the
// persisted verdict, and the settlement guard each make the overlapping
// paths converge.
type Pipeline struct {
	markets  domain.MarketStore
	verdicts domain.VerdictCache
	locks    domain.LockManager
	bus      domain.SignalBus
	audit    domain.AuditStore
	source   oracle.Source
	engine   *settle.Engine
	alerter  Alerter
	reporter Reporter
	cfg      Config
	logger   *slog.Logger
}

// NewPipeline creates a resolution pipeline. reporter may be nil.
func NewPipeline(
	markets domain.MarketStore,
	verdicts domain.VerdictCache,
	locks domain.LockManager,
	bus domain.SignalBus,
	audit domain.AuditStore,
	source oracle.Source,
	engine *settle.Engine,
	alerter Alerter,
	reporter Reporter,
	cfg Config,
	logger *slog.Logger,
) *Pipeline {
	return &Pipeline{
		markets:  markets,
		verdicts: verdicts,
		locks:    locks,
		bus:      bus,
		audit:    audit,
		source:   source,
		engine:   engine,
		alerter:  alerter,
		reporter: reporter,
		cfg:      cfg.withDefaults(),
		logger:   logger.With(slog.String("component", "resolution_pipeline")),
	}
}

// Run starts the pipeline loops and blocks until ctx is cancelled or a loop
// fails. On start it resumes every market left between locked and resolved
// by a previous run.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("resolution pipeline starting",
		slog.Duration("scan_interval", p.cfg.ScanInterval),
		slog.Int("retry_budget", p.cfg.RetryBudget),
	)

	if err := p.resume(ctx); err != nil {
		return fmt.Errorf("resolution: resume: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := p.runScanner(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("deadline scanner: %w", err)
	})

	g.Go(func() error {
		err := p.runSubscriber(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("lock subscriber: %w", err)
	})

	err := g.Wait()
	if err != nil {
		p.logger.Error("resolution pipeline stopped with error", slog.String("error", err.Error()))
		return err
	}
	p.logger.Info("resolution pipeline stopped cleanly")
	return nil
}

// resume picks up markets abandoned mid-resolution by a restart.
func (p *Pipeline) resume(ctx context.Context) error {
	pending, err := p.markets.ListUnresolved(ctx)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}
	p.logger.Info("resuming unresolved markets", slog.Int("count", len(pending)))
	for _, m := range pending {
		p.resolve(ctx, m.ID)
	}
	return nil
}

// runScanner locks markets whose deadline has passed and resolves them.
func (p *Pipeline) runScanner(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.scanDue(ctx)
		}
	}
}

func (p *Pipeline) scanDue(ctx context.Context) {
	now := time.Now().UTC()
	due, err := p.markets.ListDue(ctx, now)
	if err != nil {
		p.logger.Error("list due markets failed", slog.String("error", err.Error()))
		return
	}

	for _, m := range due {
		if err := p.markets.Lock(ctx, m.ID, now); err != nil {
			p.logger.Error("deadline lock failed",
				slog.String("market_id", m.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		p.logger.Info("market locked at deadline", slog.String("market_id", m.ID))
		p.auditLog(ctx, "market_locked", map[string]any{"market_id": m.ID, "by": "deadline"})
		p.publishLocked(ctx, m, now)
		p.resolve(ctx, m.ID)
	}
}

// runSubscriber resolves markets announced as locked on the bus, which
// covers authority locks issued through the API without waiting for the
// next scanner tick.
func (p *Pipeline) runSubscriber(ctx context.Context) error {
	ch, err := p.bus.Subscribe(ctx, domain.ChannelMarketLocked)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-ch:
			if !ok {
				return ctx.Err()
			}
			var ev domain.MarketEvent
			if err := json.Unmarshal(payload, &ev); err != nil {
				p.logger.Warn("bad lock event payload", slog.String("error", err.Error()))
				continue
			}
			p.resolve(ctx, ev.MarketID)
		}
	}
}

// resolve drives one locked market toward resolution. Failures leave the
// market in an intermediate state for a later pass; nothing here is
// fatal to the pipeline.
func (p *Pipeline) resolve(ctx context.Context, marketID string) {
	unlock, err := p.locks.Acquire(ctx, "resolve:"+marketID, p.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			return
		}
		p.logger.Error("acquire resolution lock failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
		return
	}
	defer unlock()

	m, err := p.markets.GetByID(ctx, marketID)
	if err != nil {
		p.logger.Error("load market failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
		return
	}
	if m.Resolved() || !m.Locked() {
		return
	}

	if m.Status == domain.MarketStatusLocked {
		if err := p.markets.TransitionStatus(ctx, marketID, domain.MarketStatusLocked, domain.MarketStatusVerdictPending); err != nil {
			p.logger.Error("transition to verdict_pending failed",
				slog.String("market_id", marketID),
				slog.String("error", err.Error()),
			)
			return
		}
	}

	verdict, ok := p.obtainVerdict(ctx, m)
	if !ok {
		return
	}

	// Persist before settling: a crash past this point resumes with the
	// same verdict and never asks the oracle again.
	if err := p.verdicts.Set(ctx, marketID, verdict); err != nil {
		p.logger.Warn("verdict cache write failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
	}
	if err := p.markets.SetVerdict(ctx, marketID, verdict); err != nil {
		p.logger.Error("persist verdict failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
		return
	}

	settlement, err := p.engine.Settle(ctx, marketID, verdict)
	if err != nil {
		p.logger.Error("settlement failed, will retry",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
		p.alert(ctx, "error", "Settlement failed",
			fmt.Sprintf("market %s: %v", marketID, err))
		return
	}

	p.alert(ctx, "market_settled", "Market settled",
		fmt.Sprintf("market %s resolved %s with %d participants",
			marketID, sideWord(verdict), len(settlement.Participants)))

	if p.reporter != nil {
		resolved, err := p.markets.GetByID(ctx, marketID)
		if err == nil {
			if err := p.reporter.WriteSettlementReport(ctx, resolved, settlement); err != nil {
				p.logger.Warn("settlement report write failed",
					slog.String("market_id", marketID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// obtainVerdict returns the verdict for the market, consulting in order the
// persisted market row, the verdict cache, and finally the oracle under the
// retry budget. ok is false when no verdict could be obtained this pass.
func (p *Pipeline) obtainVerdict(ctx context.Context, m domain.Market) (verdict, ok bool) {
	if m.Verdict != nil {
		return *m.Verdict, true
	}

	cached, err := p.verdicts.Get(ctx, m.ID)
	if err == nil {
		return cached, true
	}
	if !errors.Is(err, domain.ErrNotFound) {
		p.logger.Warn("verdict cache read failed",
			slog.String("market_id", m.ID),
			slog.String("error", err.Error()),
		)
	}

	delay := p.cfg.RetryBase
	for attempt := 1; attempt <= p.cfg.RetryBudget; attempt++ {
		verdict, err := p.source.Judge(ctx, m.Question, m.Deadline)
		if err == nil {
			return verdict, true
		}

		p.logger.Warn("oracle call failed",
			slog.String("market_id", m.ID),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
		if ctx.Err() != nil {
			return false, false
		}
		if attempt == p.cfg.RetryBudget {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false, false
		case <-timer.C:
		}
		delay *= 2
		if delay > p.cfg.RetryMax {
			delay = p.cfg.RetryMax
		}
	}

	metrics.OracleRetryExhausted.Inc()
	p.alert(ctx, "oracle_stuck", "Oracle retry budget exhausted",
		fmt.Sprintf("market %s (%q) remains verdict_pending after %d attempts",
			m.ID, m.Question, p.cfg.RetryBudget))
	return false, false
}

func (p *Pipeline) publishLocked(ctx context.Context, m domain.Market, at time.Time) {
	ev := domain.MarketEvent{
		Type:     domain.ChannelMarketLocked,
		MarketID: m.ID,
		Question: m.Question,
		Deadline: m.Deadline,
		At:       at,
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := p.bus.Publish(ctx, domain.ChannelMarketLocked, payload); err != nil {
		p.logger.Warn("publish lock event failed",
			slog.String("market_id", m.ID),
			slog.String("error", err.Error()),
		)
	}
	if err := p.bus.StreamAppend(ctx, domain.ChannelMarketLocked, payload); err != nil {
		p.logger.Warn("append lock event failed",
			slog.String("market_id", m.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (p *Pipeline) auditLog(ctx context.Context, event string, detail map[string]any) {
	if err := p.audit.Log(ctx, event, detail); err != nil {
		p.logger.Warn("audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (p *Pipeline) alert(ctx context.Context, event, title, message string) {
	if p.alerter == nil {
		return
	}
	if err := p.alerter.Notify(ctx, event, title, message); err != nil {
		p.logger.Warn("alert delivery failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func sideWord(outcome bool) string {
	if outcome {
		return "YES"
	}
	return "NO"
}
