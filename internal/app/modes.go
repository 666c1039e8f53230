package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/veridict/veridict/internal/oracle"
	"github.com/veridict/veridict/internal/resolution"
	"github.com/veridict/veridict/internal/server"
	"github.com/veridict/veridict/internal/server/handler"
	"github.com/veridict/veridict/internal/server/ws"
	"github.com/veridict/veridict/internal/service"
	"github.com/veridict/veridict/internal/settle"
)

// APIMode serves the REST + WebSocket API without running the resolution
// pipeline. Deadline markets stay locked until a resolver instance picks
// them up; authority force-resolution still works.
func (a *App) APIMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting api mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

// ResolverMode runs the resolution pipeline headless: deadline scanning,
// oracle querying, settlement, and archival. No HTTP surface.
func (a *App) ResolverMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting resolver mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startResolver(ctx, g, deps)
	return g.Wait()
}

// FullMode runs everything in one process: the API server and the
// resolution pipeline.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startResolver(ctx, g, deps)
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps)
	}
	return g.Wait()
}

// newEngine builds the settlement engine over the wired stores.
func (a *App) newEngine(deps *Dependencies) *settle.Engine {
	return settle.NewEngine(
		deps.MarketStore,
		deps.PredictionStore,
		deps.ParticipantStore,
		deps.SettlementStore,
		deps.SignalBus,
		a.logger,
	)
}

// startResolver adds the resolution pipeline and, when object storage is
// wired, the periodic archive loop to the errgroup.
func (a *App) startResolver(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	source := oracle.NewClient(
		a.cfg.Oracle.BaseURL,
		a.cfg.Oracle.APIKey,
		a.cfg.Oracle.Timeout.Duration,
	)

	var reporter resolution.Reporter
	if r, ok := deps.Archiver.(resolution.Reporter); ok {
		reporter = r
	}

	pipe := resolution.NewPipeline(
		deps.MarketStore,
		deps.VerdictCache,
		deps.LockManager,
		deps.SignalBus,
		deps.AuditStore,
		source,
		a.newEngine(deps),
		deps.Notifier,
		reporter,
		resolution.Config{
			ScanInterval: a.cfg.Resolution.ScanInterval.Duration,
			RetryBase:    a.cfg.Resolution.RetryBase.Duration,
			RetryMax:     a.cfg.Resolution.RetryMax.Duration,
			RetryBudget:  a.cfg.Resolution.RetryBudget,
			LockTTL:      a.cfg.Resolution.LockTTL.Duration,
		},
		a.logger,
	)
	g.Go(func() error {
		return pipe.Run(ctx)
	})

	if deps.Archiver != nil {
		retention := time.Duration(a.cfg.Market.ArchiveRetentionDays) * 24 * time.Hour
		g.Go(func() error {
			ticker := time.NewTicker(24 * time.Hour)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					cutoff := time.Now().UTC().Add(-retention)
					count, err := deps.Archiver.ArchiveResolvedMarkets(ctx, cutoff)
					if err != nil {
						a.logger.ErrorContext(ctx, "archive run failed",
							slog.String("error", err.Error()),
						)
						continue
					}
					if count > 0 {
						a.logger.InfoContext(ctx, "archived resolved markets",
							slog.Int64("count", count),
							slog.Time("cutoff", cutoff),
						)
					}
				}
			}
		})
	}
}

// startHTTPServer adds the API server and WebSocket hub goroutines to the
// given errgroup. The server is shut down gracefully when the context is
// cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	engine := a.newEngine(deps)

	marketSvc := service.NewMarketService(
		deps.MarketStore, deps.MarketCache, deps.AuditStore,
		deps.SignalBus, engine, a.logger,
	)
	predictionSvc := service.NewPredictionService(
		deps.MarketStore, deps.PredictionStore, deps.ParticipantStore,
		deps.MarketCache, deps.RateLimiter,
		deps.Stake, a.cfg.Market.SubmitLimit, a.logger,
	)
	participantSvc := service.NewParticipantService(deps.ParticipantStore, deps.PredictionStore)

	hub := ws.NewHub(deps.SignalBus, a.logger)
	g.Go(func() error {
		if err := hub.Run(ctx); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	})

	handlers := server.Handlers{
		Health: handler.NewHealthHandler(map[string]handler.Pinger{
			"postgres": deps.Postgres.Pool(),
			"redis":    deps.Redis,
		}, a.logger),
		Status:       handler.NewStatusHandler(a.cfg.Mode, time.Now().UTC(), marketSvc),
		Markets:      handler.NewMarketHandler(marketSvc, a.logger),
		Predictions:  handler.NewPredictionHandler(predictionSvc, a.logger),
		Participants: handler.NewParticipantHandler(participantSvc, a.logger),
	}
	if deps.BlobReader != nil {
		handlers.Reports = handler.NewReportHandler(deps.BlobReader, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		RateLimit:       a.cfg.Server.RateLimit,
		RateLimitWindow: a.cfg.Server.RateLimitWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
