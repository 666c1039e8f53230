package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/veridict/veridict/internal/domain"
	"github.com/veridict/veridict/internal/metrics"
	"github.com/veridict/veridict/internal/server/handler"
	"github.com/veridict/veridict/internal/server/middleware"
	"github.com/veridict/veridict/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string

	// Per-client request ceiling across the whole API surface. Zero disables
	// the blanket limiter; prediction submission keeps its own per-address
	// limit in the service layer.
	RateLimit       int
	RateLimitWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health       *handler.HealthHandler
	Status       *handler.StatusHandler
	Markets      *handler.MarketHandler
	Predictions  *handler.PredictionHandler
	Participants *handler.ParticipantHandler
	// Reports is nil when object storage is not configured; the report
	// route is simply not registered then.
	Reports *handler.ReportHandler
}

// Server is the HTTP + WebSocket API for the settlement engine.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered. Write endpoints
// require a signed request; the recovered address is the caller identity.
// limiter may be nil to disable blanket rate limiting.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Operational endpoints, no identity required.
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)
	mux.Handle("GET /metrics", metrics.Handler())

	// Market lifecycle.
	mux.Handle("POST /api/markets", middleware.RequireIdentity(http.HandlerFunc(handlers.Markets.CreateMarket)))
	mux.HandleFunc("GET /api/markets", handlers.Markets.ListMarkets)
	mux.HandleFunc("GET /api/markets/{id}", handlers.Markets.GetMarket)
	mux.Handle("POST /api/markets/{id}/lock", middleware.RequireIdentity(http.HandlerFunc(handlers.Markets.LockMarket)))
	mux.Handle("POST /api/markets/{id}/resolve", middleware.RequireIdentity(http.HandlerFunc(handlers.Markets.ForceResolve)))
	if handlers.Reports != nil {
		mux.HandleFunc("GET /api/markets/{id}/report", handlers.Reports.GetSettlementReport)
	}

	// Predictions.
	mux.Handle("POST /api/markets/{id}/predictions", middleware.RequireIdentity(http.HandlerFunc(handlers.Predictions.Submit)))
	mux.HandleFunc("GET /api/markets/{id}/predictions", handlers.Predictions.ListByMarket)
	mux.HandleFunc("GET /api/markets/{id}/predictions/{address}", handlers.Predictions.Get)

	// Participants.
	mux.HandleFunc("GET /api/participants/{address}", handlers.Participants.GetProfile)
	mux.HandleFunc("GET /api/participants/{address}/predictions", handlers.Participants.History)
	mux.HandleFunc("GET /api/leaderboard", handlers.Participants.Leaderboard)

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Middleware chain, innermost first.
	var h http.Handler = mux
	h = metrics.Middleware(h)
	if limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateLimitWindow)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.Identify()(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
