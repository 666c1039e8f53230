// Package metrics provides Prometheus instrumentation for the settlement
// engine and its HTTP surface.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// PredictionsTotal counts accepted predictions, partitioned by side.
	PredictionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "veridict_predictions_total",
		Help: "Total number of accepted predictions",
	}, []string{"side"})

	// PredictionRejections counts synchronously rejected submissions.
	PredictionRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "veridict_prediction_rejections_total",
		Help: "Predictions rejected at validation time",
	}, []string{"reason"})

	// SettlementsTotal counts committed settlements.
	SettlementsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "veridict_settlements_total",
		Help: "Total number of markets settled",
	})

	// SettlementDuration tracks end-to-end settlement latency.
	SettlementDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "veridict_settlement_duration_seconds",
		Help:    "Settlement computation and commit latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// OracleCallsTotal counts verdict source calls by result.
	OracleCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "veridict_oracle_calls_total",
		Help: "Verdict source calls by result (ok, timeout, ambiguous, error)",
	}, []string{"result"})

	// OracleRetryExhausted counts markets whose retry budget ran out.
	OracleRetryExhausted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "veridict_oracle_retry_exhausted_total",
		Help: "Resolution attempts abandoned after exhausting the retry budget",
	})

	// MarketsByStatus tracks the number of markets in each pipeline state.
	MarketsByStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "veridict_markets_by_status",
		Help: "Number of markets per lifecycle status",
	}, []string{"status"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "veridict_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "veridict_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "veridict_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
