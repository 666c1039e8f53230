package handler

import (
	"context"
	"net/http"
	"time"
)

// MarketCounter supplies the open-market count for the status snapshot.
type MarketCounter interface {
	Count(ctx context.Context) (int64, error)
}

// StatusHandler serves a runtime snapshot for dashboards.
type StatusHandler struct {
	mode      string
	startedAt time.Time
	markets   MarketCounter
}

// NewStatusHandler creates a StatusHandler. markets may be nil in resolver
// mode, in which case the market count is omitted.
func NewStatusHandler(mode string, startedAt time.Time, markets MarketCounter) *StatusHandler {
	return &StatusHandler{mode: mode, startedAt: startedAt, markets: markets}
}

// GetStatus responds with the current run mode, uptime, and market count.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"mode":           h.mode,
		"started_at":     h.startedAt.UTC().Format(time.RFC3339),
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	}
	if h.markets != nil {
		if total, err := h.markets.Count(r.Context()); err == nil {
			resp["markets"] = total
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
