package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/veridict/veridict/internal/domain"
	"github.com/veridict/veridict/internal/server/middleware"
)

// PredictionService defines the methods that the prediction handler requires
// from the service layer.
type PredictionService interface {
	Submit(ctx context.Context, marketID, address string, side domain.Side, confidence int) (domain.Prediction, error)
	GetPrediction(ctx context.Context, marketID, address string) (domain.Prediction, error)
	ListByMarket(ctx context.Context, marketID string) ([]domain.Prediction, error)
}

// PredictionHandler serves prediction submission and lookup endpoints.
type PredictionHandler struct {
	predictions PredictionService
	logger      *slog.Logger
}

// NewPredictionHandler creates a PredictionHandler with the given service.
func NewPredictionHandler(predictions PredictionService, logger *slog.Logger) *PredictionHandler {
	return &PredictionHandler{
		predictions: predictions,
		logger:      logger,
	}
}

// predictionView is the wire representation of a prediction.
type predictionView struct {
	MarketID   string `json:"market_id"`
	Address    string `json:"address"`
	Side       string `json:"side"`
	Confidence int    `json:"confidence"`
	Stake      string `json:"stake"`
	Risk       string `json:"risk"`

	Outcome         *string `json:"outcome,omitempty"`
	Correct         *bool   `json:"correct,omitempty"`
	Payout          string  `json:"payout,omitempty"`
	ProfitLoss      string  `json:"profit_loss,omitempty"`
	ReputationDelta int     `json:"reputation_delta,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	SettledAt *time.Time `json:"settled_at,omitempty"`
}

func viewPrediction(p domain.Prediction) predictionView {
	v := predictionView{
		MarketID:   p.MarketID,
		Address:    p.Address,
		Side:       p.Side.String(),
		Confidence: p.Confidence,
		Stake:      p.Stake.String(),
		Risk:       p.Risk.String(),
		Correct:    p.Correct,
		CreatedAt:  p.CreatedAt,
		SettledAt:  p.SettledAt,
	}
	if p.Outcome != nil {
		side := domain.Side(*p.Outcome).String()
		v.Outcome = &side
	}
	if p.Settled() {
		v.Payout = p.Payout.String()
		v.ProfitLoss = p.ProfitLoss.String()
		v.ReputationDelta = p.ReputationDelta
	}
	return v
}

type submitRequest struct {
	Side       string `json:"side"` // "YES" or "NO"
	Confidence int    `json:"confidence"`
}

// Submit records the signed caller's prediction on a market.
// POST /api/markets/{id}/predictions
func (h *PredictionHandler) Submit(w http.ResponseWriter, r *http.Request) {
	marketID := pathParam(r, "id")
	caller, _ := middleware.AddressFromContext(r.Context())

	var req submitRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	side, ok := parseSide(req.Side)
	if !ok {
		writeError(w, http.StatusBadRequest, `side must be "YES" or "NO"`)
		return
	}

	prediction, err := h.predictions.Submit(r.Context(), marketID, caller, side, req.Confidence)
	if err != nil {
		h.logger.WarnContext(r.Context(), "handler: submit prediction failed",
			slog.String("market_id", marketID),
			slog.String("address", caller),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, viewPrediction(prediction))
}

// ListByMarket returns every prediction recorded on a market.
// GET /api/markets/{id}/predictions
func (h *PredictionHandler) ListByMarket(w http.ResponseWriter, r *http.Request) {
	marketID := pathParam(r, "id")

	predictions, err := h.predictions.ListByMarket(r.Context(), marketID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	views := make([]predictionView, 0, len(predictions))
	for _, p := range predictions {
		views = append(views, viewPrediction(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"predictions": views})
}

// Get returns one participant's prediction on a market.
// GET /api/markets/{id}/predictions/{address}
func (h *PredictionHandler) Get(w http.ResponseWriter, r *http.Request) {
	marketID := pathParam(r, "id")
	address := pathParam(r, "address")

	prediction, err := h.predictions.GetPrediction(r.Context(), marketID, address)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, viewPrediction(prediction))
}
