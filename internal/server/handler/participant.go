package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/veridict/veridict/internal/domain"
	"github.com/veridict/veridict/internal/service"
)

// ParticipantService defines the methods that the participant handler
// requires from the service layer.
type ParticipantService interface {
	GetProfile(ctx context.Context, address string) (service.Profile, error)
	History(ctx context.Context, address string, opts domain.ListOpts) ([]domain.Prediction, error)
	Leaderboard(ctx context.Context, limit int) ([]service.Profile, error)
}

// ParticipantHandler serves participant profile and history endpoints.
type ParticipantHandler struct {
	participants ParticipantService
	logger       *slog.Logger
}

// NewParticipantHandler creates a ParticipantHandler with the given service.
func NewParticipantHandler(participants ParticipantService, logger *slog.Logger) *ParticipantHandler {
	return &ParticipantHandler{
		participants: participants,
		logger:       logger,
	}
}

// profileView is the wire representation of a participant profile.
type profileView struct {
	Address       string `json:"address"`
	Reputation    int    `json:"reputation"`
	Tier          string `json:"tier"`
	ConfidenceCap int    `json:"confidence_cap"`
}

func viewProfile(p service.Profile) profileView {
	return profileView{
		Address:       p.Address,
		Reputation:    p.Reputation,
		Tier:          string(p.Tier),
		ConfidenceCap: p.ConfidenceCap,
	}
}

// GetProfile returns a participant's reputation and tier standing.
// GET /api/participants/{address}
func (h *ParticipantHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	address := pathParam(r, "address")
	if address == "" {
		writeError(w, http.StatusBadRequest, "missing participant address")
		return
	}

	profile, err := h.participants.GetProfile(r.Context(), address)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, viewProfile(profile))
}

// History returns a participant's predictions, newest first.
// GET /api/participants/{address}/predictions
func (h *ParticipantHandler) History(w http.ResponseWriter, r *http.Request) {
	address := pathParam(r, "address")
	opts := parseListOpts(r)

	predictions, err := h.participants.History(r.Context(), address, opts)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	views := make([]predictionView, 0, len(predictions))
	for _, p := range predictions {
		views = append(views, viewPrediction(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"predictions": views,
		"limit":       opts.Limit,
		"offset":      opts.Offset,
	})
}

// Leaderboard returns the top participants by reputation.
// GET /api/leaderboard?limit=50
func (h *ParticipantHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	profiles, err := h.participants.Leaderboard(r.Context(), limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: leaderboard failed",
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	views := make([]profileView, 0, len(profiles))
	for _, p := range profiles {
		views = append(views, viewProfile(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"leaderboard": views})
}
