package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/veridict/veridict/internal/domain"
)

// ReportHandler streams stored settlement reports from object storage.
type ReportHandler struct {
	blobs  domain.BlobReader
	logger *slog.Logger
}

// NewReportHandler creates a ReportHandler over the given blob reader.
func NewReportHandler(blobs domain.BlobReader, logger *slog.Logger) *ReportHandler {
	return &ReportHandler{
		blobs:  blobs,
		logger: logger,
	}
}

// GetSettlementReport returns the attested settlement report written when
// the market resolved. 404 until the market resolves and the report upload
// completes.
// GET /api/markets/{id}/report
func (h *ReportHandler) GetSettlementReport(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	body, err := h.blobs.Get(r.Context(), domain.SettlementReportPath(id))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "settlement report not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: fetch settlement report failed",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "report storage unavailable")
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.logger.WarnContext(r.Context(), "handler: report stream interrupted",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
	}
}
