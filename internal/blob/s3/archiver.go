package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/veridict/veridict/internal/crypto"
	"github.com/veridict/veridict/internal/domain"
)

// settlementReport is the JSON document written per resolved market. It is
// the externally verifiable record: rebuild the attestation message from
// the fields and check the signature against the authority address.
type settlementReport struct {
	MarketID     string    `json:"market_id"`
	Question     string    `json:"question"`
	Deadline     time.Time `json:"deadline"`
	Outcome      string    `json:"outcome"`
	ResolvedAt   time.Time `json:"resolved_at"`
	Participants int       `json:"participants"`
	Winners      int       `json:"winners"`
	LoserPool    string    `json:"loser_pool"`
	RetainedPool string    `json:"retained_pool"`
	PayoutTotal  string    `json:"payout_total"`

	Positions []reportPosition `json:"positions"`

	Authority   string `json:"authority,omitempty"`
	Attestation string `json:"attestation,omitempty"`
}

type reportPosition struct {
	Address         string `json:"address"`
	Side            string `json:"side"`
	Confidence      int    `json:"confidence"`
	Stake           string `json:"stake"`
	Risk            string `json:"risk"`
	Correct         bool   `json:"correct"`
	Payout          string `json:"payout"`
	ProfitLoss      string `json:"profit_loss"`
	ReputationDelta int    `json:"reputation_delta"`
}

// Archiver writes per-market settlement reports as they resolve and batches
// old resolved markets into cold storage. The primary store keeps its rows;
// deletion after a verified archive is a separate, explicit step.
type Archiver struct {
	writer      domain.BlobWriter
	markets     domain.MarketStore
	predictions domain.PredictionStore
	audit       domain.AuditStore
	signer      *crypto.Signer // nil disables attestations
}

var _ domain.Archiver = (*Archiver)(nil)

// NewArchiver creates an Archiver. signer may be nil, in which case reports
// carry no attestation.
func NewArchiver(
	writer domain.BlobWriter,
	markets domain.MarketStore,
	predictions domain.PredictionStore,
	audit domain.AuditStore,
	signer *crypto.Signer,
) *Archiver {
	return &Archiver{
		writer:      writer,
		markets:     markets,
		predictions: predictions,
		audit:       audit,
		signer:      signer,
	}
}

// WriteSettlementReport uploads the report for one freshly resolved market
// to reports/markets/{id}.json.
func (a *Archiver) WriteSettlementReport(ctx context.Context, m domain.Market, s domain.Settlement) error {
	resolvedAt := s.ComputedAt
	if m.ResolvedAt != nil {
		resolvedAt = *m.ResolvedAt
	}

	report := settlementReport{
		MarketID:     m.ID,
		Question:     m.Question,
		Deadline:     m.Deadline,
		Outcome:      outcomeWord(s.Outcome),
		ResolvedAt:   resolvedAt,
		Participants: len(s.Participants),
		Winners:      len(s.Winners()),
		LoserPool:    s.LoserPool.String(),
		RetainedPool: s.RetainedPool.String(),
		PayoutTotal:  s.PayoutTotal().String(),
	}
	for _, p := range s.Participants {
		report.Positions = append(report.Positions, reportPosition{
			Address:         p.Address,
			Side:            p.Side.String(),
			Confidence:      p.Confidence,
			Stake:           p.Stake.String(),
			Risk:            p.Risk.String(),
			Correct:         p.Correct,
			Payout:          p.Payout.String(),
			ProfitLoss:      p.ProfitLoss.String(),
			ReputationDelta: p.ReputationDelta,
		})
	}

	if a.signer != nil {
		sig, err := a.signer.SignAttestation(m.ID, s.Outcome, resolvedAt)
		if err != nil {
			return fmt.Errorf("s3blob: sign settlement report %s: %w", m.ID, err)
		}
		report.Authority = a.signer.Address()
		report.Attestation = sig
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("s3blob: marshal settlement report %s: %w", m.ID, err)
	}

	path := domain.SettlementReportPath(m.ID)
	if err := a.writer.Put(ctx, path, bytes.NewReader(data), "application/json"); err != nil {
		return fmt.Errorf("s3blob: upload settlement report %s: %w", m.ID, err)
	}
	return nil
}

// ArchiveResolvedMarkets uploads all markets resolved before the cutoff,
// with their predictions, as JSONL under archive/, and records the run in
// the audit log. It returns the number of archived markets.
func (a *Archiver) ArchiveResolvedMarkets(ctx context.Context, before time.Time) (int64, error) {
	markets, err := a.markets.List(ctx, domain.MarketStatusResolved, domain.ListOpts{Until: &before})
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive query: %w", err)
	}

	var old []domain.Market
	for _, m := range markets {
		if m.ResolvedAt != nil && m.ResolvedAt.Before(before) {
			old = append(old, m)
		}
	}
	if len(old) == 0 {
		return 0, nil
	}

	var predictions []domain.Prediction
	for _, m := range old {
		preds, err := a.predictions.ListByMarket(ctx, m.ID)
		if err != nil {
			return 0, fmt.Errorf("s3blob: archive predictions for %s: %w", m.ID, err)
		}
		predictions = append(predictions, preds...)
	}

	marketBuf, err := marshalJSONL(old)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive markets marshal: %w", err)
	}
	marketPath := archivePath("markets", before)
	if err := a.writer.Put(ctx, marketPath, bytes.NewReader(marketBuf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive markets upload: %w", err)
	}

	if len(predictions) > 0 {
		predBuf, err := marshalJSONL(predictions)
		if err != nil {
			return 0, fmt.Errorf("s3blob: archive predictions marshal: %w", err)
		}
		predPath := archivePath("predictions", before)
		if err := a.writer.Put(ctx, predPath, bytes.NewReader(predBuf), "application/x-ndjson"); err != nil {
			return 0, fmt.Errorf("s3blob: archive predictions upload: %w", err)
		}
	}

	count := int64(len(old))
	if err := a.audit.Log(ctx, "archive.markets", map[string]any{
		"path":   marketPath,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive audit log: %w", err)
	}
	return count, nil
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

func outcomeWord(outcome bool) string {
	if outcome {
		return "YES"
	}
	return "NO"
}
