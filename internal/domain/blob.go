package domain

import (
	"context"
	"io"
	"time"
)

// BlobInfo describes a stored object.
type BlobInfo struct {
	Path         string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// BlobReader retrieves data from object storage.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// SettlementReportPath is the object key of a market's settlement report.
// The archiver writes it; the API streams it back from here.
func SettlementReportPath(marketID string) string {
	return "reports/markets/" + marketID + ".json"
}

// Archiver moves settled history from the database to cold storage.
type Archiver interface {
	// ArchiveResolvedMarkets writes resolved markets (with their
	// predictions) that resolved before the cutoff to object storage and
	// returns the number of markets archived.
	ArchiveResolvedMarkets(ctx context.Context, before time.Time) (int64, error)
}
