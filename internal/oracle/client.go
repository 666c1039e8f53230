// Package oracle provides the client for the external judgment source that
// decides market questions. The source answers a natural-language question
// with a strict binary verdict; anything else is a failure and never an
// implicit default.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/veridict/veridict/internal/domain"
	"github.com/veridict/veridict/internal/metrics"
)

// Source is the verdict interface the resolution pipeline depends on.
type Source interface {
	// Judge returns the binary verdict for the question. It returns
	// ErrAmbiguousVerdict when the source answered with anything other
	// than a strict YES or NO, and ErrNoVerdict when the source declined
	// to answer. Network failures and timeouts surface as plain errors.
	Judge(ctx context.Context, question string, deadline time.Time) (bool, error)
}

var _ Source = (*Client)(nil)

// Client is the HTTP client for a judgment endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// judgeRequest is the wire request to the judgment endpoint.
type judgeRequest struct {
	Question string    `json:"question"`
	Deadline time.Time `json:"deadline"`
}

// judgeResponse is the wire response. Verdict must be exactly "YES" or "NO";
// a populated Error field means the source declined.
type judgeResponse struct {
	Verdict string `json:"verdict"`
	Error   string `json:"error,omitempty"`
}

// NewClient creates a judgment source client.
//
// baseURL is the endpoint root; timeout bounds every call including body
// read, so a hung source never blocks the pipeline past it.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Judge asks the source to decide the question.
func (c *Client) Judge(ctx context.Context, question string, deadline time.Time) (bool, error) {
	verdict, err := c.judge(ctx, question, deadline)
	metrics.OracleCallsTotal.WithLabelValues(callResult(err)).Inc()
	return verdict, err
}

func (c *Client) judge(ctx context.Context, question string, deadline time.Time) (bool, error) {
	payload, err := json.Marshal(judgeRequest{Question: question, Deadline: deadline})
	if err != nil {
		return false, fmt.Errorf("oracle: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/judge", bytes.NewReader(payload))
	if err != nil {
		return false, fmt.Errorf("oracle: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("oracle: http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return false, fmt.Errorf("oracle: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("oracle: unexpected status %d: %s", resp.StatusCode, truncate(body, 200))
	}

	var jr judgeResponse
	if err := json.Unmarshal(body, &jr); err != nil {
		return false, fmt.Errorf("oracle: decode response: %w", err)
	}
	if jr.Error != "" {
		return false, fmt.Errorf("oracle: source declined: %s: %w", jr.Error, domain.ErrNoVerdict)
	}

	switch jr.Verdict {
	case "YES":
		return true, nil
	case "NO":
		return false, nil
	default:
		return false, fmt.Errorf("oracle: verdict %q: %w", jr.Verdict, domain.ErrAmbiguousVerdict)
	}
}

// callResult maps a Judge error to a metrics label.
func callResult(err error) string {
	var netErr net.Error
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return "timeout"
	case errors.Is(err, domain.ErrAmbiguousVerdict), errors.Is(err, domain.ErrNoVerdict):
		return "ambiguous"
	default:
		return "error"
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
