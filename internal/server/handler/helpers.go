package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/veridict/veridict/internal/domain"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps domain sentinel errors onto HTTP responses, using the
// sentinel's own message as the body. Unknown errors become an opaque 500 so
// internal detail never leaks to clients.
func writeDomainError(w http.ResponseWriter, err error) {
	for sentinel, status := range errStatus {
		if errors.Is(err, sentinel) {
			writeError(w, status, sentinel.Error())
			return
		}
	}
	writeError(w, http.StatusInternalServerError, "internal server error")
}

var errStatus = map[error]int{
	domain.ErrNotFound:            http.StatusNotFound,
	domain.ErrAlreadyExists:       http.StatusConflict,
	domain.ErrRateLimited:         http.StatusTooManyRequests,
	domain.ErrUnauthorized:        http.StatusForbidden,
	domain.ErrInvalidArgument:     http.StatusBadRequest,
	domain.ErrInvalidConfidence:   http.StatusUnprocessableEntity,
	domain.ErrMarketLocked:        http.StatusConflict,
	domain.ErrMarketNotLocked:     http.StatusConflict,
	domain.ErrDeadlinePassed:      http.StatusConflict,
	domain.ErrDeadlineNotReached:  http.StatusConflict,
	domain.ErrAlreadyResolved:     http.StatusConflict,
	domain.ErrAmbiguousVerdict:    http.StatusBadGateway,
	domain.ErrNoVerdict:           http.StatusBadGateway,
}

// decodeBody unmarshals a JSON request body into v, limiting the body size
// and rejecting unknown fields.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// parseListOpts extracts standard pagination parameters from the query string.
// Defaults: limit=50 (max 500), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return domain.ListOpts{
		Limit:  limit,
		Offset: offset,
	}
}

// pathParam extracts a named path parameter from the request using Go 1.22+
// built-in routing (http.Request.PathValue).
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}

// parseSide converts the wire representation of a prediction side.
func parseSide(s string) (domain.Side, bool) {
	switch s {
	case "YES", "yes":
		return domain.SideYes, true
	case "NO", "no":
		return domain.SideNo, true
	}
	return domain.SideNo, false
}
