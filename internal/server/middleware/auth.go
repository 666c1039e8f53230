package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/veridict/veridict/internal/crypto"
)

// Request signature headers. Clients sign the canonical auth message with
// their secp256k1 key; the recovered address becomes the caller identity.
const (
	HeaderAddress   = "X-Veridict-Address"
	HeaderSignature = "X-Veridict-Signature"
	HeaderTimestamp = "X-Veridict-Timestamp"
)

// maxClockSkew bounds how stale a signed request may be. Signatures outside
// the window are rejected to limit replay.
const maxClockSkew = 5 * time.Minute

type contextKey struct{}

// AddressFromContext returns the verified caller address established by the
// Identify middleware, if any.
func AddressFromContext(ctx context.Context) (string, bool) {
	addr, ok := ctx.Value(contextKey{}).(string)
	return addr, ok
}

// AuthMessage is the canonical text a client signs to authenticate a request.
func AuthMessage(method, path string, timestamp int64) []byte {
	return []byte(fmt.Sprintf("veridict:auth:%s:%s:%d", method, path, timestamp))
}

// Identify returns middleware that verifies signed requests. Requests carrying
// the signature headers get the recovered address attached to the context;
// requests without them pass through anonymously. A present but invalid
// signature is rejected outright.
func Identify() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sig := r.Header.Get(HeaderSignature)
			if sig == "" {
				next.ServeHTTP(w, r)
				return
			}

			claimed := strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderAddress)))
			if claimed == "" {
				writeUnauthorized(w, "missing address header")
				return
			}

			ts, err := strconv.ParseInt(r.Header.Get(HeaderTimestamp), 10, 64)
			if err != nil {
				writeUnauthorized(w, "missing or malformed timestamp header")
				return
			}
			if skew := time.Since(time.Unix(ts, 0)); skew > maxClockSkew || skew < -maxClockSkew {
				writeUnauthorized(w, "signature timestamp outside allowed window")
				return
			}

			recovered, err := crypto.RecoverAddress(AuthMessage(r.Method, r.URL.Path, ts), sig)
			if err != nil {
				writeUnauthorized(w, "malformed signature")
				return
			}
			if !strings.EqualFold(recovered, claimed) {
				writeUnauthorized(w, "signature does not match address")
				return
			}

			ctx := context.WithValue(r.Context(), contextKey{}, recovered)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireIdentity returns middleware that rejects requests lacking a verified
// caller address. Apply it after Identify on routes that mutate state.
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := AddressFromContext(r.Context()); !ok {
			writeUnauthorized(w, "signed request required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// writeUnauthorized sends a 401 response with a JSON error body.
func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}
