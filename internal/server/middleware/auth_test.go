package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/veridict/veridict/internal/crypto"
)

const testKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func signedRequest(t *testing.T, method, path string, ts int64) *http.Request {
	t.Helper()
	signer, err := crypto.NewSigner(testKeyHex)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	sig, err := signer.Sign(AuthMessage(method, path, ts))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	r := httptest.NewRequest(method, path, nil)
	r.Header.Set(HeaderAddress, signer.Address())
	r.Header.Set(HeaderSignature, sig)
	r.Header.Set(HeaderTimestamp, strconv.FormatInt(ts, 10))
	return r
}

func identityProbe() (http.Handler, *string) {
	var got string
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if addr, ok := AddressFromContext(r.Context()); ok {
			got = addr
		}
		w.WriteHeader(http.StatusOK)
	})
	return Identify()(h), &got
}

func TestIdentify_ValidSignature(t *testing.T) {
	h, got := identityProbe()
	r := signedRequest(t, http.MethodPost, "/api/markets", time.Now().Unix())

	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.HasPrefix(*got, "0x") {
		t.Errorf("no caller address established, got %q", *got)
	}
	if *got != strings.ToLower(*got) {
		t.Errorf("address not lowercased: %q", *got)
	}
}

func TestIdentify_AnonymousPassesThrough(t *testing.T) {
	h, got := identityProbe()
	r := httptest.NewRequest(http.MethodGet, "/api/markets", nil)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if *got != "" {
		t.Errorf("anonymous request got address %q", *got)
	}
}

func TestIdentify_RejectsBadSignatures(t *testing.T) {
	now := time.Now().Unix()

	cases := []struct {
		name   string
		mutate func(t *testing.T, r *http.Request)
	}{
		{"wrong path signed", func(t *testing.T, r *http.Request) {
			// Signature covers a different path than the request.
			other := signedRequest(t, http.MethodPost, "/api/other", now)
			r.Header.Set(HeaderSignature, other.Header.Get(HeaderSignature))
		}},
		{"claimed address mismatch", func(t *testing.T, r *http.Request) {
			r.Header.Set(HeaderAddress, "0x0000000000000000000000000000000000000001")
		}},
		{"garbage signature", func(t *testing.T, r *http.Request) {
			r.Header.Set(HeaderSignature, "0xdeadbeef")
		}},
		{"stale timestamp", func(t *testing.T, r *http.Request) {
			stale := time.Now().Add(-time.Hour).Unix()
			fresh := signedRequest(t, http.MethodPost, "/api/markets", stale)
			r.Header = fresh.Header
		}},
		{"missing timestamp", func(t *testing.T, r *http.Request) {
			r.Header.Del(HeaderTimestamp)
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h, _ := identityProbe()
			r := signedRequest(t, http.MethodPost, "/api/markets", now)
			tc.mutate(t, r)

			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)

			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", w.Code)
			}
		})
	}
}

func TestRequireIdentity(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	h := Identify()(RequireIdentity(inner))

	// Anonymous request is blocked.
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/markets", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("anonymous: status = %d, want 401", w.Code)
	}

	// Signed request gets through.
	w = httptest.NewRecorder()
	h.ServeHTTP(w, signedRequest(t, http.MethodPost, "/api/markets", time.Now().Unix()))
	if w.Code != http.StatusNoContent {
		t.Errorf("signed: status = %d, want 204", w.Code)
	}
}

func TestAuthMessage_Canonical(t *testing.T) {
	msg := AuthMessage(http.MethodPost, "/api/markets/abc/lock", 1700000000)
	want := fmt.Sprintf("veridict:auth:POST:/api/markets/abc/lock:%d", 1700000000)
	if string(msg) != want {
		t.Errorf("AuthMessage = %q, want %q", msg, want)
	}
}
