package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/veridict/veridict/internal/domain"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "test-key", 2*time.Second), srv
}

func TestJudge_StrictVerdicts(t *testing.T) {
	tests := []struct {
		verdict string
		want    bool
		wantErr error
	}{
		{"YES", true, nil},
		{"NO", false, nil},
		{"yes", false, domain.ErrAmbiguousVerdict},
		{"MAYBE", false, domain.ErrAmbiguousVerdict},
		{"", false, domain.ErrAmbiguousVerdict},
	}
	for _, tt := range tests {
		t.Run("verdict_"+tt.verdict, func(t *testing.T) {
			client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(judgeResponse{Verdict: tt.verdict})
			})
			got, err := client.Judge(context.Background(), "Will it rain?", time.Now())
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Judge: %v", err)
			}
			if got != tt.want {
				t.Errorf("verdict = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestJudge_SendsQuestionAndAuth(t *testing.T) {
	var gotReq judgeRequest
	var gotAuth string
	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/judge" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(judgeResponse{Verdict: "NO"})
	})

	deadline := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if _, err := client.Judge(context.Background(), "Will X happen?", deadline); err != nil {
		t.Fatalf("Judge: %v", err)
	}
	if gotReq.Question != "Will X happen?" {
		t.Errorf("question = %q", gotReq.Question)
	}
	if !gotReq.Deadline.Equal(deadline) {
		t.Errorf("deadline = %v, want %v", gotReq.Deadline, deadline)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("authorization = %q", gotAuth)
	}
}

func TestJudge_SourceDeclined(t *testing.T) {
	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(judgeResponse{Error: "question not resolvable yet"})
	})
	_, err := client.Judge(context.Background(), "q", time.Now())
	if !errors.Is(err, domain.ErrNoVerdict) {
		t.Fatalf("err = %v, want ErrNoVerdict", err)
	}
}

func TestJudge_ServerError(t *testing.T) {
	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal", http.StatusInternalServerError)
	})
	if _, err := client.Judge(context.Background(), "q", time.Now()); err == nil {
		t.Fatal("expected error for 500 response")
	}
}

func TestJudge_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)
	client := NewClient(srv.URL, "", 50*time.Millisecond)

	start := time.Now()
	_, err := client.Judge(context.Background(), "q", time.Now())
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("timeout took %v, want bounded by client timeout", elapsed)
	}
}
