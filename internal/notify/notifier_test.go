package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
)

type memSender struct {
	name string
	sent []string
	err  error
}

func (m *memSender) Send(_ context.Context, title, _ string) error {
	m.sent = append(m.sent, title)
	return m.err
}

func (m *memSender) Name() string { return m.name }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotify_FiltersByEvent(t *testing.T) {
	s := &memSender{name: "mem"}
	n := NewNotifier([]Sender{s}, []string{EventOracleStuck}, testLogger())

	if err := n.Notify(context.Background(), EventMarketSettled, "settled", "x"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(s.sent) != 0 {
		t.Errorf("suppressed event reached sender: %v", s.sent)
	}

	if err := n.Notify(context.Background(), EventOracleStuck, "stuck", "x"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(s.sent) != 1 || s.sent[0] != "stuck" {
		t.Errorf("sent = %v, want [stuck]", s.sent)
	}
}

func TestNotify_EmptyAllowListPassesEverything(t *testing.T) {
	s := &memSender{name: "mem"}
	n := NewNotifier([]Sender{s}, nil, testLogger())

	if err := n.Notify(context.Background(), "anything", "t", "m"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(s.sent) != 1 {
		t.Errorf("sent = %v, want one delivery", s.sent)
	}
}

func TestNotify_OneFailingSenderDoesNotBlockOthers(t *testing.T) {
	bad := &memSender{name: "bad", err: errors.New("boom")}
	good := &memSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, testLogger())

	err := n.Notify(context.Background(), EventError, "t", "m")
	if err == nil {
		t.Fatal("expected combined error from failing sender")
	}
	if len(good.sent) != 1 {
		t.Error("healthy sender skipped after a failure")
	}
}
