package eventstore

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/a0799406417-svg/gemini-tts-app/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestOpenEphemeral(t *testing.T) {
	ctx := context.Background()
	cfg := config.EventStoreConfig{RetentionMode: "ephemeral", Path: filepath.Join(t.TempDir(), "never.db")}
	es, err := Open(ctx, cfg, newLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })
	if es.Enabled() {
		t.Fatal("ephemeral store should not persist")
	}
	if err := es.AppendRequest(ctx, "r1", "https://example.test", ""); err != nil {
		t.Fatalf("append request: %v", err)
	}
	if err := es.AppendEvent(ctx, Event{RequestID: "r1", Type: TypeRequested}); err != nil {
		t.Fatalf("append event: %v", err)
	}
	events, err := es.ListRequestEvents(ctx, "r1", 10)
	if err != nil || len(events) != 0 {
		t.Fatalf("expected nothing stored, got %d events (%v)", len(events), err)
	}
}

func TestAppendAndQuery(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.EventStoreConfig{Path: filepath.Join(tmp, "events.db"), RetentionMode: "session", PrivacyScope: "internal"}
	es, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open event store: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })

	requestID := "req-123"
	if err := es.AppendRequest(context.Background(), requestID, "https://example.test", ""); err != nil {
		t.Fatalf("append request: %v", err)
	}
	for _, typ := range []string{TypeRequested, TypeRewritten, TypeSynthesized} {
		if err := es.AppendEvent(context.Background(), Event{RequestID: requestID, Type: typ, Payload: []byte(`{"tone":"calm"}`)}); err != nil {
			t.Fatalf("append event: %v", err)
		}
	}
	events, err := es.ListRequestEvents(context.Background(), requestID, 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].Type != TypeRequested || events[2].Type != TypeSynthesized {
		t.Fatalf("unexpected order: %s .. %s", events[0].Type, events[2].Type)
	}
	if events[1].Privacy != "internal" {
		t.Fatalf("expected default privacy scope, got %q", events[1].Privacy)
	}
	if string(events[0].Payload) != `{"tone":"calm"}` {
		t.Fatalf("unexpected payload: %s", events[0].Payload)
	}
}

func TestPruneByDaysAndRequests(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.EventStoreConfig{Path: filepath.Join(tmp, "events.db"), RetentionMode: "persistent", RetentionDays: 1, MaxSessions: 1}
	es, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open event store: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })

	es.clock = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	if err := es.AppendRequest(context.Background(), "old-request", "", ""); err != nil {
		t.Fatalf("append request: %v", err)
	}
	if err := es.AppendEvent(context.Background(), Event{RequestID: "old-request", Type: TypeFailed}); err != nil {
		t.Fatalf("append event: %v", err)
	}

	es.clock = func() time.Time { return time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC) }
	if err := es.AppendRequest(context.Background(), "new-request", "", ""); err != nil {
		t.Fatalf("append request: %v", err)
	}
	if err := es.AppendEvent(context.Background(), Event{RequestID: "new-request", Type: TypeRequested}); err != nil {
		t.Fatalf("append event: %v", err)
	}
	if err := es.Prune(context.Background()); err != nil {
		t.Fatalf("prune: %v", err)
	}

	events, err := es.ListRequestEvents(context.Background(), "old-request", 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected old request pruned")
	}
	events, err = es.ListRequestEvents(context.Background(), "new-request", 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected new request kept, got %d events", len(events))
	}
}
