package ledger

import (
	"path/filepath"
	"testing"
	"time"

	"git.home.luguber.info/inful/distcache/internal/config"
)

const testRunID = "3f1c2a9e-run"

func TestLedgerAppendAndByRun(t *testing.T) {
	l, err := NewSQLiteLedger(":memory:")
	if err != nil {
		t.Fatalf("failed to create ledger: %v", err)
	}
	defer func() { _ = l.Close() }()
	ctx := t.Context()

	events := []Event{
		{RunID: testRunID, Stage: "build", Type: EventStarted, Base: "a1", Head: "b2"},
		{RunID: testRunID, Stage: "build", Type: EventSucceeded, Metadata: map[string]string{"bytes": "42"}},
		{RunID: "other", Stage: "build", Type: EventFailed, Category: "merge", Message: "conflict"},
	}
	for _, e := range events {
		if err := l.Append(ctx, e); err != nil {
			t.Fatalf("failed to append event: %v", err)
		}
	}

	got, err := l.ByRun(ctx, testRunID)
	if err != nil {
		t.Fatalf("failed to get events: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].Type != EventStarted || got[0].Base != "a1" || got[0].Head != "b2" {
		t.Errorf("unexpected first event: %+v", got[0])
	}
	if got[1].Metadata["bytes"] != "42" {
		t.Errorf("expected metadata bytes=42, got %v", got[1].Metadata)
	}
	if got[0].Timestamp.IsZero() {
		t.Error("expected timestamp to be set")
	}
}

func TestLedgerRecent(t *testing.T) {
	l, err := NewSQLiteLedger(":memory:")
	if err != nil {
		t.Fatalf("failed to create ledger: %v", err)
	}
	defer func() { _ = l.Close() }()
	ctx := t.Context()

	base := time.Now()
	for i := range 5 {
		e := Event{RunID: testRunID, Stage: "build", Type: EventStarted, Timestamp: base.Add(time.Duration(i) * time.Second)}
		if err := l.Append(ctx, e); err != nil {
			t.Fatalf("failed to append event: %v", err)
		}
	}

	got, err := l.Recent(ctx, 3)
	if err != nil {
		t.Fatalf("failed to get recent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %d", len(got))
	}
	if got[0].ID <= got[1].ID {
		t.Errorf("expected newest first, got ids %d, %d", got[0].ID, got[1].ID)
	}
}

func TestLedgerPublishedTag(t *testing.T) {
	l, err := NewSQLiteLedger(":memory:")
	if err != nil {
		t.Fatalf("failed to create ledger: %v", err)
	}
	defer func() { _ = l.Close() }()
	ctx := t.Context()

	_ = l.Append(ctx, Event{RunID: "r1", Stage: "publish", Type: EventFailed, Tag: "sha-b2"})
	if _, ok, err := l.PublishedTag(ctx, "sha-b2"); err != nil || ok {
		t.Fatalf("failed publish must not count: ok=%v err=%v", ok, err)
	}

	_ = l.Append(ctx, Event{RunID: "r2", Stage: "publish", Type: EventSucceeded, Tag: "sha-b2"})
	e, ok, err := l.PublishedTag(ctx, "sha-b2")
	if err != nil || !ok {
		t.Fatalf("expected published tag: ok=%v err=%v", ok, err)
	}
	if e.RunID != "r2" {
		t.Errorf("expected run r2, got %s", e.RunID)
	}
}

func TestOpen(t *testing.T) {
	l, err := Open(config.LedgerConfig{Disabled: true, Path: "x.db"})
	if err != nil {
		t.Fatalf("open disabled: %v", err)
	}
	if _, ok := l.(Nop); !ok {
		t.Errorf("expected Nop ledger, got %T", l)
	}

	path := filepath.Join(t.TempDir(), "nested", "runs.db")
	l, err = Open(config.LedgerConfig{Path: path})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer func() { _ = l.Close() }()
	if err := l.Append(t.Context(), Event{RunID: "r", Stage: "build", Type: EventStarted}); err != nil {
		t.Fatalf("append: %v", err)
	}
}
