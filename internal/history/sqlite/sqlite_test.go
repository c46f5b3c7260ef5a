package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/captainplanet9000/Agent9001/internal/history"
)

func TestNewRejectsEmptyDSN(t *testing.T) {
	if _, err := New("  "); err == nil {
		t.Fatalf("expected error for empty DSN")
	}
}

func TestSendAndQueryRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lifecycle.db")
	sink, err := New(path)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = sink.Close() }()

	ctx := context.Background()
	events := []history.Event{
		{Type: history.EventLaunch, OccurredAt: time.Now(), PID: 100, Attempt: 1, State: "initializing"},
		{Type: history.EventExit, OccurredAt: time.Now(), PID: 100, ExitCode: 3, Attempt: 1, State: "crashed"},
		{Type: history.EventGiveUp, OccurredAt: time.Now(), ExitCode: 3, Attempt: 6, State: "stopped"},
	}
	for _, e := range events {
		if err := sink.Send(ctx, e); err != nil {
			t.Fatalf("send %s: %v", e.Type, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = db.Close() }()

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM backend_history`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 3 {
		t.Fatalf("rows = %d, want 3", count)
	}

	var event, state string
	var exitCode, attempt int
	err = db.QueryRow(`SELECT event, exit_code, attempt, state FROM backend_history WHERE event = 'giveup'`).
		Scan(&event, &exitCode, &attempt, &state)
	if err != nil {
		t.Fatalf("select giveup: %v", err)
	}
	if exitCode != 3 || attempt != 6 || state != "stopped" {
		t.Fatalf("giveup row = (%s, %d, %d, %s)", event, exitCode, attempt, state)
	}
}

func TestDSNPrefixStripped(t *testing.T) {
	sink, err := New("sqlite://" + filepath.Join(t.TempDir(), "h.db"))
	if err != nil {
		t.Fatalf("new with prefix: %v", err)
	}
	if err := sink.Send(context.Background(), history.Event{Type: history.EventReady, OccurredAt: time.Now()}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestCloseIsIdempotentOnNilDB(t *testing.T) {
	var s Sink
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
