package persistence

import (
	"context"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/spec-kit/incident-service/internal/config"
)

func TestNewSQLiteAppliesSchema(t *testing.T) {
	ctx := context.Background()
	cfg := config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "incidents.db")}

	store, err := NewSQLite(ctx, cfg, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	defer store.Close()

	for _, table := range []string{"tickets", "ticket_history", "ticket_comments"} {
		var name string
		err := store.DB.QueryRowContext(ctx,
			`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		if err != nil {
			t.Errorf("table %s: %v", table, err)
		}
	}
	if err := store.Ping(ctx); err != nil {
		t.Errorf("Ping: %v", err)
	}

	// Reopening runs the idempotent scripts again.
	store.Close()
	again, err := NewSQLite(ctx, cfg, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	again.Close()
}

func TestUnconfiguredBackendsReportNotConfigured(t *testing.T) {
	ctx := context.Background()
	var pg *Postgres
	if err := pg.Ping(ctx); err != ErrNotConfigured {
		t.Errorf("postgres ping = %v", err)
	}
	if err := (&Redis{}).Ping(ctx); err != ErrNotConfigured {
		t.Errorf("redis ping = %v", err)
	}
	if err := (&SQLite{}).Ping(ctx); err != ErrNotConfigured {
		t.Errorf("sqlite ping = %v", err)
	}
}
