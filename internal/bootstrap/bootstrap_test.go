package bootstrap

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/spec-kit/incident-service/internal/config"
)

func TestOpenStoreSQLite(t *testing.T) {
	cfg := &config.Config{
		Store:  config.StoreConfig{Driver: config.StoreDriverSQLite},
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "boot.db")},
	}
	backend, err := OpenStore(context.Background(), cfg, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer backend.Close()
	if backend.Name != "sqlite" || backend.Store == nil {
		t.Fatalf("backend = %+v", backend)
	}
	if err := backend.Pinger.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestOpenStorePostgresRequiresDSN(t *testing.T) {
	cfg := &config.Config{Store: config.StoreConfig{Driver: config.StoreDriverPostgres}}
	if _, err := OpenStore(context.Background(), cfg, zaptest.NewLogger(t)); !errors.Is(err, ErrMissingDSN) {
		t.Fatalf("error = %v, want ErrMissingDSN", err)
	}
}

func TestLoadCalendar(t *testing.T) {
	cal, err := LoadCalendar(config.SLAConfig{StartHour: 8, EndHour: 18})
	if err != nil {
		t.Fatalf("default calendar: %v", err)
	}
	if len(cal.Years()) == 0 {
		t.Fatal("default calendar has no years")
	}

	path := filepath.Join(t.TempDir(), "holidays.yaml")
	table := "version: custom\ntimezone: UTC\nyears:\n  2030:\n    - \"01-01\"\n"
	if err := os.WriteFile(path, []byte(table), 0o600); err != nil {
		t.Fatal(err)
	}
	cal, err = LoadCalendar(config.SLAConfig{HolidaysFile: path, Timezone: "America/Bogota", StartHour: 7, EndHour: 17})
	if err != nil {
		t.Fatalf("file calendar: %v", err)
	}
	start, end := cal.Window()
	if cal.Version() != "custom" || cal.Location().String() != "America/Bogota" || start != 7 || end != 17 {
		t.Errorf("calendar = %s %s [%d,%d)", cal.Version(), cal.Location(), start, end)
	}

	if _, err := LoadCalendar(config.SLAConfig{Timezone: "Mars/Olympus", StartHour: 8, EndHour: 18}); err == nil {
		t.Error("expected timezone error")
	}
}
