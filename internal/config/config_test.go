package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("SLA_MONITOR_SCHEDULE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.Driver != StoreDriverPostgres {
		t.Errorf("driver = %s", cfg.Store.Driver)
	}
	if cfg.Kafka.Enabled() {
		t.Errorf("kafka enabled without brokers")
	}
	if cfg.Monitor.Schedule != "@every 5m" {
		t.Errorf("schedule = %s", cfg.Monitor.Schedule)
	}
	if cfg.SLA.StartHour != 8 || cfg.SLA.EndHour != 18 {
		t.Errorf("window = %d-%d", cfg.SLA.StartHour, cfg.SLA.EndHour)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "SQLite")
	t.Setenv("SQLITE_PATH", "/tmp/x.db")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("SLA_MONITOR_DEDUPE_TTL_MINUTES", "90")
	t.Setenv("HTTP_REQUEST_TIMEOUT_SECONDS", "0")
	t.Setenv("ASSIGNMENT_ROSTER_FILE", "/etc/incidents/roster.yaml")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.Driver != StoreDriverSQLite || cfg.SQLite.Path != "/tmp/x.db" {
		t.Errorf("store = %+v %+v", cfg.Store, cfg.SQLite)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Errorf("brokers = %v", cfg.Kafka.Brokers)
	}
	if cfg.Monitor.DedupeTTL() != 90*time.Minute {
		t.Errorf("dedupe ttl = %s", cfg.Monitor.DedupeTTL())
	}
	if cfg.App.RequestTimeout() != 0 {
		t.Errorf("request timeout = %s", cfg.App.RequestTimeout())
	}
	if cfg.Assign.RosterFile != "/etc/incidents/roster.yaml" {
		t.Errorf("roster file = %q", cfg.Assign.RosterFile)
	}
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("STORE_DRIVER", "mongo")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestSLALocation(t *testing.T) {
	loc, err := SLAConfig{}.Location()
	if err != nil || loc != nil {
		t.Errorf("empty timezone = %v, %v", loc, err)
	}
	if _, err := (SLAConfig{Timezone: "Nowhere/Town"}).Location(); err == nil {
		t.Error("expected error for unknown zone")
	}
}
