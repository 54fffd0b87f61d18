// Package bootstrap builds the pieces shared by the API server and ansctl.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/incident-service/internal/config"
	"github.com/spec-kit/incident-service/internal/persistence"
	"github.com/spec-kit/incident-service/internal/repository"
	"github.com/spec-kit/incident-service/internal/sla"
)

// ErrMissingDSN is returned when the postgres driver is selected without a DSN.
var ErrMissingDSN = errors.New("STORE_DRIVER=postgres requires POSTGRES_DSN")

// Pinger reports backend reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Backend is an opened ticket store.
type Backend struct {
	Store  *repository.Store
	Name   string
	Pinger Pinger
	close  func()
}

// Close releases the underlying connection.
func (b *Backend) Close() {
	if b != nil && b.close != nil {
		b.close()
	}
}

// OpenStore connects to the configured driver and applies migrations.
func OpenStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Backend, error) {
	switch cfg.Store.Driver {
	case config.StoreDriverSQLite:
		db, err := persistence.NewSQLite(ctx, cfg.SQLite, logger)
		if err != nil {
			return nil, err
		}
		return &Backend{Store: repository.NewSQLiteStore(db.DB), Name: "sqlite", Pinger: db, close: db.Close}, nil
	default:
		if cfg.Postgres.DSN == "" {
			return nil, ErrMissingDSN
		}
		pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.Pool, logger); err != nil {
				pg.Close()
				return nil, fmt.Errorf("run migrations: %w", err)
			}
		}
		return &Backend{Store: repository.NewPostgresStore(pg.Pool), Name: "postgres", Pinger: pg, close: pg.Close}, nil
	}
}

// LoadCalendar builds the business calendar from the SLA settings.
func LoadCalendar(cfg config.SLAConfig) (*sla.Calendar, error) {
	opts := []sla.CalendarOption{sla.WithBusinessWindow(cfg.StartHour, cfg.EndHour)}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	if loc != nil {
		opts = append(opts, sla.WithLocation(loc))
	}
	return sla.LoadCalendar(cfg.HolidaysFile, opts...)
}
