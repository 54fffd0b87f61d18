package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/spec-kit/incident-service/internal/config"
	"github.com/spec-kit/incident-service/internal/events"
	"github.com/spec-kit/incident-service/internal/persistence"
	"github.com/spec-kit/incident-service/internal/repository"
	"github.com/spec-kit/incident-service/internal/sla"
	apperrors "github.com/spec-kit/incident-service/pkg/util/errorutil"
)

type fixture struct {
	store      *repository.Store
	engine     *sla.Engine
	dispatcher events.Dispatcher
	clock      *fakeClock
	recorder   *eventRecorder
	tickets    *TicketService
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type eventRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *eventRecorder) handle(_ context.Context, event events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *eventRecorder) types() []events.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)

	db, err := persistence.NewSQLite(context.Background(),
		config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "service.db")}, logger)
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	t.Cleanup(db.Close)

	cal, err := sla.NewCalendar(sla.HolidayTable{
		Version: "test-2025",
		Years:   map[int][]string{2025: {"01-01", "03-24", "04-17", "04-18"}},
	})
	if err != nil {
		t.Fatalf("calendar: %v", err)
	}
	engine, err := sla.NewEngine(cal, logger)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}

	f := &fixture{
		store:      repository.NewSQLiteStore(db.DB),
		engine:     engine,
		dispatcher: events.NewInMemoryDispatcher(),
		clock:      &fakeClock{now: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)},
		recorder:   &eventRecorder{},
	}
	for _, eventType := range events.AllEventTypes {
		f.dispatcher.Subscribe(eventType, f.recorder.handle)
	}
	f.tickets = NewTicketService(TicketDependencies{
		Store:      f.store,
		Engine:     engine,
		Dispatcher: f.dispatcher,
		Logger:     logger,
		Clock:      f.clock.Now,
	})
	return f
}

func (f *fixture) create(t *testing.T, priority string, createdAt time.Time) *TicketView {
	t.Helper()
	view, err := f.tickets.CreateTicket(context.Background(), "ana", TicketCreateInput{
		Title:       "Ledger sync stalled",
		Description: "Nightly ledger sync did not finish",
		Application: "ERP",
		Module:      "Contabilidad",
		Priority:    priority,
		CreatedAt:   &createdAt,
	})
	if err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}
	return view
}

func errorCode(err error) string {
	if de := apperrors.ToDomainError(err); de != nil {
		return de.Code
	}
	return ""
}

func ptr[T any](v T) *T {
	return &v
}
