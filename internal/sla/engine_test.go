package sla

import (
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spec-kit/incident-service/internal/domain"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := NewEngine(newTestCalendar(t), zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return engine
}

func TestEvaluateActiveTicket(t *testing.T) {
	engine := newTestEngine(t)
	created := at(2025, 3, 10, 9, 0)
	ticket := &domain.Ticket{ID: "INC-0001", Priority: domain.TicketPriorityCritical, CreatedAt: created}

	tests := []struct {
		name      string
		now       time.Time
		risk      RiskState
		percent   float64
		label     string
		remaining time.Duration
	}{
		{"just opened", created, RiskOnTime, 0, "2h 0m", 2 * time.Hour},
		{"half consumed", at(2025, 3, 10, 10, 0), RiskOnTime, 50, "1h 0m", time.Hour},
		{"at risk threshold", at(2025, 3, 10, 10, 30), RiskAtRisk, 75, "0h 30m", 30 * time.Minute},
		{"at risk", at(2025, 3, 10, 10, 31), RiskAtRisk, 75.83333333333333, "0h 29m", 29 * time.Minute},
		{"deadline reached", at(2025, 3, 10, 11, 0), RiskBreached, 100, "Exceeded by 0h 0m", 0},
		{"breached", at(2025, 3, 10, 11, 1), RiskBreached, 100, "Exceeded by 0h 1m", 0},
		{"breached next day", at(2025, 3, 11, 9, 15), RiskBreached, 100, "Exceeded by 8h 15m", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := engine.Evaluate(ticket, tt.now)
			if err != nil {
				t.Fatalf("Evaluate: %v", err)
			}
			if ev.Risk != tt.risk {
				t.Errorf("risk = %s, want %s", ev.Risk, tt.risk)
			}
			if diff := ev.PercentConsumed - tt.percent; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("percent = %v, want %v", ev.PercentConsumed, tt.percent)
			}
			if ev.Label != tt.label {
				t.Errorf("label = %q, want %q", ev.Label, tt.label)
			}
			if ev.Remaining != tt.remaining {
				t.Errorf("remaining = %s, want %s", ev.Remaining, tt.remaining)
			}
			if !ev.Deadline.Equal(at(2025, 3, 10, 11, 0)) {
				t.Errorf("deadline = %s", ev.Deadline)
			}
			if ev.AllowanceHours != 2 {
				t.Errorf("allowance = %d, want 2", ev.AllowanceHours)
			}
		})
	}
}

func TestEvaluateWeekendDoesNotConsumeBudget(t *testing.T) {
	engine := newTestEngine(t)
	ticket := &domain.Ticket{ID: "INC-0002", Priority: domain.TicketPriorityHigh, CreatedAt: at(2025, 3, 14, 17, 0)}

	ev, err := engine.Evaluate(ticket, at(2025, 3, 17, 8, 0))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if ev.Elapsed != time.Hour {
		t.Errorf("elapsed = %s, want 1h", ev.Elapsed)
	}
	if ev.Risk != RiskOnTime || ev.Label != "7h 0m" {
		t.Errorf("got %s %q, want ON_TIME \"7h 0m\"", ev.Risk, ev.Label)
	}
}

func TestEvaluateResolvedTicket(t *testing.T) {
	engine := newTestEngine(t)
	resolved := at(2025, 3, 10, 13, 30)
	ticket := &domain.Ticket{
		ID:         "INC-0003",
		Priority:   domain.TicketPriorityCritical,
		Status:     domain.TicketStatusResolved,
		CreatedAt:  at(2025, 3, 10, 9, 0),
		ResolvedAt: &resolved,
	}

	ev, err := engine.Evaluate(ticket, at(2025, 3, 20, 9, 0))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if ev.Risk != RiskCompleted {
		t.Errorf("risk = %s, want COMPLETED", ev.Risk)
	}
	if ev.PercentConsumed != 100 {
		t.Errorf("percent = %v, want 100", ev.PercentConsumed)
	}
	if ev.Label != "Completed in 4h 30m" {
		t.Errorf("label = %q", ev.Label)
	}

	ticket.ResolvedAt = nil
	ev, err = engine.Evaluate(ticket, at(2025, 3, 20, 9, 0))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if ev.Label != "Completed" {
		t.Errorf("label without resolution time = %q", ev.Label)
	}
}

func TestEvaluateIsIdempotent(t *testing.T) {
	engine := newTestEngine(t)
	ticket := &domain.Ticket{ID: "INC-0004", Priority: domain.TicketPriorityStandard, CreatedAt: at(2025, 3, 21, 15, 12)}
	now := at(2025, 3, 25, 10, 44)

	first, err := engine.Evaluate(ticket, now)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	second, err := engine.Evaluate(ticket, now)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if first != second {
		t.Errorf("evaluations differ: %+v vs %+v", first, second)
	}
}

func TestEvaluateIsMonotonic(t *testing.T) {
	engine := newTestEngine(t)
	ticket := &domain.Ticket{ID: "INC-0005", Priority: domain.TicketPriorityHigh, CreatedAt: at(2025, 3, 13, 16, 20)}
	severity := map[RiskState]int{RiskOnTime: 0, RiskAtRisk: 1, RiskBreached: 2}

	var (
		lastPercent float64
		lastRisk    RiskState = RiskOnTime
	)
	for now := ticket.CreatedAt; now.Before(at(2025, 3, 20, 0, 0)); now = now.Add(13 * time.Minute) {
		ev, err := engine.Evaluate(ticket, now)
		if err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
		if ev.PercentConsumed < lastPercent {
			t.Fatalf("percent decreased at %s: %v < %v", now, ev.PercentConsumed, lastPercent)
		}
		if severity[ev.Risk] < severity[lastRisk] {
			t.Fatalf("risk regressed at %s: %s after %s", now, ev.Risk, lastRisk)
		}
		lastPercent, lastRisk = ev.PercentConsumed, ev.Risk
	}
	if lastRisk != RiskBreached {
		t.Errorf("final risk = %s, want BREACHED", lastRisk)
	}
}

func TestEvaluateErrors(t *testing.T) {
	engine := newTestEngine(t)

	if _, err := engine.Evaluate(nil, time.Now()); !errors.Is(err, ErrNilTicket) {
		t.Errorf("nil ticket error = %v", err)
	}
	_, err := engine.Evaluate(&domain.Ticket{ID: "INC-0006", Priority: domain.TicketPriorityLow}, time.Now())
	if !errors.Is(err, ErrMissingCreatedAt) {
		t.Errorf("missing created_at error = %v", err)
	}
	if _, err := engine.Deadline(time.Time{}, domain.TicketPriorityLow); !errors.Is(err, ErrMissingCreatedAt) {
		t.Errorf("Deadline zero time error = %v", err)
	}
	if _, err := NewEngine(nil, nil); !errors.Is(err, ErrNoCalendar) {
		t.Errorf("NewEngine(nil) error = %v", err)
	}
}

func TestAllowanceHours(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	engine, err := NewEngine(newTestCalendar(t), zap.New(core))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	tests := []struct {
		priority domain.TicketPriority
		want     int
	}{
		{domain.TicketPriorityUnavailable, 1},
		{domain.TicketPriorityUrgent, 1},
		{domain.TicketPriorityCritical, 2},
		{domain.TicketPriorityHigh, 8},
		{domain.TicketPriorityStandard, 12},
		{domain.TicketPriorityLow, 24},
		{"alta", 8},
	}
	for _, tt := range tests {
		if got := engine.AllowanceHours(tt.priority); got != tt.want {
			t.Errorf("AllowanceHours(%s) = %d, want %d", tt.priority, got, tt.want)
		}
	}
	if logs.Len() != 0 {
		t.Fatalf("unexpected warnings for known priorities: %d", logs.Len())
	}

	if got := engine.AllowanceHours("SOMEDAY"); got != DefaultAllowanceHours {
		t.Errorf("unknown priority allowance = %d, want %d", got, DefaultAllowanceHours)
	}
	warnings := logs.FilterMessage("unknown priority, using default sla allowance").All()
	if len(warnings) != 1 {
		t.Fatalf("warnings = %d, want 1", len(warnings))
	}
	if got := warnings[0].ContextMap()["priority"]; got != "SOMEDAY" {
		t.Errorf("warning priority field = %v", got)
	}
}

func TestAllowancesTable(t *testing.T) {
	got := Allowances()
	if len(got) != len(domain.Priorities) {
		t.Fatalf("len = %d, want %d", len(got), len(domain.Priorities))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Hours < got[i-1].Hours {
			t.Errorf("allowances not ordered by urgency: %v", got)
		}
	}
}

func TestSwapCalendar(t *testing.T) {
	engine := newTestEngine(t)
	ticket := &domain.Ticket{ID: "INC-0007", Priority: domain.TicketPriorityUnavailable, CreatedAt: at(2025, 3, 25, 17, 30)}

	before, err := engine.Evaluate(ticket, at(2025, 3, 25, 17, 30))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if want := at(2025, 3, 26, 8, 30); !before.Deadline.Equal(want) {
		t.Fatalf("deadline = %s, want %s", before.Deadline, want)
	}

	next, err := NewCalendar(HolidayTable{Version: "test-2025.2", Years: map[int][]string{2025: {"03-26"}}})
	if err != nil {
		t.Fatalf("NewCalendar: %v", err)
	}
	if err := engine.SwapCalendar(next); err != nil {
		t.Fatalf("SwapCalendar: %v", err)
	}
	if engine.Calendar().Version() != "test-2025.2" {
		t.Errorf("version = %s", engine.Calendar().Version())
	}
	after, err := engine.Evaluate(ticket, at(2025, 3, 25, 17, 30))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if want := at(2025, 3, 27, 8, 30); !after.Deadline.Equal(want) {
		t.Errorf("deadline after swap = %s, want %s", after.Deadline, want)
	}
	if err := engine.SwapCalendar(nil); !errors.Is(err, ErrNoCalendar) {
		t.Errorf("SwapCalendar(nil) error = %v", err)
	}
}

func TestSwapCalendarConcurrentWithEvaluate(t *testing.T) {
	engine := newTestEngine(t)
	alt, err := NewCalendar(HolidayTable{Version: "alt", Years: map[int][]string{2025: {"03-11"}}})
	if err != nil {
		t.Fatalf("NewCalendar: %v", err)
	}
	base := engine.Calendar()
	ticket := &domain.Ticket{ID: "INC-0008", Priority: domain.TicketPriorityHigh, CreatedAt: at(2025, 3, 10, 9, 0)}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			cal := base
			if i%2 == 0 {
				cal = alt
			}
			_ = engine.SwapCalendar(cal)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			if _, err := engine.Evaluate(ticket, at(2025, 3, 12, 12, 0)); err != nil {
				t.Errorf("Evaluate: %v", err)
				return
			}
		}
	}()
	wg.Wait()
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0h 0m"},
		{-time.Minute, "0h 0m"},
		{59 * time.Second, "0h 0m"},
		{90 * time.Minute, "1h 30m"},
		{27*time.Hour + 5*time.Minute, "27h 5m"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.in); got != tt.want {
			t.Errorf("FormatDuration(%s) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseTimestamp(t *testing.T) {
	cal := newTestCalendar(t)
	tests := []struct {
		raw     string
		want    time.Time
		wantErr error
	}{
		{"2025-03-10T09:00:00Z", at(2025, 3, 10, 9, 0), nil},
		{"2025-03-10T04:00:00-05:00", at(2025, 3, 10, 9, 0), nil},
		{"2025-03-10 09:00", at(2025, 3, 10, 9, 0), nil},
		{"2025-03-10", at(2025, 3, 10, 0, 0), nil},
		{"", time.Time{}, ErrMissingCreatedAt},
		{"yesterday", time.Time{}, ErrInvalidTimestamp},
	}
	for _, tt := range tests {
		got, err := cal.ParseTimestamp(tt.raw)
		if tt.wantErr != nil {
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ParseTimestamp(%q) error = %v, want %v", tt.raw, err, tt.wantErr)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseTimestamp(%q): %v", tt.raw, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("ParseTimestamp(%q) = %s, want %s", tt.raw, got, tt.want)
		}
	}
}
