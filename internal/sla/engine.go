package sla

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/incident-service/internal/domain"
)

// RiskState classifies how much of a ticket's SLA budget is consumed.
type RiskState string

const (
	RiskOnTime    RiskState = "ON_TIME"
	RiskAtRisk    RiskState = "AT_RISK"
	RiskBreached  RiskState = "BREACHED"
	RiskCompleted RiskState = "COMPLETED"
)

// RiskStates lists every classification in severity order.
var RiskStates = []RiskState{RiskOnTime, RiskAtRisk, RiskBreached, RiskCompleted}

// Thresholds on the consumed percentage of the allowance.
const (
	AtRiskPercent   = 75.0
	BreachedPercent = 100.0
)

const completedLabel = "Completed"

var (
	ErrNilTicket        = errors.New("sla: ticket is nil")
	ErrMissingCreatedAt = errors.New("sla: ticket has no creation time")
	ErrInvalidTimestamp = errors.New("sla: unparseable timestamp")
	ErrNoCalendar       = errors.New("sla: no business calendar configured")
)

// Evaluation is the derived SLA view of a ticket at a given instant.
type Evaluation struct {
	TicketID        string
	Priority        domain.TicketPriority
	AllowanceHours  int
	Deadline        time.Time
	Elapsed         time.Duration
	Remaining       time.Duration
	PercentConsumed float64
	Risk            RiskState
	Label           string
	EvaluatedAt     time.Time
}

// Engine computes SLA deadlines and risk against a swappable calendar.
// Evaluations are never cached: active tickets depend on the current time.
type Engine struct {
	calendar atomic.Pointer[Calendar]
	logger   *zap.Logger
}

// NewEngine returns an engine bound to cal.
func NewEngine(cal *Calendar, logger *zap.Logger) (*Engine, error) {
	if cal == nil {
		return nil, ErrNoCalendar
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{logger: logger}
	e.calendar.Store(cal)
	return e, nil
}

// Calendar returns the current calendar snapshot.
func (e *Engine) Calendar() *Calendar {
	return e.calendar.Load()
}

// SwapCalendar atomically replaces the calendar. Evaluations already in
// flight finish against the snapshot they started with.
func (e *Engine) SwapCalendar(cal *Calendar) error {
	if cal == nil {
		return ErrNoCalendar
	}
	old := e.calendar.Swap(cal)
	e.logger.Info("business calendar swapped",
		zap.String("old_version", old.Version()),
		zap.String("new_version", cal.Version()),
		zap.Ints("years", cal.Years()))
	return nil
}

// AllowanceHours returns the SLA budget for priority. Unknown priorities fall
// back to DefaultAllowanceHours with a warning.
func (e *Engine) AllowanceHours(priority domain.TicketPriority) int {
	hours, known := lookupAllowance(priority)
	if !known {
		e.logger.Warn("unknown priority, using default sla allowance",
			zap.String("priority", string(priority)),
			zap.Int("allowance_hours", hours))
	}
	return hours
}

// Deadline returns the business-hours deadline of a ticket created at
// createdAt with the given priority.
func (e *Engine) Deadline(createdAt time.Time, priority domain.TicketPriority) (time.Time, error) {
	if createdAt.IsZero() {
		return time.Time{}, ErrMissingCreatedAt
	}
	return e.calendar.Load().AddBusinessHours(createdAt, e.AllowanceHours(priority)), nil
}

// Evaluate derives the SLA fields of ticket at now.
func (e *Engine) Evaluate(ticket *domain.Ticket, now time.Time) (Evaluation, error) {
	if ticket == nil {
		return Evaluation{}, ErrNilTicket
	}
	if ticket.CreatedAt.IsZero() {
		return Evaluation{}, fmt.Errorf("ticket %s: %w", ticket.ID, ErrMissingCreatedAt)
	}

	cal := e.calendar.Load()
	allowance := e.AllowanceHours(ticket.Priority)
	budget := time.Duration(allowance) * time.Hour

	ev := Evaluation{
		TicketID:       ticket.ID,
		Priority:       ticket.Priority,
		AllowanceHours: allowance,
		Deadline:       cal.AddBusinessHours(ticket.CreatedAt, allowance),
		EvaluatedAt:    now,
	}

	if ticket.IsResolved() {
		ev.Risk = RiskCompleted
		ev.PercentConsumed = 100
		ev.Label = completedLabel
		if ticket.ResolvedAt != nil {
			ev.Elapsed = cal.BusinessTime(ticket.CreatedAt, *ticket.ResolvedAt)
			ev.Label = completedLabel + " in " + FormatDuration(ev.Elapsed)
		}
		return ev, nil
	}

	ev.Elapsed = cal.BusinessTime(ticket.CreatedAt, now)
	ev.PercentConsumed = consumedPercent(ev.Elapsed, budget)

	switch {
	case ev.PercentConsumed >= BreachedPercent:
		ev.Risk = RiskBreached
		ev.Label = "Exceeded by " + FormatDuration(ev.Elapsed-budget)
	case ev.PercentConsumed >= AtRiskPercent:
		ev.Risk = RiskAtRisk
		ev.Remaining = budget - ev.Elapsed
		ev.Label = FormatDuration(ev.Remaining)
	default:
		ev.Risk = RiskOnTime
		ev.Remaining = budget - ev.Elapsed
		ev.Label = FormatDuration(ev.Remaining)
	}
	return ev, nil
}

func consumedPercent(elapsed, budget time.Duration) float64 {
	if budget <= 0 {
		return 100
	}
	pct := float64(elapsed) / float64(budget) * 100
	if pct > 100 {
		return 100
	}
	return pct
}

// FormatDuration renders d as "{hours}h {minutes}m", truncated to the minute.
// Negative durations render as zero.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	hours := int(d / time.Hour)
	minutes := int((d % time.Hour) / time.Minute)
	return fmt.Sprintf("%dh %dm", hours, minutes)
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTimestamp parses raw with the layouts accepted for ticket creation
// times. Values without a zone are read in the calendar's time zone.
func (c *Calendar) ParseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, ErrMissingCreatedAt
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, raw, c.location); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, raw)
}
