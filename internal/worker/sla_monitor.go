package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/spec-kit/incident-service/internal/config"
	"github.com/spec-kit/incident-service/internal/domain"
	"github.com/spec-kit/incident-service/internal/events"
	"github.com/spec-kit/incident-service/internal/observability"
	"github.com/spec-kit/incident-service/internal/repository"
	"github.com/spec-kit/incident-service/internal/service"
	"github.com/spec-kit/incident-service/internal/sla"
)

// ErrMonitorBusy is returned by RunOnce while another pass is running.
var ErrMonitorBusy = errors.New("sla monitor: run already in progress")

const dedupeKeyPrefix = "sla:notified:"

// MonitorReport summarizes one monitor pass.
type MonitorReport struct {
	Scanned  int
	ByRisk   map[string]int
	Notified int
	Failed   int
}

// SLAMonitor periodically evaluates active tickets and raises alerts when
// they become at risk or breached. Each (ticket, risk) pair alerts once.
type SLAMonitor struct {
	tickets    repository.TicketRepository
	engine     *sla.Engine
	dispatcher events.Dispatcher
	deduper    Deduper
	metrics    *observability.Metrics
	logger     *zap.Logger
	cfg        config.MonitorConfig
	now        func() time.Time
	running    atomic.Bool
}

// MonitorDependencies bundles collaborators for the monitor.
type MonitorDependencies struct {
	Tickets    repository.TicketRepository
	Engine     *sla.Engine
	Dispatcher events.Dispatcher
	Deduper    Deduper
	Metrics    *observability.Metrics
	Logger     *zap.Logger
	Config     config.MonitorConfig
	Clock      func() time.Time
}

// NewSLAMonitor builds the monitor. Without a Deduper alerts are deduplicated
// in memory.
func NewSLAMonitor(deps MonitorDependencies) *SLAMonitor {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	deduper := deps.Deduper
	if deduper == nil {
		deduper = NewMemoryDeduper(clock)
	}
	return &SLAMonitor{
		tickets:    deps.Tickets,
		engine:     deps.Engine,
		dispatcher: deps.Dispatcher,
		deduper:    deduper,
		metrics:    deps.Metrics,
		logger:     logger,
		cfg:        deps.Config,
		now:        clock,
	}
}

// Start runs one pass immediately and then on the configured schedule.
// Blocks until ctx is cancelled.
func (m *SLAMonitor) Start(ctx context.Context) error {
	c := cron.New(
		cron.WithLocation(m.engine.Calendar().Location()),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{m.logger})),
	)
	if _, err := c.AddFunc(m.cfg.Schedule, func() { m.runScheduled(ctx) }); err != nil {
		return fmt.Errorf("sla monitor: invalid schedule %q: %w", m.cfg.Schedule, err)
	}

	m.runScheduled(ctx)
	c.Start()
	m.logger.Info("sla monitor started", zap.String("schedule", m.cfg.Schedule))

	<-ctx.Done()
	<-c.Stop().Done()
	m.logger.Info("sla monitor stopped")
	return ctx.Err()
}

func (m *SLAMonitor) runScheduled(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	report, err := m.RunOnce(ctx)
	if err != nil {
		if !errors.Is(err, ErrMonitorBusy) {
			m.logger.Error("sla monitor run failed", zap.Error(err))
		}
		return
	}
	m.logger.Info("sla monitor run finished",
		zap.Int("scanned", report.Scanned),
		zap.Int("notified", report.Notified),
		zap.Int("failed", report.Failed),
		zap.Any("by_risk", report.ByRisk))
}

// RunOnce evaluates every active ticket once.
func (m *SLAMonitor) RunOnce(ctx context.Context) (*MonitorReport, error) {
	if !m.running.CompareAndSwap(false, true) {
		m.metrics.RecordMonitorRun("skipped")
		return nil, ErrMonitorBusy
	}
	defer m.running.Store(false)

	report, err := m.scan(ctx)
	if err != nil {
		m.metrics.RecordMonitorRun("error")
		return nil, err
	}
	m.metrics.SetActiveRisk(report.ByRisk)
	m.metrics.RecordMonitorRun("ok")
	return report, nil
}

func (m *SLAMonitor) scan(ctx context.Context) (*MonitorReport, error) {
	now := m.now()
	report := &MonitorReport{ByRisk: map[string]int{
		string(sla.RiskOnTime):   0,
		string(sla.RiskAtRisk):   0,
		string(sla.RiskBreached): 0,
	}}
	batch := m.cfg.BatchSize
	if batch <= 0 {
		batch = repository.DefaultListLimit
	}

	// Keyset paging: tickets resolved mid-scan do not shift later pages.
	var cursor *repository.TicketCursor
	for {
		tickets, err := m.tickets.ListWithFilter(ctx, repository.TicketFilter{
			ActiveOnly: true,
			After:      cursor,
			Limit:      batch,
		})
		if err != nil {
			return nil, fmt.Errorf("list active tickets: %w", err)
		}
		for i := range tickets {
			m.inspect(ctx, &tickets[i], now, report)
		}
		if len(tickets) < batch {
			return report, nil
		}
		cursor = repository.CursorAfter(&tickets[len(tickets)-1])
	}
}

func (m *SLAMonitor) inspect(ctx context.Context, ticket *domain.Ticket, now time.Time, report *MonitorReport) {
	report.Scanned++
	ev, err := m.engine.Evaluate(ticket, now)
	if err != nil {
		report.ByRisk[service.UnevaluatedBucket]++
		m.logger.Warn("sla evaluation failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
		return
	}
	report.ByRisk[string(ev.Risk)]++

	var eventType events.EventType
	switch ev.Risk {
	case sla.RiskAtRisk:
		eventType = events.EventSLAAtRisk
	case sla.RiskBreached:
		eventType = events.EventSLABreached
	default:
		return
	}

	key := dedupeKey(ticket.ID, ev.Risk)
	first, err := m.deduper.FirstSeen(ctx, key, m.cfg.DedupeTTL())
	if err != nil {
		report.Failed++
		m.logger.Warn("sla alert dedupe failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
		return
	}
	if !first {
		return
	}

	event := events.New(eventType, ticket, service.SystemActor, now, events.SLAAlertPayload{
		Priority:        ticket.Priority,
		Risk:            string(ev.Risk),
		PercentConsumed: ev.PercentConsumed,
		Deadline:        ev.Deadline,
		Label:           ev.Label,
		Assignee:        ticket.Assignee,
	})
	if m.dispatcher != nil {
		if err := m.dispatcher.Publish(ctx, event); err != nil {
			report.Failed++
			m.logger.Warn("sla alert handlers failed",
				zap.String("ticket_id", ticket.ID),
				zap.String("event_type", string(eventType)),
				zap.Error(err))
			// Undelivered alerts are retried on the next pass.
			if err := m.deduper.Forget(ctx, key); err != nil {
				m.logger.Warn("sla alert dedupe reset failed",
					zap.String("ticket_id", ticket.ID), zap.Error(err))
			}
			return
		}
	}
	report.Notified++
}

func dedupeKey(ticketID string, risk sla.RiskState) string {
	return dedupeKeyPrefix + ticketID + ":" + string(risk)
}

// cronLogger routes cron's own logging through zap.
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
