package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/incident-service/internal/repository"
	"github.com/spec-kit/incident-service/internal/sla"
	apperrors "github.com/spec-kit/incident-service/pkg/util/errorutil"
)

// UnevaluatedBucket counts tickets whose SLA could not be computed.
const UnevaluatedBucket = "N/A"

// noModuleBucket groups tickets without a module.
const noModuleBucket = "UNSPECIFIED"

// DashboardStats aggregates the ticket base at one instant.
type DashboardStats struct {
	Total       int
	Active      int
	Resolved    int
	ByPriority  map[string]int
	ByStatus    map[string]int
	ByModule    map[string]int
	ByRisk      map[string]int
	GeneratedAt time.Time
}

// DashboardService computes aggregate views.
type DashboardService struct {
	tickets repository.TicketRepository
	engine  *sla.Engine
	logger  *zap.Logger
	now     func() time.Time
}

// NewDashboardService builds the service.
func NewDashboardService(tickets repository.TicketRepository, engine *sla.Engine, logger *zap.Logger, clock func() time.Time) *DashboardService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = time.Now
	}
	return &DashboardService{tickets: tickets, engine: engine, logger: logger, now: clock}
}

// Stats evaluates every ticket at the current time.
func (s *DashboardService) Stats(ctx context.Context) (*DashboardStats, error) {
	return s.StatsAt(ctx, s.now())
}

// StatsAt evaluates every ticket at now.
func (s *DashboardService) StatsAt(ctx context.Context, now time.Time) (*DashboardStats, error) {
	tickets, err := s.tickets.ListWithFilter(ctx, repository.TicketFilter{Limit: -1})
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	stats := &DashboardStats{
		ByPriority:  map[string]int{},
		ByStatus:    map[string]int{},
		ByModule:    map[string]int{},
		ByRisk:      map[string]int{},
		GeneratedAt: now,
	}
	for _, risk := range sla.RiskStates {
		stats.ByRisk[string(risk)] = 0
	}

	for i := range tickets {
		ticket := &tickets[i]
		stats.Total++
		if ticket.IsResolved() {
			stats.Resolved++
		} else {
			stats.Active++
		}
		stats.ByPriority[string(ticket.Priority)]++
		stats.ByStatus[string(ticket.Status)]++
		module := ticket.Module
		if module == "" {
			module = noModuleBucket
		}
		stats.ByModule[module]++

		ev, err := s.engine.Evaluate(ticket, now)
		if err != nil {
			s.logger.Warn("sla evaluation failed",
				zap.String("ticket_id", ticket.ID),
				zap.Error(err))
			stats.ByRisk[UnevaluatedBucket]++
			continue
		}
		stats.ByRisk[string(ev.Risk)]++
	}
	return stats, nil
}
