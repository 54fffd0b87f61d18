package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap/zaptest"

	"github.com/spec-kit/incident-service/internal/domain"
)

func TestDashboardStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.clock.Set(time.Date(2025, 3, 10, 10, 45, 0, 0, time.UTC))

	f.create(t, "CRITICAL", time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)) // at risk
	f.create(t, "HIGH", time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))     // on time
	f.create(t, "LOW", time.Date(2025, 3, 5, 9, 0, 0, 0, time.UTC))       // breached
	done := f.create(t, "HIGH", time.Date(2025, 3, 7, 9, 0, 0, 0, time.UTC))
	if _, err := f.tickets.ChangeStatus(ctx, "ana", done.Ticket.ExternalKey, domain.TicketStatusResolved, ""); err != nil {
		t.Fatalf("ChangeStatus: %v", err)
	}
	// A row written outside the service without a creation time cannot be evaluated.
	if err := f.store.Tickets.Create(ctx, &domain.Ticket{
		ID:          uuid.NewString(),
		ExternalKey: "LEGACY-1",
		Title:       "Imported without dates",
		Status:      domain.TicketStatusOpen,
		Priority:    domain.TicketPriorityLow,
	}); err != nil {
		t.Fatalf("create legacy: %v", err)
	}

	dashboard := NewDashboardService(f.store.Tickets, f.engine, zaptest.NewLogger(t), f.clock.Now)
	stats, err := dashboard.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}

	if stats.Total != 5 || stats.Active != 4 || stats.Resolved != 1 {
		t.Errorf("totals = %d/%d/%d", stats.Total, stats.Active, stats.Resolved)
	}
	if stats.ByPriority["HIGH"] != 2 || stats.ByPriority["LOW"] != 2 || stats.ByPriority["CRITICAL"] != 1 {
		t.Errorf("by priority = %v", stats.ByPriority)
	}
	if stats.ByStatus["OPEN"] != 4 || stats.ByStatus["RESOLVED"] != 1 {
		t.Errorf("by status = %v", stats.ByStatus)
	}
	if stats.ByModule["Contabilidad"] != 4 || stats.ByModule[noModuleBucket] != 1 {
		t.Errorf("by module = %v", stats.ByModule)
	}
	wantRisk := map[string]int{"ON_TIME": 1, "AT_RISK": 1, "BREACHED": 1, "COMPLETED": 1, UnevaluatedBucket: 1}
	for risk, want := range wantRisk {
		if stats.ByRisk[risk] != want {
			t.Errorf("by risk %s = %d, want %d (%v)", risk, stats.ByRisk[risk], want, stats.ByRisk)
		}
	}
	if !stats.GeneratedAt.Equal(f.clock.Now()) {
		t.Errorf("generated at = %s", stats.GeneratedAt)
	}
}
