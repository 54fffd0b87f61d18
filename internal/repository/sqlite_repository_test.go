package repository

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap/zaptest"

	"github.com/spec-kit/incident-service/internal/config"
	"github.com/spec-kit/incident-service/internal/domain"
	"github.com/spec-kit/incident-service/internal/persistence"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := persistence.NewSQLite(context.Background(),
		config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "test.db")}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(db.Close)
	return NewSQLiteStore(db.DB)
}

func newTicket(key string, status domain.TicketStatus, priority domain.TicketPriority, created time.Time) *domain.Ticket {
	return &domain.Ticket{
		ID:          uuid.NewString(),
		ExternalKey: key,
		Title:       "Ticket " + key,
		Description: "Payment gateway timeout on " + key,
		Application: "ERP",
		Module:      "Billing",
		Status:      status,
		Priority:    priority,
		CreatedAt:   created,
		UpdatedAt:   created,
	}
}

func TestTicketCreateAndGet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	created := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	ticket := newTicket("INC-0001", domain.TicketStatusOpen, domain.TicketPriorityCritical, created)
	ticket.RequestType = domain.RequestTypeIncident

	if err := s.Tickets.Create(ctx, ticket); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.Tickets.GetByID(ctx, ticket.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ExternalKey != "INC-0001" || got.Priority != domain.TicketPriorityCritical || got.RequestType != domain.RequestTypeIncident {
		t.Errorf("unexpected ticket %+v", got)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("created_at = %s, want %s", got.CreatedAt, created)
	}
	if got.ResolvedAt != nil {
		t.Errorf("resolved_at = %v, want nil", got.ResolvedAt)
	}

	byKey, err := s.Tickets.GetByExternalKey(ctx, "INC-0001")
	if err != nil || byKey.ID != ticket.ID {
		t.Errorf("GetByExternalKey = %v, %v", byKey, err)
	}

	if _, err := s.Tickets.GetByID(ctx, "missing"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("missing ticket error = %v", err)
	}
}

func TestTicketDuplicateKey(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now().UTC()
	if err := s.Tickets.Create(ctx, newTicket("INC-0001", domain.TicketStatusOpen, domain.TicketPriorityLow, now)); err != nil {
		t.Fatalf("create: %v", err)
	}
	err := s.Tickets.Create(ctx, newTicket("INC-0001", domain.TicketStatusOpen, domain.TicketPriorityLow, now))
	if !errors.Is(err, ErrDuplicateKey) {
		t.Errorf("error = %v, want ErrDuplicateKey", err)
	}
}

func TestTicketUpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	created := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	ticket := newTicket("INC-0002", domain.TicketStatusOpen, domain.TicketPriorityHigh, created)
	if err := s.Tickets.Create(ctx, ticket); err != nil {
		t.Fatalf("create: %v", err)
	}

	resolved := created.Add(3 * time.Hour)
	ticket.Status = domain.TicketStatusResolved
	ticket.ResolvedAt = &resolved
	ticket.Assignee = "ana"
	ticket.RequestType = domain.RequestTypeRequirement
	ticket.UpdatedAt = resolved
	if err := s.Tickets.Update(ctx, ticket); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := s.Tickets.GetByID(ctx, ticket.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.TicketStatusResolved || got.Assignee != "ana" || got.RequestType != domain.RequestTypeRequirement {
		t.Errorf("unexpected ticket %+v", got)
	}
	if got.ResolvedAt == nil || !got.ResolvedAt.Equal(resolved) {
		t.Errorf("resolved_at = %v", got.ResolvedAt)
	}

	if err := s.Tickets.Delete(ctx, ticket.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Tickets.Delete(ctx, ticket.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("second delete error = %v", err)
	}
	ticket.ID = uuid.NewString()
	if err := s.Tickets.Update(ctx, ticket); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("update missing error = %v", err)
	}
}

func TestListWithFilter(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	fixtures := []*domain.Ticket{
		newTicket("INC-0001", domain.TicketStatusOpen, domain.TicketPriorityCritical, base),
		newTicket("INC-0002", domain.TicketStatusDevelopment, domain.TicketPriorityHigh, base.Add(time.Hour)),
		newTicket("INC-0003", domain.TicketStatusResolved, domain.TicketPriorityHigh, base.Add(2*time.Hour)),
		newTicket("INC-0004", domain.TicketStatusPending, domain.TicketPriorityLow, base.Add(24*time.Hour)),
	}
	fixtures[1].Module = "Inventory"
	fixtures[3].Assignee = "luis"
	fixtures[3].Title = "VPN down"
	fixtures[0].Title = "Conciliación ÉXITO no cuadra"
	for _, ticket := range fixtures {
		if err := s.Tickets.Create(ctx, ticket); err != nil {
			t.Fatalf("create %s: %v", ticket.ExternalKey, err)
		}
	}

	module := "Inventory"
	assignee := "luis"
	search := "vpn"
	accented := "éxito"
	accentedUpper := "CONCILIACIÓN"
	from := base.Add(30 * time.Minute)
	to := base.Add(3 * time.Hour)

	tests := []struct {
		name   string
		filter TicketFilter
		want   []string
	}{
		{"all newest first", TicketFilter{}, []string{"INC-0004", "INC-0003", "INC-0002", "INC-0001"}},
		{"statuses", TicketFilter{Statuses: []domain.TicketStatus{domain.TicketStatusOpen, domain.TicketStatusPending}}, []string{"INC-0004", "INC-0001"}},
		{"priorities", TicketFilter{Priorities: []domain.TicketPriority{domain.TicketPriorityHigh}}, []string{"INC-0003", "INC-0002"}},
		{"module", TicketFilter{Module: &module}, []string{"INC-0002"}},
		{"assignee", TicketFilter{Assignee: &assignee}, []string{"INC-0004"}},
		{"search", TicketFilter{SearchTerm: &search}, []string{"INC-0004"}},
		{"search folds non-ascii", TicketFilter{SearchTerm: &accented}, []string{"INC-0001"}},
		{"search folds non-ascii term", TicketFilter{SearchTerm: &accentedUpper}, []string{"INC-0001"}},
		{"after cursor", TicketFilter{After: &TicketCursor{CreatedAt: base.Add(2 * time.Hour), ExternalKey: "INC-0003"}}, []string{"INC-0002", "INC-0001"}},
		{"after cursor with active only", TicketFilter{ActiveOnly: true, After: &TicketCursor{CreatedAt: base.Add(24 * time.Hour), ExternalKey: "INC-0004"}}, []string{"INC-0002", "INC-0001"}},
		{"created range", TicketFilter{CreatedFrom: &from, CreatedTo: &to}, []string{"INC-0003", "INC-0002"}},
		{"active only", TicketFilter{ActiveOnly: true}, []string{"INC-0004", "INC-0002", "INC-0001"}},
		{"resolved only", TicketFilter{ResolvedOnly: true}, []string{"INC-0003"}},
		{"page", TicketFilter{Limit: 2, Offset: 1}, []string{"INC-0003", "INC-0002"}},
		{"unbounded with offset", TicketFilter{Limit: -1, Offset: 3}, []string{"INC-0001"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Tickets.ListWithFilter(ctx, tt.filter)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			keys := make([]string, len(got))
			for i, ticket := range got {
				keys[i] = ticket.ExternalKey
			}
			if len(keys) != len(tt.want) {
				t.Fatalf("keys = %v, want %v", keys, tt.want)
			}
			for i := range keys {
				if keys[i] != tt.want[i] {
					t.Fatalf("keys = %v, want %v", keys, tt.want)
				}
			}

			count := tt.filter
			count.Limit, count.Offset = 0, 0
			n, err := s.Tickets.Count(ctx, count)
			if err != nil {
				t.Fatalf("count: %v", err)
			}
			if tt.filter.Limit == 0 && n != len(tt.want) {
				t.Errorf("count = %d, want %d", n, len(tt.want))
			}
		})
	}
}

func TestListAfterCursorBreaksTiesByKey(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	created := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	for _, key := range []string{"INC-0001", "INC-0002", "INC-0003"} {
		if err := s.Tickets.Create(ctx, newTicket(key, domain.TicketStatusOpen, domain.TicketPriorityLow, created)); err != nil {
			t.Fatalf("create %s: %v", key, err)
		}
	}

	var (
		cursor *TicketCursor
		seen   []string
	)
	for {
		page, err := s.Tickets.ListWithFilter(ctx, TicketFilter{After: cursor, Limit: 1})
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(page) == 0 {
			break
		}
		seen = append(seen, page[0].ExternalKey)
		cursor = CursorAfter(&page[0])
	}
	if len(seen) != 3 || seen[0] != "INC-0003" || seen[2] != "INC-0001" {
		t.Errorf("pages = %v", seen)
	}
}

func TestNextExternalNumber(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	n, err := s.Tickets.NextExternalNumber(ctx)
	if err != nil || n != 1 {
		t.Fatalf("empty store = %d, %v", n, err)
	}

	now := time.Now().UTC()
	for _, key := range []string{"INC-0007", "INC-0042", "LEGACY-9", "INC-12A"} {
		if err := s.Tickets.Create(ctx, newTicket(key, domain.TicketStatusOpen, domain.TicketPriorityLow, now)); err != nil {
			t.Fatalf("create %s: %v", key, err)
		}
	}
	n, err = s.Tickets.NextExternalNumber(ctx)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if n != 43 {
		t.Errorf("next = %d, want 43", n)
	}
}

func TestHistoryAndComments(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	created := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	ticket := newTicket("INC-0001", domain.TicketStatusOpen, domain.TicketPriorityHigh, created)
	if err := s.Tickets.Create(ctx, ticket); err != nil {
		t.Fatalf("create: %v", err)
	}

	entries := []domain.TicketHistory{
		{ID: uuid.NewString(), TicketID: ticket.ID, ChangedBy: "system", ChangeType: domain.ChangeTypeCreated,
			NewValue: map[string]any{"status": "OPEN"}, CreatedAt: created},
		{ID: uuid.NewString(), TicketID: ticket.ID, ChangedBy: "ana", ChangeType: domain.ChangeTypeStatus,
			OldValue: map[string]any{"status": "OPEN"}, NewValue: map[string]any{"status": "QA"}, CreatedAt: created.Add(time.Minute)},
	}
	for i := range entries {
		if err := s.History.Create(ctx, &entries[i]); err != nil {
			t.Fatalf("history create: %v", err)
		}
	}
	history, err := s.History.ListByTicket(ctx, ticket.ID)
	if err != nil {
		t.Fatalf("history list: %v", err)
	}
	if len(history) != 2 || history[1].ChangeType != domain.ChangeTypeStatus {
		t.Fatalf("history = %+v", history)
	}
	if history[0].OldValue != nil || history[1].NewValue["status"] != "QA" {
		t.Errorf("history values = %+v / %+v", history[0].OldValue, history[1].NewValue)
	}

	comment := &domain.Comment{ID: uuid.NewString(), TicketID: ticket.ID, Author: "ana", Body: "Restarted the pool", CreatedAt: created}
	if err := s.Comments.Create(ctx, comment); err != nil {
		t.Fatalf("comment create: %v", err)
	}
	comments, err := s.Comments.ListByTicket(ctx, ticket.ID)
	if err != nil || len(comments) != 1 || comments[0].Body != "Restarted the pool" {
		t.Fatalf("comments = %+v, %v", comments, err)
	}
	if err := s.Comments.Delete(ctx, "other-ticket", comment.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("delete with wrong ticket error = %v", err)
	}

	// Deleting the ticket cascades to its history and comments.
	if err := s.Tickets.Delete(ctx, ticket.ID); err != nil {
		t.Fatalf("delete ticket: %v", err)
	}
	history, _ = s.History.ListByTicket(ctx, ticket.ID)
	comments, _ = s.Comments.ListByTicket(ctx, ticket.ID)
	if len(history) != 0 || len(comments) != 0 {
		t.Errorf("cascade left %d history rows and %d comments", len(history), len(comments))
	}
}
