package service

import (
	"context"
	"strings"

	"github.com/spec-kit/incident-service/internal/domain"
	"github.com/spec-kit/incident-service/internal/events"
	apperrors "github.com/spec-kit/incident-service/pkg/util/errorutil"
)

const assigneeMaxLen = 120

// AssignTicket sets the responsible analyst. An empty assignee clears it.
func (s *TicketService) AssignTicket(ctx context.Context, actor, ref, assignee string) (*TicketView, error) {
	assignee = strings.TrimSpace(assignee)
	if len(assignee) > assigneeMaxLen {
		return nil, apperrors.NewValidationError("assignee too long", map[string]any{"max": assigneeMaxLen})
	}
	ticket, err := s.lookup(ctx, ref)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if ticket.Assignee == assignee {
		view := s.project(*ticket, now)
		return &view, nil
	}

	oldAssignee := ticket.Assignee
	ticket.Assignee = assignee
	ticket.UpdatedAt = now
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, mapStoreError(err, "ticket", ref)
	}
	if err := s.recordAssigneeChange(ctx, actor, ticket, oldAssignee); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.publishAssignmentEvent(ctx, actor, ticket, events.TicketAssignedPayload{
		OldAssignee: oldAssignee,
		NewAssignee: assignee,
	})

	view := s.project(*ticket, now)
	return &view, nil
}

func (s *TicketService) recordAssigneeChange(ctx context.Context, actor string, ticket *domain.Ticket, oldAssignee string) error {
	return s.record(ctx, ticket.ID, actor, domain.ChangeTypeAssignee,
		map[string]any{"assignee": oldAssignee},
		map[string]any{"assignee": ticket.Assignee})
}

func (s *TicketService) publishAssignmentEvent(ctx context.Context, actor string, ticket *domain.Ticket, payload events.TicketAssignedPayload) {
	s.publishEvent(ctx, events.New(events.EventTicketAssigned, ticket, actor, s.now(), payload))
}
