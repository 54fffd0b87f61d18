package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/incident-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated         EventType = "ticket_created"
	EventTicketStatusChanged   EventType = "ticket_status_changed"
	EventTicketPriorityChanged EventType = "ticket_priority_changed"
	EventTicketAssigned        EventType = "ticket_assigned"
	EventTicketDeleted         EventType = "ticket_deleted"
	EventCommentAdded          EventType = "comment_added"
	EventSLAAtRisk             EventType = "sla_at_risk"
	EventSLABreached           EventType = "sla_breached"
)

// AllEventTypes lists every event the service emits.
var AllEventTypes = []EventType{
	EventTicketCreated,
	EventTicketStatusChanged,
	EventTicketPriorityChanged,
	EventTicketAssigned,
	EventTicketDeleted,
	EventCommentAdded,
	EventSLAAtRisk,
	EventSLABreached,
}

// Event represents a domain event emitted by services.
type Event struct {
	ID          string    `json:"id"`
	Type        EventType `json:"type"`
	TicketID    string    `json:"ticket_id"`
	ExternalKey string    `json:"external_key,omitempty"`
	Actor       string    `json:"actor,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	Payload     any       `json:"payload"`
}

// New stamps an event with a fresh id.
func New(eventType EventType, ticket *domain.Ticket, actor string, at time.Time, payload any) Event {
	event := Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Actor:     actor,
		Timestamp: at,
		Payload:   payload,
	}
	if ticket != nil {
		event.TicketID = ticket.ID
		event.ExternalKey = ticket.ExternalKey
	}
	return event
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Title       string                `json:"title"`
	Priority    domain.TicketPriority `json:"priority"`
	Application string                `json:"application,omitempty"`
	Module      string                `json:"module,omitempty"`
	Deadline    *time.Time            `json:"deadline,omitempty"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
	Comment   string              `json:"comment,omitempty"`
}

// TicketPriorityChangedPayload payload.
type TicketPriorityChangedPayload struct {
	OldPriority domain.TicketPriority `json:"old_priority"`
	NewPriority domain.TicketPriority `json:"new_priority"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	OldAssignee string `json:"old_assignee,omitempty"`
	NewAssignee string `json:"new_assignee"`
}

// CommentAddedPayload payload.
type CommentAddedPayload struct {
	CommentID   string `json:"comment_id"`
	Author      string `json:"author"`
	BodyPreview string `json:"body_preview"`
}

// SLAAlertPayload accompanies sla_at_risk and sla_breached.
type SLAAlertPayload struct {
	Priority        domain.TicketPriority `json:"priority"`
	Risk            string                `json:"risk"`
	PercentConsumed float64               `json:"percent_consumed"`
	Deadline        time.Time             `json:"deadline"`
	Label           string                `json:"label"`
	Assignee        string                `json:"assignee,omitempty"`
}
