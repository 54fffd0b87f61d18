package dto

import (
	"time"

	"github.com/spec-kit/incident-service/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	ExternalKey    string `json:"external_key"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	RequesterName  string `json:"requester_name"`
	RequesterEmail string `json:"requester_email"`
	Application    string `json:"application"`
	Module         string `json:"module"`
	RequestType    string `json:"request_type"`
	Assignee       string `json:"assignee"`
	Priority       string `json:"priority"`
	// CreatedAt accepts RFC 3339 or a local "YYYY-MM-DD HH:MM" timestamp.
	CreatedAt string `json:"created_at"`
}

// UpdateTicketRequest payload. Omitted fields are left unchanged.
type UpdateTicketRequest struct {
	Title          *string `json:"title"`
	Description    *string `json:"description"`
	RequesterName  *string `json:"requester_name"`
	RequesterEmail *string `json:"requester_email"`
	Application    *string `json:"application"`
	Module         *string `json:"module"`
	RequestType    *string `json:"request_type"`
	Priority       *string `json:"priority"`
}

// ChangeStatusRequest payload.
type ChangeStatusRequest struct {
	Status  string `json:"status"`
	Comment string `json:"comment"`
}

// AssignTicketRequest payload.
type AssignTicketRequest struct {
	Assignee string `json:"assignee"`
}

// AssignmentCandidateResponse is one analyst's rating in an automatic
// assignment.
type AssignmentCandidateResponse struct {
	Name     string `json:"name"`
	Role     string `json:"role,omitempty"`
	Workload int    `json:"workload"`
	Score    int    `json:"score"`
}

// AutoAssignResponse carries the assigned ticket and the ranking behind it.
type AutoAssignResponse struct {
	Ticket     TicketResponse                `json:"ticket"`
	Candidates []AssignmentCandidateResponse `json:"candidates"`
}

// CreateCommentRequest payload.
type CreateCommentRequest struct {
	Author string `json:"author"`
	Body   string `json:"body"`
}

// SLAResponse is the derived SLA view. Risk and Label read "N/A" when the
// ticket could not be evaluated.
type SLAResponse struct {
	AllowanceHours   int        `json:"allowance_hours"`
	Deadline         *time.Time `json:"deadline"`
	ElapsedMinutes   int64      `json:"elapsed_minutes"`
	RemainingMinutes int64      `json:"remaining_minutes"`
	PercentConsumed  float64    `json:"percent_consumed"`
	Risk             string     `json:"risk"`
	Label            string     `json:"label"`
}

// TicketResponse is a ticket with its SLA.
type TicketResponse struct {
	ID             string                `json:"id"`
	ExternalKey    string                `json:"external_key"`
	Title          string                `json:"title"`
	Description    string                `json:"description"`
	RequesterName  string                `json:"requester_name,omitempty"`
	RequesterEmail string                `json:"requester_email,omitempty"`
	Application    string                `json:"application,omitempty"`
	Module         string                `json:"module,omitempty"`
	RequestType    string                `json:"request_type,omitempty"`
	Assignee       string                `json:"assignee,omitempty"`
	Status         domain.TicketStatus   `json:"status"`
	Priority       domain.TicketPriority `json:"priority"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
	ResolvedAt     *time.Time            `json:"resolved_at"`
	SLA            SLAResponse           `json:"sla"`
}

// TicketDetailResponse provides full ticket info.
type TicketDetailResponse struct {
	TicketResponse
	Comments []CommentResponse       `json:"comments"`
	History  []TicketHistoryResponse `json:"history"`
}

// CommentResponse represents a thread comment.
type CommentResponse struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// TicketHistoryResponse is one audit entry.
type TicketHistoryResponse struct {
	ID         string                  `json:"id"`
	ChangeType domain.TicketChangeType `json:"change_type"`
	ChangedBy  string                  `json:"changed_by"`
	OldValue   map[string]any          `json:"old_value"`
	NewValue   map[string]any          `json:"new_value"`
	CreatedAt  time.Time               `json:"created_at"`
}

// PageMeta describes a paginated listing.
type PageMeta struct {
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// BoardColumnResponse is one Kanban column.
type BoardColumnResponse struct {
	Status  domain.TicketStatus `json:"status"`
	Count   int                 `json:"count"`
	Tickets []TicketResponse    `json:"tickets"`
}
