package domain

import (
	"strings"
	"time"
)

// TicketStatus enumerates workflow stages for incidents. The set is open: any
// value other than TicketStatusResolved counts as active.
type TicketStatus string

const (
	TicketStatusOpen           TicketStatus = "OPEN"
	TicketStatusDiagnosis      TicketStatus = "DIAGNOSIS"
	TicketStatusDevelopment    TicketStatus = "DEVELOPMENT"
	TicketStatusQA             TicketStatus = "QA"
	TicketStatusCustomerNotice TicketStatus = "CUSTOMER_NOTICE"
	TicketStatusUATApproved    TicketStatus = "UAT_APPROVED"
	TicketStatusUATTesting     TicketStatus = "UAT_TESTING"
	TicketStatusPending        TicketStatus = "PENDING"
	TicketStatusResolved       TicketStatus = "RESOLVED"
)

// KnownStatuses lists the workflow stages in board order.
var KnownStatuses = []TicketStatus{
	TicketStatusOpen,
	TicketStatusPending,
	TicketStatusDiagnosis,
	TicketStatusDevelopment,
	TicketStatusQA,
	TicketStatusCustomerNotice,
	TicketStatusUATApproved,
	TicketStatusUATTesting,
	TicketStatusResolved,
}

// IsResolved reports whether the status is the terminal resolved state.
func (s TicketStatus) IsResolved() bool {
	return s == TicketStatusResolved
}

// Valid reports whether s is one of the known workflow stages.
func (s TicketStatus) Valid() bool {
	for _, known := range KnownStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityUnavailable TicketPriority = "UNAVAILABLE"
	TicketPriorityUrgent      TicketPriority = "URGENT"
	TicketPriorityCritical    TicketPriority = "CRITICAL"
	TicketPriorityHigh        TicketPriority = "HIGH"
	TicketPriorityStandard    TicketPriority = "STANDARD"
	TicketPriorityLow         TicketPriority = "LOW"
)

// Priorities lists the canonical priorities from most to least urgent.
var Priorities = []TicketPriority{
	TicketPriorityUnavailable,
	TicketPriorityCritical,
	TicketPriorityHigh,
	TicketPriorityStandard,
	TicketPriorityLow,
}

var priorityAliases = map[string]TicketPriority{
	"UNAVAILABLE":      TicketPriorityUnavailable,
	"URGENT":           TicketPriorityUrgent,
	"INDISPONIBILIDAD": TicketPriorityUnavailable,
	"CRITICAL":         TicketPriorityCritical,
	"CRÍTICA":          TicketPriorityCritical,
	"CRITICA":          TicketPriorityCritical,
	"HIGH":             TicketPriorityHigh,
	"ALTA":             TicketPriorityHigh,
	"STANDARD":         TicketPriorityStandard,
	"ESTÁNDAR":         TicketPriorityStandard,
	"ESTANDAR":         TicketPriorityStandard,
	"LOW":              TicketPriorityLow,
	"BAJA":             TicketPriorityLow,
}

// ParsePriority normalizes user input, including the legacy Spanish labels.
// Unrecognized values are returned upper-cased and flagged with ok=false.
func ParsePriority(raw string) (TicketPriority, bool) {
	key := strings.ToUpper(strings.TrimSpace(raw))
	if p, ok := priorityAliases[key]; ok {
		return p, true
	}
	return TicketPriority(key), false
}

// Request types used by the intake form.
const (
	RequestTypeIncident    = "Incidencia"
	RequestTypeRequirement = "Requerimiento"
)

// NormalizeRequestType maps the form's request type onto its canonical
// spelling. Unknown values are returned trimmed.
func NormalizeRequestType(raw string) string {
	raw = strings.TrimSpace(raw)
	switch {
	case strings.EqualFold(raw, RequestTypeIncident), strings.EqualFold(raw, "Incidente"):
		return RequestTypeIncident
	case strings.EqualFold(raw, RequestTypeRequirement):
		return RequestTypeRequirement
	}
	return raw
}

// Ticket is the incident aggregate.
type Ticket struct {
	ID             string
	ExternalKey    string
	Title          string
	Description    string
	RequesterName  string
	RequesterEmail string
	Application    string
	Module         string
	RequestType    string
	Assignee       string
	Status         TicketStatus
	Priority       TicketPriority
	CreatedAt      time.Time
	UpdatedAt      time.Time
	ResolvedAt     *time.Time
}

// IsResolved reports whether the ticket reached the terminal state.
func (t *Ticket) IsResolved() bool {
	return t.Status.IsResolved()
}
