package sla

import "github.com/spec-kit/incident-service/internal/domain"

// DefaultAllowanceHours applies to priorities missing from the allowance
// table. It matches the least urgent priority so an unknown value never
// blocks a ticket from being displayed.
const DefaultAllowanceHours = 24

var allowanceTable = map[domain.TicketPriority]int{
	domain.TicketPriorityUnavailable: 1,
	domain.TicketPriorityUrgent:      1,
	domain.TicketPriorityCritical:    2,
	domain.TicketPriorityHigh:        8,
	domain.TicketPriorityStandard:    12,
	domain.TicketPriorityLow:         24,
}

// Allowance pairs a priority with its SLA budget.
type Allowance struct {
	Priority domain.TicketPriority
	Hours    int
}

// Allowances returns the static table for the canonical priorities, most
// urgent first.
func Allowances() []Allowance {
	out := make([]Allowance, 0, len(domain.Priorities))
	for _, p := range domain.Priorities {
		out = append(out, Allowance{Priority: p, Hours: allowanceTable[p]})
	}
	return out
}

// lookupAllowance returns the configured hours and whether priority was known.
func lookupAllowance(priority domain.TicketPriority) (int, bool) {
	if hours, ok := allowanceTable[priority]; ok {
		return hours, true
	}
	if normalized, ok := domain.ParsePriority(string(priority)); ok {
		return allowanceTable[normalized], true
	}
	return DefaultAllowanceHours, false
}
