package service

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/incident-service/internal/domain"
	"github.com/spec-kit/incident-service/internal/repository"
	apperrors "github.com/spec-kit/incident-service/pkg/util/errorutil"
)

// Scoring weights for automatic assignment.
const (
	moduleMatchScore       = 30
	workloadCapacity       = 10
	workloadStepScore      = 5
	seniorUrgentScore      = 25
	developerIncidentScore = 15
	analystRequestScore    = 20
)

// AnalystScore is one roster member's rating for a ticket.
type AnalystScore struct {
	Analyst  Analyst
	Workload int
	Score    int
}

// AutoAssignment is the outcome of AutoAssignTicket. Candidates are ranked
// best first.
type AutoAssignment struct {
	View       TicketView
	Candidates []AnalystScore
}

// scoreAnalyst rates how well a fits ticket given a's active workload.
func scoreAnalyst(ticket *domain.Ticket, a Analyst, workload int) int {
	score := (workloadCapacity - workload) * workloadStepScore
	for _, module := range a.Modules {
		if ticket.Module != "" && strings.EqualFold(strings.TrimSpace(module), ticket.Module) {
			score += moduleMatchScore
			break
		}
	}
	role := strings.ToLower(a.Role)
	switch ticket.Priority {
	case domain.TicketPriorityCritical, domain.TicketPriorityUnavailable:
		if strings.Contains(role, "senior") {
			score += seniorUrgentScore
		}
	}
	switch ticket.RequestType {
	case domain.RequestTypeIncident:
		if strings.Contains(role, "desarrollador") {
			score += developerIncidentScore
		}
	case domain.RequestTypeRequirement:
		if strings.Contains(role, "analista") {
			score += analystRequestScore
		}
	}
	return score
}

// rankAnalysts sorts scores best first; ties go to the lighter workload,
// then to the name.
func rankAnalysts(scores []AnalystScore) {
	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		if scores[i].Workload != scores[j].Workload {
			return scores[i].Workload < scores[j].Workload
		}
		return scores[i].Analyst.Name < scores[j].Analyst.Name
	})
}

// AutoAssignTicket picks the best-scoring roster analyst for the ticket and
// assigns it to them.
func (s *TicketService) AutoAssignTicket(ctx context.Context, actor, ref string) (*AutoAssignment, error) {
	if len(s.roster) == 0 {
		return nil, apperrors.NewConflict("no analyst roster configured", nil)
	}
	ticket, err := s.lookup(ctx, ref)
	if err != nil {
		return nil, err
	}
	if ticket.IsResolved() {
		return nil, apperrors.NewConflict("resolved tickets cannot be assigned automatically", map[string]any{
			"ticket_id": ticket.ID,
		})
	}

	scores := make([]AnalystScore, 0, len(s.roster))
	for _, analyst := range s.roster {
		name := analyst.Name
		workload, err := s.tickets.Count(ctx, repository.TicketFilter{Assignee: &name, ActiveOnly: true})
		if err != nil {
			return nil, apperrors.MapError(err)
		}
		if ticket.Assignee == name {
			workload--
		}
		scores = append(scores, AnalystScore{
			Analyst:  analyst,
			Workload: workload,
			Score:    scoreAnalyst(ticket, analyst, workload),
		})
	}
	rankAnalysts(scores)

	best := scores[0]
	view, err := s.AssignTicket(ctx, actor, ticket.ID, best.Analyst.Name)
	if err != nil {
		return nil, err
	}
	s.logger.Info("ticket auto-assigned",
		zap.String("ticket_id", ticket.ID),
		zap.String("assignee", best.Analyst.Name),
		zap.Int("score", best.Score),
		zap.Int("workload", best.Workload))
	return &AutoAssignment{View: *view, Candidates: scores}, nil
}
