package handlers

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/incident-service/internal/api/dto"
	"github.com/spec-kit/incident-service/internal/domain"
	"github.com/spec-kit/incident-service/internal/repository"
	"github.com/spec-kit/incident-service/internal/service"
	"github.com/spec-kit/incident-service/internal/sla"
	apperrors "github.com/spec-kit/incident-service/pkg/util/errorutil"
)

// ActorHeader names the caller recorded in history and events.
const ActorHeader = "X-Actor"

const unevaluated = "N/A"

// TicketsHandler manages incident endpoints.
type TicketsHandler struct {
	service *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Description) == "" && strings.TrimSpace(req.Title) == "" {
		return apperrors.NewValidationError("title or description required", nil)
	}

	input := service.TicketCreateInput{
		ExternalKey:    req.ExternalKey,
		Title:          req.Title,
		Description:    req.Description,
		RequesterName:  req.RequesterName,
		RequesterEmail: req.RequesterEmail,
		Application:    req.Application,
		Module:         req.Module,
		RequestType:    req.RequestType,
		Assignee:       req.Assignee,
		Priority:       req.Priority,
	}
	if strings.TrimSpace(req.CreatedAt) != "" {
		createdAt, err := h.service.Engine().Calendar().ParseTimestamp(req.CreatedAt)
		if err != nil {
			return apperrors.NewValidationError("invalid created_at", map[string]any{"created_at": req.CreatedAt})
		}
		input.CreatedAt = &createdAt
	}

	view, err := h.service.CreateTicket(c.UserContext(), actor(c), input)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": ticketResponse(view)})
}

// ListTickets GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	filter, err := h.parseTicketQuery(c)
	if err != nil {
		return err
	}
	page, err := h.service.ListTickets(c.UserContext(), filter)
	if err != nil {
		return err
	}
	items := make([]dto.TicketResponse, 0, len(page.Items))
	for i := range page.Items {
		items = append(items, ticketResponse(&page.Items[i]))
	}
	return c.JSON(fiber.Map{
		"data": items,
		"meta": dto.PageMeta{Total: page.Total, Limit: page.Limit, Offset: page.Offset},
	})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	detail, err := h.service.GetTicketDetail(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetailResponse(detail)})
}

// UpdateTicket PATCH /tickets/:id.
func (h *TicketsHandler) UpdateTicket(c *fiber.Ctx) error {
	var req dto.UpdateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	view, err := h.service.UpdateTicket(c.UserContext(), actor(c), c.Params("id"), service.TicketUpdateInput{
		Title:          req.Title,
		Description:    req.Description,
		RequesterName:  req.RequesterName,
		RequesterEmail: req.RequesterEmail,
		Application:    req.Application,
		Module:         req.Module,
		RequestType:    req.RequestType,
		Priority:       req.Priority,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(view)})
}

// DeleteTicket DELETE /tickets/:id.
func (h *TicketsHandler) DeleteTicket(c *fiber.Ctx) error {
	if err := h.service.DeleteTicket(c.UserContext(), actor(c), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ChangeStatus POST /tickets/:id/status.
func (h *TicketsHandler) ChangeStatus(c *fiber.Ctx) error {
	var req dto.ChangeStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Status) == "" {
		return apperrors.NewValidationError("status required", nil)
	}
	view, err := h.service.ChangeStatus(c.UserContext(), actor(c), c.Params("id"), domain.TicketStatus(req.Status), req.Comment)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(view)})
}

// AssignTicket POST /tickets/:id/assign.
func (h *TicketsHandler) AssignTicket(c *fiber.Ctx) error {
	var req dto.AssignTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	view, err := h.service.AssignTicket(c.UserContext(), actor(c), c.Params("id"), req.Assignee)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(view)})
}

// AutoAssignTicket POST /tickets/:id/auto-assign.
func (h *TicketsHandler) AutoAssignTicket(c *fiber.Ctx) error {
	result, err := h.service.AutoAssignTicket(c.UserContext(), actor(c), c.Params("id"))
	if err != nil {
		return err
	}
	candidates := make([]dto.AssignmentCandidateResponse, len(result.Candidates))
	for i, candidate := range result.Candidates {
		candidates[i] = dto.AssignmentCandidateResponse{
			Name:     candidate.Analyst.Name,
			Role:     candidate.Analyst.Role,
			Workload: candidate.Workload,
			Score:    candidate.Score,
		}
	}
	return c.JSON(fiber.Map{"data": dto.AutoAssignResponse{
		Ticket:     ticketResponse(&result.View),
		Candidates: candidates,
	}})
}

// AddComment POST /tickets/:id/comments.
func (h *TicketsHandler) AddComment(c *fiber.Ctx) error {
	var req dto.CreateCommentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Body) == "" {
		return apperrors.NewValidationError("body required", nil)
	}
	author := req.Author
	if strings.TrimSpace(author) == "" {
		author = actor(c)
	}
	comment, err := h.service.AddComment(c.UserContext(), c.Params("id"), author, req.Body)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": commentResponse(comment)})
}

// ListComments GET /tickets/:id/comments.
func (h *TicketsHandler) ListComments(c *fiber.Ctx) error {
	comments, err := h.service.ListComments(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": commentResponses(comments)})
}

// DeleteComment DELETE /tickets/:id/comments/:commentId.
func (h *TicketsHandler) DeleteComment(c *fiber.Ctx) error {
	if err := h.service.DeleteComment(c.UserContext(), c.Params("id"), c.Params("commentId")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ListHistory GET /tickets/:id/history.
func (h *TicketsHandler) ListHistory(c *fiber.Ctx) error {
	history, err := h.service.ListHistory(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": historyResponses(history)})
}

// Board GET /board.
func (h *TicketsHandler) Board(c *fiber.Ctx) error {
	columns, err := h.service.Board(c.UserContext())
	if err != nil {
		return err
	}
	resp := make([]dto.BoardColumnResponse, 0, len(columns))
	for _, column := range columns {
		tickets := make([]dto.TicketResponse, 0, len(column.Tickets))
		for i := range column.Tickets {
			tickets = append(tickets, ticketResponse(&column.Tickets[i]))
		}
		resp = append(resp, dto.BoardColumnResponse{Status: column.Status, Count: len(tickets), Tickets: tickets})
	}
	return c.JSON(fiber.Map{"data": resp})
}

func (h *TicketsHandler) parseTicketQuery(c *fiber.Ctx) (service.TicketListFilter, error) {
	filter := service.TicketListFilter{}
	for _, part := range splitList(c.Query("status")) {
		filter.Statuses = append(filter.Statuses, domain.TicketStatus(strings.ToUpper(part)))
	}
	for _, part := range splitList(c.Query("priority")) {
		priority, ok := domain.ParsePriority(part)
		if !ok {
			return filter, apperrors.NewValidationError("unknown priority", map[string]any{"priority": part})
		}
		filter.Priorities = append(filter.Priorities, priority)
	}
	for _, part := range splitList(c.Query("risk")) {
		risk := sla.RiskState(strings.ToUpper(part))
		if !knownRisk(risk) {
			return filter, apperrors.NewValidationError("unknown risk state", map[string]any{"risk": part})
		}
		filter.Risks = append(filter.Risks, risk)
	}
	filter.Module = optionalQuery(c, "module")
	filter.Application = optionalQuery(c, "application")
	filter.Assignee = optionalQuery(c, "assignee")
	filter.SearchTerm = optionalQuery(c, "q")

	cal := h.service.Engine().Calendar()
	for _, bound := range []struct {
		name string
		dst  **time.Time
	}{{"created_from", &filter.CreatedFrom}, {"created_to", &filter.CreatedTo}} {
		raw := c.Query(bound.name)
		if raw == "" {
			continue
		}
		t, err := cal.ParseTimestamp(raw)
		if err != nil {
			return filter, apperrors.NewValidationError("invalid "+bound.name, map[string]any{bound.name: raw})
		}
		*bound.dst = &t
	}

	filter.ActiveOnly = c.QueryBool("active", false)
	filter.ResolvedOnly = c.QueryBool("resolved", false)
	if filter.ActiveOnly && filter.ResolvedOnly {
		return filter, apperrors.NewValidationError("active and resolved are exclusive", nil)
	}

	if c.Query("limit") != "" || c.Query("offset") != "" {
		filter.Limit = parseInt(c.Query("limit"), repository.DefaultListLimit)
		filter.Offset = parseNonNegative(c.Query("offset"))
		return filter, nil
	}
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), repository.DefaultListLimit)
	filter.Offset = (page - 1) * pageSize
	filter.Limit = pageSize
	return filter, nil
}

func actor(c *fiber.Ctx) string {
	if v := strings.TrimSpace(c.Get(ActorHeader)); v != "" {
		return v
	}
	return service.SystemActor
}

func knownRisk(risk sla.RiskState) bool {
	for _, r := range sla.RiskStates {
		if r == risk {
			return true
		}
	}
	return false
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func optionalQuery(c *fiber.Ctx, key string) *string {
	v := strings.TrimSpace(c.Query(key))
	if v == "" {
		return nil
	}
	return &v
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func parseNonNegative(val string) int {
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed < 0 {
		return 0
	}
	return parsed
}

func ticketResponse(view *service.TicketView) dto.TicketResponse {
	ticket := view.Ticket
	return dto.TicketResponse{
		ID:             ticket.ID,
		ExternalKey:    ticket.ExternalKey,
		Title:          ticket.Title,
		Description:    ticket.Description,
		RequesterName:  ticket.RequesterName,
		RequesterEmail: ticket.RequesterEmail,
		Application:    ticket.Application,
		Module:         ticket.Module,
		RequestType:    ticket.RequestType,
		Assignee:       ticket.Assignee,
		Status:         ticket.Status,
		Priority:       ticket.Priority,
		CreatedAt:      ticket.CreatedAt,
		UpdatedAt:      ticket.UpdatedAt,
		ResolvedAt:     ticket.ResolvedAt,
		SLA:            slaResponse(view.SLA),
	}
}

func slaResponse(ev *sla.Evaluation) dto.SLAResponse {
	if ev == nil {
		return dto.SLAResponse{Risk: unevaluated, Label: unevaluated}
	}
	deadline := ev.Deadline
	return dto.SLAResponse{
		AllowanceHours:   ev.AllowanceHours,
		Deadline:         &deadline,
		ElapsedMinutes:   int64(ev.Elapsed / time.Minute),
		RemainingMinutes: int64(ev.Remaining / time.Minute),
		PercentConsumed:  ev.PercentConsumed,
		Risk:             string(ev.Risk),
		Label:            ev.Label,
	}
}

func ticketDetailResponse(detail *service.TicketDetail) dto.TicketDetailResponse {
	return dto.TicketDetailResponse{
		TicketResponse: ticketResponse(&detail.TicketView),
		Comments:       commentResponses(detail.Comments),
		History:        historyResponses(detail.History),
	}
}

func commentResponse(comment *domain.Comment) dto.CommentResponse {
	return dto.CommentResponse{
		ID:        comment.ID,
		Author:    comment.Author,
		Body:      comment.Body,
		CreatedAt: comment.CreatedAt,
	}
}

func commentResponses(comments []domain.Comment) []dto.CommentResponse {
	resp := make([]dto.CommentResponse, 0, len(comments))
	for i := range comments {
		resp = append(resp, commentResponse(&comments[i]))
	}
	return resp
}

func historyResponses(entries []domain.TicketHistory) []dto.TicketHistoryResponse {
	resp := make([]dto.TicketHistoryResponse, 0, len(entries))
	for _, entry := range entries {
		resp = append(resp, dto.TicketHistoryResponse{
			ID:         entry.ID,
			ChangeType: entry.ChangeType,
			ChangedBy:  entry.ChangedBy,
			OldValue:   entry.OldValue,
			NewValue:   entry.NewValue,
			CreatedAt:  entry.CreatedAt,
		})
	}
	return resp
}
