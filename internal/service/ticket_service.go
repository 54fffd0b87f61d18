package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/incident-service/internal/domain"
	"github.com/spec-kit/incident-service/internal/events"
	"github.com/spec-kit/incident-service/internal/observability"
	"github.com/spec-kit/incident-service/internal/repository"
	"github.com/spec-kit/incident-service/internal/sla"
	apperrors "github.com/spec-kit/incident-service/pkg/util/errorutil"
)

// SystemActor is recorded when no caller identity is supplied.
const SystemActor = "system"

const (
	titleMaxLen      = 200
	keyRetryAttempts = 3
)

// TicketService coordinates ticket workflows.
type TicketService struct {
	tickets    repository.TicketRepository
	history    repository.TicketHistoryRepository
	comments   repository.CommentRepository
	engine     *sla.Engine
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	roster     []Analyst
	now        func() time.Time
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	Store      *repository.Store
	Engine     *sla.Engine
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
	// Roster lists the analysts eligible for automatic assignment.
	Roster []Analyst
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// TicketView is a ticket with its SLA evaluated at read time. SLA is nil when
// the evaluation failed; SLAError then holds the reason.
type TicketView struct {
	Ticket   domain.Ticket
	SLA      *sla.Evaluation
	SLAError error
}

// TicketDetail adds the comment thread and audit trail to a view.
type TicketDetail struct {
	TicketView
	Comments []domain.Comment
	History  []domain.TicketHistory
}

// TicketPage is one page of a filtered listing.
type TicketPage struct {
	Items  []TicketView
	Total  int
	Limit  int
	Offset int
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	ExternalKey    string
	Title          string
	Description    string
	RequesterName  string
	RequesterEmail string
	Application    string
	Module         string
	RequestType    string
	Assignee       string
	Priority       string
	// CreatedAt backdates a ticket registered after the fact.
	CreatedAt *time.Time
}

// TicketUpdateInput carries the fields to change; nil leaves a field as is.
type TicketUpdateInput struct {
	Title          *string
	Description    *string
	RequesterName  *string
	RequesterEmail *string
	Application    *string
	Module         *string
	RequestType    *string
	Priority       *string
}

// TicketListFilter extends the store filter with a risk predicate evaluated
// in memory.
type TicketListFilter struct {
	repository.TicketFilter
	Risks []sla.RiskState
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &TicketService{
		tickets:    deps.Store.Tickets,
		history:    deps.Store.History,
		comments:   deps.Store.Comments,
		engine:     deps.Engine,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger,
		roster:     deps.Roster,
		now:        clock,
	}
}

// Engine exposes the SLA engine backing the service.
func (s *TicketService) Engine() *sla.Engine {
	return s.engine
}

// CreateTicket registers a new incident in OPEN status.
func (s *TicketService) CreateTicket(ctx context.Context, actor string, input TicketCreateInput) (*TicketView, error) {
	priority, ok := domain.ParsePriority(input.Priority)
	if !ok {
		return nil, apperrors.NewValidationError("invalid priority", map[string]any{
			"priority": input.Priority,
			"allowed":  domain.Priorities,
		})
	}
	title := strings.TrimSpace(input.Title)
	description := strings.TrimSpace(input.Description)
	if title == "" {
		title = titleFromDescription(description)
	}
	if title == "" {
		return nil, apperrors.NewValidationError("title or description is required", nil)
	}
	if utf8.RuneCountInString(title) > titleMaxLen {
		return nil, apperrors.NewValidationError("title too long", map[string]any{"max": titleMaxLen})
	}

	now := s.now()
	createdAt := now
	if input.CreatedAt != nil {
		if input.CreatedAt.After(now) {
			return nil, apperrors.NewValidationError("created_at cannot be in the future", nil)
		}
		createdAt = *input.CreatedAt
	}

	ticket := &domain.Ticket{
		ID:             uuid.NewString(),
		ExternalKey:    strings.ToUpper(strings.TrimSpace(input.ExternalKey)),
		Title:          title,
		Description:    description,
		RequesterName:  strings.TrimSpace(input.RequesterName),
		RequesterEmail: strings.TrimSpace(input.RequesterEmail),
		Application:    strings.TrimSpace(input.Application),
		Module:         strings.TrimSpace(input.Module),
		RequestType:    domain.NormalizeRequestType(input.RequestType),
		Assignee:       strings.TrimSpace(input.Assignee),
		Status:         domain.TicketStatusOpen,
		Priority:       priority,
		CreatedAt:      createdAt,
		UpdatedAt:      now,
	}

	if err := s.insertTicket(ctx, ticket); err != nil {
		return nil, err
	}
	if err := s.record(ctx, ticket.ID, actor, domain.ChangeTypeCreated, nil, map[string]any{
		"status":   ticket.Status,
		"priority": ticket.Priority,
	}); err != nil {
		return nil, apperrors.MapError(err)
	}

	view := s.project(*ticket, now)
	payload := events.TicketCreatedPayload{
		Title:       ticket.Title,
		Priority:    ticket.Priority,
		Application: ticket.Application,
		Module:      ticket.Module,
	}
	if view.SLA != nil {
		deadline := view.SLA.Deadline
		payload.Deadline = &deadline
	}
	s.publishEvent(ctx, events.New(events.EventTicketCreated, ticket, actor, now, payload))
	return &view, nil
}

// insertTicket stores ticket, generating an INC-n key when none was given.
// Generated keys are retried on collision; caller keys are not.
func (s *TicketService) insertTicket(ctx context.Context, ticket *domain.Ticket) error {
	if ticket.ExternalKey != "" {
		if err := s.tickets.Create(ctx, ticket); err != nil {
			return mapStoreError(err, "ticket", ticket.ExternalKey)
		}
		return nil
	}
	var lastErr error
	for attempt := 0; attempt < keyRetryAttempts; attempt++ {
		n, err := s.tickets.NextExternalNumber(ctx)
		if err != nil {
			return apperrors.MapError(err)
		}
		ticket.ExternalKey = FormatExternalKey(n)
		lastErr = s.tickets.Create(ctx, ticket)
		if lastErr == nil {
			return nil
		}
		if !errors.Is(lastErr, repository.ErrDuplicateKey) {
			return apperrors.MapError(lastErr)
		}
	}
	return apperrors.NewConflict("could not allocate ticket key", map[string]any{"error": lastErr.Error()})
}

// FormatExternalKey renders the INC-0042 style key of n.
func FormatExternalKey(n int) string {
	return fmt.Sprintf("INC-%04d", n)
}

// GetTicket returns one ticket by id or external key.
func (s *TicketService) GetTicket(ctx context.Context, ref string) (*TicketView, error) {
	ticket, err := s.lookup(ctx, ref)
	if err != nil {
		return nil, err
	}
	view := s.project(*ticket, s.now())
	return &view, nil
}

// GetTicketDetail returns a ticket with comments and history.
func (s *TicketService) GetTicketDetail(ctx context.Context, ref string) (*TicketDetail, error) {
	ticket, err := s.lookup(ctx, ref)
	if err != nil {
		return nil, err
	}
	comments, err := s.comments.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	history, err := s.history.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return &TicketDetail{
		TicketView: s.project(*ticket, s.now()),
		Comments:   comments,
		History:    history,
	}, nil
}

// ListTickets returns a filtered page. A risk filter requires evaluating
// every candidate, so the page is cut in memory in that case.
func (s *TicketService) ListTickets(ctx context.Context, filter TicketListFilter) (*TicketPage, error) {
	now := s.now()
	limit := filter.Limit
	if limit <= 0 {
		limit = repository.DefaultListLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	if len(filter.Risks) == 0 {
		storeFilter := filter.TicketFilter
		storeFilter.Limit, storeFilter.Offset = limit, offset
		tickets, err := s.tickets.ListWithFilter(ctx, storeFilter)
		if err != nil {
			return nil, apperrors.MapError(err)
		}
		total, err := s.tickets.Count(ctx, filter.TicketFilter)
		if err != nil {
			return nil, apperrors.MapError(err)
		}
		return &TicketPage{Items: s.projectAll(tickets, now), Total: total, Limit: limit, Offset: offset}, nil
	}

	storeFilter := filter.TicketFilter
	storeFilter.Limit, storeFilter.Offset = -1, 0
	tickets, err := s.tickets.ListWithFilter(ctx, storeFilter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	wanted := make(map[sla.RiskState]bool, len(filter.Risks))
	for _, r := range filter.Risks {
		wanted[r] = true
	}
	var matched []TicketView
	for _, view := range s.projectAll(tickets, now) {
		if view.SLA != nil && wanted[view.SLA.Risk] {
			matched = append(matched, view)
		}
	}
	page := &TicketPage{Total: len(matched), Limit: limit, Offset: offset}
	if offset < len(matched) {
		end := offset + limit
		if end > len(matched) {
			end = len(matched)
		}
		page.Items = matched[offset:end]
	}
	return page, nil
}

// UpdateTicket edits descriptive fields and priority.
func (s *TicketService) UpdateTicket(ctx context.Context, actor, ref string, input TicketUpdateInput) (*TicketView, error) {
	ticket, err := s.lookup(ctx, ref)
	if err != nil {
		return nil, err
	}

	oldFields := map[string]any{}
	newFields := map[string]any{}
	apply := func(name string, dst *string, val *string) {
		if val == nil {
			return
		}
		trimmed := strings.TrimSpace(*val)
		if trimmed == *dst {
			return
		}
		oldFields[name] = *dst
		newFields[name] = trimmed
		*dst = trimmed
	}
	apply("title", &ticket.Title, input.Title)
	apply("description", &ticket.Description, input.Description)
	apply("requester_name", &ticket.RequesterName, input.RequesterName)
	apply("requester_email", &ticket.RequesterEmail, input.RequesterEmail)
	apply("application", &ticket.Application, input.Application)
	apply("module", &ticket.Module, input.Module)
	if input.RequestType != nil {
		requestType := domain.NormalizeRequestType(*input.RequestType)
		apply("request_type", &ticket.RequestType, &requestType)
	}

	if ticket.Title == "" {
		return nil, apperrors.NewValidationError("title cannot be empty", nil)
	}
	if utf8.RuneCountInString(ticket.Title) > titleMaxLen {
		return nil, apperrors.NewValidationError("title too long", map[string]any{"max": titleMaxLen})
	}

	oldPriority := ticket.Priority
	if input.Priority != nil {
		priority, ok := domain.ParsePriority(*input.Priority)
		if !ok {
			return nil, apperrors.NewValidationError("invalid priority", map[string]any{
				"priority": *input.Priority,
				"allowed":  domain.Priorities,
			})
		}
		ticket.Priority = priority
	}
	priorityChanged := ticket.Priority != oldPriority

	now := s.now()
	if len(newFields) == 0 && !priorityChanged {
		view := s.project(*ticket, now)
		return &view, nil
	}

	ticket.UpdatedAt = now
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, mapStoreError(err, "ticket", ref)
	}
	if len(newFields) > 0 {
		if err := s.record(ctx, ticket.ID, actor, domain.ChangeTypeFields, oldFields, newFields); err != nil {
			return nil, apperrors.MapError(err)
		}
	}
	if priorityChanged {
		if err := s.record(ctx, ticket.ID, actor, domain.ChangeTypePriority,
			map[string]any{"priority": oldPriority},
			map[string]any{"priority": ticket.Priority}); err != nil {
			return nil, apperrors.MapError(err)
		}
		s.publishEvent(ctx, events.New(events.EventTicketPriorityChanged, ticket, actor, now,
			events.TicketPriorityChangedPayload{OldPriority: oldPriority, NewPriority: ticket.Priority}))
	}

	view := s.project(*ticket, now)
	return &view, nil
}

// ChangeStatus moves a ticket along the workflow. Entering RESOLVED stamps
// resolved_at; a resolved ticket cannot move again.
func (s *TicketService) ChangeStatus(ctx context.Context, actor, ref string, status domain.TicketStatus, comment string) (*TicketView, error) {
	status = domain.TicketStatus(strings.ToUpper(strings.TrimSpace(string(status))))
	if !status.Valid() {
		return nil, apperrors.NewValidationError("invalid status", map[string]any{
			"status":  status,
			"allowed": domain.KnownStatuses,
		})
	}
	ticket, err := s.lookup(ctx, ref)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if ticket.Status == status {
		view := s.project(*ticket, now)
		return &view, nil
	}
	if !isValidTransition(ticket.Status, status) {
		return nil, apperrors.NewConflict("invalid status transition", map[string]any{
			"from": ticket.Status,
			"to":   status,
		})
	}

	oldStatus := ticket.Status
	ticket.Status = status
	if status.IsResolved() && ticket.ResolvedAt == nil {
		resolved := now
		ticket.ResolvedAt = &resolved
	}
	ticket.UpdatedAt = now
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, mapStoreError(err, "ticket", ref)
	}

	newValue := map[string]any{"status": status}
	if comment = strings.TrimSpace(comment); comment != "" {
		newValue["comment"] = comment
	}
	if err := s.record(ctx, ticket.ID, actor, domain.ChangeTypeStatus,
		map[string]any{"status": oldStatus}, newValue); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.publishEvent(ctx, events.New(events.EventTicketStatusChanged, ticket, actor, now,
		events.TicketStatusChangedPayload{OldStatus: oldStatus, NewStatus: status, Comment: comment}))

	view := s.project(*ticket, now)
	return &view, nil
}

// DeleteTicket removes a ticket with its comments and history.
func (s *TicketService) DeleteTicket(ctx context.Context, actor, ref string) error {
	ticket, err := s.lookup(ctx, ref)
	if err != nil {
		return err
	}
	if err := s.tickets.Delete(ctx, ticket.ID); err != nil {
		return mapStoreError(err, "ticket", ref)
	}
	s.logger.Info("ticket deleted",
		zap.String("ticket_id", ticket.ID),
		zap.String("external_key", ticket.ExternalKey),
		zap.String("actor", actorOrSystem(actor)))
	s.publishEvent(ctx, events.New(events.EventTicketDeleted, ticket, actor, s.now(), nil))
	return nil
}

// Board groups every ticket into Kanban columns in workflow order. Statuses
// outside the known stages get trailing columns.
func (s *TicketService) Board(ctx context.Context) ([]BoardColumn, error) {
	tickets, err := s.tickets.ListWithFilter(ctx, repository.TicketFilter{Limit: -1})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	now := s.now()

	byStatus := make(map[domain.TicketStatus][]TicketView)
	for _, view := range s.projectAll(tickets, now) {
		byStatus[view.Ticket.Status] = append(byStatus[view.Ticket.Status], view)
	}

	columns := make([]BoardColumn, 0, len(domain.KnownStatuses))
	for _, status := range domain.KnownStatuses {
		columns = append(columns, BoardColumn{Status: status, Tickets: byStatus[status]})
		delete(byStatus, status)
	}
	extra := make([]string, 0, len(byStatus))
	for status := range byStatus {
		extra = append(extra, string(status))
	}
	sort.Strings(extra)
	for _, status := range extra {
		st := domain.TicketStatus(status)
		columns = append(columns, BoardColumn{Status: st, Tickets: byStatus[st]})
	}
	return columns, nil
}

// BoardColumn is one Kanban column.
type BoardColumn struct {
	Status  domain.TicketStatus
	Tickets []TicketView
}

// Project evaluates the SLA of ticket at now.
func (s *TicketService) Project(ticket domain.Ticket, now time.Time) TicketView {
	return s.project(ticket, now)
}

func (s *TicketService) project(ticket domain.Ticket, now time.Time) TicketView {
	view := TicketView{Ticket: ticket}
	ev, err := s.engine.Evaluate(&ticket, now)
	if err != nil {
		s.logger.Warn("sla evaluation failed",
			zap.String("ticket_id", ticket.ID),
			zap.String("external_key", ticket.ExternalKey),
			zap.Error(err))
		view.SLAError = err
		s.metrics.RecordEvaluation("ERROR")
		return view
	}
	view.SLA = &ev
	s.metrics.RecordEvaluation(string(ev.Risk))
	return view
}

func (s *TicketService) projectAll(tickets []domain.Ticket, now time.Time) []TicketView {
	views := make([]TicketView, 0, len(tickets))
	for _, ticket := range tickets {
		views = append(views, s.project(ticket, now))
	}
	return views
}

// lookup resolves ref as a ticket uuid or an INC-n external key.
func (s *TicketService) lookup(ctx context.Context, ref string) (*domain.Ticket, error) {
	ref = strings.TrimSpace(ref)
	var (
		ticket *domain.Ticket
		err    error
	)
	switch {
	case strings.HasPrefix(strings.ToUpper(ref), "INC-"):
		ticket, err = s.tickets.GetByExternalKey(ctx, strings.ToUpper(ref))
	case isUUID(ref):
		ticket, err = s.tickets.GetByID(ctx, ref)
	default:
		return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ref})
	}
	if err != nil {
		return nil, mapStoreError(err, "ticket", ref)
	}
	return ticket, nil
}

func (s *TicketService) record(ctx context.Context, ticketID, actor string, changeType domain.TicketChangeType, oldValue, newValue map[string]any) error {
	if s.history == nil {
		return nil
	}
	entry := &domain.TicketHistory{
		ID:         uuid.NewString(),
		TicketID:   ticketID,
		ChangedBy:  actorOrSystem(actor),
		ChangeType: changeType,
		OldValue:   oldValue,
		NewValue:   newValue,
		CreatedAt:  s.now(),
	}
	return s.history.Create(ctx, entry)
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.Actor == "" {
		event.Actor = SystemActor
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handlers failed",
			zap.String("event_type", string(event.Type)),
			zap.String("ticket_id", event.TicketID),
			zap.Error(err))
	}
}

// Moves out of RESOLVED are rejected; every other stage may move to any stage.
func isValidTransition(current, next domain.TicketStatus) bool {
	if current.IsResolved() {
		return false
	}
	return next != current
}

func mapStoreError(err error, resource, ref string) error {
	switch {
	case err == nil:
		return nil
	case apperrors.IsNotFound(err):
		return apperrors.NewNotFound(resource, map[string]any{resource + "_id": ref})
	case errors.Is(err, repository.ErrDuplicateKey):
		return apperrors.NewConflict(resource+" already exists", map[string]any{"key": ref})
	default:
		return apperrors.MapError(err)
	}
}

func actorOrSystem(actor string) string {
	if actor = strings.TrimSpace(actor); actor != "" {
		return actor
	}
	return SystemActor
}

func isUUID(ref string) bool {
	_, err := uuid.Parse(ref)
	return err == nil
}

// titleFromDescription cuts description to 100 runes, marking the cut.
func titleFromDescription(description string) string {
	const max = 100
	description = strings.Join(strings.Fields(description), " ")
	if utf8.RuneCountInString(description) <= max {
		return description
	}
	runes := []rune(description)
	return string(runes[:max]) + "..."
}

func stringPreview(body string, max int) string {
	body = strings.TrimSpace(body)
	if utf8.RuneCountInString(body) <= max {
		return body
	}
	runes := []rune(body)
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
