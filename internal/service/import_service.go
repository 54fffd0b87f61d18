package service

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/incident-service/internal/domain"
	"github.com/spec-kit/incident-service/internal/observability"
	"github.com/spec-kit/incident-service/internal/repository"
	"github.com/spec-kit/incident-service/internal/sla"
	apperrors "github.com/spec-kit/incident-service/pkg/util/errorutil"
)

// Column headers of the request form export, normalized by normalizeHeader.
const (
	colID          = "id"
	colStartedAt   = "hora de inicio"
	colCreatedAt   = "fecha hora de creacion"
	colEmail       = "correo electrónico"
	colName        = "nombre"
	colDescription = "descripción de la solicitud"
	colPriority    = "prioridad del caso"
	colRequestType = "tipo solicitud"
	colApplication = "aplicativo"
	colVendorState = "estado proveedor"
	colClientState = "estado andina"
	colSolvedAt    = "fecha solución"
)

// Module columns are one per application, e.g. "De ERP, ¿en qué módulo requiere soporte?".
const moduleColumnMarker = "en qué módulo requiere soporte"

const untitledTicket = "Sin título"

var (
	incKeyPattern  = regexp.MustCompile(`^INC-\d+$`)
	bareKeyPattern = regexp.MustCompile(`^\d+$`)
)

var importDateLayouts = []string{
	"2/1/2006 15:04:05",
	"2/1/2006 15:04",
	"2/1/2006",
}

// Prefixes of "Prioridad del Caso" values, e.g. "Crítico - Afecta la operación".
var importPriorityPrefixes = []struct {
	prefix   string
	priority domain.TicketPriority
}{
	{"crítico", domain.TicketPriorityCritical},
	{"critico", domain.TicketPriorityCritical},
	{"alto", domain.TicketPriorityHigh},
	{"medio", domain.TicketPriorityStandard},
	{"bajo", domain.TicketPriorityLow},
}

var importStatuses = map[string]domain.TicketStatus{
	"aprobado script, pendiente ejecucion": domain.TicketStatusDevelopment,
	"en proceso":                           domain.TicketStatusDevelopment,
	"resuelto":                             domain.TicketStatusResolved,
	"cerrado":                              domain.TicketStatusResolved,
	"pendiente":                            domain.TicketStatusPending,
}

// ImportRowError describes one rejected CSV line.
type ImportRowError struct {
	Line    int
	Key     string
	Message string
}

func (e ImportRowError) String() string {
	return fmt.Sprintf("Fila %d: %s", e.Line, e.Message)
}

// ImportResult summarizes a CSV import.
type ImportResult struct {
	Imported int
	Skipped  int
	Failed   int
	Keys     []string
	Errors   []ImportRowError
}

// ImportService moves tickets in and out of CSV files.
type ImportService struct {
	tickets repository.TicketRepository
	history repository.TicketHistoryRepository
	engine  *sla.Engine
	metrics *observability.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewImportService builds the service.
func NewImportService(store *repository.Store, engine *sla.Engine, metrics *observability.Metrics, logger *zap.Logger, clock func() time.Time) *ImportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = time.Now
	}
	return &ImportService{
		tickets: store.Tickets,
		history: store.History,
		engine:  engine,
		metrics: metrics,
		logger:  logger,
		now:     clock,
	}
}

// ImportCSV reads a form export and stores every valid row. Tickets whose key
// already exists are skipped. Rows without an id get generated keys that
// avoid every id named elsewhere in the file. A malformed row is reported and does not stop
// the import; only unreadable input or a store failure aborts it.
func (s *ImportService) ImportCSV(ctx context.Context, actor string, r io.Reader) (*ImportResult, error) {
	reader, err := newCSVReader(r)
	if err != nil {
		return nil, apperrors.NewValidationError("unreadable csv", map[string]any{"error": err.Error()})
	}
	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, apperrors.NewValidationError("csv file is empty", nil)
		}
		return nil, apperrors.NewValidationError("unreadable csv header", map[string]any{"error": err.Error()})
	}
	columns := indexHeader(header)
	if _, ok := columns.named[colDescription]; !ok {
		if _, ok := columns.named[colCreatedAt]; !ok {
			return nil, apperrors.NewValidationError("csv header does not match the request form export", map[string]any{
				"required": []string{colCreatedAt, colDescription},
			})
		}
	}

	rows, err := readImportRows(reader)
	if err != nil {
		return nil, apperrors.NewValidationError("unreadable csv", map[string]any{"error": err.Error()})
	}

	cal := s.engine.Calendar()
	keys := &keyAllocator{tickets: s.tickets, reserved: make(map[string]struct{})}
	for _, item := range rows {
		if item.err == nil {
			if key, ok, _ := explicitImportKey(columns.row(item.record).get(colID)); ok {
				keys.reserved[key] = struct{}{}
			}
		}
	}

	result := &ImportResult{}
	for _, item := range rows {
		if item.err != nil {
			result.Failed++
			result.Errors = append(result.Errors, ImportRowError{Line: item.line, Message: item.err.Error()})
			continue
		}

		row := columns.row(item.record)
		ticket, err := s.ticketFromRow(ctx, row, cal, keys)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, ImportRowError{Line: item.line, Key: row.get(colID), Message: err.Error()})
			continue
		}

		if err := s.tickets.Create(ctx, ticket); err != nil {
			if errors.Is(err, repository.ErrDuplicateKey) {
				result.Skipped++
				continue
			}
			return nil, apperrors.MapError(err)
		}
		if err := s.history.Create(ctx, &domain.TicketHistory{
			ID:         uuid.NewString(),
			TicketID:   ticket.ID,
			ChangedBy:  actorOrSystem(actor),
			ChangeType: domain.ChangeTypeCreated,
			NewValue: map[string]any{
				"status":   ticket.Status,
				"priority": ticket.Priority,
				"source":   "csv",
			},
			CreatedAt: ticket.UpdatedAt,
		}); err != nil {
			return nil, apperrors.MapError(err)
		}
		result.Imported++
		result.Keys = append(result.Keys, ticket.ExternalKey)
	}

	s.metrics.RecordImport(result.Imported, result.Failed)
	s.logger.Info("csv import finished",
		zap.String("actor", actorOrSystem(actor)),
		zap.Int("imported", result.Imported),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed))
	return result, nil
}

// importRow is one data line of the file. err holds a per-line parse error.
type importRow struct {
	line   int
	record []string
	err    error
}

// readImportRows reads every non-blank data line. Malformed lines are kept
// with their parse error; any other read error aborts.
func readImportRows(reader *csv.Reader) ([]importRow, error) {
	var rows []importRow
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				rows = append(rows, importRow{line: parseErr.StartLine, err: parseErr.Err})
				continue
			}
			return nil, err
		}
		if blankRecord(record) {
			continue
		}
		line, _ := reader.FieldPos(0)
		rows = append(rows, importRow{line: line, record: record})
	}
}

func (s *ImportService) ticketFromRow(ctx context.Context, row csvRow, cal *sla.Calendar, keys *keyAllocator) (*domain.Ticket, error) {
	createdRaw := row.get(colCreatedAt)
	if createdRaw == "" {
		createdRaw = row.get(colStartedAt)
	}
	if createdRaw == "" {
		return nil, errors.New("missing creation date")
	}
	createdAt, err := parseImportDate(createdRaw, cal)
	if err != nil {
		return nil, fmt.Errorf("invalid creation date %q", createdRaw)
	}

	key, ok, err := explicitImportKey(row.get(colID))
	if err != nil {
		return nil, err
	}
	if !ok {
		if key, err = keys.next(ctx); err != nil {
			return nil, fmt.Errorf("allocate key: %w", err)
		}
	}

	description := row.get(colDescription)
	title := titleFromDescription(description)
	if title == "" {
		title = untitledTicket
	}

	stateRaw := row.get(colVendorState)
	if stateRaw == "" {
		stateRaw = row.get(colClientState)
	}
	status := mapImportStatus(stateRaw)

	now := s.now()
	ticket := &domain.Ticket{
		ID:             uuid.NewString(),
		ExternalKey:    key,
		Title:          title,
		Description:    description,
		RequesterName:  row.get(colName),
		RequesterEmail: row.get(colEmail),
		Application:    row.get(colApplication),
		Module:         row.module(),
		RequestType:    domain.NormalizeRequestType(row.get(colRequestType)),
		Status:         status,
		Priority:       mapImportPriority(row.get(colPriority)),
		CreatedAt:      createdAt,
		UpdatedAt:      now,
	}
	if status.IsResolved() {
		if raw := row.get(colSolvedAt); raw != "" {
			resolved, err := parseImportDate(raw, cal)
			switch {
			case err != nil:
				s.logger.Warn("ignoring unparseable resolution date",
					zap.String("external_key", key), zap.String("value", raw))
			case resolved.Before(createdAt):
				s.logger.Warn("ignoring resolution date before creation",
					zap.String("external_key", key), zap.Time("resolved_at", resolved))
			default:
				ticket.ResolvedAt = &resolved
			}
		}
	}
	return ticket, nil
}

// explicitImportKey keeps INC-n ids and pads bare numbers. ok is false when
// the row carries no usable id and needs a generated key.
func explicitImportKey(raw string) (string, bool, error) {
	raw = strings.ToUpper(strings.TrimSpace(raw))
	switch {
	case incKeyPattern.MatchString(raw):
		return raw, true, nil
	case bareKeyPattern.MatchString(raw):
		n, err := strconv.Atoi(raw)
		if err != nil {
			return "", false, fmt.Errorf("invalid id %q", raw)
		}
		return FormatExternalKey(n), true, nil
	default:
		return "", false, nil
	}
}

// keyAllocator generates keys for rows without an id, skipping every id the
// file names explicitly.
type keyAllocator struct {
	tickets  repository.TicketRepository
	reserved map[string]struct{}
	last     int
}

func (a *keyAllocator) next(ctx context.Context) (string, error) {
	n, err := a.tickets.NextExternalNumber(ctx)
	if err != nil {
		return "", err
	}
	n = max(n, a.last+1)
	for {
		key := FormatExternalKey(n)
		if _, taken := a.reserved[key]; !taken {
			a.last = n
			return key, nil
		}
		n++
	}
}

// ExportCSV writes every ticket with its SLA evaluated now and returns the
// number of rows written.
func (s *ImportService) ExportCSV(ctx context.Context, w io.Writer) (int, error) {
	tickets, err := s.tickets.ListWithFilter(ctx, repository.TicketFilter{Limit: -1})
	if err != nil {
		return 0, apperrors.MapError(err)
	}
	now := s.now()
	loc := s.engine.Calendar().Location()

	out := csv.NewWriter(w)
	if err := out.Write(ExportHeader); err != nil {
		return 0, err
	}
	for i := range tickets {
		ticket := &tickets[i]
		record := []string{
			ticket.ExternalKey,
			ticket.Title,
			string(ticket.Status),
			string(ticket.Priority),
			ticket.Assignee,
			ticket.Application,
			ticket.Module,
			ticket.RequestType,
			ticket.RequesterName,
			ticket.RequesterEmail,
			ticket.CreatedAt.In(loc).Format(time.RFC3339),
			formatOptionalTime(ticket.ResolvedAt, loc),
		}
		ev, err := s.engine.Evaluate(ticket, now)
		if err != nil {
			s.logger.Warn("sla evaluation failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
			record = append(record, "", "", "", "", UnevaluatedBucket)
		} else {
			record = append(record,
				strconv.Itoa(ev.AllowanceHours),
				ev.Deadline.In(loc).Format(time.RFC3339),
				string(ev.Risk),
				strconv.FormatFloat(ev.PercentConsumed, 'f', 1, 64),
				ev.Label,
			)
		}
		if err := out.Write(record); err != nil {
			return i, err
		}
	}
	out.Flush()
	return len(tickets), out.Error()
}

// ExportHeader names the columns written by ExportCSV.
var ExportHeader = []string{
	"external_key", "title", "status", "priority", "assignee", "application", "module",
	"request_type", "requester_name", "requester_email", "created_at", "resolved_at",
	"allowance_hours", "deadline", "risk", "percent_consumed", "sla_label",
}

func formatOptionalTime(t *time.Time, loc *time.Location) string {
	if t == nil {
		return ""
	}
	return t.In(loc).Format(time.RFC3339)
}

func mapImportPriority(raw string) domain.TicketPriority {
	value := strings.ToLower(strings.TrimSpace(raw))
	for _, candidate := range importPriorityPrefixes {
		if strings.HasPrefix(value, candidate.prefix) {
			return candidate.priority
		}
	}
	if p, ok := domain.ParsePriority(raw); ok {
		return p
	}
	return domain.TicketPriorityStandard
}

func mapImportStatus(raw string) domain.TicketStatus {
	value := strings.ToLower(strings.Join(strings.Fields(raw), " "))
	if status, ok := importStatuses[value]; ok {
		return status
	}
	if status := domain.TicketStatus(strings.ToUpper(value)); status.Valid() {
		return status
	}
	return domain.TicketStatusPending
}

// parseImportDate accepts the day-first form dates before the ISO layouts.
func parseImportDate(raw string, cal *sla.Calendar) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range importDateLayouts {
		if t, err := time.ParseInLocation(layout, raw, cal.Location()); err == nil {
			return t, nil
		}
	}
	return cal.ParseTimestamp(raw)
}

// newCSVReader sniffs the delimiter from the header line; spreadsheet exports
// in Spanish locales use semicolons.
func newCSVReader(r io.Reader) (*csv.Reader, error) {
	br := bufio.NewReader(r)
	peek, err := br.Peek(4096)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, err
	}
	if i := bytes.IndexByte(peek, '\n'); i >= 0 {
		peek = peek[:i]
	}
	reader := csv.NewReader(br)
	if bytes.Count(peek, []byte{';'}) > bytes.Count(peek, []byte{','}) {
		reader.Comma = ';'
	}
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	return reader, nil
}

type headerIndex struct {
	named   map[string]int
	modules []int
}

func indexHeader(header []string) headerIndex {
	idx := headerIndex{named: make(map[string]int, len(header))}
	for i, raw := range header {
		name := normalizeHeader(raw)
		if strings.Contains(name, moduleColumnMarker) {
			idx.modules = append(idx.modules, i)
			continue
		}
		if _, dup := idx.named[name]; !dup {
			idx.named[name] = i
		}
	}
	return idx
}

func (h headerIndex) row(record []string) csvRow {
	return csvRow{index: h, record: record}
}

type csvRow struct {
	index  headerIndex
	record []string
}

func (r csvRow) get(column string) string {
	i, ok := r.index.named[column]
	if !ok || i >= len(r.record) {
		return ""
	}
	return strings.TrimSpace(r.record[i])
}

// module returns the first filled per-application module column.
func (r csvRow) module() string {
	for _, i := range r.index.modules {
		if i < len(r.record) {
			if v := strings.TrimSpace(r.record[i]); v != "" {
				return v
			}
		}
	}
	return ""
}

func normalizeHeader(raw string) string {
	raw = strings.TrimPrefix(raw, "\ufeff")
	return strings.ToLower(strings.Join(strings.Fields(raw), " "))
}

func blankRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}
