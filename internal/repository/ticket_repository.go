package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/incident-service/internal/domain"
)

// DefaultListLimit applies when a filter does not set Limit. A negative Limit
// lists every match.
const DefaultListLimit = 20

// TicketFilter captures search parameters.
type TicketFilter struct {
	Statuses     []domain.TicketStatus
	Priorities   []domain.TicketPriority
	Module       *string
	Application  *string
	Assignee     *string
	SearchTerm   *string
	CreatedFrom  *time.Time
	CreatedTo    *time.Time
	ActiveOnly   bool
	ResolvedOnly bool
	// After restricts the listing to tickets sorting after the cursor.
	After  *TicketCursor
	Limit  int
	Offset int
}

// TicketCursor marks a position in the default created_at DESC,
// external_key DESC ordering.
type TicketCursor struct {
	CreatedAt   time.Time
	ExternalKey string
}

// CursorAfter returns the cursor positioned on ticket.
func CursorAfter(ticket *domain.Ticket) *TicketCursor {
	return &TicketCursor{CreatedAt: ticket.CreatedAt, ExternalKey: ticket.ExternalKey}
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	GetByExternalKey(ctx context.Context, key string) (*domain.Ticket, error)
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	Count(ctx context.Context, filter TicketFilter) (int, error)
	// NextExternalNumber returns one past the highest numeric INC-n key.
	NextExternalNumber(ctx context.Context) (int, error)
}

const ticketColumns = `id, external_key, title, description, requester_name, requester_email,
               application, module, request_type, assignee, status, priority, created_at, updated_at, resolved_at`

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (` + ticketColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`
	_, err := r.pool.Exec(ctx, query,
		ticket.ID,
		ticket.ExternalKey,
		ticket.Title,
		ticket.Description,
		ticket.RequesterName,
		ticket.RequesterEmail,
		ticket.Application,
		ticket.Module,
		ticket.RequestType,
		ticket.Assignee,
		string(ticket.Status),
		string(ticket.Priority),
		ticket.CreatedAt,
		ticket.UpdatedAt,
		ticket.ResolvedAt,
	)
	return translatePgError(err)
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET title=$1, description=$2, requester_name=$3, requester_email=$4,
            application=$5, module=$6, request_type=$7, assignee=$8, status=$9, priority=$10,
            resolved_at=$11, updated_at=$12
        WHERE id=$13`
	cmd, err := r.pool.Exec(ctx, query,
		ticket.Title,
		ticket.Description,
		ticket.RequesterName,
		ticket.RequesterEmail,
		ticket.Application,
		ticket.Module,
		ticket.RequestType,
		ticket.Assignee,
		string(ticket.Status),
		string(ticket.Priority),
		ticket.ResolvedAt,
		ticket.UpdatedAt,
		ticket.ID,
	)
	if err != nil {
		return translatePgError(err)
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM tickets WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	return r.fetchSingle(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id=$1`, id)
}

func (r *ticketRepository) GetByExternalKey(ctx context.Context, key string) (*domain.Ticket, error) {
	return r.fetchSingle(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE external_key=$1`, key)
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := scanTicket(r.pool.QueryRow(ctx, query, arg), &ticket); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	var args []any
	where := buildTicketWhere(filter, pgBinder(&args), "LOWER")
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY created_at DESC, external_key DESC%s`,
		ticketColumns, where, pageClause(filter))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := scanTicket(rows, &ticket); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}

func (r *ticketRepository) Count(ctx context.Context, filter TicketFilter) (int, error) {
	var args []any
	where := buildTicketWhere(filter, pgBinder(&args), "LOWER")
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tickets WHERE `+where, args...).Scan(&n)
	return n, err
}

func (r *ticketRepository) NextExternalNumber(ctx context.Context) (int, error) {
	const query = `
        SELECT COALESCE(MAX(CAST(SUBSTRING(external_key FROM 5) AS INTEGER)), 0) + 1
        FROM tickets WHERE external_key ~ '^INC-[0-9]+$'`
	var n int
	err := r.pool.QueryRow(ctx, query).Scan(&n)
	return n, err
}

func scanTicket(row pgx.Row, ticket *domain.Ticket) error {
	var status, priority string
	if err := row.Scan(
		&ticket.ID,
		&ticket.ExternalKey,
		&ticket.Title,
		&ticket.Description,
		&ticket.RequesterName,
		&ticket.RequesterEmail,
		&ticket.Application,
		&ticket.Module,
		&ticket.RequestType,
		&ticket.Assignee,
		&status,
		&priority,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.ResolvedAt,
	); err != nil {
		return err
	}
	ticket.Status = domain.TicketStatus(status)
	ticket.Priority = domain.TicketPriority(priority)
	return nil
}

// binder appends a query argument and returns its placeholder.
type binder func(arg any) string

func pgBinder(args *[]any) binder {
	return func(arg any) string {
		*args = append(*args, arg)
		return fmt.Sprintf("$%d", len(*args))
	}
}

// buildTicketWhere renders filter as a WHERE expression. Times go through
// bind untouched so each backend can encode them its own way. lower names the
// backend's Unicode-aware lowercase function.
func buildTicketWhere(filter TicketFilter, bind binder, lower string) string {
	clauses := []string{"1=1"}

	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			placeholders[i] = bind(string(status))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Priorities) > 0 {
		placeholders := make([]string, len(filter.Priorities))
		for i, pr := range filter.Priorities {
			placeholders[i] = bind(string(pr))
		}
		clauses = append(clauses, fmt.Sprintf("priority IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.Module != nil {
		clauses = append(clauses, "module="+bind(*filter.Module))
	}
	if filter.Application != nil {
		clauses = append(clauses, "application="+bind(*filter.Application))
	}
	if filter.Assignee != nil {
		clauses = append(clauses, "assignee="+bind(*filter.Assignee))
	}
	if filter.CreatedFrom != nil {
		clauses = append(clauses, "created_at >= "+bind(*filter.CreatedFrom))
	}
	if filter.CreatedTo != nil {
		clauses = append(clauses, "created_at <= "+bind(*filter.CreatedTo))
	}
	if filter.ActiveOnly {
		clauses = append(clauses, "status <> "+bind(string(domain.TicketStatusResolved)))
	}
	if filter.ResolvedOnly {
		clauses = append(clauses, "status = "+bind(string(domain.TicketStatusResolved)))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		search := "%" + strings.ToLower(strings.TrimSpace(*filter.SearchTerm)) + "%"
		clauses = append(clauses, fmt.Sprintf("(%[1]s(title) LIKE %[2]s OR %[1]s(description) LIKE %[3]s OR %[1]s(external_key) LIKE %[4]s)",
			lower, bind(search), bind(search), bind(search)))
	}
	if filter.After != nil {
		clauses = append(clauses, fmt.Sprintf("(created_at < %s OR (created_at = %s AND external_key < %s))",
			bind(filter.After.CreatedAt), bind(filter.After.CreatedAt), bind(filter.After.ExternalKey)))
	}

	return strings.Join(clauses, " AND ")
}

func pageClause(filter TicketFilter) string {
	limit := filter.Limit
	if limit == 0 {
		limit = DefaultListLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if limit < 0 {
		if offset == 0 {
			return ""
		}
		// SQLite needs a LIMIT before OFFSET.
		return fmt.Sprintf(" LIMIT %d OFFSET %d", int64(1)<<53, offset)
	}
	return fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)
}
