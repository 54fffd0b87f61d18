package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"

	"github.com/spec-kit/incident-service/internal/domain"
)

// SQLite's LOWER only folds ASCII; search goes through this instead.
const sqliteLowerFunc = "unicode_lower"

func init() {
	if err := sqlite.RegisterDeterministicScalarFunction(sqliteLowerFunc, 1, unicodeLower); err != nil {
		panic(err)
	}
}

func unicodeLower(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case string:
		return strings.ToLower(v), nil
	case []byte:
		return strings.ToLower(string(v)), nil
	default:
		return v, nil
	}
}

// Timestamps are stored as fixed-width UTC text so lexical order matches time order.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatSQLiteTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func parseSQLiteTime(raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("sqlite: bad timestamp %q: %w", raw, err)
	}
	return t.UTC(), nil
}

func sqliteBinder(args *[]any) binder {
	return func(arg any) string {
		if t, ok := arg.(time.Time); ok {
			arg = formatSQLiteTime(t)
		}
		*args = append(*args, arg)
		return "?"
	}
}

type sqliteTicketRepository struct {
	db *sql.DB
}

func (r *sqliteTicketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tickets (`+ticketColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
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
		formatSQLiteTime(ticket.CreatedAt),
		formatSQLiteTime(ticket.UpdatedAt),
		nullableTime(ticket.ResolvedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: create ticket: %w", translateSQLiteError(err))
	}
	return nil
}

func (r *sqliteTicketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE tickets SET title=?, description=?, requester_name=?, requester_email=?,
			application=?, module=?, request_type=?, assignee=?, status=?, priority=?, resolved_at=?, updated_at=?
		WHERE id=?`,
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
		nullableTime(ticket.ResolvedAt),
		formatSQLiteTime(ticket.UpdatedAt),
		ticket.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: update ticket: %w", translateSQLiteError(err))
	}
	return requireAffected(res)
}

func (r *sqliteTicketRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tickets WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: delete ticket: %w", err)
	}
	return requireAffected(res)
}

func (r *sqliteTicketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	return r.fetchSingle(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id=?`, id)
}

func (r *sqliteTicketRepository) GetByExternalKey(ctx context.Context, key string) (*domain.Ticket, error) {
	return r.fetchSingle(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE external_key=?`, key)
}

func (r *sqliteTicketRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := scanSQLiteTicket(r.db.QueryRowContext(ctx, query, arg), &ticket); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *sqliteTicketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	var args []any
	where := buildTicketWhere(filter, sqliteBinder(&args), sqliteLowerFunc)
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY created_at DESC, external_key DESC%s`,
		ticketColumns, where, pageClause(filter))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list tickets: %w", err)
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := scanSQLiteTicket(rows, &ticket); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}

func (r *sqliteTicketRepository) Count(ctx context.Context, filter TicketFilter) (int, error) {
	var args []any
	where := buildTicketWhere(filter, sqliteBinder(&args), sqliteLowerFunc)
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tickets WHERE `+where, args...).Scan(&n)
	return n, err
}

func (r *sqliteTicketRepository) NextExternalNumber(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(CAST(SUBSTR(external_key, 5) AS INTEGER)), 0) + 1
		FROM tickets
		WHERE external_key LIKE 'INC-%' AND SUBSTR(external_key, 5) <> ''
		  AND SUBSTR(external_key, 5) NOT GLOB '*[^0-9]*'`).Scan(&n)
	return n, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteTicket(row rowScanner, ticket *domain.Ticket) error {
	var (
		status, priority     string
		createdAt, updatedAt string
		resolvedAt           sql.NullString
	)
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
		&createdAt,
		&updatedAt,
		&resolvedAt,
	); err != nil {
		return err
	}
	ticket.Status = domain.TicketStatus(status)
	ticket.Priority = domain.TicketPriority(priority)

	var err error
	if ticket.CreatedAt, err = parseSQLiteTime(createdAt); err != nil {
		return err
	}
	if ticket.UpdatedAt, err = parseSQLiteTime(updatedAt); err != nil {
		return err
	}
	if resolvedAt.Valid {
		t, err := parseSQLiteTime(resolvedAt.String)
		if err != nil {
			return err
		}
		ticket.ResolvedAt = &t
	}
	return nil
}

type sqliteHistoryRepository struct {
	db *sql.DB
}

func (r *sqliteHistoryRepository) Create(ctx context.Context, history *domain.TicketHistory) error {
	oldValue, err := marshalNullableJSON(history.OldValue)
	if err != nil {
		return err
	}
	newValue, err := marshalNullableJSON(history.NewValue)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO ticket_history (id, ticket_id, changed_by, change_type, old_value, new_value, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		history.ID,
		history.TicketID,
		history.ChangedBy,
		string(history.ChangeType),
		oldValue,
		newValue,
		formatSQLiteTime(history.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: create history: %w", translateSQLiteError(err))
	}
	return nil
}

func (r *sqliteHistoryRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketHistory, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, ticket_id, changed_by, change_type, old_value, new_value, created_at
		FROM ticket_history WHERE ticket_id=? ORDER BY created_at ASC, rowid ASC`, ticketID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list history: %w", err)
	}
	defer rows.Close()

	var result []domain.TicketHistory
	for rows.Next() {
		var (
			history             domain.TicketHistory
			changeType, created string
			oldValue, newValue  sql.NullString
		)
		if err := rows.Scan(&history.ID, &history.TicketID, &history.ChangedBy, &changeType,
			&oldValue, &newValue, &created); err != nil {
			return nil, err
		}
		history.ChangeType = domain.TicketChangeType(changeType)
		if history.OldValue, err = unmarshalNullableJSON(oldValue); err != nil {
			return nil, err
		}
		if history.NewValue, err = unmarshalNullableJSON(newValue); err != nil {
			return nil, err
		}
		if history.CreatedAt, err = parseSQLiteTime(created); err != nil {
			return nil, err
		}
		result = append(result, history)
	}
	return result, rows.Err()
}

type sqliteCommentRepository struct {
	db *sql.DB
}

func (r *sqliteCommentRepository) Create(ctx context.Context, comment *domain.Comment) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO ticket_comments (id, ticket_id, author, body, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		comment.ID,
		comment.TicketID,
		comment.Author,
		comment.Body,
		formatSQLiteTime(comment.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: create comment: %w", translateSQLiteError(err))
	}
	return nil
}

func (r *sqliteCommentRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.Comment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, ticket_id, author, body, created_at
		FROM ticket_comments WHERE ticket_id=? ORDER BY created_at ASC, rowid ASC`, ticketID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list comments: %w", err)
	}
	defer rows.Close()

	var result []domain.Comment
	for rows.Next() {
		var (
			comment domain.Comment
			created string
		)
		if err := rows.Scan(&comment.ID, &comment.TicketID, &comment.Author, &comment.Body, &created); err != nil {
			return nil, err
		}
		if comment.CreatedAt, err = parseSQLiteTime(created); err != nil {
			return nil, err
		}
		result = append(result, comment)
	}
	return result, rows.Err()
}

func (r *sqliteCommentRepository) Delete(ctx context.Context, ticketID, commentID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM ticket_comments WHERE id=? AND ticket_id=?`, commentID, ticketID)
	if err != nil {
		return fmt.Errorf("sqlite: delete comment: %w", err)
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatSQLiteTime(*t)
}

func marshalNullableJSON(v map[string]any) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("sqlite: encode history value: %w", err)
	}
	return string(data), nil
}

func unmarshalNullableJSON(raw sql.NullString) (map[string]any, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw.String), &out); err != nil {
		return nil, fmt.Errorf("sqlite: decode history value: %w", err)
	}
	return out, nil
}
