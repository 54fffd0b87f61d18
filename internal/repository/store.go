package repository

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrDuplicateKey reports a unique constraint violation, such as a reused
// external key.
var ErrDuplicateKey = errors.New("duplicate key")

// Store bundles the repositories of one backend.
type Store struct {
	Tickets  TicketRepository
	History  TicketHistoryRepository
	Comments CommentRepository
}

// NewPostgresStore returns repositories backed by pool.
func NewPostgresStore(pool *pgxpool.Pool) *Store {
	return &Store{
		Tickets:  NewTicketRepository(pool),
		History:  NewTicketHistoryRepository(pool),
		Comments: NewCommentRepository(pool),
	}
}

// NewSQLiteStore returns repositories backed by db.
func NewSQLiteStore(db *sql.DB) *Store {
	return &Store{
		Tickets:  &sqliteTicketRepository{db: db},
		History:  &sqliteHistoryRepository{db: db},
		Comments: &sqliteCommentRepository{db: db},
	}
}

const pgUniqueViolation = "23505"

func translatePgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return errors.Join(ErrDuplicateKey, err)
	}
	return err
}

func translateSQLiteError(err error) error {
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return errors.Join(ErrDuplicateKey, err)
	}
	return err
}
