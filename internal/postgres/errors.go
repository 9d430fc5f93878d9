package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rpggio/galley/internal/repository"
)

const (
	codeUniqueViolation = "23505"
	codeCheckViolation  = "23514"
)

func hasCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

func isUniqueViolation(err error) bool { return hasCode(err, codeUniqueViolation) }

func isCheckViolation(err error) bool { return hasCode(err, codeCheckViolation) }

// expectOneRow maps a write result to ErrNotFound when nothing matched.
func expectOneRow(tag pgconn.CommandTag, what string) error {
	switch n := tag.RowsAffected(); {
	case n == 0:
		return repository.ErrNotFound
	case n > 1:
		return fmt.Errorf("%s matched %d rows", what, n)
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrNotFound
	}
	return err
}

// nullJSON passes empty documents as SQL NULL.
func nullJSON(data []byte) any {
	if len(data) == 0 {
		return nil
	}
	return string(data)
}
