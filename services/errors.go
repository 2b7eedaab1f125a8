package services

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/camden-git/mediagallery/database"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("conflict")
)

// notFound maps a missing row to ErrNotFound and leaves other errors alone.
func notFound(err error, what string, id int64) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s %d", ErrNotFound, what, id)
	}
	return err
}

// conflict maps a catalog uniqueness failure to ErrConflict.
func conflict(err error, format string, args ...any) error {
	if errors.Is(err, database.ErrConflict) {
		return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
	}
	return err
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
