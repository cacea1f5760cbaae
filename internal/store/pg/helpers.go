package pg

import (
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nextlevelbuilder/upsrelay/internal/store"
)

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// unavailable tags a driver error so callers can match store.ErrStoreUnavailable.
func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, store.ErrStoreUnavailable, err)
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
