package storage

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE codes the repositories react to.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// IsRetryable reports whether err is a serialization failure or deadlock,
// both of which succeed when the whole transaction is retried.
func IsRetryable(err error) bool {
	return hasCode(err, codeSerializationFailure) || hasCode(err, codeDeadlockDetected)
}

func hasCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
