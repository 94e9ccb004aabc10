package storage

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsRetryable(t *testing.T) {
	if IsRetryable(errors.New("boom")) || IsRetryable(nil) {
		t.Error("expected plain errors not to be retryable")
	}
	if !IsRetryable(&pgconn.PgError{Code: "40001"}) {
		t.Error("expected serialization failure to be retryable")
	}
	if !IsRetryable(fmt.Errorf("commit: %w", &pgconn.PgError{Code: "40P01"})) {
		t.Error("expected deadlock to be retryable")
	}
	if IsRetryable(&pgconn.PgError{Code: "23505"}) {
		t.Error("expected unique violation not to be retryable")
	}
}
