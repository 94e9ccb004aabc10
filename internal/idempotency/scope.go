package idempotency

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/sungwon/newsletter/internal/storage"
)

// ErrScopeConsumed is returned when a Scope is used after Complete or Abort.
var ErrScopeConsumed = errors.New("idempotency scope already completed or aborted")

// Scope is the open transaction holding a fresh idempotency record. It is
// consumed exactly once, by Store.Complete or Abort.
type Scope struct {
	mu       sync.Mutex
	tx       pgx.Tx
	callerID uuid.UUID
	key      Key
	consumed bool
}

func newScope(tx pgx.Tx, callerID uuid.UUID, key Key) *Scope {
	return &Scope{tx: tx, callerID: callerID, key: key}
}

// Tx returns the transaction for the caller's own writes. Commit and
// rollback stay with the scope.
func (s *Scope) Tx() storage.DBTX {
	return s.tx
}

// CallerID returns the caller the scope was opened for.
func (s *Scope) CallerID() uuid.UUID {
	return s.callerID
}

// Key returns the key the scope was opened for.
func (s *Scope) Key() Key {
	return s.key
}

// Abort rolls back the transaction, discarding the placeholder record and
// every write made through Tx.
func (s *Scope) Abort(ctx context.Context) error {
	tx, err := s.take()
	if err != nil {
		return err
	}
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("rollback idempotency scope: %w", err)
	}
	return nil
}

// Consumed reports whether Complete or Abort has already run.
func (s *Scope) Consumed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consumed
}

func (s *Scope) take() (pgx.Tx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.consumed {
		return nil, ErrScopeConsumed
	}
	s.consumed = true
	return s.tx, nil
}
