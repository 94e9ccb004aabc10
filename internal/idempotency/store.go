package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"github.com/sungwon/newsletter/internal/apperr"
	"github.com/sungwon/newsletter/internal/metrics"
	"github.com/sungwon/newsletter/internal/storage"
)

const defaultMaxBeginAttempts = 5

const (
	insertPlaceholderSQL = `
		INSERT INTO idempotency (user_id, idempotency_key, created_at)
		VALUES ($1, $2, now())
		ON CONFLICT DO NOTHING`

	selectSavedSQL = `
		SELECT response_status_code, response_headers, response_body
		FROM idempotency
		WHERE user_id = $1 AND idempotency_key = $2
		FOR SHARE`

	saveResponseSQL = `
		UPDATE idempotency
		SET response_status_code = $3,
		    response_headers = $4,
		    response_body = $5
		WHERE user_id = $1 AND idempotency_key = $2`

	purgeSQL = `
		DELETE FROM idempotency
		WHERE response_status_code IS NOT NULL AND created_at < $1`
)

// TxBeginner opens transactions. *pgxpool.Pool satisfies it.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Outcome is the result of Begin. Exactly one of Scope and Saved is set.
type Outcome struct {
	// Scope is set when the caller must process the request.
	Scope *Scope
	// Saved is set when a completed response exists for the key.
	Saved *SavedResponse
}

// Replay reports whether the outcome carries a saved response.
func (o Outcome) Replay() bool {
	return o.Saved != nil
}

// Store implements the idempotency protocol on the idempotency table.
type Store struct {
	db          TxBeginner
	cache       Cache
	maxAttempts int
	log         zerolog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithCache puts a replay cache in front of the table.
func WithCache(c Cache) Option {
	return func(s *Store) { s.cache = c }
}

// WithMaxAttempts bounds how many times Begin restarts when a conflicting
// record vanishes between the insert and the read.
func WithMaxAttempts(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// NewStore creates a Store on the given pool.
func NewStore(db TxBeginner, log zerolog.Logger, opts ...Option) *Store {
	s := &Store{
		db:          db,
		maxAttempts: defaultMaxBeginAttempts,
		log:         log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Begin claims (callerID, key) or returns the response already saved for it.
//
// A fresh claim opens a transaction and inserts a placeholder row. When
// another transaction holds an uncommitted placeholder for the same pair the
// insert blocks until it finishes: a rollback lets our insert through, a
// commit makes it a no-op and the saved response is read under FOR SHARE.
// A row that is missing or still empty at that point restarts the attempt.
func (s *Store) Begin(ctx context.Context, callerID uuid.UUID, key Key) (Outcome, error) {
	const op = "idempotency.begin"

	if resp, ok := s.cacheGet(ctx, callerID, key); ok {
		return Outcome{Saved: resp}, nil
	}

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		outcome, retry, err := s.tryBegin(ctx, callerID, key)
		if err != nil {
			return Outcome{}, apperr.TransientStore(op, err)
		}
		if !retry {
			return outcome, nil
		}

		s.log.Debug().
			Str("user_id", callerID.String()).
			Str("idempotency_key", key.String()).
			Int("attempt", attempt).
			Msg("idempotency record not settled, retrying")
	}

	return Outcome{}, apperr.ConflictWait(op,
		fmt.Errorf("record for key %q did not settle after %d attempts", key, s.maxAttempts))
}

func (s *Store) tryBegin(ctx context.Context, callerID uuid.UUID, key Key) (Outcome, bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return Outcome{}, false, fmt.Errorf("begin transaction: %w", err)
	}

	tag, err := tx.Exec(ctx, insertPlaceholderSQL, callerID, string(key))
	if err != nil {
		_ = tx.Rollback(ctx)
		if storage.IsRetryable(err) {
			return Outcome{}, true, nil
		}
		return Outcome{}, false, fmt.Errorf("insert placeholder: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return Outcome{Scope: newScope(tx, callerID, key)}, false, nil
	}

	metrics.IdempotencyConflictWaitsTotal.Inc()

	resp, err := loadSaved(ctx, tx, callerID, key)
	_ = tx.Rollback(ctx)
	if errors.Is(err, errNotSettled) {
		return Outcome{}, true, nil
	}
	if err != nil {
		return Outcome{}, false, err
	}

	s.cachePut(ctx, callerID, key, resp)
	return Outcome{Saved: resp}, false, nil
}

var errNotSettled = errors.New("idempotency record missing or incomplete")

func loadSaved(ctx context.Context, db storage.DBTX, callerID uuid.UUID, key Key) (*SavedResponse, error) {
	var (
		status  *int16
		headers []byte
		body    []byte
	)
	err := db.QueryRow(ctx, selectSavedSQL, callerID, string(key)).Scan(&status, &headers, &body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errNotSettled
	}
	if err != nil {
		return nil, fmt.Errorf("select saved response: %w", err)
	}
	if status == nil {
		return nil, errNotSettled
	}

	hs, err := decodeHeaders(headers)
	if err != nil {
		return nil, err
	}
	if body == nil {
		body = []byte{}
	}
	return &SavedResponse{StatusCode: int(*status), Headers: hs, Body: body}, nil
}

// Complete stores resp against the scope's record and commits every write
// made through the scope. The scope is consumed even when Complete fails.
func (s *Store) Complete(ctx context.Context, scope *Scope, callerID uuid.UUID, key Key, resp *SavedResponse) error {
	const op = "idempotency.complete"

	tx, err := scope.take()
	if err != nil {
		return err
	}

	if scope.CallerID() != callerID || scope.Key() != key {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("%s: scope opened for a different caller or key", op)
	}

	headers, err := encodeHeaders(resp.Headers)
	if err != nil {
		_ = tx.Rollback(ctx)
		return apperr.TransientStore(op, err)
	}

	tag, err := tx.Exec(ctx, saveResponseSQL, callerID, string(key), int16(resp.StatusCode), headers, resp.Body)
	if err != nil {
		_ = tx.Rollback(ctx)
		return apperr.TransientStore(op, fmt.Errorf("save response: %w", err))
	}
	if tag.RowsAffected() != 1 {
		_ = tx.Rollback(ctx)
		return apperr.TransientStore(op, errors.New("save response: placeholder row missing"))
	}

	if err := tx.Commit(ctx); err != nil {
		return apperr.TransientStore(op, fmt.Errorf("commit: %w", err))
	}

	s.cachePut(ctx, callerID, key, resp)
	return nil
}

// Purge deletes completed records created more than olderThan ago and
// returns how many were removed. In-progress records are never purged.
func (s *Store) Purge(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := s.db.Exec(ctx, purgeSQL, time.Now().Add(-olderThan))
	if err != nil {
		return 0, apperr.TransientStore("idempotency.purge", err)
	}
	n := tag.RowsAffected()
	metrics.IdempotencyPurgedTotal.Add(float64(n))
	return n, nil
}

func (s *Store) cacheGet(ctx context.Context, callerID uuid.UUID, key Key) (*SavedResponse, bool) {
	if s.cache == nil {
		return nil, false
	}
	resp, ok, err := s.cache.Get(ctx, callerID, key)
	switch {
	case err != nil:
		metrics.IdempotencyCacheTotal.WithLabelValues("error").Inc()
		s.log.Warn().Err(err).Str("idempotency_key", key.String()).Msg("replay cache lookup failed")
		return nil, false
	case !ok:
		metrics.IdempotencyCacheTotal.WithLabelValues("miss").Inc()
		return nil, false
	default:
		metrics.IdempotencyCacheTotal.WithLabelValues("hit").Inc()
		return resp, true
	}
}

func (s *Store) cachePut(ctx context.Context, callerID uuid.UUID, key Key, resp *SavedResponse) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Put(ctx, callerID, key, resp); err != nil {
		s.log.Warn().Err(err).Str("idempotency_key", key.String()).Msg("replay cache store failed")
	}
}
