package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/sungwon/newsletter/internal/storage"
)

const (
	enqueueSQL = `
		INSERT INTO issue_delivery_queue (newsletter_issue_id, subscriber_email)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`

	dequeueSQL = `
		SELECT newsletter_issue_id, subscriber_email
		FROM issue_delivery_queue
		FOR UPDATE
		SKIP LOCKED
		LIMIT 1`

	deleteTaskSQL = `
		DELETE FROM issue_delivery_queue
		WHERE newsletter_issue_id = $1 AND subscriber_email = $2`

	depthSQL = `SELECT count(*) FROM issue_delivery_queue`
)

// Pool is the part of *pgxpool.Pool the queue needs.
type Pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresQueue stores delivery tasks in issue_delivery_queue. Concurrent
// consumers skip rows locked by others, so each pending task is held by at
// most one worker at a time.
type PostgresQueue struct {
	pool Pool
}

// NewPostgresQueue creates a PostgresQueue.
func NewPostgresQueue(pool Pool) *PostgresQueue {
	return &PostgresQueue{pool: pool}
}

// EnqueueAll inserts one task per distinct email for issueID using db, which
// should be the publish transaction. It returns the number of rows inserted.
func (q *PostgresQueue) EnqueueAll(ctx context.Context, db storage.DBTX, issueID uuid.UUID, emails []string) (int, error) {
	emails = dedupe(emails)
	if len(emails) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, email := range emails {
		batch.Queue(enqueueSQL, issueID, email)
	}

	br := db.SendBatch(ctx, batch)
	inserted := 0
	for range emails {
		tag, err := br.Exec()
		if err != nil {
			_ = br.Close()
			return 0, fmt.Errorf("enqueue delivery task: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}
	if err := br.Close(); err != nil {
		return 0, fmt.Errorf("close enqueue batch: %w", err)
	}

	TasksEnqueuedTotal.Add(float64(inserted))
	return inserted, nil
}

// Dequeue opens a transaction and locks one pending task. It returns nil
// when every pending task is locked or the queue is empty.
func (q *PostgresQueue) Dequeue(ctx context.Context) (*Claim, error) {
	tx, err := q.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin dequeue transaction: %w", err)
	}

	var task Task
	err = tx.QueryRow(ctx, dequeueSQL).Scan(&task.IssueID, &task.SubscriberEmail)
	if errors.Is(err, pgx.ErrNoRows) {
		_ = tx.Rollback(ctx)
		return nil, nil
	}
	if err != nil {
		_ = tx.Rollback(ctx)
		return nil, fmt.Errorf("dequeue task: %w", err)
	}

	return newClaim(tx, task), nil
}

// Depth returns the number of pending tasks, locked or not.
func (q *PostgresQueue) Depth(ctx context.Context) (int64, error) {
	var n int64
	if err := q.pool.QueryRow(ctx, depthSQL).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pending tasks: %w", err)
	}
	QueueDepth.Set(float64(n))
	return n, nil
}
