package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"

	"github.com/sungwon/newsletter/internal/storage"
)

// ErrClaimConsumed is returned when a Claim is used after Complete or Release.
var ErrClaimConsumed = errors.New("claim already completed or released")

// Claim is a task locked by an open transaction. While it is held no other
// consumer can see the task.
type Claim struct {
	mu       sync.Mutex
	tx       pgx.Tx
	task     Task
	consumed bool
}

func newClaim(tx pgx.Tx, task Task) *Claim {
	return &Claim{tx: tx, task: task}
}

// Task returns the claimed task.
func (c *Claim) Task() Task {
	return c.task
}

// Tx returns the claim's transaction for reads that should share it.
func (c *Claim) Tx() storage.DBTX {
	return c.tx
}

// Complete deletes the task and commits.
func (c *Claim) Complete(ctx context.Context) error {
	tx, err := c.take()
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, deleteTaskSQL, c.task.IssueID, c.task.SubscriberEmail); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("delete delivery task: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit delivery task: %w", err)
	}
	return nil
}

// Release rolls back, leaving the task pending for any consumer.
func (c *Claim) Release(ctx context.Context) error {
	tx, err := c.take()
	if err != nil {
		return err
	}
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("release delivery task: %w", err)
	}
	return nil
}

func (c *Claim) take() (pgx.Tx, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.consumed {
		return nil, ErrClaimConsumed
	}
	c.consumed = true
	return c.tx, nil
}
