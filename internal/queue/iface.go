package queue

import (
	"context"

	"github.com/google/uuid"

	"github.com/sungwon/newsletter/internal/storage"
)

// Enqueuer records delivery tasks inside the caller's transaction.
type Enqueuer interface {
	EnqueueAll(ctx context.Context, db storage.DBTX, issueID uuid.UUID, emails []string) (int, error)
}

// Dequeuer hands out one locked task at a time. A nil claim with a nil
// error means the queue has no unlocked task.
type Dequeuer interface {
	Dequeue(ctx context.Context) (*Claim, error)
}
