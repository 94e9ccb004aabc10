// Package worker drains the delivery queue: one task at a time, each inside
// its own claim transaction.
package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/sungwon/newsletter/internal/apperr"
	"github.com/sungwon/newsletter/internal/issue"
	"github.com/sungwon/newsletter/internal/provider"
	"github.com/sungwon/newsletter/internal/queue"
	"github.com/sungwon/newsletter/internal/storage"
	"github.com/sungwon/newsletter/internal/subscription"
)

// Outcome is the result of one TryExecuteTask call that did not fail.
type Outcome int

const (
	// OutcomeTaskCompleted means a task was claimed and removed.
	OutcomeTaskCompleted Outcome = iota
	// OutcomeEmptyQueue means no unlocked task was available.
	OutcomeEmptyQueue
)

func (o Outcome) String() string {
	if o == OutcomeEmptyQueue {
		return "empty_queue"
	}
	return "task_completed"
}

// IssueLoader reads a published issue.
type IssueLoader interface {
	Get(ctx context.Context, db storage.DBTX, id uuid.UUID) (*issue.NewsletterIssue, error)
}

// defaultFinishTimeout bounds the send and delete of a claimed task once
// the worker has been asked to stop.
const defaultFinishTimeout = 30 * time.Second

// Executor processes a single delivery task.
type Executor struct {
	queue         queue.Dequeuer
	issues        IssueLoader
	sender        provider.EmailSender
	limiter       *rate.Limiter
	finishTimeout time.Duration
	log           zerolog.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithFinishTimeout sets how long a task that has passed the rate limiter
// may take to send and be removed. It outlives cancellation of the
// worker's context.
func WithFinishTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		if d > 0 {
			e.finishTimeout = d
		}
	}
}

// NewExecutor creates an Executor. A nil limiter sends without throttling.
func NewExecutor(q queue.Dequeuer, issues IssueLoader, sender provider.EmailSender, limiter *rate.Limiter, log zerolog.Logger, opts ...ExecutorOption) *Executor {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 0)
	}
	e := &Executor{
		queue:         q,
		issues:        issues,
		sender:        sender,
		limiter:       limiter,
		finishTimeout: defaultFinishTimeout,
		log:           log,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewLimiter builds the send limiter from a per-second rate. A rate of zero
// or less disables throttling.
func NewLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// TryExecuteTask claims one task, attempts delivery and removes the task.
//
// A send failure is logged and the task is still removed: delivery is at
// most once per task. A failure to load the issue releases the claim so the
// task stays pending, and is returned. Once the rate limiter lets a task
// through, cancelling ctx no longer stops it: the send and the delete run on
// a detached context bounded by the finish timeout.
func (e *Executor) TryExecuteTask(ctx context.Context) (Outcome, error) {
	const op = "worker.execute"

	claim, err := e.queue.Dequeue(ctx)
	if err != nil {
		return OutcomeTaskCompleted, apperr.TransientStore(op, err)
	}
	if claim == nil {
		return OutcomeEmptyQueue, nil
	}

	start := time.Now()
	task := claim.Task()
	log := e.log.With().
		Str("newsletter_issue_id", task.IssueID.String()).
		Str("subscriber_email", task.SubscriberEmail).
		Logger()

	email, err := subscription.ParseEmail(task.SubscriberEmail)
	if err != nil {
		log.Error().Err(err).Msg("Skipping a confirmed subscriber. Their stored contact details are invalid")
		return e.complete(ctx, claim, "skipped", start)
	}

	iss, err := e.issues.Get(ctx, claim.Tx(), task.IssueID)
	if err != nil {
		e.release(ctx, claim, log)
		return OutcomeTaskCompleted, apperr.TransientStore(op, err)
	}

	if err := e.limiter.Wait(ctx); err != nil {
		e.release(ctx, claim, log)
		return OutcomeTaskCompleted, err
	}

	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.finishTimeout)
	defer cancel()

	outcome := "sent"
	if err := e.sender.Send(finishCtx, email, iss.Title, iss.HTMLContent, iss.TextContent); err != nil {
		outcome = "failed"
		log.Error().Err(err).
			Bool("permanent", provider.IsPermanent(err)).
			Msg("Failed to deliver issue to a confirmed subscriber. Skipping.")
	} else {
		log.Info().Msg("newsletter issue delivered")
	}

	return e.complete(finishCtx, claim, outcome, start)
}

func (e *Executor) complete(ctx context.Context, claim *queue.Claim, outcome string, start time.Time) (Outcome, error) {
	if err := claim.Complete(ctx); err != nil {
		return OutcomeTaskCompleted, apperr.TransientStore("worker.complete", err)
	}
	queue.TasksProcessedTotal.WithLabelValues(outcome).Inc()
	queue.TaskProcessingDuration.Observe(time.Since(start).Seconds())
	return OutcomeTaskCompleted, nil
}

func (e *Executor) release(ctx context.Context, claim *queue.Claim, log zerolog.Logger) {
	if err := claim.Release(context.WithoutCancel(ctx)); err != nil {
		log.Error().Err(err).Msg("failed to release delivery task")
	}
}
