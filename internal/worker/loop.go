package worker

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/sungwon/newsletter/internal/metrics"
)

const (
	DefaultEmptyQueueDelay = 10 * time.Second
	DefaultErrorDelay      = time.Second
)

// TaskExecutor is satisfied by *Executor.
type TaskExecutor interface {
	TryExecuteTask(ctx context.Context) (Outcome, error)
}

// Worker repeatedly executes tasks, backing off when the queue is empty or
// a task fails.
type Worker struct {
	exec            TaskExecutor
	clock           clockwork.Clock
	emptyQueueDelay time.Duration
	errorDelay      time.Duration
	log             zerolog.Logger
}

// Option configures a Worker.
type Option func(*Worker)

// WithClock replaces the real clock used for back-off sleeps.
func WithClock(c clockwork.Clock) Option {
	return func(w *Worker) { w.clock = c }
}

// WithDelays overrides the empty-queue and error back-offs. Zero values
// keep the defaults.
func WithDelays(emptyQueue, onError time.Duration) Option {
	return func(w *Worker) {
		if emptyQueue > 0 {
			w.emptyQueueDelay = emptyQueue
		}
		if onError > 0 {
			w.errorDelay = onError
		}
	}
}

// NewWorker creates a Worker around exec.
func NewWorker(exec TaskExecutor, log zerolog.Logger, opts ...Option) *Worker {
	w := &Worker{
		exec:            exec,
		clock:           clockwork.NewRealClock(),
		emptyQueueDelay: DefaultEmptyQueueDelay,
		errorDelay:      DefaultErrorDelay,
		log:             log,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run loops until ctx is cancelled and then returns ctx.Err(). Task errors
// never stop the loop.
func (w *Worker) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		outcome, err := w.exec.TryExecuteTask(ctx)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			metrics.WorkerErrorsTotal.Inc()
			w.log.Error().Err(err).Msg("delivery task failed")
			w.sleep(ctx, w.errorDelay)
		case outcome == OutcomeEmptyQueue:
			metrics.WorkerEmptyPollsTotal.Inc()
			w.sleep(ctx, w.emptyQueueDelay)
		}
	}
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-w.clock.After(d):
	}
}
