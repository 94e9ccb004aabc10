package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Pool runs several Workers sharing one executor.
type Pool struct {
	workers         []*Worker
	shutdownTimeout time.Duration
	log             zerolog.Logger
	wg              sync.WaitGroup
	cancel          context.CancelFunc
}

// NewPool creates a pool of count workers. Each worker gets opts.
func NewPool(count int, exec TaskExecutor, shutdownTimeout time.Duration, log zerolog.Logger, opts ...Option) *Pool {
	if count < 1 {
		count = 1
	}
	p := &Pool{shutdownTimeout: shutdownTimeout, log: log}
	for i := 0; i < count; i++ {
		p.workers = append(p.workers, NewWorker(exec, log.With().Str("worker", fmt.Sprintf("worker-%d", i)).Logger(), opts...))
	}
	return p
}

// Start launches every worker.
func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)

	for _, w := range p.workers {
		p.wg.Add(1)
		go func(w *Worker) {
			defer p.wg.Done()
			w.log.Info().Msg("worker started")
			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.log.Error().Err(err).Msg("worker stopped")
				return
			}
			w.log.Info().Msg("worker stopping")
		}(w)
	}

	p.log.Info().Int("worker_count", len(p.workers)).Msg("worker pool started")
}

// Stop cancels the workers and waits up to the shutdown timeout for the
// task in flight to finish. A task already past the rate limiter is sent
// and removed before its worker exits. Stop reports whether every worker
// exited.
func (p *Pool) Stop() bool {
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.log.Info().Msg("worker pool stopped gracefully")
		return true
	case <-time.After(p.shutdownTimeout):
		p.log.Warn().Msg("worker pool shutdown timed out")
		return false
	}
}
