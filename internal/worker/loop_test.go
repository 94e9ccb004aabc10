package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

type scriptedResult struct {
	outcome Outcome
	err     error
}

// scriptedExecutor replays results in order, then reports an empty queue.
type scriptedExecutor struct {
	mu      sync.Mutex
	results []scriptedResult
	calls   int
}

func (s *scriptedExecutor) TryExecuteTask(context.Context) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.results) == 0 {
		return OutcomeEmptyQueue, nil
	}
	r := s.results[0]
	s.results = s.results[1:]
	return r.outcome, r.err
}

func (s *scriptedExecutor) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func runWorker(t *testing.T, w *Worker) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	return cancel, done
}

func waitForSleeper(t *testing.T, clock *clockwork.FakeClock) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("worker never went to sleep: %v", err)
	}
}

func TestWorker_EmptyQueueSleepsTenSeconds(t *testing.T) {
	clock := clockwork.NewFakeClock()
	exec := &scriptedExecutor{}
	w := NewWorker(exec, zerolog.Nop(), WithClock(clock))

	cancel, done := runWorker(t, w)
	defer cancel()

	waitForSleeper(t, clock)
	if got := exec.callCount(); got != 1 {
		t.Fatalf("expected 1 call before sleeping, got %d", got)
	}

	clock.Advance(9 * time.Second)
	time.Sleep(10 * time.Millisecond)
	if got := exec.callCount(); got != 1 {
		t.Errorf("expected worker still asleep after 9s, got %d calls", got)
	}

	clock.Advance(time.Second)
	waitForSleeper(t, clock)
	if got := exec.callCount(); got != 2 {
		t.Errorf("expected a second poll after 10s, got %d calls", got)
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestWorker_ErrorSleepsOneSecond(t *testing.T) {
	clock := clockwork.NewFakeClock()
	exec := &scriptedExecutor{results: []scriptedResult{{err: errors.New("db down")}}}
	w := NewWorker(exec, zerolog.Nop(), WithClock(clock))

	cancel, done := runWorker(t, w)
	defer cancel()

	waitForSleeper(t, clock)
	clock.Advance(time.Second)

	// The retry finds the queue empty and sleeps again.
	waitForSleeper(t, clock)
	if got := exec.callCount(); got != 2 {
		t.Errorf("expected a retry after 1s, got %d calls", got)
	}

	cancel()
	<-done
}

func TestWorker_CompletedTaskLoopsImmediately(t *testing.T) {
	clock := clockwork.NewFakeClock()
	exec := &scriptedExecutor{results: []scriptedResult{
		{outcome: OutcomeTaskCompleted},
		{outcome: OutcomeTaskCompleted},
		{outcome: OutcomeTaskCompleted},
	}}
	w := NewWorker(exec, zerolog.Nop(), WithClock(clock))

	cancel, done := runWorker(t, w)
	defer cancel()

	waitForSleeper(t, clock)
	if got := exec.callCount(); got != 4 {
		t.Errorf("expected 3 tasks and one empty poll without sleeping, got %d calls", got)
	}

	cancel()
	<-done
}

func TestWorker_CancelInterruptsSleep(t *testing.T) {
	clock := clockwork.NewFakeClock()
	w := NewWorker(&scriptedExecutor{}, zerolog.Nop(), WithClock(clock))

	cancel, done := runWorker(t, w)
	waitForSleeper(t, clock)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop while sleeping")
	}
}

func TestWorker_WithDelays(t *testing.T) {
	w := NewWorker(&scriptedExecutor{}, zerolog.Nop(), WithDelays(2*time.Second, 0))
	if w.emptyQueueDelay != 2*time.Second {
		t.Errorf("expected empty queue delay 2s, got %v", w.emptyQueueDelay)
	}
	if w.errorDelay != DefaultErrorDelay {
		t.Errorf("expected default error delay, got %v", w.errorDelay)
	}
}

func TestPool_StartStop(t *testing.T) {
	exec := &scriptedExecutor{}
	pool := NewPool(3, exec, time.Second, zerolog.Nop(), WithClock(clockwork.NewFakeClock()))

	pool.Start(context.Background())
	if !pool.Stop() {
		t.Fatal("expected graceful stop")
	}
}
