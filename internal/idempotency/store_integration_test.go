//go:build integration

package idempotency_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sungwon/newsletter/internal/idempotency"
	"github.com/sungwon/newsletter/internal/storage/pgtest"
)

var sharedPG *pgtest.Postgres

func TestMain(m *testing.M) {
	ctx := context.Background()

	var err error
	sharedPG, err = pgtest.Start(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start postgres: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()

	sharedPG.Terminate(ctx)
	os.Exit(code)
}

func newStore(t *testing.T) *idempotency.Store {
	t.Helper()
	if err := sharedPG.Reset(context.Background()); err != nil {
		t.Fatalf("reset: %v", err)
	}
	return idempotency.NewStore(sharedPG.DB.Pool, zerolog.Nop())
}

func testResponse(body string) *idempotency.SavedResponse {
	return &idempotency.SavedResponse{
		StatusCode: 303,
		Headers: []idempotency.Header{
			{Name: "Location", Value: []byte("/admin/newsletters")},
			{Name: "Content-Type", Value: []byte("application/json")},
		},
		Body: []byte(body),
	}
}

func TestBegin_FreshThenReplay(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	caller := uuid.New()

	outcome, err := store.Begin(ctx, caller, "first")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if outcome.Scope == nil {
		t.Fatal("expected a fresh scope")
	}
	if err := store.Complete(ctx, outcome.Scope, caller, "first", testResponse(`{"n":1}`)); err != nil {
		t.Fatalf("complete: %v", err)
	}

	replay, err := store.Begin(ctx, caller, "first")
	if err != nil {
		t.Fatalf("second begin: %v", err)
	}
	if !replay.Replay() {
		t.Fatal("expected replay")
	}
	if replay.Saved.StatusCode != 303 || string(replay.Saved.Body) != `{"n":1}` {
		t.Errorf("unexpected saved response: %+v", replay.Saved)
	}
	if len(replay.Saved.Headers) != 2 || replay.Saved.Headers[0].Name != "Location" {
		t.Errorf("expected headers in original order, got %+v", replay.Saved.Headers)
	}
}

func TestBegin_SameKeyDifferentCallersAreIndependent(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	a, err := store.Begin(ctx, uuid.New(), "shared-key")
	if err != nil {
		t.Fatalf("begin a: %v", err)
	}
	defer a.Scope.Abort(ctx)

	done := make(chan idempotency.Outcome, 1)
	go func() {
		b, err := store.Begin(ctx, uuid.New(), "shared-key")
		if err != nil {
			t.Errorf("begin b: %v", err)
		}
		done <- b
	}()

	select {
	case b := <-done:
		if b.Scope == nil {
			t.Fatal("expected a fresh scope for the second caller")
		}
		_ = b.Scope.Abort(ctx)
	case <-time.After(5 * time.Second):
		t.Fatal("second caller blocked on another caller's key")
	}
}

func TestBegin_AbortAllowsRetry(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	caller := uuid.New()

	first, err := store.Begin(ctx, caller, "aborted")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := first.Scope.Tx().Exec(ctx,
		`INSERT INTO newsletter_issues (newsletter_issue_id, title, text_content, html_content) VALUES ($1, 't', 'x', 'y')`,
		uuid.New()); err != nil {
		t.Fatalf("write through scope: %v", err)
	}
	if err := first.Scope.Abort(ctx); err != nil {
		t.Fatalf("abort: %v", err)
	}

	var issues int
	if err := sharedPG.DB.Pool.QueryRow(ctx, `SELECT count(*) FROM newsletter_issues`).Scan(&issues); err != nil {
		t.Fatalf("count: %v", err)
	}
	if issues != 0 {
		t.Errorf("expected scope writes to roll back, found %d issues", issues)
	}

	second, err := store.Begin(ctx, caller, "aborted")
	if err != nil {
		t.Fatalf("begin after abort: %v", err)
	}
	if second.Scope == nil {
		t.Fatal("expected a fresh scope after abort")
	}
	_ = second.Scope.Abort(ctx)
}

func TestBegin_ConcurrentSameKeyWaitsForCompletion(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	caller := uuid.New()

	first, err := store.Begin(ctx, caller, "racing")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	result := make(chan idempotency.Outcome, 1)
	go func() {
		o, err := store.Begin(ctx, caller, "racing")
		if err != nil {
			t.Errorf("concurrent begin: %v", err)
		}
		result <- o
	}()

	select {
	case <-result:
		t.Fatal("concurrent begin returned before the first request completed")
	case <-time.After(300 * time.Millisecond):
	}

	if err := store.Complete(ctx, first.Scope, caller, "racing", testResponse("winner")); err != nil {
		t.Fatalf("complete: %v", err)
	}

	select {
	case o := <-result:
		if !o.Replay() {
			t.Fatal("expected the waiting request to replay")
		}
		if string(o.Saved.Body) != "winner" {
			t.Errorf("expected winner body, got %q", o.Saved.Body)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("waiting request never resumed")
	}
}

func TestBegin_ManyConcurrentRequestsOneProcesses(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	caller := uuid.New()

	const n = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		processed int
		replayed  int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o, err := store.Begin(ctx, caller, "stampede")
			if err != nil {
				t.Errorf("begin: %v", err)
				return
			}
			if o.Scope != nil {
				time.Sleep(50 * time.Millisecond)
				if err := store.Complete(ctx, o.Scope, caller, "stampede", testResponse("once")); err != nil {
					t.Errorf("complete: %v", err)
					return
				}
				mu.Lock()
				processed++
				mu.Unlock()
				return
			}
			if string(o.Saved.Body) != "once" {
				t.Errorf("unexpected replay body %q", o.Saved.Body)
			}
			mu.Lock()
			replayed++
			mu.Unlock()
		}()
	}
	wg.Wait()

	if processed != 1 {
		t.Errorf("expected exactly 1 processing request, got %d", processed)
	}
	if replayed != n-1 {
		t.Errorf("expected %d replays, got %d", n-1, replayed)
	}
}

func TestComplete_TwiceReturnsErrScopeConsumed(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	caller := uuid.New()

	o, err := store.Begin(ctx, caller, "double")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := store.Complete(ctx, o.Scope, caller, "double", testResponse("a")); err != nil {
		t.Fatalf("complete: %v", err)
	}
	err = store.Complete(ctx, o.Scope, caller, "double", testResponse("b"))
	if !errors.Is(err, idempotency.ErrScopeConsumed) {
		t.Fatalf("expected ErrScopeConsumed, got %v", err)
	}
}

func TestPurge_RemovesOnlyOldCompletedRecords(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	caller := uuid.New()

	done, err := store.Begin(ctx, caller, "old-complete")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := store.Complete(ctx, done.Scope, caller, "old-complete", testResponse("x")); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := sharedPG.DB.Pool.Exec(ctx,
		`UPDATE idempotency SET created_at = now() - interval '2 days'`); err != nil {
		t.Fatalf("age record: %v", err)
	}

	inFlight, err := store.Begin(ctx, caller, "in-flight")
	if err != nil {
		t.Fatalf("begin in-flight: %v", err)
	}
	defer inFlight.Scope.Abort(ctx)

	n, err := store.Purge(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 purged record, got %d", n)
	}

	again, err := store.Begin(ctx, caller, "old-complete")
	if err != nil {
		t.Fatalf("begin after purge: %v", err)
	}
	if again.Scope == nil {
		t.Fatal("expected a purged key to start fresh")
	}
	_ = again.Scope.Abort(ctx)
}
