package queue

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestDedupe_KeepsFirstOccurrenceOrder(t *testing.T) {
	got := dedupe([]string{"b@example.com", "a@example.com", "b@example.com", "c@example.com", "a@example.com"})
	want := []string{"b@example.com", "a@example.com", "c@example.com"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

type fakeTx struct {
	pgx.Tx
	execSQL   []string
	execErr   error
	commits   int
	rollbacks int
}

func (f *fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execSQL = append(f.execSQL, sql)
	return pgconn.NewCommandTag("DELETE 1"), f.execErr
}

func (f *fakeTx) Commit(ctx context.Context) error {
	f.commits++
	return nil
}

func (f *fakeTx) Rollback(ctx context.Context) error {
	f.rollbacks++
	return nil
}

func TestClaim_CompleteDeletesAndCommits(t *testing.T) {
	tx := &fakeTx{}
	claim := newClaim(tx, Task{IssueID: uuid.New(), SubscriberEmail: "ada@example.org"})

	if err := claim.Complete(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(tx.execSQL) != 1 || tx.execSQL[0] != deleteTaskSQL {
		t.Errorf("expected delete statement, got %v", tx.execSQL)
	}
	if tx.commits != 1 || tx.rollbacks != 0 {
		t.Errorf("expected commit only, got commits=%d rollbacks=%d", tx.commits, tx.rollbacks)
	}
}

func TestClaim_CompleteRollsBackOnDeleteError(t *testing.T) {
	tx := &fakeTx{execErr: errors.New("connection lost")}
	claim := newClaim(tx, Task{IssueID: uuid.New(), SubscriberEmail: "ada@example.org"})

	if err := claim.Complete(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if tx.commits != 0 || tx.rollbacks != 1 {
		t.Errorf("expected rollback only, got commits=%d rollbacks=%d", tx.commits, tx.rollbacks)
	}
}

func TestClaim_ConsumedOnce(t *testing.T) {
	tx := &fakeTx{}
	claim := newClaim(tx, Task{IssueID: uuid.New(), SubscriberEmail: "ada@example.org"})
	ctx := context.Background()

	if err := claim.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := claim.Complete(ctx); !errors.Is(err, ErrClaimConsumed) {
		t.Errorf("expected ErrClaimConsumed after release, got %v", err)
	}
	if err := claim.Release(ctx); !errors.Is(err, ErrClaimConsumed) {
		t.Errorf("expected ErrClaimConsumed on second release, got %v", err)
	}
	if tx.rollbacks != 1 || tx.commits != 0 {
		t.Errorf("expected a single rollback, got commits=%d rollbacks=%d", tx.commits, tx.rollbacks)
	}
}

func TestEnqueueAll_EmptyListTouchesNothing(t *testing.T) {
	q := NewPostgresQueue(nil)
	n, err := q.EnqueueAll(context.Background(), nil, uuid.New(), nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 inserted, got %d", n)
	}
}
