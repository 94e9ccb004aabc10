//go:build integration

package publish_test

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sungwon/newsletter/internal/idempotency"
	"github.com/sungwon/newsletter/internal/issue"
	"github.com/sungwon/newsletter/internal/publish"
	"github.com/sungwon/newsletter/internal/queue"
	"github.com/sungwon/newsletter/internal/subscription"
	"github.com/sungwon/newsletter/internal/worker"
)

type deliveredMail struct {
	to, subject, html, text string
}

type recordingSender struct {
	mu   sync.Mutex
	sent []deliveredMail
}

func (r *recordingSender) Send(_ context.Context, to, subject, html, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, deliveredMail{to, subject, html, text})
	return nil
}

func drain(t *testing.T, exec *worker.Executor) {
	t.Helper()
	for {
		outcome, err := exec.TryExecuteTask(context.Background())
		if err != nil {
			t.Fatalf("execute: %v", err)
		}
		if outcome == worker.OutcomeEmptyQueue {
			return
		}
	}
}

func TestPublishThenDeliver_EndToEnd(t *testing.T) {
	ctx := context.Background()
	if err := sharedPG.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	for _, email := range []string{"a@example.com", "b@example.com"} {
		if err := sharedPG.AddSubscriber(ctx, email, subscription.StatusConfirmed); err != nil {
			t.Fatalf("add subscriber: %v", err)
		}
	}

	pool := sharedPG.DB.Pool
	repo := issue.NewRepository()
	q := queue.NewPostgresQueue(pool)
	orch := publish.NewOrchestrator(
		idempotency.NewStore(pool, zerolog.Nop()),
		repo,
		subscription.NewPostgresLister(),
		q,
		zerolog.Nop(),
	)
	sender := &recordingSender{}
	exec := worker.NewExecutor(q, repo, sender, nil, zerolog.Nop())

	caller := uuid.New()
	body := issue.Content{Title: "T", HTMLContent: "<p>H</p>", TextContent: "H"}

	first, err := orch.Publish(ctx, caller, "k1", body)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	drain(t, exec)

	sort.Slice(sender.sent, func(i, j int) bool { return sender.sent[i].to < sender.sent[j].to })
	want := []deliveredMail{
		{"a@example.com", "T", "<p>H</p>", "H"},
		{"b@example.com", "T", "<p>H</p>", "H"},
	}
	if len(sender.sent) != len(want) {
		t.Fatalf("expected %d sends, got %d: %+v", len(want), len(sender.sent), sender.sent)
	}
	for i := range want {
		if sender.sent[i] != want[i] {
			t.Errorf("send %d: expected %+v, got %+v", i, want[i], sender.sent[i])
		}
	}

	second, err := orch.Publish(ctx, caller, "k1", body)
	if err != nil {
		t.Fatalf("replayed publish: %v", err)
	}
	if second.StatusCode != first.StatusCode {
		t.Errorf("expected status %d on replay, got %d", first.StatusCode, second.StatusCode)
	}
	if !bytes.Equal(second.Body, first.Body) {
		t.Errorf("expected byte-identical body on replay:\nfirst:  %s\nsecond: %s", first.Body, second.Body)
	}

	depth, err := q.Depth(ctx)
	if err != nil {
		t.Fatalf("depth: %v", err)
	}
	if depth != 0 {
		t.Errorf("expected no tasks after replay, got %d", depth)
	}

	drain(t, exec)
	if len(sender.sent) != len(want) {
		t.Errorf("expected no further sends after replay, got %d total", len(sender.sent))
	}
	if n := count(t, "newsletter_issues"); n != 1 {
		t.Errorf("expected one issue, got %d", n)
	}
}
