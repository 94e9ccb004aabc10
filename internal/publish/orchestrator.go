// Package publish turns a publish request into a stored issue plus one
// delivery task per confirmed subscriber, exactly once per idempotency key.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sungwon/newsletter/internal/apperr"
	"github.com/sungwon/newsletter/internal/idempotency"
	"github.com/sungwon/newsletter/internal/issue"
	"github.com/sungwon/newsletter/internal/metrics"
	"github.com/sungwon/newsletter/internal/queue"
	"github.com/sungwon/newsletter/internal/storage"
	"github.com/sungwon/newsletter/internal/subscription"
)

// RedirectLocation is where a successful publish sends the browser.
const RedirectLocation = "/admin/newsletters"

// IdempotencyStore is the part of *idempotency.Store the orchestrator uses.
type IdempotencyStore interface {
	Begin(ctx context.Context, callerID uuid.UUID, key idempotency.Key) (idempotency.Outcome, error)
	Complete(ctx context.Context, scope *idempotency.Scope, callerID uuid.UUID, key idempotency.Key, resp *idempotency.SavedResponse) error
}

// IssueInserter stores a new issue on the given transaction.
type IssueInserter interface {
	Insert(ctx context.Context, db storage.DBTX, content issue.Content) (uuid.UUID, error)
}

// Result is the JSON body of a successful publish.
type Result struct {
	IssueID    uuid.UUID `json:"issue_id"`
	Status     string    `json:"status"`
	Recipients int       `json:"recipients"`
}

// Orchestrator runs the publish workflow.
type Orchestrator struct {
	store       IdempotencyStore
	issues      IssueInserter
	subscribers subscription.Lister
	queue       queue.Enqueuer
	log         zerolog.Logger
}

// NewOrchestrator wires an Orchestrator.
func NewOrchestrator(store IdempotencyStore, issues IssueInserter, subscribers subscription.Lister, q queue.Enqueuer, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		store:       store,
		issues:      issues,
		subscribers: subscribers,
		queue:       q,
		log:         log,
	}
}

// Publish validates content, then either replays the response saved for
// (callerID, rawKey) or stores the issue, fans it out to the delivery queue
// and saves the response, all in one transaction.
func (o *Orchestrator) Publish(ctx context.Context, callerID uuid.UUID, rawKey string, content issue.Content) (*idempotency.SavedResponse, error) {
	const op = "publish"

	if violations := content.Validate(); len(violations) > 0 {
		metrics.PublishTotal.WithLabelValues("invalid").Inc()
		return nil, apperr.Validation(op, violations...)
	}

	key, err := idempotency.ParseKey(rawKey)
	if err != nil {
		metrics.PublishTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}

	log := o.log.With().
		Str("user_id", callerID.String()).
		Str("idempotency_key", key.String()).
		Logger()

	outcome, err := o.store.Begin(ctx, callerID, key)
	if err != nil {
		metrics.PublishTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	if outcome.Replay() {
		metrics.PublishTotal.WithLabelValues("replayed").Inc()
		log.Info().Int("status", outcome.Saved.StatusCode).Msg("replaying saved publish response")
		return outcome.Saved, nil
	}

	scope := outcome.Scope
	defer func() {
		if scope.Consumed() {
			return
		}
		if abortErr := scope.Abort(context.WithoutCancel(ctx)); abortErr != nil {
			log.Error().Err(abortErr).Msg("failed to abort publish transaction")
		}
	}()

	resp, err := o.fanOut(ctx, scope, content, log)
	if err != nil {
		metrics.PublishTotal.WithLabelValues("error").Inc()
		return nil, tagStore(op, err)
	}

	if err := o.store.Complete(ctx, scope, scope.CallerID(), scope.Key(), resp); err != nil {
		metrics.PublishTotal.WithLabelValues("error").Inc()
		return nil, tagStore(op, err)
	}

	metrics.PublishTotal.WithLabelValues("fresh").Inc()
	return resp, nil
}

func (o *Orchestrator) fanOut(ctx context.Context, scope *idempotency.Scope, content issue.Content, log zerolog.Logger) (*idempotency.SavedResponse, error) {
	tx := scope.Tx()

	issueID, err := o.issues.Insert(ctx, tx, content)
	if err != nil {
		return nil, err
	}

	subscribers, err := o.subscribers.ListConfirmed(ctx, tx)
	if err != nil {
		return nil, err
	}

	emails := make([]string, 0, len(subscribers))
	for _, s := range subscribers {
		email, err := subscription.ParseEmail(s.Email)
		if err != nil {
			log.Warn().Err(err).
				Str("subscriber_email", s.Email).
				Msg("Skipping a confirmed subscriber. Their stored contact details are invalid")
			continue
		}
		emails = append(emails, email)
	}

	enqueued, err := o.queue.EnqueueAll(ctx, tx, issueID, emails)
	if err != nil {
		return nil, err
	}

	metrics.PublishRecipients.Observe(float64(enqueued))
	log.Info().
		Str("newsletter_issue_id", issueID.String()).
		Int("recipients", enqueued).
		Msg("newsletter issue queued for delivery")

	return successResponse(issueID, enqueued)
}

func successResponse(issueID uuid.UUID, recipients int) (*idempotency.SavedResponse, error) {
	body, err := json.Marshal(Result{IssueID: issueID, Status: "queued", Recipients: recipients})
	if err != nil {
		return nil, fmt.Errorf("encode publish response: %w", err)
	}
	return &idempotency.SavedResponse{
		StatusCode: http.StatusSeeOther,
		Headers: []idempotency.Header{
			{Name: "Location", Value: []byte(RedirectLocation)},
			{Name: "Content-Type", Value: []byte("application/json")},
		},
		Body: body,
	}, nil
}

// tagStore leaves tagged errors alone and marks everything else as a store
// failure.
func tagStore(op string, err error) error {
	if apperr.KindOf(err) != apperr.KindUnknown {
		return err
	}
	return apperr.TransientStore(op, err)
}
