// Package subscription reads the confirmed subscriber list owned by the
// subscribe and confirm workflow.
package subscription

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/sungwon/newsletter/internal/apperr"
	"github.com/sungwon/newsletter/internal/storage"
)

// StatusConfirmed marks a subscription that may receive issues.
const StatusConfirmed = "confirmed"

// ConfirmedSubscriber is one row of the confirmed list. Email is stored as
// entered and may fail ParseEmail.
type ConfirmedSubscriber struct {
	Email string
}

// Lister returns the confirmed subscribers visible to db.
type Lister interface {
	ListConfirmed(ctx context.Context, db storage.DBTX) ([]ConfirmedSubscriber, error)
}

// ParseEmail validates a stored subscriber address and returns the bare
// address without display name.
func ParseEmail(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", apperr.Validation("subscription.parse_email", "subscriber email is empty")
	}
	addr, err := mail.ParseAddress(trimmed)
	if err != nil {
		return "", apperr.Validation("subscription.parse_email",
			fmt.Sprintf("%q is not a valid subscriber email", raw))
	}
	if !strings.Contains(addr.Address[strings.LastIndex(addr.Address, "@")+1:], ".") {
		return "", apperr.Validation("subscription.parse_email",
			fmt.Sprintf("%q has no valid domain", raw))
	}
	return addr.Address, nil
}

// PostgresLister reads confirmed subscribers from the subscriptions table.
type PostgresLister struct{}

// NewPostgresLister creates a PostgresLister.
func NewPostgresLister() *PostgresLister {
	return &PostgresLister{}
}

// ListConfirmed returns every confirmed subscriber ordered by email.
func (l *PostgresLister) ListConfirmed(ctx context.Context, db storage.DBTX) ([]ConfirmedSubscriber, error) {
	rows, err := db.Query(ctx,
		`SELECT email FROM subscriptions WHERE status = $1 ORDER BY email`, StatusConfirmed)
	if err != nil {
		return nil, fmt.Errorf("list confirmed subscribers: %w", err)
	}
	defer rows.Close()

	var subscribers []ConfirmedSubscriber
	for rows.Next() {
		var s ConfirmedSubscriber
		if err := rows.Scan(&s.Email); err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		subscribers = append(subscribers, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscribers: %w", err)
	}
	return subscribers, nil
}
