// Package bootstrap provides development-time initialization routines such
// as seeding confirmed subscribers.
package bootstrap

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/sungwon/newsletter/internal/storage"
	"github.com/sungwon/newsletter/internal/subscription"
)

// Subscriber is one entry of a seed list.
type Subscriber struct {
	Name  string
	Email string
}

// SeedResult counts what SeedSubscribers did with each entry.
type SeedResult struct {
	Inserted  int
	Confirmed int
	Unchanged int
}

// ParseSubscribers reads one address per line, either "Name <email>" or a
// bare email. Blank lines and lines starting with # are skipped. A missing
// name defaults to the local part of the address.
func ParseSubscribers(r io.Reader) ([]Subscriber, error) {
	var subs []Subscriber
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		addr, err := mail.ParseAddress(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		email, err := subscription.ParseEmail(addr.Address)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		name := addr.Name
		if name == "" {
			name = email[:strings.Index(email, "@")]
		}
		subs = append(subs, Subscriber{Name: name, Email: email})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read subscriber list: %w", err)
	}
	return subs, nil
}

// A row that already exists is promoted to confirmed. RETURNING yields no
// row when nothing changed; xmax = 0 tells an insert from an update.
const upsertConfirmedSQL = `
INSERT INTO subscriptions (id, email, name, status)
VALUES ($1, $2, $3, $4)
ON CONFLICT (email) DO UPDATE SET status = EXCLUDED.status
WHERE subscriptions.status <> EXCLUDED.status
RETURNING (xmax = 0)`

// SeedSubscribers makes every entry a confirmed subscriber. It is idempotent.
func SeedSubscribers(ctx context.Context, db storage.DBTX, log zerolog.Logger, subs []Subscriber) (SeedResult, error) {
	var res SeedResult
	for _, s := range subs {
		var inserted bool
		err := db.QueryRow(ctx, upsertConfirmedSQL,
			uuid.New(), s.Email, s.Name, subscription.StatusConfirmed,
		).Scan(&inserted)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			res.Unchanged++
		case err != nil:
			return res, fmt.Errorf("seed subscriber %s: %w", s.Email, err)
		case inserted:
			res.Inserted++
		default:
			res.Confirmed++
			log.Info().Str("email", s.Email).Msg("existing subscription confirmed")
		}
	}

	log.Info().
		Int("inserted", res.Inserted).
		Int("confirmed", res.Confirmed).
		Int("unchanged", res.Unchanged).
		Msg("subscribers seeded")
	return res, nil
}
