package issue

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/sungwon/newsletter/internal/storage"
)

// ErrNotFound is returned by Get when no issue has the requested id.
var ErrNotFound = errors.New("newsletter issue not found")

// Repository persists newsletter issues.
type Repository struct{}

// NewRepository creates a Repository.
func NewRepository() *Repository {
	return &Repository{}
}

// Insert stores content as a new issue under a generated id. Run it on the
// publish transaction so the issue and its delivery tasks commit together.
func (r *Repository) Insert(ctx context.Context, db storage.DBTX, content Content) (uuid.UUID, error) {
	id := uuid.New()
	_, err := db.Exec(ctx, `
		INSERT INTO newsletter_issues (newsletter_issue_id, title, text_content, html_content, published_at)
		VALUES ($1, $2, $3, $4, now())`,
		id, content.Title, content.TextContent, content.HTMLContent)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert newsletter issue: %w", err)
	}
	return id, nil
}

// Get loads an issue by id.
func (r *Repository) Get(ctx context.Context, db storage.DBTX, id uuid.UUID) (*NewsletterIssue, error) {
	var iss NewsletterIssue
	err := db.QueryRow(ctx, `
		SELECT newsletter_issue_id, title, text_content, html_content, published_at
		FROM newsletter_issues
		WHERE newsletter_issue_id = $1`, id).
		Scan(&iss.ID, &iss.Title, &iss.TextContent, &iss.HTMLContent, &iss.PublishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get newsletter issue %s: %w", id, err)
	}
	return &iss, nil
}
