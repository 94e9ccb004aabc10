package issue

import (
	"time"

	"github.com/google/uuid"
)

// NewsletterIssue is a published issue. Issues are immutable once inserted.
type NewsletterIssue struct {
	ID          uuid.UUID
	Title       string
	HTMLContent string
	TextContent string
	PublishedAt time.Time
}

// Content is the body of a publish request.
type Content struct {
	Title       string `json:"title"`
	HTMLContent string `json:"html_content"`
	TextContent string `json:"text_content"`
}

// Validate returns every violation found, in field order. An empty result
// means the content can be published.
func (c Content) Validate() []string {
	var violations []string
	if c.Title == "" {
		violations = append(violations, "Field title can't be empty")
	}
	if c.HTMLContent == "" {
		violations = append(violations, "Field HTML content can't be empty")
	}
	if c.TextContent == "" {
		violations = append(violations, "Field text content can't be empty")
	}
	return violations
}
