package queue

import "github.com/google/uuid"

// Task is one pending delivery of an issue to a subscriber. Its identity is
// the (IssueID, SubscriberEmail) pair.
type Task struct {
	IssueID         uuid.UUID
	SubscriberEmail string
}

// dedupe drops repeated emails, keeping first occurrence order.
func dedupe(emails []string) []string {
	seen := make(map[string]struct{}, len(emails))
	out := make([]string, 0, len(emails))
	for _, e := range emails {
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out
}
