package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/sungwon/newsletter/internal/apperr"
)

func TestSender_Send(t *testing.T) {
	p := &stubProvider{name: "stub"}
	s := NewSender(p, "newsletter@example.com", zerolog.Nop())

	if err := s.Send(context.Background(), "reader@example.com", "Issue #7", "<p>hi</p>", "hi"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(p.sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(p.sent))
	}

	msg := p.sent[0]
	if msg.From != "newsletter@example.com" {
		t.Errorf("unexpected from %q", msg.From)
	}
	if len(msg.To) != 1 || msg.To[0] != "reader@example.com" {
		t.Errorf("unexpected recipients %v", msg.To)
	}
	if msg.HTMLBody != "<p>hi</p>" || msg.TextBody != "hi" {
		t.Errorf("bodies were swapped or dropped: %+v", msg)
	}
	if msg.ID == "" {
		t.Error("expected a generated message id")
	}
}

func TestSender_Send_WrapsProviderError(t *testing.T) {
	providerErr := &ProviderError{Provider: "stub", Message: "mailbox not found", Permanent: true}
	s := NewSender(&stubProvider{name: "stub", err: providerErr}, "newsletter@example.com", zerolog.Nop())

	err := s.Send(context.Background(), "reader@example.com", "s", "h", "t")
	if !apperr.Is(err, apperr.KindDelivery) {
		t.Fatalf("expected delivery error, got %v", err)
	}
	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected wrapped ProviderError, got %v", err)
	}
	if !IsPermanent(err) {
		t.Error("expected permanent classification to survive wrapping")
	}
}
