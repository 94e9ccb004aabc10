package provider

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sungwon/newsletter/internal/apperr"
	"github.com/sungwon/newsletter/internal/metrics"
)

// EmailSender is the narrow contract the delivery worker depends on.
type EmailSender interface {
	Send(ctx context.Context, to, subject, html, text string) error
}

// Sender binds a Provider to the configured sender address.
type Sender struct {
	provider Provider
	from     string
	log      zerolog.Logger
}

// NewSender creates a Sender that sends from the given address.
func NewSender(p Provider, from string, log zerolog.Logger) *Sender {
	return &Sender{provider: p, from: from, log: log}
}

// Send delivers one message to one recipient. Failures are returned as
// KindDelivery errors wrapping the provider's error.
func (s *Sender) Send(ctx context.Context, to, subject, html, text string) error {
	msg := &Message{
		ID:       uuid.New().String(),
		From:     s.from,
		To:       []string{to},
		Subject:  subject,
		HTMLBody: html,
		TextBody: text,
	}

	start := time.Now()
	result, err := s.provider.Send(ctx, msg)
	metrics.DeliverySendDuration.WithLabelValues(s.provider.GetName()).Observe(time.Since(start).Seconds())
	if err != nil {
		return apperr.Delivery("provider."+s.provider.GetName(), err)
	}

	s.log.Debug().
		Str("provider", s.provider.GetName()).
		Str("message_id", msg.ID).
		Str("provider_message_id", result.ProviderMessageID).
		Msg("message accepted by provider")
	return nil
}
