package mailsink

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/mail"
	"strings"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sungwon/newsletter/internal/metrics"
	"github.com/sungwon/newsletter/internal/mimeparse"
)

var (
	errAuthRequired = &gosmtp.SMTPError{
		Code:         530,
		EnhancedCode: gosmtp.EnhancedCode{5, 7, 0},
		Message:      "Authentication required",
	}
	errAuthFailed = &gosmtp.SMTPError{
		Code:         535,
		EnhancedCode: gosmtp.EnhancedCode{5, 7, 8},
		Message:      "Authentication failed",
	}
)

// Session captures one SMTP transaction at a time.
type Session struct {
	ctx           context.Context
	log           zerolog.Logger
	backend       *Backend
	authenticated bool
	sender        string
	recipients    []string
}

// AuthMechanisms advertises PLAIN only when credentials are configured.
func (s *Session) AuthMechanisms() []string {
	if !s.backend.requiresAuth() {
		return nil
	}
	return []string{sasl.Plain}
}

// Auth checks AUTH PLAIN against the configured credentials.
func (s *Session) Auth(mech string) (sasl.Server, error) {
	if mech != sasl.Plain {
		return nil, gosmtp.ErrAuthUnknownMechanism
	}
	return sasl.NewPlainServer(func(_, username, password string) error {
		creds := s.backend.creds
		if username != creds.Username || password != creds.Password {
			s.log.Warn().Str("username", username).Msg("auth failed")
			return errAuthFailed
		}
		s.authenticated = true
		s.log.Debug().Str("username", username).Msg("auth successful")
		return nil
	}), nil
}

// Mail handles MAIL FROM. The null sender is accepted.
func (s *Session) Mail(from string, _ *gosmtp.MailOptions) error {
	if err := s.checkAuth(); err != nil {
		return err
	}
	if from == "" {
		s.sender = ""
		return nil
	}
	addr, err := mail.ParseAddress(from)
	if err != nil {
		s.log.Warn().Str("from", from).Msg("invalid sender address format")
		return &gosmtp.SMTPError{
			Code:         550,
			EnhancedCode: gosmtp.EnhancedCode{5, 1, 7},
			Message:      "Invalid sender address",
		}
	}
	s.sender = addr.Address
	return nil
}

// Rcpt handles RCPT TO.
func (s *Session) Rcpt(to string, _ *gosmtp.RcptOptions) error {
	if err := s.checkAuth(); err != nil {
		return err
	}
	addr, err := mail.ParseAddress(to)
	if err != nil {
		s.log.Warn().Str("to", to).Msg("invalid recipient address format")
		return &gosmtp.SMTPError{
			Code:         550,
			EnhancedCode: gosmtp.EnhancedCode{5, 1, 1},
			Message:      "Invalid recipient address",
		}
	}
	s.recipients = append(s.recipients, addr.Address)
	return nil
}

// Data stores the message with the envelope prepended as Return-Path and
// Delivered-To headers. Message bodies are never logged.
func (s *Session) Data(r io.Reader) error {
	if err := s.checkAuth(); err != nil {
		return err
	}
	if len(s.recipients) == 0 {
		return &gosmtp.SMTPError{
			Code:         503,
			EnhancedCode: gosmtp.EnhancedCode{5, 5, 1},
			Message:      "No recipients specified",
		}
	}

	var raw bytes.Buffer
	if _, err := io.Copy(&raw, r); err != nil {
		metrics.MailSinkMessagesTotal.WithLabelValues("error").Inc()
		var smtpErr *gosmtp.SMTPError
		if errors.As(err, &smtpErr) {
			return smtpErr
		}
		s.log.Error().Err(err).Msg("failed to read message data")
		return &gosmtp.SMTPError{
			Code:         451,
			EnhancedCode: gosmtp.EnhancedCode{4, 3, 0},
			Message:      "Error reading message",
		}
	}

	event := s.log.Info().
		Str("from", s.sender).
		Strs("recipients", s.recipients).
		Int("size", raw.Len())
	parsed, err := mimeparse.Parse(raw.Bytes())
	if err != nil {
		metrics.MailSinkMessagesTotal.WithLabelValues("rejected").Inc()
		s.log.Warn().Err(err).Msg("rejecting unparseable message")
		return &gosmtp.SMTPError{
			Code:         554,
			EnhancedCode: gosmtp.EnhancedCode{5, 6, 0},
			Message:      "Message could not be parsed",
		}
	}
	event = event.
		Str("subject", parsed.Subject).
		Str("header_message_id", parsed.MessageID).
		Bool("has_text", parsed.TextBody != "").
		Bool("has_html", parsed.HTMLBody != "").
		Int("attachments", len(parsed.Attachments))

	id := uuid.NewString()
	if err := s.backend.store.Put(s.ctx, id, s.withEnvelope(raw.Bytes())); err != nil {
		metrics.MailSinkMessagesTotal.WithLabelValues("error").Inc()
		s.log.Error().Err(err).Msg("failed to store message")
		return &gosmtp.SMTPError{
			Code:         451,
			EnhancedCode: gosmtp.EnhancedCode{4, 3, 0},
			Message:      "Error storing message",
		}
	}

	metrics.MailSinkMessagesTotal.WithLabelValues("stored").Inc()
	event.Str("message_id", id).Msg("message captured")
	return nil
}

// Reset clears the envelope but keeps the authentication state.
func (s *Session) Reset() {
	s.sender = ""
	s.recipients = nil
}

// Logout releases the session slot.
func (s *Session) Logout() error {
	s.backend.release()
	s.log.Debug().Msg("session closed")
	return nil
}

func (s *Session) checkAuth() error {
	if s.backend.requiresAuth() && !s.authenticated {
		return errAuthRequired
	}
	return nil
}

func (s *Session) withEnvelope(raw []byte) []byte {
	var b strings.Builder
	b.WriteString("Return-Path: <" + s.sender + ">\r\n")
	for _, rcpt := range s.recipients {
		b.WriteString("Delivered-To: " + rcpt + "\r\n")
	}
	return append([]byte(b.String()), raw...)
}
