package provider

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

// SMTP implements the Provider interface by relaying through an SMTP server.
type SMTP struct {
	addr     string
	host     string
	username string
	password string
	startTLS bool
	timeout  time.Duration
	dial     func(addr string, startTLS bool, tlsConfig *tls.Config) (*smtp.Client, error)
}

// NewSMTP creates an SMTP provider from the given configuration.
func NewSMTP(cfg ProviderConfig) *SMTP {
	return &SMTP{
		addr:     net.JoinHostPort(cfg.SMTPHost, strconv.Itoa(cfg.SMTPPort)),
		host:     cfg.SMTPHost,
		username: cfg.Username,
		password: cfg.Password,
		startTLS: cfg.StartTLS,
		timeout:  cfg.Timeout,
		dial:     dialSMTP,
	}
}

func dialSMTP(addr string, startTLS bool, tlsConfig *tls.Config) (*smtp.Client, error) {
	if startTLS {
		return smtp.DialStartTLS(addr, tlsConfig)
	}
	return smtp.Dial(addr)
}

func (s *SMTP) GetName() string { return "smtp" }

// Send opens a session, authenticates with PLAIN when credentials are set
// and submits the message.
func (s *SMTP) Send(ctx context.Context, msg *Message) (*DeliveryResult, error) {
	data, err := buildMIME(msg, time.Now())
	if err != nil {
		return nil, fmt.Errorf("smtp: build message: %w", err)
	}

	c, err := s.connect()
	if err != nil {
		return nil, err
	}

	// The goroutine owns c from here on. A cancelled caller stops waiting;
	// the session itself ends within the client's command timeouts.
	done := make(chan error, 1)
	go func() {
		if err := c.SendMail(msg.From, msg.To, bytes.NewReader(data)); err != nil {
			c.Close()
			done <- err
			return
		}
		if err := c.Quit(); err != nil {
			c.Close()
		}
		done <- nil
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("smtp: send: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return nil, ClassifySMTPError(err)
		}
	}

	return &DeliveryResult{
		ProviderMessageID: msg.ID,
		Status:            StatusSent,
		Timestamp:         time.Now(),
		Metadata:          map[string]string{"relay": s.addr},
	}, nil
}

// HealthCheck connects, authenticates and sends NOOP.
func (s *SMTP) HealthCheck(ctx context.Context) error {
	c, err := s.connect()
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Noop(); err != nil {
		return fmt.Errorf("smtp: noop: %w", err)
	}
	return c.Quit()
}

func (s *SMTP) connect() (*smtp.Client, error) {
	c, err := s.dial(s.addr, s.startTLS, &tls.Config{ServerName: s.host})
	if err != nil {
		return nil, fmt.Errorf("smtp: dial %s: %w", s.addr, err)
	}
	if s.timeout > 0 {
		c.CommandTimeout = s.timeout
		c.SubmissionTimeout = s.timeout
	}

	if s.username != "" {
		if err := c.Auth(sasl.NewPlainClient("", s.username, s.password)); err != nil {
			c.Close()
			return nil, ClassifySMTPError(fmt.Errorf("smtp: auth: %w", err))
		}
	}
	return c, nil
}
