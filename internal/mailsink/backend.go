// Package mailsink is a development SMTP server that accepts everything the
// smtp provider relays and keeps it in a msgstore instead of delivering it.
package mailsink

import (
	"context"
	"sync/atomic"

	gosmtp "github.com/emersion/go-smtp"
	"github.com/rs/zerolog"

	"github.com/sungwon/newsletter/internal/logger"
	"github.com/sungwon/newsletter/internal/metrics"
	"github.com/sungwon/newsletter/internal/msgstore"
)

// Credentials enables AUTH PLAIN when Username is set. An empty Username lets
// any client send without authenticating.
type Credentials struct {
	Username string
	Password string
}

// Backend implements the go-smtp Backend interface and enforces a limit on
// concurrent sessions.
type Backend struct {
	store    msgstore.MessageStore
	creds    Credentials
	log      zerolog.Logger
	maxConns int
	active   atomic.Int64
}

// NewBackend creates a Backend. A maxConns of zero or less means unlimited.
func NewBackend(store msgstore.MessageStore, creds Credentials, log zerolog.Logger, maxConns int) *Backend {
	return &Backend{
		store:    store,
		creds:    creds,
		log:      log,
		maxConns: maxConns,
	}
}

// NewSession is called after a client sends EHLO/HELO.
func (b *Backend) NewSession(conn *gosmtp.Conn) (gosmtp.Session, error) {
	current := b.active.Add(1)
	if b.maxConns > 0 && int(current) > b.maxConns {
		b.active.Add(-1)
		b.log.Warn().
			Int64("active", current-1).
			Int("max", b.maxConns).
			Msg("connection limit reached")
		return nil, &gosmtp.SMTPError{
			Code:         421,
			EnhancedCode: gosmtp.EnhancedCode{4, 7, 0},
			Message:      "Too many connections",
		}
	}
	metrics.MailSinkActiveSessions.Inc()

	correlationID := logger.NewCorrelationID()
	sessionLog := b.log.With().
		Str("correlation_id", correlationID).
		Str("helo", heloName(conn)).
		Logger()
	sessionLog.Debug().Msg("new SMTP session")

	return &Session{
		ctx:     logger.WithCorrelationID(context.Background(), correlationID),
		log:     sessionLog,
		backend: b,
	}, nil
}

// ActiveSessions returns the current number of open sessions.
func (b *Backend) ActiveSessions() int64 {
	return b.active.Load()
}

func (b *Backend) requiresAuth() bool {
	return b.creds.Username != ""
}

func (b *Backend) release() {
	b.active.Add(-1)
	metrics.MailSinkActiveSessions.Dec()
}

func heloName(conn *gosmtp.Conn) string {
	if conn == nil {
		return ""
	}
	return conn.Hostname()
}
