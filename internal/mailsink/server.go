package mailsink

import (
	"time"

	gosmtp "github.com/emersion/go-smtp"
)

// Options configures the listening server.
type Options struct {
	Addr            string
	Domain          string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	MaxMessageBytes int64
	MaxRecipients   int
}

// NewServer wraps b in a go-smtp server. The sink only listens on trusted
// development networks, so AUTH is allowed without TLS.
func NewServer(b *Backend, opts Options) *gosmtp.Server {
	s := gosmtp.NewServer(b)
	s.Addr = opts.Addr
	s.Domain = opts.Domain
	if s.Domain == "" {
		s.Domain = "localhost"
	}
	s.ReadTimeout = opts.ReadTimeout
	s.WriteTimeout = opts.WriteTimeout
	s.MaxMessageBytes = opts.MaxMessageBytes
	s.MaxRecipients = opts.MaxRecipients
	s.AllowInsecureAuth = true
	s.EnableSMTPUTF8 = true
	return s
}
