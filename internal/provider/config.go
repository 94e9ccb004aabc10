package provider

import (
	"errors"
	"time"
)

// ProviderConfig holds configuration for an ESP provider.
type ProviderConfig struct {
	// Type identifies the provider: "sendgrid", "mailgun", "smtp", "stdout", "file".
	Type string

	// APIKey is the authentication credential for HTTP providers.
	APIKey string

	// Endpoint overrides the default API URL. The file provider uses it as
	// its output directory.
	Endpoint string

	// Timeout is the maximum duration for API calls.
	Timeout time.Duration

	// Domain is the Mailgun sending domain.
	Domain string

	// SMTP relay settings.
	SMTPHost string
	SMTPPort int
	Username string
	Password string
	StartTLS bool
}

const defaultTimeout = 30 * time.Second

// Validate checks that required fields are set based on provider type.
func (c *ProviderConfig) Validate() error {
	if c.Type == "" {
		return errors.New("provider type is required")
	}

	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}

	switch c.Type {
	case "sendgrid":
		if c.APIKey == "" {
			return errors.New("sendgrid: api_key is required")
		}
	case "mailgun":
		if c.APIKey == "" {
			return errors.New("mailgun: api_key is required")
		}
		if c.Domain == "" {
			return errors.New("mailgun: domain is required")
		}
	case "smtp":
		if c.SMTPHost == "" {
			return errors.New("smtp: host is required")
		}
		if c.SMTPPort <= 0 || c.SMTPPort > 65535 {
			return errors.New("smtp: port must be between 1 and 65535")
		}
		if c.Password != "" && c.Username == "" {
			return errors.New("smtp: username is required when a password is set")
		}
	case "stdout":
		// No configuration required.
	case "file":
		// Endpoint is used as output directory; optional (defaults to ./mail_output).
	default:
		return errors.New("unknown provider type: " + c.Type)
	}

	return nil
}
