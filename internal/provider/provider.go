package provider

import (
	"context"
	"time"
)

// Provider defines the interface for sending email through an ESP.
type Provider interface {
	// Send delivers a message through the ESP and returns a delivery result.
	Send(ctx context.Context, msg *Message) (*DeliveryResult, error)
	// GetName returns the provider's identifier (e.g., "sendgrid", "smtp").
	GetName() string
	// HealthCheck verifies the provider is reachable and functional.
	HealthCheck(ctx context.Context) error
}

// HTTPClient abstracts HTTP operations for testability.
type HTTPClient interface {
	Do(ctx context.Context, req *HTTPRequest) (*HTTPResponse, error)
}

// HTTPRequest represents an outgoing HTTP request.
type HTTPRequest struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
}

// HTTPResponse represents an HTTP response from a provider API.
type HTTPResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
}

// Message is one email addressed to one or more recipients.
type Message struct {
	ID       string
	From     string
	To       []string
	Subject  string
	Headers  map[string]string
	TextBody string
	HTMLBody string
}

// DeliveryResult contains the outcome of a delivery attempt.
type DeliveryResult struct {
	ProviderMessageID string
	Status            DeliveryStatus
	Timestamp         time.Time
	Metadata          map[string]string
}

// DeliveryStatus represents the outcome of an ESP delivery.
type DeliveryStatus string

const (
	StatusSent    DeliveryStatus = "sent"
	StatusFailed  DeliveryStatus = "failed"
	StatusBounced DeliveryStatus = "bounced"
)
