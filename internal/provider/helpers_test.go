package provider

import (
	"context"
)

// recordingHTTPClient captures requests and returns a canned response.
type recordingHTTPClient struct {
	requests []*HTTPRequest
	resp     *HTTPResponse
	err      error
}

func (c *recordingHTTPClient) Do(_ context.Context, req *HTTPRequest) (*HTTPResponse, error) {
	c.requests = append(c.requests, req)
	if c.err != nil {
		return nil, c.err
	}
	return c.resp, nil
}

// stubProvider implements Provider with a configurable Send result.
type stubProvider struct {
	name string
	sent []*Message
	err  error
}

func (p *stubProvider) Send(_ context.Context, msg *Message) (*DeliveryResult, error) {
	p.sent = append(p.sent, msg)
	if p.err != nil {
		return nil, p.err
	}
	return &DeliveryResult{ProviderMessageID: "stub-" + msg.ID, Status: StatusSent}, nil
}

func (p *stubProvider) GetName() string { return p.name }

func (p *stubProvider) HealthCheck(_ context.Context) error { return nil }

func newsletterMessage() *Message {
	return &Message{
		ID:       "msg-1",
		From:     "newsletter@example.com",
		To:       []string{"reader@example.com"},
		Subject:  "Issue #7",
		TextBody: "Hello reader",
		HTMLBody: "<p>Hello reader</p>",
	}
}
