// Package mimeparse reads RFC 5322 messages back into their parts. The mail
// sink uses it to summarise captured newsletters and the provider tests use it
// to check what was put on the wire.
package mimeparse

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"
)

// ErrMissingBoundary is returned for a multipart message without a boundary.
var ErrMissingBoundary = errors.New("mimeparse: multipart message missing boundary")

// ParsedMessage holds the structured parts of a message.
type ParsedMessage struct {
	MessageID   string
	Subject     string
	From        string
	To          []string
	Headers     mail.Header
	TextBody    string
	HTMLBody    string
	Attachments []Attachment
}

// Attachment is any part that is not the first text/plain or text/html body.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
	ContentID   string
	IsInline    bool
}

var wordDecoder = new(mime.WordDecoder)

// Parse parses a raw message. A message without Content-Type is text/plain.
// Multipart bodies are walked recursively; the first text/plain and text/html
// parts become the bodies.
func Parse(raw []byte) (*ParsedMessage, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("mimeparse: read message: %w", err)
	}

	parsed := &ParsedMessage{
		Headers:   msg.Header,
		MessageID: strings.Trim(msg.Header.Get("Message-ID"), "<>"),
		Subject:   decodeHeader(msg.Header.Get("Subject")),
		From:      firstAddress(msg.Header, "From"),
		To:        addresses(msg.Header, "To"),
	}

	contentType := msg.Header.Get("Content-Type")
	transferEncoding := msg.Header.Get("Content-Transfer-Encoding")

	mediaType := "text/plain"
	var params map[string]string
	if contentType != "" {
		mediaType, params, err = mime.ParseMediaType(contentType)
		if err != nil {
			return nil, fmt.Errorf("mimeparse: parse Content-Type: %w", err)
		}
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		boundary := params["boundary"]
		if boundary == "" {
			return nil, ErrMissingBoundary
		}
		if err := walkMultipart(msg.Body, boundary, parsed); err != nil {
			return nil, err
		}
		return parsed, nil
	}

	body, err := readBody(msg.Body, transferEncoding)
	if err != nil {
		return nil, fmt.Errorf("mimeparse: read body: %w", err)
	}
	if mediaType == "text/html" {
		parsed.HTMLBody = string(body)
	} else {
		parsed.TextBody = string(body)
	}
	return parsed, nil
}

func walkMultipart(r io.Reader, boundary string, parsed *ParsedMessage) error {
	mr := multipart.NewReader(r, boundary)

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("mimeparse: next part: %w", err)
		}

		mediaType := "text/plain"
		var params map[string]string
		if ct := part.Header.Get("Content-Type"); ct != "" {
			mediaType, params, err = mime.ParseMediaType(ct)
			if err != nil {
				mediaType = "application/octet-stream"
			}
		}

		if strings.HasPrefix(mediaType, "multipart/") {
			if params["boundary"] == "" {
				continue
			}
			if err := walkMultipart(part, params["boundary"], parsed); err != nil {
				return err
			}
			continue
		}

		body, err := readBody(part, part.Header.Get("Content-Transfer-Encoding"))
		if err != nil {
			return fmt.Errorf("mimeparse: read part body: %w", err)
		}

		switch {
		case mediaType == "text/plain" && parsed.TextBody == "":
			parsed.TextBody = string(body)
		case mediaType == "text/html" && parsed.HTMLBody == "":
			parsed.HTMLBody = string(body)
		default:
			parsed.Attachments = append(parsed.Attachments, buildAttachment(part, mediaType, params, body))
		}
	}
}

func buildAttachment(part *multipart.Part, mediaType string, params map[string]string, body []byte) Attachment {
	att := Attachment{
		ContentType: mediaType,
		Content:     body,
		ContentID:   strings.Trim(part.Header.Get("Content-Id"), "<>"),
	}
	if disposition := part.Header.Get("Content-Disposition"); disposition != "" {
		if dispType, dispParams, err := mime.ParseMediaType(disposition); err == nil {
			att.Filename = dispParams["filename"]
			att.IsInline = strings.EqualFold(dispType, "inline")
		}
	}
	if att.Filename == "" {
		att.Filename = params["name"]
	}
	return att
}

// readBody decodes base64 and quoted-printable transfer encodings; anything
// else is read as is.
func readBody(r io.Reader, transferEncoding string) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(transferEncoding)) {
	case "base64":
		return io.ReadAll(base64.NewDecoder(base64.StdEncoding, r))
	case "quoted-printable":
		return io.ReadAll(quotedprintable.NewReader(r))
	default:
		return io.ReadAll(r)
	}
}

func decodeHeader(v string) string {
	decoded, err := wordDecoder.DecodeHeader(v)
	if err != nil {
		return v
	}
	return decoded
}

func firstAddress(h mail.Header, key string) string {
	if list := addresses(h, key); len(list) > 0 {
		return list[0]
	}
	return ""
}

// addresses returns the bare addresses of a header, falling back to the raw
// value when it does not parse as an address list.
func addresses(h mail.Header, key string) []string {
	raw := h.Get(key)
	if raw == "" {
		return nil
	}
	list, err := h.AddressList(key)
	if err != nil {
		return []string{raw}
	}
	out := make([]string, 0, len(list))
	for _, a := range list {
		out = append(out, a.Address)
	}
	return out
}
