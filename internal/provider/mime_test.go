package provider

import (
	"io"
	"mime"
	"mime/multipart"
	"net/mail"
	"strings"
	"testing"
	"time"
)

func TestBuildMIME_Alternative(t *testing.T) {
	data, err := buildMIME(newsletterMessage(), time.Unix(0, 0))
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	m, err := mail.ReadMessage(strings.NewReader(string(data)))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if m.Header.Get("Message-ID") != "<msg-1@example.com>" {
		t.Errorf("unexpected Message-ID %q", m.Header.Get("Message-ID"))
	}

	mediaType, params, err := mime.ParseMediaType(m.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/alternative" {
		t.Fatalf("expected multipart/alternative, got %q (%v)", mediaType, err)
	}

	mr := multipart.NewReader(m.Body, params["boundary"])
	var types []string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("next part: %v", err)
		}
		types = append(types, strings.SplitN(part.Header.Get("Content-Type"), ";", 2)[0])
	}
	if len(types) != 2 || types[0] != "text/plain" || types[1] != "text/html" {
		t.Errorf("expected text/plain then text/html, got %v", types)
	}
}

func TestBuildMIME_EncodesNonASCIISubject(t *testing.T) {
	msg := newsletterMessage()
	msg.Subject = "Ünïcode issue"
	msg.HTMLBody = ""

	data, err := buildMIME(msg, time.Unix(0, 0))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	m, err := mail.ReadMessage(strings.NewReader(string(data)))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	subject, err := new(mime.WordDecoder).DecodeHeader(m.Header.Get("Subject"))
	if err != nil {
		t.Fatalf("decode subject: %v", err)
	}
	if subject != "Ünïcode issue" {
		t.Errorf("unexpected subject %q", subject)
	}
	if !strings.HasPrefix(m.Header.Get("Content-Type"), "text/plain") {
		t.Errorf("expected single text/plain part, got %q", m.Header.Get("Content-Type"))
	}
}

func TestMessageID(t *testing.T) {
	tests := []struct {
		name string
		id   string
		from string
		want string
	}{
		{"sender domain", "msg-1", "newsletter@example.com", "<msg-1@example.com>"},
		{"display name sender", "msg-1", "News <news@lists.example.org>", "<msg-1@lists.example.org>"},
		{"already qualified", "msg-1@mail.example.com", "newsletter@example.com", "<msg-1@mail.example.com>"},
		{"angle brackets kept once", "<msg-1@mail.example.com>", "newsletter@example.com", "<msg-1@mail.example.com>"},
		{"unparseable sender", "msg-1", "not an address", "<msg-1@localhost>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := messageID(&Message{ID: tt.id, From: tt.from}); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}
