package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sungwon/newsletter/internal/apperr"
	"github.com/sungwon/newsletter/internal/auth"
	"github.com/sungwon/newsletter/internal/idempotency"
	"github.com/sungwon/newsletter/internal/issue"
)

type publishCall struct {
	callerID uuid.UUID
	key      string
	content  issue.Content
}

type fakePublisher struct {
	calls []publishCall
	resp  *idempotency.SavedResponse
	err   error
}

func (f *fakePublisher) Publish(_ context.Context, callerID uuid.UUID, rawKey string, content issue.Content) (*idempotency.SavedResponse, error) {
	f.calls = append(f.calls, publishCall{callerID, rawKey, content})
	return f.resp, f.err
}

func savedSeeOther() *idempotency.SavedResponse {
	return &idempotency.SavedResponse{
		StatusCode: http.StatusSeeOther,
		Headers: []idempotency.Header{
			{Name: "Location", Value: []byte("/admin/newsletters")},
			{Name: "Content-Type", Value: []byte("application/json")},
		},
		Body: []byte(`{"issue_id":"00000000-0000-0000-0000-000000000001","status":"queued","recipients":2}`),
	}
}

func newTestRouter(t *testing.T, publisher Publisher) (http.Handler, string, uuid.UUID) {
	t.Helper()
	jwtService := auth.NewJWTService(auth.JWTConfig{
		SigningKey:        "test-secret-key-that-is-long-enough-32",
		AccessTokenExpiry: 15 * time.Minute,
	})
	userID := uuid.New()
	token, err := jwtService.GenerateAccessToken(userID, "admin")
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}
	return NewRouter(publisher, jwtService, fakePinger{}, zerolog.Nop()), token, userID
}

func postJSON(t *testing.T, h http.Handler, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/admin/newsletters", strings.NewReader(string(data)))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestPublishHandler_JSONWritesSavedResponse(t *testing.T) {
	pub := &fakePublisher{resp: savedSeeOther()}
	h, token, userID := newTestRouter(t, pub)

	rec := postJSON(t, h, token, map[string]string{
		"title":           "Issue #1",
		"html_content":    "<p>hi</p>",
		"text_content":    "hi",
		"idempotency_key": "abc-123",
	})

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Location") != "/admin/newsletters" {
		t.Errorf("unexpected Location %q", rec.Header().Get("Location"))
	}
	if rec.Body.String() != string(savedSeeOther().Body) {
		t.Errorf("expected saved body, got %s", rec.Body.String())
	}

	want := publishCall{userID, "abc-123", issue.Content{Title: "Issue #1", HTMLContent: "<p>hi</p>", TextContent: "hi"}}
	if len(pub.calls) != 1 || !reflect.DeepEqual(pub.calls[0], want) {
		t.Errorf("expected call %+v, got %+v", want, pub.calls)
	}
}

func TestPublishHandler_FormBody(t *testing.T) {
	pub := &fakePublisher{resp: savedSeeOther()}
	h, token, _ := newTestRouter(t, pub)

	form := url.Values{
		"title":           {"Issue #2"},
		"html_content":    {"<p>two</p>"},
		"text_content":    {"two"},
		"idempotency_key": {"form-key"},
	}
	req := httptest.NewRequest(http.MethodPost, "/admin/newsletters", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(pub.calls) != 1 || pub.calls[0].key != "form-key" || pub.calls[0].content.Title != "Issue #2" {
		t.Errorf("unexpected calls %+v", pub.calls)
	}
}

func TestPublishHandler_ValidationFailure(t *testing.T) {
	pub := &fakePublisher{err: apperr.Validation("publish", "Field title can't be empty")}
	h, token, _ := newTestRouter(t, pub)

	rec := postJSON(t, h, token, map[string]string{"idempotency_key": "k"})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var resp struct {
		Error   string   `json:"error"`
		Details []string `json:"details"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error != "validation_failed" || !reflect.DeepEqual(resp.Details, []string{"Field title can't be empty"}) {
		t.Errorf("unexpected body %+v", resp)
	}
}

func TestPublishHandler_StoreFailure(t *testing.T) {
	pub := &fakePublisher{err: apperr.TransientStore("publish", errors.New("connection reset"))}
	h, token, _ := newTestRouter(t, pub)

	rec := postJSON(t, h, token, map[string]string{"idempotency_key": "k"})

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "connection reset") {
		t.Error("expected internal details to stay out of the response")
	}
}

func TestPublishHandler_RequiresAuth(t *testing.T) {
	pub := &fakePublisher{resp: savedSeeOther()}
	h, _, _ := newTestRouter(t, pub)

	rec := postJSON(t, h, "", map[string]string{"idempotency_key": "k"})

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if len(pub.calls) != 0 {
		t.Error("expected publisher not to be called")
	}
}

func TestPublishHandler_BadBody(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
	}{
		{"malformed JSON", "application/json", "{"},
		{"unsupported content type", "text/plain", "hello"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &fakePublisher{}
			h, token, _ := newTestRouter(t, pub)

			req := httptest.NewRequest(http.MethodPost, "/admin/newsletters", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", tt.contentType)
			req.Header.Set("Authorization", "Bearer "+token)
			rec := httptest.NewRecorder()

			h.ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", rec.Code)
			}
			if len(pub.calls) != 0 {
				t.Error("expected publisher not to be called")
			}
		})
	}
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	h, _, _ := newTestRouter(t, &fakePublisher{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Error("expected default collectors in exposition")
	}
}
