package idempotency

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Header is one response header. Value holds the raw bytes so replay is
// byte-for-byte.
type Header struct {
	Name  string `json:"name"`
	Value []byte `json:"value"`
}

// SavedResponse is the response stored against a completed key and replayed
// for every later request with the same caller and key.
type SavedResponse struct {
	StatusCode int      `json:"status_code"`
	Headers    []Header `json:"headers"`
	Body       []byte   `json:"body"`
}

// Header returns the first header value with the given name, compared
// case-insensitively.
func (r *SavedResponse) Header(name string) string {
	for _, h := range r.Headers {
		if strings.EqualFold(h.Name, name) {
			return string(h.Value)
		}
	}
	return ""
}

// Render writes the saved status, headers and body to w unchanged.
func (r *SavedResponse) Render(w http.ResponseWriter) error {
	for _, h := range r.Headers {
		w.Header().Add(h.Name, string(h.Value))
	}
	w.WriteHeader(r.StatusCode)
	if _, err := w.Write(r.Body); err != nil {
		return fmt.Errorf("write saved body: %w", err)
	}
	return nil
}

// encodeHeaders returns the JSON array stored in response_headers.
func encodeHeaders(headers []Header) ([]byte, error) {
	if headers == nil {
		headers = []Header{}
	}
	data, err := json.Marshal(headers)
	if err != nil {
		return nil, fmt.Errorf("encode headers: %w", err)
	}
	return data, nil
}

func decodeHeaders(data []byte) ([]Header, error) {
	var headers []Header
	if err := json.Unmarshal(data, &headers); err != nil {
		return nil, fmt.Errorf("decode headers: %w", err)
	}
	return headers, nil
}
