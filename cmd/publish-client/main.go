// Command publish-client posts a newsletter issue to the admin API. Repeating
// the request with the same idempotency key shows the saved response being
// replayed instead of a second fan-out.
//
// Usage:
//
//	publish-client --token $TOKEN --title "Issue #7" --text "Hello" --html "<p>Hello</p>"
//	publish-client --token $TOKEN --key weekly-7 --count 5 --rate 10
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

type config struct {
	baseURL  string
	token    string
	title    string
	text     string
	html     string
	key      string
	freshKey bool
	count    int
	rate     float64
	timeout  time.Duration
}

func main() {
	cfg := parseFlags()

	if cfg.token == "" {
		fmt.Fprintln(os.Stderr, "error: --token is required (see api-server -issue-token)")
		flag.Usage()
		os.Exit(2)
	}
	if cfg.key == "" {
		cfg.key = uuid.NewString()
	}

	fmt.Printf("Publish Client\n")
	fmt.Printf("  Endpoint: %s\n", endpoint(cfg.baseURL))
	fmt.Printf("  Title:    %s\n", cfg.title)
	fmt.Printf("  Count:    %d\n", cfg.count)
	if !cfg.freshKey {
		fmt.Printf("  Key:      %s\n", cfg.key)
	}
	fmt.Println()

	client := &http.Client{
		Timeout: cfg.timeout,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.rate), 1)
	}

	var okCount, failCount int
	for i := 0; i < cfg.count; i++ {
		if err := limiter.Wait(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "rate limiter: %v\n", err)
			os.Exit(1)
		}

		key := cfg.key
		if cfg.freshKey {
			key = uuid.NewString()
		}

		start := time.Now()
		status, location, body, err := publish(client, cfg, key)
		elapsed := time.Since(start).Round(time.Millisecond)

		seq := i + 1
		switch {
		case err != nil:
			failCount++
			fmt.Printf("  [%d/%d] FAIL (%s): %v\n", seq, cfg.count, elapsed, err)
		case status != http.StatusSeeOther:
			failCount++
			fmt.Printf("  [%d/%d] HTTP %d (%s): %s\n", seq, cfg.count, status, elapsed, strings.TrimSpace(body))
		default:
			okCount++
			fmt.Printf("  [%d/%d] OK   (%s) -> %s %s\n", seq, cfg.count, elapsed, location, strings.TrimSpace(body))
		}
	}

	fmt.Println()
	fmt.Printf("Results: %d accepted, %d failed\n", okCount, failCount)
	if failCount > 0 {
		os.Exit(1)
	}
}

func parseFlags() config {
	var cfg config

	flag.StringVar(&cfg.baseURL, "url", "http://localhost:8080", "API server base URL")
	flag.StringVar(&cfg.token, "token", os.Getenv("NEWSLETTER_TOKEN"), "Bearer token (default $NEWSLETTER_TOKEN)")
	flag.StringVar(&cfg.title, "title", "Test issue", "Issue title")
	flag.StringVar(&cfg.text, "text", "This is a test issue.", "Plain text content")
	flag.StringVar(&cfg.html, "html", "<p>This is a test issue.</p>", "HTML content")
	flag.StringVar(&cfg.key, "key", "", "Idempotency key (default: a random UUID shared by all requests)")
	flag.BoolVar(&cfg.freshKey, "fresh-key", false, "Use a new idempotency key for every request")
	flag.IntVar(&cfg.count, "count", 1, "Number of requests to send")
	flag.Float64Var(&cfg.rate, "rate", 0, "Requests per second, 0 for no limit")
	flag.DurationVar(&cfg.timeout, "timeout", 30*time.Second, "Per-request timeout")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: publish-client [options]\n\n")
		fmt.Fprintf(os.Stderr, "Posts newsletter issues to the admin API.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}

	flag.Parse()
	return cfg
}

func endpoint(base string) string {
	return strings.TrimRight(base, "/") + "/admin/newsletters"
}

func newPublishRequest(cfg config, key string) (*http.Request, error) {
	form := url.Values{}
	form.Set("title", cfg.title)
	form.Set("text_content", cfg.text)
	form.Set("html_content", cfg.html)
	form.Set("idempotency_key", key)

	req, err := http.NewRequest(http.MethodPost, endpoint(cfg.baseURL), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+cfg.token)
	return req, nil
}

func publish(client *http.Client, cfg config, key string) (status int, location, body string, err error) {
	req, err := newPublishRequest(cfg, key)
	if err != nil {
		return 0, "", "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, "", "", fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return resp.StatusCode, "", "", fmt.Errorf("read body: %w", err)
	}
	return resp.StatusCode, resp.Header.Get("Location"), string(b), nil
}
