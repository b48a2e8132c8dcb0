// Package web fetches pages over HTTP and parses them into HTML trees.
package web

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/net/html"
)

const (
	defaultMaxBody = 4 << 20 // 4MB
	defaultTimeout = 30 * time.Second

	// DefaultUserAgent mimics a desktop browser; linktr.ee and Google Forms
	// serve reduced markup to unknown agents.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
)

// TransportError reports a network, timeout or non-2xx failure.
type TransportError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("GET %s: HTTP %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("GET %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Page is a fetched and parsed document.
type Page struct {
	URL      string // requested URL
	FinalURL string // URL after redirects
	Doc      *html.Node
}

// Text returns the visible text of the whole document.
func (p *Page) Text() string { return Text(p.Doc) }

// Client fetches pages. The zero value is not usable; use NewClient.
type Client struct {
	http      *http.Client
	userAgent string
	maxBody   int64
}

// Option configures a Client.
type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithHTTPClient replaces the underlying client. Its timeout is kept as is.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func WithMaxBody(n int64) Option {
	return func(c *Client) { c.maxBody = n }
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		http:      &http.Client{Timeout: defaultTimeout},
		userAgent: DefaultUserAgent,
		maxBody:   defaultMaxBody,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch GETs url, following redirects, and parses the body as HTML.
func (c *Client) Fetch(ctx context.Context, url string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &TransportError{URL: url, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody))
	if err != nil {
		return nil, &TransportError{URL: url, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", url, err)
	}

	final := resp.Request.URL.String()
	slog.Debug("web: fetched", "url", url, "final", final, "bytes", len(body), "elapsed", time.Since(start))
	return &Page{URL: url, FinalURL: final, Doc: doc}, nil
}
