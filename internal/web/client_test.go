package web

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestFetchFollowsRedirects(t *testing.T) {
	var gotUA string
	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/end", http.StatusFound)
	})
	mux.HandleFunc("/end", func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Write([]byte(`<html><body><p>hello <b>world</b></p><script>var x = "no";</script></body></html>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(WithUserAgent("lunchbot-test"))
	page, err := c.Fetch(context.Background(), srv.URL+"/start")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !strings.HasSuffix(page.FinalURL, "/end") {
		t.Errorf("expected final URL to end in /end, got %q", page.FinalURL)
	}
	if page.URL != srv.URL+"/start" {
		t.Errorf("unexpected requested URL %q", page.URL)
	}
	if gotUA != "lunchbot-test" {
		t.Errorf("expected user agent to be sent, got %q", gotUA)
	}
	if got := page.Text(); got != "hello world" {
		t.Errorf("Text() = %q", got)
	}
}

func TestFetchNon2xxIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient().Fetch(context.Background(), srv.URL)
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if te.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", te.StatusCode)
	}
}

func TestFetchTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	_, err := NewClient(WithTimeout(50*time.Millisecond)).Fetch(context.Background(), srv.URL)
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if te.StatusCode != 0 || te.Err == nil {
		t.Errorf("expected wrapped network error, got %+v", te)
	}
}

func TestFetchRespectsMaxBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<p>" + strings.Repeat("a", 100) + "</p>"))
	}))
	defer srv.Close()

	page, err := NewClient(WithMaxBody(13)).Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got := page.Text(); got != "aaaaaaaaaa" {
		t.Errorf("expected truncated text, got %q", got)
	}
}
