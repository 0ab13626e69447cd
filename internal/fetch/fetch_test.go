package fetch

import (
	"briefcast/internal/core"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestFetchTextStripsMarkup(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); ua != "briefcast-test" {
			t.Errorf("Expected custom user agent, got %q", ua)
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><head><title>Headline</title><style>body{color:red}</style></head>
<body><script>var x = 1;</script><!-- hidden note --><p>First   line</p>
<noscript>enable js</noscript><div>Second
line</div></body></html>`))
	}))
	defer server.Close()

	f := NewFetcher(nil, Options{Timeout: time.Second, UserAgent: "briefcast-test"})
	got := f.FetchText(context.Background(), server.URL)

	if got != "Headline First line Second line" {
		t.Errorf("Unexpected text: %q", got)
	}
}

func TestFetchTextDecodesCharset(t *testing.T) {
	// "新闻" in GBK
	gbk := []byte{0xd0, 0xc2, 0xce, 0xc5}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=gbk")
		_, _ = w.Write(append(append([]byte("<p>"), gbk...), []byte("</p>")...))
	}))
	defer server.Close()

	got := NewFetcher(nil, DefaultOptions()).FetchText(context.Background(), server.URL)
	if got != "新闻" {
		t.Errorf("Expected GBK body decoded to UTF-8, got %q", got)
	}
}

func TestFetchTextByteCap(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<p>" + strings.Repeat("a", 100) + "</p>"))
	}))
	defer server.Close()

	got := NewFetcher(nil, Options{MaxBytes: 13}).FetchText(context.Background(), server.URL)
	if got != strings.Repeat("a", 10) {
		t.Errorf("Expected body truncated to cap, got %q", got)
	}
}

func TestFetchTextFailuresReturnEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			http.NotFound(w, r)
		case "/slow":
			time.Sleep(200 * time.Millisecond)
			_, _ = w.Write([]byte("<p>late</p>"))
		}
	}))
	defer server.Close()

	f := NewFetcher(nil, Options{Timeout: 50 * time.Millisecond})
	if got := f.FetchText(context.Background(), server.URL+"/missing"); got != "" {
		t.Errorf("Expected empty text for 404, got %q", got)
	}
	if got := f.FetchText(context.Background(), server.URL+"/slow"); got != "" {
		t.Errorf("Expected empty text on timeout, got %q", got)
	}
	if got := f.FetchText(context.Background(), "://bad-url"); got != "" {
		t.Errorf("Expected empty text for invalid URL, got %q", got)
	}
}

func TestEnrich(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<p>body of " + r.URL.Path + "</p>"))
	}))
	defer server.Close()

	items := []core.Item{
		{Title: "A", URL: server.URL + "/a"},
		{Title: "B", Content: "stale"},
	}
	NewFetcher(server.Client(), DefaultOptions()).Enrich(context.Background(), items)

	if items[0].Content != "body of /a" {
		t.Errorf("Expected fetched body, got %q", items[0].Content)
	}
	if items[1].Content != "" {
		t.Errorf("Expected empty body for item without URL, got %q", items[1].Content)
	}
}
