package fetch

import (
	"briefcast/internal/core"
	"briefcast/internal/logger"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

// DefaultUserAgent identifies briefcast to the sites it reads.
const DefaultUserAgent = "Briefcast/1.0"

var whitespaceRe = regexp.MustCompile(`\s+`)

// Options controls article body fetching.
type Options struct {
	Timeout   time.Duration
	MaxBytes  int64 // 0 reads the whole body
	UserAgent string
}

// DefaultOptions mirrors the configuration defaults.
func DefaultOptions() Options {
	return Options{
		Timeout:   5 * time.Second,
		UserAgent: DefaultUserAgent,
	}
}

// Fetcher downloads linked pages and reduces them to plain text.
type Fetcher struct {
	client *http.Client
	opts   Options
}

// NewFetcher creates a fetcher sharing the given client. A nil client gets
// a fresh one.
func NewFetcher(client *http.Client, opts Options) *Fetcher {
	if client == nil {
		client = &http.Client{}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	return &Fetcher{client: client, opts: opts}
}

// FetchText returns the readable text of the page at url, or "" when the
// page cannot be fetched or parsed.
func (f *Fetcher) FetchText(ctx context.Context, url string) string {
	text, err := f.fetch(ctx, url)
	if err != nil {
		logger.Debug("Article fetch failed", "url", url, "error", err.Error())
		return ""
	}
	return text
}

// Enrich fills Content for every item that has a URL. Items without a URL
// get an empty body.
func (f *Fetcher) Enrich(ctx context.Context, items []core.Item) {
	beat := logger.NewHeartbeat("fetch", 0)
	for i := range items {
		if items[i].URL == "" {
			items[i].Content = ""
			continue
		}
		items[i].Content = f.FetchText(ctx, items[i].URL)
		beat.Tick("Fetching article bodies", "done", i+1, "total", len(items))
	}
}

func (f *Fetcher) fetch(ctx context.Context, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch URL %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("failed to fetch URL %s: status code %d", url, resp.StatusCode)
	}

	body, err := readCapped(resp.Body, f.opts.MaxBytes)
	if err != nil {
		return "", fmt.Errorf("failed to read response body from %s: %w", url, err)
	}

	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(contentType, "application/pdf") || bytes.HasPrefix(body, []byte("%PDF-")) {
		return pdfText(body)
	}
	return htmlText(body, contentType)
}

func readCapped(r io.Reader, maxBytes int64) ([]byte, error) {
	if maxBytes > 0 {
		r = io.LimitReader(r, maxBytes)
	}
	return io.ReadAll(r)
}

// decodeUTF8 converts a body to UTF-8 using the declared or sniffed charset.
func decodeUTF8(data []byte, contentType string) []byte {
	enc, _, _ := charset.DetermineEncoding(data, contentType)
	decoded, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		if utf8.Valid(data) {
			return data
		}
		return bytes.ToValidUTF8(data, nil)
	}
	return decoded
}

// htmlText strips scripts, styles and comments and collapses whitespace.
func htmlText(body []byte, contentType string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(decodeUTF8(body, contentType)))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	doc.Find("script,style,noscript").Remove()
	doc.Find("*").Contents().Each(func(_ int, s *goquery.Selection) {
		if len(s.Nodes) > 0 && s.Nodes[0].Type == html.CommentNode {
			s.Remove()
		}
	})

	return collapseWhitespace(doc.Text()), nil
}

func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}
