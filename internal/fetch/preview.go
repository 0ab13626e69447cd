package fetch

import (
	"briefcast/internal/logger"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// imageSelectors are tried in order; the first non-empty, non data: URL wins.
var imageSelectors = []struct {
	selector string
	attr     string
}{
	{`meta[property="og:image"]`, "content"},
	{`meta[property="og:image:secure_url"]`, "content"},
	{`meta[name="twitter:image"]`, "content"},
	{`meta[name="twitter:image:src"]`, "content"},
	{`link[rel="image_src"]`, "href"},
}

// PreviewOptions controls the link-preview image cache.
type PreviewOptions struct {
	Path      string
	TTL       time.Duration
	Limit     int // fetches allowed per render
	Timeout   time.Duration
	MaxBytes  int64
	UserAgent string
}

// DefaultPreviewOptions mirrors the configuration defaults.
func DefaultPreviewOptions() PreviewOptions {
	return PreviewOptions{
		Path:      filepath.Join("output", "preview_cache.json"),
		TTL:       7 * 24 * time.Hour,
		Limit:     80,
		Timeout:   5 * time.Second,
		MaxBytes:  200000,
		UserAgent: DefaultUserAgent,
	}
}

// PreviewEntry is one cached lookup. An empty Image records a page that had
// no preview image so it is not fetched again until the entry expires.
type PreviewEntry struct {
	Image string `json:"image"`
	TS    int64  `json:"ts"`
}

// UnmarshalJSON accepts ts written either as a number or a numeric string.
func (e *PreviewEntry) UnmarshalJSON(data []byte) error {
	var raw struct {
		Image string          `json:"image"`
		TS    json.RawMessage `json:"ts"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	e.Image = raw.Image
	e.TS = 0

	ts := strings.Trim(strings.TrimSpace(string(raw.TS)), `"`)
	if ts == "" || ts == "null" {
		return nil
	}
	parsed, err := strconv.ParseFloat(ts, 64)
	if err != nil {
		return nil
	}
	e.TS = int64(parsed)
	return nil
}

// PreviewCache maps article URLs to preview images. It is loaded at the
// start of a render and saved at the end; concurrent renders are not
// supported.
type PreviewCache struct {
	client    *http.Client
	opts      PreviewOptions
	entries   map[string]PreviewEntry
	remaining int
	now       func() time.Time
}

// LoadPreviewCache reads the cache file. A missing or unreadable file yields
// an empty cache.
func LoadPreviewCache(client *http.Client, opts PreviewOptions) *PreviewCache {
	defaults := DefaultPreviewOptions()
	if opts.Path == "" {
		opts.Path = defaults.Path
	}
	if opts.TTL <= 0 {
		opts.TTL = defaults.TTL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaults.Timeout
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = defaults.MaxBytes
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaults.UserAgent
	}
	if client == nil {
		client = &http.Client{}
	}

	c := &PreviewCache{
		client:    client,
		opts:      opts,
		entries:   make(map[string]PreviewEntry),
		remaining: opts.Limit,
		now:       time.Now,
	}

	raw, err := os.ReadFile(opts.Path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Warn("Preview cache unreadable", "path", opts.Path, "error", err.Error())
		}
		return c
	}
	if err := json.Unmarshal(raw, &c.entries); err != nil {
		logger.Warn("Preview cache corrupt, starting empty", "path", opts.Path, "error", err.Error())
		c.entries = make(map[string]PreviewEntry)
	}
	return c
}

// Image returns the preview image for pageURL, or "" when there is none.
// Fresh cache entries are served without network access; otherwise the page
// is fetched while the per-render quota lasts.
func (c *PreviewCache) Image(ctx context.Context, pageURL string) string {
	now := c.now().Unix()
	if entry, ok := c.entries[pageURL]; ok {
		if time.Duration(now-entry.TS)*time.Second < c.opts.TTL {
			return entry.Image
		}
	}

	if c.remaining <= 0 {
		return ""
	}
	c.remaining--

	image, err := c.fetchImage(ctx, pageURL)
	if err != nil {
		logger.Debug("Preview fetch failed", "url", pageURL, "error", err.Error())
	}
	c.entries[pageURL] = PreviewEntry{Image: image, TS: now}
	return image
}

// Len reports the number of cached entries.
func (c *PreviewCache) Len() int {
	return len(c.entries)
}

// Save writes the cache back to disk.
func (c *PreviewCache) Save() error {
	if err := os.MkdirAll(filepath.Dir(c.opts.Path), 0755); err != nil {
		return fmt.Errorf("failed to create preview cache directory: %w", err)
	}
	data, err := json.Marshal(c.entries)
	if err != nil {
		return fmt.Errorf("failed to encode preview cache: %w", err)
	}
	if err := os.WriteFile(c.opts.Path, data, 0644); err != nil {
		return fmt.Errorf("failed to write preview cache: %w", err)
	}
	return nil
}

func (c *PreviewCache) fetchImage(ctx context.Context, pageURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", pageURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("status code %d", resp.StatusCode)
	}
	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "text/html") {
		return "", nil
	}

	body, err := readCapped(resp.Body, c.opts.MaxBytes)
	if err != nil {
		return "", err
	}
	return extractPreviewImage(decodeUTF8(body, contentType), pageURL), nil
}

// extractPreviewImage picks the first usable image candidate and resolves it
// against the page URL.
func extractPreviewImage(body []byte, pageURL string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return ""
	}

	base, _ := url.Parse(pageURL)
	for _, candidate := range imageSelectors {
		var found string
		doc.Find(candidate.selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			value := strings.TrimSpace(s.AttrOr(candidate.attr, ""))
			if value == "" || strings.HasPrefix(value, "data:") {
				return true
			}
			found = value
			return false
		})
		if found == "" {
			continue
		}
		if base == nil {
			return found
		}
		ref, err := url.Parse(found)
		if err != nil {
			continue
		}
		return base.ResolveReference(ref).String()
	}
	return ""
}
