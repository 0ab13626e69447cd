// Package render writes the HTML digest page and the briefing show notes.
package render

import (
	"briefcast/internal/audio"
	"briefcast/internal/core"
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// ImageSource looks up a preview image for an article URL
type ImageSource interface {
	Image(ctx context.Context, pageURL string) string
}

// Headline is one rendered entry of the digest
type Headline struct {
	Title       string
	URL         string
	Label       string // Link domain, or the source name when there is none
	TimeDisplay string
	Count       int
	Image       string
}

// Group holds the headlines of one keyword
type Group struct {
	Keyword   string
	Headlines []Headline
}

// Radio links the audio briefing from the digest page
type Radio struct {
	AudioURL      string
	ChaptersURL   string
	TranscriptURL string
	Chapters      []core.Chapter
	GeneratedAt   time.Time
}

// Page is everything the digest page shows
type Page struct {
	Title       string
	GeneratedAt time.Time
	Groups      []Group
	Radio       *Radio
}

// BuildGroups groups items by keyword in first-seen order. Preview images
// are looked up only when images is non-nil.
func BuildGroups(ctx context.Context, items []core.Item, images ImageSource) []Group {
	var groups []Group
	index := make(map[string]int)

	for _, item := range items {
		i, ok := index[item.Keyword]
		if !ok {
			i = len(groups)
			index[item.Keyword] = i
			groups = append(groups, Group{Keyword: item.Keyword})
		}

		h := Headline{
			Title:       item.Title,
			URL:         item.URL,
			Label:       linkLabel(item),
			TimeDisplay: item.TimeDisplay,
			Count:       item.Count,
		}
		if images != nil && item.URL != "" {
			h.Image = images.Image(ctx, item.URL)
		}
		groups[i].Headlines = append(groups[i].Headlines, h)
	}
	return groups
}

func linkLabel(item core.Item) string {
	if u, err := url.Parse(item.URL); err == nil && u.Host != "" {
		return u.Host
	}
	return item.Source
}

// DigestMarkdown renders the page body as markdown
func DigestMarkdown(page Page) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", escape(page.Title))
	if !page.GeneratedAt.IsZero() {
		fmt.Fprintf(&b, "*%s*\n\n", page.GeneratedAt.Format("2006-01-02 15:04"))
	}

	if page.Radio != nil {
		b.WriteString("## 热点电台\n\n")
		b.WriteString(radioMarkdown(*page.Radio))
	}

	if len(page.Groups) == 0 {
		b.WriteString("暂无热点内容。\n")
		return b.String()
	}

	for _, group := range page.Groups {
		keyword := group.Keyword
		if keyword == "" {
			keyword = "其他"
		}
		fmt.Fprintf(&b, "## %s (%d)\n\n", escape(keyword), len(group.Headlines))
		for i, h := range group.Headlines {
			title := escape(h.Title)
			if link := safeURL(h.URL); link != "" {
				title = fmt.Sprintf("[%s](%s)", title, link)
			}
			fmt.Fprintf(&b, "%d. %s", i+1, title)

			var meta []string
			if h.Label != "" {
				meta = append(meta, escape(h.Label))
			}
			if h.TimeDisplay != "" {
				meta = append(meta, escape(h.TimeDisplay))
			}
			if h.Count > 1 {
				meta = append(meta, fmt.Sprintf("%d次", h.Count))
			}
			if len(meta) > 0 {
				fmt.Fprintf(&b, " · %s", strings.Join(meta, " · "))
			}
			b.WriteString("\n")
			if image := safeURL(h.Image); image != "" {
				fmt.Fprintf(&b, "\n   ![](%s)\n\n", image)
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

func radioMarkdown(radio Radio) string {
	var b strings.Builder
	var links []string
	if link := safeURL(radio.AudioURL); link != "" {
		links = append(links, fmt.Sprintf("[收听简报](%s)", link))
	}
	if link := safeURL(radio.TranscriptURL); link != "" {
		links = append(links, fmt.Sprintf("[文字稿](%s)", link))
	}
	if link := safeURL(radio.ChaptersURL); link != "" {
		links = append(links, fmt.Sprintf("[章节](%s)", link))
	}
	b.WriteString(strings.Join(links, " · "))
	b.WriteString("\n\n")
	if len(radio.Chapters) > 0 {
		b.WriteString(ShowNotesMarkdown(radio.Chapters))
	}
	return b.String()
}

// ShowNotesMarkdown lists chapters with their timestamps and sources
func ShowNotesMarkdown(chapters []core.Chapter) string {
	if len(chapters) == 0 {
		return ""
	}
	var b strings.Builder
	for _, ch := range chapters {
		fmt.Fprintf(&b, "- **%s** %s", audio.FormatTimestamp(ch.Start), escape(ch.Title))
		if len(ch.Sources) > 0 {
			fmt.Fprintf(&b, " (%s)", escape(strings.Join(ch.Sources, ", ")))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
	return b.String()
}

var escaper = strings.NewReplacer(
	`\`, `\\`, `[`, `\[`, `]`, `\]`, `*`, `\*`, `_`, `\_`, "`", "\\`", `<`, `\<`, `>`, `\>`,
)

// escape keeps headline text from being read as markdown syntax
func escape(s string) string {
	return escaper.Replace(s)
}

// linkEscaper percent-encodes what url.URL.String leaves in queries and
// fragments but would close a markdown link destination or open a tag.
var linkEscaper = strings.NewReplacer(
	" ", "%20", "(", "%28", ")", "%29", "<", "%3C", ">", "%3E",
	`"`, "%22", "'", "%27", `\`, "%5C", "`", "%60",
)

// safeURL returns raw as a markdown link destination, or "" unless it is an
// http(s) or relative URL.
func safeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || !allowedScheme(u.Scheme) {
		return ""
	}
	return linkEscaper.Replace(u.String())
}

func allowedScheme(scheme string) bool {
	switch strings.ToLower(scheme) {
	case "", "http", "https":
		return true
	}
	return false
}

func isSafeLink(dest []byte) bool {
	u, err := url.Parse(string(dest))
	return err == nil && allowedScheme(u.Scheme)
}

// MarkdownToHTML converts markdown to an HTML fragment. Links open in a new
// tab, raw HTML is dropped and only http(s) or relative links are rendered.
func MarkdownToHTML(text string) template.HTML {
	if text == "" {
		return ""
	}
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	renderer := html.NewRenderer(html.RendererOptions{
		Flags: html.CommonFlags | html.HrefTargetBlank | html.Safelink | html.SkipHTML,
	})
	renderer.IsSafeURLOverride = isSafeLink
	return template.HTML(markdown.ToHTML([]byte(text), p, renderer))
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="zh-CN">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
</head>
<body>
{{if .AudioURL}}<audio controls preload="none" src="{{.AudioURL}}"></audio>
{{end}}{{.Body}}
</body>
</html>
`))

// Document wraps a markdown body in a standalone HTML page
func Document(title, audioURL, body string) ([]byte, error) {
	var buf bytes.Buffer
	err := pageTemplate.Execute(&buf, struct {
		Title    string
		AudioURL string
		Body     template.HTML
	}{title, audioURL, MarkdownToHTML(body)})
	if err != nil {
		return nil, fmt.Errorf("failed to render page: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteDigest renders page to path and returns the written path
func WriteDigest(page Page, path string) (string, error) {
	audioURL := ""
	if page.Radio != nil {
		audioURL = page.Radio.AudioURL
	}
	content, err := Document(page.Title, audioURL, DigestMarkdown(page))
	if err != nil {
		return "", err
	}
	return writeFile(path, content)
}

// WriteShowNotes renders the chapter list as an HTML page
func WriteShowNotes(title string, chapters []core.Chapter, path string) (string, error) {
	body := fmt.Sprintf("# %s\n\n%s", escape(title), ShowNotesMarkdown(chapters))
	content, err := Document(title, "", body)
	if err != nil {
		return "", err
	}
	return writeFile(path, content)
}

func writeFile(path string, content []byte) (string, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, content, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}
