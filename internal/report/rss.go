package report

import (
	"briefcast/internal/core"
	"briefcast/internal/logger"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

// FeedSource pulls headlines from RSS/Atom feeds when no crawler report is
// available.
type FeedSource struct {
	Client *http.Client
	Feeds  []string
	Label  string
	Limit  int
}

// NewFeedSource creates a feed source. A non-positive limit keeps every entry.
func NewFeedSource(feeds []string, label string, limit int) *FeedSource {
	return &FeedSource{
		Client: &http.Client{Timeout: 15 * time.Second},
		Feeds:  feeds,
		Label:  label,
		Limit:  limit,
	}
}

// Fetch reads every feed and returns its entries as items. A feed that fails
// to download or parse is logged and skipped.
func (s *FeedSource) Fetch(ctx context.Context) []core.Item {
	parser := gofeed.NewParser()
	var items []core.Item

	for _, feedURL := range s.Feeds {
		feed, err := s.parse(ctx, parser, feedURL)
		if err != nil {
			logger.Warn("Feed skipped", "url", feedURL, "error", err.Error())
			continue
		}

		source := strings.TrimSpace(feed.Title)
		if source == "" {
			source = feedURL
		}

		for i, entry := range feed.Items {
			if s.Limit > 0 && i >= s.Limit {
				break
			}
			title := strings.TrimSpace(entry.Title)
			if title == "" {
				continue
			}
			item := core.Item{
				Title:   title,
				URL:     strings.TrimSpace(entry.Link),
				Source:  source,
				Ranks:   []int{i + 1},
				Count:   1,
				Keyword: s.Label,
			}
			if entry.PublishedParsed != nil {
				item.TimeDisplay = entry.PublishedParsed.Local().Format("15:04")
			} else if entry.UpdatedParsed != nil {
				item.TimeDisplay = entry.UpdatedParsed.Local().Format("15:04")
			}
			items = append(items, item)
		}
	}
	return items
}

// AsData wraps feed items in a report document so the digest renderer can
// treat both inputs alike.
func AsData(items []core.Item) *Data {
	groups := make(map[string]int)
	data := &Data{}
	for _, item := range items {
		idx, ok := groups[item.Keyword]
		if !ok {
			idx = len(data.Stats)
			groups[item.Keyword] = idx
			data.Stats = append(data.Stats, Stat{Word: item.Keyword})
		}
		count := item.Count
		data.Stats[idx].Titles = append(data.Stats[idx].Titles, TitleData{
			Title:       item.Title,
			URL:         item.URL,
			SourceName:  item.Source,
			Ranks:       item.Ranks,
			Count:       &count,
			TimeDisplay: item.TimeDisplay,
		})
	}
	return data
}

func (s *FeedSource) parse(ctx context.Context, parser *gofeed.Parser, feedURL string) (*gofeed.Feed, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", feedURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}
	return parser.Parse(resp.Body)
}
