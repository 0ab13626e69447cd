// Package report loads the ranked headline data a run starts from.
package report

import (
	"briefcast/internal/core"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Data is the report document produced by the crawler: one stat block per
// matched keyword, each listing the titles that matched it.
type Data struct {
	Stats []Stat `json:"stats" yaml:"stats"`
}

// Stat groups the titles that matched one keyword.
type Stat struct {
	Word   string      `json:"word" yaml:"word"`
	Titles []TitleData `json:"titles" yaml:"titles"`
}

// TitleData is one headline as it appears in the report.
type TitleData struct {
	Title       string `json:"title" yaml:"title"`
	URL         string `json:"url" yaml:"url"`
	MobileURL   string `json:"mobile_url" yaml:"mobile_url"`
	SourceName  string `json:"source_name" yaml:"source_name"`
	Ranks       []int  `json:"ranks" yaml:"ranks"`
	Count       *int   `json:"count" yaml:"count"`
	TimeDisplay string `json:"time_display" yaml:"time_display"`
}

// Load reads a report file. Files ending in .yaml or .yml are parsed as YAML,
// everything else as JSON.
func Load(path string) (*Data, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report %s: %w", path, err)
	}

	var data Data
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, &data); err != nil {
			return nil, fmt.Errorf("failed to parse YAML report %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, fmt.Errorf("failed to parse JSON report %s: %w", path, err)
		}
	}
	return &data, nil
}

// Flatten turns the report into pipeline items. Titles that are blank after
// trimming are skipped, the mobile URL wins over the desktop one and a
// missing count means the headline was seen once.
func (d *Data) Flatten() []core.Item {
	if d == nil {
		return nil
	}

	var items []core.Item
	for _, stat := range d.Stats {
		for _, t := range stat.Titles {
			title := strings.TrimSpace(t.Title)
			if title == "" {
				continue
			}
			url := t.MobileURL
			if url == "" {
				url = t.URL
			}
			count := 1
			if t.Count != nil {
				count = *t.Count
			}
			items = append(items, core.Item{
				Title:       title,
				URL:         url,
				Source:      t.SourceName,
				Ranks:       t.Ranks,
				Count:       count,
				TimeDisplay: t.TimeDisplay,
				Keyword:     stat.Word,
			})
		}
	}
	return items
}

// Keywords returns the distinct keywords in report order.
func (d *Data) Keywords() []string {
	if d == nil {
		return nil
	}
	seen := make(map[string]bool)
	var words []string
	for _, stat := range d.Stats {
		if seen[stat.Word] {
			continue
		}
		seen[stat.Word] = true
		words = append(words, stat.Word)
	}
	return words
}
