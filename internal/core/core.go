package core

import "time"

// Item is one scraped headline. It is built once per run from flattened
// report data and only Content is filled in afterwards by the fetcher.
type Item struct {
	Title       string `json:"title"`        // Headline text
	URL         string `json:"url"`          // Link to the story (mobile URL preferred)
	Source      string `json:"source"`       // Source/platform name
	Ranks       []int  `json:"ranks"`        // Positions in the source feed over time
	Count       int    `json:"count"`        // Number of times the headline was seen
	TimeDisplay string `json:"time_display"` // Human readable time range
	Keyword     string `json:"keyword"`      // Keyword group the headline matched
	Content     string `json:"content"`      // Fetched body text, possibly empty
}

// Cluster groups items believed to describe the same event.
type Cluster struct {
	Items      []Item    // Members in first-seen order
	Normalized string    // Representative normalized title used for fuzzy matching
	Centroid   []float64 // Mean of member embeddings, nil until semantic refinement
}

// Summary is the generated digest of one cluster.
type Summary struct {
	Title         string   `json:"title"`
	Summary       string   `json:"summary"`
	ShortSummary  string   `json:"short_summary"`
	PriorityScore float64  `json:"priority_score"` // 0-100, used for ordering only
	Sources       []string `json:"sources"`
}

// ChapterInfo describes the story a segment belongs to.
type ChapterInfo struct {
	Title   string   `json:"title"`
	Sources []string `json:"sources"`
}

// Segment is one spoken unit of the briefing script. Intro and outro
// segments carry no chapter.
type Segment struct {
	Text    string       `json:"text"`
	Chapter *ChapterInfo `json:"chapter,omitempty"`
}

// Chapter is a named timestamp into the final audio.
type Chapter struct {
	Title   string   `json:"title"`
	Start   float64  `json:"start"` // Seconds from the start, rounded to 2 decimals
	Sources []string `json:"sources"`
}

// AudioResult describes the artifacts of a pipeline run.
type AudioResult struct {
	AudioPath      string    `json:"audio_path,omitempty"`
	ChaptersPath   string    `json:"chapters_path,omitempty"`
	TranscriptPath string    `json:"transcript_path,omitempty"`
	Generated      bool      `json:"generated"` // False when a recent artifact was reused
	GeneratedAt    time.Time `json:"generated_at"`
}

// RunStats counts what each stage of a generation run produced.
type RunStats struct {
	Items           int     `json:"items"`
	Clusters        int     `json:"clusters"`
	Summaries       int     `json:"summaries"`
	Segments        int     `json:"segments"`
	Voiced          int     `json:"voiced"` // Segments that produced audio
	Chapters        int     `json:"chapters"`
	DurationSeconds float64 `json:"duration_seconds"`
	Provider        string  `json:"provider"`
	ElapsedMs       int64   `json:"elapsed_ms"`
}
