package audio

import (
	"briefcast/internal/core"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestBuildChapters(t *testing.T) {
	segments := []core.Segment{
		{Text: "intro"},
		{Text: "a", Chapter: &core.ChapterInfo{Title: "A", Sources: []string{"x"}}},
		{Text: "b", Chapter: &core.ChapterInfo{Title: "B"}},
		{Text: "outro"},
	}
	durations := []float64{3.333, 10.0, 5.5, 2.0}

	chapters := BuildChapters(segments, durations)

	expected := []core.Chapter{
		{Title: "A", Start: 3.33, Sources: []string{"x"}},
		{Title: "B", Start: 13.33, Sources: []string{}},
	}
	if !reflect.DeepEqual(chapters, expected) {
		t.Errorf("Unexpected chapters:\n got %+v\nwant %+v", chapters, expected)
	}
}

func TestBuildChaptersMonotonic(t *testing.T) {
	var segments []core.Segment
	var durations []float64
	for i := 0; i < 20; i++ {
		segments = append(segments, core.Segment{Text: "s", Chapter: &core.ChapterInfo{Title: "c"}})
		durations = append(durations, float64(i%3)*1.7)
	}

	chapters := BuildChapters(segments, durations)
	if chapters[0].Start != 0 {
		t.Errorf("Expected first chapter at 0, got %v", chapters[0].Start)
	}
	for i := 1; i < len(chapters); i++ {
		if chapters[i].Start < chapters[i-1].Start {
			t.Errorf("Chapter %d starts before chapter %d", i, i-1)
		}
	}

	if got := BuildChapters([]core.Segment{{Text: "intro"}}, nil); got == nil || len(got) != 0 {
		t.Errorf("Expected empty non-nil chapters, got %v", got)
	}
}

func TestChaptersRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "public", "chapters.json")
	chapters := []core.Chapter{
		{Title: "美国 & 中国 <会谈>", Start: 0, Sources: []string{"微博"}},
		{Title: "B", Start: 12.34, Sources: []string{}},
	}

	if err := WriteChapters(chapters, path); err != nil {
		t.Fatalf("WriteChapters failed: %v", err)
	}
	raw, _ := os.ReadFile(path)
	if !strings.Contains(string(raw), "美国 & 中国 <会谈>") {
		t.Errorf("Expected unescaped text, got %s", raw)
	}

	loaded, err := ReadChapters(path)
	if err != nil {
		t.Fatalf("ReadChapters failed: %v", err)
	}
	if !reflect.DeepEqual(loaded, chapters) {
		t.Errorf("Round trip mismatch:\n got %+v\nwant %+v", loaded, chapters)
	}
}

func TestFormatTimestamp(t *testing.T) {
	testCases := map[float64]string{0: "0:00", 65.9: "1:05", 3725: "1:02:05", -3: "0:00"}
	for in, expected := range testCases {
		if got := FormatTimestamp(in); got != expected {
			t.Errorf("FormatTimestamp(%v): expected %q, got %q", in, expected, got)
		}
	}
}
