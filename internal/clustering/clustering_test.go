package clustering

import (
	"briefcast/internal/core"
	"context"
	"errors"
	"math"
	"strings"
	"testing"
)

// mockEmbedder returns fixed vectors keyed by the first line of the text.
type mockEmbedder struct {
	vectors map[string][]float64
	err     error
	calls   []string
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	m.calls = append(m.calls, text)
	if m.err != nil {
		return nil, m.err
	}
	title := strings.SplitN(text, "\n", 2)[0]
	if v, ok := m.vectors[title]; ok {
		return v, nil
	}
	return []float64{0, 0, 1}, nil
}

func titles(c core.Cluster) []string {
	var out []string
	for _, item := range c.Items {
		out = append(out, item.Title)
	}
	return out
}

func TestNormalizeTitle(t *testing.T) {
	testCases := map[string]string{
		"【突发】A vs B！！":        "突发 a vs b",
		"  Hello,   World!  ": "hello world",
		"GPT-5 发布：性能提升 50%":   "gpt 5 发布 性能提升 50",
		"!!!":                 "",
	}
	for input, expected := range testCases {
		if got := NormalizeTitle(input); got != expected {
			t.Errorf("NormalizeTitle(%q) = %q, expected %q", input, got, expected)
		}
	}
}

func TestRatio(t *testing.T) {
	if got := Ratio("", ""); got != 100 {
		t.Errorf("Expected identical empty strings to score 100, got %v", got)
	}
	if got := Ratio("abc", "abc"); got != 100 {
		t.Errorf("Expected 100 for equal strings, got %v", got)
	}
	if got := Ratio("abcd", "abce"); math.Abs(got-75) > 1e-9 {
		t.Errorf("Expected 75, got %v", got)
	}
	if got := Ratio("abc", ""); got != 0 {
		t.Errorf("Expected 0 against empty string, got %v", got)
	}
	if Ratio("央行宣布降息", "央行宣布降息了") < 90 {
		t.Error("Expected near-identical CJK titles to clear the default threshold")
	}
}

func TestFuzzyClusterFirstSeenOrder(t *testing.T) {
	items := []core.Item{
		{Title: "Central bank cuts rates"},
		{Title: "Rocket reaches orbit"},
		{Title: "Central bank cuts rates!"},
		{Title: "rocket reaches orbit."},
		{Title: "Unrelated story"},
	}

	clusters := FuzzyCluster(items, 90)
	if len(clusters) != 3 {
		t.Fatalf("Expected 3 clusters, got %d", len(clusters))
	}
	if got := titles(clusters[0]); len(got) != 2 || got[1] != "Central bank cuts rates!" {
		t.Errorf("Unexpected first cluster: %v", got)
	}
	if clusters[1].Normalized != "rocket reaches orbit" {
		t.Errorf("Expected representative from first member, got %q", clusters[1].Normalized)
	}
	if got := titles(clusters[2]); len(got) != 1 || got[0] != "Unrelated story" {
		t.Errorf("Unexpected last cluster: %v", got)
	}
}

func TestClusterWithoutFuzzyMatcher(t *testing.T) {
	items := []core.Item{{Title: "A"}, {Title: "B"}}
	c := NewClusterer(Options{Fuzzy: false}, &mockEmbedder{})
	clusters := c.Cluster(context.Background(), items)
	if len(clusters) != 1 || len(clusters[0].Items) != 2 {
		t.Errorf("Expected one cluster holding all items, got %+v", clusters)
	}
}

func TestClusterSemanticMerge(t *testing.T) {
	embedder := &mockEmbedder{vectors: map[string][]float64{
		"Central bank cuts rates":        {1, 0, 0},
		"Rocket reaches orbit":           {0, 1, 0},
		"Interest rates lowered by PBOC": {0.95, 0.05, 0},
	}}
	items := []core.Item{
		{Title: "Central bank cuts rates", Content: strings.Repeat("x", 800)},
		{Title: "Rocket reaches orbit"},
		{Title: "Interest rates lowered by PBOC"},
	}

	c := NewClusterer(DefaultOptions(), embedder)
	clusters := c.Cluster(context.Background(), items)

	if len(clusters) != 2 {
		t.Fatalf("Expected 2 clusters after semantic merge, got %d", len(clusters))
	}
	if got := titles(clusters[0]); len(got) != 2 || got[1] != "Interest rates lowered by PBOC" {
		t.Errorf("Expected rate stories merged into first cluster, got %v", got)
	}
	if len(clusters[0].Centroid) != 3 {
		t.Errorf("Expected centroid on merged cluster, got %v", clusters[0].Centroid)
	}
	if got := len([]rune(strings.SplitN(embedder.calls[0], "\n", 2)[1])); got != 500 {
		t.Errorf("Expected embedding text capped at 500 runes of content, got %d", got)
	}
}

func TestClusterEmbeddingFailureKeepsFuzzy(t *testing.T) {
	embedder := &mockEmbedder{err: errors.New("quota exceeded")}
	items := []core.Item{{Title: "Story one"}, {Title: "Completely different"}}

	clusters := NewClusterer(DefaultOptions(), embedder).Cluster(context.Background(), items)
	if len(clusters) != 2 {
		t.Errorf("Expected fuzzy clusters on embedding failure, got %d", len(clusters))
	}
}

func TestClusterSkipsEmbeddingForSingleCluster(t *testing.T) {
	embedder := &mockEmbedder{}
	items := []core.Item{{Title: "Same story"}, {Title: "Same story"}}

	clusters := NewClusterer(DefaultOptions(), embedder).Cluster(context.Background(), items)
	if len(clusters) != 1 {
		t.Errorf("Expected one cluster, got %d", len(clusters))
	}
	if len(embedder.calls) != 0 {
		t.Errorf("Expected no embedding calls for a single cluster, got %d", len(embedder.calls))
	}
}

func TestCentroid(t *testing.T) {
	got := Centroid([][]float64{{1, 0}, {0, 1}})
	if got[0] != 0.5 || got[1] != 0.5 {
		t.Errorf("Expected mean vector, got %v", got)
	}
	if Centroid(nil) != nil {
		t.Error("Expected nil centroid for no vectors")
	}
}
