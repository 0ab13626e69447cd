// Package clustering groups headlines that describe the same story.
package clustering

import (
	"briefcast/internal/core"
	"briefcast/internal/logger"
	"context"
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// embeddingContentRunes caps how much article body goes into an embedding.
const embeddingContentRunes = 500

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Options holds clustering thresholds.
type Options struct {
	Fuzzy             bool    // without it every item lands in a single cluster
	FuzzyThreshold    float64 // 0-100
	SemanticThreshold float64 // cosine similarity
}

// DefaultOptions returns the stock thresholds.
func DefaultOptions() Options {
	return Options{
		Fuzzy:             true,
		FuzzyThreshold:    90,
		SemanticThreshold: 0.82,
	}
}

// Clusterer runs a greedy fuzzy pass over titles and, when an embedder is
// available, a greedy semantic merge of the resulting clusters.
//
// Both passes join the first matching cluster, so results depend on input
// order when an item is close to more than one cluster.
type Clusterer struct {
	opts     Options
	embedder Embedder
}

// NewClusterer creates a clusterer. A nil embedder disables the semantic pass.
func NewClusterer(opts Options, embedder Embedder) *Clusterer {
	return &Clusterer{opts: opts, embedder: embedder}
}

// Cluster groups items. Clusters are returned in order of their first item.
func (c *Clusterer) Cluster(ctx context.Context, items []core.Item) []core.Cluster {
	if len(items) == 0 {
		return nil
	}

	if !c.opts.Fuzzy {
		all := make([]core.Item, len(items))
		copy(all, items)
		return []core.Cluster{{Items: all, Normalized: NormalizeTitle(items[0].Title)}}
	}

	clusters := FuzzyCluster(items, c.opts.FuzzyThreshold)
	if c.embedder == nil || len(clusters) <= 1 {
		return clusters
	}

	merged, err := c.semanticMerge(ctx, clusters)
	if err != nil {
		logger.Warn("Semantic clustering failed, keeping fuzzy clusters", "error", err.Error())
		return clusters
	}
	logger.Info("Clustered headlines", "items", len(items), "fuzzy", len(clusters), "semantic", len(merged))
	return merged
}

// FuzzyCluster assigns each item to the first cluster whose representative
// title is at least threshold similar, or starts a new cluster.
func FuzzyCluster(items []core.Item, threshold float64) []core.Cluster {
	var clusters []core.Cluster
	for _, item := range items {
		normalized := NormalizeTitle(item.Title)
		matched := false
		for i := range clusters {
			if Ratio(normalized, clusters[i].Normalized) >= threshold {
				clusters[i].Items = append(clusters[i].Items, item)
				matched = true
				break
			}
		}
		if !matched {
			clusters = append(clusters, core.Cluster{
				Items:      []core.Item{item},
				Normalized: normalized,
			})
		}
	}
	return clusters
}

// EmbeddingText is the text embedded for an item: its title plus the start
// of its body.
func EmbeddingText(item core.Item) string {
	content := []rune(item.Content)
	if len(content) > embeddingContentRunes {
		content = content[:embeddingContentRunes]
	}
	return item.Title + "\n" + string(content)
}

func (c *Clusterer) semanticMerge(ctx context.Context, clusters []core.Cluster) ([]core.Cluster, error) {
	// vectors[i][j] is the normalized embedding of clusters[i].Items[j]
	vectors := make([][][]float64, len(clusters))
	beat := logger.NewHeartbeat("embed", 0)
	done := 0
	for i, cluster := range clusters {
		for _, item := range cluster.Items {
			vec, err := c.embedder.Embed(ctx, EmbeddingText(item))
			if err != nil {
				return nil, fmt.Errorf("failed to embed %q: %w", item.Title, err)
			}
			vectors[i] = append(vectors[i], normalize(vec))
			done++
			beat.Tick("Embedding headlines", "done", done)
		}
	}

	type group struct {
		cluster core.Cluster
		vectors [][]float64
	}
	var accepted []*group

	for i, cluster := range clusters {
		centroid := Centroid(vectors[i])
		var target *group
		for _, g := range accepted {
			if len(centroid) == 0 || len(g.cluster.Centroid) != len(centroid) {
				continue
			}
			if floats.Dot(centroid, g.cluster.Centroid) >= c.opts.SemanticThreshold {
				target = g
				break
			}
		}
		if target == nil {
			cluster.Centroid = centroid
			accepted = append(accepted, &group{cluster: cluster, vectors: vectors[i]})
			continue
		}
		target.cluster.Items = append(target.cluster.Items, cluster.Items...)
		target.vectors = append(target.vectors, vectors[i]...)
		target.cluster.Centroid = Centroid(target.vectors)
	}

	merged := make([]core.Cluster, len(accepted))
	for i, g := range accepted {
		merged[i] = g.cluster
	}
	return merged, nil
}

// Centroid is the element-wise mean of vectors, or nil when there are none.
func Centroid(vectors [][]float64) []float64 {
	if len(vectors) == 0 {
		return nil
	}
	sum := make([]float64, len(vectors[0]))
	for _, v := range vectors {
		if len(v) != len(sum) {
			continue
		}
		floats.Add(sum, v)
	}
	floats.Scale(1/float64(len(vectors)), sum)
	return sum
}

// normalize returns an L2-normalized copy of v. Zero vectors are returned
// unchanged.
func normalize(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	norm := floats.Norm(out, 2)
	if norm == 0 {
		return out
	}
	floats.Scale(1/norm, out)
	return out
}
