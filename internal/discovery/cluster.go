package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"NarrativeScanner/internal/ports"
)

// defaultEpsilon is the neighborhood radius for density clustering over
// unit-normalized embedding vectors.
const defaultEpsilon = 0.75

// ClusterBuilder groups documents by embedding similarity using DBSCAN-style
// density clustering. Given identical vectors it is fully deterministic:
// points are visited in index order.
type ClusterBuilder struct {
	embedder ports.EmbeddingProvider
	epsilon  float64
	logger   *slog.Logger
}

// NewClusterBuilder wires the embedding capability.
func NewClusterBuilder(embedder ports.EmbeddingProvider, logger *slog.Logger) *ClusterBuilder {
	return &ClusterBuilder{embedder: embedder, epsilon: defaultEpsilon, logger: logger}
}

// Clusters embeds each document (title plus leading body text) and returns
// groups of document indices. Noise points and singleton groups are dropped.
func (c *ClusterBuilder) Clusters(ctx context.Context, results []RelevanceResult) ([][]int, error) {
	if c.embedder == nil {
		return nil, fmt.Errorf("cluster builder: no embedding provider")
	}

	texts := make([]string, len(results))
	for i, r := range results {
		body := r.Evidence.Body
		if len(body) > 500 {
			body = body[:500]
		}
		texts[i] = r.Evidence.Title + " " + body
	}

	vectors, err := c.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed batch: %w", err)
	}
	if len(vectors) != len(results) {
		return nil, fmt.Errorf("embed batch: got %d vectors for %d documents", len(vectors), len(results))
	}

	minPts := len(results) / 10
	if minPts < 3 {
		minPts = 3
	}

	clusters := densityCluster(vectors, c.epsilon, minPts)
	c.debug("clustering done", "documents", len(results), "min_cluster_size", minPts, "clusters", len(clusters))
	return clusters, nil
}

// densityCluster is a deterministic DBSCAN over euclidean distance. A point
// is a core point when at least minPts points (itself included) lie within
// eps; clusters grow from core points, and unreachable points are noise.
func densityCluster(vectors [][]float32, eps float64, minPts int) [][]int {
	const (
		unvisited = 0
		noise     = -1
	)

	n := len(vectors)
	labels := make([]int, n) // 0 = unvisited, -1 = noise, >0 = cluster id
	nextID := 0

	neighborsOf := func(i int) []int {
		var neighbors []int
		for j := 0; j < n; j++ {
			if euclidean(vectors[i], vectors[j]) <= eps {
				neighbors = append(neighbors, j)
			}
		}
		return neighbors
	}

	for i := 0; i < n; i++ {
		if labels[i] != unvisited {
			continue
		}

		neighbors := neighborsOf(i)
		if len(neighbors) < minPts {
			labels[i] = noise
			continue
		}

		nextID++
		labels[i] = nextID

		// Region growing over the seed queue in discovery order.
		queue := append([]int(nil), neighbors...)
		for k := 0; k < len(queue); k++ {
			j := queue[k]
			if labels[j] == noise {
				labels[j] = nextID // border point
			}
			if labels[j] != unvisited {
				continue
			}
			labels[j] = nextID

			jNeighbors := neighborsOf(j)
			if len(jNeighbors) >= minPts {
				queue = append(queue, jNeighbors...)
			}
		}
	}

	grouped := map[int][]int{}
	for idx, label := range labels {
		if label > 0 {
			grouped[label] = append(grouped[label], idx)
		}
	}

	ids := make([]int, 0, len(grouped))
	for id := range grouped {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	clusters := make([][]int, 0, len(grouped))
	for _, id := range ids {
		if len(grouped[id]) >= 2 {
			clusters = append(clusters, grouped[id])
		}
	}
	return clusters
}

func euclidean(a, b []float32) float64 {
	if len(a) != len(b) {
		return math.MaxFloat64
	}
	var sum float64
	for i := range a {
		d := float64(a[i] - b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

func (c *ClusterBuilder) debug(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}
