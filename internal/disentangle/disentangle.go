// Package disentangle clusters a mixed chronological stream of messages
// into logical threads using semantic similarity, temporal proximity,
// explicit reply/mention edges, and same-author continuation.
package disentangle

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/threadloom/threadloom/internal/embedding"
	"github.com/threadloom/threadloom/internal/model"
)

// Tuning constants. These are documented, not environment-configurable —
// a reimplementation must not tune them silently.
const (
	SimilarityThreshold = 0.45
	TemporalWindow      = 4 * time.Hour
	SameAuthorBoost     = 0.25
	CodeBoost           = 0.20
	SameAuthorWindow    = 10 * time.Minute
)

// Engine clusters RawMessages into Threads.
type Engine struct {
	embedder embedding.Provider
}

// New creates an Engine backed by the given embedding provider.
func New(embedder embedding.Provider) *Engine {
	return &Engine{embedder: embedder}
}

// Cluster groups messages into threads. Every message appears in exactly
// one output thread; within a thread, messages are sorted by timestamp
// ascending. Embedding failures degrade to a degenerate identity
// similarity matrix (every message distinct from every other), so
// clustering falls back to explicit reply/mention edges, plus pairs whose
// same-author and code boosts alone reach SimilarityThreshold, rather
// than failing the batch.
func (e *Engine) Cluster(ctx context.Context, messages []model.RawMessage) ([]model.Thread, error) {
	n := len(messages)
	if n == 0 {
		return nil, nil
	}
	if n == 1 {
		return []model.Thread{{Messages: messages}}, nil
	}

	sim := e.similarityMatrix(ctx, messages)

	adjacency := make([][]bool, n)
	for i := range adjacency {
		adjacency[i] = make([]bool, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			linked := shouldLink(messages[i], messages[j], sim[i][j])
			adjacency[i][j] = linked
			adjacency[j][i] = linked
		}
	}

	components := connectedComponents(adjacency)

	threads := make([]model.Thread, 0, len(components))
	for _, comp := range components {
		msgs := make([]model.RawMessage, len(comp))
		for i, idx := range comp {
			msgs[i] = messages[idx]
		}
		sort.SliceStable(msgs, func(a, b int) bool {
			return msgs[a].Timestamp.Before(msgs[b].Timestamp)
		})
		threads = append(threads, model.Thread{Messages: msgs})
	}
	return threads, nil
}

// similarityMatrix embeds every message in one batch and returns the N×N
// cosine similarity matrix. On embedding failure it returns the identity
// matrix (1 on the diagonal, 0 elsewhere), per the provider's documented
// degraded-mode contract.
func (e *Engine) similarityMatrix(ctx context.Context, messages []model.RawMessage) [][]float64 {
	n := len(messages)
	identity := make([][]float64, n)
	for i := range identity {
		identity[i] = make([]float64, n)
		identity[i][i] = 1
	}

	if e.embedder == nil {
		return identity
	}

	texts := make([]string, n)
	for i, m := range messages {
		texts[i] = m.Content
	}

	vecs, err := e.embedder.EncodeBatch(ctx, texts, n)
	if err != nil || len(vecs) != n {
		return identity
	}

	sim := make([][]float64, n)
	for i := range sim {
		sim[i] = make([]float64, n)
		sim[i][i] = 1
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			c := cosine(vecs[i], vecs[j])
			sim[i][j] = c
			sim[j][i] = c
		}
	}
	return sim
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// shouldLink implements the should_link predicate for a pair of messages
// (i<j by convention, symmetric by construction).
func shouldLink(a, b model.RawMessage, similarity float64) bool {
	delta := a.Timestamp.Sub(b.Timestamp)
	if delta < 0 {
		delta = -delta
	}
	if delta > TemporalWindow {
		return false
	}

	if a.ReplyTo == b.MessageID || b.ReplyTo == a.MessageID {
		return true
	}
	if containsHandle(a.Mentions, b.AuthorHandle) || containsHandle(b.Mentions, a.AuthorHandle) {
		return true
	}

	effective := similarity
	if a.AuthorHandle != "" && a.AuthorHandle == b.AuthorHandle && delta <= SameAuthorWindow {
		effective += SameAuthorBoost
	}
	if a.HasCode && b.HasCode {
		effective += CodeBoost
	}

	return effective >= SimilarityThreshold
}

func containsHandle(handles []string, target string) bool {
	if target == "" {
		return false
	}
	for _, h := range handles {
		if h == target {
			return true
		}
	}
	return false
}

// connectedComponents returns the connected components of the adjacency
// graph as index lists, via breadth-first search.
func connectedComponents(adjacency [][]bool) [][]int {
	n := len(adjacency)
	visited := make([]bool, n)
	var components [][]int

	for start := 0; start < n; start++ {
		if visited[start] {
			continue
		}
		queue := []int{start}
		visited[start] = true
		var comp []int

		for len(queue) > 0 {
			node := queue[0]
			queue = queue[1:]
			comp = append(comp, node)
			for neighbor, linked := range adjacency[node] {
				if linked && !visited[neighbor] {
					visited[neighbor] = true
					queue = append(queue, neighbor)
				}
			}
		}
		components = append(components, comp)
	}
	return components
}
