// Package search defines the hybrid lexical+semantic lookup surface over
// persisted articles. This is an interface-level component only — the
// spec scopes a full-featured search service out as a non-goal, so the
// concrete implementation (internal/repository) stays intentionally thin.
package search

import "context"

// Result is one ranked article match.
type Result struct {
	ArticleID int64
	Score     float64
}

// Searcher blends cosine similarity over queryVec with PostgreSQL
// full-text ranking over query, returning the topK matches by blended
// score descending.
type Searcher interface {
	Hybrid(ctx context.Context, query string, queryVec []float32, topK int) ([]Result, error)
}
