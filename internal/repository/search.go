package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/threadloom/threadloom/internal/search"
)

// SearchRepo is a thin hybrid-search implementation over the articles
// table, blending pgvector cosine distance with PostgreSQL full-text
// ranking. A full-featured search service is out of scope; this exists
// to give the pgvector column something to be queried by.
type SearchRepo struct {
	pool *pgxpool.Pool
}

// NewSearchRepo creates a SearchRepo.
func NewSearchRepo(pool *pgxpool.Pool) *SearchRepo {
	return &SearchRepo{pool: pool}
}

// Hybrid ranks visible articles by a blend of semantic similarity
// (1 - cosine distance) and lexical rank (ts_rank_cd over a plain
// tsquery), weighted 0.6/0.4 in favor of the semantic signal.
func (r *SearchRepo) Hybrid(ctx context.Context, query string, queryVec []float32, topK int) ([]search.Result, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id,
			(0.6 * (1 - (embedding <=> $1))) +
			(0.4 * ts_rank_cd(
				to_tsvector('english', symptom || ' ' || diagnosis || ' ' || solution),
				plainto_tsquery('english', $2)
			)) AS score
		FROM articles
		WHERE is_visible = true AND embedding IS NOT NULL
		ORDER BY score DESC
		LIMIT $3
	`, pgvector.NewVector(queryVec), query, topK)
	if err != nil {
		return nil, fmt.Errorf("repository.SearchRepo.Hybrid: %w", err)
	}
	defer rows.Close()

	var results []search.Result
	for rows.Next() {
		var res search.Result
		if err := rows.Scan(&res.ArticleID, &res.Score); err != nil {
			return nil, fmt.Errorf("repository.SearchRepo.Hybrid: scan: %w", err)
		}
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository.SearchRepo.Hybrid: %w", err)
	}
	return results, nil
}

var _ search.Searcher = (*SearchRepo)(nil)
