package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/threadloom/threadloom/internal/export"
	"github.com/threadloom/threadloom/internal/model"
)

// ExportRepo implements export.ArticleSource, joining articles through
// their thread to the owning channel's server scope.
type ExportRepo struct {
	pool *pgxpool.Pool
}

// NewExportRepo creates an ExportRepo.
func NewExportRepo(pool *pgxpool.Pool) *ExportRepo {
	return &ExportRepo{pool: pool}
}

// ExportableArticles returns visible articles at or above minQuality for
// channels under sourceScope, optionally filtered to language.
func (r *ExportRepo) ExportableArticles(ctx context.Context, sourceScope string, minQuality float64, language string) ([]model.StoredArticle, error) {
	query := `
		SELECT a.id, a.thread_id, a.source_type, a.article_type, a.symptom, a.diagnosis,
			a.solution, a.code_snippet, a.language, a.framework, a.tags, a.confidence,
			a.thread_summary, a.source_url, a.quality_score, a.is_visible, a.created_at, a.updated_at
		FROM articles a
		JOIN threads t ON t.id = a.thread_id
		JOIN channels c ON c.id = t.channel_id
		WHERE c.server_scope = $1 AND a.quality_score >= $2 AND a.is_visible = true
	`
	args := []any{sourceScope, minQuality}
	if language != "" {
		query += " AND a.language = $3"
		args = append(args, language)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("repository.ExportRepo.ExportableArticles: %w", err)
	}
	defer rows.Close()

	var articles []model.StoredArticle
	for rows.Next() {
		var a model.StoredArticle
		var tagsJSON []byte
		if err := rows.Scan(&a.ID, &a.ThreadID, &a.SourceType, &a.ArticleType, &a.Symptom, &a.Diagnosis,
			&a.Solution, &a.CodeSnippet, &a.Language, &a.Framework, &tagsJSON, &a.Confidence,
			&a.ThreadSummary, &a.SourceURL, &a.QualityScore, &a.IsVisible, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("repository.ExportRepo.ExportableArticles: scan: %w", err)
		}
		if len(tagsJSON) > 0 {
			if err := json.Unmarshal(tagsJSON, &a.Tags); err != nil {
				return nil, fmt.Errorf("repository.ExportRepo.ExportableArticles: decode tags: %w", err)
			}
		}
		articles = append(articles, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository.ExportRepo.ExportableArticles: %w", err)
	}
	return articles, nil
}

var _ export.ArticleSource = (*ExportRepo)(nil)
