package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/threadloom/threadloom/internal/embedding"
	"github.com/threadloom/threadloom/internal/model"
)

// ArticleRepo persists compiled articles that passed the quality gate.
// It implements worker.ArticlePersister.
type ArticleRepo struct {
	pool     *pgxpool.Pool
	channels *ChannelRepo
	threads  *ThreadRepo
	embedder embedding.Provider
}

// NewArticleRepo creates an ArticleRepo.
func NewArticleRepo(pool *pgxpool.Pool, channels *ChannelRepo, threads *ThreadRepo, embedder embedding.Provider) *ArticleRepo {
	return &ArticleRepo{pool: pool, channels: channels, threads: threads, embedder: embedder}
}

// Persist resolves the owning channel, creates a RESOLVED thread, embeds
// the article's searchable text, and inserts the article row. A channel
// that can't be resolved is a silent-fail warning, not an error — no
// orphan thread is ever created for it. Embedding failure degrades to a
// null embedding rather than blocking persistence.
func (r *ArticleRepo) Persist(ctx context.Context, article model.CompiledArticle, sourceType, channelExternalID string, qualityScore float64, messages []model.RawMessage) error {
	channel, err := r.channels.Resolve(ctx, sourceType, channelExternalID)
	if errors.Is(err, ErrChannelNotResolvable) {
		slog.Warn("repository.ArticleRepo.Persist: channel not resolvable, dropping article",
			"source_type", sourceType, "channel_external_id", channelExternalID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("repository.ArticleRepo.Persist: resolve channel: %w", err)
	}

	threadID, err := r.threads.CreateResolved(ctx, channel.ID, len(messages))
	if err != nil {
		return fmt.Errorf("repository.ArticleRepo.Persist: create thread: %w", err)
	}

	var vec []float32
	if r.embedder != nil {
		searchText := article.ThreadSummary + "\n" + article.Symptom + "\n" + article.Solution
		vec, err = r.embedder.Encode(ctx, searchText)
		if err != nil {
			slog.Warn("repository.ArticleRepo.Persist: embedding failed, storing without a vector",
				"thread_id", threadID, "error", err)
			vec = nil
		}
	}

	tagsJSON, err := json.Marshal(article.Tags)
	if err != nil {
		return fmt.Errorf("repository.ArticleRepo.Persist: marshal tags: %w", err)
	}

	now := time.Now().UTC()
	var embeddingArg interface{}
	if vec != nil {
		embeddingArg = pgvector.NewVector(vec)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO articles (
			thread_id, source_type, article_type, symptom, diagnosis, solution,
			code_snippet, language, framework, tags, confidence, thread_summary,
			source_url, embedding, quality_score, is_visible, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17, $17
		)
	`,
		threadID, sourceType, article.ArticleType, article.Symptom, article.Diagnosis, article.Solution,
		article.CodeSnippet, article.Language, article.Framework, tagsJSON, article.Confidence, article.ThreadSummary,
		article.SourceURL, embeddingArg, qualityScore, true, now,
	)
	if err != nil {
		return fmt.Errorf("repository.ArticleRepo.Persist: insert: %w", err)
	}
	return nil
}
