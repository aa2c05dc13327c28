package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/threadloom/threadloom/internal/model"
)

// ThreadRepo persists the Thread records that anchor compiled articles to
// the channel and raw-message context they were extracted from.
type ThreadRepo struct {
	pool *pgxpool.Pool
}

// NewThreadRepo creates a ThreadRepo.
func NewThreadRepo(pool *pgxpool.Pool) *ThreadRepo {
	return &ThreadRepo{pool: pool}
}

// CreateResolved inserts a RESOLVED thread for channelID, returning its id.
// Only passing extractions reach this call; suspended and rejected threads
// are never persisted here, only checkpointed.
func (r *ThreadRepo) CreateResolved(ctx context.Context, channelID int64, messageCount int) (int64, error) {
	var threadID int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO threads (channel_id, status, message_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		RETURNING id
	`, channelID, model.ThreadResolved, messageCount, time.Now().UTC()).Scan(&threadID)
	if err != nil {
		return 0, fmt.Errorf("repository.ThreadRepo.CreateResolved: %w", err)
	}
	return threadID, nil
}
