package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/threadloom/threadloom/internal/extraction"
)

// CheckpointRepo persists extraction.State keyed by thread_id in a JSONB
// column, giving the graph runtime durable suspend/resume without a
// separate checkpoint store dependency. Implements extraction.CheckpointStore.
type CheckpointRepo struct {
	pool *pgxpool.Pool
}

// NewCheckpointRepo creates a CheckpointRepo.
func NewCheckpointRepo(pool *pgxpool.Pool) *CheckpointRepo {
	return &CheckpointRepo{pool: pool}
}

// Load returns the checkpointed state for threadID, if one exists.
func (r *CheckpointRepo) Load(ctx context.Context, threadID string) (extraction.State, bool, error) {
	var raw []byte
	err := r.pool.QueryRow(ctx, `
		SELECT state FROM extraction_checkpoints WHERE thread_id = $1
	`, threadID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return extraction.State{}, false, nil
	}
	if err != nil {
		return extraction.State{}, false, fmt.Errorf("repository.CheckpointRepo.Load: %w", err)
	}

	var state extraction.State
	if err := json.Unmarshal(raw, &state); err != nil {
		return extraction.State{}, false, fmt.Errorf("repository.CheckpointRepo.Load: decode: %w", err)
	}
	return state, true, nil
}

// Save upserts the checkpoint for threadID.
func (r *CheckpointRepo) Save(ctx context.Context, threadID string, state extraction.State) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("repository.CheckpointRepo.Save: encode: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO extraction_checkpoints (thread_id, state, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (thread_id) DO UPDATE SET state = EXCLUDED.state, updated_at = EXCLUDED.updated_at
	`, threadID, raw, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("repository.CheckpointRepo.Save: %w", err)
	}
	return nil
}

var _ extraction.CheckpointStore = (*CheckpointRepo)(nil)
