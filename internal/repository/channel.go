package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/threadloom/threadloom/internal/model"
)

// ErrChannelNotResolvable is returned when (source_type, external_id) has
// no matching channel row. Callers must treat this as a non-fatal,
// drop-and-warn condition — never create an orphan thread for it.
var ErrChannelNotResolvable = errors.New("repository: channel not resolvable")

// ChannelRepo resolves and registers source-hosted conversation scopes.
type ChannelRepo struct {
	pool *pgxpool.Pool
}

// NewChannelRepo creates a ChannelRepo.
func NewChannelRepo(pool *pgxpool.Pool) *ChannelRepo {
	return &ChannelRepo{pool: pool}
}

// Resolve looks up a Channel by its canonical (source_type, external_id)
// key. This pair, not the mutable display name, is the sole resolver —
// see DESIGN.md's Open Question decision.
func (r *ChannelRepo) Resolve(ctx context.Context, sourceType, externalID string) (model.Channel, error) {
	var ch model.Channel
	err := r.pool.QueryRow(ctx, `
		SELECT id, source_type, external_id, server_scope, name, is_monitored
		FROM channels
		WHERE source_type = $1 AND external_id = $2
	`, sourceType, externalID).Scan(&ch.ID, &ch.SourceType, &ch.ExternalID, &ch.ServerScope, &ch.Name, &ch.IsMonitored)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Channel{}, ErrChannelNotResolvable
	}
	if err != nil {
		return model.Channel{}, fmt.Errorf("repository.ChannelRepo.Resolve: %w", err)
	}
	return ch, nil
}

// MonitoredExternalIDs returns the external ids of every channel under
// sourceType that is currently opted in to ingestion. The chat ingress
// paths gate on this set, refreshed periodically by
// sourcefetch.ChannelMonitor.
func (r *ChannelRepo) MonitoredExternalIDs(ctx context.Context, sourceType string) (map[string]struct{}, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT external_id FROM channels
		WHERE source_type = $1 AND is_monitored = true
	`, sourceType)
	if err != nil {
		return nil, fmt.Errorf("repository.ChannelRepo.MonitoredExternalIDs: %w", err)
	}
	defer rows.Close()

	ids := map[string]struct{}{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("repository.ChannelRepo.MonitoredExternalIDs: scan: %w", err)
		}
		ids[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository.ChannelRepo.MonitoredExternalIDs: %w", err)
	}
	return ids, nil
}

// Upsert registers or updates a channel's monitored/name fields, keyed by
// (source_type, external_id).
func (r *ChannelRepo) Upsert(ctx context.Context, ch model.Channel) (model.Channel, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO channels (source_type, external_id, server_scope, name, is_monitored)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (source_type, external_id)
		DO UPDATE SET server_scope = EXCLUDED.server_scope, name = EXCLUDED.name, is_monitored = EXCLUDED.is_monitored
		RETURNING id
	`, ch.SourceType, ch.ExternalID, ch.ServerScope, ch.Name, ch.IsMonitored).Scan(&ch.ID)
	if err != nil {
		return model.Channel{}, fmt.Errorf("repository.ChannelRepo.Upsert: %w", err)
	}
	return ch, nil
}
