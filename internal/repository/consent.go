package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/threadloom/threadloom/internal/consent"
)

// ConsentRepo implements consent.Registry against the consent_records and
// channels tables.
type ConsentRepo struct {
	pool *pgxpool.Pool
}

// NewConsentRepo creates a ConsentRepo.
func NewConsentRepo(pool *pgxpool.Pool) *ConsentRepo {
	return &ConsentRepo{pool: pool}
}

// ConsentedAuthors returns the set of author handles with an active,
// unrevoked ingestion consent grant for sourceScope (the channel's
// external server/owner scope, not the channel itself).
func (r *ConsentRepo) ConsentedAuthors(ctx context.Context, sourceScope string) (map[string]struct{}, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT cr.author_handle
		FROM consent_records cr
		WHERE cr.source_scope = $1
		  AND cr.ingestion_consent_granted = true
		  AND cr.revoked_at IS NULL
	`, sourceScope)
	if err != nil {
		return nil, fmt.Errorf("repository.ConsentRepo.ConsentedAuthors: %w", err)
	}
	defer rows.Close()

	authors := map[string]struct{}{}
	for rows.Next() {
		var handle string
		if err := rows.Scan(&handle); err != nil {
			return nil, fmt.Errorf("repository.ConsentRepo.ConsentedAuthors: scan: %w", err)
		}
		authors[handle] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository.ConsentRepo.ConsentedAuthors: %w", err)
	}
	return authors, nil
}

var _ consent.Registry = (*ConsentRepo)(nil)
