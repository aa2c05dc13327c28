// Package consent gates message ingestion on per-author, per-source
// consent grants. Failure is always fail-closed: any backend error is
// treated as "nobody is consented" rather than propagated.
package consent

import (
	"context"
	"log/slog"

	"github.com/threadloom/threadloom/internal/model"
)

// Registry resolves which hashed authors have active ingestion consent
// for a given source scope.
type Registry interface {
	ConsentedAuthors(ctx context.Context, sourceScope string) (map[string]struct{}, error)
}

// RevocationEffect documents, without implementing, the interplay between
// consent revocation and already-persisted articles. The source system
// declares "re-generate without this user's contributions" as a downstream
// effect but never implements it; this type exists only so that intent is
// discoverable in the type system, not inferred as behavior.
type RevocationEffect struct {
	AuthorHandle string
	SourceScope  string
}

// Filter drops every message whose author is not consented, returning the
// kept messages and the count of messages excluded. Call sites must skip
// Filter entirely for public-source batches (forum-style sources) — that
// policy is encoded by the source-type parameter at the call site, not
// inside the registry.
func Filter(ctx context.Context, reg Registry, sourceScope string, messages []model.RawMessage) (kept []model.RawMessage, excluded int) {
	consented, err := reg.ConsentedAuthors(ctx, sourceScope)
	if err != nil {
		slog.Warn("consent registry unavailable, fail-closed", "source_scope", sourceScope, "error", err)
		consented = map[string]struct{}{}
	}

	if len(consented) == 0 {
		return nil, len(messages)
	}

	kept = make([]model.RawMessage, 0, len(messages))
	for _, m := range messages {
		if _, ok := consented[m.AuthorHandle]; ok {
			kept = append(kept, m)
		} else {
			excluded++
		}
	}
	return kept, excluded
}
