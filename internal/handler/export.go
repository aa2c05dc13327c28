package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/threadloom/threadloom/internal/export"
)

// Blobstore is the read surface export download needs — the same
// interface export.Blobstore's writer half satisfies, narrowed to Read so
// this handler depends on nothing it can't exercise.
type Blobstore interface {
	Read(ctx context.Context, object string) ([]byte, error)
}

// ExportDataset returns a handler for GET /exports/{id}.jsonl, streaming
// the JSONL record dataset for a completed export job.
func ExportDataset(store Blobstore) http.HandlerFunc {
	return exportArtifact(store, "export_%s.jsonl", "application/x-ndjson")
}

// ExportManifest returns a handler for GET /exports/{id}.c2pa.json,
// streaming the provenance manifest accompanying an export job.
func ExportManifest(store Blobstore) http.HandlerFunc {
	return exportArtifact(store, "export_%s.c2pa.json", "application/json")
}

func exportArtifact(store Blobstore, objectTemplate, contentType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		object := fmt.Sprintf(objectTemplate, id)
		data, err := store.Read(r.Context(), object)
		if err != nil {
			if errors.Is(err, export.ErrNotFound) {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(http.StatusOK)
		w.Write(data)
	}
}
