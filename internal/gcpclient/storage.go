package gcpclient

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"

	"github.com/threadloom/threadloom/internal/export"
)

// StorageAdapter wraps the GCS client to implement export.Blobstore for
// writing export artifacts (the JSONL record stream and its C2PA-style
// provenance manifest).
type StorageAdapter struct {
	client *storage.Client
	bucket string
}

// NewStorageAdapter creates a StorageAdapter bound to a single bucket.
func NewStorageAdapter(ctx context.Context, bucket string) (*StorageAdapter, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcpclient.NewStorageAdapter: %w", err)
	}
	return &StorageAdapter{client: client, bucket: bucket}, nil
}

// Write uploads data under object, implementing export.Blobstore.
func (a *StorageAdapter) Write(ctx context.Context, object string, data []byte) error {
	w := a.client.Bucket(a.bucket).Object(object).NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("gcpclient.Write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcpclient.Write close: %w", err)
	}
	return nil
}

// Read downloads an object, implementing export.Blobstore.
func (a *StorageAdapter) Read(ctx context.Context, object string) ([]byte, error) {
	r, err := a.client.Bucket(a.bucket).Object(object).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("gcpclient.Read: %w: %w", export.ErrNotFound, err)
	}
	if err != nil {
		return nil, fmt.Errorf("gcpclient.Read: %w", err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

// Close closes the underlying client.
func (a *StorageAdapter) Close() {
	a.client.Close()
}
