package consent

import (
	"context"
	"errors"
	"testing"

	"github.com/threadloom/threadloom/internal/model"
)

type fakeRegistry struct {
	authors map[string]struct{}
	err     error
}

func (f *fakeRegistry) ConsentedAuthors(ctx context.Context, sourceScope string) (map[string]struct{}, error) {
	return f.authors, f.err
}

func TestFilter_DropsUnconsented(t *testing.T) {
	reg := &fakeRegistry{authors: map[string]struct{}{"a": {}}}
	msgs := []model.RawMessage{{AuthorHandle: "a"}, {AuthorHandle: "b"}, {AuthorHandle: "c"}}
	kept, excluded := Filter(context.Background(), reg, "scope", msgs)
	if len(kept) != 1 || excluded != 2 {
		t.Fatalf("kept=%d excluded=%d, want kept=1 excluded=2", len(kept), excluded)
	}
}

func TestFilter_FailClosedOnBackendError(t *testing.T) {
	reg := &fakeRegistry{err: errors.New("db down")}
	msgs := []model.RawMessage{{AuthorHandle: "a"}, {AuthorHandle: "b"}}
	kept, excluded := Filter(context.Background(), reg, "scope", msgs)
	if len(kept) != 0 || excluded != 2 {
		t.Fatalf("expected fail-closed drop of everything, got kept=%d excluded=%d", len(kept), excluded)
	}
}

func TestFilter_NoConsentedAuthorsDropsAll(t *testing.T) {
	reg := &fakeRegistry{authors: map[string]struct{}{}}
	msgs := []model.RawMessage{{AuthorHandle: "a"}}
	kept, excluded := Filter(context.Background(), reg, "scope", msgs)
	if len(kept) != 0 || excluded != 1 {
		t.Fatalf("expected everything dropped, got kept=%d excluded=%d", len(kept), excluded)
	}
}
