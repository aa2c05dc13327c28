package export

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/threadloom/threadloom/internal/model"
)

type fakeSource struct {
	articles []model.StoredArticle
	err      error
}

func (s *fakeSource) ExportableArticles(ctx context.Context, sourceScope string, minQuality float64, language string) ([]model.StoredArticle, error) {
	return s.articles, s.err
}

type memStore struct {
	objects map[string][]byte
}

func newMemStore() *memStore { return &memStore{objects: map[string][]byte{}} }

func (m *memStore) Write(ctx context.Context, object string, data []byte) error {
	m.objects[object] = data
	return nil
}

func (m *memStore) Read(ctx context.Context, object string) ([]byte, error) {
	data, ok := m.objects[object]
	if !ok {
		return nil, errors.New("not found")
	}
	return data, nil
}

func sampleArticle() model.StoredArticle {
	return model.StoredArticle{
		ID: 1, ThreadID: 42, SourceType: "discord",
		CompiledArticle: model.CompiledArticle{
			ArticleType: model.ArticleTroubleshooting,
			Symptom:     "crash on boot", Diagnosis: "bad driver", Solution: "reinstall driver",
			Language: "go", Tags: []string{"crash"}, Confidence: 0.8, ThreadSummary: "summary",
		},
		QualityScore: 0.85,
		CreatedAt:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestPackager_Build_WritesDatasetAndManifest(t *testing.T) {
	store := newMemStore()
	p := &Packager{Source: &fakeSource{articles: []model.StoredArticle{sampleArticle()}}, Store: store}

	job := model.ExportJob{ID: "1", SourceScope: "discord:server1", Format: model.ExportFormatJSONL}
	result, err := p.Build(context.Background(), job, 0.7, "")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if result.State != model.ExportComplete {
		t.Fatalf("state = %v, want complete", result.State)
	}
	if result.RecordCount != 1 {
		t.Fatalf("record count = %d", result.RecordCount)
	}
	if !result.ConsentVerifiedFlag {
		t.Fatalf("expected consent verified flag set")
	}

	dataset, err := store.Read(context.Background(), result.FilePath)
	if err != nil {
		t.Fatalf("read dataset: %v", err)
	}
	var rec record
	if err := json.Unmarshal(dataset, &rec); err != nil {
		t.Fatalf("dataset line not valid JSON: %v", err)
	}
	if rec.ID != "art_1" || rec.Knowledge.Solution != "reinstall driver" {
		t.Fatalf("unexpected record: %+v", rec)
	}

	manifestBytes, err := store.Read(context.Background(), "export_1.c2pa.json")
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	var manifest Manifest
	if err := json.Unmarshal(manifestBytes, &manifest); err != nil {
		t.Fatalf("manifest not valid JSON: %v", err)
	}
	if manifest.Signature.Algorithm != "sha256-rsa" {
		t.Fatalf("unexpected signature: %+v", manifest.Signature)
	}
	if !strings.HasPrefix(result.ContentHash, "sha256:") {
		t.Fatalf("content hash missing prefix: %q", result.ContentHash)
	}
}

func TestNewJob(t *testing.T) {
	a := NewJob("discord:server1")
	b := NewJob("discord:server1")
	if a.ID == "" || a.ID == b.ID {
		t.Fatalf("expected distinct non-empty job ids, got %q and %q", a.ID, b.ID)
	}
	if a.State != model.ExportPending || a.Format != model.ExportFormatJSONL {
		t.Fatalf("unexpected initial job: %+v", a)
	}
}

func TestPackager_Build_NoArticlesFails(t *testing.T) {
	store := newMemStore()
	p := &Packager{Source: &fakeSource{}, Store: store}

	job := model.ExportJob{ID: "2", SourceScope: "discord:server1"}
	result, err := p.Build(context.Background(), job, 0.7, "")
	if err == nil {
		t.Fatalf("expected error for empty article set")
	}
	if result.State != model.ExportFailed {
		t.Fatalf("state = %v, want failed", result.State)
	}
}

func TestContentHash_Deterministic(t *testing.T) {
	a := ContentHash([]byte("hello"))
	b := ContentHash([]byte("hello"))
	if a != b {
		t.Fatalf("hash not deterministic")
	}
	if a == ContentHash([]byte("world")) {
		t.Fatalf("distinct content hashed identically")
	}
}

func TestBuildManifest_IncludesProvenanceAssertion(t *testing.T) {
	m := BuildManifest("9", 3, "sha256:abc", "discord:server1")
	found := false
	for _, a := range m.Assertions {
		if a.Label == "threadloom.provenance" {
			found = true
			if a.Data["record_count"] != 3 {
				t.Fatalf("record_count = %v", a.Data["record_count"])
			}
		}
	}
	if !found {
		t.Fatalf("missing provenance assertion")
	}
}
