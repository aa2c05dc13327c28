// Package export packages quality-gated articles into a JSONL dataset
// plus a C2PA-style provenance manifest, and writes both through a small
// Blobstore abstraction so object storage is a swappable collaborator.
package export

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/threadloom/threadloom/internal/model"
)

// ErrNotFound is returned by a Blobstore.Read implementation (or wrapped
// by one) when the requested object does not exist, so the download
// handler can answer 404 rather than 503.
var ErrNotFound = errors.New("export: artifact not found")

// Blobstore is the storage surface export needs: write an artifact under
// a key, read one back. gcpclient.StorageAdapter implements it against
// GCS; a local-disk or in-memory double is trivial for tests.
type Blobstore interface {
	Write(ctx context.Context, object string, data []byte) error
	Read(ctx context.Context, object string) ([]byte, error)
}

// ArticleSource supplies the articles eligible for an export. Implemented
// by the repository layer against the articles/threads/channels tables.
type ArticleSource interface {
	ExportableArticles(ctx context.Context, sourceScope string, minQuality float64, language string) ([]model.StoredArticle, error)
}

// record is one JSONL line of the exported dataset.
type record struct {
	ID        string         `json:"id"`
	Source    string         `json:"source"`
	Knowledge knowledgeBlock `json:"knowledge"`
	Metadata  metadataBlock  `json:"metadata"`
}

type knowledgeBlock struct {
	Symptom       string   `json:"symptom"`
	Diagnosis     string   `json:"diagnosis"`
	Solution      string   `json:"solution"`
	CodeSnippet   string   `json:"code_snippet,omitempty"`
	Language      string   `json:"language"`
	Framework     string   `json:"framework,omitempty"`
	Tags          []string `json:"tags"`
	Confidence    float64  `json:"confidence"`
	ThreadSummary string   `json:"thread_summary"`
}

type metadataBlock struct {
	QualityScore float64 `json:"quality_score"`
	CreatedAt    string  `json:"created_at,omitempty"`
}

// Manifest is the C2PA-style provenance record accompanying an export.
type Manifest struct {
	Claim      ManifestClaim       `json:"claim"`
	Assertions []ManifestAssertion `json:"assertions"`
	Signature  ManifestSignature   `json:"signature"`
}

type ManifestClaim struct {
	Title          string `json:"dc:title"`
	Format         string `json:"dc:format"`
	ClaimGenerator string `json:"claim_generator"`
}

type ManifestAssertion struct {
	Label string         `json:"label"`
	Data  map[string]any `json:"data"`
}

type ManifestSignature struct {
	Algorithm   string `json:"algorithm"`
	Certificate string `json:"certificate"`
}

// Packager builds and writes export artifacts.
type Packager struct {
	Source ArticleSource
	Store  Blobstore
}

// NewJob creates a pending ExportJob for sourceScope with a fresh UUID,
// the id that names both artifact objects (export_<id>.jsonl and
// export_<id>.c2pa.json).
func NewJob(sourceScope string) model.ExportJob {
	return model.ExportJob{
		ID:          uuid.NewString(),
		SourceScope: sourceScope,
		Format:      model.ExportFormatJSONL,
		State:       model.ExportPending,
	}
}

// ContentHash returns the sha256:<hex> digest of data, the same format
// embedded in the manifest's provenance assertion.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:])
}

// Build queries exportable articles for sourceScope, serializes them as
// JSONL, writes both the dataset and its signed manifest through the
// Blobstore, and returns the populated ExportJob. min/language filter the
// same way the source query does.
func (p *Packager) Build(ctx context.Context, job model.ExportJob, minQuality float64, language string) (model.ExportJob, error) {
	articles, err := p.Source.ExportableArticles(ctx, job.SourceScope, minQuality, language)
	if err != nil {
		return job, fmt.Errorf("export.Packager.Build: %w", err)
	}
	if len(articles) == 0 {
		job.State = model.ExportFailed
		return job, fmt.Errorf("export.Packager.Build: no exportable articles for scope %q", job.SourceScope)
	}

	content, err := encodeJSONL(articles)
	if err != nil {
		return job, fmt.Errorf("export.Packager.Build: %w", err)
	}

	datasetObject := fmt.Sprintf("export_%s.jsonl", job.ID)
	if err := p.Store.Write(ctx, datasetObject, content); err != nil {
		return job, fmt.Errorf("export.Packager.Build: write dataset: %w", err)
	}

	contentHash := ContentHash(content)
	manifest := BuildManifest(job.ID, len(articles), contentHash, job.SourceScope)
	manifestBytes, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return job, fmt.Errorf("export.Packager.Build: marshal manifest: %w", err)
	}
	manifestHash := ContentHash(canonicalize(manifest))

	manifestObject := fmt.Sprintf("export_%s.c2pa.json", job.ID)
	if err := p.Store.Write(ctx, manifestObject, manifestBytes); err != nil {
		return job, fmt.Errorf("export.Packager.Build: write manifest: %w", err)
	}

	job.RecordCount = len(articles)
	job.FilePath = datasetObject
	job.ContentHash = contentHash
	job.ManifestHash = manifestHash
	job.ConsentVerifiedFlag = true
	job.State = model.ExportComplete
	return job, nil
}

func encodeJSONL(articles []model.StoredArticle) ([]byte, error) {
	var out []byte
	for i, a := range articles {
		rec := record{
			ID:     fmt.Sprintf("art_%d", a.ID),
			Source: fmt.Sprintf("%s:%d", a.SourceType, a.ThreadID),
			Knowledge: knowledgeBlock{
				Symptom: a.Symptom, Diagnosis: a.Diagnosis, Solution: a.Solution,
				CodeSnippet: a.CodeSnippet, Language: a.Language, Framework: a.Framework,
				Tags: a.Tags, Confidence: a.Confidence, ThreadSummary: a.ThreadSummary,
			},
			Metadata: metadataBlock{QualityScore: a.QualityScore},
		}
		if !a.CreatedAt.IsZero() {
			rec.Metadata.CreatedAt = a.CreatedAt.Format(time.RFC3339)
		}
		line, err := json.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("encode article %d: %w", a.ID, err)
		}
		if i > 0 {
			out = append(out, '\n')
		}
		out = append(out, line...)
	}
	return out, nil
}

// BuildManifest constructs the C2PA-style provenance manifest for an
// export: one claim, an actions assertion, and a domain assertion binding
// the content hash to its processing chain.
func BuildManifest(exportID string, recordCount int, contentHash, sourceScope string) Manifest {
	return Manifest{
		Claim: ManifestClaim{
			Title:          fmt.Sprintf("Export #%s", exportID),
			Format:         "application/jsonl",
			ClaimGenerator: "threadloom/0.1.0",
		},
		Assertions: []ManifestAssertion{
			{
				Label: "c2pa.actions",
				Data: map[string]any{
					"actions": []map[string]string{
						{"action": "c2pa.created", "softwareAgent": "threadloom-pipeline"},
						{"action": "c2pa.edited", "softwareAgent": "threadloom-anonymizer"},
					},
				},
			},
			{
				Label: "threadloom.provenance",
				Data: map[string]any{
					"source":           sourceScope,
					"record_count":     recordCount,
					"content_hash":     contentHash,
					"pii_redacted":     true,
					"consent_verified": true,
				},
			},
		},
		Signature: ManifestSignature{
			Algorithm:   "sha256-rsa",
			Certificate: "placeholder-use-kms-in-production",
		},
	}
}

// canonicalize re-marshals manifest through a generic map so keys are
// sorted and its hash is stable across runs regardless of field order.
func canonicalize(m Manifest) []byte {
	b, _ := json.Marshal(m)
	var generic map[string]any
	_ = json.Unmarshal(b, &generic)
	canonical, _ := json.Marshal(generic)
	return canonical
}
