// Package model holds the shared data types that flow through the
// ingestion, disentanglement, and extraction pipeline.
package model

import "time"

// RawMessage is a single incoming item before threading. It is immutable
// once accepted; the only permitted mutation is PII redaction of Content
// prior to persistence.
type RawMessage struct {
	MessageID    string    `json:"message_id"`
	AuthorHandle string    `json:"author_handle"`
	Content      string    `json:"content"`
	Timestamp    time.Time `json:"timestamp"`
	ReplyTo      string    `json:"reply_to,omitempty"`
	Mentions     []string  `json:"mentions,omitempty"`
	HasCode      bool      `json:"has_code"`
}

// Thread is an ordered sequence of RawMessages the disentangler grouped
// together. It carries no identity of its own beyond the lifetime of one
// pipeline invocation, unless the graph runtime checkpoints it under a
// thread_id.
type Thread struct {
	Messages []RawMessage
}

// ThreadStatus mirrors the lifecycle of a persisted Thread record.
type ThreadStatus string

const (
	ThreadPending    ThreadStatus = "PENDING"
	ThreadProcessing ThreadStatus = "PROCESSING"
	ThreadResolved   ThreadStatus = "RESOLVED"
	ThreadNoise      ThreadStatus = "NOISE"
	ThreadIncomplete ThreadStatus = "INCOMPLETE"
	ThreadFailed     ThreadStatus = "FAILED"
)

// ArticleType is one of the four non-terminal classification labels.
type ArticleType string

const (
	ArticleTroubleshooting   ArticleType = "TROUBLESHOOTING"
	ArticleQuestionAnswer    ArticleType = "QUESTION_ANSWER"
	ArticleGuide             ArticleType = "GUIDE"
	ArticleDiscussionSummary ArticleType = "DISCUSSION_SUMMARY"
)

// Classification is the closed router output enum. NOISE is terminal;
// the remaining four values are article types.
type Classification string

const (
	ClassNoise             Classification = "NOISE"
	ClassTroubleshooting   Classification = Classification(ArticleTroubleshooting)
	ClassQuestionAnswer    Classification = Classification(ArticleQuestionAnswer)
	ClassGuide             Classification = Classification(ArticleGuide)
	ClassDiscussionSummary Classification = Classification(ArticleDiscussionSummary)
)

// KnownArticleTypes lists every non-NOISE classification, used when
// mapping a free-form classifier response onto the enum.
var KnownArticleTypes = []Classification{
	ClassTroubleshooting,
	ClassQuestionAnswer,
	ClassGuide,
	ClassDiscussionSummary,
}

// Evaluation is the evaluator node's judgement of a thread's substance.
type Evaluation struct {
	HasSolution bool   `json:"has_solution"`
	HasCode     bool   `json:"has_code"`
	IsResolved  bool   `json:"is_resolved"`
	Reasoning   string `json:"reasoning"`
}

// CompiledArticle is the compiler's structured extraction from a thread.
type CompiledArticle struct {
	ArticleType   ArticleType `json:"article_type"`
	Symptom       string      `json:"symptom"`
	Diagnosis     string      `json:"diagnosis"`
	Solution      string      `json:"solution"`
	CodeSnippet   string      `json:"code_snippet,omitempty"`
	Language      string      `json:"language"`
	Framework     string      `json:"framework,omitempty"`
	Tags          []string    `json:"tags"`
	Confidence    float64     `json:"confidence"`
	ThreadSummary string      `json:"thread_summary"`
	SourceURL     string      `json:"source_url,omitempty"`
}

// QualityReport is the quality-gate's verdict on a CompiledArticle.
type QualityReport struct {
	Score       float64 `json:"score"`
	RetriesUsed int     `json:"retries_used"`
}

// StoredArticle is the persisted form of a CompiledArticle, augmented with
// storage-only fields. The article exclusively owns its Embedding; it
// shares its ThreadID with the channel record that produced it.
type StoredArticle struct {
	ID         int64  `json:"id"`
	ThreadID   int64  `json:"thread_id"`
	SourceType string `json:"source_type"`
	CompiledArticle
	Embedding    []float32 `json:"-"`
	QualityScore float64   `json:"quality_score"`
	IsVisible    bool      `json:"is_visible"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ExportFormat names the supported export serialization.
type ExportFormat string

const ExportFormatJSONL ExportFormat = "jsonl"

// ExportState tracks the lifecycle of an ExportJob.
type ExportState string

const (
	ExportPending  ExportState = "pending"
	ExportComplete ExportState = "complete"
	ExportFailed   ExportState = "failed"
)

// ExportJob describes one provenance-signed export run.
type ExportJob struct {
	ID                  string       `json:"id"`
	SourceScope         string       `json:"source_scope"`
	Format              ExportFormat `json:"format"`
	State               ExportState  `json:"state"`
	RecordCount         int          `json:"record_count"`
	FilePath            string       `json:"file_path"`
	ContentHash         string       `json:"content_hash"`
	ManifestHash        string       `json:"manifest_hash"`
	ConsentVerifiedFlag bool         `json:"consent_verified_flag"`
}

// Channel is a source-hosted conversation scope (a chat-platform channel
// or a forum-style repository) keyed by (SourceType, ExternalID).
// ServerScope groups channels under their parent server/owner (a Discord
// guild id, a GitHub org/repo) and is what consent grants and exports are
// actually scoped to.
type Channel struct {
	ID          int64  `json:"id"`
	SourceType  string `json:"source_type"`
	ExternalID  string `json:"external_id"`
	ServerScope string `json:"server_scope"`
	Name        string `json:"name"`
	IsMonitored bool   `json:"is_monitored"`
}

// ConsentRecord is one (source_scope, author_handle) consent grant.
type ConsentRecord struct {
	AuthorHandle     string     `json:"author_handle"`
	SourceScope      string     `json:"source_scope"`
	IngestionConsent bool       `json:"ingestion_consent_granted"`
	RevokedAt        *time.Time `json:"revoked_at,omitempty"`
}
