// Package extraction implements the disentangle -> router -> evaluator ->
// compiler -> quality_gate state machine that turns a raw message batch
// into zero or one compiled article.
package extraction

import "github.com/threadloom/threadloom/internal/model"

// State is the shared record threaded through every node. Messages is the
// only append-only field under checkpoint resumption; every other field is
// last-writer-wins, overwritten wholesale by the freshest invocation.
type State struct {
	Messages        []model.RawMessage
	Threads         []model.Thread
	SourceType      string
	SkipDisentangle bool

	Classification model.Classification
	ArticleType    model.ArticleType

	Evaluation      *model.Evaluation
	CompiledArticle *model.CompiledArticle

	QualityScore float64
	RetryCount   int

	CurrentThreadIdx int
	ServerScope      string
	ChannelScope     string
	Error            string
}

// Merge combines a prior checkpointed state with a freshly arrived batch
// state: Messages are concatenated (prior first, so ordering is preserved
// across resumption), every other field comes from next, since next
// represents the newest invocation's inputs.
func Merge(prior, next State) State {
	merged := next
	merged.Messages = make([]model.RawMessage, 0, len(prior.Messages)+len(next.Messages))
	merged.Messages = append(merged.Messages, prior.Messages...)
	merged.Messages = append(merged.Messages, next.Messages...)
	return merged
}
