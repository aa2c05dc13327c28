// Package worker drains flush-ready channel batches through consent
// filtering, anonymization, and the extraction runtime, then enqueues
// passing articles for persistence.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/threadloom/threadloom/internal/anonymizer"
	"github.com/threadloom/threadloom/internal/consent"
	"github.com/threadloom/threadloom/internal/extraction"
	"github.com/threadloom/threadloom/internal/model"
	"github.com/threadloom/threadloom/internal/retry"
	"github.com/threadloom/threadloom/internal/streambuffer"
)

// publicSourceTypes never go through consent filtering — their content is
// already public (forum/GitHub-style discussions).
var publicSourceTypes = map[string]bool{
	"github": true,
}

// ArticlePersister stores a compiled article that passed the quality gate.
// Implementations are responsible for the channel-not-resolvable policy
// (log and drop, never create an orphan thread) — a failure returned from
// Persist is retried on retry.DefaultSchedule only when retry.IsTransient
// accepts it; any other error is returned at once.
type ArticlePersister interface {
	Persist(ctx context.Context, article model.CompiledArticle, sourceType, channelExternalID string, qualityScore float64, messages []model.RawMessage) error
}

// Batch is one unit of work handed to a worker: every message buffered for
// one (sourceType, serverScope, channelScope) at flush time.
type Batch struct {
	SourceType   string
	ServerScope  string
	ChannelScope string
	Messages     []model.RawMessage
}

// Processor runs one Batch through consent filtering, anonymization, and
// the extraction runtime, persisting the result if it passes.
type Processor struct {
	Runtime   *extraction.Runtime
	Consent   consent.Registry
	Persister ArticlePersister
}

// Process implements streambuffer.Dispatch's shape for one (sourceType,
// serverScope, channelScope) tuple, bound via a closure at the call site.
func (p *Processor) Process(ctx context.Context, batch Batch) error {
	messages := batch.Messages

	if !publicSourceTypes[batch.SourceType] {
		kept, excluded := consent.Filter(ctx, p.Consent, batch.ServerScope, messages)
		if excluded > 0 {
			slog.Info("worker: consent filter dropped messages",
				"source_type", batch.SourceType, "channel", batch.ChannelScope, "excluded", excluded)
		}
		if len(kept) == 0 {
			return nil
		}
		messages = kept
	}

	anonymized := make([]model.RawMessage, len(messages))
	for i, m := range messages {
		m.Content = anonymizer.Anonymize(m.Content).Text
		anonymized[i] = m
	}

	threadID := fmt.Sprintf("batch_%s_%s_%d", batch.SourceType, batch.ChannelScope, time.Now().Unix())
	initial := extraction.State{
		Messages:        anonymized,
		SourceType:      batch.SourceType,
		SkipDisentangle: batch.SourceType != "discord",
		ServerScope:     batch.ServerScope,
		ChannelScope:    batch.ChannelScope,
	}

	result, err := p.Runtime.Run(ctx, initial, threadID)
	if err != nil {
		return fmt.Errorf("worker: run extraction graph: %w", err)
	}

	if result.Outcome != extraction.OutcomePassed || result.State.CompiledArticle == nil {
		return nil
	}

	_, err = retry.Do(ctx, "PersistArticle", retry.DefaultSchedule, func() (struct{}, error) {
		return struct{}{}, p.Persister.Persist(ctx, *result.State.CompiledArticle, batch.SourceType, batch.ChannelScope, result.State.QualityScore, anonymized)
	})
	if err != nil {
		return fmt.Errorf("worker: persist article: %w", err)
	}
	return nil
}

// FlushJob names one (sourceType, serverScope, channelScope) channel whose
// buffer trigger has fired and is ready to drain.
type FlushJob struct {
	SourceType   string
	ServerScope  string
	ChannelScope string
}

// Pool runs a bounded number of concurrent flushes, each draining one
// channel's buffer through a Processor.
type Pool struct {
	Buffer      *streambuffer.Buffer
	Processor   *Processor
	Concurrency int
}

// Run consumes FlushJobs from jobs until it's closed or ctx is canceled,
// processing up to Concurrency jobs at a time. On exit it waits for every
// in-flight flush to finish before returning.
func (p *Pool) Run(ctx context.Context, jobs <-chan FlushJob) {
	concurrency := int64(p.Concurrency)
	if concurrency <= 0 {
		concurrency = 1
	}
	sem := semaphore.NewWeighted(concurrency)
	drain := func() {
		_ = sem.Acquire(context.Background(), concurrency)
	}

	for {
		select {
		case <-ctx.Done():
			drain()
			return
		case job, ok := <-jobs:
			if !ok {
				drain()
				return
			}
			if err := sem.Acquire(ctx, 1); err != nil {
				drain()
				return
			}
			go func(j FlushJob) {
				defer sem.Release(1)
				p.flush(ctx, j)
			}(job)
		}
	}
}

func (p *Pool) flush(ctx context.Context, job FlushJob) {
	drained, err := p.Buffer.Flush(ctx, job.SourceType, job.ChannelScope, func(ctx context.Context, messages []model.RawMessage) error {
		return p.Processor.Process(ctx, Batch{
			SourceType:   job.SourceType,
			ServerScope:  job.ServerScope,
			ChannelScope: job.ChannelScope,
			Messages:     messages,
		})
	})
	if err != nil {
		slog.Error("worker: flush failed", "source_type", job.SourceType, "channel", job.ChannelScope, "error", err)
		return
	}
	if drained {
		slog.Info("worker: batch processed", "source_type", job.SourceType, "channel", job.ChannelScope)
	}
}
