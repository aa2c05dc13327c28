package extraction

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/threadloom/threadloom/internal/extraction/quality"
	"github.com/threadloom/threadloom/internal/model"
)

// CheckpointStore persists and resumes State keyed by a stable thread_id —
// (source_type, channel_scope, batch_creation_time) at the call site. The
// runtime never interprets the key; it only round-trips it.
type CheckpointStore interface {
	Load(ctx context.Context, threadID string) (State, bool, error)
	Save(ctx context.Context, threadID string, state State) error
}

// Runtime wires the disentangle -> router -> evaluator -> compiler ->
// quality_gate graph together and drives it to completion or suspension.
type Runtime struct {
	Disentangler Disentangler
	Classifier   Classifier
	Evaluator    Evaluator
	Compiler     Compiler
	Checkpoints  CheckpointStore
}

// Outcome describes how a Run call concluded.
type Outcome string

const (
	// OutcomeNoise means the router classified the thread as noise; the
	// graph terminated before the evaluator ran.
	OutcomeNoise Outcome = "noise"
	// OutcomeSuspended means the evaluator gate was not met; the state is
	// checkpointed and waits for more messages to arrive.
	OutcomeSuspended Outcome = "suspended"
	// OutcomePassed means a CompiledArticle reached the quality threshold.
	OutcomePassed Outcome = "passed"
	// OutcomeRejected means retries were exhausted without reaching the
	// quality threshold.
	OutcomeRejected Outcome = "rejected"
	// OutcomeEmpty means disentanglement produced no thread to process
	// (the batch carried no messages).
	OutcomeEmpty Outcome = "empty"
)

// Result is what Run returns: the final state plus how it concluded.
type Result struct {
	State   State
	Outcome Outcome
}

// Run drives the graph to completion or suspension for one thread_id. If a
// prior checkpoint exists, its Messages are prepended to initial.Messages
// before disentanglement re-runs against the combined batch; all other
// initial fields take precedence over the checkpoint, per the
// last-writer-wins merge rule.
//
// Only the largest thread produced by disentanglement is processed per
// call — a batch that disentangles into several independent conversations
// processes its largest one this invocation and leaves the rest for a
// future batch, matching the single current_thread_idx the graph carries.
func (r *Runtime) Run(ctx context.Context, initial State, threadID string) (Result, error) {
	state := initial
	if r.Checkpoints != nil {
		prior, ok, err := r.Checkpoints.Load(ctx, threadID)
		if err != nil {
			return Result{}, fmt.Errorf("extraction: load checkpoint %s: %w", threadID, err)
		}
		if ok {
			state = Merge(prior, initial)
		}
	}

	state, err := disentangleNode(ctx, r.Disentangler, state)
	if err != nil {
		return Result{}, err
	}
	if len(state.Threads) == 0 {
		return r.finish(ctx, threadID, state, OutcomeEmpty)
	}

	state, err = routerNode(ctx, r.Classifier, state)
	if err != nil {
		return Result{}, err
	}
	if state.Classification == model.ClassNoise {
		return r.finish(ctx, threadID, state, OutcomeNoise)
	}

	state, err = evaluatorNode(ctx, r.Evaluator, state)
	if err != nil {
		return Result{}, err
	}
	if !passesEvaluationGate(state.ArticleType, state.Evaluation) {
		return r.finish(ctx, threadID, state, OutcomeSuspended)
	}

	for {
		state = compilerNode(ctx, r.Compiler, state)
		state = qualityGateNode(state)

		if state.QualityScore >= quality.Threshold {
			return r.finish(ctx, threadID, state, OutcomePassed)
		}
		if state.RetryCount >= quality.MaxRetries {
			slog.Warn("extraction: quality gate rejected after max retries",
				"thread_id", threadID, "score", state.QualityScore, "retries", state.RetryCount)
			return r.finish(ctx, threadID, state, OutcomeRejected)
		}
	}
}

// finish persists state at every suspension or terminal transition and
// returns the assembled Result.
func (r *Runtime) finish(ctx context.Context, threadID string, state State, outcome Outcome) (Result, error) {
	if r.Checkpoints != nil {
		if err := r.Checkpoints.Save(ctx, threadID, state); err != nil {
			return Result{}, fmt.Errorf("extraction: save checkpoint %s: %w", threadID, err)
		}
	}
	return Result{State: state, Outcome: outcome}, nil
}
