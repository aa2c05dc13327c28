package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/threadloom/threadloom/internal/extraction/quality"
	"github.com/threadloom/threadloom/internal/model"
)

// Disentangler clusters a flat message batch into logical threads.
type Disentangler interface {
	Cluster(ctx context.Context, messages []model.RawMessage) ([]model.Thread, error)
}

// Classifier returns the router node's raw, free-form label text for a
// thread. The node maps that text onto the Classification enum; the
// classifier itself never has to agree on an exact vocabulary.
type Classifier interface {
	Classify(ctx context.Context, thread []model.RawMessage) (string, error)
}

// Evaluator returns the evaluator node's raw JSON-shaped judgement text.
type Evaluator interface {
	Evaluate(ctx context.Context, thread []model.RawMessage, articleType model.ArticleType) (string, error)
}

// Compiler returns the compiler node's raw JSON-shaped extraction text.
type Compiler interface {
	Compile(ctx context.Context, thread []model.RawMessage, articleType model.ArticleType) (string, error)
}

// disentangleNode clusters messages into threads, collapses threads with
// fewer than two messages into a single catch-all, and sorts by size
// descending so the largest conversation is processed first.
func disentangleNode(ctx context.Context, d Disentangler, state State) (State, error) {
	if state.SkipDisentangle {
		state.Threads = []model.Thread{{Messages: state.Messages}}
		state.CurrentThreadIdx = 0
		return state, nil
	}

	threads, err := d.Cluster(ctx, state.Messages)
	if err != nil {
		return state, fmt.Errorf("extraction: disentangle: %w", err)
	}

	var substantial []model.Thread
	var catchAll []model.RawMessage
	for _, t := range threads {
		if len(t.Messages) >= 2 {
			substantial = append(substantial, t)
		} else {
			catchAll = append(catchAll, t.Messages...)
		}
	}
	if len(catchAll) > 0 {
		sortMessagesByTimestamp(catchAll)
		substantial = append(substantial, model.Thread{Messages: catchAll})
	}

	sortThreadsBySizeDesc(substantial)

	state.Threads = substantial
	state.CurrentThreadIdx = 0
	return state, nil
}

func sortThreadsBySizeDesc(threads []model.Thread) {
	for i := 1; i < len(threads); i++ {
		j := i
		for j > 0 && len(threads[j-1].Messages) < len(threads[j].Messages) {
			threads[j-1], threads[j] = threads[j], threads[j-1]
			j--
		}
	}
}

func sortMessagesByTimestamp(messages []model.RawMessage) {
	for i := 1; i < len(messages); i++ {
		j := i
		for j > 0 && messages[j-1].Timestamp.After(messages[j].Timestamp) {
			messages[j-1], messages[j] = messages[j], messages[j-1]
			j--
		}
	}
}

// routerNode classifies the current thread. An answer that doesn't contain
// exactly one known category name is treated as ambiguous and defaults to
// QUESTION_ANSWER, the broadest useful label.
func routerNode(ctx context.Context, c Classifier, state State) (State, error) {
	thread := state.Threads[state.CurrentThreadIdx].Messages
	raw, err := c.Classify(ctx, thread)
	if err != nil {
		return state, fmt.Errorf("extraction: classify: %w", err)
	}

	text := strings.ToUpper(strings.TrimSpace(raw))
	var matches []model.Classification
	for _, known := range append([]model.Classification{model.ClassNoise}, model.KnownArticleTypes...) {
		if strings.Contains(text, string(known)) {
			matches = append(matches, known)
		}
	}
	classification := model.ClassQuestionAnswer
	if len(matches) == 1 {
		classification = matches[0]
	}

	state.Classification = classification
	if classification == model.ClassNoise {
		state.ArticleType = ""
	} else {
		state.ArticleType = model.ArticleType(classification)
	}
	return state, nil
}

// evaluatorNode judges whether the current thread has enough substance to
// compile. A response that doesn't parse as the expected JSON object
// degrades to an all-false evaluation rather than failing the batch.
func evaluatorNode(ctx context.Context, e Evaluator, state State) (State, error) {
	thread := state.Threads[state.CurrentThreadIdx].Messages
	raw, err := e.Evaluate(ctx, thread, state.ArticleType)
	if err != nil {
		return state, fmt.Errorf("extraction: evaluate: %w", err)
	}

	eval := parseEvaluation(raw)
	state.Evaluation = &eval
	return state, nil
}

func parseEvaluation(raw string) model.Evaluation {
	text := extractJSONObject(raw)

	var data struct {
		HasSolution bool   `json:"has_solution"`
		HasCode     bool   `json:"has_code"`
		IsResolved  bool   `json:"is_resolved"`
		Reasoning   string `json:"reasoning"`
	}
	if text == "" {
		return model.Evaluation{Reasoning: truncate(raw, 200)}
	}
	if err := json.Unmarshal([]byte(text), &data); err != nil {
		return model.Evaluation{Reasoning: "failed to parse evaluator response: " + truncate(raw, 200)}
	}
	// is_resolved implies has_solution; normalize rather than trust the
	// model to keep the two flags coherent.
	return model.Evaluation{
		HasSolution: data.HasSolution || data.IsResolved,
		HasCode:     data.HasCode,
		IsResolved:  data.IsResolved,
		Reasoning:   data.Reasoning,
	}
}

// extractJSONObject returns the substring of raw from its first '{' through
// its last '}', or "" if there is no such pair. A response carrying more
// than one object yields a span that does not parse as one.
func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end == -1 || end < start {
		return ""
	}
	return raw[start : end+1]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// passesEvaluationGate implements the type-aware gate between evaluator and
// compiler. GUIDE and DISCUSSION_SUMMARY always pass (inherently complete).
// QUESTION_ANSWER needs has_solution. TROUBLESHOOTING needs a solution
// paired with either code or explicit resolution.
func passesEvaluationGate(articleType model.ArticleType, eval *model.Evaluation) bool {
	if eval == nil {
		return false
	}
	switch articleType {
	case model.ArticleGuide, model.ArticleDiscussionSummary:
		return true
	case model.ArticleQuestionAnswer:
		return eval.HasSolution
	case model.ArticleTroubleshooting:
		return (eval.IsResolved && eval.HasCode) ||
			(eval.HasSolution && eval.HasCode) ||
			(eval.HasSolution && eval.IsResolved)
	default:
		return false
	}
}

// compilerNode transforms the current thread into a CompiledArticle. Any
// failure — transport error or unparseable response — results in a nil
// article rather than a failed batch; the quality gate scores a nil
// article as 0 and the runtime handles the retry/reject decision.
func compilerNode(ctx context.Context, c Compiler, state State) State {
	thread := state.Threads[state.CurrentThreadIdx].Messages
	raw, err := c.Compile(ctx, thread, state.ArticleType)
	if err != nil {
		state.CompiledArticle = nil
		return state
	}

	text := extractJSONObject(raw)
	if text == "" {
		state.CompiledArticle = nil
		return state
	}

	var article model.CompiledArticle
	if err := json.Unmarshal([]byte(text), &article); err != nil {
		state.CompiledArticle = nil
		return state
	}
	article.ArticleType = state.ArticleType
	state.CompiledArticle = &article
	return state
}

// qualityGateNode scores the compiled article and advances retry_count on
// failure; the runtime's edge rules decide whether that means recompile
// or reject.
func qualityGateNode(state State) State {
	score := quality.Score(state.CompiledArticle)
	state.QualityScore = score
	if score < quality.Threshold {
		state.RetryCount++
	}
	return state
}
