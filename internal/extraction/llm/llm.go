// Package llm provides the network-backed Classifier, Evaluator, and
// Compiler implementations the extraction graph runs in production,
// wrapping the shared Vertex AI adapter.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/threadloom/threadloom/internal/gcpclient"
	"github.com/threadloom/threadloom/internal/model"
)

// Per-call deadlines. Classification is a one-token answer and gets a
// tighter budget than the JSON-producing evaluate/compile calls.
const (
	classifyTimeout = 10 * time.Second
	evaluateTimeout = 30 * time.Second
	compileTimeout  = 30 * time.Second
)

const routerSystemPrompt = `You are a community discussion classifier. Analyze a conversation thread and classify it.

Categories:
- NOISE: spam, greetings, off-topic chat, memes, bot commands, self-promotion
- TROUBLESHOOTING: error/bug report with debugging discussion and fix (usually has code/stack traces)
- QUESTION_ANSWER: "How do I...?" question with a clear answer (code is optional)
- GUIDE: tutorial, walkthrough, architectural explanation, or step-by-step instructions
- DISCUSSION_SUMMARY: general discussion with valuable insights, multiple perspectives, but no single answer

Rules:
- If the thread has stack traces, error messages, or debugging, classify TROUBLESHOOTING
- If someone asks "How to..." and gets a direct answer, classify QUESTION_ANSWER
- If it reads like a tutorial or explanation, classify GUIDE
- If multiple people share opinions or experiences with no single answer, classify DISCUSSION_SUMMARY
- Greetings, jokes, fewer than two substantive messages, classify NOISE
- When uncertain, classify QUESTION_ANSWER

Respond with a single category name, nothing else.`

const evaluatorSystemPrompt = `You are evaluating a community discussion thread.

Determine:
1. has_solution: does anyone provide a concrete answer, solution, or explanation?
2. has_code: is there a code snippet, config change, or command?
3. is_resolved: did the original poster confirm it helped, or is the answer clearly correct?
4. reasoning: brief explanation, 2-3 sentences.

Respond with ONLY a JSON object:
{"has_solution": true/false, "has_code": true/false, "is_resolved": true/false, "reasoning": "..."}`

const compilerSystemPromptTemplate = `You are a knowledge compiler. Given a community discussion thread, extract structured knowledge for article type %s.

For TROUBLESHOOTING: symptom is the exact error, diagnosis is the root cause, solution is the step-by-step fix.
For QUESTION_ANSWER: symptom is the question, diagnosis is the context, solution is the answer.
For GUIDE: symptom is the topic, diagnosis is prerequisites, solution is the guide content.
For DISCUSSION_SUMMARY: symptom is the topic, diagnosis is the perspectives shared, solution is the takeaways.

Rules:
- language is the primary programming language, or "general" if no code is involved
- tags are 3-7 lowercase kebab-case tags
- confidence is 0.9+ for clear/confirmed, 0.7-0.9 for good but with gaps, 0.5-0.7 for uncertain
- thread_summary is one line, at most 100 characters
- do not invent content that was not actually discussed

Respond with ONLY a JSON object matching:
{"article_type": "...", "symptom": "...", "diagnosis": "...", "solution": "...", "code_snippet": "...", "language": "...", "framework": "...", "tags": ["..."], "confidence": 0.0, "thread_summary": "...", "source_url": ""}`

func formatThread(thread []model.RawMessage) string {
	var b strings.Builder
	for _, m := range thread {
		author := m.AuthorHandle
		if len(author) > 8 {
			author = author[:8]
		}
		fmt.Fprintf(&b, "[%s] %s: %s\n", m.Timestamp.Format("2006-01-02T15:04:05Z"), author, m.Content)
	}
	return b.String()
}

// Classifier routes a thread through the router's system prompt.
type Classifier struct {
	Adapter *gcpclient.GenAIAdapter
}

func (c *Classifier) Classify(ctx context.Context, thread []model.RawMessage) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, classifyTimeout)
	defer cancel()
	prompt := fmt.Sprintf("Classify this thread:\n\n%s", formatThread(thread))
	return c.Adapter.GenerateContent(ctx, routerSystemPrompt, prompt)
}

// Evaluator judges a thread's substance through the evaluator's system
// prompt. articleType is accepted for interface symmetry with Compiler but
// unused — the evaluator judges substance independent of article type.
type Evaluator struct {
	Adapter *gcpclient.GenAIAdapter
}

func (e *Evaluator) Evaluate(ctx context.Context, thread []model.RawMessage, _ model.ArticleType) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, evaluateTimeout)
	defer cancel()
	prompt := fmt.Sprintf("Evaluate this thread:\n\n%s", formatThread(thread))
	return e.Adapter.GenerateJSON(ctx, evaluatorSystemPrompt, prompt, 300)
}

// Compiler extracts structured knowledge through the compiler's
// type-parameterized system prompt.
type Compiler struct {
	Adapter *gcpclient.GenAIAdapter
}

func (c *Compiler) Compile(ctx context.Context, thread []model.RawMessage, articleType model.ArticleType) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, compileTimeout)
	defer cancel()
	systemPrompt := fmt.Sprintf(compilerSystemPromptTemplate, articleType)
	prompt := fmt.Sprintf("Compile this thread:\n\n%s", formatThread(thread))
	return c.Adapter.GenerateJSON(ctx, systemPrompt, prompt, 1500)
}
