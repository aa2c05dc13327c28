package quality

import (
	"strings"
	"testing"

	"github.com/threadloom/threadloom/internal/model"
)

func strongArticle(articleType model.ArticleType) *model.CompiledArticle {
	return &model.CompiledArticle{
		ArticleType:   articleType,
		Symptom:       "build fails with a module resolution error",
		Diagnosis:     strings.Repeat("the lockfile pins a transitive dependency that was yanked upstream ", 2),
		Solution:      strings.Repeat("regenerate the lockfile and pin the replacement release explicitly ", 4),
		CodeSnippet:   strings.Repeat("npm install --save-exact left-pad@1.3.0\n", 2),
		Language:      "javascript",
		Tags:          []string{"npm", "lockfile", "dependencies", "build-failure", "node"},
		Confidence:    0.9,
		ThreadSummary: "fixing a build broken by a yanked transitive dependency",
	}
}

func TestScore_NilArticleIsZero(t *testing.T) {
	if got := Score(nil); got != 0 {
		t.Fatalf("Score(nil) = %v, want 0", got)
	}
}

func TestScore_Clamped(t *testing.T) {
	// Confidence outside [0,1] is the only input that could push the sum
	// past the bounds; the scorer must clamp rather than propagate it.
	a := strongArticle(model.ArticleTroubleshooting)
	a.Confidence = 5.0
	if got := Score(a); got > 1 {
		t.Fatalf("Score with overrange confidence = %v, want <= 1", got)
	}

	a.Confidence = -5.0
	if got := Score(a); got < 0 {
		t.Fatalf("Score with negative confidence = %v, want >= 0", got)
	}
}

func TestScore_StrongTroubleshootingPassesThreshold(t *testing.T) {
	got := Score(strongArticle(model.ArticleTroubleshooting))
	if got < Threshold {
		t.Fatalf("Score(strong troubleshooting) = %v, want >= %v", got, Threshold)
	}
}

func TestScore_CodeWeightMonotoneForTroubleshooting(t *testing.T) {
	// Holding every other field fixed, a longer code snippet must never
	// lower the score: none < short (<=50 chars) < long (>50 chars).
	base := strongArticle(model.ArticleTroubleshooting)

	base.CodeSnippet = ""
	none := Score(base)

	base.CodeSnippet = "npm ci"
	short := Score(base)

	base.CodeSnippet = strings.Repeat("npm install --save-exact left-pad@1.3.0\n", 3)
	long := Score(base)

	if !(none < short && short < long) {
		t.Fatalf("code weight not strictly monotone: none=%v short=%v long=%v", none, short, long)
	}
}

func TestScore_NonTroubleshootingRedistributesCodeWeight(t *testing.T) {
	// With no code at all, a Q&A article earns more from its solution
	// than a troubleshooting one does, because the code weight moves
	// onto the solution component.
	ts := strongArticle(model.ArticleTroubleshooting)
	ts.CodeSnippet = ""
	qa := strongArticle(model.ArticleQuestionAnswer)
	qa.CodeSnippet = ""

	if Score(qa) <= Score(ts) {
		t.Fatalf("codeless Q&A scored %v, troubleshooting %v; want Q&A higher", Score(qa), Score(ts))
	}
}

func TestScore_NonTroubleshootingCodeBonus(t *testing.T) {
	qa := strongArticle(model.ArticleQuestionAnswer)
	qa.CodeSnippet = ""
	without := Score(qa)

	qa.CodeSnippet = strings.Repeat("console.log(process.version)\n", 3)
	with := Score(qa)

	if with-without < 0.04 || with-without > 0.06 {
		t.Fatalf("code bonus = %v, want 0.05", with-without)
	}
}

func TestScore_EmptyArticleScoresLow(t *testing.T) {
	a := &model.CompiledArticle{ArticleType: model.ArticleTroubleshooting}
	if got := Score(a); got >= Threshold {
		t.Fatalf("Score(empty article) = %v, want < %v", got, Threshold)
	}
}

func TestScore_RoundedToTwoDecimals(t *testing.T) {
	a := &model.CompiledArticle{
		ArticleType: model.ArticleTroubleshooting,
		Confidence:  0.333,
	}
	got := Score(a)
	rounded := float64(int(got*100+0.5)) / 100
	if got != rounded {
		t.Fatalf("Score = %v, want value rounded to two decimals", got)
	}
}
