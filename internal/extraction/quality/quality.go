// Package quality implements the deterministic heuristic scorer that
// gates whether a compiled article is substantial enough to persist.
package quality

import (
	"math"

	"github.com/threadloom/threadloom/internal/model"
)

// Threshold is the minimum score a CompiledArticle must reach to pass the
// quality gate.
const Threshold = 0.70

// MaxRetries bounds the compiler <-> quality-gate recompilation loop.
const MaxRetries = 3

// Score computes a deterministic quality score in [0,1] for article,
// using weights that differ by article type. A nil article always scores
// 0. The result is rounded to two decimals and clamped to [0,1].
func Score(article *model.CompiledArticle) float64 {
	if article == nil {
		return 0
	}

	var score float64
	if article.ArticleType == model.ArticleTroubleshooting {
		score = scoreTroubleshooting(article)
	} else {
		score = scoreNonTroubleshooting(article)
	}

	score = math.Round(score*100) / 100
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func scoreTroubleshooting(a *model.CompiledArticle) float64 {
	var score float64

	switch {
	case len(a.Solution) > 200:
		score += 0.25
	case len(a.Solution) > 100:
		score += 0.15
	case len(a.Solution) > 50:
		score += 0.08
	}

	switch {
	case len(a.CodeSnippet) > 50:
		score += 0.20
	case len(a.CodeSnippet) > 0:
		score += 0.10
	}

	score += a.Confidence * 0.20

	switch {
	case len(a.Tags) >= 5:
		score += 0.15
	case len(a.Tags) >= 3:
		score += 0.10
	case len(a.Tags) >= 1:
		score += 0.05
	}

	switch {
	case len(a.Diagnosis) > 80:
		score += 0.10
	case len(a.Diagnosis) > 30:
		score += 0.05
	}

	if len(a.ThreadSummary) > 10 {
		score += 0.10
	}

	return score
}

func scoreNonTroubleshooting(a *model.CompiledArticle) float64 {
	var score float64

	switch {
	case len(a.Solution) > 200:
		score += 0.35
	case len(a.Solution) > 100:
		score += 0.25
	case len(a.Solution) > 50:
		score += 0.15
	}

	score += a.Confidence * 0.20

	switch {
	case len(a.Tags) >= 5:
		score += 0.15
	case len(a.Tags) >= 3:
		score += 0.10
	case len(a.Tags) >= 1:
		score += 0.05
	}

	switch {
	case len(a.Diagnosis) > 80:
		score += 0.15
	case len(a.Diagnosis) > 30:
		score += 0.08
	}

	if len(a.ThreadSummary) > 10 {
		score += 0.10
	}

	if len(a.CodeSnippet) > 50 {
		score += 0.05
	}

	return score
}
