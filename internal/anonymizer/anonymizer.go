// Package anonymizer detects and redacts personally identifiable
// information from free-text message content before it reaches the
// extraction graph.
package anonymizer

import (
	"regexp"
	"strings"
)

// Redaction records one substitution applied by Anonymize.
type Redaction struct {
	Kind        string `json:"type"`
	Original    string `json:"original"`
	Replacement string `json:"replacement"`
	Start       int    `json:"start"`
	End         int    `json:"end"`
}

// Result is the output of Anonymize: the rewritten text plus every
// redaction applied to produce it.
type Result struct {
	Text       string
	Redactions []Redaction
}

type patternDef struct {
	kind        string
	re          *regexp.Regexp
	replacement string
}

// patterns is evaluated in order; URL_AUTH runs before EMAIL so an
// authenticated URL is never partially consumed by the email pattern.
var patterns = []patternDef{
	{"URL_AUTH", regexp.MustCompile(`[a-zA-Z][a-zA-Z0-9+.-]*://[^:\s]+:[^@\s]+@\S+`), "[URL_REDACTED]"},
	{"EMAIL", regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`), "[EMAIL]"},
	{"IPV4", regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4]\d|[01]?\d\d?)\.){3}(?:25[0-5]|2[0-4]\d|[01]?\d\d?)\b`), "[IP]"},
	{"IPV6", regexp.MustCompile(`\b(?:[0-9a-fA-F]{1,4}:){7}[0-9a-fA-F]{1,4}\b|\b(?:[0-9a-fA-F]{1,4}:){1,7}:\b|\b::(?:[0-9a-fA-F]{1,4}:){0,5}[0-9a-fA-F]{1,4}\b`), "[IP]"},
	{"PHONE", regexp.MustCompile(`(?:\+?\d{1,3}[-.\s]?)?(?:\(?\d{2,4}\)?[-.\s]?)\d{3,4}[-.\s]?\d{3,4}`), "[PHONE]"},
	{"FILE_PATH", regexp.MustCompile(`(?:/(?:Users|home|root)/[A-Za-z0-9._-]+)(?:/[A-Za-z0-9._/-]*)?`), "[PATH]"},
	{"API_KEY", regexp.MustCompile(`\b(?:sk-[A-Za-z0-9]{20,}|ghp_[A-Za-z0-9]{20,}|xox[bpsar]-[A-Za-z0-9-]+|AIza[A-Za-z0-9_-]{35}|AKIA[A-Z0-9]{16})\b`), "[API_KEY]"},
	{"DISCORD_MENTION", regexp.MustCompile(`@[A-Za-z0-9_]{2,32}(?:#\d{4})?`), "[USER]"},
}

// Anonymize scans text and substitutes every range matching a recognized
// PII pattern with its fixed placeholder token. It is deterministic,
// pure, and never fails: an input with no matches is returned unchanged
// with an empty redaction list. Each pattern runs over the output of the
// previous one, left to right, so an already-redacted span cannot be
// re-matched by a later pattern.
func Anonymize(text string) Result {
	var redactions []Redaction
	result := text

	for _, p := range patterns {
		matches := p.re.FindAllStringIndex(result, -1)
		if len(matches) == 0 {
			continue
		}

		for i := len(matches) - 1; i >= 0; i-- {
			start, end := matches[i][0], matches[i][1]
			original := result[start:end]

			if p.kind == "PHONE" {
				if !isolatedFromDigits(result, start, end) {
					continue
				}
				if countDigits(original) < 7 {
					continue
				}
			}

			if p.kind == "IPV4" && (strings.HasPrefix(original, "127.") || original == "0.0.0.0") {
				continue
			}

			redactions = append(redactions, Redaction{
				Kind:        p.kind,
				Original:    original,
				Replacement: p.replacement,
				Start:       start,
				End:         end,
			})
			result = result[:start] + p.replacement + result[end:]
		}
	}

	return Result{Text: result, Redactions: redactions}
}

// AnonymizeBatch anonymizes every text in texts independently.
func AnonymizeBatch(texts []string) []Result {
	out := make([]Result, len(texts))
	for i, t := range texts {
		out[i] = Anonymize(t)
	}
	return out
}

// isolatedFromDigits stands in for the negative lookaround RE2 lacks
// ((?<!\d) ... (?!\d)): a phone-shaped match touching a digit on either
// side is a fragment of a longer digit run, not a phone number.
func isolatedFromDigits(s string, start, end int) bool {
	if start > 0 && isDigit(s[start-1]) {
		return false
	}
	if end < len(s) && isDigit(s[end]) {
		return false
	}
	return true
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}
