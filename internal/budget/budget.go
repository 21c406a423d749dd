// Package budget provides token estimation and context trimming for the
// answer pipeline. Because the pipeline supports multiple LLM backends
// with different tokenizers, it uses a conservative character-based
// heuristic: 1 token ≈ 4 characters of English prose. This deliberately
// under-estimates so prompts keep headroom for model-specific overhead.
package budget

import (
	"strings"

	"github.com/cloudwego/eino/schema"
)

const (
	// charsPerToken is the conservative character-to-token ratio used for
	// estimation. 4 chars/token is standard for English prose.
	charsPerToken = 4

	// DefaultMaxContextChars caps the formatted retrieval context handed
	// to the generator. Matches roughly 750 tokens of source material,
	// which leaves ample room for the question and the answer.
	DefaultMaxContextChars = 3000
)

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EstimateMessages returns the estimated total token count for a slice of
// schema.Message values, summing role + content for each message.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		// Each message has a small per-message overhead (~4 tokens in most APIs).
		total += 4
		total += Estimate(string(m.Role))
		total += Estimate(m.Content)
	}
	return total
}

// TruncateContext cuts s to at most maxChars, preferring to cut at the
// last whole word inside the limit. Returns s unchanged when it fits.
func TruncateContext(s string, maxChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultMaxContextChars
	}
	if len(s) <= maxChars {
		return s
	}
	cut := s[:maxChars]
	if idx := strings.LastIndexByte(cut, ' '); idx > maxChars/2 {
		cut = cut[:idx]
	}
	return cut
}

// FitSections assembles sections into one context string separated by
// blank lines, dropping trailing sections once maxChars is reached. The
// section that crosses the limit is truncated rather than dropped, so the
// highest-ranked material always survives whole-first.
func FitSections(sections []string, maxChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultMaxContextChars
	}

	var b strings.Builder
	for _, sec := range sections {
		sep := 0
		if b.Len() > 0 {
			sep = 2
		}
		remaining := maxChars - b.Len() - sep
		if remaining <= 0 {
			break
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(TruncateContext(sec, remaining))
		if len(sec) > remaining {
			break
		}
	}
	return b.String()
}
