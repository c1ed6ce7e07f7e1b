// Package budget provides token budget estimation and text clamping for the
// prompt assembler and generator. Because cvgen supports several generation
// backends with different tokenizers, this package uses a conservative
// character-based heuristic: 1 token ≈ 4 characters (English prose).
package budget

import (
	"unicode/utf8"

	"github.com/cloudwego/eino/schema"
)

const (
	// charsPerToken is the character-to-token ratio used for estimation.
	charsPerToken = 4

	// DefaultMaxInputTokens is the default prompt budget in tokens. It matches
	// the 512-token input window of GPT-2 class models.
	DefaultMaxInputTokens = 512
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

// KeepHead returns the longest prefix of s whose estimate fits maxTokens.
// The cut never splits a UTF-8 sequence. maxTokens <= 0 yields "".
func KeepHead(s string, maxTokens int) string {
	if Estimate(s) <= maxTokens {
		return s
	}
	if maxTokens <= 0 {
		return ""
	}
	n := min(maxTokens*charsPerToken+charsPerToken-1, len(s))
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// KeepTail returns the longest suffix of s whose estimate fits maxTokens.
// The cut never splits a UTF-8 sequence. maxTokens <= 0 yields "".
func KeepTail(s string, maxTokens int) string {
	if Estimate(s) <= maxTokens {
		return s
	}
	if maxTokens <= 0 {
		return ""
	}
	start := len(s) - min(maxTokens*charsPerToken+charsPerToken-1, len(s))
	for start < len(s) && !utf8.RuneStart(s[start]) {
		start++
	}
	return s[start:]
}
