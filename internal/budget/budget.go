// Package budget estimates prompt sizes in tokens. Backends use different tokenizers, so the
// estimate is a character heuristic: ASCII text costs about one token per 4
// characters while Devanagari and other non-ASCII scripts cost about one
// token per 2 characters.
package budget

import (
	"unicode/utf8"

	"github.com/cloudwego/eino/schema"
)

const (
	// asciiPerToken is the character-to-token ratio for ASCII text.
	asciiPerToken = 4

	// otherPerToken is the character-to-token ratio for non-ASCII runes.
	// Devanagari rarely merges into long BPE tokens.
	otherPerToken = 2

	// messageOverhead is the per-message framing cost in most chat APIs.
	messageOverhead = 4

	// DefaultMaxPromptTokens is the default prompt size above which the
	// answer generator logs a warning.
	DefaultMaxPromptTokens = 6000
)

// Estimate returns a rough token count for s.
func Estimate(s string) int {
	if s == "" {
		return 0
	}
	ascii, other := 0, 0
	for _, r := range s {
		if r < utf8.RuneSelf {
			ascii++
		} else {
			other++
		}
	}
	n := ascii/asciiPerToken + (other+otherPerToken-1)/otherPerToken
	if n == 0 {
		return 1
	}
	return n
}

// EstimateMessages returns the estimated total token count for msgs,
// summing role and content plus a fixed per-message overhead.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		total += messageOverhead
		total += Estimate(string(m.Role))
		total += Estimate(m.Content)
	}
	return total
}
