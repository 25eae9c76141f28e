// Package budget estimates prompt sizes and trims chat history and retrieved
// context so a prompt fits the model's input window. Backends use different
// tokenizers, so estimation uses a conservative heuristic of roughly four
// characters per token, counted in runes so non-Latin text is not
// under-counted.
package budget

import (
	"unicode/utf8"

	"github.com/cloudwego/eino/schema"
)

const (
	// charsPerToken is the character-to-token ratio used for estimation.
	charsPerToken = 4

	// messageOverhead is the per-message framing cost in most chat APIs.
	messageOverhead = 4

	// DefaultMaxContextTokens is the default input budget in tokens. It fits
	// 8k-context models while leaving room for the reply.
	DefaultMaxContextTokens = 6000
)

// Estimate returns a rough token count for s.
func Estimate(s string) int {
	runes := utf8.RuneCountInString(s)
	n := runes / charsPerToken
	if n == 0 && runes > 0 {
		return 1
	}
	return n
}

// EstimateMessage returns the estimated token cost of one message,
// including role and framing overhead.
func EstimateMessage(m *schema.Message) int {
	return messageOverhead + Estimate(string(m.Role)) + Estimate(m.Content)
}

// EstimateMessages returns the estimated total token count of msgs.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		total += EstimateMessage(m)
	}
	return total
}

// TrimHistory drops the oldest history messages until fixed + history fits
// within maxTokens. fixed holds messages that are never dropped (system
// prompt, current question). The returned history never starts with an
// assistant turn, since several backends reject a conversation that does.
//
// If fixed alone exceeds the budget the result is empty; callers should
// warn separately.
func TrimHistory(fixed, history []*schema.Message, maxTokens int) []*schema.Message {
	if len(history) == 0 {
		return history
	}

	remaining := maxTokens - EstimateMessages(fixed)
	used := EstimateMessages(history)
	for len(history) > 0 && used > remaining {
		used -= EstimateMessage(history[0])
		history = history[1:]
	}
	for len(history) > 0 && history[0].Role == schema.Assistant {
		history = history[1:]
	}
	return history
}

// FitContext returns how many of the ranked context passages fit in
// available tokens, taking them in order. Each passage is charged its
// estimated size plus separatorTokens.
func FitContext(passages []string, separatorTokens, available int) int {
	n := 0
	for _, p := range passages {
		cost := Estimate(p) + separatorTokens
		if cost > available {
			break
		}
		available -= cost
		n++
	}
	return n
}
