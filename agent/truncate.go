package agent

import (
	"fmt"

	"github.com/chronosim/chronosim/model"
)

// charsPerToken is the usual rough ratio for English text.
const charsPerToken = 4

// EstimateTokens gives an approximate token count for a string.
func EstimateTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	return (len(text) + charsPerToken - 1) / charsPerToken
}

// EstimateRequestTokens approximates the size of a full request, with a
// small per-message overhead for role framing.
func EstimateRequestTokens(messages []model.Message) int {
	total := 0
	for _, m := range messages {
		total += 4 + EstimateTokens(m.Content)
		for _, a := range m.Attachments {
			total += 8 + EstimateTokens(a.Name)
		}
	}
	return total
}

// TruncateMiddle trims content to roughly maxTokens by keeping the head and
// tail halves and dropping the middle, with an elision marker noting how
// much was removed.
func TruncateMiddle(content string, maxTokens int) string {
	if maxTokens <= 0 {
		return content
	}
	maxChars := maxTokens * charsPerToken
	if len(content) <= maxChars {
		return content
	}
	half := maxChars / 2
	removed := len(content) - maxChars
	return content[:half] +
		fmt.Sprintf("\n... [%d characters elided] ...\n", removed) +
		content[len(content)-half:]
}
