package utils

import "strings"

// charsPerToken is the rough size of a token for English prose and tables.
const charsPerToken = 4

// CountTokens estimates the tokens a model will see for text. Any non-empty
// text counts as at least one token.
func CountTokens(text string) int {
	n := len([]rune(text))
	if n == 0 {
		return 0
	}
	if n < charsPerToken {
		return 1
	}
	return n / charsPerToken
}

// TruncateToTokenLimit cuts text to about limit tokens. When a line break
// falls in the second half of the kept text, the cut is made there so
// Markdown tables are not split mid-row.
func TruncateToTokenLimit(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(text)
	max := limit * charsPerToken
	if max >= len(runes) {
		return text
	}
	kept := string(runes[:max])
	if i := strings.LastIndexByte(kept, '\n'); i >= len(kept)/2 {
		return kept[:i]
	}
	return kept
}

// TokenBreakdown estimates tokens per labelled section.
func TokenBreakdown(sections map[string]string) map[string]int {
	out := make(map[string]int, len(sections))
	for k, v := range sections {
		out[k] = CountTokens(v)
	}
	return out
}
