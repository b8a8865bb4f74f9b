package speech

import (
	"strings"
	"unicode"
)

// SplitSentences splits text after every '.', '!' or '?' that is followed by
// whitespace. Each sentence is trimmed and blank sentences are dropped.
func SplitSentences(text string) []string {
	var out []string
	runes := []rune(text)
	start := 0
	for i := 0; i < len(runes); i++ {
		if !isTerminal(runes[i]) {
			continue
		}
		if i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
			out = appendSentence(out, string(runes[start:i+1]))
			start = i + 1
		}
	}
	return appendSentence(out, string(runes[start:]))
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func appendSentence(out []string, s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return out
	}
	return append(out, s)
}
