package pretranslate

import (
	"strings"
	"unicode"
)

// Split cuts text into pieces of at most maxChars runes, preferring clause
// (blank line) boundaries, then sentence ends, then whitespace. maxChars <= 0
// returns the whole text.
func Split(text string, maxChars int) []string {
	text = strings.TrimSpace(text)
	if maxChars <= 0 || len([]rune(text)) <= maxChars {
		return []string{text}
	}

	var parts []string
	remaining := text
	for len([]rune(remaining)) > maxChars {
		cut := splitPoint(remaining, maxChars)
		if part := strings.TrimSpace(remaining[:cut]); part != "" {
			parts = append(parts, part)
		}
		remaining = strings.TrimSpace(remaining[cut:])
	}
	if remaining != "" {
		parts = append(parts, remaining)
	}
	return parts
}

// splitPoint returns a byte offset in text at or before maxChars runes.
func splitPoint(text string, maxChars int) int {
	runes := []rune(text)
	window := string(runes[:maxChars])

	if idx := strings.LastIndex(window, "\n\n"); idx > 0 {
		return idx + 2
	}

	wr := []rune(window)
	for i := len(wr) - 2; i > 0; i-- {
		if (wr[i] == '.' || wr[i] == ';' || wr[i] == '!' || wr[i] == '?') && unicode.IsSpace(wr[i+1]) {
			return len(string(wr[:i+1]))
		}
	}
	for i := len(wr) - 1; i > 0; i-- {
		if unicode.IsSpace(wr[i]) {
			return len(string(wr[:i]))
		}
	}
	return len(window)
}
