package extraction

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	lineBreakRun = regexp.MustCompile(`\s*\n\s*`)
	spaceRun     = regexp.MustCompile(`[^\S\n]+`)
)

// Normalize collapses whitespace runs that contain a line break into a single
// '\n', collapses every other whitespace run into a single space, and trims
// the result.
func Normalize(text string) string {
	if text == "" {
		return ""
	}
	text = lineBreakRun.ReplaceAllString(text, "\n")
	text = spaceRun.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// Truncate caps text at limit characters without splitting a UTF-8 sequence.
// A non-positive limit disables truncation.
func Truncate(text string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}
	n := 0
	for i := range text {
		if n == limit {
			return text[:i]
		}
		n++
	}
	return text
}
