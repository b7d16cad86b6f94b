package textproc

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	spaceBeforePunct = regexp.MustCompile(`\s+([,.!?])`)
	sentenceBoundary = regexp.MustCompile(`([.!?])([A-Za-z])`)
	afterSentenceEnd = regexp.MustCompile(`([.!?]\s+)([a-z])`)
	standaloneI      = regexp.MustCompile(`\bi\b`)
	terminalPunct    = regexp.MustCompile(`[.!?]$`)
)

// Cleanup normalizes a raw transcript: collapses space before punctuation,
// separates run-together sentences, capitalizes sentence starts and the
// pronoun "I", and ensures the text ends with terminal punctuation. Empty
// or whitespace-only input yields an empty string.
func Cleanup(text string) string {
	cleaned := strings.TrimSpace(text)
	if cleaned == "" {
		return ""
	}

	cleaned = spaceBeforePunct.ReplaceAllString(cleaned, "$1")
	cleaned = sentenceBoundary.ReplaceAllString(cleaned, "$1 $2")
	cleaned = afterSentenceEnd.ReplaceAllStringFunc(cleaned, strings.ToUpper)
	cleaned = standaloneI.ReplaceAllString(cleaned, "I")
	cleaned = capitalizeFirst(cleaned)

	if !terminalPunct.MatchString(cleaned) {
		cleaned += "."
	}

	return cleaned
}

func capitalizeFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
