// Package text provides transcript cleanup for prompting the illustration
// provider. Speech-to-text output carries filler words, stray control
// characters and uneven whitespace that make poor drawing subjects.
package text

import (
	"regexp"
	"strings"
	"unicode"
)

// MaxSubjectRunes bounds the subject passed to the illustration prompt.
const MaxSubjectRunes = 400

// Regex patterns for transcript cleanup.
const (
	fillerRegexPattern     = `(?i)\b(?:um+|uh+|erm+|hmm+)\b[,.]?`
	whitespaceRegexPattern = `\s+`
)

// Punctuation normalizations applied before whitespace collapse.
const (
	emDash       = "—"
	enDash       = "–"
	ellipsisChar = "…"
)

// Sanitizer cleans raw transcripts into illustration subjects.
type Sanitizer struct {
	fillerPattern     *regexp.Regexp
	whitespacePattern *regexp.Regexp
	dashReplacer      *strings.Replacer
}

// NewSanitizer compiles the cleanup patterns once for reuse.
func NewSanitizer() *Sanitizer {
	return &Sanitizer{
		fillerPattern:     regexp.MustCompile(fillerRegexPattern),
		whitespacePattern: regexp.MustCompile(whitespaceRegexPattern),
		dashReplacer: strings.NewReplacer(
			emDash, "-",
			enDash, "-",
			ellipsisChar, "...",
		),
	}
}

// CleanSubject normalizes a transcript for use as a drawing subject. It
// strips filler words and control characters, normalizes punctuation and
// whitespace, and truncates overly long transcripts at a word boundary.
func (s *Sanitizer) CleanSubject(transcript string) string {
	if transcript == "" {
		return transcript
	}

	cleaned := s.fillerPattern.ReplaceAllString(transcript, " ")
	cleaned = stripControlRunes(cleaned)
	cleaned = s.dashReplacer.Replace(cleaned)
	cleaned = s.whitespacePattern.ReplaceAllString(cleaned, " ")
	cleaned = strings.TrimSpace(cleaned)

	return truncateAtWord(cleaned, MaxSubjectRunes)
}

func stripControlRunes(input string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}

		return r
	}, input)
}

// truncateAtWord cuts at the last space before the rune limit so the subject
// never ends mid-word.
func truncateAtWord(input string, limit int) string {
	runes := []rune(input)
	if len(runes) <= limit {
		return input
	}

	truncated := string(runes[:limit])

	lastSpace := strings.LastIndex(truncated, " ")
	if lastSpace > 0 {
		truncated = truncated[:lastSpace]
	}

	return strings.TrimSpace(truncated)
}
