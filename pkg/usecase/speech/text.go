package speech

import (
	"regexp"
	"strings"
)

var (
	codeTagPattern = regexp.MustCompile(`(?is)\[CODE\].*?\[/CODE\]`)
	urlPattern     = regexp.MustCompile(`(?i)https?://[^\s)"'<>]+`)
	sentenceBreak  = regexp.MustCompile(`[.!?]\s+`)
)

// CleanText strips tagged code blocks and raw URLs so they are not read aloud
func CleanText(text string) string {
	text = codeTagPattern.ReplaceAllString(text, "")
	text = urlPattern.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// SplitSentences splits text after each run of '.', '!' or '?' that is followed by
// whitespace. Blank pieces are dropped.
func SplitSentences(text string) []string {
	var out []string
	last := 0
	for _, m := range sentenceBreak.FindAllStringIndex(text, -1) {
		out = appendSentence(out, text[last:m[0]+1])
		last = m[1]
	}
	return appendSentence(out, text[last:])
}

func appendSentence(out []string, s string) []string {
	if strings.TrimSpace(s) == "" {
		return out
	}
	return append(out, s)
}
