package model

import (
	"regexp"
	"strings"
)

var imagePromptPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)generate\s(an?\s)?image\s(of|for)\s(.+)`),
	regexp.MustCompile(`(?i)create\s(an?\s)?image\s(of|for)\s(.+)`),
	regexp.MustCompile(`(?i)make\s(an?\s)?image\s(of|for)\s(.+)`),
	regexp.MustCompile(`(?i)show\sme\s(a\s)?picture\s(of|for)\s(.+)`),
	regexp.MustCompile(`(?i)display\s(a\s)?picture\s(of|for)\s(.+)`),
	regexp.MustCompile(`(?i)create\s(a\s)?picture\s(of|for)\s(.+)`),
	regexp.MustCompile(`(?i)make\s(a\s)?picture\s(of|for)\s(.+)`),
	regexp.MustCompile(`(?i)display\s(an?\s)?image\s(of|for)\s(.+)`),
}

// MatchImagePrompt returns the subject of an explicit image request such as
// "generate an image of <subject>".
func MatchImagePrompt(text string) (string, bool) {
	for _, re := range imagePromptPatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return strings.TrimSpace(m[3]), true
		}
	}
	return "", false
}

// Intent is the request classification of an outbound user message
type Intent struct {
	Code  bool
	Image bool
	Both  bool
}

var (
	codeKeywords      = []string{"code", "script", "program"}
	writeAKeywords    = []string{"function", "class", "method", "javascript", "python", "java", "html", "css"}
	imageKeywords     = []string{"image", "picture", "show me", "generate an image"}
	bothImageKeywords = []string{"image", "picture"}
)

// ClassifyIntent decides whether text asks for code, an image, or both
func ClassifyIntent(text string) Intent {
	lower := strings.ToLower(text)
	_, explicitImage := MatchImagePrompt(lower)

	code := containsAny(lower, codeKeywords) ||
		(strings.Contains(lower, "write a") && containsAny(lower, writeAKeywords))

	return Intent{
		Code:  code,
		Image: !code && (explicitImage || containsAny(lower, imageKeywords)),
		Both:  code && (containsAny(lower, bothImageKeywords) || explicitImage),
	}
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
