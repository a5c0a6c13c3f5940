package chat

import (
	"regexp"
	"strings"

	"github.com/m-mizutani/chatterbox/pkg/model"
)

const maxImagePrompt = 100

var (
	fencedCodePattern  = regexp.MustCompile("```(\\w+)\\n([\\s\\S]*?)\\n```")
	memoryPattern      = regexp.MustCompile(`(?is)\[memory\](.*?)\[/memory\]`)
	userImageWords     = regexp.MustCompile(`(?i)show me|generate|image of|picture of|image|picture`)
	replyImageWords    = regexp.MustCompile(`(?i)here's an image of|image|to enjoy visually`)
	titleMarkupPattern = regexp.MustCompile("[#_*`]")
)

// WrapCode rewrites a reply to a code request as a single tagged code block. A reply
// without a fenced block is wrapped whole as javascript.
func WrapCode(reply string) string {
	if m := fencedCodePattern.FindStringSubmatch(reply); m != nil {
		return "[CODE] ```" + m[1] + "\n" + m[2] + "\n``` [/CODE]"
	}
	return "[CODE] ```javascript\n" + reply + "\n``` [/CODE]"
}

// ImagePrompt derives the prompt of an image request. The subject of an explicit
// request wins. Otherwise request keywords are stripped from the user text, and when
// that leaves almost nothing the reply is used instead.
func ImagePrompt(userText, reply string) string {
	lower := strings.ToLower(userText)

	prompt, _ := model.MatchImagePrompt(lower)
	if prompt == "" {
		prompt = strings.TrimSpace(userImageWords.ReplaceAllString(lower, ""))
		lowerReply := strings.ToLower(reply)
		if len([]rune(prompt)) < 5 && strings.Contains(lowerReply, "image") {
			prompt = strings.TrimSpace(replyImageWords.ReplaceAllString(lowerReply, ""))
		}
	}

	if r := []rune(prompt); len(r) > maxImagePrompt {
		prompt = string(r[:maxImagePrompt])
	}
	return prompt
}

// ParseMemories returns the trimmed bodies of every [memory]...[/memory] directive
func ParseMemories(text string) []string {
	var found []string
	for _, m := range memoryPattern.FindAllStringSubmatch(text, -1) {
		found = append(found, strings.TrimSpace(m[1]))
	}
	return found
}

// StripMemories removes every memory directive from text
func StripMemories(text string) string {
	return memoryPattern.ReplaceAllString(text, "")
}

// SessionTitle derives a session name from the first AI message
func SessionTitle(messages []*model.Message) string {
	title := ""
	for _, m := range messages {
		if m.Role == model.RoleAI {
			title = strings.TrimSpace(titleMarkupPattern.ReplaceAllString(m.Content, ""))
			break
		}
	}
	if title == "" {
		return model.DefaultSessionName
	}
	if r := []rune(title); len(r) > 50 {
		title = string(r[:50]) + "..."
	}
	return title
}
