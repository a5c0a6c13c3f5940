package chat_test

import (
	"strings"
	"testing"

	"github.com/m-mizutani/chatterbox/pkg/model"
	"github.com/m-mizutani/chatterbox/pkg/usecase/chat"
	"github.com/m-mizutani/gt"
)

func TestClassifyIntent(t *testing.T) {
	testCases := []struct {
		text string
		want model.Intent
	}{
		{"hello", model.Intent{}},
		{"generate an image of a red fox", model.Intent{Image: true}},
		{"Show me your cat", model.Intent{Image: true}},
		{"can you write some code", model.Intent{Code: true}},
		{"write a function to sort", model.Intent{Code: true}},
		{"write a poem", model.Intent{}},
		{"write a script and a picture", model.Intent{Code: true, Both: true}},
	}
	for _, tc := range testCases {
		t.Run(tc.text, func(t *testing.T) {
			gt.Equal(t, model.ClassifyIntent(tc.text), tc.want)
		})
	}
}

func TestImagePrompt(t *testing.T) {
	gt.Equal(t, chat.ImagePrompt("Generate an image of A Red Fox", ""), "a red fox")
	gt.Equal(t, chat.ImagePrompt("display a picture for my mom", ""), "my mom")
	gt.Equal(t, chat.ImagePrompt("show me an image", "Here's an image of a castle"), "a castle")
	gt.Equal(t, chat.ImagePrompt("picture", "no pictures here"), "")
	gt.Equal(t, len([]rune(chat.ImagePrompt("generate an image of "+strings.Repeat("z", 200), ""))), 100)
}

func TestParseAndStripMemories(t *testing.T) {
	text := "A [memory] likes tea [/memory] B [MEMORY]has a dog[/MEMORY]"
	gt.Equal(t, chat.ParseMemories(text), []string{"likes tea", "has a dog"})
	gt.Equal(t, chat.StripMemories(text), "A  B ")
	gt.A(t, chat.ParseMemories("nothing")).Length(0)
}

func TestWrapCode(t *testing.T) {
	gt.Equal(t, chat.WrapCode("x\n```go\nfunc main() {}\n```"), "[CODE] ```go\nfunc main() {}\n``` [/CODE]")
	gt.Equal(t, chat.WrapCode("plain"), "[CODE] ```javascript\nplain\n``` [/CODE]")
}
