package adapter_test

import (
	"errors"
	"testing"

	"github.com/m-mizutani/chatterbox/pkg/adapter"
	"github.com/m-mizutani/chatterbox/pkg/model"
	"github.com/m-mizutani/gt"
)

func TestParseTranscriptLine(t *testing.T) {
	testCases := []struct {
		name string
		line string
		want model.Transcript
		ok   bool
	}{
		{"plain text is final", "hello there", model.Transcript{Text: "hello there", Final: true}, true},
		{"json final", `{"text": "turn on the lights"}`, model.Transcript{Text: "turn on the lights", Final: true}, true},
		{"json partial", `{"partial": "turn on"}`, model.Transcript{Text: "turn on"}, true},
		{"json empty", `{"partial": ""}`, model.Transcript{}, false},
		{"blank", "   ", model.Transcript{}, false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := adapter.ParseTranscriptLine(tc.line)
			gt.Equal(t, ok, tc.ok)
			gt.Equal(t, got, tc.want)
		})
	}
}

func TestNewCommandRecognizerRequiresCommand(t *testing.T) {
	_, err := adapter.NewCommandRecognizer("")
	gt.True(t, errors.Is(err, model.ErrUnsupported))
}
