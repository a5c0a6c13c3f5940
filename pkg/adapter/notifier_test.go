package adapter_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/m-mizutani/chatterbox/pkg/adapter"
	"github.com/m-mizutani/gt"
)

func TestTerminalNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := adapter.NewTerminalNotifier(&buf)
	n.Notify(context.Background(), "Chat cleared")
	gt.S(t, buf.String()).Contains("Chat cleared\n")
}
