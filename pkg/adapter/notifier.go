package adapter

import (
	"context"
	"io"
	"sync"

	"github.com/fatih/color"
)

// TerminalNotifier prints transient notices as highlighted lines
type TerminalNotifier struct {
	mu  sync.Mutex
	w   io.Writer
	tag *color.Color
}

func NewTerminalNotifier(w io.Writer) *TerminalNotifier {
	return &TerminalNotifier{
		w:   w,
		tag: color.New(color.FgYellow, color.Bold),
	}
}

func (n *TerminalNotifier) Notify(ctx context.Context, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, _ = n.tag.Fprint(n.w, "» ")
	_, _ = io.WriteString(n.w, message+"\n")
}
