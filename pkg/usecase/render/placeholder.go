package render

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/briandowns/spinner"
)

// Thinking shows a spinner with label until the returned function is called. A non-empty
// notice is written in its place.
func (r *Renderer) Thinking(ctx context.Context, label string) func(notice string) {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(r.w))
	s.Suffix = " " + label
	if !r.plain {
		s.Start()
	}

	var once sync.Once
	return func(notice string) {
		once.Do(func() {
			s.Stop()
			if notice == "" {
				return
			}
			r.mu.Lock()
			defer r.mu.Unlock()
			_, _ = fmt.Fprintln(r.w, r.style(r.theme.Error, notice))
		})
	}
}
