package speech

import (
	"context"
	"strings"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/chatterbox/pkg/interfaces"
	"github.com/m-mizutani/chatterbox/pkg/model"
	"github.com/m-mizutani/chatterbox/pkg/utils/logging"
)

// Listener runs continuous recognition and hands every result to a handler
type Listener struct {
	transcriber interfaces.Transcriber
	notifier    interfaces.Notifier

	mu        sync.Mutex
	gen       uint64
	cancel    context.CancelFunc
	done      chan struct{}
	listening bool
	warned    bool
}

// NewListener creates a listener. A nil transcriber makes Start fail with
// model.ErrUnsupported.
func NewListener(t interfaces.Transcriber, n interfaces.Notifier) *Listener {
	if n == nil {
		n = interfaces.NotifierFunc(func(context.Context, string) {})
	}
	return &Listener{transcriber: t, notifier: n}
}

func (l *Listener) Available() bool {
	return l.transcriber != nil
}

// Start begins listening. It is a no-op while already listening.
func (l *Listener) Start(ctx context.Context, handle func(model.Transcript)) error {
	if l.transcriber == nil {
		l.mu.Lock()
		warn := !l.warned
		l.warned = true
		l.mu.Unlock()
		if warn {
			l.notifier.Notify(ctx, "Speech recognition not supported on this system")
		}
		return goerr.Wrap(model.ErrUnsupported, "speech recognition is not available")
	}

	l.mu.Lock()
	if l.listening {
		l.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	l.gen++
	gen := l.gen
	l.cancel, l.done, l.listening = cancel, done, true
	l.mu.Unlock()

	go func() {
		defer close(done)
		defer cancel()

		err := l.transcriber.Transcribe(runCtx, handle)
		if err != nil && runCtx.Err() == nil {
			logging.From(ctx).Warn("speech recognition failed", "error", err)
			l.notifier.Notify(ctx, "Voice recognition error: "+err.Error())
		}

		l.mu.Lock()
		if l.gen == gen {
			l.listening = false
			l.cancel = nil
		}
		l.mu.Unlock()
	}()
	return nil
}

// Stop ends listening and waits for the transcriber to exit
func (l *Listener) Stop() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.gen++
	l.listening = false
	l.cancel = nil
	l.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (l *Listener) Listening() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.listening
}

// Dictation appends finalized transcripts to an input buffer
type Dictation struct {
	listener *Listener

	mu      sync.Mutex
	text    string
	interim string
}

func NewDictation(l *Listener) *Dictation {
	return &Dictation{listener: l}
}

// Toggle starts dictation when idle and stops it otherwise. It reports whether
// dictation is now active.
func (d *Dictation) Toggle(ctx context.Context) (bool, error) {
	if d.listener.Listening() {
		d.listener.Stop()
		return false, nil
	}
	if err := d.listener.Start(ctx, d.Handle); err != nil {
		return false, err
	}
	return true, nil
}

func (d *Dictation) Stop() {
	d.listener.Stop()
}

// Handle records one recognition result
func (d *Dictation) Handle(t model.Transcript) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !t.Final {
		d.interim = t.Text
		return
	}
	d.interim = ""
	d.text = strings.TrimSpace(d.text + " " + t.Text)
}

// Text returns the dictated text so far
func (d *Dictation) Text() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.text
}

// Take returns the dictated text and empties the buffer
func (d *Dictation) Take() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	text := d.text
	d.text, d.interim = "", ""
	return text
}
