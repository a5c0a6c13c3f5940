package speech

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/m-mizutani/chatterbox/pkg/model"
	"github.com/m-mizutani/chatterbox/pkg/utils/logging"
)

const defaultSilence = 1500 * time.Millisecond

// SendFunc submits a transcribed utterance as a user message
type SendFunc func(ctx context.Context, text string) error

// VoiceChat sends buffered final transcripts as a user message once the speaker has
// been silent for a while
type VoiceChat struct {
	listener  *Listener
	send      SendFunc
	slideshow *Slideshow
	silence   time.Duration
	display   func(string)

	mu     sync.Mutex
	ctx    context.Context
	gen    uint64
	buffer string
	timer  *time.Timer
}

type VoiceChatOption func(*VoiceChat)

func WithSilence(d time.Duration) VoiceChatOption {
	return func(v *VoiceChat) {
		v.silence = d
	}
}

func WithSlideshow(s *Slideshow) VoiceChatOption {
	return func(v *VoiceChat) {
		v.slideshow = s
	}
}

// WithDisplay receives the pending transcript, interim text included
func WithDisplay(fn func(string)) VoiceChatOption {
	return func(v *VoiceChat) {
		v.display = fn
	}
}

func NewVoiceChat(l *Listener, send SendFunc, opts ...VoiceChatOption) *VoiceChat {
	v := &VoiceChat{
		listener: l,
		send:     send,
		silence:  defaultSilence,
		display:  func(string) {},
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func (v *VoiceChat) Start(ctx context.Context) error {
	v.mu.Lock()
	v.ctx = ctx
	v.gen++
	v.buffer = ""
	v.mu.Unlock()

	if err := v.listener.Start(ctx, v.Handle); err != nil {
		return err
	}
	if v.slideshow != nil {
		v.slideshow.Start(ctx)
	}
	return nil
}

// Stop ends listening, drops any unsent transcript and stops the slideshow
func (v *VoiceChat) Stop() {
	v.listener.Stop()

	v.mu.Lock()
	v.gen++
	v.buffer = ""
	if v.timer != nil {
		v.timer.Stop()
		v.timer = nil
	}
	v.mu.Unlock()

	if v.slideshow != nil {
		v.slideshow.Stop()
	}
}

// Handle records one recognition result and re-arms the silence timer on final ones
func (v *VoiceChat) Handle(t model.Transcript) {
	v.mu.Lock()
	interim := ""
	if t.Final {
		v.buffer += t.Text + " "
		if v.timer != nil {
			v.timer.Stop()
		}
		gen := v.gen
		v.timer = time.AfterFunc(v.silence, func() { v.flush(gen) })
	} else {
		interim = t.Text
	}
	pending := v.buffer + interim
	v.mu.Unlock()

	v.display(pending)
}

func (v *VoiceChat) flush(gen uint64) {
	v.mu.Lock()
	if gen != v.gen {
		v.mu.Unlock()
		return
	}
	text := strings.TrimSpace(v.buffer)
	v.buffer = ""
	v.timer = nil
	ctx := v.ctx
	v.mu.Unlock()

	if text == "" {
		return
	}
	v.display("")

	if err := v.send(ctx, text); err != nil {
		logging.From(ctx).Warn("voice chat send failed", "error", err)
		return
	}
	if v.slideshow != nil && v.isCurrent(gen) {
		v.slideshow.Start(ctx)
	}
}

func (v *VoiceChat) isCurrent(gen uint64) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.gen == gen
}
