package speech

import (
	"context"
	"sync"
	"time"

	"github.com/m-mizutani/chatterbox/pkg/adapter"
	"github.com/m-mizutani/chatterbox/pkg/interfaces"
	"github.com/m-mizutani/chatterbox/pkg/model"
	"github.com/m-mizutani/chatterbox/pkg/utils/logging"
)

const (
	slideshowInterval = 10 * time.Second
	slideshowSuffix   = ", origami"
	maxPromptLength   = 100
)

// Slideshow shows a fresh image for the latest message every interval while voice
// chat is open
type Slideshow struct {
	builder     *adapter.ImageURLBuilder
	lastMessage func(ctx context.Context) string
	show        func(ctx context.Context, url string)
	loader      interfaces.ImageLoader
	notifier    interfaces.Notifier
	interval    time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

type SlideshowOption func(*Slideshow)

func WithSlideshowInterval(d time.Duration) SlideshowOption {
	return func(s *Slideshow) {
		s.interval = d
	}
}

// WithSlideshowLoader verifies each image before showing it
func WithSlideshowLoader(l interfaces.ImageLoader, n interfaces.Notifier) SlideshowOption {
	return func(s *Slideshow) {
		s.loader = l
		s.notifier = n
	}
}

func NewSlideshow(builder *adapter.ImageURLBuilder, lastMessage func(ctx context.Context) string, show func(ctx context.Context, url string), opts ...SlideshowOption) *Slideshow {
	s := &Slideshow{
		builder:     builder,
		lastMessage: lastMessage,
		show:        show,
		interval:    slideshowInterval,
		notifier:    interfaces.NotifierFunc(func(context.Context, string) {}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SlideshowPrompt derives the slideshow prompt from a message
func SlideshowPrompt(message string) string {
	prompt, _ := model.MatchImagePrompt(message)
	prompt += slideshowSuffix
	if r := []rune(prompt); len(r) > maxPromptLength {
		prompt = string(r[:maxPromptLength])
	}
	return prompt
}

// Start (re)starts the slideshow with a prompt taken from the latest message
func (s *Slideshow) Start(ctx context.Context) {
	last := s.lastMessage(ctx)
	if last == "" {
		last = "default scene"
	}
	prompt := SlideshowPrompt(last)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.mu.Lock()
	prevCancel, prevDone := s.cancel, s.done
	s.cancel, s.done = cancel, done
	s.mu.Unlock()

	if prevCancel != nil {
		prevCancel()
		<-prevDone
	}

	go func() {
		defer close(done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.update(runCtx, prompt)
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				s.update(runCtx, prompt)
			}
		}
	}()
}

func (s *Slideshow) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (s *Slideshow) update(ctx context.Context, prompt string) {
	url := s.builder.Build(adapter.ImageParams{
		Prompt: prompt,
		Width:  512,
		Height: 512,
		Seed:   adapter.RandomSeed(),
	})

	if s.loader != nil {
		if _, err := s.loader.Load(ctx, url); err != nil {
			if ctx.Err() != nil {
				return
			}
			logging.From(ctx).Warn("slideshow image failed", "error", err, "url", url)
			s.notifier.Notify(ctx, "Failed to load slideshow image")
			return
		}
	}
	if ctx.Err() != nil {
		return
	}
	s.show(ctx, url)
}
