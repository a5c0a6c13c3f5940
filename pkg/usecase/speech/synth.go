package speech

import (
	"context"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/chatterbox/pkg/interfaces"
	"github.com/m-mizutani/chatterbox/pkg/model"
	"github.com/m-mizutani/chatterbox/pkg/utils/logging"
)

const defaultKeepAlive = 10 * time.Second

// VoiceSource provides the persisted voice settings
type VoiceSource interface {
	Voice(ctx context.Context) model.Voice
}

// KeepAliver is implemented by engines that need a periodic nudge during long speech
type KeepAliver interface {
	KeepAlive(ctx context.Context)
}

// Synthesizer speaks one utterance queue at a time. Starting new speech cancels the
// queue in flight.
type Synthesizer struct {
	engine    interfaces.SpeechEngine
	voices    VoiceSource
	notifier  interfaces.Notifier
	keepAlive time.Duration

	mu       sync.Mutex
	gen      uint64
	cancel   context.CancelFunc
	done     chan struct{}
	speaking string
	warned   bool
}

type Option func(*Synthesizer)

func WithNotifier(n interfaces.Notifier) Option {
	return func(s *Synthesizer) {
		s.notifier = n
	}
}

func WithKeepAliveInterval(d time.Duration) Option {
	return func(s *Synthesizer) {
		s.keepAlive = d
	}
}

// NewSynthesizer creates a synthesizer. A nil engine makes every call fail with
// model.ErrUnsupported.
func NewSynthesizer(engine interfaces.SpeechEngine, voices VoiceSource, opts ...Option) *Synthesizer {
	s := &Synthesizer{
		engine:    engine,
		voices:    voices,
		notifier:  interfaces.NotifierFunc(func(context.Context, string) {}),
		keepAlive: defaultKeepAlive,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Available reports whether speech synthesis is supported
func (s *Synthesizer) Available() bool {
	return s.engine != nil
}

// Speak starts speaking text. onEnd runs after the utterance finishes or fails, but not
// when it is stopped or superseded.
func (s *Synthesizer) Speak(ctx context.Context, text string, onEnd func()) error {
	return s.start(ctx, []string{text}, onEnd)
}

// SpeakSentences speaks the sentences in order as one queue
func (s *Synthesizer) SpeakSentences(ctx context.Context, sentences []string) error {
	return s.start(ctx, sentences, nil)
}

// Stop cancels any speech in flight and waits for it to end
func (s *Synthesizer) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// Wait blocks until the current speech ends
func (s *Synthesizer) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Speaking reports whether an utterance is active
func (s *Synthesizer) Speaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speaking != ""
}

// Current returns the cleaned text being spoken
func (s *Synthesizer) Current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speaking
}

func (s *Synthesizer) start(ctx context.Context, texts []string, onEnd func()) error {
	if s.engine == nil {
		s.mu.Lock()
		warn := !s.warned
		s.warned = true
		s.mu.Unlock()
		if warn {
			s.notifier.Notify(ctx, "Speech synthesis not supported on this system")
		}
		return goerr.Wrap(model.ErrUnsupported, "speech synthesis is not available")
	}

	// speech outlives the request that started it, only Stop or newer speech ends it
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})

	s.mu.Lock()
	prevCancel, prevDone := s.cancel, s.done
	s.gen++
	gen := s.gen
	s.cancel, s.done = cancel, done
	s.mu.Unlock()

	if prevCancel != nil {
		prevCancel()
		<-prevDone
	}

	go s.run(runCtx, cancel, gen, texts, done, onEnd)
	return nil
}

func (s *Synthesizer) run(ctx context.Context, cancel context.CancelFunc, gen uint64, texts []string, done chan struct{}, onEnd func()) {
	defer close(done)
	defer cancel()
	logger := logging.From(ctx)

	stopWatchdog := s.watchdog(ctx)
	defer stopWatchdog()

	voice := s.voices.Voice(ctx)
	for _, text := range texts {
		clean := CleanText(text)
		if clean == "" {
			continue
		}
		s.setSpeaking(gen, clean)

		err := s.engine.Speak(ctx, model.Utterance{
			Text:  clean,
			Voice: voice.Name,
			Rate:  voice.Speed,
			Pitch: voice.Pitch,
		})
		if ctx.Err() != nil {
			s.finish(gen)
			return
		}
		if err != nil {
			logger.Warn("speech failed", "error", err)
			s.notifier.Notify(ctx, "Speech error: "+err.Error())
			break
		}
	}

	s.finish(gen)
	if onEnd != nil {
		onEnd()
	}
}

// watchdog nudges the engine while speech is active
func (s *Synthesizer) watchdog(ctx context.Context) func() {
	ka, ok := s.engine.(KeepAliver)
	if !ok || s.keepAlive <= 0 {
		return func() {}
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(s.keepAlive)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				logging.From(ctx).Debug("speech keep-alive")
				ka.KeepAlive(ctx)
			}
		}
	}()

	return func() {
		close(stop)
		wg.Wait()
	}
}

func (s *Synthesizer) setSpeaking(gen uint64, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen == gen {
		s.speaking = text
	}
}

func (s *Synthesizer) finish(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen == gen {
		s.speaking = ""
		s.cancel = nil
	}
}
