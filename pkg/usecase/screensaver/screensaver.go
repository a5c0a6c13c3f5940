package screensaver

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/m-mizutani/chatterbox/pkg/adapter"
	"github.com/m-mizutani/chatterbox/pkg/interfaces"
	"github.com/m-mizutani/chatterbox/pkg/model"
	"github.com/m-mizutani/chatterbox/pkg/utils/logging"
	"golang.org/x/sync/errgroup"
)

const (
	// MaxHistory bounds the number of remembered frames
	MaxHistory = 12

	defaultPromptSpacing = 20 * time.Second
	defaultPromptPoll    = time.Second
	defaultRetryDelay    = 2 * time.Second
	promptRetries        = 3
	maxPromptLength      = 100
)

type State int

const (
	Stopped State = iota
	Running
	Paused
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Paused:
		return "paused"
	default:
		return "stopped"
	}
}

// Frame is the image shown on one of the two alternating surfaces
type Frame struct {
	URL      string
	Prompt   string
	Surface  int
	Fallback bool
}

// Entry is one item of the frame history
type Entry struct {
	URL    string
	Prompt string
}

// Store persists screensaver settings and history
type Store interface {
	ScreensaverSettings(ctx context.Context) model.ScreensaverSettings
	SaveScreensaverSettings(ctx context.Context, settings model.ScreensaverSettings)
	SaveImageHistory(ctx context.Context, images, prompts []string)
	ClearImageHistory(ctx context.Context)
	SetLastCopiedImage(ctx context.Context, dataURL string)
}

// Display presents frames as they are swapped in
type Display interface {
	ShowFrame(ctx context.Context, frame Frame)
}

// Stopper halts an unrelated activity when the screensaver starts (speech)
type Stopper interface {
	Stop()
}

// Status is a snapshot of the screensaver
type Status struct {
	State          State
	AutoPrompt     bool
	ControlsHidden bool
	Fullscreen     bool
	Current        Frame
	History        []Entry
	Settings       model.ScreensaverSettings
}

type runner struct {
	epoch  uint64
	cancel context.CancelFunc
	done   chan struct{}
	reset  chan struct{}
	kick   chan struct{}
	fetch  chan struct{}
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// Screensaver cycles remotely generated images. An image loop refreshes the frame
// every Timer seconds and an optional prompt loop asks the completion endpoint for a
// new prompt at most every 20 seconds. Results that arrive after Stop are discarded.
type Screensaver struct {
	store     Store
	completer interfaces.Completer
	loader    interfaces.ImageLoader
	builder   *adapter.ImageURLBuilder
	clipboard interfaces.Clipboard
	storage   interfaces.Storage
	notifier  interfaces.Notifier
	display   Display
	speech    Stopper
	now       func() time.Time

	timerUnit     time.Duration
	promptSpacing time.Duration
	promptPoll    time.Duration
	retryDelay    time.Duration

	mu             sync.Mutex
	state          State
	epoch          uint64
	run            *runner
	settings       model.ScreensaverSettings
	autoPrompt     bool
	controlsHidden bool
	fullscreen     bool
	surfaces       [2]Frame
	current        int
	currentData    []byte
	history        []Entry
	transitioning  bool
	fetchingPrompt bool
	lastPrompt     time.Time
}

// NewInput contains the dependencies of a screensaver. Clipboard, Storage, Display and
// Speech are optional.
type NewInput struct {
	Store     Store
	Completer interfaces.Completer
	Loader    interfaces.ImageLoader
	Images    *adapter.ImageURLBuilder
	Clipboard interfaces.Clipboard
	Storage   interfaces.Storage
	Notifier  interfaces.Notifier
	Display   Display
	Speech    Stopper
	Clock     func() time.Time
}

type Option func(*Screensaver)

// WithTimerUnit sets the unit of the Timer setting (seconds by default)
func WithTimerUnit(d time.Duration) Option {
	return func(s *Screensaver) {
		s.timerUnit = d
	}
}

// WithPromptSpacing sets the minimum time between automatic prompt fetches
func WithPromptSpacing(d time.Duration) Option {
	return func(s *Screensaver) {
		s.promptSpacing = d
	}
}

// WithPromptPoll sets how often the prompt loop checks whether a fetch is due
func WithPromptPoll(d time.Duration) Option {
	return func(s *Screensaver) {
		s.promptPoll = d
	}
}

// WithRetryDelay sets the fixed delay between prompt fetch attempts
func WithRetryDelay(d time.Duration) Option {
	return func(s *Screensaver) {
		s.retryDelay = d
	}
}

func New(ctx context.Context, input NewInput, opts ...Option) *Screensaver {
	s := &Screensaver{
		store:         input.Store,
		completer:     input.Completer,
		loader:        input.Loader,
		builder:       input.Images,
		clipboard:     input.Clipboard,
		storage:       input.Storage,
		notifier:      input.Notifier,
		display:       input.Display,
		speech:        input.Speech,
		now:           input.Clock,
		timerUnit:     time.Second,
		promptSpacing: defaultPromptSpacing,
		promptPoll:    defaultPromptPoll,
		retryDelay:    defaultRetryDelay,
		autoPrompt:    true,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.builder == nil {
		s.builder = adapter.NewImageURLBuilder("")
	}
	if s.loader == nil {
		s.loader = adapter.NewHTTPImageLoader(nil)
	}
	if s.notifier == nil {
		s.notifier = interfaces.NotifierFunc(func(context.Context, string) {})
	}
	if s.now == nil {
		s.now = time.Now
	}

	s.settings = s.store.ScreensaverSettings(ctx)
	// history never survives a restart
	s.store.ClearImageHistory(ctx)
	return s
}

// Start begins the slideshow. seed becomes the prompt when none is set. Starting a
// running screensaver does nothing.
func (s *Screensaver) Start(ctx context.Context, seed string) error {
	s.mu.Lock()
	if s.state != Stopped {
		s.mu.Unlock()
		return nil
	}
	if strings.TrimSpace(s.settings.Prompt) == "" {
		s.settings.Prompt = truncate(strings.TrimSpace(seed), maxPromptLength)
	}
	s.state = Running
	s.controlsHidden = false
	s.surfaces = [2]Frame{{Surface: 0}, {Surface: 1}}
	s.currentData = nil
	s.epoch++
	s.lastPrompt = s.now()

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r := &runner{
		epoch:  s.epoch,
		cancel: cancel,
		done:   make(chan struct{}),
		reset:  make(chan struct{}, 1),
		kick:   make(chan struct{}, 1),
		fetch:  make(chan struct{}, 1),
	}
	s.run = r
	s.mu.Unlock()

	if s.speech != nil {
		s.speech.Stop()
	}
	logging.From(ctx).Debug("screensaver started", "epoch", r.epoch)

	go func() {
		defer close(r.done)
		g, gctx := errgroup.WithContext(runCtx)
		g.Go(func() error { return s.imageLoop(gctx, r) })
		g.Go(func() error { return s.promptLoop(gctx, r) })
		if err := g.Wait(); err != nil {
			logging.From(ctx).Error("screensaver loop failed", "error", err)
		}
	}()
	return nil
}

// Stop cancels both loops, waits for them and wipes the history
func (s *Screensaver) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.state == Stopped {
		s.mu.Unlock()
		return
	}
	s.state = Stopped
	s.epoch++
	s.controlsHidden = false
	s.fullscreen = false
	s.history = nil
	s.currentData = nil
	r := s.run
	s.run = nil
	s.mu.Unlock()

	if r != nil {
		r.cancel()
		<-r.done
	}
	s.store.ClearImageHistory(ctx)
	logging.From(ctx).Debug("screensaver stopped")
}

// Toggle starts a stopped screensaver or stops a running one
func (s *Screensaver) Toggle(ctx context.Context, seed string) error {
	if s.State() == Stopped {
		return s.Start(ctx, seed)
	}
	s.Stop(ctx)
	return nil
}

func (s *Screensaver) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Status returns a snapshot of the current state
func (s *Screensaver) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	history := make([]Entry, len(s.history))
	copy(history, s.history)
	return Status{
		State:          s.state,
		AutoPrompt:     s.autoPrompt,
		ControlsHidden: s.controlsHidden,
		Fullscreen:     s.fullscreen,
		Current:        s.surfaces[s.current],
		History:        history,
		Settings:       s.settings,
	}
}

// UpdateSettings applies fn to the settings and persists them. A changed timer
// restarts the image interval.
func (s *Screensaver) UpdateSettings(ctx context.Context, fn func(*model.ScreensaverSettings)) model.ScreensaverSettings {
	s.mu.Lock()
	prevTimer := s.settings.Timer
	fn(&s.settings)
	s.settings.Normalize()
	settings := s.settings
	r := s.run
	s.mu.Unlock()

	s.store.SaveScreensaverSettings(ctx, settings)
	if r != nil && settings.Timer != prevTimer {
		signal(r.reset)
	}
	return settings
}

func (s *Screensaver) interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Duration(s.settings.Timer) * s.timerUnit
}

func (s *Screensaver) isCurrent(epoch uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state != Stopped && s.epoch == epoch
}

func (s *Screensaver) isActive(epoch uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == Running && s.epoch == epoch
}

func (s *Screensaver) imageLoop(ctx context.Context, r *runner) error {
	s.fetchImage(ctx, r.epoch, true)

	ticker := time.NewTicker(s.interval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-r.reset:
			ticker.Reset(s.interval())
		case <-r.fetch:
			s.fetchImage(ctx, r.epoch, false)
		case <-ticker.C:
			if s.isActive(r.epoch) {
				s.fetchImage(ctx, r.epoch, true)
			}
		}
	}
}

func (s *Screensaver) promptLoop(ctx context.Context, r *runner) error {
	ticker := time.NewTicker(s.promptPoll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-r.kick:
			s.mu.Lock()
			s.lastPrompt = s.now()
			s.mu.Unlock()
			if s.updatePrompt(ctx, r.epoch) {
				s.fetchImage(ctx, r.epoch, false)
			}
		case <-ticker.C:
			if !s.promptDue(r.epoch) {
				continue
			}
			if s.updatePrompt(ctx, r.epoch) {
				s.fetchImage(ctx, r.epoch, false)
			}
		}
	}
}

func (s *Screensaver) promptDue(epoch uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Running || s.epoch != epoch || !s.autoPrompt || s.fetchingPrompt {
		return false
	}
	return s.now().Sub(s.lastPrompt) >= s.promptSpacing
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
