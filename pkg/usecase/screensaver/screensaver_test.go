package screensaver_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/chatterbox/pkg/adapter"
	"github.com/m-mizutani/chatterbox/pkg/model"
	"github.com/m-mizutani/chatterbox/pkg/repository"
	"github.com/m-mizutani/chatterbox/pkg/usecase/screensaver"
	"github.com/m-mizutani/chatterbox/pkg/usecase/store"
	"github.com/m-mizutani/gt"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	gt.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))))
	return buf.Bytes()
}

type completerMock struct {
	mu      sync.Mutex
	calls   int
	replies []string
	errs    []error
}

func (m *completerMock) Complete(ctx context.Context, req *model.ChatRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.calls
	m.calls++
	if i < len(m.errs) && m.errs[i] != nil {
		return "", m.errs[i]
	}
	if len(m.replies) == 0 {
		return "", errors.New("no reply")
	}
	if i >= len(m.replies) {
		i = len(m.replies) - 1
	}
	return m.replies[i], nil
}

func (m *completerMock) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type loaderMock struct {
	mu    sync.Mutex
	data  []byte
	fail  func(url string) bool
	block chan struct{}
	urls  []string
}

func (m *loaderMock) Load(ctx context.Context, url string) ([]byte, error) {
	m.mu.Lock()
	m.urls = append(m.urls, url)
	block := m.block
	fail := m.fail
	m.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail != nil && fail(url) {
		return nil, errors.New("load failed")
	}
	return m.data, nil
}

type notifierMock struct {
	mu       sync.Mutex
	messages []string
}

func (n *notifierMock) Notify(ctx context.Context, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
}

func (n *notifierMock) has(prefix string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, m := range n.messages {
		if strings.HasPrefix(m, prefix) {
			return true
		}
	}
	return false
}

type displayMock struct {
	mu     sync.Mutex
	frames []screensaver.Frame
}

func (d *displayMock) ShowFrame(ctx context.Context, frame screensaver.Frame) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frames = append(d.frames, frame)
}

func (d *displayMock) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.frames)
}

type clipboardMock struct {
	mu   sync.Mutex
	text string
}

func (c *clipboardMock) WriteText(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.text = text
	return nil
}

type memStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
}

type memWriter struct {
	bytes.Buffer
	done func([]byte)
}

func (w *memWriter) Close() error {
	w.done(w.Bytes())
	return nil
}

func (s *memStorage) Put(ctx context.Context, key string) (io.WriteCloser, error) {
	return &memWriter{done: func(b []byte) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.objects[key] = b
	}}, nil
}

func (s *memStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return io.NopCloser(bytes.NewReader(s.objects[key])), nil
}

func (s *memStorage) Location(key string) string { return "mem://" + key }

type stopperMock struct {
	mu      sync.Mutex
	stopped int
}

func (s *stopperMock) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped++
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

type fixture struct {
	store     *store.Store
	completer *completerMock
	loader    *loaderMock
	notifier  *notifierMock
	display   *displayMock
	clipboard *clipboardMock
	storage   *memStorage
	speech    *stopperMock
	ss        *screensaver.Screensaver
}

func setup(t *testing.T, completer *completerMock, opts ...screensaver.Option) *fixture {
	t.Helper()
	ctx := context.Background()
	s, err := store.New(ctx, repository.NewMemory())
	gt.NoError(t, err)

	f := &fixture{
		store:     s,
		completer: completer,
		loader:    &loaderMock{data: pngBytes(t)},
		notifier:  &notifierMock{},
		display:   &displayMock{},
		clipboard: &clipboardMock{},
		storage:   &memStorage{objects: map[string][]byte{}},
		speech:    &stopperMock{},
	}
	base := []screensaver.Option{
		screensaver.WithTimerUnit(time.Hour),
		screensaver.WithPromptSpacing(time.Hour),
		screensaver.WithPromptPoll(5 * time.Millisecond),
		screensaver.WithRetryDelay(time.Millisecond),
	}
	f.ss = screensaver.New(ctx, screensaver.NewInput{
		Store:     s,
		Completer: completer,
		Loader:    f.loader,
		Clipboard: f.clipboard,
		Storage:   f.storage,
		Notifier:  f.notifier,
		Display:   f.display,
		Speech:    f.speech,
	}, append(base, opts...)...)
	t.Cleanup(func() { f.ss.Stop(context.Background()) })
	return f
}

func TestStartFetchesPromptThenImage(t *testing.T) {
	ctx := context.Background()
	f := setup(t, &completerMock{replies: []string{"a neon jellyfish in space"}})

	gt.NoError(t, f.ss.Start(ctx, ""))
	gt.Equal(t, f.ss.State(), screensaver.Running)
	waitFor(t, func() bool { return len(f.ss.Status().History) == 1 })

	st := f.ss.Status()
	gt.Equal(t, st.Current.Prompt, "a neon jellyfish in space")
	gt.True(t, strings.HasPrefix(st.Current.URL, model.DefaultImagePrefix+"a%20neon%20jellyfish%20in%20space?"))
	gt.S(t, st.Current.URL).Contains("width=1920")
	gt.S(t, st.Current.URL).Contains("height=1080")
	gt.S(t, st.Current.URL).Contains("model=flux")
	gt.Equal(t, st.Current.Surface, 1)
	gt.True(t, f.notifier.has("New prompt loaded from API: a neon jellyfish in space"))
	gt.Equal(t, f.speech.stopped, 1)

	images, prompts := f.store.ImageHistory(ctx)
	gt.A(t, images).Length(1)
	gt.Equal(t, prompts[0], "a neon jellyfish in space")
}

func TestStopWipesHistory(t *testing.T) {
	ctx := context.Background()
	f := setup(t, &completerMock{replies: []string{"storm"}})

	gt.NoError(t, f.ss.Start(ctx, ""))
	waitFor(t, func() bool { return len(f.ss.Status().History) == 1 })

	f.ss.Stop(ctx)
	gt.Equal(t, f.ss.State(), screensaver.Stopped)
	gt.A(t, f.ss.Status().History).Length(0)
	images, _ := f.store.ImageHistory(ctx)
	gt.A(t, images).Length(0)
}

func TestPromptFetchRetriesThreeTimes(t *testing.T) {
	ctx := context.Background()

	t.Run("succeeds on third attempt", func(t *testing.T) {
		boom := errors.New("503")
		f := setup(t, &completerMock{errs: []error{boom, boom}, replies: []string{"", "", "lava city"}})
		gt.NoError(t, f.ss.Start(ctx, ""))
		waitFor(t, func() bool { return len(f.ss.Status().History) == 1 })
		gt.Equal(t, f.completer.count(), 3)
		gt.Equal(t, f.ss.Status().Current.Prompt, "lava city")
	})

	t.Run("gives up and keeps seed prompt", func(t *testing.T) {
		f := setup(t, &completerMock{errs: []error{errors.New("a"), errors.New("b"), errors.New("c")}})
		gt.NoError(t, f.ss.Start(ctx, "a quiet lake"))
		waitFor(t, func() bool { return len(f.ss.Status().History) == 1 })
		gt.Equal(t, f.completer.count(), 3)
		gt.Equal(t, f.ss.Status().Current.Prompt, "a quiet lake")
		gt.True(t, f.notifier.has("Couldn't get a new prompt"))
	})

	t.Run("no prompt and no seed leaves the screen empty", func(t *testing.T) {
		f := setup(t, &completerMock{errs: []error{errors.New("a"), errors.New("b"), errors.New("c")}})
		gt.NoError(t, f.ss.Start(ctx, ""))
		waitFor(t, func() bool { return f.completer.count() == 3 })
		time.Sleep(20 * time.Millisecond)
		gt.Equal(t, f.display.count(), 0)
	})
}

func TestPromptIsTruncated(t *testing.T) {
	ctx := context.Background()
	f := setup(t, &completerMock{replies: []string{strings.Repeat("x", 150)}})
	gt.NoError(t, f.ss.Start(ctx, ""))
	waitFor(t, func() bool { return len(f.ss.Status().History) == 1 })
	gt.Equal(t, len(f.ss.Status().Current.Prompt), 100)
}

func TestFailedImageFallsBackAndIsRecorded(t *testing.T) {
	ctx := context.Background()
	f := setup(t, &completerMock{replies: []string{"ghost ship"}})
	f.loader.fail = func(url string) bool { return url != adapter.FallbackImageURL }

	gt.NoError(t, f.ss.Start(ctx, ""))
	waitFor(t, func() bool { return len(f.ss.Status().History) == 1 })

	st := f.ss.Status()
	gt.True(t, st.Current.Fallback)
	gt.Equal(t, st.Current.URL, adapter.FallbackImageURL)
	gt.Equal(t, st.History[0].URL, adapter.FallbackImageURL)
	gt.Equal(t, st.History[0].Prompt, "ghost ship")
}

func TestHistoryIsBoundedAndDeduplicated(t *testing.T) {
	ctx := context.Background()

	t.Run("bounded", func(t *testing.T) {
		f := setup(t, &completerMock{}, screensaver.WithTimerUnit(time.Millisecond))
		f.ss.ToggleAutoPrompt(ctx)
		f.ss.UpdateSettings(ctx, func(s *model.ScreensaverSettings) { s.Timer = 5 })

		gt.NoError(t, f.ss.Start(ctx, "tiny robots"))
		waitFor(t, func() bool { return f.display.count() >= screensaver.MaxHistory+3 })

		history := f.ss.Status().History
		gt.A(t, history).Length(screensaver.MaxHistory)
		seen := map[string]bool{}
		for _, e := range history {
			gt.False(t, seen[e.URL])
			seen[e.URL] = true
		}
	})

	t.Run("deduplicated", func(t *testing.T) {
		f := setup(t, &completerMock{}, screensaver.WithTimerUnit(time.Millisecond))
		f.loader.fail = func(url string) bool { return url != adapter.FallbackImageURL }
		f.ss.ToggleAutoPrompt(ctx)
		f.ss.UpdateSettings(ctx, func(s *model.ScreensaverSettings) { s.Timer = 5 })

		gt.NoError(t, f.ss.Start(ctx, "tiny robots"))
		waitFor(t, func() bool { return f.display.count() >= 4 })
		gt.A(t, f.ss.Status().History).Length(1)
	})
}

func TestStopDiscardsInFlightFrame(t *testing.T) {
	ctx := context.Background()
	f := setup(t, &completerMock{})
	f.ss.ToggleAutoPrompt(ctx)
	f.loader.block = make(chan struct{})

	gt.NoError(t, f.ss.Start(ctx, "slow frame"))
	waitFor(t, func() bool {
		f.loader.mu.Lock()
		defer f.loader.mu.Unlock()
		return len(f.loader.urls) == 1
	})

	f.ss.Stop(ctx)
	close(f.loader.block)

	gt.Equal(t, f.display.count(), 0)
	gt.A(t, f.ss.Status().History).Length(0)
	gt.Equal(t, f.ss.Status().Current.URL, "")
}

func TestActionsRequireStartedScreensaver(t *testing.T) {
	ctx := context.Background()
	f := setup(t, &completerMock{})

	_, err := f.ss.TogglePause(ctx)
	gt.True(t, errors.Is(err, model.ErrNotRunning))
	_, err = f.ss.ToggleFullscreen(ctx)
	gt.True(t, errors.Is(err, model.ErrNotRunning))
	err = f.ss.CopyCurrent(ctx)
	gt.True(t, errors.Is(err, model.ErrNotRunning))
	gt.True(t, f.notifier.has("Start the screensaver first!"))
}

func TestPauseAndResume(t *testing.T) {
	ctx := context.Background()
	f := setup(t, &completerMock{})
	f.ss.ToggleAutoPrompt(ctx)
	gt.NoError(t, f.ss.Start(ctx, "clouds"))

	paused, err := f.ss.TogglePause(ctx)
	gt.NoError(t, err)
	gt.True(t, paused)
	gt.Equal(t, f.ss.State(), screensaver.Paused)
	gt.True(t, f.notifier.has("Screensaver paused"))

	gt.NoError(t, f.ss.Resume(ctx))
	gt.Equal(t, f.ss.State(), screensaver.Running)
	gt.True(t, f.notifier.has("Screensaver resumed"))
}

func TestControlsAndFullscreen(t *testing.T) {
	ctx := context.Background()
	f := setup(t, &completerMock{})
	f.ss.ToggleAutoPrompt(ctx)
	gt.NoError(t, f.ss.Start(ctx, "clouds"))

	hidden, err := f.ss.ToggleControls(ctx)
	gt.NoError(t, err)
	gt.True(t, hidden)
	gt.True(t, f.notifier.has("Controls hidden"))

	full, err := f.ss.ToggleFullscreen(ctx)
	gt.NoError(t, err)
	gt.True(t, full)
	gt.True(t, f.ss.Status().Fullscreen)

	f.ss.Stop(ctx)
	gt.False(t, f.ss.Status().Fullscreen)
	gt.False(t, f.ss.Status().ControlsHidden)
}

func TestCopyAndSaveCurrentFrame(t *testing.T) {
	ctx := context.Background()
	f := setup(t, &completerMock{})
	f.ss.ToggleAutoPrompt(ctx)
	gt.NoError(t, f.ss.Start(ctx, "aurora"))
	waitFor(t, func() bool { return f.display.count() == 1 })

	gt.NoError(t, f.ss.CopyCurrent(ctx))
	gt.True(t, strings.HasPrefix(f.clipboard.text, "data:image/png;base64,"))
	gt.Equal(t, f.store.LastCopiedImage(ctx), f.clipboard.text)

	loc, err := f.ss.SaveCurrent(ctx)
	gt.NoError(t, err)
	gt.True(t, strings.HasPrefix(loc, "mem://screensaver-image-"))
	gt.Equal(t, len(f.storage.objects), 1)
}

func TestShowHistoryKeepsTimers(t *testing.T) {
	ctx := context.Background()
	f := setup(t, &completerMock{})
	f.ss.ToggleAutoPrompt(ctx)
	gt.NoError(t, f.ss.Start(ctx, "first"))
	waitFor(t, func() bool { return len(f.ss.Status().History) == 1 })

	f.ss.SetPrompt(ctx, "second")
	f.ss.ToggleAutoPrompt(ctx) // on
	f.ss.ToggleAutoPrompt(ctx) // off again, fetches for the set prompt
	waitFor(t, func() bool { return len(f.ss.Status().History) == 2 })

	history := f.ss.Status().History
	gt.Equal(t, history[0].Prompt, "second")

	frame, err := f.ss.ShowHistory(ctx, 1)
	gt.NoError(t, err)
	gt.Equal(t, frame.URL, history[1].URL)
	gt.Equal(t, frame.Prompt, "first")
	gt.A(t, f.ss.Status().History).Length(2)

	_, err = f.ss.ShowHistory(ctx, 5)
	gt.True(t, errors.Is(err, model.ErrInvalidIndex))
}

func TestSettingsArePersisted(t *testing.T) {
	ctx := context.Background()
	f := setup(t, &completerMock{})
	f.ss.ToggleAutoPrompt(ctx)

	f.ss.UpdateSettings(ctx, func(s *model.ScreensaverSettings) {
		s.Aspect = model.AspectSquare
		s.Model = "turbo"
		s.Enhance = false
	})
	saved := f.store.ScreensaverSettings(ctx)
	gt.Equal(t, saved.Aspect, model.AspectSquare)
	gt.Equal(t, saved.Model, "turbo")

	gt.NoError(t, f.ss.Start(ctx, "owl"))
	waitFor(t, func() bool { return f.display.count() == 1 })
	url := f.ss.Status().Current.URL
	gt.S(t, url).Contains("width=1024")
	gt.S(t, url).Contains("model=turbo")
	gt.False(t, strings.Contains(url, "enhance=true"))
}

func TestTogglePauseAfterStopStaysStopped(t *testing.T) {
	ctx := context.Background()
	f := setup(t, &completerMock{})
	f.ss.ToggleAutoPrompt(ctx)
	gt.NoError(t, f.ss.Start(ctx, "clouds"))
	f.ss.Stop(ctx)

	_, err := f.ss.TogglePause(ctx)
	gt.True(t, errors.Is(err, model.ErrNotRunning))
	gt.Equal(t, f.ss.State(), screensaver.Stopped)

	// a second Stop must be a no-op
	f.ss.Stop(ctx)
	gt.Equal(t, f.ss.State(), screensaver.Stopped)
}

func TestTogglePauseRacingStop(t *testing.T) {
	ctx := context.Background()
	f := setup(t, &completerMock{})
	f.ss.ToggleAutoPrompt(ctx)

	for i := 0; i < 50; i++ {
		gt.NoError(t, f.ss.Start(ctx, "clouds"))
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = f.ss.TogglePause(ctx)
		}()
		go func() {
			defer wg.Done()
			f.ss.Stop(ctx)
		}()
		wg.Wait()
		f.ss.Stop(ctx)
		gt.Equal(t, f.ss.State(), screensaver.Stopped)
	}
}
