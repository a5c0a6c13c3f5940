package render_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/chatterbox/pkg/model"
	"github.com/m-mizutani/chatterbox/pkg/repository"
	"github.com/m-mizutani/chatterbox/pkg/usecase/render"
	"github.com/m-mizutani/chatterbox/pkg/usecase/store"
	"github.com/m-mizutani/gt"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	gt.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type loaderMock struct {
	mu    sync.Mutex
	data  []byte
	err   error
	block chan struct{}
	calls []string
}

func (m *loaderMock) Load(ctx context.Context, url string) ([]byte, error) {
	m.mu.Lock()
	m.calls = append(m.calls, url)
	block := m.block
	m.mu.Unlock()
	if block != nil {
		<-block
	}
	return m.data, m.err
}

func (m *loaderMock) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

type clipboardMock struct {
	text string
	err  error
}

func (c *clipboardMock) WriteText(text string) error {
	if c.err != nil {
		return c.err
	}
	c.text = text
	return nil
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

func (n *notifierMock) has(message string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, m := range n.messages {
		if m == message {
			return true
		}
	}
	return false
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

func (s *memStorage) Location(key string) string {
	return "mem://" + key
}

type speakerMock struct {
	texts []string
}

func (s *speakerMock) Speak(ctx context.Context, text string, onEnd func()) error {
	s.texts = append(s.texts, text)
	return nil
}

type openerMock struct {
	opened []string
}

func (o *openerMock) Open(url string) error {
	o.opened = append(o.opened, url)
	return nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

const imageURL = "https://image.pollinations.ai/prompt/red%20fox?height=512&nolog=true&nologo=true&private=true&safe=false&seed=123456&width=512"

func TestThemeFallback(t *testing.T) {
	gt.Equal(t, render.LookupTheme("light").Name, "light")
	gt.Equal(t, render.LookupTheme("no-such-theme").Name, "dark")
	gt.A(t, render.ThemeNames()).Length(5)
}

func TestFormatMessageSegments(t *testing.T) {
	loader := &loaderMock{data: pngBytes(t)}
	r := render.New(io.Discard, render.WithPlain(), render.WithImages(render.NewImages(loader)))

	msg := &model.Message{
		Role: model.RoleAI,
		Content: "Here you go.\n[CODE]\n```python\nprint(1)\n```\n[/CODE]\n" +
			model.GeneratedImageHeading + "\n" + imageURL,
	}
	out := r.Format(2, msg)

	gt.S(t, out).Contains("[2] AI")
	gt.S(t, out).Contains("Here you go.")
	gt.S(t, out).Contains("```python\nprint(1)\n```")
	gt.S(t, out).Contains("#1 red fox (loading)")
	gt.S(t, out).Contains(imageURL)
	gt.S(t, out).Contains("/regen 2")
	gt.S(t, out).Contains("/image copy|save|regen|open 2 <n>")
	gt.False(t, strings.Contains(out, "[CODE]"))
	gt.False(t, strings.Contains(out, model.GeneratedImageHeading))
}

func TestFormatUserMessageHasNoRegenerateHint(t *testing.T) {
	r := render.New(io.Discard, render.WithPlain(), render.WithImages(render.NewImages(&loaderMock{})))
	out := r.Format(0, &model.Message{Role: model.RoleUser, Content: "hello"})
	gt.S(t, out).Contains("[0] You")
	gt.S(t, out).Contains("/edit 0")
	gt.False(t, strings.Contains(out, "/regen"))
}

func TestShowTracksImageStates(t *testing.T) {
	ctx := context.Background()

	t.Run("loaded", func(t *testing.T) {
		loader := &loaderMock{data: pngBytes(t)}
		images := render.NewImages(loader)
		var buf bytes.Buffer
		r := render.New(&buf, render.WithPlain(), render.WithImages(images))

		r.Show(ctx, 0, &model.Message{Role: model.RoleAI, Content: imageURL})
		gt.Equal(t, images.Wait(ctx, imageURL), render.ImageLoaded)
		gt.S(t, r.Format(0, &model.Message{Role: model.RoleAI, Content: imageURL})).Contains("(loaded)")
		gt.Equal(t, loader.callCount(), 1)

		// showing again does not refetch
		r.Show(ctx, 0, &model.Message{Role: model.RoleAI, Content: imageURL})
		gt.Equal(t, loader.callCount(), 1)
	})

	t.Run("error", func(t *testing.T) {
		loader := &loaderMock{err: errors.New("boom")}
		images := render.NewImages(loader)
		n := &notifierMock{}
		r := render.New(io.Discard, render.WithPlain(), render.WithImages(images), render.WithRenderNotifier(n))

		r.Show(ctx, 0, &model.Message{Role: model.RoleAI, Content: imageURL})
		gt.Equal(t, images.Wait(ctx, imageURL), render.ImageFailed)
		waitFor(t, func() bool { return n.has("⚠️ Failed to load image: red fox") })
		gt.S(t, r.Format(0, &model.Message{Role: model.RoleAI, Content: imageURL})).Contains("(failed to load)")
	})
}

func TestThinkingNotice(t *testing.T) {
	var buf bytes.Buffer
	r := render.New(&buf, render.WithPlain())

	done := r.Thinking(context.Background(), "Thinking...")
	done("Sorry, I couldn't process that response.")
	done("second call is ignored")

	gt.Equal(t, buf.String(), "Sorry, I couldn't process that response.\n")
}

type actionsFixture struct {
	store     *store.Store
	loader    *loaderMock
	images    *render.Images
	clipboard *clipboardMock
	storage   *memStorage
	speaker   *speakerMock
	opener    *openerMock
	notifier  *notifierMock
	actions   *render.Actions
}

func setupActions(t *testing.T, msgs ...*model.Message) *actionsFixture {
	t.Helper()
	ctx := context.Background()
	s, err := store.New(ctx, repository.NewMemory())
	gt.NoError(t, err)
	gt.NoError(t, s.UpdateSessionMessages(ctx, s.CurrentSession(ctx).ID, msgs))

	f := &actionsFixture{
		store:     s,
		loader:    &loaderMock{data: pngBytes(t)},
		clipboard: &clipboardMock{},
		storage:   &memStorage{objects: map[string][]byte{}},
		speaker:   &speakerMock{},
		opener:    &openerMock{},
		notifier:  &notifierMock{},
	}
	f.images = render.NewImages(f.loader)
	f.actions = render.NewActions(render.ActionsInput{
		Store:     s,
		Images:    f.images,
		Loader:    f.loader,
		Clipboard: f.clipboard,
		Storage:   f.storage,
		Opener:    f.opener,
		Speaker:   f.speaker,
		Notifier:  f.notifier,
		Clock:     func() time.Time { return time.UnixMilli(1700000000000) },
	})
	return f
}

func aiImage() *model.Message {
	return &model.Message{Role: model.RoleAI, Content: "A fox.\n\n" + model.GeneratedImageHeading + "\n" + imageURL}
}

func TestCopyMessageAndSpeak(t *testing.T) {
	ctx := context.Background()
	f := setupActions(t, &model.Message{Role: model.RoleUser, Content: "hello there"})

	gt.NoError(t, f.actions.CopyMessage(ctx, 0))
	gt.Equal(t, f.clipboard.text, "hello there")
	gt.True(t, f.notifier.has("Message copied to clipboard"))

	gt.NoError(t, f.actions.SpeakMessage(ctx, 0))
	gt.A(t, f.speaker.texts).Length(1)

	err := f.actions.CopyMessage(ctx, 5)
	gt.True(t, errors.Is(err, model.ErrInvalidIndex))
}

func TestCopyImageRequiresLoadedImage(t *testing.T) {
	ctx := context.Background()
	f := setupActions(t, &model.Message{Role: model.RoleUser, Content: "fox"}, aiImage())
	f.loader.block = make(chan struct{})

	err := f.actions.CopyImage(ctx, 1, 1)
	gt.True(t, errors.Is(err, model.ErrNotReady))
	gt.True(t, f.notifier.has("Image not fully loaded yet. Please try again."))
	gt.Equal(t, f.store.LastCopiedImage(ctx), "")

	close(f.loader.block)
	gt.Equal(t, f.images.Wait(ctx, imageURL), render.ImageLoaded)

	gt.NoError(t, f.actions.CopyImage(ctx, 1, 1))
	gt.True(t, strings.HasPrefix(f.clipboard.text, "data:image/png;base64,"))
	gt.Equal(t, f.store.LastCopiedImage(ctx), f.clipboard.text)
	gt.True(t, f.notifier.has("Image copied to clipboard and saved to local storage"))
}

func TestCopyImageWithoutClipboard(t *testing.T) {
	ctx := context.Background()
	f := setupActions(t, aiImage())
	a := render.NewActions(render.ActionsInput{Store: f.store, Images: f.images, Loader: f.loader})

	f.images.Track(ctx, imageURL, nil)
	f.images.Wait(ctx, imageURL)
	err := a.CopyImage(ctx, 0, 1)
	gt.True(t, errors.Is(err, model.ErrUnsupported))
}

func TestDownloadImage(t *testing.T) {
	ctx := context.Background()
	f := setupActions(t, aiImage())

	loc, err := f.actions.DownloadImage(ctx, 0, 1)
	gt.NoError(t, err)
	gt.True(t, strings.HasPrefix(loc, "mem://image-"))
	gt.S(t, loc).Contains("-0-1-1700000000000.png")
	gt.Equal(t, len(f.storage.objects), 1)
	gt.True(t, f.notifier.has("Image downloaded successfully"))
}

func TestDownloadImageFailure(t *testing.T) {
	ctx := context.Background()
	f := setupActions(t, aiImage())
	f.loader.err = errors.New("network down")

	_, err := f.actions.DownloadImage(ctx, 0, 1)
	gt.Error(t, err)
	gt.Equal(t, len(f.storage.objects), 0)
}

func TestRegenerateImageRewritesStoredContent(t *testing.T) {
	ctx := context.Background()
	f := setupActions(t, &model.Message{Role: model.RoleUser, Content: "fox"}, aiImage())

	newURL, err := f.actions.RegenerateImage(ctx, 1, 1)
	gt.NoError(t, err)
	gt.True(t, newURL != imageURL)
	gt.True(t, strings.HasPrefix(newURL, model.DefaultImagePrefix+"red%20fox?"))

	msgs := f.store.CurrentSession(ctx).Messages
	gt.A(t, msgs).Length(2)
	gt.S(t, msgs[1].Content).Contains(newURL)
	gt.False(t, strings.Contains(msgs[1].Content, imageURL))
	gt.S(t, msgs[1].Content).Contains("A fox.")

	waitFor(t, func() bool { return f.notifier.has("Image refreshed with new seed") })
}

func TestImageActionsRejectMissingImage(t *testing.T) {
	ctx := context.Background()
	f := setupActions(t, &model.Message{Role: model.RoleAI, Content: "no images here"})

	_, err := f.actions.RegenerateImage(ctx, 0, 1)
	gt.True(t, errors.Is(err, model.ErrInvalidIndex))
	gt.True(t, f.notifier.has("No image source available."))
}

func TestOpenImage(t *testing.T) {
	ctx := context.Background()
	f := setupActions(t, aiImage())

	gt.NoError(t, f.actions.OpenImage(ctx, 0, 1))
	gt.A(t, f.opener.opened).Length(1)
	gt.Equal(t, f.opener.opened[0], imageURL)
}

func TestSaveImageWritesObject(t *testing.T) {
	ctx := context.Background()
	s := &memStorage{objects: map[string][]byte{}}
	gt.NoError(t, render.SaveImage(ctx, s, "frame.png", []byte("data")))
	gt.Equal(t, string(s.objects["frame.png"]), "data")
}
