package render

import (
	"context"
	"sync"

	"github.com/m-mizutani/chatterbox/pkg/interfaces"
	"github.com/m-mizutani/chatterbox/pkg/utils/logging"
)

type ImageState int

const (
	ImageLoading ImageState = iota
	ImageLoaded
	ImageFailed
)

func (s ImageState) String() string {
	switch s {
	case ImageLoaded:
		return "loaded"
	case ImageFailed:
		return "error"
	default:
		return "loading"
	}
}

type imageEntry struct {
	state ImageState
	data  []byte
	err   error
	done  chan struct{}
}

// Images tracks the load state of image URLs shown in messages. Each URL is fetched
// once in the background and moves from loading to loaded or error.
type Images struct {
	loader interfaces.ImageLoader

	mu      sync.Mutex
	entries map[string]*imageEntry
}

func NewImages(loader interfaces.ImageLoader) *Images {
	return &Images{
		loader:  loader,
		entries: make(map[string]*imageEntry),
	}
}

// Track starts loading url unless it is already tracked and returns its current state.
// onSettle, if given, is called once the load finishes.
func (x *Images) Track(ctx context.Context, url string, onSettle func(ImageState, error)) ImageState {
	x.mu.Lock()
	e, ok := x.entries[url]
	if !ok {
		e = &imageEntry{state: ImageLoading, done: make(chan struct{})}
		x.entries[url] = e
	}
	state := e.state
	x.mu.Unlock()

	if !ok {
		go x.load(context.WithoutCancel(ctx), url, e)
	}
	if onSettle != nil {
		go func() {
			<-e.done
			x.mu.Lock()
			s, err := e.state, e.err
			x.mu.Unlock()
			onSettle(s, err)
		}()
	}
	return state
}

func (x *Images) load(ctx context.Context, url string, e *imageEntry) {
	data, err := x.loader.Load(ctx, url)

	x.mu.Lock()
	if err != nil {
		e.state, e.err = ImageFailed, err
		logging.From(ctx).Debug("image failed to load", "url", url, "error", err)
	} else {
		e.state, e.data = ImageLoaded, data
	}
	x.mu.Unlock()
	close(e.done)
}

// State returns the state of url. Untracked URLs report loading.
func (x *Images) State(url string) ImageState {
	x.mu.Lock()
	defer x.mu.Unlock()
	if e, ok := x.entries[url]; ok {
		return e.state
	}
	return ImageLoading
}

// Data returns the bytes of a loaded image
func (x *Images) Data(url string) ([]byte, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	e, ok := x.entries[url]
	if !ok || e.state != ImageLoaded {
		return nil, false
	}
	return e.data, true
}

// Wait blocks until url settles or ctx is done
func (x *Images) Wait(ctx context.Context, url string) ImageState {
	x.mu.Lock()
	e, ok := x.entries[url]
	x.mu.Unlock()
	if !ok {
		return ImageLoading
	}
	select {
	case <-e.done:
	case <-ctx.Done():
	}
	return x.State(url)
}

// Forget drops url from tracking
func (x *Images) Forget(url string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.entries, url)
}
