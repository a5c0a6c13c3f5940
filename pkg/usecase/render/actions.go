package render

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/chatterbox/pkg/adapter"
	"github.com/m-mizutani/chatterbox/pkg/interfaces"
	"github.com/m-mizutani/chatterbox/pkg/model"
	"github.com/m-mizutani/chatterbox/pkg/utils/logging"
)

// MessageStore is the part of the session store used by message actions
type MessageStore interface {
	CurrentSession(ctx context.Context) *model.Session
	UpdateSessionMessages(ctx context.Context, id model.SessionID, messages []*model.Message) error
	SetLastCopiedImage(ctx context.Context, dataURL string)
}

// Speaker reads a single text aloud
type Speaker interface {
	Speak(ctx context.Context, text string, onEnd func()) error
}

// Actions implements the per-message and per-image actions of the current session
type Actions struct {
	store     MessageStore
	images    *Images
	loader    interfaces.ImageLoader
	parser    *model.ContentParser
	clipboard interfaces.Clipboard
	storage   interfaces.Storage
	opener    interfaces.Opener
	speaker   Speaker
	notifier  interfaces.Notifier
	now       func() time.Time
}

// ActionsInput contains the dependencies of Actions. Clipboard, Storage, Opener and
// Speaker may be nil; the matching actions then fail with model.ErrUnsupported.
type ActionsInput struct {
	Store     MessageStore
	Images    *Images
	Loader    interfaces.ImageLoader
	Parser    *model.ContentParser
	Clipboard interfaces.Clipboard
	Storage   interfaces.Storage
	Opener    interfaces.Opener
	Speaker   Speaker
	Notifier  interfaces.Notifier
	Clock     func() time.Time
}

func NewActions(input ActionsInput) *Actions {
	a := &Actions{
		store:     input.Store,
		images:    input.Images,
		loader:    input.Loader,
		parser:    input.Parser,
		clipboard: input.Clipboard,
		storage:   input.Storage,
		opener:    input.Opener,
		speaker:   input.Speaker,
		notifier:  input.Notifier,
		now:       input.Clock,
	}
	if a.loader == nil {
		a.loader = adapter.NewHTTPImageLoader(nil)
	}
	if a.images == nil {
		a.images = NewImages(a.loader)
	}
	if a.parser == nil {
		a.parser = model.DefaultParser
	}
	if a.notifier == nil {
		a.notifier = interfaces.NotifierFunc(func(context.Context, string) {})
	}
	if a.now == nil {
		a.now = time.Now
	}
	return a
}

func (a *Actions) message(ctx context.Context, index int) (*model.Session, *model.Message, error) {
	s := a.store.CurrentSession(ctx)
	if index < 0 || index >= len(s.Messages) {
		return nil, nil, goerr.Wrap(model.ErrInvalidIndex, "no such message", goerr.V("index", index))
	}
	return s, s.Messages[index], nil
}

// CopyMessage writes the raw content of a message to the clipboard
func (a *Actions) CopyMessage(ctx context.Context, index int) error {
	_, msg, err := a.message(ctx, index)
	if err != nil {
		return err
	}
	if a.clipboard == nil {
		return goerr.Wrap(model.ErrUnsupported, "clipboard is not available")
	}
	if err := a.clipboard.WriteText(msg.Content); err != nil {
		a.notifier.Notify(ctx, "Failed to copy message")
		return goerr.Wrap(err, "failed to copy message", goerr.V("index", index))
	}
	a.notifier.Notify(ctx, "Message copied to clipboard")
	return nil
}

// SpeakMessage reads a message aloud
func (a *Actions) SpeakMessage(ctx context.Context, index int) error {
	_, msg, err := a.message(ctx, index)
	if err != nil {
		return err
	}
	if a.speaker == nil {
		return goerr.Wrap(model.ErrUnsupported, "speech is not available")
	}
	return a.speaker.Speak(ctx, msg.Content, nil)
}

// ImageURL returns the n-th (1-based) image URL of a message
func (a *Actions) ImageURL(ctx context.Context, index, n int) (string, error) {
	_, msg, err := a.message(ctx, index)
	if err != nil {
		return "", err
	}
	urls := a.parser.ImageURLs(msg.Content)
	if n < 1 || n > len(urls) {
		a.notifier.Notify(ctx, "No image source available.")
		return "", goerr.Wrap(model.ErrInvalidIndex, "no such image",
			goerr.V("index", index), goerr.V("image", n))
	}
	return urls[n-1], nil
}

// CopyImage puts the image as a PNG data URL on the clipboard and remembers it as the
// last copied image. The image must be fully loaded.
func (a *Actions) CopyImage(ctx context.Context, index, n int) error {
	imageURL, err := a.ImageURL(ctx, index, n)
	if err != nil {
		return err
	}
	data, ok := a.images.Data(imageURL)
	if !ok {
		a.images.Track(ctx, imageURL, nil)
		a.notifier.Notify(ctx, "Image not fully loaded yet. Please try again.")
		return goerr.Wrap(model.ErrNotReady, "image is not loaded", goerr.V("url", imageURL))
	}

	dataURL, err := PNGDataURL(data)
	if err != nil {
		a.notifier.Notify(ctx, "Failed to copy image: "+err.Error())
		return err
	}
	if a.clipboard == nil {
		return goerr.Wrap(model.ErrUnsupported, "clipboard is not available")
	}
	if err := a.clipboard.WriteText(dataURL); err != nil {
		a.notifier.Notify(ctx, "Failed to copy image: "+err.Error())
		return goerr.Wrap(err, "failed to copy image", goerr.V("url", imageURL))
	}
	a.store.SetLastCopiedImage(ctx, dataURL)
	a.notifier.Notify(ctx, "Image copied to clipboard and saved to local storage")
	return nil
}

// DownloadImage saves the image to storage and returns its location
func (a *Actions) DownloadImage(ctx context.Context, index, n int) (string, error) {
	imageURL, err := a.ImageURL(ctx, index, n)
	if err != nil {
		return "", err
	}
	if a.storage == nil {
		return "", goerr.Wrap(model.ErrUnsupported, "no storage configured")
	}

	data, ok := a.images.Data(imageURL)
	if !ok {
		data, err = a.loader.Load(ctx, imageURL)
		if err != nil {
			a.notifier.Notify(ctx, "Failed to download image: "+err.Error())
			return "", goerr.Wrap(err, "failed to download image", goerr.V("url", imageURL))
		}
	}

	s := a.store.CurrentSession(ctx)
	key := fmt.Sprintf("image-%s-%d-%d-%d.png", s.ID, index, n, a.now().UnixMilli())
	if err := SaveImage(ctx, a.storage, key, data); err != nil {
		a.notifier.Notify(ctx, "Failed to download image: "+err.Error())
		return "", err
	}

	loc := a.storage.Location(key)
	a.notifier.Notify(ctx, "Image downloaded successfully")
	logging.From(ctx).Info("image saved", "location", loc)
	return loc, nil
}

// RegenerateImage replaces the seed of the image URL, rewrites the stored message in
// place and starts loading the new image. It returns the new URL.
func (a *Actions) RegenerateImage(ctx context.Context, index, n int) (string, error) {
	imageURL, err := a.ImageURL(ctx, index, n)
	if err != nil {
		return "", err
	}
	newURL, err := adapter.WithSeed(imageURL, adapter.RandomSeed())
	if err != nil {
		return "", err
	}

	s, _, err := a.message(ctx, index)
	if err != nil {
		return "", err
	}
	messages := model.CloneMessages(s.Messages)
	messages[index].Content = strings.Replace(messages[index].Content, imageURL, newURL, 1)
	if err := a.store.UpdateSessionMessages(ctx, s.ID, messages); err != nil {
		return "", err
	}

	a.images.Forget(imageURL)
	a.images.Track(ctx, newURL, func(state ImageState, err error) {
		if state == ImageLoaded {
			a.notifier.Notify(ctx, "Image refreshed with new seed")
		} else {
			a.notifier.Notify(ctx, "Failed to refresh image")
		}
	})
	return newURL, nil
}

// OpenImage opens the image in an external viewer
func (a *Actions) OpenImage(ctx context.Context, index, n int) error {
	imageURL, err := a.ImageURL(ctx, index, n)
	if err != nil {
		return err
	}
	if a.opener == nil {
		return goerr.Wrap(model.ErrUnsupported, "no opener available")
	}
	if err := a.opener.Open(imageURL); err != nil {
		a.notifier.Notify(ctx, "Failed to open image: "+err.Error())
		return err
	}
	a.notifier.Notify(ctx, "Image opened in browser")
	return nil
}

// SaveImage writes data under key in storage
func SaveImage(ctx context.Context, storage interfaces.Storage, key string, data []byte) error {
	w, err := storage.Put(ctx, key)
	if err != nil {
		return goerr.Wrap(err, "failed to open storage object", goerr.V("key", key))
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return goerr.Wrap(err, "failed to write image", goerr.V("key", key))
	}
	if err := w.Close(); err != nil {
		return goerr.Wrap(err, "failed to close storage object", goerr.V("key", key))
	}
	return nil
}

// PNGDataURL re-encodes image bytes as PNG and returns them as a base64 data URL
func PNGDataURL(data []byte) (string, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", goerr.Wrap(err, "failed to decode image")
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", goerr.Wrap(err, "failed to encode image")
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
