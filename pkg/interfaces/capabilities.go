package interfaces

import (
	"context"
	"io"

	"github.com/m-mizutani/chatterbox/pkg/model"
)

// Notifier surfaces short transient messages to the user
type Notifier interface {
	Notify(ctx context.Context, message string)
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(ctx context.Context, message string)

func (f NotifierFunc) Notify(ctx context.Context, message string) {
	f(ctx, message)
}

// Completer sends a chat completion request and returns the reply text
type Completer interface {
	Complete(ctx context.Context, req *model.ChatRequest) (string, error)
}

// ImageLoader fetches the bytes of an image URL
type ImageLoader interface {
	Load(ctx context.Context, url string) ([]byte, error)
}

// Clipboard writes text to the system clipboard
type Clipboard interface {
	WriteText(text string) error
}

// Opener opens a URL in an external viewer
type Opener interface {
	Open(url string) error
}

// Storage saves and loads named blobs (downloaded images, saved frames)
type Storage interface {
	// Put returns a writer to save an object under key
	Put(ctx context.Context, key string) (io.WriteCloser, error)
	// Get loads an object
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Location returns a human readable location of key
	Location(key string) string
}

// SpeechEngine speaks an utterance and blocks until it finishes or ctx is cancelled
type SpeechEngine interface {
	Speak(ctx context.Context, u model.Utterance) error
}

// Transcriber streams recognition results to emit until ctx is cancelled or the
// source ends
type Transcriber interface {
	Transcribe(ctx context.Context, emit func(model.Transcript)) error
}
