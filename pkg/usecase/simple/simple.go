package simple

import (
	"context"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/chatterbox/pkg/adapter"
	"github.com/m-mizutani/chatterbox/pkg/interfaces"
	"github.com/m-mizutani/chatterbox/pkg/model"
	"github.com/m-mizutani/chatterbox/pkg/usecase/chat"
)

// Store is the part of the session store simple mode needs
type Store interface {
	chat.SessionStore
}

// Voice speaks single texts or sentence queues
type Voice interface {
	Speak(ctx context.Context, text string, onEnd func()) error
	SpeakSentences(ctx context.Context, sentences []string) error
	Stop()
}

// Mode is a reduced chat surface over the current session. Audio starts muted.
type Mode struct {
	store     Store
	ctrl      *chat.Controller
	view      chat.View
	voice     Voice
	clipboard interfaces.Clipboard
	notifier  interfaces.Notifier

	mu    sync.Mutex
	muted bool
	open  bool
}

// NewInput contains the dependencies of simple mode. Voice and Clipboard are optional.
type NewInput struct {
	Store     Store
	Memory    chat.MemoryBook
	Completer interfaces.Completer
	Images    *adapter.ImageURLBuilder
	View      chat.View
	Voice     Voice
	Clipboard interfaces.Clipboard
	Notifier  interfaces.Notifier
	Clock     func() time.Time
}

func New(input NewInput) *Mode {
	m := &Mode{
		store:     input.Store,
		view:      input.View,
		voice:     input.Voice,
		clipboard: input.Clipboard,
		notifier:  input.Notifier,
		muted:     true,
	}
	if m.notifier == nil {
		m.notifier = interfaces.NotifierFunc(func(context.Context, string) {})
	}

	var speaker chat.Speaker
	if m.voice != nil {
		speaker = &mutedSpeaker{mode: m}
	}
	m.ctrl = chat.New(chat.NewInput{
		Store:     input.Store,
		Memory:    input.Memory,
		Completer: input.Completer,
		Images:    input.Images,
		Speaker:   speaker,
		View:      input.View,
		Notifier:  m.notifier,
		Clock:     input.Clock,
	})
	return m
}

// mutedSpeaker drops auto-spoken replies while simple mode is muted
type mutedSpeaker struct {
	mode *Mode
}

func (s *mutedSpeaker) SpeakSentences(ctx context.Context, sentences []string) error {
	if s.mode.Muted() {
		return nil
	}
	return s.mode.voice.SpeakSentences(ctx, sentences)
}

func (s *mutedSpeaker) Stop() {
	s.mode.voice.Stop()
}

// Open shows every message of the current session
func (m *Mode) Open(ctx context.Context) {
	m.mu.Lock()
	m.open = true
	m.mu.Unlock()

	if m.view == nil {
		return
	}
	for i, msg := range m.store.CurrentSession(ctx).Messages {
		m.view.Show(ctx, i, msg)
	}
}

// Close leaves simple mode and silences any speech
func (m *Mode) Close() {
	m.mu.Lock()
	m.open = false
	m.mu.Unlock()
	if m.voice != nil {
		m.voice.Stop()
	}
}

func (m *Mode) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}

// ToggleMute flips the mute state and returns the new value. Muting stops speech.
func (m *Mode) ToggleMute() bool {
	m.mu.Lock()
	m.muted = !m.muted
	muted := m.muted
	m.mu.Unlock()

	if muted && m.voice != nil {
		m.voice.Stop()
	}
	return muted
}

func (m *Mode) Muted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.muted
}

// Send posts a user message and waits for the reply
func (m *Mode) Send(ctx context.Context, text string) (*chat.Reply, error) {
	return m.ctrl.Send(ctx, text)
}

// Clear empties the current session
func (m *Mode) Clear(ctx context.Context) error {
	return m.ctrl.ClearChat(ctx)
}

// Regenerate cuts the conversation back to the user message before the AI message at
// index and resends it unchanged
func (m *Mode) Regenerate(ctx context.Context, index int) (*chat.Reply, error) {
	session := m.store.CurrentSession(ctx)
	if index >= 0 && index < len(session.Messages) && session.Messages[index].Role == model.RoleAI &&
		chat.PrecedingUserIndex(session.Messages, index) >= 0 {
		m.notifier.Notify(ctx, "Re-generating entire response. One moment...")
	}
	return m.ctrl.RegenerateExact(ctx, index)
}

// Copy writes the content of the message at index to the clipboard
func (m *Mode) Copy(ctx context.Context, index int) error {
	msg, err := m.message(ctx, index)
	if err != nil {
		return err
	}
	if m.clipboard == nil {
		return goerr.Wrap(model.ErrUnsupported, "clipboard is not available")
	}
	if err := m.clipboard.WriteText(msg.Content); err != nil {
		return goerr.Wrap(err, "failed to copy message", goerr.V("index", index))
	}
	m.notifier.Notify(ctx, "Copied to clipboard")
	return nil
}

// Speak reads the message at index aloud unless audio is muted
func (m *Mode) Speak(ctx context.Context, index int) error {
	msg, err := m.message(ctx, index)
	if err != nil {
		return err
	}
	if m.Muted() {
		m.notifier.Notify(ctx, "Audio is muted")
		return nil
	}
	if m.voice == nil {
		return goerr.Wrap(model.ErrUnsupported, "speech is not available")
	}
	return m.voice.Speak(ctx, msg.Content, nil)
}

func (m *Mode) message(ctx context.Context, index int) (*model.Message, error) {
	session := m.store.CurrentSession(ctx)
	if index < 0 || index >= len(session.Messages) {
		return nil, goerr.Wrap(model.ErrInvalidIndex, "no such message", goerr.V("index", index))
	}
	return session.Messages[index], nil
}
