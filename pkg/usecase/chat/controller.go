package chat

import (
	"context"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/chatterbox/pkg/adapter"
	"github.com/m-mizutani/chatterbox/pkg/interfaces"
	"github.com/m-mizutani/chatterbox/pkg/model"
	"github.com/m-mizutani/chatterbox/pkg/usecase/speech"
	"github.com/m-mizutani/chatterbox/pkg/utils/logging"
)

const maxHistory = 10

// SessionStore is the part of the session store the controller works on
type SessionStore interface {
	CurrentSession(ctx context.Context) *model.Session
	UpdateSessionMessages(ctx context.Context, id model.SessionID, messages []*model.Message) error
	RenameSession(ctx context.Context, id model.SessionID, name string) error
	DefaultModel(ctx context.Context) string
	AutoSpeak(ctx context.Context) bool
}

// MemoryBook supplies memory context and records memories found in replies
type MemoryBook interface {
	Texts(ctx context.Context) []string
	Add(ctx context.Context, text string) bool
}

// Speaker reads replies aloud
type Speaker interface {
	SpeakSentences(ctx context.Context, sentences []string) error
	Stop()
}

// View shows request progress and committed messages
type View interface {
	// Thinking shows a placeholder. The returned function removes it; a non-empty
	// notice replaces the placeholder briefly before removal.
	Thinking(ctx context.Context, label string) func(notice string)
	Show(ctx context.Context, index int, msg *model.Message)
}

// Reply is the outcome of a completed request
type Reply struct {
	SessionID model.SessionID
	Index     int
	Message   *model.Message
	Intent    model.Intent
	Images    []string
	Memories  []string
}

// Controller runs the conversation of the current session. Only the most recent
// operation may commit; an operation started later supersedes any in flight.
type Controller struct {
	store     SessionStore
	memory    MemoryBook
	completer interfaces.Completer
	images    *adapter.ImageURLBuilder
	parser    *model.ContentParser
	speaker   Speaker
	view      View
	notifier  interfaces.Notifier
	now       func() time.Time

	mu  sync.Mutex
	gen uint64
}

// NewInput contains the dependencies of a controller. Speaker, View and Notifier are
// optional.
type NewInput struct {
	Store     SessionStore
	Memory    MemoryBook
	Completer interfaces.Completer
	Images    *adapter.ImageURLBuilder
	Speaker   Speaker
	View      View
	Notifier  interfaces.Notifier
	Clock     func() time.Time
}

func New(input NewInput) *Controller {
	c := &Controller{
		store:     input.Store,
		memory:    input.Memory,
		completer: input.Completer,
		images:    input.Images,
		speaker:   input.Speaker,
		view:      input.View,
		notifier:  input.Notifier,
		now:       input.Clock,
	}
	if c.images == nil {
		c.images = adapter.NewImageURLBuilder("")
	}
	c.parser = model.NewContentParser(c.images.Prefix())
	if c.view == nil {
		c.view = nopView{}
	}
	if c.notifier == nil {
		c.notifier = interfaces.NotifierFunc(func(context.Context, string) {})
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// Send appends a user message to the current session and requests a reply
func (c *Controller) Send(ctx context.Context, text string) (*Reply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	op := c.begin()
	session := c.store.CurrentSession(ctx)
	user := &model.Message{Role: model.RoleUser, Content: text}
	messages := append(session.Messages, user)
	if err := c.store.UpdateSessionMessages(ctx, session.ID, messages); err != nil {
		return nil, goerr.Wrap(err, "failed to save user message")
	}
	c.view.Show(ctx, len(messages)-1, user)

	return c.request(ctx, op, "", "Thinking...")
}

// Edit replaces the content of the message at index. Editing a user message drops
// every later message and requests a new reply; editing an AI message only rewrites
// it. Unchanged content is a no-op.
func (c *Controller) Edit(ctx context.Context, index int, content string) (*Reply, error) {
	op := c.begin()
	session := c.store.CurrentSession(ctx)
	if index < 0 || index >= len(session.Messages) {
		return nil, goerr.Wrap(model.ErrInvalidIndex, "no message to edit", goerr.V("index", index))
	}
	target := session.Messages[index]
	if content == target.Content {
		return nil, nil
	}
	c.stopSpeaking()

	target.Content = content
	if target.Role == model.RoleAI {
		if err := c.store.UpdateSessionMessages(ctx, session.ID, session.Messages); err != nil {
			return nil, goerr.Wrap(err, "failed to save edited message")
		}
		c.notifier.Notify(ctx, "AI message updated")
		return nil, nil
	}

	messages := session.Messages[:index+1]
	if err := c.store.UpdateSessionMessages(ctx, session.ID, messages); err != nil {
		return nil, goerr.Wrap(err, "failed to save edited message")
	}

	reply, err := c.request(ctx, op, content, "Generating response...")
	if err == nil {
		c.notifier.Notify(ctx, "User message updated and new response generated")
	}
	return reply, err
}

// Regenerate requests a fresh reply for the AI message at index. The conversation is
// cut back to the nearest preceding user message, which is resent with a unique
// suffix so the endpoint does not serve a cached answer.
func (c *Controller) Regenerate(ctx context.Context, index int) (*Reply, error) {
	return c.regenerate(ctx, index, true)
}

// RegenerateExact is Regenerate without the uniqueness suffix
func (c *Controller) RegenerateExact(ctx context.Context, index int) (*Reply, error) {
	return c.regenerate(ctx, index, false)
}

func (c *Controller) regenerate(ctx context.Context, index int, unique bool) (*Reply, error) {
	op := c.begin()
	session := c.store.CurrentSession(ctx)
	if index < 0 || index >= len(session.Messages) || session.Messages[index].Role != model.RoleAI {
		c.notifier.Notify(ctx, "Invalid AI message index for regeneration.")
		return nil, goerr.Wrap(model.ErrInvalidIndex, "no AI message to regenerate", goerr.V("index", index))
	}

	userIndex := PrecedingUserIndex(session.Messages, index)
	if userIndex < 0 {
		c.notifier.Notify(ctx, "No preceding user message found to regenerate from.")
		return nil, goerr.Wrap(model.ErrNoPrecedingUser, "cannot regenerate", goerr.V("index", index))
	}
	c.stopSpeaking()

	messages := session.Messages[:userIndex+1]
	if err := c.store.UpdateSessionMessages(ctx, session.ID, messages); err != nil {
		return nil, goerr.Wrap(err, "failed to truncate conversation")
	}

	override := messages[userIndex].Content
	if unique {
		override = c.regenSuffix(override)
	}

	reply, err := c.request(ctx, op, override, "Regenerating response...")
	if err == nil {
		c.notifier.Notify(ctx, "Response regenerated successfully")
	}
	return reply, err
}

// ClearChat removes every message of the current session and cancels any request in
// flight
func (c *Controller) ClearChat(ctx context.Context) error {
	c.begin()
	c.stopSpeaking()
	session := c.store.CurrentSession(ctx)
	if err := c.store.UpdateSessionMessages(ctx, session.ID, []*model.Message{}); err != nil {
		return goerr.Wrap(err, "failed to clear chat")
	}
	c.notifier.Notify(ctx, "Chat cleared")
	return nil
}

// PrecedingUserIndex returns the index of the nearest user message before index, or -1
func PrecedingUserIndex(messages []*model.Message, index int) int {
	for i := index - 1; i >= 0; i-- {
		if messages[i].Role == model.RoleUser {
			return i
		}
	}
	return -1
}

func (c *Controller) request(ctx context.Context, op uint64, override, label string) (*Reply, error) {
	logger := logging.From(ctx)
	session := c.store.CurrentSession(ctx)

	req := &model.ChatRequest{
		Messages: c.buildMessages(ctx, session, override),
		Model:    session.Model,
		Stream:   false,
		Nonce:    c.nonce(),
	}
	if req.Model == "" {
		req.Model = c.store.DefaultModel(ctx)
	}
	last := req.Messages[len(req.Messages)-1].Content
	intent := model.ClassifyIntent(last)

	logger.Debug("sending chat request", "model", req.Model, "messages", len(req.Messages), "intent", intent)

	done := c.view.Thinking(ctx, label)
	raw, err := c.completer.Complete(ctx, req)
	if err != nil {
		if !c.current(op) {
			done("")
			return nil, goerr.Wrap(model.ErrSuperseded, "request superseded")
		}
		done(ErrorNotice)
		logger.Error("chat request failed", "error", err)
		return nil, goerr.Wrap(err, "failed to get a response", goerr.V("model", req.Model))
	}
	done("")

	content := c.postProcess(raw, last, intent)
	found := ParseMemories(content)
	content = strings.TrimSpace(StripMemories(content))

	c.mu.Lock()
	if op != c.gen {
		c.mu.Unlock()
		logger.Debug("dropping superseded reply", "session_id", session.ID)
		return nil, goerr.Wrap(model.ErrSuperseded, "request superseded")
	}
	for _, m := range found {
		c.memory.Add(ctx, m)
	}
	msg := &model.Message{Role: model.RoleAI, Content: content}
	messages := append(session.Messages, msg)
	err = c.store.UpdateSessionMessages(ctx, session.ID, messages)
	c.mu.Unlock()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to save reply")
	}

	index := len(messages) - 1
	c.view.Show(ctx, index, msg)
	c.updateTitle(ctx, session, messages)

	if c.speaker != nil {
		if c.store.AutoSpeak(ctx) {
			if err := c.speaker.SpeakSentences(ctx, speech.SplitSentences(content)); err != nil {
				logger.Debug("auto-speak unavailable", "error", err)
			}
		} else {
			c.speaker.Stop()
		}
	}

	return &Reply{
		SessionID: session.ID,
		Index:     index,
		Message:   msg,
		Intent:    intent,
		Images:    c.parser.ImageURLs(content),
		Memories:  found,
	}, nil
}

func (c *Controller) buildMessages(ctx context.Context, session *model.Session, override string) []model.ChatMessage {
	messages := []model.ChatMessage{{Role: "system", Content: SystemPrompt}}

	if memories := c.memory.Texts(ctx); len(memories) > 0 {
		messages = append(messages, model.ChatMessage{
			Role:    "user",
			Content: memoryContextHeader + strings.Join(memories, "\n") + memoryContextFooter,
		})
	}

	start := max(0, len(session.Messages)-maxHistory)
	for _, m := range session.Messages[start:] {
		messages = append(messages, model.ChatMessage{Role: m.Role.APIRole(), Content: m.Content})
	}

	if override != "" && messages[len(messages)-1].Content != override {
		messages = append(messages, model.ChatMessage{Role: "user", Content: override})
	}
	return messages
}

func (c *Controller) postProcess(reply, userText string, intent model.Intent) string {
	switch {
	case intent.Code && !intent.Both:
		return WrapCode(reply)
	case intent.Image && !intent.Code:
		url := c.images.Build(adapter.ImageParams{
			Prompt: ImagePrompt(userText, reply),
			Width:  512,
			Height: 512,
			Seed:   adapter.RandomSeed(),
		})
		return reply + "\n\n" + model.GeneratedImageHeading + "\n" + url
	default:
		return reply
	}
}

func (c *Controller) updateTitle(ctx context.Context, session *model.Session, messages []*model.Message) {
	if session.Name != "" && session.Name != model.DefaultSessionName {
		return
	}
	title := SessionTitle(messages)
	if title == session.Name {
		return
	}
	if err := c.store.RenameSession(ctx, session.ID, title); err != nil {
		logging.From(ctx).Warn("failed to rename session", "error", err, "session_id", session.ID)
	}
}

func (c *Controller) begin() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	return c.gen
}

func (c *Controller) current(op uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return op == c.gen
}

func (c *Controller) stopSpeaking() {
	if c.speaker != nil {
		c.speaker.Stop()
	}
}

func (c *Controller) nonce() string {
	return strconv.FormatInt(c.now().UnixMilli(), 10) + randomBase36()
}

func (c *Controller) regenSuffix(text string) string {
	return text + " [regen-" + strconv.FormatInt(c.now().UnixMilli(), 10) + "-" + randomBase36() + "]"
}

func randomBase36() string {
	return strconv.FormatUint(rand.Uint64(), 36)
}

type nopView struct{}

func (nopView) Thinking(context.Context, string) func(string) { return func(string) {} }
func (nopView) Show(context.Context, int, *model.Message)     {}
