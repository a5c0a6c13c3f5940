package screensaver

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/cenkalti/backoff/v5"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/chatterbox/pkg/adapter"
	"github.com/m-mizutani/chatterbox/pkg/model"
	"github.com/m-mizutani/chatterbox/pkg/utils/logging"
)

const (
	promptModel        = "unity"
	promptSystem       = "You are Unity, a chaotic, unfiltered AI. Generate unique, wild image prompts as text only, under 100 characters."
	promptRequest      = "hey Unity, generate a image prompt of something new and wild as a text response only"
	errNoPromptMessage = "no prompt returned from API"
)

// fetchImage builds a new frame from the current prompt, preloads it and swaps it onto
// the hidden surface. A frame that fails to load is replaced by the fallback image.
// With refresh set, auto-prompt mode asks for a new prompt first.
func (s *Screensaver) fetchImage(ctx context.Context, epoch uint64, refresh bool) {
	if !s.beginTransition(epoch) {
		return
	}
	defer s.endTransition()

	s.mu.Lock()
	prompt := strings.TrimSpace(s.settings.Prompt)
	auto := s.autoPrompt
	settings := s.settings
	s.mu.Unlock()

	if prompt == "" || (auto && refresh) {
		if s.updatePrompt(ctx, epoch) {
			s.mu.Lock()
			prompt = strings.TrimSpace(s.settings.Prompt)
			settings = s.settings
			s.mu.Unlock()
		} else if prompt == "" {
			return
		}
	}
	s.store.SaveScreensaverSettings(ctx, settings)

	width, height := settings.Aspect.Dimensions()
	imageURL := s.builder.Build(adapter.ImageParams{
		Prompt:  prompt,
		Width:   width,
		Height:  height,
		Seed:    adapter.RandomSeed(),
		Model:   settings.Model,
		NoLogo:  true,
		Private: settings.Private,
		Enhance: settings.Enhance,
	})

	frame := Frame{URL: imageURL, Prompt: prompt}
	data, err := s.loader.Load(ctx, imageURL)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		logging.From(ctx).Warn("screensaver image failed, using fallback", "url", imageURL, "error", err)
		frame.URL = adapter.FallbackImageURL
		frame.Fallback = true
		data, err = s.loader.Load(ctx, adapter.FallbackImageURL)
		if err != nil {
			logging.From(ctx).Warn("fallback image also failed to load", "error", err)
			data = nil
		}
	}

	if !s.swap(ctx, epoch, frame, data) {
		return
	}
	s.addHistory(ctx, epoch, frame.URL, prompt)
}

func (s *Screensaver) beginTransition(epoch uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Stopped || s.epoch != epoch || s.transitioning {
		return false
	}
	s.transitioning = true
	return true
}

func (s *Screensaver) endTransition() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transitioning = false
}

// swap puts frame onto the hidden surface and makes it current. It reports false when
// the run that produced the frame has been stopped.
func (s *Screensaver) swap(ctx context.Context, epoch uint64, frame Frame, data []byte) bool {
	s.mu.Lock()
	if s.state == Stopped || s.epoch != epoch {
		s.mu.Unlock()
		logging.From(ctx).Debug("dropping late screensaver frame", "url", frame.URL)
		return false
	}
	next := 1 - s.current
	frame.Surface = next
	s.surfaces[next] = frame
	s.current = next
	s.currentData = data
	s.mu.Unlock()

	if s.display != nil {
		s.display.ShowFrame(ctx, frame)
	}
	return true
}

// addHistory records a frame most-recent-first, skipping URLs already present
func (s *Screensaver) addHistory(ctx context.Context, epoch uint64, imageURL, prompt string) {
	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return
	}
	for _, e := range s.history {
		if e.URL == imageURL {
			s.mu.Unlock()
			return
		}
	}
	s.history = append([]Entry{{URL: imageURL, Prompt: prompt}}, s.history...)
	if len(s.history) > MaxHistory {
		s.history = s.history[:MaxHistory]
	}
	images := make([]string, len(s.history))
	prompts := make([]string, len(s.history))
	for i, e := range s.history {
		images[i], prompts[i] = e.URL, e.Prompt
	}
	s.mu.Unlock()

	s.store.SaveImageHistory(ctx, images, prompts)
}

// updatePrompt replaces the prompt with a freshly generated one. It reports whether a
// new prompt was set.
func (s *Screensaver) updatePrompt(ctx context.Context, epoch uint64) bool {
	s.mu.Lock()
	if s.state != Running || s.epoch != epoch || !s.autoPrompt || s.fetchingPrompt {
		s.mu.Unlock()
		return false
	}
	s.fetchingPrompt = true
	s.mu.Unlock()

	prompt, err := s.fetchPrompt(ctx)

	s.mu.Lock()
	s.fetchingPrompt = false
	s.lastPrompt = s.now()
	if s.epoch != epoch {
		s.mu.Unlock()
		return false
	}
	if err != nil {
		s.mu.Unlock()
		if ctx.Err() == nil {
			logging.From(ctx).Warn("failed to fetch screensaver prompt", "error", err)
			s.notifier.Notify(ctx, "Couldn't get a new prompt from the API! Trying again in next cycle.")
		}
		return false
	}
	s.settings.Prompt = prompt
	settings := s.settings
	s.mu.Unlock()

	s.store.SaveScreensaverSettings(ctx, settings)
	s.notifier.Notify(ctx, "New prompt loaded from API: "+prompt)
	return true
}

// fetchPrompt asks the completion endpoint for an image prompt, trying up to three
// times with a fixed delay
func (s *Screensaver) fetchPrompt(ctx context.Context) (string, error) {
	if s.completer == nil {
		return "", goerr.Wrap(model.ErrUnsupported, "no completion endpoint configured")
	}

	attempt := 0
	op := func() (string, error) {
		attempt++
		req := &model.ChatRequest{
			Messages: []model.ChatMessage{
				{Role: "system", Content: promptSystem},
				{Role: "user", Content: promptRequest},
			},
			Model:  promptModel,
			Stream: false,
			Nonce:  strconv.FormatInt(s.now().UnixNano(), 36),
		}
		reply, err := s.completer.Complete(ctx, req)
		if err != nil {
			logging.From(ctx).Debug("prompt fetch attempt failed",
				"attempt", attempt, "max", promptRetries, "error", err)
			return "", err
		}
		reply = strings.TrimSpace(reply)
		if reply == "" || reply == adapter.FallbackReply {
			return "", goerr.New(errNoPromptMessage, goerr.V("attempt", attempt))
		}
		return truncate(reply, maxPromptLength), nil
	}

	prompt, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewConstantBackOff(s.retryDelay)),
		backoff.WithMaxTries(promptRetries),
	)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return "", err
		}
		return "", goerr.Wrap(err, "max retries reached, could not fetch a prompt")
	}
	return prompt, nil
}
