package screensaver

import (
	"context"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/chatterbox/pkg/adapter"
	"github.com/m-mizutani/chatterbox/pkg/model"
	"github.com/m-mizutani/chatterbox/pkg/usecase/render"
)

const notStartedNotice = "Start the screensaver first!"

func (s *Screensaver) requireStarted(ctx context.Context) (*runner, error) {
	s.mu.Lock()
	r := s.run
	stopped := s.state == Stopped
	s.mu.Unlock()
	if stopped {
		s.notifier.Notify(ctx, notStartedNotice)
		return nil, goerr.Wrap(model.ErrNotRunning, "screensaver is stopped")
	}
	return r, nil
}

// TogglePause pauses or resumes image rotation. Resuming restarts both intervals.
func (s *Screensaver) TogglePause(ctx context.Context) (bool, error) {
	s.mu.Lock()
	r := s.run
	if s.state == Stopped || r == nil {
		s.mu.Unlock()
		s.notifier.Notify(ctx, notStartedNotice)
		return false, goerr.Wrap(model.ErrNotRunning, "screensaver is stopped")
	}
	paused := s.state == Running
	if paused {
		s.state = Paused
	} else {
		s.state = Running
	}
	auto := s.autoPrompt
	s.mu.Unlock()

	if paused {
		s.notifier.Notify(ctx, "Screensaver paused")
		return true, nil
	}
	s.notifier.Notify(ctx, "Screensaver resumed")
	signal(r.reset)
	if auto {
		signal(r.kick)
	}
	return false, nil
}

// Pause stops rotation without stopping the screensaver
func (s *Screensaver) Pause(ctx context.Context) error {
	if s.State() == Running {
		_, err := s.TogglePause(ctx)
		return err
	}
	_, err := s.requireStarted(ctx)
	return err
}

// Resume continues a paused screensaver
func (s *Screensaver) Resume(ctx context.Context) error {
	if s.State() == Paused {
		_, err := s.TogglePause(ctx)
		return err
	}
	_, err := s.requireStarted(ctx)
	return err
}

// ToggleControls hides or shows the controls and thumbnails
func (s *Screensaver) ToggleControls(ctx context.Context) (bool, error) {
	if _, err := s.requireStarted(ctx); err != nil {
		return false, err
	}
	s.mu.Lock()
	s.controlsHidden = !s.controlsHidden
	hidden := s.controlsHidden
	s.mu.Unlock()

	if hidden {
		s.notifier.Notify(ctx, "Controls hidden")
	} else {
		s.notifier.Notify(ctx, "Controls visible")
	}
	return hidden, nil
}

// ToggleFullscreen switches fullscreen presentation
func (s *Screensaver) ToggleFullscreen(ctx context.Context) (bool, error) {
	if _, err := s.requireStarted(ctx); err != nil {
		return false, err
	}
	s.mu.Lock()
	s.fullscreen = !s.fullscreen
	full := s.fullscreen
	s.mu.Unlock()
	return full, nil
}

// ToggleAutoPrompt turns automatic prompt generation on or off. Turning it off with a
// prompt in place fetches an image for that prompt right away.
func (s *Screensaver) ToggleAutoPrompt(ctx context.Context) bool {
	s.mu.Lock()
	s.autoPrompt = !s.autoPrompt
	enabled := s.autoPrompt
	r := s.run
	running := s.state == Running
	hasPrompt := strings.TrimSpace(s.settings.Prompt) != ""
	s.mu.Unlock()

	if enabled {
		s.notifier.Notify(ctx, "Auto-prompt generation enabled")
		if r != nil && running {
			signal(r.kick)
		}
	} else {
		s.notifier.Notify(ctx, "Auto-prompt generation disabled")
		if r != nil && running && hasPrompt {
			signal(r.fetch)
		}
	}
	return enabled
}

// SetPrompt replaces the prompt used for the next frames
func (s *Screensaver) SetPrompt(ctx context.Context, prompt string) {
	s.UpdateSettings(ctx, func(settings *model.ScreensaverSettings) {
		settings.Prompt = strings.TrimSpace(prompt)
	})
}

// ShowHistory swaps the i-th history frame onto the screen without touching the timers
func (s *Screensaver) ShowHistory(ctx context.Context, i int) (Frame, error) {
	if _, err := s.requireStarted(ctx); err != nil {
		return Frame{}, err
	}

	s.mu.Lock()
	if i < 0 || i >= len(s.history) {
		s.mu.Unlock()
		return Frame{}, goerr.Wrap(model.ErrInvalidIndex, "no such history entry", goerr.V("index", i))
	}
	entry := s.history[i]
	epoch := s.epoch
	s.mu.Unlock()

	frame := Frame{URL: entry.URL, Prompt: entry.Prompt}
	data, err := s.loader.Load(ctx, entry.URL)
	if err != nil {
		frame.URL = adapter.FallbackImageURL
		frame.Fallback = true
		data, _ = s.loader.Load(ctx, adapter.FallbackImageURL)
	}
	if !s.swap(ctx, epoch, frame, data) {
		return Frame{}, goerr.Wrap(model.ErrNotRunning, "screensaver stopped while loading")
	}
	return s.Status().Current, nil
}

func (s *Screensaver) currentFrame(ctx context.Context, emptyNotice string) (Frame, []byte, error) {
	if _, err := s.requireStarted(ctx); err != nil {
		return Frame{}, nil, err
	}
	s.mu.Lock()
	frame := s.surfaces[s.current]
	data := s.currentData
	s.mu.Unlock()

	if frame.URL == "" {
		s.notifier.Notify(ctx, emptyNotice)
		return Frame{}, nil, goerr.Wrap(model.ErrNotReady, "no current frame")
	}
	return frame, data, nil
}

// SaveCurrent writes the current frame to storage and returns its location
func (s *Screensaver) SaveCurrent(ctx context.Context) (string, error) {
	frame, data, err := s.currentFrame(ctx, "No image to save")
	if err != nil {
		return "", err
	}
	if s.storage == nil {
		return "", goerr.Wrap(model.ErrUnsupported, "no storage configured")
	}
	if data == nil {
		data, err = s.loader.Load(ctx, frame.URL)
		if err != nil {
			s.notifier.Notify(ctx, "Failed to save image")
			return "", goerr.Wrap(err, "failed to fetch frame", goerr.V("url", frame.URL))
		}
	}

	key := fmt.Sprintf("screensaver-image-%d.png", s.now().UnixMilli())
	if err := render.SaveImage(ctx, s.storage, key, data); err != nil {
		s.notifier.Notify(ctx, "Failed to save image")
		return "", err
	}
	loc := s.storage.Location(key)
	s.notifier.Notify(ctx, "Image saved to "+loc)
	return loc, nil
}

// CopyCurrent puts the current frame on the clipboard as a PNG data URL and remembers
// it as the last copied image
func (s *Screensaver) CopyCurrent(ctx context.Context) error {
	_, data, err := s.currentFrame(ctx, "No image to copy")
	if err != nil {
		return err
	}
	if data == nil {
		s.notifier.Notify(ctx, "Image not fully loaded yet. Please try again.")
		return goerr.Wrap(model.ErrNotReady, "frame is not loaded")
	}

	dataURL, err := render.PNGDataURL(data)
	if err != nil {
		s.notifier.Notify(ctx, "Copy failed: "+err.Error())
		return err
	}
	if s.clipboard == nil {
		return goerr.Wrap(model.ErrUnsupported, "clipboard is not available")
	}
	if err := s.clipboard.WriteText(dataURL); err != nil {
		s.notifier.Notify(ctx, "Copy failed: "+err.Error())
		return goerr.Wrap(err, "failed to copy frame")
	}
	s.store.SetLastCopiedImage(ctx, dataURL)
	s.notifier.Notify(ctx, "Image copied to clipboard and saved to local storage")
	return nil
}
