package store

import (
	"context"
	"strconv"
	"time"

	"github.com/m-mizutani/chatterbox/pkg/model"
	"github.com/m-mizutani/chatterbox/pkg/repository"
)

func (s *Store) Theme(ctx context.Context) string {
	if v := s.getString(ctx, repository.KeyTheme); v != "" {
		return v
	}
	return model.DefaultTheme
}

func (s *Store) SetTheme(ctx context.Context, theme string) {
	s.setString(ctx, repository.KeyTheme, theme)
}

// Voice returns the persisted speech preferences
func (s *Store) Voice(ctx context.Context) model.Voice {
	return model.Voice{
		Name:  s.getString(ctx, repository.KeyVoice),
		Speed: s.getFloat(ctx, repository.KeyVoiceSpeed, model.DefaultVoiceSpeed),
		Pitch: s.getFloat(ctx, repository.KeyVoicePitch, model.DefaultVoicePitch),
	}
}

func (s *Store) SetVoiceName(ctx context.Context, name string) {
	s.setString(ctx, repository.KeyVoice, name)
}

func (s *Store) SetVoiceSpeed(ctx context.Context, speed float64) {
	s.setString(ctx, repository.KeyVoiceSpeed, strconv.FormatFloat(speed, 'f', -1, 64))
}

func (s *Store) SetVoicePitch(ctx context.Context, pitch float64) {
	s.setString(ctx, repository.KeyVoicePitch, strconv.FormatFloat(pitch, 'f', -1, 64))
}

func (s *Store) AutoSpeak(ctx context.Context) bool {
	return s.getString(ctx, repository.KeyAutoSpeak) == "true"
}

func (s *Store) SetAutoSpeak(ctx context.Context, enabled bool) {
	s.setString(ctx, repository.KeyAutoSpeak, strconv.FormatBool(enabled))
}

// ScreensaverSettings returns persisted settings. The prompt is never restored.
func (s *Store) ScreensaverSettings(ctx context.Context) model.ScreensaverSettings {
	settings := model.DefaultScreensaverSettings()
	var persisted model.ScreensaverSettings
	if s.getJSON(ctx, repository.KeyScreensaverSettings, &persisted) {
		settings = persisted
		settings.Prompt = ""
		settings.Normalize()
	}
	return settings
}

func (s *Store) SaveScreensaverSettings(ctx context.Context, settings model.ScreensaverSettings) {
	s.setJSON(ctx, repository.KeyScreensaverSettings, settings)
}

// SaveImageHistory persists the screensaver gallery
func (s *Store) SaveImageHistory(ctx context.Context, images, prompts []string) {
	s.setJSON(ctx, repository.KeyImageHistory, images)
	s.setJSON(ctx, repository.KeyPromptHistory, prompts)
}

// ImageHistory returns the persisted screensaver gallery
func (s *Store) ImageHistory(ctx context.Context) (images, prompts []string) {
	s.getJSON(ctx, repository.KeyImageHistory, &images)
	s.getJSON(ctx, repository.KeyPromptHistory, &prompts)
	return images, prompts
}

func (s *Store) ClearImageHistory(ctx context.Context) {
	s.deleteKey(ctx, repository.KeyImageHistory)
	s.deleteKey(ctx, repository.KeyPromptHistory)
}

func (s *Store) Personalization(ctx context.Context) model.Personalization {
	var p model.Personalization
	s.getJSON(ctx, repository.KeyPersonalization, &p)
	return p
}

func (s *Store) SetPersonalization(ctx context.Context, p model.Personalization) {
	s.setJSON(ctx, repository.KeyPersonalization, p)
}

// IsFirstLaunch reports whether the first-launch greeting is still pending
func (s *Store) IsFirstLaunch(ctx context.Context) bool {
	v := s.getString(ctx, repository.KeyFirstLaunch)
	if v == "" {
		s.setString(ctx, repository.KeyFirstLaunch, "0")
		return true
	}
	return v == "0"
}

func (s *Store) MarkLaunched(ctx context.Context) {
	s.setString(ctx, repository.KeyFirstLaunch, "1")
}

func (s *Store) UserID(ctx context.Context) model.UserID {
	return model.UserID(s.getString(ctx, repository.KeyUserID))
}

func (s *Store) SetUserID(ctx context.Context, id model.UserID) {
	s.setString(ctx, repository.KeyUserID, string(id))
}

// VisitorCount returns the cached visitor count and when it was fetched
func (s *Store) VisitorCount(ctx context.Context) (int64, time.Time, bool) {
	ts, err := strconv.ParseInt(s.getString(ctx, repository.KeyVisitorTimestamp), 10, 64)
	if err != nil {
		return 0, time.Time{}, false
	}
	count, err := strconv.ParseInt(s.getString(ctx, repository.KeyVisitorCount), 10, 64)
	if err != nil {
		return 0, time.Time{}, false
	}
	return count, time.UnixMilli(ts), true
}

func (s *Store) SetVisitorCount(ctx context.Context, count int64, at time.Time) {
	s.setString(ctx, repository.KeyVisitorTimestamp, strconv.FormatInt(at.UnixMilli(), 10))
	s.setString(ctx, repository.KeyVisitorCount, strconv.FormatInt(count, 10))
}

// SetLastCopiedImage keeps a base64 data URL of the last copied image
func (s *Store) SetLastCopiedImage(ctx context.Context, dataURL string) {
	s.setString(ctx, repository.KeyLastCopiedImage, dataURL)
}

func (s *Store) LastCopiedImage(ctx context.Context) string {
	return s.getString(ctx, repository.KeyLastCopiedImage)
}
