package repository

import (
	"context"
)

// Repository is a string key-value store holding all persisted client state
type Repository interface {
	// Get returns the value stored under key. ok is false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set stores value under key, replacing any previous value
	Set(ctx context.Context, key, value string) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Clear removes every key
	Clear(ctx context.Context) error

	// Close releases underlying resources
	Close() error
}

// Keys of persisted state
const (
	KeyCurrentSession      = "currentSessionId"
	KeySessions            = "sessions"
	KeyMemories            = "memories"
	KeyDefaultModel        = "defaultModelPreference"
	KeyTheme               = "theme"
	KeyVoice               = "selectedVoice"
	KeyVoiceSpeed          = "voiceSpeed"
	KeyVoicePitch          = "voicePitch"
	KeyAutoSpeak           = "autoSpeakEnabled"
	KeyScreensaverSettings = "screensaverSettings"
	KeyImageHistory        = "imageHistory"
	KeyPromptHistory       = "promptHistory"
	KeyPersonalization     = "userPersonalization"
	KeyFirstLaunch         = "firstLaunch"
	KeyUserID              = "uniqueUserId"
	KeyVisitorTimestamp    = "visitor_ts"
	KeyVisitorCount        = "visitor_cnt"
	KeyLastCopiedImage     = "lastCopiedImage"
)
