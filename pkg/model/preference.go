package model

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	DefaultModel      = "unity"
	DefaultVoiceSpeed = 0.9
	DefaultVoicePitch = 1.0
	DefaultTheme      = "dark"
)

type UserID string

// NewUserID generates a short random user identifier
func NewUserID() UserID {
	return UserID(strings.ReplaceAll(uuid.NewString(), "-", "")[:9])
}

// Aspect is the screensaver image aspect ratio
type Aspect string

const (
	AspectWidescreen Aspect = "widescreen"
	AspectSquare     Aspect = "square"
	AspectPortrait   Aspect = "portrait"
)

// Dimensions returns pixel width and height of the aspect
func (a Aspect) Dimensions() (int, int) {
	switch a {
	case AspectSquare:
		return 1024, 1024
	case AspectPortrait:
		return 1080, 1920
	default:
		return 1920, 1080
	}
}

type ScreensaverSettings struct {
	Prompt             string  `json:"prompt" yaml:"prompt"`
	Timer              int     `json:"timer" yaml:"timer"`
	Aspect             Aspect  `json:"aspect" yaml:"aspect"`
	Model              string  `json:"model" yaml:"model"`
	Enhance            bool    `json:"enhance" yaml:"enhance"`
	Private            bool    `json:"priv" yaml:"private"`
	TransitionDuration float64 `json:"transitionDuration" yaml:"transition_duration"`
}

// DefaultScreensaverSettings returns the settings used when nothing was persisted
func DefaultScreensaverSettings() ScreensaverSettings {
	return ScreensaverSettings{
		Timer:              30,
		Aspect:             AspectWidescreen,
		Model:              "flux",
		Enhance:            true,
		Private:            true,
		TransitionDuration: 1,
	}
}

// Normalize fills zero values with defaults
func (s *ScreensaverSettings) Normalize() {
	d := DefaultScreensaverSettings()
	if s.Timer <= 0 {
		s.Timer = d.Timer
	}
	if s.Aspect == "" {
		s.Aspect = d.Aspect
	}
	if s.Model == "" {
		s.Model = d.Model
	}
	if s.TransitionDuration <= 0 {
		s.TransitionDuration = d.TransitionDuration
	}
}

// Personalization holds user-provided profile fields
type Personalization struct {
	Name           string `json:"name" yaml:"name"`
	Interests      string `json:"interests" yaml:"interests"`
	AITraits       string `json:"aiTraits" yaml:"ai_traits"`
	AdditionalInfo string `json:"additionalInfo" yaml:"additional_info"`
}

// PersonalizationPrefix marks the memory entry that carries personalization
const PersonalizationPrefix = "User Personalization:"

// IsEmpty reports whether no field is set
func (p Personalization) IsEmpty() bool {
	return p.Name == "" && p.Interests == "" && p.AITraits == "" && p.AdditionalInfo == ""
}

// MemoryText renders the personalization as a memory entry
func (p Personalization) MemoryText() string {
	var parts []string
	if p.Name != "" {
		parts = append(parts, fmt.Sprintf("Name: %s", p.Name))
	}
	if p.Interests != "" {
		parts = append(parts, fmt.Sprintf("Interests: %s", p.Interests))
	}
	if p.AITraits != "" {
		parts = append(parts, fmt.Sprintf("Preferred AI traits: %s", p.AITraits))
	}
	if p.AdditionalInfo != "" {
		parts = append(parts, fmt.Sprintf("Additional info: %s", p.AdditionalInfo))
	}
	return PersonalizationPrefix + " " + strings.Join(parts, "; ")
}

// Voice holds speech synthesis preferences
type Voice struct {
	Name  string
	Speed float64
	Pitch float64
}
