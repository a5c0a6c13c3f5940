package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/m-mizutani/chatterbox/pkg/model"
	"github.com/m-mizutani/chatterbox/pkg/utils/logging"
)

// Backend is the subset of the session store that holds memories
type Backend interface {
	Memories(ctx context.Context) []*model.Memory
	AddMemory(ctx context.Context, text string) (*model.Memory, bool)
	RemoveMemory(ctx context.Context, index int) bool
	RemoveMemoryByID(ctx context.Context, id model.MemoryID) bool
	UpdateMemoryAt(ctx context.Context, index int, text string) bool
	ClearAllMemories(ctx context.Context)
}

// Facade validates and deduplicates memory operations
type Facade struct {
	backend Backend
}

func New(backend Backend) *Facade {
	return &Facade{backend: backend}
}

func (f *Facade) List(ctx context.Context) []*model.Memory {
	return f.backend.Memories(ctx)
}

// Texts returns memory texts in order, for request context
func (f *Facade) Texts(ctx context.Context) []string {
	return model.Texts(f.backend.Memories(ctx))
}

// Add stores text as a new entry. Blank and duplicate text is rejected.
func (f *Facade) Add(ctx context.Context, text string) bool {
	logger := logging.From(ctx)
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		logger.Warn("attempted to add an empty memory entry")
		return false
	}
	if _, added := f.backend.AddMemory(ctx, trimmed); !added {
		logger.Debug("skipping duplicate memory entry", "text", trimmed)
		return false
	}
	logger.Info("memory added", "text", preview(trimmed))
	return true
}

// Remove deletes the entry at a display index
func (f *Facade) Remove(ctx context.Context, index int) bool {
	if !f.backend.RemoveMemory(ctx, index) {
		logging.From(ctx).Warn("invalid memory index", "index", index)
		return false
	}
	return true
}

// RemoveByID deletes the entry with id
func (f *Facade) RemoveByID(ctx context.Context, id model.MemoryID) bool {
	return f.backend.RemoveMemoryByID(ctx, id)
}

// Update replaces the text of the entry at a display index
func (f *Facade) Update(ctx context.Context, index int, text string) bool {
	if strings.TrimSpace(text) == "" {
		logging.From(ctx).Warn("blank text for memory update", "index", index)
		return false
	}
	if !f.backend.UpdateMemoryAt(ctx, index, text) {
		logging.From(ctx).Warn("invalid memory index", "index", index)
		return false
	}
	return true
}

// UpdateOrAdd removes the first entry containing pattern, then adds text
func (f *Facade) UpdateOrAdd(ctx context.Context, pattern, text string) bool {
	for _, m := range f.backend.Memories(ctx) {
		if strings.Contains(m.Text, pattern) {
			f.backend.RemoveMemoryByID(ctx, m.ID)
			break
		}
	}
	return f.Add(ctx, text)
}

// SetVoicePreference records whether the user wants replies spoken
func (f *Facade) SetVoicePreference(ctx context.Context, enabled bool) bool {
	mode := "not spoken"
	if enabled {
		mode = "spoken aloud"
	}
	text := fmt.Sprintf("Voice Preference: User prefers AI responses to be %s.", mode)
	return f.UpdateOrAdd(ctx, "Voice Preference:", text)
}

// SetPersonalization keeps a single personalization entry in sync with p
func (f *Facade) SetPersonalization(ctx context.Context, p model.Personalization) bool {
	for _, m := range f.backend.Memories(ctx) {
		if strings.HasPrefix(m.Text, model.PersonalizationPrefix) {
			f.backend.RemoveMemoryByID(ctx, m.ID)
			break
		}
	}
	if p.IsEmpty() {
		return true
	}
	return f.Add(ctx, p.MemoryText())
}

func (f *Facade) Clear(ctx context.Context) {
	f.backend.ClearAllMemories(ctx)
	logging.From(ctx).Info("all memories cleared")
}

func preview(s string) string {
	r := []rune(s)
	if len(r) > 50 {
		return string(r[:50]) + "..."
	}
	return s
}
