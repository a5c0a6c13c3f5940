package store

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/m-mizutani/chatterbox/pkg/model"
	"github.com/m-mizutani/chatterbox/pkg/repository"
	"github.com/m-mizutani/chatterbox/pkg/utils/logging"
)

// Memories returns the global memory list in insertion order
func (s *Store) Memories(ctx context.Context) []*model.Memory {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadMemoriesLocked(ctx)
}

// AddMemory appends text unless an entry with the same trimmed text exists. The
// returned bool is false for duplicates and blank input.
func (s *Store) AddMemory(ctx context.Context, text string) (*model.Memory, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, false
	}
	memories := s.loadMemoriesLocked(ctx)
	for _, m := range memories {
		if m.Text == text {
			return m, false
		}
	}
	entry := &model.Memory{ID: model.NewMemoryID(), Text: text}
	s.saveMemoriesLocked(ctx, append(memories, entry))
	return entry, true
}

// RemoveMemory deletes the entry at index
func (s *Store) RemoveMemory(ctx context.Context, index int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	memories := s.loadMemoriesLocked(ctx)
	if index < 0 || index >= len(memories) {
		return false
	}
	s.saveMemoriesLocked(ctx, append(memories[:index], memories[index+1:]...))
	return true
}

// RemoveMemoryByID deletes the entry with id
func (s *Store) RemoveMemoryByID(ctx context.Context, id model.MemoryID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	memories := s.loadMemoriesLocked(ctx)
	for i, m := range memories {
		if m.ID == id {
			s.saveMemoriesLocked(ctx, append(memories[:i], memories[i+1:]...))
			return true
		}
	}
	return false
}

// UpdateMemoryAt replaces the text of the entry at index
func (s *Store) UpdateMemoryAt(ctx context.Context, index int, text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	memories := s.loadMemoriesLocked(ctx)
	if index < 0 || index >= len(memories) {
		return false
	}
	memories[index].Text = text
	s.saveMemoriesLocked(ctx, memories)
	return true
}

// ClearAllMemories removes every memory entry
func (s *Store) ClearAllMemories(ctx context.Context) {
	s.deleteKey(ctx, repository.KeyMemories)
}

func (s *Store) loadMemoriesLocked(ctx context.Context) []*model.Memory {
	raw := s.getString(ctx, repository.KeyMemories)
	if raw == "" {
		return nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		logging.From(ctx).Warn("failed to parse memories", "error", err)
		return nil
	}

	memories := make([]*model.Memory, 0, len(items))
	migrated := false
	for _, item := range items {
		// Entries written by older clients are bare strings
		var text string
		if err := json.Unmarshal(item, &text); err == nil {
			memories = append(memories, &model.Memory{ID: model.NewMemoryID(), Text: text})
			migrated = true
			continue
		}
		var m model.Memory
		if err := json.Unmarshal(item, &m); err != nil {
			logging.From(ctx).Warn("skipping unreadable memory entry", "error", err)
			continue
		}
		if m.ID == "" {
			m.ID = model.NewMemoryID()
			migrated = true
		}
		memories = append(memories, &m)
	}
	if migrated {
		s.saveMemoriesLocked(ctx, memories)
	}
	return memories
}

func (s *Store) saveMemoriesLocked(ctx context.Context, memories []*model.Memory) {
	if memories == nil {
		memories = []*model.Memory{}
	}
	s.setJSON(ctx, repository.KeyMemories, memories)
}
