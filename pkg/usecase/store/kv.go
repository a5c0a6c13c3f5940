package store

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/m-mizutani/chatterbox/pkg/utils/logging"
)

func (s *Store) getString(ctx context.Context, key string) string {
	v, ok, err := s.repo.Get(ctx, key)
	if err != nil {
		logging.From(ctx).Warn("failed to read persisted value", "key", key, "error", err)
		return ""
	}
	if !ok {
		return ""
	}
	return v
}

func (s *Store) setString(ctx context.Context, key, value string) {
	if err := s.repo.Set(ctx, key, value); err != nil {
		s.reportWriteFailure(ctx, key, err)
	}
}

func (s *Store) deleteKey(ctx context.Context, key string) {
	if err := s.repo.Delete(ctx, key); err != nil {
		s.reportWriteFailure(ctx, key, err)
	}
}

func (s *Store) setJSON(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.reportWriteFailure(ctx, key, err)
		return
	}
	s.setString(ctx, key, string(data))
}

// getJSON decodes the value of key into v. It reports whether a value was decoded.
func (s *Store) getJSON(ctx context.Context, key string, v any) bool {
	raw := s.getString(ctx, key)
	if raw == "" {
		return false
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		logging.From(ctx).Warn("failed to parse persisted value", "key", key, "error", err)
		return false
	}
	return true
}

func (s *Store) getFloat(ctx context.Context, key string, fallback float64) float64 {
	raw := s.getString(ctx, key)
	if raw == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f <= 0 {
		return fallback
	}
	return f
}

func (s *Store) reportWriteFailure(ctx context.Context, key string, err error) {
	logging.From(ctx).Error("failed to persist state", "key", key, "error", err)
	s.notifier.Notify(ctx, "Couldn't save your data. Changes are kept for this run only.")
}
