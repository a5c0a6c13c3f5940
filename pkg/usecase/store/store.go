package store

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/chatterbox/pkg/interfaces"
	"github.com/m-mizutani/chatterbox/pkg/model"
	"github.com/m-mizutani/chatterbox/pkg/repository"
	"github.com/m-mizutani/chatterbox/pkg/utils/logging"
)

// Store exclusively owns persisted chat state: sessions, the current-session pointer,
// memories and preferences. Sessions handed out are copies.
//
// Writes are best-effort. A failed write is logged and notified, and the in-memory
// state is kept, so memory and the repository may diverge until the next good write.
type Store struct {
	mu       sync.Mutex
	repo     repository.Repository
	notifier interfaces.Notifier
	now      func() time.Time

	sessions []*model.Session
	current  model.SessionID
	lastID   int64
}

type Option func(*Store)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithNotifier sets the notifier used to surface persistence failures
func WithNotifier(n interfaces.Notifier) Option {
	return func(s *Store) {
		s.notifier = n
	}
}

// New loads persisted sessions and makes sure a current session exists
func New(ctx context.Context, repo repository.Repository, opts ...Option) (*Store, error) {
	s := &Store{
		repo:     repo,
		now:      time.Now,
		notifier: interfaces.NotifierFunc(func(context.Context, string) {}),
	}
	for _, opt := range opts {
		opt(s)
	}

	raw, ok, err := repo.Get(ctx, repository.KeySessions)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load sessions")
	}
	if ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &s.sessions); err != nil {
			return nil, goerr.Wrap(err, "failed to parse persisted sessions")
		}
	}

	if v, ok, err := repo.Get(ctx, repository.KeyCurrentSession); err != nil {
		return nil, goerr.Wrap(err, "failed to load current session pointer")
	} else if ok {
		s.current = model.SessionID(v)
	}

	if _, ok := s.currentID(); !ok {
		session := s.createLocked(ctx, model.DefaultSessionName)
		s.setCurrentLocked(ctx, session.ID)
	}

	return s, nil
}

// Sessions returns every session, most recently updated first
func (s *Store) Sessions(ctx context.Context) []*model.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*model.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastUpdated > out[j].LastUpdated
	})
	return out
}

// CreateSession appends a new empty session. It does not become current.
func (s *Store) CreateSession(ctx context.Context, name string) *model.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(ctx, name).Clone()
}

func (s *Store) createLocked(ctx context.Context, name string) *model.Session {
	now := s.now()
	id := now.UnixMilli()
	if id <= s.lastID {
		id = s.lastID + 1
	}
	for s.findLocked(model.NewSessionID(time.UnixMilli(id))) != nil {
		id++
	}
	s.lastID = id

	session := &model.Session{
		ID:          model.NewSessionID(time.UnixMilli(id)),
		Name:        name,
		Model:       s.defaultModel(ctx),
		Messages:    []*model.Message{},
		LastUpdated: now.UnixMilli(),
	}
	s.sessions = append(s.sessions, session)
	s.saveSessionsLocked(ctx)

	logging.From(ctx).Debug("session created", "id", session.ID, "name", name)
	return session
}

// GetSession returns a copy of the session with id
func (s *Store) GetSession(ctx context.Context, id model.SessionID) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session := s.findLocked(id)
	if session == nil {
		return nil, goerr.Wrap(model.ErrSessionNotFound, "failed to get session", goerr.V("id", id))
	}
	return session.Clone(), nil
}

// CurrentSession resolves the current-session pointer. A missing or dangling pointer
// transparently yields a freshly created "New Chat" session that becomes current.
func (s *Store) CurrentSession(ctx context.Context) *model.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentLocked(ctx).Clone()
}

func (s *Store) currentLocked(ctx context.Context) *model.Session {
	if id, ok := s.currentID(); ok {
		if session := s.findLocked(id); session != nil {
			return session
		}
	}
	session := s.createLocked(ctx, model.DefaultSessionName)
	s.setCurrentLocked(ctx, session.ID)
	return session
}

// SetCurrentSession moves the current-session pointer
func (s *Store) SetCurrentSession(ctx context.Context, id model.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.findLocked(id) == nil {
		return goerr.Wrap(model.ErrSessionNotFound, "failed to switch session", goerr.V("id", id))
	}
	s.setCurrentLocked(ctx, id)
	return nil
}

// UpdateSessionMessages replaces the message list of a session wholesale
func (s *Store) UpdateSessionMessages(ctx context.Context, id model.SessionID, messages []*model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session := s.findLocked(id)
	if session == nil {
		return goerr.Wrap(model.ErrSessionNotFound, "failed to update messages", goerr.V("id", id))
	}
	session.Messages = model.CloneMessages(messages)
	session.Touch(s.now())
	s.saveSessionsLocked(ctx)
	return nil
}

// AppendMessage adds msg at the end of a session and returns its index
func (s *Store) AppendMessage(ctx context.Context, id model.SessionID, msg *model.Message) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session := s.findLocked(id)
	if session == nil {
		return -1, goerr.Wrap(model.ErrSessionNotFound, "failed to append message", goerr.V("id", id))
	}
	c := *msg
	session.Messages = append(session.Messages, &c)
	session.Touch(s.now())
	s.saveSessionsLocked(ctx)
	return len(session.Messages) - 1, nil
}

// RenameSession sets the display name. A name that is a JSON object is unwrapped to its
// "response" or "chatTitle" field.
func (s *Store) RenameSession(ctx context.Context, id model.SessionID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session := s.findLocked(id)
	if session == nil {
		return goerr.Wrap(model.ErrSessionNotFound, "failed to rename session", goerr.V("id", id))
	}
	session.Name = CleanSessionName(ctx, name)
	session.Touch(s.now())
	s.saveSessionsLocked(ctx)
	return nil
}

// CleanSessionName unwraps legacy JSON-encoded names
func CleanSessionName(ctx context.Context, name string) string {
	trimmed := strings.TrimSpace(name)
	if !strings.HasPrefix(trimmed, "{") || !strings.HasSuffix(trimmed, "}") {
		return trimmed
	}

	var parsed struct {
		Response  string `json:"response"`
		ChatTitle string `json:"chatTitle"`
	}
	if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
		logging.From(ctx).Warn("failed to parse session name JSON", "name", trimmed, "error", err)
		return trimmed
	}
	switch {
	case parsed.Response != "":
		return parsed.Response
	case parsed.ChatTitle != "":
		return parsed.ChatTitle
	default:
		return trimmed
	}
}

// DeleteSession removes a session. When it was current, the pointer moves to a remaining
// session or to a new "New Chat" session.
func (s *Store) DeleteSession(ctx context.Context, id model.SessionID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.sessions[:0]
	for _, session := range s.sessions {
		if session.ID != id {
			kept = append(kept, session)
		}
	}
	s.sessions = kept
	s.saveSessionsLocked(ctx)

	current, ok := s.currentID()
	if ok && current != id {
		return
	}
	if len(s.sessions) > 0 {
		s.setCurrentLocked(ctx, s.sessions[0].ID)
		return
	}
	session := s.createLocked(ctx, model.DefaultSessionName)
	s.setCurrentLocked(ctx, session.ID)
}

// SetSessionModel updates the model of a session and the default model for new sessions
func (s *Store) SetSessionModel(ctx context.Context, id model.SessionID, modelName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session := s.findLocked(id)
	if session == nil {
		return goerr.Wrap(model.ErrSessionNotFound, "failed to set session model", goerr.V("id", id))
	}
	session.Model = modelName
	session.Touch(s.now())
	s.saveSessionsLocked(ctx)
	s.setString(ctx, repository.KeyDefaultModel, modelName)
	return nil
}

// DefaultModel returns the model used for new sessions
func (s *Store) DefaultModel(ctx context.Context) string {
	return s.defaultModel(ctx)
}

// SetDefaultModel sets the model used for new sessions
func (s *Store) SetDefaultModel(ctx context.Context, modelName string) {
	s.setString(ctx, repository.KeyDefaultModel, modelName)
	logging.From(ctx).Info("default model preference set", "model", modelName)
}

func (s *Store) defaultModel(ctx context.Context) string {
	if v := s.getString(ctx, repository.KeyDefaultModel); v != "" {
		return v
	}
	return model.DefaultModel
}

// ClearAllSessions wipes every session and leaves exactly one empty current session
func (s *Store) ClearAllSessions(ctx context.Context) *model.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions = nil
	s.saveSessionsLocked(ctx)
	s.current = ""
	s.deleteKey(ctx, repository.KeyCurrentSession)

	session := s.createLocked(ctx, model.DefaultSessionName)
	s.setCurrentLocked(ctx, session.ID)
	return session.Clone()
}

// DeleteAllUserData wipes the whole repository and starts over with one empty session
func (s *Store) DeleteAllUserData(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.Clear(ctx); err != nil {
		s.reportWriteFailure(ctx, "all user data", err)
	}
	s.sessions = nil
	s.current = ""
	session := s.createLocked(ctx, model.DefaultSessionName)
	s.setCurrentLocked(ctx, session.ID)
}

func (s *Store) findLocked(id model.SessionID) *model.Session {
	for _, session := range s.sessions {
		if session.ID == id {
			return session
		}
	}
	return nil
}

func (s *Store) currentID() (model.SessionID, bool) {
	return s.current, s.current != ""
}

func (s *Store) setCurrentLocked(ctx context.Context, id model.SessionID) {
	s.current = id
	s.setString(ctx, repository.KeyCurrentSession, string(id))
}

func (s *Store) saveSessionsLocked(ctx context.Context) {
	sessions := s.sessions
	if sessions == nil {
		sessions = []*model.Session{}
	}
	s.setJSON(ctx, repository.KeySessions, sessions)
}
