package model

import (
	"strconv"
	"time"
)

// DefaultSessionName is the placeholder name of a session that has not been titled yet
const DefaultSessionName = "New Chat"

type SessionID string

// NewSessionID derives a session ID from its creation time
func NewSessionID(now time.Time) SessionID {
	return SessionID(strconv.FormatInt(now.UnixMilli(), 10))
}

// Session is an independently persisted conversation thread
type Session struct {
	ID          SessionID  `json:"id"`
	Name        string     `json:"name"`
	Model       string     `json:"model"`
	Messages    []*Message `json:"messages"`
	LastUpdated int64      `json:"lastUpdated"`
}

// UpdatedAt returns LastUpdated as time.Time
func (s *Session) UpdatedAt() time.Time {
	return time.UnixMilli(s.LastUpdated)
}

// Touch refreshes LastUpdated
func (s *Session) Touch(now time.Time) {
	s.LastUpdated = now.UnixMilli()
}

// Clone returns a deep copy so callers never share message slices with the store
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Messages = CloneMessages(s.Messages)
	return &c
}

// IsUntitled reports whether the session still carries the placeholder name
func (s *Session) IsUntitled() bool {
	return s.Name == "" || s.Name == DefaultSessionName
}
