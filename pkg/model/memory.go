package model

import (
	"github.com/google/uuid"
)

type MemoryID string

// NewMemoryID generates a new unique MemoryID
func NewMemoryID() MemoryID {
	return MemoryID(uuid.New().String())
}

// Memory is a short persisted fact injected into future requests as context
type Memory struct {
	ID   MemoryID `json:"id"`
	Text string   `json:"text"`
}

// Texts returns the text of every memory in order
func Texts(memories []*Memory) []string {
	out := make([]string, 0, len(memories))
	for _, m := range memories {
		out = append(out, m.Text)
	}
	return out
}
