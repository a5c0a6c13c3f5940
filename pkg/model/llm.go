package model

import "strings"

// ChatMessage is one entry of an outbound chat completion request
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body posted to the chat completion endpoint
type ChatRequest struct {
	Messages []ChatMessage `json:"messages"`
	Model    string        `json:"model"`
	Stream   bool          `json:"stream"`
	Nonce    string        `json:"nonce"`
}

// ModelInfo describes one entry of the remote model listing
type ModelInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Type        string   `json:"type"`
	Censored    *bool    `json:"censored,omitempty"`
	Reasoning   bool     `json:"reasoning"`
	Vision      bool     `json:"vision"`
	Audio       bool     `json:"audio"`
	Voices      []string `json:"voices"`
	Provider    string   `json:"provider"`
}

// Label is the display text of a model entry
func (m *ModelInfo) Label() string {
	if m.Description != "" {
		return m.Description
	}
	return m.Name
}

// Tooltip summarises the capabilities of a model
func (m *ModelInfo) Tooltip() string {
	tip := m.Label()
	if m.Censored != nil {
		if *m.Censored {
			tip += " (Censored)"
		} else {
			tip += " (Uncensored)"
		}
	}
	if m.Reasoning {
		tip += " | Reasoning"
	}
	if m.Vision {
		tip += " | Vision"
	}
	if m.Audio {
		voices := "N/A"
		if len(m.Voices) > 0 {
			voices = strings.Join(m.Voices, ", ")
		}
		tip += " | Audio: " + voices
	}
	if m.Provider != "" {
		tip += " | Provider: " + m.Provider
	}
	return tip
}
