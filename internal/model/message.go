package model

import (
	"encoding/json"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is a role the transcript can display.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Provenance tags where a transcript entry came from.
type Provenance string

const (
	// ProvenanceOptimistic marks a local append not yet acknowledged by the backend.
	ProvenanceOptimistic Provenance = "optimistic"
	// ProvenanceConfirmed marks content the backend produced or stored.
	ProvenanceConfirmed Provenance = "confirmed"
	// ProvenanceSynthetic marks client-generated text such as error notices.
	ProvenanceSynthetic Provenance = "synthetic"
)

// Message is one transcript entry. ID is the 1-based position in the transcript.
type Message struct {
	ID         int        `json:"id"`
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	Timestamp  string     `json:"timestamp"`
	Provenance Provenance `json:"provenance"`
}

// RawMessage is a history record as the memory endpoint returns it.
// Timestamp arrives in several shapes and is parsed tolerantly.
type RawMessage struct {
	Role      string          `json:"role"`
	Content   string          `json:"content"`
	Timestamp json.RawMessage `json:"timestamp,omitempty"`
}

// HistoryResponse is the body of the conversation-history endpoint.
// Messages are kept raw so one malformed record cannot spoil the rest.
type HistoryResponse struct {
	Messages []json.RawMessage `json:"messages"`
}

// ChatRequest is the body posted to the chat endpoint.
type ChatRequest struct {
	Question  string `json:"question"`
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
}

// SendMessageRequest is the companion API request to send a message.
type SendMessageRequest struct {
	Content string `json:"content"`
}

// Transcript is the current conversation state exposed to the dashboard.
type Transcript struct {
	UserID    string    `json:"user_id"`
	SessionID string    `json:"session_id"`
	Messages  []Message `json:"messages"`
	Typing    bool      `json:"typing"`
}
