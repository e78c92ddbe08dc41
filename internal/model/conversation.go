// Package model defines data structures shared by the companion components.
package model

import (
	"encoding/json"
)

// RawConversation is one record of the recent-conversations endpoint.
type RawConversation struct {
	SessionID string          `json:"session_id"`
	Title     string          `json:"title,omitempty"`
	Timestamp json.RawMessage `json:"timestamp,omitempty"`
}

// ConversationSummary is a sidebar listing entry derived from a RawConversation.
type ConversationSummary struct {
	ID           string `json:"id"`
	SessionID    string `json:"session_id"`
	Title        string `json:"title"`
	Time         string `json:"time"`
	MessageCount int    `json:"message_count"`
}

// ListConversationsResponse is the response for listing conversations.
type ListConversationsResponse struct {
	Conversations []ConversationSummary `json:"conversations"`
	Total         int                   `json:"total"`
}
