package model

import (
	"time"
)

// TabEventType is the kind of browser tab lifecycle event.
type TabEventType string

const (
	TabEventNavigate TabEventType = "navigate"
	TabEventClose    TabEventType = "close"
)

// TabEvent is a tab lifecycle notification from the extension.
type TabEvent struct {
	Type  TabEventType `json:"type"`
	TabID string       `json:"tab_id"`
	URL   string       `json:"url,omitempty"`
	Token string       `json:"token,omitempty"`
}

// NavigationRequest is the companion API body for a completed navigation.
type NavigationRequest struct {
	URL string `json:"url"`
}

// BadgeEvent announces a fresh summary for a tab.
type BadgeEvent struct {
	TabID     string    `json:"tab_id"`
	Origin    string    `json:"origin"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// HeartbeatEvent represents a heartbeat event.
type HeartbeatEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

// ErrorEvent represents an error event.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
