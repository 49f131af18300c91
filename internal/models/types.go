package models

import (
	"fmt"
	"time"
)

// ChatRequest is the inbound payload from the game mod.
type ChatRequest struct {
	PlayerName string `json:"playerName"`
	PlayerUUID string `json:"playerUUID"`
	Message    string `json:"message"`
	PlayerX    *int   `json:"playerX,omitempty"`
	PlayerY    *int   `json:"playerY,omitempty"`
	PlayerZ    *int   `json:"playerZ,omitempty"`
}

// MaxMessageLength bounds a single inbound chat message.
const MaxMessageLength = 500

// Validate checks the request against the inbound contract.
func (r *ChatRequest) Validate() error {
	if r.PlayerName == "" {
		return fmt.Errorf("playerName is required")
	}
	if r.PlayerUUID == "" {
		return fmt.Errorf("playerUUID is required")
	}
	if r.Message == "" {
		return fmt.Errorf("message is required")
	}
	if len(r.Message) > MaxMessageLength {
		return fmt.Errorf("message exceeds %d characters", MaxMessageLength)
	}
	return nil
}

// Session binds a player UUID to a remote conversation. Recency is tracked
// by the cache that owns the session; the session itself only carries
// backend handles.
type Session struct {
	ChatKey        string
	ConversationID string
	// UserID is the remote identity created for the player. Any message in
	// the conversation authored by a different user id is a bot reply.
	UserID            string
	LastSeenMessageID string
}

// RateLimitEntry records the last accepted request time for one player.
type RateLimitEntry struct {
	LastRequestAt time.Time
}
