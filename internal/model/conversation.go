// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// PreviewLength is the fixed truncation length for the denormalized
// last-message preview stored on a conversation.
const PreviewLength = 80

// DefaultTitle is used when a conversation is created without a title.
const DefaultTitle = "New conversation"

// Conversation represents a persisted conversation.
//
// MessageCount and Preview are denormalized from the message table and are
// recomputed inside the same transaction as every append, so they never go
// stale relative to the persisted messages.
type Conversation struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
	Preview      string    `json:"preview"`
}

// NewConversation creates a conversation with a fresh ID and both timestamps
// set to now. An empty title falls back to DefaultTitle.
func NewConversation(title string) Conversation {
	if strings.TrimSpace(title) == "" {
		title = DefaultTitle
	}
	now := time.Now().UTC()
	return Conversation{
		ID:        uuid.NewString(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// MakePreview derives the denormalized preview from message content:
// newlines collapsed, truncated to PreviewLength runes.
func MakePreview(content string) string {
	content = strings.ReplaceAll(content, "\n", " ")
	content = strings.ReplaceAll(content, "\r", "")
	runes := []rune(content)
	if len(runes) <= PreviewLength {
		return content
	}
	return string(runes[:PreviewLength-3]) + "..."
}

// =============================================================================
// CONVERSATION UPDATE
// =============================================================================

// ConversationUpdate carries the fields of a partial conversation update.
// Nil fields are left unchanged; UpdatedAt is always refreshed by the store.
type ConversationUpdate struct {
	Title *string
}
