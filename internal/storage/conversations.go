// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"database/sql"
	"errors"
	"time"

	"github.com/ryansansbury/model-platform/internal/model"
)

// =============================================================================
// CREATE / UPDATE
// =============================================================================

// CreateConversation allocates a new conversation with zero messages.
// An empty title gets the default.
func (s *Store) CreateConversation(title string) (*model.Conversation, error) {
	conv := model.NewConversation(title)

	_, err := s.db.Exec(`
		INSERT INTO conversations (id, title, created_at, updated_at, message_count, preview)
		VALUES (?, ?, ?, ?, 0, '')
	`, conv.ID, conv.Title, conv.CreatedAt.UnixNano(), conv.UpdatedAt.UnixNano())
	if err != nil {
		return nil, storageErr("create conversation", err)
	}

	return &conv, nil
}

// UpdateConversation merges the non-nil fields of update into the
// conversation and refreshes its updated timestamp. Returns
// ErrConversationNotFound when the id is unknown.
func (s *Store) UpdateConversation(id string, update model.ConversationUpdate) (*model.Conversation, error) {
	now := time.Now().UTC()

	err := s.withTx("update conversation", func(tx *sql.Tx) error {
		if err := conversationExists(tx, id); err != nil {
			return err
		}
		if update.Title != nil {
			if _, err := tx.Exec(`UPDATE conversations SET title = ? WHERE id = ?`, *update.Title, id); err != nil {
				return err
			}
		}
		_, err := tx.Exec(`UPDATE conversations SET updated_at = ? WHERE id = ?`, now.UnixNano(), id)
		return err
	})
	if err != nil {
		return nil, err
	}

	return s.GetConversation(id)
}

// =============================================================================
// READ
// =============================================================================

// GetConversation retrieves a conversation by ID. Returns
// ErrConversationNotFound when absent.
func (s *Store) GetConversation(id string) (*model.Conversation, error) {
	row := s.db.QueryRow(`
		SELECT id, title, created_at, updated_at, message_count, preview
		FROM conversations WHERE id = ?
	`, id)

	conv, err := scanConversation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrConversationNotFound
		}
		return nil, storageErr("get conversation", err)
	}
	return conv, nil
}

// ListConversations returns all conversations, most recently updated
// first.
func (s *Store) ListConversations() ([]*model.Conversation, error) {
	rows, err := s.db.Query(`
		SELECT id, title, created_at, updated_at, message_count, preview
		FROM conversations
		ORDER BY updated_at DESC, created_at DESC
	`)
	if err != nil {
		return nil, storageErr("list conversations", err)
	}
	defer rows.Close()

	var convs []*model.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, storageErr("list conversations", err)
		}
		convs = append(convs, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list conversations", err)
	}
	return convs, nil
}

// =============================================================================
// DELETE
// =============================================================================

// DeleteConversation removes a conversation and all of its messages in
// one transaction. A failure mid-cascade rolls back, never leaving
// orphaned messages or a half-deleted parent. Deleting an unknown id is
// a no-op, matching the bulk-delete tolerance.
func (s *Store) DeleteConversation(id string) error {
	return s.withTx("delete conversation", func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM messages WHERE conversation_id = ?`, id); err != nil {
			return err
		}
		_, err := tx.Exec(`DELETE FROM conversations WHERE id = ?`, id)
		return err
	})
}

// DeleteAllConversations removes every conversation and message. Each
// conversation is its own transaction, so an interruption leaves a valid
// subset deleted rather than a corrupt store.
func (s *Store) DeleteAllConversations() error {
	convs, err := s.ListConversations()
	if err != nil {
		return err
	}
	for _, conv := range convs {
		if err := s.DeleteConversation(conv.ID); err != nil && !errors.Is(err, ErrConversationNotFound) {
			return err
		}
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanConversation(row scanner) (*model.Conversation, error) {
	var conv model.Conversation
	var createdAt, updatedAt int64
	err := row.Scan(&conv.ID, &conv.Title, &createdAt, &updatedAt, &conv.MessageCount, &conv.Preview)
	if err != nil {
		return nil, err
	}
	conv.CreatedAt = time.Unix(0, createdAt).UTC()
	conv.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return &conv, nil
}

// conversationExists returns ErrConversationNotFound if id is not present
// within the transaction.
func conversationExists(tx *sql.Tx, id string) error {
	var one int
	err := tx.QueryRow(`SELECT 1 FROM conversations WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrConversationNotFound
	}
	return err
}
