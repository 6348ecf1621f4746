// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ryansansbury/model-platform/internal/model"
)

// =============================================================================
// APPEND
// =============================================================================

// AddMessage persists a message and recomputes the owning conversation's
// message count, preview, and updated timestamp from the live rows. The
// insert and the recompute share one transaction, so the denormalized
// fields can never go stale.
func (s *Store) AddMessage(conversationID string, role model.Role, content string, metadata *model.Metadata) (*model.Message, error) {
	if !role.Valid() {
		return nil, storageErr("add message", fmt.Errorf("invalid role %q", role))
	}

	msg := model.NewMessage(conversationID, role, content)
	msg.Metadata = metadata

	var metaJSON sql.NullString
	if metadata != nil {
		data, err := json.Marshal(metadata)
		if err != nil {
			return nil, storageErr("add message", err)
		}
		metaJSON = sql.NullString{String: string(data), Valid: true}
	}

	err := s.withTx("add message", func(tx *sql.Tx) error {
		if err := conversationExists(tx, conversationID); err != nil {
			return err
		}

		_, err := tx.Exec(`
			INSERT INTO messages (id, conversation_id, role, content, created_at, metadata)
			VALUES (?, ?, ?, ?, ?, ?)
		`, msg.ID, msg.ConversationID, string(msg.Role), msg.Content, msg.CreatedAt.UnixNano(), metaJSON)
		if err != nil {
			return err
		}

		return recomputeConversation(tx, conversationID, model.MakePreview(content), msg.CreatedAt)
	})
	if err != nil {
		return nil, err
	}

	return &msg, nil
}

// =============================================================================
// READ
// =============================================================================

// ListMessages returns a conversation's messages in ascending timestamp
// order. An unknown conversation yields an empty slice, matching the
// post-delete contract.
func (s *Store) ListMessages(conversationID string) ([]*model.Message, error) {
	rows, err := s.db.Query(`
		SELECT id, conversation_id, role, content, created_at, metadata
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at ASC, rowid ASC
	`, conversationID)
	if err != nil {
		return nil, storageErr("list messages", err)
	}
	defer rows.Close()

	msgs := []*model.Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, storageErr("list messages", err)
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list messages", err)
	}
	return msgs, nil
}

// =============================================================================
// DELETE
// =============================================================================

// DeleteMessage removes a single message and recomputes the owning
// conversation's denormalized fields in the same transaction. Returns
// ErrMessageNotFound when the id is unknown.
func (s *Store) DeleteMessage(id string) error {
	return s.withTx("delete message", func(tx *sql.Tx) error {
		var conversationID string
		err := tx.QueryRow(`SELECT conversation_id FROM messages WHERE id = ?`, id).Scan(&conversationID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrMessageNotFound
		}
		if err != nil {
			return err
		}

		if _, err := tx.Exec(`DELETE FROM messages WHERE id = ?`, id); err != nil {
			return err
		}

		// The new last message (if any) supplies the preview.
		var preview string
		err = tx.QueryRow(`
			SELECT content FROM messages
			WHERE conversation_id = ?
			ORDER BY created_at DESC, rowid DESC
			LIMIT 1
		`, conversationID).Scan(&preview)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		return recomputeConversation(tx, conversationID, model.MakePreview(preview), time.Now().UTC())
	})
}

// =============================================================================
// HELPERS
// =============================================================================

// recomputeConversation refreshes a conversation's denormalized fields
// from the live message rows. Must run inside the transaction that
// mutated the messages table.
func recomputeConversation(tx *sql.Tx, conversationID, preview string, updatedAt time.Time) error {
	var count int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM messages WHERE conversation_id = ?`, conversationID).Scan(&count); err != nil {
		return err
	}

	_, err := tx.Exec(`
		UPDATE conversations
		SET message_count = ?, preview = ?, updated_at = ?
		WHERE id = ?
	`, count, preview, updatedAt.UnixNano(), conversationID)
	return err
}

func scanMessage(row scanner) (*model.Message, error) {
	var msg model.Message
	var role string
	var createdAt int64
	var metaJSON sql.NullString

	err := row.Scan(&msg.ID, &msg.ConversationID, &role, &msg.Content, &createdAt, &metaJSON)
	if err != nil {
		return nil, err
	}
	msg.Role = model.Role(role)
	msg.CreatedAt = time.Unix(0, createdAt).UTC()

	if metaJSON.Valid && metaJSON.String != "" {
		var meta model.Metadata
		if err := json.Unmarshal([]byte(metaJSON.String), &meta); err == nil {
			msg.Metadata = &meta
		}
	}
	return &msg, nil
}
