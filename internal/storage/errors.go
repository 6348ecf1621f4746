// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import "errors"

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrConversationNotFound is returned when a conversation doesn't exist.
	// Use errors.Is(err, ErrConversationNotFound) to check for this error.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrMessageNotFound is returned when a message doesn't exist.
	ErrMessageNotFound = errors.New("message not found")
)

// StorageError wraps a failed database operation. Callers that don't care
// which operation failed can match on the type; the underlying driver
// error stays reachable through Unwrap.
type StorageError struct {
	Op  string // operation that failed, e.g. "add message"
	Err error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return "storage: " + e.Op + ": " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// storageErr wraps err in a StorageError unless it is already a domain
// sentinel that callers match with errors.Is.
func storageErr(op string, err error) error {
	if errors.Is(err, ErrConversationNotFound) || errors.Is(err, ErrMessageNotFound) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
