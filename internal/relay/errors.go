// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package relay

import (
	"errors"
	"fmt"
)

// =============================================================================
// ERRORS
// =============================================================================

// ErrMissingCredential indicates no API key is configured for the
// requested provider. Use errors.Is to match; the concrete error names
// the provider.
var ErrMissingCredential = errors.New("missing credential")

// MissingCredentialError reports which provider lacked a key.
type MissingCredentialError struct {
	Provider string
}

// Error implements the error interface.
func (e *MissingCredentialError) Error() string {
	return fmt.Sprintf("no API key configured for provider %q", e.Provider)
}

// Is allows matching with errors.Is(err, ErrMissingCredential).
func (e *MissingCredentialError) Is(target error) bool {
	return target == ErrMissingCredential
}

// RelayError represents a failed backend request: a network-level failure
// has Status zero, a non-2xx response carries the HTTP status and the
// backend's error message.
type RelayError struct {
	Status  int
	Message string
}

// Error implements the error interface.
func (e *RelayError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("backend error (HTTP %d): %s", e.Status, e.Message)
	}
	return "backend error: " + e.Message
}

// ProviderError is an error payload embedded in an otherwise successful
// response or stream, reported by the upstream provider. Error returns
// the provider's message verbatim.
type ProviderError struct {
	Message string
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	return e.Message
}
