// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"encoding/base64"
	"encoding/json"
)

// =============================================================================
// CREDENTIALS
// =============================================================================

// Credentials map provider name to API key. They are stored base64-encoded
// over JSON: reversible obfuscation to keep keys out of casual greps, NOT
// encryption and NOT a security boundary. Keys never leave this machine
// except inside a chat request to the user's own backend.
//
// Reads never fail: a missing or corrupt stored value yields an empty map.

// credentialsKey is the fixed kv key holding the credential set.
const credentialsKey = "credentials"

// SaveCredentials stores the full provider-to-key map, replacing any
// previous set.
func (s *Store) SaveCredentials(creds map[string]string) error {
	if creds == nil {
		creds = map[string]string{}
	}
	data, err := json.Marshal(creds)
	if err != nil {
		return storageErr("save credentials", err)
	}
	encoded := base64.StdEncoding.EncodeToString(data)
	return s.setKV(credentialsKey, encoded)
}

// GetCredentials returns the stored credential set. Corruption at either
// decode layer is swallowed and an empty map returned.
func (s *Store) GetCredentials() map[string]string {
	raw, ok := s.getKV(credentialsKey)
	if !ok {
		return map[string]string{}
	}

	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return map[string]string{}
	}

	var creds map[string]string
	if err := json.Unmarshal(data, &creds); err != nil || creds == nil {
		return map[string]string{}
	}
	return creds
}

// GetCredential returns the API key for provider, if configured.
func (s *Store) GetCredential(provider string) (string, bool) {
	key, ok := s.GetCredentials()[provider]
	return key, ok && key != ""
}

// HasAnyCredential reports whether at least one provider has a key.
func (s *Store) HasAnyCredential() bool {
	for _, key := range s.GetCredentials() {
		if key != "" {
			return true
		}
	}
	return false
}

// SetCredential stores or replaces the key for a single provider.
func (s *Store) SetCredential(provider, key string) error {
	creds := s.GetCredentials()
	creds[provider] = key
	return s.SaveCredentials(creds)
}
