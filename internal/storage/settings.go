// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import "encoding/json"

// =============================================================================
// SETTINGS
// =============================================================================

// Settings are JSON-shaped values in the kv table. Reads are forgiving:
// absent or malformed values leave the caller's default in place instead
// of surfacing an error.

// SaveSetting stores value under key, JSON-encoded.
func (s *Store) SaveSetting(key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return storageErr("save setting", err)
	}
	return s.setKV(key, string(data))
}

// GetSetting decodes the value stored under key into out and reports
// whether it did. Pre-fill out with the default: on a missing or corrupt
// value GetSetting returns false and leaves out untouched.
func (s *Store) GetSetting(key string, out any) bool {
	raw, ok := s.getKV(key)
	if !ok {
		return false
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false
	}
	return true
}

// GetSettingString is a convenience for string settings.
func (s *Store) GetSettingString(key, defaultValue string) string {
	value := defaultValue
	s.GetSetting(key, &value)
	return value
}

// =============================================================================
// KV PRIMITIVES
// =============================================================================

func (s *Store) setKV(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO kv (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return storageErr("set kv", err)
	}
	return nil
}

func (s *Store) getKV(key string) (string, bool) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err != nil {
		return "", false
	}
	return value, true
}
