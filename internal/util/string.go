// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

// UNICODE: Rune-aware truncation preserves multi-byte characters.
// Byte-index slicing would corrupt UTF-8 sequences mid-character.

// TruncateRunes truncates a string to a maximum number of runes.
// If the string is truncated, "..." replaces the final three runes.
func TruncateRunes(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	if maxRunes <= 3 {
		return string(runes[:maxRunes])
	}
	return string(runes[:maxRunes-3]) + "..."
}

// RuneLen returns the number of runes (characters) in a string.
// Safer than len() when counting user-visible characters.
func RuneLen(s string) int {
	return len([]rune(s))
}
