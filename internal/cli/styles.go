// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// styles.go - lipgloss styles for the chat client.
package cli

import (
	"github.com/charmbracelet/lipgloss"
)

func init() {
	// Respect NO_COLOR / FORCE_COLOR and non-TTY output.
	lipgloss.SetColorProfile(GetColorProfile())
}

var (
	// promptStyle renders the interactive prompt prefix.
	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("14")).
			Bold(true)

	// assistantStyle renders assistant output labels.
	assistantStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	// infoStyle renders informational messages.
	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))

	// errorStyle renders error messages.
	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	// titleStyle renders conversation titles in listings.
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")).
			Bold(true)

	// statStyle renders session statistics lines.
	statStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))
)

// styled applies a style only when writing to a TTY.
func styled(style lipgloss.Style, s string) string {
	if !IsStdoutTTY() {
		return s
	}
	return style.Render(s)
}
