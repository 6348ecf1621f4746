// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - CLI parsing and command dispatch for the chat client.
package cli

import (
	"fmt"
	"os"
	"strings"
)

// Version information (can be overridden at build time)
var (
	Version   = "1.0.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdChat Command = iota
	CmdList
	CmdModels
	CmdKey
	CmdConfig
	CmdVersion
	CmdHelp
)

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	Quiet    bool
	Provider string
	Model    string

	// Command-specific
	Subcommand string

	// Raw args (remaining after flag parsing)
	Raw []string
}

const usageText = `model-platform - multi-provider AI chat for the terminal

Chat with OpenAI, Anthropic, Google, xAI, DeepSeek, and Groq models through
one interface. Conversations are stored locally; API keys never leave your
machine except to reach the provider you chose.

Usage:
  model-platform                   Start interactive chat
  model-platform chat              Start interactive chat
  model-platform list              List saved conversations
  model-platform models [provider] List available models
  model-platform key <provider>    Store an API key for a provider
  model-platform config            Show resolved configuration
  model-platform version           Show version
  model-platform help              Show this help

Flags:
  -p, --provider NAME   Provider to chat with (overrides config)
  -m, --model NAME      Model to chat with (overrides config)
  -q, --quiet           Minimal output

Interactive commands (during chat):
  /help                 Show available commands
  /new [title]          Start a new conversation
  /list                 List conversations
  /open N               Open conversation N from the last listing
  /delete N             Delete conversation N from the last listing
  /rename TITLE         Rename the current conversation
  /model [name]         Show or switch model
  /provider [name]      Show or switch provider
  /models [provider]    List available models
  /key PROVIDER         Store an API key
  /history              Show the current conversation
  /status               Show session statistics
  /quit                 Exit
`

// PrintUsage prints the usage/help text.
func PrintUsage() {
	fmt.Print(usageText)
}

// PrintVersion prints version information.
func PrintVersion() {
	fmt.Printf("model-platform version %s\n", Version)
	fmt.Printf("  Git commit: %s\n", GitCommit)
	fmt.Printf("  Build date: %s\n", BuildDate)
}

// Parse parses command-line arguments and returns the command and args.
func Parse() (Command, Args) {
	remaining, parsed := parseGlobalFlags(os.Args[1:])

	if len(remaining) == 0 {
		return CmdChat, parsed
	}

	cmd := strings.ToLower(remaining[0])
	remaining = remaining[1:]
	parsed.Raw = remaining

	switch cmd {
	case "chat":
		return CmdChat, parsed

	case "list", "ls":
		return CmdList, parsed

	case "models":
		if len(remaining) > 0 {
			parsed.Subcommand = remaining[0]
		}
		return CmdModels, parsed

	case "key":
		if len(remaining) > 0 {
			parsed.Subcommand = remaining[0]
		}
		return CmdKey, parsed

	case "config":
		return CmdConfig, parsed

	case "version", "-v", "--version":
		return CmdVersion, parsed

	case "help", "-h", "--help":
		return CmdHelp, parsed

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		return CmdHelp, parsed
	}
}

// parseGlobalFlags extracts global flags, returning the remaining args.
func parseGlobalFlags(args []string) ([]string, Args) {
	var parsed Args
	var remaining []string

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-q", "--quiet":
			parsed.Quiet = true
		case "-p", "--provider":
			if i+1 < len(args) {
				i++
				parsed.Provider = args[i]
			}
		case "-m", "--model":
			if i+1 < len(args) {
				i++
				parsed.Model = args[i]
			}
		default:
			remaining = append(remaining, args[i])
		}
	}

	return remaining, parsed
}
