// model-platform - multi-provider AI chat for the terminal.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"fmt"
	"os"

	"github.com/ryansansbury/model-platform/internal/cli"
	"github.com/ryansansbury/model-platform/internal/config"
	"github.com/ryansansbury/model-platform/internal/relay"
	"github.com/ryansansbury/model-platform/internal/storage"
)

// Version information (set at build time)
var (
	Version   = "1.0.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	// Sync version info with cli package
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	cmd, args := cli.Parse()

	switch cmd {
	case cli.CmdVersion:
		cli.PrintVersion()
		return
	case cli.CmdHelp:
		cli.PrintUsage()
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fatal(err)
	}

	switch cmd {
	case cli.CmdModels:
		// Listing models needs no credentials, so no store is opened.
		client := relay.New(cfg.Client.BackendURL, nil).
			WithTimeout(cfg.Client.Timeout())
		if err := cli.HandleModelsCommand(client, args.Subcommand); err != nil {
			fatal(err)
		}
		return
	case cli.CmdConfig:
		if err := cli.HandleConfigCommand(cfg); err != nil {
			fatal(err)
		}
		return
	}

	// The remaining commands all touch the conversation store.
	dbPath := cfg.Storage.DatabasePath
	if dbPath == "" {
		if dbPath, err = storage.DefaultPath(); err != nil {
			fatal(err)
		}
	}
	store, err := storage.Open(dbPath)
	if err != nil {
		fatal(fmt.Errorf("opening conversation store: %w", err))
	}
	defer store.Close()

	switch cmd {
	case cli.CmdChat:
		client := relay.New(cfg.Client.BackendURL, store).
			WithTimeout(cfg.Client.Timeout())
		if err := cli.HandleChatCommand(cfg, store, client, args); err != nil {
			fatal(err)
		}
	case cli.CmdList:
		if err := cli.HandleListCommand(store); err != nil {
			fatal(err)
		}
	case cli.CmdKey:
		if err := cli.HandleKeyCommand(store, args.Subcommand); err != nil {
			fatal(err)
		}
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
