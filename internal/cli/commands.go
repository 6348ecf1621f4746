// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// commands.go - non-interactive command handlers.
package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ryansansbury/model-platform/internal/catalog"
	"github.com/ryansansbury/model-platform/internal/config"
	"github.com/ryansansbury/model-platform/internal/relay"
	"github.com/ryansansbury/model-platform/internal/storage"
)

// modelFetchTimeout bounds the backend catalog request before falling
// back to the compiled-in registry.
const modelFetchTimeout = 10 * time.Second

// HandleListCommand prints saved conversations, newest first.
func HandleListCommand(store *storage.Store) error {
	convs, err := store.ListConversations()
	if err != nil {
		return err
	}
	if len(convs) == 0 {
		fmt.Println("No conversations yet. Run `model-platform chat` to start one.")
		return nil
	}
	for i, conv := range convs {
		fmt.Printf("%2d. %s  (%d messages, %s)\n", i+1,
			styled(titleStyle, conv.Title), conv.MessageCount,
			conv.UpdatedAt.Local().Format("2006-01-02 15:04"))
		if conv.Preview != "" {
			fmt.Printf("     %s\n", styled(infoStyle, conv.Preview))
		}
	}
	return nil
}

// fetchModels asks the backend for its catalog so the listing reflects
// what the server will actually accept. An unreachable backend falls
// back to the compiled-in registry.
func fetchModels(client *relay.Client) []catalog.ModelInfo {
	if client == nil {
		return catalog.All()
	}
	ctx, cancel := context.WithTimeout(context.Background(), modelFetchTimeout)
	defer cancel()

	list, err := client.ListModels(ctx)
	if err != nil || len(list.Models) == 0 {
		return catalog.All()
	}
	return list.Models
}

// HandleModelsCommand prints the model catalog, optionally filtered to one
// provider.
func HandleModelsCommand(client *relay.Client, provider string) error {
	if provider != "" && !catalog.IsProvider(provider) {
		return fmt.Errorf("unknown provider: %s (known: %s)",
			provider, strings.Join(catalog.Providers(), ", "))
	}
	current := ""
	for _, info := range fetchModels(client) {
		if provider != "" && info.Provider != provider {
			continue
		}
		if info.Provider != current {
			current = info.Provider
			fmt.Println(styled(titleStyle, current + ":"))
		}
		fmt.Printf("  %-36s $%.5f/$%.5f per 1K  %s\n", info.ID,
			info.InputCost, info.OutputCost, styled(infoStyle, info.Description))
	}
	return nil
}

// HandleKeyCommand prompts for and stores an API key for a provider.
func HandleKeyCommand(store *storage.Store, provider string) error {
	if provider == "" {
		return fmt.Errorf("usage: model-platform key <provider> (known: %s)",
			strings.Join(catalog.Providers(), ", "))
	}
	if !catalog.IsProvider(provider) {
		return fmt.Errorf("unknown provider: %s (known: %s)",
			provider, strings.Join(catalog.Providers(), ", "))
	}
	if !IsTTY() {
		return &TTYRequiredError{Command: "key"}
	}
	key, err := ReadPassword(fmt.Sprintf("API key for %s: ", provider))
	if err != nil {
		return err
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("empty key, nothing stored")
	}
	if err := store.SetCredential(provider, key); err != nil {
		return err
	}
	fmt.Printf("Key for %s stored.\n", provider)
	return nil
}

// HandleConfigCommand prints the resolved configuration. Secrets never
// appear here; keys live in the conversation store, not the config file.
func HandleConfigCommand(cfg *config.Config) error {
	tomlPath, _ := config.ConfigPathTOML()
	fmt.Println(styled(titleStyle, "Configuration:"))
	fmt.Printf("  Config file:      %s\n", tomlPath)
	fmt.Printf("  Backend URL:      %s\n", cfg.Client.BackendURL)
	fmt.Printf("  Default provider: %s\n", cfg.Client.DefaultProvider)
	fmt.Printf("  Default model:    %s\n", cfg.Client.DefaultModel)
	fmt.Printf("  Temperature:      %.2f\n", cfg.Client.Temperature)
	if cfg.Client.MaxTokens > 0 {
		fmt.Printf("  Max tokens:       %d\n", cfg.Client.MaxTokens)
	} else {
		fmt.Printf("  Max tokens:       (model default)\n")
	}
	fmt.Printf("  Request timeout:  %ds\n", cfg.Client.TimeoutSecs)
	fmt.Printf("  Server port:      %d\n", cfg.Server.Port)
	fmt.Printf("  Database:         %s\n", cfg.Storage.DatabasePath)
	return nil
}
