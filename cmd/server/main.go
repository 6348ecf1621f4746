// model-platform backend - relays chat requests to AI providers.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ryansansbury/model-platform/internal/config"
	"github.com/ryansansbury/model-platform/internal/server"
)

// shutdownTimeout bounds how long in-flight requests may run after a
// termination signal. Streaming responses are cut off at this point.
const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	srv := server.NewServer(cfg.Server.Port).
		WithHost(cfg.Server.Host).
		WithChatRateLimit(cfg.Server.ChatRateLimit)

	// Config changes are picked up for visibility; a port change still
	// requires a restart since the listener is already bound.
	if path, err := config.ConfigPathTOML(); err == nil {
		if _, statErr := os.Stat(path); statErr == nil {
			watcher, err := config.NewWatcher(path, func(updated *config.Config) {
				if updated.Server.Port != cfg.Server.Port {
					log.Printf("CONFIG_PORT_CHANGED | old=%d new=%d | restart required",
						cfg.Server.Port, updated.Server.Port)
				}
			})
			if err == nil && watcher.Watch() == nil {
				defer watcher.Close()
			}
		}
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
			os.Exit(1)
		}
	case sig := <-sigCh:
		log.Printf("SERVER_SIGNAL | signal=%s", sig)
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("SERVER_SHUTDOWN_ERROR | error=%v", err)
			os.Exit(1)
		}
		log.Printf("SERVER_STOPPED")
	}
}
