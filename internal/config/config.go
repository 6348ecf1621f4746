// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/ryansansbury/model-platform/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete platform configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	// Client configuration for the chat CLI
	Client ClientConfig `toml:"client" json:"client"`

	// Server configuration for the backend relay
	Server ServerConfig `toml:"server" json:"server"`

	// Storage configuration
	Storage StorageConfig `toml:"storage" json:"storage"`
}

// ClientConfig contains chat client configuration.
type ClientConfig struct {
	// BackendURL is the base URL of the backend relay.
	BackendURL string `toml:"backend_url" json:"backend_url"`
	// DefaultProvider is the provider selected at startup.
	DefaultProvider string `toml:"default_provider" json:"default_provider"`
	// DefaultModel is the model selected at startup.
	DefaultModel string `toml:"default_model" json:"default_model"`
	// Temperature is the sampling temperature sent with chat requests.
	Temperature float64 `toml:"temperature" json:"temperature"`
	// MaxTokens caps reply length; 0 uses the model's catalog default.
	MaxTokens int `toml:"max_tokens" json:"max_tokens"`
	// TimeoutSecs is the request timeout for non-streaming calls.
	TimeoutSecs int `toml:"timeout_secs" json:"timeout_secs"`
}

// Timeout returns the non-streaming request timeout as a duration.
func (c ClientConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// ServerConfig contains backend relay configuration.
type ServerConfig struct {
	// Host is the listen address; empty binds all interfaces.
	Host string `toml:"host" json:"host"`
	// Port is the listen port.
	Port int `toml:"port" json:"port"`
	// ChatRateLimit is the per-IP chat request budget per minute.
	ChatRateLimit int `toml:"chat_rate_limit" json:"chat_rate_limit"`
}

// StorageConfig contains conversation store configuration.
type StorageConfig struct {
	// DatabasePath is the SQLite database location (empty = default).
	DatabasePath string `toml:"database_path" json:"database_path"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Version: "1.0.0",

		Client: ClientConfig{
			BackendURL:      "http://localhost:8000",
			DefaultProvider: "anthropic",
			DefaultModel:    "claude-sonnet-4-5-20250929",
			Temperature:     0.7,
			MaxTokens:       0,
			TimeoutSecs:     60,
		},

		Server: ServerConfig{
			Host:          "",
			Port:          8000,
			ChatRateLimit: 30,
		},

		Storage: StorageConfig{
			DatabasePath: "",
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the platform configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".model-platform"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// ensureSecurePermissions checks and fixes permissions on config files.
// SECURITY: Config files should be 0600 (owner read/write only).
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}

	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config file(s).
// Tries TOML first, then JSON, and falls back to defaults.
// Environment overrides are applied last.
func Load() (*Config, error) {
	if path, err := ConfigPathTOML(); err == nil {
		if _, statErr := os.Stat(path); statErr == nil {
			return LoadFromPath(path)
		}
	}

	if path, err := ConfigPathJSON(); err == nil {
		if _, statErr := os.Stat(path); statErr == nil {
			return LoadFromPath(path)
		}
	}

	cfg := Default()
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFromPath loads configuration from a specific file path with full
// validation. JSON files are detected by extension; anything else is TOML.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if strings.HasSuffix(path, ".json") {
		if err := loadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		if err := loadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// loadTOML loads configuration from a TOML file.
// SECURITY: Checks and fixes file permissions on load.
func loadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return nil
}

// loadJSON loads configuration from a JSON file.
// SECURITY: Checks and fixes file permissions on load.
func loadJSON(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// =============================================================================
// ENV OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies MODEL_PLATFORM_* environment variables over the
// loaded values. PORT is also honored for parity with common deployments.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("MODEL_PLATFORM_BACKEND_URL"); v != "" {
		c.Client.BackendURL = v
	}
	if v := os.Getenv("MODEL_PLATFORM_PROVIDER"); v != "" {
		c.Client.DefaultProvider = v
	}
	if v := os.Getenv("MODEL_PLATFORM_MODEL"); v != "" {
		c.Client.DefaultModel = v
	}
	if v := os.Getenv("MODEL_PLATFORM_DB"); v != "" {
		c.Storage.DatabasePath = v
	}
	if v := os.Getenv("MODEL_PLATFORM_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
}

// =============================================================================
// DEFAULTS AND VALIDATION
// =============================================================================

// SetDefaults fills in any missing values with defaults.
func (c *Config) SetDefaults() {
	defaults := Default()

	if c.Version == "" {
		c.Version = defaults.Version
	}
	if c.Client.BackendURL == "" {
		c.Client.BackendURL = defaults.Client.BackendURL
	}
	if c.Client.DefaultProvider == "" {
		c.Client.DefaultProvider = defaults.Client.DefaultProvider
	}
	if c.Client.DefaultModel == "" {
		c.Client.DefaultModel = defaults.Client.DefaultModel
	}
	if c.Client.Temperature == 0 {
		c.Client.Temperature = defaults.Client.Temperature
	}
	if c.Client.TimeoutSecs == 0 {
		c.Client.TimeoutSecs = defaults.Client.TimeoutSecs
	}
	if c.Server.Port == 0 {
		c.Server.Port = defaults.Server.Port
	}
	if c.Server.ChatRateLimit == 0 {
		c.Server.ChatRateLimit = defaults.Server.ChatRateLimit
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if _, err := url.Parse(c.Client.BackendURL); err != nil {
		return fmt.Errorf("client.backend_url: %w", err)
	}
	if !strings.HasPrefix(c.Client.BackendURL, "http://") && !strings.HasPrefix(c.Client.BackendURL, "https://") {
		return fmt.Errorf("client.backend_url: must start with http:// or https://")
	}
	if c.Client.Temperature < 0 || c.Client.Temperature > 2 {
		return fmt.Errorf("client.temperature: must be between 0.0 and 2.0, got %v", c.Client.Temperature)
	}
	if c.Client.MaxTokens < 0 {
		return fmt.Errorf("client.max_tokens: must not be negative, got %d", c.Client.MaxTokens)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port: must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.ChatRateLimit < 1 {
		return fmt.Errorf("server.chat_rate_limit: must be at least 1, got %d", c.Server.ChatRateLimit)
	}
	return nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML saves the configuration to a TOML file.
// SECURITY: Creates config files with 0600 permissions (owner read/write only).
func SaveTOML(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	if err := os.Chmod(path, 0600); err != nil {
		return fmt.Errorf("failed to set config file permissions: %w", err)
	}

	fmt.Fprintln(file, "# model-platform configuration file")
	fmt.Fprintln(file, "# Edit with care; invalid values are rejected on load.")
	fmt.Fprintln(file, "")

	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	return nil
}

// SaveJSON saves the configuration to a JSON file.
// RELIABILITY: Atomic write with fsync prevents data loss on crash.
func SaveJSON(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
