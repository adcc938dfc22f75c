// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvironmentVariable names the config file for LoadFromEnv.
const EnvironmentVariable = "KEYMESH_CONFIG"

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Production is for real user sessions.
	Production Environment = "production"
)

// Config is the master configuration for keymesh.
type Config struct {
	// Environment identifies the deployment type.
	Environment Environment `yaml:"environment"`

	// Node identifies this node and its place in the ecosystem.
	Node NodeConfig `yaml:"node"`

	// Mesh configures the message bus.
	Mesh MeshConfig `yaml:"mesh"`

	// Custodian configures key sync behavior.
	Custodian CustodianConfig `yaml:"custodian"`

	// Keychain locates the credential store.
	Keychain KeychainConfig `yaml:"keychain"`

	// Service configures the local control socket.
	Service ServiceConfig `yaml:"service"`

	// Logging configures log output.
	Logging LoggingConfig `yaml:"logging"`

	// Per-environment overrides, applied after the base config is
	// loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Mesh      *MeshConfig      `yaml:"mesh,omitempty"`
	Custodian *CustodianConfig `yaml:"custodian,omitempty"`
	Logging   *LoggingConfig   `yaml:"logging,omitempty"`
}

// NodeConfig identifies the node.
type NodeConfig struct {
	// ID must appear in the registry.
	ID string `yaml:"id"`

	// Origin is the origin of this node's execution context.
	// Default: https://keymesh.localhost
	Origin string `yaml:"origin"`

	// RegistryFile is a YAML or JSONC node table. Empty selects the
	// built-in registry.
	RegistryFile string `yaml:"registry_file"`
}

// MeshConfig configures the message bus.
type MeshConfig struct {
	// HubSocket is the socket hub every node dials. It plays the part
	// of the well-known broadcast channel.
	// Default: ${XDG_RUNTIME_DIR}/keymesh/keymesh-ecosystem.sock
	HubSocket string `yaml:"hub_socket"`

	// AllowedOrigins are extra origins accepted on window messaging.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// DedupWindow is how long envelope IDs are remembered.
	// Default: 30s
	DedupWindow string `yaml:"dedup_window"`
}

// CustodianConfig configures key sync.
type CustodianConfig struct {
	// SyncTimeout is the wait per key sync request. Default: 10s
	SyncTimeout string `yaml:"sync_timeout"`

	// SyncAttempts is how many requests go unanswered before the node
	// gives up. Default: 3
	SyncAttempts int `yaml:"sync_attempts"`

	// SessionFlag is the advisory "unlocked" marker file. Empty
	// disables it.
	// Default: ${XDG_RUNTIME_DIR}/keymesh/${KEYMESH_NODE}.unlocked
	SessionFlag string `yaml:"session_flag"`
}

// KeychainConfig locates key-chain entries.
type KeychainConfig struct {
	// Store is the directory of <user>.keychain files.
	// Default: ${HOME}/.local/share/keymesh/keychain
	Store string `yaml:"store"`
}

// ServiceConfig configures the node's control socket.
type ServiceConfig struct {
	// SocketPath is where the node serves status, encrypt, unlock and
	// the other actions.
	// Default: ${XDG_RUNTIME_DIR}/keymesh/${KEYMESH_NODE}.sock
	SocketPath string `yaml:"socket_path"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	// Level is debug, info, warn or error. Default: info
	Level string `yaml:"level"`

	// Format is auto, text or json. auto picks text on a terminal.
	// Default: auto
	Format string `yaml:"format"`
}

// Default returns the default configuration, used as the base before
// the config file is applied.
func Default() *Config {
	return &Config{
		Environment: Development,
		Node: NodeConfig{
			Origin: "https://keymesh.localhost",
		},
		Mesh: MeshConfig{
			HubSocket:   "${XDG_RUNTIME_DIR:-/tmp}/keymesh/keymesh-ecosystem.sock",
			DedupWindow: "30s",
		},
		Custodian: CustodianConfig{
			SyncTimeout:  "10s",
			SyncAttempts: 3,
			SessionFlag:  "${XDG_RUNTIME_DIR:-/tmp}/keymesh/${KEYMESH_NODE}.unlocked",
		},
		Keychain: KeychainConfig{
			Store: "${HOME}/.local/share/keymesh/keychain",
		},
		Service: ServiceConfig{
			SocketPath: "${XDG_RUNTIME_DIR:-/tmp}/keymesh/${KEYMESH_NODE}.sock",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// LoadFromEnv loads the file named by KEYMESH_CONFIG. There is no
// fallback: if the variable is unset, this fails.
func LoadFromEnv() (*Config, error) {
	configPath := os.Getenv(EnvironmentVariable)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your keymesh.yaml config file, or use --config flag", EnvironmentVariable)
	}
	return Load(configPath)
}

// Load loads configuration from path on top of Default, applies the
// environment section, and expands path variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()
	return cfg, nil
}

// applyEnvironmentOverrides applies the environment-specific overrides.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides
	switch c.Environment {
	case Development:
		overrides = c.Development
	case Production:
		overrides = c.Production
	}
	if overrides == nil {
		return
	}

	if overrides.Mesh != nil {
		if overrides.Mesh.HubSocket != "" {
			c.Mesh.HubSocket = overrides.Mesh.HubSocket
		}
		if overrides.Mesh.AllowedOrigins != nil {
			c.Mesh.AllowedOrigins = overrides.Mesh.AllowedOrigins
		}
		if overrides.Mesh.DedupWindow != "" {
			c.Mesh.DedupWindow = overrides.Mesh.DedupWindow
		}
	}

	if overrides.Custodian != nil {
		if overrides.Custodian.SyncTimeout != "" {
			c.Custodian.SyncTimeout = overrides.Custodian.SyncTimeout
		}
		if overrides.Custodian.SyncAttempts != 0 {
			c.Custodian.SyncAttempts = overrides.Custodian.SyncAttempts
		}
		if overrides.Custodian.SessionFlag != "" {
			c.Custodian.SessionFlag = overrides.Custodian.SessionFlag
		}
	}

	if overrides.Logging != nil {
		if overrides.Logging.Level != "" {
			c.Logging.Level = overrides.Logging.Level
		}
		if overrides.Logging.Format != "" {
			c.Logging.Format = overrides.Logging.Format
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME":         os.Getenv("HOME"),
		"KEYMESH_NODE": c.Node.ID,
	}

	c.Node.RegistryFile = expandVars(c.Node.RegistryFile, vars)
	c.Mesh.HubSocket = expandVars(c.Mesh.HubSocket, vars)
	c.Custodian.SessionFlag = expandVars(c.Custodian.SessionFlag, vars)
	c.Keychain.Store = expandVars(c.Keychain.Store, vars)
	c.Service.SocketPath = expandVars(c.Service.SocketPath, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		name, defaultValue := parts[1], parts[2]

		// Provided vars first, then the environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors. All problems are
// reported together.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}
	if c.Node.ID == "" {
		errs = append(errs, errors.New("node.id is required"))
	}
	if c.Node.Origin == "" {
		errs = append(errs, errors.New("node.origin is required"))
	}
	if c.Mesh.HubSocket == "" {
		errs = append(errs, errors.New("mesh.hub_socket is required"))
	}
	if c.Environment == Production && slices.Contains(c.Mesh.AllowedOrigins, "*") {
		errs = append(errs, errors.New(`mesh.allowed_origins may not contain "*" in production`))
	}
	if _, err := parsePositiveDuration(c.Mesh.DedupWindow); err != nil {
		errs = append(errs, fmt.Errorf("mesh.dedup_window: %w", err))
	}
	if _, err := parsePositiveDuration(c.Custodian.SyncTimeout); err != nil {
		errs = append(errs, fmt.Errorf("custodian.sync_timeout: %w", err))
	}
	if c.Custodian.SyncAttempts < 1 {
		errs = append(errs, fmt.Errorf("custodian.sync_attempts must be at least 1, got %d", c.Custodian.SyncAttempts))
	}
	if c.Service.SocketPath == "" {
		errs = append(errs, errors.New("service.socket_path is required"))
	}
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, c.Logging.Level) {
		errs = append(errs, fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", c.Logging.Level))
	}
	if !slices.Contains([]string{"auto", "text", "json"}, c.Logging.Format) {
		errs = append(errs, fmt.Errorf("logging.format must be one of auto, text, json; got %q", c.Logging.Format))
	}

	return errors.Join(errs...)
}

// DedupWindow returns Mesh.DedupWindow parsed. Call Validate first.
func (c *Config) DedupWindow() time.Duration {
	duration, _ := parsePositiveDuration(c.Mesh.DedupWindow)
	return duration
}

// SyncTimeout returns Custodian.SyncTimeout parsed. Call Validate first.
func (c *Config) SyncTimeout() time.Duration {
	duration, _ := parsePositiveDuration(c.Custodian.SyncTimeout)
	return duration
}

// EnsurePaths creates the parent directories of the configured sockets
// and flag file.
func (c *Config) EnsurePaths() error {
	for _, path := range []string{c.Mesh.HubSocket, c.Service.SocketPath, c.Custodian.SessionFlag} {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
		}
	}
	return nil
}

func parsePositiveDuration(value string) (time.Duration, error) {
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, err
	}
	if duration <= 0 {
		return 0, fmt.Errorf("must be positive, got %s", value)
	}
	return duration, nil
}

// ExpandPath expands ${VAR} and ${VAR:-default} in path the same way
// Load does, with nodeID standing in for ${KEYMESH_NODE}. The CLI uses
// it for flag defaults taken from Default.
func ExpandPath(path, nodeID string) string {
	return expandVars(path, map[string]string{
		"HOME":         os.Getenv("HOME"),
		"KEYMESH_NODE": nodeID,
	})
}
