// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "keymesh.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return configPath
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Environment != Development {
		t.Errorf("expected environment=development, got %s", cfg.Environment)
	}
	if !strings.HasSuffix(cfg.Mesh.HubSocket, "/keymesh/keymesh-ecosystem.sock") {
		t.Errorf("unexpected default hub_socket %s", cfg.Mesh.HubSocket)
	}
	if cfg.Custodian.SyncAttempts != 3 {
		t.Errorf("expected sync_attempts=3, got %d", cfg.Custodian.SyncAttempts)
	}

	// Default alone is not a usable config: node.id is required.
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "node.id") {
		t.Errorf("expected node.id error, got %v", err)
	}
}

func TestLoadFromEnv_RequiresVariable(t *testing.T) {
	t.Setenv(EnvironmentVariable, "")

	_, err := LoadFromEnv()
	if err == nil {
		t.Fatal("expected error when KEYMESH_CONFIG not set, got nil")
	}
	if !strings.HasPrefix(err.Error(), "KEYMESH_CONFIG environment variable not set") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoadFromEnv(t *testing.T) {
	configPath := writeConfig(t, `
node:
  id: notes-data
`)
	t.Setenv(EnvironmentVariable, configPath)

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() failed: %v", err)
	}
	if cfg.Node.ID != "notes-data" {
		t.Errorf("expected node.id=notes-data, got %s", cfg.Node.ID)
	}
}

func TestLoad(t *testing.T) {
	configPath := writeConfig(t, `
environment: development

node:
  id: secure-files
  origin: https://files.example
  registry_file: /etc/keymesh/nodes.yaml

mesh:
  hub_socket: /run/keymesh/hub.sock
  allowed_origins:
    - https://notes.example
  dedup_window: 1m

custodian:
  sync_timeout: 2s
  sync_attempts: 5

service:
  socket_path: /run/keymesh/${KEYMESH_NODE}.sock

logging:
  level: debug
  format: json
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	if cfg.Node.Origin != "https://files.example" {
		t.Errorf("expected origin=https://files.example, got %s", cfg.Node.Origin)
	}
	if cfg.Mesh.HubSocket != "/run/keymesh/hub.sock" {
		t.Errorf("expected hub_socket=/run/keymesh/hub.sock, got %s", cfg.Mesh.HubSocket)
	}
	if len(cfg.Mesh.AllowedOrigins) != 1 || cfg.Mesh.AllowedOrigins[0] != "https://notes.example" {
		t.Errorf("unexpected allowed_origins %v", cfg.Mesh.AllowedOrigins)
	}
	if cfg.DedupWindow() != time.Minute {
		t.Errorf("expected dedup window 1m, got %s", cfg.DedupWindow())
	}
	if cfg.SyncTimeout() != 2*time.Second || cfg.Custodian.SyncAttempts != 5 {
		t.Errorf("unexpected custodian config %+v", cfg.Custodian)
	}
	if cfg.Service.SocketPath != "/run/keymesh/secure-files.sock" {
		t.Errorf("expected node id expanded into socket path, got %s", cfg.Service.SocketPath)
	}
	// Unset fields keep their defaults.
	if !strings.HasSuffix(cfg.Keychain.Store, "/.local/share/keymesh/keychain") {
		t.Errorf("expected default keychain.store, got %s", cfg.Keychain.Store)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	configPath := writeConfig(t, `
environment: production

node:
  id: vault-control

custodian:
  sync_timeout: 10s

logging:
  level: debug

production:
  custodian:
    sync_timeout: 30s
    sync_attempts: 6
  logging:
    level: warn

development:
  logging:
    level: error
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.SyncTimeout() != 30*time.Second {
		t.Errorf("expected production sync_timeout=30s, got %s", cfg.Custodian.SyncTimeout)
	}
	if cfg.Custodian.SyncAttempts != 6 {
		t.Errorf("expected production sync_attempts=6, got %d", cfg.Custodian.SyncAttempts)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("expected production logging.level=warn, got %s", cfg.Logging.Level)
	}
}

func TestEnvVarsDoNotOverride(t *testing.T) {
	t.Setenv("KEYMESH_NODE", "relay-message")
	t.Setenv("KEYMESH_HUB_SOCKET", "/env/hub.sock")

	configPath := writeConfig(t, `
node:
  id: notes-data
mesh:
  hub_socket: /config/hub.sock
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Mesh.HubSocket != "/config/hub.sock" {
		t.Errorf("expected hub_socket from config, got %s", cfg.Mesh.HubSocket)
	}
	// ${KEYMESH_NODE} expands to the configured id, not the environment.
	if !strings.HasSuffix(cfg.Service.SocketPath, "/notes-data.sock") {
		t.Errorf("expected socket path for notes-data, got %s", cfg.Service.SocketPath)
	}
}

func TestExpandVars(t *testing.T) {
	t.Setenv("KEYMESH_TEST_DIR", "/from/env")
	vars := map[string]string{"HOME": "/home/user", "EMPTY": ""}

	tests := []struct {
		input, want string
	}{
		{"${HOME}/keychain", "/home/user/keychain"},
		{"${KEYMESH_TEST_DIR}/x", "/from/env/x"},
		{"${KEYMESH_TEST_MISSING:-/fallback}/x", "/fallback/x"},
		{"${EMPTY:-/default}", "/default"},
		{"${KEYMESH_TEST_MISSING}", ""},
		{"no variables", "no variables"},
	}
	for _, test := range tests {
		if got := expandVars(test.input, vars); got != test.want {
			t.Errorf("expandVars(%q) = %q, want %q", test.input, got, test.want)
		}
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.Node.ID = "notes-data"
		cfg.expandVariables()
		return cfg
	}
	if err := valid().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"environment", func(c *Config) { c.Environment = "staging" }, "invalid environment"},
		{"origin", func(c *Config) { c.Node.Origin = "" }, "node.origin"},
		{"dedup window", func(c *Config) { c.Mesh.DedupWindow = "soon" }, "mesh.dedup_window"},
		{"negative timeout", func(c *Config) { c.Custodian.SyncTimeout = "-1s" }, "custodian.sync_timeout"},
		{"attempts", func(c *Config) { c.Custodian.SyncAttempts = 0 }, "custodian.sync_attempts"},
		{"level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"wildcard in production", func(c *Config) {
			c.Environment = Production
			c.Mesh.AllowedOrigins = []string{"*"}
		}, "may not contain"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := valid()
			test.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), test.want) {
				t.Fatalf("Validate() = %v, want error containing %q", err, test.want)
			}
		})
	}

	// The wildcard is allowed outside production.
	cfg := valid()
	cfg.Mesh.AllowedOrigins = []string{"*"}
	if err := cfg.Validate(); err != nil {
		t.Errorf("wildcard rejected in development: %v", err)
	}
}

func TestEnsurePaths(t *testing.T) {
	root := t.TempDir()
	cfg := Default()
	cfg.Mesh.HubSocket = filepath.Join(root, "hub", "hub.sock")
	cfg.Service.SocketPath = filepath.Join(root, "service", "node.sock")
	cfg.Custodian.SessionFlag = ""

	if err := cfg.EnsurePaths(); err != nil {
		t.Fatalf("EnsurePaths: %v", err)
	}
	for _, directory := range []string{"hub", "service"} {
		if info, err := os.Stat(filepath.Join(root, directory)); err != nil || !info.IsDir() {
			t.Errorf("%s not created: %v", directory, err)
		}
	}
}

func TestExpandPath(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")
	t.Setenv("HOME", "/home/alice")

	if got := ExpandPath(Default().Mesh.HubSocket, ""); got != "/run/user/1000/keymesh/keymesh-ecosystem.sock" {
		t.Errorf("hub socket = %q", got)
	}
	if got := ExpandPath(Default().Keychain.Store, ""); got != "/home/alice/.local/share/keymesh/keychain" {
		t.Errorf("keychain store = %q", got)
	}

	if got := ExpandPath(Default().Service.SocketPath, "notes-data"); got != "/run/user/1000/keymesh/notes-data.sock" {
		t.Errorf("service socket = %q", got)
	}

	t.Setenv("XDG_RUNTIME_DIR", "")
	if got := ExpandPath("${XDG_RUNTIME_DIR:-/tmp}/x.sock", ""); got != "/tmp/x.sock" {
		t.Errorf("fallback = %q", got)
	}
}
