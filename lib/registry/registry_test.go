// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

func TestDefaultTable(t *testing.T) {
	registry := Default()

	control := registry.Control()
	if control.ID != "vault-control" || control.Role != RoleControl {
		t.Errorf("Control() = %+v", control)
	}
	if !registry.IsControl("vault-control") {
		t.Error("IsControl(vault-control) = false")
	}
	if registry.IsControl("notes-data") {
		t.Error("IsControl(notes-data) = true")
	}

	roles := make(map[Role]bool)
	for _, node := range registry.Nodes() {
		roles[node.Role] = true
	}
	for _, role := range []Role{RoleControl, RoleData, RoleSecure, RoleLogic, RoleMessage} {
		if !roles[role] {
			t.Errorf("default table has no %s node", role)
		}
	}
}

func TestLookupReturnsCopies(t *testing.T) {
	registry := Default()

	node, ok := registry.Lookup("notes-data")
	if !ok {
		t.Fatal("Lookup(notes-data) not found")
	}
	node.Capabilities[0] = "tampered"
	node.Status = StatusOffline

	again, _ := registry.Lookup("notes-data")
	if slices.Contains(again.Capabilities, "tampered") || again.Status != StatusOnline {
		t.Errorf("registry mutated through returned copy: %+v", again)
	}

	if _, ok := registry.Lookup("ghost"); ok {
		t.Error("Lookup(ghost) found a node")
	}
}

func TestWithCapability(t *testing.T) {
	matches := Default().WithCapability("decrypt")
	var ids []string
	for _, node := range matches {
		ids = append(ids, node.ID)
	}
	want := []string{"notes-data", "secure-files", "search-logic"}
	if !slices.Equal(ids, want) {
		t.Errorf("WithCapability(decrypt) = %v, want %v", ids, want)
	}
}

func TestNewValidation(t *testing.T) {
	control := NodeIdentity{ID: "ctl", Role: RoleControl}
	tests := []struct {
		name    string
		nodes   []NodeIdentity
		wantErr string
	}{
		{name: "empty", nodes: nil, wantErr: "no nodes"},
		{name: "missing id", nodes: []NodeIdentity{control, {Role: RoleData}}, wantErr: "has no id"},
		{name: "reserved id", nodes: []NodeIdentity{control, {ID: "all", Role: RoleData}}, wantErr: "reserved"},
		{name: "duplicate", nodes: []NodeIdentity{control, {ID: "ctl", Role: RoleData}}, wantErr: "duplicate"},
		{name: "bad role", nodes: []NodeIdentity{control, {ID: "x", Role: "admin"}}, wantErr: "unknown role"},
		{name: "bad status", nodes: []NodeIdentity{control, {ID: "x", Role: RoleData, Status: "sleepy"}}, wantErr: "unknown status"},
		{name: "two controls", nodes: []NodeIdentity{control, {ID: "ctl2", Role: RoleControl}}, wantErr: "both have role control"},
		{name: "no control", nodes: []NodeIdentity{{ID: "x", Role: RoleData}}, wantErr: "no node has role control"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := New(test.nodes)
			if err == nil {
				t.Fatal("New succeeded, want error")
			}
			if !strings.Contains(err.Error(), test.wantErr) {
				t.Errorf("error %q does not contain %q", err, test.wantErr)
			}
		})
	}
}

func TestNewNormalizesCapabilities(t *testing.T) {
	registry, err := New([]NodeIdentity{
		{ID: "ctl", Role: RoleControl, Capabilities: []string{"sync", "custody", "sync"}},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	control := registry.Control()
	if !slices.Equal(control.Capabilities, []string{"custody", "sync"}) {
		t.Errorf("Capabilities = %v", control.Capabilities)
	}
	if control.Status != StatusOnline {
		t.Errorf("empty status normalized to %q, want online", control.Status)
	}
	if !control.HasCapability("custody") || control.HasCapability("index") {
		t.Error("HasCapability mismatch")
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.yaml")
	content := `nodes:
  - id: hq
    role: control
    endpoint: hq.internal
    version: "3.0"
    capabilities: [key-sync]
  - id: worker
    role: logic
    status: degraded
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	registry, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if registry.Control().ID != "hq" {
		t.Errorf("control = %q, want hq", registry.Control().ID)
	}
	worker, _ := registry.Lookup("worker")
	if worker.Status != StatusDegraded {
		t.Errorf("worker status = %q", worker.Status)
	}
}

func TestLoadJSONC(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.jsonc")
	content := `{
  // the ecosystem
  "nodes": [
    {"id": "hq", "role": "control"},
    {"id": "inbox", "role": "message", "capabilities": ["notify"]}, // trailing comma next
  ],
}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	registry, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(registry.Nodes()) != 2 {
		t.Errorf("loaded %d nodes, want 2", len(registry.Nodes()))
	}
}

func TestLoadRejects(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"unknown-field.yaml": "nodes:\n  - id: hq\n    role: control\n    colour: blue\n",
		"invalid.yaml":       "nodes:\n  - id: hq\n    role: emperor\n",
		"registry.toml":      "[nodes]\n",
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
		if _, err := Load(path); err == nil {
			t.Errorf("Load(%s) succeeded, want error", name)
		}
	}
	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("Load(missing) succeeded")
	}
}
