// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package registry

// Default returns the built-in ecosystem table.
func Default() *Registry {
	registry, err := New([]NodeIdentity{
		{
			ID:           "vault-control",
			Role:         RoleControl,
			Endpoint:     "control.keymesh.local",
			Version:      "1.4.0",
			Status:       StatusOnline,
			Capabilities: []string{"key-custody", "key-sync", "lock-broadcast"},
		},
		{
			ID:           "notes-data",
			Role:         RoleData,
			Endpoint:     "notes.keymesh.local",
			Version:      "2.1.0",
			Status:       StatusOnline,
			Capabilities: []string{"encrypt", "decrypt", "documents"},
		},
		{
			ID:           "secure-files",
			Role:         RoleSecure,
			Endpoint:     "files.keymesh.local",
			Version:      "1.2.3",
			Status:       StatusOnline,
			Capabilities: []string{"encrypt", "decrypt", "attachments"},
		},
		{
			ID:           "search-logic",
			Role:         RoleLogic,
			Endpoint:     "search.keymesh.local",
			Version:      "0.9.1",
			Status:       StatusDegraded,
			Capabilities: []string{"decrypt", "index"},
		},
		{
			ID:           "relay-message",
			Role:         RoleMessage,
			Endpoint:     "relay.keymesh.local",
			Version:      "1.0.0",
			Status:       StatusOnline,
			Capabilities: []string{"notify"},
		},
	})
	if err != nil {
		panic("registry: built-in table is invalid: " + err.Error())
	}
	return registry
}
