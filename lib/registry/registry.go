// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"fmt"
	"slices"
)

// Role is a node's function in the ecosystem.
type Role string

const (
	RoleControl Role = "control"
	RoleData    Role = "data"
	RoleSecure  Role = "secure"
	RoleLogic   Role = "logic"
	RoleMessage Role = "message"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleControl, RoleData, RoleSecure, RoleLogic, RoleMessage:
		return true
	}
	return false
}

// Status is the advertised health of a node. It is part of the static
// table and is informational only.
type Status string

const (
	StatusOnline   Status = "online"
	StatusDegraded Status = "degraded"
	StatusOffline  Status = "offline"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusOnline, StatusDegraded, StatusOffline:
		return true
	}
	return false
}

// NodeIdentity describes one participant.
type NodeIdentity struct {
	ID           string   `yaml:"id" json:"id"`
	Role         Role     `yaml:"role" json:"role"`
	Endpoint     string   `yaml:"endpoint" json:"endpoint"`
	Version      string   `yaml:"version" json:"version"`
	Status       Status   `yaml:"status" json:"status"`
	Capabilities []string `yaml:"capabilities" json:"capabilities"`
}

// HasCapability reports whether the node advertises capability.
func (n NodeIdentity) HasCapability(capability string) bool {
	_, found := slices.BinarySearch(n.Capabilities, capability)
	return found
}

func (n NodeIdentity) clone() NodeIdentity {
	n.Capabilities = slices.Clone(n.Capabilities)
	return n
}

// Registry is an immutable, validated node table.
type Registry struct {
	nodes   []NodeIdentity
	byID    map[string]int
	control int
}

// New validates nodes and builds a Registry. Node IDs must be unique
// and non-empty, roles and statuses known (an empty status means
// online), and exactly one node must have RoleControl. Capabilities are
// sorted and deduplicated.
func New(nodes []NodeIdentity) (*Registry, error) {
	if len(nodes) == 0 {
		return nil, fmt.Errorf("registry: no nodes defined")
	}

	registry := &Registry{
		nodes:   make([]NodeIdentity, 0, len(nodes)),
		byID:    make(map[string]int, len(nodes)),
		control: -1,
	}

	for index, node := range nodes {
		if node.ID == "" {
			return nil, fmt.Errorf("registry: node %d has no id", index)
		}
		if node.ID == "all" {
			return nil, fmt.Errorf("registry: node id %q is reserved for broadcast", node.ID)
		}
		if _, exists := registry.byID[node.ID]; exists {
			return nil, fmt.Errorf("registry: duplicate node id %q", node.ID)
		}
		if !node.Role.Valid() {
			return nil, fmt.Errorf("registry: node %q has unknown role %q", node.ID, node.Role)
		}
		if node.Status == "" {
			node.Status = StatusOnline
		}
		if !node.Status.Valid() {
			return nil, fmt.Errorf("registry: node %q has unknown status %q", node.ID, node.Status)
		}
		if node.Role == RoleControl {
			if registry.control >= 0 {
				return nil, fmt.Errorf("registry: nodes %q and %q both have role control",
					registry.nodes[registry.control].ID, node.ID)
			}
			registry.control = len(registry.nodes)
		}

		node = node.clone()
		slices.Sort(node.Capabilities)
		node.Capabilities = slices.Compact(node.Capabilities)

		registry.byID[node.ID] = len(registry.nodes)
		registry.nodes = append(registry.nodes, node)
	}

	if registry.control < 0 {
		return nil, fmt.Errorf("registry: no node has role control")
	}
	return registry, nil
}

// Lookup returns the identity for id.
func (r *Registry) Lookup(id string) (NodeIdentity, bool) {
	index, ok := r.byID[id]
	if !ok {
		return NodeIdentity{}, false
	}
	return r.nodes[index].clone(), true
}

// Control returns the control node.
func (r *Registry) Control() NodeIdentity {
	return r.nodes[r.control].clone()
}

// IsControl reports whether id is the control node.
func (r *Registry) IsControl(id string) bool {
	return r.nodes[r.control].ID == id
}

// Nodes returns every identity in table order.
func (r *Registry) Nodes() []NodeIdentity {
	nodes := make([]NodeIdentity, len(r.nodes))
	for index, node := range r.nodes {
		nodes[index] = node.clone()
	}
	return nodes
}

// WithCapability returns the nodes advertising capability.
func (r *Registry) WithCapability(capability string) []NodeIdentity {
	var matches []NodeIdentity
	for _, node := range r.nodes {
		if node.HasCapability(capability) {
			matches = append(matches, node.clone())
		}
	}
	return matches
}
