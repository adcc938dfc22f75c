// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// tableFile is the on-disk shape of a registry file.
type tableFile struct {
	Nodes []NodeIdentity `yaml:"nodes" json:"nodes"`
}

// Load reads and validates a registry file. Files ending in .json or
// .jsonc are parsed as JSON with comments and trailing commas allowed;
// .yaml and .yml as YAML.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading registry %s: %w", path, err)
	}

	var table tableFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		decoder := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&table); err != nil {
			return nil, fmt.Errorf("parsing registry %s: %w", path, err)
		}
	case ".yaml", ".yml":
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(&table); err != nil {
			return nil, fmt.Errorf("parsing registry %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("registry %s: unsupported extension (want .yaml, .yml, .json, or .jsonc)", path)
	}

	registry, err := New(table.Nodes)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return registry, nil
}
