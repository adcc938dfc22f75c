// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mesh

import "strings"

// AnyOrigin in an allow-list accepts every origin. It reproduces
// unfiltered window messaging and should only appear in development
// configurations.
const AnyOrigin = "*"

// AllowList is the set of origins a bus accepts frames from.
type AllowList struct {
	any     bool
	origins map[string]struct{}
}

// NewAllowList builds an allow-list. Origins are compared after
// lowercasing and trimming a trailing slash.
func NewAllowList(origins ...string) AllowList {
	list := AllowList{origins: make(map[string]struct{}, len(origins))}
	for _, origin := range origins {
		if origin == AnyOrigin {
			list.any = true
			continue
		}
		if normalized := normalizeOrigin(origin); normalized != "" {
			list.origins[normalized] = struct{}{}
		}
	}
	return list
}

// Allowed reports whether frames from origin may be handled.
func (l AllowList) Allowed(origin string) bool {
	if l.any {
		return true
	}
	_, ok := l.origins[normalizeOrigin(origin)]
	return ok
}

// AllowsAny reports whether the list contains AnyOrigin.
func (l AllowList) AllowsAny() bool { return l.any }

func normalizeOrigin(origin string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(origin)), "/")
}
