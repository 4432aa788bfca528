// Copyright 2026 The Spyglass Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package spyglass

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Kind names a capture channel. Each kind can be enabled or disabled
// independently in [Config].
type Kind string

const (
	// KindRequest is the synchronous HTTP capture channel.
	KindRequest Kind = "request"

	// KindService is the RPC/service capture channel.
	KindService Kind = "service"
)

// RequestAttributes are the request facts the capture decision depends on.
type RequestAttributes struct {
	// Method is the HTTP method, or "GRPC" for RPC traffic.
	Method string

	// Path is the request path for HTTP, the full method name for RPC.
	Path string
}

// ShouldCapture reports whether a request should be recorded at all. It is a
// pure function of the configuration and request attributes:
//
//   - false when the capture kind is disabled,
//   - true when the path matches an only-path allowlist rule, bypassing
//     ignore rules,
//   - otherwise true unless the path matches an ignore rule.
//
// Path rules are glob patterns ("health", "internal/*", "debug/**") matched
// against the request path with any leading slash removed.
func ShouldCapture(cfg *Config, kind Kind, attrs RequestAttributes) bool {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if !cfg.KindEnabled(kind) {
		return false
	}
	if matchesAny(cfg.OnlyPaths, attrs.Path) {
		return true
	}
	return !matchesAny(cfg.IgnorePaths, attrs.Path)
}

// matchesAny reports whether path matches one of the glob patterns. Invalid
// patterns never match.
func matchesAny(patterns []string, path string) bool {
	if len(patterns) == 0 {
		return false
	}
	trimmed := strings.TrimPrefix(path, "/")
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(strings.TrimPrefix(pattern, "/"))
		if pattern == "" {
			continue
		}
		if ok, err := doublestar.Match(pattern, trimmed); err == nil && ok {
			return true
		}
	}
	return false
}
