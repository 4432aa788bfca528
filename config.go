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
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// Config controls what the capture pipeline records. A Config handed to a
// pipeline must be treated as an immutable snapshot: the pipeline reads it
// concurrently from many requests without locking.
type Config struct {
	// Enabled lists the capture kinds that are switched on. Defaults to
	// both "request" and "service".
	Enabled []string `yaml:"enabled"`

	// SizeLimitKB is the payload capture limit in kilobytes. Defaults to
	// 64.
	SizeLimitKB int `yaml:"size_limit_kb"`

	// HiddenPaths lists dotted field paths redacted from response
	// payloads before recording.
	HiddenPaths []string `yaml:"hidden_paths"`

	// IgnorePaths lists glob rules for request paths that are never
	// captured.
	IgnorePaths []string `yaml:"ignore_paths"`

	// OnlyPaths lists allowlist glob rules that force capture even when
	// an ignore rule would otherwise suppress it.
	OnlyPaths []string `yaml:"only_paths"`
}

// DefaultConfig returns the configuration applied when none is supplied:
// both capture kinds enabled, a 64 KB size limit, and no path rules.
func DefaultConfig() *Config {
	return &Config{
		Enabled:     []string{string(KindRequest), string(KindService)},
		SizeLimitKB: DefaultSizeLimitKB,
	}
}

// KindEnabled reports whether the given capture kind is switched on.
func (c *Config) KindEnabled(kind Kind) bool {
	for _, k := range c.Enabled {
		if Kind(strings.TrimSpace(k)) == kind {
			return true
		}
	}
	return false
}

// LoadConfig loads configuration from a YAML file, applies defaults,
// overlays SPYGLASS_* environment variables, and validates the result.
// Environment variables always take precedence over file values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read configuration file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse configuration file %q: %w", path, err)
	}

	applyConfigDefaults(&cfg)
	applyConfigEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for values the pipeline cannot work
// with. Path rules must be parseable glob patterns.
func (c *Config) Validate() error {
	if c.SizeLimitKB <= 0 {
		return fmt.Errorf("size_limit_kb must be positive, got %d", c.SizeLimitKB)
	}
	for _, kind := range c.Enabled {
		switch Kind(strings.TrimSpace(kind)) {
		case KindRequest, KindService:
		default:
			return fmt.Errorf("unknown capture kind %q", kind)
		}
	}
	for _, rules := range [][]string{c.IgnorePaths, c.OnlyPaths} {
		for _, pattern := range rules {
			if !doublestar.ValidatePattern(strings.TrimPrefix(pattern, "/")) {
				return fmt.Errorf("invalid path rule %q", pattern)
			}
		}
	}
	return nil
}

// applyConfigDefaults fills unset fields with their defaults.
func applyConfigDefaults(cfg *Config) {
	if cfg.Enabled == nil {
		cfg.Enabled = []string{string(KindRequest), string(KindService)}
	}
	if cfg.SizeLimitKB == 0 {
		cfg.SizeLimitKB = DefaultSizeLimitKB
	}
}

// applyConfigEnv overlays configuration from SPYGLASS_* environment
// variables. Invalid values are ignored so a stray variable cannot break
// startup.
func applyConfigEnv(cfg *Config) {
	if raw, ok := os.LookupEnv("SPYGLASS_ENABLED"); ok {
		cfg.Enabled = splitAndClean(raw)
	}
	if raw, ok := os.LookupEnv("SPYGLASS_SIZE_LIMIT_KB"); ok {
		if v, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil && v > 0 {
			cfg.SizeLimitKB = v
		}
	}
	if raw, ok := os.LookupEnv("SPYGLASS_HIDDEN_PATHS"); ok {
		cfg.HiddenPaths = splitAndClean(raw)
	}
	if raw, ok := os.LookupEnv("SPYGLASS_IGNORE_PATHS"); ok {
		cfg.IgnorePaths = splitAndClean(raw)
	}
	if raw, ok := os.LookupEnv("SPYGLASS_ONLY_PATHS"); ok {
		cfg.OnlyPaths = splitAndClean(raw)
	}
}

// splitAndClean normalises comma-separated configuration strings into a
// slice of trimmed, non-empty values.
func splitAndClean(input string) []string {
	parts := strings.Split(input, ",")
	cleaned := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		cleaned = append(cleaned, part)
	}
	return cleaned
}
