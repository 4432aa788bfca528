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
	"testing"

	"github.com/google/go-cmp/cmp"
)

// TestRedactMasksHiddenPaths verifies masking of top-level and nested paths.
func TestRedactMasksHiddenPaths(t *testing.T) {
	testCases := []struct {
		name    string
		payload Payload
		hidden  []string
		want    Payload
	}{
		{
			name:    "TopLevelToken",
			payload: map[string]any{"token": "secret", "user": "bob"},
			hidden:  []string{"token"},
			want:    map[string]any{"token": Mask, "user": "bob"},
		},
		{
			name: "NestedPath",
			payload: map[string]any{
				"user": map[string]any{"name": "bob", "password": "hunter2"},
			},
			hidden: []string{"user.password"},
			want: map[string]any{
				"user": map[string]any{"name": "bob", "password": Mask},
			},
		},
		{
			name:    "MultiplePaths",
			payload: map[string]any{"token": "a", "secret": "b", "keep": "c"},
			hidden:  []string{"token", "secret"},
			want:    map[string]any{"token": Mask, "secret": Mask, "keep": "c"},
		},
		{
			name:    "MissingPathIsIgnored",
			payload: map[string]any{"user": "bob"},
			hidden:  []string{"token"},
			want:    map[string]any{"user": "bob"},
		},
		{
			name:    "TruthyCollection",
			payload: map[string]any{"credentials": map[string]any{"key": "k"}},
			hidden:  []string{"credentials"},
			want:    map[string]any{"credentials": Mask},
		},
		{
			name:    "NoHiddenPaths",
			payload: map[string]any{"token": "secret"},
			hidden:  nil,
			want:    map[string]any{"token": "secret"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := Redact(tc.payload, tc.hidden)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("Redact() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

// TestRedactSkipsFalsyValues verifies that falsy values survive unmasked.
// This mirrors the long-standing capture behavior: only truthy secrets are
// overwritten.
func TestRedactSkipsFalsyValues(t *testing.T) {
	payload := map[string]any{
		"empty_string": "",
		"zero_int":     int64(0),
		"zero_float":   0.0,
		"false_bool":   false,
		"null_value":   nil,
		"empty_map":    map[string]any{},
		"empty_list":   []any{},
	}
	hidden := []string{
		"empty_string", "zero_int", "zero_float", "false_bool",
		"null_value", "empty_map", "empty_list",
	}

	got := Redact(payload, hidden)
	if diff := cmp.Diff(Payload(payload), got); diff != "" {
		t.Errorf("Redact() masked falsy values (-want +got):\n%s", diff)
	}
}

// TestRedactIdempotent verifies re-redacting produces the same result.
func TestRedactIdempotent(t *testing.T) {
	payload := map[string]any{"token": "secret", "user": "bob"}
	hidden := []string{"token"}

	once := Redact(payload, hidden)
	twice := Redact(once, hidden)
	if diff := cmp.Diff(once, twice); diff != "" {
		t.Errorf("second Redact() changed the payload (-once +twice):\n%s", diff)
	}
}

// TestRedactDoesNotMutateInput verifies the caller's payload is untouched.
func TestRedactDoesNotMutateInput(t *testing.T) {
	payload := map[string]any{
		"token": "secret",
		"user":  map[string]any{"password": "hunter2"},
		"items": []any{map[string]any{"key": "k"}},
	}

	_ = Redact(payload, []string{"token", "user.password", "items"})

	want := map[string]any{
		"token": "secret",
		"user":  map[string]any{"password": "hunter2"},
		"items": []any{map[string]any{"key": "k"}},
	}
	if diff := cmp.Diff(want, payload); diff != "" {
		t.Errorf("Redact() mutated its input (-want +got):\n%s", diff)
	}
}

// TestRedactPassesThroughNonStructured verifies sentinels and scalars are
// returned unchanged.
func TestRedactPassesThroughNonStructured(t *testing.T) {
	for _, payload := range []Payload{SentinelEmpty, SentinelPurged, SentinelHTML, "plain text", nil} {
		if got := Redact(payload, []string{"token"}); got != payload {
			t.Errorf("Redact(%v) = %v, want unchanged", payload, got)
		}
	}
}

func BenchmarkRedact(b *testing.B) {
	payload := map[string]any{
		"token": "secret",
		"user":  map[string]any{"name": "bob", "password": "hunter2"},
		"items": []any{map[string]any{"sku": "a-1"}},
	}
	hidden := []string{"token", "user.password"}
	b.ReportAllocs()
	for b.Loop() {
		_ = Redact(payload, hidden)
	}
}

// TestRedactInvalidPathIsIgnored verifies unparseable path rules are skipped
// without affecting the rest.
func TestRedactInvalidPathIsIgnored(t *testing.T) {
	payload := map[string]any{"token": "secret"}
	got := Redact(payload, []string{"$[", "token"})
	want := map[string]any{"token": Mask}
	if diff := cmp.Diff(Payload(want), got); diff != "" {
		t.Errorf("Redact() mismatch (-want +got):\n%s", diff)
	}
}
