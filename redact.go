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

	"github.com/ohler55/ojg/jp"
)

// Redact returns a copy of payload with every hidden path overwritten by
// [Mask]. The input is never mutated. Paths use dotted notation relative to
// the payload root ("token", "user.secret"); full JSONPath expressions are
// also accepted.
//
// A path is only masked when it resolves to a truthy value. Paths that do
// not resolve, or that resolve to nil, false, an empty string, a numeric
// zero, or an empty collection, are left untouched. A secret stored as an
// empty string therefore survives unredacted; callers wanting stricter
// behavior should not store falsy secrets.
//
// Redaction is idempotent: the mask itself is truthy and re-masking it is a
// no-op in effect.
func Redact(payload Payload, hiddenPaths []string) Payload {
	if len(hiddenPaths) == 0 || !isStructured(payload) {
		return payload
	}

	out := deepCopy(payload)
	for _, raw := range hiddenPaths {
		expr, err := jp.ParseString(normalizePath(raw))
		if err != nil {
			continue
		}
		if !truthy(expr.First(out)) {
			continue
		}
		if err := expr.Set(out, Mask); err != nil {
			continue
		}
	}
	return out
}

// normalizePath anchors bare dotted paths at the document root so jp accepts
// them alongside explicit JSONPath expressions.
func normalizePath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" || strings.HasPrefix(path, "$") || strings.HasPrefix(path, "@") {
		return path
	}
	return "$." + path
}

// truthy reports whether a resolved value would be masked. Mirrors the loose
// truthiness the capture pipeline has always applied to hidden fields.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case int:
		return t != 0
	case int64:
		return t != 0
	case float64:
		return t != 0
	case map[string]any:
		return len(t) > 0
	case []any:
		return len(t) > 0
	default:
		return true
	}
}

// deepCopy duplicates the map/slice spine of a decoded JSON value so Redact
// can write masks without touching the caller's copy. Scalar leaves are
// shared; they are immutable.
func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = deepCopy(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = deepCopy(val)
		}
		return out
	default:
		return v
	}
}
