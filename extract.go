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
	"unicode/utf8"

	"github.com/ohler55/ojg/oj"
)

// DefaultSizeLimitKB is the payload size limit applied when the configured
// limit is zero or negative.
const DefaultSizeLimitKB = 64

// OutOfBandFunc supplies a payload captured outside the body stream, such as
// a decoded gRPC message made available by a transport side-channel. The
// boolean reports whether one is available.
type OutOfBandFunc func() (Payload, bool)

// Extractor turns a raw body into a [Payload] according to its content type
// and the configured size limit. The zero value is usable and applies
// [DefaultSizeLimitKB] with no out-of-band source.
type Extractor struct {
	// LimitKB is the size limit in kilobytes. Values <= 0 fall back to
	// DefaultSizeLimitKB.
	LimitKB int

	// OutOfBand supplies payloads for transports whose body is not a
	// plain byte stream (application/grpc). Nil means unavailable.
	OutOfBand OutOfBandFunc
}

// Extract classifies content and returns the captured payload. The first
// matching rule wins:
//
//  1. Empty content yields [SentinelEmpty] regardless of content type.
//  2. Content that decodes as a JSON object or array yields the decoded
//     structure when within the size limit, [SentinelPurged] otherwise.
//  3. text/plain content yields the raw string when within the size limit,
//     [SentinelPurged] otherwise.
//  4. application/grpc content yields the out-of-band payload when one is
//     available, [SentinelPurged] otherwise.
//  5. Anything else yields [SentinelHTML].
//
// Extract never fails; unparseable content falls through to the opaque
// sentinel.
func (e Extractor) Extract(content []byte, contentType string) Payload {
	if len(content) == 0 {
		return SentinelEmpty
	}

	if v, err := oj.Parse(content); err == nil && isStructured(v) {
		if e.withinLimit(content) {
			return v
		}
		return SentinelPurged
	}

	ct := strings.ToLower(strings.TrimSpace(contentType))
	switch {
	case strings.HasPrefix(ct, "text/plain"):
		if e.withinLimit(content) {
			return string(content)
		}
		return SentinelPurged
	case strings.Contains(ct, "application/grpc"):
		if e.OutOfBand != nil {
			if v, ok := e.OutOfBand(); ok {
				return v
			}
		}
		return SentinelPurged
	}

	return SentinelHTML
}

// withinLimit reports whether content fits the configured limit. The measure
// divides the character count by 1000 and compares against the limit in KB,
// matching the historical capture behavior rather than a byte-exact check.
func (e Extractor) withinLimit(content []byte) bool {
	limit := e.LimitKB
	if limit <= 0 {
		limit = DefaultSizeLimitKB
	}
	return utf8.RuneCount(content)/1000 <= limit
}

// isStructured reports whether a decoded value is a JSON object or array.
// Scalars parse as valid JSON but are not treated as structured payloads.
func isStructured(v any) bool {
	switch v.(type) {
	case map[string]any, []any:
		return true
	default:
		return false
	}
}
