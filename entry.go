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

// Payload is the captured representation of a request or response body.
// It holds either a structured value decoded from JSON (map[string]any or
// []any), a plain string, or one of the sentinel values below.
type Payload = any

// Sentinel payloads stand in for content that could not, or should not, be
// captured verbatim. They appear in [Entry.RequestPayload] and
// [Entry.ResponsePayload] exactly as written here, so sinks and UIs can match
// on them.
const (
	// SentinelEmpty replaces a zero-length body.
	SentinelEmpty = "Empty Response"

	// SentinelHTML replaces opaque content such as HTML pages or binary
	// blobs whose capture would bloat storage without aiding inspection.
	SentinelHTML = "HTML Response"

	// SentinelPurged replaces content that exceeded the configured size
	// limit, and gRPC bodies with no out-of-band payload available.
	SentinelPurged = "Purged By Spyglass"
)

// Mask is the fixed string written over redacted values.
const Mask = "********"

// Entry is the normalized record of one request/response lifecycle. It is
// assembled once by [Builder.Build] after the response has been finalized and
// must not be mutated afterwards; the pipeline hands it to a [Recorder] by
// value so sinks never share state with in-flight requests.
type Entry struct {
	// BatchID correlates all telemetry for one logical request across
	// HTTP and RPC boundaries.
	BatchID string `json:"batch_id"`

	// ClientIP is the trusted proxy header value when present, otherwise
	// the transport-level remote address, otherwise "unknown".
	ClientIP string `json:"ip_address"`

	// URI is the request target: path plus query for HTTP, the full
	// method name for RPC traffic.
	URI string `json:"uri"`

	// Method is the HTTP method, or "GRPC" for RPC traffic.
	Method string `json:"method"`

	// Handler identifies the resolved route handler in human-readable
	// form. Empty when the route could not be resolved.
	Handler string `json:"controller_action"`

	// Middleware lists the middleware chain the request traversed, in
	// order.
	Middleware []string `json:"middleware,omitempty"`

	// Headers holds the request headers, each name mapped to its ordered
	// values.
	Headers map[string][]string `json:"headers,omitempty"`

	// RequestPayload is the extracted request body: a structured value, a
	// string, or a sentinel.
	RequestPayload Payload `json:"payload"`

	// ResponseStatus is the numeric response status code.
	ResponseStatus int `json:"response_status"`

	// ResponsePayload is the extracted (and redacted) response body: a
	// structured value, a string, or a sentinel.
	ResponsePayload Payload `json:"response"`

	// DurationMS is the elapsed handling time in whole milliseconds,
	// rounded down. Nil when no start timestamp was recorded.
	DurationMS *int64 `json:"duration"`

	// MemoryMB is the peak memory footprint of the process in megabytes,
	// rounded to one decimal place.
	MemoryMB float64 `json:"memory"`

	// Labels carries optional runtime environment labels detected at
	// startup (service name, region, cluster).
	Labels map[string]string `json:"labels,omitempty"`
}
