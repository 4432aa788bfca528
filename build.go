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
	"math"
	"net"
	"runtime"
	"strings"
	"time"
)

// RequestFacts are the request-side inputs to [Builder.Build]. Missing fields
// degrade to empty or sentinel values; they never cause a build failure.
type RequestFacts struct {
	Method      string
	URI         string
	RemoteAddr  string
	ProxyIP     string // trusted proxy header value, may hold a comma list
	Handler     string
	Middleware  []string
	Headers     map[string][]string
	ContentType string
	Body        []byte
}

// ResponseFacts are the response-side inputs to [Builder.Build].
type ResponseFacts struct {
	Status      int
	ContentType string
	Body        []byte
}

// MemoryReader reports the peak memory footprint of the process. Injected so
// tests can supply deterministic readings.
type MemoryReader interface {
	PeakUsageBytes() uint64
}

// RuntimeMemory reads the process memory footprint from the Go runtime.
// MemStats.Sys approximates peak resident usage: it only grows as the
// runtime obtains memory from the OS.
type RuntimeMemory struct{}

// PeakUsageBytes returns the total bytes of memory obtained from the OS.
func (RuntimeMemory) PeakUsageBytes() uint64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m.Sys
}

// Builder assembles capture entries from request/response facts and extracted
// payloads. The zero value uses the runtime memory reader and wall clock.
type Builder struct {
	// Memory supplies the peak memory reading. Nil uses [RuntimeMemory].
	Memory MemoryReader

	// Now supplies the completion timestamp for duration measurement.
	// Nil uses time.Now, which carries a monotonic reading in Go and
	// tolerates wall-clock adjustments.
	Now func() time.Time

	// Labels are attached to every built entry. Typically populated from
	// [DetectRuntimeInfo].
	Labels map[string]string
}

// Build assembles a capture entry. It never fails: absent facts degrade to
// empty strings, a nil duration, or the "unknown" client address.
func (b Builder) Build(batchID string, req RequestFacts, resp ResponseFacts, requestPayload, responsePayload Payload, start time.Time) Entry {
	entry := Entry{
		BatchID:         batchID,
		ClientIP:        resolveClientIP(req.ProxyIP, req.RemoteAddr),
		URI:             req.URI,
		Method:          req.Method,
		Handler:         req.Handler,
		Middleware:      req.Middleware,
		Headers:         req.Headers,
		RequestPayload:  requestPayload,
		ResponseStatus:  resp.Status,
		ResponsePayload: responsePayload,
		MemoryMB:        b.memoryMB(),
		Labels:          b.Labels,
	}

	if !start.IsZero() {
		now := b.Now
		if now == nil {
			now = time.Now
		}
		elapsed := now().Sub(start)
		if elapsed < 0 {
			elapsed = 0
		}
		ms := elapsed.Milliseconds()
		entry.DurationMS = &ms
	}

	return entry
}

// memoryMB converts the peak memory reading to megabytes rounded to one
// decimal place.
func (b Builder) memoryMB() float64 {
	reader := b.Memory
	if reader == nil {
		reader = RuntimeMemory{}
	}
	mb := float64(reader.PeakUsageBytes()) / (1024 * 1024)
	return math.Round(mb*10) / 10
}

// resolveClientIP picks the client address: a trusted proxy header value when
// present, else the transport remote address, else "unknown".
func resolveClientIP(proxyValue, remoteAddr string) string {
	if proxyValue != "" {
		first, _, _ := strings.Cut(proxyValue, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if ip := stripPort(remoteAddr); ip != "" {
		return ip
	}
	return "unknown"
}

// stripPort removes the port from a host:port string and returns the host
// component unchanged when no port is present.
func stripPort(addr string) string {
	if addr == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
