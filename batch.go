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
	"context"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// BatchHeader is the HTTP header carrying the correlation id. The middleware
// reads it on ingress and echoes it on every response.
const BatchHeader = "X-Batch-Id"

// BatchMetadataKey is the side-channel key carrying the correlation id for
// RPC transports (gRPC metadata).
const BatchMetadataKey = "spyglass-batch-id"

// SideChannel reads out-of-band values from a transport-specific context,
// such as inbound gRPC metadata. Implementations return ok=false when the
// key is absent.
type SideChannel interface {
	Get(key string) (string, bool)
}

type contextKey int

const batchIDContextKey contextKey = iota

// ContextWithBatchID returns a child context carrying the batch id so
// downstream code can correlate its own telemetry with the capture entry.
func ContextWithBatchID(ctx context.Context, id string) context.Context {
	if ctx == nil || id == "" {
		return ctx
	}
	return context.WithValue(ctx, batchIDContextKey, id)
}

// BatchIDFromContext retrieves the batch id stored by [ContextWithBatchID].
func BatchIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(batchIDContextKey).(string)
	return id, ok && id != ""
}

// ResolveBatchID establishes the correlation id for one request. Preference
// order:
//
//  1. an inbound correlation header value,
//  2. the transport side-channel ([BatchMetadataKey]),
//  3. the trace id of an active OpenTelemetry span,
//  4. a freshly generated UUID.
//
// The result is stable for the lifetime of one request regardless of
// transport; callers resolve once at request start and thread the id through
// context.
func ResolveBatchID(ctx context.Context, header string, side SideChannel) string {
	if header = strings.TrimSpace(header); header != "" {
		return header
	}
	if side != nil {
		if v, ok := side.Get(BatchMetadataKey); ok {
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		}
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		return sc.TraceID().String()
	}
	return uuid.NewString()
}
