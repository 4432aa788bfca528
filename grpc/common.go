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

package grpc

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"path"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
)

const grpcContentType = "application/grpc"

// metadataSideChannel exposes incoming gRPC metadata to batch-id
// resolution.
type metadataSideChannel struct {
	md metadata.MD
}

// Get returns the first value stored under key, reporting whether one
// exists.
func (s metadataSideChannel) Get(key string) (string, bool) {
	values := s.md.Get(key)
	if len(values) == 0 || values[0] == "" {
		return "", false
	}
	return values[0], true
}

// metadataCarrier adapts metadata.MD to the OpenTelemetry TextMapCarrier
// interface for trace context extraction.
type metadataCarrier struct {
	md metadata.MD
}

func (mc metadataCarrier) Get(key string) string {
	values := mc.md.Get(key)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

func (mc metadataCarrier) Set(key string, value string) {
	mc.md.Set(key, value)
}

func (mc metadataCarrier) Keys() []string {
	keys := make([]string, 0, len(mc.md))
	for k := range mc.md {
		keys = append(keys, k)
	}
	return keys
}

// ensureSpanContext extracts inbound trace context from metadata when the
// context does not already carry a valid span, so batch-id resolution can
// fall back to the inbound trace id.
func ensureSpanContext(ctx context.Context, md metadata.MD, cfg *config) context.Context {
	if len(md) == 0 || trace.SpanContextFromContext(ctx).IsValid() {
		return ctx
	}

	propagator := cfg.propagators
	if propagator == nil {
		propagator = otel.GetTextMapPropagator()
	}
	if propagator == nil {
		return ctx
	}

	extracted := propagator.Extract(ctx, metadataCarrier{md: md})
	if trace.SpanContextFromContext(extracted).IsValid() {
		return extracted
	}
	return ctx
}

// splitMethodName parses a gRPC full method name ("/package.Service/Method")
// into its service and method components.
func splitMethodName(fullMethod string) (service, method string) {
	fullMethod = strings.TrimPrefix(fullMethod, "/")
	service = path.Dir(fullMethod)
	method = path.Base(fullMethod)
	if service == "." || service == "" {
		service = "unknown"
	}
	return service, method
}

// handlerName formats the entry handler identifier for a resolved method.
func handlerName(fullMethod string) string {
	service, method := splitMethodName(fullMethod)
	return service + "/" + method
}

// defaultMetadataFilter excludes credential-bearing and binary trace keys
// from captured metadata.
func defaultMetadataFilter(key string) bool {
	switch strings.ToLower(key) {
	case "authorization", "cookie", "set-cookie", "x-csrf-token", "grpc-trace-bin":
		return false
	default:
		return true
	}
}

// filterMetadata copies md into a header map, dropping keys the filter
// rejects. Returns nil when nothing survives.
func filterMetadata(md metadata.MD, filter MetadataFilter) map[string][]string {
	if len(md) == 0 {
		return nil
	}
	headers := make(map[string][]string, len(md))
	for key, values := range md {
		if filter != nil && !filter(key) {
			continue
		}
		headers[key] = append([]string(nil), values...)
	}
	if len(headers) == 0 {
		return nil
	}
	return headers
}

// typeMarker stands in for the raw body of a decoded gRPC message. The
// message bytes are not available inside an interceptor; the marker routes
// extraction to the out-of-band payload path.
func typeMarker(m any) []byte {
	if m == nil {
		return nil
	}
	return fmt.Appendf(nil, "%T", m)
}

// httpStatusFromCode maps a gRPC status code onto the equivalent HTTP
// status so entries from both transports share one status column.
func httpStatusFromCode(code codes.Code) int {
	switch code {
	case codes.OK:
		return stdhttp.StatusOK
	case codes.Canceled:
		return stdhttp.StatusRequestTimeout
	case codes.InvalidArgument:
		return stdhttp.StatusBadRequest
	case codes.DeadlineExceeded:
		return stdhttp.StatusGatewayTimeout
	case codes.NotFound:
		return stdhttp.StatusNotFound
	case codes.AlreadyExists:
		return stdhttp.StatusConflict
	case codes.PermissionDenied:
		return stdhttp.StatusForbidden
	case codes.ResourceExhausted:
		return stdhttp.StatusTooManyRequests
	case codes.FailedPrecondition:
		return stdhttp.StatusBadRequest
	case codes.Aborted:
		return stdhttp.StatusConflict
	case codes.OutOfRange:
		return stdhttp.StatusBadRequest
	case codes.Unimplemented:
		return stdhttp.StatusNotImplemented
	case codes.Unavailable:
		return stdhttp.StatusServiceUnavailable
	case codes.Unauthenticated:
		return stdhttp.StatusUnauthorized
	default:
		return stdhttp.StatusInternalServerError
	}
}
