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

// Package http provides net/http middleware feeding the spyglass capture
// pipeline.
//
// The middleware resolves the batch id from the inbound X-Batch-Id header
// (or an active trace, or a fresh UUID), echoes it on the response, tees
// request and response bodies into bounded buffers, and schedules capture
// with the pipeline after the response has been written. The serving path
// is never delayed by capture work.
//
//	handler := spyglasshttp.Middleware(pipeline,
//	    spyglasshttp.WithTrustedProxyHeader("X-Forwarded-For"),
//	)(mux)
//
// Optional OpenTelemetry instrumentation wraps the middleware with
// otelhttp when enabled, sharing span context with batch-id resolution.
package http
