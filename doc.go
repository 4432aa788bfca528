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

// Package spyglass captures request and response metadata for later
// inspection. It records method, URI, headers, payloads, status, duration,
// and memory for each request, redacts sensitive fields, and truncates
// oversized bodies before handing the finished entry to a pluggable sink.
//
// The package is a reusable capture pipeline, not a framework: routing,
// serving, and storage stay with the application. The pipeline runs entirely
// off the serving path. [Pipeline.Begin] establishes a correlation id
// (the batch id) when a request arrives; [Pipeline.Complete] schedules
// capture after the response is finalized, so a slow or failing sink can
// never delay a response. Every failure inside the pipeline is absorbed;
// at most a debug-level log line records the loss.
//
// # Capture flow
//
// Each completed request passes through four stages:
//
//   - [ShouldCapture] decides whether to record at all, honoring per-kind
//     enablement, ignore rules, and only-path allowlist overrides.
//   - [Extractor.Extract] turns raw bodies into payloads, substituting
//     sentinels for empty, oversized, or opaque content.
//   - [Redact] masks configured hidden fields in the response payload.
//   - [Builder.Build] assembles the immutable [Entry] dispatched to the
//     [Recorder] on either the request or the service channel.
//
// # Subpackages
//
//   - [github.com/spyglass-obs/spyglass/http] offers net/http middleware
//     that tees bodies, echoes the batch header, and completes the pipeline
//     after the response is written.
//   - [github.com/spyglass-obs/spyglass/grpc] provides server interceptors
//     that capture unary RPCs, including protobuf payloads, over the
//     service channel.
//   - [github.com/spyglass-obs/spyglass/recorder] supplies a bounded
//     in-memory sink and an asynchronous queue wrapper for slow sinks.
//   - [github.com/spyglass-obs/spyglass/metrics] exposes Prometheus
//     instrumentation for the pipeline.
//
// # Quick start
//
//	sink := recorder.NewMemory(1000)
//	pipeline := spyglass.NewPipeline(spyglass.DefaultConfig(), sink)
//
//	mux := http.NewServeMux()
//	// ... register handlers ...
//	handler := spyglasshttp.Middleware(pipeline)(mux)
//	log.Fatal(http.ListenAndServe(":8080", handler))
//
// Configuration can also be loaded from YAML with [LoadConfig]; SPYGLASS_*
// environment variables override file values so the same binary can run
// locally and in production without code changes.
package spyglass
