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

// Package grpc provides gRPC interceptors feeding the spyglass capture
// pipeline.
//
// The server interceptors resolve the batch id from incoming metadata
// (key "spyglass-batch-id"), falling back to the active trace id or a
// fresh UUID, echo the id on the response headers, and schedule capture
// after the handler returns. Entries are recorded on the service channel.
// Unary request and response messages are captured through protojson, so
// they land in storage as structured payloads subject to the same size
// limit and redaction rules as HTTP bodies. Stream handlers are captured
// without payloads.
//
//	server := grpc.NewServer(spyglassgrpc.ServerOptions(pipeline)...)
//
// The client interceptors forward the batch id from the calling context
// into outgoing metadata so downstream services join the same batch.
// Optional OpenTelemetry stats handlers are installed when enabled via
// [WithOTel].
package grpc
