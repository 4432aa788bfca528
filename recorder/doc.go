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

// Package recorder provides sink implementations for the capture pipeline.
//
// [Memory] is a bounded in-memory ring that keeps the newest entries for
// inspection during development and in tests. [Async] wraps any
// [spyglass.Recorder] with a queue and worker pool so slow sinks never block
// the pipeline's deferred capture work; overflow behavior is selectable via
// drop modes, and Close drains the queue with an optional timeout.
//
// Persistence beyond the in-memory ring is deliberately out of scope: the
// pipeline's sink contract is fire-and-forget, and durable storage belongs
// to the application.
package recorder
