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
	"log/slog"
	"strings"
	"time"
)

// Recorder is the sink receiving finished capture entries. Implementations
// must be safe for concurrent use and should not block; the pipeline
// dispatches fire-and-forget and never retries.
type Recorder interface {
	// RecordRequest persists an entry from the synchronous HTTP channel.
	RecordRequest(entry Entry)

	// RecordService persists an entry from the RPC/service channel.
	RecordService(entry Entry)
}

// Transport tags the traffic class a handler serves. Produced by the
// injected [HandlerResolver]; the pipeline depends only on this tag, never
// on concrete framework types.
type Transport int

const (
	// TransportHTTP marks plain HTTP traffic recorded on the request
	// channel.
	TransportHTTP Transport = iota

	// TransportRPC marks RPC/service traffic recorded on the service
	// channel.
	TransportRPC
)

// HandlerDescriptor describes the resolved route handler for a request.
type HandlerDescriptor struct {
	// Name is a human-readable handler identifier, empty if unresolved.
	Name string

	// Transport classifies the traffic for channel selection.
	Transport Transport
}

// HandlerResolver maps request attributes to the handler serving them. The
// lookup itself is external plumbing; the pipeline only consumes the
// descriptor.
type HandlerResolver func(attrs RequestAttributes) HandlerDescriptor

// Observer receives pipeline lifecycle notifications. The metrics subpackage
// provides a Prometheus-backed implementation.
type Observer interface {
	// EntryCaptured fires after an entry reaches the recorder; d is the
	// time spent in extraction, redaction, and building.
	EntryCaptured(kind Kind, d time.Duration)

	// EntryIgnored fires when the capture decision suppressed a request.
	EntryIgnored(kind Kind)

	// EntryDropped fires when a finished entry was discarded before
	// reaching the sink, for example by a saturated async recorder.
	EntryDropped(kind Kind)
}

// Capture bundles everything known about one completed request/response
// pair. The transports (HTTP middleware, gRPC interceptors) assemble it and
// hand it to [Pipeline.Complete].
type Capture struct {
	BatchID  string
	Request  RequestFacts
	Response ResponseFacts

	// Transport classifies the traffic when no resolver is configured or
	// the resolver leaves it unset. A resolver reporting [TransportRPC]
	// takes precedence.
	Transport Transport

	// Start is when the request began. Zero means no duration is
	// recorded.
	Start time.Time

	// RequestOutOfBand and ResponseOutOfBand supply payloads for
	// transports without a plain body stream.
	RequestOutOfBand  OutOfBandFunc
	ResponseOutOfBand OutOfBandFunc

	// RequestOverflow and ResponseOverflow mark bodies that outgrew the
	// transport's capture buffer. Overflowed payloads are purged without
	// re-measuring.
	RequestOverflow  bool
	ResponseOverflow bool
}

// Pipeline orchestrates capture for in-flight requests. One pipeline serves
// the whole process; per-request state lives in the [Capture] values, so
// concurrent requests share nothing mutable. Construction snapshots the
// configuration; it is read lock-free afterwards.
//
// A request moves through two states: pending after [Pipeline.Begin]
// establishes the batch id, completed once [Pipeline.Complete] has scheduled
// the deferred entry build. Completion work runs off the serving path and
// absorbs every failure; capture is best-effort telemetry, not a durable
// log.
type Pipeline struct {
	cfg      *Config
	recorder Recorder
	resolver HandlerResolver
	logger   *slog.Logger
	builder  Builder
	observer Observer
	schedule func(func())
}

// PipelineOption customizes pipeline construction.
type PipelineOption func(*Pipeline)

// WithHandlerResolver injects the route handler lookup.
func WithHandlerResolver(resolver HandlerResolver) PipelineOption {
	return func(p *Pipeline) {
		p.resolver = resolver
	}
}

// WithLogger directs internal diagnostics (recovered panics, dropped
// captures) to logger. Defaults to slog.Default; diagnostics are logged at
// debug level only.
func WithLogger(logger *slog.Logger) PipelineOption {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMemoryReader replaces the runtime memory reader, enabling
// deterministic tests.
func WithMemoryReader(reader MemoryReader) PipelineOption {
	return func(p *Pipeline) {
		p.builder.Memory = reader
	}
}

// WithClock replaces the wall clock used for duration measurement.
func WithClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) {
		p.builder.Now = now
	}
}

// WithObserver registers a lifecycle observer, typically metrics.
func WithObserver(observer Observer) PipelineOption {
	return func(p *Pipeline) {
		p.observer = observer
	}
}

// WithLabels attaches static labels to every entry the pipeline builds.
func WithLabels(labels map[string]string) PipelineOption {
	return func(p *Pipeline) {
		p.builder.Labels = labels
	}
}

// WithDetectedLabels attaches runtime environment labels discovered via
// [DetectRuntimeInfo].
func WithDetectedLabels() PipelineOption {
	return func(p *Pipeline) {
		if info := DetectRuntimeInfo(); len(info.Labels) > 0 {
			p.builder.Labels = info.Labels
		}
	}
}

// WithScheduler replaces the deferred executor. The default runs each
// completion in its own goroutine; tests substitute a synchronous scheduler.
func WithScheduler(schedule func(func())) PipelineOption {
	return func(p *Pipeline) {
		if schedule != nil {
			p.schedule = schedule
		}
	}
}

// NewPipeline builds a pipeline recording to recorder under cfg. A nil cfg
// uses [DefaultConfig]; a config without a positive size limit is snapshotted
// with [DefaultSizeLimitKB] so transports sizing capture buffers from
// [Pipeline.Config] never see a zero limit. A nil recorder discards entries.
func NewPipeline(cfg *Config, recorder Recorder, opts ...PipelineOption) *Pipeline {
	if cfg == nil {
		cfg = DefaultConfig()
	} else if cfg.SizeLimitKB <= 0 {
		// Copy before normalizing; the caller's value stays untouched.
		normalized := *cfg
		normalized.SizeLimitKB = DefaultSizeLimitKB
		cfg = &normalized
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}

	p := &Pipeline{
		cfg:      cfg,
		recorder: recorder,
		logger:   slog.Default(),
		schedule: func(fn func()) { go fn() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Config returns the configuration snapshot the pipeline was built with.
func (p *Pipeline) Config() *Config {
	return p.cfg
}

// Begin establishes the batch id for a request and stores it in the
// returned context for downstream propagation. header carries an inbound
// correlation header value when one exists; side is the transport
// side-channel, nil for plain HTTP.
func (p *Pipeline) Begin(ctx context.Context, header string, side SideChannel) (context.Context, string) {
	id := ResolveBatchID(ctx, header, side)
	return ContextWithBatchID(ctx, id), id
}

// Complete schedules the deferred capture of a finished request/response
// pair. It returns immediately; entry building and recording run on the
// pipeline's executor after the response bytes are already on the wire.
// Failures inside the deferred work are absorbed and never reach the
// caller.
func (p *Pipeline) Complete(capture Capture) {
	p.schedule(func() {
		defer func() {
			if r := recover(); r != nil {
				p.logger.Debug("spyglass: capture dropped after panic", slog.Any("panic", r))
			}
		}()
		p.run(capture)
	})
}

// run performs decision, extraction, redaction, building, and dispatch for
// one capture.
func (p *Pipeline) run(c Capture) {
	attrs := RequestAttributes{
		Method: c.Request.Method,
		Path:   pathOf(c.Request.URI),
	}

	desc := HandlerDescriptor{}
	if p.resolver != nil {
		desc = p.resolver(attrs)
	}

	kind := KindRequest
	if c.Transport == TransportRPC || desc.Transport == TransportRPC {
		kind = KindService
	}

	if !ShouldCapture(p.cfg, kind, attrs) {
		if p.observer != nil {
			p.observer.EntryIgnored(kind)
		}
		return
	}

	started := time.Now()

	requestPayload := extractPayload(
		Extractor{LimitKB: p.cfg.SizeLimitKB, OutOfBand: c.RequestOutOfBand},
		c.Request.Body, c.Request.ContentType, c.RequestOverflow)
	responsePayload := extractPayload(
		Extractor{LimitKB: p.cfg.SizeLimitKB, OutOfBand: c.ResponseOutOfBand},
		c.Response.Body, c.Response.ContentType, c.ResponseOverflow)
	responsePayload = Redact(responsePayload, p.cfg.HiddenPaths)

	facts := c.Request
	if desc.Name != "" {
		facts.Handler = desc.Name
	}

	entry := p.builder.Build(c.BatchID, facts, c.Response, requestPayload, responsePayload, c.Start)

	switch kind {
	case KindService:
		p.recorder.RecordService(entry)
	default:
		p.recorder.RecordRequest(entry)
	}

	if p.observer != nil {
		p.observer.EntryCaptured(kind, time.Since(started))
	}
}

// extractPayload applies the extractor, short-circuiting bodies the
// transport already knows outgrew its capture buffer.
func extractPayload(e Extractor, body []byte, contentType string, overflow bool) Payload {
	if overflow {
		return SentinelPurged
	}
	return e.Extract(body, contentType)
}

// pathOf strips the query component from a request target.
func pathOf(uri string) string {
	path, _, _ := strings.Cut(uri, "?")
	return path
}

// nopRecorder discards entries. Used when no sink is configured so the
// pipeline stays safe to call.
type nopRecorder struct{}

func (nopRecorder) RecordRequest(Entry) {}

func (nopRecorder) RecordService(Entry) {}
