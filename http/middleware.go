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

package http

import (
	"bufio"
	"context"
	"io"
	"net"
	stdhttp "net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/spyglass-obs/spyglass"
)

const instrumentationName = "github.com/spyglass-obs/spyglass/http"

// Middleware returns an http.Handler middleware that establishes the batch
// id, tees request and response bodies into bounded buffers, and hands the
// finished request/response pair to the capture pipeline after the response
// is written.
func Middleware(pipeline *spyglass.Pipeline, opts ...Option) func(stdhttp.Handler) stdhttp.Handler {
	cfg := applyOptions(opts)
	limit := captureLimit(pipeline.Config().SizeLimitKB)

	return func(next stdhttp.Handler) stdhttp.Handler {
		if next == nil {
			next = stdhttp.NotFoundHandler()
		}

		captureHandler := stdhttp.HandlerFunc(func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
			start := time.Now()

			ctx, batchID := pipeline.Begin(r.Context(), r.Header.Get(spyglass.BatchHeader), nil)
			r = r.WithContext(ctx)
			w.Header().Set(spyglass.BatchHeader, batchID)

			reqBody := drainRequestBody(r, limit)
			rec := newResponseRecorder(w, limit)

			handler := ""
			if cfg.routeGetter != nil {
				handler = cfg.routeGetter(r)
			}
			proxyIP := ""
			if cfg.trustedProxyHeader != "" {
				proxyIP = r.Header.Get(cfg.trustedProxyHeader)
			}

			capture := spyglass.Capture{
				BatchID: batchID,
				Start:   start,
				Request: spyglass.RequestFacts{
					Method:      r.Method,
					URI:         r.URL.RequestURI(),
					RemoteAddr:  r.RemoteAddr,
					ProxyIP:     proxyIP,
					Handler:     handler,
					Middleware:  cfg.middlewareNames,
					Headers:     filterHeaders(r.Header, cfg.headerFilter),
					ContentType: r.Header.Get("Content-Type"),
				},
			}

			// Complete runs in a defer so capture is scheduled even when
			// the handler panics; the pipeline does its work off the
			// serving path either way.
			defer func() {
				capture.Request.Body = reqBody.Bytes()
				capture.RequestOverflow = reqBody.Overflowed()
				capture.Response = spyglass.ResponseFacts{
					Status:      rec.Status(),
					ContentType: rec.Header().Get("Content-Type"),
					Body:        rec.Body(),
				}
				capture.ResponseOverflow = rec.Overflowed()
				pipeline.Complete(capture)
			}()

			next.ServeHTTP(rec, r)
		})

		handlerChain := stdhttp.Handler(captureHandler)

		if cfg.enableOTel {
			otelOpts := []otelhttp.Option{}
			if cfg.tracerProvider != nil {
				otelOpts = append(otelOpts, otelhttp.WithTracerProvider(cfg.tracerProvider))
			}
			if cfg.propagatorsSet && cfg.propagators != nil {
				otelOpts = append(otelOpts, otelhttp.WithPropagators(cfg.propagators))
			}
			for _, filter := range cfg.filters {
				if filter != nil {
					otelOpts = append(otelOpts, otelhttp.WithFilter(filter))
				}
			}
			handlerChain = otelhttp.NewHandler(handlerChain, instrumentationName, otelOpts...)
		}

		return stdhttp.HandlerFunc(func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
			// Ensure remote trace context is present so batch-id
			// resolution can fall back to the inbound trace id.
			ctx := r.Context()
			if newCtx := ensureSpanContext(ctx, r, cfg); newCtx != ctx {
				r = r.WithContext(newCtx)
			}
			handlerChain.ServeHTTP(w, r)
		})
	}
}

// filterHeaders copies h, dropping headers the filter rejects. Returns nil
// when no header survives.
func filterHeaders(h stdhttp.Header, filter HeaderFilter) map[string][]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string][]string, len(h))
	for name, values := range h {
		if filter != nil && !filter(name) {
			continue
		}
		out[name] = append([]string(nil), values...)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// ensureSpanContext extracts inbound trace context from headers when the
// request context does not already carry a valid span.
func ensureSpanContext(ctx context.Context, r *stdhttp.Request, cfg *config) context.Context {
	if trace.SpanContextFromContext(ctx).IsValid() {
		return ctx
	}

	propagator := cfg.propagators
	if propagator == nil {
		propagator = otel.GetTextMapPropagator()
	}
	if propagator == nil {
		return ctx
	}

	extracted := propagator.Extract(ctx, propagation.HeaderCarrier(r.Header))
	if trace.SpanContextFromContext(extracted).IsValid() {
		return extracted
	}
	return ctx
}

// responseRecorder decorates a ResponseWriter to capture status, a bounded
// body prefix, and optional interfaces of the wrapped writer.
type responseRecorder struct {
	stdhttp.ResponseWriter
	body        *captureBuffer
	status      int
	wroteHeader bool
}

// newResponseRecorder wraps w with a recorder buffering up to capacity
// bytes of the response body.
func newResponseRecorder(w stdhttp.ResponseWriter, capacity int) *responseRecorder {
	return &responseRecorder{
		ResponseWriter: w,
		body:           newCaptureBuffer(capacity),
		status:         stdhttp.StatusOK,
	}
}

// WriteHeader records the status code before delegating to the wrapped
// writer. Subsequent calls pass through without changing the recorded
// status, matching net/http semantics.
func (rr *responseRecorder) WriteHeader(status int) {
	if rr.wroteHeader {
		rr.ResponseWriter.WriteHeader(status)
		return
	}
	rr.status = status
	rr.wroteHeader = true
	rr.ResponseWriter.WriteHeader(status)
}

// Write tees bytes into the capture buffer and forwards them to the
// underlying writer.
func (rr *responseRecorder) Write(p []byte) (int, error) {
	if !rr.wroteHeader {
		rr.WriteHeader(stdhttp.StatusOK)
	}
	n, err := rr.ResponseWriter.Write(p)
	if n > 0 {
		_, _ = rr.body.Write(p[:n])
	}
	return n, err
}

// ReadFrom streams data from src while teeing it into the capture buffer.
func (rr *responseRecorder) ReadFrom(src io.Reader) (int64, error) {
	if !rr.wroteHeader {
		rr.WriteHeader(stdhttp.StatusOK)
	}
	tee := io.TeeReader(src, rr.body)
	if rf, ok := rr.ResponseWriter.(io.ReaderFrom); ok {
		return rf.ReadFrom(tee)
	}
	return io.Copy(rr.ResponseWriter, tee)
}

// Status returns the recorded status code, defaulting to 200.
func (rr *responseRecorder) Status() int {
	if rr.status == 0 {
		return stdhttp.StatusOK
	}
	return rr.status
}

// Body returns the buffered response body prefix.
func (rr *responseRecorder) Body() []byte {
	return rr.body.Bytes()
}

// Overflowed reports whether the response body outgrew the capture buffer.
func (rr *responseRecorder) Overflowed() bool {
	return rr.body.Overflowed()
}

// Flush forwards the flush request to the underlying ResponseWriter when
// supported.
func (rr *responseRecorder) Flush() {
	if flusher, ok := rr.ResponseWriter.(stdhttp.Flusher); ok {
		flusher.Flush()
	}
}

// Hijack delegates to the wrapped Hijacker when supported, otherwise
// returns http.ErrNotSupported.
func (rr *responseRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := rr.ResponseWriter.(stdhttp.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, stdhttp.ErrNotSupported
}

// Push forwards HTTP/2 push requests when the underlying writer supports
// http.Pusher.
func (rr *responseRecorder) Push(target string, opts *stdhttp.PushOptions) error {
	if pusher, ok := rr.ResponseWriter.(stdhttp.Pusher); ok {
		return pusher.Push(target, opts)
	}
	return stdhttp.ErrNotSupported
}
