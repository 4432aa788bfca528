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
	stdhttp "net/http"
	"net/textproto"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// RouteGetter returns a human-readable handler identifier for a request,
// for example the matched route template. An empty return leaves the
// handler unresolved.
type RouteGetter func(*stdhttp.Request) string

// HeaderFilter decides whether a request header is recorded on captured
// entries. Return false to exclude the header.
type HeaderFilter func(name string) bool

type config struct {
	trustedProxyHeader string
	routeGetter        RouteGetter
	middlewareNames    []string
	headerFilter       HeaderFilter
	enableOTel         bool
	tracerProvider     trace.TracerProvider
	propagators        propagation.TextMapPropagator
	propagatorsSet     bool
	filters            []otelhttp.Filter
}

// Option customizes the capture middleware.
type Option func(*config)

// applyOptions folds opts over the default configuration.
func applyOptions(opts []Option) *config {
	cfg := &config{
		headerFilter: defaultHeaderFilter,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	return cfg
}

// defaultHeaderFilter excludes credential-bearing headers from captured
// entries.
func defaultHeaderFilter(name string) bool {
	switch strings.ToLower(name) {
	case "authorization", "proxy-authorization", "cookie", "set-cookie", "x-csrf-token":
		return false
	default:
		return true
	}
}

// WithTrustedProxyHeader names a proxy header (for example
// "X-Forwarded-For") whose first value is preferred over the transport
// remote address when resolving the client IP. Empty disables proxy header
// trust.
func WithTrustedProxyHeader(name string) Option {
	name = textproto.CanonicalMIMEHeaderKey(strings.TrimSpace(name))
	return func(c *config) {
		c.trustedProxyHeader = name
	}
}

// WithRouteGetter supplies the resolved route template for the captured
// entry's handler identifier.
func WithRouteGetter(fn RouteGetter) Option {
	return func(c *config) {
		c.routeGetter = fn
	}
}

// WithMiddlewareChain records the names of the middleware the request
// traverses, in order, on every captured entry.
func WithMiddlewareChain(names ...string) Option {
	cleaned := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		cleaned = append(cleaned, name)
	}
	return func(c *config) {
		c.middlewareNames = cleaned
	}
}

// WithHeaderFilter replaces the default header filter. The default excludes
// authorization and cookie headers.
func WithHeaderFilter(filter HeaderFilter) Option {
	return func(c *config) {
		if filter != nil {
			c.headerFilter = filter
		}
	}
}

// WithOTel wraps the capture middleware with otelhttp instrumentation so
// spans and batch ids share trace context.
func WithOTel(enable bool) Option {
	return func(c *config) {
		c.enableOTel = enable
	}
}

// WithTracerProvider overrides the tracer provider used by the otelhttp
// wrapper.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *config) {
		c.tracerProvider = tp
	}
}

// WithPropagators overrides the propagators used for inbound trace context
// extraction. Passing nil restores the global propagator.
func WithPropagators(p propagation.TextMapPropagator) Option {
	return func(c *config) {
		c.propagators = p
		c.propagatorsSet = p != nil
	}
}

// WithFilter adds an otelhttp filter applied when OTel instrumentation is
// enabled.
func WithFilter(filter otelhttp.Filter) Option {
	return func(c *config) {
		if filter != nil {
			c.filters = append(c.filters, filter)
		}
	}
}
