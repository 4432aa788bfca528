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
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// MetadataFilter decides whether a metadata key is recorded on captured
// entries. Return false to exclude the key.
type MetadataFilter func(key string) bool

type config struct {
	metadataFilter MetadataFilter
	enableOTel     bool
	tracerProvider trace.TracerProvider
	propagators    propagation.TextMapPropagator
	propagatorsSet bool
	filters        []otelgrpc.Filter
}

// Option customizes the capture interceptors.
type Option func(*config)

// applyOptions folds opts over the default configuration.
func applyOptions(opts []Option) *config {
	cfg := &config{
		metadataFilter: defaultMetadataFilter,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	return cfg
}

// WithMetadataFilter replaces the default metadata filter. The default
// excludes authorization, cookie, and binary trace keys.
func WithMetadataFilter(filter MetadataFilter) Option {
	return func(c *config) {
		if filter != nil {
			c.metadataFilter = filter
		}
	}
}

// WithOTel installs otelgrpc stats handlers alongside the capture
// interceptors so spans and batch ids share trace context.
func WithOTel(enable bool) Option {
	return func(c *config) {
		c.enableOTel = enable
	}
}

// WithTracerProvider overrides the tracer provider used by the otelgrpc
// stats handlers.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *config) {
		c.tracerProvider = tp
	}
}

// WithPropagators overrides the propagators used for inbound trace context
// extraction and otelgrpc instrumentation. Passing nil restores the global
// propagator.
func WithPropagators(p propagation.TextMapPropagator) Option {
	return func(c *config) {
		c.propagators = p
		c.propagatorsSet = p != nil
	}
}

// WithFilter adds an otelgrpc filter applied when OTel instrumentation is
// enabled.
func WithFilter(filter otelgrpc.Filter) Option {
	return func(c *config) {
		if filter != nil {
			c.filters = append(c.filters, filter)
		}
	}
}

// statsHandlerOptions translates the configuration into otelgrpc options.
func statsHandlerOptions(cfg *config) []otelgrpc.Option {
	var opts []otelgrpc.Option
	if cfg.tracerProvider != nil {
		opts = append(opts, otelgrpc.WithTracerProvider(cfg.tracerProvider))
	}
	if cfg.propagatorsSet && cfg.propagators != nil {
		opts = append(opts, otelgrpc.WithPropagators(cfg.propagators))
	}
	for _, filter := range cfg.filters {
		if filter != nil {
			opts = append(opts, otelgrpc.WithFilter(filter))
		}
	}
	return opts
}
