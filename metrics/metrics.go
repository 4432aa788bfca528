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

// Package metrics provides Prometheus instrumentation for the capture
// pipeline. Register a [Pipeline] collector set with the pipeline via
// spyglass.WithObserver and wire drops from an async recorder through
// [Pipeline.DropHandler].
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/spyglass-obs/spyglass"
	"github.com/spyglass-obs/spyglass/recorder"
)

// Pipeline tracks capture pipeline activity.
//
// Metrics:
//   - spyglass_entries_captured_total: entries recorded, by capture kind
//   - spyglass_entries_ignored_total: requests suppressed by the capture decision
//   - spyglass_entries_dropped_total: finished entries discarded before the sink
//   - spyglass_capture_duration_seconds: time spent in extraction/redaction/build
type Pipeline struct {
	capturedTotal   *prometheus.CounterVec
	ignoredTotal    *prometheus.CounterVec
	droppedTotal    *prometheus.CounterVec
	captureDuration prometheus.Histogram
}

// NewPipeline creates and registers pipeline metrics with the provided
// registry. A nil registry uses the default registerer.
func NewPipeline(registry prometheus.Registerer) *Pipeline {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	p := &Pipeline{
		capturedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "spyglass",
				Name:      "entries_captured_total",
				Help:      "Total number of capture entries handed to the recorder",
			},
			[]string{"kind"},
		),
		ignoredTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "spyglass",
				Name:      "entries_ignored_total",
				Help:      "Total number of requests suppressed by the capture decision",
			},
			[]string{"kind"},
		),
		droppedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "spyglass",
				Name:      "entries_dropped_total",
				Help:      "Total number of finished entries discarded before reaching the sink",
			},
			[]string{"kind"},
		),
		captureDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "spyglass",
				Name:      "capture_duration_seconds",
				Help:      "Time spent extracting, redacting, and building one entry",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12), // 100µs to ~400ms
			},
		),
	}

	registry.MustRegister(
		p.capturedTotal,
		p.ignoredTotal,
		p.droppedTotal,
		p.captureDuration,
	)

	return p
}

// EntryCaptured implements spyglass.Observer.
func (p *Pipeline) EntryCaptured(kind spyglass.Kind, d time.Duration) {
	p.capturedTotal.WithLabelValues(string(kind)).Inc()
	p.captureDuration.Observe(d.Seconds())
}

// EntryIgnored implements spyglass.Observer.
func (p *Pipeline) EntryIgnored(kind spyglass.Kind) {
	p.ignoredTotal.WithLabelValues(string(kind)).Inc()
}

// EntryDropped implements spyglass.Observer.
func (p *Pipeline) EntryDropped(kind spyglass.Kind) {
	p.droppedTotal.WithLabelValues(string(kind)).Inc()
}

// DropHandler adapts the observer to a recorder drop hook so async queue
// overflow shows up in the dropped counter.
func (p *Pipeline) DropHandler() recorder.DropHandler {
	return func(item recorder.Stored) {
		p.EntryDropped(spyglass.Kind(item.Channel))
	}
}

var _ spyglass.Observer = (*Pipeline)(nil)
