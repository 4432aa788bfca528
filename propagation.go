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
	"os"
	"strings"
	"sync"

	gcppropagator "github.com/GoogleCloudPlatform/opentelemetry-operations-go/propagator"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

var installPropagatorOnce sync.Once

// init triggers default propagator installation when the package is imported.
func init() {
	EnsurePropagation()
}

// EnsurePropagation installs the process-wide OpenTelemetry propagator that
// the batch-id trace fallback depends on. The composite handles W3C
// traceparent/tracestate and baggage, and additionally reads Google Cloud's
// legacy X-Cloud-Trace-Context header on ingress without writing it back
// out on egress.
//
// Installation runs at most once per process and happens automatically on
// package import. Setting SPYGLASS_DISABLE_PROPAGATOR_AUTOSET to a truthy
// token ("1", "t", "true", "yes", "on") leaves the global propagator alone;
// an application calling otel.SetTextMapPropagator afterwards always wins.
func EnsurePropagation() {
	installPropagatorOnce.Do(func() {
		if propagatorAutoSetDisabled() {
			return
		}

		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			gcppropagator.CloudTraceOneWayPropagator{},
			propagation.TraceContext{},
			propagation.Baggage{},
		))
	})
}

// propagatorAutoSetDisabled reports whether the
// SPYGLASS_DISABLE_PROPAGATOR_AUTOSET environment variable opts out of
// automatic propagator installation.
func propagatorAutoSetDisabled() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("SPYGLASS_DISABLE_PROPAGATOR_AUTOSET"))) {
	case "1", "t", "true", "yes", "on":
		return true
	}
	return false
}
