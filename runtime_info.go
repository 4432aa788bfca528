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
	"os"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/compute/metadata"
)

// RuntimeInfo captures metadata about the environment the process runs in.
// Its labels can be attached to every entry via [WithDetectedLabels] so
// captures from different services and regions stay distinguishable in a
// shared sink.
type RuntimeInfo struct {
	// Service is the deployed service name, empty when undetected.
	Service string

	// Version is the deployed revision or version, empty when undetected.
	Version string

	// Labels holds platform-specific identification labels.
	Labels map[string]string
}

var (
	runtimeInfo     RuntimeInfo
	runtimeInfoOnce sync.Once
)

// Overridable for tests; the metadata server is unreachable outside GCE.
var (
	onGCE         = metadata.OnGCE
	metadataValue = fetchMetadataValue
)

// DetectRuntimeInfo inspects well-known environment variables and, when
// available, the compute metadata service to infer where the process runs.
// Results are cached for reuse.
func DetectRuntimeInfo() RuntimeInfo {
	runtimeInfoOnce.Do(func() {
		runtimeInfo = detectRuntimeInfo()
	})
	return runtimeInfo
}

// detectRuntimeInfo probes platforms from most to least specific.
func detectRuntimeInfo() RuntimeInfo {
	info := RuntimeInfo{}

	if detectServerlessService(&info) {
		return info
	}
	if detectKubernetes(&info) {
		return info
	}
	detectComputeEngine(&info)
	return info
}

// detectServerlessService populates metadata for Cloud Run style platforms
// where K_SERVICE and K_REVISION identify the deployment.
func detectServerlessService(info *RuntimeInfo) bool {
	service := trimmedEnv("K_SERVICE")
	revision := trimmedEnv("K_REVISION")
	if service == "" || revision == "" {
		return false
	}

	info.Service = service
	info.Version = revision
	info.Labels = map[string]string{
		"service":  service,
		"revision": revision,
	}
	if region := firstNonEmpty(trimmedEnv("CLOUD_RUN_REGION"), trimmedEnv("GOOGLE_CLOUD_REGION")); region != "" {
		info.Labels["region"] = region
	}
	return true
}

// detectKubernetes populates metadata when running inside a Kubernetes pod.
func detectKubernetes(info *RuntimeInfo) bool {
	if trimmedEnv("KUBERNETES_SERVICE_HOST") == "" {
		return false
	}

	labels := map[string]string{}
	if host := trimmedEnv("HOSTNAME"); host != "" {
		labels["pod"] = host
		info.Service = host
	}
	if ns := trimmedEnv("POD_NAMESPACE"); ns != "" {
		labels["namespace"] = ns
	}
	if onGCE() {
		if cluster, ok := metadataValue("instance/attributes/cluster-name"); ok && cluster != "" {
			labels["cluster"] = cluster
		}
	}
	info.Labels = labels
	return true
}

// detectComputeEngine populates metadata from the compute metadata service.
func detectComputeEngine(info *RuntimeInfo) bool {
	if !onGCE() {
		return false
	}

	labels := map[string]string{}
	if name, ok := metadataValue("instance/name"); ok && name != "" {
		labels["instance"] = name
		info.Service = name
	}
	if zone, ok := metadataValue("instance/zone"); ok && zone != "" {
		// The metadata service returns projects/<num>/zones/<zone>.
		if idx := strings.LastIndex(zone, "/"); idx >= 0 {
			zone = zone[idx+1:]
		}
		labels["zone"] = zone
	}
	if len(labels) == 0 {
		return false
	}
	info.Labels = labels
	return true
}

// fetchMetadataValue reads one value from the compute metadata service with
// a short deadline so detection cannot stall startup.
func fetchMetadataValue(suffix string) (string, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	v, err := metadata.GetWithContext(ctx, suffix)
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(v), true
}

// trimmedEnv returns the named environment variable with whitespace removed.
func trimmedEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

// firstNonEmpty returns the first non-empty value.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
