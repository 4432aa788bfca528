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
	stdhttp "net/http"
	"testing"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"

	"github.com/spyglass-obs/spyglass"
)

func TestSplitMethodName(t *testing.T) {
	testCases := []struct {
		fullMethod string
		wantSvc    string
		wantMethod string
	}{
		{"/users.UserService/GetUser", "users.UserService", "GetUser"},
		{"users.UserService/GetUser", "users.UserService", "GetUser"},
		{"/GetUser", "unknown", "GetUser"},
		{"", "unknown", "."},
	}

	for _, tc := range testCases {
		t.Run(tc.fullMethod, func(t *testing.T) {
			gotSvc, gotMethod := splitMethodName(tc.fullMethod)
			if gotSvc != tc.wantSvc || gotMethod != tc.wantMethod {
				t.Errorf("splitMethodName(%q) = (%q, %q), want (%q, %q)",
					tc.fullMethod, gotSvc, gotMethod, tc.wantSvc, tc.wantMethod)
			}
		})
	}
}

func TestFilterMetadata(t *testing.T) {
	md := metadata.MD{
		"authorization": {"Bearer secret"},
		"content-type":  {"application/grpc"},
		"x-request-id":  {"r1", "r2"},
		"cookie":        {"session=abc"},
	}

	got := filterMetadata(md, defaultMetadataFilter)
	want := map[string][]string{
		"content-type": {"application/grpc"},
		"x-request-id": {"r1", "r2"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("filterMetadata() mismatch (-want +got):\n%s", diff)
	}

	if got := filterMetadata(nil, defaultMetadataFilter); got != nil {
		t.Errorf("filterMetadata(nil) = %v, want nil", got)
	}

	rejectAll := func(string) bool { return false }
	if got := filterMetadata(md, rejectAll); got != nil {
		t.Errorf("filterMetadata with reject-all filter = %v, want nil", got)
	}
}

func TestMetadataSideChannel(t *testing.T) {
	md := metadata.Pairs(spyglass.BatchMetadataKey, "batch-7")
	side := metadataSideChannel{md: md}

	if v, ok := side.Get(spyglass.BatchMetadataKey); !ok || v != "batch-7" {
		t.Errorf("Get() = (%q, %v), want (batch-7, true)", v, ok)
	}
	if _, ok := side.Get("absent-key"); ok {
		t.Error("Get(absent-key) reported ok")
	}
}

func TestHTTPStatusFromCode(t *testing.T) {
	testCases := []struct {
		code codes.Code
		want int
	}{
		{codes.OK, stdhttp.StatusOK},
		{codes.NotFound, stdhttp.StatusNotFound},
		{codes.InvalidArgument, stdhttp.StatusBadRequest},
		{codes.PermissionDenied, stdhttp.StatusForbidden},
		{codes.Unauthenticated, stdhttp.StatusUnauthorized},
		{codes.ResourceExhausted, stdhttp.StatusTooManyRequests},
		{codes.Unavailable, stdhttp.StatusServiceUnavailable},
		{codes.Unimplemented, stdhttp.StatusNotImplemented},
		{codes.DeadlineExceeded, stdhttp.StatusGatewayTimeout},
		{codes.Internal, stdhttp.StatusInternalServerError},
		{codes.Unknown, stdhttp.StatusInternalServerError},
	}

	for _, tc := range testCases {
		t.Run(tc.code.String(), func(t *testing.T) {
			if got := httpStatusFromCode(tc.code); got != tc.want {
				t.Errorf("httpStatusFromCode(%v) = %d, want %d", tc.code, got, tc.want)
			}
		})
	}
}

func TestTypeMarker(t *testing.T) {
	if got := typeMarker(nil); got != nil {
		t.Errorf("typeMarker(nil) = %q, want nil", got)
	}
	type request struct{}
	if got := string(typeMarker(&request{})); got != "*grpc.request" {
		t.Errorf("typeMarker() = %q, want %q", got, "*grpc.request")
	}
}
