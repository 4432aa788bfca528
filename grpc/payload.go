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
	"unicode/utf8"

	"github.com/ohler55/ojg/oj"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"github.com/spyglass-obs/spyglass"
)

// marshalOpts renders proto messages in a stable, compact form. Proto
// field names keep captured payloads aligned with the .proto definitions;
// AllowPartial captures messages even when required fields are unset.
var marshalOpts = protojson.MarshalOptions{
	AllowPartial:  true,
	UseProtoNames: true,
}

// messagePayload returns an out-of-band payload source decoding m through
// protojson. The source reports false for non-proto messages, marshal
// failures, and payloads whose character count exceeds limitKB, in which
// case extraction purges the payload.
func messagePayload(m any, limitKB int) spyglass.OutOfBandFunc {
	return func() (spyglass.Payload, bool) {
		p, ok := m.(proto.Message)
		if !ok || p == nil {
			return nil, false
		}
		jsonBytes, err := marshalOpts.Marshal(p)
		if err != nil {
			return nil, false
		}
		if utf8.RuneCount(jsonBytes)/1000 > limitKB {
			return nil, false
		}
		value, err := oj.Parse(jsonBytes)
		if err != nil {
			return nil, false
		}
		return value, true
	}
}
