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
	"bytes"
	"io"
	stdhttp "net/http"
	"unicode/utf8"
)

// captureLimit converts the configured payload limit in KB into the byte
// capacity of the capture buffers. UTF-8 encodes at most utf8.UTFMax bytes
// per character, so a body within this many bytes is measured exactly by
// the extractor's character count; anything larger is already over the
// limit and gets purged without inspection.
func captureLimit(limitKB int) int {
	return limitKB * 1000 * utf8.UTFMax
}

// captureBuffer stores a bounded prefix of a byte stream while counting the
// total written through it. Write never fails; bytes beyond the capacity
// are counted but not kept.
type captureBuffer struct {
	buf   bytes.Buffer
	cap   int
	total int64
}

func newCaptureBuffer(capacity int) *captureBuffer {
	return &captureBuffer{cap: capacity}
}

// Write implements io.Writer.
func (b *captureBuffer) Write(p []byte) (int, error) {
	b.total += int64(len(p))
	if room := b.cap - b.buf.Len(); room > 0 {
		if len(p) > room {
			p = p[:room]
		}
		b.buf.Write(p)
	}
	return len(p), nil
}

// Bytes returns the stored prefix.
func (b *captureBuffer) Bytes() []byte {
	return b.buf.Bytes()
}

// Overflowed reports whether the stream outgrew the buffer capacity.
func (b *captureBuffer) Overflowed() bool {
	return b.total > int64(b.cap)
}

// drainRequestBody reads the request body into a bounded buffer before the
// handler runs and replaces r.Body with a reader serving the buffered
// prefix followed by the untouched remainder. The handler observes the body
// exactly as sent; capture observes a deterministic prefix regardless of
// how much the handler consumes.
func drainRequestBody(r *stdhttp.Request, capacity int) *captureBuffer {
	buf := newCaptureBuffer(capacity)
	if r.Body == nil || r.Body == stdhttp.NoBody {
		return buf
	}

	orig := r.Body
	// Read one byte past capacity so overflow is detectable without
	// consuming the full stream.
	prefix, _ := io.ReadAll(io.LimitReader(orig, int64(capacity)+1))
	_, _ = buf.Write(prefix)

	r.Body = replayBody{
		Reader: io.MultiReader(bytes.NewReader(prefix), orig),
		closer: orig,
	}
	return buf
}

// replayBody re-serves a buffered prefix ahead of the original stream while
// delegating Close to the original body.
type replayBody struct {
	io.Reader
	closer io.Closer
}

// Close closes the original request body.
func (rb replayBody) Close() error {
	return rb.closer.Close()
}
