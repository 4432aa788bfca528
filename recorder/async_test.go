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

package recorder

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spyglass-obs/spyglass"
)

// gatedRecorder blocks deliveries until released.
type gatedRecorder struct {
	gate    chan struct{}
	mu      sync.Mutex
	entries []Stored
}

func newGatedRecorder() *gatedRecorder {
	return &gatedRecorder{gate: make(chan struct{})}
}

func (g *gatedRecorder) RecordRequest(entry spyglass.Entry) { g.record(ChannelRequest, entry) }
func (g *gatedRecorder) RecordService(entry spyglass.Entry) { g.record(ChannelService, entry) }

func (g *gatedRecorder) record(channel Channel, entry spyglass.Entry) {
	<-g.gate
	g.mu.Lock()
	g.entries = append(g.entries, Stored{Channel: channel, Entry: entry})
	g.mu.Unlock()
}

func (g *gatedRecorder) release() { close(g.gate) }

func (g *gatedRecorder) len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.entries)
}

func TestAsyncDeliversBothChannels(t *testing.T) {
	inner := NewMemory(10)
	a := NewAsync(inner)

	a.RecordRequest(spyglass.Entry{BatchID: "r1"})
	a.RecordService(spyglass.Entry{BatchID: "s1"})

	if err := a.Close(); err != nil {
		t.Fatalf("Close() = %v, want nil", err)
	}

	entries := inner.List()
	if len(entries) != 2 {
		t.Fatalf("delivered %d entries, want 2", len(entries))
	}
	channels := map[string]Channel{}
	for _, stored := range entries {
		channels[stored.Entry.BatchID] = stored.Channel
	}
	if channels["r1"] != ChannelRequest || channels["s1"] != ChannelService {
		t.Errorf("channel mapping = %v, want r1->request, s1->service", channels)
	}
}

// TestAsyncDropNewest verifies overflow drops incoming entries and invokes
// the drop hook, then accounts for every entry after close.
func TestAsyncDropNewest(t *testing.T) {
	inner := newGatedRecorder()

	var dropMu sync.Mutex
	var dropped []Stored
	a := NewAsync(inner,
		WithQueueSize(1),
		WithWorkerCount(1),
		WithDropMode(DropModeDropNewest),
		WithOnDrop(func(stored Stored) {
			dropMu.Lock()
			dropped = append(dropped, stored)
			dropMu.Unlock()
		}),
	)

	const total = 10
	for i := range total {
		a.RecordRequest(spyglass.Entry{BatchID: fmt.Sprintf("b%d", i)})
	}

	dropMu.Lock()
	droppedSoFar := len(dropped)
	dropMu.Unlock()
	if droppedSoFar == 0 {
		t.Error("no entries dropped with a blocked worker and queue size 1")
	}

	inner.release()
	if err := a.Close(); err != nil {
		t.Fatalf("Close() = %v, want nil", err)
	}

	dropMu.Lock()
	defer dropMu.Unlock()
	if got := inner.len() + len(dropped); got != total {
		t.Errorf("delivered %d + dropped %d = %d, want %d",
			inner.len(), len(dropped), got, total)
	}
}

// TestAsyncDropOldest verifies overflow evicts queued entries in favor of
// newer ones.
func TestAsyncDropOldest(t *testing.T) {
	inner := newGatedRecorder()

	var dropMu sync.Mutex
	var dropped []Stored
	a := NewAsync(inner,
		WithQueueSize(1),
		WithWorkerCount(1),
		WithDropMode(DropModeDropOldest),
		WithOnDrop(func(stored Stored) {
			dropMu.Lock()
			dropped = append(dropped, stored)
			dropMu.Unlock()
		}),
	)

	const total = 10
	for i := range total {
		a.RecordRequest(spyglass.Entry{BatchID: fmt.Sprintf("b%d", i)})
	}

	inner.release()
	if err := a.Close(); err != nil {
		t.Fatalf("Close() = %v, want nil", err)
	}

	dropMu.Lock()
	defer dropMu.Unlock()
	if got := inner.len() + len(dropped); got != total {
		t.Errorf("delivered %d + dropped %d = %d, want %d",
			inner.len(), len(dropped), got, total)
	}
	if len(dropped) == 0 {
		t.Error("no entries dropped with a blocked worker and queue size 1")
	}
}

// TestAsyncBlockMode verifies blocking mode delivers everything.
func TestAsyncBlockMode(t *testing.T) {
	inner := NewMemory(100)
	a := NewAsync(inner, WithQueueSize(1), WithDropMode(DropModeBlock))

	const total = 50
	for i := range total {
		a.RecordRequest(spyglass.Entry{BatchID: fmt.Sprintf("b%d", i)})
	}

	if err := a.Close(); err != nil {
		t.Fatalf("Close() = %v, want nil", err)
	}
	if inner.Len() != total {
		t.Errorf("delivered %d entries, want %d", inner.Len(), total)
	}
}

// TestAsyncFlushTimeout verifies Close gives up on a stuck sink.
func TestAsyncFlushTimeout(t *testing.T) {
	inner := newGatedRecorder()
	a := NewAsync(inner, WithFlushTimeout(20*time.Millisecond))

	a.RecordRequest(spyglass.Entry{BatchID: "b1"})

	if err := a.Close(); !errors.Is(err, ErrFlushTimeout) {
		t.Errorf("Close() = %v, want ErrFlushTimeout", err)
	}
	inner.release()
}

// TestAsyncRecordAfterClose verifies post-close entries are dropped through
// the hook instead of panicking.
func TestAsyncRecordAfterClose(t *testing.T) {
	var dropMu sync.Mutex
	var dropped []Stored
	a := NewAsync(NewMemory(10), WithOnDrop(func(stored Stored) {
		dropMu.Lock()
		dropped = append(dropped, stored)
		dropMu.Unlock()
	}))

	if err := a.Close(); err != nil {
		t.Fatalf("Close() = %v, want nil", err)
	}

	a.RecordRequest(spyglass.Entry{BatchID: "late"})

	dropMu.Lock()
	defer dropMu.Unlock()
	if len(dropped) != 1 || dropped[0].Entry.BatchID != "late" {
		t.Errorf("dropped = %+v, want the late entry", dropped)
	}
}

// TestAsyncSinkPanicContained verifies a panicking sink is reported, not
// propagated.
func TestAsyncSinkPanicContained(t *testing.T) {
	var buf strings.Builder
	var mu sync.Mutex
	writer := lockedWriter{mu: &mu, w: &buf}

	a := NewAsync(panickingRecorder{}, WithErrorWriter(writer))
	a.RecordRequest(spyglass.Entry{BatchID: "b1"})

	if err := a.Close(); err != nil {
		t.Fatalf("Close() = %v, want nil", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if !strings.Contains(buf.String(), "recovered panic") {
		t.Errorf("error writer output = %q, want a recovered panic report", buf.String())
	}
}

func TestAsyncCloseIsIdempotent(t *testing.T) {
	a := NewAsync(NewMemory(10))
	if err := a.Close(); err != nil {
		t.Fatalf("first Close() = %v, want nil", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("second Close() = %v, want nil", err)
	}
}

// TestAsyncEnvOverrides verifies SPYGLASS_ASYNC_* variables shape the
// configuration.
func TestAsyncEnvOverrides(t *testing.T) {
	t.Setenv("SPYGLASS_ASYNC_QUEUE_SIZE", "7")
	t.Setenv("SPYGLASS_ASYNC_WORKERS", "3")
	t.Setenv("SPYGLASS_ASYNC_DROP_MODE", "block")
	t.Setenv("SPYGLASS_ASYNC_FLUSH_TIMEOUT", "250ms")

	cfg := buildAsyncConfig([]AsyncOption{WithEnv()})

	if cfg.QueueSize != 7 {
		t.Errorf("QueueSize = %d, want 7", cfg.QueueSize)
	}
	if cfg.WorkerCount != 3 {
		t.Errorf("WorkerCount = %d, want 3", cfg.WorkerCount)
	}
	if cfg.DropMode != DropModeBlock {
		t.Errorf("DropMode = %v, want DropModeBlock", cfg.DropMode)
	}
	if cfg.FlushTimeout != 250*time.Millisecond {
		t.Errorf("FlushTimeout = %v, want 250ms", cfg.FlushTimeout)
	}
}

// panickingRecorder panics on every delivery.
type panickingRecorder struct{}

func (panickingRecorder) RecordRequest(spyglass.Entry) { panic("boom") }
func (panickingRecorder) RecordService(spyglass.Entry) { panic("boom") }

// lockedWriter serializes writes from worker goroutines.
type lockedWriter struct {
	mu *sync.Mutex
	w  *strings.Builder
}

func (lw lockedWriter) Write(p []byte) (int, error) {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	return lw.w.Write(p)
}
