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
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spyglass-obs/spyglass"
)

const (
	defaultQueueSize = 1024

	envAsyncQueueSize    = "SPYGLASS_ASYNC_QUEUE_SIZE"
	envAsyncDropMode     = "SPYGLASS_ASYNC_DROP_MODE"
	envAsyncWorkers      = "SPYGLASS_ASYNC_WORKERS"
	envAsyncFlushTimeout = "SPYGLASS_ASYNC_FLUSH_TIMEOUT"
)

// DropMode controls how the async recorder behaves when the queue is full.
type DropMode int

const (
	// DropModeDropNewest drops the incoming entry when the queue is full.
	// This is the default: capture is best-effort and must never block
	// the pipeline.
	DropModeDropNewest DropMode = iota
	// DropModeDropOldest drops the oldest queued entry when the queue is
	// full.
	DropModeDropOldest
	// DropModeBlock blocks the caller when the queue is full.
	DropModeBlock
)

// ErrFlushTimeout indicates Close returned before the queue was fully
// drained.
var ErrFlushTimeout = errors.New("recorder: flush timeout")

// DropHandler observes dropped entries.
type DropHandler func(stored Stored)

// AsyncConfig controls async recorder behaviour.
type AsyncConfig struct {
	QueueSize    int
	WorkerCount  int
	DropMode     DropMode
	OnDrop       DropHandler
	ErrorWriter  io.Writer
	FlushTimeout time.Duration

	workerStarter func(func())
}

// AsyncOption customizes async recorder configuration.
type AsyncOption func(*AsyncConfig)

// WithQueueSize adjusts the queue capacity. Zero yields an unbuffered
// queue.
func WithQueueSize(size int) AsyncOption {
	return func(cfg *AsyncConfig) {
		cfg.QueueSize = size
	}
}

// WithWorkerCount configures the number of worker goroutines.
func WithWorkerCount(count int) AsyncOption {
	return func(cfg *AsyncConfig) {
		cfg.WorkerCount = count
	}
}

// WithDropMode sets the queue overflow strategy.
func WithDropMode(mode DropMode) AsyncOption {
	return func(cfg *AsyncConfig) {
		cfg.DropMode = mode
	}
}

// WithOnDrop registers a callback invoked when an entry is dropped.
func WithOnDrop(fn DropHandler) AsyncOption {
	return func(cfg *AsyncConfig) {
		cfg.OnDrop = fn
	}
}

// WithErrorWriter directs worker panic reports to w. Use nil to silence
// error reporting.
func WithErrorWriter(w io.Writer) AsyncOption {
	return func(cfg *AsyncConfig) {
		cfg.ErrorWriter = w
	}
}

// WithFlushTimeout limits how long Close waits for workers to finish.
func WithFlushTimeout(timeout time.Duration) AsyncOption {
	return func(cfg *AsyncConfig) {
		cfg.FlushTimeout = timeout
	}
}

// WithEnv overlays configuration from SPYGLASS_ASYNC_* environment
// variables.
func WithEnv() AsyncOption {
	return func(cfg *AsyncConfig) {
		applyAsyncEnv(cfg)
	}
}

// Async decouples a wrapped recorder from the capture pipeline with a queue
// and worker pool. Entries are recorded in the background; when the queue
// overflows, the configured drop mode applies. After Close, further entries
// are routed to the drop hook; shutdown loses pending captures.
type Async struct {
	inner    spyglass.Recorder
	dropMode DropMode
	onDrop   DropHandler
	state    *asyncState
}

type asyncState struct {
	queue        chan Stored
	wg           sync.WaitGroup
	closed       atomic.Bool
	flushTimeout time.Duration
	closeOnce    sync.Once
	closeErr     error
	errWriter    io.Writer
}

// NewAsync wraps inner with an async queue.
func NewAsync(inner spyglass.Recorder, opts ...AsyncOption) *Async {
	cfg := buildAsyncConfig(opts)

	state := &asyncState{
		queue:        make(chan Stored, cfg.QueueSize),
		flushTimeout: cfg.FlushTimeout,
		errWriter:    cfg.ErrorWriter,
	}

	a := &Async{
		inner:    inner,
		dropMode: cfg.DropMode,
		onDrop:   cfg.OnDrop,
		state:    state,
	}

	start := func() {
		state.wg.Add(cfg.WorkerCount)
		for range cfg.WorkerCount {
			go func() {
				defer state.wg.Done()
				for item := range state.queue {
					a.deliver(item)
				}
			}()
		}
	}

	if cfg.workerStarter != nil {
		cfg.workerStarter(start)
	} else {
		start()
	}

	return a
}

// RecordRequest enqueues an entry for the request channel.
func (a *Async) RecordRequest(entry spyglass.Entry) {
	a.enqueue(Stored{Channel: ChannelRequest, Entry: entry})
}

// RecordService enqueues an entry for the service channel.
func (a *Async) RecordService(entry spyglass.Entry) {
	a.enqueue(Stored{Channel: ChannelService, Entry: entry})
}

// deliver forwards one entry to the wrapped recorder, containing panics so a
// misbehaving sink cannot kill the worker.
func (a *Async) deliver(item Stored) {
	defer func() {
		if r := recover(); r != nil && a.state.errWriter != nil {
			_, _ = fmt.Fprintf(a.state.errWriter, "recorder: recovered panic from sink: %v\n", r)
		}
	}()

	switch item.Channel {
	case ChannelService:
		a.inner.RecordService(item.Entry)
	default:
		a.inner.RecordRequest(item.Entry)
	}
}

// enqueue routes an entry into the queue respecting the drop policy. A
// closed queue drops the entry via the drop hook.
func (a *Async) enqueue(item Stored) {
	if a.state.closed.Load() {
		a.drop(item)
		return
	}

	defer func() {
		if recover() != nil {
			// Queue closed between the check above and the send.
			a.drop(item)
		}
	}()

	switch a.dropMode {
	case DropModeBlock:
		a.state.queue <- item
	case DropModeDropOldest:
		select {
		case a.state.queue <- item:
		default:
			select {
			case dropped := <-a.state.queue:
				a.drop(dropped)
			default:
			}
			select {
			case a.state.queue <- item:
			default:
				a.drop(item)
			}
		}
	default:
		select {
		case a.state.queue <- item:
		default:
			a.drop(item)
		}
	}
}

// drop invokes the drop hook when configured.
func (a *Async) drop(item Stored) {
	if a.onDrop != nil {
		a.onDrop(item)
	}
}

// Close stops accepting entries and drains the queue, waiting up to the
// flush timeout. It returns [ErrFlushTimeout] when pending entries were
// abandoned.
func (a *Async) Close() error {
	a.state.closeOnce.Do(func() {
		if a.state.closed.CompareAndSwap(false, true) {
			close(a.state.queue)
		}

		done := make(chan struct{})
		go func() {
			a.state.wg.Wait()
			close(done)
		}()

		if a.state.flushTimeout > 0 {
			select {
			case <-done:
			case <-time.After(a.state.flushTimeout):
				a.state.closeErr = ErrFlushTimeout
			}
		} else {
			<-done
		}
	})

	return a.state.closeErr
}

var _ spyglass.Recorder = (*Async)(nil)

// buildAsyncConfig applies options with defaults and clamps invalid values.
func buildAsyncConfig(opts []AsyncOption) AsyncConfig {
	cfg := AsyncConfig{
		QueueSize:   defaultQueueSize,
		WorkerCount: 1,
		DropMode:    DropModeDropNewest,
		ErrorWriter: os.Stderr,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	if cfg.QueueSize < 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.WorkerCount < 1 {
		cfg.WorkerCount = 1
	}

	return cfg
}

// applyAsyncEnv overlays configuration from environment variables. Invalid
// values are ignored.
func applyAsyncEnv(cfg *AsyncConfig) {
	if raw := strings.TrimSpace(os.Getenv(envAsyncQueueSize)); raw != "" {
		if size, err := strconv.Atoi(raw); err == nil {
			cfg.QueueSize = size
		}
	}
	if raw := strings.TrimSpace(os.Getenv(envAsyncWorkers)); raw != "" {
		if workers, err := strconv.Atoi(raw); err == nil {
			cfg.WorkerCount = workers
		}
	}
	if raw := strings.TrimSpace(os.Getenv(envAsyncDropMode)); raw != "" {
		switch strings.ToLower(raw) {
		case "block":
			cfg.DropMode = DropModeBlock
		case "drop_newest", "drop-newest":
			cfg.DropMode = DropModeDropNewest
		case "drop_oldest", "drop-oldest":
			cfg.DropMode = DropModeDropOldest
		}
	}
	if raw := strings.TrimSpace(os.Getenv(envAsyncFlushTimeout)); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			cfg.FlushTimeout = d
		}
	}
}
