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
	"sync"

	"github.com/spyglass-obs/spyglass"
)

// Channel names the capture channel an entry arrived on.
type Channel string

const (
	// ChannelRequest marks entries recorded via RecordRequest.
	ChannelRequest Channel = "request"

	// ChannelService marks entries recorded via RecordService.
	ChannelService Channel = "service"
)

// Stored pairs a capture entry with the channel it arrived on.
type Stored struct {
	Channel Channel
	Entry   spyglass.Entry
}

// Memory is a thread-safe, bounded in-memory recorder. It keeps the newest
// entries up to its capacity, evicting the oldest first. Useful as the
// default sink for tests and local inspection.
type Memory struct {
	mu       sync.RWMutex
	capacity int
	entries  []Stored
	subs     map[chan Stored]struct{}
}

// NewMemory creates a memory recorder holding at most capacity entries.
// A capacity <= 0 defaults to 1000.
func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Memory{
		capacity: capacity,
		subs:     make(map[chan Stored]struct{}),
	}
}

// RecordRequest stores an entry from the synchronous HTTP channel.
func (m *Memory) RecordRequest(entry spyglass.Entry) {
	m.record(ChannelRequest, entry)
}

// RecordService stores an entry from the RPC/service channel.
func (m *Memory) RecordService(entry spyglass.Entry) {
	m.record(ChannelService, entry)
}

// record appends under the write lock and notifies subscribers without
// blocking on any of them.
func (m *Memory) record(channel Channel, entry spyglass.Entry) {
	stored := Stored{Channel: channel, Entry: entry}

	m.mu.Lock()
	m.entries = append(m.entries, stored)
	if len(m.entries) > m.capacity {
		m.entries = m.entries[len(m.entries)-m.capacity:]
	}
	for sub := range m.subs {
		select {
		case sub <- stored:
		default:
		}
	}
	m.mu.Unlock()
}

// List returns a snapshot of the stored entries, oldest first.
func (m *Memory) List() []Stored {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Stored, len(m.entries))
	copy(out, m.entries)
	return out
}

// Find returns the newest entry with the given batch id.
func (m *Memory) Find(batchID string) (Stored, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].Entry.BatchID == batchID {
			return m.entries[i], true
		}
	}
	return Stored{}, false
}

// Len returns the number of stored entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Clear removes all stored entries.
func (m *Memory) Clear() {
	m.mu.Lock()
	m.entries = nil
	m.mu.Unlock()
}

// Subscribe registers a channel receiving every new entry. Slow subscribers
// miss entries rather than blocking the recorder. The returned function
// unsubscribes.
func (m *Memory) Subscribe() (<-chan Stored, func()) {
	sub := make(chan Stored, 32)

	m.mu.Lock()
	m.subs[sub] = struct{}{}
	m.mu.Unlock()

	return sub, func() {
		m.mu.Lock()
		if _, ok := m.subs[sub]; ok {
			delete(m.subs, sub)
			close(sub)
		}
		m.mu.Unlock()
	}
}

var _ spyglass.Recorder = (*Memory)(nil)
