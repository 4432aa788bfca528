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
	"fmt"
	"testing"

	"github.com/spyglass-obs/spyglass"
)

func TestMemoryRecordsPerChannel(t *testing.T) {
	m := NewMemory(10)

	m.RecordRequest(spyglass.Entry{BatchID: "r1"})
	m.RecordService(spyglass.Entry{BatchID: "s1"})

	entries := m.List()
	if len(entries) != 2 {
		t.Fatalf("Len = %d, want 2", len(entries))
	}
	if entries[0].Channel != ChannelRequest || entries[0].Entry.BatchID != "r1" {
		t.Errorf("first entry = %+v, want request channel r1", entries[0])
	}
	if entries[1].Channel != ChannelService || entries[1].Entry.BatchID != "s1" {
		t.Errorf("second entry = %+v, want service channel s1", entries[1])
	}
}

// TestMemoryEvictsOldest verifies the ring keeps only the newest entries.
func TestMemoryEvictsOldest(t *testing.T) {
	m := NewMemory(3)

	for i := range 5 {
		m.RecordRequest(spyglass.Entry{BatchID: fmt.Sprintf("b%d", i)})
	}

	entries := m.List()
	if len(entries) != 3 {
		t.Fatalf("Len = %d, want 3", len(entries))
	}
	for i, want := range []string{"b2", "b3", "b4"} {
		if entries[i].Entry.BatchID != want {
			t.Errorf("entries[%d].BatchID = %q, want %q", i, entries[i].Entry.BatchID, want)
		}
	}
}

func TestMemoryFind(t *testing.T) {
	m := NewMemory(10)
	m.RecordRequest(spyglass.Entry{BatchID: "b1", URI: "/old"})
	m.RecordService(spyglass.Entry{BatchID: "b1", URI: "/new"})
	m.RecordRequest(spyglass.Entry{BatchID: "b2"})

	stored, ok := m.Find("b1")
	if !ok {
		t.Fatal("Find(b1) reported not found")
	}
	// Newest entry with the batch id wins.
	if stored.Entry.URI != "/new" || stored.Channel != ChannelService {
		t.Errorf("Find(b1) = %+v, want the newest entry", stored)
	}

	if _, ok := m.Find("absent"); ok {
		t.Error("Find(absent) reported found")
	}
}

func TestMemoryClear(t *testing.T) {
	m := NewMemory(10)
	m.RecordRequest(spyglass.Entry{BatchID: "b1"})
	m.Clear()
	if m.Len() != 0 {
		t.Errorf("Len after Clear = %d, want 0", m.Len())
	}
}

func TestMemorySubscribe(t *testing.T) {
	m := NewMemory(10)
	sub, cancel := m.Subscribe()
	defer cancel()

	m.RecordRequest(spyglass.Entry{BatchID: "b1"})

	select {
	case stored := <-sub:
		if stored.Entry.BatchID != "b1" || stored.Channel != ChannelRequest {
			t.Errorf("received %+v, want request b1", stored)
		}
	default:
		t.Fatal("subscriber received nothing")
	}
}

// TestMemorySlowSubscriberDoesNotBlock verifies the recorder drops
// notifications instead of blocking on a full subscriber.
func TestMemorySlowSubscriberDoesNotBlock(t *testing.T) {
	m := NewMemory(100)
	_, cancel := m.Subscribe()
	defer cancel()

	// Overfill the subscriber buffer; record must return regardless.
	for i := range 64 {
		m.RecordRequest(spyglass.Entry{BatchID: fmt.Sprintf("b%d", i)})
	}
	if m.Len() != 64 {
		t.Errorf("Len = %d, want 64", m.Len())
	}
}

func TestMemoryUnsubscribeIsIdempotent(t *testing.T) {
	m := NewMemory(10)
	_, cancel := m.Subscribe()
	cancel()
	cancel()

	m.RecordRequest(spyglass.Entry{BatchID: "b1"})
	if m.Len() != 1 {
		t.Errorf("Len = %d, want 1", m.Len())
	}
}
