/*
 *
 * Copyright 2025 Microsoft Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

// Package stats aggregates consumed telemetry for reporting.
package stats

import (
	"sort"
	"sync"

	"github.com/sprasad-microsoft/linux-diagnostics/internal/events"
)

// Key groups latency samples by command and exact latency value.
type Key struct {
	Command   uint16
	LatencyNS uint64
}

// LatencyCounter is a bounded multiset counter over (command, latency)
// pairs. Once Capacity distinct keys exist, observations of new keys are
// not inserted; they increment Dropped instead, so saturation is visible
// rather than silent.
type LatencyCounter struct {
	mu       sync.Mutex
	capacity int
	counts   map[Key]uint64
	dropped  uint64
}

// DefaultCapacity bounds the counter when the caller does not.
const DefaultCapacity = 1024

// NewLatencyCounter builds a counter holding at most capacity distinct
// keys; capacity <= 0 selects DefaultCapacity.
func NewLatencyCounter(capacity int) *LatencyCounter {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &LatencyCounter{
		capacity: capacity,
		counts:   make(map[Key]uint64),
	}
}

// Observe counts one event's latency sample. Events from other tools are
// ignored: their metric slot does not hold a latency, and reading it as
// one would alias a return code into a bogus latency row.
func (c *LatencyCounter) Observe(ev *events.Event) {
	if ev.Tool != events.ToolLatency {
		return
	}
	c.observe(Key{Command: ev.Command, LatencyNS: ev.Metric.LatencyNS()})
}

// ObserveBatch counts every latency event in a batch.
func (c *LatencyCounter) ObserveBatch(batch []events.Event) {
	for i := range batch {
		c.Observe(&batch[i])
	}
}

func (c *LatencyCounter) observe(k Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.counts[k]; !ok && len(c.counts) >= c.capacity {
		c.dropped++
		return
	}
	c.counts[k]++
}

// Count returns the observations recorded for one (command, latency) pair.
func (c *LatencyCounter) Count(command uint16, latencyNS uint64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[Key{Command: command, LatencyNS: latencyNS}]
}

// Dropped returns how many observations were rejected at capacity.
func (c *LatencyCounter) Dropped() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

// Len returns the number of distinct keys held.
func (c *LatencyCounter) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.counts)
}

// Entry is one row of a counter snapshot.
type Entry struct {
	Key   Key
	Count uint64
}

// Snapshot returns the counter contents ordered by command then latency.
func (c *LatencyCounter) Snapshot() []Entry {
	c.mu.Lock()
	entries := make([]Entry, 0, len(c.counts))
	for k, n := range c.counts {
		entries = append(entries, Entry{Key: k, Count: n})
	}
	c.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Key.Command != entries[j].Key.Command {
			return entries[i].Key.Command < entries[j].Key.Command
		}
		return entries[i].Key.LatencyNS < entries[j].Key.LatencyNS
	})
	return entries
}
