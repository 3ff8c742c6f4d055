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

package shmring

import (
	"testing"

	"github.com/sprasad-microsoft/linux-diagnostics/internal/events"
)

func testEvent(pid int32) *events.Event {
	ev := &events.Event{
		PID:          pid,
		CmdEndTimeNS: 1234567890123456,
		SessionID:    0xDEADBEEFDEADBEEF,
		MID:          uint64(pid) + 1,
		Command:      events.CmdRead,
		Metric:       events.MetricLatency(7_000_000),
		Tool:         events.ToolLatency,
	}
	ev.SetTask("smbdiag")
	return ev
}

func TestWriterReaderInOrder(t *testing.T) {
	name := testSegmentName(t)
	defer Unlink(name)

	seg, _, err := OpenOrCreate(name, SegmentSize)
	if err != nil {
		t.Fatalf("failed to create segment: %v", err)
	}
	defer seg.Close()
	seg.InitHeader()

	w := NewWriter(seg)
	r := NewReader(seg)

	const records = 30
	for i := int32(0); i < records; i++ {
		if err := w.Append(testEvent(i)); err != nil {
			t.Fatalf("append %d failed: %v", i, err)
		}
	}

	wantHead := uint64(records*events.EventSize) % uint64(DataRegionSize)
	if got := w.Head(); got != wantHead {
		t.Fatalf("head after %d appends: %d, want %d", records, got, wantHead)
	}

	for i := int32(0); i < records; i++ {
		ev, ok, err := r.TryPop()
		if err != nil {
			t.Fatalf("pop %d failed: %v", i, err)
		}
		if !ok {
			t.Fatalf("pop %d: ring empty before all records read", i)
		}
		if ev.PID != i {
			t.Fatalf("pop %d: pid %d, out of order", i, ev.PID)
		}
	}

	if _, ok, _ := r.TryPop(); ok {
		t.Fatal("drained ring still reports data")
	}
	if r.Tail() != wantHead {
		t.Fatalf("tail %d after drain, want %d", r.Tail(), wantHead)
	}
}

func TestTryPopEmptyIsNotAnError(t *testing.T) {
	l := testLayout(t, DataRegionSize)
	r := newReaderLayout(l)

	ev, ok, err := r.TryPop()
	if err != nil {
		t.Fatalf("pop on empty ring errored: %v", err)
	}
	if ok {
		t.Fatalf("pop on empty ring returned record %+v", ev)
	}
}

func TestRecordSplitAcrossBoundary(t *testing.T) {
	// Region sizes that are not multiples of the record width force
	// records to straddle the boundary; 8376 mod 72 = 24, so sustained
	// writing exercises the split path.
	if DataRegionSize%events.EventSize == 0 {
		t.Fatalf("region size %d unexpectedly aligned to records", DataRegionSize)
	}

	l := testLayout(t, DataRegionSize)
	w := newWriterLayout(l)
	r := newReaderLayout(l)

	perLap := int32(DataRegionSize / events.EventSize) // 116 whole records per lap
	for i := int32(0); i < perLap; i++ {
		if err := w.Append(testEvent(i)); err != nil {
			t.Fatalf("append %d failed: %v", i, err)
		}
		ev, ok, err := r.TryPop()
		if err != nil || !ok {
			t.Fatalf("pop %d: ok=%v err=%v", i, ok, err)
		}
		if ev.PID != i {
			t.Fatalf("pop %d: pid %d", i, ev.PID)
		}
	}

	// The next record starts 24 bytes before the boundary and wraps.
	if off := l.Head(); DataRegionSize-off >= events.EventSize {
		t.Fatalf("head %d does not set up a boundary crossing", off)
	}
	if err := w.Append(testEvent(999)); err != nil {
		t.Fatalf("wrapping append failed: %v", err)
	}
	ev, ok, err := r.TryPop()
	if err != nil || !ok {
		t.Fatalf("wrapping pop: ok=%v err=%v", ok, err)
	}
	if ev.PID != 999 || ev.TaskString() != "smbdiag" {
		t.Fatalf("wrapped record corrupted: %+v", ev)
	}
}

func TestNoLossWhileReaderKeepsPace(t *testing.T) {
	// As long as head - tail stays under capacity, every record is read
	// exactly once and in write order, across many laps of the region.
	l := testLayout(t, DataRegionSize)
	w := newWriterLayout(l)
	r := newReaderLayout(l)

	const total = 1000 // several laps of the 116-record region
	next := int32(0)
	for i := int32(0); i < total; i++ {
		if err := w.Append(testEvent(i)); err != nil {
			t.Fatalf("append %d failed: %v", i, err)
		}
		// Drain every few writes so the reader never falls a full
		// region behind.
		if i%50 == 49 {
			for {
				ev, ok, err := r.TryPop()
				if err != nil {
					t.Fatalf("pop failed: %v", err)
				}
				if !ok {
					break
				}
				if ev.PID != next {
					t.Fatalf("expected pid %d, got %d", next, ev.PID)
				}
				next++
			}
		}
	}
	for {
		ev, ok, err := r.TryPop()
		if err != nil {
			t.Fatalf("final drain failed: %v", err)
		}
		if !ok {
			break
		}
		if ev.PID != next {
			t.Fatalf("expected pid %d, got %d", next, ev.PID)
		}
		next++
	}
	if next != total {
		t.Fatalf("read %d records, want %d", next, total)
	}
}

func TestOverrunLosesOldestSilently(t *testing.T) {
	// Writing more than a full region with no reads overwrites unread
	// records. The next pop succeeds but does not return the oldest
	// unread record; no error surfaces. This data-loss trade-off is part
	// of the contract.
	l := testLayout(t, DataRegionSize)
	w := newWriterLayout(l)
	r := newReaderLayout(l)

	perLap := int32(DataRegionSize / events.EventSize)
	total := perLap + 10
	for i := int32(0); i < total; i++ {
		if err := w.Append(testEvent(i)); err != nil {
			t.Fatalf("append %d failed: %v", i, err)
		}
	}

	ev, ok, err := r.TryPop()
	if err != nil {
		t.Fatalf("pop after overrun errored: %v", err)
	}
	if !ok {
		t.Fatal("pop after overrun returned no data")
	}
	if ev.PID == 0 {
		t.Fatal("oldest record survived a full-region overrun")
	}
}

func TestDrainAvailable(t *testing.T) {
	l := testLayout(t, DataRegionSize)
	w := newWriterLayout(l)
	r := newReaderLayout(l)

	if batch, err := r.DrainAvailable(); err != nil || batch != nil {
		t.Fatalf("empty drain: batch=%v err=%v", batch, err)
	}

	const records = 25
	for i := int32(0); i < records; i++ {
		if err := w.Append(testEvent(i)); err != nil {
			t.Fatalf("append %d failed: %v", i, err)
		}
	}

	batch, err := r.DrainAvailable()
	if err != nil {
		t.Fatalf("drain failed: %v", err)
	}
	if len(batch) != records {
		t.Fatalf("drained %d records, want %d", len(batch), records)
	}
	for i, ev := range batch {
		if ev.PID != int32(i) {
			t.Fatalf("batch[%d]: pid %d", i, ev.PID)
		}
	}
	if r.Tail() != l.Head() {
		t.Fatalf("tail %d after drain, head %d", r.Tail(), l.Head())
	}
}
