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
	"bytes"
	"encoding/binary"
	"testing"
)

// testLayout builds a layout over plain memory with the given data-region
// size, so wrap arithmetic can be exercised without a real segment.
func testLayout(t *testing.T, regionSize uint64) *Layout {
	t.Helper()
	l := newLayout(make([]byte, HeaderSize+regionSize), regionSize)
	l.Reset()
	return l
}

func TestWriteReadWrappingNoWrap(t *testing.T) {
	l := testLayout(t, 1000)

	data := []byte("hello ring")
	newOff, err := l.WriteWrapping(100, data)
	if err != nil {
		t.Fatalf("WriteWrapping failed: %v", err)
	}
	if want := uint64(100 + len(data)); newOff != want {
		t.Fatalf("new offset %d, want %d", newOff, want)
	}

	buf := make([]byte, len(data))
	readOff, err := l.ReadWrapping(100, buf)
	if err != nil {
		t.Fatalf("ReadWrapping failed: %v", err)
	}
	if readOff != newOff {
		t.Fatalf("read offset %d, want %d", readOff, newOff)
	}
	if !bytes.Equal(buf, data) {
		t.Fatalf("data mismatch: got %q, want %q", buf, data)
	}
}

func TestWriteReadWrappingSplit(t *testing.T) {
	const region = 1000
	l := testLayout(t, region)

	// 40 bytes starting at 980 cross the boundary: 20 at the end of the
	// region, 20 at its start.
	data := make([]byte, 40)
	for i := range data {
		data[i] = byte(i + 1)
	}
	newOff, err := l.WriteWrapping(980, data)
	if err != nil {
		t.Fatalf("WriteWrapping failed: %v", err)
	}
	if newOff != 20 {
		t.Fatalf("new offset %d, want 20", newOff)
	}

	// The physical halves land where the split says they must.
	phys := l.data()
	if !bytes.Equal(phys[980:1000], data[:20]) {
		t.Fatal("first chunk not at region tail")
	}
	if !bytes.Equal(phys[0:20], data[20:]) {
		t.Fatal("second chunk not at region start")
	}

	buf := make([]byte, len(data))
	if _, err := l.ReadWrapping(980, buf); err != nil {
		t.Fatalf("ReadWrapping failed: %v", err)
	}
	if !bytes.Equal(buf, data) {
		t.Fatalf("split round trip mismatch: got %v, want %v", buf, data)
	}
}

func TestWrapCorrectnessAllOffsets(t *testing.T) {
	// Wrap property from the consumer contract: for any starting offset,
	// writing then reading n bytes yields the original bytes, including
	// when the span crosses the boundary.
	const region = 1000
	const n = 40
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i * 7)
	}
	buf := make([]byte, n)

	for off := uint64(0); off < region; off += 13 {
		l := testLayout(t, region)
		newOff, err := l.WriteWrapping(off, data)
		if err != nil {
			t.Fatalf("offset %d: write failed: %v", off, err)
		}
		if want := (off + n) % region; newOff != want {
			t.Fatalf("offset %d: new offset %d, want %d", off, newOff, want)
		}
		if _, err := l.ReadWrapping(off, buf); err != nil {
			t.Fatalf("offset %d: read failed: %v", off, err)
		}
		if !bytes.Equal(buf, data) {
			t.Fatalf("offset %d: round trip mismatch", off)
		}
	}
}

func TestOffsetMonotonicityModRegion(t *testing.T) {
	// 30 records of 40 bytes in a 1000-byte region: head ends at
	// (30*40) mod 1000 = 200 and every record reads back in order.
	const region = 1000
	const recSize = 40
	const records = 30

	l := testLayout(t, region)

	rec := make([]byte, recSize)
	for i := 0; i < records; i++ {
		binary.LittleEndian.PutUint32(rec, uint32(i))
		head := l.Head()
		newHead, err := l.WriteWrapping(head, rec)
		if err != nil {
			t.Fatalf("record %d: write failed: %v", i, err)
		}
		l.SetHead(newHead)
	}

	if head := l.Head(); head != 200 {
		t.Fatalf("head after %d records: %d, want 200", records, head)
	}

	buf := make([]byte, recSize)
	tail := l.Tail()
	for i := 0; i < records; i++ {
		newTail, err := l.ReadWrapping(tail, buf)
		if err != nil {
			t.Fatalf("record %d: read failed: %v", i, err)
		}
		if got := binary.LittleEndian.Uint32(buf); got != uint32(i) {
			t.Fatalf("record %d: read id %d", i, got)
		}
		tail = newTail
	}
	if tail != 200 {
		t.Fatalf("tail after draining: %d, want 200", tail)
	}
}

func TestSpanLargerThanRegion(t *testing.T) {
	l := testLayout(t, 100)

	if _, err := l.WriteWrapping(0, make([]byte, 101)); err != ErrSpanTooLarge {
		t.Fatalf("write: expected ErrSpanTooLarge, got %v", err)
	}
	if _, err := l.ReadWrapping(0, make([]byte, 101)); err != ErrSpanTooLarge {
		t.Fatalf("read: expected ErrSpanTooLarge, got %v", err)
	}
}

func TestAvailable(t *testing.T) {
	l := testLayout(t, 1000)

	if got := l.Available(); got != 0 {
		t.Fatalf("empty ring: available %d", got)
	}

	l.SetHead(300)
	l.SetTail(100)
	if got := l.Available(); got != 200 {
		t.Fatalf("head 300 tail 100: available %d, want 200", got)
	}

	// Wrapped: head behind tail numerically.
	l.SetHead(50)
	l.SetTail(900)
	if got := l.Available(); got != 150 {
		t.Fatalf("head 50 tail 900: available %d, want 150", got)
	}
}

func TestDataRegionSizeConvention(t *testing.T) {
	// The /1000 divisor is an interop convention with the collaborating
	// consumer; pin the resulting constants.
	if SegmentSize != 8392704 {
		t.Fatalf("SegmentSize = %d, want 8392704", SegmentSize)
	}
	if DataRegionSize != 8376 {
		t.Fatalf("DataRegionSize = %d, want 8376", DataRegionSize)
	}
}
