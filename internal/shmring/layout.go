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
	"errors"
	"sync/atomic"
	"unsafe"
)

// ErrSpanTooLarge reports a wrapping copy longer than the data region.
var ErrSpanTooLarge = errors.New("span larger than data region")

// Layout maps logical ring offsets onto a mapped segment. The first 16
// bytes of the backing memory hold the head offset (writer-owned) and the
// tail offset (reader-owned); the data region starts at byte 16 and spans
// regionSize bytes. Both offsets are kept pre-wrapped in [0, regionSize).
//
// Offset accesses are aligned 64-bit loads and stores. No locks and no
// read-modify-write operations back them; consistency rests entirely on
// the single-writer/single-reader discipline.
type Layout struct {
	mem        []byte
	regionSize uint64
}

func newLayout(mem []byte, regionSize uint64) *Layout {
	return &Layout{mem: mem, regionSize: regionSize}
}

// RegionSize returns the logical data-region size in bytes.
func (l *Layout) RegionSize() uint64 { return l.regionSize }

func (l *Layout) headPtr() *uint64 {
	return (*uint64)(unsafe.Pointer(&l.mem[0]))
}

func (l *Layout) tailPtr() *uint64 {
	return (*uint64)(unsafe.Pointer(&l.mem[8]))
}

// Head returns the writer-owned head offset.
func (l *Layout) Head() uint64 { return atomic.LoadUint64(l.headPtr()) }

// SetHead stores the head offset. Writer side only.
func (l *Layout) SetHead(v uint64) { atomic.StoreUint64(l.headPtr(), v) }

// Tail returns the reader-owned tail offset.
func (l *Layout) Tail() uint64 { return atomic.LoadUint64(l.tailPtr()) }

// SetTail stores the tail offset. Reader side only.
func (l *Layout) SetTail(v uint64) { atomic.StoreUint64(l.tailPtr(), v) }

// Reset zeroes both offsets. One-time header initialization only.
func (l *Layout) Reset() {
	l.SetHead(0)
	l.SetTail(0)
}

// Available returns the byte distance from tail to head, which is the
// amount of unconsumed data when the offsets are read by their owners.
func (l *Layout) Available() uint64 {
	head := l.Head()
	tail := l.Tail()
	return (head + l.regionSize - tail) % l.regionSize
}

func (l *Layout) data() []byte {
	return l.mem[HeaderSize : HeaderSize+l.regionSize]
}

// WriteWrapping copies b into the data region starting at the logical
// offset off, splitting the copy at the region boundary when the span
// would cross it. It returns the pre-wrapped offset one past the written
// bytes.
func (l *Layout) WriteWrapping(off uint64, b []byte) (uint64, error) {
	n := uint64(len(b))
	if n > l.regionSize {
		return off, ErrSpanTooLarge
	}
	data := l.data()
	pos := off % l.regionSize
	if pos+n <= l.regionSize {
		copy(data[pos:pos+n], b)
	} else {
		first := l.regionSize - pos
		copy(data[pos:], b[:first])
		copy(data[:n-first], b[first:])
	}
	return (off + n) % l.regionSize, nil
}

// ReadWrapping fills buf from the data region starting at the logical
// offset off, with the same boundary split as WriteWrapping. It returns
// the pre-wrapped offset one past the read bytes.
func (l *Layout) ReadWrapping(off uint64, buf []byte) (uint64, error) {
	n := uint64(len(buf))
	if n > l.regionSize {
		return off, ErrSpanTooLarge
	}
	data := l.data()
	pos := off % l.regionSize
	if pos+n <= l.regionSize {
		copy(buf, data[pos:pos+n])
	} else {
		first := l.regionSize - pos
		copy(buf[:first], data[pos:])
		copy(buf[first:], data[:n-first])
	}
	return (off + n) % l.regionSize, nil
}
