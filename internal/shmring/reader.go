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
	"github.com/sprasad-microsoft/linux-diagnostics/internal/events"
)

// Reader consumes event records from the tail offset. It is the only
// mutator of tail; exactly one Reader may exist per segment. Reads are
// non-blocking: an empty ring is a normal condition and the caller decides
// the polling interval.
type Reader struct {
	layout *Layout
	buf    [events.EventSize]byte
}

// NewReader returns the reader half of the ring over seg.
func NewReader(seg *Segment) *Reader {
	return &Reader{layout: seg.Layout()}
}

func newReaderLayout(l *Layout) *Reader {
	return &Reader{layout: l}
}

// TryPop reads one record from tail if at least one full record is
// available, advancing tail past it. ok is false when fewer than
// EventSize bytes separate tail from head, which is not an error.
//
// Head is observed once at the start of the call; the read never passes
// that observation even if the writer advances concurrently.
func (r *Reader) TryPop() (ev events.Event, ok bool, err error) {
	head := r.layout.Head()
	tail := r.layout.Tail()
	region := r.layout.RegionSize()

	available := (head + region - tail) % region
	if available < events.EventSize {
		return events.Event{}, false, nil
	}

	newTail, err := r.layout.ReadWrapping(tail, r.buf[:])
	if err != nil {
		return events.Event{}, false, err
	}
	ev, err = events.DecodeEvent(r.buf[:])
	if err != nil {
		return events.Event{}, false, err
	}
	r.layout.SetTail(newTail)
	return ev, true, nil
}

// DrainAvailable reads every full record between tail and the head
// observed at the start of the call, advancing tail once at the end. A nil
// slice means the ring held no complete record.
func (r *Reader) DrainAvailable() ([]events.Event, error) {
	head := r.layout.Head()
	tail := r.layout.Tail()
	region := r.layout.RegionSize()

	available := (head + region - tail) % region
	count := available / events.EventSize
	if count == 0 {
		return nil, nil
	}

	batch := make([]events.Event, 0, count)
	off := tail
	for i := uint64(0); i < count; i++ {
		next, err := r.layout.ReadWrapping(off, r.buf[:])
		if err != nil {
			return nil, err
		}
		ev, err := events.DecodeEvent(r.buf[:])
		if err != nil {
			return nil, err
		}
		batch = append(batch, ev)
		off = next
	}
	r.layout.SetTail(off)
	return batch, nil
}

// Tail exposes the current tail offset for diagnostics.
func (r *Reader) Tail() uint64 { return r.layout.Tail() }
