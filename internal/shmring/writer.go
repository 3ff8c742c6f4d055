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

// Writer appends event records at the head offset. It is the only mutator
// of head; exactly one Writer may exist per segment. Append never blocks
// on the reader and never detects overrun: if the ring wraps past
// unconsumed records they are overwritten silently.
type Writer struct {
	layout *Layout
	buf    [events.EventSize]byte
}

// NewWriter returns the writer half of the ring over seg.
func NewWriter(seg *Segment) *Writer {
	return &Writer{layout: seg.Layout()}
}

func newWriterLayout(l *Layout) *Writer {
	return &Writer{layout: l}
}

// Append encodes ev and writes it at head, advancing head past the record.
// The bytes are visible to an attached reader as soon as the copy
// completes; shared mappings on one host need no flush.
func (w *Writer) Append(ev *events.Event) error {
	events.EncodeEventTo(&w.buf, ev)
	head := w.layout.Head()
	newHead, err := w.layout.WriteWrapping(head, w.buf[:])
	if err != nil {
		return err
	}
	w.layout.SetHead(newHead)
	return nil
}

// Head exposes the current head offset for diagnostics.
func (w *Writer) Head() uint64 { return w.layout.Head() }
