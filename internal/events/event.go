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

// Package events defines the fixed-width telemetry event record exchanged
// through the shared-memory ring, together with its binary codec and the
// SMB2 command-code conventions that govern how the record's metric slot
// is interpreted.
package events

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// TaskCommLen is the width of the fixed task-name field. Names that fill
// the field exactly carry no NUL terminator.
const TaskCommLen = 16

// EventSize is the exact encoded width of one event record.
//
// The layout mirrors the native x86-64 structure layout of the kernel-side
// producer, padding included. The collaborating consumer decodes the same
// bytes with no length prefix or framing, so these offsets must never move:
//
//	[0,4)   pid             int32
//	[4,8)   padding
//	[8,16)  cmd_end_time_ns uint64
//	[16,24) session_id      uint64
//	[24,32) mid             uint64
//	[32,34) smbcommand      uint16
//	[34,40) padding
//	[40,48) metric          8-byte untagged union
//	[48,49) tool            uint8
//	[49,50) is_compounded   uint8
//	[50,66) task            [16]byte
//	[66,72) padding
const EventSize = 72

const (
	offPID          = 0
	offCmdEndTimeNS = 8
	offSessionID    = 16
	offMID          = 24
	offCommand      = 32
	offMetric       = 40
	offTool         = 48
	offCompounded   = 49
	offTask         = 50
)

// Metric is the 8-byte untagged metric slot. It holds either a latency in
// nanoseconds or a signed return code in its low four bytes; the record
// itself does not say which. By convention the tool field decides: latency
// events carry a latency, error events carry a retval. The slot is stored
// raw so that either view can be taken without loss.
type Metric uint64

// MetricLatency builds a metric holding a latency in nanoseconds.
func MetricLatency(ns uint64) Metric { return Metric(ns) }

// MetricRetval builds a metric holding a return code in the low four bytes,
// leaving the high bytes zero as the native producer does.
func MetricRetval(rv int32) Metric { return Metric(uint32(rv)) }

// LatencyNS interprets the slot as a latency in nanoseconds.
func (m Metric) LatencyNS() uint64 { return uint64(m) }

// Retval interprets the low four bytes of the slot as a signed return code.
func (m Metric) Retval() int32 { return int32(uint32(m)) }

// Event is one telemetry sample for a completed protocol command.
type Event struct {
	PID          int32
	CmdEndTimeNS uint64
	SessionID    uint64
	MID          uint64
	Command      uint16
	Metric       Metric
	Tool         uint8
	IsCompounded bool
	Task         [TaskCommLen]byte
}

// SetTask copies name into the fixed task field, truncating to TaskCommLen.
func (e *Event) SetTask(name string) {
	e.Task = [TaskCommLen]byte{}
	copy(e.Task[:], name)
}

// TaskString returns the task name up to the first NUL, or the full field
// when the name fills it.
func (e *Event) TaskString() string {
	if i := bytes.IndexByte(e.Task[:], 0); i >= 0 {
		return string(e.Task[:i])
	}
	return string(e.Task[:])
}

// CodecError reports a decode buffer of the wrong fixed width. This is a
// contract violation by the caller, not a recoverable runtime condition.
type CodecError struct {
	Len int
}

func (e *CodecError) Error() string {
	return fmt.Sprintf("event decode: buffer is %d bytes, want %d", e.Len, EventSize)
}

// EncodeEventTo serializes ev into dst. Padding bytes are written as zero.
func EncodeEventTo(dst *[EventSize]byte, ev *Event) {
	b := dst[:]
	for i := range b {
		b[i] = 0
	}
	binary.LittleEndian.PutUint32(b[offPID:], uint32(ev.PID))
	binary.LittleEndian.PutUint64(b[offCmdEndTimeNS:], ev.CmdEndTimeNS)
	binary.LittleEndian.PutUint64(b[offSessionID:], ev.SessionID)
	binary.LittleEndian.PutUint64(b[offMID:], ev.MID)
	binary.LittleEndian.PutUint16(b[offCommand:], ev.Command)
	binary.LittleEndian.PutUint64(b[offMetric:], uint64(ev.Metric))
	b[offTool] = ev.Tool
	if ev.IsCompounded {
		b[offCompounded] = 1
	}
	copy(b[offTask:offTask+TaskCommLen], ev.Task[:])
}

// EncodeEvent serializes ev into a freshly allocated buffer.
func EncodeEvent(ev *Event) []byte {
	var buf [EventSize]byte
	EncodeEventTo(&buf, ev)
	return buf[:]
}

// DecodeEvent deserializes one record. Any buffer of the correct width
// decodes; only a wrong-length buffer fails.
func DecodeEvent(b []byte) (Event, error) {
	if len(b) != EventSize {
		return Event{}, &CodecError{Len: len(b)}
	}
	var ev Event
	ev.PID = int32(binary.LittleEndian.Uint32(b[offPID:]))
	ev.CmdEndTimeNS = binary.LittleEndian.Uint64(b[offCmdEndTimeNS:])
	ev.SessionID = binary.LittleEndian.Uint64(b[offSessionID:])
	ev.MID = binary.LittleEndian.Uint64(b[offMID:])
	ev.Command = binary.LittleEndian.Uint16(b[offCommand:])
	ev.Metric = Metric(binary.LittleEndian.Uint64(b[offMetric:]))
	ev.Tool = b[offTool]
	ev.IsCompounded = b[offCompounded] != 0
	copy(ev.Task[:], b[offTask:offTask+TaskCommLen])
	return ev, nil
}
