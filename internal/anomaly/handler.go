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

// Package anomaly inspects event batches from the dispatcher and raises
// actions when a batch looks unhealthy. Each handler sees only the events
// of its own tool, since the tool decides how the metric slot is read.
package anomaly

import (
	"fmt"
	"time"

	"github.com/sprasad-microsoft/linux-diagnostics/internal/events"
)

// Type names a class of anomaly.
type Type string

const (
	TypeLatency Type = "latency"
	TypeError   Type = "error"
)

// Action is the record emitted when a handler detects an anomaly. The
// quick-action runner fills Actions and OutputDir with the names of the
// diagnostics it collected and where, so the audit trail says what
// evidence exists for each detection.
type Action struct {
	Anomaly   Type      `json:"anomaly"`
	Timestamp time.Time `json:"timestamp"`
	Actions   []string  `json:"actions,omitempty"`
	OutputDir string    `json:"output_dir,omitempty"`
}

// Handler decides whether a batch of same-tool events is anomalous.
type Handler interface {
	Type() Type
	Tool() uint8
	Detect(batch []events.Event) bool
}

// Any latency at or above this is anomalous regardless of the per-command
// threshold.
const hardLatencyCeilingNS = 1_000_000_000

// LatencyHandler flags batches where too many commands exceeded their
// configured latency thresholds.
type LatencyHandler struct {
	tool            uint8
	acceptableCount int
	// thresholdNS[cmd] == 0 means the command is not tracked.
	thresholdNS [events.NumCommands]uint64
}

// NewLatencyHandler builds a handler from per-command thresholds in
// milliseconds, keyed by protocol command name. An empty track map tracks
// every command at defaultThresholdMS. Unknown command names are an error.
func NewLatencyHandler(tool uint8, acceptableCount int, trackMS map[string]uint64, defaultThresholdMS uint64) (*LatencyHandler, error) {
	h := &LatencyHandler{tool: tool, acceptableCount: acceptableCount}
	if len(trackMS) == 0 {
		if defaultThresholdMS == 0 {
			return nil, fmt.Errorf("latency handler: no commands to track and no default threshold")
		}
		for _, code := range events.Commands {
			h.thresholdNS[code] = defaultThresholdMS * 1_000_000
		}
		return h, nil
	}
	for name, ms := range trackMS {
		code, ok := events.Commands[name]
		if !ok {
			return nil, fmt.Errorf("latency handler: unknown command %q", name)
		}
		if ms == 0 {
			ms = defaultThresholdMS
		}
		if ms == 0 {
			return nil, fmt.Errorf("latency handler: command %q has no threshold", name)
		}
		h.thresholdNS[code] = ms * 1_000_000
	}
	return h, nil
}

func (h *LatencyHandler) Type() Type  { return TypeLatency }
func (h *LatencyHandler) Tool() uint8 { return h.tool }

// Detect reports an anomaly when the count of above-threshold samples
// reaches the acceptable count, or any single sample hits the hard
// ceiling.
func (h *LatencyHandler) Detect(batch []events.Event) bool {
	over := 0
	for i := range batch {
		lat := batch[i].Metric.LatencyNS()
		if lat >= hardLatencyCeilingNS {
			return true
		}
		cmd := batch[i].Command
		if cmd >= events.NumCommands {
			continue
		}
		if th := h.thresholdNS[cmd]; th != 0 && lat >= th {
			over++
		}
	}
	return over >= h.acceptableCount
}

// ErrorHandler flags batches carrying too many failed commands.
type ErrorHandler struct {
	tool            uint8
	acceptableCount int
}

// NewErrorHandler builds a handler that counts negative return codes.
func NewErrorHandler(tool uint8, acceptableCount int) *ErrorHandler {
	return &ErrorHandler{tool: tool, acceptableCount: acceptableCount}
}

func (h *ErrorHandler) Type() Type  { return TypeError }
func (h *ErrorHandler) Tool() uint8 { return h.tool }

func (h *ErrorHandler) Detect(batch []events.Event) bool {
	failed := 0
	for i := range batch {
		if batch[i].Metric.Retval() < 0 {
			failed++
		}
	}
	return failed >= h.acceptableCount
}
