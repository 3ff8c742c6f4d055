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

package anomaly

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sprasad-microsoft/linux-diagnostics/internal/events"
)

// Watcher wakes on an interval, drains every batch the dispatcher has
// queued since the last wake, and runs the pooled events through each
// registered handler. Detections become Actions on the output channel.
type Watcher struct {
	in       <-chan []events.Event
	handlers []Handler
	interval time.Duration
	logger   *zap.Logger
	out      chan Action
}

// NewWatcher wires a watcher to the dispatcher's batch channel.
func NewWatcher(in <-chan []events.Event, handlers []Handler, interval time.Duration, logger *zap.Logger) *Watcher {
	if interval <= 0 {
		interval = time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		in:       in,
		handlers: handlers,
		interval: interval,
		logger:   logger.Named("anomaly"),
		out:      make(chan Action, 8),
	}
}

// Actions returns the action channel. It is closed when Run returns.
func (w *Watcher) Actions() <-chan Action { return w.out }

// Run processes batches until ctx is done or the input channel closes.
func (w *Watcher) Run(ctx context.Context) error {
	defer close(w.out)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("anomaly watcher started",
		zap.Duration("interval", w.interval),
		zap.Int("handlers", len(w.handlers)))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("anomaly watcher stopped")
			return nil
		case <-ticker.C:
			pool, open := w.gather()
			if len(pool) > 0 {
				w.analyze(ctx, pool)
			}
			if !open {
				w.logger.Info("anomaly watcher stopped", zap.String("reason", "input closed"))
				return nil
			}
		}
	}
}

// gather drains the input channel without blocking. open is false once the
// dispatcher has closed its side.
func (w *Watcher) gather() (pool []events.Event, open bool) {
	for {
		select {
		case batch, ok := <-w.in:
			if !ok {
				return pool, false
			}
			pool = append(pool, batch...)
		default:
			return pool, true
		}
	}
}

func (w *Watcher) analyze(ctx context.Context, pool []events.Event) {
	for _, h := range w.handlers {
		filtered := filterTool(pool, h.Tool())
		if len(filtered) == 0 {
			continue
		}
		if !h.Detect(filtered) {
			continue
		}
		action := Action{Anomaly: h.Type(), Timestamp: time.Now()}
		w.logger.Warn("anomaly detected",
			zap.String("type", string(h.Type())),
			zap.Int("events", len(filtered)))
		select {
		case w.out <- action:
		case <-ctx.Done():
			return
		}
	}
}

func filterTool(pool []events.Event, tool uint8) []events.Event {
	filtered := pool[:0:0]
	for i := range pool {
		if pool[i].Tool == tool {
			filtered = append(filtered, pool[i])
		}
	}
	return filtered
}
