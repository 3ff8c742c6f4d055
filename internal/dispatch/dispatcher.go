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

// Package dispatch polls the shared-memory ring and turns its records into
// batches for the analysis stages. The transport itself offers no blocking
// read, so the dispatcher owns the poll interval and the batching policy.
package dispatch

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/sprasad-microsoft/linux-diagnostics/internal/events"
	"github.com/sprasad-microsoft/linux-diagnostics/internal/shmring"
)

// Config controls polling and batching.
type Config struct {
	// PollInterval is how often the ring is checked for new records.
	PollInterval time.Duration
	// BatchSize flushes a batch as soon as it holds this many events.
	BatchSize int
	// MaxBatchDelay flushes a non-empty batch that has waited this long,
	// so sparse traffic still moves.
	MaxBatchDelay time.Duration
	// ChannelBuffer is the capacity of the outgoing batch channel.
	ChannelBuffer int

	Logger *zap.Logger
}

func (c *Config) setDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	if c.MaxBatchDelay <= 0 {
		c.MaxBatchDelay = 3 * time.Second
	}
	if c.ChannelBuffer <= 0 {
		c.ChannelBuffer = 16
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// Dispatcher drains the ring reader on an interval and delivers event
// batches on its output channel. It is the single consumer of the ring.
type Dispatcher struct {
	reader *shmring.Reader
	cfg    Config
	logger *zap.Logger
	out    chan []events.Event

	eventsRead prometheus.Counter
	batchesOut prometheus.Counter
	pollCycles prometheus.Counter
}

// New builds a dispatcher over reader. Metrics register against reg, or
// the default registerer when reg is nil.
func New(reader *shmring.Reader, cfg Config, reg prometheus.Registerer) *Dispatcher {
	cfg.setDefaults()
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Dispatcher{
		reader: reader,
		cfg:    cfg,
		logger: cfg.Logger.Named("dispatcher"),
		out:    make(chan []events.Event, cfg.ChannelBuffer),
		eventsRead: factory.NewCounter(prometheus.CounterOpts{
			Name: "smbdiag_dispatcher_events_read_total",
			Help: "Events drained from the shared-memory ring.",
		}),
		batchesOut: factory.NewCounter(prometheus.CounterOpts{
			Name: "smbdiag_dispatcher_batches_total",
			Help: "Event batches delivered downstream.",
		}),
		pollCycles: factory.NewCounter(prometheus.CounterOpts{
			Name: "smbdiag_dispatcher_polls_total",
			Help: "Ring poll cycles executed.",
		}),
	}
}

// Events returns the batch channel. It is closed when Run returns.
func (d *Dispatcher) Events() <-chan []events.Event { return d.out }

// Run polls until ctx is done, then flushes whatever is pending and closes
// the batch channel.
func (d *Dispatcher) Run(ctx context.Context) error {
	defer close(d.out)

	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	var pending []events.Event
	lastFlush := time.Now()

	d.logger.Info("dispatcher started",
		zap.Duration("poll_interval", d.cfg.PollInterval),
		zap.Int("batch_size", d.cfg.BatchSize))

	for {
		select {
		case <-ctx.Done():
			if len(pending) > 0 {
				// Best-effort final flush; drop if nobody is listening.
				select {
				case d.out <- pending:
					d.batchesOut.Inc()
				default:
				}
			}
			d.logger.Info("dispatcher stopped")
			return nil
		case <-ticker.C:
			d.pollCycles.Inc()
			batch, err := d.reader.DrainAvailable()
			if err != nil {
				// Decode errors on fixed-width records indicate a
				// corrupted segment; surface and stop.
				d.logger.Error("ring drain failed", zap.Error(err))
				return err
			}
			if len(batch) > 0 {
				d.eventsRead.Add(float64(len(batch)))
				pending = append(pending, batch...)
			}

			flushDue := len(pending) >= d.cfg.BatchSize ||
				(len(pending) > 0 && time.Since(lastFlush) > d.cfg.MaxBatchDelay)
			if !flushDue {
				continue
			}
			select {
			case d.out <- pending:
				d.batchesOut.Inc()
				d.logger.Debug("batch dispatched", zap.Int("events", len(pending)))
				pending = nil
				lastFlush = time.Now()
			case <-ctx.Done():
				d.logger.Info("dispatcher stopped")
				return nil
			}
		}
	}
}
