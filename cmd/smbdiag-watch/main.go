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

// smbdiag-watch runs the consumer side: it attaches to the shared-memory
// ring, drains telemetry events, watches for anomalies, keeps latency
// counts, and audit-logs every anomaly action.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sprasad-microsoft/linux-diagnostics/internal/anomaly"
	"github.com/sprasad-microsoft/linux-diagnostics/internal/audit"
	"github.com/sprasad-microsoft/linux-diagnostics/internal/config"
	"github.com/sprasad-microsoft/linux-diagnostics/internal/dispatch"
	"github.com/sprasad-microsoft/linux-diagnostics/internal/events"
	"github.com/sprasad-microsoft/linux-diagnostics/internal/quickaction"
	"github.com/sprasad-microsoft/linux-diagnostics/internal/shmring"
	"github.com/sprasad-microsoft/linux-diagnostics/internal/stats"
)

func main() {
	var (
		configPath  string
		metricsAddr string
	)

	root := &cobra.Command{
		Use:   "smbdiag-watch",
		Short: "Consume SMB telemetry from the shared-memory ring and watch for anomalies",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := zap.NewProduction()
			if err != nil {
				return err
			}
			defer logger.Sync()
			return run(logger, configPath, metricsAddr)
		},
	}

	root.Flags().StringVar(&configPath, "config", "smbdiag.yaml", "path to the YAML configuration")
	root.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address to serve Prometheus metrics on (empty disables)")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(logger *zap.Logger, configPath, metricsAddr string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	seg, created, err := shmring.OpenOrCreate(cfg.Segment.Name, shmring.SegmentSize)
	if err != nil {
		return err
	}
	defer seg.Close()
	if created {
		// The producer is not up yet; start from an empty ring.
		seg.InitHeader()
		logger.Info("segment created", zap.String("name", cfg.Segment.Name))
	}

	handlers, err := cfg.Handlers()
	if err != nil {
		return err
	}

	auditLog, err := audit.New(cfg.Audit.Path, cfg.Audit.MaxSizeBytes, logger)
	if err != nil {
		return err
	}
	defer auditLog.Close()

	dispatcher := dispatch.New(shmring.NewReader(seg), dispatch.Config{
		PollInterval:  cfg.Dispatcher.PollInterval(),
		BatchSize:     cfg.Dispatcher.BatchSize,
		MaxBatchDelay: cfg.Dispatcher.MaxBatchDelay(),
		Logger:        logger,
	}, nil)

	counter := stats.NewLatencyCounter(0)
	counted := make(chan []events.Event, 16)
	watcher := anomaly.NewWatcher(counted, handlers, cfg.Watcher.Interval(), logger)

	runner, err := quickaction.NewRunner(cfg.Collector.OutputDir, cfg.Watcher.Interval(),
		cfg.ActionsByType(), logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return dispatcher.Run(ctx) })

	// Tee dispatcher batches into the latency counter on their way to the
	// anomaly watcher. The counter only accepts latency-tool events.
	g.Go(func() error {
		defer close(counted)
		for batch := range dispatcher.Events() {
			counter.ObserveBatch(batch)
			select {
			case counted <- batch:
			case <-ctx.Done():
				return nil
			}
		}
		return nil
	})

	g.Go(func() error { return watcher.Run(ctx) })

	// Detections collect their configured diagnostics before the annotated
	// action reaches the audit log.
	g.Go(func() error { return runner.Run(ctx, watcher.Actions()) })

	g.Go(func() error { return auditLog.Run(ctx, runner.Actions()) })

	if metricsAddr != "" {
		srv := &http.Server{Addr: metricsAddr, Handler: promhttp.Handler()}
		g.Go(func() error {
			<-ctx.Done()
			return srv.Close()
		})
		g.Go(func() error {
			err := srv.ListenAndServe()
			if err == http.ErrServerClosed {
				return nil
			}
			return err
		})
		logger.Info("metrics endpoint up", zap.String("addr", metricsAddr))
	}

	err = g.Wait()

	for _, entry := range counter.Snapshot() {
		logger.Info("latency count",
			zap.String("command", events.CommandName(entry.Key.Command)),
			zap.Uint64("latency_ns", entry.Key.LatencyNS),
			zap.Uint64("count", entry.Count))
	}
	if dropped := counter.Dropped(); dropped > 0 {
		logger.Warn("latency counter saturated", zap.Uint64("dropped", dropped))
	}
	return err
}
