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

// smbdiag-gen writes synthetic telemetry events into the shared-memory
// ring so the consumer pipeline can be exercised without a kernel-side
// producer.
package main

import (
	"encoding/binary"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sprasad-microsoft/linux-diagnostics/internal/events"
	"github.com/sprasad-microsoft/linux-diagnostics/internal/shmring"
)

var genCommands = []uint16{events.CmdRead, events.CmdWrite, events.CmdLock}

var genLatenciesNS = []uint64{7_000_000, 9_000_000, 100_000_000, 11_000_000}

func main() {
	var (
		segmentName string
		count       int
		interval    time.Duration
		unlink      bool
		retval      int32
		asErrors    bool
	)

	root := &cobra.Command{
		Use:   "smbdiag-gen",
		Short: "Write synthetic SMB telemetry events into the shared-memory ring",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := zap.NewProduction()
			if err != nil {
				return err
			}
			defer logger.Sync()

			if unlink {
				if err := shmring.Unlink(segmentName); err != nil {
					return err
				}
				logger.Info("segment unlinked", zap.String("name", segmentName))
				return nil
			}
			return generate(logger, segmentName, count, interval, asErrors, retval)
		},
	}

	root.Flags().StringVar(&segmentName, "segment", shmring.DefaultName, "shared-memory segment name")
	root.Flags().IntVar(&count, "count", 30, "number of events to write")
	root.Flags().DurationVar(&interval, "interval", 10*time.Millisecond, "delay between events")
	root.Flags().BoolVar(&unlink, "unlink", false, "destroy the segment and exit")
	root.Flags().BoolVar(&asErrors, "errors", false, "write error-tool events instead of latency samples")
	root.Flags().Int32Var(&retval, "retval", -10, "return code for error-tool events")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func generate(logger *zap.Logger, name string, count int, interval time.Duration, asErrors bool, retval int32) error {
	seg, created, err := shmring.OpenOrCreate(name, shmring.SegmentSize)
	if err != nil {
		return err
	}
	defer seg.Close()

	if created {
		seg.InitHeader()
		logger.Info("segment created", zap.String("name", name), zap.Uint64("size", seg.Size()))
	} else {
		l := seg.Layout()
		logger.Info("attached to existing segment",
			zap.String("name", name),
			zap.Uint64("head", l.Head()),
			zap.Uint64("tail", l.Tail()))
	}

	session := uuid.New()
	sessionID := binary.LittleEndian.Uint64(session[:8])

	writer := shmring.NewWriter(seg)
	for i := 0; i < count; i++ {
		ev := events.Event{
			PID:          int32(i),
			CmdEndTimeNS: uint64(time.Now().UnixNano()),
			SessionID:    sessionID,
			MID:          uint64(i) + 1,
			Command:      genCommands[i%len(genCommands)],
			Tool:         events.ToolLatency,
			Metric:       events.MetricLatency(genLatenciesNS[i%len(genLatenciesNS)]),
		}
		if asErrors {
			ev.Tool = events.ToolError
			ev.Metric = events.MetricRetval(retval)
		}
		ev.SetTask("smbdiag-gen")

		if err := writer.Append(&ev); err != nil {
			return err
		}
		logger.Info("event written",
			zap.Int32("pid", ev.PID),
			zap.String("command", events.CommandName(ev.Command)),
			zap.Uint64("head", writer.Head()))
		time.Sleep(interval)
	}

	logger.Info("generation complete",
		zap.Int("events", count),
		zap.String("session", session.String()))
	return nil
}
