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

package quickaction

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sprasad-microsoft/linux-diagnostics/internal/anomaly"
)

// Concurrent collectors per detection.
const collectLimit = 4

// Runner sits between the anomaly watcher and the audit log. For each
// detection it runs the collectors configured for that anomaly type into a
// fresh batch directory, annotates the action with what was collected and
// where, and forwards it.
type Runner struct {
	root   string
	byType map[anomaly.Type][]Collector
	logger *zap.Logger
	out    chan anomaly.Action
	now    func() time.Time
}

// NewRunner builds a runner. root is the output directory under which
// per-detection batch directories are created. actions maps each anomaly
// type to the collector names to run for it; unknown names are an error.
func NewRunner(root string, interval time.Duration, actions map[anomaly.Type][]string, logger *zap.Logger) (*Runner, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := Registry(interval)
	byType := make(map[anomaly.Type][]Collector, len(actions))
	for typ, names := range actions {
		for _, name := range names {
			col, ok := reg[name]
			if !ok {
				return nil, fmt.Errorf("quick action: unknown action %q for anomaly type %q", name, typ)
			}
			byType[typ] = append(byType[typ], col)
		}
	}
	return &Runner{
		root:   root,
		byType: byType,
		logger: logger.Named("quickaction"),
		out:    make(chan anomaly.Action, 8),
		now:    time.Now,
	}, nil
}

// Actions returns the forwarded action channel. It is closed when Run
// returns.
func (r *Runner) Actions() <-chan anomaly.Action { return r.out }

// Run consumes detections until ctx is done or the input channel closes.
// Collection failures are logged and never block the action from reaching
// the audit log.
func (r *Runner) Run(ctx context.Context, in <-chan anomaly.Action) error {
	defer close(r.out)
	for {
		select {
		case <-ctx.Done():
			return nil
		case a, ok := <-in:
			if !ok {
				return nil
			}
			r.collect(ctx, &a)
			select {
			case r.out <- a:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// collect runs the collectors for one detection and annotates the action
// with the collector names and the batch directory.
func (r *Runner) collect(ctx context.Context, a *anomaly.Action) {
	cols := r.byType[a.Anomaly]
	if len(cols) == 0 {
		return
	}

	dir := filepath.Join(r.root, "batches", fmt.Sprintf("aod_quick_%d", r.now().UnixNano()))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		r.logger.Error("quick action batch dir", zap.Error(err))
		return
	}

	// The marker flips to .COMPLETE only once every collector has run, so
	// half-written batches are recognizable.
	inProgress := filepath.Join(dir, ".IN_PROGRESS")
	if f, err := os.Create(inProgress); err != nil {
		r.logger.Error("quick action marker", zap.Error(err))
	} else {
		f.Close()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(collectLimit)
	for _, col := range cols {
		col := col
		g.Go(func() error {
			if err := col.Collect(gctx, dir); err != nil {
				r.logger.Warn("quick action failed",
					zap.String("action", col.Name()), zap.Error(err))
			}
			return nil
		})
	}
	g.Wait()

	if err := os.Rename(inProgress, filepath.Join(dir, ".COMPLETE")); err != nil {
		r.logger.Warn("quick action marker", zap.Error(err))
	}

	names := make([]string, len(cols))
	for i, col := range cols {
		names[i] = col.Name()
	}
	a.Actions = names
	a.OutputDir = dir

	r.logger.Info("quick actions collected",
		zap.String("type", string(a.Anomaly)),
		zap.Strings("actions", names),
		zap.String("dir", dir))
}
