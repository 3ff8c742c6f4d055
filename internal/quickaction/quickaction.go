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

// Package quickaction collects host diagnostics the moment an anomaly is
// detected. Each collector captures one output (a command's stdout or a
// procfs file) into a per-detection batch directory, so the state of the
// SMB client close to the anomaly survives for later analysis.
package quickaction

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// Collector captures one diagnostic output into dir.
type Collector interface {
	Name() string
	Collect(ctx context.Context, dir string) error
}

// commandCollector runs a command and writes its stdout to a file in the
// batch directory. Stderr is discarded.
type commandCollector struct {
	name string
	file string
	argv []string
}

func (c *commandCollector) Name() string { return c.name }

func (c *commandCollector) Collect(ctx context.Context, dir string) error {
	cmd := exec.CommandContext(ctx, c.argv[0], c.argv[1:]...)
	out, err := cmd.Output()
	if err != nil {
		return fmt.Errorf("quick action %s: %w", c.name, err)
	}
	if err := os.WriteFile(filepath.Join(dir, c.file), out, 0o644); err != nil {
		return fmt.Errorf("quick action %s: %w", c.name, err)
	}
	return nil
}

// fileCollector copies a file, typically out of procfs, into the batch
// directory.
type fileCollector struct {
	name string
	file string
	src  string
}

func (c *fileCollector) Name() string { return c.name }

func (c *fileCollector) Collect(ctx context.Context, dir string) error {
	data, err := os.ReadFile(c.src)
	if err != nil {
		return fmt.Errorf("quick action %s: %w", c.name, err)
	}
	if err := os.WriteFile(filepath.Join(dir, c.file), data, 0o644); err != nil {
		return fmt.Errorf("quick action %s: %w", c.name, err)
	}
	return nil
}

// Registry returns the collectors available for configuration, keyed by
// the names used in the actions lists. interval scopes the kernel and
// journal log captures to the watch window that raised the anomaly.
func Registry(interval time.Duration) map[string]Collector {
	secs := int(interval / time.Second)
	if secs < 1 {
		secs = 1
	}
	since := fmt.Sprintf("%d seconds ago", secs)
	return map[string]Collector{
		"journalctl": &commandCollector{name: "journalctl", file: "journalctl.log",
			argv: []string{"journalctl", "--since", since}},
		"dmesg": &commandCollector{name: "dmesg", file: "dmesg.log",
			argv: []string{"journalctl", "-k", "--since", since}},
		"smbinfo": &commandCollector{name: "smbinfo", file: "smbinfo.log",
			argv: []string{"smbinfo", "-h", "filebasicinfo"}},
		"syslogs": &commandCollector{name: "syslogs", file: "syslogs.log",
			argv: []string{"tail", "-n100", "/var/log/syslog"}},
		"mounts":    &fileCollector{name: "mounts", file: "mounts.log", src: "/proc/mounts"},
		"stats":     &fileCollector{name: "stats", file: "cifsstats.log", src: "/proc/fs/cifs/Stats"},
		"debugdata": &fileCollector{name: "debugdata", file: "debug_data.log", src: "/proc/fs/cifs/DebugData"},
	}
}

// Known reports whether name is a registered collector name.
func Known(name string) bool {
	_, ok := Registry(time.Second)[name]
	return ok
}
