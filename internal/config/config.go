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

// Package config loads and validates the diagnostics service configuration
// from YAML.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/sprasad-microsoft/linux-diagnostics/internal/anomaly"
	"github.com/sprasad-microsoft/linux-diagnostics/internal/events"
	"github.com/sprasad-microsoft/linux-diagnostics/internal/quickaction"
	"github.com/sprasad-microsoft/linux-diagnostics/internal/shmring"
)

// Config is the top-level service configuration.
type Config struct {
	Segment    SegmentConfig    `mapstructure:"segment"`
	Dispatcher DispatcherConfig `mapstructure:"dispatcher"`
	Watcher    WatcherConfig    `mapstructure:"watcher"`
	Guardian   GuardianConfig   `mapstructure:"guardian"`
	Collector  CollectorConfig  `mapstructure:"collector"`
	Audit      AuditConfig      `mapstructure:"audit"`
}

// SegmentConfig names the shared-memory segment to attach to.
type SegmentConfig struct {
	Name string `mapstructure:"name"`
}

// DispatcherConfig controls ring polling and batching.
type DispatcherConfig struct {
	PollIntervalMS  int `mapstructure:"poll_interval_ms"`
	BatchSize       int `mapstructure:"batch_size"`
	MaxBatchDelayMS int `mapstructure:"max_batch_delay_ms"`
}

// PollInterval returns the poll interval as a duration.
func (c DispatcherConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// MaxBatchDelay returns the batch delay cap as a duration.
func (c DispatcherConfig) MaxBatchDelay() time.Duration {
	return time.Duration(c.MaxBatchDelayMS) * time.Millisecond
}

// WatcherConfig controls the anomaly watcher loop.
type WatcherConfig struct {
	IntervalMS int      `mapstructure:"interval_ms"`
	Actions    []string `mapstructure:"actions"`
}

// Interval returns the watch interval as a duration.
func (c WatcherConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMS) * time.Millisecond
}

// GuardianConfig holds the configured anomaly detectors.
type GuardianConfig struct {
	Anomalies map[string]AnomalyConfig `mapstructure:"anomalies"`
}

// AnomalyConfig describes one anomaly detector.
type AnomalyConfig struct {
	Type               string            `mapstructure:"type"`
	Tool               uint8             `mapstructure:"tool"`
	AcceptableCount    int               `mapstructure:"acceptable_count"`
	DefaultThresholdMS uint64            `mapstructure:"default_threshold_ms"`
	Track              map[string]uint64 `mapstructure:"track"`
	Actions            []string          `mapstructure:"actions"`
}

// CollectorConfig controls where quick-action diagnostics are written.
type CollectorConfig struct {
	OutputDir string `mapstructure:"output_dir"`
}

// AuditConfig controls the anomaly audit log.
type AuditConfig struct {
	Path         string `mapstructure:"path"`
	MaxSizeBytes int64  `mapstructure:"max_size_bytes"`
}

// Load reads, parses, and validates the configuration at path.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	v.SetDefault("segment.name", shmring.DefaultName)
	v.SetDefault("dispatcher.poll_interval_ms", 1000)
	v.SetDefault("dispatcher.batch_size", 10)
	v.SetDefault("dispatcher.max_batch_delay_ms", 3000)
	v.SetDefault("watcher.interval_ms", 1000)
	v.SetDefault("collector.output_dir", "/var/log/smbdiag")
	v.SetDefault("audit.path", "smbdiag-audit.log")
	v.SetDefault("audit.max_size_bytes", 1<<20)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config read: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config parse: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Segment.Name == "" {
		return fmt.Errorf("config: segment.name must not be empty")
	}
	for _, action := range c.Watcher.Actions {
		if !quickaction.Known(action) {
			return fmt.Errorf("config: watcher lists unknown quick action %q", action)
		}
	}
	for name, a := range c.Guardian.Anomalies {
		for _, action := range a.Actions {
			if !quickaction.Known(action) {
				return fmt.Errorf("config: anomaly %q lists unknown quick action %q", name, action)
			}
		}
		switch anomaly.Type(a.Type) {
		case anomaly.TypeLatency:
			if len(a.Track) == 0 && a.DefaultThresholdMS == 0 {
				return fmt.Errorf("config: anomaly %q tracks nothing and has no default threshold", name)
			}
			for cmd := range a.Track {
				if _, ok := events.Commands[cmd]; !ok {
					return fmt.Errorf("config: anomaly %q tracks unknown command %q", name, cmd)
				}
			}
		case anomaly.TypeError:
			// No per-command settings.
		default:
			return fmt.Errorf("config: anomaly %q has unknown type %q", name, a.Type)
		}
		if a.AcceptableCount <= 0 {
			return fmt.Errorf("config: anomaly %q needs a positive acceptable_count", name)
		}
	}
	return nil
}

// Handlers builds the anomaly handlers the guardian section describes.
func (c *Config) Handlers() ([]anomaly.Handler, error) {
	handlers := make([]anomaly.Handler, 0, len(c.Guardian.Anomalies))
	for name, a := range c.Guardian.Anomalies {
		switch anomaly.Type(a.Type) {
		case anomaly.TypeLatency:
			h, err := anomaly.NewLatencyHandler(a.Tool, a.AcceptableCount, a.Track, a.DefaultThresholdMS)
			if err != nil {
				return nil, fmt.Errorf("anomaly %q: %w", name, err)
			}
			handlers = append(handlers, h)
		case anomaly.TypeError:
			handlers = append(handlers, anomaly.NewErrorHandler(a.Tool, a.AcceptableCount))
		}
	}
	return handlers, nil
}

// ActionsByType maps each configured anomaly type to the quick actions to
// run when it fires. An anomaly without its own actions list inherits the
// watcher-level one.
func (c *Config) ActionsByType() map[anomaly.Type][]string {
	byType := make(map[anomaly.Type][]string)
	seen := make(map[anomaly.Type]map[string]bool)
	for _, a := range c.Guardian.Anomalies {
		names := a.Actions
		if len(names) == 0 {
			names = c.Watcher.Actions
		}
		typ := anomaly.Type(a.Type)
		if seen[typ] == nil {
			seen[typ] = make(map[string]bool)
		}
		for _, name := range names {
			if seen[typ][name] {
				continue
			}
			seen[typ][name] = true
			byType[typ] = append(byType[typ], name)
		}
	}
	return byType
}
