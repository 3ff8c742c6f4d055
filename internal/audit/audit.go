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

// Package audit persists anomaly actions to a line-oriented log. Rotated
// files are compressed with zstd so long-running hosts keep a bounded
// footprint.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"github.com/sprasad-microsoft/linux-diagnostics/internal/anomaly"
)

// DefaultMaxSize rotates the active log once it reaches this size.
const DefaultMaxSize = 1 << 20

// Logger appends one JSON line per anomaly action to a file, rotating and
// compressing when the file grows past its size limit.
type Logger struct {
	mu      sync.Mutex
	path    string
	maxSize int64
	size    int64
	file    *os.File
	logger  *zap.Logger
	now     func() time.Time
}

// New opens (or creates) the audit log at path. maxSize <= 0 selects
// DefaultMaxSize.
func New(path string, maxSize int64, logger *zap.Logger) (*Logger, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("audit log open: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("audit log stat: %w", err)
	}
	return &Logger{
		path:    path,
		maxSize: maxSize,
		size:    info.Size(),
		file:    file,
		logger:  logger.Named("audit"),
		now:     time.Now,
	}, nil
}

// Record appends one action to the log.
func (l *Logger) Record(a anomaly.Action) error {
	line, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("audit record encode: %w", err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.size+int64(len(line)) > l.maxSize && l.size > 0 {
		if err := l.rotateLocked(); err != nil {
			return err
		}
	}
	n, err := l.file.Write(line)
	l.size += int64(n)
	if err != nil {
		return fmt.Errorf("audit record write: %w", err)
	}
	return nil
}

// Run consumes actions until the channel closes or ctx is done.
func (l *Logger) Run(ctx context.Context, actions <-chan anomaly.Action) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case a, ok := <-actions:
			if !ok {
				return nil
			}
			if err := l.Record(a); err != nil {
				l.logger.Error("audit record failed", zap.Error(err))
			}
		}
	}
}

// Close flushes and closes the active log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// rotateLocked closes the active file, compresses it to a timestamped
// .zst archive, and reopens a fresh file at the original path.
func (l *Logger) rotateLocked() error {
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("audit rotate close: %w", err)
	}

	rotated := fmt.Sprintf("%s.%d", l.path, l.now().UnixNano())
	if err := os.Rename(l.path, rotated); err != nil {
		// The active file is already closed; reopen it so recording keeps
		// working and rotation is retried on the next size check.
		file, openErr := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if openErr != nil {
			return fmt.Errorf("audit rotate reopen after failed rename: %w", openErr)
		}
		l.file = file
		if info, statErr := file.Stat(); statErr == nil {
			l.size = info.Size()
		}
		return fmt.Errorf("audit rotate rename: %w", err)
	}

	if err := compressFile(rotated, rotated+".zst"); err != nil {
		// The uncompressed rotated file is still intact; keep going.
		l.logger.Warn("audit archive compression failed", zap.Error(err))
	} else {
		os.Remove(rotated)
		l.logger.Info("audit log rotated", zap.String("archive", rotated+".zst"))
	}

	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("audit rotate reopen: %w", err)
	}
	l.file = file
	l.size = 0
	return nil
}

func compressFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	enc, err := zstd.NewWriter(out)
	if err != nil {
		out.Close()
		return err
	}
	if _, err := io.Copy(enc, in); err != nil {
		enc.Close()
		out.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
