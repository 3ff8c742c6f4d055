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

package shmring

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// Segment geometry. Every constant here is shared with the kernel-side
// producer and the collaborating consumer implementation; changing any of
// them silently corrupts offset interpretation across processes.
const (
	// DefaultName is the well-known segment name under /dev/shm.
	DefaultName = "bpf_shm"

	// MaxEntries is the producer-chosen capacity constant.
	MaxEntries = 2048

	// PageSize is the page size the segment sizing assumes.
	PageSize = 4096

	// SegmentSize is the total pre-allocated segment size in bytes.
	SegmentSize = (MaxEntries + 1) * PageSize

	// HeaderSize covers the head and tail offsets at the front of the
	// segment.
	HeaderSize = 16

	// DataRegionSize is the logical size of the circular data region.
	// The /1000 divisor has no documented rationale; it is an existing
	// convention of the collaborating consumer and must match it
	// bit-for-bit, so it is preserved verbatim.
	DataRegionSize = SegmentSize/1000 - HeaderSize
)

// Segment is an open, mapped shared-memory segment. It is the explicit
// handle passed to Writer and Reader constructors; there is no implicit
// process-wide state.
type Segment struct {
	name string
	path string
	file *os.File
	mem  []byte
}

// OpenOrCreate attaches to the named segment, creating and sizing it to
// totalSize bytes if it does not exist. created reports whether this call
// brought the segment into existence; if so the caller must initialize the
// header exactly once via InitHeader. Attaching must never reinitialize
// the header, since a reader may already hold a position in it.
//
// A create race between two processes is resolved by falling back to a
// plain open when the exclusive create loses. The loser may observe the
// winner's file before it has been sized, so an empty segment is re-checked
// briefly instead of being rejected outright.
func OpenOrCreate(name string, totalSize uint64) (*Segment, bool, error) {
	path := segmentPath(name)

	created := false
	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if os.IsNotExist(err) {
		file, err = os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o666)
		if err == nil {
			created = true
		} else if os.IsExist(err) {
			// Lost the create race; the other process sizes the segment.
			file, err = os.OpenFile(path, os.O_RDWR, 0)
		}
	}
	if err != nil {
		return nil, false, &ResourceError{Name: name, Op: "open", Err: err}
	}

	cleanup := func() {
		file.Close()
		if created {
			os.Remove(path)
		}
	}

	if created {
		if err := file.Truncate(int64(totalSize)); err != nil {
			cleanup()
			return nil, false, &ResourceError{Name: name, Op: "size", Err: err}
		}
	} else {
		if err := waitForSize(file, totalSize); err != nil {
			cleanup()
			return nil, false, &ResourceError{Name: name, Op: "size check", Err: err}
		}
	}

	mem, err := syscall.Mmap(int(file.Fd()), 0, int(totalSize),
		syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		cleanup()
		return nil, false, &MappingError{Name: name, Err: err}
	}

	return &Segment{name: name, path: path, file: file, mem: mem}, created, nil
}

// sizeWait bounds how long an attach waits for the segment creator to
// finish sizing the file.
const sizeWait = time.Second

// waitForSize re-stats the file until it reaches totalSize. A zero size
// means the creator has not truncated yet and is retried until sizeWait
// elapses; any other size is a real mismatch and fails at once.
func waitForSize(file *os.File, totalSize uint64) error {
	deadline := time.Now().Add(sizeWait)
	for {
		info, err := file.Stat()
		if err != nil {
			return err
		}
		size := uint64(info.Size())
		switch {
		case size == totalSize:
			return nil
		case size != 0:
			return fmt.Errorf("existing segment is %d bytes, want %d", size, totalSize)
		case time.Now().After(deadline):
			return fmt.Errorf("existing segment still unsized after %v", sizeWait)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// Name returns the well-known segment name.
func (s *Segment) Name() string { return s.name }

// Path returns the backing file path.
func (s *Segment) Path() string { return s.path }

// Size returns the total mapped size in bytes.
func (s *Segment) Size() uint64 { return uint64(len(s.mem)) }

// Layout returns the offset-mapping view over the mapped segment.
func (s *Segment) Layout() *Layout {
	return newLayout(s.mem, uint64(len(s.mem))/1000-HeaderSize)
}

// InitHeader zeroes head and tail. Call exactly once, and only when
// OpenOrCreate reported created.
func (s *Segment) InitHeader() {
	s.Layout().Reset()
}

// Close unmaps the segment and closes the backing file. The segment object
// must not be used afterwards. Closing never destroys the segment; see
// Unlink.
func (s *Segment) Close() error {
	var mapErr error
	if s.mem != nil {
		if err := syscall.Munmap(s.mem); err != nil {
			mapErr = &MappingError{Name: s.name, Err: fmt.Errorf("munmap: %w", err)}
		}
		s.mem = nil
	}
	if err := s.file.Close(); err != nil && mapErr == nil {
		return &ResourceError{Name: s.name, Op: "close", Err: err}
	}
	return mapErr
}

// Unlink removes the named segment. This is the explicit administrative
// destroy; processes holding a mapping keep it until they close.
func Unlink(name string) error {
	if err := os.Remove(segmentPath(name)); err != nil {
		return &ResourceError{Name: name, Op: "unlink", Err: err}
	}
	return nil
}

// segmentPath resolves a segment name to its backing file. /dev/shm is
// preferred; the temporary directory is the fallback for hosts without it.
func segmentPath(name string) string {
	if info, err := os.Stat("/dev/shm"); err == nil && info.IsDir() {
		return filepath.Join("/dev/shm", name)
	}
	return filepath.Join(os.TempDir(), name)
}
