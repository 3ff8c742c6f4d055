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
	"errors"
	"fmt"
	"os"
	"testing"
	"time"
)

func testSegmentName(t *testing.T) string {
	t.Helper()
	return fmt.Sprintf("smbdiag-test-%s-%d", t.Name(), time.Now().UnixNano())
}

func TestOpenOrCreateNew(t *testing.T) {
	name := testSegmentName(t)
	defer Unlink(name)

	seg, created, err := OpenOrCreate(name, SegmentSize)
	if err != nil {
		t.Fatalf("OpenOrCreate failed: %v", err)
	}
	defer seg.Close()

	if !created {
		t.Fatal("expected created=true for a fresh segment")
	}
	if seg.Size() != SegmentSize {
		t.Fatalf("segment size %d, want %d", seg.Size(), SegmentSize)
	}
	seg.InitHeader()

	l := seg.Layout()
	if l.Head() != 0 || l.Tail() != 0 {
		t.Fatalf("fresh header not zero: head=%d tail=%d", l.Head(), l.Tail())
	}
	if l.RegionSize() != DataRegionSize {
		t.Fatalf("region size %d, want %d", l.RegionSize(), DataRegionSize)
	}
}

func TestOpenOrCreateAttachPreservesHeader(t *testing.T) {
	name := testSegmentName(t)
	defer Unlink(name)

	seg, created, err := OpenOrCreate(name, SegmentSize)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if !created {
		t.Fatal("expected created=true")
	}
	seg.InitHeader()
	seg.Layout().SetHead(144)
	seg.Layout().SetTail(72)
	if err := seg.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	// A second attach must see the existing header, not reinitialize it.
	seg2, created, err := OpenOrCreate(name, SegmentSize)
	if err != nil {
		t.Fatalf("attach failed: %v", err)
	}
	defer seg2.Close()
	if created {
		t.Fatal("expected created=false for an existing segment")
	}
	l := seg2.Layout()
	if l.Head() != 144 || l.Tail() != 72 {
		t.Fatalf("header not preserved: head=%d tail=%d", l.Head(), l.Tail())
	}
}

func TestOpenOrCreateSizeMismatch(t *testing.T) {
	name := testSegmentName(t)
	defer Unlink(name)

	seg, _, err := OpenOrCreate(name, SegmentSize)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	seg.Close()

	_, _, err = OpenOrCreate(name, SegmentSize*2)
	var re *ResourceError
	if !errors.As(err, &re) {
		t.Fatalf("expected ResourceError for size mismatch, got %v", err)
	}
}

func TestOpenOrCreateWaitsForCreatorSizing(t *testing.T) {
	// A process losing the create race can open the winner's file before
	// the winner has truncated it. The attach must wait for the size to
	// appear instead of rejecting an empty segment.
	name := testSegmentName(t)
	defer Unlink(name)

	creator, err := os.OpenFile(segmentPath(name), os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o666)
	if err != nil {
		t.Fatalf("pre-create failed: %v", err)
	}
	defer creator.Close()

	go func() {
		time.Sleep(25 * time.Millisecond)
		creator.Truncate(SegmentSize)
	}()

	seg, created, err := OpenOrCreate(name, SegmentSize)
	if err != nil {
		t.Fatalf("attach during sizing failed: %v", err)
	}
	defer seg.Close()
	if created {
		t.Fatal("expected attach, not create")
	}
	if seg.Size() != SegmentSize {
		t.Fatalf("segment size %d, want %d", seg.Size(), SegmentSize)
	}
}

func TestUnlinkedSegmentGone(t *testing.T) {
	name := testSegmentName(t)

	seg, _, err := OpenOrCreate(name, SegmentSize)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	seg.Layout().SetHead(500)
	seg.Close()

	if err := Unlink(name); err != nil {
		t.Fatalf("unlink failed: %v", err)
	}

	// The next open starts from scratch.
	seg2, created, err := OpenOrCreate(name, SegmentSize)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer func() {
		seg2.Close()
		Unlink(name)
	}()
	if !created {
		t.Fatal("expected created=true after unlink")
	}
}

func TestUnlinkMissing(t *testing.T) {
	var re *ResourceError
	if err := Unlink(testSegmentName(t)); !errors.As(err, &re) {
		t.Fatalf("expected ResourceError for missing segment, got %v", err)
	}
}

func TestSharedMappingVisibility(t *testing.T) {
	// Two mappings of one segment observe each other's stores with no
	// explicit flush, which is what the writer/reader contract relies on.
	name := testSegmentName(t)
	defer Unlink(name)

	segA, _, err := OpenOrCreate(name, SegmentSize)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	defer segA.Close()
	segA.InitHeader()

	segB, created, err := OpenOrCreate(name, SegmentSize)
	if err != nil {
		t.Fatalf("attach failed: %v", err)
	}
	defer segB.Close()
	if created {
		t.Fatal("expected attach, not create")
	}

	segA.Layout().SetHead(4040)
	if got := segB.Layout().Head(); got != 4040 {
		t.Fatalf("second mapping sees head=%d, want 4040", got)
	}
}
