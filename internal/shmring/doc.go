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

// Package shmring implements a single-producer single-consumer ring buffer
// of fixed-size event records inside a POSIX shared-memory segment.
//
// The segment begins with a 16-byte header: the writer-owned head offset at
// byte 0 and the reader-owned tail offset at byte 8, both unsigned 64-bit
// values kept pre-wrapped within the data region. The data region follows
// the header and is treated as a circular byte buffer; a record whose bytes
// would cross the region boundary is split between the end and the start of
// the region within one logical operation.
//
// The transport provides no blocking primitives and no synchronization
// beyond aligned loads and stores of the two offsets: exactly one process
// may write and exactly one may read. A reader that falls behind loses
// overwritten records silently; the writer never blocks and never detects
// the overrun. That trade-off is part of the contract shared with the
// collaborating consumer implementation, as is every constant in
// segment.go.
package shmring
