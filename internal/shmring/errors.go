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

import "fmt"

// ResourceError reports a failure to create, open, or size the backing
// shared-memory object. It is fatal for the operation; the caller decides
// whether to retry (for example after losing a create race) or abort.
type ResourceError struct {
	Name string
	Op   string
	Err  error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("shm segment %q: %s: %v", e.Name, e.Op, e.Err)
}

func (e *ResourceError) Unwrap() error { return e.Err }

// MappingError reports a failure to map the segment into the process
// address space, or to release such a mapping.
type MappingError struct {
	Name string
	Err  error
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("shm segment %q: mmap: %v", e.Name, e.Err)
}

func (e *MappingError) Unwrap() error { return e.Err }
