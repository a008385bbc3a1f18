// Copyright 2025 Lumen Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package shmarena

// Stats is a point-in-time snapshot of an arena's counters.
//
// Individual fields are read atomically but the snapshot as a whole is not:
// counters read while writers are active may be mutually inconsistent. Once
// writers quiesce, AllocatedBytes equals the cursor and PeakAllocated is at
// least AllocatedBytes.
type Stats struct {
	// PoolSize is the operational pool size in bytes.
	PoolSize uint64
	// AllocatedBytes is the cursor: bytes consumed from the pool, including
	// alignment padding.
	AllocatedBytes uint64
	// PeakAllocated is the high-water mark of AllocatedBytes. It survives
	// [Arena.Reset].
	PeakAllocated uint64
	// NumAllocs counts successful allocations.
	NumAllocs uint64
	// NumFailedAllocs counts allocations rejected for lack of space or
	// arithmetic overflow.
	NumFailedAllocs uint64
}

// Stats returns a snapshot of the arena's counters.
func (a *Arena) Stats() Stats {
	return Stats{
		PoolSize:        a.PoolSize(),
		AllocatedBytes:  a.cursor.Load(),
		PeakAllocated:   a.peak.Load(),
		NumAllocs:       a.allocs.Load(),
		NumFailedAllocs: a.failedAllocs.Load(),
	}
}
