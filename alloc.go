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

import (
	"fmt"
	"unsafe"

	"github.com/lumenio/shmarena/internal/layout"
)

// Alloc is an immutable record of a successful allocation.
//
// Addr is valid in the allocating process only; Offset is what travels to
// other processes. The zero Alloc is invalid.
type Alloc struct {
	// Addr is the allocation's address in the current process.
	Addr unsafe.Pointer
	// Offset is the allocation's byte distance from the pool base.
	Offset uint64
	// Size is the aligned size actually consumed, always a multiple of the
	// effective alignment and at least the requested size.
	Size uint64
	// ArenaID identifies the arena that produced this allocation.
	ArenaID uint64
}

// Valid reports whether this is a real allocation.
func (al Alloc) Valid() bool { return al.Addr != nil }

// Bytes returns the allocation as a byte slice.
func (al Alloc) Bytes() []byte {
	return unsafe.Slice((*byte)(al.Addr), al.Size)
}

// Alloc carves size bytes out of the pool at the arena's minimum alignment.
//
// It is lock-free: concurrent callers race on a single compare-and-swap and
// receive disjoint ranges with strictly monotonic offsets. A failing call
// returns [ErrOutOfMemory] and leaves the cursor untouched, so one
// pathological request cannot poison the arena for everyone else.
func (a *Arena) Alloc(size uint64) (Alloc, error) {
	return a.AllocAligned(size, 0)
}

// AllocAligned is [Arena.Alloc] with a per-call alignment override. The
// effective alignment is the larger of align and the arena's minimum; align
// must be zero or a power of two.
func (a *Arena) AllocAligned(size, align uint64) (Alloc, error) {
	base := a.base.Load()
	if base == 0 {
		return Alloc{}, errf(errCodeInvalidArgument, "alloc", "arena not initialized")
	}
	if size == 0 {
		return Alloc{}, errf(errCodeInvalidArgument, "alloc", "size must be nonzero")
	}
	if align != 0 && !layout.IsPow2(align) {
		return Alloc{}, errf(errCodeInvalidArgument, "alloc", "alignment %d is not a power of two", align)
	}
	if align < a.alignment {
		align = a.alignment
	}

	alignedSize, ok := layout.RoundUp(size, align)
	if !ok {
		a.failedAllocs.Add(1)
		return Alloc{}, errf(errCodeOutOfMemory, "alloc", "size %d overflows at alignment %d", size, align)
	}

	// Bump loop. The offset is aligned, not just the size: a prior
	// allocation at a smaller alignment can leave the cursor on an odd
	// boundary. All bounds checks happen before the CAS that advances the
	// cursor, so a failing allocation is invisible to other threads. A
	// fetch-add with a rollback would not be: the window where the cursor
	// sits past the pool end makes concurrent callers report phantom OOMs.
	var off, next uint64
	for {
		raw := a.cursor.Load()
		if raw > a.size {
			// The cursor only ever moves via the CAS below, which never
			// publishes a value past the pool end. Seeing one means the
			// process has scribbled on the arena header.
			panic(fmt.Sprintf("shmarena: corrupt cursor: %d > pool size %d", raw, a.size))
		}
		off, ok = layout.RoundUp(raw, align)
		if ok {
			next, ok = layout.Add(off, alignedSize)
		}
		if !ok || next > a.size {
			a.failedAllocs.Add(1)
			return Alloc{}, errf(errCodeOutOfMemory, "alloc", "%d bytes at alignment %d, %d of %d used", size, align, raw, a.size)
		}
		if a.cursor.CompareAndSwap(raw, next) {
			break
		}
	}

	a.peak.Update(next)
	a.allocs.Add(1)
	a.log("alloc", "%d bytes at offset %d, align %d", alignedSize, off, align)

	return Alloc{
		Addr:    unsafe.Pointer(base + uintptr(off)),
		Offset:  off,
		Size:    alignedSize,
		ArenaID: a.id,
	}, nil
}
