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
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/lumenio/shmarena/internal/debug"
	"github.com/lumenio/shmarena/internal/layout"
	"github.com/lumenio/shmarena/internal/shmfile"
	"github.com/lumenio/shmarena/internal/sync2"
)

// nextArenaID hands out process-unique arena ids.
var nextArenaID atomic.Uint64

// Arena is a single contiguous shared-memory region out of which allocations
// are carved by a bump cursor.
//
// An Arena is either an owner (it created the region and will unlink it on
// [Arena.Close]) or an attacher (it mapped a region created by another
// process and never unlinks). Both sides see the same bytes; offsets are the
// portable currency between them.
//
// The zero Arena is ready for [Arena.Initialize] or [Arena.Attach].
// [Arena.Alloc], [Arena.TranslateOffset] and [Arena.OffsetOf] are lock-free
// and safe for concurrent use; the cursor lives in process-local memory, so
// allocation is a single-process affair even when many processes have
// attached the region.
//
// Allocated memory is never reclaimed individually; the arena guarantees
// validity of returned pointers for its own lifetime and nothing more.
type Arena struct {
	mu sync.Mutex // serializes Initialize, Attach and Close

	// base is the published mapping address. All metadata below it is
	// written before the Store that publishes it, so any goroutine that
	// observes base != 0 also observes the finalized metadata.
	base atomic.Uintptr

	size      uint64
	alignment uint64
	id        uint64
	name      string
	isOwner   bool

	file *shmfile.File
	data []byte

	cursor       atomic.Uint64
	peak         sync2.HighWater
	allocs       atomic.Uint64
	failedAllocs atomic.Uint64
}

// New creates an owner arena in one step. It is shorthand for constructing a
// zero Arena and calling [Arena.Initialize].
func New(opts ...Option) (*Arena, error) {
	a := new(Arena)
	if err := a.Initialize(opts...); err != nil {
		return nil, err
	}
	return a, nil
}

// Initialize creates the backing shared-memory object, sizes it, maps it and
// publishes the mapping, making this arena the region's owner.
//
// Initialization is serialized: under concurrent calls exactly one succeeds
// and the rest return [ErrAlreadyInitialized].
func (a *Arena) Initialize(opts ...Option) error {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt.apply(&cfg)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.base.Load() != 0 {
		return errf(errCodeAlreadyInitialized, "initialize", "arena %q", a.name)
	}
	if cfg.poolSize == 0 {
		return errf(errCodeInvalidArgument, "initialize", "pool size must be nonzero")
	}
	if cfg.alignment == 0 {
		cfg.alignment = DefaultAlignment
	}
	if !layout.IsPow2(cfg.alignment) {
		return errf(errCodeInvalidArgument, "initialize", "alignment %d is not a power of two", cfg.alignment)
	}
	if cfg.alignment < DefaultAlignment {
		cfg.alignment = DefaultAlignment
	}

	size, ok := layout.RoundUp(cfg.poolSize, layout.HugePage)
	if !ok {
		return errf(errCodeInvalidArgument, "initialize", "pool size %d overflows when rounded", cfg.poolSize)
	}

	id := nextArenaID.Add(1)
	name := fmt.Sprintf("%s%d_%d", cfg.prefix, os.Getpid(), id)

	file, err := shmfile.Create(name)
	if err != nil {
		return wrapErr(errCodeCreateFailed, "initialize", err)
	}
	if err := file.Resize(size); err != nil {
		_ = file.Close()
		_ = shmfile.Unlink(name)
		return wrapErr(errCodeResizeFailed, "initialize", err)
	}
	data, populated, err := file.Map(size, shmfile.MapOptions{
		HugePages: cfg.hugePages,
		Populate:  cfg.prefault,
	})
	if err != nil {
		_ = file.Close()
		_ = shmfile.Unlink(name)
		return wrapErr(errCodeMapFailed, "initialize", err)
	}
	if cfg.prefault && !populated {
		debug.Logf(id, name, "initialize", "MAP_POPULATE not honoured, walking %d pages", size/uint64(os.Getpagesize()))
		shmfile.Prefault(data)
	}
	// A fork of a process holding a multi-GiB pool would otherwise duplicate
	// every page table entry of the mapping.
	if err := shmfile.DontFork(data); err != nil {
		debug.Logf(id, name, "initialize", "MADV_DONTFORK failed: %v", err)
	}

	a.file = file
	a.data = data
	a.size = size
	a.alignment = cfg.alignment
	a.id = id
	a.name = name
	a.isOwner = true
	a.cursor.Store(0)
	a.peak.Reset()
	a.allocs.Store(0)
	a.failedAllocs.Store(0)

	// Publish last. Everything above must be visible to any goroutine that
	// observes a nonzero base.
	a.base.Store(uintptr(unsafe.Pointer(unsafe.SliceData(data))))
	a.log("initialize", "%s: %d bytes, align %d", name, size, cfg.alignment)
	return nil
}

// Attach maps an existing shared region created by another process.
//
// expectedSize must equal the region's actual size; a mismatch fails with
// [ErrInvalidArgument] rather than silently translating against the wrong
// bounds. The attacher never unlinks the region.
func (a *Arena) Attach(name string, expectedSize uint64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.base.Load() != 0 {
		return errf(errCodeAlreadyInitialized, "attach", "arena %q", a.name)
	}
	if name == "" {
		return errf(errCodeInvalidArgument, "attach", "empty region name")
	}
	if expectedSize == 0 {
		return errf(errCodeInvalidArgument, "attach", "expected size must be nonzero")
	}

	file, err := shmfile.Open(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return wrapErr(errCodeNotFound, "attach", err)
		}
		return wrapErr(errCodeCreateFailed, "attach", err)
	}
	size, err := file.Size()
	if err != nil {
		_ = file.Close()
		return wrapErr(errCodeCreateFailed, "attach", err)
	}
	if size != expectedSize {
		_ = file.Close()
		return errf(errCodeInvalidArgument, "attach", "region %s is %d bytes, expected %d", name, size, expectedSize)
	}
	data, _, err := file.Map(size, shmfile.MapOptions{})
	if err != nil {
		_ = file.Close()
		return wrapErr(errCodeMapFailed, "attach", err)
	}

	a.file = file
	a.data = data
	a.size = size
	a.alignment = DefaultAlignment
	a.id = nextArenaID.Add(1)
	a.name = name
	a.isOwner = false
	a.cursor.Store(0)

	a.base.Store(uintptr(unsafe.Pointer(unsafe.SliceData(data))))
	a.log("attach", "%s: %d bytes", name, size)
	return nil
}

// Close tears the arena down: it unmaps the region, closes the descriptor
// and, for the owner, unlinks the region's name. Attached peers keep their
// mappings until they close themselves.
//
// Close is idempotent and safe to call from a defer alongside other
// teardown.
func (a *Arena) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var firstErr error
	if a.data != nil {
		a.base.Store(0)
		if err := shmfile.Unmap(a.data); err != nil && firstErr == nil {
			firstErr = err
		}
		a.data = nil
	}
	if a.file != nil {
		if err := a.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		if a.isOwner {
			if err := a.file.Unlink(); err != nil && !errors.Is(err, fs.ErrNotExist) && firstErr == nil {
				firstErr = err
			}
		}
		a.file = nil
	}
	return firstErr
}

// Name returns the shared region's name, or "" before initialization.
func (a *Arena) Name() string {
	if a.base.Load() == 0 {
		return ""
	}
	return a.name
}

// ID returns the process-unique id used to tag allocations from this arena.
func (a *Arena) ID() uint64 { return a.id }

// IsOwner reports whether this arena created (and will unlink) the region.
func (a *Arena) IsOwner() bool { return a.isOwner }

// PoolSize returns the operational pool size in bytes: the requested size
// rounded up to a large-page multiple. Zero before initialization.
func (a *Arena) PoolSize() uint64 {
	if a.base.Load() == 0 {
		return 0
	}
	return a.size
}

// Alignment returns the minimum allocation alignment.
func (a *Arena) Alignment() uint64 { return a.alignment }

// TranslateOffset converts an offset published by the region's owner into an
// address in this process. The [offset, offset+size) range must lie within
// the pool; a range that does not fails with [ErrInvalidArgument] and
// mutates nothing.
func (a *Arena) TranslateOffset(offset, size uint64) (unsafe.Pointer, error) {
	base := a.base.Load()
	if base == 0 {
		return nil, errf(errCodeInvalidArgument, "translate", "arena not initialized")
	}
	end, ok := layout.Add(offset, size)
	if !ok || offset >= a.size || end > a.size {
		return nil, errf(errCodeInvalidArgument, "translate", "[%d, %d+%d) outside pool of %d bytes", offset, offset, size, a.size)
	}
	return unsafe.Pointer(base + uintptr(offset)), nil
}

// OffsetOf is the inverse of [Arena.TranslateOffset]: it returns the offset
// of p within the pool. The second return is false if p is not an address
// inside this arena.
func (a *Arena) OffsetOf(p unsafe.Pointer) (uint64, bool) {
	base := a.base.Load()
	if base == 0 {
		return 0, false
	}
	addr := uintptr(p)
	if addr < base || addr >= base+uintptr(a.size) {
		return 0, false
	}
	return uint64(addr - base), true
}

// Owns reports whether p points into this arena's pool.
func (a *Arena) Owns(p unsafe.Pointer) bool {
	_, ok := a.OffsetOf(p)
	return ok
}

// Reset moves the cursor back to zero, making the whole pool available
// again.
//
// Reset is only safe when the caller guarantees no outstanding allocation is
// still in use; the arena cannot enforce that.
func (a *Arena) Reset() {
	a.cursor.Store(0)
	a.log("reset", "")
}

func (a *Arena) log(op, format string, args ...any) {
	debug.Logf(a.id, a.name, op, format, args...)
}
