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

// Package transport adapts the arena allocator to the transfer engine's
// memory interface: allocate local buffers, publish them as descriptors, and
// relocate remote (segment, offset) targets to local addresses for the copy
// primitive.
package transport

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"github.com/google/uuid"
	"github.com/timandy/routine"

	"github.com/lumenio/shmarena"
	"github.com/lumenio/shmarena/internal/xsync"
)

// localArenaKey is the registry key for the adapter's own arena.
const localArenaKey = "transport.local"

// SegmentSource resolves a segment id to the buffer descriptor its owner
// published. It is implemented by the control plane's segment manager.
type SegmentSource interface {
	Segment(id uuid.UUID) (BufferDescriptor, error)
}

// ErrSegmentUnknown is returned by a SegmentSource that has no descriptor
// for the requested id.
var ErrSegmentUnknown = errors.New("transport: unknown segment")

// Target is one relocation request: a remote (segment, offset, length)
// triple whose Addr field the adapter overwrites with the local address to
// copy through.
type Target struct {
	SegmentID uuid.UUID
	Offset    uint64
	Length    uint64
	Addr      unsafe.Pointer
}

// Adapter is the transfer engine's view of the allocator.
//
// On the owner side it turns allocation requests into arena allocations and
// descriptors. On the requester side it attaches to remote arenas once per
// segment and translates offsets. Relocation keeps a goroutine-local cache
// in front of the shared segment map: the lookup runs once per transfer
// request, and contending on a process-wide mutex there would dominate the
// latency budget.
type Adapter struct {
	cfg      Config
	registry *shmarena.Registry
	source   SegmentSource

	local  *shmarena.Arena  // nil when the arena is disabled
	direct *directAllocator // non-nil when the arena is disabled

	handles xsync.Map[uintptr, shmarena.Alloc]
	buffers xsync.Map[uuid.UUID, BufferDescriptor]

	mu      sync.Mutex // guards remotes and the attach slow path
	remotes map[uuid.UUID]*shmarena.Arena
	cache   routine.ThreadLocal[map[uuid.UUID]*shmarena.Arena]
}

// Install creates an adapter: it reads the config (with environment
// overrides applied by the caller or [LoadConfig]) and creates the local
// arena through the default registry. With DISABLE_ARENA=1 set, no arena is
// created and every buffer gets its own private mapping instead.
func Install(cfg Config, source SegmentSource) (*Adapter, error) {
	cfg.fillDefaults()

	ad := &Adapter{
		cfg:      cfg,
		registry: shmarena.DefaultRegistry(),
		source:   source,
		remotes:  make(map[uuid.UUID]*shmarena.Arena),
		cache: routine.NewThreadLocalWithInitial(func() map[uuid.UUID]*shmarena.Arena {
			return make(map[uuid.UUID]*shmarena.Arena)
		}),
	}

	if ArenaDisabled() {
		ad.direct = newDirectAllocator(cfg.AlignmentBytes)
		return ad, nil
	}

	arena, err := ad.registry.GetOrCreate(localArenaKey,
		shmarena.WithPoolSize(cfg.PoolSizeBytes),
		shmarena.WithAlignment(cfg.AlignmentBytes),
		shmarena.WithNamePrefix(cfg.NamePrefix),
		shmarena.WithHugePages(*cfg.UseLargePages),
		shmarena.WithPrefault(*cfg.PrefaultPages),
	)
	if err != nil {
		return nil, fmt.Errorf("transport: install: %w", err)
	}
	ad.local = arena
	return ad, nil
}

// AllocateLocal carves a buffer of the given size out of the local arena and
// returns its address. The arena does not reclaim buffers; [Adapter.FreeLocal]
// only forgets the handle.
func (ad *Adapter) AllocateLocal(size uint64) (unsafe.Pointer, error) {
	if ad.direct != nil {
		return ad.direct.alloc(size)
	}
	al, err := ad.local.Alloc(size)
	if err != nil {
		return nil, err
	}
	ad.handles.Store(uintptr(al.Addr), al)
	return al.Addr, nil
}

// FreeLocal forgets the handle for addr. Arena memory is not reclaimed; on
// the fallback path the buffer's private mapping is unmapped.
func (ad *Adapter) FreeLocal(addr unsafe.Pointer) error {
	if ad.direct != nil {
		return ad.direct.free(addr)
	}
	if _, ok := ad.handles.LoadAndDelete(uintptr(addr)); !ok {
		return fmt.Errorf("transport: free of unknown address %p: %w", addr, shmarena.ErrNotFound)
	}
	return nil
}

// RegisterBuffer publishes a buffer previously returned by
// [Adapter.AllocateLocal]: it assigns a segment id and builds the descriptor
// the control plane hands to peers.
func (ad *Adapter) RegisterBuffer(addr unsafe.Pointer, length uint64) (BufferDescriptor, error) {
	desc := BufferDescriptor{
		SegmentID: uuid.New(),
		Length:    length,
	}
	if ad.direct != nil {
		// Direct buffers have no shared region behind them; peers cannot
		// relocate into them and the descriptor says so.
		ad.buffers.Store(desc.SegmentID, desc)
		return desc, nil
	}
	offset, ok := ad.local.OffsetOf(addr)
	if !ok {
		return BufferDescriptor{}, fmt.Errorf("transport: register of address %p outside the arena: %w", addr, shmarena.ErrInvalidArgument)
	}
	end := ad.local.PoolSize()
	if length > end-offset {
		return BufferDescriptor{}, fmt.Errorf("transport: register of %d bytes at offset %d exceeds the pool: %w", length, offset, shmarena.ErrInvalidArgument)
	}
	desc.ArenaName = ad.local.Name()
	desc.ArenaSize = ad.local.PoolSize()
	desc.Offset = offset
	ad.buffers.Store(desc.SegmentID, desc)
	return desc, nil
}

// RemoveBuffer is a no-op: arena buffers are not individually reclaimable,
// so there is nothing to undo. The descriptor stays resolvable until
// [Adapter.Uninstall].
func (ad *Adapter) RemoveBuffer(BufferDescriptor) error { return nil }

// Descriptor returns the published descriptor for a segment this adapter
// registered.
func (ad *Adapter) Descriptor(id uuid.UUID) (BufferDescriptor, bool) {
	return ad.buffers.Load(id)
}

// LocalArena returns the adapter's local arena, or nil on the DISABLE_ARENA
// fallback path. Callers own nothing through it; it exists for stats and
// teardown plumbing.
func (ad *Adapter) LocalArena() *shmarena.Arena { return ad.local }

// Relocate rewrites t.Addr with the local address of the remote range
// (t.SegmentID, t.Offset, t.Length).
//
// The fast path is one goroutine-local map hit and one bounds-checked add;
// it takes no locks. The first request against a segment attaches to its
// arena under the adapter mutex and seeds both caches.
func (ad *Adapter) Relocate(t *Target) error {
	cache := ad.cache.Get()
	arena := cache[t.SegmentID]
	if arena == nil {
		var err error
		arena, err = ad.attachSegment(t.SegmentID)
		if err != nil {
			return err
		}
		cache[t.SegmentID] = arena
	}
	addr, err := arena.TranslateOffset(t.Offset, t.Length)
	if err != nil {
		return err
	}
	t.Addr = addr
	return nil
}

// attachSegment is the relocation slow path: under the adapter mutex, find
// or create the arena handle for a segment.
func (ad *Adapter) attachSegment(id uuid.UUID) (*shmarena.Arena, error) {
	ad.mu.Lock()
	defer ad.mu.Unlock()

	if arena, ok := ad.remotes[id]; ok {
		return arena, nil
	}
	desc, err := ad.source.Segment(id)
	if err != nil {
		return nil, fmt.Errorf("transport: segment %s: %w", id, err)
	}
	if desc.ArenaName == "" {
		return nil, fmt.Errorf("transport: segment %s has no arena backing: %w", id, shmarena.ErrInvalidArgument)
	}
	arena, err := ad.registry.Attach(desc.ArenaName, desc.ArenaSize)
	if err != nil {
		return nil, fmt.Errorf("transport: segment %s: %w", id, err)
	}
	ad.remotes[id] = arena
	return arena, nil
}

// Uninstall drops all handle records and caches and releases the adapter's
// registry references. Remote arenas already handed to other holders stay
// valid; this adapter is done after Uninstall returns.
func (ad *Adapter) Uninstall() error {
	ad.handles.Clear()
	ad.buffers.Clear()

	ad.mu.Lock()
	for id, arena := range ad.remotes {
		ad.registry.Remove(arena.Name())
		delete(ad.remotes, id)
	}
	ad.mu.Unlock()
	ad.cache.Remove()

	if ad.direct != nil {
		return ad.direct.close()
	}
	ad.registry.Remove(localArenaKey)
	ad.local = nil
	return nil
}
