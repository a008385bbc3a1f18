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

package transport

import (
	"fmt"
	"os"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/lumenio/shmarena/internal/layout"
)

// directAllocator is the DISABLE_ARENA=1 path: one anonymous private mapping
// per buffer, the pattern the arena replaced. It keeps the arena's alignment
// and large-page-rounding contracts so callers cannot tell the difference,
// only the kernel can.
type directAllocator struct {
	alignment uint64

	mu   sync.Mutex
	bufs map[uintptr]uint64 // aligned base -> mapped length
}

func newDirectAllocator(alignment uint64) *directAllocator {
	if alignment == 0 || !layout.IsPow2(alignment) {
		alignment = 64
	}
	return &directAllocator{
		alignment: alignment,
		bufs:      make(map[uintptr]uint64),
	}
}

func (d *directAllocator) alloc(size uint64) (unsafe.Pointer, error) {
	if size == 0 {
		return nil, fmt.Errorf("transport: direct alloc of zero bytes")
	}
	rounded, ok := layout.RoundUp(size, layout.HugePage)
	if !ok {
		return nil, fmt.Errorf("transport: direct alloc of %d bytes overflows", size)
	}

	// mmap only guarantees page alignment. For anything stricter, map extra
	// and trim the misaligned head and the tail back off.
	total := rounded
	slack := uint64(0)
	if d.alignment > uint64(os.Getpagesize()) {
		slack = d.alignment
		total, ok = layout.Add(rounded, slack)
		if !ok {
			return nil, fmt.Errorf("transport: direct alloc of %d bytes overflows", size)
		}
	}

	p, err := unix.MmapPtr(-1, 0, nil, uintptr(total),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("transport: direct mmap of %d bytes: %w", total, err)
	}

	aligned := p
	if slack != 0 {
		head := uintptr(layout.Padding(uint64(uintptr(p)), d.alignment))
		aligned = unsafe.Add(p, head)
		if head != 0 {
			_ = unix.MunmapPtr(p, head)
		}
		if tail := uintptr(total) - head - uintptr(rounded); tail != 0 {
			_ = unix.MunmapPtr(unsafe.Add(aligned, rounded), tail)
		}
	}

	d.mu.Lock()
	d.bufs[uintptr(aligned)] = rounded
	d.mu.Unlock()
	return aligned, nil
}

func (d *directAllocator) free(addr unsafe.Pointer) error {
	d.mu.Lock()
	length, ok := d.bufs[uintptr(addr)]
	if ok {
		delete(d.bufs, uintptr(addr))
	}
	d.mu.Unlock()
	if !ok {
		return fmt.Errorf("transport: direct free of unknown address %p", addr)
	}
	return unix.MunmapPtr(addr, uintptr(length))
}

func (d *directAllocator) close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var firstErr error
	for base, length := range d.bufs {
		if err := unix.MunmapPtr(unsafe.Pointer(base), uintptr(length)); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(d.bufs, base)
	}
	return firstErr
}
