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

//go:build linux

// Package shmfile wraps POSIX shared-memory objects.
//
// A shared-memory object named "/foo" is a file on the host's shm tmpfs,
// /dev/shm/foo. This package keeps all of the syscall plumbing (open,
// ftruncate, mmap, madvise, unlink) in one place so that the allocator above
// it only deals in byte slices.
package shmfile

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/lumenio/shmarena/internal/debug"
)

const shmDir = "/dev/shm"

// File is an open shared-memory object.
type File struct {
	name string // with the leading slash
	fd   int
}

// path converts a shm object name ("/foo") to its tmpfs path.
func path(name string) string {
	return shmDir + "/" + strings.TrimPrefix(name, "/")
}

// Create creates a new shared-memory object. Creation is exclusive: if an
// object with this name already exists, Create fails.
func Create(name string) (*File, error) {
	fd, err := unix.Open(path(name), unix.O_CREAT|unix.O_EXCL|unix.O_RDWR|unix.O_CLOEXEC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("shm_open(%s): %w", name, err)
	}
	return &File{name: name, fd: fd}, nil
}

// Open opens an existing shared-memory object read/write.
func Open(name string) (*File, error) {
	fd, err := unix.Open(path(name), unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("shm_open(%s): %w", name, err)
	}
	return &File{name: name, fd: fd}, nil
}

// Name returns the object's name, with the leading slash.
func (f *File) Name() string { return f.name }

// Resize sets the object's size in bytes.
func (f *File) Resize(size uint64) error {
	if err := unix.Ftruncate(f.fd, int64(size)); err != nil {
		return fmt.Errorf("ftruncate(%s, %d): %w", f.name, size, err)
	}
	return nil
}

// Size returns the object's current size in bytes.
func (f *File) Size() (uint64, error) {
	var st unix.Stat_t
	if err := unix.Fstat(f.fd, &st); err != nil {
		return 0, fmt.Errorf("fstat(%s): %w", f.name, err)
	}
	return uint64(st.Size), nil
}

// MapOptions controls how [File.Map] maps the object.
type MapOptions struct {
	// HugePages requests a MAP_HUGETLB mapping. If the kernel refuses, the
	// mapping silently downgrades to normal pages plus MADV_HUGEPAGE.
	HugePages bool
	// Populate requests that the kernel fault in every page up front
	// (MAP_POPULATE). If the kernel refuses, callers must run an explicit
	// [Prefault] pass instead; Map reports which happened.
	Populate bool
}

// Map maps size bytes of the object read/write and shared.
//
// populated reports whether the kernel eagerly faulted the pages in; when it
// is false and the caller needs prefault semantics, it must call [Prefault]
// on the returned slice.
func (f *File) Map(size uint64, opts MapOptions) (data []byte, populated bool, err error) {
	flags := unix.MAP_SHARED
	if opts.Populate {
		flags |= unix.MAP_POPULATE
	}

	if opts.HugePages {
		data, err = unix.Mmap(f.fd, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, flags|unix.MAP_HUGETLB)
		if err == nil {
			return data, opts.Populate, nil
		}
		// tmpfs without huge=always rejects MAP_HUGETLB; fall back to normal
		// pages and let khugepaged collapse them.
		debug.Logf(0, f.name, "map", "MAP_HUGETLB refused (%v), downgrading", err)
	}

	data, err = unix.Mmap(f.fd, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, flags)
	if err != nil && opts.Populate {
		// Some hosts (old kernels, some VMs) refuse MAP_POPULATE outright.
		data, err = unix.Mmap(f.fd, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
		if err == nil {
			return data, false, nil
		}
	}
	if err != nil {
		return nil, false, fmt.Errorf("mmap(%s, %d): %w", f.name, size, err)
	}

	if opts.HugePages {
		// Best effort only.
		_ = unix.Madvise(data, unix.MADV_HUGEPAGE)
	}
	return data, opts.Populate, nil
}

// DontFork advises the kernel not to duplicate this mapping into forked
// children. Without this, a fork of a process holding a multi-GiB pool pays
// for all of its page tables twice.
func DontFork(data []byte) error {
	return unix.Madvise(data, unix.MADV_DONTFORK)
}

// Prefault walks the mapping and writes one byte per page, forcing every page
// to be faulted in. It is the fallback for hosts that do not honour
// MAP_POPULATE; foreign DMA into the region must never take a lazy fault.
func Prefault(data []byte) {
	pageSize := os.Getpagesize()
	for i := 0; i < len(data); i += pageSize {
		data[i] = 0
	}
}

// Unmap unmaps a slice returned by [File.Map].
func Unmap(data []byte) error {
	return unix.Munmap(data)
}

// Close closes the descriptor. The mapping, if any, survives.
func (f *File) Close() error {
	if f.fd < 0 {
		return nil
	}
	err := unix.Close(f.fd)
	f.fd = -1
	return err
}

// Unlink removes the object's name. Existing mappings survive until their
// holders unmap.
func (f *File) Unlink() error {
	return Unlink(f.name)
}

// Unlink removes a shared-memory object by name.
func Unlink(name string) error {
	if err := unix.Unlink(path(name)); err != nil {
		return fmt.Errorf("shm_unlink(%s): %w", name, err)
	}
	return nil
}

// Names returns the names of all shared-memory objects whose name starts with
// prefix. The returned names carry the leading slash.
func Names(prefix string) ([]string, error) {
	entries, err := os.ReadDir(shmDir)
	if err != nil {
		return nil, err
	}
	var names []string
	bare := strings.TrimPrefix(prefix, "/")
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), bare) {
			names = append(names, "/"+e.Name())
		}
	}
	return names, nil
}
