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

package shmarena_test

import (
	"math"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenio/shmarena"
)

const (
	kib = 1 << 10
	mib = 1 << 20
)

// testArena creates a small owner arena that is torn down with the test.
func testArena(t *testing.T, opts ...shmarena.Option) *shmarena.Arena {
	t.Helper()

	a, err := shmarena.New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, a.Close()) })
	return a
}

func TestAllocWriteRead(t *testing.T) {
	t.Parallel()

	a := testArena(t, shmarena.WithPoolSize(2*mib), shmarena.WithAlignment(64))

	al, err := a.Alloc(1024)
	require.NoError(t, err)
	require.True(t, al.Valid())

	buf := al.Bytes()
	for i := range buf {
		buf[i] = 0xAB
	}
	for i, b := range al.Bytes() {
		require.Equal(t, byte(0xAB), b, "byte %d", i)
	}

	stats := a.Stats()
	assert.EqualValues(t, 1, stats.NumAllocs)
	assert.GreaterOrEqual(t, stats.AllocatedBytes, uint64(1024))
	assert.LessOrEqual(t, stats.AllocatedBytes, uint64(1088))
	assert.EqualValues(t, 0, stats.NumFailedAllocs)
}

func TestAllocAlignment(t *testing.T) {
	t.Parallel()

	a := testArena(t, shmarena.WithPoolSize(8*mib), shmarena.WithAlignment(64))

	p1, err := a.Alloc(1)
	require.NoError(t, err)
	assert.Zero(t, uintptr(p1.Addr)%64)
	assert.EqualValues(t, 64, p1.Size)

	p2, err := a.AllocAligned(4*mib, 2*mib)
	require.NoError(t, err)
	assert.Zero(t, uintptr(p2.Addr)%(2*mib))
	assert.GreaterOrEqual(t, uintptr(p2.Addr), uintptr(p1.Addr)+64)
	assert.Zero(t, p2.Offset%(2*mib))
}

func TestAllocInvalid(t *testing.T) {
	t.Parallel()

	a := testArena(t, shmarena.WithPoolSize(2*mib))

	_, err := a.Alloc(0)
	require.ErrorIs(t, err, shmarena.ErrInvalidArgument)

	_, err = a.AllocAligned(64, 48)
	require.ErrorIs(t, err, shmarena.ErrInvalidArgument)

	// Neither failure counts as an OOM.
	assert.EqualValues(t, 0, a.Stats().NumFailedAllocs)
}

func TestOverflowSafeOOM(t *testing.T) {
	t.Parallel()

	a := testArena(t, shmarena.WithPoolSize(1*mib))

	_, err := a.Alloc(math.MaxUint64)
	require.ErrorIs(t, err, shmarena.ErrOutOfMemory)

	stats := a.Stats()
	assert.EqualValues(t, 0, stats.AllocatedBytes)
	assert.EqualValues(t, 1, stats.NumFailedAllocs)

	// The failed allocation left the cursor alone.
	al, err := a.Alloc(1024)
	require.NoError(t, err)
	assert.EqualValues(t, 0, al.Offset)
}

func TestExactFit(t *testing.T) {
	t.Parallel()

	a := testArena(t, shmarena.WithPoolSize(2*mib))

	al, err := a.Alloc(a.PoolSize())
	require.NoError(t, err)
	assert.EqualValues(t, 0, al.Offset)
	assert.Equal(t, a.PoolSize(), al.Size)

	_, err = a.Alloc(1)
	require.ErrorIs(t, err, shmarena.ErrOutOfMemory)
	assert.Equal(t, a.PoolSize(), a.Stats().AllocatedBytes)
}

func TestPoolRounding(t *testing.T) {
	t.Parallel()

	a := testArena(t, shmarena.WithPoolSize(1*mib))
	assert.EqualValues(t, 2*mib, a.PoolSize())

	b := testArena(t, shmarena.WithPoolSize(2*mib+1))
	assert.EqualValues(t, 4*mib, b.PoolSize())
}

func TestTranslateBounds(t *testing.T) {
	t.Parallel()

	a := testArena(t, shmarena.WithPoolSize(2*mib))
	size := a.PoolSize()

	_, err := a.TranslateOffset(size, 0)
	require.ErrorIs(t, err, shmarena.ErrInvalidArgument)

	_, err = a.TranslateOffset(size-1, 1)
	require.NoError(t, err)

	_, err = a.TranslateOffset(size-1, 2)
	require.ErrorIs(t, err, shmarena.ErrInvalidArgument)

	_, err = a.TranslateOffset(math.MaxUint64, 2)
	require.ErrorIs(t, err, shmarena.ErrInvalidArgument)
}

func TestOffsetRoundTrip(t *testing.T) {
	t.Parallel()

	a := testArena(t, shmarena.WithPoolSize(2*mib))

	al, err := a.Alloc(4 * kib)
	require.NoError(t, err)

	p, err := a.TranslateOffset(al.Offset, al.Size)
	require.NoError(t, err)
	assert.Equal(t, al.Addr, p)

	off, ok := a.OffsetOf(p)
	require.True(t, ok)
	assert.Equal(t, al.Offset, off)

	assert.True(t, a.Owns(p))
	assert.False(t, a.Owns(nil))

	var local [1]byte
	assert.False(t, a.Owns(unsafe.Pointer(&local[0])))
}

func TestDoubleInitialize(t *testing.T) {
	t.Parallel()

	a := testArena(t, shmarena.WithPoolSize(2*mib))
	statsBefore := a.Stats()

	err := a.Initialize(shmarena.WithPoolSize(2 * mib))
	require.ErrorIs(t, err, shmarena.ErrAlreadyInitialized)
	assert.Equal(t, statsBefore, a.Stats())
}

func TestDoubleClose(t *testing.T) {
	t.Parallel()

	a, err := shmarena.New(shmarena.WithPoolSize(2 * mib))
	require.NoError(t, err)
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())

	_, err = a.Alloc(64)
	require.ErrorIs(t, err, shmarena.ErrInvalidArgument)
}

func TestInitializeInvalid(t *testing.T) {
	t.Parallel()

	_, err := shmarena.New(shmarena.WithPoolSize(0))
	require.ErrorIs(t, err, shmarena.ErrInvalidArgument)

	_, err = shmarena.New(shmarena.WithPoolSize(2*mib), shmarena.WithAlignment(96))
	require.ErrorIs(t, err, shmarena.ErrInvalidArgument)

	_, err = shmarena.New(shmarena.WithPoolSize(math.MaxUint64 - 1))
	require.ErrorIs(t, err, shmarena.ErrInvalidArgument)
}

func TestReset(t *testing.T) {
	t.Parallel()

	a := testArena(t, shmarena.WithPoolSize(2*mib))

	al, err := a.Alloc(64 * kib)
	require.NoError(t, err)

	a.Reset()
	assert.EqualValues(t, 0, a.Stats().AllocatedBytes)
	assert.EqualValues(t, 64*kib, a.Stats().PeakAllocated)

	again, err := a.Alloc(64 * kib)
	require.NoError(t, err)
	assert.Equal(t, al.Offset, again.Offset)
}

func TestAttachRoundTrip(t *testing.T) {
	t.Parallel()

	owner := testArena(t, shmarena.WithPoolSize(16*mib))

	al, err := owner.Alloc(4 * kib)
	require.NoError(t, err)
	buf := al.Bytes()
	for i := range buf {
		buf[i] = 0xCD
	}

	attacher := new(shmarena.Arena)
	require.NoError(t, attacher.Attach(owner.Name(), owner.PoolSize()))
	t.Cleanup(func() { require.NoError(t, attacher.Close()) })

	assert.False(t, attacher.IsOwner())
	assert.True(t, owner.IsOwner())
	assert.Equal(t, owner.PoolSize(), attacher.PoolSize())

	p, err := attacher.TranslateOffset(al.Offset, al.Size)
	require.NoError(t, err)
	for i, b := range unsafe.Slice((*byte)(p), al.Size) {
		require.Equal(t, byte(0xCD), b, "byte %d", i)
	}
}

func TestAttachSizeMismatch(t *testing.T) {
	t.Parallel()

	owner := testArena(t, shmarena.WithPoolSize(2*mib))

	attacher := new(shmarena.Arena)
	err := attacher.Attach(owner.Name(), owner.PoolSize()+mib)
	require.ErrorIs(t, err, shmarena.ErrInvalidArgument)
}

func TestAttachMissing(t *testing.T) {
	t.Parallel()

	a := new(shmarena.Arena)
	err := a.Attach("/lumen_arena_does_not_exist", 2*mib)
	require.ErrorIs(t, err, shmarena.ErrNotFound)
}
