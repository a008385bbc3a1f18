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

// Package layout includes helpers for working with sizes, alignments and
// offsets.
//
// Everything here is checked arithmetic over uint64: a pool offset that wraps
// is an allocation failure, never a corrupt cursor.
package layout

import "math"

// HugePage is the canonical large-page size that pool sizes are rounded up to.
const HugePage = 2 << 20

// IsPow2 reports whether n is a power of two.
func IsPow2(n uint64) bool {
	return n != 0 && n&(n-1) == 0
}

// RoundUp rounds n upwards to align, which must be a power of two.
//
// The second return is false if the rounded value does not fit in a uint64.
func RoundUp(n, align uint64) (uint64, bool) {
	if n > math.MaxUint64-(align-1) {
		return 0, false
	}
	return (n + align - 1) &^ (align - 1), true
}

// Add returns n+m, or false if the sum wraps.
func Add(n, m uint64) (uint64, bool) {
	if n > math.MaxUint64-m {
		return 0, false
	}
	return n + m, true
}

// Padding returns the number of bytes between n and the next multiple of
// align, which must be a power of two.
func Padding(n, align uint64) uint64 {
	return (align - n) & (align - 1)
}
