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

// Package shmarena is a shared-memory arena allocator for zero-copy data
// transfer between processes on one host.
//
// An [Arena] owns (or attaches to) one large, pre-mapped shared region and
// carves buffers out of it with a lock-free bump cursor. The owner publishes
// a buffer as a (region name, offset) pair; any process attached to the same
// region turns the offset back into a local pointer with
// [Arena.TranslateOffset], a single add and bounds check. This replaces the
// per-buffer create/size/map dance, and the linear segment-table walk that
// used to stand where the bounds check now is.
//
// Memory is never reclaimed individually: the cursor only advances, there is
// no free list, and the only way to take space back is [Arena.Reset] once
// every outstanding buffer is dead. That trade is deliberate; the transfer
// engine this package serves recycles whole pools, not buffers.
//
// A [Registry] multiplexes named arenas within a process, and package
// transport adapts both to the transfer engine's install/allocate/relocate
// interface.
package shmarena
