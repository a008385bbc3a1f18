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

	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protowire"
)

// BufferDescriptor is what the control plane publishes for each registered
// buffer. A requester needs nothing else to reach the bytes: it attaches to
// ArenaName (verifying ArenaSize) and translates Offset locally.
type BufferDescriptor struct {
	// SegmentID identifies the buffer's segment across the control plane.
	SegmentID uuid.UUID
	// ArenaName is the shared region backing the buffer. Empty for buffers
	// allocated by the direct fallback path; those are not relocatable.
	ArenaName string
	// ArenaSize is the region's operational pool size, used by attachers to
	// verify they are mapping what the owner published.
	ArenaSize uint64
	// Offset is the buffer's byte offset within the region.
	Offset uint64
	// Length is the buffer's length in bytes.
	Length uint64
}

// Wire field numbers. These are part of the published control-plane format
// and must not be renumbered.
const (
	descFieldSegmentID = 1
	descFieldArenaName = 2
	descFieldArenaSize = 3
	descFieldOffset    = 4
	descFieldLength    = 5
)

// MarshalBinary encodes the descriptor in protobuf wire format.
func (d *BufferDescriptor) MarshalBinary() ([]byte, error) {
	var b []byte
	b = protowire.AppendTag(b, descFieldSegmentID, protowire.BytesType)
	b = protowire.AppendBytes(b, d.SegmentID[:])
	b = protowire.AppendTag(b, descFieldArenaName, protowire.BytesType)
	b = protowire.AppendString(b, d.ArenaName)
	b = protowire.AppendTag(b, descFieldArenaSize, protowire.VarintType)
	b = protowire.AppendVarint(b, d.ArenaSize)
	b = protowire.AppendTag(b, descFieldOffset, protowire.VarintType)
	b = protowire.AppendVarint(b, d.Offset)
	b = protowire.AppendTag(b, descFieldLength, protowire.VarintType)
	b = protowire.AppendVarint(b, d.Length)
	return b, nil
}

// UnmarshalBinary decodes a descriptor encoded by MarshalBinary. Unknown
// fields are skipped so that newer publishers interoperate with older
// readers.
func (d *BufferDescriptor) UnmarshalBinary(raw []byte) error {
	*d = BufferDescriptor{}
	for len(raw) > 0 {
		num, typ, n := protowire.ConsumeTag(raw)
		if n < 0 {
			return fmt.Errorf("transport: bad descriptor tag: %w", protowire.ParseError(n))
		}
		raw = raw[n:]

		switch {
		case num == descFieldSegmentID && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(raw)
			if n < 0 {
				return fmt.Errorf("transport: bad segment id: %w", protowire.ParseError(n))
			}
			id, err := uuid.FromBytes(v)
			if err != nil {
				return fmt.Errorf("transport: bad segment id: %w", err)
			}
			d.SegmentID = id
			raw = raw[n:]
		case num == descFieldArenaName && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(raw)
			if n < 0 {
				return fmt.Errorf("transport: bad arena name: %w", protowire.ParseError(n))
			}
			d.ArenaName = v
			raw = raw[n:]
		case num == descFieldArenaSize && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(raw)
			if n < 0 {
				return fmt.Errorf("transport: bad arena size: %w", protowire.ParseError(n))
			}
			d.ArenaSize = v
			raw = raw[n:]
		case num == descFieldOffset && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(raw)
			if n < 0 {
				return fmt.Errorf("transport: bad offset: %w", protowire.ParseError(n))
			}
			d.Offset = v
			raw = raw[n:]
		case num == descFieldLength && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(raw)
			if n < 0 {
				return fmt.Errorf("transport: bad length: %w", protowire.ParseError(n))
			}
			d.Length = v
			raw = raw[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, raw)
			if n < 0 {
				return fmt.Errorf("transport: bad descriptor field %d: %w", num, protowire.ParseError(n))
			}
			raw = raw[n:]
		}
	}
	return nil
}
