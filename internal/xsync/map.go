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

// Package xsync contains typed wrappers over sync types.
package xsync

import "sync"

// Map is a typed handle map over sync.Map, shaped for the transport
// adapter's bookkeeping: descriptors and allocation handles are written once
// at registration, looked up lock-free on the hot path, and taken out in one
// step on free. It deliberately exposes no load-or-store upsert; every key
// is produced by exactly one writer.
type Map[K comparable, V any] struct {
	impl sync.Map
}

// Load returns the value recorded under k, if any.
func (m *Map[K, V]) Load(k K) (V, bool) {
	v, ok := m.impl.Load(k)
	if !ok {
		var z V
		return z, false
	}
	return v.(V), true //nolint:errcheck
}

// Store records v under k, replacing any previous record.
func (m *Map[K, V]) Store(k K, v V) {
	m.impl.Store(k, v)
}

// LoadAndDelete takes the record for k out of the map and returns it.
//
// Take-out is atomic: when two frees race on one handle, exactly one of them
// sees loaded == true and owns the teardown.
func (m *Map[K, V]) LoadAndDelete(k K) (V, bool) {
	v, loaded := m.impl.LoadAndDelete(k)
	if !loaded {
		var z V
		return z, false
	}
	return v.(V), true //nolint:errcheck
}

// Clear drops every record. Used on uninstall, after which the map is ready
// for reuse.
func (m *Map[K, V]) Clear() {
	m.impl.Clear()
}
