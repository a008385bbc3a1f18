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
	"slices"
	"sync"
)

// Registry is a directory of arenas keyed by name, so that multiple
// subsystems within one process share a single mapping per name.
//
// The registry's mutex covers only map mutation; the handles it returns are
// independently thread-safe. Dropping a name from the registry does not tear
// the arena down: the arena lives for as long as any holder keeps its
// handle.
type Registry struct {
	mu     sync.Mutex
	arenas map[string]*Arena
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{arenas: make(map[string]*Arena)}
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// DefaultRegistry returns the process-wide registry, creating it on first
// use.
func DefaultRegistry() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// GetOrCreate returns the arena registered under name, creating an owner
// arena with the given options if none is.
func (r *Registry) GetOrCreate(name string, opts ...Option) (*Arena, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if a, ok := r.arenas[name]; ok {
		return a, nil
	}
	a, err := New(opts...)
	if err != nil {
		return nil, err
	}
	r.arenas[name] = a
	return a, nil
}

// Attach returns the arena registered under name, attaching to the existing
// shared region of that name if none is. The registry key is the region
// name, so repeated attaches to one region share a single mapping.
func (r *Registry) Attach(name string, expectedSize uint64) (*Arena, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if a, ok := r.arenas[name]; ok {
		return a, nil
	}
	a := new(Arena)
	if err := a.Attach(name, expectedSize); err != nil {
		return nil, err
	}
	r.arenas[name] = a
	return a, nil
}

// Remove drops the registry's reference to name. The arena itself survives
// until every handle holder is done with it.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.arenas, name)
}

// Names returns a sorted snapshot of the currently registered names.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.arenas))
	for name := range r.arenas {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
