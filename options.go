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

// Defaults used by [Arena.Initialize] when the corresponding option is not
// given.
const (
	// DefaultPoolSize is the default pool size: 64 GiB.
	DefaultPoolSize = 64 << 30

	// DefaultAlignment is the default minimum allocation alignment. It is
	// also the floor: smaller alignments are raised to it so that no two
	// allocations ever share a cache line.
	DefaultAlignment = 64

	// DefaultNamePrefix is the default prefix for shared-region names.
	DefaultNamePrefix = "/lumen_arena_"
)

type config struct {
	poolSize  uint64
	alignment uint64
	prefix    string
	hugePages bool
	prefault  bool
}

func defaultConfig() config {
	return config{
		poolSize:  DefaultPoolSize,
		alignment: DefaultAlignment,
		prefix:    DefaultNamePrefix,
		hugePages: true,
		prefault:  true,
	}
}

// Option is a configuration setting for [Arena.Initialize].
type Option struct{ apply func(*config) }

// WithPoolSize sets the requested pool size in bytes.
//
// The pool is rounded up to a large-page multiple, so the operational size
// may be larger than requested; [Arena.PoolSize] reports the rounded value.
func WithPoolSize(bytes uint64) Option {
	return Option{func(c *config) { c.poolSize = bytes }}
}

// WithAlignment sets the minimum allocation alignment. It must be a power of
// two; values below [DefaultAlignment] are raised to it.
func WithAlignment(bytes uint64) Option {
	return Option{func(c *config) { c.alignment = bytes }}
}

// WithNamePrefix sets the prefix used to construct the shared-region name.
// The full name is {prefix}{pid}_{arena id}.
func WithNamePrefix(prefix string) Option {
	return Option{func(c *config) { c.prefix = prefix }}
}

// WithHugePages sets whether the pool is backed by huge pages. If the host
// refuses the huge-page mapping, the arena downgrades to normal pages and
// logs the downgrade; it is not an error.
func WithHugePages(on bool) Option {
	return Option{func(c *config) { c.hugePages = on }}
}

// WithPrefault sets whether every page of the pool is faulted in during
// initialization. Consumers that DMA into the region from foreign devices
// must not disable this: a lazy fault under foreign DMA is fatal.
func WithPrefault(on bool) Option {
	return Option{func(c *config) { c.prefault = on }}
}
