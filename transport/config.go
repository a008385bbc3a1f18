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
	"strconv"

	"github.com/xyproto/env/v2"
	"gopkg.in/yaml.v3"

	"github.com/lumenio/shmarena"
)

// Config carries the adapter-observable settings. The zero value of any
// field means "use the default".
type Config struct {
	// PoolSizeBytes is the local arena's pool size. Default 64 GiB.
	PoolSizeBytes uint64 `yaml:"pool_size_bytes"`
	// AlignmentBytes is the minimum allocation alignment. Default 64.
	AlignmentBytes uint64 `yaml:"alignment_bytes"`
	// UseLargePages backs the pool with huge pages. Default true; a refused
	// huge-page mapping downgrades with a log, it does not fail.
	UseLargePages *bool `yaml:"use_large_pages"`
	// PrefaultPages faults every pool page in at install time. Default
	// true. Required whenever foreign devices DMA into the region.
	PrefaultPages *bool `yaml:"prefault_pages"`
	// NamePrefix is the prefix for the arena's shared-region name.
	NamePrefix string `yaml:"name_prefix"`
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	largePages, prefault := true, true
	return Config{
		PoolSizeBytes:  shmarena.DefaultPoolSize,
		AlignmentBytes: shmarena.DefaultAlignment,
		UseLargePages:  &largePages,
		PrefaultPages:  &prefault,
		NamePrefix:     shmarena.DefaultNamePrefix,
	}
}

// LoadConfig reads a YAML config file and applies environment overrides on
// top of it. Fields absent from the file keep their defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("transport: read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("transport: parse config: %w", err)
	}
	cfg.FromEnv()
	return cfg, nil
}

// FromEnv applies SHMARENA_* environment overrides to this config.
func (c *Config) FromEnv() {
	// env caches the environment; reload it so changes made since process
	// start are seen.
	env.Load()
	if s := env.Str("SHMARENA_POOL_SIZE_BYTES"); s != "" {
		if n, err := strconv.ParseUint(s, 10, 64); err == nil {
			c.PoolSizeBytes = n
		}
	}
	if s := env.Str("SHMARENA_ALIGNMENT_BYTES"); s != "" {
		if n, err := strconv.ParseUint(s, 10, 64); err == nil {
			c.AlignmentBytes = n
		}
	}
	if env.Has("SHMARENA_USE_LARGE_PAGES") {
		b := env.Bool("SHMARENA_USE_LARGE_PAGES")
		c.UseLargePages = &b
	}
	if env.Has("SHMARENA_PREFAULT_PAGES") {
		b := env.Bool("SHMARENA_PREFAULT_PAGES")
		c.PrefaultPages = &b
	}
}

func (c *Config) fillDefaults() {
	d := DefaultConfig()
	if c.PoolSizeBytes == 0 {
		c.PoolSizeBytes = d.PoolSizeBytes
	}
	if c.AlignmentBytes == 0 {
		c.AlignmentBytes = d.AlignmentBytes
	}
	if c.UseLargePages == nil {
		c.UseLargePages = d.UseLargePages
	}
	if c.PrefaultPages == nil {
		c.PrefaultPages = d.PrefaultPages
	}
	if c.NamePrefix == "" {
		c.NamePrefix = d.NamePrefix
	}
}

// ArenaDisabled reports whether the DISABLE_ARENA escape hatch is set. When
// it is, the adapter falls back to one private mapping per buffer.
func ArenaDisabled() bool {
	env.Load()
	return env.Bool("DISABLE_ARENA")
}
