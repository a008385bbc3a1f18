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

package transport_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenio/shmarena"
	"github.com/lumenio/shmarena/transport"
)

func TestDefaultConfig(t *testing.T) {
	cfg := transport.DefaultConfig()
	assert.EqualValues(t, shmarena.DefaultPoolSize, cfg.PoolSizeBytes)
	assert.EqualValues(t, shmarena.DefaultAlignment, cfg.AlignmentBytes)
	require.NotNil(t, cfg.UseLargePages)
	assert.True(t, *cfg.UseLargePages)
	require.NotNil(t, cfg.PrefaultPages)
	assert.True(t, *cfg.PrefaultPages)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transport.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"pool_size_bytes: 16777216\n"+
			"alignment_bytes: 128\n"+
			"use_large_pages: false\n"), 0o600))

	cfg, err := transport.LoadConfig(path)
	require.NoError(t, err)
	assert.EqualValues(t, 16*mib, cfg.PoolSizeBytes)
	assert.EqualValues(t, 128, cfg.AlignmentBytes)
	require.NotNil(t, cfg.UseLargePages)
	assert.False(t, *cfg.UseLargePages)
	// Absent from the file: keeps the default.
	require.NotNil(t, cfg.PrefaultPages)
	assert.True(t, *cfg.PrefaultPages)
}

func TestLoadConfigMissing(t *testing.T) {
	_, err := transport.LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("SHMARENA_POOL_SIZE_BYTES", "33554432")
	t.Setenv("SHMARENA_PREFAULT_PAGES", "0")

	cfg := transport.DefaultConfig()
	cfg.FromEnv()
	assert.EqualValues(t, 32*mib, cfg.PoolSizeBytes)
	require.NotNil(t, cfg.PrefaultPages)
	assert.False(t, *cfg.PrefaultPages)
}

func TestArenaDisabled(t *testing.T) {
	assert.False(t, transport.ArenaDisabled())
	t.Setenv("DISABLE_ARENA", "1")
	assert.True(t, transport.ArenaDisabled())
}
