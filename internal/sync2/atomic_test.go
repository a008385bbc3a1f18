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

package sync2_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lumenio/shmarena/internal/sync2"
)

func TestHighWater(t *testing.T) {
	t.Parallel()

	var hw sync2.HighWater
	assert.EqualValues(t, 0, hw.Load())

	hw.Update(10)
	assert.EqualValues(t, 10, hw.Load())

	hw.Update(5)
	assert.EqualValues(t, 10, hw.Load())

	hw.Update(11)
	assert.EqualValues(t, 11, hw.Load())

	hw.Reset()
	assert.EqualValues(t, 0, hw.Load())
}

func TestHighWaterConcurrent(t *testing.T) {
	t.Parallel()

	var hw sync2.HighWater

	const (
		workers = 8
		top     = 10_000
	)

	var wg sync.WaitGroup
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := w; i <= top; i += workers {
				hw.Update(uint64(i))
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, top, hw.Load())
}
