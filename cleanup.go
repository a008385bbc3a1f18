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
	"errors"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/lumenio/shmarena/internal/shmfile"
)

// CleanupOrphans unlinks shared regions under prefix whose owning process is
// gone. Owners unlink on [Arena.Close]; an owner that crashed first leaves
// its region behind, and nothing inside the allocator can reclaim it.
//
// The owning pid is recovered from the {prefix}{pid}_{id} name. Regions
// whose names do not parse are left alone. Returns the names that were
// removed.
func CleanupOrphans(prefix string) ([]string, error) {
	names, err := shmfile.Names(prefix)
	if err != nil {
		return nil, err
	}

	bare := strings.TrimPrefix(prefix, "/")
	var removed []string
	for _, name := range names {
		rest := strings.TrimPrefix(strings.TrimPrefix(name, "/"), bare)
		pidStr, _, ok := strings.Cut(rest, "_")
		if !ok {
			continue
		}
		pid, err := strconv.Atoi(pidStr)
		if err != nil || pid <= 0 {
			continue
		}
		// Signal 0 probes for existence without delivering anything.
		err = unix.Kill(pid, 0)
		if err == nil || errors.Is(err, unix.EPERM) {
			continue // owner still alive
		}
		if err := shmfile.Unlink(name); err == nil {
			removed = append(removed, name)
		}
	}
	return removed, nil
}
