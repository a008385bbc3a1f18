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

//go:build debug

// Package debug includes debugging helpers.
package debug

import (
	"flag"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/timandy/routine"
)

// Enabled is true if the allocator is being built with the debug tag, which
// enables various debugging features.
const Enabled = true

var (
	debugPattern *regexp.Regexp
	nocapture    = flag.Bool("shmarena.nocapture", false, "disables capturing debug logs as test logs")
)

func init() {
	flag.Func("shmarena.filter", "regexp to filter debug logs by", func(s string) (err error) {
		debugPattern, err = regexp.Compile(s)
		return err
	})
}

// Logf prints one diagnostic record for an arena operation.
//
// Every record carries the goroutine that performed the operation plus the
// arena identity it ran against: arenaID is the process-unique id (0 when no
// arena is involved yet) and region is the shared-region name ("" when the
// operation never reached one). op names the operation; format/args are the
// per-operation detail.
//
// Records go to stderr, or to the captured testing.TB installed by
// [WithTesting].
func Logf(arenaID uint64, region, op, format string, args ...any) {
	buf := new(strings.Builder)

	_, _ = fmt.Fprintf(buf, "g%04d", routine.Goid())
	if arenaID != 0 {
		_, _ = fmt.Fprintf(buf, " arena=%d", arenaID)
	}
	if region != "" {
		_, _ = fmt.Fprintf(buf, " region=%s", region)
	}
	_, _ = fmt.Fprintf(buf, " %s: ", op)
	_, _ = fmt.Fprintf(buf, format, args...)

	if debugPattern != nil && !debugPattern.MatchString(buf.String()) {
		return
	}

	t := tls.Get()
	if !*nocapture && t != nil {
		t.Log(buf.String())
		return
	}

	_, _ = buf.Write([]byte{'\n'})
	_, _ = os.Stderr.WriteString(buf.String())
	_ = os.Stderr.Sync()
}
