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

package shmarena_test

import (
	"fmt"

	"github.com/lumenio/shmarena"
)

// The owner carves a buffer out of its pool and publishes (name, offset);
// the attacher maps the same region and reads the bytes back through pure
// offset arithmetic.
func Example() {
	owner, err := shmarena.New(shmarena.WithPoolSize(2 << 20))
	if err != nil {
		panic(err)
	}
	defer owner.Close()

	al, err := owner.Alloc(16)
	if err != nil {
		panic(err)
	}
	copy(al.Bytes(), "hello, attacher")

	// Normally this happens in another process; the region's name and size
	// travel through the control plane.
	attacher := new(shmarena.Arena)
	if err := attacher.Attach(owner.Name(), owner.PoolSize()); err != nil {
		panic(err)
	}
	defer attacher.Close()

	p, err := attacher.TranslateOffset(al.Offset, al.Size)
	if err != nil {
		panic(err)
	}
	fmt.Println(string(al.Bytes()[:15]), "==", string((*[15]byte)(p)[:]))

	// Output: hello, attacher == hello, attacher
}
