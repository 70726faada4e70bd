// Copyright (C) 2017 Google Inc.
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

// Package crash reports panics of background goroutines before they take the
// process down.
package crash

import (
	"runtime/debug"
	"sync"
)

// Reporter is told about an uncaught panic. stack holds the formatted stack of
// the panicking goroutine.
type Reporter func(e interface{}, stack []byte)

var state struct {
	sync.Mutex
	next      int
	reporters map[int]Reporter
	reported  bool
}

// Register adds r to the reporters called on the first uncaught panic and
// returns a function that removes it again.
func Register(r Reporter) (unregister func()) {
	state.Lock()
	defer state.Unlock()
	if state.reporters == nil {
		state.reporters = map[int]Reporter{}
	}
	id := state.next
	state.next++
	state.reporters[id] = r
	return func() {
		state.Lock()
		defer state.Unlock()
		delete(state.reporters, id)
	}
}

// Go runs f on a new goroutine. A panic escaping f is reported, then
// re-raised.
func Go(f func()) {
	go func() {
		defer func() {
			if e := recover(); e != nil {
				Crash(e)
			}
		}()
		f()
	}()
}

// Crash reports e to every registered reporter and panics with e. Only the
// first crash of the process is reported.
func Crash(e interface{}) {
	stack := debug.Stack()
	state.Lock()
	first := !state.reported
	state.reported = true
	reporters := make([]Reporter, 0, len(state.reporters))
	for _, r := range state.reporters {
		reporters = append(reporters, r)
	}
	state.Unlock()
	if first {
		for _, r := range reporters {
			r(e, stack)
		}
	}
	panic(e)
}
