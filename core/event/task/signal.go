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

package task

import (
	"context"
	"sync"
	"time"
)

// Signal is closed, never sent to, to announce that something happened.
type Signal <-chan struct{}

// NewSignal returns an unfired signal and the Task that fires it. The Task
// must be called at most once.
func NewSignal() (Signal, Task) {
	c := make(chan struct{})
	return c, func(context.Context) error { close(c); return nil }
}

// Fired reports whether s has fired, without blocking.
func (s Signal) Fired() bool {
	select {
	case <-s:
		return true
	default:
		return false
	}
}

// Wait blocks until s fires or ctx stops, and reports whether s fired.
func (s Signal) Wait(ctx context.Context) bool {
	select {
	case <-s:
		return true
	case <-ShouldStop(ctx):
		return false
	}
}

// TryWait is Wait bounded by timeout. A non-positive timeout polls.
func (s Signal) TryWait(ctx context.Context, timeout time.Duration) bool {
	if timeout <= 0 {
		return s.Fired()
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-s:
		return true
	case <-ShouldStop(ctx):
		return false
	case <-t.C:
		return false
	}
}

// Notifier hands out signals that all fire on the next call to Notify.
// Each Notify re-arms the notifier, so a waiter that wants to observe a later
// change must fetch a fresh signal with Signal.
// The zero value is ready to use.
type Notifier struct {
	mutex sync.Mutex
	c     chan struct{}
}

// Signal returns the signal that fires on the next call to Notify.
func (n *Notifier) Signal() Signal {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	if n.c == nil {
		n.c = make(chan struct{})
	}
	return n.c
}

// Notify fires every signal handed out since the previous Notify.
func (n *Notifier) Notify() {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	if n.c != nil {
		close(n.c)
		n.c = nil
	}
}
