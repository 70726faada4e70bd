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

package virtualswapchain

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/google/gapid/core/event/task"
	"github.com/google/gapid/core/vulkan/driver"
)

type slotState int

const (
	slotFree slotState = iota
	slotAcquired
	// slotPresenting is an acquired slot whose copy is being submitted.
	slotPresenting
	slotPending
)

// pool tracks which slots of a swapchain are free, owned by the application
// or waiting for their copy to complete. Every slot is in exactly one of the
// three sets.
type pool struct {
	mutex    sync.Mutex
	states   []slotState
	free     []uint32
	pending  []uint32
	inflight int
	closing  bool

	freed  task.Notifier
	queued chan struct{}
	closed task.Signal
	close  task.Task
}

func newPool(count int) *pool {
	p := &pool{
		states: make([]slotState, count),
		free:   make([]uint32, count),
		queued: make(chan struct{}, 1),
	}
	for i := range p.free {
		p.free[i] = uint32(i)
	}
	p.closed, p.close = task.NewSignal()
	p.close = task.Once(p.close)
	return p
}

// acquire takes a free slot. In pinned mode only preferred is taken.
// A timeout of 0 never blocks and math.MaxUint64 waits forever.
func (p *pool) acquire(ctx context.Context, timeout uint64, pinned bool, preferred uint32) (uint32, error) {
	if pinned && int(preferred) >= len(p.states) {
		return 0, ErrInvalidIndex
	}
	var deadline time.Time
	if timeout != math.MaxUint64 && timeout <= math.MaxInt64 {
		deadline = time.Now().Add(time.Duration(timeout))
	}
	for {
		p.mutex.Lock()
		if p.closing {
			p.mutex.Unlock()
			return 0, ErrClosed
		}
		if index, ok := p.take(pinned, preferred); ok {
			p.mutex.Unlock()
			return index, nil
		}
		freed := p.freed.Signal()
		p.mutex.Unlock()

		switch {
		case timeout == 0:
			return 0, driver.NotReady
		case deadline.IsZero():
			if !freed.Wait(ctx) {
				return 0, task.StopReason(ctx)
			}
		default:
			remaining := time.Until(deadline)
			if remaining <= 0 || !freed.TryWait(ctx, remaining) {
				if task.Stopped(ctx) {
					return 0, task.StopReason(ctx)
				}
				if time.Now().Before(deadline) {
					continue
				}
				// The slot may have been freed as the timer fired.
				p.mutex.Lock()
				index, ok := p.take(pinned, preferred)
				p.mutex.Unlock()
				if ok {
					return index, nil
				}
				return 0, driver.Timeout
			}
		}
	}
}

// take must be called with the mutex held.
func (p *pool) take(pinned bool, preferred uint32) (uint32, bool) {
	for i, index := range p.free {
		if pinned && index != preferred {
			continue
		}
		p.free = append(p.free[:i], p.free[i+1:]...)
		p.states[index] = slotAcquired
		return index, true
	}
	return 0, false
}

// release returns an acquired slot to the free list.
func (p *pool) release(index uint32) {
	p.mutex.Lock()
	if int(index) < len(p.states) && p.states[index] == slotAcquired {
		p.states[index] = slotFree
		p.free = append(p.free, index)
	}
	p.mutex.Unlock()
	p.freed.Notify()
}

// beginPresent marks an acquired slot as being presented. Every successful
// call must be matched by endPresent.
func (p *pool) beginPresent(index uint32) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	switch {
	case p.closing:
		return ErrClosed
	case int(index) >= len(p.states):
		return ErrInvalidIndex
	case p.states[index] != slotAcquired:
		return ErrNotAcquired
	}
	p.states[index] = slotPresenting
	p.inflight++
	return nil
}

// endPresent queues the slot for copy-back if submitted, or hands it back to
// the application otherwise.
func (p *pool) endPresent(index uint32, submitted bool) {
	p.mutex.Lock()
	p.inflight--
	if submitted {
		p.states[index] = slotPending
		p.pending = append(p.pending, index)
	} else {
		p.states[index] = slotAcquired
	}
	p.mutex.Unlock()
	p.wake()
}

func (p *pool) wake() {
	select {
	case p.queued <- struct{}{}:
	default:
	}
}

// next returns the oldest pending slot. done is true once the pool is closing
// and nothing is left to copy back.
func (p *pool) next() (index uint32, ok, done bool) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if len(p.pending) > 0 {
		return p.pending[0], true, false
	}
	return 0, false, p.closing && p.inflight == 0
}

// idle blocks until new work is queued, the pool starts closing or the
// timeout elapses.
func (p *pool) idle(timeout time.Duration) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	var closed task.Signal
	if !p.isClosing() {
		closed = p.closed
	}
	select {
	case <-p.queued:
	case <-closed:
	case <-t.C:
	}
}

// recycle moves the oldest pending slot back to the free list.
func (p *pool) recycle(index uint32) {
	p.mutex.Lock()
	if len(p.pending) > 0 && p.pending[0] == index {
		p.pending = p.pending[1:]
		p.states[index] = slotFree
		p.free = append(p.free, index)
	}
	p.mutex.Unlock()
	p.freed.Notify()
}

func (p *pool) isClosing() bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.closing
}

// shutdown stops new acquisitions and presents and wakes every waiter.
func (p *pool) shutdown(ctx context.Context) {
	p.mutex.Lock()
	p.closing = true
	p.mutex.Unlock()
	p.close(ctx)
	p.freed.Notify()
}

// snapshot returns the indices of the free, acquired and pending
// slots. Slots being presented count as acquired.
func (p *pool) snapshot() (free, acquired, pending []uint32) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	for i, s := range p.states {
		switch s {
		case slotFree:
			free = append(free, uint32(i))
		case slotAcquired, slotPresenting:
			acquired = append(acquired, uint32(i))
		case slotPending:
			pending = append(pending, uint32(i))
		}
	}
	return free, acquired, pending
}
