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

// Package soft is an in-process software implementation of the driver
// function tables.
//
// Every object lives in a dense per-type table indexed by its handle. Each
// device queue is executed by its own goroutine, in submission order, with
// semaphore waits and fence signals honoured. Surfaces record every presented
// frame so they can be inspected.
package soft

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/gapid/core/event/task"
	"github.com/google/gapid/core/vulkan/driver"
)

// GPU is a software device implementing both driver.InstanceFunctions and
// driver.DeviceFunctions.
type GPU struct {
	mutex sync.Mutex
	// changed fires whenever a fence, semaphore, queue or swapchain image changes state.
	changed task.Notifier

	instances       arena[instance]
	physicalDevices arena[physicalDevice]
	devices         arena[device]
	queues          arena[queue]
	pools           arena[commandPool]
	commandBuffers  arena[commandBuffer]
	images          arena[image]
	buffers         arena[buffer]
	memories        arena[memory]
	fences          arena[fence]
	semaphores      arena[semaphore]
	surfaces        arena[surface]
	swapchains      arena[swapchain]

	faults  map[string]*injection
	latency time.Duration
	resume  chan struct{}
	err     error
}

var (
	_ driver.InstanceFunctions = (*GPU)(nil)
	_ driver.DeviceFunctions   = (*GPU)(nil)
)

type injection struct {
	skip   int
	result driver.Result
}

// New returns an empty software GPU.
func New() *GPU {
	return &GPU{faults: map[string]*injection{}}
}

// FailOn makes the call to the named entry point that follows skip successful
// calls fail with result. The injection is removed once it has fired.
func (g *GPU) FailOn(entry string, skip int, result driver.Result) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	g.faults[entry] = &injection{skip: skip, result: result}
}

// fail must be called with the mutex held.
func (g *GPU) fail(entry string) error {
	f, ok := g.faults[entry]
	if !ok {
		return nil
	}
	if f.skip > 0 {
		f.skip--
		return nil
	}
	delete(g.faults, entry)
	return f.result
}

// SetLatency delays the execution of every queue submission by d.
func (g *GPU) SetLatency(d time.Duration) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	g.latency = d
}

// Pause stops all queues from starting new submissions until Resume is called.
func (g *GPU) Pause() {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	if g.resume == nil {
		g.resume = make(chan struct{})
	}
}

// Resume restarts the queues stopped by Pause.
func (g *GPU) Resume() {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	if g.resume != nil {
		close(g.resume)
		g.resume = nil
	}
}

// Err returns the first error raised while executing a command buffer.
func (g *GPU) Err() error {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	return g.err
}

// LiveObjects returns the number of live objects of each kind that an
// application or layer is responsible for destroying. Images and memory owned
// by swapchains are not counted.
func (g *GPU) LiveObjects() map[string]int {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	out := map[string]int{
		"surface":        g.surfaces.live(),
		"swapchain":      g.swapchains.live(),
		"commandPool":    g.pools.live(),
		"commandBuffer":  g.commandBuffers.live(),
		"buffer":         g.buffers.live(),
		"fence":          g.fences.live(),
		"semaphore":      g.semaphores.live(),
		"image":          g.images.count(func(i *image) bool { return !i.owned }),
		"memory":         g.memories.count(func(m *memory) bool { return !m.owned }),
		"device":         g.devices.live(),
		"instance":       g.instances.live(),
		"physicalDevice": g.physicalDevices.live(),
	}
	for k, v := range out {
		if v == 0 {
			delete(out, k)
		}
	}
	return out
}

// raise records the first execution error. Must be called with the mutex held.
func (g *GPU) raise(err error) {
	if g.err == nil {
		g.err = err
	}
}

func (g *GPU) raisef(format string, args ...interface{}) {
	g.raise(fmt.Errorf(format, args...))
}

// arena is a dense table of objects indexed by handle. Handles are never reused.
type arena[T any] struct {
	items []*T
	alive int
}

func (a *arena[T]) add(v *T) uint64 {
	a.items = append(a.items, v)
	a.alive++
	return uint64(len(a.items))
}

func (a *arena[T]) get(h uint64) *T {
	if h == 0 || h > uint64(len(a.items)) {
		return nil
	}
	return a.items[h-1]
}

func (a *arena[T]) remove(h uint64) *T {
	v := a.get(h)
	if v != nil {
		a.items[h-1] = nil
		a.alive--
	}
	return v
}

func (a *arena[T]) live() int { return a.alive }

func (a *arena[T]) count(pred func(*T) bool) int {
	n := 0
	for _, v := range a.items {
		if v != nil && pred(v) {
			n++
		}
	}
	return n
}
