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

package soft

import (
	"math"
	"time"

	"github.com/google/gapid/core/app/crash"
	"github.com/google/gapid/core/vulkan/driver"
)

type device struct {
	physicalDevice driver.PhysicalDevice
	queues         map[[2]uint32]driver.Queue
	stop           chan struct{}
}

type queue struct {
	device    driver.Device
	family    uint32
	pending   []*submission
	wake      chan struct{}
	submitted uint64
	completed uint64
}

type submission struct {
	waits          []driver.Semaphore
	commandBuffers []driver.CommandBuffer
	signals        []driver.Semaphore
	fence          driver.Fence
	presents       []presentOp
}

type fence struct {
	device   driver.Device
	signaled bool
}

// semaphore counts pending signals, so a signal may precede its wait.
type semaphore struct {
	device driver.Device
	count  int
}

// CreateDevice creates a device on pd with every queue of every family, and
// starts the queue executors.
func (g *GPU) CreateDevice(pd driver.PhysicalDevice) (driver.Device, error) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	if err := g.fail("CreateDevice"); err != nil {
		return 0, err
	}
	if g.physicalDevices.get(uint64(pd)) == nil {
		return 0, driver.ErrorInitializationFailed
	}
	d := &device{physicalDevice: pd, queues: map[[2]uint32]driver.Queue{}, stop: make(chan struct{})}
	h := driver.Device(g.devices.add(d))
	for family, props := range queueFamilies {
		for index := uint32(0); index < props.Count; index++ {
			q := &queue{device: h, family: uint32(family), wake: make(chan struct{}, 1)}
			d.queues[[2]uint32{uint32(family), index}] = driver.Queue(g.queues.add(q))
			stop := d.stop
			crash.Go(func() { g.execute(q, stop) })
		}
	}
	return h, nil
}

// DestroyDevice implements driver.DeviceFunctions. Queue executors stop
// after their current submission.
func (g *GPU) DestroyDevice(h driver.Device) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	d := g.devices.remove(uint64(h))
	if d == nil {
		return
	}
	for _, q := range d.queues {
		g.queues.remove(uint64(q))
	}
	close(d.stop)
}

// GetDeviceQueue implements driver.DeviceFunctions.
func (g *GPU) GetDeviceQueue(h driver.Device, family, index uint32) driver.Queue {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	if d := g.devices.get(uint64(h)); d != nil {
		return d.queues[[2]uint32{family, index}]
	}
	return 0
}

// DeviceWaitIdle implements driver.DeviceFunctions.
func (g *GPU) DeviceWaitIdle(h driver.Device) error {
	g.mutex.Lock()
	d := g.devices.get(uint64(h))
	if d == nil {
		g.mutex.Unlock()
		return driver.ErrorDeviceLost
	}
	queues := make([]driver.Queue, 0, len(d.queues))
	for _, q := range d.queues {
		queues = append(queues, q)
	}
	g.mutex.Unlock()
	for _, q := range queues {
		if err := g.QueueWaitIdle(q); err != nil {
			return err
		}
	}
	return nil
}

// QueueSubmit implements driver.DeviceFunctions. An empty submit list with a
// fence signals the fence once all earlier work on the queue has completed.
func (g *GPU) QueueSubmit(h driver.Queue, submits []driver.SubmitInfo, f driver.Fence) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	if err := g.fail("QueueSubmit"); err != nil {
		return err
	}
	q := g.queues.get(uint64(h))
	if q == nil {
		return driver.ErrorDeviceLost
	}
	if f != 0 {
		fe := g.fences.get(uint64(f))
		if fe == nil || fe.signaled {
			return driver.ErrorInitializationFailed
		}
	}
	work := make([]*submission, 0, len(submits)+1)
	for _, s := range submits {
		for _, cb := range s.CommandBuffers {
			c := g.commandBuffers.get(uint64(cb))
			if c == nil || c.recording {
				return driver.ErrorInitializationFailed
			}
		}
		work = append(work, &submission{
			waits:          append([]driver.Semaphore{}, s.WaitSemaphores...),
			commandBuffers: append([]driver.CommandBuffer{}, s.CommandBuffers...),
			signals:        append([]driver.Semaphore{}, s.SignalSemaphores...),
		})
	}
	if f != 0 {
		if len(work) == 0 {
			work = append(work, &submission{})
		}
		work[len(work)-1].fence = f
	}
	g.enqueue(q, work...)
	return nil
}

// enqueue must be called with the mutex held.
func (g *GPU) enqueue(q *queue, work ...*submission) {
	if len(work) == 0 {
		return
	}
	q.pending = append(q.pending, work...)
	q.submitted += uint64(len(work))
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// QueueWaitIdle implements driver.DeviceFunctions.
func (g *GPU) QueueWaitIdle(h driver.Queue) error {
	g.mutex.Lock()
	q := g.queues.get(uint64(h))
	if q == nil {
		g.mutex.Unlock()
		return driver.ErrorDeviceLost
	}
	target := q.submitted
	g.mutex.Unlock()
	for {
		g.mutex.Lock()
		done := q.completed >= target
		changed := g.changed.Signal()
		g.mutex.Unlock()
		if done {
			return nil
		}
		<-changed
	}
}

// execute runs the submissions of q in order until stop is closed.
func (g *GPU) execute(q *queue, stop chan struct{}) {
	for {
		g.mutex.Lock()
		var s *submission
		if len(q.pending) > 0 {
			s = q.pending[0]
			q.pending = q.pending[1:]
		}
		g.mutex.Unlock()
		if s == nil {
			select {
			case <-q.wake:
				continue
			case <-stop:
				return
			}
		}
		for _, w := range s.waits {
			if !g.consume(w, stop) {
				return
			}
		}
		if !g.waitResumed(stop) {
			return
		}
		g.mutex.Lock()
		latency := g.latency
		g.mutex.Unlock()
		if latency > 0 {
			time.Sleep(latency)
		}
		g.mutex.Lock()
		for _, cb := range s.commandBuffers {
			g.run(cb)
		}
		for _, p := range s.presents {
			g.present(p)
		}
		for _, sig := range s.signals {
			if sem := g.semaphores.get(uint64(sig)); sem != nil {
				sem.count++
			}
		}
		if fe := g.fences.get(uint64(s.fence)); fe != nil {
			fe.signaled = true
		}
		q.completed++
		g.mutex.Unlock()
		g.changed.Notify()
	}
}

// consume blocks until the semaphore has a pending signal and takes it.
func (g *GPU) consume(h driver.Semaphore, stop chan struct{}) bool {
	for {
		g.mutex.Lock()
		sem := g.semaphores.get(uint64(h))
		if sem == nil || sem.count > 0 {
			if sem != nil {
				sem.count--
			}
			g.mutex.Unlock()
			return true
		}
		changed := g.changed.Signal()
		g.mutex.Unlock()
		select {
		case <-changed:
		case <-stop:
			return false
		}
	}
}

func (g *GPU) waitResumed(stop chan struct{}) bool {
	g.mutex.Lock()
	resume := g.resume
	g.mutex.Unlock()
	if resume == nil {
		return true
	}
	select {
	case <-resume:
		return true
	case <-stop:
		return false
	}
}

// waitUntil blocks until ready returns true, or the timeout in nanoseconds
// expires. ready is called with the mutex held.
func (g *GPU) waitUntil(timeout uint64, ready func() (bool, error)) error {
	if timeout > math.MaxInt64 {
		timeout = driver.MaxTimeout
	}
	var deadline time.Time
	if timeout != driver.MaxTimeout {
		deadline = time.Now().Add(time.Duration(timeout))
	}
	for {
		g.mutex.Lock()
		ok, err := ready()
		changed := g.changed.Signal()
		g.mutex.Unlock()
		switch {
		case err != nil:
			return err
		case ok:
			return nil
		case timeout == 0:
			return driver.Timeout
		case timeout == driver.MaxTimeout:
			<-changed
			continue
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return driver.Timeout
		}
		t := time.NewTimer(remaining)
		select {
		case <-changed:
		case <-t.C:
		}
		t.Stop()
	}
}

// CreateFence implements driver.DeviceFunctions.
func (g *GPU) CreateFence(d driver.Device, signaled bool) (driver.Fence, error) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	if err := g.fail("CreateFence"); err != nil {
		return 0, err
	}
	return driver.Fence(g.fences.add(&fence{device: d, signaled: signaled})), nil
}

// DestroyFence implements driver.DeviceFunctions.
func (g *GPU) DestroyFence(_ driver.Device, f driver.Fence) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	g.fences.remove(uint64(f))
}

// WaitForFences implements driver.DeviceFunctions.
func (g *GPU) WaitForFences(_ driver.Device, fences []driver.Fence, waitAll bool, timeout uint64) error {
	g.mutex.Lock()
	err := g.fail("WaitForFences")
	g.mutex.Unlock()
	if err != nil {
		return err
	}
	return g.waitUntil(timeout, func() (bool, error) {
		some, all := false, true
		for _, h := range fences {
			f := g.fences.get(uint64(h))
			if f == nil {
				return false, driver.ErrorDeviceLost
			}
			some = some || f.signaled
			all = all && f.signaled
		}
		if waitAll {
			return all, nil
		}
		return some, nil
	})
}

// ResetFences implements driver.DeviceFunctions.
func (g *GPU) ResetFences(_ driver.Device, fences []driver.Fence) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	for _, h := range fences {
		f := g.fences.get(uint64(h))
		if f == nil {
			return driver.ErrorDeviceLost
		}
		f.signaled = false
	}
	return nil
}

// GetFenceStatus implements driver.DeviceFunctions.
func (g *GPU) GetFenceStatus(_ driver.Device, h driver.Fence) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	f := g.fences.get(uint64(h))
	switch {
	case f == nil:
		return driver.ErrorDeviceLost
	case f.signaled:
		return nil
	default:
		return driver.NotReady
	}
}

// CreateSemaphore implements driver.DeviceFunctions.
func (g *GPU) CreateSemaphore(d driver.Device) (driver.Semaphore, error) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	if err := g.fail("CreateSemaphore"); err != nil {
		return 0, err
	}
	return driver.Semaphore(g.semaphores.add(&semaphore{device: d})), nil
}

// DestroySemaphore implements driver.DeviceFunctions.
func (g *GPU) DestroySemaphore(_ driver.Device, s driver.Semaphore) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	g.semaphores.remove(uint64(s))
}
