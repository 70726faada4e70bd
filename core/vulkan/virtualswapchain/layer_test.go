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
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/gapid/core/assert"
	"github.com/google/gapid/core/vulkan/driver"
	"github.com/google/gapid/core/vulkan/registry"
	"golang.org/x/sync/errgroup"
)

func TestVirtualSurfaceQueries(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	defer f.close()
	surface, err := f.layer.CreateVirtualSurface(f.ctx, f.inst, VirtualSurfaceInfo{})
	assert.For(f.ctx, "create").ThatError(err).Succeeded()
	assert.For(f.ctx, "handle").ThatBoolean(uint64(surface) >= virtualHandleBase).IsTrue()

	for family := uint32(0); family < 2; family++ {
		ok, err := f.layer.GetPhysicalDeviceSurfaceSupport(f.pd, family, surface)
		assert.For(f.ctx, "support %d", family).ThatError(err).Succeeded()
		assert.For(f.ctx, "supported %d", family).ThatBoolean(ok).IsTrue()
	}
	caps, err := f.layer.GetPhysicalDeviceSurfaceCapabilities(f.pd, surface)
	assert.For(f.ctx, "capabilities").ThatError(err).Succeeded()
	assert.For(f.ctx, "min images").That(caps.MinImageCount).Equals(uint32(1))
	assert.For(f.ctx, "max images").That(caps.MaxImageCount).Equals(uint32(0))
	assert.For(f.ctx, "current extent").That(caps.CurrentExtent).Equals(
		driver.Extent2D{Width: driver.UndefinedExtent, Height: driver.UndefinedExtent})

	formats, err := f.layer.GetPhysicalDeviceSurfaceFormats(f.pd, surface)
	assert.For(f.ctx, "formats").ThatError(err).Succeeded()
	assert.For(f.ctx, "formats").ThatSlice(formats).Equals(virtualFormats)
	modes, err := f.layer.GetPhysicalDeviceSurfacePresentModes(f.pd, surface)
	assert.For(f.ctx, "modes").ThatError(err).Succeeded()
	assert.For(f.ctx, "modes").ThatSlice(modes).Equals([]driver.PresentMode{
		driver.PresentModeFIFO, driver.PresentModeMailbox, driver.PresentModeImmediate,
	})

	assert.For(f.ctx, "destroy").ThatError(f.layer.DestroySurface(f.inst, surface)).Succeeded()
	assert.For(f.ctx, "forgotten").That(f.layer.surface(surface)).IsNil()

	_, err = f.layer.CreateVirtualSurface(f.ctx, driver.Instance(77), VirtualSurfaceInfo{})
	assert.For(f.ctx, "unknown instance").ThatError(err).HasCause(registry.ErrNotRegistered)
}

func TestDriverSurfacePassThrough(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	defer f.close()
	surface, err := f.gpu.CreateSurface(f.inst, &driver.SurfaceCreateInfo{Extent: extent64})
	assert.For(f.ctx, "create").ThatError(err).Succeeded()

	ok, err := f.layer.GetPhysicalDeviceSurfaceSupport(f.pd, 1, surface)
	assert.For(f.ctx, "support").ThatError(err).Succeeded()
	assert.For(f.ctx, "transfer family").ThatBoolean(ok).IsFalse()
	caps, err := f.layer.GetPhysicalDeviceSurfaceCapabilities(f.pd, surface)
	assert.For(f.ctx, "capabilities").ThatError(err).Succeeded()
	assert.For(f.ctx, "current extent").That(caps.CurrentExtent).Equals(extent64)

	sc, err := f.layer.CreateSwapchain(f.ctx, f.dev, &driver.SwapchainCreateInfo{
		Surface:       surface,
		MinImageCount: 2,
		Format:        driver.FormatB8G8R8A8Unorm,
		Extent:        extent64,
		Usage:         driver.ImageUsageTransferDst,
	})
	assert.For(f.ctx, "swapchain").ThatError(err).Succeeded()
	assert.For(f.ctx, "not virtual").That(f.layer.Swapchain(sc)).IsNil()
	images, err := f.layer.GetSwapchainImages(f.dev, sc)
	assert.For(f.ctx, "images").ThatError(err).Succeeded()
	assert.For(f.ctx, "image count").ThatSlice(images).IsLength(2)

	index, err := f.layer.AcquireNextImage(f.ctx, f.dev, sc, driver.AcquireInfo{Timeout: math.MaxUint64})
	assert.For(f.ctx, "acquire").ThatError(err).Succeeded()
	info := &driver.PresentInfo{
		Swapchains:   []driver.Swapchain{sc},
		ImageIndices: []uint32{index},
		Results:      make([]driver.Result, 1),
	}
	assert.For(f.ctx, "present").ThatError(f.layer.QueuePresent(f.ctx, f.queue, info)).Succeeded()
	assert.For(f.ctx, "result").That(info.Results[0]).Equals(driver.Success)
	assert.For(f.ctx, "idle").ThatError(f.gpu.QueueWaitIdle(f.queue)).Succeeded()
	assert.For(f.ctx, "shown").ThatSlice(f.gpu.Frames(surface)).IsLength(1)

	assert.For(f.ctx, "destroy swapchain").ThatError(f.layer.DestroySwapchain(f.ctx, f.dev, sc)).Succeeded()
	assert.For(f.ctx, "destroy surface").ThatError(f.layer.DestroySurface(f.inst, surface)).Succeeded()
	assert.For(f.ctx, "surface gone").That(f.gpu.LiveObjects()["surface"]).Equals(0)
}

func TestMixedPresent(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	defer f.close()
	virtual := f.createSwapchain(2, extent64, 1, VirtualSurfaceInfo{})
	var got frames
	virtual.SetCallback(got.callback, nil)
	surface, _ := f.gpu.CreateSurface(f.inst, &driver.SurfaceCreateInfo{})
	native, err := f.layer.CreateSwapchain(f.ctx, f.dev, &driver.SwapchainCreateInfo{
		Surface:       surface,
		MinImageCount: 2,
		Format:        driver.FormatB8G8R8A8Unorm,
		Extent:        extent64,
	})
	assert.For(f.ctx, "real swapchain").ThatError(err).Succeeded()

	vi, _ := f.acquire(virtual, 0)
	ri, _ := f.layer.AcquireNextImage(f.ctx, f.dev, native, driver.AcquireInfo{Timeout: 0})
	info := &driver.PresentInfo{
		Swapchains:   []driver.Swapchain{virtual.Handle(), native, virtual.Handle()},
		ImageIndices: []uint32{vi, ri, 1 - vi},
		Results:      make([]driver.Result, 3),
	}
	err = f.layer.QueuePresent(f.ctx, f.queue, info)
	assert.For(f.ctx, "first failure").ThatError(err).Equals(ErrNotAcquired)
	assert.For(f.ctx, "results").ThatSlice(info.Results).Equals([]driver.Result{
		driver.Success, driver.Success, driver.ErrorOutOfDate,
	})
	assert.For(f.ctx, "destroy").ThatError(f.layer.DestroySwapchain(f.ctx, f.dev, virtual.Handle())).Succeeded()
	assert.For(f.ctx, "virtual frames").ThatSlice(got.get()).IsLength(1)
	f.layer.DestroySwapchain(f.ctx, f.dev, native)
	f.layer.DestroySurface(f.inst, surface)
}

func TestPresentWaitsSurviveEarlierFailure(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	defer f.close()
	unacquired := f.createSwapchain(2, extent64, 1, VirtualSurfaceInfo{})
	sc := f.createSwapchain(2, extent64, 1, VirtualSurfaceInfo{})
	var got frames
	sc.SetCallback(got.callback, nil)
	index, err := f.acquire(sc, 0)
	assert.For(f.ctx, "acquire").ThatError(err).Succeeded()

	rendered, err := f.gpu.CreateSemaphore(f.dev)
	assert.For(f.ctx, "semaphore").ThatError(err).Succeeded()
	info := &driver.PresentInfo{
		WaitSemaphores: []driver.Semaphore{rendered},
		Swapchains:     []driver.Swapchain{unacquired.Handle(), sc.Handle()},
		ImageIndices:   []uint32{0, index},
		Results:        make([]driver.Result, 2),
	}
	err = f.layer.QueuePresent(f.ctx, f.queue, info)
	assert.For(f.ctx, "first failure").ThatError(err).Equals(ErrNotAcquired)
	assert.For(f.ctx, "results").ThatSlice(info.Results).Equals([]driver.Result{
		driver.ErrorOutOfDate, driver.Success,
	})

	time.Sleep(ExpectBlocking)
	assert.For(f.ctx, "copied before render").ThatSlice(got.get()).IsEmpty()

	// Acquiring from a driver swapchain signals the semaphore from the host.
	surface, err := f.gpu.CreateSurface(f.inst, &driver.SurfaceCreateInfo{})
	assert.For(f.ctx, "surface").ThatError(err).Succeeded()
	native, err := f.gpu.CreateSwapchain(f.dev, &driver.SwapchainCreateInfo{
		Surface:       surface,
		MinImageCount: 2,
		Format:        driver.FormatR8G8B8A8Unorm,
		Extent:        extent64,
	})
	assert.For(f.ctx, "native swapchain").ThatError(err).Succeeded()
	_, err = f.gpu.AcquireNextImage(f.dev, native, 0, rendered, 0)
	assert.For(f.ctx, "signal").ThatError(err).Succeeded()
	f.eventually("copy after render", func() bool { return len(got.get()) == 1 })

	assert.For(f.ctx, "destroy").ThatError(f.layer.DestroySwapchain(f.ctx, f.dev, sc.Handle())).Succeeded()
	assert.For(f.ctx, "destroy unacquired").ThatError(f.layer.DestroySwapchain(f.ctx, f.dev, unacquired.Handle())).Succeeded()
	f.gpu.DestroySwapchain(f.dev, native)
	f.gpu.DestroySurface(f.inst, surface)
	f.gpu.DestroySemaphore(f.dev, rendered)
}

func TestUnregisteredHandles(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	defer f.close()
	_, err := f.layer.GetDeviceQueue(driver.Device(99), 0, 0)
	assert.For(f.ctx, "device").ThatError(err).HasCause(registry.ErrNotRegistered)
	err = f.layer.QueueSubmit(f.ctx, driver.Queue(99), nil, 0)
	assert.For(f.ctx, "queue").ThatError(err).HasCause(registry.ErrNotRegistered)
	err = f.layer.QueueSubmit(f.ctx, f.queue, []driver.SubmitInfo{{CommandBuffers: []driver.CommandBuffer{99}}}, 0)
	assert.For(f.ctx, "command buffer").ThatError(err).HasCause(registry.ErrNotRegistered)
	err = f.layer.SetCallback(driver.Swapchain(99), nil, nil)
	assert.For(f.ctx, "swapchain").ThatError(err).Equals(ErrUnknownSwapchain)
	err = f.layer.CreateDevice(driver.PhysicalDevice(99), driver.Device(100), f.gpu)
	assert.For(f.ctx, "physical device").ThatError(err).HasCause(registry.ErrNotRegistered)
}

func TestDestroyDeviceDrainsSwapchains(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	sc := f.createSwapchain(2, extent64, 1, VirtualSurfaceInfo{})
	var got frames
	sc.SetCallback(got.callback, nil)
	f.gpu.SetLatency(ExpectBlocking)
	index, _ := f.acquire(sc, 0)
	f.present(sc, index)
	f.close()
	assert.For(f.ctx, "delivered").ThatSlice(got.get()).IsLength(1)
	assert.For(f.ctx, "forgotten").That(f.layer.Swapchain(sc.Handle())).IsNil()
	assert.For(f.ctx, "live objects").That(len(f.gpu.LiveObjects())).Equals(0)
	_, err := f.layer.Registry().Device(f.dev)
	assert.For(f.ctx, "device").ThatError(err).HasCause(registry.ErrNotRegistered)
	_, err = f.layer.Registry().Queue(f.queue)
	assert.For(f.ctx, "queue").ThatError(err).HasCause(registry.ErrNotRegistered)
	_, err = f.layer.Registry().PhysicalDevice(f.pd)
	assert.For(f.ctx, "physical device").ThatError(err).HasCause(registry.ErrNotRegistered)
}

// lockOrder checks that every registry scope takes its locks in strictly
// increasing level order.
type lockOrder struct {
	mutex      sync.Mutex
	held       map[uint64][]registry.Level
	violations int
	deepest    int
}

func (o *lockOrder) trace(e registry.TraceEvent) {
	if e.Scope == 0 {
		return
	}
	o.mutex.Lock()
	defer o.mutex.Unlock()
	stack := o.held[e.Scope]
	if e.Locked {
		if n := len(stack); n > 0 && stack[n-1] >= e.Level {
			o.violations++
		}
		stack = append(stack, e.Level)
		if len(stack) > o.deepest {
			o.deepest = len(stack)
		}
		o.held[e.Scope] = stack
		return
	}
	if n := len(stack); n > 0 {
		stack = stack[:n-1]
	}
	if len(stack) == 0 {
		delete(o.held, e.Scope)
	} else {
		o.held[e.Scope] = stack
	}
}

func TestLockOrderUnderLoad(t *testing.T) {
	order := &lockOrder{held: map[uint64][]registry.Level{}}
	f := newFixture(t, DefaultConfig(), registry.WithTracer(order.trace))
	defer f.close()
	sc := f.createSwapchain(3, driver.Extent2D{Width: 8, Height: 8}, 1, VirtualSurfaceInfo{})

	pool, err := f.gpu.CreateCommandPool(f.dev, 0)
	assert.For(f.ctx, "pool").ThatError(err).Succeeded()
	cbs, err := f.layer.AllocateCommandBuffers(f.dev, pool, 4)
	assert.For(f.ctx, "command buffers").ThatError(err).Succeeded()
	for _, cb := range cbs {
		f.gpu.BeginCommandBuffer(cb)
		f.gpu.EndCommandBuffer(cb)
	}
	other, err := f.layer.GetDeviceQueue(f.dev, 0, 1)
	assert.For(f.ctx, "second queue").ThatError(err).Succeeded()

	g, ctx := errgroup.WithContext(f.ctx)
	for w := 0; w < 4; w++ {
		w := w
		g.Go(func() error {
			for i := 0; i < 50; i++ {
				fence, err := f.gpu.CreateFence(f.dev, false)
				if err != nil {
					return err
				}
				index, err := f.layer.AcquireNextImage(ctx, f.dev, sc.Handle(), driver.AcquireInfo{
					Timeout: math.MaxUint64,
					Fence:   fence,
				})
				if err != nil {
					return err
				}
				info := &driver.PresentInfo{Swapchains: []driver.Swapchain{sc.Handle()}, ImageIndices: []uint32{index}}
				if err := f.layer.QueuePresent(ctx, f.queue, info); err != nil {
					return err
				}
				if err := f.gpu.WaitForFences(f.dev, []driver.Fence{fence}, true, math.MaxUint64); err != nil {
					return err
				}
				f.gpu.DestroyFence(f.dev, fence)
			}
			return nil
		})
		g.Go(func() error {
			for i := 0; i < 50; i++ {
				submit := driver.SubmitInfo{CommandBuffers: []driver.CommandBuffer{cbs[w]}}
				if err := f.layer.QueueSubmit(ctx, other, []driver.SubmitInfo{submit}, 0); err != nil {
					return err
				}
			}
			return nil
		})
	}
	assert.For(f.ctx, "load").ThatError(g.Wait()).Succeeded()
	assert.For(f.ctx, "idle").ThatError(f.gpu.QueueWaitIdle(other)).Succeeded()

	s := f.layer.Registry().Scope()
	_, err = s.Device(f.dev)
	assert.For(f.ctx, "device").ThatError(err).Succeeded()
	_, err = s.Queue(f.queue)
	assert.For(f.ctx, "queue after device").ThatError(err).HasCause(registry.ErrLockOrder)
	s.Release()

	order.mutex.Lock()
	defer order.mutex.Unlock()
	assert.For(f.ctx, "violations").ThatInteger(order.violations).Equals(0)
	assert.For(f.ctx, "deepest scope").ThatInteger(order.deepest).Equals(3)
	assert.For(f.ctx, "released").ThatInteger(len(order.held)).Equals(0)

	assert.For(f.ctx, "free").ThatError(f.layer.FreeCommandBuffers(f.dev, pool, cbs)).Succeeded()
	f.gpu.DestroyCommandPool(f.dev, pool)
}
