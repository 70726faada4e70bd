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

package soft_test

import (
	"testing"
	"time"

	"github.com/google/gapid/core/assert"
	"github.com/google/gapid/core/log"
	"github.com/google/gapid/core/vulkan/driver"
	"github.com/google/gapid/core/vulkan/driver/soft"
)

type fixture struct {
	t      *testing.T
	gpu    *soft.GPU
	inst   driver.Instance
	pd     driver.PhysicalDevice
	dev    driver.Device
	queue  driver.Queue
	pool   driver.CommandPool
	assert func(name string) *assert.Assertion
}

func newFixture(t *testing.T) *fixture {
	ctx := log.Testing(t)
	g := soft.New()
	inst := g.CreateInstance()
	pds, err := g.EnumeratePhysicalDevices(inst)
	if err != nil || len(pds) != 1 {
		t.Fatalf("EnumeratePhysicalDevices: %v %v", pds, err)
	}
	dev, err := g.CreateDevice(pds[0])
	if err != nil {
		t.Fatalf("CreateDevice: %v", err)
	}
	pool, err := g.CreateCommandPool(dev, 0)
	if err != nil {
		t.Fatalf("CreateCommandPool: %v", err)
	}
	f := &fixture{t: t, gpu: g, inst: inst, pd: pds[0], dev: dev, queue: g.GetDeviceQueue(dev, 0, 0), pool: pool}
	f.assert = func(name string) *assert.Assertion { return assert.For(ctx, name) }
	t.Cleanup(func() { g.DestroyDevice(dev) })
	return f
}

func (f *fixture) image(w, h, layers uint32, memoryType uint32) driver.Image {
	img, err := f.gpu.CreateImage(f.dev, &driver.ImageCreateInfo{
		Format:      driver.FormatR8G8B8A8Unorm,
		Extent:      driver.Extent2D{Width: w, Height: h},
		ArrayLayers: layers,
		Usage:       driver.ImageUsageTransferSrc | driver.ImageUsageTransferDst,
	})
	if err != nil {
		f.t.Fatalf("CreateImage: %v", err)
	}
	req := f.gpu.GetImageMemoryRequirements(f.dev, img)
	mem, err := f.gpu.AllocateMemory(f.dev, req.Size, memoryType)
	if err != nil {
		f.t.Fatalf("AllocateMemory: %v", err)
	}
	if err := f.gpu.BindImageMemory(f.dev, img, mem, 0); err != nil {
		f.t.Fatalf("BindImageMemory: %v", err)
	}
	return img
}

func (f *fixture) record(build func(cb driver.CommandBuffer)) driver.CommandBuffer {
	cbs, err := f.gpu.AllocateCommandBuffers(f.dev, f.pool, 1)
	if err != nil {
		f.t.Fatalf("AllocateCommandBuffers: %v", err)
	}
	f.gpu.BeginCommandBuffer(cbs[0])
	build(cbs[0])
	if err := f.gpu.EndCommandBuffer(cbs[0]); err != nil {
		f.t.Fatalf("EndCommandBuffer: %v", err)
	}
	return cbs[0]
}

func TestClearAndCopy(t *testing.T) {
	f := newFixture(t)
	img := f.image(4, 2, 2, soft.DeviceLocalMemory)
	buf, _ := f.gpu.CreateBuffer(f.dev, &driver.BufferCreateInfo{Size: 256, Usage: driver.BufferUsageTransferDst})
	mem, _ := f.gpu.AllocateMemory(f.dev, 256, soft.HostVisibleMemory)
	f.assert("bind").ThatError(f.gpu.BindBufferMemory(f.dev, buf, mem, 0)).Succeeded()

	cb := f.record(func(cb driver.CommandBuffer) {
		f.gpu.CmdClearColorImage(cb, img, driver.ImageLayoutTransferDstOptimal, driver.ClearColor{1, 0, 0, 1}, driver.SubresourceRange{BaseLayer: 0, LayerCount: 1})
		f.gpu.CmdClearColorImage(cb, img, driver.ImageLayoutTransferDstOptimal, driver.ClearColor{0, 1, 0, 1}, driver.SubresourceRange{BaseLayer: 1, LayerCount: 1})
		f.gpu.CmdCopyImageToBuffer(cb, img, driver.ImageLayoutTransferSrcOptimal, buf, []driver.BufferImageCopy{
			{BufferOffset: 0, Layers: driver.SubresourceRange{BaseLayer: 0, LayerCount: 1}, Extent: driver.Extent2D{Width: 4, Height: 2}},
			{BufferOffset: 128, Layers: driver.SubresourceRange{BaseLayer: 1, LayerCount: 1}, Extent: driver.Extent2D{Width: 4, Height: 2}},
		})
	})
	fence, _ := f.gpu.CreateFence(f.dev, false)
	f.assert("submit").ThatError(f.gpu.QueueSubmit(f.queue, []driver.SubmitInfo{{CommandBuffers: []driver.CommandBuffer{cb}}}, fence)).Succeeded()
	f.assert("wait").ThatError(f.gpu.WaitForFences(f.dev, []driver.Fence{fence}, true, driver.MaxTimeout)).Succeeded()
	f.assert("status").ThatError(f.gpu.GetFenceStatus(f.dev, fence)).Succeeded()

	data, err := f.gpu.MapMemory(f.dev, mem, 0, driver.WholeSize)
	f.assert("map").ThatError(err).Succeeded()
	f.assert("layer 0").ThatSlice(data[0:4]).Equals([]byte{255, 0, 0, 255})
	f.assert("layer 0 end").ThatSlice(data[28:32]).Equals([]byte{255, 0, 0, 255})
	f.assert("gap").ThatSlice(data[32:36]).Equals([]byte{0, 0, 0, 0})
	f.assert("layer 1").ThatSlice(data[128:132]).Equals([]byte{0, 255, 0, 255})
	_, err = f.gpu.MapMemory(f.dev, mem, 0, driver.WholeSize)
	f.assert("double map").ThatError(err).Equals(driver.ErrorMemoryMapFailed)
	f.gpu.UnmapMemory(f.dev, mem)
	f.assert("gpu error").ThatError(f.gpu.Err()).Succeeded()
}

func TestMapDeviceLocal(t *testing.T) {
	f := newFixture(t)
	mem, _ := f.gpu.AllocateMemory(f.dev, 64, soft.DeviceLocalMemory)
	_, err := f.gpu.MapMemory(f.dev, mem, 0, driver.WholeSize)
	f.assert("map").ThatError(err).Equals(driver.ErrorMemoryMapFailed)
}

func TestFenceTimeout(t *testing.T) {
	f := newFixture(t)
	fence, _ := f.gpu.CreateFence(f.dev, false)
	f.assert("zero").ThatError(f.gpu.WaitForFences(f.dev, []driver.Fence{fence}, true, 0)).Equals(driver.Timeout)
	start := time.Now()
	err := f.gpu.WaitForFences(f.dev, []driver.Fence{fence}, true, uint64(20*time.Millisecond))
	f.assert("bounded").ThatError(err).Equals(driver.Timeout)
	f.assert("elapsed").ThatDuration(time.Since(start)).IsAtLeast(20 * time.Millisecond)
	f.assert("status").ThatError(f.gpu.GetFenceStatus(f.dev, fence)).Equals(driver.NotReady)
}

func TestSemaphoreOrdering(t *testing.T) {
	f := newFixture(t)
	img := f.image(1, 1, 1, soft.DeviceLocalMemory)
	sem, _ := f.gpu.CreateSemaphore(f.dev)
	other := f.gpu.GetDeviceQueue(f.dev, 0, 1)
	red := f.record(func(cb driver.CommandBuffer) {
		f.gpu.CmdClearColorImage(cb, img, driver.ImageLayoutGeneral, driver.ClearColor{1, 0, 0, 1}, driver.SubresourceRange{LayerCount: 1})
	})
	blue := f.record(func(cb driver.CommandBuffer) {
		f.gpu.CmdClearColorImage(cb, img, driver.ImageLayoutGeneral, driver.ClearColor{0, 0, 1, 1}, driver.SubresourceRange{LayerCount: 1})
	})
	done, _ := f.gpu.CreateFence(f.dev, false)
	f.gpu.Pause()
	// blue waits on the semaphore signalled after red, on another queue.
	f.gpu.QueueSubmit(other, []driver.SubmitInfo{{
		WaitSemaphores: []driver.Semaphore{sem},
		WaitStages:     []driver.PipelineStage{driver.PipelineStageTransfer},
		CommandBuffers: []driver.CommandBuffer{blue},
	}}, done)
	f.gpu.QueueSubmit(f.queue, []driver.SubmitInfo{{
		CommandBuffers:   []driver.CommandBuffer{red},
		SignalSemaphores: []driver.Semaphore{sem},
	}}, 0)
	f.assert("paused").ThatError(f.gpu.WaitForFences(f.dev, []driver.Fence{done}, true, uint64(10*time.Millisecond))).Equals(driver.Timeout)
	f.gpu.Resume()
	f.assert("wait").ThatError(f.gpu.WaitForFences(f.dev, []driver.Fence{done}, true, driver.MaxTimeout)).Succeeded()
	f.assert("pixel").ThatSlice(f.gpu.ImageData(img)).Equals([]byte{0, 0, 255, 255})
}

func TestFailOn(t *testing.T) {
	f := newFixture(t)
	f.gpu.FailOn("CreateFence", 1, driver.ErrorOutOfHostMemory)
	_, err := f.gpu.CreateFence(f.dev, false)
	f.assert("first").ThatError(err).Succeeded()
	_, err = f.gpu.CreateFence(f.dev, false)
	f.assert("second").ThatError(err).Equals(driver.ErrorOutOfHostMemory)
	_, err = f.gpu.CreateFence(f.dev, false)
	f.assert("third").ThatError(err).Succeeded()
}

func TestSwapchainPresent(t *testing.T) {
	f := newFixture(t)
	surface, err := f.gpu.CreateSurface(f.inst, &driver.SurfaceCreateInfo{Extent: driver.Extent2D{Width: 2, Height: 2}})
	f.assert("surface").ThatError(err).Succeeded()
	supported, _ := f.gpu.GetPhysicalDeviceSurfaceSupport(f.pd, 0, surface)
	f.assert("support").That(supported).Equals(true)
	sc, err := f.gpu.CreateSwapchain(f.dev, &driver.SwapchainCreateInfo{
		Surface:       surface,
		MinImageCount: 2,
		Format:        driver.FormatR8G8B8A8Unorm,
		Extent:        driver.Extent2D{Width: 2, Height: 2},
		Usage:         driver.ImageUsageTransferDst,
		PresentMode:   driver.PresentModeFIFO,
	})
	f.assert("swapchain").ThatError(err).Succeeded()
	images, _ := f.gpu.GetSwapchainImages(f.dev, sc)
	f.assert("images").ThatSlice(images).IsLength(2)

	a, err := f.gpu.AcquireNextImage(f.dev, sc, driver.MaxTimeout, 0, 0)
	f.assert("acquire a").ThatError(err).Succeeded()
	_, err = f.gpu.AcquireNextImage(f.dev, sc, driver.MaxTimeout, 0, 0)
	f.assert("acquire b").ThatError(err).Succeeded()
	_, err = f.gpu.AcquireNextImage(f.dev, sc, 0, 0, 0)
	f.assert("exhausted").ThatError(err).Equals(driver.NotReady)

	results := make([]driver.Result, 1)
	err = f.gpu.QueuePresent(f.queue, &driver.PresentInfo{Swapchains: []driver.Swapchain{sc}, ImageIndices: []uint32{a}, Results: results})
	f.assert("present").ThatError(err).Succeeded()
	f.assert("result").That(results[0]).Equals(driver.Success)
	f.assert("idle").ThatError(f.gpu.QueueWaitIdle(f.queue)).Succeeded()
	f.assert("frames").ThatSlice(f.gpu.Frames(surface)).IsLength(1)
	_, err = f.gpu.AcquireNextImage(f.dev, sc, uint64(time.Second), 0, 0)
	f.assert("reacquire").ThatError(err).Succeeded()

	f.gpu.LoseSurface(surface)
	_, err = f.gpu.AcquireNextImage(f.dev, sc, 0, 0, 0)
	f.assert("lost").ThatError(err).Equals(driver.ErrorSurfaceLost)
}

func TestLiveObjects(t *testing.T) {
	f := newFixture(t)
	before := f.gpu.LiveObjects()
	fence, _ := f.gpu.CreateFence(f.dev, true)
	sem, _ := f.gpu.CreateSemaphore(f.dev)
	f.assert("fence").ThatInteger(f.gpu.LiveObjects()["fence"]).Equals(before["fence"] + 1)
	f.gpu.DestroyFence(f.dev, fence)
	f.gpu.DestroySemaphore(f.dev, sem)
	f.assert("after").That(f.gpu.LiveObjects()).DeepEquals(before)
}
