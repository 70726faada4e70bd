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
	"testing"
	"time"

	"github.com/google/gapid/core/assert"
	"github.com/google/gapid/core/vulkan/driver"
	"golang.org/x/sync/errgroup"
)

var extent64 = driver.Extent2D{Width: 64, Height: 64}

func TestThreeImagesOfSixtyFour(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	defer f.close()
	sc := f.createSwapchain(3, extent64, 1, VirtualSurfaceInfo{})
	assert.For(f.ctx, "images").ThatSlice(sc.Images()).IsLength(3)
	free, _, _ := sc.pool.snapshot()
	assert.For(f.ctx, "free after create").ThatSlice(free).Equals([]uint32{0, 1, 2})

	var got frames
	assert.For(f.ctx, "SetCallback").ThatError(f.layer.SetCallback(sc.Handle(), got.callback, "tag")).Succeeded()

	index, err := f.acquire(sc, math.MaxUint64)
	assert.For(f.ctx, "first acquire").ThatError(err).Succeeded()
	free, acquired, _ := sc.pool.snapshot()
	assert.For(f.ctx, "free after acquire").ThatSlice(free).IsLength(2)
	assert.For(f.ctx, "acquired").ThatSlice(acquired).Equals([]uint32{index})

	f.draw(sc, index, 10)
	result, err := f.present(sc, index)
	assert.For(f.ctx, "first present").ThatError(err).Succeeded()
	assert.For(f.ctx, "first result").That(result).Equals(driver.Success)
	f.eventually("first callback", func() bool { return len(got.get()) == 1 })
	f.eventually("slot recycled", func() bool {
		free, _, _ := sc.pool.snapshot()
		return len(free) == 3
	})
	first := got.get()[0]
	assert.For(f.ctx, "first size").ThatInteger(len(first)).Equals(16384)
	assert.For(f.ctx, "first content").ThatBoolean(uniform(first, 10)).IsTrue()

	const count = 6
	for i := 1; i < count; i++ {
		index, err := f.acquire(sc, math.MaxUint64)
		assert.For(f.ctx, "acquire %d", i).ThatError(err).Succeeded()
		f.draw(sc, index, byte(10+i))
		result, err := f.present(sc, index)
		assert.For(f.ctx, "present %d", i).ThatError(err).Succeeded()
		assert.For(f.ctx, "result %d", i).That(result).Equals(driver.Success)
	}
	f.eventually("all callbacks", func() bool { return len(got.get()) == count })
	f.eventually("all slots free", func() bool {
		free, _, _ := sc.pool.snapshot()
		return len(free) == 3
	})
	assert.For(f.ctx, "destroy").ThatError(f.layer.DestroySwapchain(f.ctx, f.dev, sc.Handle())).Succeeded()

	data := got.get()
	assert.For(f.ctx, "callbacks").ThatSlice(data).IsLength(count)
	for i, d := range data {
		assert.For(f.ctx, "frame %d size", i).ThatInteger(len(d)).Equals(16384)
		assert.For(f.ctx, "frame %d content", i).ThatBoolean(uniform(d, byte(10+i))).IsTrue()
		assert.For(f.ctx, "frame %d user data", i).That(got.tags[i]).Equals("tag")
	}
}

func TestCallbackOrder(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	defer f.close()
	f.gpu.SetLatency(time.Millisecond)
	sc := f.createSwapchain(4, driver.Extent2D{Width: 8, Height: 8}, 1, VirtualSurfaceInfo{})
	var got frames
	sc.SetCallback(got.callback, nil)

	want := []byte{}
	for i := 0; i < 24; i++ {
		index, err := f.acquire(sc, math.MaxUint64)
		assert.For(f.ctx, "acquire").ThatError(err).Succeeded()
		f.draw(sc, index, byte(i))
		_, err = f.present(sc, index)
		assert.For(f.ctx, "present").ThatError(err).Succeeded()
		want = append(want, byte(i))
	}
	assert.For(f.ctx, "destroy").ThatError(sc.Destroy(f.ctx)).Succeeded()
	assert.For(f.ctx, "order").ThatSlice(got.seeds()).Equals(want)
	f.layer.DestroySwapchain(f.ctx, f.dev, sc.Handle())
}

func TestMultiLayerFrames(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	defer f.close()
	extent := driver.Extent2D{Width: 5, Height: 3}
	sc := f.createSwapchain(2, extent, 2, VirtualSurfaceInfo{})
	var got frames
	sc.SetCallback(got.callback, nil)

	index, err := f.acquire(sc, 0)
	assert.For(f.ctx, "acquire").ThatError(err).Succeeded()
	f.draw(sc, index, 40)
	_, err = f.present(sc, index)
	assert.For(f.ctx, "present").ThatError(err).Succeeded()
	assert.For(f.ctx, "destroy").ThatError(f.layer.DestroySwapchain(f.ctx, f.dev, sc.Handle())).Succeeded()

	data := got.get()
	assert.For(f.ctx, "callbacks").ThatSlice(data).IsLength(1)
	assert.For(f.ctx, "size").ThatInteger(len(data[0])).Equals(DataSize(extent, 2))
	planes := Planes(data[0], extent, 2)
	assert.For(f.ctx, "planes").ThatSlice(planes).IsLength(2)
	assert.For(f.ctx, "layer 0").ThatBoolean(uniform(planes[0], 40)).IsTrue()
	assert.For(f.ctx, "layer 1").ThatBoolean(uniform(planes[1], 41)).IsTrue()
}

func TestAcquireTimeouts(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	defer f.close()
	sc := f.createSwapchain(2, extent64, 1, VirtualSurfaceInfo{})
	for i := 0; i < 2; i++ {
		_, err := f.acquire(sc, 0)
		assert.For(f.ctx, "acquire %d", i).ThatError(err).Succeeded()
	}

	start := time.Now()
	_, err := f.acquire(sc, 0)
	assert.For(f.ctx, "zero").ThatError(err).HasCause(driver.NotReady)
	assert.For(f.ctx, "zero duration").ThatDuration(time.Since(start)).IsAtMost(ExpectNonBlocking)

	start = time.Now()
	_, err = f.acquire(sc, uint64(ExpectBlocking))
	assert.For(f.ctx, "bounded").ThatError(err).HasCause(driver.Timeout)
	assert.For(f.ctx, "bounded duration").ThatDuration(time.Since(start)).IsAtLeast(ExpectBlocking)

	done := make(chan uint32, 1)
	go func() {
		index, err := f.acquire(sc, math.MaxUint64)
		assert.For(f.ctx, "unbounded").ThatError(err).Succeeded()
		done <- index
	}()
	select {
	case <-done:
		t.Fatal("Acquire returned with every image owned by the application")
	case <-time.After(ExpectBlocking):
	}
	_, err = f.present(sc, 1)
	assert.For(f.ctx, "present").ThatError(err).Succeeded()
	select {
	case index := <-done:
		assert.For(f.ctx, "unblocked").That(index).Equals(uint32(1))
	case <-time.After(ExpectNonBlocking):
		t.Fatal("Acquire did not return once an image was copied back")
	}
	f.layer.DestroySwapchain(f.ctx, f.dev, sc.Handle())
}

func TestAcquireSignals(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	defer f.close()
	sc := f.createSwapchain(2, extent64, 1, VirtualSurfaceInfo{})
	fence, err := f.gpu.CreateFence(f.dev, false)
	assert.For(f.ctx, "fence").ThatError(err).Succeeded()
	sem, err := f.gpu.CreateSemaphore(f.dev)
	assert.For(f.ctx, "semaphore").ThatError(err).Succeeded()

	index, err := f.layer.AcquireNextImage(f.ctx, f.dev, sc.Handle(), driver.AcquireInfo{
		Timeout:   math.MaxUint64,
		Semaphore: sem,
		Fence:     fence,
	})
	assert.For(f.ctx, "acquire").ThatError(err).Succeeded()
	err = f.gpu.WaitForFences(f.dev, []driver.Fence{fence}, true, uint64(ExpectNonBlocking))
	assert.For(f.ctx, "fence signalled").ThatError(err).Succeeded()

	info := &driver.PresentInfo{
		WaitSemaphores: []driver.Semaphore{sem},
		Swapchains:     []driver.Swapchain{sc.Handle()},
		ImageIndices:   []uint32{index},
	}
	assert.For(f.ctx, "present").ThatError(f.layer.QueuePresent(f.ctx, f.queue, info)).Succeeded()
	assert.For(f.ctx, "destroy").ThatError(f.layer.DestroySwapchain(f.ctx, f.dev, sc.Handle())).Succeeded()

	// A failed signal hands the image back.
	sc = f.createSwapchain(1, extent64, 1, VirtualSurfaceInfo{})
	f.gpu.FailOn("QueueSubmit", 0, driver.ErrorDeviceLost)
	_, err = f.layer.AcquireNextImage(f.ctx, f.dev, sc.Handle(), driver.AcquireInfo{Timeout: 0, Semaphore: sem})
	assert.For(f.ctx, "failed signal").ThatError(err).HasCause(driver.ErrorDeviceLost)
	_, err = f.acquire(sc, 0)
	assert.For(f.ctx, "image returned").ThatError(err).Succeeded()
	f.layer.DestroySwapchain(f.ctx, f.dev, sc.Handle())
	f.gpu.DestroySemaphore(f.dev, sem)
	f.gpu.DestroyFence(f.dev, fence)
}

func TestPresentErrors(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	defer f.close()
	sc := f.createSwapchain(2, extent64, 1, VirtualSurfaceInfo{})

	result, err := f.present(sc, 1)
	assert.For(f.ctx, "not acquired").ThatError(err).Equals(ErrNotAcquired)
	assert.For(f.ctx, "not acquired result").That(result).Equals(driver.ErrorOutOfDate)
	_, err = f.present(sc, 5)
	assert.For(f.ctx, "out of range").ThatError(err).Equals(ErrInvalidIndex)

	index, _ := f.acquire(sc, 0)
	f.gpu.FailOn("QueueSubmit", 0, driver.ErrorDeviceLost)
	result, err = f.present(sc, index)
	assert.For(f.ctx, "failed submit").ThatError(err).HasCause(driver.ErrorDeviceLost)
	assert.For(f.ctx, "failed submit result").That(result).Equals(driver.ErrorDeviceLost)
	_, acquired, _ := sc.pool.snapshot()
	assert.For(f.ctx, "still acquired").ThatSlice(acquired).Equals([]uint32{index})
	_, err = f.present(sc, index)
	assert.For(f.ctx, "retry").ThatError(err).Succeeded()
	f.layer.DestroySwapchain(f.ctx, f.dev, sc.Handle())
}

func TestDrainBeforeExit(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	defer f.close()
	sc := f.createSwapchain(4, extent64, 1, VirtualSurfaceInfo{})
	var got frames
	sc.SetCallback(got.callback, nil)

	const inflight = 3
	f.gpu.Pause()
	for i := 0; i < inflight; i++ {
		index, err := f.acquire(sc, 0)
		assert.For(f.ctx, "acquire").ThatError(err).Succeeded()
		f.draw(sc, index, byte(i))
		_, err = f.present(sc, index)
		assert.For(f.ctx, "present").ThatError(err).Succeeded()
	}
	destroyed := make(chan error, 1)
	go func() { destroyed <- f.layer.DestroySwapchain(f.ctx, f.dev, sc.Handle()) }()
	select {
	case <-destroyed:
		t.Fatal("Swapchain destroyed with copies still pending")
	case <-time.After(ExpectBlocking):
	}
	assert.For(f.ctx, "delivered while paused").ThatSlice(got.get()).IsEmpty()

	f.gpu.Resume()
	select {
	case err := <-destroyed:
		assert.For(f.ctx, "destroy").ThatError(err).Succeeded()
	case <-time.After(ExpectNonBlocking):
		t.Fatal("Destroy did not return after the copies completed")
	}
	assert.For(f.ctx, "delivered").ThatSlice(got.seeds()).Equals([]byte{0, 1, 2})
}

func TestDrainTimeoutAbandonsFrames(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DrainTimeout = ExpectBlocking
	f := newFixture(t, cfg)
	defer f.close()
	sc := f.createSwapchain(2, extent64, 1, VirtualSurfaceInfo{})
	var got frames
	sc.SetCallback(got.callback, nil)

	f.gpu.Pause()
	index, _ := f.acquire(sc, 0)
	_, err := f.present(sc, index)
	assert.For(f.ctx, "present").ThatError(err).Succeeded()
	start := time.Now()
	assert.For(f.ctx, "destroy").ThatError(f.layer.DestroySwapchain(f.ctx, f.dev, sc.Handle())).Succeeded()
	assert.For(f.ctx, "destroy duration").ThatDuration(time.Since(start)).IsAtMost(ExpectNonBlocking)
	assert.For(f.ctx, "abandoned").ThatBoolean(sc.slots[index].abandoned).IsTrue()
	assert.For(f.ctx, "delivered").ThatSlice(got.get()).IsEmpty()
	f.gpu.Resume()
}

func TestPinnedSwapchain(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	defer f.close()
	sc := f.createSwapchain(3, extent64, 1, VirtualSurfaceInfo{AlwaysGetAcquiredImage: true})
	acquire := func(index uint32, timeout uint64) (uint32, error) {
		return f.layer.AcquireNextImage(f.ctx, f.dev, sc.Handle(), driver.AcquireInfo{Timeout: timeout, ImageIndex: index})
	}
	got, err := acquire(2, 0)
	assert.For(f.ctx, "pinned").ThatError(err).Succeeded()
	assert.For(f.ctx, "pinned index").That(got).Equals(uint32(2))
	_, err = acquire(2, 0)
	assert.For(f.ctx, "pinned busy").ThatError(err).HasCause(driver.NotReady)
	_, err = acquire(3, 0)
	assert.For(f.ctx, "pinned out of range").ThatError(err).Equals(ErrInvalidIndex)

	_, err = f.present(sc, 2)
	assert.For(f.ctx, "present").ThatError(err).Succeeded()
	got, err = acquire(2, math.MaxUint64)
	assert.For(f.ctx, "reacquire").ThatError(err).Succeeded()
	assert.For(f.ctx, "reacquire index").That(got).Equals(uint32(2))
	f.layer.DestroySwapchain(f.ctx, f.dev, sc.Handle())
}

func TestAllOrNothingConstruction(t *testing.T) {
	for _, test := range []struct {
		entry   string
		skip    int
		message string
	}{
		{"CreateCommandPool", 0, `allocation "command pool"`},
		{"CreateImage", 2, `allocation "image" for image 2`},
		{"AllocateMemory", 0, `allocation "image memory" for image 0`},
		{"AllocateMemory", 3, `allocation "staging memory" for image 1`},
		{"BindImageMemory", 1, `allocation "image memory" for image 1`},
		{"CreateBuffer", 1, `allocation "staging buffer" for image 1`},
		{"BindBufferMemory", 2, `allocation "staging memory" for image 2`},
		{"AllocateCommandBuffers", 2, `allocation "command buffer" for image 2`},
		{"BeginCommandBuffer", 1, `allocation "command buffer" for image 1`},
		{"CreateFence", 2, `allocation "fence" for image 2`},
	} {
		t.Run(test.entry, func(t *testing.T) {
			f := newFixture(t, DefaultConfig())
			defer f.close()
			surface, err := f.layer.CreateVirtualSurface(f.ctx, f.inst, VirtualSurfaceInfo{})
			assert.For(f.ctx, "surface").ThatError(err).Succeeded()
			before := f.gpu.LiveObjects()
			f.gpu.FailOn(test.entry, test.skip, driver.ErrorOutOfDeviceMemory)
			_, err = f.layer.CreateSwapchain(f.ctx, f.dev, &driver.SwapchainCreateInfo{
				Surface:       surface,
				MinImageCount: 3,
				Format:        driver.FormatB8G8R8A8Unorm,
				Extent:        extent64,
				ArrayLayers:   1,
				Usage:         driver.ImageUsageColorAttachment,
			})
			assert.For(f.ctx, "create").ThatError(err).HasCause(driver.ErrorOutOfDeviceMemory)
			assert.For(f.ctx, "message").ThatString(err.Error()).Contains(test.message)
			assert.For(f.ctx, "live objects").That(f.gpu.LiveObjects()).DeepEquals(before)
		})
	}
}

func TestPartitionUnderConcurrentPresents(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	defer f.close()
	sc := f.createSwapchain(4, driver.Extent2D{Width: 16, Height: 16}, 1, VirtualSurfaceInfo{})
	var got frames
	sc.SetCallback(got.callback, nil)

	const workers, iterations = 6, 40
	g, ctx := errgroup.WithContext(f.ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for i := 0; i < iterations; i++ {
				index, err := f.layer.AcquireNextImage(ctx, f.dev, sc.Handle(), driver.AcquireInfo{Timeout: math.MaxUint64})
				if err != nil {
					return err
				}
				if err := checkPartition(sc.pool); err != nil {
					return err
				}
				info := &driver.PresentInfo{Swapchains: []driver.Swapchain{sc.Handle()}, ImageIndices: []uint32{index}}
				if err := f.layer.QueuePresent(ctx, f.queue, info); err != nil {
					return err
				}
			}
			return nil
		})
	}
	assert.For(f.ctx, "stress").ThatError(g.Wait()).Succeeded()
	assert.For(f.ctx, "destroy").ThatError(f.layer.DestroySwapchain(f.ctx, f.dev, sc.Handle())).Succeeded()
	assert.For(f.ctx, "partition").ThatError(checkPartition(sc.pool)).Succeeded()
	assert.For(f.ctx, "callbacks").ThatSlice(got.get()).IsLength(workers * iterations)
}

func TestDestroyReleasesEverything(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	defer f.close()
	before := f.gpu.LiveObjects()
	sc := f.createSwapchain(3, extent64, 2, VirtualSurfaceInfo{})
	during := f.gpu.LiveObjects()
	assert.For(f.ctx, "images").That(during["image"] - before["image"]).Equals(3)
	assert.For(f.ctx, "buffers").That(during["buffer"] - before["buffer"]).Equals(3)
	assert.For(f.ctx, "memory").That(during["memory"] - before["memory"]).Equals(6)
	assert.For(f.ctx, "fences").That(during["fence"] - before["fence"]).Equals(3)
	index, _ := f.acquire(sc, 0)
	f.present(sc, index)
	assert.For(f.ctx, "destroy").ThatError(f.layer.DestroySwapchain(f.ctx, f.dev, sc.Handle())).Succeeded()
	assert.For(f.ctx, "live objects").That(f.gpu.LiveObjects()).DeepEquals(before)
	assert.For(f.ctx, "forgotten").That(f.layer.Swapchain(sc.Handle())).IsNil()
	assert.For(f.ctx, "second destroy").ThatError(sc.Destroy(f.ctx)).Succeeded()
}
