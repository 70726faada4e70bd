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

package vkdriver

import (
	"bytes"
	"context"
	"testing"

	"github.com/google/gapid/core/assert"
	"github.com/google/gapid/core/log"
	"github.com/google/gapid/core/vulkan/driver"
	"github.com/google/gapid/core/vulkan/registry"
	"github.com/google/gapid/core/vulkan/virtualswapchain"
)

func TestTable(t *testing.T) {
	ctx := log.Testing(t)
	var tbl table[string]
	a, b := tbl.add("a"), tbl.add("b")
	assert.For(ctx, "first handle").That(a).Equals(uint64(1))
	assert.For(ctx, "second handle").That(b).Equals(uint64(2))
	v, ok := tbl.get(a)
	assert.For(ctx, "get").That(v).Equals("a")
	assert.For(ctx, "found").ThatBoolean(ok).IsTrue()
	v, ok = tbl.remove(a)
	assert.For(ctx, "remove").That(v).Equals("a")
	assert.For(ctx, "removed").ThatBoolean(ok).IsTrue()
	_, ok = tbl.get(a)
	assert.For(ctx, "get removed").ThatBoolean(ok).IsFalse()
	assert.For(ctx, "reissued").That(tbl.add("c")).Equals(uint64(3))
	assert.For(ctx, "len").ThatInteger(tbl.len()).Equals(2)
}

func TestCStrings(t *testing.T) {
	ctx := log.Testing(t)
	got := cstrings([]string{"VK_KHR_surface", "VK_KHR_swapchain\x00"})
	assert.For(ctx, "cstrings").ThatSlice(got).Equals([]string{"VK_KHR_surface\x00", "VK_KHR_swapchain\x00"})
}

func TestUnknownHandles(t *testing.T) {
	ctx := log.Testing(t)
	d := New(Options{})
	_, err := d.EnumeratePhysicalDevices(7)
	assert.For(ctx, "instance").ThatError(err).HasCause(ErrUnknownHandle)
	_, err = d.CreateImage(3, &driver.ImageCreateInfo{})
	assert.For(ctx, "device").ThatError(err).HasCause(ErrUnknownHandle)
	err = d.QueueSubmit(1, nil, 0)
	assert.For(ctx, "queue").ThatError(err).HasCause(ErrUnknownHandle)
	assert.For(ctx, "live").That(d.LiveObjects()).DeepEquals(map[string]int{})
}

// hardware opens a headless device, skipping the test when no Vulkan
// implementation is available.
func hardware(ctx context.Context, t *testing.T) *Headless {
	h, err := Open(ctx, Options{Application: "vkdriver_test"})
	if err != nil {
		t.Skipf("No Vulkan device: %v", err)
	}
	return h
}

func TestCaptureOnHardware(t *testing.T) {
	ctx := log.Testing(t)
	h := hardware(ctx, t)
	defer h.Close()
	d, inst, pd, dev, family := h.Driver, h.Instance, h.PhysicalDevice, h.Device, h.Family

	layer := virtualswapchain.NewLayer(virtualswapchain.DefaultConfig(), registry.New())
	layer.CreateInstance(inst, d)
	_, err := layer.EnumeratePhysicalDevices(inst)
	assert.For(ctx, "EnumeratePhysicalDevices").ThatError(err).Succeeded()
	assert.For(ctx, "CreateDevice").ThatError(layer.CreateDevice(pd, dev, d)).Succeeded()
	queue, err := layer.GetDeviceQueue(dev, family, 0)
	assert.For(ctx, "GetDeviceQueue").ThatError(err).Succeeded()

	surface, err := layer.CreateVirtualSurface(ctx, inst, virtualswapchain.VirtualSurfaceInfo{})
	assert.For(ctx, "CreateVirtualSurface").ThatError(err).Succeeded()
	extent := driver.Extent2D{Width: 32, Height: 16}
	sc, err := layer.CreateSwapchain(ctx, dev, &driver.SwapchainCreateInfo{
		Surface:            surface,
		MinImageCount:      2,
		Format:             driver.FormatR8G8B8A8Unorm,
		Extent:             extent,
		ArrayLayers:        1,
		Usage:              driver.ImageUsageTransferDst,
		QueueFamilyIndices: []uint32{family},
		PresentMode:        driver.PresentModeFIFO,
	})
	assert.For(ctx, "CreateSwapchain").ThatError(err).Succeeded()

	frames := make(chan []byte, 4)
	err = layer.SetCallback(sc, func(_ interface{}, data []byte) {
		frames <- append([]byte(nil), data...)
	}, nil)
	assert.For(ctx, "SetCallback").ThatError(err).Succeeded()

	images, err := layer.GetSwapchainImages(dev, sc)
	assert.For(ctx, "GetSwapchainImages").ThatError(err).Succeeded()

	pool, err := d.CreateCommandPool(dev, family)
	assert.For(ctx, "CreateCommandPool").ThatError(err).Succeeded()
	cbs, err := layer.AllocateCommandBuffers(dev, pool, 1)
	assert.For(ctx, "AllocateCommandBuffers").ThatError(err).Succeeded()
	fence, err := d.CreateFence(dev, false)
	assert.For(ctx, "CreateFence").ThatError(err).Succeeded()

	index, err := layer.AcquireNextImage(ctx, dev, sc, driver.AcquireInfo{Timeout: driver.MaxTimeout})
	assert.For(ctx, "AcquireNextImage").ThatError(err).Succeeded()

	all := driver.SubresourceRange{LayerCount: 1}
	cb := cbs[0]
	assert.For(ctx, "Begin").ThatError(d.BeginCommandBuffer(cb)).Succeeded()
	d.CmdPipelineBarrier(cb, driver.PipelineStageTopOfPipe, driver.PipelineStageTransfer, nil, []driver.ImageBarrier{{
		DstAccess: driver.AccessTransferWrite,
		OldLayout: driver.ImageLayoutUndefined,
		NewLayout: driver.ImageLayoutTransferDstOptimal,
		Image:     images[index],
		Range:     all,
	}})
	d.CmdClearColorImage(cb, images[index], driver.ImageLayoutTransferDstOptimal, driver.ClearColor{1, 0, 0, 1}, all)
	d.CmdPipelineBarrier(cb, driver.PipelineStageTransfer, driver.PipelineStageTransfer, nil, []driver.ImageBarrier{{
		SrcAccess: driver.AccessTransferWrite,
		DstAccess: driver.AccessTransferRead,
		OldLayout: driver.ImageLayoutTransferDstOptimal,
		NewLayout: driver.ImageLayoutPresentSrc,
		Image:     images[index],
		Range:     all,
	}})
	assert.For(ctx, "End").ThatError(d.EndCommandBuffer(cb)).Succeeded()
	err = layer.QueueSubmit(ctx, queue, []driver.SubmitInfo{{CommandBuffers: cbs}}, fence)
	assert.For(ctx, "QueueSubmit").ThatError(err).Succeeded()
	assert.For(ctx, "WaitForFences").ThatError(d.WaitForFences(dev, []driver.Fence{fence}, true, driver.MaxTimeout)).Succeeded()

	err = layer.QueuePresent(ctx, queue, &driver.PresentInfo{
		Swapchains:   []driver.Swapchain{sc},
		ImageIndices: []uint32{index},
	})
	assert.For(ctx, "QueuePresent").ThatError(err).Succeeded()

	frame := <-frames
	red := bytes.Repeat([]byte{0xff, 0, 0, 0xff}, int(extent.Width*extent.Height))
	assert.For(ctx, "frame").ThatSlice(frame).Equals(red)

	assert.For(ctx, "FreeCommandBuffers").ThatError(layer.FreeCommandBuffers(dev, pool, cbs)).Succeeded()
	d.DestroyFence(dev, fence)
	d.DestroyCommandPool(dev, pool)
	assert.For(ctx, "DestroyDevice").ThatError(layer.DestroyDevice(ctx, dev)).Succeeded()
	assert.For(ctx, "DestroyInstance").ThatError(layer.DestroyInstance(ctx, inst)).Succeeded()
	assert.For(ctx, "live").That(d.LiveObjects()).DeepEquals(map[string]int{})
}
