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

package main

import (
	"context"

	"github.com/google/gapid/core/fault"
	"github.com/google/gapid/core/log"
	"github.com/google/gapid/core/vulkan/driver"
	"github.com/google/gapid/core/vulkan/virtualswapchain"
)

// renderer plays the application: it clears every acquired image to a colour
// derived from the frame number and presents it.
type renderer struct {
	layer     *virtualswapchain.Layer
	fns       driver.DeviceFunctions
	device    driver.Device
	queue     driver.Queue
	swapchain driver.Swapchain
	images    []driver.Image
	layers    uint32

	pool          driver.CommandPool
	commandBuffer driver.CommandBuffer
	fence         driver.Fence
}

func newRenderer(ctx context.Context, l *virtualswapchain.Layer, t *target, queue driver.Queue, sc driver.Swapchain, layers uint32) (*renderer, error) {
	images, err := l.GetSwapchainImages(t.device, sc)
	if err != nil {
		return nil, err
	}
	r := &renderer{
		layer:     l,
		fns:       t.fns,
		device:    t.device,
		queue:     queue,
		swapchain: sc,
		images:    images,
		layers:    layers,
	}
	if r.pool, err = t.fns.CreateCommandPool(t.device, t.family); err != nil {
		return nil, log.Err(ctx, err, "Creating the command pool")
	}
	cbs, err := l.AllocateCommandBuffers(t.device, r.pool, 1)
	if err != nil {
		t.fns.DestroyCommandPool(t.device, r.pool)
		return nil, log.Err(ctx, err, "Allocating the command buffer")
	}
	r.commandBuffer = cbs[0]
	if r.fence, err = t.fns.CreateFence(t.device, false); err != nil {
		r.close()
		return nil, log.Err(ctx, err, "Creating the fence")
	}
	return r, nil
}

// clearColor returns the clear colour of frame n for layer l.
func clearColor(n int, l uint32) driver.ClearColor {
	step := float32(n%16) / 15
	return driver.ClearColor{step, 1 - step, float32(l%4) / 3, 1}
}

// frame renders and presents frame n.
func (r *renderer) frame(ctx context.Context, n int) error {
	ctx = log.V{"frame": n}.Bind(ctx)
	index, err := r.layer.AcquireNextImage(ctx, r.device, r.swapchain, driver.AcquireInfo{
		Timeout:    driver.MaxTimeout,
		ImageIndex: uint32(n % len(r.images)),
	})
	if err != nil {
		return err
	}
	if err := r.record(r.images[index], n); err != nil {
		return log.Err(ctx, err, "Recording")
	}
	submit := []driver.SubmitInfo{{CommandBuffers: []driver.CommandBuffer{r.commandBuffer}}}
	if err := r.layer.QueueSubmit(ctx, r.queue, submit, r.fence); err != nil {
		return log.Err(ctx, err, "Submitting")
	}
	fences := []driver.Fence{r.fence}
	if err := r.fns.WaitForFences(r.device, fences, true, driver.MaxTimeout); err != nil {
		return log.Err(ctx, err, "Waiting for the clear")
	}
	if err := r.fns.ResetFences(r.device, fences); err != nil {
		return log.Err(ctx, err, "Resetting the fence")
	}
	err = r.layer.QueuePresent(ctx, r.queue, &driver.PresentInfo{
		Swapchains:   []driver.Swapchain{r.swapchain},
		ImageIndices: []uint32{index},
	})
	log.D(log.V{"image": index}.Bind(ctx), "Presented")
	return err
}

func (r *renderer) record(image driver.Image, n int) error {
	cb := r.commandBuffer
	if err := r.fns.BeginCommandBuffer(cb); err != nil {
		return err
	}
	all := driver.SubresourceRange{LayerCount: r.layers}
	r.fns.CmdPipelineBarrier(cb, driver.PipelineStageTopOfPipe, driver.PipelineStageTransfer, nil, []driver.ImageBarrier{{
		DstAccess: driver.AccessTransferWrite,
		OldLayout: driver.ImageLayoutUndefined,
		NewLayout: driver.ImageLayoutTransferDstOptimal,
		Image:     image,
		Range:     all,
	}})
	for l := uint32(0); l < r.layers; l++ {
		r.fns.CmdClearColorImage(cb, image, driver.ImageLayoutTransferDstOptimal, clearColor(n, l), driver.SubresourceRange{BaseLayer: l, LayerCount: 1})
	}
	r.fns.CmdPipelineBarrier(cb, driver.PipelineStageTransfer, driver.PipelineStageBottomOfPipe, nil, []driver.ImageBarrier{{
		SrcAccess: driver.AccessTransferWrite,
		DstAccess: driver.AccessMemoryRead,
		OldLayout: driver.ImageLayoutTransferDstOptimal,
		NewLayout: driver.ImageLayoutPresentSrc,
		Image:     image,
		Range:     all,
	}})
	return r.fns.EndCommandBuffer(cb)
}

func (r *renderer) close() error {
	var errs fault.List
	if r.fence != 0 {
		r.fns.DestroyFence(r.device, r.fence)
	}
	if r.commandBuffer != 0 {
		errs.Collect(r.layer.FreeCommandBuffers(r.device, r.pool, []driver.CommandBuffer{r.commandBuffer}))
	}
	r.fns.DestroyCommandPool(r.device, r.pool)
	return errs.First()
}
