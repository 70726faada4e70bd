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

	"github.com/google/gapid/core/log"
	"github.com/google/gapid/core/vulkan/driver"
	"github.com/pkg/errors"
)

// device is the part of a logical device a swapchain needs. It is captured
// at swapchain creation and never changes, so the copy-back worker can use it
// without taking registry locks.
type device struct {
	handle driver.Device
	fns    driver.DeviceFunctions
	memory driver.MemoryProperties
}

// frameInfo describes the images of a swapchain.
type frameInfo struct {
	format driver.Format
	extent driver.Extent2D
	layers uint32
	usage  driver.ImageUsage
}

// slot is one image of a virtual swapchain with the resources used to read it
// back.
type slot struct {
	index         uint32
	image         driver.Image
	imageMemory   driver.DeviceMemory
	staging       driver.Buffer
	stagingMemory driver.DeviceMemory
	commandBuffer driver.CommandBuffer
	fence         driver.Fence
	// abandoned is set when a frame never completed during destruction. Its
	// resources may still be in use by the device and are leaked.
	abandoned bool
}

// newSlots creates count slots. On failure every object created so far is
// destroyed.
func newSlots(ctx context.Context, d *device, pool driver.CommandPool, info frameInfo, count uint32) ([]*slot, error) {
	slots := make([]*slot, 0, count)
	for i := uint32(0); i < count; i++ {
		s, err := newSlot(ctx, d, pool, info, i)
		if err != nil {
			for _, s := range slots {
				s.destroy(d, pool)
			}
			return nil, err
		}
		slots = append(slots, s)
	}
	return slots, nil
}

func newSlot(ctx context.Context, d *device, pool driver.CommandPool, info frameInfo, index uint32) (out *slot, err error) {
	s := &slot{index: index}
	var undo teardown
	defer func() {
		if err != nil {
			undo.run()
		}
	}()
	fail := func(what string, cause error) error {
		if errors.Cause(cause) == driver.ErrorOutOfDeviceMemory || errors.Cause(cause) == driver.ErrorOutOfHostMemory {
			log.W(ctx, "Out of memory creating %s for a %dx%d swapchain, try a smaller surface extent",
				what, info.extent.Width, info.extent.Height)
		}
		return errors.Wrapf(cause, "allocation %q for image %d", what, index)
	}

	s.image, err = d.fns.CreateImage(d.handle, &driver.ImageCreateInfo{
		Format:      info.format,
		Extent:      info.extent,
		ArrayLayers: info.layers,
		Tiling:      driver.ImageTilingOptimal,
		Usage:       info.usage | driver.ImageUsageTransferSrc,
	})
	if err != nil {
		return nil, fail("image", err)
	}
	undo.add(func() { d.fns.DestroyImage(d.handle, s.image) })

	req := d.fns.GetImageMemoryRequirements(d.handle, s.image)
	if s.imageMemory, err = allocate(d, req, 0); err != nil {
		return nil, fail("image memory", err)
	}
	undo.add(func() { d.fns.FreeMemory(d.handle, s.imageMemory) })
	if err = d.fns.BindImageMemory(d.handle, s.image, s.imageMemory, 0); err != nil {
		return nil, fail("image memory", err)
	}

	s.staging, err = d.fns.CreateBuffer(d.handle, &driver.BufferCreateInfo{
		Size:  driver.DeviceSize(StagingSize(info.extent, info.layers)),
		Usage: driver.BufferUsageTransferDst,
	})
	if err != nil {
		return nil, fail("staging buffer", err)
	}
	undo.add(func() { d.fns.DestroyBuffer(d.handle, s.staging) })

	req = d.fns.GetBufferMemoryRequirements(d.handle, s.staging)
	if s.stagingMemory, err = allocate(d, req, driver.MemoryPropertyHostVisible); err != nil {
		return nil, fail("staging memory", err)
	}
	undo.add(func() { d.fns.FreeMemory(d.handle, s.stagingMemory) })
	if err = d.fns.BindBufferMemory(d.handle, s.staging, s.stagingMemory, 0); err != nil {
		return nil, fail("staging memory", err)
	}

	cbs, err := d.fns.AllocateCommandBuffers(d.handle, pool, 1)
	if err != nil {
		return nil, fail("command buffer", err)
	}
	s.commandBuffer = cbs[0]
	undo.add(func() { d.fns.FreeCommandBuffers(d.handle, pool, cbs) })
	if err = s.recordCopy(d, info); err != nil {
		return nil, fail("command buffer", err)
	}

	if s.fence, err = d.fns.CreateFence(d.handle, true); err != nil {
		return nil, fail("fence", err)
	}
	undo.add(func() { d.fns.DestroyFence(d.handle, s.fence) })
	if err = d.fns.ResetFences(d.handle, []driver.Fence{s.fence}); err != nil {
		return nil, fail("fence", err)
	}
	return s, nil
}

// allocate allocates memory for req from the first memory type that has the
// required properties.
func allocate(d *device, req driver.MemoryRequirements, required driver.MemoryProperty) (driver.DeviceMemory, error) {
	typ, err := driver.FindMemoryType(d.memory, req.TypeBits, required)
	if err != nil {
		return 0, err
	}
	return d.fns.AllocateMemory(d.handle, req.Size, typ)
}

// recordCopy records the command buffer that copies every layer of the image
// into the staging buffer. It is recorded once and submitted on every
// present.
func (s *slot) recordCopy(d *device, info frameInfo) error {
	cb := s.commandBuffer
	if err := d.fns.BeginCommandBuffer(cb); err != nil {
		return err
	}
	layers := driver.SubresourceRange{BaseLayer: 0, LayerCount: info.layers}
	d.fns.CmdPipelineBarrier(cb, driver.PipelineStageAllCommands, driver.PipelineStageTransfer, nil,
		[]driver.ImageBarrier{{
			SrcAccess: driver.AccessColorAttachmentWrite,
			DstAccess: driver.AccessTransferRead,
			OldLayout: driver.ImageLayoutPresentSrc,
			NewLayout: driver.ImageLayoutTransferSrcOptimal,
			Image:     s.image,
			Range:     layers,
		}})

	stride := LayerStride(info.extent)
	regions := make([]driver.BufferImageCopy, info.layers)
	for l := range regions {
		regions[l] = driver.BufferImageCopy{
			BufferOffset: driver.DeviceSize(l * stride),
			Layers:       driver.SubresourceRange{BaseLayer: uint32(l), LayerCount: 1},
			Extent:       info.extent,
		}
	}
	d.fns.CmdCopyImageToBuffer(cb, s.image, driver.ImageLayoutTransferSrcOptimal, s.staging, regions)

	d.fns.CmdPipelineBarrier(cb, driver.PipelineStageTransfer, driver.PipelineStageHost,
		[]driver.BufferBarrier{{
			SrcAccess: driver.AccessTransferWrite,
			DstAccess: driver.AccessHostRead,
			Buffer:    s.staging,
			Offset:    0,
			Size:      driver.WholeSize,
		}}, nil)
	d.fns.CmdPipelineBarrier(cb, driver.PipelineStageTransfer, driver.PipelineStageBottomOfPipe, nil,
		[]driver.ImageBarrier{{
			SrcAccess: driver.AccessTransferRead,
			DstAccess: driver.AccessMemoryRead,
			OldLayout: driver.ImageLayoutTransferSrcOptimal,
			NewLayout: driver.ImageLayoutPresentSrc,
			Image:     s.image,
			Range:     layers,
		}})
	return d.fns.EndCommandBuffer(cb)
}

// destroy releases every object of the slot. The slot must not be in use by
// the device.
func (s *slot) destroy(d *device, pool driver.CommandPool) {
	d.fns.DestroyFence(d.handle, s.fence)
	d.fns.FreeCommandBuffers(d.handle, pool, []driver.CommandBuffer{s.commandBuffer})
	d.fns.DestroyBuffer(d.handle, s.staging)
	d.fns.FreeMemory(d.handle, s.stagingMemory)
	d.fns.DestroyImage(d.handle, s.image)
	d.fns.FreeMemory(d.handle, s.imageMemory)
}
