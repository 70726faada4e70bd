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
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/google/gapid/core/vulkan/driver"
)

// CreateCommandPool implements driver.DeviceFunctions.
func (d *Driver) CreateCommandPool(h driver.Device, family uint32) (driver.CommandPool, error) {
	dev, err := d.device(h)
	if err != nil {
		return 0, err
	}
	info := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
		QueueFamilyIndex: family,
	}
	var pool vk.CommandPool
	if err := check(vk.CreateCommandPool(dev, &info, nil, &pool)); err != nil {
		return 0, err
	}
	return driver.CommandPool(d.commandPools.add(pool)), nil
}

// DestroyCommandPool implements driver.DeviceFunctions.
func (d *Driver) DestroyCommandPool(h driver.Device, p driver.CommandPool) {
	dev, err := d.device(h)
	if err != nil {
		return
	}
	if pool, ok := d.commandPools.remove(uint64(p)); ok {
		vk.DestroyCommandPool(dev, pool, nil)
	}
}

// AllocateCommandBuffers implements driver.DeviceFunctions.
func (d *Driver) AllocateCommandBuffers(h driver.Device, p driver.CommandPool, count uint32) ([]driver.CommandBuffer, error) {
	dev, err := d.device(h)
	if err != nil {
		return nil, err
	}
	pool, ok := d.commandPools.get(uint64(p))
	if !ok {
		return nil, unknown("command pool", uint64(p))
	}
	info := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: count,
	}
	cbs := make([]vk.CommandBuffer, count)
	if err := check(vk.AllocateCommandBuffers(dev, &info, cbs)); err != nil {
		return nil, err
	}
	out := make([]driver.CommandBuffer, count)
	for i, cb := range cbs {
		out[i] = driver.CommandBuffer(d.commandBuffers.add(cb))
	}
	return out, nil
}

// FreeCommandBuffers implements driver.DeviceFunctions.
func (d *Driver) FreeCommandBuffers(h driver.Device, p driver.CommandPool, buffers []driver.CommandBuffer) {
	dev, err := d.device(h)
	if err != nil {
		return
	}
	pool, ok := d.commandPools.get(uint64(p))
	if !ok {
		return
	}
	cbs := make([]vk.CommandBuffer, 0, len(buffers))
	for _, b := range buffers {
		if cb, ok := d.commandBuffers.remove(uint64(b)); ok {
			cbs = append(cbs, cb)
		}
	}
	if len(cbs) > 0 {
		vk.FreeCommandBuffers(dev, pool, uint32(len(cbs)), cbs)
	}
}

func (d *Driver) commandBuffer(h driver.CommandBuffer) (vk.CommandBuffer, error) {
	cb, ok := d.commandBuffers.get(uint64(h))
	if !ok {
		return nil, unknown("command buffer", uint64(h))
	}
	return cb, nil
}

// BeginCommandBuffer implements driver.DeviceFunctions.
func (d *Driver) BeginCommandBuffer(h driver.CommandBuffer) error {
	cb, err := d.commandBuffer(h)
	if err != nil {
		return err
	}
	return check(vk.BeginCommandBuffer(cb, &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
	}))
}

// EndCommandBuffer implements driver.DeviceFunctions.
func (d *Driver) EndCommandBuffer(h driver.CommandBuffer) error {
	cb, err := d.commandBuffer(h)
	if err != nil {
		return err
	}
	return check(vk.EndCommandBuffer(cb))
}

func colorRange(r driver.SubresourceRange) vk.ImageSubresourceRange {
	return vk.ImageSubresourceRange{
		AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
		BaseMipLevel:   0,
		LevelCount:     1,
		BaseArrayLayer: r.BaseLayer,
		LayerCount:     r.LayerCount,
	}
}

func colorLayers(r driver.SubresourceRange) vk.ImageSubresourceLayers {
	return vk.ImageSubresourceLayers{
		AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
		MipLevel:       0,
		BaseArrayLayer: r.BaseLayer,
		LayerCount:     r.LayerCount,
	}
}

// Commands referencing unknown handles are dropped, like the recording of an
// invalid command.

// CmdPipelineBarrier implements driver.DeviceFunctions.
func (d *Driver) CmdPipelineBarrier(h driver.CommandBuffer, src, dst driver.PipelineStage, buffers []driver.BufferBarrier, images []driver.ImageBarrier) {
	cb, err := d.commandBuffer(h)
	if err != nil {
		return
	}
	bufs := make([]vk.BufferMemoryBarrier, 0, len(buffers))
	for _, b := range buffers {
		buffer, ok := d.buffers.get(uint64(b.Buffer))
		if !ok {
			return
		}
		bufs = append(bufs, vk.BufferMemoryBarrier{
			SType:               vk.StructureTypeBufferMemoryBarrier,
			SrcAccessMask:       vk.AccessFlags(b.SrcAccess),
			DstAccessMask:       vk.AccessFlags(b.DstAccess),
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Buffer:              buffer,
			Offset:              vk.DeviceSize(b.Offset),
			Size:                vk.DeviceSize(b.Size),
		})
	}
	imgs := make([]vk.ImageMemoryBarrier, 0, len(images))
	for _, b := range images {
		image, ok := d.images.get(uint64(b.Image))
		if !ok {
			return
		}
		imgs = append(imgs, vk.ImageMemoryBarrier{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       vk.AccessFlags(b.SrcAccess),
			DstAccessMask:       vk.AccessFlags(b.DstAccess),
			OldLayout:           vk.ImageLayout(b.OldLayout),
			NewLayout:           vk.ImageLayout(b.NewLayout),
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Image:               image,
			SubresourceRange:    colorRange(b.Range),
		})
	}
	vk.CmdPipelineBarrier(cb, vk.PipelineStageFlags(src), vk.PipelineStageFlags(dst), 0,
		0, nil, uint32(len(bufs)), bufs, uint32(len(imgs)), imgs)
}

// CmdCopyImageToBuffer implements driver.DeviceFunctions.
func (d *Driver) CmdCopyImageToBuffer(h driver.CommandBuffer, src driver.Image, layout driver.ImageLayout, dst driver.Buffer, regions []driver.BufferImageCopy) {
	cb, err := d.commandBuffer(h)
	if err != nil {
		return
	}
	image, ok := d.images.get(uint64(src))
	if !ok {
		return
	}
	buffer, ok := d.buffers.get(uint64(dst))
	if !ok {
		return
	}
	copies := make([]vk.BufferImageCopy, len(regions))
	for i, r := range regions {
		copies[i] = vk.BufferImageCopy{
			BufferOffset:     vk.DeviceSize(r.BufferOffset),
			ImageSubresource: colorLayers(r.Layers),
			ImageExtent:      vk.Extent3D{Width: r.Extent.Width, Height: r.Extent.Height, Depth: 1},
		}
	}
	vk.CmdCopyImageToBuffer(cb, image, vk.ImageLayout(layout), buffer, uint32(len(copies)), copies)
}

func offset3D(o driver.Offset3D) vk.Offset3D {
	return vk.Offset3D{X: o.X, Y: o.Y, Z: o.Z}
}

// CmdBlitImage implements driver.DeviceFunctions.
func (d *Driver) CmdBlitImage(h driver.CommandBuffer, src driver.Image, srcLayout driver.ImageLayout, dst driver.Image, dstLayout driver.ImageLayout, regions []driver.ImageBlit, filter driver.Filter) {
	cb, err := d.commandBuffer(h)
	if err != nil {
		return
	}
	from, ok := d.images.get(uint64(src))
	if !ok {
		return
	}
	to, ok := d.images.get(uint64(dst))
	if !ok {
		return
	}
	blits := make([]vk.ImageBlit, len(regions))
	for i, r := range regions {
		blits[i] = vk.ImageBlit{
			SrcSubresource: colorLayers(driver.SubresourceRange{BaseLayer: r.SrcLayer, LayerCount: 1}),
			SrcOffsets:     [2]vk.Offset3D{offset3D(r.SrcOffsets[0]), offset3D(r.SrcOffsets[1])},
			DstSubresource: colorLayers(driver.SubresourceRange{BaseLayer: r.DstLayer, LayerCount: 1}),
			DstOffsets:     [2]vk.Offset3D{offset3D(r.DstOffsets[0]), offset3D(r.DstOffsets[1])},
		}
	}
	vk.CmdBlitImage(cb, from, vk.ImageLayout(srcLayout), to, vk.ImageLayout(dstLayout), uint32(len(blits)), blits, vk.Filter(filter))
}

// CmdClearColorImage implements driver.DeviceFunctions.
func (d *Driver) CmdClearColorImage(h driver.CommandBuffer, i driver.Image, layout driver.ImageLayout, color driver.ClearColor, r driver.SubresourceRange) {
	cb, err := d.commandBuffer(h)
	if err != nil {
		return
	}
	image, ok := d.images.get(uint64(i))
	if !ok {
		return
	}
	var value vk.ClearColorValue
	*(*[4]float32)(unsafe.Pointer(&value)) = [4]float32(color)
	vk.CmdClearColorImage(cb, image, vk.ImageLayout(layout), &value, 1, []vk.ImageSubresourceRange{colorRange(r)})
}

func (d *Driver) queue(h driver.Queue) (vk.Queue, error) {
	q, ok := d.queues.get(uint64(h))
	if !ok {
		return nil, unknown("queue", uint64(h))
	}
	return q, nil
}

// fence returns the null fence for handle 0.
func (d *Driver) fence(h driver.Fence) (vk.Fence, error) {
	if h == 0 {
		return vk.Fence(vk.NullHandle), nil
	}
	f, ok := d.fences.get(uint64(h))
	if !ok {
		return nil, unknown("fence", uint64(h))
	}
	return f, nil
}

// QueueSubmit implements driver.DeviceFunctions.
func (d *Driver) QueueSubmit(h driver.Queue, submits []driver.SubmitInfo, f driver.Fence) error {
	queue, err := d.queue(h)
	if err != nil {
		return err
	}
	fence, err := d.fence(f)
	if err != nil {
		return err
	}
	infos := make([]vk.SubmitInfo, len(submits))
	for i, s := range submits {
		waits, err := d.semaphoreList(s.WaitSemaphores)
		if err != nil {
			return err
		}
		signals, err := d.semaphoreList(s.SignalSemaphores)
		if err != nil {
			return err
		}
		stages := make([]vk.PipelineStageFlags, len(s.WaitStages))
		for j, st := range s.WaitStages {
			stages[j] = vk.PipelineStageFlags(st)
		}
		cbs := make([]vk.CommandBuffer, len(s.CommandBuffers))
		for j, c := range s.CommandBuffers {
			if cbs[j], err = d.commandBuffer(c); err != nil {
				return err
			}
		}
		infos[i] = vk.SubmitInfo{
			SType:                vk.StructureTypeSubmitInfo,
			WaitSemaphoreCount:   uint32(len(waits)),
			PWaitSemaphores:      waits,
			PWaitDstStageMask:    stages,
			CommandBufferCount:   uint32(len(cbs)),
			PCommandBuffers:      cbs,
			SignalSemaphoreCount: uint32(len(signals)),
			PSignalSemaphores:    signals,
		}
	}
	return check(vk.QueueSubmit(queue, uint32(len(infos)), infos, fence))
}

// QueueWaitIdle implements driver.DeviceFunctions.
func (d *Driver) QueueWaitIdle(h driver.Queue) error {
	queue, err := d.queue(h)
	if err != nil {
		return err
	}
	return check(vk.QueueWaitIdle(queue))
}
