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
	"sync"
	"time"

	"github.com/google/gapid/core/fault"
	"github.com/google/gapid/core/log"
	"github.com/google/gapid/core/vulkan/driver"
	"github.com/pkg/errors"
)

// forwardAcquireTimeout bounds the wait for a native image. A frame that
// finds none is not forwarded.
const forwardAcquireTimeout = time.Second

// baseInfo describes the native presentation a virtual swapchain is chained
// to.
type baseInfo struct {
	instance       driver.Instance
	instanceFns    driver.InstanceFunctions
	physicalDevice driver.PhysicalDevice
	device         *device
	family         uint32
	surface        driver.SurfaceCreateInfo
	images         int
	frame          frameInfo
}

// BaseSwapchain shows the frames of a virtual swapchain on a native surface
// by blitting each presented image into a real swapchain.
type BaseSwapchain struct {
	mutex sync.Mutex

	instance    driver.Instance
	instanceFns driver.InstanceFunctions
	device      *device
	surface     driver.Surface
	swapchain   driver.Swapchain
	images      []driver.Image
	extent      driver.Extent2D
	commandPool driver.CommandPool

	acquireSemaphore driver.Semaphore
	// Per virtual image.
	blitSemaphores    []driver.Semaphore
	presentSemaphores []driver.Semaphore
	pendingBlit       []bool
	// Two per virtual image, used alternately.
	commandBuffers []driver.CommandBuffer
	fences         []driver.Fence
	next           []int
}

func newBaseSwapchain(ctx context.Context, info baseInfo) (out *BaseSwapchain, err error) {
	d, ifns := info.device, info.instanceFns
	b := &BaseSwapchain{
		instance:    info.instance,
		instanceFns: ifns,
		device:      d,
		extent:      info.frame.extent,
	}
	var undo teardown
	defer func() {
		if err != nil {
			undo.run()
		}
	}()

	if b.surface, err = ifns.CreateSurface(info.instance, &info.surface); err != nil {
		return nil, errors.Wrap(err, "creating native surface")
	}
	undo.add(func() { ifns.DestroySurface(info.instance, b.surface) })

	supported, err := ifns.GetPhysicalDeviceSurfaceSupport(info.physicalDevice, info.family, b.surface)
	if err != nil {
		return nil, errors.Wrap(err, "querying surface support")
	}
	if !supported {
		return nil, errors.Wrapf(ErrPresentUnsupported, "queue family %d", info.family)
	}
	caps, err := ifns.GetPhysicalDeviceSurfaceCapabilities(info.physicalDevice, b.surface)
	if err != nil {
		return nil, errors.Wrap(err, "querying surface capabilities")
	}
	formats, err := ifns.GetPhysicalDeviceSurfaceFormats(info.physicalDevice, b.surface)
	if err != nil {
		return nil, errors.Wrap(err, "querying surface formats")
	}
	if len(formats) == 0 {
		return nil, errors.Wrap(driver.ErrorFormatNotSupported, "surface has no formats")
	}
	format := formats[0]
	for _, f := range formats {
		if f.Format == info.frame.format {
			format = f
			break
		}
	}
	count := caps.MinImageCount + 1
	if caps.MaxImageCount != 0 && count > caps.MaxImageCount {
		count = caps.MaxImageCount
	}

	b.swapchain, err = d.fns.CreateSwapchain(d.handle, &driver.SwapchainCreateInfo{
		Surface:            b.surface,
		MinImageCount:      count,
		Format:             format.Format,
		ColorSpace:         format.ColorSpace,
		Extent:             info.frame.extent,
		ArrayLayers:        1,
		Usage:              driver.ImageUsageTransferDst,
		QueueFamilyIndices: []uint32{info.family},
		PresentMode:        driver.PresentModeFIFO,
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating native swapchain")
	}
	undo.add(func() { d.fns.DestroySwapchain(d.handle, b.swapchain) })
	if b.images, err = d.fns.GetSwapchainImages(d.handle, b.swapchain); err != nil {
		return nil, errors.Wrap(err, "getting native swapchain images")
	}

	semaphore := func() (driver.Semaphore, error) {
		s, err := d.fns.CreateSemaphore(d.handle)
		if err == nil {
			undo.add(func() { d.fns.DestroySemaphore(d.handle, s) })
		}
		return s, err
	}
	if b.acquireSemaphore, err = semaphore(); err != nil {
		return nil, errors.Wrap(err, "creating acquire semaphore")
	}
	n := info.images
	b.blitSemaphores = make([]driver.Semaphore, n)
	b.presentSemaphores = make([]driver.Semaphore, n)
	b.pendingBlit = make([]bool, n)
	b.next = make([]int, n)
	for i := 0; i < n; i++ {
		if b.blitSemaphores[i], err = semaphore(); err != nil {
			return nil, errors.Wrap(err, "creating blit semaphore")
		}
		if b.presentSemaphores[i], err = semaphore(); err != nil {
			return nil, errors.Wrap(err, "creating present semaphore")
		}
	}

	if b.commandPool, err = d.fns.CreateCommandPool(d.handle, info.family); err != nil {
		return nil, errors.Wrap(err, "creating blit command pool")
	}
	undo.add(func() { d.fns.DestroyCommandPool(d.handle, b.commandPool) })
	if b.commandBuffers, err = d.fns.AllocateCommandBuffers(d.handle, b.commandPool, uint32(2*n)); err != nil {
		return nil, errors.Wrap(err, "allocating blit command buffers")
	}
	undo.add(func() { d.fns.FreeCommandBuffers(d.handle, b.commandPool, b.commandBuffers) })
	b.fences = make([]driver.Fence, 0, 2*n)
	for i := 0; i < 2*n; i++ {
		f, err := d.fns.CreateFence(d.handle, true)
		if err != nil {
			return nil, errors.Wrap(err, "creating blit fence")
		}
		undo.add(func() { d.fns.DestroyFence(d.handle, f) })
		b.fences = append(b.fences, f)
	}
	log.I(ctx, "Forwarding presents to a %dx%d native swapchain with %d images",
		b.extent.Width, b.extent.Height, len(b.images))
	return b, nil
}

// Surface returns the native surface frames are shown on.
func (b *BaseSwapchain) Surface() driver.Surface { return b.surface }

// Swapchain returns the real swapchain frames are presented to.
func (b *BaseSwapchain) Swapchain() driver.Swapchain { return b.swapchain }

// BlitWaitSemaphore returns the semaphore signalled by the last blit from the
// virtual image, if that blit has not yet been waited on. The next write to
// the virtual image must wait on it.
func (b *BaseSwapchain) BlitWaitSemaphore(index uint32) (driver.Semaphore, bool) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if int(index) >= len(b.pendingBlit) || !b.pendingBlit[index] {
		return 0, false
	}
	return b.blitSemaphores[index], true
}

// consumeBlit records that a submission now waits on the blit semaphore of
// the virtual image.
func (b *BaseSwapchain) consumeBlit(index uint32) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.pendingBlit[index] = false
}

// forward shows the virtual image on the native surface. A native image that
// was acquired is always presented again, even when the blit fails.
func (b *BaseSwapchain) forward(ctx context.Context, queue driver.Queue, index uint32, src driver.Image) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	target, err := b.acquireReal(ctx)
	if err != nil {
		return err
	}
	if err := b.blit(ctx, queue, index, src, target); err != nil {
		b.giveBack(ctx, queue, index, target)
		return err
	}
	return b.present(queue, index, target)
}

// giveBack presents a native image that could not be blitted into, so the
// real swapchain does not run out of images. The acquire semaphore is
// consumed by an empty submission. Must be called with the mutex held.
func (b *BaseSwapchain) giveBack(ctx context.Context, queue driver.Queue, index uint32, target uint32) {
	d := b.device
	err := d.fns.QueueSubmit(queue, []driver.SubmitInfo{{
		WaitSemaphores:   []driver.Semaphore{b.acquireSemaphore},
		WaitStages:       []driver.PipelineStage{driver.PipelineStageBottomOfPipe},
		SignalSemaphores: []driver.Semaphore{b.presentSemaphores[index]},
	}}, 0)
	if err != nil {
		bestEffort(ctx, "Releasing the native image", err)
		return
	}
	bestEffort(ctx, "Returning the native image", b.present(queue, index, target))
}

// acquireReal acquires an image of the real swapchain. The acquire semaphore
// is signalled once it may be written.
func (b *BaseSwapchain) acquireReal(ctx context.Context) (uint32, error) {
	d := b.device
	target, err := d.fns.AcquireNextImage(d.handle, b.swapchain, uint64(forwardAcquireTimeout), b.acquireSemaphore, 0)
	if err != nil && errors.Cause(err) != driver.Suboptimal {
		return 0, errors.Wrap(err, "acquiring native image")
	}
	return target, nil
}

// blit copies layer 0 of the virtual image into the real image. On success
// the present semaphore of index is signalled once the copy is done. Must be
// called with the mutex held.
func (b *BaseSwapchain) blit(ctx context.Context, queue driver.Queue, index uint32, src driver.Image, target uint32) error {
	d := b.device
	k := 2*int(index) + b.next[index]
	b.next[index] ^= 1
	cb, fence := b.commandBuffers[k], b.fences[k]
	fences := []driver.Fence{fence}
	if err := d.fns.WaitForFences(d.handle, fences, true, driver.MaxTimeout); err != nil {
		return errors.Wrap(err, "waiting for blit fence")
	}
	if err := d.fns.ResetFences(d.handle, fences); err != nil {
		return errors.Wrap(err, "resetting blit fence")
	}

	dst := b.images[target]
	layer0 := driver.SubresourceRange{BaseLayer: 0, LayerCount: 1}
	if err := d.fns.BeginCommandBuffer(cb); err != nil {
		return errors.Wrap(err, "recording blit")
	}
	d.fns.CmdPipelineBarrier(cb, driver.PipelineStageAllCommands, driver.PipelineStageTransfer, nil,
		[]driver.ImageBarrier{
			{
				SrcAccess: driver.AccessMemoryRead,
				DstAccess: driver.AccessTransferRead,
				OldLayout: driver.ImageLayoutPresentSrc,
				NewLayout: driver.ImageLayoutTransferSrcOptimal,
				Image:     src,
				Range:     layer0,
			},
			{
				DstAccess: driver.AccessTransferWrite,
				OldLayout: driver.ImageLayoutUndefined,
				NewLayout: driver.ImageLayoutTransferDstOptimal,
				Image:     dst,
				Range:     layer0,
			},
		})
	corner := driver.Offset3D{X: int32(b.extent.Width), Y: int32(b.extent.Height), Z: 1}
	d.fns.CmdBlitImage(cb, src, driver.ImageLayoutTransferSrcOptimal, dst, driver.ImageLayoutTransferDstOptimal,
		[]driver.ImageBlit{{
			SrcLayer:   0,
			SrcOffsets: [2]driver.Offset3D{{}, corner},
			DstLayer:   0,
			DstOffsets: [2]driver.Offset3D{{}, corner},
		}}, driver.FilterNearest)
	d.fns.CmdPipelineBarrier(cb, driver.PipelineStageTransfer, driver.PipelineStageBottomOfPipe, nil,
		[]driver.ImageBarrier{
			{
				SrcAccess: driver.AccessTransferRead,
				DstAccess: driver.AccessMemoryRead,
				OldLayout: driver.ImageLayoutTransferSrcOptimal,
				NewLayout: driver.ImageLayoutPresentSrc,
				Image:     src,
				Range:     layer0,
			},
			{
				SrcAccess: driver.AccessTransferWrite,
				DstAccess: driver.AccessMemoryRead,
				OldLayout: driver.ImageLayoutTransferDstOptimal,
				NewLayout: driver.ImageLayoutPresentSrc,
				Image:     dst,
				Range:     layer0,
			},
		})
	if err := d.fns.EndCommandBuffer(cb); err != nil {
		return errors.Wrap(err, "recording blit")
	}

	err := d.fns.QueueSubmit(queue, []driver.SubmitInfo{{
		WaitSemaphores:   []driver.Semaphore{b.acquireSemaphore},
		WaitStages:       []driver.PipelineStage{driver.PipelineStageTransfer},
		CommandBuffers:   []driver.CommandBuffer{cb},
		SignalSemaphores: []driver.Semaphore{b.blitSemaphores[index], b.presentSemaphores[index]},
	}}, fence)
	if err != nil {
		return errors.Wrap(err, "submitting blit")
	}
	b.pendingBlit[index] = true
	return nil
}

// present queues the real image for display once the present semaphore of
// index is signalled.
func (b *BaseSwapchain) present(queue driver.Queue, index uint32, target uint32) error {
	d := b.device
	err := d.fns.QueuePresent(queue, &driver.PresentInfo{
		WaitSemaphores: []driver.Semaphore{b.presentSemaphores[index]},
		Swapchains:     []driver.Swapchain{b.swapchain},
		ImageIndices:   []uint32{target},
	})
	if err != nil && errors.Cause(err) != driver.Suboptimal {
		return errors.Wrap(err, "presenting native image")
	}
	return nil
}

// Destroy waits for the device to finish using the base, then releases its
// objects and the native surface.
func (b *BaseSwapchain) Destroy(ctx context.Context) error {
	log.D(ctx, "Destroying native swapchain")
	b.mutex.Lock()
	defer b.mutex.Unlock()
	d := b.device
	var errs fault.List
	errs.Collect(d.fns.DeviceWaitIdle(d.handle))
	for _, f := range b.fences {
		d.fns.DestroyFence(d.handle, f)
	}
	d.fns.FreeCommandBuffers(d.handle, b.commandPool, b.commandBuffers)
	d.fns.DestroyCommandPool(d.handle, b.commandPool)
	for i := range b.blitSemaphores {
		d.fns.DestroySemaphore(d.handle, b.blitSemaphores[i])
		d.fns.DestroySemaphore(d.handle, b.presentSemaphores[i])
	}
	d.fns.DestroySemaphore(d.handle, b.acquireSemaphore)
	d.fns.DestroySwapchain(d.handle, b.swapchain)
	b.instanceFns.DestroySurface(b.instance, b.surface)
	return errs.First()
}
