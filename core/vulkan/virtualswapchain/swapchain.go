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

	"github.com/google/gapid/core/event/task"
	"github.com/google/gapid/core/fault"
	"github.com/google/gapid/core/log"
	"github.com/google/gapid/core/vulkan/driver"
	"github.com/pkg/errors"
)

// Callback receives the pixels of every presented frame, in present order.
// data holds one plane per array layer, see Planes. It is only valid for the
// duration of the call.
type Callback func(userData interface{}, data []byte)

// Swapchain is a swapchain whose images are never shown. Each presented
// image is copied into host memory and handed to a Callback.
type Swapchain struct {
	handle      driver.Swapchain
	device      *device
	family      uint32
	queue       driver.Queue
	info        frameInfo
	cfg         Config
	pinned      bool
	commandPool driver.CommandPool
	slots       []*slot
	pool        *pool
	dataSize    int

	mutex    sync.Mutex
	callback Callback
	userData interface{}
	base     *BaseSwapchain
	// Read-held by presents using base, so a replaced base is only
	// destroyed once no present can still forward to it.
	baseUse sync.RWMutex

	worker  task.Handle
	destroy task.Task
}

// newSwapchain allocates the images of a virtual swapchain and starts its
// copy-back worker. queue is used for the submissions that signal acquire
// semaphores.
func newSwapchain(ctx context.Context, d *device, family uint32, queue driver.Queue,
	info *driver.SwapchainCreateInfo, cfg Config, pinned bool) (*Swapchain, error) {

	count := info.MinImageCount
	if count == 0 {
		count = 1
	}
	fi := frameInfo{
		format: info.Format,
		extent: info.Extent,
		layers: info.ArrayLayers,
		usage:  info.Usage,
	}
	if fi.layers == 0 {
		fi.layers = 1
	}
	ctx = log.V{"extent": fi.extent, "layers": fi.layers, "images": count}.Bind(ctx)

	cp, err := d.fns.CreateCommandPool(d.handle, family)
	if err != nil {
		return nil, errors.Wrap(err, `allocation "command pool"`)
	}
	slots, err := newSlots(ctx, d, cp, fi, count)
	if err != nil {
		d.fns.DestroyCommandPool(d.handle, cp)
		return nil, err
	}
	s := &Swapchain{
		device:      d,
		family:      family,
		queue:       queue,
		info:        fi,
		cfg:         cfg,
		pinned:      pinned,
		commandPool: cp,
		slots:       slots,
		pool:        newPool(len(slots)),
		dataSize:    DataSize(fi.extent, fi.layers),
	}
	s.destroy = task.Once(s.teardown)
	s.worker = task.Go(context.WithoutCancel(ctx), s.copyBack)
	log.D(ctx, "Virtual swapchain created")
	return s, nil
}

// Handle returns the handle the application uses for the swapchain.
func (s *Swapchain) Handle() driver.Swapchain { return s.handle }

// Extent returns the size of the swapchain images.
func (s *Swapchain) Extent() driver.Extent2D { return s.info.extent }

// Layers returns the number of array layers of the swapchain images.
func (s *Swapchain) Layers() uint32 { return s.info.layers }

// Format returns the format of the swapchain images.
func (s *Swapchain) Format() driver.Format { return s.info.format }

// Images returns the swapchain images, in index order.
func (s *Swapchain) Images() []driver.Image {
	out := make([]driver.Image, len(s.slots))
	for i, sl := range s.slots {
		out[i] = sl.image
	}
	return out
}

// SetCallback replaces the function that receives presented frames.
func (s *Swapchain) SetCallback(cb Callback, userData interface{}) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.callback, s.userData = cb, userData
}

func (s *Swapchain) getCallback() (Callback, interface{}) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.callback, s.userData
}

// Base returns the presenter chained to a native surface, or nil.
func (s *Swapchain) Base() *BaseSwapchain {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.base
}

func (s *Swapchain) setBase(b *BaseSwapchain) *BaseSwapchain {
	s.baseUse.Lock()
	defer s.baseUse.Unlock()
	s.mutex.Lock()
	defer s.mutex.Unlock()
	old := s.base
	s.base = b
	return old
}

// Acquire hands an image to the application. The timeout is in nanoseconds:
// 0 returns driver.NotReady at once if no image is free, math.MaxUint64
// waits until one is, any other value returns driver.Timeout when it
// expires. In pinned mode only the image at index preferred is handed out.
func (s *Swapchain) Acquire(ctx context.Context, timeout uint64, preferred uint32) (uint32, error) {
	return s.pool.acquire(ctx, timeout, s.pinned, preferred)
}

// Present submits the copy of an acquired image on queue, after the wait
// semaphores are signalled. The image is owned by the swapchain again once
// Present returns without error.
func (s *Swapchain) Present(ctx context.Context, queue driver.Queue, index uint32, waits []driver.Semaphore) error {
	if err := s.pool.beginPresent(index); err != nil {
		return err
	}
	sl, fns := s.slots[index], s.device.fns
	submit := driver.SubmitInfo{
		WaitSemaphores: append([]driver.Semaphore{}, waits...),
		CommandBuffers: []driver.CommandBuffer{sl.commandBuffer},
	}
	for range waits {
		submit.WaitStages = append(submit.WaitStages, driver.PipelineStageTransfer)
	}
	s.baseUse.RLock()
	defer s.baseUse.RUnlock()
	base := s.Base()
	blit, pendingBlit := driver.Semaphore(0), false
	if base != nil {
		if blit, pendingBlit = base.BlitWaitSemaphore(index); pendingBlit {
			submit.WaitSemaphores = append(submit.WaitSemaphores, blit)
			submit.WaitStages = append(submit.WaitStages, driver.PipelineStageTransfer)
		}
	}
	if err := fns.QueueSubmit(queue, []driver.SubmitInfo{submit}, sl.fence); err != nil {
		s.pool.endPresent(index, false)
		return log.Errf(ctx, err, "Submitting the copy of image %d", index)
	}
	if pendingBlit {
		base.consumeBlit(index)
	}
	if base != nil && s.cfg.ForwardPresent {
		bestEffort(ctx, "Forwarding present", base.forward(ctx, queue, index, sl.image))
	}
	s.pool.endPresent(index, true)
	return nil
}

// Destroy waits for every pending frame to be delivered, then releases all
// the resources of the swapchain. Only the first call has any effect.
func (s *Swapchain) Destroy(ctx context.Context) error {
	return s.destroy(ctx)
}

func (s *Swapchain) teardown(ctx context.Context) error {
	s.pool.shutdown(ctx)
	var errs fault.List
	errs.Collect(s.worker.Result(context.WithoutCancel(ctx)))
	// Blits of the base read the slot images, so it goes first.
	if b := s.setBase(nil); b != nil {
		errs.Collect(b.Destroy(ctx))
	}
	d := s.device
	for _, sl := range s.slots {
		if sl.abandoned {
			log.W(ctx, "Leaking the resources of image %d", sl.index)
			continue
		}
		sl.destroy(d, s.commandPool)
	}
	d.fns.DestroyCommandPool(d.handle, s.commandPool)
	log.D(ctx, "Virtual swapchain destroyed")
	return errs.First()
}
