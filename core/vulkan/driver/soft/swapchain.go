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

import "github.com/google/gapid/core/vulkan/driver"

type swapchain struct {
	device    driver.Device
	surface   driver.Surface
	info      driver.SwapchainCreateInfo
	images    []driver.Image
	memories  []driver.DeviceMemory
	available []uint32
	acquired  map[uint32]bool
}

type presentOp struct {
	swapchain driver.Swapchain
	index     uint32
}

// CreateSwapchain implements driver.DeviceFunctions. The swapchain owns at
// least two images backed by device local memory.
func (g *GPU) CreateSwapchain(d driver.Device, info *driver.SwapchainCreateInfo) (driver.Swapchain, error) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	if err := g.fail("CreateSwapchain"); err != nil {
		return 0, err
	}
	if _, err := g.surface(info.Surface); err != nil {
		return 0, err
	}
	if info.Extent.Width == 0 || info.Extent.Height == 0 || info.Extent.Width > maxExtent || info.Extent.Height > maxExtent {
		return 0, driver.ErrorInitializationFailed
	}
	count := info.MinImageCount
	if count < 2 {
		count = 2
	}
	layers := info.ArrayLayers
	if layers == 0 {
		layers = 1
	}
	s := &swapchain{device: d, surface: info.Surface, info: *info, acquired: map[uint32]bool{}}
	s.info.ArrayLayers = layers
	for i := uint32(0); i < count; i++ {
		img := &image{
			info: driver.ImageCreateInfo{
				Format:      info.Format,
				Extent:      info.Extent,
				ArrayLayers: layers,
				Usage:       info.Usage,
			},
			owned: true,
		}
		mem := &memory{typeIndex: DeviceLocalMemory, data: make([]byte, img.size()), owned: true}
		img.memory = driver.DeviceMemory(g.memories.add(mem))
		s.memories = append(s.memories, img.memory)
		s.images = append(s.images, driver.Image(g.images.add(img)))
		s.available = append(s.available, i)
	}
	return driver.Swapchain(g.swapchains.add(s)), nil
}

// DestroySwapchain implements driver.DeviceFunctions.
func (g *GPU) DestroySwapchain(_ driver.Device, h driver.Swapchain) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	s := g.swapchains.remove(uint64(h))
	if s == nil {
		return
	}
	for i := range s.images {
		g.images.remove(uint64(s.images[i]))
		g.memories.remove(uint64(s.memories[i]))
	}
}

// GetSwapchainImages implements driver.DeviceFunctions.
func (g *GPU) GetSwapchainImages(_ driver.Device, h driver.Swapchain) ([]driver.Image, error) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	s := g.swapchains.get(uint64(h))
	if s == nil {
		return nil, driver.ErrorOutOfDate
	}
	return append([]driver.Image{}, s.images...), nil
}

// AcquireNextImage implements driver.DeviceFunctions. The semaphore and fence
// are signalled as soon as an image is handed out.
func (g *GPU) AcquireNextImage(_ driver.Device, h driver.Swapchain, timeout uint64, sem driver.Semaphore, f driver.Fence) (uint32, error) {
	g.mutex.Lock()
	err := g.fail("AcquireNextImage")
	g.mutex.Unlock()
	if err != nil {
		return 0, err
	}
	var index uint32
	err = g.waitUntil(timeout, func() (bool, error) {
		s := g.swapchains.get(uint64(h))
		if s == nil {
			return false, driver.ErrorOutOfDate
		}
		if _, err := g.surface(s.surface); err != nil {
			return false, err
		}
		if len(s.available) == 0 {
			return false, nil
		}
		index, s.available = s.available[0], s.available[1:]
		s.acquired[index] = true
		if se := g.semaphores.get(uint64(sem)); se != nil {
			se.count++
		}
		if fe := g.fences.get(uint64(f)); fe != nil {
			fe.signaled = true
		}
		return true, nil
	})
	if err != nil {
		if err == driver.Timeout && timeout == 0 {
			return 0, driver.NotReady
		}
		return 0, err
	}
	g.changed.Notify()
	return index, nil
}

// QueuePresent implements driver.DeviceFunctions. The presentation executes on
// the queue after the wait semaphores are signalled.
func (g *GPU) QueuePresent(h driver.Queue, info *driver.PresentInfo) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	if err := g.fail("QueuePresent"); err != nil {
		return err
	}
	q := g.queues.get(uint64(h))
	if q == nil {
		return driver.ErrorDeviceLost
	}
	work := &submission{waits: append([]driver.Semaphore{}, info.WaitSemaphores...)}
	var first error
	for i, sc := range info.Swapchains {
		result := driver.Success
		s := g.swapchains.get(uint64(sc))
		switch {
		case s == nil:
			result = driver.ErrorOutOfDate
		case i >= len(info.ImageIndices) || !s.acquired[info.ImageIndices[i]]:
			result = driver.ErrorOutOfDate
		default:
			if _, err := g.surface(s.surface); err != nil {
				result = driver.ErrorSurfaceLost
				break
			}
			delete(s.acquired, info.ImageIndices[i])
			work.presents = append(work.presents, presentOp{swapchain: sc, index: info.ImageIndices[i]})
		}
		if i < len(info.Results) {
			info.Results[i] = result
		}
		if result != driver.Success && first == nil {
			first = result
		}
	}
	g.enqueue(q, work)
	return first
}

// present records a frame on the surface and returns the image to the
// swapchain. Must be called with the mutex held.
func (g *GPU) present(p presentOp) {
	s := g.swapchains.get(uint64(p.swapchain))
	if s == nil {
		return
	}
	if surf := g.surfaces.get(uint64(s.surface)); surf != nil {
		_, pixels := g.imageBytes(s.images[p.index])
		surf.frames = append(surf.frames, Frame{
			Swapchain: p.swapchain,
			Index:     p.index,
			Extent:    s.info.Extent,
			Data:      append([]byte(nil), pixels...),
		})
	}
	s.available = append(s.available, p.index)
}
