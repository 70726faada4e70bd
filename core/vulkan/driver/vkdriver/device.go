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

func (d *Driver) device(h driver.Device) (vk.Device, error) {
	dev, ok := d.devices.get(uint64(h))
	if !ok {
		return nil, unknown("device", uint64(h))
	}
	return dev, nil
}

// DestroyDevice implements driver.DeviceFunctions.
func (d *Driver) DestroyDevice(h driver.Device) {
	dev, ok := d.devices.remove(uint64(h))
	if !ok {
		return
	}
	d.mutex.Lock()
	for k, q := range d.queueCache {
		if k.device == h {
			d.queues.remove(uint64(q))
			delete(d.queueCache, k)
		}
	}
	d.mutex.Unlock()
	vk.DestroyDevice(dev, nil)
}

// GetDeviceQueue implements driver.DeviceFunctions.
func (d *Driver) GetDeviceQueue(h driver.Device, family, index uint32) driver.Queue {
	dev, err := d.device(h)
	if err != nil {
		return 0
	}
	d.mutex.Lock()
	defer d.mutex.Unlock()
	key := queueKey{h, family, index}
	if q, ok := d.queueCache[key]; ok {
		return q
	}
	var queue vk.Queue
	vk.GetDeviceQueue(dev, family, index, &queue)
	q := driver.Queue(d.queues.add(queue))
	d.queueCache[key] = q
	return q
}

// DeviceWaitIdle implements driver.DeviceFunctions.
func (d *Driver) DeviceWaitIdle(h driver.Device) error {
	dev, err := d.device(h)
	if err != nil {
		return err
	}
	return check(vk.DeviceWaitIdle(dev))
}

// CreateImage implements driver.DeviceFunctions.
func (d *Driver) CreateImage(h driver.Device, info *driver.ImageCreateInfo) (driver.Image, error) {
	dev, err := d.device(h)
	if err != nil {
		return 0, err
	}
	create := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    vk.Format(info.Format),
		Extent: vk.Extent3D{
			Width:  info.Extent.Width,
			Height: info.Extent.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   info.ArrayLayers,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTiling(info.Tiling),
		Usage:         vk.ImageUsageFlags(info.Usage),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	var image vk.Image
	if err := check(vk.CreateImage(dev, &create, nil, &image)); err != nil {
		return 0, err
	}
	return driver.Image(d.images.add(image)), nil
}

// DestroyImage implements driver.DeviceFunctions.
func (d *Driver) DestroyImage(h driver.Device, i driver.Image) {
	dev, err := d.device(h)
	if err != nil {
		return
	}
	if image, ok := d.images.remove(uint64(i)); ok {
		vk.DestroyImage(dev, image, nil)
	}
}

func requirements(r vk.MemoryRequirements) driver.MemoryRequirements {
	r.Deref()
	return driver.MemoryRequirements{
		Size:      driver.DeviceSize(r.Size),
		Alignment: driver.DeviceSize(r.Alignment),
		TypeBits:  r.MemoryTypeBits,
	}
}

// GetImageMemoryRequirements implements driver.DeviceFunctions.
func (d *Driver) GetImageMemoryRequirements(h driver.Device, i driver.Image) driver.MemoryRequirements {
	dev, err := d.device(h)
	if err != nil {
		return driver.MemoryRequirements{}
	}
	image, ok := d.images.get(uint64(i))
	if !ok {
		return driver.MemoryRequirements{}
	}
	var reqs vk.MemoryRequirements
	vk.GetImageMemoryRequirements(dev, image, &reqs)
	return requirements(reqs)
}

// BindImageMemory implements driver.DeviceFunctions.
func (d *Driver) BindImageMemory(h driver.Device, i driver.Image, m driver.DeviceMemory, offset driver.DeviceSize) error {
	dev, err := d.device(h)
	if err != nil {
		return err
	}
	image, ok := d.images.get(uint64(i))
	if !ok {
		return unknown("image", uint64(i))
	}
	mem, ok := d.memories.get(uint64(m))
	if !ok {
		return unknown("memory", uint64(m))
	}
	return check(vk.BindImageMemory(dev, image, mem.handle, vk.DeviceSize(offset)))
}

// CreateBuffer implements driver.DeviceFunctions.
func (d *Driver) CreateBuffer(h driver.Device, info *driver.BufferCreateInfo) (driver.Buffer, error) {
	dev, err := d.device(h)
	if err != nil {
		return 0, err
	}
	create := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(info.Size),
		Usage:       vk.BufferUsageFlags(info.Usage),
		SharingMode: vk.SharingModeExclusive,
	}
	var buffer vk.Buffer
	if err := check(vk.CreateBuffer(dev, &create, nil, &buffer)); err != nil {
		return 0, err
	}
	return driver.Buffer(d.buffers.add(buffer)), nil
}

// DestroyBuffer implements driver.DeviceFunctions.
func (d *Driver) DestroyBuffer(h driver.Device, b driver.Buffer) {
	dev, err := d.device(h)
	if err != nil {
		return
	}
	if buffer, ok := d.buffers.remove(uint64(b)); ok {
		vk.DestroyBuffer(dev, buffer, nil)
	}
}

// GetBufferMemoryRequirements implements driver.DeviceFunctions.
func (d *Driver) GetBufferMemoryRequirements(h driver.Device, b driver.Buffer) driver.MemoryRequirements {
	dev, err := d.device(h)
	if err != nil {
		return driver.MemoryRequirements{}
	}
	buffer, ok := d.buffers.get(uint64(b))
	if !ok {
		return driver.MemoryRequirements{}
	}
	var reqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(dev, buffer, &reqs)
	return requirements(reqs)
}

// BindBufferMemory implements driver.DeviceFunctions.
func (d *Driver) BindBufferMemory(h driver.Device, b driver.Buffer, m driver.DeviceMemory, offset driver.DeviceSize) error {
	dev, err := d.device(h)
	if err != nil {
		return err
	}
	buffer, ok := d.buffers.get(uint64(b))
	if !ok {
		return unknown("buffer", uint64(b))
	}
	mem, ok := d.memories.get(uint64(m))
	if !ok {
		return unknown("memory", uint64(m))
	}
	return check(vk.BindBufferMemory(dev, buffer, mem.handle, vk.DeviceSize(offset)))
}

// AllocateMemory implements driver.DeviceFunctions.
func (d *Driver) AllocateMemory(h driver.Device, size driver.DeviceSize, typeIndex uint32) (driver.DeviceMemory, error) {
	dev, err := d.device(h)
	if err != nil {
		return 0, err
	}
	info := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  vk.DeviceSize(size),
		MemoryTypeIndex: typeIndex,
	}
	var mem vk.DeviceMemory
	if err := check(vk.AllocateMemory(dev, &info, nil, &mem)); err != nil {
		return 0, err
	}
	return driver.DeviceMemory(d.memories.add(memory{mem, size})), nil
}

// FreeMemory implements driver.DeviceFunctions.
func (d *Driver) FreeMemory(h driver.Device, m driver.DeviceMemory) {
	dev, err := d.device(h)
	if err != nil {
		return
	}
	if mem, ok := d.memories.remove(uint64(m)); ok {
		vk.FreeMemory(dev, mem.handle, nil)
	}
}

// MapMemory maps the range and returns it as a byte slice aliasing the
// mapping. The slice must not be used after UnmapMemory.
func (d *Driver) MapMemory(h driver.Device, m driver.DeviceMemory, offset, size driver.DeviceSize) ([]byte, error) {
	dev, err := d.device(h)
	if err != nil {
		return nil, err
	}
	mem, ok := d.memories.get(uint64(m))
	if !ok {
		return nil, unknown("memory", uint64(m))
	}
	if size == driver.WholeSize {
		size = mem.size - offset
	}
	var ptr unsafe.Pointer
	if err := check(vk.MapMemory(dev, mem.handle, vk.DeviceSize(offset), vk.DeviceSize(size), 0, &ptr)); err != nil {
		return nil, err
	}
	return unsafe.Slice((*byte)(ptr), int(size)), nil
}

// UnmapMemory implements driver.DeviceFunctions.
func (d *Driver) UnmapMemory(h driver.Device, m driver.DeviceMemory) {
	dev, err := d.device(h)
	if err != nil {
		return
	}
	if mem, ok := d.memories.get(uint64(m)); ok {
		vk.UnmapMemory(dev, mem.handle)
	}
}

// InvalidateMappedMemoryRanges implements driver.DeviceFunctions.
func (d *Driver) InvalidateMappedMemoryRanges(h driver.Device, m driver.DeviceMemory, offset, size driver.DeviceSize) error {
	dev, err := d.device(h)
	if err != nil {
		return err
	}
	mem, ok := d.memories.get(uint64(m))
	if !ok {
		return unknown("memory", uint64(m))
	}
	ranges := []vk.MappedMemoryRange{{
		SType:  vk.StructureTypeMappedMemoryRange,
		Memory: mem.handle,
		Offset: vk.DeviceSize(offset),
		Size:   vk.DeviceSize(size),
	}}
	return check(vk.InvalidateMappedMemoryRanges(dev, 1, ranges))
}

// CreateFence implements driver.DeviceFunctions.
func (d *Driver) CreateFence(h driver.Device, signaled bool) (driver.Fence, error) {
	dev, err := d.device(h)
	if err != nil {
		return 0, err
	}
	info := vk.FenceCreateInfo{SType: vk.StructureTypeFenceCreateInfo}
	if signaled {
		info.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	var fence vk.Fence
	if err := check(vk.CreateFence(dev, &info, nil, &fence)); err != nil {
		return 0, err
	}
	return driver.Fence(d.fences.add(fence)), nil
}

// DestroyFence implements driver.DeviceFunctions.
func (d *Driver) DestroyFence(h driver.Device, f driver.Fence) {
	dev, err := d.device(h)
	if err != nil {
		return
	}
	if fence, ok := d.fences.remove(uint64(f)); ok {
		vk.DestroyFence(dev, fence, nil)
	}
}

func (d *Driver) fenceList(fences []driver.Fence) ([]vk.Fence, error) {
	out := make([]vk.Fence, len(fences))
	for i, f := range fences {
		fence, ok := d.fences.get(uint64(f))
		if !ok {
			return nil, unknown("fence", uint64(f))
		}
		out[i] = fence
	}
	return out, nil
}

// WaitForFences implements driver.DeviceFunctions.
func (d *Driver) WaitForFences(h driver.Device, fences []driver.Fence, waitAll bool, timeout uint64) error {
	dev, err := d.device(h)
	if err != nil {
		return err
	}
	list, err := d.fenceList(fences)
	if err != nil {
		return err
	}
	all := vk.Bool32(vk.False)
	if waitAll {
		all = vk.True
	}
	return check(vk.WaitForFences(dev, uint32(len(list)), list, all, timeout))
}

// ResetFences implements driver.DeviceFunctions.
func (d *Driver) ResetFences(h driver.Device, fences []driver.Fence) error {
	dev, err := d.device(h)
	if err != nil {
		return err
	}
	list, err := d.fenceList(fences)
	if err != nil {
		return err
	}
	return check(vk.ResetFences(dev, uint32(len(list)), list))
}

// GetFenceStatus implements driver.DeviceFunctions.
func (d *Driver) GetFenceStatus(h driver.Device, f driver.Fence) error {
	dev, err := d.device(h)
	if err != nil {
		return err
	}
	fence, ok := d.fences.get(uint64(f))
	if !ok {
		return unknown("fence", uint64(f))
	}
	return check(vk.GetFenceStatus(dev, fence))
}

// CreateSemaphore implements driver.DeviceFunctions.
func (d *Driver) CreateSemaphore(h driver.Device) (driver.Semaphore, error) {
	dev, err := d.device(h)
	if err != nil {
		return 0, err
	}
	info := vk.SemaphoreCreateInfo{SType: vk.StructureTypeSemaphoreCreateInfo}
	var sem vk.Semaphore
	if err := check(vk.CreateSemaphore(dev, &info, nil, &sem)); err != nil {
		return 0, err
	}
	return driver.Semaphore(d.semaphores.add(sem)), nil
}

// DestroySemaphore implements driver.DeviceFunctions.
func (d *Driver) DestroySemaphore(h driver.Device, s driver.Semaphore) {
	dev, err := d.device(h)
	if err != nil {
		return
	}
	if sem, ok := d.semaphores.remove(uint64(s)); ok {
		vk.DestroySemaphore(dev, sem, nil)
	}
}

func (d *Driver) semaphoreList(sems []driver.Semaphore) ([]vk.Semaphore, error) {
	out := make([]vk.Semaphore, len(sems))
	for i, s := range sems {
		sem, ok := d.semaphores.get(uint64(s))
		if !ok {
			return nil, unknown("semaphore", uint64(s))
		}
		out[i] = sem
	}
	return out, nil
}
