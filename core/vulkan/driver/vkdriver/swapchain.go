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
	vk "github.com/goki/vulkan"
	"github.com/google/gapid/core/vulkan/driver"
)

// CreateSwapchain implements driver.DeviceFunctions.
func (d *Driver) CreateSwapchain(h driver.Device, info *driver.SwapchainCreateInfo) (driver.Swapchain, error) {
	dev, err := d.device(h)
	if err != nil {
		return 0, err
	}
	surface, ok := d.surfaces.get(uint64(info.Surface))
	if !ok {
		return 0, unknown("surface", uint64(info.Surface))
	}
	old := vk.Swapchain(vk.NullHandle)
	if info.OldSwapchain != 0 {
		sc, ok := d.swapchains.get(uint64(info.OldSwapchain))
		if !ok {
			return 0, unknown("swapchain", uint64(info.OldSwapchain))
		}
		old = sc.handle
	}
	sharing := vk.SharingModeExclusive
	if len(info.QueueFamilyIndices) > 1 {
		sharing = vk.SharingModeConcurrent
	}
	create := vk.SwapchainCreateInfo{
		SType:           vk.StructureTypeSwapchainCreateInfo,
		Surface:         surface,
		MinImageCount:   info.MinImageCount,
		ImageFormat:     vk.Format(info.Format),
		ImageColorSpace: vk.ColorSpace(info.ColorSpace),
		ImageExtent: vk.Extent2D{
			Width:  info.Extent.Width,
			Height: info.Extent.Height,
		},
		ImageArrayLayers:      info.ArrayLayers,
		ImageUsage:            vk.ImageUsageFlags(info.Usage),
		ImageSharingMode:      sharing,
		QueueFamilyIndexCount: uint32(len(info.QueueFamilyIndices)),
		PQueueFamilyIndices:   info.QueueFamilyIndices,
		PreTransform:          vk.SurfaceTransformIdentityBit,
		CompositeAlpha:        vk.CompositeAlphaOpaqueBit,
		PresentMode:           vk.PresentMode(info.PresentMode),
		Clipped:               vk.True,
		OldSwapchain:          old,
	}
	var handle vk.Swapchain
	if err := check(vk.CreateSwapchain(dev, &create, nil, &handle)); err != nil {
		return 0, err
	}
	var count uint32
	if err := check(vk.GetSwapchainImages(dev, handle, &count, nil)); err != nil {
		vk.DestroySwapchain(dev, handle, nil)
		return 0, err
	}
	images := make([]vk.Image, count)
	if err := check(vk.GetSwapchainImages(dev, handle, &count, images)); err != nil {
		vk.DestroySwapchain(dev, handle, nil)
		return 0, err
	}
	sc := &swapchain{handle: handle, images: make([]driver.Image, count)}
	for i, img := range images[:count] {
		sc.images[i] = driver.Image(d.images.add(img))
	}
	return driver.Swapchain(d.swapchains.add(sc)), nil
}

// DestroySwapchain also retires the handles of the swapchain's images, which
// are owned by the swapchain and never destroyed individually.
func (d *Driver) DestroySwapchain(h driver.Device, s driver.Swapchain) {
	dev, err := d.device(h)
	if err != nil {
		return
	}
	sc, ok := d.swapchains.remove(uint64(s))
	if !ok {
		return
	}
	for _, img := range sc.images {
		d.images.remove(uint64(img))
	}
	vk.DestroySwapchain(dev, sc.handle, nil)
}

// GetSwapchainImages implements driver.DeviceFunctions.
func (d *Driver) GetSwapchainImages(h driver.Device, s driver.Swapchain) ([]driver.Image, error) {
	if _, err := d.device(h); err != nil {
		return nil, err
	}
	sc, ok := d.swapchains.get(uint64(s))
	if !ok {
		return nil, unknown("swapchain", uint64(s))
	}
	return append([]driver.Image{}, sc.images...), nil
}

// AcquireNextImage implements driver.DeviceFunctions.
func (d *Driver) AcquireNextImage(h driver.Device, s driver.Swapchain, timeout uint64, sem driver.Semaphore, f driver.Fence) (uint32, error) {
	dev, err := d.device(h)
	if err != nil {
		return 0, err
	}
	sc, ok := d.swapchains.get(uint64(s))
	if !ok {
		return 0, unknown("swapchain", uint64(s))
	}
	semaphore := vk.Semaphore(vk.NullHandle)
	if sem != 0 {
		if semaphore, ok = d.semaphores.get(uint64(sem)); !ok {
			return 0, unknown("semaphore", uint64(sem))
		}
	}
	fence, err := d.fence(f)
	if err != nil {
		return 0, err
	}
	var index uint32
	res := vk.AcquireNextImage(dev, sc.handle, timeout, semaphore, fence, &index)
	return index, check(res)
}

// QueuePresent implements driver.DeviceFunctions.
func (d *Driver) QueuePresent(h driver.Queue, info *driver.PresentInfo) error {
	queue, err := d.queue(h)
	if err != nil {
		return err
	}
	waits, err := d.semaphoreList(info.WaitSemaphores)
	if err != nil {
		return err
	}
	swapchains := make([]vk.Swapchain, len(info.Swapchains))
	for i, s := range info.Swapchains {
		sc, ok := d.swapchains.get(uint64(s))
		if !ok {
			return unknown("swapchain", uint64(s))
		}
		swapchains[i] = sc.handle
	}
	present := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: uint32(len(waits)),
		PWaitSemaphores:    waits,
		SwapchainCount:     uint32(len(swapchains)),
		PSwapchains:        swapchains,
		PImageIndices:      info.ImageIndices,
	}
	var results []vk.Result
	if info.Results != nil {
		results = make([]vk.Result, len(swapchains))
		present.PResults = results
	}
	res := vk.QueuePresent(queue, &present)
	for i := range results {
		if i < len(info.Results) {
			info.Results[i] = driver.Result(results[i])
		}
	}
	return check(res)
}
