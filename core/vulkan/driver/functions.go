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

package driver

// InstanceFunctions is the instance level dispatch table of the next layer.
type InstanceFunctions interface {
	DestroyInstance(instance Instance)
	EnumeratePhysicalDevices(instance Instance) ([]PhysicalDevice, error)
	GetPhysicalDeviceMemoryProperties(pd PhysicalDevice) MemoryProperties
	GetPhysicalDeviceQueueFamilyProperties(pd PhysicalDevice) []QueueFamilyProperties

	CreateSurface(instance Instance, info *SurfaceCreateInfo) (Surface, error)
	DestroySurface(instance Instance, surface Surface)
	GetPhysicalDeviceSurfaceSupport(pd PhysicalDevice, family uint32, surface Surface) (bool, error)
	GetPhysicalDeviceSurfaceCapabilities(pd PhysicalDevice, surface Surface) (SurfaceCapabilities, error)
	GetPhysicalDeviceSurfaceFormats(pd PhysicalDevice, surface Surface) ([]SurfaceFormat, error)
	GetPhysicalDeviceSurfacePresentModes(pd PhysicalDevice, surface Surface) ([]PresentMode, error)
}

// DeviceFunctions is the device level dispatch table of the next layer.
// Waits return Timeout or NotReady as errors.
type DeviceFunctions interface {
	DestroyDevice(device Device)
	GetDeviceQueue(device Device, family, index uint32) Queue
	DeviceWaitIdle(device Device) error

	CreateImage(device Device, info *ImageCreateInfo) (Image, error)
	DestroyImage(device Device, image Image)
	GetImageMemoryRequirements(device Device, image Image) MemoryRequirements
	BindImageMemory(device Device, image Image, memory DeviceMemory, offset DeviceSize) error

	CreateBuffer(device Device, info *BufferCreateInfo) (Buffer, error)
	DestroyBuffer(device Device, buffer Buffer)
	GetBufferMemoryRequirements(device Device, buffer Buffer) MemoryRequirements
	BindBufferMemory(device Device, buffer Buffer, memory DeviceMemory, offset DeviceSize) error

	AllocateMemory(device Device, size DeviceSize, typeIndex uint32) (DeviceMemory, error)
	FreeMemory(device Device, memory DeviceMemory)
	MapMemory(device Device, memory DeviceMemory, offset, size DeviceSize) ([]byte, error)
	UnmapMemory(device Device, memory DeviceMemory)
	InvalidateMappedMemoryRanges(device Device, memory DeviceMemory, offset, size DeviceSize) error

	CreateCommandPool(device Device, family uint32) (CommandPool, error)
	DestroyCommandPool(device Device, pool CommandPool)
	AllocateCommandBuffers(device Device, pool CommandPool, count uint32) ([]CommandBuffer, error)
	FreeCommandBuffers(device Device, pool CommandPool, buffers []CommandBuffer)
	BeginCommandBuffer(cb CommandBuffer) error
	EndCommandBuffer(cb CommandBuffer) error
	CmdPipelineBarrier(cb CommandBuffer, src, dst PipelineStage, buffers []BufferBarrier, images []ImageBarrier)
	CmdCopyImageToBuffer(cb CommandBuffer, src Image, layout ImageLayout, dst Buffer, regions []BufferImageCopy)
	CmdBlitImage(cb CommandBuffer, src Image, srcLayout ImageLayout, dst Image, dstLayout ImageLayout, regions []ImageBlit, filter Filter)
	CmdClearColorImage(cb CommandBuffer, image Image, layout ImageLayout, color ClearColor, r SubresourceRange)

	CreateFence(device Device, signaled bool) (Fence, error)
	DestroyFence(device Device, fence Fence)
	WaitForFences(device Device, fences []Fence, waitAll bool, timeout uint64) error
	ResetFences(device Device, fences []Fence) error
	GetFenceStatus(device Device, fence Fence) error

	CreateSemaphore(device Device) (Semaphore, error)
	DestroySemaphore(device Device, semaphore Semaphore)

	QueueSubmit(queue Queue, submits []SubmitInfo, fence Fence) error
	QueueWaitIdle(queue Queue) error

	CreateSwapchain(device Device, info *SwapchainCreateInfo) (Swapchain, error)
	DestroySwapchain(device Device, swapchain Swapchain)
	GetSwapchainImages(device Device, swapchain Swapchain) ([]Image, error)
	AcquireNextImage(device Device, swapchain Swapchain, timeout uint64, semaphore Semaphore, fence Fence) (uint32, error)
	QueuePresent(queue Queue, info *PresentInfo) error
}
