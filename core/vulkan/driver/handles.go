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

// Package driver describes the slice of the Vulkan API that the virtual
// swapchain layer intercepts and calls down into.
//
// Handles are opaque 64 bit values, with 0 meaning null. The next layer in the
// chain is represented by the InstanceFunctions and DeviceFunctions tables.
package driver

type (
	// Instance is a VkInstance handle.
	Instance uint64
	// PhysicalDevice is a VkPhysicalDevice handle.
	PhysicalDevice uint64
	// Device is a VkDevice handle.
	Device uint64
	// Queue is a VkQueue handle.
	Queue uint64
	// CommandBuffer is a VkCommandBuffer handle.
	CommandBuffer uint64
	// CommandPool is a VkCommandPool handle.
	CommandPool uint64
	// Image is a VkImage handle.
	Image uint64
	// Buffer is a VkBuffer handle.
	Buffer uint64
	// DeviceMemory is a VkDeviceMemory handle.
	DeviceMemory uint64
	// Fence is a VkFence handle.
	Fence uint64
	// Semaphore is a VkSemaphore handle.
	Semaphore uint64
	// Surface is a VkSurfaceKHR handle.
	Surface uint64
	// Swapchain is a VkSwapchainKHR handle.
	Swapchain uint64
)
