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

import "math"

// DeviceSize is a VkDeviceSize.
type DeviceSize uint64

const (
	// WholeSize maps or invalidates to the end of an allocation.
	WholeSize = ^DeviceSize(0)
	// QueueFamilyIgnored disables queue family ownership transfers in barriers.
	QueueFamilyIgnored = ^uint32(0)
	// UndefinedExtent is the surface extent reported when the swapchain decides it.
	UndefinedExtent = ^uint32(0)
	// MaxTimeout blocks without limit.
	MaxTimeout = uint64(math.MaxUint64)
)

// Format is a VkFormat.
type Format uint32

const (
	FormatUndefined     = Format(0)
	FormatR8G8B8A8Unorm = Format(37)
	FormatR8G8B8A8Srgb  = Format(43)
	FormatB8G8R8A8Unorm = Format(44)
	FormatB8G8R8A8Srgb  = Format(50)
)

// ColorSpace is a VkColorSpaceKHR.
type ColorSpace uint32

const ColorSpaceSRGBNonlinear = ColorSpace(0)

// PresentMode is a VkPresentModeKHR.
type PresentMode uint32

const (
	PresentModeImmediate   = PresentMode(0)
	PresentModeMailbox     = PresentMode(1)
	PresentModeFIFO        = PresentMode(2)
	PresentModeFIFORelaxed = PresentMode(3)
)

// ImageUsage is a VkImageUsageFlags.
type ImageUsage uint32

const (
	ImageUsageTransferSrc     = ImageUsage(0x01)
	ImageUsageTransferDst     = ImageUsage(0x02)
	ImageUsageSampled         = ImageUsage(0x04)
	ImageUsageStorage         = ImageUsage(0x08)
	ImageUsageColorAttachment = ImageUsage(0x10)
)

// ImageTiling is a VkImageTiling.
type ImageTiling uint32

const (
	ImageTilingOptimal = ImageTiling(0)
	ImageTilingLinear  = ImageTiling(1)
)

// BufferUsage is a VkBufferUsageFlags.
type BufferUsage uint32

const (
	BufferUsageTransferSrc = BufferUsage(0x01)
	BufferUsageTransferDst = BufferUsage(0x02)
)

// MemoryProperty is a VkMemoryPropertyFlags.
type MemoryProperty uint32

const (
	MemoryPropertyDeviceLocal  = MemoryProperty(0x01)
	MemoryPropertyHostVisible  = MemoryProperty(0x02)
	MemoryPropertyHostCoherent = MemoryProperty(0x04)
	MemoryPropertyHostCached   = MemoryProperty(0x08)
)

// ImageLayout is a VkImageLayout.
type ImageLayout uint32

const (
	ImageLayoutUndefined              = ImageLayout(0)
	ImageLayoutGeneral                = ImageLayout(1)
	ImageLayoutColorAttachmentOptimal = ImageLayout(2)
	ImageLayoutTransferSrcOptimal     = ImageLayout(6)
	ImageLayoutTransferDstOptimal     = ImageLayout(7)
	ImageLayoutPresentSrc             = ImageLayout(1000001002)
)

// PipelineStage is a VkPipelineStageFlags.
type PipelineStage uint32

const (
	PipelineStageTopOfPipe             = PipelineStage(0x00001)
	PipelineStageColorAttachmentOutput = PipelineStage(0x00400)
	PipelineStageTransfer              = PipelineStage(0x01000)
	PipelineStageBottomOfPipe          = PipelineStage(0x02000)
	PipelineStageHost                  = PipelineStage(0x04000)
	PipelineStageAllCommands           = PipelineStage(0x10000)
)

// Access is a VkAccessFlags.
type Access uint32

const (
	AccessColorAttachmentWrite = Access(0x00100)
	AccessTransferRead         = Access(0x00800)
	AccessTransferWrite        = Access(0x01000)
	AccessHostRead             = Access(0x02000)
	AccessMemoryRead           = Access(0x08000)
)

// Filter is a VkFilter.
type Filter uint32

const (
	FilterNearest = Filter(0)
	FilterLinear  = Filter(1)
)

// QueueFlags is a VkQueueFlags.
type QueueFlags uint32

const (
	QueueGraphics = QueueFlags(0x1)
	QueueCompute  = QueueFlags(0x2)
	QueueTransfer = QueueFlags(0x4)
)

type (
	// Extent2D is a VkExtent2D.
	Extent2D struct{ Width, Height uint32 }
	// Extent3D is a VkExtent3D.
	Extent3D struct{ Width, Height, Depth uint32 }
	// Offset3D is a VkOffset3D.
	Offset3D struct{ X, Y, Z int32 }
)

// MemoryType is one entry of the physical device memory type table.
type MemoryType struct {
	PropertyFlags MemoryProperty
	HeapIndex     uint32
}

// MemoryProperties is the subset of VkPhysicalDeviceMemoryProperties used for
// memory type selection.
type MemoryProperties struct {
	Types []MemoryType
}

// MemoryRequirements is a VkMemoryRequirements.
type MemoryRequirements struct {
	Size      DeviceSize
	Alignment DeviceSize
	TypeBits  uint32
}

// QueueFamilyProperties is a VkQueueFamilyProperties.
type QueueFamilyProperties struct {
	Flags QueueFlags
	Count uint32
}

// ImageCreateInfo describes a 2D, single mip, single sample image.
type ImageCreateInfo struct {
	Format      Format
	Extent      Extent2D
	ArrayLayers uint32
	Tiling      ImageTiling
	Usage       ImageUsage
}

// BufferCreateInfo describes an exclusive buffer.
type BufferCreateInfo struct {
	Size  DeviceSize
	Usage BufferUsage
}

// SubresourceRange selects array layers of the color aspect of mip level 0.
type SubresourceRange struct {
	BaseLayer  uint32
	LayerCount uint32
}

// ImageBarrier is a VkImageMemoryBarrier without queue ownership transfer.
type ImageBarrier struct {
	SrcAccess Access
	DstAccess Access
	OldLayout ImageLayout
	NewLayout ImageLayout
	Image     Image
	Range     SubresourceRange
}

// BufferBarrier is a VkBufferMemoryBarrier without queue ownership transfer.
type BufferBarrier struct {
	SrcAccess Access
	DstAccess Access
	Buffer    Buffer
	Offset    DeviceSize
	Size      DeviceSize
}

// BufferImageCopy copies tightly packed rows between a buffer and the color
// aspect of mip level 0.
type BufferImageCopy struct {
	BufferOffset DeviceSize
	Layers       SubresourceRange
	Extent       Extent2D
}

// ImageBlit scales a region of one layer into a region of another.
type ImageBlit struct {
	SrcLayer   uint32
	SrcOffsets [2]Offset3D
	DstLayer   uint32
	DstOffsets [2]Offset3D
}

// ClearColor holds the float RGBA clear value.
type ClearColor [4]float32

// SubmitInfo is a VkSubmitInfo. WaitStages has one entry per wait semaphore.
type SubmitInfo struct {
	WaitSemaphores   []Semaphore
	WaitStages       []PipelineStage
	CommandBuffers   []CommandBuffer
	SignalSemaphores []Semaphore
}

// SurfaceCreateInfo describes a platform surface. Native is the platform
// window or surface pointer, Extent the window size.
type SurfaceCreateInfo struct {
	Native uintptr
	Extent Extent2D
}

// SurfaceCapabilities is a VkSurfaceCapabilitiesKHR.
type SurfaceCapabilities struct {
	MinImageCount       uint32
	MaxImageCount       uint32
	CurrentExtent       Extent2D
	MinImageExtent      Extent2D
	MaxImageExtent      Extent2D
	MaxImageArrayLayers uint32
	SupportedUsage      ImageUsage
}

// SurfaceFormat is a VkSurfaceFormatKHR.
type SurfaceFormat struct {
	Format     Format
	ColorSpace ColorSpace
}

// SwapchainCreateInfo is a VkSwapchainCreateInfoKHR.
type SwapchainCreateInfo struct {
	Surface            Surface
	MinImageCount      uint32
	Format             Format
	ColorSpace         ColorSpace
	Extent             Extent2D
	ArrayLayers        uint32
	Usage              ImageUsage
	QueueFamilyIndices []uint32
	PresentMode        PresentMode
	OldSwapchain       Swapchain
}

// AcquireInfo holds the arguments of vkAcquireNextImageKHR.
// ImageIndex is only read when the swapchain hands out caller chosen images.
type AcquireInfo struct {
	Timeout    uint64
	Semaphore  Semaphore
	Fence      Fence
	ImageIndex uint32
}

// PresentInfo is a VkPresentInfoKHR. When Results is non-nil it receives one
// result per swapchain.
type PresentInfo struct {
	WaitSemaphores []Semaphore
	Swapchains     []Swapchain
	ImageIndices   []uint32
	Results        []Result
}
