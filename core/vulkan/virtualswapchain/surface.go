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

import "github.com/google/gapid/core/vulkan/driver"

// VirtualSurfaceInfo describes a surface that only exists in the layer.
type VirtualSurfaceInfo struct {
	// AlwaysGetAcquiredImage makes swapchains of the surface hand out the image
	// index requested by the application.
	AlwaysGetAcquiredImage bool
	// Native describes a platform surface that presented frames are also
	// shown on. Nil disables forwarding.
	Native *driver.SurfaceCreateInfo
}

type virtualSurface struct {
	instance driver.Instance
	info     VirtualSurfaceInfo
}

// maxVirtualExtent is the largest image dimension offered for a virtual
// surface.
const maxVirtualExtent = 16384

var (
	virtualFormats = []driver.SurfaceFormat{
		{Format: driver.FormatR8G8B8A8Unorm, ColorSpace: driver.ColorSpaceSRGBNonlinear},
		{Format: driver.FormatB8G8R8A8Unorm, ColorSpace: driver.ColorSpaceSRGBNonlinear},
	}
	virtualPresentModes = []driver.PresentMode{
		driver.PresentModeFIFO,
		driver.PresentModeMailbox,
		driver.PresentModeImmediate,
	}
)

// virtualCapabilities has no maximum image count, and an undefined current
// extent so the application picks the size of its images.
func virtualCapabilities() driver.SurfaceCapabilities {
	return driver.SurfaceCapabilities{
		MinImageCount:       1,
		MaxImageCount:       0,
		CurrentExtent:       driver.Extent2D{Width: driver.UndefinedExtent, Height: driver.UndefinedExtent},
		MinImageExtent:      driver.Extent2D{Width: 1, Height: 1},
		MaxImageExtent:      driver.Extent2D{Width: maxVirtualExtent, Height: maxVirtualExtent},
		MaxImageArrayLayers: 16,
		SupportedUsage: driver.ImageUsageTransferSrc | driver.ImageUsageTransferDst |
			driver.ImageUsageSampled | driver.ImageUsageStorage | driver.ImageUsageColorAttachment,
	}
}
