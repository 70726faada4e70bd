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

const (
	// BytesPerPixel is the size of one pixel of every supported format.
	BytesPerPixel = 4
	// LayerAlignment is the alignment of each array layer in the frame data.
	LayerAlignment = 128
)

// LayerSize returns the number of bytes of one array layer.
func LayerSize(extent driver.Extent2D) int {
	return int(extent.Width) * int(extent.Height) * BytesPerPixel
}

// LayerStride returns the distance in bytes between the start of two
// consecutive array layers.
func LayerStride(extent driver.Extent2D) int {
	return (LayerSize(extent) + LayerAlignment - 1) &^ (LayerAlignment - 1)
}

// StagingSize returns the size of the host-visible buffer that receives the
// frames of a swapchain.
func StagingSize(extent driver.Extent2D, layers uint32) int {
	return LayerStride(extent) * int(layers)
}

// DataSize returns the number of bytes handed to the frame callback. The
// padding after the last layer is not included.
func DataSize(extent driver.Extent2D, layers uint32) int {
	if layers == 0 {
		return 0
	}
	return LayerStride(extent)*(int(layers)-1) + LayerSize(extent)
}

// Planes splits frame data into one slice per array layer.
func Planes(data []byte, extent driver.Extent2D, layers uint32) [][]byte {
	size, stride := LayerSize(extent), LayerStride(extent)
	out := make([][]byte, 0, layers)
	for l := 0; l < int(layers); l++ {
		start := l * stride
		if start+size > len(data) {
			break
		}
		out = append(out, data[start:start+size:start+size])
	}
	return out
}
