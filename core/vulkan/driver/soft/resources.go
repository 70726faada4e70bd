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

const imageAlignment = 256

type memory struct {
	typeIndex uint32
	data      []byte
	mapped    bool
	owned     bool
}

type image struct {
	info   driver.ImageCreateInfo
	memory driver.DeviceMemory
	offset driver.DeviceSize
	owned  bool
}

func (i *image) size() driver.DeviceSize {
	return driver.DeviceSize(i.info.Extent.Width) * driver.DeviceSize(i.info.Extent.Height) * 4 * driver.DeviceSize(i.info.ArrayLayers)
}

type buffer struct {
	info   driver.BufferCreateInfo
	memory driver.DeviceMemory
	offset driver.DeviceSize
}

// AllocateMemory implements driver.DeviceFunctions.
func (g *GPU) AllocateMemory(_ driver.Device, size driver.DeviceSize, typeIndex uint32) (driver.DeviceMemory, error) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	if err := g.fail("AllocateMemory"); err != nil {
		return 0, err
	}
	if typeIndex >= uint32(len(memoryProperties.Types)) {
		return 0, driver.ErrorOutOfDeviceMemory
	}
	return driver.DeviceMemory(g.memories.add(&memory{typeIndex: typeIndex, data: make([]byte, size)})), nil
}

// FreeMemory implements driver.DeviceFunctions.
func (g *GPU) FreeMemory(_ driver.Device, h driver.DeviceMemory) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	g.memories.remove(uint64(h))
}

func hostVisible(m *memory) bool {
	return memoryProperties.Types[m.typeIndex].PropertyFlags&driver.MemoryPropertyHostVisible != 0
}

// MapMemory implements driver.DeviceFunctions. The returned slice aliases the
// allocation until UnmapMemory.
func (g *GPU) MapMemory(_ driver.Device, h driver.DeviceMemory, offset, size driver.DeviceSize) ([]byte, error) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	if err := g.fail("MapMemory"); err != nil {
		return nil, err
	}
	m := g.memories.get(uint64(h))
	if m == nil || m.mapped || !hostVisible(m) || offset > driver.DeviceSize(len(m.data)) {
		return nil, driver.ErrorMemoryMapFailed
	}
	end := driver.DeviceSize(len(m.data))
	if size != driver.WholeSize {
		if offset+size > end {
			return nil, driver.ErrorMemoryMapFailed
		}
		end = offset + size
	}
	m.mapped = true
	return m.data[offset:end:end], nil
}

// UnmapMemory implements driver.DeviceFunctions.
func (g *GPU) UnmapMemory(_ driver.Device, h driver.DeviceMemory) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	if m := g.memories.get(uint64(h)); m != nil {
		m.mapped = false
	}
}

// InvalidateMappedMemoryRanges implements driver.DeviceFunctions.
func (g *GPU) InvalidateMappedMemoryRanges(_ driver.Device, h driver.DeviceMemory, offset, size driver.DeviceSize) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	if err := g.fail("InvalidateMappedMemoryRanges"); err != nil {
		return err
	}
	if m := g.memories.get(uint64(h)); m == nil || !m.mapped {
		return driver.ErrorMemoryMapFailed
	}
	return nil
}

// CreateImage implements driver.DeviceFunctions.
func (g *GPU) CreateImage(_ driver.Device, info *driver.ImageCreateInfo) (driver.Image, error) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	if err := g.fail("CreateImage"); err != nil {
		return 0, err
	}
	if info.Extent.Width == 0 || info.Extent.Height == 0 || info.ArrayLayers == 0 {
		return 0, driver.ErrorFormatNotSupported
	}
	if info.Extent.Width > maxExtent || info.Extent.Height > maxExtent {
		return 0, driver.ErrorOutOfDeviceMemory
	}
	return driver.Image(g.images.add(&image{info: *info})), nil
}

// DestroyImage implements driver.DeviceFunctions.
func (g *GPU) DestroyImage(_ driver.Device, h driver.Image) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	g.images.remove(uint64(h))
}

// GetImageMemoryRequirements implements driver.DeviceFunctions. Images may live
// in any memory type.
func (g *GPU) GetImageMemoryRequirements(_ driver.Device, h driver.Image) driver.MemoryRequirements {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	i := g.images.get(uint64(h))
	if i == nil {
		return driver.MemoryRequirements{}
	}
	return driver.MemoryRequirements{Size: i.size(), Alignment: imageAlignment, TypeBits: allMemoryTypes()}
}

// BindImageMemory implements driver.DeviceFunctions.
func (g *GPU) BindImageMemory(_ driver.Device, h driver.Image, mem driver.DeviceMemory, offset driver.DeviceSize) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	if err := g.fail("BindImageMemory"); err != nil {
		return err
	}
	i, m := g.images.get(uint64(h)), g.memories.get(uint64(mem))
	if i == nil || m == nil || offset+i.size() > driver.DeviceSize(len(m.data)) {
		return driver.ErrorOutOfDeviceMemory
	}
	i.memory, i.offset = mem, offset
	return nil
}

// CreateBuffer implements driver.DeviceFunctions.
func (g *GPU) CreateBuffer(_ driver.Device, info *driver.BufferCreateInfo) (driver.Buffer, error) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	if err := g.fail("CreateBuffer"); err != nil {
		return 0, err
	}
	if info.Size == 0 {
		return 0, driver.ErrorOutOfDeviceMemory
	}
	return driver.Buffer(g.buffers.add(&buffer{info: *info})), nil
}

// DestroyBuffer implements driver.DeviceFunctions.
func (g *GPU) DestroyBuffer(_ driver.Device, h driver.Buffer) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	g.buffers.remove(uint64(h))
}

// GetBufferMemoryRequirements implements driver.DeviceFunctions.
func (g *GPU) GetBufferMemoryRequirements(_ driver.Device, h driver.Buffer) driver.MemoryRequirements {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	b := g.buffers.get(uint64(h))
	if b == nil {
		return driver.MemoryRequirements{}
	}
	return driver.MemoryRequirements{Size: b.info.Size, Alignment: 16, TypeBits: allMemoryTypes()}
}

// BindBufferMemory implements driver.DeviceFunctions.
func (g *GPU) BindBufferMemory(_ driver.Device, h driver.Buffer, mem driver.DeviceMemory, offset driver.DeviceSize) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	if err := g.fail("BindBufferMemory"); err != nil {
		return err
	}
	b, m := g.buffers.get(uint64(h)), g.memories.get(uint64(mem))
	if b == nil || m == nil || offset+b.info.Size > driver.DeviceSize(len(m.data)) {
		return driver.ErrorOutOfDeviceMemory
	}
	b.memory, b.offset = mem, offset
	return nil
}

func allMemoryTypes() uint32 {
	return 1<<uint(len(memoryProperties.Types)) - 1
}

// imageBytes returns the storage of an image bound to memory. Layers are
// stored one after the other, rows tightly packed. Must be called with the
// mutex held.
func (g *GPU) imageBytes(h driver.Image) (*image, []byte) {
	i := g.images.get(uint64(h))
	if i == nil {
		return nil, nil
	}
	m := g.memories.get(uint64(i.memory))
	if m == nil {
		return i, nil
	}
	return i, m.data[i.offset : i.offset+i.size()]
}

// bufferBytes returns the storage of a buffer bound to memory. Must be called
// with the mutex held.
func (g *GPU) bufferBytes(h driver.Buffer) []byte {
	b := g.buffers.get(uint64(h))
	if b == nil {
		return nil
	}
	m := g.memories.get(uint64(b.memory))
	if m == nil {
		return nil
	}
	return m.data[b.offset : b.offset+b.info.Size]
}

// ImageData returns a copy of the pixels of every layer of an image.
func (g *GPU) ImageData(h driver.Image) []byte {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	_, data := g.imageBytes(h)
	return append([]byte(nil), data...)
}

// WriteImage overwrites the pixels of one layer of an image from the host.
func (g *GPU) WriteImage(h driver.Image, layer uint32, pixels []byte) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	i, data := g.imageBytes(h)
	if data == nil || layer >= i.info.ArrayLayers {
		return driver.ErrorMemoryMapFailed
	}
	stride := len(data) / int(i.info.ArrayLayers)
	if len(pixels) != stride {
		return driver.ErrorMemoryMapFailed
	}
	copy(data[int(layer)*stride:], pixels)
	return nil
}
