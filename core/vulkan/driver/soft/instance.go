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

const (
	// DeviceLocalMemory is the memory type index of device only memory.
	DeviceLocalMemory = 0
	// HostVisibleMemory is the memory type index of host visible, coherent memory.
	HostVisibleMemory = 1

	defaultSurfaceWidth  = 640
	defaultSurfaceHeight = 480
	maxExtent            = 16384
)

var (
	memoryProperties = driver.MemoryProperties{Types: []driver.MemoryType{
		DeviceLocalMemory: {PropertyFlags: driver.MemoryPropertyDeviceLocal, HeapIndex: 0},
		HostVisibleMemory: {PropertyFlags: driver.MemoryPropertyHostVisible | driver.MemoryPropertyHostCoherent, HeapIndex: 1},
	}}
	queueFamilies = []driver.QueueFamilyProperties{
		{Flags: driver.QueueGraphics | driver.QueueCompute | driver.QueueTransfer, Count: 2},
		{Flags: driver.QueueTransfer, Count: 1},
	}
)

type instance struct {
	physicalDevices []driver.PhysicalDevice
}

type physicalDevice struct {
	instance driver.Instance
}

type surface struct {
	instance driver.Instance
	extent   driver.Extent2D
	lost     bool
	frames   []Frame
}

// Frame is an image presented to a software surface.
type Frame struct {
	Swapchain driver.Swapchain
	Index     uint32
	Extent    driver.Extent2D
	Data      []byte
}

// CreateInstance creates an instance exposing a single physical device with a
// graphics and a transfer queue family.
func (g *GPU) CreateInstance() driver.Instance {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	inst := &instance{}
	h := driver.Instance(g.instances.add(inst))
	inst.physicalDevices = []driver.PhysicalDevice{
		driver.PhysicalDevice(g.physicalDevices.add(&physicalDevice{instance: h})),
	}
	return h
}

// DestroyInstance implements driver.InstanceFunctions.
func (g *GPU) DestroyInstance(h driver.Instance) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	if inst := g.instances.remove(uint64(h)); inst != nil {
		for _, pd := range inst.physicalDevices {
			g.physicalDevices.remove(uint64(pd))
		}
	}
}

// EnumeratePhysicalDevices implements driver.InstanceFunctions.
func (g *GPU) EnumeratePhysicalDevices(h driver.Instance) ([]driver.PhysicalDevice, error) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	inst := g.instances.get(uint64(h))
	if inst == nil {
		return nil, driver.ErrorInitializationFailed
	}
	return append([]driver.PhysicalDevice{}, inst.physicalDevices...), nil
}

// GetPhysicalDeviceMemoryProperties implements driver.InstanceFunctions.
func (g *GPU) GetPhysicalDeviceMemoryProperties(driver.PhysicalDevice) driver.MemoryProperties {
	return driver.MemoryProperties{Types: append([]driver.MemoryType{}, memoryProperties.Types...)}
}

// GetPhysicalDeviceQueueFamilyProperties implements driver.InstanceFunctions.
func (g *GPU) GetPhysicalDeviceQueueFamilyProperties(driver.PhysicalDevice) []driver.QueueFamilyProperties {
	return append([]driver.QueueFamilyProperties{}, queueFamilies...)
}

// CreateSurface implements driver.InstanceFunctions. A zero extent gets a
// default window size.
func (g *GPU) CreateSurface(h driver.Instance, info *driver.SurfaceCreateInfo) (driver.Surface, error) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	if err := g.fail("CreateSurface"); err != nil {
		return 0, err
	}
	if g.instances.get(uint64(h)) == nil {
		return 0, driver.ErrorInitializationFailed
	}
	extent := info.Extent
	if extent.Width == 0 || extent.Height == 0 {
		extent = driver.Extent2D{Width: defaultSurfaceWidth, Height: defaultSurfaceHeight}
	}
	return driver.Surface(g.surfaces.add(&surface{instance: h, extent: extent})), nil
}

// DestroySurface implements driver.InstanceFunctions.
func (g *GPU) DestroySurface(_ driver.Instance, h driver.Surface) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	g.surfaces.remove(uint64(h))
}

// LoseSurface makes every later operation on the surface fail with
// ErrorSurfaceLost.
func (g *GPU) LoseSurface(h driver.Surface) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	if s := g.surfaces.get(uint64(h)); s != nil {
		s.lost = true
	}
}

// Frames returns the frames presented to the surface so far.
func (g *GPU) Frames(h driver.Surface) []Frame {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	if s := g.surfaces.get(uint64(h)); s != nil {
		return append([]Frame{}, s.frames...)
	}
	return nil
}

func (g *GPU) surface(h driver.Surface) (*surface, error) {
	s := g.surfaces.get(uint64(h))
	switch {
	case s == nil:
		return nil, driver.ErrorSurfaceLost
	case s.lost:
		return nil, driver.ErrorSurfaceLost
	}
	return s, nil
}

// GetPhysicalDeviceSurfaceSupport implements driver.InstanceFunctions.
// Only graphics capable families can present.
func (g *GPU) GetPhysicalDeviceSurfaceSupport(_ driver.PhysicalDevice, family uint32, h driver.Surface) (bool, error) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	if _, err := g.surface(h); err != nil {
		return false, err
	}
	if family >= uint32(len(queueFamilies)) {
		return false, nil
	}
	return queueFamilies[family].Flags&driver.QueueGraphics != 0, nil
}

// GetPhysicalDeviceSurfaceCapabilities implements driver.InstanceFunctions.
func (g *GPU) GetPhysicalDeviceSurfaceCapabilities(_ driver.PhysicalDevice, h driver.Surface) (driver.SurfaceCapabilities, error) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	s, err := g.surface(h)
	if err != nil {
		return driver.SurfaceCapabilities{}, err
	}
	return driver.SurfaceCapabilities{
		MinImageCount:       2,
		MaxImageCount:       8,
		CurrentExtent:       s.extent,
		MinImageExtent:      driver.Extent2D{Width: 1, Height: 1},
		MaxImageExtent:      driver.Extent2D{Width: maxExtent, Height: maxExtent},
		MaxImageArrayLayers: 1,
		SupportedUsage:      driver.ImageUsageTransferDst | driver.ImageUsageTransferSrc | driver.ImageUsageColorAttachment,
	}, nil
}

// GetPhysicalDeviceSurfaceFormats implements driver.InstanceFunctions.
func (g *GPU) GetPhysicalDeviceSurfaceFormats(_ driver.PhysicalDevice, h driver.Surface) ([]driver.SurfaceFormat, error) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	if _, err := g.surface(h); err != nil {
		return nil, err
	}
	return []driver.SurfaceFormat{
		{Format: driver.FormatB8G8R8A8Unorm, ColorSpace: driver.ColorSpaceSRGBNonlinear},
		{Format: driver.FormatR8G8B8A8Unorm, ColorSpace: driver.ColorSpaceSRGBNonlinear},
	}, nil
}

// GetPhysicalDeviceSurfacePresentModes implements driver.InstanceFunctions.
func (g *GPU) GetPhysicalDeviceSurfacePresentModes(_ driver.PhysicalDevice, h driver.Surface) ([]driver.PresentMode, error) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	if _, err := g.surface(h); err != nil {
		return nil, err
	}
	return []driver.PresentMode{driver.PresentModeFIFO, driver.PresentModeMailbox}, nil
}
