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
	"context"

	vk "github.com/goki/vulkan"
	"github.com/google/gapid/core/log"
	"github.com/google/gapid/core/vulkan/driver"
	"github.com/pkg/errors"
)

// CreateInstance creates a Vulkan 1.0 instance with the configured
// extensions enabled.
func (d *Driver) CreateInstance(ctx context.Context) (driver.Instance, error) {
	name := d.opts.Application
	if name == "" {
		name = "virtualswapchain"
	}
	exts := cstrings(d.opts.InstanceExtensions)
	info := vk.InstanceCreateInfo{
		SType: vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: &vk.ApplicationInfo{
			SType:            vk.StructureTypeApplicationInfo,
			PApplicationName: name + "\x00",
			PEngineName:      "virtualswapchain\x00",
			ApiVersion:       vk.MakeVersion(1, 0, 0),
		},
		EnabledExtensionCount:   uint32(len(exts)),
		PpEnabledExtensionNames: exts,
	}
	var handle vk.Instance
	if err := check(vk.CreateInstance(&info, nil, &handle)); err != nil {
		return 0, log.Errf(ctx, err, "vkCreateInstance")
	}
	if err := vk.InitInstance(handle); err != nil {
		vk.DestroyInstance(handle, nil)
		return 0, log.Err(ctx, err, "Resolving instance entry points")
	}
	h := d.WrapInstance(handle)
	ctx = log.V{"instance": h, "extensions": d.opts.InstanceExtensions}.Bind(ctx)
	log.D(ctx, "Instance created")
	return h, nil
}

// WrapInstance adopts an instance created outside the driver. The instance's
// entry points must already be resolved with vk.InitInstance.
func (d *Driver) WrapInstance(handle vk.Instance) driver.Instance {
	return driver.Instance(d.instances.add(&instance{handle: handle}))
}

// DestroyInstance implements driver.InstanceFunctions.
func (d *Driver) DestroyInstance(h driver.Instance) {
	inst, ok := d.instances.remove(uint64(h))
	if !ok {
		return
	}
	d.mutex.Lock()
	physical := inst.physical
	d.mutex.Unlock()
	for _, pd := range physical {
		d.physicalDevices.remove(uint64(pd))
	}
	vk.DestroyInstance(inst.handle, nil)
}

// EnumeratePhysicalDevices implements driver.InstanceFunctions.
func (d *Driver) EnumeratePhysicalDevices(h driver.Instance) ([]driver.PhysicalDevice, error) {
	inst, ok := d.instances.get(uint64(h))
	if !ok {
		return nil, unknown("instance", uint64(h))
	}
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if inst.physical != nil {
		return inst.physical, nil
	}
	var count uint32
	if err := check(vk.EnumeratePhysicalDevices(inst.handle, &count, nil)); err != nil {
		return nil, errors.Wrap(err, "vkEnumeratePhysicalDevices")
	}
	handles := make([]vk.PhysicalDevice, count)
	if err := check(vk.EnumeratePhysicalDevices(inst.handle, &count, handles)); err != nil {
		return nil, errors.Wrap(err, "vkEnumeratePhysicalDevices")
	}
	out := make([]driver.PhysicalDevice, count)
	for i, pd := range handles[:count] {
		out[i] = driver.PhysicalDevice(d.physicalDevices.add(pd))
	}
	inst.physical = out
	return out, nil
}

// GetPhysicalDeviceMemoryProperties implements driver.InstanceFunctions.
func (d *Driver) GetPhysicalDeviceMemoryProperties(h driver.PhysicalDevice) driver.MemoryProperties {
	pd, ok := d.physicalDevices.get(uint64(h))
	if !ok {
		return driver.MemoryProperties{}
	}
	var props vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(pd, &props)
	props.Deref()
	out := driver.MemoryProperties{Types: make([]driver.MemoryType, props.MemoryTypeCount)}
	for i := range out.Types {
		t := props.MemoryTypes[i]
		t.Deref()
		out.Types[i] = driver.MemoryType{
			PropertyFlags: driver.MemoryProperty(t.PropertyFlags),
			HeapIndex:     t.HeapIndex,
		}
	}
	return out
}

// GetPhysicalDeviceQueueFamilyProperties implements driver.InstanceFunctions.
func (d *Driver) GetPhysicalDeviceQueueFamilyProperties(h driver.PhysicalDevice) []driver.QueueFamilyProperties {
	pd, ok := d.physicalDevices.get(uint64(h))
	if !ok {
		return nil
	}
	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &count, nil)
	props := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &count, props)
	out := make([]driver.QueueFamilyProperties, count)
	for i := range out {
		props[i].Deref()
		out[i] = driver.QueueFamilyProperties{
			Flags: driver.QueueFlags(props[i].QueueFlags),
			Count: props[i].QueueCount,
		}
	}
	return out
}

// CreateDevice creates a device on pd with a single queue in family and the
// configured device extensions enabled.
func (d *Driver) CreateDevice(ctx context.Context, h driver.PhysicalDevice, family uint32) (driver.Device, error) {
	pd, ok := d.physicalDevices.get(uint64(h))
	if !ok {
		return 0, unknown("physical device", uint64(h))
	}
	exts := cstrings(d.opts.DeviceExtensions)
	info := vk.DeviceCreateInfo{
		SType:                vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount: 1,
		PQueueCreateInfos: []vk.DeviceQueueCreateInfo{{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: family,
			QueueCount:       1,
			PQueuePriorities: []float32{1},
		}},
		EnabledExtensionCount:   uint32(len(exts)),
		PpEnabledExtensionNames: exts,
	}
	var handle vk.Device
	if err := check(vk.CreateDevice(pd, &info, nil, &handle)); err != nil {
		return 0, log.Errf(ctx, err, "vkCreateDevice")
	}
	dev := d.WrapDevice(handle)
	log.D(log.V{"device": dev, "family": family}.Bind(ctx), "Device created")
	return dev, nil
}

// WrapDevice adopts a device created outside the driver.
func (d *Driver) WrapDevice(handle vk.Device) driver.Device {
	return driver.Device(d.devices.add(handle))
}

// FindQueueFamily returns the first queue family of pd that supports all of
// flags.
func (d *Driver) FindQueueFamily(pd driver.PhysicalDevice, flags driver.QueueFlags) (uint32, bool) {
	for i, f := range d.GetPhysicalDeviceQueueFamilyProperties(pd) {
		if f.Flags&flags == flags && f.Count > 0 {
			return uint32(i), true
		}
	}
	return 0, false
}

// CreateSurface adopts the VkSurfaceKHR passed in info.Native. Surfaces are
// created by the windowing toolkit; the driver only takes ownership.
func (d *Driver) CreateSurface(h driver.Instance, info *driver.SurfaceCreateInfo) (driver.Surface, error) {
	if _, ok := d.instances.get(uint64(h)); !ok {
		return 0, unknown("instance", uint64(h))
	}
	if info.Native == 0 {
		return 0, driver.ErrorInitializationFailed
	}
	return driver.Surface(d.surfaces.add(vk.SurfaceFromPointer(info.Native))), nil
}

// DestroySurface implements driver.InstanceFunctions.
func (d *Driver) DestroySurface(h driver.Instance, s driver.Surface) {
	inst, ok := d.instances.get(uint64(h))
	if !ok {
		return
	}
	if surface, ok := d.surfaces.remove(uint64(s)); ok {
		vk.DestroySurface(inst.handle, surface, nil)
	}
}

func (d *Driver) surface(h driver.PhysicalDevice, s driver.Surface) (vk.PhysicalDevice, vk.Surface, error) {
	pd, ok := d.physicalDevices.get(uint64(h))
	if !ok {
		return nil, nil, unknown("physical device", uint64(h))
	}
	surface, ok := d.surfaces.get(uint64(s))
	if !ok {
		return nil, nil, unknown("surface", uint64(s))
	}
	return pd, surface, nil
}

// GetPhysicalDeviceSurfaceSupport implements driver.InstanceFunctions.
func (d *Driver) GetPhysicalDeviceSurfaceSupport(h driver.PhysicalDevice, family uint32, s driver.Surface) (bool, error) {
	pd, surface, err := d.surface(h, s)
	if err != nil {
		return false, err
	}
	var supported vk.Bool32
	if err := check(vk.GetPhysicalDeviceSurfaceSupport(pd, family, surface, &supported)); err != nil {
		return false, err
	}
	return supported == vk.True, nil
}

// GetPhysicalDeviceSurfaceCapabilities implements driver.InstanceFunctions.
func (d *Driver) GetPhysicalDeviceSurfaceCapabilities(h driver.PhysicalDevice, s driver.Surface) (driver.SurfaceCapabilities, error) {
	pd, surface, err := d.surface(h, s)
	if err != nil {
		return driver.SurfaceCapabilities{}, err
	}
	var caps vk.SurfaceCapabilities
	if err := check(vk.GetPhysicalDeviceSurfaceCapabilities(pd, surface, &caps)); err != nil {
		return driver.SurfaceCapabilities{}, err
	}
	caps.Deref()
	caps.CurrentExtent.Deref()
	caps.MinImageExtent.Deref()
	caps.MaxImageExtent.Deref()
	return driver.SurfaceCapabilities{
		MinImageCount:       caps.MinImageCount,
		MaxImageCount:       caps.MaxImageCount,
		CurrentExtent:       extent2D(caps.CurrentExtent),
		MinImageExtent:      extent2D(caps.MinImageExtent),
		MaxImageExtent:      extent2D(caps.MaxImageExtent),
		MaxImageArrayLayers: caps.MaxImageArrayLayers,
		SupportedUsage:      driver.ImageUsage(caps.SupportedUsageFlags),
	}, nil
}

// GetPhysicalDeviceSurfaceFormats implements driver.InstanceFunctions.
func (d *Driver) GetPhysicalDeviceSurfaceFormats(h driver.PhysicalDevice, s driver.Surface) ([]driver.SurfaceFormat, error) {
	pd, surface, err := d.surface(h, s)
	if err != nil {
		return nil, err
	}
	var count uint32
	if err := check(vk.GetPhysicalDeviceSurfaceFormats(pd, surface, &count, nil)); err != nil {
		return nil, err
	}
	formats := make([]vk.SurfaceFormat, count)
	if err := check(vk.GetPhysicalDeviceSurfaceFormats(pd, surface, &count, formats)); err != nil {
		return nil, err
	}
	out := make([]driver.SurfaceFormat, count)
	for i := range out {
		formats[i].Deref()
		out[i] = driver.SurfaceFormat{
			Format:     driver.Format(formats[i].Format),
			ColorSpace: driver.ColorSpace(formats[i].ColorSpace),
		}
	}
	return out, nil
}

// GetPhysicalDeviceSurfacePresentModes implements driver.InstanceFunctions.
func (d *Driver) GetPhysicalDeviceSurfacePresentModes(h driver.PhysicalDevice, s driver.Surface) ([]driver.PresentMode, error) {
	pd, surface, err := d.surface(h, s)
	if err != nil {
		return nil, err
	}
	var count uint32
	if err := check(vk.GetPhysicalDeviceSurfacePresentModes(pd, surface, &count, nil)); err != nil {
		return nil, err
	}
	modes := make([]vk.PresentMode, count)
	if err := check(vk.GetPhysicalDeviceSurfacePresentModes(pd, surface, &count, modes)); err != nil {
		return nil, err
	}
	out := make([]driver.PresentMode, count)
	for i, m := range modes[:count] {
		out[i] = driver.PresentMode(m)
	}
	return out, nil
}

func extent2D(e vk.Extent2D) driver.Extent2D {
	return driver.Extent2D{Width: e.Width, Height: e.Height}
}

// Headless is an instance and device with a graphics queue, created without
// any window system integration.
type Headless struct {
	Driver         *Driver
	Instance       driver.Instance
	PhysicalDevice driver.PhysicalDevice
	Device         driver.Device
	Family         uint32
}

// Open loads the Vulkan loader and creates a headless instance and device on
// the first physical device with a graphics queue.
func Open(ctx context.Context, opts Options) (*Headless, error) {
	if err := Load(ctx, opts); err != nil {
		return nil, err
	}
	d := New(opts)
	inst, err := d.CreateInstance(ctx)
	if err != nil {
		return nil, err
	}
	pds, err := d.EnumeratePhysicalDevices(inst)
	if err != nil {
		d.DestroyInstance(inst)
		return nil, err
	}
	for _, pd := range pds {
		family, ok := d.FindQueueFamily(pd, driver.QueueGraphics)
		if !ok {
			continue
		}
		dev, err := d.CreateDevice(ctx, pd, family)
		if err != nil {
			d.DestroyInstance(inst)
			return nil, err
		}
		return &Headless{Driver: d, Instance: inst, PhysicalDevice: pd, Device: dev, Family: family}, nil
	}
	d.DestroyInstance(inst)
	return nil, log.Err(ctx, driver.ErrorFeatureNotPresent, "No physical device with a graphics queue")
}

// Close destroys the device and instance if they are still alive.
func (h *Headless) Close() {
	h.Driver.DestroyDevice(h.Device)
	h.Driver.DestroyInstance(h.Instance)
}
