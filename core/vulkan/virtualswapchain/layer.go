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

// Package virtualswapchain implements swapchains that present to host memory
// instead of a display. Every presented image is copied back by a
// per-swapchain worker and handed to a callback, and may optionally also be
// shown on a native surface.
package virtualswapchain

import (
	"context"
	"sync"

	"github.com/google/gapid/core/fault"
	"github.com/google/gapid/core/log"
	"github.com/google/gapid/core/vulkan/driver"
	"github.com/google/gapid/core/vulkan/registry"
)

// virtualHandleBase is the first handle given to virtual surfaces and
// swapchains. It is far above the handles of the driver below.
const virtualHandleBase = uint64(1) << 62

// Layer sits between an application and a driver. Calls on virtual surfaces
// and swapchains are answered by the layer, everything else is passed
// through.
type Layer struct {
	registry *registry.Registry
	cfg      Config

	mutex      sync.Mutex
	surfaces   map[driver.Surface]*virtualSurface
	swapchains map[driver.Swapchain]*Swapchain
	next       uint64
}

// NewLayer returns a layer that tracks driver objects in r. Timeouts that
// Config.Validate rejects are replaced by their defaults.
func NewLayer(cfg Config, r *registry.Registry) *Layer {
	return &Layer{
		registry:   r,
		cfg:        cfg.withDefaults(),
		surfaces:   map[driver.Surface]*virtualSurface{},
		swapchains: map[driver.Swapchain]*Swapchain{},
		next:       virtualHandleBase,
	}
}

// Registry returns the object registry of the layer.
func (l *Layer) Registry() *registry.Registry { return l.registry }

// Config returns the configuration of the layer.
func (l *Layer) Config() Config { return l.cfg }

// allocate must be called with the mutex held.
func (l *Layer) allocate() uint64 {
	h := l.next
	l.next++
	return h
}

func (l *Layer) surface(h driver.Surface) *virtualSurface {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.surfaces[h]
}

// Swapchain returns the virtual swapchain with handle h, or nil.
func (l *Layer) Swapchain(h driver.Swapchain) *Swapchain {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.swapchains[h]
}

func (l *Layer) deviceFunctions(dev driver.Device) (driver.DeviceFunctions, error) {
	g, err := l.registry.Device(dev)
	if err != nil {
		return nil, err
	}
	defer g.Release()
	return g.Data.Functions, nil
}

func (l *Layer) instanceFunctions(pd driver.PhysicalDevice) (driver.InstanceFunctions, error) {
	s := l.registry.Scope()
	defer s.Release()
	p, err := s.PhysicalDevice(pd)
	if err != nil {
		return nil, err
	}
	i, err := s.Instance(p.Instance)
	if err != nil {
		return nil, err
	}
	return i.Functions, nil
}

// CreateInstance starts tracking an instance created by the driver.
func (l *Layer) CreateInstance(inst driver.Instance, fns driver.InstanceFunctions) {
	l.registry.RegisterInstance(inst, registry.InstanceData{Functions: fns})
}

// DestroyInstance destroys inst and forgets it, its physical devices and its
// virtual surfaces.
func (l *Layer) DestroyInstance(ctx context.Context, inst driver.Instance) error {
	g, err := l.registry.Instance(inst)
	if err != nil {
		return err
	}
	fns, pds := g.Data.Functions, g.Data.PhysicalDevices
	g.Release()

	l.mutex.Lock()
	for h, s := range l.surfaces {
		if s.instance == inst {
			delete(l.surfaces, h)
		}
	}
	l.mutex.Unlock()
	for _, pd := range pds {
		l.registry.UnregisterPhysicalDevice(pd)
	}
	l.registry.UnregisterInstance(inst)
	fns.DestroyInstance(inst)
	log.D(ctx, "Instance %v destroyed", inst)
	return nil
}

// EnumeratePhysicalDevices returns the physical devices of inst and starts
// tracking them.
func (l *Layer) EnumeratePhysicalDevices(inst driver.Instance) ([]driver.PhysicalDevice, error) {
	g, err := l.registry.Instance(inst)
	if err != nil {
		return nil, err
	}
	fns := g.Data.Functions
	pds, err := fns.EnumeratePhysicalDevices(inst)
	if err == nil {
		g.Data.PhysicalDevices = append([]driver.PhysicalDevice{}, pds...)
	}
	g.Release()
	if err != nil {
		return nil, err
	}
	for _, pd := range pds {
		l.registry.RegisterPhysicalDevice(pd, registry.PhysicalDeviceData{
			Instance:         inst,
			MemoryProperties: fns.GetPhysicalDeviceMemoryProperties(pd),
			QueueFamilies:    fns.GetPhysicalDeviceQueueFamilyProperties(pd),
		})
	}
	return pds, nil
}

// CreateDevice starts tracking a device created by the driver on pd.
func (l *Layer) CreateDevice(pd driver.PhysicalDevice, dev driver.Device, fns driver.DeviceFunctions) error {
	g, err := l.registry.PhysicalDevice(pd)
	if err != nil {
		return err
	}
	g.Release()
	l.registry.RegisterDevice(dev, registry.DeviceData{PhysicalDevice: pd, Functions: fns})
	return nil
}

// DestroyDevice destroys the virtual swapchains of dev, then dev itself.
func (l *Layer) DestroyDevice(ctx context.Context, dev driver.Device) error {
	fns, err := l.deviceFunctions(dev)
	if err != nil {
		return err
	}
	l.mutex.Lock()
	var owned []*Swapchain
	for h, s := range l.swapchains {
		if s.device.handle == dev {
			owned = append(owned, s)
			delete(l.swapchains, h)
		}
	}
	l.mutex.Unlock()

	var errs fault.List
	for _, s := range owned {
		errs.Collect(s.Destroy(ctx))
	}
	l.registry.UnregisterDeviceObjects(dev)
	l.registry.UnregisterDevice(dev)
	fns.DestroyDevice(dev)
	return errs.First()
}

// GetDeviceQueue returns a queue of dev and starts tracking it.
func (l *Layer) GetDeviceQueue(dev driver.Device, family, index uint32) (driver.Queue, error) {
	fns, err := l.deviceFunctions(dev)
	if err != nil {
		return 0, err
	}
	q := fns.GetDeviceQueue(dev, family, index)
	l.registry.RegisterQueue(q, registry.QueueData{Device: dev, Family: family, Index: index})
	return q, nil
}

// AllocateCommandBuffers allocates command buffers from pool and starts
// tracking them.
func (l *Layer) AllocateCommandBuffers(dev driver.Device, pool driver.CommandPool, count uint32) ([]driver.CommandBuffer, error) {
	fns, err := l.deviceFunctions(dev)
	if err != nil {
		return nil, err
	}
	cbs, err := fns.AllocateCommandBuffers(dev, pool, count)
	if err != nil {
		return nil, err
	}
	for _, cb := range cbs {
		l.registry.RegisterCommandBuffer(cb, registry.CommandBufferData{Device: dev, Pool: pool})
	}
	return cbs, nil
}

// FreeCommandBuffers stops tracking and frees command buffers.
func (l *Layer) FreeCommandBuffers(dev driver.Device, pool driver.CommandPool, cbs []driver.CommandBuffer) error {
	fns, err := l.deviceFunctions(dev)
	if err != nil {
		return err
	}
	for _, cb := range cbs {
		l.registry.UnregisterCommandBuffer(cb)
	}
	fns.FreeCommandBuffers(dev, pool, cbs)
	return nil
}

// QueueSubmit passes a submission through, serialised with every other
// submission to queue.
func (l *Layer) QueueSubmit(ctx context.Context, queue driver.Queue, submits []driver.SubmitInfo, fence driver.Fence) error {
	var cbs []driver.CommandBuffer
	for _, s := range submits {
		cbs = append(cbs, s.CommandBuffers...)
	}
	scope := l.registry.Scope()
	defer scope.Release()
	if _, err := scope.CommandBuffers(cbs...); err != nil {
		return err
	}
	q, err := scope.Queue(queue)
	if err != nil {
		return err
	}
	d, err := scope.Device(q.Device)
	if err != nil {
		return err
	}
	return d.Functions.QueueSubmit(queue, submits, fence)
}

// CreateVirtualSurface creates a surface that only exists in the layer.
func (l *Layer) CreateVirtualSurface(ctx context.Context, inst driver.Instance, info VirtualSurfaceInfo) (driver.Surface, error) {
	g, err := l.registry.Instance(inst)
	if err != nil {
		return 0, err
	}
	g.Release()
	if info.Native != nil {
		native := *info.Native
		info.Native = &native
	}
	l.mutex.Lock()
	defer l.mutex.Unlock()
	h := driver.Surface(l.allocate())
	l.surfaces[h] = &virtualSurface{instance: inst, info: info}
	log.D(ctx, "Virtual surface %v created", h)
	return h, nil
}

// DestroySurface destroys a virtual or driver surface.
func (l *Layer) DestroySurface(inst driver.Instance, surface driver.Surface) error {
	l.mutex.Lock()
	_, virtual := l.surfaces[surface]
	delete(l.surfaces, surface)
	l.mutex.Unlock()
	if virtual {
		return nil
	}
	g, err := l.registry.Instance(inst)
	if err != nil {
		return err
	}
	fns := g.Data.Functions
	g.Release()
	fns.DestroySurface(inst, surface)
	return nil
}

// GetPhysicalDeviceSurfaceSupport reports every queue family as able to
// present to a virtual surface.
func (l *Layer) GetPhysicalDeviceSurfaceSupport(pd driver.PhysicalDevice, family uint32, surface driver.Surface) (bool, error) {
	if l.surface(surface) != nil {
		return true, nil
	}
	fns, err := l.instanceFunctions(pd)
	if err != nil {
		return false, err
	}
	return fns.GetPhysicalDeviceSurfaceSupport(pd, family, surface)
}

// GetPhysicalDeviceSurfaceCapabilities returns the capabilities of a surface.
func (l *Layer) GetPhysicalDeviceSurfaceCapabilities(pd driver.PhysicalDevice, surface driver.Surface) (driver.SurfaceCapabilities, error) {
	if l.surface(surface) != nil {
		return virtualCapabilities(), nil
	}
	fns, err := l.instanceFunctions(pd)
	if err != nil {
		return driver.SurfaceCapabilities{}, err
	}
	return fns.GetPhysicalDeviceSurfaceCapabilities(pd, surface)
}

// GetPhysicalDeviceSurfaceFormats returns the formats of a surface.
func (l *Layer) GetPhysicalDeviceSurfaceFormats(pd driver.PhysicalDevice, surface driver.Surface) ([]driver.SurfaceFormat, error) {
	if l.surface(surface) != nil {
		return append([]driver.SurfaceFormat{}, virtualFormats...), nil
	}
	fns, err := l.instanceFunctions(pd)
	if err != nil {
		return nil, err
	}
	return fns.GetPhysicalDeviceSurfaceFormats(pd, surface)
}

// GetPhysicalDeviceSurfacePresentModes returns the present modes of a
// surface.
func (l *Layer) GetPhysicalDeviceSurfacePresentModes(pd driver.PhysicalDevice, surface driver.Surface) ([]driver.PresentMode, error) {
	if l.surface(surface) != nil {
		return append([]driver.PresentMode{}, virtualPresentModes...), nil
	}
	fns, err := l.instanceFunctions(pd)
	if err != nil {
		return nil, err
	}
	return fns.GetPhysicalDeviceSurfacePresentModes(pd, surface)
}

// chain is everything above a device that a swapchain needs.
type chain struct {
	device         *device
	physicalDevice driver.PhysicalDevice
	instance       driver.Instance
	instanceFns    driver.InstanceFunctions
}

func (l *Layer) chain(dev driver.Device) (chain, error) {
	s := l.registry.Scope()
	defer s.Release()
	d, err := s.Device(dev)
	if err != nil {
		return chain{}, err
	}
	p, err := s.PhysicalDevice(d.PhysicalDevice)
	if err != nil {
		return chain{}, err
	}
	i, err := s.Instance(p.Instance)
	if err != nil {
		return chain{}, err
	}
	return chain{
		device:         &device{handle: dev, fns: d.Functions, memory: p.MemoryProperties},
		physicalDevice: d.PhysicalDevice,
		instance:       p.Instance,
		instanceFns:    i.Functions,
	}, nil
}

// CreateSwapchain creates a virtual swapchain for a virtual surface, and
// passes any other surface through to the driver.
func (l *Layer) CreateSwapchain(ctx context.Context, dev driver.Device, info *driver.SwapchainCreateInfo) (driver.Swapchain, error) {
	surf := l.surface(info.Surface)
	if surf == nil {
		fns, err := l.deviceFunctions(dev)
		if err != nil {
			return 0, err
		}
		return fns.CreateSwapchain(dev, info)
	}
	c, err := l.chain(dev)
	if err != nil {
		return 0, err
	}
	family := uint32(0)
	if len(info.QueueFamilyIndices) > 0 {
		family = info.QueueFamilyIndices[0]
	}
	queue, err := l.GetDeviceQueue(dev, family, 0)
	if err != nil {
		return 0, err
	}
	pinned := l.cfg.AlwaysGetAcquiredImage || surf.info.AlwaysGetAcquiredImage
	s, err := newSwapchain(ctx, c.device, family, queue, info, l.cfg, pinned)
	if err != nil {
		return 0, log.Err(ctx, err, "Creating virtual swapchain")
	}

	l.mutex.Lock()
	s.handle = driver.Swapchain(l.allocate())
	l.swapchains[s.handle] = s
	l.mutex.Unlock()

	if surf.info.Native != nil && !l.cfg.DisableBaseSwapchain {
		if err := l.attachBase(ctx, s, c, *surf.info.Native); err != nil {
			log.W(ctx, "Presenting without a native surface: %v", err)
		}
	}
	return s.handle, nil
}

// CreateBaseSwapchain chains a virtual swapchain to a native surface, so its
// frames are also shown there. Any earlier native surface is replaced.
func (l *Layer) CreateBaseSwapchain(ctx context.Context, dev driver.Device, sc driver.Swapchain, native driver.SurfaceCreateInfo) error {
	s := l.Swapchain(sc)
	if s == nil {
		return ErrUnknownSwapchain
	}
	c, err := l.chain(dev)
	if err != nil {
		return err
	}
	return l.attachBase(ctx, s, c, native)
}

func (l *Layer) attachBase(ctx context.Context, s *Swapchain, c chain, native driver.SurfaceCreateInfo) error {
	b, err := newBaseSwapchain(ctx, baseInfo{
		instance:       c.instance,
		instanceFns:    c.instanceFns,
		physicalDevice: c.physicalDevice,
		device:         s.device,
		family:         s.family,
		surface:        native,
		images:         len(s.slots),
		frame:          s.info,
	})
	if err != nil {
		return err
	}
	if old := s.setBase(b); old != nil {
		bestEffort(ctx, "Destroying replaced native swapchain", old.Destroy(ctx))
	}
	return nil
}

// DestroySwapchain drains and destroys a virtual swapchain, or passes the
// call through for a driver swapchain.
func (l *Layer) DestroySwapchain(ctx context.Context, dev driver.Device, sc driver.Swapchain) error {
	l.mutex.Lock()
	s := l.swapchains[sc]
	delete(l.swapchains, sc)
	l.mutex.Unlock()
	if s != nil {
		return s.Destroy(ctx)
	}
	fns, err := l.deviceFunctions(dev)
	if err != nil {
		return err
	}
	fns.DestroySwapchain(dev, sc)
	return nil
}

// GetSwapchainImages returns the images of a swapchain.
func (l *Layer) GetSwapchainImages(dev driver.Device, sc driver.Swapchain) ([]driver.Image, error) {
	if s := l.Swapchain(sc); s != nil {
		return s.Images(), nil
	}
	fns, err := l.deviceFunctions(dev)
	if err != nil {
		return nil, err
	}
	return fns.GetSwapchainImages(dev, sc)
}

// SetCallback sets the function that receives the frames of a virtual
// swapchain.
func (l *Layer) SetCallback(sc driver.Swapchain, cb Callback, userData interface{}) error {
	s := l.Swapchain(sc)
	if s == nil {
		return ErrUnknownSwapchain
	}
	s.SetCallback(cb, userData)
	return nil
}

// AcquireNextImage acquires an image of a swapchain. For a virtual swapchain
// the semaphore and fence of info are signalled by an empty submission once
// the image is handed out.
func (l *Layer) AcquireNextImage(ctx context.Context, dev driver.Device, sc driver.Swapchain, info driver.AcquireInfo) (uint32, error) {
	s := l.Swapchain(sc)
	if s == nil {
		fns, err := l.deviceFunctions(dev)
		if err != nil {
			return 0, err
		}
		return fns.AcquireNextImage(dev, sc, info.Timeout, info.Semaphore, info.Fence)
	}
	index, err := s.Acquire(ctx, info.Timeout, info.ImageIndex)
	if err != nil {
		return 0, err
	}
	if info.Semaphore == 0 && info.Fence == 0 {
		return index, nil
	}
	if err := l.signalAcquire(s, info); err != nil {
		s.pool.release(index)
		return 0, log.Errf(ctx, err, "Signalling the acquire of image %d", index)
	}
	return index, nil
}

func (l *Layer) signalAcquire(s *Swapchain, info driver.AcquireInfo) error {
	scope := l.registry.Scope()
	defer scope.Release()
	if _, err := scope.Queue(s.queue); err != nil {
		return err
	}
	if _, err := scope.Device(s.device.handle); err != nil {
		return err
	}
	var submits []driver.SubmitInfo
	if info.Semaphore != 0 {
		submits = []driver.SubmitInfo{{SignalSemaphores: []driver.Semaphore{info.Semaphore}}}
	}
	return s.device.fns.QueueSubmit(s.queue, submits, info.Fence)
}

// QueuePresent presents one image of each swapchain of info on queue. The
// result for each swapchain is stored in info.Results when it is long
// enough, and the first failure is returned.
func (l *Layer) QueuePresent(ctx context.Context, queue driver.Queue, info *driver.PresentInfo) error {
	scope := l.registry.Scope()
	defer scope.Release()
	q, err := scope.Queue(queue)
	if err != nil {
		return err
	}
	d, err := scope.Device(q.Device)
	if err != nil {
		return err
	}

	var first fault.One
	waits := info.WaitSemaphores
	for i, sc := range info.Swapchains {
		var err error
		s := l.Swapchain(sc)
		switch {
		case i >= len(info.ImageIndices):
			err = ErrInvalidIndex
		case s != nil:
			err = s.Present(ctx, queue, info.ImageIndices[i], waits)
		default:
			err = d.Functions.QueuePresent(queue, &driver.PresentInfo{
				WaitSemaphores: waits,
				Swapchains:     []driver.Swapchain{sc},
				ImageIndices:   []uint32{info.ImageIndices[i]},
			})
		}
		result := resultOf(err)
		if !result.IsError() {
			// Only a submission that went ahead waited on the semaphores.
			waits = nil
		}
		if i < len(info.Results) {
			info.Results[i] = result
		}
		first.Collect(err)
	}
	return first.First()
}
