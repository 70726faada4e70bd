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

// Package registry tracks the dispatchable Vulkan objects seen by the layer.
//
// Each object kind lives in its own table guarded by its own lock. Code that
// needs more than one table must take the locks through a Scope, in the order
// CommandBuffer, Queue, Device, PhysicalDevice, Instance.
package registry

import (
	"sync"
	"sync/atomic"

	"github.com/google/gapid/core/fault"
	"github.com/google/gapid/core/vulkan/driver"
)

const (
	// ErrNotRegistered is returned when looking up a handle the registry does not know.
	ErrNotRegistered = fault.Const("Handle not registered")
	// ErrLockOrder is returned when a scope would take a lock out of order.
	ErrLockOrder = fault.Const("Registry lock taken out of order")
)

// Level is the position of a table in the lock order.
type Level int

const (
	CommandBufferLevel = Level(iota)
	QueueLevel
	DeviceLevel
	PhysicalDeviceLevel
	InstanceLevel
)

func (l Level) String() string {
	switch l {
	case CommandBufferLevel:
		return "CommandBuffer"
	case QueueLevel:
		return "Queue"
	case DeviceLevel:
		return "Device"
	case PhysicalDeviceLevel:
		return "PhysicalDevice"
	case InstanceLevel:
		return "Instance"
	default:
		return "Unknown"
	}
}

// InstanceData is the state recorded for an instance.
type InstanceData struct {
	Functions       driver.InstanceFunctions
	PhysicalDevices []driver.PhysicalDevice
}

// PhysicalDeviceData is the state recorded for a physical device.
type PhysicalDeviceData struct {
	Instance         driver.Instance
	MemoryProperties driver.MemoryProperties
	QueueFamilies    []driver.QueueFamilyProperties
}

// DeviceData is the state recorded for a device.
type DeviceData struct {
	PhysicalDevice driver.PhysicalDevice
	Functions      driver.DeviceFunctions
}

// QueueData is the state recorded for a queue.
type QueueData struct {
	Device driver.Device
	Family uint32
	Index  uint32
}

// CommandBufferData is the state recorded for a command buffer.
type CommandBufferData struct {
	Device driver.Device
	Pool   driver.CommandPool
}

// TraceEvent describes a lock or unlock of a table.
// Scope is 0 for the single table operations that are not part of a Scope.
type TraceEvent struct {
	Scope  uint64
	Level  Level
	Locked bool
}

// Option configures a Registry.
type Option func(*Registry)

// WithTracer calls f for every table lock and unlock. f is called while the
// table lock is held and must not call back into the registry.
func WithTracer(f func(TraceEvent)) Option {
	return func(r *Registry) { r.tracer = f }
}

type table[H comparable, T any] struct {
	level   Level
	mutex   sync.Mutex
	entries map[H]*T
}

// Registry holds the five object tables.
type Registry struct {
	instances       table[driver.Instance, InstanceData]
	physicalDevices table[driver.PhysicalDevice, PhysicalDeviceData]
	devices         table[driver.Device, DeviceData]
	queues          table[driver.Queue, QueueData]
	commandBuffers  table[driver.CommandBuffer, CommandBufferData]

	tracer func(TraceEvent)
	scopes uint64
}

// New returns an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		instances:       table[driver.Instance, InstanceData]{level: InstanceLevel, entries: map[driver.Instance]*InstanceData{}},
		physicalDevices: table[driver.PhysicalDevice, PhysicalDeviceData]{level: PhysicalDeviceLevel, entries: map[driver.PhysicalDevice]*PhysicalDeviceData{}},
		devices:         table[driver.Device, DeviceData]{level: DeviceLevel, entries: map[driver.Device]*DeviceData{}},
		queues:          table[driver.Queue, QueueData]{level: QueueLevel, entries: map[driver.Queue]*QueueData{}},
		commandBuffers:  table[driver.CommandBuffer, CommandBufferData]{level: CommandBufferLevel, entries: map[driver.CommandBuffer]*CommandBufferData{}},
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Registry) trace(scope uint64, l Level, locked bool) {
	if r.tracer != nil {
		r.tracer(TraceEvent{Scope: scope, Level: l, Locked: locked})
	}
}

func lock[H comparable, T any](r *Registry, t *table[H, T], scope uint64) {
	t.mutex.Lock()
	r.trace(scope, t.level, true)
}

func unlock[H comparable, T any](r *Registry, t *table[H, T], scope uint64) {
	r.trace(scope, t.level, false)
	t.mutex.Unlock()
}

func register[H comparable, T any](r *Registry, t *table[H, T], h H, data T) {
	lock(r, t, 0)
	defer unlock(r, t, 0)
	t.entries[h] = &data
}

func unregister[H comparable, T any](r *Registry, t *table[H, T], h H) {
	lock(r, t, 0)
	defer unlock(r, t, 0)
	delete(t.entries, h)
}

// RegisterInstance records inst, replacing any earlier record.
func (r *Registry) RegisterInstance(h driver.Instance, data InstanceData) {
	register(r, &r.instances, h, data)
}

// UnregisterInstance forgets inst.
func (r *Registry) UnregisterInstance(h driver.Instance) { unregister(r, &r.instances, h) }

// RegisterPhysicalDevice records pd, replacing any earlier record.
func (r *Registry) RegisterPhysicalDevice(h driver.PhysicalDevice, data PhysicalDeviceData) {
	register(r, &r.physicalDevices, h, data)
}

// UnregisterPhysicalDevice forgets pd.
func (r *Registry) UnregisterPhysicalDevice(h driver.PhysicalDevice) {
	unregister(r, &r.physicalDevices, h)
}

// RegisterDevice records dev, replacing any earlier record.
func (r *Registry) RegisterDevice(h driver.Device, data DeviceData) {
	register(r, &r.devices, h, data)
}

// UnregisterDevice forgets dev.
func (r *Registry) UnregisterDevice(h driver.Device) { unregister(r, &r.devices, h) }

// RegisterQueue records q, replacing any earlier record.
func (r *Registry) RegisterQueue(h driver.Queue, data QueueData) {
	register(r, &r.queues, h, data)
}

// UnregisterQueue forgets q.
func (r *Registry) UnregisterQueue(h driver.Queue) { unregister(r, &r.queues, h) }

// RegisterCommandBuffer records cb, replacing any earlier record.
func (r *Registry) RegisterCommandBuffer(h driver.CommandBuffer, data CommandBufferData) {
	register(r, &r.commandBuffers, h, data)
}

// UnregisterCommandBuffer forgets cb.
func (r *Registry) UnregisterCommandBuffer(h driver.CommandBuffer) {
	unregister(r, &r.commandBuffers, h)
}

// UnregisterDeviceObjects forgets every queue and command buffer of dev.
func (r *Registry) UnregisterDeviceObjects(dev driver.Device) {
	lock(r, &r.commandBuffers, 0)
	for h, d := range r.commandBuffers.entries {
		if d.Device == dev {
			delete(r.commandBuffers.entries, h)
		}
	}
	unlock(r, &r.commandBuffers, 0)
	lock(r, &r.queues, 0)
	for h, d := range r.queues.entries {
		if d.Device == dev {
			delete(r.queues.entries, h)
		}
	}
	unlock(r, &r.queues, 0)
}

func (r *Registry) nextScope() uint64 { return atomic.AddUint64(&r.scopes, 1) }
