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

package registry

import (
	"github.com/google/gapid/core/vulkan/driver"
	"github.com/pkg/errors"
)

// Scope takes registry locks in increasing level order and releases them all
// at once. The data returned by a Scope may be read and modified until
// Release. A Scope must not be shared between goroutines.
type Scope struct {
	r       *Registry
	id      uint64
	held    []Level
	unlocks []func()
}

// Scope starts a new, empty lock scope.
func (r *Registry) Scope() *Scope {
	return &Scope{r: r, id: r.nextScope()}
}

// Release unlocks every table locked by the scope, in reverse order.
// It is safe to call Release more than once.
func (s *Scope) Release() {
	for i := len(s.unlocks) - 1; i >= 0; i-- {
		s.unlocks[i]()
	}
	s.unlocks, s.held = nil, nil
}

// Held returns the levels currently locked by the scope.
func (s *Scope) Held() []Level { return append([]Level{}, s.held...) }

// enter locks t if that keeps the scope in increasing level order.
func enter[H comparable, T any](s *Scope, t *table[H, T]) error {
	if n := len(s.held); n > 0 && s.held[n-1] >= t.level {
		return errors.Wrapf(ErrLockOrder, "locking %v while holding %v", t.level, s.held[n-1])
	}
	lock(s.r, t, s.id)
	s.held = append(s.held, t.level)
	s.unlocks = append(s.unlocks, func() { unlock(s.r, t, s.id) })
	return nil
}

func lookup[H comparable, T any](t *table[H, T], h H) (*T, error) {
	if data, ok := t.entries[h]; ok {
		return data, nil
	}
	return nil, errors.Wrapf(ErrNotRegistered, "%v %v", t.level, h)
}

func acquire[H comparable, T any](s *Scope, t *table[H, T], h H) (*T, error) {
	if err := enter(s, t); err != nil {
		return nil, err
	}
	return lookup(t, h)
}

// Instance locks the instance table and returns the data for h.
// The table stays locked until Release even when h is not registered.
func (s *Scope) Instance(h driver.Instance) (*InstanceData, error) {
	return acquire(s, &s.r.instances, h)
}

// PhysicalDevice locks the physical device table and returns the data for h.
func (s *Scope) PhysicalDevice(h driver.PhysicalDevice) (*PhysicalDeviceData, error) {
	return acquire(s, &s.r.physicalDevices, h)
}

// Device locks the device table and returns the data for h.
func (s *Scope) Device(h driver.Device) (*DeviceData, error) {
	return acquire(s, &s.r.devices, h)
}

// Queue locks the queue table and returns the data for h.
func (s *Scope) Queue(h driver.Queue) (*QueueData, error) {
	return acquire(s, &s.r.queues, h)
}

// CommandBuffers locks the command buffer table and returns the data for each
// of hs, failing on the first handle that is not registered.
func (s *Scope) CommandBuffers(hs ...driver.CommandBuffer) ([]*CommandBufferData, error) {
	t := &s.r.commandBuffers
	if err := enter(s, t); err != nil {
		return nil, err
	}
	out := make([]*CommandBufferData, len(hs))
	for i, h := range hs {
		data, err := lookup(t, h)
		if err != nil {
			return nil, err
		}
		out[i] = data
	}
	return out, nil
}

// Guard holds a single table lock until Release.
type Guard[T any] struct {
	Data  *T
	scope *Scope
}

// Release unlocks the table.
func (g *Guard[T]) Release() { g.scope.Release() }

func guard[H comparable, T any](r *Registry, t *table[H, T], h H) (*Guard[T], error) {
	s := r.Scope()
	data, err := acquire(s, t, h)
	if err != nil {
		s.Release()
		return nil, err
	}
	return &Guard[T]{Data: data, scope: s}, nil
}

// Instance locks the instance table for the data of h.
func (r *Registry) Instance(h driver.Instance) (*Guard[InstanceData], error) {
	return guard(r, &r.instances, h)
}

// PhysicalDevice locks the physical device table for the data of h.
func (r *Registry) PhysicalDevice(h driver.PhysicalDevice) (*Guard[PhysicalDeviceData], error) {
	return guard(r, &r.physicalDevices, h)
}

// Device locks the device table for the data of h.
func (r *Registry) Device(h driver.Device) (*Guard[DeviceData], error) {
	return guard(r, &r.devices, h)
}

// Queue locks the queue table for the data of h.
func (r *Registry) Queue(h driver.Queue) (*Guard[QueueData], error) {
	return guard(r, &r.queues, h)
}

// CommandBuffer locks the command buffer table for the data of h.
func (r *Registry) CommandBuffer(h driver.CommandBuffer) (*Guard[CommandBufferData], error) {
	return guard(r, &r.commandBuffers, h)
}
