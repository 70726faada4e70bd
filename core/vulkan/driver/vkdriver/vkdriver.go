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

// Package vkdriver implements the driver dispatch tables on top of a real
// Vulkan loader through github.com/goki/vulkan.
//
// Vulkan handles are pointers on the Go side, so every object the driver
// hands out is registered in a handle table and addressed by a small integer.
package vkdriver

import (
	"context"
	"os"
	"strings"
	"sync"

	vk "github.com/goki/vulkan"
	"github.com/google/gapid/core/fault"
	"github.com/google/gapid/core/log"
	"github.com/google/gapid/core/vulkan/driver"
	"github.com/pkg/errors"
)

const (
	// ErrUnknownHandle is returned when a handle was never issued by the
	// driver or has already been destroyed.
	ErrUnknownHandle = fault.Const("Unknown handle")
	// ErrNoLoader is returned when the Vulkan loader library cannot be found.
	ErrNoLoader = fault.Const("Vulkan loader not available")
)

// Options controls how the loader is initialized and which extensions are
// enabled on the instance and device.
type Options struct {
	// Application is the application name reported to the driver.
	Application string
	// ICD, if set, is exported as VK_ICD_FILENAMES before the loader starts.
	ICD string
	// Layers is prepended to VK_INSTANCE_LAYERS before the loader starts.
	Layers []string
	// InstanceExtensions are enabled on every created instance.
	InstanceExtensions []string
	// DeviceExtensions are enabled on every created device.
	DeviceExtensions []string
}

var loadOnce struct {
	sync.Once
	err error
}

// Load prepares the environment of the Vulkan loader and resolves the global
// entry points. Only the first call has any effect.
func Load(ctx context.Context, opts Options) error {
	loadOnce.Do(func() {
		if opts.ICD != "" {
			os.Setenv("VK_ICD_FILENAMES", opts.ICD)
		}
		if len(opts.Layers) > 0 {
			layers := opts.Layers
			if existing := os.Getenv("VK_INSTANCE_LAYERS"); existing != "" {
				layers = append(append([]string{}, layers...), existing)
			}
			os.Setenv("VK_INSTANCE_LAYERS", strings.Join(layers, string(os.PathListSeparator)))
		}
		if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
			loadOnce.err = errors.Wrap(ErrNoLoader, err.Error())
			return
		}
		if err := vk.Init(); err != nil {
			loadOnce.err = errors.Wrap(ErrNoLoader, err.Error())
			return
		}
		log.D(ctx, "Vulkan loader initialized")
	})
	return loadOnce.err
}

// table maps driver handles onto values. Handles start at 1 and are never
// reused.
type table[T any] struct {
	mutex sync.Mutex
	next  uint64
	items map[uint64]T
}

func (t *table[T]) add(v T) uint64 {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if t.items == nil {
		t.items = map[uint64]T{}
	}
	t.next++
	t.items[t.next] = v
	return t.next
}

func (t *table[T]) get(h uint64) (T, bool) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	v, ok := t.items[h]
	return v, ok
}

func (t *table[T]) remove(h uint64) (T, bool) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	v, ok := t.items[h]
	delete(t.items, h)
	return v, ok
}

func (t *table[T]) len() int {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return len(t.items)
}

func unknown(kind string, h uint64) error {
	return errors.Wrapf(ErrUnknownHandle, "%s %d", kind, h)
}

type (
	instance struct {
		handle   vk.Instance
		physical []driver.PhysicalDevice
	}
	queueKey struct {
		device        driver.Device
		family, index uint32
	}
	memory struct {
		handle vk.DeviceMemory
		size   driver.DeviceSize
	}
	swapchain struct {
		handle vk.Swapchain
		images []driver.Image
	}
)

// Driver is the next layer in the chain when running on real hardware.
// It implements both driver.InstanceFunctions and driver.DeviceFunctions.
type Driver struct {
	opts Options

	instances       table[*instance]
	physicalDevices table[vk.PhysicalDevice]
	devices         table[vk.Device]
	queues          table[vk.Queue]
	commandBuffers  table[vk.CommandBuffer]
	commandPools    table[vk.CommandPool]
	images          table[vk.Image]
	buffers         table[vk.Buffer]
	memories        table[memory]
	fences          table[vk.Fence]
	semaphores      table[vk.Semaphore]
	surfaces        table[vk.Surface]
	swapchains      table[*swapchain]

	mutex      sync.Mutex
	queueCache map[queueKey]driver.Queue
}

var (
	_ driver.InstanceFunctions = (*Driver)(nil)
	_ driver.DeviceFunctions   = (*Driver)(nil)
)

// New returns a driver using the loader prepared by Load.
func New(opts Options) *Driver {
	return &Driver{opts: opts, queueCache: map[queueKey]driver.Queue{}}
}

// LiveObjects returns the number of live handles of each kind, omitting kinds
// with none.
func (d *Driver) LiveObjects() map[string]int {
	out := map[string]int{}
	for name, n := range map[string]int{
		"instance":      d.instances.len(),
		"device":        d.devices.len(),
		"commandPool":   d.commandPools.len(),
		"image":         d.images.len(),
		"buffer":        d.buffers.len(),
		"memory":        d.memories.len(),
		"fence":         d.fences.len(),
		"semaphore":     d.semaphores.len(),
		"surface":       d.surfaces.len(),
		"swapchain":     d.swapchains.len(),
		"commandBuffer": d.commandBuffers.len(),
	} {
		if n > 0 {
			out[name] = n
		}
	}
	return out
}

// check converts a vk.Result into the driver's error convention.
func check(res vk.Result) error {
	return driver.Check(driver.Result(res))
}

// cstrings returns s with every string null terminated, as the loader expects.
func cstrings(s []string) []string {
	out := make([]string, len(s))
	for i, v := range s {
		if !strings.HasSuffix(v, "\x00") {
			v += "\x00"
		}
		out[i] = v
	}
	return out
}
