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

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/gapid/core/assert"
	"github.com/google/gapid/core/log"
	"github.com/google/gapid/core/vulkan/driver"
	"github.com/google/gapid/core/vulkan/driver/soft"
	"github.com/google/gapid/core/vulkan/registry"
)

type fixture struct {
	ctx   context.Context
	t     *testing.T
	gpu   *soft.GPU
	layer *Layer
	inst  driver.Instance
	pd    driver.PhysicalDevice
	dev   driver.Device
	queue driver.Queue
}

func newFixture(t *testing.T, cfg Config, opts ...registry.Option) *fixture {
	ctx := log.Testing(t)
	gpu := soft.New()
	f := &fixture{ctx: ctx, t: t, gpu: gpu, layer: NewLayer(cfg, registry.New(opts...))}
	f.inst = gpu.CreateInstance()
	f.layer.CreateInstance(f.inst, gpu)
	pds, err := f.layer.EnumeratePhysicalDevices(f.inst)
	if err != nil || len(pds) == 0 {
		t.Fatalf("EnumeratePhysicalDevices: %v %v", pds, err)
	}
	f.pd = pds[0]
	if f.dev, err = gpu.CreateDevice(f.pd); err != nil {
		t.Fatalf("CreateDevice: %v", err)
	}
	if err := f.layer.CreateDevice(f.pd, f.dev, gpu); err != nil {
		t.Fatalf("Layer.CreateDevice: %v", err)
	}
	if f.queue, err = f.layer.GetDeviceQueue(f.dev, 0, 0); err != nil {
		t.Fatalf("GetDeviceQueue: %v", err)
	}
	return f
}

// close tears down the device and instance through the layer.
func (f *fixture) close() {
	assert.For(f.ctx, "DestroyDevice").ThatError(f.layer.DestroyDevice(f.ctx, f.dev)).Succeeded()
	assert.For(f.ctx, "DestroyInstance").ThatError(f.layer.DestroyInstance(f.ctx, f.inst)).Succeeded()
	assert.For(f.ctx, "driver errors").ThatError(f.gpu.Err()).Succeeded()
}

func (f *fixture) createSwapchain(images uint32, extent driver.Extent2D, layers uint32, info VirtualSurfaceInfo) *Swapchain {
	surface, err := f.layer.CreateVirtualSurface(f.ctx, f.inst, info)
	if err != nil {
		f.t.Fatalf("CreateVirtualSurface: %v", err)
	}
	sc, err := f.layer.CreateSwapchain(f.ctx, f.dev, &driver.SwapchainCreateInfo{
		Surface:            surface,
		MinImageCount:      images,
		Format:             driver.FormatR8G8B8A8Unorm,
		ColorSpace:         driver.ColorSpaceSRGBNonlinear,
		Extent:             extent,
		ArrayLayers:        layers,
		Usage:              driver.ImageUsageColorAttachment,
		QueueFamilyIndices: []uint32{0},
		PresentMode:        driver.PresentModeFIFO,
	})
	if err != nil {
		f.t.Fatalf("CreateSwapchain: %v", err)
	}
	return f.layer.Swapchain(sc)
}

func (f *fixture) acquire(sc *Swapchain, timeout uint64) (uint32, error) {
	return f.layer.AcquireNextImage(f.ctx, f.dev, sc.Handle(), driver.AcquireInfo{Timeout: timeout})
}

func (f *fixture) present(sc *Swapchain, index uint32) (driver.Result, error) {
	info := &driver.PresentInfo{
		Swapchains:   []driver.Swapchain{sc.Handle()},
		ImageIndices: []uint32{index},
		Results:      make([]driver.Result, 1),
	}
	err := f.layer.QueuePresent(f.ctx, f.queue, info)
	return info.Results[0], err
}

// draw fills every layer of an acquired image with a constant value, seed
// plus the layer index.
func (f *fixture) draw(sc *Swapchain, index uint32, seed byte) {
	size := LayerSize(sc.Extent())
	for l := uint32(0); l < sc.Layers(); l++ {
		pixels := bytes.Repeat([]byte{seed + byte(l)}, size)
		if err := f.gpu.WriteImage(sc.Images()[index], l, pixels); err != nil {
			f.t.Fatalf("WriteImage: %v", err)
		}
	}
}

// frames records the data passed to a swapchain callback.
type frames struct {
	mutex sync.Mutex
	data  [][]byte
	tags  []interface{}
}

func (r *frames) callback(userData interface{}, data []byte) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.data = append(r.data, append([]byte(nil), data...))
	r.tags = append(r.tags, userData)
}

func (r *frames) get() [][]byte {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return append([][]byte{}, r.data...)
}

// seeds returns the first byte of every recorded frame.
func (r *frames) seeds() []byte {
	out := []byte{}
	for _, d := range r.get() {
		out = append(out, d[0])
	}
	return out
}

func uniform(data []byte, value byte) bool {
	return bytes.Count(data, []byte{value}) == len(data)
}

// eventually polls cond until it holds, failing the test after a second.
func (f *fixture) eventually(what string, cond func() bool) {
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			f.t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}
