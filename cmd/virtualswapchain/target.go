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

package main

import (
	"context"

	"github.com/google/gapid/core/fault"
	"github.com/google/gapid/core/log"
	"github.com/google/gapid/core/vulkan/driver"
	"github.com/google/gapid/core/vulkan/driver/soft"
	"github.com/google/gapid/core/vulkan/driver/vkdriver"
	"github.com/pkg/errors"
)

const (
	ErrUnknownDriver = fault.Const("Unknown driver")
	ErrNoWindow      = fault.Const("Driver has no presentable window")
)

// functions is the full dispatch of a driver.
type functions interface {
	driver.InstanceFunctions
	driver.DeviceFunctions
}

// target is an instance and device the layer is installed on.
type target struct {
	fns            functions
	instance       driver.Instance
	physicalDevice driver.PhysicalDevice
	device         driver.Device
	family         uint32
	// window describes a native surface to forward presents to, if any.
	window *driver.SurfaceCreateInfo
	// presented returns the frames shown on the window.
	presented func(driver.Surface) int
	close     func()
}

func openTarget(ctx context.Context, name string, extent driver.Extent2D) (*target, error) {
	switch name {
	case "soft":
		return openSoft(ctx, extent)
	case "vulkan":
		return openVulkan(ctx)
	}
	return nil, errors.Wrapf(ErrUnknownDriver, "%q", name)
}

func openSoft(ctx context.Context, extent driver.Extent2D) (*target, error) {
	gpu := soft.New()
	inst := gpu.CreateInstance()
	pds, err := gpu.EnumeratePhysicalDevices(inst)
	if err != nil {
		return nil, err
	}
	dev, err := gpu.CreateDevice(pds[0])
	if err != nil {
		gpu.DestroyInstance(inst)
		return nil, err
	}
	log.D(ctx, "Software GPU opened")
	return &target{
		fns:            gpu,
		instance:       inst,
		physicalDevice: pds[0],
		device:         dev,
		window:         &driver.SurfaceCreateInfo{Native: 1, Extent: extent},
		presented: func(s driver.Surface) int {
			return len(gpu.Frames(s))
		},
		close: func() {
			if err := gpu.Err(); err != nil {
				log.W(ctx, "Software GPU reported: %v", err)
			}
		},
	}, nil
}

func openVulkan(ctx context.Context) (*target, error) {
	h, err := vkdriver.Open(ctx, vkdriver.Options{
		Application: "virtualswapchain",
		ICD:         vulkanICD,
	})
	if err != nil {
		return nil, err
	}
	return &target{
		fns:            h.Driver,
		instance:       h.Instance,
		physicalDevice: h.PhysicalDevice,
		device:         h.Device,
		family:         h.Family,
		close:          h.Close,
	}, nil
}
