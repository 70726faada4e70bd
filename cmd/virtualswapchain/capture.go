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

	"github.com/google/gapid/core/event/task"
	"github.com/google/gapid/core/fault"
	"github.com/google/gapid/core/log"
	"github.com/google/gapid/core/vulkan/driver"
	"github.com/google/gapid/core/vulkan/framedump"
	"github.com/google/gapid/core/vulkan/registry"
	"github.com/google/gapid/core/vulkan/virtualswapchain"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// captureOptions are the flags of the capture command.
type captureOptions struct {
	Driver  string
	Width   uint32
	Height  uint32
	Images  uint32
	Layers  uint32
	Frames  int
	Out     string
	Format  string
	Forward bool
	Config  virtualswapchain.Config
}

// captureResult summarizes a capture run.
type captureResult struct {
	Captured  int
	Presented int
}

var (
	capture   = captureOptions{}
	vulkanICD string
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Render frames into a virtual swapchain and dump them to image files",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		v := virtualswapchain.NewViper()
		for key, flag := range map[string]string{
			"pending_timeout":           "pending-timeout",
			"drain_timeout":             "drain-timeout",
			"always_get_acquired_image": "pinned",
		} {
			if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
				return err
			}
		}
		cfg, err := virtualswapchain.ConfigFrom(v)
		if err != nil {
			return err
		}
		opts := capture
		opts.Config = cfg
		ctx := cmd.Context()
		res, err := runCapture(ctx, opts)
		if err != nil {
			return err
		}
		log.I(log.V{"captured": res.Captured, "presented": res.Presented, "out": opts.Out}.Bind(ctx), "Capture complete")
		return nil
	},
}

func init() {
	def := virtualswapchain.DefaultConfig()
	f := captureCmd.Flags()
	f.StringVar(&capture.Driver, "driver", "soft", "driver to run on: soft or vulkan")
	f.Uint32Var(&capture.Width, "width", 256, "swapchain width")
	f.Uint32Var(&capture.Height, "height", 256, "swapchain height")
	f.Uint32Var(&capture.Images, "images", 3, "swapchain image count")
	f.Uint32Var(&capture.Layers, "layers", 1, "swapchain array layers")
	f.IntVar(&capture.Frames, "frames", 10, "number of frames to render")
	f.StringVar(&capture.Out, "out", "frames", "output directory")
	f.StringVar(&capture.Format, "format", "png", "output format: png or bmp")
	f.BoolVar(&capture.Forward, "forward", false, "also present to a native surface (soft driver only)")
	f.StringVar(&vulkanICD, "icd", "", "Vulkan ICD manifest to load instead of the system ones")
	f.Duration("pending-timeout", def.PendingTimeout, "copy-back worker idle wait")
	f.Duration("drain-timeout", def.DrainTimeout, "bound on each pending frame when destroying the swapchain, 0 waits forever")
	f.Bool("pinned", def.AlwaysGetAcquiredImage, "acquire returns the image index the application asks for")
}

// runCapture installs the layer on a fresh device, renders opts.Frames frames
// and writes every captured frame to opts.Out.
func runCapture(ctx context.Context, opts captureOptions) (res captureResult, err error) {
	ctx = log.Enter(ctx, "capture")
	format, err := framedump.ParseFormat(opts.Format)
	if err != nil {
		return res, err
	}
	extent := driver.Extent2D{Width: opts.Width, Height: opts.Height}
	t, err := openTarget(ctx, opts.Driver, extent)
	if err != nil {
		return res, err
	}
	defer t.close()

	var errs fault.List
	defer func() {
		if err == nil {
			err = errs.First()
		}
	}()

	layer := virtualswapchain.NewLayer(opts.Config, registry.New())
	layer.CreateInstance(t.instance, t.fns)
	defer func() { errs.Collect(layer.DestroyInstance(ctx, t.instance)) }()
	if _, err := layer.EnumeratePhysicalDevices(t.instance); err != nil {
		return res, err
	}
	if err := layer.CreateDevice(t.physicalDevice, t.device, t.fns); err != nil {
		return res, err
	}
	defer func() { errs.Collect(layer.DestroyDevice(ctx, t.device)) }()
	queue, err := layer.GetDeviceQueue(t.device, t.family, 0)
	if err != nil {
		return res, err
	}

	info := virtualswapchain.VirtualSurfaceInfo{AlwaysGetAcquiredImage: opts.Config.AlwaysGetAcquiredImage}
	if opts.Forward {
		if t.window == nil {
			return res, errors.Wrapf(ErrNoWindow, "driver %q", opts.Driver)
		}
		info.Native = t.window
	}
	surface, err := layer.CreateVirtualSurface(ctx, t.instance, info)
	if err != nil {
		return res, err
	}
	defer func() { errs.Collect(layer.DestroySurface(t.instance, surface)) }()

	sc, err := layer.CreateSwapchain(ctx, t.device, &driver.SwapchainCreateInfo{
		Surface:            surface,
		MinImageCount:      opts.Images,
		Format:             driver.FormatR8G8B8A8Unorm,
		ColorSpace:         driver.ColorSpaceSRGBNonlinear,
		Extent:             extent,
		ArrayLayers:        opts.Layers,
		Usage:              driver.ImageUsageTransferDst,
		QueueFamilyIndices: []uint32{t.family},
		PresentMode:        driver.PresentModeFIFO,
	})
	if err != nil {
		return res, err
	}
	destroyed := false
	destroy := func() error {
		if destroyed {
			return nil
		}
		destroyed = true
		return layer.DestroySwapchain(ctx, t.device, sc)
	}
	defer func() { errs.Collect(destroy()) }()

	dump, err := framedump.New(ctx, framedump.Options{
		Dir:         opts.Out,
		Format:      format,
		PixelFormat: driver.FormatR8G8B8A8Unorm,
		Extent:      extent,
		Layers:      opts.Layers,
	})
	if err != nil {
		return res, err
	}
	if err := layer.SetCallback(sc, dump.Callback, nil); err != nil {
		return res, err
	}

	r, err := newRenderer(ctx, layer, t, queue, sc, opts.Layers)
	if err != nil {
		dump.Close()
		return res, err
	}
	for n := 0; n < opts.Frames && !task.Stopped(ctx); n++ {
		if err := r.frame(ctx, n); err != nil {
			errs.Collect(err)
			break
		}
	}
	errs.Collect(r.close())

	// The native surface goes away with the swapchain.
	if b := layer.Swapchain(sc).Base(); b != nil && t.presented != nil {
		errs.Collect(t.fns.DeviceWaitIdle(t.device))
		res.Presented = t.presented(b.Surface())
	}
	// Destroying the swapchain drains the copy-back worker, so every captured
	// frame has reached the dump before it is closed.
	errs.Collect(destroy())
	errs.Collect(dump.Close())
	res.Captured = dump.Frames()
	return res, nil
}
