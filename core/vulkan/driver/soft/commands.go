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

type commandPool struct {
	device  driver.Device
	family  uint32
	buffers map[driver.CommandBuffer]struct{}
}

type commandBuffer struct {
	pool      driver.CommandPool
	recording bool
	commands  []command
}

// command executes one recorded command. It is called with the mutex held.
type command func(g *GPU)

// CreateCommandPool implements driver.DeviceFunctions.
func (g *GPU) CreateCommandPool(d driver.Device, family uint32) (driver.CommandPool, error) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	if err := g.fail("CreateCommandPool"); err != nil {
		return 0, err
	}
	if family >= uint32(len(queueFamilies)) {
		return 0, driver.ErrorInitializationFailed
	}
	p := &commandPool{device: d, family: family, buffers: map[driver.CommandBuffer]struct{}{}}
	return driver.CommandPool(g.pools.add(p)), nil
}

// DestroyCommandPool implements driver.DeviceFunctions. Buffers still
// allocated from the pool are freed with it.
func (g *GPU) DestroyCommandPool(_ driver.Device, h driver.CommandPool) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	if p := g.pools.remove(uint64(h)); p != nil {
		for cb := range p.buffers {
			g.commandBuffers.remove(uint64(cb))
		}
	}
}

// AllocateCommandBuffers implements driver.DeviceFunctions.
func (g *GPU) AllocateCommandBuffers(_ driver.Device, h driver.CommandPool, count uint32) ([]driver.CommandBuffer, error) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	if err := g.fail("AllocateCommandBuffers"); err != nil {
		return nil, err
	}
	p := g.pools.get(uint64(h))
	if p == nil {
		return nil, driver.ErrorOutOfHostMemory
	}
	out := make([]driver.CommandBuffer, count)
	for i := range out {
		out[i] = driver.CommandBuffer(g.commandBuffers.add(&commandBuffer{pool: h}))
		p.buffers[out[i]] = struct{}{}
	}
	return out, nil
}

// FreeCommandBuffers implements driver.DeviceFunctions.
func (g *GPU) FreeCommandBuffers(_ driver.Device, h driver.CommandPool, buffers []driver.CommandBuffer) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	p := g.pools.get(uint64(h))
	for _, cb := range buffers {
		if p != nil {
			delete(p.buffers, cb)
		}
		g.commandBuffers.remove(uint64(cb))
	}
}

// BeginCommandBuffer implements driver.DeviceFunctions. Beginning a buffer
// discards its previous recording.
func (g *GPU) BeginCommandBuffer(h driver.CommandBuffer) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	if err := g.fail("BeginCommandBuffer"); err != nil {
		return err
	}
	cb := g.commandBuffers.get(uint64(h))
	if cb == nil {
		return driver.ErrorOutOfHostMemory
	}
	cb.recording, cb.commands = true, nil
	return nil
}

// EndCommandBuffer implements driver.DeviceFunctions.
func (g *GPU) EndCommandBuffer(h driver.CommandBuffer) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	if err := g.fail("EndCommandBuffer"); err != nil {
		return err
	}
	cb := g.commandBuffers.get(uint64(h))
	if cb == nil || !cb.recording {
		return driver.ErrorOutOfHostMemory
	}
	cb.recording = false
	return nil
}

func (g *GPU) record(h driver.CommandBuffer, c command) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	if cb := g.commandBuffers.get(uint64(h)); cb != nil && cb.recording {
		cb.commands = append(cb.commands, c)
	}
}

// run executes a command buffer. Must be called with the mutex held.
func (g *GPU) run(h driver.CommandBuffer) {
	cb := g.commandBuffers.get(uint64(h))
	if cb == nil {
		g.raisef("Command buffer %v freed while pending", h)
		return
	}
	for _, c := range cb.commands {
		c(g)
	}
}

// CmdPipelineBarrier implements driver.DeviceFunctions. Commands execute in
// order, so barriers only check that the resources still exist.
func (g *GPU) CmdPipelineBarrier(h driver.CommandBuffer, _, _ driver.PipelineStage, buffers []driver.BufferBarrier, images []driver.ImageBarrier) {
	buffers = append([]driver.BufferBarrier{}, buffers...)
	images = append([]driver.ImageBarrier{}, images...)
	g.record(h, func(g *GPU) {
		for _, b := range buffers {
			if g.buffers.get(uint64(b.Buffer)) == nil {
				g.raisef("Barrier on destroyed buffer %v", b.Buffer)
			}
		}
		for _, i := range images {
			if g.images.get(uint64(i.Image)) == nil {
				g.raisef("Barrier on destroyed image %v", i.Image)
			}
		}
	})
}

// CmdCopyImageToBuffer implements driver.DeviceFunctions.
func (g *GPU) CmdCopyImageToBuffer(h driver.CommandBuffer, src driver.Image, _ driver.ImageLayout, dst driver.Buffer, regions []driver.BufferImageCopy) {
	regions = append([]driver.BufferImageCopy{}, regions...)
	g.record(h, func(g *GPU) {
		img, pixels := g.imageBytes(src)
		out := g.bufferBytes(dst)
		if pixels == nil || out == nil {
			g.raisef("Copy from image %v to buffer %v without memory", src, dst)
			return
		}
		w, ih := int(img.info.Extent.Width), int(img.info.Extent.Height)
		for _, r := range regions {
			rw, rh := int(r.Extent.Width), int(r.Extent.Height)
			if rw > w || rh > ih || r.Layers.BaseLayer+r.Layers.LayerCount > img.info.ArrayLayers {
				g.raisef("Copy region %+v out of image bounds", r)
				return
			}
			o := int(r.BufferOffset)
			for l := 0; l < int(r.Layers.LayerCount); l++ {
				layer := int(r.Layers.BaseLayer) + l
				for y := 0; y < rh; y++ {
					s := ((layer*ih + y) * w) * 4
					if o+rw*4 > len(out) {
						g.raisef("Copy region %+v out of buffer bounds", r)
						return
					}
					copy(out[o:o+rw*4], pixels[s:s+rw*4])
					o += rw * 4
				}
			}
		}
	})
}

// CmdBlitImage implements driver.DeviceFunctions, sampling nearest texels.
func (g *GPU) CmdBlitImage(h driver.CommandBuffer, src driver.Image, _ driver.ImageLayout, dst driver.Image, _ driver.ImageLayout, regions []driver.ImageBlit, _ driver.Filter) {
	regions = append([]driver.ImageBlit{}, regions...)
	g.record(h, func(g *GPU) {
		si, sp := g.imageBytes(src)
		di, dp := g.imageBytes(dst)
		if sp == nil || dp == nil {
			g.raisef("Blit from image %v to image %v without memory", src, dst)
			return
		}
		sw, sh := int(si.info.Extent.Width), int(si.info.Extent.Height)
		dw, dh := int(di.info.Extent.Width), int(di.info.Extent.Height)
		for _, r := range regions {
			if r.SrcLayer >= si.info.ArrayLayers || r.DstLayer >= di.info.ArrayLayers {
				g.raisef("Blit region %+v out of layer bounds", r)
				return
			}
			sx0, sy0 := int(r.SrcOffsets[0].X), int(r.SrcOffsets[0].Y)
			sx1, sy1 := int(r.SrcOffsets[1].X), int(r.SrcOffsets[1].Y)
			dx0, dy0 := int(r.DstOffsets[0].X), int(r.DstOffsets[0].Y)
			dx1, dy1 := int(r.DstOffsets[1].X), int(r.DstOffsets[1].Y)
			if dx1 <= dx0 || dy1 <= dy0 {
				continue
			}
			for y := dy0; y < dy1 && y < dh; y++ {
				v := sy0 + (y-dy0)*(sy1-sy0)/(dy1-dy0)
				for x := dx0; x < dx1 && x < dw; x++ {
					u := sx0 + (x-dx0)*(sx1-sx0)/(dx1-dx0)
					if u < 0 || v < 0 || u >= sw || v >= sh || x < 0 || y < 0 {
						continue
					}
					s := ((int(r.SrcLayer)*sh+v)*sw + u) * 4
					d := ((int(r.DstLayer)*dh+y)*dw + x) * 4
					copy(dp[d:d+4], sp[s:s+4])
				}
			}
		}
	})
}

// CmdClearColorImage implements driver.DeviceFunctions.
func (g *GPU) CmdClearColorImage(h driver.CommandBuffer, dst driver.Image, _ driver.ImageLayout, color driver.ClearColor, r driver.SubresourceRange) {
	var texel [4]byte
	for i, c := range color {
		switch {
		case c <= 0:
			texel[i] = 0
		case c >= 1:
			texel[i] = 255
		default:
			texel[i] = byte(c*255 + 0.5)
		}
	}
	g.record(h, func(g *GPU) {
		img, pixels := g.imageBytes(dst)
		if pixels == nil {
			g.raisef("Clear of image %v without memory", dst)
			return
		}
		if r.BaseLayer+r.LayerCount > img.info.ArrayLayers {
			g.raisef("Clear range %+v out of layer bounds", r)
			return
		}
		stride := len(pixels) / int(img.info.ArrayLayers)
		for l := r.BaseLayer; l < r.BaseLayer+r.LayerCount; l++ {
			layer := pixels[int(l)*stride : int(l+1)*stride]
			for i := 0; i < len(layer); i += 4 {
				copy(layer[i:i+4], texel[:])
			}
		}
	})
}
