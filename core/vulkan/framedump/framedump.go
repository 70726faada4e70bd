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

// Package framedump writes the frames delivered by a virtual swapchain to
// image files.
package framedump

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/google/gapid/core/fault"
	"github.com/google/gapid/core/log"
	"github.com/google/gapid/core/vulkan/driver"
	"github.com/google/gapid/core/vulkan/virtualswapchain"
	"github.com/pkg/errors"
	"golang.org/x/image/bmp"
	"golang.org/x/sync/errgroup"
)

// Format is an output image encoding.
type Format string

const (
	PNG = Format("png")
	BMP = Format("bmp")
)

const (
	ErrUnknownFormat     = fault.Const("Unknown image format")
	ErrUnsupportedPixels = fault.Const("Unsupported pixel format")
	ErrClosed            = fault.Const("Writer closed")
)

// ParseFormat returns the Format named by s.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case PNG, BMP:
		return f, nil
	}
	return "", errors.Wrapf(ErrUnknownFormat, "%q", s)
}

func (f Format) encode(w io.Writer, img image.Image) error {
	if f == BMP {
		return bmp.Encode(w, img)
	}
	return png.Encode(w, img)
}

// Options describes the frames a Writer receives and where they go.
type Options struct {
	Dir         string
	Format      Format
	PixelFormat driver.Format
	Extent      driver.Extent2D
	Layers      uint32
	// Parallel limits the number of concurrent encoders, 0 means one per CPU.
	Parallel int
}

// Writer encodes frames in the background. Callback can be installed as a
// swapchain callback directly.
type Writer struct {
	ctx   context.Context
	opts  Options
	group *errgroup.Group
	pool  sync.Pool

	mutex  sync.Mutex
	next   int
	closed bool
}

// New creates the output directory and returns a Writer for it.
func New(ctx context.Context, opts Options) (*Writer, error) {
	switch opts.PixelFormat {
	case driver.FormatR8G8B8A8Unorm, driver.FormatR8G8B8A8Srgb,
		driver.FormatB8G8R8A8Unorm, driver.FormatB8G8R8A8Srgb:
	default:
		return nil, errors.Wrapf(ErrUnsupportedPixels, "format %d", opts.PixelFormat)
	}
	if _, err := ParseFormat(string(opts.Format)); err != nil {
		return nil, err
	}
	if opts.Layers == 0 {
		opts.Layers = 1
	}
	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, log.Errf(ctx, err, "Creating %v", opts.Dir)
	}
	group, ctx := errgroup.WithContext(ctx)
	parallel := opts.Parallel
	if parallel <= 0 {
		parallel = runtime.NumCPU()
	}
	group.SetLimit(parallel)
	size := virtualswapchain.DataSize(opts.Extent, opts.Layers)
	w := &Writer{ctx: ctx, opts: opts, group: group}
	w.pool.New = func() interface{} { return make([]byte, size) }
	return w, nil
}

// Callback copies data and queues it for encoding. The data is only valid for
// the duration of the call. Callback blocks while all encoders are busy.
func (w *Writer) Callback(userData interface{}, data []byte) {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	if w.closed {
		log.W(w.ctx, "Frame delivered after close dropped")
		return
	}
	index := w.next
	w.next++

	buf := w.pool.Get().([]byte)
	n := copy(buf, data)
	w.group.Go(func() error {
		defer w.pool.Put(buf)
		return w.write(index, buf[:n])
	})
}

// Frames returns the number of frames received so far.
func (w *Writer) Frames() int {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.next
}

// Path returns the file a layer of a frame is written to.
func (w *Writer) Path(frame int, layer uint32) string {
	name := fmt.Sprintf("frame_%05d.%s", frame, w.opts.Format)
	if w.opts.Layers > 1 {
		name = fmt.Sprintf("frame_%05d_layer%d.%s", frame, layer, w.opts.Format)
	}
	return filepath.Join(w.opts.Dir, name)
}

func (w *Writer) write(frame int, data []byte) error {
	for l, plane := range virtualswapchain.Planes(data, w.opts.Extent, w.opts.Layers) {
		img := w.image(plane)
		if err := w.save(w.Path(frame, uint32(l)), img); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) save(path string, img image.Image) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return log.Errf(w.ctx, err, "Creating %v", path)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = log.Errf(w.ctx, cerr, "Closing %v", path)
		}
	}()
	if err := w.opts.Format.encode(f, img); err != nil {
		return log.Errf(w.ctx, err, "Encoding %v", path)
	}
	return nil
}

// image converts one tightly packed layer into an image.NRGBA.
func (w *Writer) image(plane []byte) *image.NRGBA {
	width, height := int(w.opts.Extent.Width), int(w.opts.Extent.Height)
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	copy(img.Pix, plane)
	switch w.opts.PixelFormat {
	case driver.FormatB8G8R8A8Unorm, driver.FormatB8G8R8A8Srgb:
		for i := 0; i+3 < len(img.Pix); i += 4 {
			img.Pix[i], img.Pix[i+2] = img.Pix[i+2], img.Pix[i]
		}
	}
	return img
}

// Close waits for every queued frame to be written and returns the first
// error encountered.
func (w *Writer) Close() error {
	w.mutex.Lock()
	if w.closed {
		w.mutex.Unlock()
		return ErrClosed
	}
	w.closed = true
	frames := w.next
	w.mutex.Unlock()
	err := w.group.Wait()
	log.I(log.V{"frames": frames, "dir": w.opts.Dir}.Bind(w.ctx), "Frame dump finished")
	return err
}
