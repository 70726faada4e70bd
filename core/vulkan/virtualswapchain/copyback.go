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
	"context"
	"time"

	"github.com/google/gapid/core/log"
	"github.com/google/gapid/core/vulkan/driver"
	"github.com/pkg/errors"
)

// copyBack delivers presented frames in present order until the swapchain is
// closed and nothing is left pending.
func (s *Swapchain) copyBack(ctx context.Context) error {
	ctx = log.Enter(ctx, "copyBack")
	for {
		index, ok, done := s.pool.next()
		if done {
			return nil
		}
		if !ok {
			s.pool.idle(s.cfg.PendingTimeout)
			continue
		}
		s.complete(ctx, index)
	}
}

// complete waits for the copy of a pending image and hands its pixels to the
// callback before freeing the image.
func (s *Swapchain) complete(ctx context.Context, index uint32) {
	defer s.pool.recycle(index)
	sl, d := s.slots[index], s.device
	fences := []driver.Fence{sl.fence}
	if err := s.waitCopy(fences); err != nil {
		if errors.Cause(err) == driver.Timeout {
			log.W(ctx, "Image %d was not copied within %v, dropping the frame", index, s.cfg.DrainTimeout)
			sl.abandoned = true
			return
		}
		log.E(ctx, "Waiting for the copy of image %d: %v", index, err)
		return
	}
	bestEffort(ctx, "Resetting copy fence", d.fns.ResetFences(d.handle, fences))
	s.deliver(ctx, sl)
}

// waitCopy waits for the copy fence. With a drain timeout the wait is split
// into steps so that a close is noticed, and gives up DrainTimeout after it.
func (s *Swapchain) waitCopy(fences []driver.Fence) error {
	d := s.device
	if s.cfg.DrainTimeout <= 0 {
		return d.fns.WaitForFences(d.handle, fences, true, driver.MaxTimeout)
	}
	var deadline time.Time
	for {
		step := s.cfg.PendingTimeout
		if deadline.IsZero() && s.pool.isClosing() {
			deadline = time.Now().Add(s.cfg.DrainTimeout)
		}
		if !deadline.IsZero() {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return driver.Timeout
			}
			if remaining < step {
				step = remaining
			}
		}
		err := d.fns.WaitForFences(d.handle, fences, true, uint64(step))
		if errors.Cause(err) != driver.Timeout {
			return err
		}
	}
}

func (s *Swapchain) deliver(ctx context.Context, sl *slot) {
	d := s.device
	data, err := d.fns.MapMemory(d.handle, sl.stagingMemory, 0, driver.WholeSize)
	if err != nil {
		log.W(ctx, "Mapping the frame of image %d: %v", sl.index, err)
		return
	}
	defer d.fns.UnmapMemory(d.handle, sl.stagingMemory)
	if err := d.fns.InvalidateMappedMemoryRanges(d.handle, sl.stagingMemory, 0, driver.WholeSize); err != nil {
		log.W(ctx, "Invalidating the frame of image %d: %v", sl.index, err)
		return
	}
	if cb, userData := s.getCallback(); cb != nil {
		cb(userData, data[:s.dataSize])
	}
}
