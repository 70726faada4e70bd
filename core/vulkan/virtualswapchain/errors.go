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

	"github.com/google/gapid/core/fault"
	"github.com/google/gapid/core/log"
	"github.com/google/gapid/core/vulkan/driver"
	"github.com/pkg/errors"
)

const (
	// ErrNotAcquired is returned when presenting an image the application
	// does not currently own.
	ErrNotAcquired = fault.Const("Image is not acquired")
	// ErrInvalidIndex is returned for an image index outside the swapchain.
	ErrInvalidIndex = fault.Const("Image index out of range")
	// ErrUnknownSwapchain is returned for a swapchain handle the layer does
	// not track.
	ErrUnknownSwapchain = fault.Const("Unknown swapchain")
	// ErrUnknownSurface is returned for a surface handle the layer does not
	// track.
	ErrUnknownSurface = fault.Const("Unknown surface")
	// ErrClosed is returned by operations on a swapchain being destroyed.
	ErrClosed = fault.Const("Swapchain is closed")
	// ErrPresentUnsupported is returned when the queue family used by a
	// swapchain cannot present to the native surface.
	ErrPresentUnsupported = fault.Const("Queue family cannot present to surface")
)

// bestEffort logs a failed call that the caller does not propagate.
func bestEffort(ctx context.Context, what string, err error) {
	if err != nil {
		log.W(ctx, "%s failed: %v", what, err)
	}
}

// resultOf maps err to the Vulkan result reported for it.
func resultOf(err error) driver.Result {
	if err == nil {
		return driver.Success
	}
	if r, ok := errors.Cause(err).(driver.Result); ok {
		return r
	}
	return driver.ErrorOutOfDate
}

// teardown collects destructors for partially constructed objects.
type teardown []func()

func (t *teardown) add(f func()) { *t = append(*t, f) }

// run calls the destructors in reverse order of registration.
func (t teardown) run() {
	for i := len(t) - 1; i >= 0; i-- {
		t[i]()
	}
}
