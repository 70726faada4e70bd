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

package task

import (
	"context"

	"github.com/google/gapid/core/app/crash"
)

// Handle is the completion signal and result of a started task.
type Handle struct {
	Signal
	err *error
}

// Result waits for the task and returns its error. If ctx is stopped first,
// Result returns the reason ctx stopped instead.
func (h Handle) Result(ctx context.Context) error {
	if !h.Wait(ctx) {
		return StopReason(ctx)
	}
	return *h.err
}

// prepare wraps t so that running it records the result and fires the
// handle. A task whose context is already stopped is not run.
func prepare(ctx context.Context, t Task) (Handle, func()) {
	var result error
	done, fire := NewSignal()
	run := func() {
		defer fire(ctx)
		if err := StopReason(ctx); err != nil {
			result = err
			return
		}
		result = t(ctx)
	}
	return Handle{done, &result}, run
}

// Direct runs t on the calling goroutine. The returned handle has fired.
func Direct(ctx context.Context, t Task) Handle {
	h, run := prepare(ctx, t)
	run()
	return h
}

// Go runs t on a new goroutine started with crash.Go.
func Go(ctx context.Context, t Task) Handle {
	h, run := prepare(ctx, t)
	crash.Go(run)
	return h
}
