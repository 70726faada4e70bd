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

package task_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/gapid/core/assert"
	"github.com/google/gapid/core/event/task"
	"github.com/google/gapid/core/log"
)

func TestDirect(t *testing.T) {
	ctx := log.Testing(t)
	ran := false
	h := task.Direct(ctx, func(context.Context) error { ran = true; return nil })
	assert.For(ctx, "fired").That(h.Fired()).Equals(true)
	assert.For(ctx, "ran").That(ran).Equals(true)
	assert.For(ctx, "result").ThatError(h.Result(ctx)).Succeeded()

	child, cancel := context.WithCancel(ctx)
	cancel()
	h = task.Direct(child, func(context.Context) error { panic("should not run") })
	assert.For(ctx, "cancelled").ThatError(h.Result(ctx)).Equals(context.Canceled)
}

func TestGo(t *testing.T) {
	ctx := log.Testing(t)
	failure := errors.New("failure")
	gate, open := task.NewSignal()
	h := task.Go(ctx, func(ctx context.Context) error {
		gate.Wait(ctx)
		return failure
	})
	assert.For(ctx, "blocked").That(h.TryWait(ctx, ExpectBlocking)).Equals(false)
	open(ctx)
	assert.For(ctx, "result").ThatError(h.Result(ctx)).Equals(failure)
}

func TestOnce(t *testing.T) {
	ctx := log.Testing(t)
	count := 0
	once := task.Once(func(context.Context) error { count++; return nil })
	for i := 0; i < 3; i++ {
		once(ctx)
	}
	assert.For(ctx, "count").ThatInteger(count).Equals(1)
}
