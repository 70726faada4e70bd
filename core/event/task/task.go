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

// Package task runs work on goroutines and lets callers wait on it, stop it
// and collect its error.
package task

import (
	"context"
	"sync"
)

// Task is a function run by the task system. A Task that honours ctx
// cancellation can be stopped by the executor that started it.
type Task func(context.Context) error

// Once returns a Task that runs t on its first call only. Later calls block
// until the first has finished and then return the same error.
func Once(t Task) Task {
	var (
		once sync.Once
		err  error
	)
	return func(ctx context.Context) error {
		once.Do(func() { err = t(ctx) })
		return err
	}
}
