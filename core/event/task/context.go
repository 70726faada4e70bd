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

import "context"

// ShouldStop returns the channel closed when ctx is cancelled or times out.
func ShouldStop(ctx context.Context) <-chan struct{} { return ctx.Done() }

// StopReason returns why ctx was stopped, or nil if it is still running.
func StopReason(ctx context.Context) error { return ctx.Err() }

// Stopped reports whether ctx has been cancelled or has timed out.
func Stopped(ctx context.Context) bool { return StopReason(ctx) != nil }
