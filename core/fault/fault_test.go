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

package fault_test

import (
	"testing"

	"github.com/google/gapid/core/assert"
	"github.com/google/gapid/core/fault"
	"github.com/google/gapid/core/log"
)

const (
	errLost    = fault.Const("Surface lost")
	errTimeout = fault.Const("Fence timeout")
)

func TestConst(t *testing.T) {
	ctx := log.Testing(t)
	assert.For(ctx, "message").ThatString(errLost.Error()).Equals("Surface lost")
	var err error = errLost
	assert.For(ctx, "comparable").ThatError(err).Equals(errLost)
}

func TestList(t *testing.T) {
	ctx := log.Testing(t)
	var list fault.List
	assert.For(ctx, "empty first").ThatError(list.First()).Succeeded()
	assert.For(ctx, "empty err").ThatError(list.Err()).Succeeded()
	list.Collect(nil)
	assert.For(ctx, "nil dropped").ThatSlice(list).IsEmpty()
	list.Collect(errLost)
	assert.For(ctx, "single").ThatError(list.Err()).Equals(errLost)
	list.Collect(errTimeout)
	assert.For(ctx, "length").ThatSlice(list).IsLength(2)
	assert.For(ctx, "first").ThatError(list.First()).Equals(errLost)
	assert.For(ctx, "joined").ThatError(list.Err()).HasMessage("2 errors: Surface lost; Fence timeout")
}

func TestOne(t *testing.T) {
	ctx := log.Testing(t)
	var one fault.One
	assert.For(ctx, "empty").ThatError(one.First()).Succeeded()
	one.Collect(nil)
	one.Collect(errTimeout)
	one.Collect(errLost)
	assert.For(ctx, "first").ThatError(one.First()).Equals(errTimeout)
}
