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

package crash_test

import (
	"strings"
	"testing"

	"github.com/google/gapid/core/app/crash"
	"github.com/google/gapid/core/assert"
	"github.com/google/gapid/core/log"
)

func TestCrashReportsOnce(t *testing.T) {
	ctx := log.Testing(t)
	var got []interface{}
	var stack string
	unregister := crash.Register(func(e interface{}, s []byte) {
		got = append(got, e)
		stack = string(s)
	})
	defer unregister()
	removed := 0
	crash.Register(func(interface{}, []byte) { removed++ })()

	raise := func(v string) (recovered interface{}) {
		defer func() { recovered = recover() }()
		crash.Crash(v)
		return nil
	}
	assert.For(ctx, "first").That(raise("copy-back worker")).Equals("copy-back worker")
	assert.For(ctx, "second").That(raise("again")).Equals("again")
	assert.For(ctx, "reported").ThatSlice(got).Equals([]interface{}{"copy-back worker"})
	assert.For(ctx, "stack").ThatBoolean(strings.Contains(stack, "crash_test")).IsTrue()
	assert.For(ctx, "unregistered").ThatInteger(removed).Equals(0)
}
