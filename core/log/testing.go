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

package log

import "context"

// T matches the logging methods of testing.T and testing.B.
type T interface {
	Fatal(...interface{})
	Error(...interface{})
	Log(...interface{})
}

// Testing returns a context that logs to t. Error messages fail the test and
// fatal messages stop it, so a test only passes when the code under test
// logged nothing worse than a warning.
//
// Sub-tests call Testing again with their own t, keeping any values bound to
// the parent context:
//
//	ctx := log.Testing(t)
//	t.Run("drain", func(t *testing.T) {
//		ctx := log.PutHandler(ctx, log.TestHandler(t, log.Normal))
//		...
//	})
func Testing(t T) context.Context {
	return PutHandler(context.Background(), TestHandler(t, Normal))
}

// TestHandler is a Handler that prints messages to t in style s.
func TestHandler(t T, s Style) Handler {
	if t == nil {
		panic("log.TestHandler needs a test")
	}
	return NewHandler(func(m *Message) {
		text := s.Print(m)
		switch {
		case m.Severity >= Fatal:
			t.Fatal(text)
		case m.Severity >= Error:
			t.Error(text)
		default:
			t.Log(text)
		}
	}, nil)
}
