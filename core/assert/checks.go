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

package assert

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// OnValue is the result of calling That on an Assertion.
type OnValue struct {
	*Assertion
	value interface{}
}

// That starts an assertion on an arbitrary value.
func (a *Assertion) That(value interface{}) OnValue { return OnValue{a, value} }

// Equals asserts that the value compares equal to expect with ==.
func (o OnValue) Equals(expect interface{}) bool {
	return o.check(o.value == expect, o.value, "==", expect)
}

// NotEquals asserts that the value does not compare equal to test with ==.
func (o OnValue) NotEquals(test interface{}) bool {
	return o.check(o.value != test, o.value, "!=", test)
}

// DeepEquals asserts that the value matches expect using reflect.DeepEqual.
func (o OnValue) DeepEquals(expect interface{}) bool {
	return o.check(reflect.DeepEqual(o.value, expect), o.value, "deep ==", expect)
}

// IsNil asserts that the value is nil, including typed nils.
func (o OnValue) IsNil() bool {
	return o.check(isNil(o.value), o.value, "==", raw("nil"))
}

// IsNotNil asserts that the value is not nil.
func (o OnValue) IsNotNil() bool {
	return o.check(!isNil(o.value), o.value, "!=", raw("nil"))
}

func isNil(v interface{}) bool {
	if v == nil {
		return true
	}
	switch r := reflect.ValueOf(v); r.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Ptr, reflect.Slice:
		return r.IsNil()
	}
	return false
}

// OnError is the result of calling ThatError on an Assertion.
type OnError struct {
	*Assertion
	err error
}

// ThatError starts an assertion on an error.
func (a *Assertion) ThatError(err error) OnError { return OnError{a, err} }

// Succeeded asserts that the error is nil.
func (o OnError) Succeeded() bool {
	return o.check(o.err == nil, o.err, "==", raw("success"))
}

// Failed asserts that the error is not nil.
func (o OnError) Failed() bool {
	return o.check(o.err != nil, raw("success"), "==", raw("failure"))
}

// Equals asserts that the error is expect.
func (o OnError) Equals(expect error) bool {
	return o.check(o.err == expect, o.err, "==", expect)
}

// HasCause asserts that errors.Cause of the error is expect.
func (o OnError) HasCause(expect error) bool {
	cause := errors.Cause(o.err)
	if cause != expect {
		o.row("Cause", cause)
	}
	return o.check(cause == expect, o.err, "cause ==", expect)
}

// HasMessage asserts that the error text is expect.
func (o OnError) HasMessage(expect string) bool {
	got := fmt.Sprint(o.err)
	return o.check(o.err != nil && got == expect, got, "has message", expect)
}

// OnInteger is the result of calling ThatInteger on an Assertion.
type OnInteger struct {
	*Assertion
	value int
}

// ThatInteger starts an assertion on an int.
func (a *Assertion) ThatInteger(value int) OnInteger { return OnInteger{a, value} }

// Equals asserts that the integer is expect.
func (o OnInteger) Equals(expect int) bool {
	return o.check(o.value == expect, o.value, "==", expect)
}

// OnBoolean is the result of calling ThatBoolean on an Assertion.
type OnBoolean struct {
	*Assertion
	value bool
}

// ThatBoolean starts an assertion on a bool.
func (a *Assertion) ThatBoolean(value bool) OnBoolean { return OnBoolean{a, value} }

// IsTrue asserts that the value is true.
func (o OnBoolean) IsTrue() bool { return o.check(o.value, o.value, "==", true) }

// IsFalse asserts that the value is false.
func (o OnBoolean) IsFalse() bool { return o.check(!o.value, o.value, "==", false) }

// OnString is the result of calling ThatString on an Assertion.
type OnString struct {
	*Assertion
	value string
}

// ThatString starts an assertion on the string form of value.
func (a *Assertion) ThatString(value interface{}) OnString {
	switch v := value.(type) {
	case string:
		return OnString{a, v}
	case []byte:
		return OnString{a, string(v)}
	}
	return OnString{a, fmt.Sprint(value)}
}

// Equals asserts that the string is expect.
func (o OnString) Equals(expect string) bool {
	return o.check(o.value == expect, o.value, "==", expect)
}

// Contains asserts that the string contains substr.
func (o OnString) Contains(substr string) bool {
	return o.check(strings.Contains(o.value, substr), o.value, "contains", substr)
}

// OnDuration is the result of calling ThatDuration on an Assertion.
type OnDuration struct {
	*Assertion
	value time.Duration
}

// ThatDuration starts an assertion on a duration.
func (a *Assertion) ThatDuration(value time.Duration) OnDuration { return OnDuration{a, value} }

// IsAtMost asserts that the duration does not exceed max.
func (o OnDuration) IsAtMost(max time.Duration) bool {
	return o.check(o.value <= max, o.value, "<=", max)
}

// IsAtLeast asserts that the duration is at least min.
func (o OnDuration) IsAtLeast(min time.Duration) bool {
	return o.check(o.value >= min, o.value, ">=", min)
}

// OnSlice is the result of calling ThatSlice on an Assertion.
type OnSlice struct {
	*Assertion
	slice reflect.Value
}

// ThatSlice starts an assertion on a slice or array.
func (a *Assertion) ThatSlice(slice interface{}) OnSlice {
	v := reflect.ValueOf(slice)
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
	default:
		a.check(false, slice, "is", raw("a slice"))
		v = reflect.ValueOf([]interface{}{})
	}
	return OnSlice{a, v}
}

// IsEmpty asserts that the slice has no elements.
func (o OnSlice) IsEmpty() bool {
	return o.check(o.slice.Len() == 0, o.slice.Len(), "length ==", 0)
}

// IsLength asserts that the slice has length elements.
func (o OnSlice) IsLength(length int) bool {
	return o.check(o.slice.Len() == length, o.slice.Len(), "length ==", length)
}

// Equals asserts that the slice has the same length as expect and that every
// element is deeply equal to the corresponding element of expect. A failure
// reports the first mismatch only, so large buffers stay readable.
func (o OnSlice) Equals(expect interface{}) bool {
	e := reflect.ValueOf(expect)
	if e.Kind() != reflect.Slice && e.Kind() != reflect.Array {
		return o.check(false, o.slice.Interface(), "elements ==", expect)
	}
	if o.slice.Len() != e.Len() {
		return o.check(false, o.slice.Len(), "length ==", e.Len())
	}
	for i := 0; i < e.Len(); i++ {
		got, want := o.slice.Index(i).Interface(), e.Index(i).Interface()
		if !reflect.DeepEqual(got, want) {
			o.row("Index", i)
			return o.check(false, got, "==", want)
		}
	}
	return true
}
