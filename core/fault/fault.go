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

// Package fault holds the error value types shared by the layer packages.
package fault

import (
	"fmt"
	"strings"
)

// Const is a constant error value. Consts are comparable, so they serve as
// sentinel causes tested with errors.Cause(err) == SomeConst.
type Const string

func (e Const) Error() string { return string(e) }

// List collects errors, dropping nils, so a teardown sequence can collect the
// result of every call unconditionally.
type List []error

// Collect appends err if it is not nil.
func (l *List) Collect(err error) {
	if err != nil {
		*l = append(*l, err)
	}
}

// First returns the first collected error, or nil.
func (l *List) First() error {
	if len(*l) == 0 {
		return nil
	}
	return (*l)[0]
}

// Err returns nil for an empty list, the only error for a list of one, and the
// list itself otherwise.
func (l List) Err() error {
	switch len(l) {
	case 0:
		return nil
	case 1:
		return l[0]
	}
	return l
}

func (l List) Error() string {
	parts := make([]string, len(l))
	for i, err := range l {
		parts[i] = err.Error()
	}
	return fmt.Sprintf("%d errors: %s", len(l), strings.Join(parts, "; "))
}

// One keeps only the first non-nil error it is given.
type One struct{ err error }

// Collect keeps err if no error was kept before.
func (o *One) Collect(err error) {
	if o.err == nil {
		o.err = err
	}
}

// First returns the kept error, or nil.
func (o *One) First() error { return o.err }
