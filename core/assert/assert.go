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

// Package assert provides fluent test assertions that report through a test
// host or a logging context.
//
//	assert.For(ctx, "frames").ThatSlice(got).IsLength(3)
package assert

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/google/gapid/core/log"
)

// Output matches the logging methods of testing.T.
type Output interface {
	Fatal(...interface{})
	Error(...interface{})
	Log(...interface{})
}

// Manager creates assertions that report to one output.
type Manager struct {
	out Output
}

// To returns a Manager for t, which may be nil (stdout), a context carrying a
// log handler such as log.Testing, or an Output.
func To(t interface{}) Manager {
	switch t := t.(type) {
	case nil:
		return Manager{stdout{}}
	case context.Context:
		return Manager{logOutput{t}}
	case Output:
		return Manager{t}
	}
	panic(fmt.Errorf("Unsupported assertion target type %T", t))
}

// For starts an assertion named by msg on t.
func For(t interface{}, msg string, args ...interface{}) *Assertion {
	return To(t).For(msg, args...)
}

// For starts an assertion named by msg.
func (m Manager) For(msg string, args ...interface{}) *Assertion {
	return &Assertion{to: m.out, name: fmt.Sprintf(msg, args...)}
}

// Assertion accumulates the description of one check. Nothing is reported
// unless the check fails.
type Assertion struct {
	to    Output
	name  string
	fatal bool
	rows  []string
}

// Critical makes a failure of this assertion stop the test.
func (a *Assertion) Critical() *Assertion {
	a.fatal = true
	return a
}

// Fatal reports the assertion with args as a fatal failure.
func (a *Assertion) Fatal(args ...interface{}) {
	a.fatal = true
	a.row("", fmt.Sprint(args...))
	a.report()
}

func (a *Assertion) row(key string, values ...interface{}) *Assertion {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = pretty(v)
	}
	a.rows = append(a.rows, key+"\t"+strings.Join(parts, "\t"))
	return a
}

// check reports got against expect when ok is false.
func (a *Assertion) check(ok bool, got interface{}, op string, expect ...interface{}) bool {
	if ok {
		return true
	}
	a.row("Got", got)
	a.row("Expect", append([]interface{}{raw(op)}, expect...)...)
	a.report()
	return false
}

func (a *Assertion) report() {
	buf := &bytes.Buffer{}
	tabs := tabwriter.NewWriter(buf, 1, 4, 1, ' ', 0)
	for _, r := range a.rows {
		fmt.Fprintf(tabs, "\n    %s", r)
	}
	tabs.Flush()
	if a.fatal {
		a.to.Fatal("Critical:" + a.name + strings.TrimRight(buf.String(), " \n"))
		return
	}
	a.to.Error("Error:" + a.name + strings.TrimRight(buf.String(), " \n"))
}

// raw values are printed without quoting.
type raw string

func pretty(v interface{}) string {
	switch v := v.(type) {
	case raw:
		return string(v)
	case string:
		return "`" + v + "`"
	case error:
		return "`" + v.Error() + "`"
	}
	return fmt.Sprint(v)
}

type logOutput struct{ ctx context.Context }

func (o logOutput) Fatal(args ...interface{}) { log.F(o.ctx, true, "%v", fmt.Sprint(args...)) }
func (o logOutput) Error(args ...interface{}) { log.E(o.ctx, "%v", fmt.Sprint(args...)) }
func (o logOutput) Log(args ...interface{})   { log.I(o.ctx, "%v", fmt.Sprint(args...)) }

type stdout struct{}

func (stdout) Fatal(args ...interface{}) {
	fmt.Fprintln(os.Stdout, args...)
	panic("Fatal assertion without a test context")
}
func (stdout) Error(args ...interface{}) { fmt.Fprintln(os.Stdout, args...) }
func (stdout) Log(args ...interface{})   { fmt.Fprintln(os.Stdout, args...) }
