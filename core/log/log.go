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

// Package log provides a context-carried logging system.
//
// Handlers, filters, tags, traces and values are all stored on the
// context.Context, so a function logs with whatever was configured by its
// callers:
//
//	ctx = log.V{"swapchain": handle}.Bind(ctx)
//	log.I(ctx, "Created %d images", count)
package log

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// Logger is a snapshot of the logging state carried by a context.
type Logger struct {
	handler Handler
	filter  Filter
	clock   Clock
	tag     string
	trace   []string
	values  *values
}

// From captures the handler, filter, clock, tag, trace and values of ctx.
func From(ctx context.Context) *Logger {
	return &Logger{
		handler: GetHandler(ctx),
		filter:  GetFilter(ctx),
		clock:   GetClock(ctx),
		tag:     GetTag(ctx),
		trace:   GetTrace(ctx),
		values:  getValues(ctx),
	}
}

// D, I, W and E log a printf-style message at Debug, Info, Warning and Error
// severity using the logger bound to ctx.
func D(ctx context.Context, format string, args ...interface{}) { From(ctx).D(format, args...) }
func I(ctx context.Context, format string, args ...interface{}) { From(ctx).I(format, args...) }
func W(ctx context.Context, format string, args ...interface{}) { From(ctx).W(format, args...) }
func E(ctx context.Context, format string, args ...interface{}) { From(ctx).E(format, args...) }

// F logs at Fatal severity. stopProcess marks the message as one the handler
// should terminate on.
func F(ctx context.Context, stopProcess bool, format string, args ...interface{}) {
	From(ctx).F(format, stopProcess, args...)
}

func (l *Logger) D(format string, args ...interface{}) { l.Logf(Debug, false, format, args...) }
func (l *Logger) I(format string, args ...interface{}) { l.Logf(Info, false, format, args...) }
func (l *Logger) W(format string, args ...interface{}) { l.Logf(Warning, false, format, args...) }
func (l *Logger) E(format string, args ...interface{}) { l.Logf(Error, false, format, args...) }

// F is the Logger form of the package level F.
func (l *Logger) F(format string, stopProcess bool, args ...interface{}) {
	l.Logf(Fatal, stopProcess, format, args...)
}

// Logf logs a printf-style message at severity s to the logging target.
func (l *Logger) Logf(s Severity, stopProcess bool, fmt string, args ...interface{}) {
	if !l.shows(s) {
		return
	}
	l.handler.Handle(l.Messagef(s, stopProcess, fmt, args...))
}

// Log logs a message at severity s to the logging target.
func (l *Logger) Log(s Severity, stopProcess bool, text string) {
	if !l.shows(s) {
		return
	}
	l.handler.Handle(l.Message(s, stopProcess, text))
}

func (l *Logger) shows(s Severity) bool {
	if l.handler == nil {
		return false
	}
	return l.filter == nil || l.filter.ShowSeverity(s)
}

// Messagef builds, but does not handle, a formatted Message.
func (l *Logger) Messagef(s Severity, stopProcess bool, text string, args ...interface{}) *Message {
	return l.Message(s, stopProcess, fmt.Sprintf(text, args...))
}

// Message builds, but does not handle, a Message stamped with the logger's
// clock, tag, trace and values. Values are sorted by name.
func (l *Logger) Message(s Severity, stopProcess bool, text string) *Message {
	t := time.Now()
	if l.clock != nil {
		t = l.clock.Time()
	}

	m := &Message{
		Text:        text,
		Time:        t,
		Severity:    s,
		StopProcess: stopProcess,
		Tag:         l.tag,
		Trace:       l.trace,
	}

	seen := map[string]bool{}
	for n := l.values; n != nil; n = n.parent {
		for name, value := range n.v {
			if seen[name] {
				continue // shadowed by a binding closer to the leaf
			}
			seen[name] = true
			m.Values = append(m.Values, &Value{Name: name, Value: value})
		}
	}

	sort.Sort(m.Values)

	return m
}
