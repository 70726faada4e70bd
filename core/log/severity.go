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

// Severity defines the severity of a logging message.
type Severity int32

const (
	// Verbose is for tracing individual frames and slots.
	Verbose Severity = iota
	// Debug is for object lifetimes and state transitions.
	Debug
	// Info is for events a user of the layer may want to see.
	Info
	// Warning is for failures the layer recovers from, such as a failed
	// best-effort call or a lost native surface.
	Warning
	// Error is for failures returned to the caller.
	Error
	// Fatal is for failures the process cannot continue after.
	Fatal
)

var severityNames = [...]struct{ short, long string }{
	Verbose: {"V", "Verbose"},
	Debug:   {"D", "Debug"},
	Info:    {"I", "Info"},
	Warning: {"W", "Warning"},
	Error:   {"E", "Error"},
	Fatal:   {"F", "Fatal"},
}

// Short returns the single character symbol for the Severity.
func (s Severity) Short() string {
	if s < 0 || int(s) >= len(severityNames) {
		return "?"
	}
	return severityNames[s].short
}

func (s Severity) String() string {
	if s < 0 || int(s) >= len(severityNames) {
		return "Unknown"
	}
	return severityNames[s].long
}

// Filter decides which messages reach the handler.
type Filter interface {
	// ShowSeverity returns true if messages of severity s should be handled.
	ShowSeverity(s Severity) bool
}

// SeverityFilter shows messages at or above its own severity.
type SeverityFilter Severity

func (f SeverityFilter) ShowSeverity(s Severity) bool { return Severity(f) <= s }

type filterKeyTy string

const filterKey filterKeyTy = "log.filterKey"

// PutFilter returns a new context with the Filter assigned to f.
func PutFilter(ctx context.Context, f Filter) context.Context {
	return context.WithValue(ctx, filterKey, f)
}

// GetFilter returns the Filter assigned to ctx, or nil to show everything.
func GetFilter(ctx context.Context) Filter {
	f, _ := ctx.Value(filterKey).(Filter)
	return f
}
