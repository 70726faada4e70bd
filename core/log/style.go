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

import (
	"fmt"
	"strings"
)

// Style controls which parts of a Message are printed, and how.
type Style struct {
	Name      string
	Timestamp bool
	Tag       bool
	Trace     bool
	Severity  SeverityStyle
	Values    ValueStyle
}

// SeverityStyle selects how a message severity is printed.
type SeverityStyle int

const (
	NoSeverity    SeverityStyle = iota
	SeverityShort               // "W:"
	SeverityLong                // "Warning:"
)

// ValueStyle selects how the values bound to a message are printed.
type ValueStyle int

const (
	NoValues         ValueStyle = iota
	ValuesSingleLine            // text (a: 1, b: 2)
	ValuesMultiLine             // one indented "name: value" line each
)

// The predefined styles, from least to most verbose.
var (
	Raw   = Style{Name: "raw"}
	Brief = Style{Name: "brief", Severity: SeverityShort}

	Normal = Style{
		Name:      "normal",
		Timestamp: true,
		Tag:       true,
		Trace:     true,
		Severity:  SeverityShort,
		Values:    ValuesSingleLine,
	}

	Detailed = Style{
		Name:      "detailed",
		Timestamp: true,
		Tag:       true,
		Trace:     true,
		Severity:  SeverityLong,
		Values:    ValuesMultiLine,
	}
)

func (s Style) String() string { return s.Name }

// Print formats msg as
//
//	HH:MM:SS.sss S: [trace] [tag] text (values)
//
// omitting every part s does not ask for.
func (s Style) Print(msg *Message) string {
	b := &strings.Builder{}
	sep := func() {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
	}
	if s.Timestamp && !msg.Time.IsZero() {
		b.WriteString(msg.Time.Format("15:04:05.000"))
	}
	switch s.Severity {
	case SeverityShort:
		sep()
		b.WriteString(msg.Severity.Short() + ":")
	case SeverityLong:
		sep()
		b.WriteString(msg.Severity.String() + ":")
	}
	if s.Trace && len(msg.Trace) > 0 {
		sep()
		fmt.Fprint(b, msg.Trace)
	}
	if s.Tag && msg.Tag != "" {
		sep()
		fmt.Fprintf(b, "[%s]", msg.Tag)
	}
	sep()
	b.WriteString(msg.Text)
	if len(msg.Values) == 0 {
		return b.String()
	}
	switch s.Values {
	case ValuesSingleLine:
		b.WriteString(" (")
		for i, v := range msg.Values {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(b, "%v: %v", v.Name, v.Value)
		}
		b.WriteString(")")
	case ValuesMultiLine:
		for _, v := range msg.Values {
			fmt.Fprintf(b, "\n  %v: %v", v.Name, v.Value)
		}
	}
	return b.String()
}
