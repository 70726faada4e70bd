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
	"context"
	"fmt"
)

// logErr is an error carrying the message and bound values of the logger
// that created it.
type logErr struct {
	cause error
	msg   *Message
}

func (e *logErr) Cause() error  { return e.cause }
func (e *logErr) Unwrap() error { return e.cause }

func (e *logErr) Error() string {
	text := e.msg.Text
	if len(e.msg.Values) > 0 {
		text = Style{Values: ValuesSingleLine}.Print(e.msg)
	}
	if e.cause == nil {
		return text
	}
	return fmt.Sprintf("%v\n   Cause: %v", text, e.cause)
}

// Err returns an error wrapping cause, described by msg and the values bound
// to l. cause may be nil.
func (l *Logger) Err(cause error, msg string) error {
	return &logErr{cause, l.Message(Error, false, msg)}
}

// Errf is Err with a formatted message.
func (l *Logger) Errf(cause error, format string, args ...interface{}) error {
	return &logErr{cause, l.Messagef(Error, false, format, args...)}
}

// Err is From(ctx).Err(cause, msg).
func Err(ctx context.Context, cause error, msg string) error {
	return From(ctx).Err(cause, msg)
}

// Errf is From(ctx).Errf(cause, format, args...).
func Errf(ctx context.Context, cause error, format string, args ...interface{}) error {
	return From(ctx).Errf(cause, format, args...)
}
