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

// Package zaplog provides a log.Handler that forwards messages to a zap
// logger, for hosting the layer in processes that already log through zap.
package zaplog

import (
	"strings"

	"github.com/google/gapid/core/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Handler returns a log.Handler that writes every message to l.
// Message values become zap fields, the tag becomes the logger name and the
// trace is attached as a "trace" field. Close syncs l.
func Handler(l *zap.Logger) log.Handler {
	return log.NewHandler(
		func(m *log.Message) {
			logger := l
			if m.Tag != "" {
				logger = logger.Named(m.Tag)
			}
			if ce := logger.Check(Level(m.Severity), m.Text); ce != nil {
				ce.Time = m.Time
				ce.Write(Fields(m)...)
			}
		},
		func() { l.Sync() },
	)
}

// Level maps a log severity to the zap level with the same meaning.
// Fatal maps to zap's error level: stopping the process is left to the
// caller, never to the logging backend.
func Level(s log.Severity) zapcore.Level {
	switch s {
	case log.Verbose, log.Debug:
		return zapcore.DebugLevel
	case log.Info:
		return zapcore.InfoLevel
	case log.Warning:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}

// Fields returns the zap fields for the values and trace of m.
func Fields(m *log.Message) []zap.Field {
	fields := make([]zap.Field, 0, len(m.Values)+2)
	for _, v := range m.Values {
		fields = append(fields, zap.Any(v.Name, v.Value))
	}
	if len(m.Trace) > 0 {
		fields = append(fields, zap.String("trace", strings.Join(m.Trace, "/")))
	}
	if m.StopProcess {
		fields = append(fields, zap.Bool("stop", true))
	}
	return fields
}
