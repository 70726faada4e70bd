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

// The virtualswapchain command drives the virtual swapchain layer from a
// minimal application and dumps the frames it captures.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/google/gapid/core/app/crash"
	"github.com/google/gapid/core/fault"
	"github.com/google/gapid/core/log"
	"github.com/google/gapid/core/log/zaplog"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ErrUnknownLogStyle is returned for a --log-style that names no style.
const ErrUnknownLogStyle = fault.Const("Unknown log style")

var (
	logLevel string
	logJSON  bool
	logStyle string
)

var rootCmd = &cobra.Command{
	Use:           "virtualswapchain",
	Short:         "Capture frames through the virtual swapchain layer",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger, err := newLogger(logLevel, logJSON)
		if err != nil {
			return err
		}
		crash.Register(func(e interface{}, stack []byte) {
			logger.Error("Uncaught panic", zap.Any("panic", e), zap.ByteString("stack", stack))
			logger.Sync()
		})
		handler, err := newHandler(logStyle, logger, os.Stderr)
		if err != nil {
			return err
		}
		ctx := log.PutHandler(cmd.Context(), handler)
		ctx = log.PutFilter(ctx, log.SeverityFilter(severity(logger.Level())))
		cmd.SetContext(ctx)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		log.GetHandler(cmd.Context()).Close()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "minimum level logged: debug, info, warn or error")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "log JSON lines instead of console text")
	rootCmd.PersistentFlags().StringVar(&logStyle, "log-style", "", "print plain log lines in this style (raw, brief, normal or detailed) instead of logging through zap")
	rootCmd.AddCommand(captureCmd)
}

// newLogger builds the zap logger for crash reports and, without a log style,
// for every log message.
func newLogger(level string, json bool) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewDevelopmentConfig()
	if json {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

// newHandler returns the handler every log message goes to. With no style the
// messages are forwarded to logger, otherwise they are printed to w in that
// style from a single goroutine.
func newHandler(style string, logger *zap.Logger, w io.Writer) (log.Handler, error) {
	if style == "" {
		return zaplog.Handler(logger), nil
	}
	for _, s := range []log.Style{log.Raw, log.Brief, log.Normal, log.Detailed} {
		if s.Name == style {
			return log.Channel(log.Writer(s, w), 64), nil
		}
	}
	return nil, errors.Wrapf(ErrUnknownLogStyle, "%q", style)
}

// severity returns the lowest log severity that zap level l lets through.
func severity(l zapcore.Level) log.Severity {
	switch {
	case l <= zapcore.DebugLevel:
		return log.Debug
	case l == zapcore.InfoLevel:
		return log.Info
	case l == zapcore.WarnLevel:
		return log.Warning
	default:
		return log.Error
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
