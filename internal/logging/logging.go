// Copyright (c) 2019 Andy Pan
// Copyright (c) 2018 Joshua J Baker
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Package logging wires the endpoint's structured logging, following the
// teacher's internal/logging package: zap for structured output, lumberjack
// for optional on-disk rotation when a log file path is configured.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the logger returned by New.
type Options struct {
	// LogPath, when non-empty, directs output to a lumberjack-rotated file
	// instead of stderr.
	LogPath    string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool

	// Development enables human-friendly console encoding and debug level.
	Development bool
}

// New builds a *zap.Logger per Options. A zero-value Options yields a
// production logger writing to stderr.
func New(opts Options) *zap.Logger {
	encCfg := zap.NewProductionEncoderConfig()
	level := zapcore.InfoLevel
	var enc zapcore.Encoder
	if opts.Development {
		encCfg = zap.NewDevelopmentEncoderConfig()
		level = zapcore.DebugLevel
		enc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		enc = zapcore.NewJSONEncoder(encCfg)
	}

	var ws zapcore.WriteSyncer
	if opts.LogPath != "" {
		ws = zapcore.AddSync(&lumberjack.Logger{
			Filename:   opts.LogPath,
			MaxSize:    defaultInt(opts.MaxSizeMB, 100),
			MaxBackups: defaultInt(opts.MaxBackups, 3),
			MaxAge:     defaultInt(opts.MaxAgeDays, 28),
			Compress:   opts.Compress,
		})
	} else {
		stderr, _, _ := zap.Open("stderr")
		ws = stderr
	}

	core := zapcore.NewCore(enc, ws, level)
	return zap.New(core, zap.AddCaller())
}

func defaultInt(v, d int) int {
	if v <= 0 {
		return d
	}
	return v
}

// Nop returns a no-op logger, the library-mode default so an embedder that
// never configures logging pays nothing for it.
func Nop() *zap.Logger { return zap.NewNop() }
