// Copyright 2020 Anapaya Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package log is a thin wrapper around zap. Log calls take a message and a
// list of alternating keys and values:
//
//	log.Info("Issued certificate", "child", handle, "serial", serial)
package log

import (
	"fmt"
	"os"
	"runtime/debug"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/openrpki/rpkid/pkg/private/serrors"
)

// Level of a log entry.
type Level zapcore.Level

// Supported levels.
const (
	DebugLevel = Level(zapcore.DebugLevel)
	InfoLevel  = Level(zapcore.InfoLevel)
	ErrorLevel = Level(zapcore.ErrorLevel)
)

// Logger describes the logger interface.
type Logger interface {
	New(ctx ...any) Logger
	Debug(msg string, ctx ...any)
	Info(msg string, ctx ...any)
	Error(msg string, ctx ...any)
	Enabled(lvl Level) bool
}

var (
	mu        sync.RWMutex
	zapLogger = zap.NewNop()
	level     = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

// Setup configures the root logger. It must be called before any other
// goroutine logs.
func Setup(cfg Config, opts ...Option) error {
	cfg.InitDefaults()
	o := applyOptions(opts)
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(cfg.Console.Level)); err != nil {
		return serrors.Wrap("parsing console level", err, "level", cfg.Console.Level)
	}
	// zap has no "off" level, nothing is ever logged above fatal.
	stackLvl := zapcore.InvalidLevel
	if cfg.Console.StacktraceLevel != DefaultStacktraceLevel {
		if err := stackLvl.UnmarshalText([]byte(cfg.Console.StacktraceLevel)); err != nil {
			return serrors.Wrap("parsing stacktrace level", err,
				"level", cfg.Console.StacktraceLevel)
		}
	}
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var enc zapcore.Encoder
	switch strings.ToLower(cfg.Console.Format) {
	case "json":
		enc = zapcore.NewJSONEncoder(encCfg)
	case "human", "":
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	default:
		return serrors.New("unknown console format", "format", cfg.Console.Format)
	}
	atomic := zap.NewAtomicLevelAt(lvl)
	core := zapcore.NewCore(enc, zapcore.Lock(os.Stderr), atomic)
	zapOpts := append([]zap.Option{
		zap.AddCaller(),
		zap.AddCallerSkip(1),
		zap.AddStacktrace(stackLvl),
	}, o.zapOptions()...)

	mu.Lock()
	defer mu.Unlock()
	zapLogger = zap.New(core, zapOpts...)
	level = atomic
	zap.ReplaceGlobals(zapLogger)
	return nil
}

// ConsoleLevel returns the dynamic level of the console logger. It can be
// used to change the level at runtime.
func ConsoleLevel() zap.AtomicLevel {
	mu.RLock()
	defer mu.RUnlock()
	return level
}

// Flush writes buffered log entries.
func Flush() {
	mu.RLock()
	defer mu.RUnlock()
	_ = zapLogger.Sync()
}

// Discard sets the root logger to discard everything.
func Discard() {
	mu.Lock()
	defer mu.Unlock()
	zapLogger = zap.NewNop()
}

// HandlePanic catches a panic, logs it with the stack trace and re-panics.
// It must be deferred at the top of every goroutine.
func HandlePanic() {
	if msg := recover(); msg != nil {
		Root().Error("Panic", "msg", msg, "stack", string(debug.Stack()))
		Flush()
		panic(msg)
	}
}

// Root returns the root logger.
func Root() Logger {
	mu.RLock()
	defer mu.RUnlock()
	return &logger{logger: zapLogger}
}

// New creates a logger with the given context.
func New(ctx ...any) Logger {
	return Root().New(ctx...)
}

// Debug logs at debug level.
func Debug(msg string, ctx ...any) {
	root().Debug(msg, convertCtx(ctx)...)
}

// Info logs at info level.
func Info(msg string, ctx ...any) {
	root().Info(msg, convertCtx(ctx)...)
}

// Error logs at error level.
func Error(msg string, ctx ...any) {
	root().Error(msg, convertCtx(ctx)...)
}

func root() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return zapLogger
}

type logger struct {
	logger *zap.Logger
}

// WrapZap wraps an existing zap logger. The caller skip is not adjusted.
func WrapZap(l *zap.Logger) Logger {
	return &logger{logger: l}
}

func (l *logger) New(ctx ...any) Logger {
	return &logger{logger: l.logger.With(convertCtx(ctx)...)}
}

func (l *logger) Debug(msg string, ctx ...any) {
	l.logger.Debug(msg, convertCtx(ctx)...)
}

func (l *logger) Info(msg string, ctx ...any) {
	l.logger.Info(msg, convertCtx(ctx)...)
}

func (l *logger) Error(msg string, ctx ...any) {
	l.logger.Error(msg, convertCtx(ctx)...)
}

func (l *logger) Enabled(lvl Level) bool {
	return l.logger.Core().Enabled(zapcore.Level(lvl))
}

func (l *logger) WithOptions(opts ...zap.Option) Logger {
	return &logger{logger: l.logger.WithOptions(opts...)}
}

func convertCtx(ctx []any) []zap.Field {
	fields := make([]zap.Field, 0, len(ctx)/2)
	for i := 0; i+1 < len(ctx); i += 2 {
		key, ok := ctx[i].(string)
		if !ok {
			key = fmt.Sprint(ctx[i])
		}
		if err, ok := ctx[i+1].(error); ok {
			if m, ok := err.(zapcore.ObjectMarshaler); ok {
				fields = append(fields, zap.Object(key, m))
				continue
			}
			fields = append(fields, zap.String(key, err.Error()))
			continue
		}
		fields = append(fields, zap.Any(key, ctx[i+1]))
	}
	return fields
}
