// File: internal/mlog/log.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package mlog

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a named sugared zap logger.
type Logger struct {
	*zap.SugaredLogger
}

// New builds a logger named after the component that owns it.
func New(name string) *Logger {
	logger := zap.New(NewCore(), zap.AddCaller())
	return &Logger{logger.Sugar().Named(name)}
}

// Nop discards everything. Tests use it to keep output quiet.
func Nop() *Logger {
	return &Logger{zap.NewNop().Sugar()}
}

// FromCore wraps an explicit core, e.g. an observer in tests.
func FromCore(core zapcore.Core, name string) *Logger {
	return &Logger{zap.New(core).Sugar().Named(name)}
}

// Named derives a child logger.
func (l *Logger) Named(name string) *Logger {
	return &Logger{l.SugaredLogger.Named(name)}
}

// With attaches structured fields.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{l.SugaredLogger.With(args...)}
}
