// File: internal/mlog/core.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// zap core construction for console and file outputs.

package mlog

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// CoreConfig describes one log sink.
type CoreConfig struct {
	OutputType  string // "console" or "file"
	OutputPath  string // "stdout"/"stderr" for console, a path for file
	Level       string // zap level name, default info
	EncodeType  string // "console" or "json"
	EncodeColor bool
}

var (
	mu          sync.RWMutex
	coreConfigs []CoreConfig
)

// SetOutputTypes replaces the sinks used by loggers created afterwards.
func SetOutputTypes(configs ...CoreConfig) {
	mu.Lock()
	defer mu.Unlock()
	coreConfigs = append(coreConfigs[:0], configs...)
}

// NewCore tees all configured sinks; with none configured it logs to stdout.
func NewCore() zapcore.Core {
	mu.RLock()
	configs := append([]CoreConfig(nil), coreConfigs...)
	mu.RUnlock()

	cores := make([]zapcore.Core, 0, len(configs))
	for _, cfg := range configs {
		var core zapcore.Core
		switch cfg.OutputType {
		case "file":
			core = FileCore(cfg)
		case "console", "":
			core = ConsoleCore(cfg)
		}
		if core != nil {
			cores = append(cores, core)
		}
	}

	if len(cores) == 0 {
		cores = append(cores, ConsoleCore(CoreConfig{EncodeColor: true}))
	}
	return zapcore.NewTee(cores...)
}

func encoderConfig(cfg CoreConfig, withCaller bool) zapcore.EncoderConfig {
	ec := zapcore.EncoderConfig{
		TimeKey:          "T",
		LevelKey:         "L",
		NameKey:          "N",
		CallerKey:        "C",
		FunctionKey:      zapcore.OmitKey,
		MessageKey:       "M",
		StacktraceKey:    "S",
		EncodeTime:       zapcore.RFC3339TimeEncoder,
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeLevel:      zapcore.CapitalLevelEncoder,
		EncodeDuration:   zapcore.StringDurationEncoder,
		EncodeCaller:     zapcore.ShortCallerEncoder,
		ConsoleSeparator: "\t",
	}
	if !withCaller {
		ec.CallerKey = ""
		ec.EncodeCaller = nil
	}
	if cfg.EncodeColor {
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	return ec
}

func newEncoder(cfg CoreConfig, ec zapcore.EncoderConfig) zapcore.Encoder {
	if cfg.EncodeType == "json" {
		return zapcore.NewJSONEncoder(ec)
	}
	return zapcore.NewConsoleEncoder(ec)
}

func level(cfg CoreConfig) zap.AtomicLevel {
	lvl, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		return zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return lvl
}

// ConsoleCore writes to stdout or stderr.
func ConsoleCore(cfg CoreConfig) zapcore.Core {
	out := "stdout"
	if strings.ToLower(cfg.OutputPath) == "stderr" {
		out = "stderr"
	}
	writer, _, err := zap.Open(out)
	if err != nil {
		return nil
	}
	return zapcore.NewCore(newEncoder(cfg, encoderConfig(cfg, true)), writer, level(cfg))
}

// FileCore appends to cfg.OutputPath, creating parent directories.
func FileCore(cfg CoreConfig) zapcore.Core {
	if cfg.OutputPath == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.OutputPath), 0o755); err != nil {
		return nil
	}
	writer, _, err := zap.Open(cfg.OutputPath)
	if err != nil {
		return nil
	}
	return zapcore.NewCore(newEncoder(cfg, encoderConfig(cfg, false)), writer, level(cfg))
}
