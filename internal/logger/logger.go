// Package logger builds the zap loggers used across the indexer.
package logger

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"solana-swap-indexer/internal/config"
)

const timeFormat = "[01-02|15:04:05.000]"

// New creates a sugared logger writing to the console and, when configured, a rotating file.
func New(cfg config.LoggerConfig) *zap.SugaredLogger {
	atom := zap.NewAtomicLevel()

	var cores []zapcore.Core
	if cfg.Console {
		cores = append(cores, consoleCore(os.Stdout, atom))
	}
	if cfg.File != "" {
		cores = append(cores, fileCore(cfg, atom))
	}

	logger := zap.New(
		zapcore.NewTee(cores...),
		zap.AddStacktrace(zap.ErrorLevel),
		zap.AddCaller(),
	)
	sugar := logger.Sugar()

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		sugar.Errorf("Wrong level %s, falling back to INFO", cfg.Level)
		level = zapcore.InfoLevel
	}
	atom.SetLevel(level)

	return sugar
}

// Nop returns l, or a no-op logger when l is nil.
func Nop(l *zap.SugaredLogger) *zap.SugaredLogger {
	if l == nil {
		return zap.NewNop().Sugar()
	}
	return l
}

// Sync flushes buffered entries, ignoring the EINVAL some terminals return for stdout.
func Sync(l *zap.SugaredLogger) {
	_ = l.Sync()
}

func fileCore(cfg config.LoggerConfig, atom zap.AtomicLevel) zapcore.Core {
	w := zapcore.AddSync(&lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxFileSize,
		MaxBackups: cfg.MaxBackups,
	})

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	encoderCfg.EncodeTime = zapcore.TimeEncoderOfLayout(timeFormat)

	return zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), w, atom)
}

type noSyncWriter struct {
	io.Writer
}

func (noSyncWriter) Sync() error {
	return nil
}

func consoleCore(w io.Writer, atom zap.AtomicLevel) zapcore.Core {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	encoderCfg.EncodeTime = zapcore.TimeEncoderOfLayout(timeFormat)

	return zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), noSyncWriter{w}, atom)
}
