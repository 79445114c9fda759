// Package logging provides structured logging with zap.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	globalLogger *zap.Logger
	helperLogger *zap.Logger
	globalLevel  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

// Config holds logging configuration.
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json, console
	OutputPath string // stdout, stderr, or file path
}

// Init initializes the global logger.
func Init(cfg Config) error {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var config zap.Config
	if cfg.Format == "json" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	globalLevel.SetLevel(level)
	config.Level = globalLevel
	if cfg.OutputPath != "" {
		config.OutputPaths = []string{cfg.OutputPath}
	}

	logger, err := config.Build(zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		return err
	}

	Set(logger)
	return nil
}

// Set replaces the global logger; tests use it with an observer core.
func Set(logger *zap.Logger) {
	globalLogger = logger
	// the package-level helpers report their caller, not themselves
	helperLogger = logger.WithOptions(zap.AddCallerSkip(1))
}

// Sync flushes any buffered log entries.
func Sync() error {
	if globalLogger != nil {
		return globalLogger.Sync()
	}
	return nil
}

// L returns the global logger.
func L() *zap.Logger {
	if globalLogger == nil {
		logger, _ := zap.NewDevelopment()
		Set(logger)
	}
	return globalLogger
}

func helper() *zap.Logger {
	L()
	return helperLogger
}

// Named returns a child of the global logger.
func Named(name string) *zap.Logger {
	return L().Named(name)
}

func Debug(msg string, fields ...zap.Field) {
	helper().Debug(msg, fields...)
}

func Info(msg string, fields ...zap.Field) {
	helper().Info(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	helper().Warn(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	helper().Error(msg, fields...)
}

// Fatal logs a fatal message and exits.
func Fatal(msg string, fields ...zap.Field) {
	helper().Fatal(msg, fields...)
}
