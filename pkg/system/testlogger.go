package system

import (
	"go.uber.org/zap"
)

// NewTestLogger returns a sugared development logger without automatic
// stacktraces, for tests and the CLI's dry-run output.
func NewTestLogger() *zap.SugaredLogger {
	return NewTestZapLogger().Sugar()
}

// NewTestZapLogger is NewTestLogger without the sugar.
func NewTestZapLogger() *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.DisableStacktrace = true
	logger, _ := cfg.Build()
	return logger
}
