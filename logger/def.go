package logger

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logMu sync.RWMutex
	log   *zap.Logger
	sugar *zap.SugaredLogger
)

const (
	ModeProduction  = "production"
	ModeDevelopment = "development"
)

// Init builds the logger for mode and installs it as the zap global.
func Init(mode string) error {
	switch mode {
	case "", ModeProduction:
		return InitProduction()
	case ModeDevelopment:
		return InitDevelopment()
	}
	return fmt.Errorf("unknown log mode %q", mode)
}

func InitProduction() error {
	return build(zap.NewProductionConfig())
}

// InitDevelopment logs human-readable lines at debug level.
func InitDevelopment() error {
	return build(zap.NewDevelopmentConfig())
}

func build(cfg zap.Config) error {
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	l, err := cfg.Build()
	if err != nil {
		return err
	}
	setLogger(l)
	return nil
}

// setLogger swaps the package logger and zap's globals, flushing the old one.
func setLogger(l *zap.Logger) {
	logMu.Lock()
	defer logMu.Unlock()
	zap.ReplaceGlobals(l)
	if log != nil {
		_ = log.Sync()
	}
	log = l
	sugar = l.Sugar()
}

// Log never returns nil; before Init it falls back to zap's global (a no-op).
func Log() *zap.Logger {
	logMu.RLock()
	defer logMu.RUnlock()
	if log != nil {
		return log
	}
	return zap.L()
}

func S() *zap.SugaredLogger {
	logMu.RLock()
	defer logMu.RUnlock()
	if sugar != nil {
		return sugar
	}
	return zap.S()
}

// Named returns a child logger tagged with a component name.
func Named(component string) *zap.Logger {
	return Log().Named(component)
}

func Sync() {
	logMu.RLock()
	defer logMu.RUnlock()
	if log != nil {
		_ = log.Sync()
	}
}
