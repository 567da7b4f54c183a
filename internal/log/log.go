// Package log provides the process-wide zap logger used by the riverprofile binaries.
package log

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var log *zap.SugaredLogger
var baseLogger *zap.Logger

// Init initializes the package-level logger. Debug mode switches to zap's development
// config: console encoding, debug level and stack traces on warnings.
func Init(debug bool) error {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	zapLogger, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return fmt.Errorf("can't initialize zap logger: %v", err)
	}

	baseLogger = zapLogger
	log = zapLogger.Sugar()
	return nil
}

// base returns the process logger, building a production logger if Init was never called
func base() *zap.Logger {
	if baseLogger == nil {
		baseLogger, _ = zap.NewProduction(zap.AddCallerSkip(1))
		log = baseLogger.Sugar()
	}
	return baseLogger
}

// GetSugaredLogger returns the sugared logger instance for injection into components.
// Caller skip is removed so call sites are reported correctly.
func GetSugaredLogger() *zap.SugaredLogger {
	return base().WithOptions(zap.AddCallerSkip(-1)).Sugar()
}

// Sync flushes any buffered log entries
func Sync() {
	if log != nil {
		_ = log.Sync()
	}
}

func Infow(msg string, keysAndValues ...interface{}) {
	base()
	log.Infow(msg, keysAndValues...)
}

func Errorf(template string, args ...interface{}) {
	base()
	log.Errorf(template, args...)
}
