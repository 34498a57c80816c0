// Package log holds the process-wide zap logger.
package log

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

var (
	mu         sync.Mutex
	sugar      *zap.SugaredLogger
	baseLogger *zap.Logger
)

// Init builds the package logger; debug selects zap's development config.
func Init(debug bool) error {
	var zapLogger *zap.Logger
	var err error

	if debug {
		zapLogger, err = zap.NewDevelopment()
	} else {
		zapLogger, err = zap.NewProduction()
	}
	if err != nil {
		return fmt.Errorf("can't initialize zap logger: %w", err)
	}

	mu.Lock()
	defer mu.Unlock()
	baseLogger = zapLogger
	sugar = zapLogger.Sugar()
	return nil
}

// GetSugaredLogger returns the package logger, falling back to a production
// logger when Init was never called.
func GetSugaredLogger() *zap.SugaredLogger {
	mu.Lock()
	defer mu.Unlock()
	if sugar == nil {
		baseLogger, _ = zap.NewProduction()
		sugar = baseLogger.Sugar()
	}
	return sugar
}

// Or returns l when set, otherwise the package logger.
func Or(l *zap.SugaredLogger) *zap.SugaredLogger {
	if l != nil {
		return l
	}
	return GetSugaredLogger()
}

func Sync() {
	mu.Lock()
	defer mu.Unlock()
	if sugar != nil {
		_ = sugar.Sync()
	}
}
