// Package ilog holds the package-scoped logger shared by the dumper core.
package ilog

import (
	"sync"

	"go.uber.org/zap"
)

var (
	logger     *zap.Logger
	loggerOnce sync.Once
)

// Logger returns the core's logger instance.
// It uses a no-op logger by default.
func Logger() *zap.Logger {
	loggerOnce.Do(func() {
		if logger == nil {
			logger = zap.NewNop()
		}
	})
	return logger
}

// SetLogger configures the core's logger.
// Must be called before Dump to take effect.
func SetLogger(l *zap.Logger) {
	logger = l
}
