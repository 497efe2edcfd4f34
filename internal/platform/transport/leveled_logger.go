package transport

import (
	retryablehttp "github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// LeveledLogger adapts zap to retryablehttp.LeveledLogger.
type LeveledLogger struct {
	sugaredLogger *zap.SugaredLogger
}

var _ retryablehttp.LeveledLogger = (*LeveledLogger)(nil)

// NewLeveledLogger wraps logger.
func NewLeveledLogger(logger *zap.Logger) *LeveledLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LeveledLogger{sugaredLogger: logger.Sugar()}
}

// Error logs at error level.
func (leveledLogger *LeveledLogger) Error(message string, keysAndValues ...interface{}) {
	leveledLogger.sugaredLogger.Errorw(message, keysAndValues...)
}

// Warn logs at warn level.
func (leveledLogger *LeveledLogger) Warn(message string, keysAndValues ...interface{}) {
	leveledLogger.sugaredLogger.Warnw(message, keysAndValues...)
}

// Info logs at debug level; request chatter is not user-facing.
func (leveledLogger *LeveledLogger) Info(message string, keysAndValues ...interface{}) {
	leveledLogger.sugaredLogger.Debugw(message, keysAndValues...)
}

// Debug logs at debug level.
func (leveledLogger *LeveledLogger) Debug(message string, keysAndValues ...interface{}) {
	leveledLogger.sugaredLogger.Debugw(message, keysAndValues...)
}
