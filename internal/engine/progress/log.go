// Package progress provides engine.Reporter implementations.
package progress

import (
	"go.uber.org/zap"
)

// Logger reports progress through zap. Batches are logged at info, completed
// entries at debug and failed entries at warn.
type Logger struct {
	logger *zap.Logger
}

func NewLogger(logger *zap.Logger) *Logger {
	return &Logger{logger: logger}
}

func (l *Logger) BatchStarted(index, size int) {
	l.logger.Info("batch started", zap.Int("batch", index), zap.Int("size", size))
}

func (l *Logger) BatchCompleted(index int) {
	l.logger.Info("batch completed", zap.Int("batch", index))
}

func (l *Logger) EntryCompleted(name string, bytesWritten int64) {
	l.logger.Debug("entry archived", zap.String("entry", name), zap.Int64("bytes", bytesWritten))
}

func (l *Logger) EntryFailed(name string, err error) {
	l.logger.Warn("entry skipped", zap.String("entry", name), zap.Error(err))
}
