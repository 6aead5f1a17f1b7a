package engine

import "go.uber.org/zap"

// Reporter observes a run. Implementations must not block; the pipeline never
// inspects what they do.
type Reporter interface {
	BatchStarted(index, size int)
	BatchCompleted(index int)
	EntryCompleted(name string, bytesWritten int64)
	EntryFailed(name string, err error)
}

type NopReporter struct{}

func (NopReporter) BatchStarted(int, int)        {}
func (NopReporter) BatchCompleted(int)           {}
func (NopReporter) EntryCompleted(string, int64) {}
func (NopReporter) EntryFailed(string, error)    {}

// safeReporter swallows panics raised by the wrapped reporter.
type safeReporter struct {
	inner  Reporter
	logger *zap.Logger
}

func (r safeReporter) guard(event string) {
	if v := recover(); v != nil {
		r.logger.Debug("progress reporter panicked", zap.String("event", event), zap.Any("panic", v))
	}
}

func (r safeReporter) BatchStarted(index, size int) {
	defer r.guard("batch_started")
	r.inner.BatchStarted(index, size)
}

func (r safeReporter) BatchCompleted(index int) {
	defer r.guard("batch_completed")
	r.inner.BatchCompleted(index)
}

func (r safeReporter) EntryCompleted(name string, bytesWritten int64) {
	defer r.guard("entry_completed")
	r.inner.EntryCompleted(name, bytesWritten)
}

func (r safeReporter) EntryFailed(name string, err error) {
	defer r.guard("entry_failed")
	r.inner.EntryFailed(name, err)
}
