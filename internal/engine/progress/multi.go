package progress

import "github.com/infracollect/imgbundle/internal/engine"

// Multi forwards every event to each reporter in order. A reporter that
// panics does not keep the event from the ones after it.
type Multi []engine.Reporter

func (m Multi) each(fn func(engine.Reporter)) {
	for _, r := range m {
		func() {
			defer func() { _ = recover() }()
			fn(r)
		}()
	}
}

func (m Multi) BatchStarted(index, size int) {
	m.each(func(r engine.Reporter) { r.BatchStarted(index, size) })
}

func (m Multi) BatchCompleted(index int) {
	m.each(func(r engine.Reporter) { r.BatchCompleted(index) })
}

func (m Multi) EntryCompleted(name string, bytesWritten int64) {
	m.each(func(r engine.Reporter) { r.EntryCompleted(name, bytesWritten) })
}

func (m Multi) EntryFailed(name string, err error) {
	m.each(func(r engine.Reporter) { r.EntryFailed(name, err) })
}
