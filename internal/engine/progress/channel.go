package progress

import "sync/atomic"

type EventKind string

const (
	BatchStarted   EventKind = "batch_started"
	BatchCompleted EventKind = "batch_completed"
	EntryCompleted EventKind = "entry_completed"
	EntryFailed    EventKind = "entry_failed"
)

// Event is one progress notification.
type Event struct {
	Kind  EventKind `json:"kind"`
	Batch int       `json:"batch,omitempty"`
	Size  int       `json:"size,omitempty"`
	Entry string    `json:"entry,omitempty"`
	Bytes int64     `json:"bytes,omitempty"`
	Err   error     `json:"-"`
}

// Channel publishes events on a buffered channel. Events are dropped when the
// buffer is full so a slow consumer never stalls a run.
type Channel struct {
	events  chan Event
	dropped atomic.Int64
}

func NewChannel(buffer int) *Channel {
	return &Channel{events: make(chan Event, buffer)}
}

func (c *Channel) Events() <-chan Event {
	return c.events
}

// Dropped returns the number of events discarded so far.
func (c *Channel) Dropped() int64 {
	return c.dropped.Load()
}

// Close closes the events channel. No reporter method may be called after.
func (c *Channel) Close() {
	close(c.events)
}

func (c *Channel) send(e Event) {
	select {
	case c.events <- e:
	default:
		c.dropped.Add(1)
	}
}

func (c *Channel) BatchStarted(index, size int) {
	c.send(Event{Kind: BatchStarted, Batch: index, Size: size})
}

func (c *Channel) BatchCompleted(index int) {
	c.send(Event{Kind: BatchCompleted, Batch: index})
}

func (c *Channel) EntryCompleted(name string, bytesWritten int64) {
	c.send(Event{Kind: EntryCompleted, Entry: name, Bytes: bytesWritten})
}

func (c *Channel) EntryFailed(name string, err error) {
	c.send(Event{Kind: EntryFailed, Entry: name, Err: err})
}
