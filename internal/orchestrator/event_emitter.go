package orchestrator

import (
	"log"
	"sync/atomic"
	"time"
)

// EventEmitter fans lifecycle events out to a single subscriber channel.
// Emit never blocks: if the subscriber falls behind, events are dropped and
// counted. Safe for concurrent use.
type EventEmitter struct {
	events       chan Event
	droppedCount atomic.Uint64
}

// NewEventEmitter creates an EventEmitter with the given buffer size.
func NewEventEmitter(bufferSize int) *EventEmitter {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &EventEmitter{events: make(chan Event, bufferSize)}
}

// Emit sends an event to the subscriber channel, dropping it if the buffer
// is full. Emit is called under the scheduler lock, so it must not wait.
func (e *EventEmitter) Emit(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case e.events <- event:
	default:
		count := e.droppedCount.Add(1)
		if count%100 == 1 {
			log.Printf("[orchestrator] event channel full, dropped event (total dropped: %d): type=%s", count, event.Type)
		}
	}
}

// DroppedCount returns the total number of dropped events.
func (e *EventEmitter) DroppedCount() uint64 {
	return e.droppedCount.Load()
}

// Events returns the read-only subscriber channel.
func (e *EventEmitter) Events() <-chan Event {
	return e.events
}

// Close closes the subscriber channel. Call only after all emitters stopped.
func (e *EventEmitter) Close() {
	close(e.events)
}
