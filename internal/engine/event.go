package engine

import (
	"time"
)

// EventType enumerates the execution event stream vocabulary.
type EventType string

const (
	EventTick     EventType = "tick"
	EventTrade    EventType = "trade"
	EventWarning  EventType = "warning"
	EventProgress EventType = "progress"
	EventError    EventType = "error"
	EventComplete EventType = "complete"
)

// Event is one entry on the output stream. Timestamp is always the logical
// bar time, never wall-clock.
type Event struct {
	Type      EventType      `json:"event_type"`
	Data      map[string]any `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
}

// expressBatch caps how many ticks a single flush may bundle.
const expressBatch = 200

// batchInterval maps the replay speed factor to a flush cadence in ticks.
// Batching changes only when buffered events reach the consumer, never their
// order.
func batchInterval(speed float64) int {
	switch {
	case speed >= 500:
		return expressBatch
	case speed >= 100:
		return 20
	case speed >= 50:
		return 10
	case speed >= 10:
		return 5
	default:
		return 1
	}
}

// emitter buffers events and flushes them to the output channel on the
// configured tick cadence. Terminal events always force a flush.
type emitter struct {
	out      chan Event
	buf      []Event
	interval int
	ticks    int
}

func newEmitter(speed float64) *emitter {
	return &emitter{
		out:      make(chan Event, 2*expressBatch),
		interval: batchInterval(speed),
	}
}

func (e *emitter) events() <-chan Event { return e.out }

func (e *emitter) emit(ev Event) {
	e.buf = append(e.buf, ev)
	if ev.Type == EventTick {
		e.ticks++
	}
	switch {
	case ev.Type == EventComplete || ev.Type == EventError:
		e.flush()
	case ev.Type == EventTick && e.ticks%e.interval == 0:
		e.flush()
	case len(e.buf) >= expressBatch:
		e.flush()
	}
}

func (e *emitter) flush() {
	for _, ev := range e.buf {
		e.out <- ev
	}
	e.buf = e.buf[:0]
}

func (e *emitter) close() {
	e.flush()
	close(e.out)
}
