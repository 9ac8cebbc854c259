package events

import "sync"

// DefaultRingCapacity matches the number of log lines the dashboard keeps.
const DefaultRingCapacity = 100

// Ring keeps the most recent log events in a fixed-size buffer. Non-log
// events are ignored.
type Ring struct {
	mu    sync.Mutex
	buf   []Event
	start int
	size  int
}

// NewRing creates a Ring holding at most capacity log events.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultRingCapacity
	}
	return &Ring{buf: make([]Event, capacity)}
}

func (r *Ring) Emit(e Event) {
	if e.Kind != KindLog {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size < len(r.buf) {
		r.buf[(r.start+r.size)%len(r.buf)] = e
		r.size++
		return
	}
	r.buf[r.start] = e
	r.start = (r.start + 1) % len(r.buf)
}

// Entries returns a copy of the retained events, oldest first.
func (r *Ring) Entries() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Event, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}

// Clear drops every retained event.
func (r *Ring) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.start = 0
	r.size = 0
}
