package events

import (
	"sync"
	"sync/atomic"
)

// DefaultChannelCapacity is the buffer size used when NewChannel gets a non-positive capacity.
const DefaultChannelCapacity = 256

// Channel is a buffered multiple-producer/single-consumer sink. Emit never
// blocks: when the buffer is full the event is dropped and counted. The last
// terminal result is always retained and available from Result, so a slow
// consumer can still learn how the batch ended.
type Channel struct {
	ch      chan Event
	dropped atomic.Int64

	mu     sync.Mutex
	closed bool
	result *Result
}

// NewChannel creates a Channel with the given buffer capacity.
func NewChannel(capacity int) *Channel {
	if capacity <= 0 {
		capacity = DefaultChannelCapacity
	}
	return &Channel{ch: make(chan Event, capacity)}
}

// Emit queues the event without blocking. Events emitted after Close are dropped.
func (c *Channel) Emit(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e.Kind == KindDone && e.Result != nil {
		r := *e.Result
		c.result = &r
	}
	if c.closed {
		c.dropped.Add(1)
		return
	}
	select {
	case c.ch <- e:
	default:
		c.dropped.Add(1)
	}
}

// Events returns the receive side for the consumer.
func (c *Channel) Events() <-chan Event {
	return c.ch
}

// Close stops accepting events and closes the receive side once drained.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.ch)
}

// Dropped reports how many events were discarded.
func (c *Channel) Dropped() int64 {
	return c.dropped.Load()
}

// Result returns the most recent terminal result, or nil if none was emitted.
func (c *Channel) Result() *Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.result == nil {
		return nil
	}
	r := *c.result
	return &r
}
