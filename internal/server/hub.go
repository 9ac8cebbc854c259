package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/teemow/inboxledger/internal/events"
	"github.com/teemow/inboxledger/internal/logging"
)

const (
	// DefaultSubscriberBuffer is the per-connection event buffer.
	DefaultSubscriberBuffer = 64

	writeTimeout = 5 * time.Second
)

// Hub fans batch events out to websocket subscribers. Emit never blocks: a
// subscriber whose buffer is full misses the event. New subscribers first
// receive the retained log lines.
type Hub struct {
	logger  *slog.Logger
	buffer  int
	recent  *events.Ring
	dropped atomic.Int64

	mu   sync.Mutex
	subs map[chan events.Event]struct{}
}

// NewHub returns a Hub keeping the last DefaultRingCapacity log lines.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger: logging.WithService(logger, "events"),
		buffer: DefaultSubscriberBuffer,
		recent: events.NewRing(events.DefaultRingCapacity),
		subs:   make(map[chan events.Event]struct{}),
	}
}

// Emit implements events.Sink.
func (h *Hub) Emit(e events.Event) {
	h.recent.Emit(e)

	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- e:
		default:
			h.dropped.Add(1)
		}
	}
}

// Subscribers returns the number of connected clients.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Dropped returns how many events slow subscribers missed.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// Recent returns the retained log lines, oldest first.
func (h *Hub) Recent() []events.Event {
	return h.recent.Entries()
}

func (h *Hub) subscribe() chan events.Event {
	ch := make(chan events.Event, h.buffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) unsubscribe(ch chan events.Event) {
	h.mu.Lock()
	delete(h.subs, ch)
	h.mu.Unlock()
}

// ServeHTTP upgrades the request to a websocket and streams events as JSON
// text messages until the client goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", logging.Err(err))
		return
	}
	defer conn.CloseNow()

	ch := h.subscribe()
	defer h.unsubscribe(ch)
	h.logger.Debug("event subscriber connected", slog.String("remote", r.RemoteAddr))

	// The stream is one-way; CloseRead handles control frames and cancels
	// ctx when the client disconnects.
	ctx := conn.CloseRead(r.Context())

	for _, e := range h.recent.Entries() {
		if err := h.write(ctx, conn, e); err != nil {
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case e := <-ch:
			if err := h.write(ctx, conn, e); err != nil {
				h.logger.Debug("event subscriber gone", logging.Err(err))
				return
			}
		}
	}
}

func (h *Hub) write(ctx context.Context, conn *websocket.Conn, e events.Event) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, e)
}
