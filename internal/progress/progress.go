// Package progress is an optional websocket broadcaster that streams
// per-pair scoring progress to any attached viewer, for long runs
// over large candidate pools. It is never required for a run to
// produce a report; Hub is a no-op sink when nothing is attached.
package progress

import (
	"net/http"
	"sync"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// Hub fans scoring progress events out to every attached viewer.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]bool
}

type client struct {
	conn *websocket.Conn
	send chan Event
}

// Event is one progress tick, emitted from package concurrency's
// ProgressFunc.
type Event struct {
	Done  int `json:"done"`
	Total int `json:"total"`
}

// NewHub returns an empty hub ready to accept websocket connections.
func NewHub() *Hub {
	return &Hub{clients: make(map[*client]bool)}
}

// Broadcast fans an event out to every attached viewer. Safe to call
// from the scoring worker pool; never blocks on a slow viewer.
func (h *Hub) Broadcast(done, total int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ev := Event{Done: done, Total: total}
	for c := range h.clients {
		select {
		case c.send <- ev:
		default:
		}
	}
}

// ServeHTTP upgrades an HTTP connection to a websocket and streams
// Events to it until the viewer disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	c := &client{conn: conn, send: make(chan Event, 16)}

	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, c)
		h.mu.Unlock()
		conn.Close(websocket.StatusNormalClosure, "done")
	}()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-c.send:
			if !ok {
				return
			}
			if err := wsjson.Write(ctx, conn, ev); err != nil {
				return
			}
		}
	}
}

// Noop satisfies callers that want a progress function without a
// broadcaster attached.
func Noop(done, total int) {}
