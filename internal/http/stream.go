package http

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// Stream event types.
const (
	EventSnapshot    = "snapshot"
	EventRefresh     = "refresh"
	EventChange      = "change"
	EventCelebration = "celebration"
)

// Event is one server-sent event.
type Event struct {
	Type  string        `json:"type"`
	State StateResponse `json:"state"`
}

// Hub fans events out to stream subscribers. Slow subscribers miss events
// rather than block the refresh cycle.
type Hub struct {
	mu        sync.RWMutex
	subs      map[int]chan Event
	nextSubID int
	sent      int64
	dropped   int64
	done      chan struct{}
	closeOnce sync.Once
}

func NewHub() *Hub {
	return &Hub{
		subs: make(map[int]chan Event),
		done: make(chan struct{}),
	}
}

// Subscribe registers a buffered channel and returns its id.
func (h *Hub) Subscribe(buffer int) (int, <-chan Event) {
	ch := make(chan Event, buffer)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextSubID++
	h.subs[h.nextSubID] = ch
	return h.nextSubID, ch
}

func (h *Hub) Unsubscribe(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, id)
}

func (h *Hub) Broadcast(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- ev:
			h.sent++
		default:
			h.dropped++
		}
	}
}

// Count returns the number of connected subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Stats returns delivered and dropped event counts.
func (h *Hub) Stats() (sent, dropped int64) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sent, h.dropped
}

// Done is closed by Close; stream handlers return when it is.
func (h *Hub) Done() <-chan struct{} { return h.done }

func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

func writeSSE(w io.Writer, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
		return err
	}
	return nil
}
