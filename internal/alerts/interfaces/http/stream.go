package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	alertapp "fleet-cloud/internal/alerts/application"
)

// SSEBroker fans alert lifecycle events out to connected dashboard
// clients. Client channels are never closed; a departing reader leaves via
// its request context and drops out of the subscriber map, so a disconnect
// racing a broadcast cannot observe a closed channel. Slow clients lose
// events rather than stall the alert path.
type SSEBroker struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan []byte
}

// NewSSEBroker constructs a broker with no subscribers.
func NewSSEBroker() *SSEBroker {
	return &SSEBroker{subs: make(map[int]chan []byte)}
}

// Notify implements alertapp.AlertNotifier. Sends are non-blocking, under
// the subscriber lock, so it is safe to call from the alert workers.
func (b *SSEBroker) Notify(_ context.Context, event alertapp.AlertEvent) {
	if b == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- payload:
		default:
		}
	}
}

// subscribe registers a client and returns its event channel plus the
// function removing it from the fan-out.
func (b *SSEBroker) subscribe() (<-chan []byte, func()) {
	ch := make(chan []byte, 16)
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

func (b *SSEBroker) subscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// StreamHandler serves the live alert feed as server-sent events on
// GET /api/v1/alerts/stream.
type StreamHandler struct {
	broker *SSEBroker
}

// NewStreamHandler constructs a stream handler.
func NewStreamHandler(broker *SSEBroker) *StreamHandler {
	return &StreamHandler{broker: broker}
}

func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.broker == nil {
		http.Error(w, "stream not ready", http.StatusServiceUnavailable)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	events, leave := h.broker.subscribe()
	defer leave()

	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	fmt.Fprint(w, "event: ready\ndata: {}\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case payload := <-events:
			fmt.Fprintf(w, "event: alert\ndata: %s\n\n", payload)
			flusher.Flush()
		}
	}
}
