package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// StreamEvent is a live request decision streamed to dashboard clients.
// Blocked requests carry the policy that denied them.
type StreamEvent struct {
	Timestamp time.Time `json:"timestamp"`
	ClientKey string    `json:"client_key"`
	Policy    string    `json:"policy,omitempty"`
	Method    string    `json:"method"`
	Path      string    `json:"path"`
	Allowed   bool      `json:"allowed"`
	Status    int       `json:"status"`
}

// EventBroker fans live events out to active subscribers.
type EventBroker struct {
	mu          sync.RWMutex
	subscribers map[int]chan StreamEvent
	nextID      int
	bufferSize  int
}

// NewEventBroker creates a new in-memory event broker.
func NewEventBroker(bufferSize int) *EventBroker {
	if bufferSize <= 0 {
		bufferSize = 64
	}

	return &EventBroker{
		subscribers: make(map[int]chan StreamEvent),
		bufferSize:  bufferSize,
	}
}

// Publish broadcasts an event to all subscribers in a non-blocking way.
func (b *EventBroker) Publish(event StreamEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			// Drop when subscriber buffer is full to avoid blocking producers.
		}
	}
}

// Subscribe registers a subscriber channel and returns an unsubscribe function.
func (b *EventBroker) Subscribe() (<-chan StreamEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++

	ch := make(chan StreamEvent, b.bufferSize)
	b.subscribers[id] = ch

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		if existing, ok := b.subscribers[id]; ok {
			delete(b.subscribers, id)
			close(existing)
		}
	}

	return ch, unsubscribe
}

// EventStreamHandler serves live events over WebSocket.
type EventStreamHandler struct {
	broker   *EventBroker
	upgrader websocket.Upgrader
}

// NewEventStreamHandler creates a WebSocket stream handler.
func NewEventStreamHandler(broker *EventBroker) *EventStreamHandler {
	if broker == nil {
		broker = NewEventBroker(64)
	}

	return &EventStreamHandler{
		broker: broker,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(_ *http.Request) bool {
				return true
			},
		},
	}
}

// ServeHTTP upgrades the request to WebSocket and streams live events
// until the client disconnects.
func (h *EventStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	events, unsubscribe := h.broker.Subscribe()
	defer unsubscribe()

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			if _, _, readErr := conn.ReadMessage(); readErr != nil {
				return
			}
		}
	}()

	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			if writeErr := conn.WriteJSON(event); writeErr != nil {
				return
			}
		case <-pingTicker.C:
			if pingErr := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); pingErr != nil {
				return
			}
		case <-readDone:
			return
		case <-r.Context().Done():
			return
		}
	}
}
