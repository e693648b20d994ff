package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Event names pushed to clients
const (
	EventRecommendationCreated = "recommendation.created"
	EventOutcomeClosed         = "outcome.closed"
	EventScanCompleted         = "scan.completed"
)

// Message is the envelope every client receives
type Message struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload"`
	SentAt  time.Time   `json:"sent_at"`
}

// Broker fans events out to SSE and websocket subscribers
type Broker struct {
	clients    map[chan []byte]bool
	register   chan chan []byte
	unregister chan chan []byte
	broadcast  chan []byte
	done       chan struct{}
	mu         sync.RWMutex
	log        *logrus.Logger
}

// NewBroker creates a new broker
func NewBroker(log *logrus.Logger) *Broker {
	return &Broker{
		clients:    make(map[chan []byte]bool),
		register:   make(chan chan []byte),
		unregister: make(chan chan []byte),
		broadcast:  make(chan []byte, 256),
		done:       make(chan struct{}),
		log:        log,
	}
}

// Run starts the broker loop and returns when ctx is cancelled
func (b *Broker) Run(ctx context.Context) {
	defer close(b.done)

	for {
		select {
		case <-ctx.Done():
			b.mu.Lock()
			for client := range b.clients {
				delete(b.clients, client)
				close(client)
			}
			b.mu.Unlock()
			return

		case client := <-b.register:
			b.mu.Lock()
			b.clients[client] = true
			total := len(b.clients)
			b.mu.Unlock()
			b.log.WithField("total", total).Debug("📡 Realtime client connected")

		case client := <-b.unregister:
			b.mu.Lock()
			if _, ok := b.clients[client]; ok {
				delete(b.clients, client)
				close(client)
			}
			total := len(b.clients)
			b.mu.Unlock()
			b.log.WithField("total", total).Debug("📡 Realtime client disconnected")

		case msg := <-b.broadcast:
			b.mu.RLock()
			for client := range b.clients {
				select {
				case client <- msg:
				default:
					// Skip slow clients rather than block the loop
				}
			}
			b.mu.RUnlock()
		}
	}
}

// Subscribe registers a new client channel. The channel is closed when the
// client unsubscribes or the broker stops; ok is false once stopped.
func (b *Broker) Subscribe() (ch chan []byte, ok bool) {
	ch = make(chan []byte, 16)
	select {
	case b.register <- ch:
		return ch, true
	case <-b.done:
		return nil, false
	}
}

// Unsubscribe removes a client channel
func (b *Broker) Unsubscribe(ch chan []byte) {
	select {
	case b.unregister <- ch:
	case <-b.done:
	}
}

// ClientCount returns the number of connected clients
func (b *Broker) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// ServeHTTP handles the SSE endpoint
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	clientChan, ok := b.Subscribe()
	if !ok {
		http.Error(w, "broker stopped", http.StatusServiceUnavailable)
		return
	}
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			b.Unsubscribe(clientChan)
			return
		case msg, open := <-clientChan:
			if !open {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

// Broadcast sends an event to all connected clients; dropped when the buffer is full
func (b *Broker) Broadcast(event string, payload interface{}) {
	jsonBytes, err := json.Marshal(Message{Event: event, Payload: payload, SentAt: time.Now()})
	if err != nil {
		b.log.WithError(err).Warn("⚠️ Error marshalling broadcast message")
		return
	}

	select {
	case b.broadcast <- jsonBytes:
	default:
		b.log.WithField("event", event).Warn("⚠️ Broadcast buffer full, event dropped")
	}
}
