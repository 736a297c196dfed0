package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"go.uber.org/zap"

	"go-fleet-console/internal/obs"
)

// EventType names a change notification pushed to consoles
type EventType string

const (
	EventDirectoryChanged   EventType = "directory_changed"
	EventPermissionsChanged EventType = "permissions_changed"
	EventUserStatus         EventType = "user_status_update"
)

// Event is the JSON frame written to every connected client
type Event struct {
	Type     EventType `json:"type"`
	Resource string    `json:"resource,omitempty"` // "departments", "employees", "roles"
	IDs      []string  `json:"ids,omitempty"`
	At       time.Time `json:"at"`
}

// Publisher is what services need from the hub
type Publisher interface {
	Publish(event Event)
}

// Conn is the part of a websocket connection the hub writes to
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

type Hub struct {
	Clients    map[Conn]bool
	Register   chan Conn
	Unregister chan Conn
	Broadcast  chan []byte
	done       chan struct{}
	mutex      sync.Mutex
	logger     *zap.Logger
	metrics    *obs.Metrics
}

func NewHub(logger *zap.Logger, metrics *obs.Metrics) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		Clients:    make(map[Conn]bool),
		Register:   make(chan Conn),
		Unregister: make(chan Conn),
		Broadcast:  make(chan []byte, 64),
		done:       make(chan struct{}),
		logger:     logger,
		metrics:    metrics,
	}
}

// Publish encodes the event and queues it without blocking the caller
func (h *Hub) Publish(event Event) {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	msg, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("encode ws event", zap.String("type", string(event.Type)), zap.Error(err))
		return
	}
	go func() {
		select {
		case h.Broadcast <- msg:
		case <-h.done:
		}
	}()
}

// ClientCount is the number of registered connections
func (h *Hub) ClientCount() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.Clients)
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mutex.Lock()
			for conn := range h.Clients {
				conn.Close()
				delete(h.Clients, conn)
			}
			h.mutex.Unlock()
			return

		case conn := <-h.Register:
			h.mutex.Lock()
			h.Clients[conn] = true
			h.mutex.Unlock()
			h.metrics.ClientConnected()
			h.logger.Debug("ws client connected")

		case conn := <-h.Unregister:
			h.mutex.Lock()
			if _, ok := h.Clients[conn]; ok {
				delete(h.Clients, conn)
				conn.Close()
				h.metrics.ClientDisconnected()
			}
			h.mutex.Unlock()

		case message := <-h.Broadcast:
			h.mutex.Lock()
			for conn := range h.Clients {
				if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
					h.logger.Debug("ws write failed, dropping client", zap.Error(err))
					conn.Close()
					delete(h.Clients, conn)
					h.metrics.ClientDisconnected()
				}
			}
			h.mutex.Unlock()
		}
	}
}

var _ Publisher = (*Hub)(nil)
