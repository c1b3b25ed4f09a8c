// Package events pushes document lifecycle transitions to watching clients
// over websockets. Each document is a room; clients subscribe to one
// document and receive its status changes as they happen.
package events

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"paraph/internal/document/models"
)

const statusType = "STATUS"

// StatusMessage is the wire form of one lifecycle transition.
type StatusMessage struct {
	Type       string        `json:"type"`
	DocumentID string        `json:"document_id"`
	Status     models.Status `json:"status"`
	At         time.Time     `json:"at"`
}

// Hub fans document status transitions out to subscribed clients.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	broadcast  chan StatusMessage

	mu     sync.Mutex
	rooms  map[uuid.UUID]map[*Client]bool
	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan StatusMessage, 64),
		rooms:      make(map[uuid.UUID]map[*Client]bool),
		logger:     logger,
	}
}

// Broadcast queues one transition for delivery. Implements the document
// service's StatusBroadcaster; never blocks the signing path.
func (h *Hub) Broadcast(documentID uuid.UUID, status models.Status) {
	msg := StatusMessage{
		Type:       statusType,
		DocumentID: documentID.String(),
		Status:     status,
		At:         time.Now().UTC(),
	}
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("event broadcast buffer full, dropping transition",
			"document_id", documentID, "status", status)
	}
}

// Run processes registrations and broadcasts until the channel loop is
// stopped with the process.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.rooms[client.documentID] == nil {
				h.rooms[client.documentID] = make(map[*Client]bool)
			}
			h.rooms[client.documentID][client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			h.drop(client)
			h.mu.Unlock()

		case msg := <-h.broadcast:
			payload, err := json.Marshal(msg)
			if err != nil {
				h.logger.Error("marshal status message", "error", err)
				continue
			}
			documentID, err := uuid.Parse(msg.DocumentID)
			if err != nil {
				continue
			}

			// Slow clients are dropped inline; sending to h.unregister from
			// here would block the only receiver.
			h.mu.Lock()
			for client := range h.rooms[documentID] {
				select {
				case client.send <- payload:
				default:
					// A full buffer means the client stopped reading.
					h.logger.Warn("client send buffer full, disconnecting",
						"document_id", documentID)
					h.drop(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// drop removes the client from its room and closes its send channel. Callers
// must hold h.mu; calling twice for the same client is a no-op.
func (h *Hub) drop(client *Client) {
	room := h.rooms[client.documentID]
	if _, ok := room[client]; !ok {
		return
	}
	delete(room, client)
	close(client.send)
	if len(room) == 0 {
		delete(h.rooms, client.documentID)
	}
}
