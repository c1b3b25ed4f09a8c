package events

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Client is one websocket subscription to a document's transitions.
type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	documentID uuid.UUID
	send       chan []byte
}

// ServeWS upgrades the request and subscribes the connection to the
// document named in the query string.
func ServeWS(hub *Hub, w http.ResponseWriter, r *http.Request) {
	documentID, err := uuid.Parse(r.URL.Query().Get("document_id"))
	if err != nil {
		http.Error(w, "document_id query parameter is required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := &Client{
		hub:        hub,
		conn:       conn,
		documentID: documentID,
		send:       make(chan []byte, 16),
	}
	hub.register <- client

	go client.writePump()
	go client.readPump()
}

// readPump drains incoming frames; clients only listen, so the loop exists
// to detect the close.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
