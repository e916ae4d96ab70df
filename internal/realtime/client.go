package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"tableside/internal/apperr"
	"tableside/internal/auth"
	"tableside/internal/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024
	sendBufferSize = 32
)

// Client is one websocket connection and its room memberships.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	identity auth.Identity
	rooms    []string
	send     chan []byte
	once     sync.Once
}

func newClient(hub *Hub, conn *websocket.Conn, identity auth.Identity, rooms []string) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		identity: identity,
		rooms:    rooms,
		send:     make(chan []byte, sendBufferSize),
	}
}

// trySend queues a payload without blocking; a full buffer drops it.
func (c *Client) trySend(payload []byte) {
	select {
	case c.send <- payload:
	default:
	}
}

func (c *Client) closeSend() {
	c.once.Do(func() { close(c.send) })
}

// inboundMessage is what staff clients send over the socket.
type inboundMessage struct {
	Type    string `json:"type"`
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

// errorMessage is sent only to the offending connection, never broadcast.
type errorMessage struct {
	Type  string      `json:"type"`
	Error string      `json:"error"`
	Kind  apperr.Kind `json:"kind"`
}

// readPump consumes inbound messages until the connection dies.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.handleMessage(payload)
	}
}

func (c *Client) handleMessage(payload []byte) {
	requestID := logger.GenerateRequestID()

	var msg inboundMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		c.sendError(apperr.InvalidInput("malformed message"))
		return
	}

	switch msg.Type {
	case "update_status":
		if !c.identity.Role.IsStaff() {
			c.sendError(apperr.Forbidden("status updates require a staff role"))
			return
		}
		if c.hub.orders == nil {
			c.sendError(apperr.Internal("order engine unavailable", nil))
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if _, err := c.hub.orders.UpdateStatus(ctx, msg.OrderID, msg.Status, c.identity, requestID); err != nil {
			c.sendError(err)
		}
		// The resulting broadcast reaches this client through its rooms.
	default:
		c.sendError(apperr.InvalidInput("unknown message type %q", msg.Type))
	}
}

func (c *Client) sendError(err error) {
	payload, marshalErr := json.Marshal(errorMessage{
		Type:  "error",
		Error: apperr.Message(err),
		Kind:  apperr.KindOf(err),
	})
	if marshalErr != nil {
		return
	}
	c.trySend(payload)
}

// writePump drains the send channel and keeps the connection alive with
// pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
