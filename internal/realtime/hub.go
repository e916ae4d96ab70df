// Package realtime fans order and payment events out to connected websocket
// clients grouped into rooms. Staff join their role room, customers join the
// room of their table.
package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"tableside/internal/apperr"
	"tableside/internal/auth"
	"tableside/internal/logger"
	"tableside/internal/models"
)

// StatusUpdater is the slice of the order engine inbound messages need.
// Websocket transitions go through the same implementation as HTTP ones.
type StatusUpdater interface {
	UpdateStatus(ctx context.Context, orderID, status string, identity auth.Identity, requestID string) (*models.Order, error)
}

// Hub is the connection registry. Rooms are populated on connect and pruned
// on disconnect; there is no ambient global state.
type Hub struct {
	rooms    map[string]map[*Client]bool
	mu       sync.RWMutex
	upgrader websocket.Upgrader
	verifier auth.Verifier
	orders   StatusUpdater
	logger   *logger.Logger
}

// NewHub creates a hub. The orders dependency may be set later with
// SetStatusUpdater to break the construction cycle with the order engine.
func NewHub(verifier auth.Verifier, log *logger.Logger) *Hub {
	return &Hub{
		rooms: make(map[string]map[*Client]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		verifier: verifier,
		logger:   log,
	}
}

// SetStatusUpdater wires the order engine in after both sides exist.
func (h *Hub) SetStatusUpdater(orders StatusUpdater) {
	h.orders = orders
}

// ServeWS handles GET /ws: it resolves the caller's identity, upgrades the
// connection and joins the appropriate rooms.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()

	identity, err := auth.FromRequest(h.verifier, r)
	if err != nil {
		http.Error(w, apperr.Message(err), apperr.HTTPStatus(err))
		return
	}

	var rooms []string
	if identity.Role.IsStaff() {
		rooms = []string{models.RoleRoom(identity.Role)}
	} else {
		tableID := r.URL.Query().Get("table")
		if tableID == "" {
			http.Error(w, "table query parameter is required", http.StatusBadRequest)
			return
		}
		rooms = []string{models.TableRoom(tableID)}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws_upgrade_failed", "Failed to upgrade connection", requestID, err, nil)
		return
	}

	client := newClient(h, conn, identity, rooms)
	h.register(client)

	h.logger.Info("ws_connected", "Client connected", requestID, map[string]interface{}{
		"role":  identity.Role,
		"rooms": rooms,
	})

	go client.writePump()
	go client.readPump()
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, room := range c.rooms {
		if h.rooms[room] == nil {
			h.rooms[room] = make(map[*Client]bool)
		}
		h.rooms[room][c] = true
	}
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, room := range c.rooms {
		if members, ok := h.rooms[room]; ok {
			delete(members, c)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	c.closeSend()
}

// RoomSize reports the number of clients in a room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// OrderCreated notifies admin and kitchen about a freshly placed order.
func (h *Hub) OrderCreated(order *models.Order) {
	h.broadcast([]string{
		models.RoleRoom(auth.RoleAdmin),
		models.RoleRoom(auth.RoleKitchen),
	}, &models.Event{
		Type:      models.EventOrderCreated,
		Order:     order,
		Timestamp: time.Now().UTC(),
	})
}

// OrderStatusUpdated notifies all staff rooms plus the order's table room.
func (h *Hub) OrderStatusUpdated(order *models.Order) {
	h.broadcast([]string{
		models.RoleRoom(auth.RoleAdmin),
		models.RoleRoom(auth.RoleKitchen),
		models.RoleRoom(auth.RoleRunner),
		models.TableRoom(order.TableID),
	}, &models.Event{
		Type:      models.EventOrderStatusUpdated,
		Order:     order,
		Timestamp: time.Now().UTC(),
	})
}

// PaymentStatusUpdated notifies only the table that owns the order.
func (h *Hub) PaymentStatusUpdated(update *models.PaymentUpdate) {
	h.broadcast([]string{models.TableRoom(update.TableID)}, &models.Event{
		Type:      models.EventPaymentStatusUpdated,
		Payment:   update,
		Timestamp: time.Now().UTC(),
	})
}

// broadcast delivers an event to every distinct client in the given rooms.
// Delivery is best effort: a client with a full send buffer misses the event.
func (h *Hub) broadcast(rooms []string, event *models.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("event_marshal_failed", "Failed to marshal event", "", err, map[string]interface{}{
			"event_type": event.Type,
		})
		return
	}

	// The read lock is held across the sends so a concurrent unregister
	// cannot close a send channel between the snapshot and the send.
	// trySend never blocks, so the lock is held only briefly.
	h.mu.RLock()
	defer h.mu.RUnlock()

	targets := make(map[*Client]bool)
	for _, room := range rooms {
		for client := range h.rooms[room] {
			targets[client] = true
		}
	}

	for client := range targets {
		client.trySend(payload)
	}
}
