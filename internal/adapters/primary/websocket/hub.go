package websocket

import (
	"context"
	"log/slog"
	"sync"

	"github.com/prontofix/realtime-broker/internal/core/domain"
	"github.com/prontofix/realtime-broker/internal/core/ports"
)

// Hub maintains the set of active Clients and fans events out to
// role-scoped rooms. Rooms exist only implicitly: a room is the set of
// connections that have joined it, and its size is computed on demand.
//
// One mutex guards both the client set and the room membership maps, so
// a join and a concurrent emit to the same room are serialized: once a
// join has been acknowledged, a later emit cannot miss that connection.
type Hub struct {
	// clients is the set of live connections
	clients map[*Client]bool

	// rooms maps room names to member connections
	rooms map[string]map[*Client]bool

	// Register requests from clients
	Register chan *Client

	// Unregister requests from clients
	Unregister chan *Client

	// mu protects the clients and rooms maps
	mu sync.RWMutex

	// logger for the hub
	logger *slog.Logger
}

// Ensure Hub implements the EventBroadcaster interface.
var _ ports.EventBroadcaster = (*Hub)(nil)

// NewHub creates a new WebSocket hub
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		rooms:      make(map[string]map[*Client]bool),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		logger:     logger.With("component", "websocket_hub"),
	}
}

// Run starts the hub's registration loop. This MUST be run as a
// goroutine. It returns when ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.Unregister:
			h.unregisterClient(client)

		case <-ctx.Done():
			h.closeAll()
			return ctx.Err()
		}
	}
}

// registerClient adds a client to the hub with an empty room set
func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	total := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("client registered",
		"connection_id", client.ID,
		"remote_addr", client.RemoteAddr,
		"total_connections", total,
	)
}

// unregisterClient removes a client from the hub and from every room it
// joined. Removal is atomic: once this acquires the lock, the client is
// never counted in a room size again.
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()

	if _, ok := h.clients[client]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)

	for _, room := range client.Rooms() {
		if members, ok := h.rooms[room]; ok {
			delete(members, client)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	h.mu.Unlock()

	// Safely close the send channel
	client.CloseSend()

	h.logger.Info("client unregistered",
		"connection_id", client.ID,
	)
}

// closeAll drops every connection on shutdown.
func (h *Hub) closeAll() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.clients = make(map[*Client]bool)
	h.rooms = make(map[string]map[*Client]bool)
	h.mu.Unlock()

	for _, client := range clients {
		client.CloseSend()
	}
}

// JoinRoom adds a client to a room and returns the resulting room size.
// Joining a room the client is already a member of is a no-op that
// still reports the current size, so repeated join commands each get an
// acknowledgment without inflating membership.
func (h *Hub) JoinRoom(client *Client, room string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*Client]bool)
	}
	h.rooms[room][client] = true
	client.addRoom(room)
	size := len(h.rooms[room])

	h.logger.Debug("client joined room",
		"connection_id", client.ID,
		"room", room,
		"room_size", size,
	)
	return size
}

// EmitToRoom fans an event out to every current member of the room and
// returns the room size at emit time. A full per-client send buffer is
// treated as a transport write failure for that connection only: the
// client is dropped, delivery to the other members proceeds.
func (h *Hub) EmitToRoom(room string, event domain.Event) int {
	h.mu.RLock()
	members, ok := h.rooms[room]
	if !ok {
		h.mu.RUnlock()
		return 0
	}

	// Copy the member list to avoid holding the lock while sending
	clients := make([]*Client, 0, len(members))
	for client := range members {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	h.logger.Debug("emitting event to room",
		"event_type", event.Type,
		"room", room,
		"room_size", len(clients),
	)

	for _, client := range clients {
		if !client.trySend(event) {
			h.logger.Warn("client not accepting events, unregistering",
				"connection_id", client.ID,
				"room", room,
			)
			h.Unregister <- client
		}
	}

	return len(clients)
}

// RoomSize returns the number of clients currently in a room. Rooms
// that have never been joined have size 0.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if members, ok := h.rooms[room]; ok {
		return len(members)
	}
	return 0
}

// ClientCount returns the total number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomCount returns the number of rooms with at least one member
func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}
