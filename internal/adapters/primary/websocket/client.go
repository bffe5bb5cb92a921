package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/prontofix/realtime-broker/internal/core/domain"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Default time allowed to read the next pong message from the peer.
	defaultPongWait = 60 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 1024
)

// Options holds per-connection transport settings.
type Options struct {
	// PingInterval is how often pings are sent. Must be less than PongWait.
	PingInterval time.Duration

	// PongWait is how long to wait for a pong before dropping the connection.
	PongWait time.Duration
}

// withDefaults fills in the keep-alive settings left unset.
func (o Options) withDefaults() Options {
	if o.PongWait <= 0 {
		o.PongWait = defaultPongWait
	}
	if o.PingInterval <= 0 {
		o.PingInterval = (o.PongWait * 9) / 10
	}
	return o
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	Hub *Hub

	// The websocket connection.
	Conn *websocket.Conn

	// Buffered channel of outbound events.
	Send chan domain.Event

	// Opaque connection identity.
	ID uuid.UUID

	// RemoteAddr of the peer, for logging.
	RemoteAddr string

	// rooms this connection has joined.
	rooms map[string]bool

	// lastSeen is updated on every frame and pong from the peer.
	lastSeen time.Time

	opts Options

	// sendMu serializes queueing on Send with CloseSend, so closing the
	// channel can never race an in-flight send from another goroutine.
	sendMu sync.Mutex

	// sendClosed marks the Send channel closed
	sendClosed bool

	// mu protects rooms and lastSeen
	mu sync.RWMutex

	// logger for this client
	logger *slog.Logger
}

// NewClient creates a new WebSocket client
func NewClient(hub *Hub, conn *websocket.Conn, opts Options, logger *slog.Logger) *Client {
	opts = opts.withDefaults()
	id := uuid.New()
	return &Client{
		Hub:        hub,
		Conn:       conn,
		Send:       make(chan domain.Event, 256),
		ID:         id,
		RemoteAddr: conn.RemoteAddr().String(),
		rooms:      make(map[string]bool),
		lastSeen:   time.Now(),
		opts:       opts,
		logger:     logger.With("connection_id", id.String()),
	}
}

// CloseSend closes the Send channel exactly once. Safe to call while
// other goroutines are queueing through trySend.
func (c *Client) CloseSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.sendClosed {
		return
	}
	c.sendClosed = true
	close(c.Send)
}

// trySend queues an event for the write pump without blocking. It
// reports false when the client is already closed or its buffer is
// full; either way the caller treats it as a per-connection write
// failure that must not affect anyone else.
func (c *Client) trySend(event domain.Event) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.sendClosed {
		return false
	}

	select {
	case c.Send <- event:
		return true
	default:
		return false
	}
}

// addRoom records a joined room. Called by the hub under its own lock.
func (c *Client) addRoom(room string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rooms[room] = true
}

// Rooms returns a copy of the rooms this connection has joined
func (c *Client) Rooms() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rooms := make([]string, 0, len(c.rooms))
	for room := range c.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

// LastSeen returns the time of the last frame or pong from the peer
func (c *Client) LastSeen() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastSeen
}

func (c *Client) touch() {
	c.mu.Lock()
	c.lastSeen = time.Now()
	c.mu.Unlock()
}

// ReadPump pumps messages from the websocket connection to the hub.
// This method runs in its own goroutine.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister <- c
		_ = c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	if err := c.Conn.SetReadDeadline(time.Now().Add(c.opts.PongWait)); err != nil {
		c.logger.Error("failed to set read deadline", "error", err)
		return
	}

	c.Conn.SetPongHandler(func(string) error {
		c.touch()
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.opts.PongWait)); err != nil {
			c.logger.Error("failed to set read deadline in pong handler", "error", err)
		}
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read error", "error", err)
			}
			break
		}

		c.touch()
		c.handleIncomingMessage(message)
	}
}

// WritePump pumps events from the hub to the websocket connection.
// This method runs in its own goroutine.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.Send:
			if err := c.Conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Error("failed to set write deadline", "error", err)
				return
			}

			if !ok {
				// The hub closed the channel. Send close message.
				if err := c.Conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
					c.logger.Debug("failed to send close message", "error", err)
				}
				return
			}

			if err := c.writeJSON(event); err != nil {
				c.logger.Error("failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			if err := c.Conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Error("failed to set write deadline for ping", "error", err)
				return
			}

			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("failed to send ping", "error", err)
				return
			}
		}
	}
}

// writeJSON writes a JSON event to the websocket connection
func (c *Client) writeJSON(event domain.Event) error {
	w, err := c.Conn.NextWriter(websocket.TextMessage)
	if err != nil {
		return err
	}

	if err := json.NewEncoder(w).Encode(event); err != nil {
		_ = w.Close()
		return err
	}

	return w.Close()
}

// --- Incoming Command Handling ---

// ClientMessage is the structure for commands sent from the client.
type ClientMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// JoinProviderPayload is the payload for the join-provider-room command
type JoinProviderPayload struct {
	ProviderID string `json:"providerId"`
}

// JoinCustomerPayload is the payload for the join-customer-room command
type JoinCustomerPayload struct {
	CustomerID string `json:"customerId"`
}

// handleIncomingMessage processes commands received from the client
func (c *Client) handleIncomingMessage(message []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.logger.Warn("failed to unmarshal client message", "error", err)
		return
	}

	switch msg.Type {
	case "join-provider-room":
		c.handleJoinProviderRoom(msg.Payload)

	case "join-customer-room":
		c.handleJoinCustomerRoom(msg.Payload)

	case "ping":
		// Client-side keep-alive, respond with pong
		c.sendEvent(domain.Event{Type: domain.EventPong})

	default:
		c.logger.Debug("received unknown message type", "type", msg.Type)
	}
}

// handleJoinProviderRoom joins the provider's room and acknowledges the
// join back to this connection with the resulting room size.
func (c *Client) handleJoinProviderRoom(payload json.RawMessage) {
	var p JoinProviderPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		c.logger.Warn("failed to unmarshal join-provider-room payload", "error", err)
		return
	}

	if p.ProviderID == "" {
		c.logger.Warn("empty provider ID in join request")
		return
	}

	room := domain.RoomName(domain.RoleProvider, p.ProviderID)
	size := c.Hub.JoinRoom(c, room)

	c.sendEvent(domain.Event{
		Type: domain.EventRoomJoined,
		Room: room,
		Payload: domain.ProviderRoomJoined{
			Room:       room,
			ProviderID: p.ProviderID,
			RoomSize:   size,
		},
	})
}

// handleJoinCustomerRoom joins the customer's room and acknowledges it.
func (c *Client) handleJoinCustomerRoom(payload json.RawMessage) {
	var p JoinCustomerPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		c.logger.Warn("failed to unmarshal join-customer-room payload", "error", err)
		return
	}

	if p.CustomerID == "" {
		c.logger.Warn("empty customer ID in join request")
		return
	}

	room := domain.RoomName(domain.RoleCustomer, p.CustomerID)
	size := c.Hub.JoinRoom(c, room)

	c.sendEvent(domain.Event{
		Type: domain.EventCustomerRoomJoined,
		Room: room,
		Payload: domain.CustomerRoomJoined{
			Room:       room,
			CustomerID: p.CustomerID,
			RoomSize:   size,
		},
	})
}

func (c *Client) sendEvent(event domain.Event) {
	if !c.trySend(event) {
		c.logger.Warn("send buffer full or closed, dropping frame", "event_type", event.Type)
	}
}
