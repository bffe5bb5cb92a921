// Package client is the Go SDK for the prontofix real-time broker. A
// ConnectionManager owns one outbound WebSocket connection, re-joins
// rooms after a reconnect, and dispatches incoming events to locally
// registered subscribers.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	initialBackoff = 500 * time.Millisecond
	maxBackoff     = 10 * time.Second
)

// State is the connection lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Role identifies which side of the marketplace a room addresses.
type Role string

const (
	RoleProvider Role = "provider"
	RoleCustomer Role = "customer"
)

// JoinAck is the broker's acknowledgment of a join command.
type JoinAck struct {
	Room     string
	ID       string
	RoomSize int
}

// joinCommand is a requested room membership. Requested rooms are
// remembered for the lifetime of the manager: the broker forgets
// membership on disconnect, so every entry into Connected replays them.
type joinCommand struct {
	role Role
	id   string
}

func (j joinCommand) room() string {
	return fmt.Sprintf("%s-%s", j.role, j.id)
}

// ConnectionManager owns one outbound broker connection. Construct one
// per app session and pass it to whatever needs to join rooms or
// register callbacks; it replaces any notion of a shared global socket.
type ConnectionManager struct {
	url    string
	dialer *websocket.Dialer
	logger *slog.Logger
	subs   *SubscriberRegistry

	mu      sync.Mutex
	state   State
	conn    *websocket.Conn
	desired map[string]joinCommand
	waiters map[string][]chan JoinAck
	closed  bool
	done    chan struct{}
}

// New creates a ConnectionManager for the given broker URL
// (e.g. "ws://10.0.2.2:8080/ws"). It does not connect.
func New(url string, logger *slog.Logger) *ConnectionManager {
	return &ConnectionManager{
		url:     url,
		dialer:  websocket.DefaultDialer,
		logger:  logger.With("component", "connection_manager"),
		subs:    NewSubscriberRegistry(logger),
		desired: make(map[string]joinCommand),
		waiters: make(map[string][]chan JoinAck),
		done:    make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (c *ConnectionManager) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect establishes the connection. Calling it while already
// connected or connecting is a no-op. On success the manager enters
// Connected, replays every requested room membership, and keeps the
// connection alive with automatic reconnection until Close.
func (c *ConnectionManager) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("connection manager closed")
	}
	if c.state != StateDisconnected {
		state := c.state
		c.mu.Unlock()
		c.logger.Info("connect ignored, already active", "state", state.String())
		return nil
	}
	c.state = StateConnecting
	c.mu.Unlock()

	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		return fmt.Errorf("broker connect: %w", err)
	}

	c.onConnected(conn)
	return nil
}

// onConnected is the single entry point into the Connected state, for
// both the initial connect and every reconnect. It installs exactly one
// read loop for the new connection and flushes the desired room set.
func (c *ConnectionManager) onConnected(conn *websocket.Conn) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	c.state = StateConnected
	pending := make([]joinCommand, 0, len(c.desired))
	for _, cmd := range c.desired {
		pending = append(pending, cmd)
	}
	c.mu.Unlock()

	go c.readLoop(conn)

	c.logger.Info("connected to broker", "url", c.url, "rooms_to_join", len(pending))

	for _, cmd := range pending {
		if err := c.sendJoin(cmd); err != nil {
			c.logger.Warn("failed to replay room join", "room", cmd.room(), "error", err)
		}
	}
}

// JoinRoom requests membership in the room for (role, id). The request
// is remembered across reconnects. If the connection is not yet up, the
// command is queued and flushed when Connected fires; otherwise it is
// sent immediately. The returned channel receives the broker's
// acknowledgment once, if it arrives; a disconnect before the ack
// leaves the channel silent (membership state unknown, the reconnect
// replay re-issues the join).
func (c *ConnectionManager) JoinRoom(role Role, id string) <-chan JoinAck {
	cmd := joinCommand{role: role, id: id}
	room := cmd.room()
	ack := make(chan JoinAck, 1)

	c.mu.Lock()
	c.desired[room] = cmd
	c.waiters[room] = append(c.waiters[room], ack)
	connected := c.state == StateConnected
	c.mu.Unlock()

	if connected {
		if err := c.sendJoin(cmd); err != nil {
			c.logger.Warn("failed to send room join", "room", room, "error", err)
		}
	} else {
		c.logger.Debug("join queued until connected", "room", room)
	}

	return ack
}

// On registers a callback for an event type and returns its idempotent
// unsubscribe function. Callbacks run in registration order.
func (c *ConnectionManager) On(eventType string, fn Handler) func() {
	return c.subs.On(eventType, fn)
}

// Close tears the connection down and stops reconnection. Pending join
// acknowledgments never resolve after Close.
func (c *ConnectionManager) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.done)
	conn := c.conn
	c.conn = nil
	c.state = StateDisconnected
	c.waiters = make(map[string][]chan JoinAck)
	c.mu.Unlock()

	if conn != nil {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = conn.Close()
	}
}

// clientMessage is the wire format for commands sent to the broker.
type clientMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// serverEvent is the wire format for frames received from the broker.
type serverEvent struct {
	Type    string          `json:"type"`
	Room    string          `json:"room,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func (c *ConnectionManager) sendJoin(cmd joinCommand) error {
	var msg clientMessage
	switch cmd.role {
	case RoleProvider:
		msg = clientMessage{Type: "join-provider-room", Payload: map[string]string{"providerId": cmd.id}}
	case RoleCustomer:
		msg = clientMessage{Type: "join-customer-room", Payload: map[string]string{"customerId": cmd.id}}
	default:
		return fmt.Errorf("unknown role %q", cmd.role)
	}
	return c.write(msg)
}

func (c *ConnectionManager) write(msg clientMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return fmt.Errorf("not connected")
	}
	err = conn.WriteMessage(websocket.TextMessage, data)
	c.mu.Unlock()
	return err
}

// readLoop reads frames until the connection drops, then hands off to
// the reconnect loop. There is exactly one read loop per connection, so
// reconnects never stack duplicate bindings.
func (c *ConnectionManager) readLoop(conn *websocket.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("broker read error", "error", err)
			}
			break
		}

		var ev serverEvent
		if err := json.Unmarshal(message, &ev); err != nil {
			c.logger.Warn("failed to unmarshal broker frame", "error", err)
			continue
		}

		c.handleEvent(ev)
	}

	c.mu.Lock()
	// A stale loop from an already-replaced connection must not touch state.
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.state = StateDisconnected
	// Pending acks can no longer arrive on this connection; drop their
	// waiters so they do not accumulate. The channels stay silent, which
	// is the documented "membership unknown" outcome, and the reconnect
	// replay re-issues the joins without new waiters.
	c.waiters = make(map[string][]chan JoinAck)
	closed := c.closed
	c.mu.Unlock()

	_ = conn.Close()

	if closed {
		return
	}

	c.logger.Info("connection lost, reconnecting")
	go c.reconnectLoop()
}

// handleEvent resolves join acknowledgments and dispatches every event
// to the subscriber registry.
func (c *ConnectionManager) handleEvent(ev serverEvent) {
	switch ev.Type {
	case "room-joined", "customer-room-joined":
		var ackPayload struct {
			Room       string `json:"room"`
			ProviderID string `json:"providerId"`
			CustomerID string `json:"customerId"`
			RoomSize   int    `json:"roomSize"`
		}
		if err := json.Unmarshal(ev.Payload, &ackPayload); err != nil {
			c.logger.Warn("failed to unmarshal join ack", "error", err)
			break
		}

		id := ackPayload.ProviderID
		if id == "" {
			id = ackPayload.CustomerID
		}
		ack := JoinAck{Room: ackPayload.Room, ID: id, RoomSize: ackPayload.RoomSize}

		c.mu.Lock()
		waiters := c.waiters[ack.Room]
		delete(c.waiters, ack.Room)
		c.mu.Unlock()

		for _, ch := range waiters {
			ch <- ack
		}

		c.logger.Debug("room join acknowledged", "room", ack.Room, "room_size", ack.RoomSize)
	}

	c.subs.Dispatch(ev.Type, ev.Payload)
}

// reconnectLoop dials with capped exponential backoff until the
// connection is back or the manager is closed. A successful dial goes
// through the same Connected transition as the initial connect, so the
// desired room set is replayed.
func (c *ConnectionManager) reconnectLoop() {
	backoff := initialBackoff

	for {
		c.mu.Lock()
		if c.closed || c.state != StateDisconnected {
			c.mu.Unlock()
			return
		}
		c.state = StateConnecting
		c.mu.Unlock()

		conn, _, err := c.dialer.Dial(c.url, nil)
		if err == nil {
			c.onConnected(conn)
			return
		}

		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()

		c.logger.Warn("reconnect attempt failed", "error", err, "retry_in", backoff.String())

		select {
		case <-time.After(backoff):
		case <-c.done:
			return
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
