package http

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	wsAdapter "github.com/prontofix/realtime-broker/internal/adapters/primary/websocket"
	"github.com/prontofix/realtime-broker/internal/config"
)

// wsFrame mirrors the broker's outbound wire format for assertions.
type wsFrame struct {
	Type    string          `json:"type"`
	Room    string          `json:"room"`
	Payload json.RawMessage `json:"payload"`
}

func startBroker(t *testing.T) (*httptest.Server, *wsAdapter.Hub) {
	t.Helper()

	logger := testLogger()
	cfg := &config.Config{
		WebSocket: config.WebSocketConfig{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			PingInterval:    54 * time.Second,
			PongWait:        60 * time.Second,
		},
		App: config.AppConfig{Environment: "development"},
	}

	hub := wsAdapter.NewHub(logger)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = hub.Run(ctx) }()

	errorHandler := NewErrorHandler(logger)
	emitHandler := NewEmitHandler(hub, errorHandler, logger)
	wsHandler := NewWebSocketHandler(hub, cfg, logger)

	r := chi.NewRouter()
	r.Get("/ws", wsHandler.ServeHTTP)
	emitHandler.RegisterRoutes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, hub
}

func dialBroker(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) wsFrame {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, message, err := conn.ReadMessage()
	require.NoError(t, err)

	var frame wsFrame
	require.NoError(t, json.Unmarshal(message, &frame))
	return frame
}

func sendCommand(t *testing.T, conn *websocket.Conn, msgType string, payload any) {
	t.Helper()

	data, err := json.Marshal(map[string]any{"type": msgType, "payload": payload})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

func TestJoinBeforeEmitDelivery(t *testing.T) {
	srv, _ := startBroker(t)
	conn := dialBroker(t, srv)

	// Join and wait for the acknowledgment before emitting
	sendCommand(t, conn, "join-provider-room", map[string]string{"providerId": "P1"})

	ack := readFrame(t, conn)
	require.Equal(t, "room-joined", ack.Type)
	assert.Equal(t, "provider-P1", ack.Room)

	var ackPayload struct {
		Room       string `json:"room"`
		ProviderID string `json:"providerId"`
		RoomSize   int    `json:"roomSize"`
	}
	require.NoError(t, json.Unmarshal(ack.Payload, &ackPayload))
	assert.Equal(t, "P1", ackPayload.ProviderID)
	assert.Equal(t, 1, ackPayload.RoomSize)

	resp, err := srv.Client().Post(srv.URL+"/emit-booking", "application/json",
		strings.NewReader(`{"providerId":"P1","bookingData":{"jobCardId":"J1"}}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	var emitResp EmitBookingResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&emitResp))
	assert.True(t, emitResp.Success)
	assert.Equal(t, 1, emitResp.RoomSize)

	event := readFrame(t, conn)
	require.Equal(t, "new-booking", event.Type)

	var booking struct {
		JobCardID string `json:"jobCardId"`
	}
	require.NoError(t, json.Unmarshal(event.Payload, &booking))
	assert.Equal(t, "J1", booking.JobCardID)
}

func TestIdempotentJoinAcksBothAttempts(t *testing.T) {
	srv, hub := startBroker(t)
	conn := dialBroker(t, srv)

	sendCommand(t, conn, "join-provider-room", map[string]string{"providerId": "P1"})
	first := readFrame(t, conn)
	require.Equal(t, "room-joined", first.Type)

	sendCommand(t, conn, "join-provider-room", map[string]string{"providerId": "P1"})
	second := readFrame(t, conn)
	require.Equal(t, "room-joined", second.Type)

	var ackPayload struct {
		RoomSize int `json:"roomSize"`
	}
	require.NoError(t, json.Unmarshal(second.Payload, &ackPayload))
	assert.Equal(t, 1, ackPayload.RoomSize)
	assert.Equal(t, 1, hub.RoomSize("provider-P1"))
}

func TestServiceCompletedRoundTrip(t *testing.T) {
	srv, _ := startBroker(t)
	conn := dialBroker(t, srv)

	sendCommand(t, conn, "join-customer-room", map[string]string{"customerId": "C1"})
	ack := readFrame(t, conn)
	require.Equal(t, "customer-room-joined", ack.Type)
	assert.Equal(t, "customer-C1", ack.Room)

	resp, err := srv.Client().Post(srv.URL+"/emit-service-completed", "application/json",
		strings.NewReader(`{"customerId":"C1","jobCardId":"jc1","consultationId":"con1","providerName":"Bob","serviceType":"AC Repair"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	var emitResp EmitServiceCompletedResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&emitResp))
	assert.True(t, emitResp.Success)
	assert.Equal(t, 1, emitResp.RoomSize)
	assert.Equal(t, "customer-C1", emitResp.RoomName)

	event := readFrame(t, conn)
	require.Equal(t, "service-completed", event.Type)

	var payload struct {
		JobCardID      string `json:"jobCardId"`
		ConsultationID string `json:"consultationId"`
		ProviderName   string `json:"providerName"`
		ServiceType    string `json:"serviceType"`
	}
	require.NoError(t, json.Unmarshal(event.Payload, &payload))
	assert.Equal(t, "jc1", payload.JobCardID)
	assert.Equal(t, "con1", payload.ConsultationID)
	assert.Equal(t, "Bob", payload.ProviderName)
	assert.Equal(t, "AC Repair", payload.ServiceType)
}

func TestDisconnectLeavesAllRooms(t *testing.T) {
	srv, hub := startBroker(t)
	conn := dialBroker(t, srv)

	sendCommand(t, conn, "join-customer-room", map[string]string{"customerId": "C9"})
	_ = readFrame(t, conn)
	require.Equal(t, 1, hub.RoomSize("customer-C9"))

	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		return hub.RoomSize("customer-C9") == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestUnknownCommandIsIgnored(t *testing.T) {
	srv, hub := startBroker(t)
	conn := dialBroker(t, srv)

	sendCommand(t, conn, "leave-room", map[string]string{"room": "provider-P1"})
	sendCommand(t, conn, "join-provider-room", map[string]string{"providerId": "P1"})

	// The unknown command produces no reply; the next frame is the ack
	ack := readFrame(t, conn)
	assert.Equal(t, "room-joined", ack.Type)
	assert.Equal(t, 1, hub.RoomSize("provider-P1"))
}
