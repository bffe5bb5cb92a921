package domain

import "fmt"

// Role identifies which side of the marketplace a room addresses.
type Role string

const (
	RoleProvider Role = "provider"
	RoleCustomer Role = "customer"
)

// RoomName derives the broadcast room for an addressee. The mapping is
// deterministic: two different (role, id) pairs never share a room.
func RoomName(role Role, id string) string {
	return fmt.Sprintf("%s-%s", role, id)
}

// EventType defines the type of real-time event.
type EventType string

const (
	// Broker -> connection business events.
	EventNewBooking       EventType = "new-booking"
	EventServiceCompleted EventType = "service-completed"

	// Broker -> connection join acknowledgments.
	EventRoomJoined         EventType = "room-joined"
	EventCustomerRoomJoined EventType = "customer-room-joined"

	// Keep-alive reply to a client-level ping.
	EventPong EventType = "pong"
)

// Event is the payload sent over WebSocket.
type Event struct {
	Type    EventType   `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
	Room    string      `json:"room,omitempty"` // Used for routing to role-scoped rooms
}

// ServiceCompleted is the payload fanned out to a customer room when a
// provider marks a job card complete.
type ServiceCompleted struct {
	JobCardID      string `json:"jobCardId"`
	ConsultationID string `json:"consultationId"`
	ProviderName   string `json:"providerName,omitempty"`
	ServiceType    string `json:"serviceType,omitempty"`
}

// ProviderRoomJoined acknowledges a join-provider-room command back to
// the joining connection.
type ProviderRoomJoined struct {
	Room       string `json:"room"`
	ProviderID string `json:"providerId"`
	RoomSize   int    `json:"roomSize"`
}

// CustomerRoomJoined acknowledges a join-customer-room command.
type CustomerRoomJoined struct {
	Room       string `json:"room"`
	CustomerID string `json:"customerId"`
	RoomSize   int    `json:"roomSize"`
}
