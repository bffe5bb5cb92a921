package ports

import "github.com/prontofix/realtime-broker/internal/core/domain"

// EventBroadcaster is the producer-facing port into the broker. The
// ingestion handlers never touch room membership directly; the returned
// size is the only visibility they get.
type EventBroadcaster interface {
	// EmitToRoom fans the event out to every current member of the room
	// and returns the room size at emit time. Size 0 means no live
	// member; it is not an error.
	EmitToRoom(room string, event domain.Event) int
}
