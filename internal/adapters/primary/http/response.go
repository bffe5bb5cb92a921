package http

import (
	"encoding/json"
	"net/http"
)

// EmitBookingResponse is returned by POST /emit-booking. RoomSize is a
// weak delivery signal: 0 means no live provider connection received
// the event.
type EmitBookingResponse struct {
	Success  bool `json:"success"`
	RoomSize int  `json:"roomSize"`
}

// EmitServiceCompletedResponse is returned by POST /emit-service-completed.
type EmitServiceCompletedResponse struct {
	Success  bool   `json:"success"`
	RoomSize int    `json:"roomSize"`
	RoomName string `json:"roomName"`
}

// StatusResponse is the liveness probe body.
type StatusResponse struct {
	Status string `json:"status"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
