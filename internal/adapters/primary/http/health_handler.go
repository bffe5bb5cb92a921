package http

import (
	"net/http"
	"runtime"
	"time"
)

// HubStats exposes the broker's connection counters for health reporting
type HubStats interface {
	ClientCount() int
	RoomCount() int
}

// HealthHandler handles liveness and health check requests
type HealthHandler struct {
	hub       HubStats
	startTime time.Time
	version   string
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(hub HubStats, version string) *HealthHandler {
	return &HealthHandler{
		hub:       hub,
		startTime: time.Now(),
		version:   version,
	}
}

// HealthResponse represents the detailed health check response
type HealthResponse struct {
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
	Version     string `json:"version,omitempty"`
	Uptime      string `json:"uptime,omitempty"`
	Connections int    `json:"connections"`
	Rooms       int    `json:"rooms"`
	Goroutines  int    `json:"goroutines"`
	Memory      struct {
		Alloc      uint64 `json:"alloc_bytes"`
		TotalAlloc uint64 `json:"total_alloc_bytes"`
		Sys        uint64 `json:"sys_bytes"`
		NumGC      uint32 `json:"num_gc"`
	} `json:"memory"`
}

// HandleRoot handles the liveness probe on GET /. Producers and load
// balancers use it to confirm the broker is accepting traffic.
func (h *HealthHandler) HandleRoot(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

// HandleHealth handles detailed health check requests (for monitoring/debugging)
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	response := HealthResponse{
		Status:      "healthy",
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		Version:     h.version,
		Uptime:      time.Since(h.startTime).Round(time.Second).String(),
		Connections: h.hub.ClientCount(),
		Rooms:       h.hub.RoomCount(),
		Goroutines:  runtime.NumGoroutine(),
	}
	response.Memory.Alloc = memStats.Alloc
	response.Memory.TotalAlloc = memStats.TotalAlloc
	response.Memory.Sys = memStats.Sys
	response.Memory.NumGC = memStats.NumGC

	WriteJSON(w, http.StatusOK, response)
}
