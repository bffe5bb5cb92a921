package http

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/prontofix/realtime-broker/internal/core/domain"
	apperrors "github.com/prontofix/realtime-broker/internal/core/errors"
	"github.com/prontofix/realtime-broker/internal/core/ports"
)

// EmitHandler is the synchronous ingestion boundary for producers. It
// validates the event, resolves the target room, and fans the event out
// through the broker. Producers only ever see room membership through
// the roomSize in the response.
type EmitHandler struct {
	broker       ports.EventBroadcaster
	errorHandler *ErrorHandler
	logger       *slog.Logger
}

// NewEmitHandler creates a new ingestion handler
func NewEmitHandler(broker ports.EventBroadcaster, errorHandler *ErrorHandler, logger *slog.Logger) *EmitHandler {
	return &EmitHandler{
		broker:       broker,
		errorHandler: errorHandler,
		logger:       logger.With("component", "emit_handler"),
	}
}

// RegisterRoutes registers the ingestion routes
func (h *EmitHandler) RegisterRoutes(r chi.Router) {
	r.Post("/emit-booking", h.HandleEmitBooking)
	r.Post("/emit-service-completed", h.HandleEmitServiceCompleted)
}

// EmitBookingRequest is the body of POST /emit-booking. DoctorID is a
// legacy alias for ProviderID kept for older producer deployments.
type EmitBookingRequest struct {
	ProviderID  string          `json:"providerId"`
	DoctorID    string          `json:"doctorId"`
	BookingData json.RawMessage `json:"bookingData"`
}

// EmitServiceCompletedRequest is the body of POST /emit-service-completed.
type EmitServiceCompletedRequest struct {
	CustomerID     string `json:"customerId"`
	JobCardID      string `json:"jobCardId"`
	ConsultationID string `json:"consultationId"`
	ProviderName   string `json:"providerName"`
	ServiceType    string `json:"serviceType"`
}

// HandleEmitBooking delivers a new-booking event to the provider's room.
func (h *EmitHandler) HandleEmitBooking(w http.ResponseWriter, r *http.Request) {
	var req EmitBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorHandler.Handle(w, r, apperrors.NewBadRequestError(err, "Invalid request body"))
		return
	}

	providerID := req.ProviderID
	if providerID == "" {
		providerID = req.DoctorID
	}

	if providerID == "" {
		h.errorHandler.Handle(w, r, apperrors.NewValidationError(apperrors.ErrProviderIDRequired))
		return
	}
	if isEmptyJSON(req.BookingData) {
		h.errorHandler.Handle(w, r, apperrors.NewValidationError(apperrors.ErrBookingDataRequired))
		return
	}

	room := domain.RoomName(domain.RoleProvider, providerID)
	roomSize := h.broker.EmitToRoom(room, domain.Event{
		Type:    domain.EventNewBooking,
		Room:    room,
		Payload: req.BookingData,
	})

	if roomSize == 0 {
		// A delivery gap, not an error: the producer falls back to an
		// out-of-band notification channel.
		h.logger.Warn("no live connection in provider room, notification not delivered",
			"room", room,
			"provider_id", providerID,
		)
	}

	WriteJSON(w, http.StatusOK, EmitBookingResponse{
		Success:  true,
		RoomSize: roomSize,
	})
}

// HandleEmitServiceCompleted delivers a service-completed event to the
// customer's room.
func (h *EmitHandler) HandleEmitServiceCompleted(w http.ResponseWriter, r *http.Request) {
	var req EmitServiceCompletedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorHandler.Handle(w, r, apperrors.NewBadRequestError(err, "Invalid request body"))
		return
	}

	switch {
	case req.CustomerID == "":
		h.errorHandler.Handle(w, r, apperrors.NewValidationError(apperrors.ErrCustomerIDRequired))
		return
	case req.JobCardID == "":
		h.errorHandler.Handle(w, r, apperrors.NewValidationError(apperrors.ErrJobCardIDRequired))
		return
	case req.ConsultationID == "":
		h.errorHandler.Handle(w, r, apperrors.NewValidationError(apperrors.ErrConsultationIDRequired))
		return
	}

	room := domain.RoomName(domain.RoleCustomer, req.CustomerID)
	roomSize := h.broker.EmitToRoom(room, domain.Event{
		Type: domain.EventServiceCompleted,
		Room: room,
		Payload: domain.ServiceCompleted{
			JobCardID:      req.JobCardID,
			ConsultationID: req.ConsultationID,
			ProviderName:   req.ProviderName,
			ServiceType:    req.ServiceType,
		},
	})

	if roomSize == 0 {
		h.logger.Warn("no live connection in customer room, notification not delivered",
			"room", room,
			"customer_id", req.CustomerID,
		)
	}

	WriteJSON(w, http.StatusOK, EmitServiceCompletedResponse{
		Success:  true,
		RoomSize: roomSize,
		RoomName: room,
	})
}

// isEmptyJSON reports whether a raw JSON field is absent or null.
func isEmptyJSON(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
