package http

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	stdhttp "net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prontofix/realtime-broker/internal/core/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeBroker records emits and returns a configured room size.
type fakeBroker struct {
	size  int
	emits []domain.Event
	rooms []string
}

func (f *fakeBroker) EmitToRoom(room string, event domain.Event) int {
	f.rooms = append(f.rooms, room)
	f.emits = append(f.emits, event)
	return f.size
}

func newEmitRouter(broker *fakeBroker) *chi.Mux {
	logger := testLogger()
	handler := NewEmitHandler(broker, NewErrorHandler(logger), logger)

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r
}

func postJSON(t *testing.T, router stdhttp.Handler, path string, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(stdhttp.MethodPost, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	return recorder
}

func TestEmitBooking(t *testing.T) {
	t.Parallel()

	broker := &fakeBroker{size: 2}
	router := newEmitRouter(broker)

	recorder := postJSON(t, router, "/emit-booking",
		`{"providerId":"p1","bookingData":{"jobCardId":"J1","serviceType":"Plumbing"}}`)

	require.Equal(t, stdhttp.StatusOK, recorder.Code)

	var response EmitBookingResponse
	require.NoError(t, json.NewDecoder(recorder.Body).Decode(&response))
	assert.True(t, response.Success)
	assert.Equal(t, 2, response.RoomSize)

	require.Len(t, broker.emits, 1)
	assert.Equal(t, []string{"provider-p1"}, broker.rooms)
	assert.Equal(t, domain.EventNewBooking, broker.emits[0].Type)
}

func TestEmitBookingAcceptsLegacyDoctorID(t *testing.T) {
	t.Parallel()

	broker := &fakeBroker{size: 1}
	router := newEmitRouter(broker)

	recorder := postJSON(t, router, "/emit-booking",
		`{"doctorId":"p7","bookingData":{"jobCardId":"J9"}}`)

	require.Equal(t, stdhttp.StatusOK, recorder.Code)
	assert.Equal(t, []string{"provider-p7"}, broker.rooms)
}

func TestEmitBookingValidationRejectsPartialPayloads(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{"missing provider id", `{"bookingData":{"jobCardId":"J1"}}`},
		{"missing booking data", `{"providerId":"p1"}`},
		{"null booking data", `{"providerId":"p1","bookingData":null}`},
		{"malformed json", `{"providerId":`},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			broker := &fakeBroker{size: 1}
			router := newEmitRouter(broker)

			recorder := postJSON(t, router, "/emit-booking", tc.body)

			require.Equal(t, stdhttp.StatusBadRequest, recorder.Code)

			var response ErrorResponse
			require.NoError(t, json.NewDecoder(recorder.Body).Decode(&response))
			assert.False(t, response.Success)
			assert.NotEmpty(t, response.Error)

			// Validation failures never reach the broker
			assert.Empty(t, broker.emits)
		})
	}
}

func TestEmitBookingEmptyRoomIsNotAnError(t *testing.T) {
	t.Parallel()

	broker := &fakeBroker{size: 0}
	router := newEmitRouter(broker)

	recorder := postJSON(t, router, "/emit-booking",
		`{"providerId":"p404","bookingData":{"jobCardId":"J1"}}`)

	require.Equal(t, stdhttp.StatusOK, recorder.Code)

	var response EmitBookingResponse
	require.NoError(t, json.NewDecoder(recorder.Body).Decode(&response))
	assert.True(t, response.Success)
	assert.Equal(t, 0, response.RoomSize)
}

func TestEmitServiceCompleted(t *testing.T) {
	t.Parallel()

	broker := &fakeBroker{size: 1}
	router := newEmitRouter(broker)

	recorder := postJSON(t, router, "/emit-service-completed",
		`{"customerId":"c1","jobCardId":"jc1","consultationId":"con1","providerName":"Bob","serviceType":"AC Repair"}`)

	require.Equal(t, stdhttp.StatusOK, recorder.Code)

	var response EmitServiceCompletedResponse
	require.NoError(t, json.NewDecoder(recorder.Body).Decode(&response))
	assert.True(t, response.Success)
	assert.Equal(t, 1, response.RoomSize)
	assert.Equal(t, "customer-c1", response.RoomName)

	require.Len(t, broker.emits, 1)
	payload, ok := broker.emits[0].Payload.(domain.ServiceCompleted)
	require.True(t, ok)
	assert.Equal(t, "jc1", payload.JobCardID)
	assert.Equal(t, "con1", payload.ConsultationID)
	assert.Equal(t, "Bob", payload.ProviderName)
	assert.Equal(t, "AC Repair", payload.ServiceType)
}

func TestEmitServiceCompletedToUnknownCustomerSucceeds(t *testing.T) {
	t.Parallel()

	broker := &fakeBroker{size: 0}
	router := newEmitRouter(broker)

	recorder := postJSON(t, router, "/emit-service-completed",
		`{"customerId":"cust-404","jobCardId":"jc1","consultationId":"con1","providerName":"Bob","serviceType":"AC Repair"}`)

	require.Equal(t, stdhttp.StatusOK, recorder.Code)

	var response EmitServiceCompletedResponse
	require.NoError(t, json.NewDecoder(recorder.Body).Decode(&response))
	assert.True(t, response.Success)
	assert.Equal(t, 0, response.RoomSize)
	assert.Equal(t, "customer-cust-404", response.RoomName)
}

func TestEmitServiceCompletedValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{"missing customer id", `{"jobCardId":"jc1","consultationId":"con1"}`},
		{"missing job card id", `{"customerId":"c1","consultationId":"con1"}`},
		{"missing consultation id", `{"customerId":"c1","jobCardId":"jc1"}`},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			broker := &fakeBroker{size: 1}
			router := newEmitRouter(broker)

			recorder := postJSON(t, router, "/emit-service-completed", tc.body)

			require.Equal(t, stdhttp.StatusBadRequest, recorder.Code)

			var response ErrorResponse
			require.NoError(t, json.NewDecoder(recorder.Body).Decode(&response))
			assert.False(t, response.Success)
			assert.Empty(t, broker.emits)
		})
	}
}

func TestHealthRoot(t *testing.T) {
	t.Parallel()

	handler := NewHealthHandler(stubStats{}, "test")

	req := httptest.NewRequest(stdhttp.MethodGet, "/", nil)
	recorder := httptest.NewRecorder()
	handler.HandleRoot(recorder, req)

	require.Equal(t, stdhttp.StatusOK, recorder.Code)

	var response StatusResponse
	require.NoError(t, json.NewDecoder(recorder.Body).Decode(&response))
	assert.Equal(t, "ok", response.Status)
}

type stubStats struct{}

func (stubStats) ClientCount() int { return 0 }
func (stubStats) RoomCount() int   { return 0 }
