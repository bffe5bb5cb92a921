package client

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubscribersDispatchInRegistrationOrder(t *testing.T) {
	t.Parallel()

	registry := NewSubscriberRegistry(testLogger())

	var order []int
	registry.On("service-completed", func(json.RawMessage) { order = append(order, 1) })
	registry.On("service-completed", func(json.RawMessage) { order = append(order, 2) })
	registry.On("service-completed", func(json.RawMessage) { order = append(order, 3) })

	registry.Dispatch("service-completed", nil)

	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestSubscribersPerCallbackIsolation(t *testing.T) {
	t.Parallel()

	registry := NewSubscriberRegistry(testLogger())

	var got json.RawMessage
	registry.On("service-completed", func(json.RawMessage) { panic("boom") })
	registry.On("service-completed", func(payload json.RawMessage) { got = payload })

	payload := json.RawMessage(`{"jobCardId":"jc1"}`)
	registry.Dispatch("service-completed", payload)

	// The panic in the first callback must not starve the second
	assert.Equal(t, payload, got)
}

func TestSubscribersUnsubscribeIsIdempotent(t *testing.T) {
	t.Parallel()

	registry := NewSubscriberRegistry(testLogger())

	calls := 0
	off := registry.On("service-completed", func(json.RawMessage) { calls++ })
	assert.Equal(t, 1, registry.Count("service-completed"))

	off()
	off() // second call is a no-op

	registry.Dispatch("service-completed", nil)
	assert.Zero(t, calls)
	assert.Zero(t, registry.Count("service-completed"))
}

func TestSubscribersScopedPerEventType(t *testing.T) {
	t.Parallel()

	registry := NewSubscriberRegistry(testLogger())

	var bookings, completions int
	registry.On("new-booking", func(json.RawMessage) { bookings++ })
	registry.On("service-completed", func(json.RawMessage) { completions++ })

	registry.Dispatch("new-booking", nil)
	registry.Dispatch("new-booking", nil)

	assert.Equal(t, 2, bookings)
	assert.Zero(t, completions)
}

func TestSubscribersUnsubscribeMiddleKeepsOrder(t *testing.T) {
	t.Parallel()

	registry := NewSubscriberRegistry(testLogger())

	var order []int
	registry.On("new-booking", func(json.RawMessage) { order = append(order, 1) })
	offMiddle := registry.On("new-booking", func(json.RawMessage) { order = append(order, 2) })
	registry.On("new-booking", func(json.RawMessage) { order = append(order, 3) })

	offMiddle()
	registry.Dispatch("new-booking", nil)

	assert.Equal(t, []int{1, 3}, order)
}
