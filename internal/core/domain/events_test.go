package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/prontofix/realtime-broker/internal/core/domain"
)

func TestRoomName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "provider-p1", domain.RoomName(domain.RoleProvider, "p1"))
	assert.Equal(t, "customer-c1", domain.RoomName(domain.RoleCustomer, "c1"))

	// Two different addressees never collide
	assert.NotEqual(t,
		domain.RoomName(domain.RoleProvider, "42"),
		domain.RoomName(domain.RoleCustomer, "42"),
	)

	// Deterministic
	assert.Equal(t,
		domain.RoomName(domain.RoleProvider, "p1"),
		domain.RoomName(domain.RoleProvider, "p1"),
	)
}
