package handlers

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeedEnvelope_MintsDeliveryID(t *testing.T) {
	first := newWSMessage("message", "payload")
	second := newWSMessage("message", "payload")

	_, err := uuid.Parse(first.ID)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, "message", first.Type)
	assert.Equal(t, "payload", first.Payload)
}

func TestHub_BroadcastWithoutClients(t *testing.T) {
	hub := NewHub()

	// Must be a no-op, not a panic.
	hub.Broadcast("message", "payload")
	assert.Zero(t, hub.ClientCount())
}
