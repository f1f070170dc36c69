package service

import (
	"testing"

	"github.com/berfenger/doorbell2mqtt/internal/adapter/platform"
	"github.com/berfenger/doorbell2mqtt/internal/core/domain"
	"github.com/berfenger/doorbell2mqtt/internal/core/port"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func registeredBell(t *testing.T) (*platform.MemoryPlatform, *platform.MemoryThing) {
	p := platform.NewMemoryPlatform()
	reg := NewDeviceRegistry(doorbellNode(), doorbellThings(), zap.NewNop())
	reg.Initialize(p, port.NodeListener{}, port.ThingListener{})
	bell := p.Node(NODE_ID).Thing(BELL_ID)
	require.NotNil(t, bell)
	return p, bell
}

func TestPublishWhenConnected(t *testing.T) {

	_, bell := registeredBell(t)
	pub := NewTelemetryPublisher(zap.NewNop())

	assert.True(t, pub.Publish(domain.ConnectionConnected, bell, "RINGING"))
	assert.Equal(t, []string{"RINGING"}, bell.Sent())
}

func TestPublishWhenDisconnectedIsNoop(t *testing.T) {

	_, bell := registeredBell(t)
	pub := NewTelemetryPublisher(zap.NewNop())

	for _, state := range []domain.ConnectionState{
		domain.ConnectionIdle,
		domain.ConnectionConnecting,
		domain.ConnectionDisconnected,
		domain.ConnectionVersionError,
	} {
		assert.False(t, pub.Publish(state, bell, "RINGING"), state.String())
	}
	assert.Empty(t, bell.Sent(), "nothing is sent while not connected")
}

func TestPublishSendFailureIsSoft(t *testing.T) {

	p, bell := registeredBell(t)
	p.SetSendFailure(true)
	pub := NewTelemetryPublisher(zap.NewNop())

	assert.NotPanics(t, func() {
		assert.False(t, pub.Publish(domain.ConnectionConnected, bell, "RINGING"))
	})
	assert.Empty(t, bell.Sent())

	// next event is independent of the failed one
	p.SetSendFailure(false)
	assert.True(t, pub.Publish(domain.ConnectionConnected, bell, "RINGING"))
	assert.Equal(t, []string{"RINGING"}, bell.Sent())
}

func TestPublishWithoutThing(t *testing.T) {

	pub := NewTelemetryPublisher(zap.NewNop())

	assert.False(t, pub.Publish(domain.ConnectionConnected, nil, "RINGING"))
}
