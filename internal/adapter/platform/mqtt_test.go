package platform

import (
	"errors"
	"testing"
	"time"

	"github.com/berfenger/doorbell2mqtt/internal/core/domain"
	"github.com/berfenger/doorbell2mqtt/internal/core/port"
	"github.com/berfenger/doorbell2mqtt/internal/server"
	"github.com/berfenger/doorbell2mqtt/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCheckProtocolVersion(t *testing.T) {

	assert := assert.New(t)

	assert.NoError(CheckProtocolVersion(0), "default version")
	assert.NoError(CheckProtocolVersion(3))
	assert.NoError(CheckProtocolVersion(4))

	err := CheckProtocolVersion(2)
	assert.ErrorIs(err, domain.ErrUnsupportedAgentVersion)
	assert.ErrorIs(err, domain.ErrUnsupportedVersion)

	err = CheckProtocolVersion(5)
	assert.ErrorIs(err, domain.ErrUnsupportedSDKVersion)
	assert.ErrorIs(err, domain.ErrUnsupportedVersion)
}

func TestMQTTConnectVersionError(t *testing.T) {

	cfg := util.LoadTestConfig()
	cfg.MQTT.ProtocolVersion = 5
	p := NewMQTTPlatform(&cfg, zap.NewNop())

	called := false
	err := p.Connect(port.ConnectionHandler{
		OnConnected:    func() { called = true },
		OnDisconnected: func() { called = true },
	})
	require.True(t, errors.Is(err, domain.ErrUnsupportedSDKVersion))
	assert.False(t, called, "no callback after a version error")
}

func TestMQTTConnectFailureReportsDisconnected(t *testing.T) {

	cfg := util.LoadTestConfig()
	cfg.MQTT.Host = "127.0.0.1"
	cfg.MQTT.Port = 1
	p := NewMQTTPlatform(&cfg, zap.NewNop())
	defer p.Close()

	disconnected := make(chan struct{}, 1)
	err := p.Connect(port.ConnectionHandler{
		OnDisconnected: func() { disconnected <- struct{}{} },
	})
	require.NoError(t, err, "connect is asynchronous")

	select {
	case <-disconnected:
	case <-time.After(5 * time.Second):
		t.Fatal("connect failure not reported")
	}
}

func TestMQTTRegisterWithoutClient(t *testing.T) {

	require := require.New(t)

	cfg := util.LoadTestConfig()
	p := NewMQTTPlatform(&cfg, zap.NewNop())

	node := p.CreateNode(cfg.NodeSpec(), port.NodeListener{})
	require.False(node.Register(), "registration needs a connection")
	require.False(node.IsRegistered())
	require.False(node.SetConnected(true, "online"))

	thing := node.CreateThing(cfg.ThingSpecs()[0], port.ThingListener{})
	require.False(thing.SendData(domain.NewThingData("RINGING")))
	require.Same(thing, node.CreateThing(cfg.ThingSpecs()[0], port.ThingListener{}), "things are looked up by id")
}

func TestMQTTInboundMessages(t *testing.T) {

	require := require.New(t)

	cfg := util.LoadTestConfig()
	p := NewMQTTPlatform(&cfg, zap.NewNop())

	var unregisteredNode string
	node := p.CreateNode(cfg.NodeSpec(), port.NodeListener{
		OnNodeUnregistered: func(nodeId string) { unregisteredNode = nodeId },
	})

	var actions []string
	var configured port.PlatformThing
	var unregisteredThing string
	listener := port.ThingListener{
		OnActionReceived: func(nodeId string, thingId string, action domain.ThingActionData) {
			actions = append(actions, nodeId+"|"+thingId+"|"+action.Message)
		},
		OnConfigurationReceived: func(thing port.PlatformThing) { configured = thing },
		OnThingUnregistered:     func(nodeId string, thingId string) { unregisteredThing = thingId },
	}
	for _, spec := range cfg.ThingSpecs() {
		node.CreateThing(spec, listener)
	}

	p.handleMessage("doorbell/node/android_things_doorbell/thing/alarm_buzzer/action", []byte(`{"state":"1"}`))
	require.Equal([]string{`Android Things Doorbell|Alarm Buzzer|{"state":"1"}`}, actions, "ids are restored from slugs")

	p.handleMessage("doorbell/node/android_things_doorbell/thing/door_bell/config/set", []byte(`{"data_reading_frequency":15}`))
	require.NotNil(configured)
	require.Equal("Door Bell", configured.ID())
	require.EqualValues(15, configured.Configuration().DataReadingFrequency)

	p.handleMessage("doorbell/node/android_things_doorbell/thing/door_bell/config/set", []byte(`nope`))
	require.EqualValues(15, configured.Configuration().DataReadingFrequency, "invalid configuration is ignored")

	p.handleMessage("doorbell/node/android_things_doorbell/thing/door_bell/unregister", nil)
	require.Equal("Door Bell", unregisteredThing)

	p.handleMessage("doorbell/node/android_things_doorbell/unregister", nil)
	require.Equal("Android Things Doorbell", unregisteredNode)

	// unknown entities and topics are ignored
	p.handleMessage("doorbell/node/other/thing/alarm_buzzer/action", []byte(`{"state":"1"}`))
	p.handleMessage("doorbell/node/android_things_doorbell/thing/other/action", []byte(`{"state":"1"}`))
	p.handleMessage("doorbell/bridge/state", []byte(`online`))
	require.Len(actions, 1)
}

func TestMQTTRegistrationTimeoutIsBounded(t *testing.T) {

	assert := assert.New(t)

	cfg := util.LoadTestConfig()
	cfg.MQTT.TimeoutMillis = 200
	p := NewMQTTPlatform(&cfg, zap.NewNop())
	assert.Equal(200*time.Millisecond, p.registrationTimeout, "short timeouts are kept")

	cfg.MQTT.TimeoutMillis = 30000
	p = NewMQTTPlatform(&cfg, zap.NewNop())
	assert.Equal(30*time.Second, p.timeout)
	assert.Equal(MAX_REGISTRATION_TIMEOUT, p.registrationTimeout)

	// node and two things: register plus state for each
	assert.Less(6*p.registrationTimeout, server.DEFAULT_ASK_TIMEOUT)
}
