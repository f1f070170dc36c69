package actor

import (
	"errors"
	"testing"
	"time"

	"github.com/berfenger/doorbell2mqtt/internal/adapter/platform"
	"github.com/berfenger/doorbell2mqtt/internal/config"
	"github.com/berfenger/doorbell2mqtt/internal/core/domain"
	"github.com/berfenger/doorbell2mqtt/internal/util"
	"github.com/berfenger/doorbell2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	NODE_ID   = "Android Things Doorbell"
	BELL_ID   = "Door Bell"
	BUZZER_ID = "Alarm Buzzer"

	WATCHDOG_PERIOD = 100 * time.Millisecond
)

type supervisorFixture struct {
	system   *actor.ActorSystem
	root     *actor.RootContext
	pid      *actor.PID
	platform *platform.MemoryPlatform
	config   config.Config
}

func newSupervisorFixture(t *testing.T, p *platform.MemoryPlatform) *supervisorFixture {
	cfg := util.LoadTestConfig()
	logger := zap.NewNop()
	system := actorutil.NewActorSystemWithZapLogger(logger)

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewConnectionSupervisorActor(&cfg, p, logger)
	})
	pid, err := system.Root.SpawnNamed(props, domain.ACTOR_ID_SUPERVISOR)
	require.NoError(t, err)

	t.Cleanup(func() {
		system.Root.Stop(pid)
		system.Shutdown()
	})

	return &supervisorFixture{
		system:   system,
		root:     system.Root,
		pid:      pid,
		platform: p,
		config:   cfg,
	}
}

func (f *supervisorFixture) status(t *testing.T) domain.SupervisorStatus {
	res, err := f.root.RequestFuture(f.pid, domain.GetStatusRequest{}, time.Second).Result()
	require.NoError(t, err)
	resp, ok := res.(domain.GetStatusResponse)
	require.True(t, ok)
	return resp.Status
}

func (f *supervisorFixture) waitForState(t *testing.T, state domain.ConnectionState) {
	require.Eventually(t, func() bool {
		return f.status(t).State == state
	}, 2*time.Second, 10*time.Millisecond, "state %s not reached", state)
}

func (f *supervisorFixture) publish(t *testing.T, value string) bool {
	res, err := f.root.RequestFuture(f.pid, domain.PublishTelemetryRequest{Value: value}, 3*time.Second).Result()
	require.NoError(t, err)
	resp, ok := res.(domain.PublishTelemetryResponse)
	require.True(t, ok)
	return resp.Sent
}

func TestSupervisorLifecycle(t *testing.T) {

	require := require.New(t)

	p := platform.NewMemoryPlatform()
	p.SetAutoConnect(true)
	f := newSupervisorFixture(t, p)

	f.root.Send(f.pid, domain.StartRequest{})
	f.waitForState(t, domain.ConnectionConnected)

	// node and both things are registered and online
	node := p.Node(NODE_ID)
	require.NotNil(node)
	require.True(node.IsRegistered())
	for _, id := range []string{BELL_ID, BUZZER_ID} {
		thing := node.Thing(id)
		require.NotNil(thing, id)
		require.True(thing.IsRegistered(), id)
		connected, _ := thing.Connected()
		require.True(connected, id)
	}

	require.True(f.publish(t, config.DOORBELL_RING_VALUE))
	require.Equal([]string{"RINGING"}, node.Thing(BELL_ID).Sent())

	// a disconnect is followed by an automatic reconnect once the watchdog fires
	require.True(p.TriggerDisconnected())
	require.Eventually(func() bool {
		return p.ConnectCalls() == 2
	}, 10*WATCHDOG_PERIOD, 10*time.Millisecond)
	f.waitForState(t, domain.ConnectionConnected)

	// registration is idempotent across reconnects
	require.Equal(1, node.RegisterCalls())
	require.Equal(1, node.Thing(BELL_ID).RegisterCalls())
	require.Equal(1, node.Thing(BUZZER_ID).RegisterCalls())

	st := f.status(t)
	require.EqualValues(2, st.ConnectAttempts)
	require.NotNil(st.Node)
	require.True(st.Node.Registered)
	require.True(st.Node.Connected)
	require.Len(st.Things, 2)
}

func TestSupervisorVersionErrorIsTerminal(t *testing.T) {

	require := require.New(t)

	p := platform.NewMemoryPlatform()
	p.SetConnectError(domain.ErrUnsupportedAgentVersion)
	f := newSupervisorFixture(t, p)

	f.root.Send(f.pid, domain.StartRequest{})
	f.waitForState(t, domain.ConnectionVersionError)

	time.Sleep(4 * WATCHDOG_PERIOD)
	require.Equal(1, p.ConnectCalls(), "watchdog never restarts after a version error")

	// manual starts are ignored too
	f.root.Send(f.pid, domain.StartRequest{})
	time.Sleep(2 * WATCHDOG_PERIOD)
	require.Equal(1, p.ConnectCalls())

	st := f.status(t)
	require.Equal(domain.ConnectionVersionError, st.State)
	require.False(st.WatchdogPending)
	require.Nil(st.Node, "nothing is registered")

	require.False(f.publish(t, "RINGING"))
}

func TestSupervisorSDKVersionError(t *testing.T) {

	p := platform.NewMemoryPlatform()
	p.SetConnectError(domain.ErrUnsupportedSDKVersion)
	f := newSupervisorFixture(t, p)

	f.root.Send(f.pid, domain.StartRequest{})
	f.waitForState(t, domain.ConnectionVersionError)

	time.Sleep(3 * WATCHDOG_PERIOD)
	assert.Equal(t, 1, p.ConnectCalls())
}

func TestSupervisorRetriesBuildErrors(t *testing.T) {

	p := platform.NewMemoryPlatform()
	p.SetConnectError(errors.New("connection refused"))
	f := newSupervisorFixture(t, p)

	f.root.Send(f.pid, domain.StartRequest{})

	require.Eventually(t, func() bool {
		return p.ConnectCalls() >= 3
	}, 10*WATCHDOG_PERIOD, 10*time.Millisecond, "non version errors are retried")
	assert.Equal(t, domain.ConnectionDisconnected, f.status(t).State)
}

func TestSupervisorSingleWatchdog(t *testing.T) {

	require := require.New(t)

	p := platform.NewMemoryPlatform()
	f := newSupervisorFixture(t, p)

	f.root.Send(f.pid, domain.StartRequest{})
	f.waitForState(t, domain.ConnectionConnecting)
	require.Equal(1, p.ConnectCalls())

	// a burst of disconnects reschedules the same watchdog
	for i := 0; i < 5; i++ {
		require.True(p.TriggerDisconnected())
	}
	f.waitForState(t, domain.ConnectionDisconnected)
	require.True(f.status(t).WatchdogPending)

	time.Sleep(WATCHDOG_PERIOD + WATCHDOG_PERIOD/2)
	require.Equal(2, p.ConnectCalls(), "exactly one reconnect per watchdog period")
	require.True(f.status(t).WatchdogPending)
}

func TestSupervisorInitializesOnEveryConnect(t *testing.T) {

	require := require.New(t)

	p := platform.NewMemoryPlatform()
	f := newSupervisorFixture(t, p)

	f.root.Send(f.pid, domain.StartRequest{})
	f.waitForState(t, domain.ConnectionConnecting)
	require.True(p.TriggerConnected())
	f.waitForState(t, domain.ConnectionConnected)

	// a manual start while connected builds a new connection
	f.root.Send(f.pid, domain.StartRequest{})
	f.waitForState(t, domain.ConnectionConnecting)
	require.True(p.TriggerConnected())
	f.waitForState(t, domain.ConnectionConnected)
	node := p.Node(NODE_ID)
	require.Equal(4, node.CreateThingCalls(), "things are looked up again on every connect")
	require.Equal(1, node.RegisterCalls())
}

func TestSupervisorDispatchesActions(t *testing.T) {

	require := require.New(t)

	p := platform.NewMemoryPlatform()
	p.SetAutoConnect(true)
	f := newSupervisorFixture(t, p)

	commands := make(chan bool, 4)
	f.root.Send(f.pid, domain.SetActionListenerRequest{
		Listener: func(unlock bool) {
			commands <- unlock
		},
	})
	f.root.Send(f.pid, domain.StartRequest{})
	f.waitForState(t, domain.ConnectionConnected)

	require.True(p.DeliverAction(NODE_ID, BUZZER_ID, `{"state":"1"}`))
	require.True(<-commands, "unlock")

	require.True(p.DeliverAction(NODE_ID, BUZZER_ID, `{"state":"0"}`))
	require.False(<-commands, "lock")

	// unknown states, malformed payloads and sensors never reach the listener
	require.True(p.DeliverAction(NODE_ID, BUZZER_ID, `{"state":"7"}`))
	require.True(p.DeliverAction(NODE_ID, BUZZER_ID, `not json`))
	require.True(p.DeliverAction(NODE_ID, BELL_ID, `{"state":"1"}`))
	select {
	case cmd := <-commands:
		t.Fatalf("unexpected command %t", cmd)
	case <-time.After(2 * WATCHDOG_PERIOD):
	}

	// clearing the listener drops commands
	f.root.Send(f.pid, domain.SetActionListenerRequest{})
	require.True(p.DeliverAction(NODE_ID, BUZZER_ID, `{"state":"1"}`))
	select {
	case cmd := <-commands:
		t.Fatalf("unexpected command %t", cmd)
	case <-time.After(2 * WATCHDOG_PERIOD):
	}
}

func TestSupervisorPublishWhileDisconnected(t *testing.T) {

	require := require.New(t)

	p := platform.NewMemoryPlatform()
	f := newSupervisorFixture(t, p)

	require.False(f.publish(t, "RINGING"), "idle")

	f.root.Send(f.pid, domain.StartRequest{})
	f.waitForState(t, domain.ConnectionConnecting)
	require.True(p.TriggerConnected())
	f.waitForState(t, domain.ConnectionConnected)
	require.True(p.TriggerDisconnected())
	f.waitForState(t, domain.ConnectionDisconnected)

	require.False(f.publish(t, "RINGING"), "disconnected")
	require.Empty(p.Node(NODE_ID).Thing(BELL_ID).Sent())
}

func TestSupervisorPublishSendFailure(t *testing.T) {

	require := require.New(t)

	p := platform.NewMemoryPlatform()
	p.SetAutoConnect(true)
	p.SetSendFailure(true)
	f := newSupervisorFixture(t, p)

	f.root.Send(f.pid, domain.StartRequest{})
	f.waitForState(t, domain.ConnectionConnected)

	require.False(f.publish(t, "RINGING"))

	// later sends are independent of the failed one
	p.SetSendFailure(false)
	require.True(f.publish(t, "RINGING"))
}

func TestSupervisorHealth(t *testing.T) {

	p := platform.NewMemoryPlatform()
	p.SetAutoConnect(true)
	f := newSupervisorFixture(t, p)

	res, err := f.root.RequestFuture(f.pid, domain.ActorHealthRequest{}, time.Second).Result()
	require.NoError(t, err)
	health, ok := res.(domain.ActorHealthResponse)
	require.True(t, ok)
	assert.False(t, health.Healthy)
	assert.Equal(t, "idle", health.State)

	f.root.Send(f.pid, domain.StartRequest{})
	f.waitForState(t, domain.ConnectionConnected)

	res, err = f.root.RequestFuture(f.pid, domain.ActorHealthRequest{}, time.Second).Result()
	require.NoError(t, err)
	health = res.(domain.ActorHealthResponse)
	assert.True(t, health.Healthy)
	assert.Equal(t, domain.ACTOR_ID_SUPERVISOR, health.Id)
	assert.Equal(t, "connected", health.State)
}
