package actor

import (
	"errors"
	"fmt"
	"time"

	"github.com/berfenger/doorbell2mqtt/internal/config"
	"github.com/berfenger/doorbell2mqtt/internal/core/domain"
	"github.com/berfenger/doorbell2mqtt/internal/core/port"
	"github.com/berfenger/doorbell2mqtt/internal/core/service"
	. "github.com/berfenger/doorbell2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

const (
	DEFAULT_WATCHDOG_PERIOD = 5000 * time.Millisecond
	DEFAULT_SEND_TIMEOUT    = 5000 * time.Millisecond
)

// ConnectionSupervisorActor owns the platform connection. It connects, retries
// through a single-shot watchdog, registers the node and its things on every
// connect and routes actions and telemetry. All of its state is only touched
// from the actor mailbox.
type ConnectionSupervisorActor struct {
	ActorWithStates
	scheduler *scheduler.TimerScheduler
	stash     *Stash
	self      *actor.PID
	send      func(any)

	config     *config.Config
	platform   port.Platform
	registry   *service.DeviceRegistry
	dispatcher *service.ActionDispatcher
	publisher  *service.TelemetryPublisher

	state           domain.ConnectionState
	connectAttempts uint64
	connection      uint64

	watchdogPeriod     time.Duration
	watchdogGeneration uint64
	watchdogCancel     scheduler.CancelFunc

	logger *zap.Logger
}

// platform callbacks, tagged with the connection they belong to

type platformConnected struct {
	connection uint64
}

type platformDisconnected struct {
	connection uint64
}

type platformActionReceived struct {
	nodeId  string
	thingId string
	action  domain.ThingActionData
}

type platformConfigurationReceived struct {
	thing port.PlatformThing
}

type platformNodeUnregistered struct {
	nodeId string
}

type platformThingUnregistered struct {
	nodeId  string
	thingId string
}

type watchdogTick struct {
	generation uint64
}

func NewConnectionSupervisorActor(cfg *config.Config, platform port.Platform, logger *zap.Logger) *ConnectionSupervisorActor {
	logger = ActorLogger(domain.ACTOR_ID_SUPERVISOR, logger)
	thingSpecs := cfg.ThingSpecs()
	period := time.Duration(cfg.Watchdog.PeriodMillis) * time.Millisecond
	if period <= 0 {
		period = DEFAULT_WATCHDOG_PERIOD
	}
	act := &ConnectionSupervisorActor{
		config:         cfg,
		platform:       platform,
		stash:          &Stash{},
		registry:       service.NewDeviceRegistry(cfg.NodeSpec(), thingSpecs, logger),
		dispatcher:     service.NewActionDispatcher(thingSpecs, logger),
		publisher:      service.NewTelemetryPublisher(logger),
		state:          domain.ConnectionIdle,
		watchdogPeriod: period,
		logger:         logger,
		ActorWithStates: ActorWithStates{
			Behavior: actor.NewBehavior(),
		},
	}
	act.Become(CSStartingState{
		actor: act,
	})
	return act
}

func (state *ConnectionSupervisorActor) Receive(context actor.Context) {
	state.Behavior.Receive(context)
}

// Starting state

type CSStartingState struct {
	ActorState
	actor *ConnectionSupervisorActor
}

func (state CSStartingState) Name() string {
	return "starting"
}

func (state CSStartingState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.actor.logger.Debug("supervisor@starting started", zap.Int("stashed", state.actor.stash.Len()))
		state.actor.scheduler = scheduler.NewTimerScheduler(ctx)
		state.actor.self = ctx.Self()
		state.actor.send = SelfSender(ctx)
		state.actor.Become(CSRunningState{
			actor: state.actor,
		})
		state.actor.stash.UnstashAll(ctx)
	case *actor.Restarting:
	default:
		state.actor.logger.Debug("supervisor@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.actor.stash.Stash(ctx, msg)
	}
}

// Running state: idle, connecting, connected or disconnected

type CSRunningState struct {
	ActorState
	actor *ConnectionSupervisorActor
}

func (state CSRunningState) Name() string {
	return "running"
}

func (state CSRunningState) Receive(ctx actor.Context) {
	act := state.actor
	switch msg := ctx.Message().(type) {
	case domain.StartRequest:
		act.logger.Debug("supervisor@running StartRequest")
		act.start(ctx)
	case watchdogTick:
		if !act.acceptTick(msg) {
			return
		}
		if act.state != domain.ConnectionConnected {
			act.logger.Info("supervisor@running watchdog: not connected, reconnecting", zap.Stringer("state", act.state))
			act.start(ctx)
		} else {
			act.logger.Debug("supervisor@running watchdog: connected")
		}
	case platformConnected:
		if msg.connection != act.connection {
			act.logger.Debug("supervisor@running stale connected event", zap.Uint64("connection", msg.connection))
			return
		}
		if act.state == domain.ConnectionConnected {
			act.logger.Debug("supervisor@running already connected")
			return
		}
		act.logger.Info("supervisor@running connected")
		act.state = domain.ConnectionConnected
		act.registry.Initialize(act.platform, act.nodeListener(), act.thingListener())
		act.rescheduleWatchdog()
	case platformDisconnected:
		if msg.connection != act.connection {
			act.logger.Debug("supervisor@running stale disconnected event", zap.Uint64("connection", msg.connection))
			return
		}
		act.logger.Info("supervisor@running disconnected")
		act.state = domain.ConnectionDisconnected
		act.registry.MarkOffline("disconnected")
		act.rescheduleWatchdog()
	case platformActionReceived:
		act.dispatcher.Dispatch(msg.nodeId, msg.thingId, msg.action)
	case platformConfigurationReceived:
		act.logger.Info("supervisor@running configuration received",
			zap.String("thing", msg.thing.ID()),
			zap.Int64("data_reading_frequency", msg.thing.Configuration().DataReadingFrequency))
	case platformNodeUnregistered:
		act.logger.Info("supervisor@running node unregistered", zap.String("node", msg.nodeId))
	case platformThingUnregistered:
		act.logger.Info("supervisor@running thing unregistered", zap.String("node", msg.nodeId), zap.String("thing", msg.thingId))
	case domain.PublishTelemetryRequest:
		act.publishTelemetry(ctx, msg)
	default:
		act.receiveCommon(ctx, state.Name())
	}
}

// Version error state: terminal, the platform is never contacted again

type CSVersionErrorState struct {
	ActorState
	actor *ConnectionSupervisorActor
}

func (state CSVersionErrorState) Name() string {
	return "version_error"
}

func (state CSVersionErrorState) Receive(ctx actor.Context) {
	act := state.actor
	switch msg := ctx.Message().(type) {
	case domain.StartRequest:
		act.logger.Warn("supervisor@version_error start ignored, platform version is not supported")
	case watchdogTick:
		act.acceptTick(msg)
	case domain.PublishTelemetryRequest:
		act.publishTelemetry(ctx, msg)
	case platformConnected, platformDisconnected, platformActionReceived, platformConfigurationReceived,
		platformNodeUnregistered, platformThingUnregistered:
		act.logger.Debug("supervisor@version_error drop", zap.String("type", fmt.Sprintf("%T", msg)))
	default:
		act.receiveCommon(ctx, state.Name())
	}
}

func (state *ConnectionSupervisorActor) receiveCommon(ctx actor.Context, stateName string) {
	switch msg := ctx.Message().(type) {
	case domain.SetActionListenerRequest:
		state.logger.Debug(fmt.Sprintf("supervisor@%s SetActionListenerRequest", stateName), zap.Bool("set", msg.Listener != nil))
		state.dispatcher.SetListener(msg.Listener)
	case domain.GetStatusRequest:
		ForRequest(msg).Respond(ctx, domain.GetStatusResponse{
			Status: state.status(),
		})
	case domain.ActorHealthRequest:
		state.logger.Debug(fmt.Sprintf("supervisor@%s ActorHealthRequest", stateName))
		ForRequest(msg).Respond(ctx, domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_SUPERVISOR,
			Healthy: state.state == domain.ConnectionConnected,
			State:   state.state.String(),
		})
	case *actor.Stopping:
		state.cancelWatchdog()
	case *actor.Stopped, *actor.Restarting:
	default:
		state.logger.Debug(fmt.Sprintf("supervisor@%s recv", stateName), zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// start builds a new connection. The outcome arrives later as
// platformConnected or platformDisconnected, except for version errors.
func (state *ConnectionSupervisorActor) start(ctx actor.Context) {
	state.connectAttempts++
	state.connection++
	state.state = domain.ConnectionConnecting
	state.logger.Info("supervisor@running connecting", zap.Uint64("attempt", state.connectAttempts))

	err := state.platform.Connect(state.connectionHandler(state.connection))
	if err != nil {
		if errors.Is(err, domain.ErrUnsupportedVersion) {
			state.logger.Error("supervisor@running connection failed", zap.Error(err))
			state.state = domain.ConnectionVersionError
			state.cancelWatchdog()
			state.Become(CSVersionErrorState{
				actor: state,
			})
			return
		}
		state.logger.Warn("supervisor@running connection could not be built", zap.Error(err))
		state.state = domain.ConnectionDisconnected
	}
	state.rescheduleWatchdog()
}

func (state *ConnectionSupervisorActor) rescheduleWatchdog() {
	state.cancelWatchdog()
	state.watchdogGeneration++
	state.watchdogCancel = state.scheduler.SendOnce(state.watchdogPeriod, state.self, watchdogTick{
		generation: state.watchdogGeneration,
	})
}

func (state *ConnectionSupervisorActor) cancelWatchdog() {
	if state.watchdogCancel != nil {
		state.watchdogCancel()
		state.watchdogCancel = nil
	}
}

// acceptTick reports whether tick is the current watchdog. Ticks queued before
// a reschedule are dropped.
func (state *ConnectionSupervisorActor) acceptTick(tick watchdogTick) bool {
	if tick.generation != state.watchdogGeneration || state.watchdogCancel == nil {
		state.logger.Debug("supervisor watchdog: stale tick", zap.Uint64("generation", tick.generation))
		return false
	}
	state.watchdogCancel = nil
	return true
}

func (state *ConnectionSupervisorActor) publishTelemetry(ctx actor.Context, msg domain.PublishTelemetryRequest) {
	thingId := msg.ThingId
	if thingId == "" {
		thingId = state.config.TelemetryThingId()
	}
	current := state.state
	thing := state.registry.Thing(thingId)
	request := ForRequest(msg)

	NewBackgroundTaskNoError(ctx, func() *domain.PublishTelemetryResponse {
		return &domain.PublishTelemetryResponse{
			Sent: state.publisher.Publish(current, thing, msg.Value),
		}
	}).Recover(func(err error) domain.PublishTelemetryResponse {
		state.logger.Error("supervisor telemetry: send did not complete", zap.String("thing", thingId), zap.Error(err))
		return domain.PublishTelemetryResponse{}
	}).OnSuccess(func(resp domain.PublishTelemetryResponse) {
		request.Respond(ctx, resp)
	}).WithTimeout(state.sendTimeout()).Run()
}

func (state *ConnectionSupervisorActor) sendTimeout() time.Duration {
	if state.config.MQTT.TimeoutMillis > 0 {
		return time.Duration(state.config.MQTT.TimeoutMillis)*time.Millisecond + time.Second
	}
	return DEFAULT_SEND_TIMEOUT
}

func (state *ConnectionSupervisorActor) status() domain.SupervisorStatus {
	node, things := state.registry.Status()
	return domain.SupervisorStatus{
		State:           state.state,
		ConnectAttempts: state.connectAttempts,
		WatchdogPending: state.watchdogCancel != nil,
		Node:            node,
		Things:          things,
	}
}

// narrow handlers, each callback is turned into a message for this actor

func (state *ConnectionSupervisorActor) connectionHandler(connection uint64) port.ConnectionHandler {
	send := state.send
	return port.ConnectionHandler{
		OnConnected: func() {
			send(platformConnected{connection: connection})
		},
		OnDisconnected: func() {
			send(platformDisconnected{connection: connection})
		},
	}
}

func (state *ConnectionSupervisorActor) nodeListener() port.NodeListener {
	send := state.send
	return port.NodeListener{
		OnNodeUnregistered: func(nodeId string) {
			send(platformNodeUnregistered{nodeId: nodeId})
		},
	}
}

func (state *ConnectionSupervisorActor) thingListener() port.ThingListener {
	send := state.send
	return port.ThingListener{
		OnConfigurationReceived: func(thing port.PlatformThing) {
			send(platformConfigurationReceived{thing: thing})
		},
		OnActionReceived: func(nodeId string, thingId string, action domain.ThingActionData) {
			send(platformActionReceived{nodeId: nodeId, thingId: thingId, action: action})
		},
		OnThingUnregistered: func(nodeId string, thingId string) {
			send(platformThingUnregistered{nodeId: nodeId, thingId: thingId})
		},
	}
}
