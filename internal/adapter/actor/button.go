package actor

import (
	"fmt"
	"time"

	"github.com/berfenger/doorbell2mqtt/internal/core/domain"
	"github.com/berfenger/doorbell2mqtt/internal/util/actorutil"
	"github.com/berfenger/doorbell2mqtt/pkg/modbus_input"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

// ButtonActor polls the doorbell push button and asks the supervisor to send
// a telemetry value on every press.
type ButtonActor struct {
	behavior  actor.Behavior
	scheduler *scheduler.TimerScheduler

	reader     modbus_input.InputReader
	supervisor *actor.PID
	value      string
	interval   time.Duration

	opened  bool
	pressed bool
	presses uint64

	logger *zap.Logger
}

type buttonTick struct {
}

type buttonRead struct {
	pressed bool
	err     error
}

func NewButtonActor(reader modbus_input.InputReader, supervisor *actor.PID, value string, interval time.Duration, logger *zap.Logger) *ButtonActor {
	act := &ButtonActor{
		reader:     reader,
		supervisor: supervisor,
		value:      value,
		interval:   interval,
		behavior:   actor.NewBehavior(),
		logger:     actorutil.ActorLogger(domain.ACTOR_ID_BUTTON, logger),
	}
	act.behavior.Become(act.DefaultReceive)
	return act
}

func (state *ButtonActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *ButtonActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("button@default started")
		state.scheduler = scheduler.NewTimerScheduler(ctx)
		state.open()
		state.scheduler.SendOnce(state.interval, ctx.Self(), buttonTick{})
	case buttonTick:
		if !state.opened && !state.open() {
			state.scheduler.SendOnce(state.interval, ctx.Self(), buttonTick{})
			return
		}
		actorutil.NewBackgroundTask(ctx, func() (*buttonRead, error) {
			pressed, err := state.reader.ReadInput()
			if err != nil {
				return nil, err
			}
			return &buttonRead{pressed: pressed}, nil
		}).Recover(func(err error) buttonRead {
			return buttonRead{err: err}
		}).WithTimeout(state.interval + time.Second).PipeTo(ctx.Self())
	case buttonRead:
		if msg.err != nil {
			state.logger.Warn("button@default read failed", zap.Error(msg.err))
			// the modbus transport does not reconnect by itself
			state.close()
		} else {
			if msg.pressed && !state.pressed {
				state.presses++
				state.logger.Info("button@default pressed", zap.Uint64("presses", state.presses))
				ctx.Request(state.supervisor, domain.PublishTelemetryRequest{
					Value: state.value,
				})
			}
			state.pressed = msg.pressed
		}
		state.scheduler.SendOnce(state.interval, ctx.Self(), buttonTick{})
	case domain.PublishTelemetryResponse:
		state.logger.Debug("button@default PublishTelemetryResponse", zap.Bool("sent", msg.Sent))
	case domain.ActorHealthRequest:
		state.logger.Debug("button@default ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_BUTTON,
			Healthy: state.opened,
			State:   fmt.Sprintf("presses=%d", state.presses),
		})
	case *actor.Stopping:
		state.close()
	default:
		state.logger.Debug("button@default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *ButtonActor) open() bool {
	if err := state.reader.Open(); err != nil {
		state.logger.Warn("button@default could not open input", zap.Error(err))
		return false
	}
	state.opened = true
	return true
}

func (state *ButtonActor) close() {
	if !state.opened {
		return
	}
	if err := state.reader.Close(); err != nil {
		state.logger.Debug("button@default close failed", zap.Error(err))
	}
	state.opened = false
}
