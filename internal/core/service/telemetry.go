package service

import (
	"github.com/berfenger/doorbell2mqtt/internal/core/domain"
	"github.com/berfenger/doorbell2mqtt/internal/core/port"

	"go.uber.org/zap"
)

type TelemetryPublisher struct {
	logger *zap.Logger
}

func NewTelemetryPublisher(logger *zap.Logger) *TelemetryPublisher {
	return &TelemetryPublisher{logger: logger}
}

// Publish sends value on thing when state is connected and reports whether the
// platform accepted it. A failed send is logged, never returned.
func (p *TelemetryPublisher) Publish(state domain.ConnectionState, thing port.PlatformThing, value string) bool {
	if state != domain.ConnectionConnected {
		p.logger.Debug("telemetry: not connected, skipping", zap.Stringer("state", state))
		return false
	}
	if thing == nil {
		p.logger.Warn("telemetry: thing not available", zap.Error(domain.ErrUnknownThing))
		return false
	}

	if thing.SendData(domain.NewThingData(value)) {
		p.logger.Info("telemetry: data sent successfully", zap.String("thing", thing.ID()), zap.String("value", value))
		return true
	}
	p.logger.Error("telemetry: data send failure", zap.String("thing", thing.ID()), zap.String("value", value))
	return false
}
