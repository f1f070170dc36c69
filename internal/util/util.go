package util

import (
	"github.com/berfenger/doorbell2mqtt/internal/config"

	"go.uber.org/zap"
)

// LoadTestConfig returns the doorbell profile with short timers and the
// in-memory platform.
func LoadTestConfig() config.Config {
	cfg := config.Config{
		LogLevel: zap.DebugLevel,
		Profile:  config.PROFILE_DOORBELL,
		Watchdog: config.WatchdogConfig{
			PeriodMillis: 100,
		},
		Platform: config.PlatformConfig{
			Driver: config.PLATFORM_DRIVER_MEMORY,
		},
		MQTT: config.MQTTConfig{
			Host:            "localhost",
			Port:            1883,
			BaseTopic:       "doorbell",
			ProtocolVersion: 4,
			TimeoutMillis:   1000,
		},
		Button: config.ButtonConfig{
			PollIntervalMillis: 50,
			Value:              config.DOORBELL_RING_VALUE,
		},
		Port: 8080,
	}
	if err := config.ApplyProfile(&cfg); err != nil {
		panic(err)
	}
	return cfg
}
