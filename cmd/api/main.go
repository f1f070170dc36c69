package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	adactor "github.com/berfenger/doorbell2mqtt/internal/adapter/actor"
	"github.com/berfenger/doorbell2mqtt/internal/adapter/platform"
	"github.com/berfenger/doorbell2mqtt/internal/config"
	"github.com/berfenger/doorbell2mqtt/internal/core/actor"
	"github.com/berfenger/doorbell2mqtt/internal/core/domain"
	"github.com/berfenger/doorbell2mqtt/internal/core/port"
	"github.com/berfenger/doorbell2mqtt/internal/server"
	"github.com/berfenger/doorbell2mqtt/internal/util/actorutil"
	"github.com/berfenger/doorbell2mqtt/pkg/modbus_input"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func gracefulShutdown(apiServer *http.Server, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {

	// load and print config
	cfg, err := initConfig()
	if err != nil {
		slog.Error("config errors", "error", err)
		return
	}
	safePrintConfig(*cfg)

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	defer logger.Sync()

	platform, closePlatform := createPlatform(cfg, logger)
	defer closePlatform()

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewConnectionSupervisorActor(cfg, platform, logger)
	})
	pid, err := ctx.SpawnNamed(props, domain.ACTOR_ID_SUPERVISOR)
	if err != nil {
		return
	}

	// door commands have no local actuator, they are logged
	doorLogger := logger.With(zap.String("component", "door"))
	ctx.Send(pid, domain.SetActionListenerRequest{
		Listener: func(unlock bool) {
			doorLogger.Info("door command", zap.Bool("unlock", unlock))
		},
	})
	ctx.Send(pid, domain.StartRequest{})

	// physical doorbell button
	var buttonPid *pactor.PID
	if cfg.Button.Enable {
		buttonPid, err = spawnButton(ctx, cfg, pid, logger)
		if err != nil {
			panic(err)
		}
	}

	server := server.NewServer(*cfg, ctx, pid)
	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(server, done)

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Println("Graceful shutdown complete.")

	if buttonPid != nil {
		ctx.Stop(buttonPid)
	}
	ctx.Stop(pid)
	as.Shutdown()
}

func createPlatform(cfg *config.Config, logger *zap.Logger) (port.Platform, func()) {
	if cfg.Platform.Driver == config.PLATFORM_DRIVER_MEMORY {
		p := platform.NewMemoryPlatform()
		p.SetAutoConnect(true)
		return p, func() {}
	}
	p := platform.NewMQTTPlatform(cfg, logger)
	return p, p.Close
}

func spawnButton(ctx *pactor.RootContext, cfg *config.Config, supervisor *pactor.PID, logger *zap.Logger) (*pactor.PID, error) {
	reader, err := modbus_input.CreateButtonModbusReader(cfg.Button.Host, cfg.Button.Port, uint8(cfg.Button.UnitId),
		cfg.Button.Address, cfg.Button.Register, 1*time.Second, logger, nil)
	if err != nil {
		return nil, err
	}
	interval := time.Duration(cfg.Button.PollIntervalMillis) * time.Millisecond

	supervisorStrategy := pactor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)
	props := pactor.PropsFromProducer(func() pactor.Actor {
		return adactor.NewButtonActor(reader, supervisor, cfg.Button.Value, interval, logger)
	}, pactor.WithSupervisor(supervisorStrategy))
	return ctx.SpawnNamed(props, domain.ACTOR_ID_BUTTON)
}

func initConfig() (*config.Config, error) {

	// alias PORT => DOORBELL_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("DOORBELL_PORT", port)
	}

	setConfigDefaults()

	viper.SetEnvPrefix("doorbell")
	viper.AutomaticEnv()

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			viper.SetConfigFile(cfgFile)

			err = viper.ReadInConfig()
			if err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		}
	}

	var cfg config.Config

	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	// parse log level
	switch viper.GetString("log_level") {
	case "trace":
		cfg.LogLevel = zap.DebugLevel
	case "debug":
		cfg.LogLevel = zap.DebugLevel
	case "info":
		cfg.LogLevel = zap.InfoLevel
	case "error":
		cfg.LogLevel = zap.ErrorLevel
	case "warn":
		cfg.LogLevel = zap.WarnLevel
	case "fatal":
		cfg.LogLevel = zap.FatalLevel
	default:
		cfg.LogLevel = zap.InfoLevel
	}

	// check and fix base topic
	baseTopic, err := config.CheckMQTTTopic(cfg.MQTT.BaseTopic)
	if err != nil {
		return nil, errors.New("invalid base topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.BaseTopic = baseTopic

	// node identity and things
	if err := config.ApplyProfile(&cfg); err != nil {
		return nil, err
	}

	// check bounds
	if cfg.Watchdog.PeriodMillis < 100 {
		return nil, errors.New("config param watchdog.period_millis should be >= 100")
	}
	if cfg.Platform.Driver != config.PLATFORM_DRIVER_MQTT && cfg.Platform.Driver != config.PLATFORM_DRIVER_MEMORY {
		return nil, fmt.Errorf("config param platform.driver should be %s or %s", config.PLATFORM_DRIVER_MQTT, config.PLATFORM_DRIVER_MEMORY)
	}
	if cfg.Button.Enable {
		if cfg.Button.PollIntervalMillis < 50 {
			return nil, errors.New("config param button.poll_interval_millis should be >= 50")
		}
		if cfg.Button.UnitId > 255 {
			return nil, errors.New("config param button.unit_id should be <= 255")
		}
		if cfg.Button.Register != modbus_input.REGISTER_DISCRETE_INPUT && cfg.Button.Register != modbus_input.REGISTER_COIL {
			return nil, errors.New("config param button.register should be discrete_input or coil")
		}
	}

	return &cfg, nil
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("profile", config.PROFILE_DOORBELL)
	viper.SetDefault("watchdog.period_millis", 5000)
	viper.SetDefault("platform.driver", config.PLATFORM_DRIVER_MQTT)
	viper.SetDefault("mqtt.host", "localhost")
	viper.SetDefault("mqtt.port", 1883)
	viper.SetDefault("mqtt.base_topic", "doorbell")
	viper.SetDefault("mqtt.protocol_version", 4)
	viper.SetDefault("mqtt.timeout_millis", 5000)
	viper.SetDefault("button.enable", false)
	viper.SetDefault("button.port", 502)
	viper.SetDefault("button.unit_id", 1)
	viper.SetDefault("button.register", modbus_input.REGISTER_DISCRETE_INPUT)
	viper.SetDefault("button.poll_interval_millis", 200)
	viper.SetDefault("button.value", config.DOORBELL_RING_VALUE)
	viper.SetDefault("port", 8080)
}

func safePrintConfig(cfg config.Config) {
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	slog.Info("Using", "config", cfg)
}
