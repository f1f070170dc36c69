package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/berfenger/doorbell2mqtt/internal/core/domain"

	"github.com/gosimple/slug"
	"github.com/samber/lo"
	"go.uber.org/zap/zapcore"
)

const (
	PROFILE_DOORBELL  = "doorbell"
	PROFILE_COMPANION = "companion"

	PLATFORM_DRIVER_MQTT   = "mqtt"
	PLATFORM_DRIVER_MEMORY = "memory"

	DOORBELL_RING_VALUE = "RINGING"
)

type Config struct {
	LogLevel zapcore.Level
	Profile  string        `mapstructure:"profile"`
	Node     NodeConfig    `mapstructure:"node"`
	Things   []ThingConfig `mapstructure:"things"`
	Watchdog WatchdogConfig
	Platform PlatformConfig
	MQTT     MQTTConfig   `mapstructure:"mqtt"`
	Button   ButtonConfig `mapstructure:"button"`
	Port     uint         `mapstructure:"port"`
	HttpLog  bool         `mapstructure:"http_log"`
}

type NodeConfig struct {
	Id           string
	Name         string
	PlatformType string `mapstructure:"platform_type"`
}

type ThingConfig struct {
	Id          string
	TypeName    string          `mapstructure:"type_name"`
	Description string          `mapstructure:"description"`
	DataType    string          `mapstructure:"data_type"`
	Actuator    bool            `mapstructure:"actuator"`
	Telemetry   bool            `mapstructure:"telemetry"`
	Actions     map[string]bool `mapstructure:"actions"`
}

type WatchdogConfig struct {
	PeriodMillis uint32 `mapstructure:"period_millis"`
}

type PlatformConfig struct {
	Driver string
}

type MQTTConfig struct {
	Host            string
	Port            int
	Username        string
	Password        string
	BaseTopic       string `mapstructure:"base_topic"`
	ProtocolVersion uint   `mapstructure:"protocol_version"`
	TimeoutMillis   uint32 `mapstructure:"timeout_millis"`
}

type ButtonConfig struct {
	Enable             bool
	Host               string
	Port               uint
	UnitId             uint   `mapstructure:"unit_id"`
	Address            uint16 `mapstructure:"address"`
	Register           string `mapstructure:"register"`
	PollIntervalMillis uint32 `mapstructure:"poll_interval_millis"`
	Value              string `mapstructure:"value"`
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	// check and fix base topic
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}

// ApplyProfile fills the node identity and the thing set from the profile
// wherever the config leaves them empty.
func ApplyProfile(cfg *Config) error {
	var node NodeConfig
	var things []ThingConfig
	switch cfg.Profile {
	case "", PROFILE_DOORBELL:
		cfg.Profile = PROFILE_DOORBELL
		node = NodeConfig{Id: "Android Things Doorbell"}
		things = []ThingConfig{
			{
				Id:          "Door Bell",
				TypeName:    "Button",
				Description: "Smart Doorbell",
				DataType:    string(domain.THING_DATA_TYPE_STRING),
				Telemetry:   true,
			},
			{
				Id:          "Alarm Buzzer",
				TypeName:    "Buzzer",
				Description: "Buzzer Alarm",
				DataType:    string(domain.THING_DATA_TYPE_STRING),
				Actuator:    true,
				Actions:     domain.DefaultActionRoutes(),
			},
		}
	case PROFILE_COMPANION:
		node = NodeConfig{Id: "Android Things Doorbell Companion"}
		things = []ThingConfig{
			{
				Id:          "Door Key",
				TypeName:    "Key",
				Description: "Smart Doorbell",
				DataType:    string(domain.THING_DATA_TYPE_STRING),
				Telemetry:   true,
			},
		}
	default:
		return errors.New("invalid profile. must be doorbell or companion")
	}

	if cfg.Node.Id == "" {
		cfg.Node.Id = node.Id
	}
	if TopicSegment(cfg.Node.Id) == "" {
		return errors.New("node id must contain letters or numbers")
	}
	if cfg.Node.Name == "" {
		cfg.Node.Name = cfg.Node.Id
	}
	if cfg.Node.PlatformType == "" {
		cfg.Node.PlatformType = domain.PLATFORM_TYPE_RASPBERRY_PI_3
	}
	if len(cfg.Things) == 0 {
		cfg.Things = things
	}
	return CheckThings(cfg.Things)
}

// TopicSegment is the MQTT topic segment of a node or thing id.
func TopicSegment(id string) string {
	return strings.Replace(slug.Make(id), "-", "_", -1)
}

func CheckThings(things []ThingConfig) error {
	if len(things) == 0 {
		return errors.New("at least one thing must be declared")
	}
	for _, t := range things {
		if strings.TrimSpace(t.Id) == "" {
			return errors.New("thing id cannot be empty")
		}
	}
	ids := lo.Map(things, func(t ThingConfig, _ int) string { return t.Id })
	if len(lo.Uniq(ids)) != len(ids) {
		return errors.New("thing ids must be unique")
	}
	// ids become topic segments, they must stay distinct once slugged
	segments := lo.Map(ids, func(id string, _ int) string { return TopicSegment(id) })
	if lo.Contains(segments, "") {
		return errors.New("thing ids must contain letters or numbers")
	}
	if len(lo.Uniq(segments)) != len(segments) {
		return fmt.Errorf("thing ids must be unique once slugged: %v", lo.FindDuplicates(segments))
	}
	if lo.CountBy(things, func(t ThingConfig) bool { return t.Telemetry }) > 1 {
		return errors.New("only one thing can be the telemetry thing")
	}
	return nil
}

func (cfg *Config) NodeSpec() domain.NodeSpec {
	return domain.NodeSpec{
		Id:           cfg.Node.Id,
		Name:         cfg.Node.Name,
		PlatformType: cfg.Node.PlatformType,
	}
}

func (cfg *Config) ThingSpecs() []domain.ThingSpec {
	return lo.Map(cfg.Things, func(t ThingConfig, _ int) domain.ThingSpec {
		dataType := domain.ThingDataType(strings.ToUpper(t.DataType))
		if dataType == "" {
			dataType = domain.THING_DATA_TYPE_STRING
		}
		spec := domain.ThingSpec{
			Id: t.Id,
			Type: domain.ThingType{
				Name:        t.TypeName,
				Description: t.Description,
				DataType:    dataType,
			},
			Category:  domain.THING_CATEGORY_EXTERNAL,
			Actuator:  t.Actuator,
			Telemetry: t.Telemetry,
		}
		if t.Actuator {
			spec.Actions = t.Actions
			if len(spec.Actions) == 0 {
				spec.Actions = domain.DefaultActionRoutes()
			}
		}
		return spec
	})
}

// TelemetryThingId is the thing used for telemetry requests that name none.
// It falls back to the first non actuator thing.
func (cfg *Config) TelemetryThingId() string {
	if t, ok := lo.Find(cfg.Things, func(t ThingConfig) bool { return t.Telemetry }); ok {
		return t.Id
	}
	if t, ok := lo.Find(cfg.Things, func(t ThingConfig) bool { return !t.Actuator }); ok {
		return t.Id
	}
	return ""
}
