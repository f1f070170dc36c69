package domain

import (
	"time"
)

type ConnectionState int

const (
	ConnectionIdle ConnectionState = iota
	ConnectionConnecting
	ConnectionConnected
	ConnectionDisconnected
	// ConnectionVersionError is terminal: no further reconnection is attempted.
	ConnectionVersionError
)

func (s ConnectionState) String() string {
	switch s {
	case ConnectionIdle:
		return "idle"
	case ConnectionConnecting:
		return "connecting"
	case ConnectionConnected:
		return "connected"
	case ConnectionDisconnected:
		return "disconnected"
	case ConnectionVersionError:
		return "version_error"
	default:
		return "unknown"
	}
}

func (s ConnectionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type ThingDataType string

const (
	THING_DATA_TYPE_STRING  ThingDataType = "STRING"
	THING_DATA_TYPE_INTEGER ThingDataType = "INTEGER"
	THING_DATA_TYPE_FLOAT   ThingDataType = "FLOAT"
	THING_DATA_TYPE_BOOLEAN ThingDataType = "BOOLEAN"
)

type ThingCategory string

const (
	THING_CATEGORY_EXTERNAL ThingCategory = "EXTERNAL"
	THING_CATEGORY_BUILTIN  ThingCategory = "BUILTIN"
)

const (
	PLATFORM_TYPE_RASPBERRY_PI_3 = "RASPBERRY_PI_3"
)

type NodeSpec struct {
	Id           string
	Name         string
	PlatformType string
}

type ThingType struct {
	Name        string
	Description string
	DataType    ThingDataType
}

type ThingSpec struct {
	Id       string
	Type     ThingType
	Category ThingCategory
	Actuator bool
	// Telemetry marks the thing used when a telemetry request names no thing.
	Telemetry bool
	// Actions maps an inbound action state to a door command (true = unlock).
	// Only consulted for actuators.
	Actions map[string]bool
}

// ThingData is the outbound envelope. It carries a single value.
type ThingData struct {
	Data      []string
	Timestamp time.Time
}

func NewThingData(value string) ThingData {
	return ThingData{
		Data:      []string{value},
		Timestamp: time.Now(),
	}
}

// ThingActionData is the inbound action envelope as received from the platform.
type ThingActionData struct {
	Message string
}

type ThingConfiguration struct {
	DataReadingFrequency int64
}

type EntityStatus struct {
	Id         string `json:"id"`
	Registered bool   `json:"registered"`
	Connected  bool   `json:"connected"`
	Message    string `json:"message,omitempty"`
}

type SupervisorStatus struct {
	State           ConnectionState `json:"state"`
	ConnectAttempts uint64          `json:"connect_attempts"`
	WatchdogPending bool            `json:"watchdog_pending"`
	Node            *EntityStatus   `json:"node,omitempty"`
	Things          []EntityStatus  `json:"things"`
}
