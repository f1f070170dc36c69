package mqtt

import (
	"encoding/json"
	"time"

	"github.com/berfenger/doorbell2mqtt/internal/core/domain"

	"github.com/carlmjohnson/versioninfo"
)

const SOFTWARE_NAME = "doorbell2mqtt"

type NodeRegistration struct {
	Id           string              `json:"id"`
	Name         string              `json:"name"`
	PlatformType string              `json:"platform_type"`
	Software     SoftwareInfo        `json:"software"`
	StateTopic   string              `json:"state_topic"`
	Availability RegistrationBinding `json:"availability"`
}

type ThingRegistration struct {
	Id              string               `json:"id"`
	Node            string               `json:"node"`
	Type            ThingTypeInfo        `json:"type"`
	Category        domain.ThingCategory `json:"category"`
	Actuator        bool                 `json:"actuator"`
	StateTopic      string               `json:"state_topic"`
	DataTopic       string               `json:"data_topic"`
	ActionTopic     string               `json:"action_topic,omitempty"`
	ConfigTopic     string               `json:"config_topic"`
	UnregisterTopic string               `json:"unregister_topic"`
}

type ThingTypeInfo struct {
	Name        string               `json:"name"`
	Description string               `json:"description,omitempty"`
	DataType    domain.ThingDataType `json:"data_type"`
}

type SoftwareInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type RegistrationBinding struct {
	Topic          string `json:"topic"`
	PayloadOnline  string `json:"payload_online"`
	PayloadOffline string `json:"payload_offline"`
}

type StateMessage struct {
	Connected bool   `json:"connected"`
	Message   string `json:"message"`
}

type DataMessage struct {
	Data      []string `json:"data"`
	Timestamp int64    `json:"timestamp"`
}

type ConfigurationMessage struct {
	DataReadingFrequency int64 `json:"data_reading_frequency"`
}

func (t *Topics) NodeRegistrationMessage(spec domain.NodeSpec) NodeRegistration {
	return NodeRegistration{
		Id:           spec.Id,
		Name:         spec.Name,
		PlatformType: spec.PlatformType,
		Software: SoftwareInfo{
			Name:    SOFTWARE_NAME,
			Version: versioninfo.Short(),
		},
		StateTopic: t.NodeStateTopic(spec.Id),
		Availability: RegistrationBinding{
			Topic:          t.BridgeStateTopic(),
			PayloadOnline:  MQTT_PAYLOAD_ONLINE,
			PayloadOffline: MQTT_PAYLOAD_OFFLINE,
		},
	}
}

func (t *Topics) ThingRegistrationMessage(nodeId string, spec domain.ThingSpec) ThingRegistration {
	reg := ThingRegistration{
		Id:   spec.Id,
		Node: nodeId,
		Type: ThingTypeInfo{
			Name:        spec.Type.Name,
			Description: spec.Type.Description,
			DataType:    spec.Type.DataType,
		},
		Category:        spec.Category,
		Actuator:        spec.Actuator,
		StateTopic:      t.ThingStateTopic(nodeId, spec.Id),
		DataTopic:       t.ThingDataTopic(nodeId, spec.Id),
		ConfigTopic:     t.ThingConfigSetTopic(nodeId, spec.Id),
		UnregisterTopic: t.ThingUnregisterTopic(nodeId, spec.Id),
	}
	if spec.Actuator {
		reg.ActionTopic = t.ThingActionTopic(nodeId, spec.Id)
	}
	return reg
}

func StateMessageJSON(connected bool, message string) ([]byte, error) {
	return json.Marshal(StateMessage{Connected: connected, Message: message})
}

func DataMessageJSON(data domain.ThingData) ([]byte, error) {
	timestamp := nowMillis()
	if !data.Timestamp.IsZero() {
		timestamp = data.Timestamp.UnixMilli()
	}
	return json.Marshal(DataMessage{
		Data:      data.Data,
		Timestamp: timestamp,
	})
}

func ParseConfigurationMessage(payload string) (domain.ThingConfiguration, error) {
	var msg ConfigurationMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		return domain.ThingConfiguration{}, err
	}
	return domain.ThingConfiguration{DataReadingFrequency: msg.DataReadingFrequency}, nil
}

// nowMillis is the telemetry timestamp used when data carries none.
func nowMillis() int64 {
	return time.Now().UnixMilli()
}
