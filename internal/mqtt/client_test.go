package mqtt

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/berfenger/doorbell2mqtt/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSegment(t *testing.T) {

	assert := assert.New(t)

	assert.Equal("android_things_doorbell", Segment("Android Things Doorbell"))
	assert.Equal("door_bell", Segment("Door Bell"))
	assert.Equal("alarm_buzzer", Segment("alarm-buzzer"))
}

func TestTopics(t *testing.T) {

	assert := assert.New(t)

	topics := NewTopics("loremTopic")

	assert.Equal("loremTopic/bridge/state", topics.BridgeStateTopic())
	assert.Equal("loremTopic/node/android_things_doorbell/config", topics.NodeConfigTopic("Android Things Doorbell"))
	assert.Equal("loremTopic/node/android_things_doorbell/state", topics.NodeStateTopic("Android Things Doorbell"))
	assert.Equal("loremTopic/node/android_things_doorbell/thing/door_bell/data", topics.ThingDataTopic("Android Things Doorbell", "Door Bell"))
	assert.Equal("loremTopic/node/android_things_doorbell/thing/alarm_buzzer/action", topics.ThingActionTopic("Android Things Doorbell", "Alarm Buzzer"))
	assert.Equal("loremTopic/node/#", topics.CommandTopic())
}

func TestActionCommandParse(t *testing.T) {

	assert := assert.New(t)

	topics := NewTopics("loremTopic")
	cmd, err := topics.ParseMQTTCommand(topics.ThingActionTopic("Android Things Doorbell", "Alarm Buzzer"), []byte(`{"state":"1"}`))

	assert.NoError(err)
	assert.Equal("android_things_doorbell", cmd.NodeId, "node extract")
	assert.Equal("alarm_buzzer", cmd.ThingId, "thing extract")
	assert.Equal(COMMAND_ACTION, cmd.Command)
	assert.Equal(`{"state":"1"}`, cmd.Payload)
}

func TestConfigAndUnregisterCommandParse(t *testing.T) {

	assert := assert.New(t)

	topics := NewTopics("loremTopic")

	cmd, err := topics.ParseMQTTCommand("loremTopic/node/my_node/thing/my_thing/config/set", []byte(`{"data_reading_frequency":10}`))
	assert.NoError(err)
	assert.Equal(COMMAND_CONFIG, cmd.Command)

	cmd, err = topics.ParseMQTTCommand("loremTopic/node/my_node/thing/my_thing/unregister", nil)
	assert.NoError(err)
	assert.Equal(COMMAND_UNREGISTER, cmd.Command)
	assert.Equal("my_thing", cmd.ThingId)

	cmd, err = topics.ParseMQTTCommand("loremTopic/node/my_node/unregister", nil)
	assert.NoError(err)
	assert.Equal(COMMAND_UNREGISTER, cmd.Command)
	assert.Equal("my_node", cmd.NodeId)
	assert.Empty(cmd.ThingId, "node command")
}

func TestCommandParseFail(t *testing.T) {

	assert := assert.New(t)

	topics := NewTopics("loremTopic")

	for _, topic := range []string{
		"loremTopic/node/my_node/thing/my_thing/state",
		"loremTopic/node/my_node/thing/my_thing/config",
		"loremTopic/node/my_node/config",
		"loremTopic/node/my_node/thing/my_thing/action/extra",
		"otherTopic/node/my_node/thing/my_thing/action",
	} {
		_, err := topics.ParseMQTTCommand(topic, nil)
		assert.ErrorIs(err, ErrInvalidCommand, topic)
	}
}

func TestRegistrationMessages(t *testing.T) {

	require := require.New(t)

	topics := NewTopics("doorbell")
	node := topics.NodeRegistrationMessage(domain.NodeSpec{Id: "Android Things Doorbell", Name: "Front door", PlatformType: domain.PLATFORM_TYPE_RASPBERRY_PI_3})
	require.Equal("doorbell/bridge/state", node.Availability.Topic)
	require.Equal(SOFTWARE_NAME, node.Software.Name)
	require.NotEmpty(node.Software.Version)

	buzzer := topics.ThingRegistrationMessage("Android Things Doorbell", domain.ThingSpec{
		Id:       "Alarm Buzzer",
		Type:     domain.ThingType{Name: "Buzzer", DataType: domain.THING_DATA_TYPE_STRING},
		Category: domain.THING_CATEGORY_EXTERNAL,
		Actuator: true,
	})
	require.Equal("doorbell/node/android_things_doorbell/thing/alarm_buzzer/action", buzzer.ActionTopic)

	bell := topics.ThingRegistrationMessage("Android Things Doorbell", domain.ThingSpec{Id: "Door Bell"})
	require.Empty(bell.ActionTopic, "sensors take no actions")
}

func TestDataMessage(t *testing.T) {

	require := require.New(t)

	ts := time.UnixMilli(1700000000123)
	payload, err := DataMessageJSON(domain.ThingData{Data: []string{"RINGING"}, Timestamp: ts})
	require.NoError(err)

	var msg DataMessage
	require.NoError(json.Unmarshal(payload, &msg))
	require.Equal([]string{"RINGING"}, msg.Data)
	require.EqualValues(1700000000123, msg.Timestamp)

	config, err := ParseConfigurationMessage(`{"data_reading_frequency":30000}`)
	require.NoError(err)
	require.EqualValues(30000, config.DataReadingFrequency)

	_, err = ParseConfigurationMessage(`[1]`)
	require.Error(err)
}
