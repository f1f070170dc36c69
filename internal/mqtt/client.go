package mqtt

import (
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"time"

	"github.com/berfenger/doorbell2mqtt/internal/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	MQTT_PAYLOAD_ONLINE  = "online"
	MQTT_PAYLOAD_OFFLINE = "offline"

	COMMAND_ACTION     = "action"
	COMMAND_CONFIG     = "config/set"
	COMMAND_UNREGISTER = "unregister"
)

var ErrInvalidCommand = errors.New("invalid command")

func OptsFromConfig(cfg *config.Config) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTT.Host, cfg.MQTT.Port))
	opts.SetClientID(fmt.Sprintf("doorbell_%d", rand.Intn(1000)))
	if cfg.MQTT.Username != "" && cfg.MQTT.Password != "" {
		opts.SetUsername(cfg.MQTT.Username)
		opts.SetPassword(cfg.MQTT.Password)
	}
	if cfg.MQTT.ProtocolVersion > 0 {
		opts.SetProtocolVersion(cfg.MQTT.ProtocolVersion)
	}
	// reconnection is driven by the supervisor watchdog
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	if cfg.MQTT.TimeoutMillis > 0 {
		opts.SetConnectTimeout(time.Duration(cfg.MQTT.TimeoutMillis) * time.Millisecond)
	}
	opts.WillEnabled = true
	opts.WillPayload = []byte(MQTT_PAYLOAD_OFFLINE)
	opts.WillRetained = true
	opts.WillTopic = bridgeStateTopic(cfg.MQTT.BaseTopic)
	opts.WillQos = 0

	return opts
}

func CreateMQTTClient(cfg *config.Config, opts *mqtt.ClientOptions, onConnectHandler func(client mqtt.Client),
	onConnectionLostHandler func(mqtt.Client, error)) *MQTTClient {
	if onConnectHandler != nil {
		opts.OnConnect = onConnectHandler
	}
	if onConnectionLostHandler != nil {
		opts.OnConnectionLost = onConnectionLostHandler
	}
	return NewTopics(cfg.MQTT.BaseTopic).withClient(mqtt.NewClient(opts))
}

// Topics builds and parses the topic tree below the base topic. Node and thing
// ids are turned into slugs.
type Topics struct {
	base           string
	commandRegexp  *regexp.Regexp
	nodeUnregister *regexp.Regexp
}

func NewTopics(baseTopic string) *Topics {
	return &Topics{
		base:           baseTopic,
		commandRegexp:  thingCommandExtractor(baseTopic),
		nodeUnregister: nodeUnregisterExtractor(baseTopic),
	}
}

type MQTTClient struct {
	*Topics
	client mqtt.Client
}

type ParsedMQTTCommand struct {
	NodeId  string
	ThingId string
	Command string
	Payload string
}

func (t *Topics) withClient(client mqtt.Client) *MQTTClient {
	return &MQTTClient{
		Topics: t,
		client: client,
	}
}

// Segment turns an id into a topic level.
func Segment(id string) string {
	return config.TopicSegment(id)
}

func (t *Topics) BaseTopic() string {
	return t.base
}

func (t *Topics) BridgeStateTopic() string {
	return bridgeStateTopic(t.base)
}

func (t *Topics) NodeTopic(nodeId string) string {
	return fmt.Sprintf("%s/node/%s", t.base, Segment(nodeId))
}

func (t *Topics) NodeConfigTopic(nodeId string) string {
	return t.NodeTopic(nodeId) + "/config"
}

func (t *Topics) NodeStateTopic(nodeId string) string {
	return t.NodeTopic(nodeId) + "/state"
}

func (t *Topics) NodeUnregisterTopic(nodeId string) string {
	return t.NodeTopic(nodeId) + "/" + COMMAND_UNREGISTER
}

func (t *Topics) ThingTopic(nodeId string, thingId string) string {
	return fmt.Sprintf("%s/thing/%s", t.NodeTopic(nodeId), Segment(thingId))
}

func (t *Topics) ThingConfigTopic(nodeId string, thingId string) string {
	return t.ThingTopic(nodeId, thingId) + "/config"
}

func (t *Topics) ThingStateTopic(nodeId string, thingId string) string {
	return t.ThingTopic(nodeId, thingId) + "/state"
}

func (t *Topics) ThingDataTopic(nodeId string, thingId string) string {
	return t.ThingTopic(nodeId, thingId) + "/data"
}

func (t *Topics) ThingActionTopic(nodeId string, thingId string) string {
	return t.ThingTopic(nodeId, thingId) + "/" + COMMAND_ACTION
}

func (t *Topics) ThingConfigSetTopic(nodeId string, thingId string) string {
	return t.ThingTopic(nodeId, thingId) + "/" + COMMAND_CONFIG
}

func (t *Topics) ThingUnregisterTopic(nodeId string, thingId string) string {
	return t.ThingTopic(nodeId, thingId) + "/" + COMMAND_UNREGISTER
}

// ParseMQTTCommand extracts the addressed node, thing and command of an
// inbound topic. ThingId is empty for node commands. Ids are slugs.
func (t *Topics) ParseMQTTCommand(topic string, payload []byte) (*ParsedMQTTCommand, error) {
	matches := t.commandRegexp.FindAllStringSubmatch(topic, 1)
	if len(matches) == 1 && len(matches[0]) == 4 {
		return &ParsedMQTTCommand{
			NodeId:  matches[0][1],
			ThingId: matches[0][2],
			Command: matches[0][3],
			Payload: string(payload),
		}, nil
	}
	matches = t.nodeUnregister.FindAllStringSubmatch(topic, 1)
	if len(matches) == 1 && len(matches[0]) == 2 {
		return &ParsedMQTTCommand{
			NodeId:  matches[0][1],
			Command: COMMAND_UNREGISTER,
			Payload: string(payload),
		}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrInvalidCommand, topic)
}

func (t *Topics) CommandTopic() string {
	return fmt.Sprintf("%s/node/#", t.base)
}

func (c *MQTTClient) IsConnected() bool {
	return c.client.IsConnected()
}

func (c *MQTTClient) Publish(topic string, payload any, qos byte, retain bool, continuation func(error), timeout time.Duration) {
	token := c.client.Publish(topic, qos, retain, payload)
	go func() {
		didTO := token.WaitTimeout(timeout)
		if !didTO {
			continuation(errors.New("MQTT publish timed out"))
		} else {
			continuation(token.Error())
		}
	}()
}

// PublishSync waits for the broker to acknowledge the message.
func (c *MQTTClient) PublishSync(topic string, payload any, qos byte, retain bool, timeout time.Duration) error {
	token := c.client.Publish(topic, qos, retain, payload)
	if !token.WaitTimeout(timeout) {
		return errors.New("MQTT publish timed out")
	}
	return token.Error()
}

func (c *MQTTClient) Subscribe(topic string, qos byte, handler mqtt.MessageHandler, continuation func(error), timeout time.Duration) {
	token := c.client.Subscribe(topic, qos, handler)
	go func() {
		didTO := token.WaitTimeout(timeout)
		if !didTO {
			continuation(errors.New("MQTT subscribe timed out"))
		} else {
			continuation(token.Error())
		}
	}()
}

func (c *MQTTClient) SubscribeToCommandTopic(handler mqtt.MessageHandler, continuation func(error), timeout time.Duration) {
	c.Subscribe(c.CommandTopic(), 1, handler, continuation, timeout)
}

func (c *MQTTClient) Connect(continuation func(error), timeout time.Duration) {
	token := c.client.Connect()
	go func() {
		didTO := token.WaitTimeout(timeout)
		if !didTO {
			continuation(errors.New("MQTT connect timed out"))
		} else {
			continuation(token.Error())
		}
	}()
}

func (c *MQTTClient) Disconnect(timeout time.Duration) {
	c.client.Disconnect(uint(timeout.Milliseconds()))
}

func thingCommandExtractor(baseTopic string) *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf("^%s/node/([a-z0-9_]+)/thing/([a-z0-9_]+)/(action|config/set|unregister)$", regexp.QuoteMeta(baseTopic)))
}

func nodeUnregisterExtractor(baseTopic string) *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf("^%s/node/([a-z0-9_]+)/unregister$", regexp.QuoteMeta(baseTopic)))
}

func bridgeStateTopic(baseTopic string) string {
	return fmt.Sprintf("%s/bridge/state", baseTopic)
}
