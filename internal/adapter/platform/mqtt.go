package platform

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/berfenger/doorbell2mqtt/internal/config"
	"github.com/berfenger/doorbell2mqtt/internal/core/domain"
	"github.com/berfenger/doorbell2mqtt/internal/core/port"
	imqtt "github.com/berfenger/doorbell2mqtt/internal/mqtt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const (
	MIN_PROTOCOL_VERSION     = 3
	MAX_PROTOCOL_VERSION     = 4
	DEFAULT_PROTOCOL_VERSION = 4
	DEFAULT_MQTT_TIMEOUT     = 5 * time.Second
	// a full registration round must fit in one HTTP ask timeout
	MAX_REGISTRATION_TIMEOUT = 1 * time.Second
)

// MQTTPlatform maps nodes and things onto a retained MQTT topic tree. Each
// Connect builds a new client; callbacks of older clients are dropped.
type MQTTPlatform struct {
	mu sync.Mutex

	cfg     *config.Config
	topics  *imqtt.Topics
	timeout time.Duration
	// bound for registration and state publishes
	registrationTimeout time.Duration

	client     *imqtt.MQTTClient
	connection uint64
	nodes      map[string]*mqttNode

	logger *zap.Logger
}

type mqttNode struct {
	platform *MQTTPlatform
	spec     domain.NodeSpec
	listener port.NodeListener

	registered bool
	things     map[string]*mqttThing
}

type mqttThing struct {
	node     *mqttNode
	spec     domain.ThingSpec
	listener port.ThingListener

	registered bool
	config     domain.ThingConfiguration
}

func NewMQTTPlatform(cfg *config.Config, logger *zap.Logger) *MQTTPlatform {
	timeout := time.Duration(cfg.MQTT.TimeoutMillis) * time.Millisecond
	if timeout <= 0 {
		timeout = DEFAULT_MQTT_TIMEOUT
	}
	return &MQTTPlatform{
		cfg:                 cfg,
		topics:              imqtt.NewTopics(cfg.MQTT.BaseTopic),
		timeout:             timeout,
		registrationTimeout: min(timeout, MAX_REGISTRATION_TIMEOUT),
		nodes:               map[string]*mqttNode{},
		logger:              logger.With(zap.String("platform", config.PLATFORM_DRIVER_MQTT)),
	}
}

// CheckProtocolVersion maps the configured protocol version to the version
// errors of the platform. Zero selects the default version.
func CheckProtocolVersion(version uint) error {
	if version == 0 {
		version = DEFAULT_PROTOCOL_VERSION
	}
	switch {
	case version < MIN_PROTOCOL_VERSION:
		return domain.ErrUnsupportedAgentVersion
	case version > MAX_PROTOCOL_VERSION:
		return domain.ErrUnsupportedSDKVersion
	}
	return nil
}

func (p *MQTTPlatform) Connect(handler port.ConnectionHandler) error {
	if err := CheckProtocolVersion(p.cfg.MQTT.ProtocolVersion); err != nil {
		return err
	}

	p.mu.Lock()
	p.connection++
	connection := p.connection
	previous := p.client
	client := imqtt.CreateMQTTClient(p.cfg, imqtt.OptsFromConfig(p.cfg), func(c mqtt.Client) {
		p.onConnect(connection, handler)
	}, func(c mqtt.Client, err error) {
		if !p.isCurrent(connection) {
			return
		}
		p.logger.Warn("mqtt connection lost", zap.Error(err))
		if handler.OnDisconnected != nil {
			handler.OnDisconnected()
		}
	})
	p.client = client
	p.mu.Unlock()

	if previous != nil {
		go previous.Disconnect(250 * time.Millisecond)
	}

	p.logger.Info("mqtt connecting", zap.String("host", p.cfg.MQTT.Host), zap.Int("port", p.cfg.MQTT.Port))
	client.Connect(func(err error) {
		if err == nil || !p.isCurrent(connection) {
			return
		}
		p.logger.Error("mqtt connect failed", zap.Error(err))
		if handler.OnDisconnected != nil {
			handler.OnDisconnected()
		}
	}, p.timeout)
	return nil
}

func (p *MQTTPlatform) onConnect(connection uint64, handler port.ConnectionHandler) {
	client := p.currentClient(connection)
	if client == nil {
		return
	}
	client.Publish(p.topics.BridgeStateTopic(), imqtt.MQTT_PAYLOAD_ONLINE, 0, true, func(err error) {
		if err != nil {
			p.logger.Error("mqtt could not publish bridge state", zap.Error(err))
		}
	}, p.timeout)
	client.SubscribeToCommandTopic(func(c mqtt.Client, msg mqtt.Message) {
		if p.isCurrent(connection) {
			p.handleMessage(msg.Topic(), msg.Payload())
		}
	}, func(err error) {
		if !p.isCurrent(connection) {
			return
		}
		if err != nil {
			p.logger.Error("mqtt subscribe failed", zap.Error(err))
			if handler.OnDisconnected != nil {
				handler.OnDisconnected()
			}
			return
		}
		p.logger.Info("mqtt connected")
		if handler.OnConnected != nil {
			handler.OnConnected()
		}
	}, p.timeout)
}

func (p *MQTTPlatform) isCurrent(connection uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connection == connection
}

func (p *MQTTPlatform) currentClient(connection uint64) *imqtt.MQTTClient {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.connection != connection {
		return nil
	}
	return p.client
}

// Close disconnects the current client, if any. Its callbacks are dropped.
func (p *MQTTPlatform) Close() {
	p.mu.Lock()
	client := p.client
	p.client = nil
	p.connection++
	p.mu.Unlock()
	if client != nil {
		client.Disconnect(p.timeout)
	}
}

func (p *MQTTPlatform) publishJSON(topic string, payload any, retain bool, timeout time.Duration) error {
	p.mu.Lock()
	client := p.client
	p.mu.Unlock()
	if client == nil {
		return domain.ErrNotConnected
	}
	var data []byte
	switch v := payload.(type) {
	case []byte:
		data = v
	default:
		var err error
		data, err = json.Marshal(payload)
		if err != nil {
			return err
		}
	}
	return client.PublishSync(topic, data, 1, retain, timeout)
}

func (p *MQTTPlatform) CreateNode(spec domain.NodeSpec, listener port.NodeListener) port.PlatformNode {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := imqtt.Segment(spec.Id)
	if node, ok := p.nodes[key]; ok {
		node.listener = listener
		return node
	}
	node := &mqttNode{
		platform: p,
		spec:     spec,
		listener: listener,
		things:   map[string]*mqttThing{},
	}
	p.nodes[key] = node
	return node
}

func (p *MQTTPlatform) handleMessage(topic string, payload []byte) {
	cmd, err := p.topics.ParseMQTTCommand(topic, payload)
	if err != nil {
		p.logger.Debug("mqtt ignoring message", zap.String("topic", topic))
		return
	}

	p.mu.Lock()
	node, ok := p.nodes[cmd.NodeId]
	if !ok {
		p.mu.Unlock()
		p.logger.Debug("mqtt message for unknown node", zap.String("node", cmd.NodeId))
		return
	}
	nodeListener := node.listener
	var thing *mqttThing
	var thingListener port.ThingListener
	if cmd.ThingId != "" {
		thing, ok = node.things[cmd.ThingId]
		if !ok {
			p.mu.Unlock()
			p.logger.Debug("mqtt message for unknown thing", zap.String("thing", cmd.ThingId))
			return
		}
		thingListener = thing.listener
	}
	p.mu.Unlock()

	switch {
	case thing == nil && cmd.Command == imqtt.COMMAND_UNREGISTER:
		p.mu.Lock()
		node.registered = false
		p.mu.Unlock()
		if nodeListener.OnNodeUnregistered != nil {
			nodeListener.OnNodeUnregistered(node.spec.Id)
		}
	case thing != nil && cmd.Command == imqtt.COMMAND_UNREGISTER:
		p.mu.Lock()
		thing.registered = false
		p.mu.Unlock()
		if thingListener.OnThingUnregistered != nil {
			thingListener.OnThingUnregistered(node.spec.Id, thing.spec.Id)
		}
	case thing != nil && cmd.Command == imqtt.COMMAND_ACTION:
		if thingListener.OnActionReceived != nil {
			thingListener.OnActionReceived(node.spec.Id, thing.spec.Id, domain.ThingActionData{Message: cmd.Payload})
		}
	case thing != nil && cmd.Command == imqtt.COMMAND_CONFIG:
		cfg, err := imqtt.ParseConfigurationMessage(cmd.Payload)
		if err != nil {
			p.logger.Error("mqtt invalid thing configuration", zap.String("thing", thing.spec.Id), zap.Error(err))
			return
		}
		p.mu.Lock()
		thing.config = cfg
		p.mu.Unlock()
		if thingListener.OnConfigurationReceived != nil {
			thingListener.OnConfigurationReceived(thing)
		}
	}
}

// Node

func (n *mqttNode) ID() string {
	return n.spec.Id
}

func (n *mqttNode) IsRegistered() bool {
	n.platform.mu.Lock()
	defer n.platform.mu.Unlock()
	return n.registered
}

func (n *mqttNode) Register() bool {
	p := n.platform
	err := p.publishJSON(p.topics.NodeConfigTopic(n.spec.Id), p.topics.NodeRegistrationMessage(n.spec), true, p.registrationTimeout)
	if err != nil {
		p.logger.Error("mqtt node registration failed", zap.String("node", n.spec.Id), zap.Error(err))
		return false
	}
	p.mu.Lock()
	n.registered = true
	p.mu.Unlock()
	return true
}

func (n *mqttNode) SetConnected(connected bool, message string) bool {
	return n.platform.publishState(n.platform.topics.NodeStateTopic(n.spec.Id), connected, message)
}

func (n *mqttNode) CreateThing(spec domain.ThingSpec, listener port.ThingListener) port.PlatformThing {
	n.platform.mu.Lock()
	defer n.platform.mu.Unlock()
	key := imqtt.Segment(spec.Id)
	if thing, ok := n.things[key]; ok {
		thing.listener = listener
		return thing
	}
	thing := &mqttThing{
		node:     n,
		spec:     spec,
		listener: listener,
	}
	n.things[key] = thing
	return thing
}

func (p *MQTTPlatform) publishState(topic string, connected bool, message string) bool {
	payload, err := imqtt.StateMessageJSON(connected, message)
	if err == nil {
		err = p.publishJSON(topic, payload, true, p.registrationTimeout)
	}
	if err != nil {
		p.logger.Error("mqtt state publish failed", zap.String("topic", topic), zap.Error(err))
		return false
	}
	return true
}

// Thing

func (t *mqttThing) ID() string {
	return t.spec.Id
}

func (t *mqttThing) Spec() domain.ThingSpec {
	return t.spec
}

func (t *mqttThing) IsRegistered() bool {
	t.node.platform.mu.Lock()
	defer t.node.platform.mu.Unlock()
	return t.registered
}

func (t *mqttThing) Register() bool {
	p := t.node.platform
	err := p.publishJSON(p.topics.ThingConfigTopic(t.node.spec.Id, t.spec.Id), p.topics.ThingRegistrationMessage(t.node.spec.Id, t.spec), true, p.registrationTimeout)
	if err != nil {
		p.logger.Error("mqtt thing registration failed", zap.String("thing", t.spec.Id), zap.Error(err))
		return false
	}
	p.mu.Lock()
	t.registered = true
	p.mu.Unlock()
	return true
}

func (t *mqttThing) SetConnected(connected bool, message string) bool {
	p := t.node.platform
	return p.publishState(p.topics.ThingStateTopic(t.node.spec.Id, t.spec.Id), connected, message)
}

func (t *mqttThing) SendData(data domain.ThingData) bool {
	p := t.node.platform
	payload, err := imqtt.DataMessageJSON(data)
	if err == nil {
		err = p.publishJSON(p.topics.ThingDataTopic(t.node.spec.Id, t.spec.Id), payload, false, p.timeout)
	}
	if err != nil {
		p.logger.Debug(fmt.Sprintf("mqtt data publish failed for %s", t.spec.Id), zap.Error(err))
		return false
	}
	return true
}

func (t *mqttThing) Configuration() domain.ThingConfiguration {
	t.node.platform.mu.Lock()
	defer t.node.platform.mu.Unlock()
	return t.config
}

// ensure interface compliance
var _ port.Platform = (*MQTTPlatform)(nil)
var _ port.PlatformNode = (*mqttNode)(nil)
var _ port.PlatformThing = (*mqttThing)(nil)
