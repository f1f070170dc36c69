package platform

import (
	"sync"

	"github.com/berfenger/doorbell2mqtt/internal/core/domain"
	"github.com/berfenger/doorbell2mqtt/internal/core/port"
)

// MemoryPlatform is an in-process platform. It backs the memory driver and
// lets tests script connection events and failures.
type MemoryPlatform struct {
	mu sync.Mutex

	autoConnect  bool
	connectErr   error
	failSend     bool
	failRegister map[string]bool

	handler      *port.ConnectionHandler
	connectCalls int
	nodes        map[string]*MemoryNode
}

type MemoryNode struct {
	platform *MemoryPlatform
	spec     domain.NodeSpec
	listener port.NodeListener

	registered       bool
	registerCalls    int
	connected        bool
	message          string
	createThingCalls int
	things           map[string]*MemoryThing
}

type MemoryThing struct {
	node     *MemoryNode
	spec     domain.ThingSpec
	listener port.ThingListener

	registered    bool
	registerCalls int
	connected     bool
	message       string
	config        domain.ThingConfiguration
	sent          []domain.ThingData
}

func NewMemoryPlatform() *MemoryPlatform {
	return &MemoryPlatform{
		failRegister: map[string]bool{},
		nodes:        map[string]*MemoryNode{},
	}
}

// SetAutoConnect makes every successful Connect report connected right away.
func (p *MemoryPlatform) SetAutoConnect(enable bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.autoConnect = enable
}

func (p *MemoryPlatform) SetConnectError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connectErr = err
}

func (p *MemoryPlatform) SetSendFailure(fail bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failSend = fail
}

// FailRegistration makes Register return false for the node or thing id.
func (p *MemoryPlatform) FailRegistration(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failRegister[id] = true
}

func (p *MemoryPlatform) Connect(handler port.ConnectionHandler) error {
	p.mu.Lock()
	p.connectCalls++
	if p.connectErr != nil {
		err := p.connectErr
		p.mu.Unlock()
		return err
	}
	p.handler = &handler
	auto := p.autoConnect
	p.mu.Unlock()

	if auto && handler.OnConnected != nil {
		go handler.OnConnected()
	}
	return nil
}

func (p *MemoryPlatform) ConnectCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connectCalls
}

// TriggerConnected reports a connection through the last Connect handler.
func (p *MemoryPlatform) TriggerConnected() bool {
	p.mu.Lock()
	handler := p.handler
	p.mu.Unlock()
	if handler == nil || handler.OnConnected == nil {
		return false
	}
	handler.OnConnected()
	return true
}

func (p *MemoryPlatform) TriggerDisconnected() bool {
	p.mu.Lock()
	handler := p.handler
	p.mu.Unlock()
	if handler == nil || handler.OnDisconnected == nil {
		return false
	}
	handler.OnDisconnected()
	return true
}

func (p *MemoryPlatform) CreateNode(spec domain.NodeSpec, listener port.NodeListener) port.PlatformNode {
	p.mu.Lock()
	defer p.mu.Unlock()
	if node, ok := p.nodes[spec.Id]; ok {
		node.listener = listener
		return node
	}
	node := &MemoryNode{
		platform: p,
		spec:     spec,
		listener: listener,
		things:   map[string]*MemoryThing{},
	}
	p.nodes[spec.Id] = node
	return node
}

// Node returns the node created for id, or nil.
func (p *MemoryPlatform) Node(id string) *MemoryNode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.nodes[id]
}

// DeliverAction hands an action message to the thing listener, as the remote
// platform would.
func (p *MemoryPlatform) DeliverAction(nodeId string, thingId string, message string) bool {
	_, listener := p.thing(nodeId, thingId)
	if listener.OnActionReceived == nil {
		return false
	}
	listener.OnActionReceived(nodeId, thingId, domain.ThingActionData{Message: message})
	return true
}

func (p *MemoryPlatform) DeliverConfiguration(nodeId string, thingId string, config domain.ThingConfiguration) bool {
	thing, listener := p.thing(nodeId, thingId)
	if thing == nil {
		return false
	}
	p.mu.Lock()
	thing.config = config
	p.mu.Unlock()
	if listener.OnConfigurationReceived == nil {
		return false
	}
	listener.OnConfigurationReceived(thing)
	return true
}

func (p *MemoryPlatform) UnregisterNode(nodeId string) bool {
	p.mu.Lock()
	var listener port.NodeListener
	node, ok := p.nodes[nodeId]
	if ok {
		node.registered = false
		listener = node.listener
	}
	p.mu.Unlock()
	if listener.OnNodeUnregistered == nil {
		return false
	}
	listener.OnNodeUnregistered(nodeId)
	return true
}

func (p *MemoryPlatform) UnregisterThing(nodeId string, thingId string) bool {
	thing, listener := p.thing(nodeId, thingId)
	if thing == nil {
		return false
	}
	p.mu.Lock()
	thing.registered = false
	p.mu.Unlock()
	if listener.OnThingUnregistered == nil {
		return false
	}
	listener.OnThingUnregistered(nodeId, thingId)
	return true
}

func (p *MemoryPlatform) thing(nodeId string, thingId string) (*MemoryThing, port.ThingListener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	node, ok := p.nodes[nodeId]
	if !ok {
		return nil, port.ThingListener{}
	}
	thing, ok := node.things[thingId]
	if !ok {
		return nil, port.ThingListener{}
	}
	return thing, thing.listener
}

// Node

func (n *MemoryNode) ID() string {
	return n.spec.Id
}

func (n *MemoryNode) IsRegistered() bool {
	n.platform.mu.Lock()
	defer n.platform.mu.Unlock()
	return n.registered
}

func (n *MemoryNode) Register() bool {
	n.platform.mu.Lock()
	defer n.platform.mu.Unlock()
	n.registerCalls++
	if n.platform.failRegister[n.spec.Id] {
		return false
	}
	n.registered = true
	return true
}

func (n *MemoryNode) SetConnected(connected bool, message string) bool {
	n.platform.mu.Lock()
	defer n.platform.mu.Unlock()
	n.connected = connected
	n.message = message
	return true
}

func (n *MemoryNode) CreateThing(spec domain.ThingSpec, listener port.ThingListener) port.PlatformThing {
	n.platform.mu.Lock()
	defer n.platform.mu.Unlock()
	n.createThingCalls++
	if thing, ok := n.things[spec.Id]; ok {
		thing.listener = listener
		return thing
	}
	thing := &MemoryThing{
		node:     n,
		spec:     spec,
		listener: listener,
	}
	n.things[spec.Id] = thing
	return thing
}

func (n *MemoryNode) RegisterCalls() int {
	n.platform.mu.Lock()
	defer n.platform.mu.Unlock()
	return n.registerCalls
}

func (n *MemoryNode) CreateThingCalls() int {
	n.platform.mu.Lock()
	defer n.platform.mu.Unlock()
	return n.createThingCalls
}

func (n *MemoryNode) Connected() (bool, string) {
	n.platform.mu.Lock()
	defer n.platform.mu.Unlock()
	return n.connected, n.message
}

// Thing returns the thing created for id, or nil.
func (n *MemoryNode) Thing(id string) *MemoryThing {
	n.platform.mu.Lock()
	defer n.platform.mu.Unlock()
	return n.things[id]
}

// Thing

func (t *MemoryThing) ID() string {
	return t.spec.Id
}

func (t *MemoryThing) Spec() domain.ThingSpec {
	return t.spec
}

func (t *MemoryThing) IsRegistered() bool {
	t.node.platform.mu.Lock()
	defer t.node.platform.mu.Unlock()
	return t.registered
}

func (t *MemoryThing) Register() bool {
	t.node.platform.mu.Lock()
	defer t.node.platform.mu.Unlock()
	t.registerCalls++
	if t.node.platform.failRegister[t.spec.Id] {
		return false
	}
	t.registered = true
	return true
}

func (t *MemoryThing) SetConnected(connected bool, message string) bool {
	t.node.platform.mu.Lock()
	defer t.node.platform.mu.Unlock()
	t.connected = connected
	t.message = message
	return true
}

func (t *MemoryThing) SendData(data domain.ThingData) bool {
	t.node.platform.mu.Lock()
	defer t.node.platform.mu.Unlock()
	if t.node.platform.failSend {
		return false
	}
	t.sent = append(t.sent, data)
	return true
}

func (t *MemoryThing) Configuration() domain.ThingConfiguration {
	t.node.platform.mu.Lock()
	defer t.node.platform.mu.Unlock()
	return t.config
}

func (t *MemoryThing) RegisterCalls() int {
	t.node.platform.mu.Lock()
	defer t.node.platform.mu.Unlock()
	return t.registerCalls
}

func (t *MemoryThing) Connected() (bool, string) {
	t.node.platform.mu.Lock()
	defer t.node.platform.mu.Unlock()
	return t.connected, t.message
}

// Sent returns the values sent so far, oldest first.
func (t *MemoryThing) Sent() []string {
	t.node.platform.mu.Lock()
	defer t.node.platform.mu.Unlock()
	var values []string
	for _, d := range t.sent {
		values = append(values, d.Data...)
	}
	return values
}

// ensure interface compliance
var _ port.Platform = (*MemoryPlatform)(nil)
var _ port.PlatformNode = (*MemoryNode)(nil)
var _ port.PlatformThing = (*MemoryThing)(nil)
