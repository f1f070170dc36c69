package service

import (
	"fmt"

	"github.com/berfenger/doorbell2mqtt/internal/core/domain"
	"github.com/berfenger/doorbell2mqtt/internal/core/port"

	"go.uber.org/zap"
)

// DeviceRegistry registers the node and its things once the platform is
// connected. Initialize is idempotent: entities already registered are only
// marked connected again.
//
// Registration failures are not fatal. A failed Register takes the same path as
// an already registered entity and the entity is marked connected anyway.
type DeviceRegistry struct {
	nodeSpec   domain.NodeSpec
	thingSpecs []domain.ThingSpec

	node   port.PlatformNode
	things map[string]port.PlatformThing
	status map[string]*domain.EntityStatus

	logger *zap.Logger
}

func NewDeviceRegistry(nodeSpec domain.NodeSpec, thingSpecs []domain.ThingSpec, logger *zap.Logger) *DeviceRegistry {
	return &DeviceRegistry{
		nodeSpec:   nodeSpec,
		thingSpecs: thingSpecs,
		things:     map[string]port.PlatformThing{},
		status:     map[string]*domain.EntityStatus{},
		logger:     logger,
	}
}

func (r *DeviceRegistry) Initialize(platform port.Platform, nodeListener port.NodeListener, thingListener port.ThingListener) {
	node := platform.CreateNode(r.nodeSpec, nodeListener)
	r.node = node

	message := fmt.Sprintf("%s is online", node.ID())
	if !node.IsRegistered() && node.Register() {
		r.setConnected(node.ID(), node.SetConnected(true, message), message)
		r.logger.Info("registry: node successfully registered", zap.String("node", node.ID()))
	} else {
		r.setConnected(node.ID(), node.SetConnected(true, message), message)
		r.logger.Info("registry: node already registered", zap.String("node", node.ID()))
	}

	// things are only created under a registered node
	if !node.IsRegistered() {
		r.logger.Warn("registry: node is not registered, skipping things", zap.String("node", node.ID()))
		return
	}
	for _, spec := range r.thingSpecs {
		thing := node.CreateThing(spec, thingListener)
		r.things[spec.Id] = thing
		r.registerThingIfNotRegistered(thing)
	}
}

func (r *DeviceRegistry) registerThingIfNotRegistered(thing port.PlatformThing) {
	message := fmt.Sprintf("%s connected", thing.ID())
	if !thing.IsRegistered() && thing.Register() {
		r.setConnected(thing.ID(), thing.SetConnected(true, message), message)
		r.logger.Info("registry: thing successfully registered", zap.String("thing", thing.ID()))
	} else {
		r.setConnected(thing.ID(), thing.SetConnected(true, message), message)
		r.logger.Info("registry: thing already registered", zap.String("thing", thing.ID()))
	}
}

func (r *DeviceRegistry) setConnected(id string, ok bool, message string) {
	if !ok {
		r.logger.Warn("registry: could not publish connection state", zap.String("id", id))
	}
	r.status[id] = &domain.EntityStatus{
		Id:        id,
		Connected: true,
		Message:   message,
	}
}

// MarkOffline records the platform as unreachable. Nothing is sent.
func (r *DeviceRegistry) MarkOffline(message string) {
	for _, st := range r.status {
		st.Connected = false
		st.Message = message
	}
}

func (r *DeviceRegistry) Node() port.PlatformNode {
	return r.node
}

// Thing returns the platform thing for id, or nil if it has not been created.
func (r *DeviceRegistry) Thing(id string) port.PlatformThing {
	return r.things[id]
}

func (r *DeviceRegistry) Status() (*domain.EntityStatus, []domain.EntityStatus) {
	var node *domain.EntityStatus
	if r.node != nil {
		node = r.entityStatus(r.node.ID(), r.node.IsRegistered())
	}
	things := make([]domain.EntityStatus, 0, len(r.thingSpecs))
	for _, spec := range r.thingSpecs {
		thing, ok := r.things[spec.Id]
		if !ok {
			things = append(things, domain.EntityStatus{Id: spec.Id})
			continue
		}
		things = append(things, *r.entityStatus(thing.ID(), thing.IsRegistered()))
	}
	return node, things
}

func (r *DeviceRegistry) entityStatus(id string, registered bool) *domain.EntityStatus {
	st := domain.EntityStatus{Id: id, Registered: registered}
	if s, ok := r.status[id]; ok {
		st.Connected = s.Connected
		st.Message = s.Message
	}
	return &st
}
