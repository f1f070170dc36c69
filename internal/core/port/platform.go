package port

import (
	"github.com/berfenger/doorbell2mqtt/internal/core/domain"
)

// ConnectionHandler receives the asynchronous outcome of Platform.Connect.
// Callbacks may run on any goroutine.
type ConnectionHandler struct {
	OnConnected    func()
	OnDisconnected func()
}

type NodeListener struct {
	OnNodeUnregistered func(nodeId string)
}

type ThingListener struct {
	OnConfigurationReceived func(thing PlatformThing)
	OnActionReceived        func(nodeId string, thingId string, action domain.ThingActionData)
	OnThingUnregistered     func(nodeId string, thingId string)
}

// Platform is the remote IoT platform.
//
// Connect is fire-and-forget: a nil error only means the connection could be
// built, the result arrives later through the handler. A version mismatch is
// reported synchronously with an error wrapping domain.ErrUnsupportedVersion.
type Platform interface {
	Connect(handler ConnectionHandler) error
	// CreateNode returns the node for spec, creating it on first use.
	CreateNode(spec domain.NodeSpec, listener NodeListener) PlatformNode
}

type PlatformNode interface {
	ID() string
	IsRegistered() bool
	Register() bool
	SetConnected(connected bool, message string) bool
	// CreateThing returns the thing for spec, creating it on first use.
	CreateThing(spec domain.ThingSpec, listener ThingListener) PlatformThing
}

type PlatformThing interface {
	ID() string
	Spec() domain.ThingSpec
	IsRegistered() bool
	Register() bool
	SetConnected(connected bool, message string) bool
	SendData(data domain.ThingData) bool
	Configuration() domain.ThingConfiguration
}
