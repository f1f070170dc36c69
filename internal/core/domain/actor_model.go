package domain

import (
	"github.com/asynkron/protoactor-go/actor"
)

const (
	ACTOR_ID_SUPERVISOR = "supervisor"
	ACTOR_ID_BUTTON     = "button"
)

type ActorRef actor.PID

type ActorRequestMixIn struct {
	ReplyToRef *ActorRef
}

type ActorRequest interface {
	ReplyTo() *ActorRef
}

func (r ActorRequestMixIn) ReplyTo() *ActorRef {
	return r.ReplyToRef
}

type ActorResponseMixIn struct {
	ResponseError error
}

func (r ActorResponseMixIn) GetResponseError() error {
	return r.ResponseError
}

func (r ActorResponseMixIn) HasResponseError() bool {
	return r.ResponseError != nil
}

type ActorResponse interface {
	GetResponseError() error
	HasResponseError() bool
}

// StartRequest asks the supervisor to (re)build the platform connection.
type StartRequest struct {
	ActorRequestMixIn
}

// PublishTelemetryRequest sends Value on the thing ThingId. An empty ThingId
// targets the configured telemetry thing.
type PublishTelemetryRequest struct {
	ActorRequestMixIn
	ThingId string
	Value   string
}

type PublishTelemetryResponse struct {
	ActorResponseMixIn
	Sent bool
}

// SetActionListenerRequest replaces the single action listener slot. A nil
// Listener clears it.
type SetActionListenerRequest struct {
	ActorRequestMixIn
	Listener ActionListener
}

type GetStatusRequest struct {
	ActorRequestMixIn
}

type GetStatusResponse struct {
	ActorResponseMixIn
	Status SupervisorStatus
}

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}

// ensure interface compliance
var _ ActorRequest = (*PublishTelemetryRequest)(nil)
var _ ActorResponse = (*PublishTelemetryResponse)(nil)
