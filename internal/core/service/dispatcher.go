package service

import (
	"encoding/json"
	"fmt"

	"github.com/berfenger/doorbell2mqtt/internal/core/domain"

	"go.uber.org/zap"
)

const ACTION_STATE_FIELD = "state"

// ActionDispatcher turns action messages for actuator things into door
// commands for the registered listener.
type ActionDispatcher struct {
	routes   map[string]map[string]bool
	listener domain.ActionListener
	logger   *zap.Logger
}

func NewActionDispatcher(things []domain.ThingSpec, logger *zap.Logger) *ActionDispatcher {
	routes := map[string]map[string]bool{}
	for _, t := range things {
		if t.Actuator && len(t.Actions) > 0 {
			routes[t.Id] = t.Actions
		}
	}
	return &ActionDispatcher{
		routes: routes,
		logger: logger,
	}
}

func (d *ActionDispatcher) SetListener(listener domain.ActionListener) {
	d.listener = listener
}

// Dispatch routes the action and reports whether a command reached the
// listener. Malformed payloads are logged and dropped.
func (d *ActionDispatcher) Dispatch(nodeId string, thingId string, action domain.ThingActionData) bool {
	d.logger.Info("dispatcher: action received", zap.String("node", nodeId), zap.String("thing", thingId))
	routes, ok := d.routes[thingId]
	if !ok {
		d.logger.Debug("dispatcher: not an actuator, ignoring", zap.String("thing", thingId))
		return false
	}

	state, err := ParseActionState(action.Message)
	if err != nil {
		d.logger.Error("dispatcher: could not parse action", zap.String("thing", thingId), zap.Error(err))
		return false
	}

	unlock, ok := routes[state]
	if !ok {
		d.logger.Debug("dispatcher: unrouted action state", zap.String("thing", thingId), zap.String("state", state))
		return false
	}
	if d.listener == nil {
		d.logger.Debug("dispatcher: no listener, dropping command", zap.Bool("unlock", unlock))
		return false
	}

	d.listener(unlock)
	if unlock {
		d.logger.Info("dispatcher: unlocking door...")
	} else {
		d.logger.Info("dispatcher: keeping door locked")
	}
	return true
}

// ParseActionState extracts the state field of a JSON action message. Numbers
// are accepted and returned in their literal form.
func ParseActionState(message string) (string, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal([]byte(message), &doc); err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrMalformedAction, err)
	}
	raw, ok := doc[ACTION_STATE_FIELD]
	if !ok {
		return "", fmt.Errorf("%w: missing %q", domain.ErrMalformedAction, ACTION_STATE_FIELD)
	}

	var state string
	if err := json.Unmarshal(raw, &state); err == nil {
		return state, nil
	}
	var number json.Number
	if err := json.Unmarshal(raw, &number); err == nil {
		return number.String(), nil
	}
	return "", fmt.Errorf("%w: %q is not a string", domain.ErrMalformedAction, ACTION_STATE_FIELD)
}
