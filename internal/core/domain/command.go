package domain

const (
	ACTION_STATE_LOCK   = "0"
	ACTION_STATE_UNLOCK = "1"
)

// ActionListener receives door commands decoded from actuator actions.
type ActionListener func(unlock bool)

func DefaultActionRoutes() map[string]bool {
	return map[string]bool{
		ACTION_STATE_LOCK:   false,
		ACTION_STATE_UNLOCK: true,
	}
}

// CommandPayload is the telemetry value a door key sends for a command.
func CommandPayload(unlock bool) string {
	if unlock {
		return ACTION_STATE_UNLOCK
	}
	return ACTION_STATE_LOCK
}
