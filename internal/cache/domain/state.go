package cache

// State is the reconciler connectivity state.
type State string

const (
	StateOffline   State = "offline"
	StateLive      State = "live"
	StateSyncingUp State = "syncing_up"
	StateError     State = "error"
)

// AllStates lists every state, used to reset state gauges.
var AllStates = []string{
	string(StateOffline),
	string(StateLive),
	string(StateSyncingUp),
	string(StateError),
}
