// Package logic contains the pure parts of the plant logger: session states,
// readings, moisture normalisation and the closed set of remote commands.
// This package has NO external dependencies (no GPIO, MQTT, HTTP or clocks).
package logic

// State is a LoggerSession lifecycle state.
type State string

const (
	StateInitializing   State = "INITIALIZING"
	StateProbing        State = "PROBING"
	StateConnecting     State = "CONNECTING"
	StateAuthenticating State = "AUTHENTICATING"
	StateActive         State = "ACTIVE"
	StateReconnecting   State = "RECONNECTING"
	StateTerminated     State = "TERMINATED"
)

// States lists every state in lifecycle order.
func States() []State {
	return []State{
		StateInitializing,
		StateProbing,
		StateConnecting,
		StateAuthenticating,
		StateActive,
		StateReconnecting,
		StateTerminated,
	}
}

// Reading is one tick's worth of measurements. It is sent to the backend
// and then discarded.
type Reading struct {
	Pairing     string  `json:"pairing"`
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	Moisture    float64 `json:"moisture"`
}
