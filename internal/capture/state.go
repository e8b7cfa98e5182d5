package capture

import "fmt"

// State is the capture state.
type State int32

const (
	Idle State = iota
	Starting
	Running
	Stopping
	Failed
)

var stateNames = [...]string{"Idle", "Starting", "Running", "Stopping", "Failed"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int32(s))
	}
	return stateNames[s]
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Transient reports whether s is an in-progress transition.
func (s State) Transient() bool {
	return s == Starting || s == Stopping
}

// Status is a point-in-time view of the controller.
type Status struct {
	State      State  `json:"state"`
	Overflows  uint64 `json:"overflows"`
	FailReason string `json:"fail_reason,omitempty"`
	SessionID  string `json:"session_id,omitempty"`
}
