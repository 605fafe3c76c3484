package poller

import (
	"fmt"
	"time"

	"voxm2m/internal/nlu"
)

type State int

const (
	IDLE State = iota
	FETCHING
	SKIPPED
	ASSEMBLING
	SELECTING
	NONE_READY
	BUILDING
	RECOGNIZING
	DISPATCHING
	SLEEPING
)

var stateNames = [...]string{
	IDLE:        "IDLE",
	FETCHING:    "FETCHING",
	SKIPPED:     "SKIPPED",
	ASSEMBLING:  "ASSEMBLING",
	SELECTING:   "SELECTING",
	NONE_READY:  "NONE_READY",
	BUILDING:    "BUILDING",
	RECOGNIZING: "RECOGNIZING",
	DISPATCHING: "DISPATCHING",
	SLEEPING:    "SLEEPING",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	for i, name := range stateNames {
		if name == string(b) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown poller state %q", b)
}

// Status is a point-in-time copy of a poller, safe to hand to other
// goroutines.
type Status struct {
	Source          string       `json:"source"`
	State           State        `json:"state"`
	Cycles          int          `json:"cycles"`
	Skipped         int          `json:"skipped"`
	Built           int          `json:"built"`
	Dispatched      int          `json:"dispatched"`
	Sessions        int          `json:"sessions"`
	LastFingerprint string       `json:"last_fingerprint,omitempty"`
	LastSessionID   string       `json:"last_session_id,omitempty"`
	LastCommand     *nlu.Command `json:"last_command,omitempty"`
	Pending         *nlu.Target  `json:"pending,omitempty"`
	PendingAttempts int          `json:"pending_attempts,omitempty"`
	LastError       string       `json:"last_error,omitempty"`
	LastCycleAt     time.Time    `json:"last_cycle_at"`
}
