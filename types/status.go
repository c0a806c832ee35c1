package types

import "fmt"

// IntentState enumerates the lifecycle states reported to intent owners.
type IntentState int32

const (
	IntentStatePending IntentState = iota
	IntentStatePartiallyFilled
	IntentStateFilled
	IntentStateExpired
	IntentStateCancelled
)

func (s IntentState) String() string {
	switch s {
	case IntentStatePending:
		return "pending"
	case IntentStatePartiallyFilled:
		return "partiallyFilled"
	case IntentStateFilled:
		return "filled"
	case IntentStateExpired:
		return "expired"
	case IntentStateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

// Terminal reports whether no further transitions are possible from s.
func (s IntentState) Terminal() bool {
	switch s {
	case IntentStateFilled, IntentStateExpired, IntentStateCancelled:
		return true
	default:
		return false
	}
}

// IntentStatus is the externally visible status of a submitted intent.
// Remaining is meaningful for pending and partially-filled intents.
type IntentStatus struct {
	ID        IntentID    `json:"id"`
	State     IntentState `json:"state"`
	Remaining uint64      `json:"remaining"`
}
